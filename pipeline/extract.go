package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/xraph/distill"
	"github.com/xraph/distill/processor"
	"github.com/xraph/distill/storage"
)

// Client calls the upstream model that extracts entities and relations
// from a chunk of text. Implementations return the raw JSON response.
type Client interface {
	Extract(ctx context.Context, content string) ([]byte, error)
}

// extractionSchema validates the upstream response before anything is
// written to the output store. Responses that fail validation are
// permanent failures; retrying an ill-formed answer for the same input
// rarely produces a well-formed one.
const extractionSchema = `{
	"type": "object",
	"required": ["entities", "relationships"],
	"properties": {
		"entities": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["entity_name", "entity_type", "entity_description"],
				"properties": {
					"entity_name": {"type": "string", "minLength": 1},
					"entity_type": {"type": "string"},
					"entity_description": {"type": "string"}
				}
			}
		},
		"relationships": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["source_entity", "target_entity", "relationship_description"],
				"properties": {
					"source_entity": {"type": "string", "minLength": 1},
					"target_entity": {"type": "string", "minLength": 1},
					"relationship_description": {"type": "string"},
					"relationship_keywords": {
						"type": "array",
						"items": {"type": "string"}
					}
				}
			}
		}
	}
}`

// extractionResponse mirrors the validated upstream payload.
type extractionResponse struct {
	Entities []struct {
		Name        string `json:"entity_name"`
		Type        string `json:"entity_type"`
		Description string `json:"entity_description"`
	} `json:"entities"`
	Relationships []struct {
		Source      string   `json:"source_entity"`
		Target      string   `json:"target_entity"`
		Description string   `json:"relationship_description"`
		Keywords    []string `json:"relationship_keywords"`
	} `json:"relationships"`
}

// Extractor is the processor the worker pool runs for each chunk. One
// Extractor serves all workers; it holds no per-call state.
type Extractor struct {
	client Client
	kv     storage.KV
	schema *jsonschema.Schema
	logger *slog.Logger
	now    func() time.Time
}

var _ processor.Processor = (*Extractor)(nil)

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithExtractClock overrides the clock, for tests.
func WithExtractClock(now func() time.Time) ExtractorOption {
	return func(e *Extractor) { e.now = now }
}

// NewExtractor creates an Extractor calling client and persisting
// outputs to kv.
func NewExtractor(client Client, kv storage.KV, logger *slog.Logger, opts ...ExtractorOption) (*Extractor, error) {
	schema, err := jsonschema.CompileString("extraction.json", extractionSchema)
	if err != nil {
		return nil, fmt.Errorf("pipeline: compile extraction schema: %w", err)
	}
	e := &Extractor{
		client: client,
		kv:     kv,
		schema: schema,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Process extracts entities and relations from the chunk behind ref and
// merges them into the output store. The returned output reference
// points at the chunk's extraction index.
func (e *Extractor) Process(ctx context.Context, ref string, attempt int) (string, error) {
	data, err := e.kv.Get(ctx, storage.NamespaceTextChunks, ref)
	if err != nil {
		return "", processor.Errorf(processor.KindOther, "load chunk %s: %v", ref, err)
	}
	var chunk ChunkRecord
	if err := json.Unmarshal(data, &chunk); err != nil {
		return "", processor.Errorf(processor.KindOther, "decode chunk %s: %v", ref, err)
	}

	raw, err := e.client.Extract(ctx, chunk.Content)
	if err != nil {
		return "", e.classifyUpstream(ref, attempt, err)
	}

	resp, err := e.validate(raw)
	if err != nil {
		return "", err
	}

	index, err := e.merge(ctx, chunk.ID, resp)
	if err != nil {
		return "", err
	}

	indexData, err := json.Marshal(index)
	if err != nil {
		return "", processor.Errorf(processor.KindOther, "marshal index for %s: %v", ref, err)
	}
	outputRef := IndexID(chunk.ID)
	if err := e.kv.Upsert(ctx, storage.NamespaceChunkIndex, map[string][]byte{outputRef: indexData}); err != nil {
		return "", processor.Errorf(processor.KindOther, "store index for %s: %v", ref, err)
	}
	return outputRef, nil
}

// classifyUpstream maps client errors onto retryable error kinds.
func (e *Extractor) classifyUpstream(ref string, attempt int, err error) error {
	kind := processor.KindUpstreamUnavailable
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		kind = processor.KindTimeout
	}
	e.logger.Warn("extraction call failed",
		slog.String("chunk_ref", ref),
		slog.Int("attempt", attempt),
		slog.String("kind", string(kind)),
		slog.String("error", err.Error()),
	)
	return processor.Errorf(kind, "extract %s: %v", ref, err)
}

// validate checks the raw response against the extraction schema and
// decodes it.
func (e *Extractor) validate(raw []byte) (*extractionResponse, error) {
	var anyDoc any
	if err := json.Unmarshal(raw, &anyDoc); err != nil {
		return nil, processor.Errorf(processor.KindSchemaValidation, "response is not JSON: %v", err)
	}
	if err := e.schema.Validate(anyDoc); err != nil {
		return nil, processor.Errorf(processor.KindSchemaValidation, "response rejected by schema: %v", err)
	}
	var resp extractionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, processor.Errorf(processor.KindSchemaValidation, "decode response: %v", err)
	}
	return &resp, nil
}

// merge folds a validated response into the output store. Entities are
// merged across chunks by name; relations whose endpoints were not
// extracted in any chunk so far are skipped with a warning rather than
// creating dangling edges.
func (e *Extractor) merge(ctx context.Context, chunkID string, resp *extractionResponse) (*ChunkIndex, error) {
	index := &ChunkIndex{ChunkID: chunkID}
	now := e.now().UTC()

	entityValues := make(map[string][]byte, len(resp.Entities))
	for _, re := range resp.Entities {
		name := strings.TrimSpace(re.Name)
		if name == "" {
			continue
		}
		eid := EntityID(name)
		node, err := e.loadEntity(ctx, eid)
		if err != nil {
			return nil, err
		}
		if node == nil {
			node = &EntityNode{
				ID:          eid,
				Name:        name,
				Type:        re.Type,
				Description: re.Description,
				CreatedAt:   now,
			}
		} else if node.Description == "" {
			node.Description = re.Description
		}
		node.SourceChunks = appendUnique(node.SourceChunks, chunkID)

		data, err := json.Marshal(node)
		if err != nil {
			return nil, processor.Errorf(processor.KindOther, "marshal entity %s: %v", eid, err)
		}
		entityValues[eid] = data
		index.EntityIDs = appendUnique(index.EntityIDs, eid)
	}
	if err := e.kv.Upsert(ctx, storage.NamespaceEntities, entityValues); err != nil {
		return nil, processor.Errorf(processor.KindOther, "store entities for %s: %v", chunkID, err)
	}

	relationValues := make(map[string][]byte, len(resp.Relationships))
	for _, rr := range resp.Relationships {
		srcID, srcOK := e.resolveEndpoint(ctx, rr.Source, entityValues)
		tgtID, tgtOK := e.resolveEndpoint(ctx, rr.Target, entityValues)
		if !srcOK || !tgtOK {
			e.logger.Warn("relation endpoint unknown, skipping",
				slog.String("chunk_id", chunkID),
				slog.String("source", rr.Source),
				slog.String("target", rr.Target),
			)
			continue
		}

		rid := RelationID(rr.Source, rr.Target)
		edge := &RelationEdge{
			ID:           rid,
			SourceID:     srcID,
			TargetID:     tgtID,
			Description:  rr.Description,
			Keywords:     rr.Keywords,
			SourceChunks: []string{chunkID},
			CreatedAt:    now,
		}
		data, err := json.Marshal(edge)
		if err != nil {
			return nil, processor.Errorf(processor.KindOther, "marshal relation %s: %v", rid, err)
		}
		relationValues[rid] = data
		index.RelationIDs = appendUnique(index.RelationIDs, rid)
	}
	if err := e.kv.Upsert(ctx, storage.NamespaceRelations, relationValues); err != nil {
		return nil, processor.Errorf(processor.KindOther, "store relations for %s: %v", chunkID, err)
	}

	return index, nil
}

// loadEntity fetches an existing entity node, or nil when absent.
func (e *Extractor) loadEntity(ctx context.Context, eid string) (*EntityNode, error) {
	data, err := e.kv.Get(ctx, storage.NamespaceEntities, eid)
	if err != nil {
		if errors.Is(err, distill.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, processor.Errorf(processor.KindOther, "load entity %s: %v", eid, err)
	}
	var node EntityNode
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, processor.Errorf(processor.KindOther, "decode entity %s: %v", eid, err)
	}
	return &node, nil
}

// resolveEndpoint finds the entity ID for a relation endpoint, either
// among this chunk's entities or already in the store.
func (e *Extractor) resolveEndpoint(ctx context.Context, name string, local map[string][]byte) (string, bool) {
	eid := EntityID(name)
	if _, ok := local[eid]; ok {
		return eid, true
	}
	if _, err := e.kv.Get(ctx, storage.NamespaceEntities, eid); err == nil {
		return eid, true
	}
	return "", false
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
