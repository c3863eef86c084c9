package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xraph/distill/id"
	"github.com/xraph/distill/job"
	"github.com/xraph/distill/storage"
)

// summaryLength caps the stored document summary.
const summaryLength = 200

// Submitter accepts a document's chunks as a new extraction job. It is
// implemented by the engine.
type Submitter interface {
	Submit(ctx context.Context, docID string, specs []job.ChunkSpec) (*job.Snapshot, error)
}

// IngestResult reports what an ingestion call did.
type IngestResult struct {
	// TrackID groups the documents of one ingestion call.
	TrackID string `json:"track_id"`
	// Submitted maps each newly stored document to its extraction job.
	Submitted map[string]*job.Snapshot `json:"submitted"`
	// Duplicates lists documents skipped because identical content is
	// already stored.
	Duplicates []string `json:"duplicates"`
}

// Ingestor turns raw document text into stored records and extraction
// jobs.
type Ingestor struct {
	kv        storage.KV
	submitter Submitter
	chunker   *Chunker
	logger    *slog.Logger
	now       func() time.Time
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithIngestClock overrides the clock, for tests.
func WithIngestClock(now func() time.Time) IngestorOption {
	return func(ig *Ingestor) { ig.now = now }
}

// NewIngestor creates an Ingestor writing records to kv and submitting
// jobs through submitter.
func NewIngestor(kv storage.KV, submitter Submitter, chunker *Chunker, logger *slog.Logger, opts ...IngestorOption) *Ingestor {
	ig := &Ingestor{
		kv:        kv,
		submitter: submitter,
		chunker:   chunker,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(ig)
	}
	return ig
}

// Ingest sanitizes, deduplicates, chunks, stores, and submits the given
// documents. Documents whose content is already stored are skipped.
// All documents of one call share a track ID of the form
// "upload-<uuid>".
func (ig *Ingestor) Ingest(ctx context.Context, contents ...string) (*IngestResult, error) {
	trackID := "upload-" + uuid.NewString()
	res := &IngestResult{
		TrackID:   trackID,
		Submitted: make(map[string]*job.Snapshot),
	}

	// Sanitize first so identical documents with different line endings
	// deduplicate to one record.
	unique := make(map[string]string, len(contents))
	order := make([]string, 0, len(contents))
	for _, raw := range contents {
		content := Sanitize(raw)
		if content == "" {
			continue
		}
		docID := DocID(content)
		if _, seen := unique[docID]; !seen {
			unique[docID] = content
			order = append(order, docID)
		}
	}
	if len(order) == 0 {
		return res, nil
	}

	newIDs, err := ig.kv.FilterNew(ctx, storage.NamespaceFullDocs, order)
	if err != nil {
		return nil, fmt.Errorf("pipeline: filter documents: %w", err)
	}
	isNew := make(map[string]bool, len(newIDs))
	for _, d := range newIDs {
		isNew[d] = true
	}
	for _, docID := range order {
		if !isNew[docID] {
			res.Duplicates = append(res.Duplicates, docID)
			ig.logger.Info("document already stored, skipping",
				slog.String("doc_id", docID),
				slog.String("track_id", trackID),
			)
		}
	}

	for _, docID := range newIDs {
		snap, ingErr := ig.ingestOne(ctx, trackID, docID, unique[docID])
		if ingErr != nil {
			return nil, ingErr
		}
		res.Submitted[docID] = snap
	}
	return res, nil
}

func (ig *Ingestor) ingestOne(ctx context.Context, trackID, docID, content string) (*job.Snapshot, error) {
	pieces := ig.chunker.Chunk(content)

	chunkValues := make(map[string][]byte, len(pieces))
	chunkIDs := make([]string, 0, len(pieces))
	specs := make([]job.ChunkSpec, 0, len(pieces))
	for _, p := range pieces {
		cid := ChunkID(p.Content)
		rec := ChunkRecord{
			ID:      cid,
			DocID:   docID,
			Content: p.Content,
			Tokens:  p.Tokens,
			Index:   p.Index,
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("pipeline: marshal chunk %s: %w", cid, err)
		}
		chunkValues[cid] = data
		chunkIDs = append(chunkIDs, cid)
		specs = append(specs, job.ChunkSpec{ID: id.NewChunkID(), ContentRef: cid})
	}

	doc := DocRecord{
		ID:        docID,
		Content:   content,
		Summary:   Summary(content),
		TrackID:   trackID,
		ChunkIDs:  chunkIDs,
		CreatedAt: ig.now().UTC(),
	}
	docData, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("pipeline: marshal document %s: %w", docID, err)
	}

	// Chunks land before the document record; a document whose chunks
	// are missing would break extraction, the reverse is harmless.
	if err := ig.kv.Upsert(ctx, storage.NamespaceTextChunks, chunkValues); err != nil {
		return nil, fmt.Errorf("pipeline: store chunks for %s: %w", docID, err)
	}
	if err := ig.kv.Upsert(ctx, storage.NamespaceFullDocs, map[string][]byte{docID: docData}); err != nil {
		return nil, fmt.Errorf("pipeline: store document %s: %w", docID, err)
	}

	snap, err := ig.submitter.Submit(ctx, docID, specs)
	if err != nil {
		return nil, fmt.Errorf("pipeline: submit %s: %w", docID, err)
	}

	ig.logger.Info("document ingested",
		slog.String("doc_id", docID),
		slog.String("track_id", trackID),
		slog.String("job_id", snap.ID.String()),
		slog.Int("chunks", len(pieces)),
	)
	return snap, nil
}

// Sanitize normalizes raw document text: carriage returns are dropped
// and surrounding whitespace trimmed.
func Sanitize(content string) string {
	return strings.TrimSpace(strings.ReplaceAll(content, "\r", ""))
}

// Summary returns the first summaryLength characters of content, rune
// safe.
func Summary(content string) string {
	runes := []rune(content)
	if len(runes) <= summaryLength {
		return content
	}
	return string(runes[:summaryLength])
}
