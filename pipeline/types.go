package pipeline

import "time"

// DocRecord is the stored form of an ingested document. Its ID is
// content-addressed so re-ingesting identical content is a no-op.
type DocRecord struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Summary   string    `json:"summary"`
	TrackID   string    `json:"track_id"`
	ChunkIDs  []string  `json:"chunk_ids"`
	CreatedAt time.Time `json:"created_at"`
}

// ChunkRecord is the stored form of one text chunk. The ID doubles as
// the job system's content reference.
type ChunkRecord struct {
	ID      string `json:"id"`
	DocID   string `json:"doc_id"`
	Content string `json:"content"`
	Tokens  int    `json:"tokens"`
	Index   int    `json:"index"`
}

// EntityNode is an extracted entity, merged across the chunks that
// mention it.
type EntityNode struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Description  string    `json:"description"`
	SourceChunks []string  `json:"source_chunks"`
	CreatedAt    time.Time `json:"created_at"`
}

// RelationEdge is an extracted relation between two entities.
type RelationEdge struct {
	ID           string    `json:"id"`
	SourceID     string    `json:"source_id"`
	TargetID     string    `json:"target_id"`
	Description  string    `json:"description"`
	Keywords     []string  `json:"keywords"`
	SourceChunks []string  `json:"source_chunks"`
	CreatedAt    time.Time `json:"created_at"`
}

// ChunkIndex records what a single chunk contributed to the output
// store. Its key is the chunk's output reference in the job store.
type ChunkIndex struct {
	ChunkID     string   `json:"chunk_id"`
	EntityIDs   []string `json:"entity_ids"`
	RelationIDs []string `json:"relation_ids"`
}
