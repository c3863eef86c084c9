// Package storage defines the persistence contract for extraction
// outputs. Documents, chunks, entities, and relations are stored as
// JSON values in namespaced key-value collections; the same backends
// also persist the dead letter queue.
//
// Three implementations exist:
//   - storage/memory — in-process maps, used in tests and small runs
//   - storage/redis — Redis hashes, one hash per namespace
//   - storage/postgres — a single namespaced table via pgx
package storage

import (
	"context"

	"github.com/xraph/distill"
)

// Namespaces for extraction outputs. Each namespace is an isolated
// key space within a backend.
const (
	NamespaceFullDocs   = "full_docs"
	NamespaceTextChunks = "text_chunks"
	NamespaceEntities   = "entities"
	NamespaceRelations  = "relations"
	NamespaceChunkIndex = "chunk_entity_index"
)

// KV is a namespaced key-value store for JSON-encoded extraction
// outputs. Implementations must be safe for concurrent use.
type KV interface {
	// Get retrieves the value for key in the given namespace. Returns
	// distill.ErrKeyNotFound when the key does not exist.
	Get(ctx context.Context, namespace, key string) ([]byte, error)

	// GetAll returns every key-value pair in the namespace.
	GetAll(ctx context.Context, namespace string) (map[string][]byte, error)

	// Upsert writes the given key-value pairs into the namespace,
	// overwriting existing keys.
	Upsert(ctx context.Context, namespace string, values map[string][]byte) error

	// FilterNew returns the subset of keys that are not yet present in
	// the namespace, preserving input order.
	FilterNew(ctx context.Context, namespace string, keys []string) ([]string, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close(ctx context.Context) error
}

// Every KV is also usable as the runtime's output store.
var _ distill.OutputStore = (KV)(nil)
