// Package memory provides an in-process storage backend. It implements
// both the extraction-output KV contract and the dead letter queue
// store. Intended for tests and single-process deployments; nothing is
// persisted across restarts.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/distill"
	"github.com/xraph/distill/dlq"
	"github.com/xraph/distill/id"
	"github.com/xraph/distill/storage"
)

// Compile-time interface checks.
var (
	_ storage.KV = (*Store)(nil)
	_ dlq.Store  = (*Store)(nil)
)

// Store is an in-memory storage backend.
type Store struct {
	mu         sync.RWMutex
	namespaces map[string]map[string][]byte
	dlqEntries map[string]*dlq.Entry
	closed     bool
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		namespaces: make(map[string]map[string][]byte),
		dlqEntries: make(map[string]*dlq.Entry),
	}
}

// ──────────────────────────────────────────────────
// storage.KV
// ──────────────────────────────────────────────────

// Get retrieves the value for key in the given namespace.
func (s *Store) Get(_ context.Context, namespace, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, distill.ErrStoreClosed
	}

	ns := s.namespaces[namespace]
	v, ok := ns[key]
	if !ok {
		return nil, distill.ErrKeyNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// GetAll returns every key-value pair in the namespace.
func (s *Store) GetAll(_ context.Context, namespace string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, distill.ErrStoreClosed
	}

	ns := s.namespaces[namespace]
	out := make(map[string][]byte, len(ns))
	for k, v := range ns {
		c := make([]byte, len(v))
		copy(c, v)
		out[k] = c
	}
	return out, nil
}

// Upsert writes the given key-value pairs into the namespace.
func (s *Store) Upsert(_ context.Context, namespace string, values map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return distill.ErrStoreClosed
	}

	ns := s.namespaces[namespace]
	if ns == nil {
		ns = make(map[string][]byte, len(values))
		s.namespaces[namespace] = ns
	}
	for k, v := range values {
		c := make([]byte, len(v))
		copy(c, v)
		ns[k] = c
	}
	return nil
}

// FilterNew returns the keys not yet present in the namespace.
func (s *Store) FilterNew(_ context.Context, namespace string, keys []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, distill.ErrStoreClosed
	}

	ns := s.namespaces[namespace]
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := ns[k]; !ok {
			out = append(out, k)
		}
	}
	return out, nil
}

// Ping reports whether the store is usable.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return distill.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Subsequent operations fail.
func (s *Store) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// dlq.Store
// ──────────────────────────────────────────────────

// PushDLQ adds a dead-lettered job entry to the queue.
func (s *Store) PushDLQ(_ context.Context, entry *dlq.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return distill.ErrStoreClosed
	}

	c := *entry
	c.Chunks = append([]dlq.ChunkRecord(nil), entry.Chunks...)
	s.dlqEntries[entry.ID.String()] = &c
	return nil
}

// ListDLQ returns DLQ entries matching the given options, newest first.
func (s *Store) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, distill.ErrStoreClosed
	}

	entries := make([]*dlq.Entry, 0, len(s.dlqEntries))
	for _, e := range s.dlqEntries {
		if opts.DocID != "" && e.DocID != opts.DocID {
			continue
		}
		c := *e
		c.Chunks = append([]dlq.ChunkRecord(nil), e.Chunks...)
		entries = append(entries, &c)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].FailedAt.After(entries[j].FailedAt)
	})

	if opts.Offset >= len(entries) {
		return nil, nil
	}
	if opts.Offset > 0 {
		entries = entries[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(entries) {
		entries = entries[:opts.Limit]
	}
	return entries, nil
}

// GetDLQ retrieves a DLQ entry by ID.
func (s *Store) GetDLQ(_ context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, distill.ErrStoreClosed
	}

	e, ok := s.dlqEntries[entryID.String()]
	if !ok {
		return nil, distill.ErrDLQNotFound
	}
	c := *e
	c.Chunks = append([]dlq.ChunkRecord(nil), e.Chunks...)
	return &c, nil
}

// ReplayDLQ marks a DLQ entry as replayed.
func (s *Store) ReplayDLQ(_ context.Context, entryID id.DLQID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return distill.ErrStoreClosed
	}

	e, ok := s.dlqEntries[entryID.String()]
	if !ok {
		return distill.ErrDLQNotFound
	}
	if e.ReplayedAt != nil {
		return distill.ErrAlreadyReplayed
	}
	now := time.Now().UTC()
	e.ReplayedAt = &now
	return nil
}

// PurgeDLQ removes DLQ entries with FailedAt before the given time.
func (s *Store) PurgeDLQ(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, distill.ErrStoreClosed
	}

	var purged int64
	for k, e := range s.dlqEntries {
		if e.FailedAt.Before(before) {
			delete(s.dlqEntries, k)
			purged++
		}
	}
	return purged, nil
}

// CountDLQ returns the total number of entries in the dead letter queue.
func (s *Store) CountDLQ(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, distill.ErrStoreClosed
	}
	return int64(len(s.dlqEntries)), nil
}
