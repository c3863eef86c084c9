package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/distill"
	"github.com/xraph/distill/dlq"
	"github.com/xraph/distill/id"
)

// PushDLQ adds a dead-lettered job entry to the queue.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	eID := entry.ID.String()
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("distill/redis: marshal dlq entry: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, dlqKey(eID), data, 0)
	pipe.SAdd(ctx, dlqIDsKey, eID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("distill/redis: push dlq: %w", err)
	}
	return nil
}

// ListDLQ returns DLQ entries matching the given options, newest first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	ids, err := s.client.SMembers(ctx, dlqIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("distill/redis: list dlq: %w", err)
	}

	entries := make([]*dlq.Entry, 0, len(ids))
	for _, eID := range ids {
		data, getErr := s.client.Get(ctx, dlqKey(eID)).Result()
		if getErr != nil {
			continue
		}
		var e dlq.Entry
		if json.Unmarshal([]byte(data), &e) != nil {
			continue
		}
		if opts.DocID != "" && e.DocID != opts.DocID {
			continue
		}
		entries = append(entries, &e)
	}

	sortByFailedAtDesc(entries)

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
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	data, err := s.client.Get(ctx, dlqKey(entryID.String())).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, distill.ErrDLQNotFound
		}
		return nil, fmt.Errorf("distill/redis: get dlq: %w", err)
	}

	var e dlq.Entry
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, fmt.Errorf("distill/redis: unmarshal dlq entry: %w", err)
	}
	return &e, nil
}

// ReplayDLQ marks a DLQ entry as replayed.
func (s *Store) ReplayDLQ(ctx context.Context, entryID id.DLQID) error {
	e, err := s.GetDLQ(ctx, entryID)
	if err != nil {
		return err
	}
	if e.ReplayedAt != nil {
		return distill.ErrAlreadyReplayed
	}

	now := time.Now().UTC()
	e.ReplayedAt = &now
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("distill/redis: marshal dlq entry: %w", err)
	}
	if err := s.client.Set(ctx, dlqKey(entryID.String()), data, 0).Err(); err != nil {
		return fmt.Errorf("distill/redis: replay dlq: %w", err)
	}
	return nil
}

// PurgeDLQ removes DLQ entries with FailedAt before the given time.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	ids, err := s.client.SMembers(ctx, dlqIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("distill/redis: purge dlq smembers: %w", err)
	}

	var purged int64
	for _, eID := range ids {
		key := dlqKey(eID)
		data, getErr := s.client.Get(ctx, key).Result()
		if getErr != nil {
			if errors.Is(getErr, goredis.Nil) {
				continue
			}
			return purged, fmt.Errorf("distill/redis: purge dlq get: %w", getErr)
		}

		var e dlq.Entry
		if json.Unmarshal([]byte(data), &e) != nil {
			continue
		}
		if e.FailedAt.Before(before) {
			pipe := s.client.TxPipeline()
			pipe.Del(ctx, key)
			pipe.SRem(ctx, dlqIDsKey, eID)
			if _, pErr := pipe.Exec(ctx); pErr != nil {
				return purged, fmt.Errorf("distill/redis: purge dlq del: %w", pErr)
			}
			purged++
		}
	}
	return purged, nil
}

// CountDLQ returns the total number of entries in the dead letter queue.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	count, err := s.client.SCard(ctx, dlqIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("distill/redis: count dlq: %w", err)
	}
	return count, nil
}

func sortByFailedAtDesc(entries []*dlq.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].FailedAt.After(entries[j].FailedAt)
	})
}
