// Package dlq provides the dead letter queue for jobs that have
// exhausted their retry budget. It supports inspection, replay, and
// purging.
//
// When a partially failed job has already been requeued its maximum
// number of times, the scheduler calls [Service.Push] to move it into
// the DLQ. The document identity, per-chunk content references, error
// kinds, and attempt counts are preserved for debugging and for
// operator-driven replay.
//
// # Entry
//
// An [Entry] captures:
//   - JobID / DocID: original job identity
//   - Attempts: how many full job attempts were consumed
//   - Chunks: per-chunk records with content refs and final errors
//   - FailedAt: when the job was dead-lettered
//   - ReplayedAt: set when the entry is replayed (nil if not yet)
//
// # Replay
//
// Replaying an entry resubmits the document's chunks as a brand new
// job with fresh retry budgets. Replay is never automatic; an operator
// triggers it through [Service.Replay] or the admin API. Replay sets
// ReplayedAt on the entry and an already-replayed entry cannot be
// replayed again.
package dlq
