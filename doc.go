// Package distill provides a single-process runtime for driving document
// chunks through a multi-step extraction pipeline. Documents are split into
// chunks, each chunk is handed to a Processor (typically a language-model
// call), and a scheduler owns the job and chunk state machines: bounded
// concurrency, per-chunk retry with backoff, partial-failure semantics at the
// job level, and dead-lettering once retry budgets are exhausted.
//
// Distill is designed as a library, not a service. Import it, provide a
// Processor, and submit documents:
//
//	rt, err := distill.New(
//	    distill.WithWorkers(20),
//	    distill.WithQueueCapacity(100),
//	)
//
// # Architecture
//
// One scheduler goroutine is the sole writer of job and chunk state. A fixed
// pool of worker goroutines pulls work items from a bounded dispatch channel,
// invokes the Processor, and reports results on a bounded result channel.
// External readers observe progress through copy-on-read snapshots; no reader
// ever holds a lock across the scheduler's critical section.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package distill
