// Package job defines the job and chunk data model, the state machines
// governing both, and the in-memory Store that is their single source of
// truth.
//
// A Job is one document's end-to-end processing unit, composed of an ordered
// sequence of chunks. The scheduler is the sole writer of job and chunk
// state: Submit creates records, and the scheduler-only mutators
// (MarkDispatched, ApplySucceeded, ApplyFailed, Requeue, DeadLetter) advance
// them. External readers get copy-on-read snapshots and never hold a lock
// across the scheduler's critical section.
package job
