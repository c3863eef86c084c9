package scheduler

import "github.com/xraph/distill/job"

// Dispatcher turns a ready job into work items, one per pending chunk,
// in chunk order. The attempt number on each item is the chunk's next
// attempt, so the store can later reject results that a retry has
// already superseded.
type Dispatcher struct{}

// Items builds the work items for every pending chunk of j.
func (Dispatcher) Items(j *job.Job) []job.WorkItem {
	items := make([]job.WorkItem, 0, len(j.Chunks))
	for i := range j.Chunks {
		c := &j.Chunks[i]
		if c.Status != job.ChunkPending {
			continue
		}
		items = append(items, job.WorkItem{
			JobID:      j.ID,
			ChunkID:    c.ID,
			ContentRef: c.ContentRef,
			Attempt:    c.Attempts + 1,
		})
	}
	return items
}
