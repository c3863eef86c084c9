package job

// ComputeStatus derives a job's status as a pure function of its chunk
// aggregate plus the job-level attempt count. The Store recomputes it after
// every mutation so the stored status can never drift from this function.
//
//	all chunks succeeded                                → Done
//	≥1 chunk failed, none pending or dispatched         → PartiallyFailed
//	anything in flight, or mid-cycle after a requeue    → Running
//	untouched since submission                          → Pending
//
// Terminal transitions out of PartiallyFailed (requeue versus dead-letter)
// are attempt-budget decisions owned by the scheduler, not derived here.
func ComputeStatus(chunks []ChunkState, jobAttempts int) Status {
	if len(chunks) == 0 {
		return StatusFailed
	}

	var pending, dispatched, succeeded, failed int
	for i := range chunks {
		switch chunks[i].Status {
		case ChunkPending:
			pending++
		case ChunkDispatched:
			dispatched++
		case ChunkSucceeded:
			succeeded++
		case ChunkFailed:
			failed++
		}
	}

	switch {
	case succeeded == len(chunks):
		return StatusDone
	case failed > 0 && pending == 0 && dispatched == 0:
		return StatusPartiallyFailed
	case dispatched > 0 || succeeded > 0 || failed > 0 || jobAttempts > 0:
		return StatusRunning
	default:
		return StatusPending
	}
}
