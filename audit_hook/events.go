package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle
// hook and becomes the Action field of the audit event.
const (
	ActionJobSubmitted    = "job.submitted"
	ActionJobCompleted    = "job.completed"
	ActionJobRequeued     = "job.requeued"
	ActionJobDeadLettered = "job.dead_lettered"
	ActionChunkSucceeded  = "chunk.succeeded"
	ActionChunkRetrying   = "chunk.retrying"
	ActionChunkFailed     = "chunk.failed"
)

// Audit event categories group related actions.
const (
	CategoryJob   = "distill.job"
	CategoryChunk = "distill.chunk"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceJob   = "job"
	ResourceChunk = "chunk"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobSubmitted,
		ActionJobCompleted,
		ActionJobRequeued,
		ActionJobDeadLettered,
		ActionChunkSucceeded,
		ActionChunkRetrying,
		ActionChunkFailed,
	}
}
