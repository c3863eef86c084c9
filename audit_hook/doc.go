// Package audithook is an extension that bridges lifecycle events to an
// immutable audit trail backend.
//
// Every job and chunk lifecycle hook emits a structured audit event
// through the [Recorder] interface. The extension assigns appropriate
// severity levels (info for normal operations, warning for retries,
// critical for dead letters) and rich metadata (document ID, attempt,
// elapsed time, error kinds).
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionJobDeadLettered,
//	        audithook.ActionChunkFailed,
//	    ),
//	)
package audithook
