// Package ext defines the extension system for Distill.
// Extensions are notified of lifecycle events (job submitted, chunk
// retried, job dead-lettered, etc.) and can react to them for logging,
// metrics, or alerting.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about. Hook errors are logged and swallowed;
// an extension can never block or fail the pipeline.
package ext
