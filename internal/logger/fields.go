package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Standard tracing fields, propagated through the call chain via context.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the training job ID
	FieldJobID = "job_id"

	// FieldPodID is the provisioned compute node ID
	FieldPodID = "pod_id"

	// FieldSession is the tmux session name backing a job
	FieldSession = "session"

	// FieldComponent is the component/module name
	FieldComponent = "component"
)

// Standard metric fields, attached at the log call site.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldStatus is the operation or HTTP status
	FieldStatus = "status"

	// FieldProgress is the training progress percentage
	FieldProgress = "progress"

	// FieldExitCode is the training process exit code
	FieldExitCode = "exit_code"
)
