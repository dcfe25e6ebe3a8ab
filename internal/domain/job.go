package domain

import "time"

// JobStatus represents the lifecycle state of a training job.
type JobStatus string

const (
	JobStatusStarting  JobStatus = "starting"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusError     JobStatus = "error"
)

// IsTerminal reports whether no further transition leaves the status.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled, JobStatusError:
		return true
	}
	return false
}

// TrainingParams enumerates every recognized training parameter plus an
// escape-hatch map for arbitrary extra flags. Zero values fall back to the
// configured defaults when the command line is built.
type TrainingParams struct {
	PolicyPath    string `json:"policy_path,omitempty"`
	DatasetRepoID string `json:"dataset_repo_id" binding:"required"`
	BatchSize     int    `json:"batch_size,omitempty"`
	Steps         int    `json:"steps,omitempty"`
	OutputDir     string `json:"output_dir,omitempty"`
	JobName       string `json:"job_name,omitempty"`
	PolicyDevice  string `json:"policy_device,omitempty"`
	WandbEnable   *bool  `json:"wandb_enable,omitempty"`
	HFUser        string `json:"hf_user,omitempty"`

	// AdditionalArgs is appended verbatim to the command line as --key=value.
	AdditionalArgs map[string]interface{} `json:"additional_args,omitempty"`
}

// Job is one training run supervised by this instance. The record is owned by
// the job's monitor goroutine once the job is launched; everything else reads
// snapshots through the store.
type Job struct {
	JobID     string         `json:"job_id"`
	Status    JobStatus      `json:"status"`
	StartTime time.Time      `json:"start_time"`
	Params    TrainingParams `json:"params"`
	Progress  float64        `json:"progress"`
	Logs      []string       `json:"logs"`
	Error     string         `json:"error,omitempty"`
	// SessionName is the exact session backing the job, recorded at launch.
	// Cancellation kills this name, never a name derived from the job id.
	SessionName string `json:"session_name,omitempty"`
	ArtifactKey string `json:"artifact_key,omitempty"`
}

// Clone returns a deep copy so callers can hand records across goroutines.
func (j *Job) Clone() *Job {
	out := *j
	if j.Logs != nil {
		out.Logs = make([]string, len(j.Logs))
		copy(out.Logs, j.Logs)
	}
	if j.Params.AdditionalArgs != nil {
		args := make(map[string]interface{}, len(j.Params.AdditionalArgs))
		for k, v := range j.Params.AdditionalArgs {
			args[k] = v
		}
		out.Params.AdditionalArgs = args
	}
	return &out
}
