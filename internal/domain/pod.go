package domain

import "time"

// PodStatusTerminated is the mirror status written when a pod is torn down.
const PodStatusTerminated = "TERMINATED"

// PodRecord mirrors a provisioned compute node in the local database. The
// provisioning API remains the source of truth; this row is a cache refreshed
// on every status query.
type PodRecord struct {
	ID           string     `gorm:"type:text;primaryKey" json:"id"`
	Name         string     `gorm:"type:text;not null" json:"name"`
	GPUType      string     `gorm:"type:text;not null" json:"gpu_type"`
	GPUCount     int        `gorm:"not null" json:"gpu_count"`
	Status       string     `gorm:"type:text;not null" json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	TerminatedAt *time.Time `json:"terminated_at,omitempty"`
	PublicIP     *string    `json:"public_ip,omitempty"`
	CostPerHr    *float64   `json:"cost_per_hr,omitempty"`
}

// TableName returns the database table name for PodRecord.
func (PodRecord) TableName() string {
	return "pods"
}

// JobRecord mirrors a job that runs on a remote pod. Its authoritative state
// lives in the pod's own job runner; every poll fully resynchronizes this row.
type JobRecord struct {
	ID          string     `gorm:"type:text;primaryKey" json:"id"`
	PodID       string     `gorm:"type:text;not null;index" json:"pod_id"`
	Status      string     `gorm:"type:text;not null" json:"status"`
	Progress    float64    `json:"progress"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// TableName returns the database table name for JobRecord.
func (JobRecord) TableName() string {
	return "jobs"
}

// PodInfo is the API shape for a provisioned pod.
type PodInfo struct {
	PodID     string         `json:"pod_id"`
	Name      string         `json:"name"`
	Status    string         `json:"status"`
	PublicIP  string         `json:"public_ip,omitempty"`
	Ports     map[string]int `json:"ports,omitempty"`
	GPUType   string         `json:"gpu_type,omitempty"`
	CostPerHr float64        `json:"cost_per_hr,omitempty"`
}

// PodStatusInfo is the API shape for a pod status query, including whether the
// job runner embedded in the pod answered the reachability probe.
type PodStatusInfo struct {
	PodID      string `json:"pod_id"`
	Status     string `json:"status"`
	IsRunning  bool   `json:"is_running"`
	Reachable  bool   `json:"reachable"`
	RemoteJobs []Job  `json:"remote_jobs,omitempty"`
}

// RemoteJobStatus is the API shape for a job fetched from a pod's own runner.
type RemoteJobStatus struct {
	JobID    string   `json:"job_id"`
	Status   string   `json:"status"`
	Progress float64  `json:"progress"`
	Logs     []string `json:"logs,omitempty"`
	Error    string   `json:"error,omitempty"`
}
