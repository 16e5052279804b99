// Package models defines the scheduler's domain types.
package models

import "time"

// JobStatus is the lifecycle state of a job. Persisted and sent on the
// wire by name.
type JobStatus string

const (
	JobStatusUnspecified JobStatus = "UNSPECIFIED"
	JobStatusQueued      JobStatus = "QUEUED"
	JobStatusRunning     JobStatus = "RUNNING"
	JobStatusCompleted   JobStatus = "COMPLETED"
	JobStatusFailed      JobStatus = "FAILED"
	JobStatusCancelled   JobStatus = "CANCELLED"
	JobStatusTimeout     JobStatus = "TIMEOUT"
)

// IsTerminal reports whether the status is sticky. Terminal jobs accept
// no further state transitions.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled, JobStatusTimeout:
		return true
	}
	return false
}

// StateSavePolicy controls which intermediate quantum states the
// simulator persists alongside the result.
type StateSavePolicy string

const (
	StateSaveUnspecified StateSavePolicy = "UNSPECIFIED"
	StateSaveAll         StateSavePolicy = "ALL"
	StateSaveFirstOnly   StateSavePolicy = "FIRST_ONLY"
	StateSaveNone        StateSavePolicy = "NONE"
)

// ExecutionStatus is the outcome the physical lab reports for a job run.
type ExecutionStatus string

const (
	ExecutionStatusUnspecified ExecutionStatus = "UNSPECIFIED"
	ExecutionStatusSuccess     ExecutionStatus = "SUCCESS"
	ExecutionStatusFailure     ExecutionStatus = "FAILURE"
	ExecutionStatusTimeout     ExecutionStatus = "TIMEOUT"
)

// JobExpiryDays is how long finished and submitted jobs are retained in
// the job table before the store's TTL reaps them.
const JobExpiryDays = 30

// JobMetadata is the durable record of a job. Fields up to SaveJob are
// immutable after submission; the rest advance with the state machine.
type JobMetadata struct {
	JobID      string `json:"job_id"`
	SDKVersion string `json:"sdk_version"`

	// Token information
	Token string `json:"token"`
	Role  string `json:"role"`

	// Execution settings
	RequestedBackend string `json:"requested_backend"`
	NShots           int    `json:"n_shots"`
	MaxElapsedS      int    `json:"max_elapsed_s"`

	// Job management options
	SaveJob bool `json:"save_job"`

	// Simulation settings
	StateSavePolicy        StateSavePolicy `json:"state_save_policy"`
	ResourceSqueezingLevel float64         `json:"resource_squeezing_level"`

	Status        JobStatus `json:"status"`
	StatusCode    string    `json:"status_code"`
	StatusMessage string    `json:"status_message"`

	// Execution result
	ActualBackendName string `json:"actual_backend_name,omitempty"`
	RawSizeBytes      int64  `json:"raw_size_bytes,omitempty"`
	EncodedSizeBytes  int64  `json:"encoded_size_bytes,omitempty"`

	// Execution versions
	QuantumComputerVersion string `json:"quantum_computer_version,omitempty"`
	PhysicalLabVersion     string `json:"physical_lab_version,omitempty"`
	SchedulerVersion       string `json:"scheduler_version,omitempty"`
	SimulatorVersion       string `json:"simulator_version,omitempty"`

	// Timestamps
	SubmittedAt         *time.Time `json:"submitted_at,omitempty"`
	QueuedAt            *time.Time `json:"queued_at,omitempty"`
	DequeuedAt          *time.Time `json:"dequeued_at,omitempty"`
	CompileStartedAt    *time.Time `json:"compile_started_at,omitempty"`
	CompileFinishedAt   *time.Time `json:"compile_finished_at,omitempty"`
	ExecutionStartedAt  *time.Time `json:"execution_started_at,omitempty"`
	ExecutionFinishedAt *time.Time `json:"execution_finished_at,omitempty"`
	FinishedAt          *time.Time `json:"finished_at,omitempty"`
	JobExpiry           *time.Time `json:"job_expiry,omitempty"`
}

// ExecutionVersionView returns the version quartet reported to clients.
func (m *JobMetadata) ExecutionVersionView() JobExecutionVersion {
	return JobExecutionVersion{
		PhysicalLab:     m.PhysicalLabVersion,
		QuantumComputer: m.QuantumComputerVersion,
		Scheduler:       m.SchedulerVersion,
		Simulator:       m.SimulatorVersion,
	}
}

// TimestampsView returns the job timestamp set reported to clients.
func (m *JobMetadata) TimestampsView() JobTimestamps {
	return JobTimestamps{
		SubmittedAt:         m.SubmittedAt,
		QueuedAt:            m.QueuedAt,
		DequeuedAt:          m.DequeuedAt,
		CompileStartedAt:    m.CompileStartedAt,
		CompileFinishedAt:   m.CompileFinishedAt,
		ExecutionStartedAt:  m.ExecutionStartedAt,
		ExecutionFinishedAt: m.ExecutionFinishedAt,
		FinishedAt:          m.FinishedAt,
	}
}
