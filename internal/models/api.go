package models

import "time"

// ErrorDetail carries a status code and human-readable description on
// the wire. A response either carries a payload or an ErrorDetail,
// never both.
type ErrorDetail struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// JobExecutionSettings is the execution parameter block of a job as
// submitted and as handed to the physical lab.
type JobExecutionSettings struct {
	Backend                string          `json:"backend"`
	NShots                 int             `json:"n_shots"`
	TimeoutSeconds         int             `json:"timeout_seconds"`
	StateSavePolicy        StateSavePolicy `json:"state_save_policy"`
	ResourceSqueezingLevel float64         `json:"resource_squeezing_level"`
	Role                   string          `json:"role"`
}

// Job pairs a serialized program with its execution settings. Program
// is the opaque protobuf payload; JSON carries it base64-encoded.
type Job struct {
	Program  []byte               `json:"program"`
	Settings JobExecutionSettings `json:"settings"`
}

// SubmitJobOptions holds job management options chosen by the submitter.
type SubmitJobOptions struct {
	SaveJob bool `json:"save_job"`
}

type SubmitJobRequest struct {
	Token      string           `json:"token"`
	Job        Job              `json:"job"`
	Options    SubmitJobOptions `json:"options"`
	SDKVersion string           `json:"sdk_version"`
}

type SubmitJobResponse struct {
	JobID string       `json:"job_id,omitempty"`
	Error *ErrorDetail `json:"error,omitempty"`
}

// JobExecutionVersion is the set of component versions that touched a
// job.
type JobExecutionVersion struct {
	PhysicalLab     string `json:"physical_lab,omitempty"`
	QuantumComputer string `json:"quantum_computer,omitempty"`
	Scheduler       string `json:"scheduler,omitempty"`
	Simulator       string `json:"simulator,omitempty"`
}

// JobTimestamps is the full lifecycle timestamp set reported to clients.
type JobTimestamps struct {
	SubmittedAt         *time.Time `json:"submitted_at,omitempty"`
	QueuedAt            *time.Time `json:"queued_at,omitempty"`
	DequeuedAt          *time.Time `json:"dequeued_at,omitempty"`
	CompileStartedAt    *time.Time `json:"compile_started_at,omitempty"`
	CompileFinishedAt   *time.Time `json:"compile_finished_at,omitempty"`
	ExecutionStartedAt  *time.Time `json:"execution_started_at,omitempty"`
	ExecutionFinishedAt *time.Time `json:"execution_finished_at,omitempty"`
	FinishedAt          *time.Time `json:"finished_at,omitempty"`
}

// JobExecutionDetails bundles versions and timestamps for status and
// result responses.
type JobExecutionDetails struct {
	Version    JobExecutionVersion `json:"version"`
	Timestamps JobTimestamps       `json:"timestamps"`
}

type GetJobStatusRequest struct {
	Token string `json:"token"`
	JobID string `json:"job_id"`
}

type GetJobStatusResponse struct {
	Status           JobStatus            `json:"status,omitempty"`
	StatusDetail     string               `json:"status_detail,omitempty"`
	ExecutionDetails *JobExecutionDetails `json:"execution_details,omitempty"`
	Error            *ErrorDetail         `json:"error,omitempty"`
}

type GetJobResultRequest struct {
	Token string `json:"token"`
	JobID string `json:"job_id"`
}

// JobResult points the client at the pre-signed download URL for the
// result object.
type JobResult struct {
	ResultURL string `json:"result_url"`
}

type GetJobResultResponse struct {
	Status           JobStatus            `json:"status,omitempty"`
	StatusDetail     string               `json:"status_detail,omitempty"`
	ExecutionDetails *JobExecutionDetails `json:"execution_details,omitempty"`
	Result           *JobResult           `json:"result,omitempty"`
	Error            *ErrorDetail         `json:"error,omitempty"`
}

type CancelJobRequest struct {
	Token string `json:"token"`
	JobID string `json:"job_id"`
}

type CancelJobResponse struct {
	Error *ErrorDetail `json:"error,omitempty"`
}

type GetServiceStatusRequest struct {
	Token   string `json:"token"`
	Backend string `json:"backend"`
}

type GetServiceStatusResponse struct {
	Status      Availability `json:"status,omitempty"`
	Description string       `json:"description,omitempty"`
	Error       *ErrorDetail `json:"error,omitempty"`
}

type AssignNextJobRequest struct {
	Backend string `json:"backend"`
}

// JobResultUploadTarget is the pre-signed PUT URL the physical lab
// uploads the result to, with its expiry.
type JobResultUploadTarget struct {
	UploadURL string     `json:"upload_url"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// AssignNextJobResponse carries the next job to run. An empty response
// (no job, no error) means the queue had nothing eligible.
type AssignNextJobResponse struct {
	JobID        string                 `json:"job_id,omitempty"`
	Job          *Job                   `json:"job,omitempty"`
	UploadTarget *JobResultUploadTarget `json:"upload_target,omitempty"`
	Error        *ErrorDetail           `json:"error,omitempty"`
}

// UploadedResult reports the size of the result object the physical lab
// uploaded.
type UploadedResult struct {
	RawSizeBytes     int64 `json:"raw_size_bytes"`
	EncodedSizeBytes int64 `json:"encoded_size_bytes"`
}

// ExecutionTimestamps is the compile and execution window reported by
// the physical lab.
type ExecutionTimestamps struct {
	CompileStartedAt    *time.Time `json:"compile_started_at,omitempty"`
	CompileFinishedAt   *time.Time `json:"compile_finished_at,omitempty"`
	ExecutionStartedAt  *time.Time `json:"execution_started_at,omitempty"`
	ExecutionFinishedAt *time.Time `json:"execution_finished_at,omitempty"`
}

type ReportExecutionResultRequest struct {
	JobID          string              `json:"job_id"`
	Status         ExecutionStatus     `json:"status"`
	Error          *ErrorDetail        `json:"error,omitempty"`
	Timestamps     ExecutionTimestamps `json:"timestamps"`
	UploadedResult UploadedResult      `json:"uploaded_result"`
	ActualBackend  string              `json:"actual_backend"`
	Version        JobExecutionVersion `json:"version"`
}

type ReportExecutionResultResponse struct {
	Error *ErrorDetail `json:"error,omitempty"`
}

type RefreshUploadURLRequest struct {
	JobID string `json:"job_id"`
}

type RefreshUploadURLResponse struct {
	UploadTarget *JobResultUploadTarget `json:"upload_target,omitempty"`
	Error        *ErrorDetail           `json:"error,omitempty"`
}
