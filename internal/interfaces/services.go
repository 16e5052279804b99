package interfaces

import (
	"context"
	"time"

	"github.com/photonqc/scheduler/internal/messages"
	"github.com/photonqc/scheduler/internal/models"
)

// JobManager is the scheduler core: it owns the per-backend queues and
// drives the job state machine against the durable stores.
type JobManager interface {
	// AddJobRequest validates and enqueues a submitted job. The returned
	// metadata's Status tells the caller whether the job was accepted;
	// on refusal StatusCode and StatusMessage carry the catalog entry.
	AddJobRequest(ctx context.Context, request *models.SubmitJobRequest, tokenInfo *models.TokenInfo) *models.JobMetadata

	// FetchNextJobToExecute pops the next eligible job for a backend and
	// transitions it to RUNNING. An empty response means no job was
	// eligible.
	FetchNextJobToExecute(ctx context.Context, request *models.AssignNextJobRequest) *models.AssignNextJobResponse

	// FinalizeJob records the execution result and moves the job to its
	// terminal state.
	FinalizeJob(ctx context.Context, result *models.ReportExecutionResultRequest) *models.ReportExecutionResultResponse

	// CancelJob removes a queued job and marks it CANCELLED. On refusal
	// the returned StatusMessage carries the catalog entry.
	CancelJob(ctx context.Context, jobID string) (bool, messages.StatusMessage)

	// GetJobMetadata fetches the durable record for a job. Returns
	// models.ErrJobNotFound if absent.
	GetJobMetadata(ctx context.Context, jobID string) (*models.JobMetadata, error)

	// GetJobResultDownloadURL returns a pre-signed GET URL for the
	// result object and its expiry.
	GetJobResultDownloadURL(ctx context.Context, jobID string) (string, time.Time, error)

	// GetJobResultUploadURL returns a fresh pre-signed PUT URL for the
	// result object and its expiry.
	GetJobResultUploadURL(ctx context.Context, jobID string) (string, time.Time, error)
}

// BackendView resolves operator-published backend availability per role.
type BackendView interface {
	// GetBackendAvailability returns the published status for a backend
	// and role. Unknown backends and roles yield distinguishable errors.
	GetBackendAvailability(ctx context.Context, backend, role string) (models.ServiceStatus, error)

	// AllBackends lists the backends present in the published document.
	AllBackends(ctx context.Context) ([]string, error)
}
