// Package jobmanager is the scheduler core. It owns the per-backend
// queues, drives the job state machine against the durable table and
// the blob repository, and recovers in-flight work on startup.
package jobmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/photonqc/scheduler/internal/common"
	"github.com/photonqc/scheduler/internal/interfaces"
	"github.com/photonqc/scheduler/internal/messages"
	"github.com/photonqc/scheduler/internal/metrics"
	"github.com/photonqc/scheduler/internal/models"
	"github.com/photonqc/scheduler/internal/services/jobqueue"
)

// Options configures a Manager.
type Options struct {
	QueueCapacityBytes        int
	MaxJobsToConsider         int
	MaxWaitingTimePerJob      time.Duration
	MaxConcurrentJobsPerToken map[string]int
	SupportedBackends         []string
	UnifyBackends             bool
	SchedulerVersion          string
}

// Manager coordinates the queues and the durable stores. All public
// methods acquire the manager mutex once at the top; internal helpers
// assume it is held.
type Manager struct {
	mu sync.Mutex

	queues  *jobqueue.Container
	table   interfaces.JobTable
	repo    interfaces.BlobRepository
	clock   common.Clock
	logger  *common.Logger
	metrics *metrics.Metrics

	schedulerVersion string
}

// NewManager builds the manager, verifies the durable table is
// reachable, restores QUEUED jobs into their queues, and fails any
// RUNNING jobs left over from a previous process.
func NewManager(
	ctx context.Context,
	opts Options,
	table interfaces.JobTable,
	repo interfaces.BlobRepository,
	clock common.Clock,
	logger *common.Logger,
	m *metrics.Metrics,
) (*Manager, error) {
	queueOpts := jobqueue.Options{
		CapacityBytes:             opts.QueueCapacityBytes,
		MaxJobsToConsider:         opts.MaxJobsToConsider,
		MaxWaitingTimePerJob:      opts.MaxWaitingTimePerJob,
		MaxConcurrentJobsPerToken: opts.MaxConcurrentJobsPerToken,
	}

	mgr := &Manager{
		queues:           jobqueue.NewContainer(opts.SupportedBackends, queueOpts, clock, opts.UnifyBackends),
		table:            table,
		repo:             repo,
		clock:            clock,
		logger:           logger,
		metrics:          m,
		schedulerVersion: opts.SchedulerVersion,
	}

	if err := table.Describe(ctx); err != nil {
		return nil, fmt.Errorf("job table is not available: %w", err)
	}

	if err := mgr.restoreJobQueue(ctx); err != nil {
		return nil, err
	}
	if err := mgr.failRunningJobs(ctx); err != nil {
		return nil, err
	}

	return mgr, nil
}

// restoreJobQueue re-enqueues every QUEUED record with its persisted
// queued_at. Records that cannot be restored are marked FAILED rather
// than dropped.
func (mgr *Manager) restoreJobQueue(ctx context.Context) error {
	queued, err := mgr.table.QueryJobsByStatus(ctx, models.JobStatusQueued)
	if err != nil {
		return fmt.Errorf("failed to retrieve queued items: %w", err)
	}

	for _, metadata := range queued {
		jobID := metadata.JobID

		queue, err := mgr.queues.Get(metadata.RequestedBackend)
		if err != nil {
			mgr.logger.Error().
				Str("job_id", jobID).
				Str("backend", metadata.RequestedBackend).
				Msg("Failed to restore a job due to unknown backend")
			mgr.markQueuedJobAsFailed(ctx, jobID, messages.GetPlain(messages.KeyCriticalError), mgr.clock.Now())
			continue
		}

		if metadata.QueuedAt == nil {
			mgr.logger.Error().Str("job_id", jobID).Msg("Failed to restore a job due to missing queued_at")
			mgr.markQueuedJobAsFailed(ctx, jobID, messages.GetPlain(messages.KeyCriticalError), mgr.clock.Now())
			continue
		}

		program, err := mgr.repo.DownloadJobInput(ctx, jobID)
		if err != nil {
			mgr.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to download a job program")
			mgr.markQueuedJobAsFailed(ctx, jobID, messages.GetPlain(messages.KeyInternalError), mgr.clock.Now())
			continue
		}

		timeout := time.Duration(metadata.MaxElapsedS) * time.Second
		ok, err := queue.TryPush(jobID, program, metadata.Token, metadata.Role, *metadata.QueuedAt, timeout)
		if err != nil {
			mgr.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to restore a job")
			mgr.markQueuedJobAsFailed(ctx, jobID, messages.GetPlain(messages.KeyCriticalError), mgr.clock.Now())
			continue
		}
		if !ok {
			mgr.logger.Error().Str("job_id", jobID).Msg("Failed to restore a job due to current resource limits")
			mgr.markQueuedJobAsFailed(ctx, jobID, messages.GetPlain(messages.KeyResourceLimitExceeded), mgr.clock.Now())
		}
	}

	mgr.updateQueueGauges()
	return nil
}

// failRunningJobs transitions leftover RUNNING records to FAILED under
// a status guard. RUNNING jobs cannot know whether the physical lab
// made progress, so they are declared lost; records that raced a
// concurrent finalize are skipped.
func (mgr *Manager) failRunningJobs(ctx context.Context) error {
	running, err := mgr.table.QueryJobsByStatus(ctx, models.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to retrieve running items: %w", err)
	}

	for _, metadata := range running {
		mgr.logger.Info().Str("job_id", metadata.JobID).Msg("Failing a job left RUNNING by a previous process")
		err := mgr.table.UpdateJobIfStatus(ctx, metadata.JobID, models.JobStatusRunning, map[string]any{
			"status": models.JobStatusFailed,
		})
		if err != nil {
			if errorIsStatusConditionFailed(err) {
				mgr.logger.Warn().Str("job_id", metadata.JobID).Msg("Skipping update because the job status has changed")
				continue
			}
			return fmt.Errorf("failed to fail running job %s: %w", metadata.JobID, err)
		}
	}
	return nil
}

// AddJobRequest validates and enqueues a submitted job. The returned
// metadata's Status is QUEUED on acceptance; any other status carries
// the refusal in StatusCode and StatusMessage.
func (mgr *Manager) AddJobRequest(ctx context.Context, request *models.SubmitJobRequest, tokenInfo *models.TokenInfo) *models.JobMetadata {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	defer mgr.updateQueueGauges()

	requestedBackend := request.Job.Settings.Backend
	jobID := uuid.New().String()
	mgr.logger.Debug().Str("job_id", jobID).Msg("Created a job ID")

	now := mgr.clock.Now()
	expiry := now.AddDate(0, 0, models.JobExpiryDays)
	metadata := &models.JobMetadata{
		JobID:                  jobID,
		SDKVersion:             request.SDKVersion,
		Token:                  request.Token,
		Role:                   tokenInfo.Role,
		RequestedBackend:       requestedBackend,
		NShots:                 request.Job.Settings.NShots,
		MaxElapsedS:            request.Job.Settings.TimeoutSeconds,
		SaveJob:                request.Options.SaveJob,
		StateSavePolicy:        request.Job.Settings.StateSavePolicy,
		ResourceSqueezingLevel: request.Job.Settings.ResourceSqueezingLevel,
		Status:                 models.JobStatusUnspecified,
		SchedulerVersion:       mgr.schedulerVersion,
		SubmittedAt:            &now,
		JobExpiry:              &expiry,
	}

	queue, err := mgr.queues.Get(requestedBackend)
	if err != nil {
		mgr.logger.Debug().Str("job_id", jobID).Str("backend", requestedBackend).Msg("Unsupported backend")
		sm := messages.WithReason(messages.KeyInvalidRequest,
			fmt.Sprintf("%s is not a supported backend.", requestedBackend))
		mgr.setFailed(metadata, sm)
	} else {
		queuedAt := mgr.clock.Now()
		timeout := time.Duration(request.Job.Settings.TimeoutSeconds) * time.Second
		ok, pushErr := queue.TryPush(jobID, request.Job.Program, request.Token, tokenInfo.Role, queuedAt, timeout)
		if pushErr != nil {
			// A job ID collision means the queue and the durable table
			// would disagree; return without writing the record.
			mgr.logger.Error().Err(pushErr).Str("job_id", jobID).Msg("Failed to add the job to the queue")
			mgr.setFailed(metadata, messages.GetPlain(messages.KeyCriticalError))
			mgr.metrics.RecordSubmission(string(metadata.Status))
			return metadata
		}
		if ok {
			metadata.Status = models.JobStatusQueued
			metadata.QueuedAt = &queuedAt
		} else {
			mgr.setFailed(metadata, messages.GetPlain(messages.KeyResourceLimitExceeded))
		}

		if metadata.Status == models.JobStatusQueued {
			if err := mgr.repo.UploadJobInput(ctx, jobID, request.Job.Program, tokenInfo.Role, request.Options.SaveJob); err != nil {
				mgr.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to upload the job input")
				// Drop the queue entry so it cannot be dispatched and
				// fail on re-download later.
				queue.TryRemove(jobID)
				mgr.setFailed(metadata, messages.GetPlain(messages.KeyInternalError))
				metadata.QueuedAt = nil
			}
		}
	}

	if err := mgr.table.PutNewJob(ctx, metadata); err != nil {
		mgr.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to upload the job metadata to the database")
		if metadata.Status == models.JobStatusQueued {
			if queue, qErr := mgr.queues.Get(requestedBackend); qErr == nil {
				queue.TryRemove(jobID)
			}
		}
		mgr.setFailed(metadata, messages.GetPlain(messages.KeyInternalError))
	}

	mgr.metrics.RecordSubmission(string(metadata.Status))
	return metadata
}

func (mgr *Manager) setFailed(metadata *models.JobMetadata, sm messages.StatusMessage) {
	metadata.Status = models.JobStatusFailed
	metadata.StatusCode = sm.Code
	metadata.StatusMessage = sm.Message
}

// FetchNextJobToExecute pops the next eligible job for a backend,
// marks it RUNNING, and hands out the program with a result upload
// URL. The RUNNING update happens before the job is returned so a
// failed update cannot leave a dispatched job recorded as QUEUED.
func (mgr *Manager) FetchNextJobToExecute(ctx context.Context, request *models.AssignNextJobRequest) *models.AssignNextJobResponse {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	defer mgr.updateQueueGauges()

	queue, err := mgr.queues.Get(request.Backend)
	if err != nil {
		mgr.logger.Debug().Str("backend", request.Backend).Msg("Unsupported backend")
		sm := messages.WithReason(messages.KeyInvalidRequest,
			fmt.Sprintf("%s is not a supported backend.", request.Backend))
		return &models.AssignNextJobResponse{Error: errorDetail(sm)}
	}

	jobID, program, ok := queue.TryPop()
	if !ok {
		return &models.AssignNextJobResponse{}
	}
	dequeuedAt := mgr.clock.Now()

	metadata, err := mgr.table.GetJob(ctx, jobID, true)
	if err != nil {
		mgr.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to retrieve the execution settings")
		sm := messages.GetPlain(messages.KeyInternalError)
		mgr.markQueuedJobAsFailed(ctx, jobID, sm, dequeuedAt)
		return &models.AssignNextJobResponse{Error: errorDetail(sm)}
	}

	uploadURL, expiresAt, err := mgr.repo.GenerateUploadURL(ctx, jobID)
	if err != nil {
		mgr.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to generate the upload URL")
		sm := messages.GetPlain(messages.KeyInternalError)
		mgr.markQueuedJobAsFailed(ctx, jobID, sm, dequeuedAt)
		return &models.AssignNextJobResponse{Error: errorDetail(sm)}
	}

	err = mgr.table.UpdateJob(ctx, jobID, map[string]any{
		"status":      models.JobStatusRunning,
		"dequeued_at": dequeuedAt,
	})
	if err != nil {
		// The queue entry is already gone; without the RUNNING record a
		// later recovery would re-enqueue and double-dispatch the job,
		// so declare it FAILED instead.
		mgr.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to update the job status to RUNNING")
		sm := messages.GetPlain(messages.KeyInternalError)
		mgr.markQueuedJobAsFailed(ctx, jobID, sm, dequeuedAt)
		return &models.AssignNextJobResponse{Error: errorDetail(sm)}
	}

	mgr.metrics.RecordDispatch(request.Backend)
	return &models.AssignNextJobResponse{
		JobID: jobID,
		Job: &models.Job{
			Program: program,
			Settings: models.JobExecutionSettings{
				Backend:                metadata.RequestedBackend,
				NShots:                 metadata.NShots,
				TimeoutSeconds:         metadata.MaxElapsedS,
				StateSavePolicy:        metadata.StateSavePolicy,
				ResourceSqueezingLevel: metadata.ResourceSqueezingLevel,
				Role:                   metadata.Role,
			},
		},
		UploadTarget: &models.JobResultUploadTarget{
			UploadURL: uploadURL,
			ExpiresAt: &expiresAt,
		},
	}
}

// FinalizeJob records the execution result and moves the job to its
// terminal state.
func (mgr *Manager) FinalizeJob(ctx context.Context, result *models.ReportExecutionResultRequest) *models.ReportExecutionResultResponse {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	jobID := result.JobID

	exists, err := mgr.table.JobExists(ctx, jobID)
	if err != nil {
		mgr.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to finalize job due to an internal error")
		return &models.ReportExecutionResultResponse{Error: errorDetail(messages.GetPlain(messages.KeyInternalError))}
	}
	if !exists {
		mgr.logger.Warn().Str("job_id", jobID).Msg("Failed to finalize job because the corresponding job was not found")
		return &models.ReportExecutionResultResponse{Error: errorDetail(messages.ForJob(messages.KeyJobNotFound, jobID))}
	}

	status := mgr.mapExecutionStatus(result.Status)

	if status == models.JobStatusCompleted {
		metadata, err := mgr.table.GetJob(ctx, jobID, false)
		if err == nil {
			err = mgr.repo.PutTagsToResult(ctx, jobID, metadata.Role, metadata.SaveJob)
		}
		if err != nil {
			mgr.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to set tags to the result object")
			return &models.ReportExecutionResultResponse{Error: errorDetail(messages.GetPlain(messages.KeyInternalError))}
		}
	}

	now := mgr.clock.Now()
	expiry := now.AddDate(0, 0, models.JobExpiryDays)
	var statusCode, statusMessage string
	if result.Error != nil {
		statusCode = result.Error.Code
		statusMessage = result.Error.Description
	}

	err = mgr.table.UpdateJob(ctx, jobID, map[string]any{
		"status":                   status,
		"status_code":              statusCode,
		"status_message":           statusMessage,
		"actual_backend_name":      result.ActualBackend,
		"physical_lab_version":     result.Version.PhysicalLab,
		"quantum_computer_version": result.Version.QuantumComputer,
		"simulator_version":        result.Version.Simulator,
		"compile_started_at":       result.Timestamps.CompileStartedAt,
		"compile_finished_at":      result.Timestamps.CompileFinishedAt,
		"execution_started_at":     result.Timestamps.ExecutionStartedAt,
		"execution_finished_at":    result.Timestamps.ExecutionFinishedAt,
		"raw_size_bytes":           result.UploadedResult.RawSizeBytes,
		"encoded_size_bytes":       result.UploadedResult.EncodedSizeBytes,
		"finished_at":              now,
		"job_expiry":               expiry,
	})
	if err != nil {
		mgr.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to update the job metadata")
		return &models.ReportExecutionResultResponse{Error: errorDetail(messages.GetPlain(messages.KeyInternalError))}
	}

	mgr.logger.Info().Str("job_id", jobID).Msg("Successfully updated the finished job metadata")
	mgr.metrics.RecordFinalize(string(status))
	return &models.ReportExecutionResultResponse{}
}

// CancelJob removes a queued job from its queue and marks it
// CANCELLED. A job that is no longer queued (already running,
// finished, or cancelled) is refused with INVALID_JOB_STATE.
func (mgr *Manager) CancelJob(ctx context.Context, jobID string) (bool, messages.StatusMessage) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	defer mgr.updateQueueGauges()

	exists, err := mgr.table.JobExists(ctx, jobID)
	if err != nil {
		mgr.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to cancel the job")
		return false, messages.GetPlain(messages.KeyInternalError)
	}
	if !exists {
		mgr.logger.Debug().Str("job_id", jobID).Msg("The job does not exist in the database")
		return false, messages.ForJob(messages.KeyJobNotFound, jobID)
	}

	metadata, err := mgr.table.GetJob(ctx, jobID, false)
	if err != nil {
		mgr.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to cancel the job")
		return false, messages.GetPlain(messages.KeyInternalError)
	}

	queue, err := mgr.queues.Get(metadata.RequestedBackend)
	if err != nil || !queue.TryRemove(jobID) {
		mgr.logger.Debug().Str("job_id", jobID).Msg("The job may already be running or cancelled")
		return false, messages.GetPlain(messages.KeyInvalidJobState)
	}

	if err := mgr.table.UpdateJob(ctx, jobID, map[string]any{"status": models.JobStatusCancelled}); err != nil {
		mgr.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to cancel the job")
		return false, messages.GetPlain(messages.KeyInternalError)
	}

	mgr.metrics.RecordCancel()
	return true, messages.StatusMessage{}
}

// GetJobMetadata fetches the durable record for a job.
func (mgr *Manager) GetJobMetadata(ctx context.Context, jobID string) (*models.JobMetadata, error) {
	return mgr.table.GetJob(ctx, jobID, false)
}

// GetJobResultDownloadURL returns a pre-signed GET URL for the result
// object.
func (mgr *Manager) GetJobResultDownloadURL(ctx context.Context, jobID string) (string, time.Time, error) {
	return mgr.repo.GenerateDownloadURL(ctx, jobID)
}

// GetJobResultUploadURL returns a fresh pre-signed PUT URL for the
// result object.
func (mgr *Manager) GetJobResultUploadURL(ctx context.Context, jobID string) (string, time.Time, error) {
	return mgr.repo.GenerateUploadURL(ctx, jobID)
}

func (mgr *Manager) mapExecutionStatus(status models.ExecutionStatus) models.JobStatus {
	switch status {
	case models.ExecutionStatusSuccess:
		return models.JobStatusCompleted
	case models.ExecutionStatusFailure:
		return models.JobStatusFailed
	case models.ExecutionStatusTimeout:
		return models.JobStatusTimeout
	default:
		mgr.logger.Warn().Str("execution_status", string(status)).Msg("Unknown execution status, falling back to UNSPECIFIED")
		return models.JobStatusUnspecified
	}
}

// markQueuedJobAsFailed records a dequeue-time failure. Errors are
// logged but not propagated; the caller already has a failure to
// report.
func (mgr *Manager) markQueuedJobAsFailed(ctx context.Context, jobID string, sm messages.StatusMessage, dequeuedAt time.Time) {
	err := mgr.table.UpdateJob(ctx, jobID, map[string]any{
		"status":         models.JobStatusFailed,
		"status_code":    sm.Code,
		"status_message": sm.Message,
		"dequeued_at":    dequeuedAt,
	})
	if err != nil {
		mgr.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to update the job status to FAILED")
	}
}

func (mgr *Manager) updateQueueGauges() {
	for _, backend := range mgr.queues.Backends() {
		if queue, err := mgr.queues.Get(backend); err == nil {
			mgr.metrics.SetQueueGauges(backend, queue.Len(), queue.CurrentBytes())
		}
	}
}

func errorDetail(sm messages.StatusMessage) *models.ErrorDetail {
	return &models.ErrorDetail{Code: sm.Code, Description: sm.Message}
}

func errorIsStatusConditionFailed(err error) bool {
	return errors.Is(err, models.ErrStatusConditionFailed)
}
