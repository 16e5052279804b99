package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/photonqc/scheduler/internal/common"
	"github.com/photonqc/scheduler/internal/interfaces"
	"github.com/photonqc/scheduler/internal/messages"
	"github.com/photonqc/scheduler/internal/models"
	"github.com/photonqc/scheduler/internal/services/backendview"
)

// SubmissionHandlers serves the user-facing operations: submit, status,
// result, cancel, and service status.
type SubmissionHandlers struct {
	manager  interfaces.JobManager
	backends interfaces.BackendView
	tokens   interfaces.TokenVerifier
	clock    common.Clock
	logger   *common.Logger

	maxJobBytes  map[string]int
	maxBodyBytes int64
	registry     prometheus.Gatherer
}

// NewSubmissionHandlers wires the submission surface.
func NewSubmissionHandlers(
	manager interfaces.JobManager,
	backends interfaces.BackendView,
	tokens interfaces.TokenVerifier,
	clock common.Clock,
	logger *common.Logger,
	maxJobBytes map[string]int,
	maxBodyBytes int64,
	registry prometheus.Gatherer,
) *SubmissionHandlers {
	return &SubmissionHandlers{
		manager:      manager,
		backends:     backends,
		tokens:       tokens,
		clock:        clock,
		logger:       logger,
		maxJobBytes:  maxJobBytes,
		maxBodyBytes: maxBodyBytes,
		registry:     registry,
	}
}

// Register registers the submission routes.
func (h *SubmissionHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/submit-job", h.handleSubmitJob)
	mux.HandleFunc("/v1/get-job-status", h.handleGetJobStatus)
	mux.HandleFunc("/v1/get-job-result", h.handleGetJobResult)
	mux.HandleFunc("/v1/cancel-job", h.handleCancelJob)
	mux.HandleFunc("/v1/get-service-status", h.handleGetServiceStatus)
	if h.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))
	}
}

// verifyToken resolves and validates a user token. A nil ErrorDetail
// means the token is good.
func (h *SubmissionHandlers) verifyToken(ctx context.Context, token string) (*models.TokenInfo, *models.ErrorDetail) {
	if token == "" {
		return nil, detailOf(messages.WithReason(messages.KeyInvalidToken, "Token is empty."))
	}

	h.logger.Debug().Msg("Retrieving the token info from the token database")
	info, err := h.tokens.GetTokenInfo(ctx, token)
	if err != nil {
		if errors.Is(err, models.ErrTokenNotFound) {
			reason := fmt.Sprintf("Token is not found (token: %s).", token)
			h.logger.Info().Msg(reason)
			return nil, detailOf(messages.WithReason(messages.KeyInvalidToken, reason))
		}
		h.logger.Error().Err(err).Msg("Failed to verify token due to token database error")
		return nil, detailOf(messages.GetPlain(messages.KeyInternalError))
	}

	if info.IsExpired(h.clock.Now()) {
		reason := fmt.Sprintf("Token is expired (token: %s).", token)
		h.logger.Info().Msg(reason)
		return nil, detailOf(messages.WithReason(messages.KeyInvalidToken, reason))
	}

	return info, nil
}

// resolveServiceStatus fetches the published availability for a backend
// and role. Unknown backends and roles become INVALID_REQUEST; anything
// else becomes CRITICAL_ERROR.
func (h *SubmissionHandlers) resolveServiceStatus(ctx context.Context, backend, role string) (models.ServiceStatus, *models.ErrorDetail) {
	status, err := h.backends.GetBackendAvailability(ctx, backend, role)
	if err != nil {
		var unknownBackend *backendview.UnknownBackendError
		var unknownRole *backendview.UnknownRoleError
		if errors.As(err, &unknownBackend) || errors.As(err, &unknownRole) {
			h.logger.Info().Msg(err.Error())
			return models.ServiceStatus{}, detailOf(messages.WithReason(messages.KeyInvalidRequest, err.Error()))
		}
		h.logger.Error().Err(err).
			Str("backend", backend).
			Str("role", role).
			Msg("Failed to resolve the service status")
		return models.ServiceStatus{}, detailOf(messages.GetPlain(messages.KeyCriticalError))
	}
	return status, nil
}

func (h *SubmissionHandlers) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req models.SubmitJobRequest
	bodySize, ok := DecodeJSON(w, r, h.maxBodyBytes, &req)
	if !ok {
		return
	}

	tokenInfo, errDetail := h.verifyToken(r.Context(), req.Token)
	if errDetail != nil {
		WriteJSON(w, http.StatusOK, models.SubmitJobResponse{Error: errDetail})
		return
	}

	h.logger.Debug().Str("role", tokenInfo.Role).Msg("Checking the job byte size")
	if limit, ok := h.maxJobBytes[tokenInfo.Role]; ok && limit < bodySize {
		reason := fmt.Sprintf("Byte size of request (%d) exceeds the allowed limit (%d)", bodySize, limit)
		WriteJSON(w, http.StatusOK, models.SubmitJobResponse{
			Error: detailOf(messages.WithReason(messages.KeyInvalidRequest, reason)),
		})
		return
	}

	h.logger.Debug().Str("role", tokenInfo.Role).Msg("Checking the current service status")
	status, errDetail := h.resolveServiceStatus(r.Context(), req.Job.Settings.Backend, tokenInfo.Role)
	if errDetail != nil {
		WriteJSON(w, http.StatusOK, models.SubmitJobResponse{Error: errDetail})
		return
	}
	if !status.Available() {
		h.logger.Info().
			Str("role", tokenInfo.Role).
			Str("status", string(status.Availability)).
			Msg("Service is not available")
		WriteJSON(w, http.StatusOK, models.SubmitJobResponse{
			Error: detailOf(messages.GetPlain(messages.KeyServerUnavailable)),
		})
		return
	}

	h.logger.Debug().Msg("Adding a job request to the job manager")
	metadata := h.manager.AddJobRequest(r.Context(), &req, tokenInfo)

	if metadata.Status != models.JobStatusQueued {
		h.logger.Warn().Str("job_id", metadata.JobID).Msg("Failed to register a job")
		WriteJSON(w, http.StatusOK, models.SubmitJobResponse{
			Error: &models.ErrorDetail{Code: metadata.StatusCode, Description: metadata.StatusMessage},
		})
		return
	}

	h.logger.Info().Str("job_id", metadata.JobID).Msg("Successfully submitted a job")
	WriteJSON(w, http.StatusOK, models.SubmitJobResponse{JobID: metadata.JobID})
}

func (h *SubmissionHandlers) handleGetJobStatus(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req models.GetJobStatusRequest
	if _, ok := DecodeJSON(w, r, h.maxBodyBytes, &req); !ok {
		return
	}

	if _, errDetail := h.verifyToken(r.Context(), req.Token); errDetail != nil {
		WriteJSON(w, http.StatusOK, models.GetJobStatusResponse{Error: errDetail})
		return
	}

	metadata, errDetail := h.fetchMetadata(r.Context(), req.JobID)
	if errDetail != nil {
		WriteJSON(w, http.StatusOK, models.GetJobStatusResponse{Error: errDetail})
		return
	}

	h.logger.Info().Str("job_id", req.JobID).Msg("Successfully retrieved the job status")
	WriteJSON(w, http.StatusOK, models.GetJobStatusResponse{
		Status:       metadata.Status,
		StatusDetail: metadata.StatusMessage,
		ExecutionDetails: &models.JobExecutionDetails{
			Version:    metadata.ExecutionVersionView(),
			Timestamps: metadata.TimestampsView(),
		},
	})
}

func (h *SubmissionHandlers) handleGetJobResult(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req models.GetJobResultRequest
	if _, ok := DecodeJSON(w, r, h.maxBodyBytes, &req); !ok {
		return
	}

	if _, errDetail := h.verifyToken(r.Context(), req.Token); errDetail != nil {
		WriteJSON(w, http.StatusOK, models.GetJobResultResponse{Error: errDetail})
		return
	}

	metadata, errDetail := h.fetchMetadata(r.Context(), req.JobID)
	if errDetail != nil {
		WriteJSON(w, http.StatusOK, models.GetJobResultResponse{Error: errDetail})
		return
	}

	if metadata.Status != models.JobStatusCompleted {
		reason := fmt.Sprintf("The job is not completed (job ID: %s, current status: %s).", req.JobID, metadata.Status)
		h.logger.Info().Msg(reason)
		WriteJSON(w, http.StatusOK, models.GetJobResultResponse{
			Error: detailOf(messages.WithReason(messages.KeyInvalidRequest, reason)),
		})
		return
	}

	h.logger.Debug().Str("job_id", req.JobID).Msg("Generating the URL to download the job result")
	resultURL, _, err := h.manager.GetJobResultDownloadURL(r.Context(), req.JobID)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", req.JobID).Msg("Failed to generate the download URL")
		WriteJSON(w, http.StatusOK, models.GetJobResultResponse{
			Error: detailOf(messages.GetPlain(messages.KeyInternalError)),
		})
		return
	}

	h.logger.Info().Str("job_id", req.JobID).Msg("Successfully retrieved the job result")
	WriteJSON(w, http.StatusOK, models.GetJobResultResponse{
		Status:       metadata.Status,
		StatusDetail: metadata.StatusMessage,
		ExecutionDetails: &models.JobExecutionDetails{
			Version:    metadata.ExecutionVersionView(),
			Timestamps: metadata.TimestampsView(),
		},
		Result: &models.JobResult{ResultURL: resultURL},
	})
}

func (h *SubmissionHandlers) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req models.CancelJobRequest
	if _, ok := DecodeJSON(w, r, h.maxBodyBytes, &req); !ok {
		return
	}

	if _, errDetail := h.verifyToken(r.Context(), req.Token); errDetail != nil {
		WriteJSON(w, http.StatusOK, models.CancelJobResponse{Error: errDetail})
		return
	}

	h.logger.Debug().Str("job_id", req.JobID).Msg("Cancelling the job")
	cancelled, sm := h.manager.CancelJob(r.Context(), req.JobID)
	if !cancelled {
		h.logger.Info().Str("job_id", req.JobID).Msg("Failed to cancel the job")
		WriteJSON(w, http.StatusOK, models.CancelJobResponse{Error: detailOf(sm)})
		return
	}

	h.logger.Info().Str("job_id", req.JobID).Msg("Successfully cancelled the job")
	WriteJSON(w, http.StatusOK, models.CancelJobResponse{})
}

func (h *SubmissionHandlers) handleGetServiceStatus(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req models.GetServiceStatusRequest
	if _, ok := DecodeJSON(w, r, h.maxBodyBytes, &req); !ok {
		return
	}

	tokenInfo, errDetail := h.verifyToken(r.Context(), req.Token)
	if errDetail != nil {
		WriteJSON(w, http.StatusOK, models.GetServiceStatusResponse{Error: errDetail})
		return
	}

	h.logger.Debug().
		Str("backend", req.Backend).
		Str("role", tokenInfo.Role).
		Msg("Resolving the service status")
	status, errDetail := h.resolveServiceStatus(r.Context(), req.Backend, tokenInfo.Role)
	if errDetail != nil {
		WriteJSON(w, http.StatusOK, models.GetServiceStatusResponse{Error: errDetail})
		return
	}
	if !status.Available() {
		h.logger.Info().
			Str("role", tokenInfo.Role).
			Str("status", string(status.Availability)).
			Msg("Service is not available")
		WriteJSON(w, http.StatusOK, models.GetServiceStatusResponse{
			Error: detailOf(messages.GetPlain(messages.KeyServerUnavailable)),
		})
		return
	}

	h.logger.Info().Str("role", tokenInfo.Role).Msg("Service is available")
	WriteJSON(w, http.StatusOK, models.GetServiceStatusResponse{
		Status:      status.Availability,
		Description: status.Description,
	})
}

// fetchMetadata wraps GetJobMetadata with the catalog translation shared
// by the status and result operations.
func (h *SubmissionHandlers) fetchMetadata(ctx context.Context, jobID string) (*models.JobMetadata, *models.ErrorDetail) {
	h.logger.Info().Str("job_id", jobID).Msg("Retrieving the job metadata")
	metadata, err := h.manager.GetJobMetadata(ctx, jobID)
	if err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			h.logger.Info().Str("job_id", jobID).Msg("The job was not found")
			return nil, detailOf(messages.ForJob(messages.KeyJobNotFound, jobID))
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to retrieve the job metadata")
		return nil, detailOf(messages.GetPlain(messages.KeyInternalError))
	}
	return metadata, nil
}

func detailOf(sm messages.StatusMessage) *models.ErrorDetail {
	return &models.ErrorDetail{Code: sm.Code, Description: sm.Message}
}
