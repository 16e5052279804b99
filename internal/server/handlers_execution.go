package server

import (
	"errors"
	"net/http"

	"github.com/photonqc/scheduler/internal/common"
	"github.com/photonqc/scheduler/internal/interfaces"
	"github.com/photonqc/scheduler/internal/messages"
	"github.com/photonqc/scheduler/internal/models"
)

// ExecutionHandlers serves the physical-lab-facing operations: assign,
// report, and upload-URL refresh. This surface is network-trusted; it
// carries no token check.
type ExecutionHandlers struct {
	manager interfaces.JobManager
	logger  *common.Logger

	maxBodyBytes int64
}

// NewExecutionHandlers wires the execution surface.
func NewExecutionHandlers(manager interfaces.JobManager, logger *common.Logger, maxBodyBytes int64) *ExecutionHandlers {
	return &ExecutionHandlers{
		manager:      manager,
		logger:       logger,
		maxBodyBytes: maxBodyBytes,
	}
}

// Register registers the execution routes.
func (h *ExecutionHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/assign-next-job", h.handleAssignNextJob)
	mux.HandleFunc("/v1/report-execution-result", h.handleReportExecutionResult)
	mux.HandleFunc("/v1/refresh-upload-url", h.handleRefreshUploadURL)
}

func (h *ExecutionHandlers) handleAssignNextJob(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req models.AssignNextJobRequest
	if _, ok := DecodeJSON(w, r, h.maxBodyBytes, &req); !ok {
		return
	}

	response := h.manager.FetchNextJobToExecute(r.Context(), &req)
	if response.JobID != "" {
		h.logger.Info().
			Str("job_id", response.JobID).
			Str("backend", req.Backend).
			Msg("Send a job to the physical laboratory")
	}

	WriteJSON(w, http.StatusOK, response)
}

func (h *ExecutionHandlers) handleReportExecutionResult(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req models.ReportExecutionResultRequest
	if _, ok := DecodeJSON(w, r, h.maxBodyBytes, &req); !ok {
		return
	}

	h.logger.Debug().Str("job_id", req.JobID).Msg("Reporting the execution result")
	WriteJSON(w, http.StatusOK, h.manager.FinalizeJob(r.Context(), &req))
}

func (h *ExecutionHandlers) handleRefreshUploadURL(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req models.RefreshUploadURLRequest
	if _, ok := DecodeJSON(w, r, h.maxBodyBytes, &req); !ok {
		return
	}

	h.logger.Info().Str("job_id", req.JobID).Msg("Retrieving the job metadata")
	metadata, err := h.manager.GetJobMetadata(r.Context(), req.JobID)
	if err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			h.logger.Info().Str("job_id", req.JobID).Msg("The job was not found")
			WriteJSON(w, http.StatusOK, models.RefreshUploadURLResponse{
				Error: detailOf(messages.ForJob(messages.KeyJobNotFound, req.JobID)),
			})
			return
		}
		h.logger.Error().Err(err).Str("job_id", req.JobID).Msg("Failed to retrieve the job metadata")
		WriteJSON(w, http.StatusOK, models.RefreshUploadURLResponse{
			Error: detailOf(messages.GetPlain(messages.KeyInternalError)),
		})
		return
	}

	if metadata.Status != models.JobStatusQueued && metadata.Status != models.JobStatusRunning {
		h.logger.Info().Str("job_id", req.JobID).Msg("Job status is not QUEUED or RUNNING")
		WriteJSON(w, http.StatusOK, models.RefreshUploadURLResponse{
			Error: detailOf(messages.WithReason(messages.KeyInvalidRequest, "Job status is not QUEUED or RUNNING.")),
		})
		return
	}

	h.logger.Debug().Str("job_id", req.JobID).Msg("Generating a new upload URL")
	uploadURL, expiresAt, err := h.manager.GetJobResultUploadURL(r.Context(), req.JobID)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", req.JobID).Msg("Failed to generate a new upload URL")
		WriteJSON(w, http.StatusOK, models.RefreshUploadURLResponse{
			Error: detailOf(messages.GetPlain(messages.KeyInternalError)),
		})
		return
	}

	h.logger.Info().Str("job_id", req.JobID).Msg("Successfully refreshed the upload URL")
	WriteJSON(w, http.StatusOK, models.RefreshUploadURLResponse{
		UploadTarget: &models.JobResultUploadTarget{
			UploadURL: uploadURL,
			ExpiresAt: &expiresAt,
		},
	})
}
