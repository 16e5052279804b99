package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photonqc/scheduler/internal/common"
	"github.com/photonqc/scheduler/internal/models"
)

type executionFixture struct {
	manager *mockManager
	server  *Server
}

func newExecutionFixture(t *testing.T) *executionFixture {
	t.Helper()
	f := &executionFixture{manager: &mockManager{}}
	handlers := NewExecutionHandlers(f.manager, common.NewSilentLogger(), 10<<20)
	f.server = NewServer("execution", common.ServerConfig{Host: "127.0.0.1", Port: 0}, handlers, common.NewSilentLogger())
	return f
}

func (f *executionFixture) post(t *testing.T, path string, request, response any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(request)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	if response != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), response))
	}
	return rec
}

func TestAssignNextJobHandler(t *testing.T) {
	f := newExecutionFixture(t)
	expiresAt := time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)
	f.manager.fetchResp = &models.AssignNextJobResponse{
		JobID: "job-1",
		Job: &models.Job{
			Program:  []byte("circuit"),
			Settings: models.JobExecutionSettings{Backend: "qpu-1", NShots: 100},
		},
		UploadTarget: &models.JobResultUploadTarget{
			UploadURL: "https://blob.test/put/job-1",
			ExpiresAt: &expiresAt,
		},
	}

	var resp models.AssignNextJobResponse
	rec := f.post(t, "/v1/assign-next-job", &models.AssignNextJobRequest{Backend: "qpu-1"}, &resp)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "job-1", resp.JobID)
	require.NotNil(t, resp.Job)
	assert.Equal(t, []byte("circuit"), resp.Job.Program)
	require.NotNil(t, resp.UploadTarget)
	assert.Equal(t, "https://blob.test/put/job-1", resp.UploadTarget.UploadURL)
}

func TestAssignNextJobEmpty(t *testing.T) {
	f := newExecutionFixture(t)
	f.manager.fetchResp = &models.AssignNextJobResponse{}

	var resp models.AssignNextJobResponse
	f.post(t, "/v1/assign-next-job", &models.AssignNextJobRequest{Backend: "qpu-1"}, &resp)

	assert.Empty(t, resp.JobID)
	assert.Nil(t, resp.Job)
	assert.Nil(t, resp.Error)
}

func TestReportExecutionResultHandler(t *testing.T) {
	f := newExecutionFixture(t)
	f.manager.finalizeResp = &models.ReportExecutionResultResponse{}

	var resp models.ReportExecutionResultResponse
	rec := f.post(t, "/v1/report-execution-result", &models.ReportExecutionResultRequest{
		JobID:  "job-1",
		Status: models.ExecutionStatusSuccess,
	}, &resp)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, resp.Error)
}

func TestRefreshUploadURLHandler(t *testing.T) {
	f := newExecutionFixture(t)
	f.manager.metadata = &models.JobMetadata{JobID: "job-1", Status: models.JobStatusRunning}
	f.manager.uploadURL = "https://blob.test/put/job-1"

	var resp models.RefreshUploadURLResponse
	f.post(t, "/v1/refresh-upload-url", &models.RefreshUploadURLRequest{JobID: "job-1"}, &resp)

	require.Nil(t, resp.Error)
	require.NotNil(t, resp.UploadTarget)
	assert.Equal(t, "https://blob.test/put/job-1", resp.UploadTarget.UploadURL)
}

func TestRefreshUploadURLNotFound(t *testing.T) {
	f := newExecutionFixture(t)
	f.manager.metadataErr = models.ErrJobNotFound

	var resp models.RefreshUploadURLResponse
	f.post(t, "/v1/refresh-upload-url", &models.RefreshUploadURLRequest{JobID: "missing"}, &resp)

	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestRefreshUploadURLWrongState(t *testing.T) {
	f := newExecutionFixture(t)

	for _, status := range []models.JobStatus{
		models.JobStatusCompleted,
		models.JobStatusFailed,
		models.JobStatusCancelled,
	} {
		f.manager.metadata = &models.JobMetadata{JobID: "job-1", Status: status}

		var resp models.RefreshUploadURLResponse
		f.post(t, "/v1/refresh-upload-url", &models.RefreshUploadURLRequest{JobID: "job-1"}, &resp)

		require.NotNil(t, resp.Error, string(status))
		assert.Equal(t, "INVALID_ARGUMENT", resp.Error.Code, string(status))
		assert.Equal(t, "Invalid request parameters: Job status is not QUEUED or RUNNING.", resp.Error.Description)
	}
}
