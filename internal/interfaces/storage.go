// Package interfaces defines service contracts for the scheduler
package interfaces

import (
	"context"
	"time"

	"github.com/photonqc/scheduler/internal/models"
)

// JobTable is the durable job-metadata store keyed by job_id with a
// secondary index on status.
type JobTable interface {
	// Describe verifies the table exists and is reachable.
	Describe(ctx context.Context) error

	// PutNewJob stores a fresh record, conditional on the job_id not
	// existing yet. A conditional failure is returned as an error.
	PutNewJob(ctx context.Context, metadata *models.JobMetadata) error

	// GetJob fetches one record. consistentRead requests a strongly
	// consistent read. Returns models.ErrJobNotFound if absent.
	GetJob(ctx context.Context, jobID string, consistentRead bool) (*models.JobMetadata, error)

	// JobExists reports whether a record with the given job_id exists.
	JobExists(ctx context.Context, jobID string) (bool, error)

	// QueryJobsByStatus returns every record with the given status,
	// following pagination internally.
	QueryJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.JobMetadata, error)

	// CountJobsByStatus returns the number of records with the status.
	CountJobsByStatus(ctx context.Context, status models.JobStatus) (int, error)

	// UpdateJob applies the field updates, conditional on the record
	// existing.
	UpdateJob(ctx context.Context, jobID string, updates map[string]any) error

	// UpdateJobIfStatus applies the field updates only while the stored
	// status equals expected. Returns models.ErrStatusConditionFailed
	// when the guard does not hold.
	UpdateJobIfStatus(ctx context.Context, jobID string, expected models.JobStatus, updates map[string]any) error
}

// BlobRepository stores job programs and results and hands out
// pre-signed URLs for direct client transfer.
type BlobRepository interface {
	// CheckBucket verifies the bucket exists and is reachable.
	CheckBucket(ctx context.Context) error

	// UploadJobInput stores the serialized program for a job, tagged
	// with the submitter's role and save preference.
	UploadJobInput(ctx context.Context, jobID string, program []byte, tokenRole string, saveJob bool) error

	// DownloadJobInput fetches the serialized program back.
	DownloadJobInput(ctx context.Context, jobID string) ([]byte, error)

	// GenerateUploadURL returns a pre-signed PUT URL for the result
	// object and the instant it expires.
	GenerateUploadURL(ctx context.Context, jobID string) (string, time.Time, error)

	// GenerateDownloadURL returns a pre-signed GET URL for the result
	// object and the instant it expires.
	GenerateDownloadURL(ctx context.Context, jobID string) (string, time.Time, error)

	// PutTagsToResult tags the uploaded result object with the
	// submitter's role and save preference.
	PutTagsToResult(ctx context.Context, jobID string, tokenRole string, saveJob bool) error
}

// ParameterStore fetches opaque configuration values by name.
type ParameterStore interface {
	GetParameter(ctx context.Context, name string) (string, error)
}
