// Package jobrepo stores job programs and results in the blob store
// and hands out pre-signed URLs for direct transfer.
package jobrepo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/photonqc/scheduler/internal/common"
)

const (
	// UploadURLExpiration is the lifetime of pre-signed result PUT URLs.
	UploadURLExpiration = 3 * time.Hour
	// DownloadURLExpiration is the lifetime of pre-signed result GET URLs.
	DownloadURLExpiration = 3 * time.Minute

	contentTypeProtobuf = "application/protobuf"
)

func inputKey(jobID string) string  { return jobID + ".in.proto" }
func resultKey(jobID string) string { return jobID + ".out.proto.gz" }

// Client is the S3 API surface the repository uses.
type Client interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObjectTagging(ctx context.Context, params *s3.PutObjectTaggingInput, optFns ...func(*s3.Options)) (*s3.PutObjectTaggingOutput, error)
}

// Presigner generates pre-signed requests for the bucket.
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Repository reads and writes job objects in one bucket.
type Repository struct {
	client    Client
	presigner Presigner
	bucket    string
	clock     common.Clock
	logger    *common.Logger
}

// NewRepository wires a job repository against an S3 client.
func NewRepository(client Client, presigner Presigner, bucket string, clock common.Clock, logger *common.Logger) *Repository {
	return &Repository{
		client:    client,
		presigner: presigner,
		bucket:    bucket,
		clock:     clock,
		logger:    logger,
	}
}

// CheckBucket verifies the bucket exists and is reachable.
func (r *Repository) CheckBucket(ctx context.Context) error {
	r.logger.Info().Str("bucket", r.bucket).Msg("Checking if the job bucket exists")
	_, err := r.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(r.bucket)})
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", r.bucket, err)
	}
	return nil
}

// UploadJobInput stores the serialized program under the job's input
// key, tagged with the submitter's role and save preference.
func (r *Repository) UploadJobInput(ctx context.Context, jobID string, program []byte, tokenRole string, saveJob bool) error {
	r.logger.Info().Str("job_id", jobID).Msg("Uploading the job input")
	tagging := fmt.Sprintf("token_role=%s&save_job=%s&upload-status=complete", tokenRole, strconv.FormatBool(saveJob))
	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(r.bucket),
		Key:                aws.String(inputKey(jobID)),
		Body:               bytes.NewReader(program),
		ContentType:        aws.String(contentTypeProtobuf),
		ContentDisposition: aws.String("attachment"),
		Tagging:            aws.String(tagging),
	})
	if err != nil {
		return fmt.Errorf("failed to upload the job input (job ID: %s): %w", jobID, err)
	}
	return nil
}

// DownloadJobInput fetches the serialized program back.
func (r *Repository) DownloadJobInput(ctx context.Context, jobID string) ([]byte, error) {
	r.logger.Info().Str("job_id", jobID).Msg("Downloading the job input")
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(inputKey(jobID)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download the job input (job ID: %s): %w", jobID, err)
	}
	defer out.Body.Close()

	program, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read the job input (job ID: %s): %w", jobID, err)
	}
	return program, nil
}

// GenerateUploadURL returns a pre-signed PUT URL for the result object.
func (r *Repository) GenerateUploadURL(ctx context.Context, jobID string) (string, time.Time, error) {
	expiresAt := r.clock.Now().Add(UploadURLExpiration)

	r.logger.Info().Str("job_id", jobID).Msg("Generating a presigned URL for uploading the result")
	req, err := r.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(r.bucket),
		Key:                aws.String(resultKey(jobID)),
		ContentType:        aws.String(contentTypeProtobuf),
		ContentEncoding:    aws.String("gzip"),
		ContentDisposition: aws.String("attachment"),
	}, s3.WithPresignExpires(UploadURLExpiration))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate the upload URL (job ID: %s): %w", jobID, err)
	}
	return req.URL, expiresAt, nil
}

// GenerateDownloadURL returns a pre-signed GET URL for the result object.
func (r *Repository) GenerateDownloadURL(ctx context.Context, jobID string) (string, time.Time, error) {
	expiresAt := r.clock.Now().Add(DownloadURLExpiration)

	r.logger.Info().Str("job_id", jobID).Msg("Generating a presigned URL for downloading the result")
	req, err := r.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(resultKey(jobID)),
	}, s3.WithPresignExpires(DownloadURLExpiration))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate the download URL (job ID: %s): %w", jobID, err)
	}
	return req.URL, expiresAt, nil
}

// PutTagsToResult tags the uploaded result object. The upload-status
// tag flips the one-time pre-signed upload to complete.
func (r *Repository) PutTagsToResult(ctx context.Context, jobID string, tokenRole string, saveJob bool) error {
	r.logger.Info().Str("job_id", jobID).Msg("Putting tags to the job result")
	_, err := r.client.PutObjectTagging(ctx, &s3.PutObjectTaggingInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(resultKey(jobID)),
		Tagging: &s3types.Tagging{
			TagSet: []s3types.Tag{
				{Key: aws.String("token_role"), Value: aws.String(tokenRole)},
				{Key: aws.String("save_job"), Value: aws.String(strconv.FormatBool(saveJob))},
				{Key: aws.String("upload-status"), Value: aws.String("complete")},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to put tags to the job result (job ID: %s): %w", jobID, err)
	}
	return nil
}
