package jobrepo

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photonqc/scheduler/internal/common"
)

type fakeS3 struct {
	headErr error

	putInput   *s3.PutObjectInput
	putErr     error
	getOutput  *s3.GetObjectOutput
	getErr     error
	tagInput   *s3.PutObjectTaggingInput
	tagErr     error
	getKeySeen string
}

func (f *fakeS3) HeadBucket(_ context.Context, _ *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.putInput = params
	if f.putErr != nil {
		return nil, f.putErr
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.getKeySeen = aws.ToString(params.Key)
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getOutput, nil
}

func (f *fakeS3) PutObjectTagging(_ context.Context, params *s3.PutObjectTaggingInput, _ ...func(*s3.Options)) (*s3.PutObjectTaggingOutput, error) {
	f.tagInput = params
	if f.tagErr != nil {
		return nil, f.tagErr
	}
	return &s3.PutObjectTaggingOutput{}, nil
}

type fakePresigner struct {
	putInput *s3.PutObjectInput
	getInput *s3.GetObjectInput
	err      error
}

func (f *fakePresigner) PresignPutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.putInput = params
	if f.err != nil {
		return nil, f.err
	}
	return &v4.PresignedHTTPRequest{URL: "https://bucket/upload"}, nil
}

func (f *fakePresigner) PresignGetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.getInput = params
	if f.err != nil {
		return nil, f.err
	}
	return &v4.PresignedHTTPRequest{URL: "https://bucket/download"}, nil
}

type nopReadCloser struct{ io.Reader }

func (nopReadCloser) Close() error { return nil }

func newTestRepository(client *fakeS3, presigner *fakePresigner) (*Repository, *common.ManualClock) {
	clock := common.NewManualClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return NewRepository(client, presigner, "job-bucket", clock, common.NewSilentLogger()), clock
}

func TestCheckBucket(t *testing.T) {
	client := &fakeS3{}
	repo, _ := newTestRepository(client, &fakePresigner{})
	require.NoError(t, repo.CheckBucket(context.Background()))

	client.headErr = errors.New("no such bucket")
	assert.Error(t, repo.CheckBucket(context.Background()))
}

func TestUploadJobInput(t *testing.T) {
	client := &fakeS3{}
	repo, _ := newTestRepository(client, &fakePresigner{})

	err := repo.UploadJobInput(context.Background(), "job-1", []byte("program"), "guest", true)
	require.NoError(t, err)

	require.NotNil(t, client.putInput)
	assert.Equal(t, "job-1.in.proto", aws.ToString(client.putInput.Key))
	assert.Equal(t, "application/protobuf", aws.ToString(client.putInput.ContentType))
	assert.Equal(t, "token_role=guest&save_job=true&upload-status=complete", aws.ToString(client.putInput.Tagging))

	body, err := io.ReadAll(client.putInput.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("program"), body)
}

func TestDownloadJobInput(t *testing.T) {
	client := &fakeS3{getOutput: &s3.GetObjectOutput{Body: nopReadCloser{Reader: strings.NewReader("program")}}}
	repo, _ := newTestRepository(client, &fakePresigner{})

	program, err := repo.DownloadJobInput(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("program"), program)
	assert.Equal(t, "job-1.in.proto", client.getKeySeen)

	client.getErr = errors.New("no such key")
	_, err = repo.DownloadJobInput(context.Background(), "job-1")
	assert.Error(t, err)
}

func TestGenerateUploadURL(t *testing.T) {
	presigner := &fakePresigner{}
	repo, clock := newTestRepository(&fakeS3{}, presigner)

	url, expiresAt, err := repo.GenerateUploadURL(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "https://bucket/upload", url)
	assert.Equal(t, clock.Now().Add(UploadURLExpiration), expiresAt)

	require.NotNil(t, presigner.putInput)
	assert.Equal(t, "job-1.out.proto.gz", aws.ToString(presigner.putInput.Key))
	assert.Equal(t, "gzip", aws.ToString(presigner.putInput.ContentEncoding))
}

func TestGenerateDownloadURL(t *testing.T) {
	presigner := &fakePresigner{}
	repo, clock := newTestRepository(&fakeS3{}, presigner)

	url, expiresAt, err := repo.GenerateDownloadURL(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "https://bucket/download", url)
	assert.Equal(t, clock.Now().Add(DownloadURLExpiration), expiresAt)

	require.NotNil(t, presigner.getInput)
	assert.Equal(t, "job-1.out.proto.gz", aws.ToString(presigner.getInput.Key))
}

func TestPutTagsToResult(t *testing.T) {
	client := &fakeS3{}
	repo, _ := newTestRepository(client, &fakePresigner{})

	require.NoError(t, repo.PutTagsToResult(context.Background(), "job-1", "developer", false))

	require.NotNil(t, client.tagInput)
	assert.Equal(t, "job-1.out.proto.gz", aws.ToString(client.tagInput.Key))

	tags := map[string]string{}
	for _, tag := range client.tagInput.Tagging.TagSet {
		tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	assert.Equal(t, map[string]string{
		"token_role":    "developer",
		"save_job":      "false",
		"upload-status": "complete",
	}, tags)
}
