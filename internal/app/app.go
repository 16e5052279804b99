// Package app wires the scheduler's components together: configuration,
// AWS clients, the job manager, the backend view, and the two HTTP
// surfaces.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/photonqc/scheduler/internal/clients/tokendb"
	"github.com/photonqc/scheduler/internal/common"
	"github.com/photonqc/scheduler/internal/metrics"
	"github.com/photonqc/scheduler/internal/server"
	"github.com/photonqc/scheduler/internal/services/backendview"
	"github.com/photonqc/scheduler/internal/services/jobmanager"
	"github.com/photonqc/scheduler/internal/storage/dynamo"
	"github.com/photonqc/scheduler/internal/storage/jobrepo"
	"github.com/photonqc/scheduler/internal/storage/ssmstore"
)

// App holds the wired scheduler.
type App struct {
	Config *common.Config
	Logger *common.Logger

	Manager  *jobmanager.Manager
	Backends *backendview.View
	Metrics  *metrics.Metrics

	Submission *server.Server
	Execution  *server.Server
}

// NewApp loads configuration, connects the external stores, recovers
// in-flight state, and builds both HTTP servers.
func NewApp(ctx context.Context, configPath string) (*App, error) {
	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLogger(config.Logging.Level, config.Logging.Format)
	clock := common.NewSystemClock()

	awsCfg, err := loadAWSConfig(ctx, &config.AWS)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	ssmClient := ssm.NewFromConfig(awsCfg, func(o *ssm.Options) {
		if config.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.AWS.Endpoint)
		}
	})
	paramStore := ssmstore.NewStore(ssmClient, logger)

	// The bucket and table names live in the parameter store; their
	// SSM keys come from config.
	bucketName, err := paramStore.GetParameter(ctx, config.Scheduler.JobBucketNameKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve the job bucket name: %w", err)
	}
	tableName, err := paramStore.GetParameter(ctx, config.Scheduler.JobTableNameKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve the job table name: %w", err)
	}

	dynamoClient := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if config.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.AWS.Endpoint)
		}
	})
	table := dynamo.NewTable(dynamoClient, strings.TrimSpace(tableName), config.Scheduler.JobTableStatusIndex, logger)

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if config.AWS.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(config.AWS.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	repo := jobrepo.NewRepository(s3Client, s3.NewPresignClient(s3Client), strings.TrimSpace(bucketName), clock, logger)

	if err := repo.CheckBucket(ctx); err != nil {
		// The repository degrades to per-operation failures, so the
		// missing bucket is not fatal at startup.
		logger.Warn().Err(err).Msg("Job bucket is not reachable")
	}

	backends, err := backendview.New(paramStore, config.Scheduler.BackendStatusParameter, config.Scheduler.UnifyBackends, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load the backend status: %w", err)
	}
	backendNames, err := backends.AllBackends(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list backends: %w", err)
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	manager, err := jobmanager.NewManager(ctx, jobmanager.Options{
		QueueCapacityBytes:        config.Scheduler.MaxQueueBytes,
		MaxJobsToConsider:         config.Scheduler.MaxJobsToConsider,
		MaxWaitingTimePerJob:      config.Scheduler.GetMaxWaitingTime(),
		MaxConcurrentJobsPerToken: config.Scheduler.MaxConcurrentJobsPerToken(),
		SupportedBackends:         backendNames,
		UnifyBackends:             config.Scheduler.UnifyBackends,
		SchedulerVersion:          common.GetVersion(),
	}, table, repo, clock, logger, m)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize the job manager: %w", err)
	}

	tokens := tokendb.NewClient(config.TokenDB.Address, config.TokenDB.GetTimeout(), logger)

	submissionHandlers := server.NewSubmissionHandlers(
		manager, backends, tokens, clock, logger,
		config.Scheduler.MaxJobBytesPerRole(),
		int64(config.Submission.MaxMessageBytes),
		registry,
	)
	executionHandlers := server.NewExecutionHandlers(manager, logger, int64(config.Execution.MaxMessageBytes))

	return &App{
		Config:     config,
		Logger:     logger,
		Manager:    manager,
		Backends:   backends,
		Metrics:    m,
		Submission: server.NewServer("submission", config.Submission, submissionHandlers, logger),
		Execution:  server.NewServer("execution", config.Execution, executionHandlers, logger),
	}, nil
}

// loadAWSConfig builds the shared AWS configuration. Static credentials
// from config are for development stacks; production relies on the
// default chain.
func loadAWSConfig(ctx context.Context, cfg *common.AWSConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}
