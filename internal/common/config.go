package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the scheduler.
type Config struct {
	Environment string          `toml:"environment"`
	Submission  ServerConfig    `toml:"submission"`
	Execution   ServerConfig    `toml:"execution"`
	AWS         AWSConfig       `toml:"aws"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	TokenDB     TokenDBConfig   `toml:"token_database"`
	Logging     LoggingConfig   `toml:"logging"`
}

// ServerConfig holds listener configuration for one of the two RPC surfaces.
type ServerConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	MaxWorkers      int    `toml:"max_workers"`
	MaxMessageBytes int    `toml:"max_message_bytes"`
}

// AWSConfig holds credentials and endpoints for the external stores.
// Endpoint overrides are for development against local stacks only.
type AWSConfig struct {
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	S3Endpoint      string `toml:"s3_endpoint"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
}

// SchedulerConfig holds queue sizing, quota, and store-name parameters.
type SchedulerConfig struct {
	// SSM parameter names resolving the job bucket and table names.
	JobBucketNameKey          string `toml:"job_bucket_name_key"`
	JobTableNameKey           string `toml:"job_table_name_key"`
	BackendStatusParameter    string `toml:"backend_status_parameter_name"`
	JobTableStatusIndex       string `toml:"job_table_status_index"`
	UnifyBackends             bool   `toml:"unify_backends"`
	MaxQueueBytes             int    `toml:"max_queue_bytes"`
	MaxJobsToConsider         int    `toml:"max_jobs_to_consider"`
	MaxWaitingTimePerJob      string `toml:"max_waiting_time_per_job"`
	MaxConcurrentJobsAdmin    int    `toml:"max_concurrent_jobs_admin"`
	MaxConcurrentJobsDev      int    `toml:"max_concurrent_jobs_developer"`
	MaxConcurrentJobsGuest    int    `toml:"max_concurrent_jobs_guest"`
	MaxJobBytesAdmin          int    `toml:"max_job_bytes_admin"`
	MaxJobBytesDev            int    `toml:"max_job_bytes_developer"`
	MaxJobBytesGuest          int    `toml:"max_job_bytes_guest"`
}

// GetMaxWaitingTime parses and returns the per-job waiting-time cap.
func (c *SchedulerConfig) GetMaxWaitingTime() time.Duration {
	d, err := time.ParseDuration(c.MaxWaitingTimePerJob)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}

// MaxConcurrentJobsPerToken returns the role → per-token concurrency cap map.
func (c *SchedulerConfig) MaxConcurrentJobsPerToken() map[string]int {
	return map[string]int{
		"admin":     c.MaxConcurrentJobsAdmin,
		"developer": c.MaxConcurrentJobsDev,
		"guest":     c.MaxConcurrentJobsGuest,
	}
}

// MaxJobBytesPerRole returns the role → submission byte cap map.
func (c *SchedulerConfig) MaxJobBytesPerRole() map[string]int {
	return map[string]int{
		"admin":     c.MaxJobBytesAdmin,
		"developer": c.MaxJobBytesDev,
		"guest":     c.MaxJobBytesGuest,
	}
}

// TokenDBConfig holds the token database client configuration.
type TokenDBConfig struct {
	Address string `toml:"address"`
	Timeout string `toml:"timeout"`
}

// GetTimeout parses and returns the token database request timeout.
func (c *TokenDBConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// NewDefaultConfig returns a Config with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Submission: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8082,
			MaxWorkers:      100,
			MaxMessageBytes: 10 << 20,
		},
		Execution: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8081,
			MaxWorkers:      10,
			MaxMessageBytes: 10 << 20,
		},
		Scheduler: SchedulerConfig{
			JobTableStatusIndex:    "status-index",
			MaxQueueBytes:          100 << 20,
			MaxJobsToConsider:      10,
			MaxWaitingTimePerJob:   "30m",
			MaxConcurrentJobsAdmin: 1000,
			MaxConcurrentJobsDev:   10,
			MaxConcurrentJobsGuest: 5,
			MaxJobBytesAdmin:       10 << 20,
			MaxJobBytesDev:         10 << 20,
			MaxJobBytesGuest:       1 << 20,
		},
		TokenDB: TokenDBConfig{
			Address: "http://token-database:8084",
			Timeout: "10s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides.
// Later files override earlier ones; missing files are skipped.
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

func envInt(name string, target *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SCHEDULER_ENV"); env != "" {
		config.Environment = env
	}
	if level := os.Getenv("SCHEDULER_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	envInt("SCHEDULER_SUBMISSION_PORT", &config.Submission.Port)
	envInt("SCHEDULER_EXECUTION_PORT", &config.Execution.Port)
	envInt("SCHEDULER_SUBMISSION_MAX_WORKERS", &config.Submission.MaxWorkers)
	envInt("SCHEDULER_EXECUTION_MAX_WORKERS", &config.Execution.MaxWorkers)
	envInt("SCHEDULER_SUBMISSION_MAX_MESSAGE_LENGTH", &config.Submission.MaxMessageBytes)
	envInt("SCHEDULER_EXECUTION_MAX_MESSAGE_LENGTH", &config.Execution.MaxMessageBytes)

	envInt("SCHEDULER_MAX_QUEUE_BYTES", &config.Scheduler.MaxQueueBytes)
	envInt("SCHEDULER_MAX_CONCURRENT_JOBS_ADMIN", &config.Scheduler.MaxConcurrentJobsAdmin)
	envInt("SCHEDULER_MAX_CONCURRENT_JOBS_DEVELOPER", &config.Scheduler.MaxConcurrentJobsDev)
	envInt("SCHEDULER_MAX_CONCURRENT_JOBS_GUEST", &config.Scheduler.MaxConcurrentJobsGuest)
	envInt("SCHEDULER_MAX_JOB_BYTES_ADMIN", &config.Scheduler.MaxJobBytesAdmin)
	envInt("SCHEDULER_MAX_JOB_BYTES_DEVELOPER", &config.Scheduler.MaxJobBytesDev)
	envInt("SCHEDULER_MAX_JOB_BYTES_GUEST", &config.Scheduler.MaxJobBytesGuest)

	if v := os.Getenv("AWS_REGION"); v != "" {
		config.AWS.Region = v
	}
	if v := os.Getenv("JOB_BUCKET_NAME_KEY"); v != "" {
		config.Scheduler.JobBucketNameKey = v
	}
	if v := os.Getenv("DYNAMODB_JOB_TABLE_NAME_KEY"); v != "" {
		config.Scheduler.JobTableNameKey = v
	}
	if v := os.Getenv("DYNAMODB_JOB_TABLE_GSI_NAME"); v != "" {
		config.Scheduler.JobTableStatusIndex = v
	}
	if v := os.Getenv("BACKEND_STATUS_PARAMETER_NAME"); v != "" {
		config.Scheduler.BackendStatusParameter = v
	}
	if v := os.Getenv("TOKEN_DATABASE_ADDRESS"); v != "" {
		config.TokenDB.Address = v
	}
	if v := os.Getenv("SCHEDULER_UNIFY_BACKENDS"); v != "" {
		config.Scheduler.UnifyBackends = strings.EqualFold(v, "true") || v == "1"
	}
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
