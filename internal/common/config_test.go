package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, 100, config.Submission.MaxWorkers)
	assert.Equal(t, 10, config.Execution.MaxWorkers)
	assert.Equal(t, 10<<20, config.Submission.MaxMessageBytes)
	assert.Equal(t, 100<<20, config.Scheduler.MaxQueueBytes)
	assert.Equal(t, 10, config.Scheduler.MaxJobsToConsider)
	assert.Equal(t, 30*time.Minute, config.Scheduler.GetMaxWaitingTime())
	assert.Equal(t, map[string]int{"admin": 1000, "developer": 10, "guest": 5},
		config.Scheduler.MaxConcurrentJobsPerToken())
	assert.Equal(t, 1<<20, config.Scheduler.MaxJobBytesPerRole()["guest"])
	assert.Equal(t, "status-index", config.Scheduler.JobTableStatusIndex)
}

func TestLoadConfigFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scheduler.toml")
	content := `
[submission]
port = 9090

[scheduler]
max_queue_bytes = 1024
backend_status_parameter_name = "/scheduler/backends"

[token_database]
address = "http://localhost:8084"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("SCHEDULER_MAX_QUEUE_BYTES", "2048")
	t.Setenv("SCHEDULER_MAX_CONCURRENT_JOBS_GUEST", "7")

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, config.Submission.Port)
	assert.Equal(t, "/scheduler/backends", config.Scheduler.BackendStatusParameter)
	assert.Equal(t, "http://localhost:8084", config.TokenDB.Address)

	// Environment overrides beat file values.
	assert.Equal(t, 2048, config.Scheduler.MaxQueueBytes)
	assert.Equal(t, 7, config.Scheduler.MaxConcurrentJobsGuest)
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	config, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, NewDefaultConfig().Submission.Port, config.Submission.Port)
}

func TestTokenDBTimeoutFallback(t *testing.T) {
	cfg := TokenDBConfig{Timeout: "bogus"}
	assert.Equal(t, 10*time.Second, cfg.GetTimeout())
	cfg.Timeout = "3s"
	assert.Equal(t, 3*time.Second, cfg.GetTimeout())
}
