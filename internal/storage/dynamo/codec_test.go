package dynamo

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photonqc/scheduler/internal/models"
)

func timePtr(t time.Time) *time.Time { return &t }

func fullMetadata() *models.JobMetadata {
	base := time.Date(2025, 6, 1, 12, 0, 0, 123456789, time.UTC)
	return &models.JobMetadata{
		JobID:                  "job-1",
		SDKVersion:             "1.2.3",
		Token:                  "tok",
		Role:                   "guest",
		RequestedBackend:       "emulator",
		NShots:                 1024,
		MaxElapsedS:            120,
		SaveJob:                true,
		StateSavePolicy:        models.StateSaveFirstOnly,
		ResourceSqueezingLevel: 0.75,
		Status:                 models.JobStatusCompleted,
		StatusCode:             "OK",
		StatusMessage:          "done",
		ActualBackendName:      "emulator-3",
		RawSizeBytes:           4096,
		EncodedSizeBytes:       1024,
		QuantumComputerVersion: "qc-7",
		PhysicalLabVersion:     "lab-2",
		SchedulerVersion:       "0.9.0",
		SimulatorVersion:       "sim-5",
		SubmittedAt:            timePtr(base),
		QueuedAt:               timePtr(base.Add(time.Second)),
		DequeuedAt:             timePtr(base.Add(2 * time.Second)),
		CompileStartedAt:       timePtr(base.Add(3 * time.Second)),
		CompileFinishedAt:      timePtr(base.Add(4 * time.Second)),
		ExecutionStartedAt:     timePtr(base.Add(5 * time.Second)),
		ExecutionFinishedAt:    timePtr(base.Add(6 * time.Second)),
		FinishedAt:             timePtr(base.Add(7 * time.Second)),
		JobExpiry:              timePtr(base.AddDate(0, 0, 30)),
	}
}

func minimalMetadata() *models.JobMetadata {
	return &models.JobMetadata{
		JobID:            "job-2",
		SDKVersion:       "1.2.3",
		Token:            "tok",
		Role:             "guest",
		RequestedBackend: "qpu",
		NShots:           1,
		MaxElapsedS:      5,
		StateSavePolicy:  models.StateSaveUnspecified,
		Status:           models.JobStatusQueued,
	}
}

func TestItemRoundTrip(t *testing.T) {
	for name, metadata := range map[string]*models.JobMetadata{
		"full":    fullMetadata(),
		"minimal": minimalMetadata(),
	} {
		t.Run(name, func(t *testing.T) {
			decoded, err := FromItem(ToItem(metadata))
			require.NoError(t, err)
			assert.Equal(t, metadata, decoded)
		})
	}
}

func TestItemEncoding(t *testing.T) {
	item := ToItem(fullMetadata())

	// Enums and timestamps persist as strings, numbers as N, booleans
	// as BOOL.
	assert.Equal(t, &types.AttributeValueMemberS{Value: "COMPLETED"}, item["status"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "FIRST_ONLY"}, item["state_save_policy"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "1024"}, item["n_shots"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "0.75"}, item["resource_squeezing_level"])
	assert.Equal(t, &types.AttributeValueMemberBOOL{Value: true}, item["save_job"])

	queuedAt, ok := item["queued_at"].(*types.AttributeValueMemberS)
	require.True(t, ok)
	assert.Equal(t, "2025-06-01T12:00:01.123456789Z", queuedAt.Value)
}

func TestItemEncodingUnsetOptionals(t *testing.T) {
	item := ToItem(minimalMetadata())

	for _, name := range []string{"actual_backend_name", "raw_size_bytes", "finished_at", "job_expiry"} {
		assert.IsType(t, &types.AttributeValueMemberNULL{}, item[name], name)
	}
}

func TestFromItemMissingField(t *testing.T) {
	item := ToItem(fullMetadata())
	delete(item, "requested_backend")

	_, err := FromItem(item)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing field in item: requested_backend")
}

func TestFromItemMistypedField(t *testing.T) {
	item := ToItem(fullMetadata())
	item["n_shots"] = &types.AttributeValueMemberS{Value: "not-a-number"}

	_, err := FromItem(item)
	assert.Error(t, err)
}

func TestEncodeValue(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	av, err := encodeValue(models.JobStatusRunning)
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "RUNNING"}, av)

	av, err = encodeValue(now)
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "2025-06-01T12:00:00Z"}, av)

	av, err = encodeValue((*time.Time)(nil))
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberNULL{Value: true}, av)

	av, err = encodeValue(int64(42))
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberN{Value: "42"}, av)

	_, err = encodeValue(struct{}{})
	assert.Error(t, err)
}
