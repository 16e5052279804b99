// Package dynamo implements the durable job table on DynamoDB.
package dynamo

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/photonqc/scheduler/internal/common"
	"github.com/photonqc/scheduler/internal/models"
)

// Attribute encoding: enums as their name strings, times as ISO-8601
// strings, numbers as decimal strings, booleans as booleans. Optional
// fields that are unset encode as NULL so round trips preserve them.

func encodeString(s string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: s}
}

func encodeOptionalString(s string) types.AttributeValue {
	if s == "" {
		return &types.AttributeValueMemberNULL{Value: true}
	}
	return &types.AttributeValueMemberS{Value: s}
}

func encodeInt(n int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func encodeOptionalInt(n int64) types.AttributeValue {
	if n == 0 {
		return &types.AttributeValueMemberNULL{Value: true}
	}
	return encodeInt(n)
}

func encodeFloat(f float64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatFloat(f, 'g', -1, 64)}
}

func encodeBool(b bool) types.AttributeValue {
	return &types.AttributeValueMemberBOOL{Value: b}
}

func encodeTime(t *time.Time) types.AttributeValue {
	if t == nil {
		return &types.AttributeValueMemberNULL{Value: true}
	}
	return &types.AttributeValueMemberS{Value: common.FormatTimestamp(*t)}
}

// encodeValue maps an update value to its attribute encoding.
func encodeValue(v any) (types.AttributeValue, error) {
	switch value := v.(type) {
	case nil:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case models.JobStatus:
		return encodeString(string(value)), nil
	case models.StateSavePolicy:
		return encodeString(string(value)), nil
	case string:
		return encodeString(value), nil
	case bool:
		return encodeBool(value), nil
	case int:
		return encodeInt(int64(value)), nil
	case int64:
		return encodeInt(value), nil
	case float64:
		return encodeFloat(value), nil
	case time.Time:
		return encodeTime(&value), nil
	case *time.Time:
		return encodeTime(value), nil
	default:
		return nil, fmt.Errorf("unsupported attribute type %T", v)
	}
}

// ToItem encodes job metadata as a DynamoDB item.
func ToItem(m *models.JobMetadata) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"job_id":      encodeString(m.JobID),
		"sdk_version": encodeString(m.SDKVersion),

		"token": encodeString(m.Token),
		"role":  encodeString(m.Role),

		"requested_backend": encodeString(m.RequestedBackend),
		"n_shots":           encodeInt(int64(m.NShots)),
		"max_elapsed_s":     encodeInt(int64(m.MaxElapsedS)),

		"save_job": encodeBool(m.SaveJob),

		"state_save_policy":        encodeString(string(m.StateSavePolicy)),
		"resource_squeezing_level": encodeFloat(m.ResourceSqueezingLevel),

		"status":         encodeString(string(m.Status)),
		"status_code":    encodeString(m.StatusCode),
		"status_message": encodeString(m.StatusMessage),

		"actual_backend_name": encodeOptionalString(m.ActualBackendName),
		"raw_size_bytes":      encodeOptionalInt(m.RawSizeBytes),
		"encoded_size_bytes":  encodeOptionalInt(m.EncodedSizeBytes),

		"quantum_computer_version": encodeOptionalString(m.QuantumComputerVersion),
		"physical_lab_version":     encodeOptionalString(m.PhysicalLabVersion),
		"scheduler_version":        encodeOptionalString(m.SchedulerVersion),
		"simulator_version":        encodeOptionalString(m.SimulatorVersion),

		"submitted_at":          encodeTime(m.SubmittedAt),
		"queued_at":             encodeTime(m.QueuedAt),
		"dequeued_at":           encodeTime(m.DequeuedAt),
		"compile_started_at":    encodeTime(m.CompileStartedAt),
		"compile_finished_at":   encodeTime(m.CompileFinishedAt),
		"execution_started_at":  encodeTime(m.ExecutionStartedAt),
		"execution_finished_at": encodeTime(m.ExecutionFinishedAt),
		"finished_at":           encodeTime(m.FinishedAt),
		"job_expiry":            encodeTime(m.JobExpiry),
	}
}

type itemReader struct {
	item map[string]types.AttributeValue
	err  error
}

func (r *itemReader) attribute(name string) (types.AttributeValue, bool) {
	if r.err != nil {
		return nil, false
	}
	av, ok := r.item[name]
	if !ok {
		r.err = fmt.Errorf("missing field in item: %s", name)
		return nil, false
	}
	return av, true
}

func (r *itemReader) str(name string) string {
	av, ok := r.attribute(name)
	if !ok {
		return ""
	}
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberNULL:
		return ""
	}
	r.err = fmt.Errorf("field %s is not a string", name)
	return ""
}

func (r *itemReader) integer(name string) int64 {
	av, ok := r.attribute(name)
	if !ok {
		return 0
	}
	switch v := av.(type) {
	case *types.AttributeValueMemberN:
		n, err := strconv.ParseInt(v.Value, 10, 64)
		if err != nil {
			r.err = fmt.Errorf("field %s: %w", name, err)
			return 0
		}
		return n
	case *types.AttributeValueMemberNULL:
		return 0
	}
	r.err = fmt.Errorf("field %s is not a number", name)
	return 0
}

func (r *itemReader) float(name string) float64 {
	av, ok := r.attribute(name)
	if !ok {
		return 0
	}
	switch v := av.(type) {
	case *types.AttributeValueMemberN:
		f, err := strconv.ParseFloat(v.Value, 64)
		if err != nil {
			r.err = fmt.Errorf("field %s: %w", name, err)
			return 0
		}
		return f
	case *types.AttributeValueMemberNULL:
		return 0
	}
	r.err = fmt.Errorf("field %s is not a number", name)
	return 0
}

func (r *itemReader) boolean(name string) bool {
	av, ok := r.attribute(name)
	if !ok {
		return false
	}
	if v, ok := av.(*types.AttributeValueMemberBOOL); ok {
		return v.Value
	}
	r.err = fmt.Errorf("field %s is not a boolean", name)
	return false
}

func (r *itemReader) timestamp(name string) *time.Time {
	av, ok := r.attribute(name)
	if !ok {
		return nil
	}
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		t, err := common.ParseTimestamp(v.Value)
		if err != nil {
			r.err = fmt.Errorf("field %s: %w", name, err)
			return nil
		}
		return &t
	case *types.AttributeValueMemberNULL:
		return nil
	}
	r.err = fmt.Errorf("field %s is not a timestamp", name)
	return nil
}

// FromItem decodes a DynamoDB item produced by ToItem. A missing or
// mistyped field is an error.
func FromItem(item map[string]types.AttributeValue) (*models.JobMetadata, error) {
	r := &itemReader{item: item}

	m := &models.JobMetadata{
		JobID:      r.str("job_id"),
		SDKVersion: r.str("sdk_version"),

		Token: r.str("token"),
		Role:  r.str("role"),

		RequestedBackend: r.str("requested_backend"),
		NShots:           int(r.integer("n_shots")),
		MaxElapsedS:      int(r.integer("max_elapsed_s")),

		SaveJob: r.boolean("save_job"),

		StateSavePolicy:        models.StateSavePolicy(r.str("state_save_policy")),
		ResourceSqueezingLevel: r.float("resource_squeezing_level"),

		Status:        models.JobStatus(r.str("status")),
		StatusCode:    r.str("status_code"),
		StatusMessage: r.str("status_message"),

		ActualBackendName: r.str("actual_backend_name"),
		RawSizeBytes:      r.integer("raw_size_bytes"),
		EncodedSizeBytes:  r.integer("encoded_size_bytes"),

		QuantumComputerVersion: r.str("quantum_computer_version"),
		PhysicalLabVersion:     r.str("physical_lab_version"),
		SchedulerVersion:       r.str("scheduler_version"),
		SimulatorVersion:       r.str("simulator_version"),

		SubmittedAt:         r.timestamp("submitted_at"),
		QueuedAt:            r.timestamp("queued_at"),
		DequeuedAt:          r.timestamp("dequeued_at"),
		CompileStartedAt:    r.timestamp("compile_started_at"),
		CompileFinishedAt:   r.timestamp("compile_finished_at"),
		ExecutionStartedAt:  r.timestamp("execution_started_at"),
		ExecutionFinishedAt: r.timestamp("execution_finished_at"),
		FinishedAt:          r.timestamp("finished_at"),
		JobExpiry:           r.timestamp("job_expiry"),
	}

	if r.err != nil {
		return nil, r.err
	}
	return m, nil
}
