package backendview

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photonqc/scheduler/internal/common"
	"github.com/photonqc/scheduler/internal/models"
)

const statusParameter = "/scheduler/backend-status"

type fakeParameterStore struct {
	values map[string]string
	err    error
}

func (f *fakeParameterStore) GetParameter(_ context.Context, name string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	v, ok := f.values[name]
	if !ok {
		return "", errors.New("parameter not found")
	}
	return v, nil
}

const validStatusDocument = `
[backends.qpu.admin]
status = "available"
description = "QPU is up."

[backends.qpu.guest]
status = "maintenance"
description = "Scheduled maintenance."

[backends.emulator.guest]
status = "available"
description = "Emulator is up."
`

func newTestView(t *testing.T, document string) *View {
	t.Helper()
	store := &fakeParameterStore{values: map[string]string{statusParameter: document}}
	v, err := New(store, statusParameter, false, common.NewSilentLogger())
	require.NoError(t, err)
	return v
}

func TestNewValidatesParameter(t *testing.T) {
	_, err := New(&fakeParameterStore{err: errors.New("ssm down")}, statusParameter, false, common.NewSilentLogger())
	assert.ErrorContains(t, err, "failed to retrieve")

	store := &fakeParameterStore{values: map[string]string{statusParameter: "not [valid toml"}}
	_, err = New(store, statusParameter, false, common.NewSilentLogger())
	assert.ErrorContains(t, err, "failed to validate")
}

func TestGetBackendAvailability(t *testing.T) {
	v := newTestView(t, validStatusDocument)

	status, err := v.GetBackendAvailability(context.Background(), "qpu", "admin")
	require.NoError(t, err)
	assert.Equal(t, models.AvailabilityAvailable, status.Availability)
	assert.Equal(t, "QPU is up.", status.Description)
	assert.True(t, status.Available())

	status, err = v.GetBackendAvailability(context.Background(), "qpu", "guest")
	require.NoError(t, err)
	assert.Equal(t, models.AvailabilityMaintenance, status.Availability)
	assert.False(t, status.Available())
}

func TestGetBackendAvailabilityUnknownBackend(t *testing.T) {
	v := newTestView(t, validStatusDocument)

	_, err := v.GetBackendAvailability(context.Background(), "nope", "admin")
	var unknownBackend *UnknownBackendError
	require.ErrorAs(t, err, &unknownBackend)
	assert.Equal(t, "nope", unknownBackend.Backend)
}

func TestGetBackendAvailabilityUnknownRole(t *testing.T) {
	v := newTestView(t, validStatusDocument)

	_, err := v.GetBackendAvailability(context.Background(), "qpu", "developer")
	var unknownRole *UnknownRoleError
	require.ErrorAs(t, err, &unknownRole)
	assert.Equal(t, "qpu", unknownRole.Backend)
	assert.Equal(t, "developer", unknownRole.Role)
}

func TestGetBackendAvailabilityInvalidStatusString(t *testing.T) {
	v := newTestView(t, `
[backends.qpu.admin]
status = "sideways"
description = "odd state"
`)

	status, err := v.GetBackendAvailability(context.Background(), "qpu", "admin")
	require.NoError(t, err)
	assert.Equal(t, models.AvailabilityUnavailable, status.Availability)
	assert.Equal(t, "odd state", status.Description)
}

func TestGetBackendAvailabilityMissingBackendsTable(t *testing.T) {
	v := newTestView(t, `something_else = 1`)

	status, err := v.GetBackendAvailability(context.Background(), "qpu", "admin")
	require.NoError(t, err)
	assert.Equal(t, models.AvailabilityUnavailable, status.Availability)
	assert.Equal(t, corruptedDescription, status.Description)
}

func TestGetBackendAvailabilityLoadFailure(t *testing.T) {
	store := &fakeParameterStore{values: map[string]string{statusParameter: validStatusDocument}}
	v, err := New(store, statusParameter, false, common.NewSilentLogger())
	require.NoError(t, err)

	// The store starts failing after construction.
	store.err = errors.New("ssm down")

	status, err := v.GetBackendAvailability(context.Background(), "qpu", "admin")
	require.NoError(t, err)
	assert.Equal(t, models.AvailabilityUnavailable, status.Availability)
	assert.Equal(t, loadFailedDescription, status.Description)
}

func TestGetBackendAvailabilityMalformedEntry(t *testing.T) {
	v := newTestView(t, `
[backends.qpu.admin]
status = 42
description = "type confusion"
`)

	status, err := v.GetBackendAvailability(context.Background(), "qpu", "admin")
	require.NoError(t, err)
	assert.Equal(t, models.AvailabilityUnavailable, status.Availability)
	assert.Equal(t, corruptedDescription, status.Description)
}

func TestGetBackendAvailabilityUnified(t *testing.T) {
	store := &fakeParameterStore{values: map[string]string{statusParameter: `
[backends.all.guest]
status = "available"
description = "Unified queue."
`}}
	v, err := New(store, statusParameter, true, common.NewSilentLogger())
	require.NoError(t, err)

	// Under unification every backend name resolves to "all".
	status, err := v.GetBackendAvailability(context.Background(), "whatever", "guest")
	require.NoError(t, err)
	assert.Equal(t, models.AvailabilityAvailable, status.Availability)
}

func TestAllBackends(t *testing.T) {
	v := newTestView(t, validStatusDocument)

	backends, err := v.AllBackends(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"qpu", "emulator"}, backends)
}

func TestAllBackendsMissingTable(t *testing.T) {
	v := newTestView(t, `something_else = 1`)

	backends, err := v.AllBackends(context.Background())
	require.NoError(t, err)
	assert.Empty(t, backends)
}
