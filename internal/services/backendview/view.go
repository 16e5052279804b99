// Package backendview resolves operator-published backend availability.
// The availability document lives in the parameter store as TOML and is
// re-fetched on every query so operator updates take effect without a
// restart.
package backendview

import (
	"context"
	"fmt"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/samber/lo"

	"github.com/photonqc/scheduler/internal/common"
	"github.com/photonqc/scheduler/internal/interfaces"
	"github.com/photonqc/scheduler/internal/models"
)

const (
	loadFailedDescription = "Failed to load the backend status."
	corruptedDescription  = "Status data is corrupted or invalid."
)

// UnknownBackendError reports a query for a backend the published
// document does not define.
type UnknownBackendError struct {
	Backend string
}

func (e *UnknownBackendError) Error() string {
	return fmt.Sprintf("unknown backend: '%s'", e.Backend)
}

// UnknownRoleError reports a query for a role a known backend does not
// define.
type UnknownRoleError struct {
	Backend string
	Role    string
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("unknown role: '%s' in backend '%s'", e.Role, e.Backend)
}

// View reads and interprets the backend-status parameter.
type View struct {
	mu sync.Mutex

	store         interfaces.ParameterStore
	parameterName string
	unify         bool
	logger        *common.Logger
}

// New creates the view and validates that the status parameter exists
// and parses. A missing or unparseable parameter at construction time
// is fatal.
func New(store interfaces.ParameterStore, parameterName string, unify bool, logger *common.Logger) (*View, error) {
	v := &View{
		store:         store,
		parameterName: parameterName,
		unify:         unify,
		logger:        logger,
	}

	raw, err := store.GetParameter(context.Background(), parameterName)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve the status parameter: %w", err)
	}
	if _, err := parseStatusDocument(raw); err != nil {
		return nil, fmt.Errorf("failed to validate the status parameter: %w", err)
	}

	return v, nil
}

// parseStatusDocument parses the TOML document generically so that a
// malformed entry for one backend does not hide the others.
func parseStatusDocument(raw string) (map[string]any, error) {
	var doc map[string]any
	if err := toml.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// loadStatus fetches and parses the parameter. Any failure yields nil;
// callers treat that as "status unknown".
func (v *View) loadStatus(ctx context.Context) map[string]any {
	raw, err := v.store.GetParameter(ctx, v.parameterName)
	if err != nil {
		v.logger.Error().Err(err).Str("parameter", v.parameterName).Msg("Failed to load the backend status")
		return nil
	}
	doc, err := parseStatusDocument(raw)
	if err != nil {
		v.logger.Error().Err(err).Str("parameter", v.parameterName).Msg("Failed to parse the backend status")
		return nil
	}
	return doc
}

func (v *View) toAvailability(status string) models.Availability {
	switch status {
	case "available":
		return models.AvailabilityAvailable
	case "maintenance":
		return models.AvailabilityMaintenance
	case "unavailable":
		return models.AvailabilityUnavailable
	}
	v.logger.Error().Str("status", status).Msg("Invalid status string, falling back to 'unavailable'")
	return models.AvailabilityUnavailable
}

// GetBackendAvailability returns the published status for a backend and
// role. A missing or corrupted document degrades to unavailable rather
// than erroring; unknown backends and roles are errors the caller can
// tell apart.
func (v *View) GetBackendAvailability(ctx context.Context, backend, role string) (models.ServiceStatus, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	doc := v.loadStatus(ctx)
	if doc == nil {
		return models.ServiceStatus{
			Availability: models.AvailabilityUnavailable,
			Description:  loadFailedDescription,
		}, nil
	}

	backends, ok := doc["backends"].(map[string]any)
	if !ok {
		// Reaching this means whatever updates the parameter wrote a
		// document without the backends table.
		v.logger.Error().Str("parameter", v.parameterName).Msg("Missing 'backends' section in the status parameter")
		return models.ServiceStatus{
			Availability: models.AvailabilityUnavailable,
			Description:  corruptedDescription,
		}, nil
	}

	if v.unify {
		backend = "all"
	}

	roles, ok := backends[backend].(map[string]any)
	if !ok {
		if _, exists := backends[backend]; exists {
			v.logger.Error().Str("backend", backend).Msg("Malformed status entry")
			return models.ServiceStatus{
				Availability: models.AvailabilityUnavailable,
				Description:  corruptedDescription,
			}, nil
		}
		return models.ServiceStatus{}, &UnknownBackendError{Backend: backend}
	}

	entry, ok := roles[role].(map[string]any)
	if !ok {
		if _, exists := roles[role]; exists {
			v.logger.Error().Str("backend", backend).Str("role", role).Msg("Malformed status entry")
			return models.ServiceStatus{
				Availability: models.AvailabilityUnavailable,
				Description:  corruptedDescription,
			}, nil
		}
		return models.ServiceStatus{}, &UnknownRoleError{Backend: backend, Role: role}
	}

	status, statusOK := entry["status"].(string)
	description, descriptionOK := entry["description"].(string)
	if !statusOK || !descriptionOK {
		v.logger.Error().Str("backend", backend).Str("role", role).Msg("Malformed status entry")
		return models.ServiceStatus{
			Availability: models.AvailabilityUnavailable,
			Description:  corruptedDescription,
		}, nil
	}

	return models.ServiceStatus{
		Availability: v.toAvailability(status),
		Description:  description,
	}, nil
}

// AllBackends lists the backend names the published document defines.
// A missing or corrupted document yields an empty list.
func (v *View) AllBackends(ctx context.Context) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	doc := v.loadStatus(ctx)
	if doc == nil {
		return nil, nil
	}

	backends, ok := doc["backends"].(map[string]any)
	if !ok {
		v.logger.Error().Str("parameter", v.parameterName).Msg("Missing 'backends' section in the status parameter")
		return nil, nil
	}

	return lo.Keys(backends), nil
}
