package models

import "errors"

// Sentinel errors shared across storage and service layers.
var (
	// ErrJobNotFound reports that no record exists for a job_id.
	ErrJobNotFound = errors.New("job not found")

	// ErrStatusConditionFailed reports that a status-guarded update lost
	// to a concurrent transition.
	ErrStatusConditionFailed = errors.New("job status condition failed")

	// ErrTokenNotFound reports that the token database has no record for
	// a token.
	ErrTokenNotFound = errors.New("token not found")
)
