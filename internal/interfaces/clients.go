package interfaces

import (
	"context"

	"github.com/photonqc/scheduler/internal/models"
)

// TokenVerifier resolves API tokens against the token database.
type TokenVerifier interface {
	// GetTokenInfo returns the record for a token. Returns
	// models.ErrTokenNotFound when the database has no such token; any
	// other error means the lookup itself failed.
	GetTokenInfo(ctx context.Context, token string) (*models.TokenInfo, error)
}
