// Package tokendb is the client for the token database service.
package tokendb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/photonqc/scheduler/internal/common"
	"github.com/photonqc/scheduler/internal/models"
)

// DefaultRateLimit caps outbound calls to the token database.
const DefaultRateLimit = 10 // requests per second

// Operation statuses the token database returns.
const (
	statusOK          = "OK"
	statusNotFound    = "NOT_FOUND"
	statusUnspecified = "UNSPECIFIED"
)

type getTokenInfoRequest struct {
	Token string `json:"token"`
}

type wireTokenInfo struct {
	Role string `json:"role"`
	Name string `json:"name"`
	// ExpiresAt in epoch seconds; zero means the token never expires.
	ExpiresAt int64 `json:"expires_at"`
}

type getTokenInfoResponse struct {
	Status    string         `json:"status"`
	TokenInfo *wireTokenInfo `json:"token_info,omitempty"`
	Detail    string         `json:"detail,omitempty"`
}

// Client calls the token database over HTTP.
type Client struct {
	address    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *common.Logger
}

// NewClient creates a token database client for the given address.
func NewClient(address string, timeout time.Duration, logger *common.Logger) *Client {
	return &Client{
		address:    address,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:     logger,
	}
}

// GetTokenInfo resolves a token. Returns models.ErrTokenNotFound when
// the database has no record; any other non-OK status is an error.
// Expiry instants are reported in the scheduler time zone.
func (c *Client) GetTokenInfo(ctx context.Context, token string) (*models.TokenInfo, error) {
	body, err := json.Marshal(getTokenInfoRequest{Token: token})
	if err != nil {
		return nil, fmt.Errorf("failed to encode token request: %w", err)
	}

	c.logger.Info().Msg("Getting token info from the token database")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.address+"/v1/get-token-info", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get token info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token database returned HTTP %d", resp.StatusCode)
	}

	var out getTokenInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	switch out.Status {
	case statusOK:
		if out.TokenInfo == nil {
			return nil, fmt.Errorf("token database returned OK without token info")
		}
		info := &models.TokenInfo{
			Role: out.TokenInfo.Role,
			Name: out.TokenInfo.Name,
		}
		if out.TokenInfo.ExpiresAt > 0 {
			expiresAt := time.Unix(out.TokenInfo.ExpiresAt, 0).In(schedulerLocation())
			info.ExpiresAt = &expiresAt
		}
		return info, nil
	case statusNotFound:
		return nil, models.ErrTokenNotFound
	case statusUnspecified:
		return nil, fmt.Errorf("token database returned an unexpected status (message: %s)", out.Detail)
	default:
		return nil, fmt.Errorf("token database returned an unknown status (status: %s, message: %s)", out.Status, out.Detail)
	}
}

func schedulerLocation() *time.Location {
	loc, err := time.LoadLocation(common.SchedulerTimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
