// Package ssmstore reads configuration parameters from SSM Parameter
// Store. The scheduler resolves store names (job bucket, job table)
// and the backend-status document through it.
package ssmstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/photonqc/scheduler/internal/common"
)

// Client is the SSM API surface the store uses.
type Client interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Store fetches parameters by name.
type Store struct {
	client Client
	logger *common.Logger
}

// NewStore wires a parameter store against an SSM client.
func NewStore(client Client, logger *common.Logger) *Store {
	return &Store{client: client, logger: logger}
}

// GetParameter returns the decrypted value of a parameter.
func (s *Store) GetParameter(ctx context.Context, name string) (string, error) {
	s.logger.Info().Str("parameter", name).Msg("Retrieving a parameter from SSM")
	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get parameter %s: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s has no value", name)
	}
	return aws.ToString(out.Parameter.Value), nil
}
