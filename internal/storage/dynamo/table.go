package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/photonqc/scheduler/internal/common"
	"github.com/photonqc/scheduler/internal/models"
)

// Client is the DynamoDB API surface the table uses.
type Client interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// Table is the durable job table. The table is keyed by job_id with a
// global secondary index on status.
type Table struct {
	client      Client
	name        string
	statusIndex string
	logger      *common.Logger
}

// NewTable wires a job table against a DynamoDB client.
func NewTable(client Client, name, statusIndex string, logger *common.Logger) *Table {
	return &Table{
		client:      client,
		name:        name,
		statusIndex: statusIndex,
		logger:      logger,
	}
}

// Describe verifies the table exists.
func (t *Table) Describe(ctx context.Context) error {
	t.logger.Info().Str("table", t.name).Msg("Checking if the job table exists")
	_, err := t.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(t.name),
	})
	if err != nil {
		return fmt.Errorf("failed to describe table %s: %w", t.name, err)
	}
	return nil
}

// PutNewJob stores a fresh record, refusing to overwrite an existing
// job_id.
func (t *Table) PutNewJob(ctx context.Context, metadata *models.JobMetadata) error {
	t.logger.Info().Str("job_id", metadata.JobID).Msg("Adding an item to the job table")
	_, err := t.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(t.name),
		Item:                ToItem(metadata),
		ConditionExpression: aws.String("attribute_not_exists(job_id)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return fmt.Errorf("an item with the job ID %s already exists: %w", metadata.JobID, err)
		}
		return fmt.Errorf("failed to add an item to the job table: %w", err)
	}
	return nil
}

// GetJob fetches one record by job_id.
func (t *Table) GetJob(ctx context.Context, jobID string, consistentRead bool) (*models.JobMetadata, error) {
	t.logger.Info().Str("job_id", jobID).Msg("Retrieving an item from the job table")
	out, err := t.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(t.name),
		Key:            map[string]types.AttributeValue{"job_id": encodeString(jobID)},
		ConsistentRead: aws.Bool(consistentRead),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve the item (job ID: %s): %w", jobID, err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("job %s: %w", jobID, models.ErrJobNotFound)
	}
	return FromItem(out.Item)
}

// JobExists reports whether a record exists, via a count query so the
// item body is never transferred.
func (t *Table) JobExists(ctx context.Context, jobID string) (bool, error) {
	t.logger.Info().Str("job_id", jobID).Msg("Checking if an item exists in the job table")
	out, err := t.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(t.name),
		KeyConditionExpression:    aws.String("job_id = :job_id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":job_id": encodeString(jobID)},
		Select:                    types.SelectCount,
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("failed to check item existence (job ID: %s): %w", jobID, err)
	}
	return out.Count > 0, nil
}

// QueryJobsByStatus returns all records with the given status,
// following pagination.
func (t *Table) QueryJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.JobMetadata, error) {
	t.logger.Info().Str("status", string(status)).Msg("Retrieving items by status from the job table")

	var results []*models.JobMetadata
	var startKey map[string]types.AttributeValue
	for {
		out, err := t.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(t.name),
			IndexName:                 aws.String(t.statusIndex),
			KeyConditionExpression:    aws.String("#status = :status"),
			ExpressionAttributeNames:  map[string]string{"#status": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{":status": encodeString(string(status))},
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query items with status %s: %w", status, err)
		}
		for _, item := range out.Items {
			m, err := FromItem(item)
			if err != nil {
				return nil, err
			}
			results = append(results, m)
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return results, nil
}

// CountJobsByStatus counts the records with the given status.
func (t *Table) CountJobsByStatus(ctx context.Context, status models.JobStatus) (int, error) {
	count := 0
	var startKey map[string]types.AttributeValue
	for {
		out, err := t.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(t.name),
			IndexName:                 aws.String(t.statusIndex),
			KeyConditionExpression:    aws.String("#status = :status"),
			ExpressionAttributeNames:  map[string]string{"#status": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{":status": encodeString(string(status))},
			Select:                    types.SelectCount,
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return 0, fmt.Errorf("failed to count items with status %s: %w", status, err)
		}
		count += int(out.Count)
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return count, nil
}

// buildUpdateExpression renders a SET expression over the update map.
// Keys are sorted so the expression is deterministic.
func buildUpdateExpression(updates map[string]any) (string, map[string]string, map[string]types.AttributeValue, error) {
	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	assignments := make([]string, 0, len(keys))
	names := make(map[string]string, len(keys))
	values := make(map[string]types.AttributeValue, len(keys))
	for _, k := range keys {
		encoded, err := encodeValue(updates[k])
		if err != nil {
			return "", nil, nil, fmt.Errorf("field %s: %w", k, err)
		}
		assignments = append(assignments, fmt.Sprintf("#%s = :%s", k, k))
		names["#"+k] = k
		values[":"+k] = encoded
	}
	return "SET " + strings.Join(assignments, ", "), names, values, nil
}

// UpdateJob applies the field updates to an existing record.
func (t *Table) UpdateJob(ctx context.Context, jobID string, updates map[string]any) error {
	expression, names, values, err := buildUpdateExpression(updates)
	if err != nil {
		return err
	}

	t.logger.Info().Str("job_id", jobID).Msg("Updating an item in the job table")
	_, err = t.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(t.name),
		Key:                       map[string]types.AttributeValue{"job_id": encodeString(jobID)},
		UpdateExpression:          aws.String(expression),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(job_id)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return fmt.Errorf("job %s: %w", jobID, models.ErrJobNotFound)
		}
		return fmt.Errorf("failed to update the item (job ID: %s): %w", jobID, err)
	}
	return nil
}

// UpdateJobIfStatus applies the field updates only while the stored
// status equals expected.
func (t *Table) UpdateJobIfStatus(ctx context.Context, jobID string, expected models.JobStatus, updates map[string]any) error {
	expression, names, values, err := buildUpdateExpression(updates)
	if err != nil {
		return err
	}
	names["#status_guard"] = "status"
	values[":status_guard"] = encodeString(string(expected))

	t.logger.Info().
		Str("job_id", jobID).
		Str("expected_status", string(expected)).
		Msg("Updating an item in the job table under a status guard")
	_, err = t.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(t.name),
		Key:                       map[string]types.AttributeValue{"job_id": encodeString(jobID)},
		UpdateExpression:          aws.String(expression),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("#status_guard = :status_guard"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return fmt.Errorf("job %s: %w", jobID, models.ErrStatusConditionFailed)
		}
		return fmt.Errorf("failed to update the item (job ID: %s): %w", jobID, err)
	}
	return nil
}
