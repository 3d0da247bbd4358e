// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// The hubspot-meeting-sync service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// dynamoDBPutter is the subset of the DynamoDB client used to record actions.
type dynamoDBPutter interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoDBActionDispatcher writes one item per action to a DynamoDB table.
type DynamoDBActionDispatcher struct {
	client    dynamoDBPutter
	tableName string
	logger    *slog.Logger
	now       func() time.Time
}

// NewDynamoDBActionDispatcher creates a DynamoDB action dispatcher.
func NewDynamoDBActionDispatcher(client dynamoDBPutter, tableName string, logger *slog.Logger) *DynamoDBActionDispatcher {
	return &DynamoDBActionDispatcher{
		client:    client,
		tableName: tableName,
		logger:    logger,
		now:       time.Now,
	}
}

// newDynamoDBClient creates a DynamoDB client from the environment / instance
// profile, optionally assuming a role and targeting an alternate endpoint.
func newDynamoDBClient(ctx context.Context, cfg *Config) (*dynamodb.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// If a role ARN is configured, assume it via STS for cross-account access.
	if cfg.AssumeRoleARN != "" {
		stsClient := sts.NewFromConfig(awsCfg)
		awsCfg.Credentials = stscreds.NewAssumeRoleProvider(stsClient, cfg.AssumeRoleARN)
	}

	var opts []func(*dynamodb.Options)
	if cfg.DynamoDBEndpoint != "" {
		// DynamoDB Local accepts any credentials, but the SDK still needs some.
		if os.Getenv("AWS_ACCESS_KEY_ID") == "" && cfg.AssumeRoleARN == "" {
			awsCfg.Credentials = credentials.NewStaticCredentialsProvider("local", "local", "")
		}
		opts = append(opts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
		})
	}

	return dynamodb.NewFromConfig(awsCfg, opts...), nil
}

// ProcessAction implements ActionDispatcher.
func (d *DynamoDBActionDispatcher) ProcessAction(ctx context.Context, kind ActionKind, payload ActionPayload) error {
	event, err := newActionEvent(kind, payload, d.now())
	if err != nil {
		return err
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      actionEventItem(event),
	})
	if err != nil {
		return fmt.Errorf("failed to put action item into %s: %w", d.tableName, err)
	}

	d.logger.With("table", d.tableName, "event_id", event.EventID, "meeting_id", payload.MeetingID).
		DebugContext(ctx, "stored meeting action")

	return nil
}

// actionEventItem converts an event to a DynamoDB item of string attributes.
func actionEventItem(event ActionEvent) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"event_id":      &types.AttributeValueMemberS{Value: event.EventID},
		"action_type":   &types.AttributeValueMemberS{Value: event.ActionType.String()},
		"meeting_id":    &types.AttributeValueMemberS{Value: event.Payload.MeetingID},
		"title":         &types.AttributeValueMemberS{Value: event.Payload.Title},
		"start_time":    &types.AttributeValueMemberS{Value: event.Payload.StartTime},
		"end_time":      &types.AttributeValueMemberS{Value: event.Payload.EndTime},
		"created_by":    &types.AttributeValueMemberS{Value: event.Payload.CreatedBy},
		"contact_email": &types.AttributeValueMemberS{Value: event.Payload.ContactEmail},
		"emitted_at":    &types.AttributeValueMemberS{Value: event.EmittedAt.Format(time.RFC3339Nano)},
	}
}
