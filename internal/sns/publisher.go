// Package sns fans analytics events out through an SNS topic.
package sns

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/analytics"
)

// maxBatch is the SNS PublishBatch entry limit.
const maxBatch = 10

// API is the part of the SNS client the publisher uses.
type API interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	PublishBatch(ctx context.Context, params *sns.PublishBatchInput, optFns ...func(*sns.Options)) (*sns.PublishBatchOutput, error)
}

// Config holds SNS configuration.
type Config struct {
	Region   string
	TopicARN string
	Endpoint string // LocalStack
}

// Publisher publishes analytics events to a topic. Subscribers filter on
// the event and campaign_id message attributes.
type Publisher struct {
	client   API
	topicARN string
	logger   *zap.Logger
}

// NewPublisher creates an SNS publisher for the configured topic.
func NewPublisher(ctx context.Context, cfg Config, logger *zap.Logger) (*Publisher, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	logger.Info("sns analytics publisher initialized", zap.String("topic_arn", cfg.TopicARN))
	return newPublisher(client, cfg.TopicARN, logger), nil
}

func newPublisher(client API, topicARN string, logger *zap.Logger) *Publisher {
	return &Publisher{
		client:   client,
		topicARN: topicARN,
		logger:   logger,
	}
}

func attributes(e analytics.Event) map[string]types.MessageAttributeValue {
	attrs := map[string]types.MessageAttributeValue{
		"event": {
			DataType:    aws.String("String"),
			StringValue: aws.String(e.Name),
		},
	}
	if e.CampaignID != "" {
		attrs["campaign_id"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(e.CampaignID),
		}
	}
	return attrs
}

// Send publishes one event.
func (p *Publisher) Send(ctx context.Context, e analytics.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	result, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn:          aws.String(p.topicARN),
		Message:           aws.String(string(payload)),
		MessageAttributes: attributes(e),
	})
	if err != nil {
		return fmt.Errorf("failed to publish to SNS: %w", err)
	}

	p.logger.Debug("event published",
		zap.String("event_id", e.ID),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)
	return nil
}

// SendBatch publishes up to ten events in one call.
func (p *Publisher) SendBatch(ctx context.Context, events []analytics.Event) error {
	if len(events) == 0 {
		return nil
	}
	if len(events) > maxBatch {
		return fmt.Errorf("batch size exceeds SNS limit of %d", maxBatch)
	}

	entries := make([]types.PublishBatchRequestEntry, len(events))
	for i, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal event %d: %w", i, err)
		}
		entries[i] = types.PublishBatchRequestEntry{
			Id:                aws.String(e.ID),
			Message:           aws.String(string(payload)),
			MessageAttributes: attributes(e),
		}
	}

	result, err := p.client.PublishBatch(ctx, &sns.PublishBatchInput{
		TopicArn:                   aws.String(p.topicARN),
		PublishBatchRequestEntries: entries,
	})
	if err != nil {
		return fmt.Errorf("failed to publish batch to SNS: %w", err)
	}
	if len(result.Failed) > 0 {
		return fmt.Errorf("partial batch failure: %d events failed", len(result.Failed))
	}
	return nil
}

// Name identifies the sink.
func (p *Publisher) Name() string { return "sns" }
