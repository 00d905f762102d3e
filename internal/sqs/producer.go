package sqs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/analytics"
)

// Producer sends analytics events to SQS.
type Producer struct {
	client   API
	queueURL string
	logger   *zap.Logger
}

// NewProducer creates a new SQS producer.
func NewProducer(ctx context.Context, cfg Config, logger *zap.Logger) (*Producer, error) {
	client, err := newClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("sqs analytics producer initialized",
		zap.String("queue_url", cfg.QueueURL),
	)
	return newProducer(client, cfg.QueueURL, logger), nil
}

func newProducer(client API, queueURL string, logger *zap.Logger) *Producer {
	return &Producer{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// Send enqueues one event.
func (p *Producer) Send(ctx context.Context, e analytics.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event": {
				DataType:    aws.String("String"),
				StringValue: aws.String(e.Name),
			},
		},
	}

	result, err := p.client.SendMessage(ctx, input)
	if err != nil {
		p.logger.Error("failed to send event to sqs",
			zap.Error(err),
			zap.String("event_id", e.ID),
		)
		return fmt.Errorf("sqs send failed: %w", err)
	}

	p.logger.Debug("event sent to sqs",
		zap.String("event_id", e.ID),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)
	return nil
}

// Name identifies the sink.
func (p *Producer) Name() string { return "sqs" }
