package sqs

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"
)

// FeedMessage is one batch of in-apps the server sends down.
type FeedMessage struct {
	AccountID string `json:"account_id"`
	// InApps are shown as they arrive.
	InApps []json.RawMessage `json:"inapp_notifs"`
	// ClientSide replaces the in-apps evaluated on device.
	ClientSide []json.RawMessage `json:"inapp_notifs_cs,omitempty"`
	// AppLaunchServerSide is evaluated once against App Launched.
	AppLaunchServerSide []json.RawMessage `json:"inapp_notifs_applaunched,omitempty"`
	// Global caps, when the server changes them.
	MaxPerSession *int  `json:"imc,omitempty"`
	MaxPerDay     *int  `json:"imp,omitempty"`
	SentAt        int64 `json:"sent_at"`
}

// Delivery is a received message and the handle to acknowledge it.
type Delivery struct {
	Message       *FeedMessage
	ReceiptHandle string
	MessageID     string
	// ReceiveCount is how many times SQS has handed the message out.
	ReceiveCount int
}

// Consumer reads the in-app feed.
type Consumer struct {
	client   API
	queueURL string
	logger   *zap.Logger
}

// NewConsumer creates a new SQS consumer.
func NewConsumer(ctx context.Context, cfg Config, logger *zap.Logger) (*Consumer, error) {
	client, err := newClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("sqs feed consumer initialized",
		zap.String("queue_url", cfg.QueueURL),
	)
	return newConsumer(client, cfg.QueueURL, logger), nil
}

func newConsumer(client API, queueURL string, logger *zap.Logger) *Consumer {
	return &Consumer{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// Receive long-polls for up to ten feed messages. Messages that cannot be
// decoded are deleted so they do not come back.
func (c *Consumer) Receive(ctx context.Context) ([]Delivery, error) {
	input := &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     20,
		VisibilityTimeout:   60,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	}

	result, err := c.client.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("sqs receive failed: %w", err)
	}

	deliveries := make([]Delivery, 0, len(result.Messages))
	for _, m := range result.Messages {
		var msg FeedMessage
		if err := json.Unmarshal([]byte(aws.ToString(m.Body)), &msg); err != nil {
			c.logger.Error("failed to unmarshal feed message",
				zap.String("message_id", aws.ToString(m.MessageId)),
				zap.Error(err),
			)
			if err := c.Delete(ctx, aws.ToString(m.ReceiptHandle)); err != nil {
				c.logger.Warn("failed to delete malformed message", zap.Error(err))
			}
			continue
		}
		deliveries = append(deliveries, Delivery{
			Message:       &msg,
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			MessageID:     aws.ToString(m.MessageId),
			ReceiveCount:  receiveCount(m),
		})
	}
	return deliveries, nil
}

// Delete removes a message from SQS after successful processing.
func (c *Consumer) Delete(ctx context.Context, receiptHandle string) error {
	input := &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	}

	if _, err := c.client.DeleteMessage(ctx, input); err != nil {
		return fmt.Errorf("sqs delete failed: %w", err)
	}
	return nil
}

// ChangeVisibility sets when a message becomes visible again, letting a
// failed batch be retried sooner than the default timeout.
func (c *Consumer) ChangeVisibility(ctx context.Context, receiptHandle string, seconds int32) error {
	input := &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(c.queueURL),
		ReceiptHandle:     aws.String(receiptHandle),
		VisibilityTimeout: seconds,
	}

	if _, err := c.client.ChangeMessageVisibility(ctx, input); err != nil {
		return fmt.Errorf("sqs change visibility failed: %w", err)
	}
	return nil
}

func receiveCount(m types.Message) int {
	n, err := strconv.Atoi(m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)])
	if err != nil || n < 1 {
		return 1
	}
	return n
}
