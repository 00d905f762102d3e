package sns

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/analytics"
)

type fakeAPI struct {
	published []*sns.PublishInput
	batches   []*sns.PublishBatchInput
	failIDs   map[string]bool
}

func (f *fakeAPI) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.published = append(f.published, in)
	return &sns.PublishOutput{MessageId: aws.String("m-1")}, nil
}

func (f *fakeAPI) PublishBatch(_ context.Context, in *sns.PublishBatchInput, _ ...func(*sns.Options)) (*sns.PublishBatchOutput, error) {
	f.batches = append(f.batches, in)
	out := &sns.PublishBatchOutput{}
	for _, e := range in.PublishBatchRequestEntries {
		if f.failIDs[aws.ToString(e.Id)] {
			out.Failed = append(out.Failed, types.BatchResultErrorEntry{Id: e.Id})
		}
	}
	return out, nil
}

func TestPublisher_Send(t *testing.T) {
	api := &fakeAPI{}
	p := newPublisher(api, "arn:aws:sns:us-east-1:123456789:inapp-events", zap.NewNop())

	err := p.Send(context.Background(), analytics.Event{ID: "e-1", Name: analytics.EventViewed, CampaignID: "c-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(api.published) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(api.published))
	}
	in := api.published[0]
	if got := aws.ToString(in.MessageAttributes["campaign_id"].StringValue); got != "c-1" {
		t.Errorf("campaign_id attribute mismatch: got %s", got)
	}

	var decoded analytics.Event
	if err := json.Unmarshal([]byte(aws.ToString(in.Message)), &decoded); err != nil {
		t.Fatalf("failed to unmarshal message: %v", err)
	}
	if decoded.Name != analytics.EventViewed {
		t.Errorf("event name mismatch: got %s", decoded.Name)
	}
}

func TestAttributes_OmitEmptyCampaign(t *testing.T) {
	attrs := attributes(analytics.Event{Name: analytics.EventViewed})

	if _, ok := attrs["campaign_id"]; ok {
		t.Error("campaign_id should be omitted when empty")
	}
	if _, ok := attrs["event"]; !ok {
		t.Error("event attribute missing")
	}
}

func TestPublisher_SendBatch(t *testing.T) {
	api := &fakeAPI{failIDs: map[string]bool{"e-2": true}}
	p := newPublisher(api, "arn", zap.NewNop())

	if err := p.SendBatch(context.Background(), nil); err != nil {
		t.Fatalf("empty batch: unexpected error: %v", err)
	}

	events := make([]analytics.Event, 11)
	for i := range events {
		events[i] = analytics.Event{ID: fmt.Sprintf("e-%d", i)}
	}
	if err := p.SendBatch(context.Background(), events); err == nil {
		t.Error("expected batch limit error")
	}
	if len(api.batches) != 0 {
		t.Errorf("oversized batch must not be sent")
	}

	if err := p.SendBatch(context.Background(), events[:3]); err == nil {
		t.Error("expected partial failure error")
	}
	if err := p.SendBatch(context.Background(), events[:2]); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
