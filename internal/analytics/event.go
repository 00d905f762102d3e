// Package analytics records what happened to in-apps and ships the events
// to one or more sinks.
package analytics

import (
	"time"

	"github.com/google/uuid"

	"github.com/lalithlochan/beacon/internal/notification"
)

// Event names.
const (
	EventViewed  = "Notification Viewed"
	EventClicked = "Notification Clicked"
)

// Event is one analytics record.
type Event struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	AccountID      string            `json:"account_id"`
	CampaignID     string            `json:"campaign_id"`
	NotificationID string            `json:"notification_id"`
	CallToAction   string            `json:"cta,omitempty"`
	Params         map[string]any    `json:"params,omitempty"`
	Extras         map[string]string `json:"extras,omitempty"`
	Timestamp      int64             `json:"ts"`
}

// NewEvent builds an event about n.
func NewEvent(name, accountID string, n *notification.Notification, now time.Time) Event {
	return Event{
		ID:             uuid.NewString(),
		Name:           name,
		AccountID:      accountID,
		CampaignID:     n.CampaignID,
		NotificationID: n.ID,
		Params:         n.Params,
		Timestamp:      now.Unix(),
	}
}
