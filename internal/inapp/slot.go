package inapp

import (
	"sync"

	"github.com/lalithlochan/beacon/internal/notification"
)

// slot owns the in-app on screen and the display attempt in progress. At
// most one of the two is set at a time.
type slot struct {
	mu       sync.Mutex
	current  *notification.Notification
	inFlight bool
}

// begin starts an attempt. It fails while an in-app is showing or another
// attempt is running.
func (s *slot) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil || s.inFlight {
		return false
	}
	s.inFlight = true
	return true
}

// end finishes an attempt that showed nothing.
func (s *slot) end() {
	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()
}

// occupy puts n on screen and finishes the attempt. It fails if another
// in-app is already showing.
func (s *slot) occupy(n *notification.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		return false
	}
	s.current = n
	s.inFlight = false
	return true
}

// busy reports whether an in-app is showing.
func (s *slot) busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// release clears the slot if it holds campaignID, returning what it held.
func (s *slot) release(campaignID string) (*notification.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.CampaignID != campaignID {
		return s.current, false
	}
	n := s.current
	s.current = nil
	return n, true
}

func (s *slot) get() *notification.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
