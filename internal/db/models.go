package db

import "time"

// ListItem is one row of inapp_list_items. Items of a list are ordered by
// Position; front insertions take positions below the current minimum.
type ListItem struct {
	ID        int64     `json:"id"`
	AccountID string    `json:"account_id"`
	ListKey   string    `json:"list_key"`
	Position  int64     `json:"position"`
	Item      []byte    `json:"item"`
	CreatedAt time.Time `json:"created_at"`
}
