// Package store defines the persisted key/value and list contract the engine
// keeps its queue, backlog and counters in.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key or list element does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is an opaque persisted store. Integer values and lists live in
// separate key spaces per implementation; callers never reuse a key across
// both.
type Store interface {
	// GetInt returns ErrNotFound when key was never written.
	GetInt(ctx context.Context, key string) (int64, error)
	PutInt(ctx context.Context, key string, value int64) error
	// Incr adds one and returns the new value. A missing key counts from 0.
	Incr(ctx context.Context, key string) (int64, error)

	PushBack(ctx context.Context, key string, items ...[]byte) error
	PushFront(ctx context.Context, key string, item []byte) error
	// PopFront returns ErrNotFound when the list is empty.
	PopFront(ctx context.Context, key string) ([]byte, error)
	Len(ctx context.Context, key string) (int64, error)
	Range(ctx context.Context, key string) ([][]byte, error)

	Delete(ctx context.Context, key string) error
}
