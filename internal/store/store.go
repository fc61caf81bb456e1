// Package store defines the ordered-log contract the event store persists
// through. Implementations live in subpackages.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable marks failures to reach the backend. Implementations wrap
// every transport error with it so callers can tell connectivity problems
// apart from decoding or policy errors.
var ErrUnavailable = errors.New("backend unavailable")

// Log is a key-value store with list semantics. Index 0 is the head (newest
// entry). Negative indices count from the tail, -1 being the last entry.
//
// Calls are independent: nothing here is atomic across calls.
type Log interface {
	// PushHead inserts values one at a time at the head of the list, so the
	// last value ends up at index 0.
	PushHead(ctx context.Context, key string, values ...string) error

	// Trim keeps only the entries in [start, stop] (inclusive).
	Trim(ctx context.Context, key string, start, stop int64) error

	// Range returns entries in [start, stop] (inclusive), head to tail.
	Range(ctx context.Context, key string, start, stop int64) ([]string, error)

	// RemoveFirst removes the entry nearest the head equal to value and
	// reports whether one was removed.
	RemoveFirst(ctx context.Context, key, value string) (bool, error)

	// SetAt replaces the entry at index.
	SetAt(ctx context.Context, key string, index int64, value string) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Unavailable wraps err with ErrUnavailable, describing the failed op.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
