package eventstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/hotstore/internal/idgen"
	"github.com/alfredjeanlab/hotstore/internal/model"
)

// DefaultKey is the backend key of the unified hot log.
const DefaultKey = "events:recent"

// Limits bounds the hot log.
type Limits struct {
	// MaxEvents caps the log length after every create.
	MaxEvents int
	// MaxRetrievals caps the number of fed entries after every feed.
	MaxRetrievals int
	// RetrievalMaxAge is how long a fed entry may stay before the next
	// create removes it.
	RetrievalMaxAge time.Duration
}

// DefaultLimits returns the production limits: 2500 events, 500 fed
// entries, 12 hours.
func DefaultLimits() Limits {
	return Limits{
		MaxEvents:       2500,
		MaxRetrievals:   500,
		RetrievalMaxAge: 12 * time.Hour,
	}
}

// EvictionReason says which rule removed an entry.
type EvictionReason string

const (
	EvictedByCount          EvictionReason = "count"
	EvictedByRetrievalLimit EvictionReason = "retrieval_limit"
	EvictedByAge            EvictionReason = "age"
)

// EvictionHook is called after entries have been removed by a capacity or
// age rule. It runs after the store's writer lock is released, on the
// goroutine of the operation that evicted, so it may call back into the
// store. Hooks from concurrent writers may interleave.
type EvictionHook func(ctx context.Context, reason EvictionReason, evicted []*model.Event)

// Option configures a Store.
type Option func(*Store)

// WithKey sets the backend key of the log.
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithLimits overrides DefaultLimits.
func WithLimits(l Limits) Option {
	return func(s *Store) { s.limits = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used for skipped records and swallowed errors.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithIDGenerator overrides the event id generator.
func WithIDGenerator(f idgen.Func) Option {
	return func(s *Store) { s.newID = f }
}

// WithEvictionHook registers a callback for evicted entries.
func WithEvictionHook(h EvictionHook) Option {
	return func(s *Store) { s.onEvict = h }
}
