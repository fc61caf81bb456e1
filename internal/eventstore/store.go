// Package eventstore keeps a bounded, newest-first log of bot events on top
// of a store.Log backend.
//
// The log holds two populations: native events written through Create, and
// fed events re-imported through Feed and tagged with a retrieval stamp.
// Native events are bounded by count on every create. Fed events are bounded
// by count on every feed and by age on every create.
package eventstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alfredjeanlab/hotstore/internal/codec"
	"github.com/alfredjeanlab/hotstore/internal/idgen"
	"github.com/alfredjeanlab/hotstore/internal/model"
	"github.com/alfredjeanlab/hotstore/internal/store"
)

var (
	// ErrBackendUnavailable is returned when the backend cannot be reached.
	// Operations are not retried.
	ErrBackendUnavailable = errors.New("event store backend unavailable")

	// ErrNotFound is returned by Get when no event has the requested id.
	ErrNotFound = errors.New("event not found")
)

var tracer = otel.Tracer("github.com/alfredjeanlab/hotstore/internal/eventstore")

// CreateParams are the caller-supplied fields of a new event.
type CreateParams struct {
	Type     string
	Data     map[string]any
	BotID    string
	Severity int
}

// Stats summarizes the current contents of the log.
type Stats struct {
	Total      int    `json:"total"`
	Retrievals int    `json:"retrievals"`
	Expired    int    `json:"expired"`
	Malformed  int    `json:"malformed"`
	Limits     Limits `json:"limits"`
}

// Store is the event store. Mutations made through one Store are serialized;
// reads scan the backend without locking. Other processes writing the same
// key are not coordinated with.
type Store struct {
	log     store.Log
	key     string
	limits  Limits
	policy  Policy
	now     func() time.Time
	newID   idgen.Func
	logger  *slog.Logger
	onEvict EvictionHook

	writeMu sync.Mutex
	// pending collects evictions made while writeMu is held. They are handed
	// to onEvict once the lock is released.
	pending []eviction
}

type eviction struct {
	reason EvictionReason
	events []*model.Event
}

// New returns a Store persisting through log.
func New(log store.Log, opts ...Option) *Store {
	s := &Store{
		log:    log,
		key:    DefaultKey,
		limits: DefaultLimits(),
		now:    time.Now,
		newID:  idgen.NewEventID,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.policy = Policy{Limits: s.limits}
	return s
}

// Limits returns the limits the store enforces.
func (s *Store) Limits() Limits { return s.limits }

// Key returns the backend key of the log.
func (s *Store) Key() string { return s.key }

// Ping checks backend connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.log.Ping(ctx); err != nil {
		return s.wrap("ping", err)
	}
	return nil
}

// Create appends a native event at the head of the log, trims the log to
// MaxEvents and removes expired fed events. It returns the event exactly as
// stored.
//
// A failure of the age cleanup is logged and does not fail the create.
func (s *Store) Create(ctx context.Context, p CreateParams) (_ *model.Event, err error) {
	ctx, span := tracer.Start(ctx, "eventstore.Create",
		trace.WithAttributes(attribute.String("event.type", p.Type)))
	defer func() { endSpan(span, err) }()

	if err := model.ValidateCreate(p.Type, p.Severity); err != nil {
		return nil, err
	}
	id, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}
	data := p.Data
	if data == nil {
		data = map[string]any{}
	}
	ev := &model.Event{
		ID:        id,
		BotID:     p.BotID,
		Type:      p.Type,
		Data:      data,
		Severity:  p.Severity,
		Timestamp: model.Millis(s.now()),
	}
	raw, err := codec.Encode(ev)
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}

	s.writeMu.Lock()
	defer s.unlock(ctx)

	if err := s.log.PushHead(ctx, s.key, raw); err != nil {
		return nil, s.wrap("create", err)
	}
	if err := s.trimTo(ctx, s.limits.MaxEvents); err != nil {
		return nil, s.wrap("create", err)
	}
	if n, err := s.cleanupExpired(ctx); err != nil {
		s.logger.Warn("expired retrieval cleanup failed", "key", s.key, "err", err)
	} else if n > 0 {
		s.logger.Debug("removed expired retrievals", "key", s.key, "count", n)
	}
	span.SetAttributes(attribute.String("event.id", id))
	return ev, nil
}

// List returns the events matching f. An id filter is a lookup: the first
// entry in log order with that id is returned on its own and every other
// filter field is ignored. Otherwise matches are stably sorted by f.OrderBy
// and truncated to f.Count (unbounded when <= 0). Malformed entries are
// skipped.
func (s *Store) List(ctx context.Context, f model.EventFilter) (events []*model.Event, err error) {
	ctx, span := tracer.Start(ctx, "eventstore.List")
	defer func() { endSpan(span, err) }()

	entries, _, err := s.scan(ctx)
	if err != nil {
		return nil, s.wrap("list", err)
	}

	events = []*model.Event{}
	if f.ID != "" {
		for _, e := range entries {
			if e.event.ID == f.ID {
				events = append(events, e.event)
				break
			}
		}
		return events, nil
	}
	for _, e := range entries {
		if f.Matches(e.event) {
			events = append(events, e.event)
		}
	}

	sortEvents(events, f.OrderBy, f.OrderDesc)
	if f.Count > 0 && len(events) > f.Count {
		events = events[:f.Count]
	}
	span.SetAttributes(attribute.Int("events.count", len(events)))
	return events, nil
}

// Get returns the event with the given id.
func (s *Store) Get(ctx context.Context, id string) (*model.Event, error) {
	events, err := s.List(ctx, model.EventFilter{ID: id})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return events[0], nil
}

// Feed imports previously stored events. Every entry is stamped with the
// current time as its retrieval. Entries without an id get a fresh one,
// entries without a timestamp get the current time, and severity is clamped
// into range. If the import would push the fed population past
// MaxRetrievals, the oldest fed entries are evicted first. A batch larger
// than MaxRetrievals is cut to its last MaxRetrievals entries, the ones that
// land nearest the head, and the rest are dropped. It returns how many
// entries were written.
//
// Feed fails closed: on any backend error it logs and reports 0.
func (s *Store) Feed(ctx context.Context, batch []*model.Event) (added int) {
	ctx, span := tracer.Start(ctx, "eventstore.Feed",
		trace.WithAttributes(attribute.Int("batch.size", len(batch))))
	var ferr error
	defer func() {
		span.SetAttributes(attribute.Int("events.added", added))
		endSpan(span, ferr)
	}()

	if len(batch) == 0 {
		return 0
	}

	now := model.Millis(s.now())
	raws := make([]string, 0, len(batch))
	for _, in := range batch {
		if in == nil {
			continue
		}
		ev := in.Clone()
		if ev.ID == "" {
			id, err := s.newID()
			if err != nil {
				ferr = err
				s.logger.Error("feed: id generation failed", "err", err)
				return 0
			}
			ev.ID = id
		}
		if ev.Timestamp == 0 {
			ev.Timestamp = now
		}
		if ev.Data == nil {
			ev.Data = map[string]any{}
		}
		ev.Severity = model.ClampSeverity(ev.Severity)
		stamp := now
		ev.Retrieval = &stamp

		raw, err := codec.Encode(ev)
		if err != nil {
			s.logger.Warn("feed: skipping unencodable event", "id", ev.ID, "err", err)
			continue
		}
		raws = append(raws, raw)
	}
	if keep := s.policy.Admit(len(raws)); keep < len(raws) {
		s.logger.Warn("feed: batch exceeds retrieval limit, dropping oldest entries",
			"key", s.key, "batch", len(raws), "kept", keep)
		raws = raws[len(raws)-keep:]
	}
	if len(raws) == 0 {
		return 0
	}

	s.writeMu.Lock()
	defer s.unlock(ctx)

	if err := s.evictOldestRetrievals(ctx, len(raws)); err != nil {
		ferr = err
		s.logger.Error("feed: retrieval eviction failed", "key", s.key, "err", err)
		return 0
	}
	if err := s.log.PushHead(ctx, s.key, raws...); err != nil {
		ferr = err
		s.logger.Error("feed: push failed", "key", s.key, "err", err)
		return 0
	}
	if err := s.trimTo(ctx, s.limits.MaxEvents+s.limits.MaxRetrievals); err != nil {
		ferr = err
		s.logger.Error("feed: trim failed", "key", s.key, "err", err)
		return 0
	}
	return len(raws)
}

// Delete removes the first entry whose id matches. It reports whether an
// entry was removed.
func (s *Store) Delete(ctx context.Context, id string) (removed bool, err error) {
	ctx, span := tracer.Start(ctx, "eventstore.Delete",
		trace.WithAttributes(attribute.String("event.id", id)))
	defer func() { endSpan(span, err) }()

	s.writeMu.Lock()
	defer s.unlock(ctx)

	entries, _, err := s.scan(ctx)
	if err != nil {
		return false, s.wrap("delete", err)
	}
	for _, e := range entries {
		if e.event.ID != id {
			continue
		}
		removed, err = s.log.RemoveFirst(ctx, s.key, e.raw)
		if err != nil {
			return false, s.wrap("delete", err)
		}
		return removed, nil
	}
	return false, nil
}

// Update overwrites the supplied fields of the first entry whose id matches
// and writes it back at the same position. It reports whether an entry was
// found.
func (s *Store) Update(ctx context.Context, id string, u model.EventUpdate) (found bool, err error) {
	ctx, span := tracer.Start(ctx, "eventstore.Update",
		trace.WithAttributes(attribute.String("event.id", id)))
	defer func() { endSpan(span, err) }()

	if err := model.ValidateUpdate(u); err != nil {
		return false, err
	}

	s.writeMu.Lock()
	defer s.unlock(ctx)

	entries, _, err := s.scan(ctx)
	if err != nil {
		return false, s.wrap("update", err)
	}
	for _, e := range entries {
		if e.event.ID != id {
			continue
		}
		u.Apply(e.event)
		raw, err := codec.Encode(e.event)
		if err != nil {
			return false, fmt.Errorf("update %s: %w", id, err)
		}
		if err := s.log.SetAt(ctx, s.key, e.index, raw); err != nil {
			return false, s.wrap("update", err)
		}
		return true, nil
	}
	return false, nil
}

// Stats scans the log and counts its populations.
func (s *Store) Stats(ctx context.Context) (st Stats, err error) {
	ctx, span := tracer.Start(ctx, "eventstore.Stats")
	defer func() { endSpan(span, err) }()

	entries, malformed, err := s.scan(ctx)
	if err != nil {
		return Stats{}, s.wrap("stats", err)
	}
	st = Stats{
		Total:     len(entries) + malformed,
		Malformed: malformed,
		Expired:   len(s.policy.Expired(entries, s.now())),
		Limits:    s.limits,
	}
	for _, e := range entries {
		if e.event.IsRetrieved() {
			st.Retrievals++
		}
	}
	return st, nil
}

// Snapshot returns every decodable entry in log order, newest first.
func (s *Store) Snapshot(ctx context.Context) (events []*model.Event, err error) {
	ctx, span := tracer.Start(ctx, "eventstore.Snapshot")
	defer func() { endSpan(span, err) }()

	entries, _, err := s.scan(ctx)
	if err != nil {
		return nil, s.wrap("snapshot", err)
	}
	return eventsOf(entries), nil
}

// cleanupExpired removes every fed entry older than RetrievalMaxAge and
// returns how many were removed. Callers hold writeMu.
func (s *Store) cleanupExpired(ctx context.Context) (int, error) {
	entries, _, err := s.scan(ctx)
	if err != nil {
		return 0, err
	}
	victims := s.policy.Expired(entries, s.now())
	removed, err := s.remove(ctx, victims)
	s.evicted(EvictedByAge, removed)
	return len(removed), err
}

// evictOldestRetrievals makes room for incoming fed entries. Callers hold
// writeMu.
func (s *Store) evictOldestRetrievals(ctx context.Context, incoming int) error {
	entries, _, err := s.scan(ctx)
	if err != nil {
		return err
	}
	victims := s.policy.Overflow(entries, incoming)
	removed, err := s.remove(ctx, victims)
	s.evicted(EvictedByRetrievalLimit, removed)
	return err
}

// trimTo keeps the newest limit entries. When an eviction hook is set the
// tail is read first so the hook can see what was dropped.
func (s *Store) trimTo(ctx context.Context, limit int) error {
	var tail []string
	if s.onEvict != nil {
		var err error
		tail, err = s.log.Range(ctx, s.key, int64(limit), -1)
		if err != nil {
			return err
		}
	}
	if err := s.log.Trim(ctx, s.key, 0, int64(limit)-1); err != nil {
		return err
	}
	if len(tail) > 0 {
		dropped := make([]*model.Event, 0, len(tail))
		for _, raw := range tail {
			if ev, err := codec.Decode(raw); err == nil {
				dropped = append(dropped, ev)
			}
		}
		s.evicted(EvictedByCount, dropped)
	}
	return nil
}

// remove deletes victims by value and returns the events actually removed.
func (s *Store) remove(ctx context.Context, victims []entry) ([]*model.Event, error) {
	var removed []*model.Event
	for _, v := range victims {
		ok, err := s.log.RemoveFirst(ctx, s.key, v.raw)
		if err != nil {
			return removed, err
		}
		if ok {
			removed = append(removed, v.event)
		}
	}
	return removed, nil
}

// evicted queues events for the eviction hook. Callers hold writeMu.
func (s *Store) evicted(reason EvictionReason, events []*model.Event) {
	if s.onEvict == nil || len(events) == 0 {
		return
	}
	s.pending = append(s.pending, eviction{reason: reason, events: events})
}

// unlock releases writeMu and then runs the eviction hook for everything
// queued while it was held, so a slow hook never blocks other writers.
func (s *Store) unlock(ctx context.Context) {
	pending := s.pending
	s.pending = nil
	s.writeMu.Unlock()
	for _, ev := range pending {
		s.onEvict(ctx, ev.reason, ev.events)
	}
}

// scan reads and decodes the whole log. Undecodable entries are logged and
// counted, never returned.
func (s *Store) scan(ctx context.Context) ([]entry, int, error) {
	raws, err := s.log.Range(ctx, s.key, 0, -1)
	if err != nil {
		return nil, 0, err
	}
	entries := make([]entry, 0, len(raws))
	malformed := 0
	for i, raw := range raws {
		ev, err := codec.Decode(raw)
		if err != nil {
			malformed++
			s.logger.Warn("skipping malformed log entry", "key", s.key, "index", i, "err", err)
			continue
		}
		entries = append(entries, entry{index: int64(i), raw: raw, event: ev})
	}
	return entries, malformed, nil
}

// wrap tags backend connectivity failures with ErrBackendUnavailable. Other
// errors are returned with op context only.
func (s *Store) wrap(op string, err error) error {
	if errors.Is(err, store.ErrUnavailable) {
		return fmt.Errorf("%s: %w: %w", op, ErrBackendUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func sortEvents(events []*model.Event, by model.OrderBy, desc bool) {
	key := func(e *model.Event) int64 { return e.Timestamp }
	if by == model.OrderBySeverity {
		key = func(e *model.Event) int64 { return int64(e.Severity) }
	}
	slices.SortStableFunc(events, func(a, b *model.Event) int {
		ka, kb := key(a), key(b)
		if desc {
			ka, kb = kb, ka
		}
		switch {
		case ka < kb:
			return -1
		case ka > kb:
			return 1
		}
		return 0
	})
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
