// Package sync rehydrates the hot log from JSONL archives and exports it
// back out.
package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/alfredjeanlab/hotstore/internal/eventstore"
	"github.com/alfredjeanlab/hotstore/internal/model"
)

// Feeder is the part of the event store the scheduler needs.
type Feeder interface {
	Snapshotter
	Feed(ctx context.Context, batch []*model.Event) int
	Limits() eventstore.Limits
}

// Result describes one import.
type Result struct {
	Source     string
	Version    string
	Parsed     int
	Malformed  int
	Duplicates int
	Added      int
}

// Scheduler polls sources and feeds new archive contents into the store.
type Scheduler struct {
	feeder   Feeder
	sources  []Source
	interval time.Duration
	logger   *slog.Logger

	// OnImport, if set, is called after every import that fed events.
	OnImport func(ctx context.Context, r Result)

	mu       sync.Mutex
	versions map[string]string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that polls sources at the given interval.
func NewScheduler(f Feeder, sources []Source, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		feeder:   f,
		sources:  sources,
		interval: interval,
		logger:   logger,
		versions: make(map[string]string),
	}
}

// Start begins polling. It imports once immediately, then on each tick.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current import to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.syncOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncOnce(ctx)
		}
	}
}

func (s *Scheduler) syncOnce(ctx context.Context) {
	for _, src := range s.sources {
		res, err := s.ImportOnce(ctx, src)
		switch {
		case errors.Is(err, ErrNotModified):
			s.logger.Debug("rehydrate source unchanged", "source", src.Name())
		case err != nil:
			s.logger.Error("rehydrate failed", "source", src.Name(), "err", err)
		default:
			s.logger.Info("rehydrate completed",
				"source", res.Source,
				"version", res.Version,
				"parsed", res.Parsed,
				"malformed", res.Malformed,
				"duplicates", res.Duplicates,
				"added", res.Added)
		}
	}
}

// ImportOnce fetches src and feeds any events that are not already hot. The
// source version is remembered only after a successful import, so a failed
// import is retried on the next poll.
func (s *Scheduler) ImportOnce(ctx context.Context, src Source) (Result, error) {
	s.mu.Lock()
	since := s.versions[src.Name()]
	s.mu.Unlock()

	data, version, err := src.Fetch(ctx, since)
	if err != nil {
		return Result{}, err
	}
	res, err := Import(ctx, s.feeder, data)
	res.Source, res.Version = src.Name(), version
	if err != nil {
		return res, err
	}

	s.mu.Lock()
	s.versions[src.Name()] = version
	s.mu.Unlock()

	if res.Added > 0 && s.OnImport != nil {
		s.OnImport(ctx, res)
	}
	return res, nil
}

// Import parses a (possibly zstd-compressed) JSONL payload, drops events
// whose id is already in the store and feeds the rest in chunks of at most
// the store's MaxRetrievals.
func Import(ctx context.Context, f Feeder, data []byte) (Result, error) {
	data, err := Decompress(data)
	if err != nil {
		return Result{}, err
	}
	parsed, err := ParseJSONL(bytes.NewReader(data))
	if err != nil {
		return Result{}, err
	}
	res := Result{Parsed: len(parsed.Events), Malformed: parsed.Malformed}
	if len(parsed.Events) == 0 {
		return res, nil
	}

	hot, err := f.Snapshot(ctx)
	if err != nil {
		return res, fmt.Errorf("snapshot: %w", err)
	}
	batch := Dedupe(parsed.Events, hot)
	res.Duplicates = len(parsed.Events) - len(batch)
	if len(batch) == 0 {
		return res, nil
	}

	// The store never holds more than MaxRetrievals fed entries, so larger
	// archives go in as consecutive chunks and later chunks displace earlier
	// ones.
	size := f.Limits().MaxRetrievals
	if size <= 0 {
		return res, nil
	}
	for chunk := range slices.Chunk(batch, size) {
		n := f.Feed(ctx, chunk)
		if n == 0 {
			return res, fmt.Errorf("feed of %d events added nothing", len(chunk))
		}
		res.Added += n
	}
	return res, nil
}

// Dedupe returns the events of batch whose id is neither in hot nor repeated
// earlier in batch. Events without an id are kept.
func Dedupe(batch, hot []*model.Event) []*model.Event {
	seen := make(map[string]struct{}, len(hot)+len(batch))
	for _, e := range hot {
		seen[e.ID] = struct{}{}
	}
	out := make([]*model.Event, 0, len(batch))
	for _, e := range batch {
		if e.ID != "" {
			if _, dup := seen[e.ID]; dup {
				continue
			}
			seen[e.ID] = struct{}{}
		}
		out = append(out, e)
	}
	return out
}
