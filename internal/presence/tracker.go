// Package presence keeps an in-memory roster of bots, built from the events
// they create.
//
// The server calls Record for every created event that carries a botId. A
// background reaper marks bots idle after a configurable threshold and
// forgets them some time later.
package presence

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/alfredjeanlab/hotstore/internal/model"
)

// Entry is the presence state of one bot.
type Entry struct {
	BotID         string    `json:"botId"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
	LastEventID   string    `json:"last_event_id"`
	LastEventType string    `json:"last_event_type"`
	LastError     string    `json:"last_error,omitempty"` // id of the last error_occurred event
	IdleSecs      float64   `json:"idle_secs"`
	EventCount    int64     `json:"event_count"`
	Connected     bool      `json:"connected"`
	Idle          bool      `json:"idle,omitempty"` // marked by the reaper
	IdleSince     time.Time `json:"idle_since,omitzero"`
}

// ReaperConfig configures the background idle reaper.
type ReaperConfig struct {
	// IdleThreshold is how long a bot may stay silent before being marked
	// idle. Default: 15 minutes.
	IdleThreshold time.Duration

	// ForgetAfter is how long an idle bot stays in the roster. Default: 1 hour.
	ForgetAfter time.Duration

	// SweepInterval is how often the reaper runs. Default: 1 minute.
	SweepInterval time.Duration

	// OnIdle is called, outside the lock, for each bot newly marked idle.
	OnIdle func(botID string)
}

func (c *ReaperConfig) withDefaults() ReaperConfig {
	out := ReaperConfig{}
	if c != nil {
		out = *c
	}
	if out.IdleThreshold == 0 {
		out.IdleThreshold = 15 * time.Minute
	}
	if out.ForgetAfter == 0 {
		out.ForgetAfter = time.Hour
	}
	if out.SweepInterval == 0 {
		out.SweepInterval = time.Minute
	}
	return out
}

// Tracker maintains the bot roster.
type Tracker struct {
	mu   sync.RWMutex
	bots map[string]*botState
	now  func() time.Time

	reaperStop chan struct{}
	reaperDone chan struct{}
}

type botState struct {
	firstSeen     time.Time
	lastSeen      time.Time
	lastEventID   string
	lastEventType string
	lastError     string
	eventCount    int64
	connected     bool
	idle          bool
	idleSince     time.Time
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		bots: make(map[string]*botState),
		now:  time.Now,
	}
}

// WithClock replaces the tracker's clock. For tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Record updates the state of the bot that created ev. Events without a
// botId are ignored.
func (t *Tracker) Record(ev *model.Event) {
	if ev == nil || ev.BotID == "" {
		return
	}

	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.bots[ev.BotID]
	if !ok {
		st = &botState{firstSeen: now, connected: true}
		t.bots[ev.BotID] = st
	}
	if st.idle {
		slog.Info("presence: bot active again", "bot_id", ev.BotID)
		st.idle = false
		st.idleSince = time.Time{}
	}

	st.lastSeen = now
	st.lastEventID = ev.ID
	st.lastEventType = ev.Type
	st.eventCount++

	switch ev.Type {
	case model.TypeBotConnected:
		st.connected = true
	case model.TypeBotDisconnected:
		st.connected = false
	case model.TypeErrorOccurred:
		st.lastError = ev.ID
	}
}

// Roster returns all tracked bots, most recently active first. Bots silent
// for longer than stale are left out; pass 0 to include everything.
func (t *Tracker) Roster(stale time.Duration) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	entries := make([]Entry, 0, len(t.bots))
	for id, st := range t.bots {
		idle := now.Sub(st.lastSeen)
		if stale > 0 && idle > stale {
			continue
		}
		entries = append(entries, Entry{
			BotID:         id,
			FirstSeen:     st.firstSeen,
			LastSeen:      st.lastSeen,
			LastEventID:   st.lastEventID,
			LastEventType: st.lastEventType,
			LastError:     st.lastError,
			IdleSecs:      idle.Seconds(),
			EventCount:    st.eventCount,
			Connected:     st.connected,
			Idle:          st.idle,
			IdleSince:     st.idleSince,
		})
	}

	slices.SortFunc(entries, func(a, b Entry) int {
		if c := b.LastSeen.Compare(a.LastSeen); c != 0 {
			return c
		}
		if a.BotID < b.BotID {
			return -1
		}
		return 1
	})
	return entries
}

// StartReaper launches the background reaper. Call Stop to shut it down.
func (t *Tracker) StartReaper(cfg *ReaperConfig) {
	c := cfg.withDefaults()
	t.reaperStop = make(chan struct{})
	t.reaperDone = make(chan struct{})

	go t.reapLoop(c)
	slog.Info("presence: reaper started",
		"idle_threshold", c.IdleThreshold,
		"sweep_interval", c.SweepInterval)
}

// Stop shuts down the reaper goroutine.
func (t *Tracker) Stop() {
	if t.reaperStop != nil {
		close(t.reaperStop)
		<-t.reaperDone
		t.reaperStop = nil
		t.reaperDone = nil
	}
}

func (t *Tracker) reapLoop(cfg ReaperConfig) {
	defer close(t.reaperDone)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.reaperStop:
			return
		case <-ticker.C:
			t.sweep(cfg)
		}
	}
}

func (t *Tracker) sweep(cfg ReaperConfig) {
	now := t.now()
	var newlyIdle []string

	t.mu.Lock()
	for id, st := range t.bots {
		if st.idle {
			if now.Sub(st.idleSince) > cfg.ForgetAfter {
				delete(t.bots, id)
			}
			continue
		}
		if now.Sub(st.lastSeen) > cfg.IdleThreshold {
			st.idle = true
			st.idleSince = now
			newlyIdle = append(newlyIdle, id)
		}
	}
	t.mu.Unlock()

	for _, id := range newlyIdle {
		slog.Info("presence: bot marked idle", "bot_id", id, "threshold", cfg.IdleThreshold)
		if cfg.OnIdle != nil {
			cfg.OnIdle(id)
		}
	}
}
