package eventstore

import (
	"slices"
	"time"

	"github.com/alfredjeanlab/hotstore/internal/model"
)

// entry is a decoded log entry together with its raw encoding and its
// position at scan time. Removal is by raw value; in-place updates use index.
type entry struct {
	index int64
	raw   string
	event *model.Event
}

// Policy decides which entries leave the log. It is pure: it only looks at
// decoded entries and never touches the backend.
type Policy struct {
	Limits
}

// Overflow returns the fed entries that must go so that, after
// incoming fed entries are pushed, no more than MaxRetrievals remain. Victims
// are the ones with the oldest retrieval stamp. Ties keep log order, so the
// entry nearer the tail goes first.
func (p Policy) Overflow(entries []entry, incoming int) []entry {
	var tagged []entry
	for _, e := range entries {
		if e.event.IsRetrieved() {
			tagged = append(tagged, e)
		}
	}
	overflow := len(tagged) + incoming - p.MaxRetrievals
	if overflow <= 0 {
		return nil
	}
	slices.Reverse(tagged)
	slices.SortStableFunc(tagged, func(a, b entry) int {
		ra, rb := *a.event.Retrieval, *b.event.Retrieval
		switch {
		case ra < rb:
			return -1
		case ra > rb:
			return 1
		}
		return 0
	})
	return tagged[:min(overflow, len(tagged))]
}

// Admit returns how many entries of an incoming fed batch of size n can be
// written without the batch alone exceeding MaxRetrievals.
func (p Policy) Admit(n int) int {
	return max(min(n, p.MaxRetrievals), 0)
}

// Expired returns the fed entries whose retrieval stamp is more than
// RetrievalMaxAge before now. Native entries never expire.
func (p Policy) Expired(entries []entry, now time.Time) []entry {
	cutoff := now.UnixMilli() - p.RetrievalMaxAge.Milliseconds()
	var out []entry
	for _, e := range entries {
		if e.event.IsRetrieved() && *e.event.Retrieval < cutoff {
			out = append(out, e)
		}
	}
	return out
}

func eventsOf(entries []entry) []*model.Event {
	out := make([]*model.Event, len(entries))
	for i, e := range entries {
		out[i] = e.event
	}
	return out
}
