package sync

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alfredjeanlab/hotstore/internal/codec"
	"github.com/alfredjeanlab/hotstore/internal/model"
)

// FormatVersion is written in the header of every export.
const FormatVersion = "1"

// maxLineSize bounds a single JSONL line. Event payloads are small; anything
// larger is treated as corrupt.
const maxLineSize = 4 << 20

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version    string    `json:"version"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	Key        string    `json:"key,omitempty"`
	EventCount int       `json:"event_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Snapshotter returns the hot log contents, newest first.
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]*model.Event, error)
}

// ExportJSONL writes a header line and then one record per event, oldest
// first, so that feeding the file back in restores the original order.
func ExportJSONL(ctx context.Context, s Snapshotter, key string, w io.Writer) error {
	events, err := s.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:    FormatVersion,
		Type:       "header",
		Timestamp:  time.Now().UTC(),
		Key:        key,
		EventCount: len(events),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	for i := len(events) - 1; i >= 0; i-- {
		if err := enc.Encode(record{Type: "event", Data: events[i]}); err != nil {
			return fmt.Errorf("encode event %s: %w", events[i].ID, err)
		}
	}
	return nil
}

// ParseResult is the outcome of parsing a JSONL payload.
type ParseResult struct {
	Events    []*model.Event
	Malformed int
}

// ParseJSONL reads events from JSONL. Lines may be export records
// ({"type":"event","data":{...}}) or bare event objects. Header lines and
// blank lines are skipped. Lines that do not decode are counted in
// Malformed and otherwise ignored. Only read errors are returned.
func ParseJSONL(r io.Reader) (ParseResult, error) {
	var res ParseResult
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		ev, skip, err := parseLine(line)
		switch {
		case err != nil:
			res.Malformed++
		case skip:
		default:
			res.Events = append(res.Events, ev)
		}
	}
	if err := sc.Err(); err != nil {
		return res, fmt.Errorf("read jsonl: %w", err)
	}
	return res, nil
}

// parseLine decodes one line. skip is set for header records.
func parseLine(line []byte) (ev *model.Event, skip bool, err error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return nil, false, err
	}

	var typ string
	if raw, ok := fields["type"]; ok {
		_ = json.Unmarshal(raw, &typ)
	}
	// Export records carry no id or timestamp of their own; bare events
	// whose type happens to be "event" always do.
	_, hasID := fields["id"]
	_, hasTS := fields["timestamp"]
	switch {
	case typ == "header" && !hasID:
		return nil, true, nil
	case typ == "event" && !hasID && !hasTS:
		raw, ok := fields["data"]
		if !ok {
			return nil, false, fmt.Errorf("event record without data")
		}
		line = raw
	}

	ev = &model.Event{}
	if err := codec.Unmarshal(line, ev); err != nil {
		return nil, false, err
	}
	return ev, false, nil
}
