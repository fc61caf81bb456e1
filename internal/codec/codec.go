// Package codec converts events to and from the flat text form stored in
// each log entry.
//
// The encoding is a single JSON object per entry. Retrieval is omitted for
// native events, so an entry's encoding alone tells whether it was fed.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/hotstore/internal/model"
)

// ErrMalformedRecord is returned when a stored entry cannot be decoded into
// an event.
var ErrMalformedRecord = errors.New("malformed record")

// Encode returns the stored representation of e.
func Encode(e *model.Event) (string, error) {
	data := e.Data
	if data == nil {
		data = map[string]any{}
	}
	rec := *e
	rec.Data = data
	b, err := json.Marshal(&rec)
	if err != nil {
		return "", fmt.Errorf("encode event %s: %w", e.ID, err)
	}
	return string(b), nil
}

// Decode parses a stored entry. Entries that are not JSON objects, or that
// lack an id, fail with ErrMalformedRecord.
func Decode(raw string) (*model.Event, error) {
	var e model.Event
	if err := Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if e.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformedRecord)
	}
	return &e, nil
}

// Unmarshal is json.Unmarshal with numbers kept as json.Number, so integers
// in event data above 2^53 survive a decode and re-encode unchanged.
func Unmarshal(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after top-level value")
	}
	return nil
}
