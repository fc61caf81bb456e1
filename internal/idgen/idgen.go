// Package idgen generates event identifiers backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// EventPrefix is prepended to every event ID.
const EventPrefix = "ev-"

// Alphabet defines the character set used for the random portion of the ID.
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
// The hot log turns over quickly but bots reference ids long after eviction,
// so ids are sized to stay unique across the archive as well.
const Length = 16

// Func produces a new unique ID.
type Func func() (string, error)

// NewEventID returns a new event ID.
func NewEventID() (string, error) {
	return WithPrefix(EventPrefix)
}

// WithPrefix returns a new unique ID with the given prefix.
func WithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// Sequence returns a Func yielding prefix-1, prefix-2, ... for tests and
// deterministic seeding.
func Sequence(prefix string) Func {
	n := 0
	return func() (string, error) {
		n++
		return fmt.Sprintf("%s%d", prefix, n), nil
	}
}
