package model

import "time"

// Common event types emitted by the bot agents. The set is open; any
// non-empty string is accepted as a type.
const (
	TypePlayerJoined    = "player_joined"
	TypePlayerLeft      = "player_left"
	TypeGoalCompleted   = "goal_completed"
	TypeGoalFailed      = "goal_failed"
	TypeCommandExecuted = "command_executed"
	TypeChatMessage     = "chat_message"
	TypeDiscoveryMade   = "discovery_made"
	TypeErrorOccurred   = "error_occurred"
	TypeBotConnected    = "bot_connected"
	TypeBotDisconnected = "bot_disconnected"
)

// Named severity levels.
const (
	SeverityDebug     = 0
	SeverityInfo      = 1
	SeverityLow       = 2
	SeverityMedium    = 5
	SeverityHigh      = 7
	SeverityCritical  = 9
	SeverityEmergency = 10

	MinSeverity = SeverityDebug
	MaxSeverity = SeverityEmergency
)

// Event is a single entry in the hot log.
//
// Retrieval is only set on events that were re-imported through a feed; its
// presence is what distinguishes imported events from native ones.
type Event struct {
	ID        string         `json:"id"`
	BotID     string         `json:"botId,omitempty"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Severity  int            `json:"severity"`
	Timestamp int64          `json:"timestamp"`
	Retrieval *int64         `json:"retrieval,omitempty"`
}

// IsRetrieved reports whether the event entered the log via a feed.
func (e *Event) IsRetrieved() bool {
	return e.Retrieval != nil
}

// CreatedAt returns Timestamp as a time.Time.
func (e *Event) CreatedAt() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Clone returns a shallow copy of e with its own Retrieval pointer.
// Data is shared.
func (e *Event) Clone() *Event {
	c := *e
	if e.Retrieval != nil {
		r := *e.Retrieval
		c.Retrieval = &r
	}
	return &c
}

// EventUpdate carries the mutable fields of an event. Nil fields are left
// untouched; Data replaces the payload wholesale.
type EventUpdate struct {
	Type     *string        `json:"type,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Severity *int           `json:"severity,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u EventUpdate) IsEmpty() bool {
	return u.Type == nil && u.Data == nil && u.Severity == nil
}

// Apply merges u into e.
func (u EventUpdate) Apply(e *Event) {
	if u.Type != nil {
		e.Type = *u.Type
	}
	if u.Data != nil {
		e.Data = u.Data
	}
	if u.Severity != nil {
		e.Severity = *u.Severity
	}
}

// Millis converts t to epoch milliseconds.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
