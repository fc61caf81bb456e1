// Package events defines the notifications emitted when the hot log changes
// and the publishers that carry them.
package events

import (
	"context"

	"github.com/alfredjeanlab/hotstore/internal/model"
)

// Topics. All share the "hotstore.event." prefix so "hotstore.event.>"
// subscribes to everything.
const (
	TopicPrefix = "hotstore.event."

	TopicCreated = TopicPrefix + "created"
	TopicFed     = TopicPrefix + "fed"
	TopicUpdated = TopicPrefix + "updated"
	TopicDeleted = TopicPrefix + "deleted"
	TopicEvicted = TopicPrefix + "evicted"

	TopicAll = TopicPrefix + ">"
)

type EventCreated struct {
	Event *model.Event `json:"event"`
}

type EventsFed struct {
	Requested int `json:"requested"`
	Added     int `json:"added"`
}

type EventUpdated struct {
	EventID string            `json:"event_id"`
	Changes model.EventUpdate `json:"changes"`
}

type EventDeleted struct {
	EventID string `json:"event_id"`
}

// EventsEvicted reports entries removed by a capacity or age rule. Reason is
// one of "count", "retrieval_limit" or "age".
type EventsEvicted struct {
	Reason   string   `json:"reason"`
	EventIDs []string `json:"event_ids"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
