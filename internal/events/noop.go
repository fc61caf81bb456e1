package events

import "context"

// NoopPublisher drops every notification. The server uses it when no NATS
// URL is configured; SSE fan-out works either way.
type NoopPublisher struct{}

func (*NoopPublisher) Publish(context.Context, string, any) error { return nil }

func (*NoopPublisher) Close() error { return nil }
