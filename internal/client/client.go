// Package client provides a transport-agnostic interface for the hotstore
// service with HTTP/JSON and gRPC implementations.
package client

import (
	"context"
	"errors"
	"net/http"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/hotstore/internal/model"
	"github.com/alfredjeanlab/hotstore/internal/presence"
)

// EventsClient is the interface all hs commands use to talk to the server.
// It is implemented by HTTPClient (default) and GRPCClient.
type EventsClient interface {
	CreateEvent(ctx context.Context, req *CreateEventRequest) (*CreateEventResponse, error)
	ListEvents(ctx context.Context, req *ListEventsRequest) (*ListEventsResponse, error)
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	// FeedEvents returns the number of events the server added. A backend
	// failure on the server shows up as 0, not as an error.
	FeedEvents(ctx context.Context, events []*model.Event) (int, error)
	UpdateEvent(ctx context.Context, id string, u model.EventUpdate) error
	DeleteEvent(ctx context.Context, id string) error

	Stats(ctx context.Context) (*Stats, error)
	ListBots(ctx context.Context, stale time.Duration) ([]presence.Entry, error)
	Health(ctx context.Context) (*Health, error)

	Close() error
}

// CreateEventRequest holds parameters for creating an event.
type CreateEventRequest struct {
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data,omitempty"`
	BotID     string         `json:"botId,omitempty"`
	Severity  *int           `json:"severity,omitempty"`
}

// CreateEventResponse is the response from CreateEvent.
type CreateEventResponse struct {
	EventID string `json:"event_id"`
	Status  string `json:"status"`
}

// ListEventsRequest holds list parameters. Zero values leave the server
// defaults in place.
type ListEventsRequest struct {
	Count       int    `json:"count,omitempty"`
	EventID     string `json:"event_id,omitempty"`
	BotID       string `json:"botId,omitempty"`
	EventType   string `json:"event_type,omitempty"`
	MinSeverity *int   `json:"min_severity,omitempty"`
	OrderBy     string `json:"order_by,omitempty"`
	OrderDesc   *bool  `json:"order_desc,omitempty"`
}

// ListEventsResponse is the response from ListEvents.
type ListEventsResponse struct {
	Events []*model.Event `json:"events"`
	Count  int            `json:"count"`
}

// Stats mirrors the server's stats document.
type Stats struct {
	Key        string `json:"key"`
	Total      int    `json:"total"`
	Retrievals int    `json:"retrievals"`
	Expired    int    `json:"expired"`
	Malformed  int    `json:"malformed"`
	Limits     struct {
		MaxEvents       int    `json:"max_events"`
		MaxRetrievals   int    `json:"max_retrievals"`
		RetrievalMaxAge string `json:"retrieval_max_age"`
	} `json:"limits"`
}

// Health is the server's health report.
type Health struct {
	Status           string `json:"status"`
	BackendConnected bool   `json:"backend_connected"`
}

type feedResponse struct {
	Status     string `json:"status"`
	AddedCount int    `json:"added_count"`
}

type botsResponse struct {
	Bots []presence.Entry `json:"bots"`
}

// IsNotFound reports whether err is a not-found answer from either transport.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusNotFound
	}
	return status.Code(err) == codes.NotFound
}

// IsUnavailable reports whether the server said its backend is unreachable.
func IsUnavailable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusServiceUnavailable
	}
	return status.Code(err) == codes.Unavailable
}
