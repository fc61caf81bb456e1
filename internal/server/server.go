// Package server exposes the event store over HTTP and gRPC and fans out
// change notifications to NATS and SSE clients.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/hotstore/internal/eventstore"
	"github.com/alfredjeanlab/hotstore/internal/events"
	"github.com/alfredjeanlab/hotstore/internal/model"
	"github.com/alfredjeanlab/hotstore/internal/presence"
)

// EventStore is the event store as seen by the transports.
type EventStore interface {
	Create(ctx context.Context, p eventstore.CreateParams) (*model.Event, error)
	List(ctx context.Context, f model.EventFilter) ([]*model.Event, error)
	Get(ctx context.Context, id string) (*model.Event, error)
	Feed(ctx context.Context, batch []*model.Event) int
	Delete(ctx context.Context, id string) (bool, error)
	Update(ctx context.Context, id string, u model.EventUpdate) (bool, error)
	Stats(ctx context.Context) (eventstore.Stats, error)
	Snapshot(ctx context.Context) ([]*model.Event, error)
	Ping(ctx context.Context) error
	Key() string
}

// EventsServer implements the HTTP and gRPC event APIs.
type EventsServer struct {
	store     EventStore
	publisher events.Publisher
	sseHub    *sseHub
	logger    *slog.Logger

	Presence *presence.Tracker
}

// NewEventsServer returns a server backed by st that publishes change
// notifications through p.
func NewEventsServer(st EventStore, p events.Publisher, logger *slog.Logger) *EventsServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventsServer{
		store:     st,
		publisher: p,
		sseHub:    newSSEHub(sseRingBufferSize),
		logger:    logger,
		Presence:  presence.New(),
	}
}

// publish sends event to NATS and to SSE clients. Both are best effort;
// failures are logged and never reach the caller.
func (s *EventsServer) publish(ctx context.Context, topic string, event any) {
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("failed to publish event", "topic", topic, "error", err)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("failed to marshal event for SSE", "topic", topic, "error", err)
		return
	}
	s.sseHub.broadcast(topic, payload)
}

// OnEvicted is an eventstore.EvictionHook that announces evicted entries.
func (s *EventsServer) OnEvicted(ctx context.Context, reason eventstore.EvictionReason, evicted []*model.Event) {
	ids := make([]string, len(evicted))
	for i, e := range evicted {
		ids[i] = e.ID
	}
	s.logger.Debug("events evicted", "reason", reason, "count", len(ids))
	s.publish(ctx, events.TopicEvicted, events.EventsEvicted{Reason: string(reason), EventIDs: ids})
}

// OnRehydrated announces events fed by the rehydration scheduler.
func (s *EventsServer) OnRehydrated(ctx context.Context, requested, added int) {
	s.publish(ctx, events.TopicFed, events.EventsFed{Requested: requested, Added: added})
}

// inputError indicates invalid user input.
// Transport layers map this to 400 / InvalidArgument.
type inputError string

func (e inputError) Error() string { return string(e) }

func isInputError(err error) bool {
	var ie inputError
	var ve *model.ValidationError
	return errors.As(err, &ie) || errors.As(err, &ve)
}

// notFoundMessage is the error body for unknown event ids.
const notFoundMessage = "Event not found"

// httpStatus maps an operation error to a status code and client message.
func httpStatus(err error) (int, string) {
	switch {
	case isInputError(err):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, eventstore.ErrNotFound):
		return http.StatusNotFound, notFoundMessage
	case errors.Is(err, eventstore.ErrBackendUnavailable):
		return http.StatusServiceUnavailable, "event store unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// grpcStatus maps an operation error to a gRPC status error.
func grpcStatus(err error) error {
	switch {
	case isInputError(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, eventstore.ErrNotFound):
		return status.Error(codes.NotFound, notFoundMessage)
	case errors.Is(err, eventstore.ErrBackendUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
