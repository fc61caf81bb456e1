package server

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/hotstore/internal/eventstore"
	"github.com/alfredjeanlab/hotstore/internal/events"
	"github.com/alfredjeanlab/hotstore/internal/model"
	"github.com/alfredjeanlab/hotstore/internal/presence"
)

// The operations below are shared by the HTTP and gRPC transports. Request
// and response types use the JSON shapes of the HTTP API; gRPC carries the
// same shapes inside google.protobuf.Struct messages.

type createRequest struct {
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data"`
	BotID     string         `json:"botId,omitempty"`
	// Older agents send the snake_case form.
	LegacyBotID string `json:"bot_id,omitempty"`
	Severity    *int   `json:"severity,omitempty"`
}

type createResponse struct {
	EventID string `json:"event_id"`
	Status  string `json:"status"`
}

type listRequest struct {
	Count       *int   `json:"count,omitempty"`
	EventID     string `json:"event_id,omitempty"`
	BotID       string `json:"botId,omitempty"`
	EventType   string `json:"event_type,omitempty"`
	MinSeverity *int   `json:"min_severity,omitempty"`
	OrderBy     string `json:"order_by,omitempty"`
	OrderDesc   *bool  `json:"order_desc,omitempty"`
}

type listResponse struct {
	Events []*model.Event `json:"events"`
	Count  int            `json:"count"`
}

type idRequest struct {
	EventID string `json:"event_id"`
}

type feedRequest struct {
	Events []*model.Event `json:"events"`
}

type feedResponse struct {
	Status     string `json:"status"`
	AddedCount int    `json:"added_count"`
}

type updateRequest struct {
	EventID  string         `json:"event_id,omitempty"`
	Type     *string        `json:"type,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Severity *int           `json:"severity,omitempty"`
}

type statusResponse struct {
	Status  string `json:"status"`
	EventID string `json:"event_id"`
}

type limitsResponse struct {
	MaxEvents       int    `json:"max_events"`
	MaxRetrievals   int    `json:"max_retrievals"`
	RetrievalMaxAge string `json:"retrieval_max_age"`
}

type statsResponse struct {
	Key        string         `json:"key"`
	Total      int            `json:"total"`
	Retrievals int            `json:"retrievals"`
	Expired    int            `json:"expired"`
	Malformed  int            `json:"malformed"`
	Limits     limitsResponse `json:"limits"`
}

type healthResponse struct {
	Status           string `json:"status"`
	BackendConnected bool   `json:"backend_connected"`
}

type rosterRequest struct {
	Stale string `json:"stale,omitempty"`
}

type rosterResponse struct {
	Bots []presence.Entry `json:"bots"`
}

func (s *EventsServer) createEvent(ctx context.Context, req createRequest) (createResponse, error) {
	p := eventstore.CreateParams{
		Type:  req.EventType,
		Data:  req.Data,
		BotID: req.BotID,
	}
	if p.BotID == "" {
		p.BotID = req.LegacyBotID
	}
	if req.Severity != nil {
		p.Severity = *req.Severity
	}
	ev, err := s.store.Create(ctx, p)
	if err != nil {
		return createResponse{}, err
	}
	s.Presence.Record(ev)
	s.publish(ctx, events.TopicCreated, events.EventCreated{Event: ev})
	return createResponse{EventID: ev.ID, Status: "created"}, nil
}

// filter converts req into an EventFilter, applying the list defaults.
func (req listRequest) filter() (model.EventFilter, error) {
	f := model.DefaultFilter()
	if req.Count != nil {
		f.Count = *req.Count
	}
	f.ID = req.EventID
	f.BotID = req.BotID
	f.Type = req.EventType
	f.MinSeverity = req.MinSeverity
	orderBy, err := model.ParseOrderBy(req.OrderBy)
	if err != nil {
		return f, inputError(err.Error())
	}
	f.OrderBy = orderBy
	if req.OrderDesc != nil {
		f.OrderDesc = *req.OrderDesc
	}
	if err := model.ValidateFilter(f); err != nil {
		return f, err
	}
	return f, nil
}

func (s *EventsServer) listEvents(ctx context.Context, req listRequest) (listResponse, error) {
	f, err := req.filter()
	if err != nil {
		return listResponse{}, err
	}
	evs, err := s.store.List(ctx, f)
	if err != nil {
		return listResponse{}, err
	}
	return listResponse{Events: evs, Count: len(evs)}, nil
}

func (s *EventsServer) getEvent(ctx context.Context, id string) (*model.Event, error) {
	if strings.TrimSpace(id) == "" {
		return nil, inputError("event_id is required")
	}
	return s.store.Get(ctx, id)
}

func (s *EventsServer) feedEvents(ctx context.Context, req feedRequest) feedResponse {
	added := s.store.Feed(ctx, req.Events)
	if added > 0 {
		s.publish(ctx, events.TopicFed, events.EventsFed{Requested: len(req.Events), Added: added})
	}
	return feedResponse{Status: "success", AddedCount: added}
}

func (s *EventsServer) updateEvent(ctx context.Context, req updateRequest) (statusResponse, error) {
	if strings.TrimSpace(req.EventID) == "" {
		return statusResponse{}, inputError("event_id is required")
	}
	u := model.EventUpdate{Type: req.Type, Data: req.Data, Severity: req.Severity}
	found, err := s.store.Update(ctx, req.EventID, u)
	if err != nil {
		return statusResponse{}, err
	}
	if !found {
		return statusResponse{}, fmt.Errorf("update %s: %w", req.EventID, eventstore.ErrNotFound)
	}
	s.publish(ctx, events.TopicUpdated, events.EventUpdated{EventID: req.EventID, Changes: u})
	return statusResponse{Status: "updated", EventID: req.EventID}, nil
}

func (s *EventsServer) deleteEvent(ctx context.Context, id string) (statusResponse, error) {
	if strings.TrimSpace(id) == "" {
		return statusResponse{}, inputError("event_id is required")
	}
	removed, err := s.store.Delete(ctx, id)
	if err != nil {
		return statusResponse{}, err
	}
	if !removed {
		return statusResponse{}, fmt.Errorf("delete %s: %w", id, eventstore.ErrNotFound)
	}
	s.publish(ctx, events.TopicDeleted, events.EventDeleted{EventID: id})
	return statusResponse{Status: "deleted", EventID: id}, nil
}

func (s *EventsServer) stats(ctx context.Context) (statsResponse, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return statsResponse{}, err
	}
	return statsResponse{
		Key:        s.store.Key(),
		Total:      st.Total,
		Retrievals: st.Retrievals,
		Expired:    st.Expired,
		Malformed:  st.Malformed,
		Limits: limitsResponse{
			MaxEvents:       st.Limits.MaxEvents,
			MaxRetrievals:   st.Limits.MaxRetrievals,
			RetrievalMaxAge: st.Limits.RetrievalMaxAge.String(),
		},
	}, nil
}

// health always answers; a failed ping only flips backend_connected.
func (s *EventsServer) health(ctx context.Context) healthResponse {
	connected := true
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("health check: backend unreachable", "error", err)
		connected = false
	}
	return healthResponse{Status: "ok", BackendConnected: connected}
}

func (s *EventsServer) roster(req rosterRequest) (rosterResponse, error) {
	var stale time.Duration
	if req.Stale != "" {
		d, err := time.ParseDuration(req.Stale)
		if err != nil {
			return rosterResponse{}, inputError(fmt.Sprintf("invalid stale duration %q", req.Stale))
		}
		stale = d
	}
	return rosterResponse{Bots: s.Presence.Roster(stale)}, nil
}

// parseListQuery reads list parameters from URL query values.
func parseListQuery(get func(string) string) (listRequest, error) {
	req := listRequest{
		EventID:   get("event_id"),
		BotID:     get("botId"),
		EventType: get("event_type"),
		OrderBy:   get("order_by"),
	}
	if req.BotID == "" {
		req.BotID = get("bot_id")
	}
	if v := get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, inputError(fmt.Sprintf("invalid count %q", v))
		}
		req.Count = &n
	}
	if v := get("min_severity"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, inputError(fmt.Sprintf("invalid min_severity %q", v))
		}
		req.MinSeverity = &n
	}
	if v := get("order_desc"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return req, inputError(fmt.Sprintf("invalid order_desc %q", v))
		}
		req.OrderDesc = &b
	}
	return req, nil
}
