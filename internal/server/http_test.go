package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/hotstore/internal/eventstore"
	"github.com/alfredjeanlab/hotstore/internal/events"
	"github.com/alfredjeanlab/hotstore/internal/idgen"
	"github.com/alfredjeanlab/hotstore/internal/model"
	"github.com/alfredjeanlab/hotstore/internal/store/memory"
	eventsync "github.com/alfredjeanlab/hotstore/internal/sync"
)

// recordingPublisher captures published notifications.
type recordingPublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads []any
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published(topic string) []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []any
	for i, t := range p.topics {
		if t == topic {
			out = append(out, p.payloads[i])
		}
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// tickingClock returns a clock that advances one second per reading, so
// events created in sequence get distinct timestamps.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

type testEnv struct {
	srv     *EventsServer
	log     *memory.MemoryLog
	pub     *recordingPublisher
	handler http.Handler
}

// newTestServer wires a server to an event store on an in-memory log. The
// store's eviction hook is routed to the server as in hs serve.
func newTestServer(t *testing.T, limits eventstore.Limits) *testEnv {
	t.Helper()
	env := &testEnv{log: memory.New(), pub: &recordingPublisher{}}
	st := eventstore.New(env.log,
		eventstore.WithLimits(limits),
		eventstore.WithClock(tickingClock()),
		eventstore.WithIDGenerator(idgen.Sequence("ev-")),
		eventstore.WithLogger(discardLogger()),
		eventstore.WithEvictionHook(func(ctx context.Context, reason eventstore.EvictionReason, evicted []*model.Event) {
			env.srv.OnEvicted(ctx, reason, evicted)
		}),
	)
	env.srv = NewEventsServer(st, env.pub, discardLogger())
	env.handler = env.srv.NewHTTPHandler("")
	return env
}

// doJSON performs an HTTP request with an optional JSON body and returns the recorder.
func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// requireStatus asserts the recorder has the expected HTTP status code.
func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, code int) {
	t.Helper()
	if rec.Code != code {
		t.Fatalf("expected status %d, got %d; body: %s", code, rec.Code, rec.Body.String())
	}
}

// decodeJSON decodes the recorder's response body into v.
func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func (env *testEnv) create(t *testing.T, body map[string]any) string {
	t.Helper()
	rec := doJSON(t, env.handler, "POST", "/v1/events", body)
	requireStatus(t, rec, http.StatusOK)
	var resp createResponse
	decodeJSON(t, rec, &resp)
	return resp.EventID
}

func listIDs(t *testing.T, h http.Handler, path string) []string {
	t.Helper()
	rec := doJSON(t, h, "GET", path, nil)
	requireStatus(t, rec, http.StatusOK)
	var resp listResponse
	decodeJSON(t, rec, &resp)
	if resp.Count != len(resp.Events) {
		t.Fatalf("count = %d, but %d events returned", resp.Count, len(resp.Events))
	}
	out := make([]string, len(resp.Events))
	for i, e := range resp.Events {
		out[i] = e.ID
	}
	return out
}

func TestHandleCreateEvent(t *testing.T) {
	env := newTestServer(t, eventstore.DefaultLimits())

	rec := doJSON(t, env.handler, "POST", "/v1/events", map[string]any{
		"event_type": model.TypeGoalCompleted,
		"data":       map[string]any{"goal": "mine diamonds"},
		"botId":      "bot-7",
		"severity":   5,
	})
	requireStatus(t, rec, http.StatusOK)
	var resp createResponse
	decodeJSON(t, rec, &resp)
	if resp.EventID != "ev-1" || resp.Status != "created" {
		t.Fatalf("response = %+v", resp)
	}

	rec = doJSON(t, env.handler, "GET", "/v1/events/ev-1", nil)
	requireStatus(t, rec, http.StatusOK)
	var ev model.Event
	decodeJSON(t, rec, &ev)
	if ev.Type != model.TypeGoalCompleted || ev.BotID != "bot-7" || ev.Severity != 5 {
		t.Errorf("stored event = %+v", ev)
	}
	if ev.Data["goal"] != "mine diamonds" {
		t.Errorf("data = %v", ev.Data)
	}
	if ev.Retrieval != nil {
		t.Error("native event must not carry a retrieval stamp")
	}

	if got := env.pub.published(events.TopicCreated); len(got) != 1 {
		t.Fatalf("created notifications = %d, want 1", len(got))
	}
	roster := env.srv.Presence.Roster(0)
	if len(roster) != 1 || roster[0].BotID != "bot-7" || roster[0].LastEventID != "ev-1" {
		t.Errorf("roster = %+v", roster)
	}
}

func TestHandleCreateEvent_NotificationMatchesStoredEvent(t *testing.T) {
	env := newTestServer(t, eventstore.DefaultLimits())
	id := env.create(t, map[string]any{"event_type": "chat_message", "botId": "bot-3", "severity": 2})

	stored, err := env.srv.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got := env.pub.published(events.TopicCreated)
	if len(got) != 1 {
		t.Fatalf("created notifications = %d, want 1", len(got))
	}
	note, ok := got[0].(events.EventCreated)
	if !ok {
		t.Fatalf("payload = %T, want events.EventCreated", got[0])
	}
	if note.Event.ID != stored.ID || note.Event.Timestamp != stored.Timestamp {
		t.Errorf("notified %+v, stored %+v", note.Event, stored)
	}
	roster := env.srv.Presence.Roster(0)
	if len(roster) != 1 || roster[0].LastEventID != stored.ID {
		t.Errorf("roster = %+v, want last event %s", roster, stored.ID)
	}
}

func TestHandleEvents_KeepLargeIntegers(t *testing.T) {
	env := newTestServer(t, eventstore.DefaultLimits())

	req := httptest.NewRequest("POST", "/v1/events",
		strings.NewReader(`{"event_type":"entity_spawned","data":{"entity":9007199254740993}}`))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	requireStatus(t, rec, http.StatusOK)
	var resp createResponse
	decodeJSON(t, rec, &resp)

	req = httptest.NewRequest("PATCH", "/v1/events/"+resp.EventID,
		strings.NewReader(`{"data":{"entity":9007199254740995,"yaw":-12.25}}`))
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	requireStatus(t, rec, http.StatusOK)

	rec = doJSON(t, env.handler, "GET", "/v1/events/"+resp.EventID, nil)
	requireStatus(t, rec, http.StatusOK)
	body := rec.Body.String()
	for _, want := range []string{`"entity":9007199254740995`, `"yaw":-12.25`} {
		if !strings.Contains(body, want) {
			t.Errorf("body %s missing %s", body, want)
		}
	}
}

func TestHandleCreateEvent_LegacyBotID(t *testing.T) {
	env := newTestServer(t, eventstore.DefaultLimits())
	env.create(t, map[string]any{"event_type": "chat_message", "bot_id": "old-bot"})

	ids := listIDs(t, env.handler, "/v1/events?botId=old-bot")
	if len(ids) != 1 {
		t.Fatalf("events for old-bot = %v, want one", ids)
	}
}

func TestHandleListEvents(t *testing.T) {
	env := newTestServer(t, eventstore.DefaultLimits())
	env.create(t, map[string]any{"event_type": "chat_message", "severity": 1, "botId": "a"})
	env.create(t, map[string]any{"event_type": "goal_failed", "severity": 7, "botId": "b"})
	env.create(t, map[string]any{"event_type": "chat_message", "severity": 3, "botId": "a"})

	for _, tc := range []struct {
		name  string
		query string
		want  []string
	}{
		{"Default", "", []string{"ev-3", "ev-2", "ev-1"}},
		{"Count", "?count=2", []string{"ev-3", "ev-2"}},
		{"Ascending", "?order_desc=false", []string{"ev-1", "ev-2", "ev-3"}},
		{"BySeverity", "?order_by=severity", []string{"ev-2", "ev-3", "ev-1"}},
		{"ByType", "?event_type=chat_message", []string{"ev-3", "ev-1"}},
		{"ByBot", "?botId=b", []string{"ev-2"}},
		{"MinSeverity", "?min_severity=3", []string{"ev-3", "ev-2"}},
		{"ByID", "?event_id=ev-2", []string{"ev-2"}},
		{"NoMatch", "?event_type=nothing", []string{}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := listIDs(t, env.handler, "/v1/events"+tc.query)
			if strings.Join(got, ",") != strings.Join(tc.want, ",") {
				t.Errorf("ids = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestHandleHTTPErrors(t *testing.T) {
	for _, tc := range []struct {
		name      string
		method    string
		path      string
		body      any
		code      int
		wantError string
	}{
		{"Create/MissingType", "POST", "/v1/events", map[string]any{"data": map[string]any{}}, 400, "invalid request"},
		{"Create/SeverityTooHigh", "POST", "/v1/events", map[string]any{"event_type": "x", "severity": 11}, 400, "invalid request"},
		{"Create/NegativeSeverity", "POST", "/v1/events", map[string]any{"event_type": "x", "severity": -1}, 400, ""},
		{"Create/NoBody", "POST", "/v1/events", nil, 400, "request body is required"},
		{"List/CountZero", "GET", "/v1/events?count=0", nil, 400, ""},
		{"List/CountTooHigh", "GET", "/v1/events?count=1001", nil, 400, ""},
		{"List/CountNotNumber", "GET", "/v1/events?count=ten", nil, 400, ""},
		{"List/BadOrderBy", "GET", "/v1/events?order_by=botId", nil, 400, ""},
		{"List/BadMinSeverity", "GET", "/v1/events?min_severity=11", nil, 400, ""},
		{"List/BadOrderDesc", "GET", "/v1/events?order_desc=maybe", nil, 400, ""},
		{"Get/NotFound", "GET", "/v1/events/nonexistent", nil, 404, "Event not found"},
		{"Update/NotFound", "PATCH", "/v1/events/nonexistent", map[string]any{"severity": 2}, 404, "Event not found"},
		{"Update/Empty", "PATCH", "/v1/events/nonexistent", map[string]any{}, 400, ""},
		{"Delete/NotFound", "DELETE", "/v1/events/nonexistent", nil, 404, "Event not found"},
		{"Bots/BadStale", "GET", "/v1/bots?stale=soon", nil, 400, ""},
		{"Export/BadCompression", "GET", "/v1/export?compress=gzip", nil, 400, ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestServer(t, eventstore.DefaultLimits())
			rec := doJSON(t, env.handler, tc.method, tc.path, tc.body)
			requireStatus(t, rec, tc.code)
			if tc.wantError != "" {
				var body map[string]string
				decodeJSON(t, rec, &body)
				if body["error"] != tc.wantError {
					t.Fatalf("expected error %q, got %q", tc.wantError, body["error"])
				}
			}
		})
	}
}

func TestHandleCreateEvent_InvalidJSON(t *testing.T) {
	env := newTestServer(t, eventstore.DefaultLimits())
	req := httptest.NewRequest("POST", "/v1/events", strings.NewReader(`{"event_type":`))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	requireStatus(t, rec, http.StatusBadRequest)

	var body errorResponse
	decodeJSON(t, rec, &body)
	if body.Error != "invalid JSON body" || body.Detail == "" {
		t.Errorf("body = %+v", body)
	}
}

func TestHandleFeedEvents(t *testing.T) {
	env := newTestServer(t, eventstore.DefaultLimits())
	env.create(t, map[string]any{"event_type": "chat_message"})

	rec := doJSON(t, env.handler, "POST", "/v1/events/feed", map[string]any{
		"events": []map[string]any{
			{"id": "old-1", "type": "goal_completed", "data": map[string]any{}, "severity": 2, "timestamp": 1000},
			{"id": "old-2", "type": "goal_failed", "data": map[string]any{}, "severity": 42, "timestamp": 2000},
		},
	})
	requireStatus(t, rec, http.StatusOK)
	var resp feedResponse
	decodeJSON(t, rec, &resp)
	if resp.Status != "success" || resp.AddedCount != 2 {
		t.Fatalf("response = %+v", resp)
	}

	rec = doJSON(t, env.handler, "GET", "/v1/events/old-2", nil)
	requireStatus(t, rec, http.StatusOK)
	var ev model.Event
	decodeJSON(t, rec, &ev)
	if ev.Retrieval == nil {
		t.Error("fed event should carry a retrieval stamp")
	}
	if ev.Severity != model.MaxSeverity {
		t.Errorf("severity = %d, want clamped to %d", ev.Severity, model.MaxSeverity)
	}
	if got := env.pub.published(events.TopicFed); len(got) != 1 {
		t.Errorf("fed notifications = %d, want 1", len(got))
	}
}

func TestHandleFeedEvents_Empty(t *testing.T) {
	env := newTestServer(t, eventstore.DefaultLimits())
	rec := doJSON(t, env.handler, "POST", "/v1/events/feed", map[string]any{"events": []any{}})
	requireStatus(t, rec, http.StatusOK)
	var resp feedResponse
	decodeJSON(t, rec, &resp)
	if resp.AddedCount != 0 {
		t.Errorf("added_count = %d, want 0", resp.AddedCount)
	}
	if got := env.pub.published(events.TopicFed); len(got) != 0 {
		t.Errorf("an empty feed should not notify, got %d", len(got))
	}
}

func TestHandleUpdateEvent(t *testing.T) {
	env := newTestServer(t, eventstore.DefaultLimits())
	id := env.create(t, map[string]any{"event_type": "chat_message", "data": map[string]any{"msg": "hi"}, "severity": 1})

	rec := doJSON(t, env.handler, "PATCH", "/v1/events/"+id, map[string]any{"severity": 9})
	requireStatus(t, rec, http.StatusOK)
	var resp statusResponse
	decodeJSON(t, rec, &resp)
	if resp.Status != "updated" || resp.EventID != id {
		t.Fatalf("response = %+v", resp)
	}

	rec = doJSON(t, env.handler, "GET", "/v1/events/"+id, nil)
	var ev model.Event
	decodeJSON(t, rec, &ev)
	if ev.Severity != 9 || ev.Type != "chat_message" || ev.Data["msg"] != "hi" {
		t.Errorf("updated event = %+v", ev)
	}
	if got := env.pub.published(events.TopicUpdated); len(got) != 1 {
		t.Errorf("updated notifications = %d, want 1", len(got))
	}
}

func TestHandleDeleteEvent(t *testing.T) {
	env := newTestServer(t, eventstore.DefaultLimits())
	id := env.create(t, map[string]any{"event_type": "chat_message"})

	rec := doJSON(t, env.handler, "DELETE", "/v1/events/"+id, nil)
	requireStatus(t, rec, http.StatusOK)
	var resp statusResponse
	decodeJSON(t, rec, &resp)
	if resp.Status != "deleted" || resp.EventID != id {
		t.Fatalf("response = %+v", resp)
	}

	requireStatus(t, doJSON(t, env.handler, "GET", "/v1/events/"+id, nil), http.StatusNotFound)
	requireStatus(t, doJSON(t, env.handler, "DELETE", "/v1/events/"+id, nil), http.StatusNotFound)
	if got := env.pub.published(events.TopicDeleted); len(got) != 1 {
		t.Errorf("deleted notifications = %d, want 1", len(got))
	}
}

func TestHandleStats(t *testing.T) {
	env := newTestServer(t, eventstore.DefaultLimits())
	env.create(t, map[string]any{"event_type": "chat_message"})
	doJSON(t, env.handler, "POST", "/v1/events/feed", map[string]any{
		"events": []map[string]any{{"id": "old-1", "type": "x", "data": map[string]any{}, "timestamp": 1}},
	})

	rec := doJSON(t, env.handler, "GET", "/v1/stats", nil)
	requireStatus(t, rec, http.StatusOK)
	var st statsResponse
	decodeJSON(t, rec, &st)
	if st.Total != 2 || st.Retrievals != 1 || st.Expired != 0 || st.Malformed != 0 {
		t.Errorf("stats = %+v", st)
	}
	if st.Key != eventstore.DefaultKey {
		t.Errorf("key = %q", st.Key)
	}
	if st.Limits.MaxEvents != 2500 || st.Limits.MaxRetrievals != 500 || st.Limits.RetrievalMaxAge != "12h0m0s" {
		t.Errorf("limits = %+v", st.Limits)
	}
}

func TestHandleRoster(t *testing.T) {
	env := newTestServer(t, eventstore.DefaultLimits())
	env.create(t, map[string]any{"event_type": model.TypeBotConnected, "botId": "alpha"})
	env.create(t, map[string]any{"event_type": model.TypeBotDisconnected, "botId": "alpha"})
	env.create(t, map[string]any{"event_type": "chat_message"})

	rec := doJSON(t, env.handler, "GET", "/v1/bots?stale=1h", nil)
	requireStatus(t, rec, http.StatusOK)
	var resp struct {
		Bots []struct {
			BotID      string `json:"botId"`
			EventCount int    `json:"event_count"`
			Connected  bool   `json:"connected"`
		} `json:"bots"`
	}
	decodeJSON(t, rec, &resp)
	if len(resp.Bots) != 1 {
		t.Fatalf("bots = %+v, want only alpha", resp.Bots)
	}
	if b := resp.Bots[0]; b.BotID != "alpha" || b.EventCount != 2 || b.Connected {
		t.Errorf("alpha = %+v", b)
	}
}

func TestHandleExport(t *testing.T) {
	env := newTestServer(t, eventstore.DefaultLimits())
	env.create(t, map[string]any{"event_type": "a"})
	env.create(t, map[string]any{"event_type": "b"})

	for _, tc := range []struct {
		name  string
		query string
		ctype string
	}{
		{"Plain", "", "application/x-ndjson"},
		{"Zstd", "?compress=zstd", "application/zstd"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, env.handler, "GET", "/v1/export"+tc.query, nil)
			requireStatus(t, rec, http.StatusOK)
			if ct := rec.Header().Get("Content-Type"); ct != tc.ctype {
				t.Errorf("Content-Type = %q, want %q", ct, tc.ctype)
			}
			data := rec.Body.Bytes()
			if eventsync.IsCompressed(data) {
				var err error
				if data, err = eventsync.Decompress(data); err != nil {
					t.Fatalf("Decompress: %v", err)
				}
			}
			res, err := eventsync.ParseJSONL(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("ParseJSONL: %v", err)
			}
			if len(res.Events) != 2 || res.Events[0].ID != "ev-1" || res.Events[1].ID != "ev-2" {
				t.Errorf("exported events not oldest first: %+v", res.Events)
			}
		})
	}
}

func TestHandleHealth(t *testing.T) {
	env := newTestServer(t, eventstore.DefaultLimits())

	rec := doJSON(t, env.handler, "GET", "/v1/health", nil)
	requireStatus(t, rec, http.StatusOK)
	var resp healthResponse
	decodeJSON(t, rec, &resp)
	if resp.Status != "ok" || !resp.BackendConnected {
		t.Errorf("health = %+v", resp)
	}

	env.log.SetFailure(errors.New("connection refused"))
	rec = doJSON(t, env.handler, "GET", "/v1/health", nil)
	requireStatus(t, rec, http.StatusOK)
	decodeJSON(t, rec, &resp)
	if resp.BackendConnected {
		t.Error("backend_connected should be false while the backend is down")
	}
}

func TestBackendUnavailable(t *testing.T) {
	env := newTestServer(t, eventstore.DefaultLimits())
	env.log.SetFailure(errors.New("connection refused"))

	for _, tc := range []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"Create", "POST", "/v1/events", map[string]any{"event_type": "x"}},
		{"List", "GET", "/v1/events", nil},
		{"Get", "GET", "/v1/events/ev-1", nil},
		{"Update", "PATCH", "/v1/events/ev-1", map[string]any{"severity": 1}},
		{"Delete", "DELETE", "/v1/events/ev-1", nil},
		{"Stats", "GET", "/v1/stats", nil},
		{"Export", "GET", "/v1/export", nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			requireStatus(t, doJSON(t, env.handler, tc.method, tc.path, tc.body), http.StatusServiceUnavailable)
		})
	}

	t.Run("FeedFailsClosed", func(t *testing.T) {
		rec := doJSON(t, env.handler, "POST", "/v1/events/feed", map[string]any{
			"events": []map[string]any{{"id": "x", "type": "x", "data": map[string]any{}}},
		})
		requireStatus(t, rec, http.StatusOK)
		var resp feedResponse
		decodeJSON(t, rec, &resp)
		if resp.AddedCount != 0 {
			t.Errorf("added_count = %d, want 0", resp.AddedCount)
		}
	})
}

func TestEvictionNotifications(t *testing.T) {
	env := newTestServer(t, eventstore.Limits{MaxEvents: 2, MaxRetrievals: 1, RetrievalMaxAge: eventstore.DefaultLimits().RetrievalMaxAge})
	for range 3 {
		env.create(t, map[string]any{"event_type": "chat_message"})
	}

	got := env.pub.published(events.TopicEvicted)
	if len(got) != 1 {
		t.Fatalf("evicted notifications = %d, want 1", len(got))
	}
	ev := got[0].(events.EventsEvicted)
	if ev.Reason != "count" || len(ev.EventIDs) != 1 || ev.EventIDs[0] != "ev-1" {
		t.Errorf("eviction = %+v", ev)
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
		code int
	}{
		{"Input", inputError("bad"), http.StatusBadRequest},
		{"Validation", model.ValidateCreate("", 0), http.StatusBadRequest},
		{"NotFound", eventstore.ErrNotFound, http.StatusNotFound},
		{"Unavailable", eventstore.ErrBackendUnavailable, http.StatusServiceUnavailable},
		{"Other", errors.New("boom"), http.StatusInternalServerError},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if code, _ := httpStatus(tc.err); code != tc.code {
				t.Errorf("httpStatus(%v) = %d, want %d", tc.err, code, tc.code)
			}
		})
	}
}
