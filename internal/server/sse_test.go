package server

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/hotstore/internal/eventstore"
	"github.com/alfredjeanlab/hotstore/internal/events"
)

func TestSSEHub_BroadcastAndReceive(t *testing.T) {
	hub := newSSEHub(8)
	c := hub.subscribe(nil)
	defer hub.unsubscribe(c)

	hub.broadcast(events.TopicCreated, []byte(`{"n":1}`))

	select {
	case evt := <-c.ch:
		if evt.ID != 1 || evt.Topic != events.TopicCreated || string(evt.Data) != `{"n":1}` {
			t.Fatalf("event = %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSSEHub_TopicFiltering(t *testing.T) {
	hub := newSSEHub(8)
	c := hub.subscribe([]string{"hotstore.event.deleted", "hotstore.*.evicted"})
	defer hub.unsubscribe(c)

	hub.broadcast(events.TopicCreated, []byte(`{}`))
	hub.broadcast(events.TopicDeleted, []byte(`{}`))
	hub.broadcast(events.TopicEvicted, []byte(`{}`))

	var got []string
	for len(c.ch) > 0 {
		got = append(got, (<-c.ch).Topic)
	}
	want := events.TopicDeleted + "," + events.TopicEvicted
	if strings.Join(got, ",") != want {
		t.Fatalf("delivered %v, want %s", got, want)
	}
}

func TestSSEHub_Unsubscribe(t *testing.T) {
	hub := newSSEHub(8)
	c := hub.subscribe(nil)
	hub.unsubscribe(c)
	hub.broadcast(events.TopicCreated, []byte(`{}`))
	if len(c.ch) != 0 {
		t.Fatal("unsubscribed client should not receive events")
	}
}

func TestSSEHub_SlowClientDoesNotBlock(t *testing.T) {
	hub := newSSEHub(8)
	c := hub.subscribe(nil)
	defer hub.unsubscribe(c)

	for range sseClientBuffer + 10 {
		hub.broadcast(events.TopicCreated, []byte(`{}`))
	}
	if len(c.ch) != sseClientBuffer {
		t.Fatalf("buffered %d events, want %d", len(c.ch), sseClientBuffer)
	}
}

func TestSSEHub_Since(t *testing.T) {
	for _, tc := range []struct {
		name      string
		size      int
		broadcast int
		lastID    uint64
		want      []uint64
	}{
		{"Empty", 4, 0, 0, nil},
		{"AllNew", 4, 3, 0, []uint64{1, 2, 3}},
		{"AfterLast", 4, 3, 1, []uint64{2, 3}},
		{"UpToDate", 4, 3, 3, nil},
		{"Wrapped", 3, 5, 0, []uint64{3, 4, 5}},
		{"WrappedPartial", 3, 5, 3, []uint64{4, 5}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			hub := newSSEHub(tc.size)
			for range tc.broadcast {
				hub.broadcast(events.TopicCreated, []byte(`{}`))
			}
			var got []uint64
			for _, evt := range hub.since(tc.lastID) {
				got = append(got, evt.ID)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("since(%d) = %v, want %v", tc.lastID, got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("since(%d) = %v, want %v", tc.lastID, got, tc.want)
				}
			}
		})
	}
}

func TestMatchTopicPattern(t *testing.T) {
	for _, tc := range []struct {
		pattern, topic string
		want           bool
	}{
		{"hotstore.event.created", "hotstore.event.created", true},
		{"hotstore.event.created", "hotstore.event.deleted", false},
		{"hotstore.event.*", "hotstore.event.fed", true},
		{"hotstore.*.fed", "hotstore.event.fed", true},
		{"hotstore.*", "hotstore.event.fed", false},
		{"hotstore.>", "hotstore.event.fed", true},
		{"hotstore.event.>", "hotstore.event", false},
		{">", "anything", true},
		{"hotstore.event.created.extra", "hotstore.event.created", false},
	} {
		if got := matchTopicPattern(tc.pattern, tc.topic); got != tc.want {
			t.Errorf("matchTopicPattern(%q, %q) = %v, want %v", tc.pattern, tc.topic, got, tc.want)
		}
	}
}

// streamFor runs the SSE handler until the returned stop function is called
// and returns everything it wrote.
func streamFor(t *testing.T, env *testEnv, path, lastEventID string) func() string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", path, nil).WithContext(ctx)
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		env.handler.ServeHTTP(rec, req)
	}()
	// Give the handler time to register the subscription.
	time.Sleep(50 * time.Millisecond)

	return func() string {
		time.Sleep(50 * time.Millisecond)
		cancel()
		<-done
		if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
			t.Fatalf("Content-Type = %q, want text/event-stream", ct)
		}
		return rec.Body.String()
	}
}

func TestHandleEventStream_StoreNotifications(t *testing.T) {
	env := newTestServer(t, eventstore.DefaultLimits())
	stop := streamFor(t, env, "/v1/events/stream", "")

	env.create(t, map[string]any{"event_type": "chat_message", "botId": "b1"})
	doJSON(t, env.handler, "DELETE", "/v1/events/ev-1", nil)

	body := stop()
	for _, want := range []string{
		"event:" + events.TopicCreated,
		"event:" + events.TopicDeleted,
		`data:{"event_id":"ev-1"}`,
		"id:1\n",
		"id:2\n",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in stream, got:\n%s", want, body)
		}
	}
}

func TestHandleEventStream_TopicFilter(t *testing.T) {
	env := newTestServer(t, eventstore.DefaultLimits())
	stop := streamFor(t, env, "/v1/events/stream?topics=hotstore.event.deleted", "")

	env.create(t, map[string]any{"event_type": "chat_message"})
	doJSON(t, env.handler, "DELETE", "/v1/events/ev-1", nil)

	body := stop()
	if strings.Contains(body, events.TopicCreated) {
		t.Errorf("created notification should be filtered out, got:\n%s", body)
	}
	if !strings.Contains(body, events.TopicDeleted) {
		t.Errorf("expected deleted notification, got:\n%s", body)
	}
}

func TestHandleEventStream_LastEventID(t *testing.T) {
	env := newTestServer(t, eventstore.DefaultLimits())
	env.srv.sseHub.broadcast(events.TopicCreated, []byte(`{"n":1}`))
	env.srv.sseHub.broadcast(events.TopicUpdated, []byte(`{"n":2}`))
	env.srv.sseHub.broadcast(events.TopicDeleted, []byte(`{"n":3}`))

	body := streamFor(t, env, "/v1/events/stream", "1")()
	if strings.Contains(body, `data:{"n":1}`) {
		t.Fatalf("event 1 should not be replayed, got:\n%s", body)
	}
	for _, want := range []string{`data:{"n":2}`, `data:{"n":3}`} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in replay, got:\n%s", want, body)
		}
	}
}

func TestSSEEventFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	writeSSEEvent(rec, &sseEvent{ID: 42, Topic: events.TopicFed, Data: []byte(`{"added":3}`)})
	want := "id:42\nevent:hotstore.event.fed\ndata:{\"added\":3}\n\n"
	if got := rec.Body.String(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
