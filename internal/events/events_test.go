package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/hotstore/internal/model"
)

func TestNoopPublisher(t *testing.T) {
	var pub Publisher = &NoopPublisher{}
	if err := pub.Publish(context.Background(), TopicCreated, EventCreated{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNATSPublisher_ImplementsPublisher(t *testing.T) {
	var _ Publisher = (*NATSPublisher)(nil)
}

func TestNATSPublisher_Publish(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe(TopicCreated, ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	nc.Flush()

	event := EventCreated{Event: &model.Event{ID: "ev-pub1", Type: model.TypeChatMessage, Severity: 1}}
	if err := pub.Publish(context.Background(), TopicCreated, event); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	pub.conn.Flush()

	select {
	case msg := <-ch:
		var got EventCreated
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Event.ID != "ev-pub1" || got.Event.Type != model.TypeChatMessage {
			t.Errorf("got %+v", got.Event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestNATSPublisher_AllTopicsUnderPrefix(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	ch := make(chan *nats.Msg, 8)
	sub, err := nc.ChanSubscribe(TopicAll, ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	nc.Flush()

	published := []struct {
		topic string
		event any
	}{
		{TopicCreated, EventCreated{Event: &model.Event{ID: "ev-1"}}},
		{TopicFed, EventsFed{Requested: 3, Added: 3}},
		{TopicUpdated, EventUpdated{EventID: "ev-1"}},
		{TopicDeleted, EventDeleted{EventID: "ev-1"}},
		{TopicEvicted, EventsEvicted{Reason: "age", EventIDs: []string{"ev-2"}}},
	}
	for _, tc := range published {
		if err := pub.Publish(context.Background(), tc.topic, tc.event); err != nil {
			t.Fatalf("Publish(%s): %v", tc.topic, err)
		}
	}
	pub.conn.Flush()

	for i, tc := range published {
		select {
		case msg := <-ch:
			if msg.Subject != tc.topic {
				t.Errorf("message %d subject = %q, want %q", i, msg.Subject, tc.topic)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestNATSPublisher_CanceledContext(t *testing.T) {
	url := startTestNATS(t)
	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pub.Publish(ctx, TopicCreated, EventCreated{}); err == nil {
		t.Error("expected error publishing with canceled context")
	}
}

func TestNATSPublisher_Close(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := pub.Publish(context.Background(), TopicCreated, EventCreated{}); err == nil {
		t.Error("expected error publishing after close")
	}
}
