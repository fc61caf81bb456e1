package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// sseRingBufferSize is how many recent notifications are kept for
	// Last-Event-ID replay.
	sseRingBufferSize = 1000

	// sseClientBuffer is the per-client channel depth. Slow clients lose
	// notifications beyond it.
	sseClientBuffer = 64

	sseKeepaliveInterval = 15 * time.Second
)

// sseEvent is one notification as delivered to SSE clients.
type sseEvent struct {
	ID    uint64
	Topic string
	Data  []byte
}

// sseHub fans out notifications to connected SSE clients and remembers the
// most recent ones for reconnecting clients.
type sseHub struct {
	mu      sync.RWMutex
	clients map[*sseClient]struct{}

	ringMu sync.RWMutex
	ring   []sseEvent
	next   uint64 // id of the next notification; ids start at 1
}

type sseClient struct {
	topics []string // NATS-style patterns; empty matches everything
	ch     chan *sseEvent
}

func newSSEHub(size int) *sseHub {
	return &sseHub{
		clients: make(map[*sseClient]struct{}),
		ring:    make([]sseEvent, size),
		next:    1,
	}
}

// broadcast records a notification and hands it to every matching client
// without blocking.
func (h *sseHub) broadcast(topic string, payload []byte) {
	h.ringMu.Lock()
	evt := sseEvent{ID: h.next, Topic: topic, Data: payload}
	h.ring[int((h.next-1)%uint64(len(h.ring)))] = evt
	h.next++
	h.ringMu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.matches(topic) {
			continue
		}
		select {
		case c.ch <- &evt:
		default:
		}
	}
}

func (h *sseHub) subscribe(topics []string) *sseClient {
	c := &sseClient{topics: topics, ch: make(chan *sseEvent, sseClientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *sseHub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// since returns the buffered notifications with an id greater than lastID,
// oldest first. Notifications that fell out of the ring are gone.
func (h *sseHub) since(lastID uint64) []sseEvent {
	h.ringMu.RLock()
	defer h.ringMu.RUnlock()

	size := uint64(len(h.ring))
	newest := h.next - 1
	oldest := uint64(1)
	if newest > size {
		oldest = newest - size + 1
	}
	first := max(lastID+1, oldest)

	var out []sseEvent
	for id := first; id <= newest; id++ {
		out = append(out, h.ring[int((id-1)%size)])
	}
	return out
}

func (c *sseClient) matches(topic string) bool {
	if len(c.topics) == 0 {
		return true
	}
	for _, p := range c.topics {
		if matchTopicPattern(p, topic) {
			return true
		}
	}
	return false
}

// matchTopicPattern matches a dot-separated topic against a NATS-style
// pattern: "*" matches one segment, a trailing ">" matches one or more.
func matchTopicPattern(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	pat := strings.Split(pattern, ".")
	top := strings.Split(topic, ".")
	for i, p := range pat {
		if p == ">" {
			return i < len(top)
		}
		if i >= len(top) || (p != "*" && p != top[i]) {
			return false
		}
	}
	return len(pat) == len(top)
}

// handleEventStream handles GET /v1/events/stream.
func (s *EventsServer) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var topics []string
	for _, t := range strings.Split(r.URL.Query().Get("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}

	client := s.sseHub.subscribe(topics)
	defer s.sseHub.unsubscribe(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if lastID, err := strconv.ParseUint(v, 10, 64); err == nil {
			for _, evt := range s.sseHub.since(lastID) {
				if client.matches(evt.Topic) {
					writeSSEEvent(w, &evt)
				}
			}
			flusher.Flush()
		}
	}

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-client.ch:
			writeSSEEvent(w, evt)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, evt *sseEvent) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", evt.ID, evt.Topic, evt.Data)
}
