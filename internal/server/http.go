package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	eventsync "github.com/alfredjeanlab/hotstore/internal/sync"
)

// maxBodyBytes bounds request bodies. Feeds from the archive are the largest
// payloads the API accepts.
const maxBodyBytes = 32 << 20

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *EventsServer) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/events", s.handleCreateEvent)
	mux.HandleFunc("GET /v1/events", s.handleListEvents)
	mux.HandleFunc("POST /v1/events/feed", s.handleFeedEvents)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	mux.HandleFunc("GET /v1/events/{id}", s.handleGetEvent)
	mux.HandleFunc("PATCH /v1/events/{id}", s.handleUpdateEvent)
	mux.HandleFunc("DELETE /v1/events/{id}", s.handleDeleteEvent)
	mux.HandleFunc("GET /v1/stats", s.handleStats)
	mux.HandleFunc("GET /v1/bots", s.handleRoster)
	mux.HandleFunc("GET /v1/export", s.handleExport)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	return RecoveryMiddleware(s.logger, LoggingMiddleware(s.logger, AuthMiddleware(authToken, mux)))
}

// handleCreateEvent handles POST /v1/events.
func (s *EventsServer) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := s.createEvent(r.Context(), req)
	if err != nil {
		s.writeOpError(w, "create event", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListEvents handles GET /v1/events.
func (s *EventsServer) handleListEvents(w http.ResponseWriter, r *http.Request) {
	req, err := parseListQuery(r.URL.Query().Get)
	if err != nil {
		s.writeOpError(w, "list events", err)
		return
	}
	resp, err := s.listEvents(r.Context(), req)
	if err != nil {
		s.writeOpError(w, "list events", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetEvent handles GET /v1/events/{id}.
func (s *EventsServer) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.getEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeOpError(w, "get event", err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// handleFeedEvents handles POST /v1/events/feed. Backend failures are not
// surfaced here; the response reports added_count 0 instead.
func (s *EventsServer) handleFeedEvents(w http.ResponseWriter, r *http.Request) {
	var req feedRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.feedEvents(r.Context(), req))
}

// handleUpdateEvent handles PATCH /v1/events/{id}.
func (s *EventsServer) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.EventID = r.PathValue("id")
	resp, err := s.updateEvent(r.Context(), req)
	if err != nil {
		s.writeOpError(w, "update event", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDeleteEvent handles DELETE /v1/events/{id}.
func (s *EventsServer) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	resp, err := s.deleteEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeOpError(w, "delete event", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStats handles GET /v1/stats.
func (s *EventsServer) handleStats(w http.ResponseWriter, r *http.Request) {
	resp, err := s.stats(r.Context())
	if err != nil {
		s.writeOpError(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRoster handles GET /v1/bots.
func (s *EventsServer) handleRoster(w http.ResponseWriter, r *http.Request) {
	resp, err := s.roster(rosterRequest{Stale: r.URL.Query().Get("stale")})
	if err != nil {
		s.writeOpError(w, "roster", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleExport handles GET /v1/export. With ?compress=zstd the JSONL body is
// zstd-compressed.
func (s *EventsServer) handleExport(w http.ResponseWriter, r *http.Request) {
	compress := r.URL.Query().Get("compress")
	if compress != "" && compress != "zstd" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported compression %q", compress))
		return
	}

	var buf bytes.Buffer
	if err := eventsync.ExportJSONL(r.Context(), s.store, s.store.Key(), &buf); err != nil {
		s.writeOpError(w, "export", err)
		return
	}
	body := buf.Bytes()

	name := fmt.Sprintf("hotstore-%s.jsonl", time.Now().UTC().Format("20060102T150405Z"))
	contentType := "application/x-ndjson"
	if compress == "zstd" {
		body = eventsync.Compress(body)
		name += ".zst"
		contentType = "application/zstd"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handleHealth handles GET /v1/health.
func (s *EventsServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.health(r.Context()))
}

// decodeBody decodes a JSON request body into v. On failure it writes a 400
// and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "request body is required")
			return false
		}
		writeErrorDetail(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return false
	}
	return true
}

// writeOpError maps err to a status and writes it. Server-side failures are
// logged; client errors are not.
func (s *EventsServer) writeOpError(w http.ResponseWriter, op string, err error) {
	code, msg := httpStatus(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", "error", err)
	}
	if code == http.StatusBadRequest {
		writeErrorDetail(w, code, "invalid request", msg)
		return
	}
	writeError(w, code, msg)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeErrorDetail(w http.ResponseWriter, status int, message, detail string) {
	writeJSON(w, status, errorResponse{Error: message, Detail: detail})
}
