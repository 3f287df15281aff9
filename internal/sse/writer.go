// Package sse writes and parses Server-Sent-Events streams.
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// Event names used by the chat stream.
const (
	EventStart = "start"
	EventToken = "token"
	EventEnd   = "end"
	EventError = "error"
)

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush.
var ErrStreamingUnsupported = errors.New("streaming not supported")

// Writer emits SSE events on an http.ResponseWriter, flushing after each one.
type Writer struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter sets the event-stream headers and returns a Writer.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Writer{w: w, flusher: flusher}, nil
}

// Send writes one event with data marshalled as JSON.
func (s *Writer) Send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// StartPayload is the data of a start event.
type StartPayload struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
}

// TokenPayload is the data of a token event.
type TokenPayload struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
}

// EndPayload is the data of an end event.
type EndPayload struct {
	Status       string `json:"status"`
	FullResponse string `json:"full_response"`
	SessionID    string `json:"session_id"`
}

// ErrorPayload is the data of an error event.
type ErrorPayload struct {
	Error     string `json:"error"`
	SessionID string `json:"session_id"`
}

// Start sends the start event.
func (s *Writer) Start(sessionID string) error {
	return s.Send(EventStart, StartPayload{Status: "started", SessionID: sessionID})
}

// Token sends one token event.
func (s *Writer) Token(sessionID, token string) error {
	return s.Send(EventToken, TokenPayload{Token: token, SessionID: sessionID})
}

// End sends the completion event carrying the full response.
func (s *Writer) End(sessionID, full string) error {
	return s.Send(EventEnd, EndPayload{Status: "completed", FullResponse: full, SessionID: sessionID})
}

// Error sends an error event.
func (s *Writer) Error(sessionID string, err error) error {
	return s.Send(EventError, ErrorPayload{Error: err.Error(), SessionID: sessionID})
}
