package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nimbusai/nimbus/internal/agent"
	"github.com/nimbusai/nimbus/internal/archive"
)

// ChatRequest is the body of the chat endpoints.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
	UserID    string `json:"userId,omitempty"`
}

// Stream event names shared by the SSE and WebSocket transports.
const (
	eventMeta  = "meta"
	eventDelta = "delta"
	eventDone  = "done"
	eventError = "error"
)

// streamMeta opens a stream: ids first, so the client can correlate
// before any content arrives.
type streamMeta struct {
	SessionID string `json:"sessionId"`
	TraceID   string `json:"traceId"`
}

type streamDelta struct {
	Content string `json:"content"`
}

type streamError struct {
	Message string `json:"message"`
}

// deltaChunkRunes sizes the pseudo-stream chunks carved from the
// completed answer.
const deltaChunkRunes = 8

// deltaInterval paces pseudo-stream chunks so clients render
// progressively. The stable mode skips pacing.
const deltaInterval = 30 * time.Millisecond

func (s *Server) decodeChatRequest(w http.ResponseWriter, r *http.Request) (ChatRequest, bool) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return ChatRequest{}, false
	}
	if strings.TrimSpace(req.Message) == "" {
		s.errorResponse(w, http.StatusBadRequest, "message must not be empty")
		return ChatRequest{}, false
	}
	return req, true
}

// archiveTurn records a completed run. Archive failures are logged,
// never surfaced: the user already has their answer.
func (s *Server) archiveTurn(r *http.Request, req ChatRequest, result agent.RunResult, started time.Time) {
	if s.arch == nil {
		return
	}

	turn := archive.Turn{
		SessionID:        result.SessionID,
		UserID:           req.UserID,
		TraceID:          result.TraceID,
		UserMessage:      req.Message,
		AssistantMessage: result.Content,
		Success:          result.Success,
		TraceCount:       len(result.Traces),
		DurationMs:       time.Since(started).Milliseconds(),
	}
	if !result.Success {
		turn.AssistantMessage = result.ErrorMessage
	}
	if result.City != nil {
		turn.City = result.City.Name
	}
	if err := s.arch.RecordTurn(r.Context(), turn); err != nil {
		s.logger.Warn("failed to archive turn",
			"session", result.SessionID,
			"error", err,
		)
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}

	started := time.Now()
	result, err := s.loop.Run(r.Context(), req.SessionID, req.UserID, req.Message)
	if err != nil {
		if errors.Is(err, agent.ErrEmptyMessage) {
			s.errorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.archiveTurn(r, req, result, started)
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, result, s.logger)
}

// handleChatStream runs the agent to completion and replays the answer
// as an SSE stream: one meta event, paced delta events carved from the
// content, and a final done event with the full structured result.
// mode=stable skips pacing for clients that only want the framing.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.errorResponse(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering

	started := time.Now()
	result, err := s.loop.Run(r.Context(), req.SessionID, req.UserID, req.Message)
	if err != nil {
		s.writeSSE(w, eventError, streamError{Message: err.Error()})
		flusher.Flush()
		return
	}

	s.archiveTurn(r, req, result, started)

	s.writeSSE(w, eventMeta, streamMeta{SessionID: result.SessionID, TraceID: result.TraceID})
	flusher.Flush()

	if !result.Success {
		s.writeSSE(w, eventError, streamError{Message: result.ErrorMessage})
		s.writeSSE(w, eventDone, result)
		flusher.Flush()
		return
	}

	pace := r.URL.Query().Get("mode") != "stable"
	for _, chunk := range chunkContent(result.Content, deltaChunkRunes) {
		if r.Context().Err() != nil {
			return
		}
		s.writeSSE(w, eventDelta, streamDelta{Content: chunk})
		flusher.Flush()
		if pace {
			select {
			case <-time.After(deltaInterval):
			case <-r.Context().Done():
				return
			}
		}
	}

	s.writeSSE(w, eventDone, result)
	flusher.Flush()
}

func (s *Server) writeSSE(w http.ResponseWriter, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Debug("failed to marshal SSE event", "event", event, "error", err)
		return
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		s.logger.Debug("failed to write SSE event", "event", event, "error", err)
	}
}

// chunkContent splits a string into rune groups of at most size.
func chunkContent(content string, size int) []string {
	runes := []rune(content)
	var chunks []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
