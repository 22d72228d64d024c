package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The API has no browser origin of its own; clients embed it.
	CheckOrigin: func(*http.Request) bool { return true },
}

const wsWriteTimeout = 10 * time.Second

// wsFrame is the envelope for every server-to-client message; Event
// reuses the SSE event names.
type wsFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// handleChatWS serves a persistent chat connection. Each client text
// message is a ChatRequest; the reply is the same meta/delta/done
// sequence the SSE endpoint emits, framed as JSON messages.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.logger.Info("websocket client connected", "remote", conn.RemoteAddr())

	for {
		var req ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read failed", "error", err)
			}
			return
		}

		if strings.TrimSpace(req.Message) == "" {
			if err := s.writeWS(conn, eventError, streamError{Message: "message must not be empty"}); err != nil {
				return
			}
			continue
		}

		started := time.Now()
		result, err := s.loop.Run(r.Context(), req.SessionID, req.UserID, req.Message)
		if err != nil {
			if err := s.writeWS(conn, eventError, streamError{Message: err.Error()}); err != nil {
				return
			}
			continue
		}

		s.archiveTurn(r, req, result, started)

		if err := s.writeWS(conn, eventMeta, streamMeta{SessionID: result.SessionID, TraceID: result.TraceID}); err != nil {
			return
		}
		if result.Success {
			for _, chunk := range chunkContent(result.Content, deltaChunkRunes) {
				if err := s.writeWS(conn, eventDelta, streamDelta{Content: chunk}); err != nil {
					return
				}
			}
		} else {
			if err := s.writeWS(conn, eventError, streamError{Message: result.ErrorMessage}); err != nil {
				return
			}
		}
		if err := s.writeWS(conn, eventDone, result); err != nil {
			return
		}
	}
}

func (s *Server) writeWS(conn *websocket.Conn, event string, v any) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(wsFrame{Event: event, Data: v}); err != nil {
		s.logger.Debug("websocket write failed", "event", event, "error", err)
		return err
	}
	return nil
}
