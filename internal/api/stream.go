package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lexiqai/speech-relay/internal/pipeline"
)

const (
	streamReadTimeout  = 30 * time.Second
	streamWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	// Same-site UI and tools alike; admission is enforced per run
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// StreamEvent is one server message on /api/tts/ws
type StreamEvent struct {
	Event  string           `json:"event"`           // progress, result, error
	Index  int              `json:"index,omitempty"` // 1-based count of finished segments
	Total  int              `json:"total,omitempty"`
	Status int              `json:"status,omitempty"`
	Error  string           `json:"error,omitempty"`
	Result *pipeline.Result `json:"result,omitempty"`
}

// handleStream handles GET /api/tts/ws. The client sends one SubmitRequest;
// the server answers with progress events per segment and a final result or error.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	clientKey := ClientIP(r, s.cfg.TrustProxyHeaders)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
		return
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(streamReadTimeout))

	var req SubmitRequest
	if err := conn.ReadJSON(&req); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read stream submission")
		s.send(conn, StreamEvent{Event: "error", Status: http.StatusBadRequest, Error: "Invalid request body"})
		return
	}

	// Writes stay on this goroutine: progress fires synchronously from the run
	progress := func(index, total int) {
		s.send(conn, StreamEvent{Event: "progress", Index: index + 1, Total: total})
	}

	result, err := s.orch.Run(r.Context(), req.submission(clientKey), progress)
	if err != nil {
		status, msg := s.describeError(err)
		s.send(conn, StreamEvent{Event: "error", Status: status, Error: msg})
		return
	}

	s.send(conn, StreamEvent{Event: "result", Status: http.StatusOK, Result: result})

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
		time.Now().Add(streamWriteTimeout))
}

// send writes one event; a gone client is logged and otherwise ignored
func (s *Server) send(conn *websocket.Conn, ev StreamEvent) {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if err := conn.WriteJSON(ev); err != nil {
		s.logger.Debug().Err(err).Str("event", ev.Event).Msg("Failed to write stream event")
	}
}
