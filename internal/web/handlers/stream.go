package handlers

import (
	"encoding/base64"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/facegate/facegate/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1 << 20,
	WriteBufferSize: 1 << 20,
	// Origin checks are handled by the CORS middleware.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamHandler drives the realtime recognition websocket.
type StreamHandler struct {
	coordinator *session.Coordinator
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(coordinator *session.Coordinator) *StreamHandler {
	return &StreamHandler{coordinator: coordinator}
}

// Serve handles GET /ws. Each connection gets its own session state;
// frames arrive as base64 text messages (an optional data URL prefix is
// stripped) and every processed frame answers with one JSON report.
func (h *StreamHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	sess := h.coordinator.NewSession()
	log.Printf("session %s: stream opened from %s", sess.ID, r.RemoteAddr)
	defer log.Printf("session %s: stream closed", sess.ID)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("session %s: read: %v", sess.ID, err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		frame, err := decodeFrame(string(data))
		if err != nil {
			// malformed frame, skip without touching session state
			continue
		}

		report, err := h.coordinator.ProcessFrame(r.Context(), sess, frame)
		if errors.Is(err, session.ErrInvalidImage) {
			continue
		}
		if err != nil {
			log.Printf("session %s: process frame: %v", sess.ID, err)
			continue
		}

		if err := conn.WriteJSON(report); err != nil {
			log.Printf("session %s: write: %v", sess.ID, err)
			return
		}
	}
}

// decodeFrame strips an optional data URL prefix and decodes base64.
func decodeFrame(data string) ([]byte, error) {
	if idx := strings.IndexByte(data, ','); idx >= 0 {
		data = data[idx+1:]
	}
	return base64.StdEncoding.DecodeString(data)
}
