package progresshub

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// connection wraps one websocket with a write lock, since publishes
// from the reconciler race with protocol replies from the read loop.
type connection struct {
	id      string
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *connection) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(v)
}

// clientMessage is the inbound protocol frame.
type clientMessage struct {
	Type            string `json:"type"`
	TranscriptionID string `json:"transcription_id,omitempty"`
	Token           string `json:"token,omitempty"`
}

// ServeWS upgrades the request and runs the subscription protocol until
// the client disconnects.
func (h *Hub) ServeWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	conn := &connection{id: uuid.New().String(), ws: ws}
	h.register(conn)
	defer func() {
		h.Cleanup(conn.id)
		ws.Close()
	}()

	if err := conn.writeJSON(map[string]interface{}{
		"type":      "connected",
		"message":   "Connected to transcription progress stream",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return
	}

	for {
		var msg clientMessage
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "join_transcription":
			if msg.TranscriptionID == "" {
				h.sendError(conn, "transcription_id is required")
				continue
			}
			if !h.Join(conn.id, msg.TranscriptionID, h.identity(msg.Token)) {
				h.sendError(conn, "failed to join transcription room")
			}
		case "leave_transcription":
			if msg.TranscriptionID == "" {
				h.sendError(conn, "transcription_id is required")
				continue
			}
			h.Leave(conn.id, msg.TranscriptionID)
			if err := conn.writeJSON(map[string]interface{}{
				"type":             "room_left",
				"transcription_id": msg.TranscriptionID,
			}); err != nil {
				return
			}
		case "ping":
			if err := conn.writeJSON(map[string]interface{}{
				"type":      "pong",
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			}); err != nil {
				return
			}
		default:
			h.sendError(conn, "unknown message type")
		}
	}
}

func (h *Hub) sendError(conn *connection, message string) {
	if err := conn.writeJSON(map[string]interface{}{
		"type":    "error",
		"message": message,
	}); err != nil {
		h.log.WithError(err).WithField("conn_id", conn.id).Debug("failed to send error frame")
	}
}
