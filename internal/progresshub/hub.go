package progresshub

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// IdentityVerifier decodes an optional join token into a user identity
// for logging attribution. Verification is best-effort: a failure never
// blocks joining, since knowing the transcription id is the access
// boundary in this design.
type IdentityVerifier interface {
	VerifyToken(token string) (string, error)
}

// subscription records one connection's membership in one room.
type subscription struct {
	conn     *connection
	user     string
	joinedAt time.Time
}

// Hub maintains the mapping from transcription id to subscribed
// connections and delivers progress events to exactly that set. Events
// are not persisted: with no subscribers, a publish is dropped.
//
// join, leave, cleanup and publish all run concurrently from different
// connection handlers, so every access goes through the mutex.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*subscription // transcription id -> conn id -> subscription
	conns map[string]*connection

	verifier IdentityVerifier
	log      *logrus.Entry
}

// NewHub builds an empty hub. verifier may be nil, in which case join
// tokens are ignored.
func NewHub(verifier IdentityVerifier, log *logrus.Logger) *Hub {
	return &Hub{
		rooms:    make(map[string]map[string]*subscription),
		conns:    make(map[string]*connection),
		verifier: verifier,
		log:      log.WithField("component", "progresshub"),
	}
}

// Join registers the connection in the transcription's room and
// confirms with a room_joined event to the joiner only. Joining a
// second room does not leave the first; an explicit leave is required.
func (h *Hub) Join(connID, transcriptionID, user string) bool {
	h.mu.Lock()
	conn, ok := h.conns[connID]
	if !ok {
		h.mu.Unlock()
		h.log.WithField("conn_id", connID).Warn("join for unknown connection")
		return false
	}
	room, ok := h.rooms[transcriptionID]
	if !ok {
		room = make(map[string]*subscription)
		h.rooms[transcriptionID] = room
	}
	room[connID] = &subscription{conn: conn, user: user, joinedAt: time.Now()}
	h.mu.Unlock()

	h.log.WithFields(logrus.Fields{
		"conn_id":          connID,
		"transcription_id": transcriptionID,
		"user":             user,
	}).Info("connection joined room")

	if err := conn.writeJSON(map[string]interface{}{
		"type":             "room_joined",
		"transcription_id": transcriptionID,
	}); err != nil {
		h.log.WithError(err).WithField("conn_id", connID).Error("failed to confirm room join")
		return false
	}
	return true
}

// Leave removes the connection from the room. Calling it for a
// connection that is not a member is a harmless no-op.
func (h *Hub) Leave(connID, transcriptionID string) bool {
	h.mu.Lock()
	if room, ok := h.rooms[transcriptionID]; ok {
		delete(room, connID)
		if len(room) == 0 {
			delete(h.rooms, transcriptionID)
		}
	}
	h.mu.Unlock()

	h.log.WithFields(logrus.Fields{
		"conn_id":          connID,
		"transcription_id": transcriptionID,
	}).Info("connection left room")
	return true
}

// Publish delivers an event to every connection in the transcription's
// room. Delivery failures are logged per connection and never affect
// the other members or the caller.
func (h *Hub) Publish(transcriptionID, event string, payload map[string]interface{}) {
	message := make(map[string]interface{}, len(payload)+2)
	for k, v := range payload {
		message[k] = v
	}
	message["type"] = event
	message["transcription_id"] = transcriptionID

	h.mu.RLock()
	subscribers := make([]*subscription, 0, len(h.rooms[transcriptionID]))
	for _, sub := range h.rooms[transcriptionID] {
		subscribers = append(subscribers, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subscribers {
		if err := sub.conn.writeJSON(message); err != nil {
			h.log.WithError(err).WithFields(logrus.Fields{
				"conn_id":          sub.conn.id,
				"transcription_id": transcriptionID,
				"event":            event,
			}).Warn("failed to deliver progress event")
		}
	}
}

// Cleanup removes all membership state for a disconnecting connection.
func (h *Hub) Cleanup(connID string) {
	h.mu.Lock()
	delete(h.conns, connID)
	for transcriptionID, room := range h.rooms {
		delete(room, connID)
		if len(room) == 0 {
			delete(h.rooms, transcriptionID)
		}
	}
	h.mu.Unlock()

	h.log.WithField("conn_id", connID).Info("connection cleaned up")
}

// register adds a newly upgraded connection to the hub.
func (h *Hub) register(conn *connection) {
	h.mu.Lock()
	h.conns[conn.id] = conn
	h.mu.Unlock()
}

// identity resolves the optional join token into a user label.
func (h *Hub) identity(token string) string {
	if token == "" || h.verifier == nil {
		return ""
	}
	user, err := h.verifier.VerifyToken(token)
	if err != nil {
		h.log.WithError(err).Debug("join token rejected, joining anonymously")
		return ""
	}
	return user
}
