package progresshub

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	hub := NewHub(nil, log)
	router := gin.New()
	router.GET("/ws", hub.ServeWS)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return hub, server
}

func dialWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// First frame is the connected greeting.
	msg := readFrame(t, conn)
	require.Equal(t, "connected", msg["type"])
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func joinRoom(t *testing.T, conn *websocket.Conn, transcriptionID string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":             "join_transcription",
		"transcription_id": transcriptionID,
	}))
	msg := readFrame(t, conn)
	require.Equal(t, "room_joined", msg["type"])
	require.Equal(t, transcriptionID, msg["transcription_id"])
}

func TestPublishReachesOnlySubscribedRoom(t *testing.T) {
	hub, server := newTestHub(t)

	connA := dialWS(t, server)
	connB := dialWS(t, server)
	joinRoom(t, connA, "job-a")
	joinRoom(t, connB, "job-b")

	hub.Publish("job-a", "transcription_progress", map[string]interface{}{
		"stage":      "processing",
		"percentage": 50,
	})

	msg := readFrame(t, connA)
	assert.Equal(t, "transcription_progress", msg["type"])
	assert.Equal(t, "job-a", msg["transcription_id"])
	assert.Equal(t, float64(50), msg["percentage"])

	// B must see nothing: its read runs into the deadline.
	require.NoError(t, connB.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	var stray map[string]interface{}
	err := connB.ReadJSON(&stray)
	assert.Error(t, err, "subscriber of another room received the event: %v", stray)
}

func TestPublishWithNoSubscribersIsDropped(t *testing.T) {
	hub, _ := newTestHub(t)
	// Nothing to assert beyond not blocking or panicking.
	hub.Publish("job-x", "transcription_progress", map[string]interface{}{"percentage": 10})
}

func TestLeaveStopsDelivery(t *testing.T) {
	hub, server := newTestHub(t)
	conn := dialWS(t, server)
	joinRoom(t, conn, "job-a")

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":             "leave_transcription",
		"transcription_id": "job-a",
	}))
	msg := readFrame(t, conn)
	require.Equal(t, "room_left", msg["type"])

	hub.Publish("job-a", "transcription_progress", map[string]interface{}{"percentage": 75})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	var stray map[string]interface{}
	assert.Error(t, conn.ReadJSON(&stray))
}

func TestLeaveWithoutMembershipIsNoOp(t *testing.T) {
	_, server := newTestHub(t)
	conn := dialWS(t, server)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":             "leave_transcription",
		"transcription_id": "never-joined",
	}))
	msg := readFrame(t, conn)
	assert.Equal(t, "room_left", msg["type"])
}

func TestJoinSecondRoomKeepsFirstMembership(t *testing.T) {
	hub, server := newTestHub(t)
	conn := dialWS(t, server)
	joinRoom(t, conn, "job-a")
	joinRoom(t, conn, "job-b")

	hub.Publish("job-a", "transcription_progress", map[string]interface{}{"percentage": 30})
	msg := readFrame(t, conn)
	assert.Equal(t, "job-a", msg["transcription_id"])
}

func TestPingPong(t *testing.T) {
	_, server := newTestHub(t)
	conn := dialWS(t, server)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "ping"}))
	msg := readFrame(t, conn)
	assert.Equal(t, "pong", msg["type"])
	assert.NotEmpty(t, msg["timestamp"])
}

func TestUnknownMessageTypeAnswersError(t *testing.T) {
	_, server := newTestHub(t)
	conn := dialWS(t, server)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "subscribe"}))
	msg := readFrame(t, conn)
	assert.Equal(t, "error", msg["type"])
}

func TestDisconnectCleansUpMembership(t *testing.T) {
	hub, server := newTestHub(t)
	conn := dialWS(t, server)
	joinRoom(t, conn, "job-a")
	conn.Close()

	// Cleanup runs asynchronously when the read loop notices the close.
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.rooms) == 0 && len(hub.conns) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestJoinWithInvalidTokenStillJoins(t *testing.T) {
	_, server := newTestHub(t)
	conn := dialWS(t, server)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":             "join_transcription",
		"transcription_id": "job-a",
		"token":            "not-a-valid-jwt",
	}))
	msg := readFrame(t, conn)
	assert.Equal(t, "room_joined", msg["type"])
}
