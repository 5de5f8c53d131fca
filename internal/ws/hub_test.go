package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthboard/pkg/logger"
)

func startTestHub(t *testing.T, maxConnections int) (*Hub, string) {
	t.Helper()
	log, err := logger.New("error", "test")
	require.NoError(t, err)

	hub := NewHub(maxConnections, log)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		NewClient(hub, conn, 30*time.Second, log).Start()
	}))
	t.Cleanup(server.Close)

	return hub, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_ConnectionGreeting(t *testing.T) {
	_, url := startTestHub(t, 10)
	conn := dial(t, url)

	greeting := readMessage(t, conn)
	assert.Equal(t, MessageTypeConnectionEstablished, greeting.Type)
	assert.NotEmpty(t, greeting.Timestamp)
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	hub, url := startTestHub(t, 10)

	first := dial(t, url)
	second := dial(t, url)
	readMessage(t, first)
	readMessage(t, second)

	hub.NotifySyncStatus("scheduled", "Refresh started")

	for _, conn := range []*websocket.Conn{first, second} {
		msg := readMessage(t, conn)
		assert.Equal(t, MessageTypeSyncStatus, msg.Type)
		assert.Equal(t, "scheduled", msg.Status)
		assert.Equal(t, "Refresh started", msg.Message)
	}
}

func TestHub_NotifySyncCompleted(t *testing.T) {
	hub, url := startTestHub(t, 10)
	conn := dial(t, url)
	readMessage(t, conn)

	hub.NotifySyncCompleted(true, 1234)

	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeSyncCompleted, msg.Type)
	require.NotNil(t, msg.Success)
	assert.True(t, *msg.Success)
	assert.Equal(t, int64(1234), msg.DurationMs)
}

func TestHub_ConnectionLimit(t *testing.T) {
	_, url := startTestHub(t, 1)

	first := dial(t, url)
	greeting := readMessage(t, first)
	assert.Equal(t, MessageTypeConnectionEstablished, greeting.Type)

	// The second connection is closed instead of greeted.
	second := dial(t, url)
	require.NoError(t, second.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	err := second.ReadJSON(&msg)
	assert.Error(t, err)
}

func TestHub_PingPong(t *testing.T) {
	_, url := startTestHub(t, 10)
	conn := dial(t, url)
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(Message{Type: MessageTypePing}))

	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypePong, msg.Type)
}
