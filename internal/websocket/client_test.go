package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"enotebook-sync/internal/domain"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialSubscriber(t *testing.T, m *Manager) *gws.Conn {
	t.Helper()
	upgrader := gws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewClient("sub-1", conn, m)
		m.Register <- c
		c.Serve()
	}))
	t.Cleanup(srv.Close)

	conn, _, err := gws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return m.Connections() == 1 }, time.Second, 5*time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *gws.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, gws.TextMessage, kind)
	var msg Message
	require.NoError(t, json.Unmarshal(frame, &msg), "frame must hold exactly one message: %s", frame)
	return msg
}

func TestClient_OneFramePerEvent(t *testing.T) {
	m, cancel := newTestManager(t, 0)
	defer cancel()
	conn := dialSubscriber(t, m)

	m.Publish(domain.Event{Type: domain.EventSubNoteUpsert, NoteID: "n1", SubNoteID: "temp-1"})
	m.Publish(domain.Event{Type: domain.EventSubNoteReplace, NoteID: "n1", SubNoteID: "srv-1", PreviousID: "temp-1"})

	first := readFrame(t, conn)
	second := readFrame(t, conn)
	assert.Equal(t, MessageType(domain.EventSubNoteUpsert), first.Type)
	assert.Equal(t, MessageType(domain.EventSubNoteReplace), second.Type)

	var ev domain.Event
	require.NoError(t, second.UnmarshalPayload(&ev))
	assert.Equal(t, "temp-1", ev.PreviousID)
}

func TestClient_PingGetsPong(t *testing.T) {
	m, cancel := newTestManager(t, 0)
	defer cancel()
	conn := dialSubscriber(t, m)

	require.NoError(t, conn.WriteMessage(gws.TextMessage, []byte(`{"type":"ping"}`)))
	assert.Equal(t, TypePong, readFrame(t, conn).Type)
}

func TestClient_OversizedFrameDisconnects(t *testing.T) {
	m, cancel := newTestManager(t, 0)
	defer cancel()
	conn := dialSubscriber(t, m)

	require.NoError(t, conn.WriteMessage(gws.TextMessage, []byte(strings.Repeat("x", 2*maxInboundFrame))))
	require.Eventually(t, func() bool { return m.Connections() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestClient_ManagerStopSendsNormalClose(t *testing.T) {
	m, cancel := newTestManager(t, 0)
	conn := dialSubscriber(t, m)

	cancel()
	<-m.Done()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, gws.IsCloseError(err, gws.CloseNormalClosure), "got %v", err)
}
