package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"testing"
	"time"

	"enotebook-sync/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, maxClients int) (*Manager, context.CancelFunc) {
	t.Helper()
	m := NewManager(maxClients, time.Second, time.Minute, 50*time.Second)
	m.SetLogger(log.New(io.Discard, "", 0))
	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)
	return m, cancel
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case raw := <-c.Send:
		var msg Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
	}
	return Message{}
}

func TestManager_PublishReachesEveryClient(t *testing.T) {
	m, cancel := newTestManager(t, 0)
	defer cancel()

	a := NewClient("a", nil, m)
	b := NewClient("b", nil, m)
	m.Register <- a
	m.Register <- b
	require.Eventually(t, func() bool { return m.Connections() == 2 }, time.Second, 5*time.Millisecond)

	child := domain.SubNote{ID: "temp-1", Title: "Milk", Provenance: domain.ProvenancePending}
	m.Publish(domain.Event{Type: domain.EventSubNoteUpsert, NoteID: "n1", SubNoteID: "temp-1", SubNote: &child})

	for _, c := range []*Client{a, b} {
		msg := receive(t, c)
		assert.Equal(t, MessageType(domain.EventSubNoteUpsert), msg.Type)

		var ev domain.Event
		require.NoError(t, msg.UnmarshalPayload(&ev))
		assert.Equal(t, "n1", ev.NoteID)
		require.NotNil(t, ev.SubNote)
		assert.True(t, ev.SubNote.IsPending())
	}
}

func TestManager_MaxClients(t *testing.T) {
	m, cancel := newTestManager(t, 1)
	defer cancel()

	m.Register <- NewClient("a", nil, m)
	rejected := NewClient("b", nil, m)
	m.Register <- rejected

	_, open := <-rejected.Send
	assert.False(t, open, "over-limit client must be closed")
	assert.Equal(t, 1, m.Connections())
}

func TestManager_PingIsAnswered(t *testing.T) {
	m, cancel := newTestManager(t, 0)
	defer cancel()

	c := NewClient("a", nil, m)
	m.Register <- c
	m.HandleMessage <- &ClientMessage{Client: c, Message: []byte(`{"type":"ping"}`)}

	assert.Equal(t, TypePong, receive(t, c).Type)
}

type recordingHandler struct {
	got chan MessageType
}

func (h *recordingHandler) HandleWebSocketMessage(client *Client, msg *Message) error {
	h.got <- msg.Type
	return nil
}

func TestManager_ForwardsToHandler(t *testing.T) {
	m, cancel := newTestManager(t, 0)
	defer cancel()
	h := &recordingHandler{got: make(chan MessageType, 1)}
	m.SetMessageHandler(h)

	c := NewClient("a", nil, m)
	m.Register <- c
	m.HandleMessage <- &ClientMessage{Client: c, Message: []byte(`{"type":"sync_request"}`)}

	select {
	case typ := <-h.got:
		assert.Equal(t, TypeSyncRequest, typ)
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
}

func TestManager_StopClosesClients(t *testing.T) {
	m, cancel := newTestManager(t, 0)

	c := NewClient("a", nil, m)
	m.Register <- c
	cancel()

	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("manager did not stop")
	}
	_, open := <-c.Send
	assert.False(t, open)
	assert.Equal(t, 0, m.Connections())
}
