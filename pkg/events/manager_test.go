package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockCatchupQuerier implements CatchupQuerier for tests.
type mockCatchupQuerier struct {
	events []CatchupEvent
	err    error
}

func (m *mockCatchupQuerier) GetCatchupEvents(_ context.Context, _ string, sinceID int64, limit int) ([]CatchupEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []CatchupEvent
	for _, evt := range m.events {
		if evt.ID > sinceID {
			out = append(out, evt)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func setupTestManager(t *testing.T, querier CatchupQuerier) (*ConnectionManager, *httptest.Server) {
	t.Helper()

	manager := NewConnectionManager(querier, 5*time.Second)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			t.Logf("WebSocket accept error: %v", err)
			return
		}
		manager.HandleConnection(r.Context(), conn)
	}))

	t.Cleanup(func() { server.Close() })
	return manager, server
}

func connectWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + server.URL[len("http"):]
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func writeClientMessage(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func TestConnectionManager_ConnectionEstablished(t *testing.T) {
	_, server := setupTestManager(t, &mockCatchupQuerier{})
	conn := connectWS(t, server)

	msg := readJSON(t, conn)
	assert.Equal(t, "connection.established", msg["type"])
	assert.NotEmpty(t, msg["connection_id"])
}

func TestConnectionManager_SubscribeConfirmed(t *testing.T) {
	manager, server := setupTestManager(t, &mockCatchupQuerier{})
	conn := connectWS(t, server)
	readJSON(t, conn) // connection.established

	writeClientMessage(t, conn, ClientMessage{Action: "subscribe", Channel: "session:test-123"})

	msg := readJSON(t, conn)
	assert.Equal(t, "subscription.confirmed", msg["type"])
	assert.Equal(t, "session:test-123", msg["channel"])

	require.Eventually(t, func() bool {
		return manager.subscriberCount("session:test-123") == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, manager.ActiveConnections())
}

func TestConnectionManager_Broadcast(t *testing.T) {
	manager, server := setupTestManager(t, &mockCatchupQuerier{})

	conn1 := connectWS(t, server)
	conn2 := connectWS(t, server)
	readJSON(t, conn1)
	readJSON(t, conn2)

	channel := "session:broadcast-test"
	writeClientMessage(t, conn1, ClientMessage{Action: "subscribe", Channel: channel})
	writeClientMessage(t, conn2, ClientMessage{Action: "subscribe", Channel: channel})
	readJSON(t, conn1) // subscription.confirmed
	readJSON(t, conn2)

	require.Eventually(t, func() bool {
		return manager.subscriberCount(channel) == 2
	}, 2*time.Second, 10*time.Millisecond)

	payload, _ := json.Marshal(map[string]string{"type": "test", "data": "hello"})
	manager.Broadcast(channel, payload)

	for _, conn := range []*websocket.Conn{conn1, conn2} {
		msg := readJSON(t, conn)
		assert.Equal(t, "test", msg["type"])
		assert.Equal(t, "hello", msg["data"])
	}
}

func TestConnectionManager_BroadcastOnlyToSubscribers(t *testing.T) {
	manager, server := setupTestManager(t, &mockCatchupQuerier{})

	subscriber := connectWS(t, server)
	bystander := connectWS(t, server)
	readJSON(t, subscriber)
	readJSON(t, bystander)

	writeClientMessage(t, subscriber, ClientMessage{Action: "subscribe", Channel: "session:a"})
	writeClientMessage(t, bystander, ClientMessage{Action: "subscribe", Channel: "session:b"})
	readJSON(t, subscriber)
	readJSON(t, bystander)

	require.Eventually(t, func() bool {
		return manager.subscriberCount("session:a") == 1 && manager.subscriberCount("session:b") == 1
	}, 2*time.Second, 10*time.Millisecond)

	payload, _ := json.Marshal(map[string]string{"type": "test"})
	manager.Broadcast("session:a", payload)

	msg := readJSON(t, subscriber)
	assert.Equal(t, "test", msg["type"])

	// The bystander only sees its own pong, not the broadcast
	writeClientMessage(t, bystander, ClientMessage{Action: "ping"})
	msg = readJSON(t, bystander)
	assert.Equal(t, "pong", msg["type"])
}

func TestConnectionManager_AutoCatchupOnSubscribe(t *testing.T) {
	querier := &mockCatchupQuerier{
		events: []CatchupEvent{
			{ID: 1, Payload: map[string]interface{}{"type": "session.started", "session_id": "s1"}},
			{ID: 2, Payload: map[string]interface{}{"type": "stage.started", "session_id": "s1"}},
		},
	}
	_, server := setupTestManager(t, querier)
	conn := connectWS(t, server)
	readJSON(t, conn)

	writeClientMessage(t, conn, ClientMessage{Action: "subscribe", Channel: "session:s1"})
	readJSON(t, conn) // subscription.confirmed

	msg := readJSON(t, conn)
	assert.Equal(t, "session.started", msg["type"])
	assert.Equal(t, float64(1), msg["db_event_id"])

	msg = readJSON(t, conn)
	assert.Equal(t, "stage.started", msg["type"])
	assert.Equal(t, float64(2), msg["db_event_id"])
}

func TestConnectionManager_CatchupFromPosition(t *testing.T) {
	querier := &mockCatchupQuerier{
		events: []CatchupEvent{
			{ID: 1, Payload: map[string]interface{}{"type": "one"}},
			{ID: 2, Payload: map[string]interface{}{"type": "two"}},
			{ID: 3, Payload: map[string]interface{}{"type": "three"}},
		},
	}
	_, server := setupTestManager(t, querier)
	conn := connectWS(t, server)
	readJSON(t, conn)

	lastID := int64(2)
	writeClientMessage(t, conn, ClientMessage{Action: "catchup", Channel: "session:s1", LastEventID: &lastID})

	msg := readJSON(t, conn)
	assert.Equal(t, "three", msg["type"])
}

func TestConnectionManager_CatchupOverflow(t *testing.T) {
	events := make([]CatchupEvent, catchupLimit+10)
	for i := range events {
		events[i] = CatchupEvent{ID: int64(i + 1), Payload: map[string]interface{}{"type": "evt", "n": i}}
	}
	_, server := setupTestManager(t, &mockCatchupQuerier{events: events})
	conn := connectWS(t, server)
	readJSON(t, conn)

	lastID := int64(0)
	writeClientMessage(t, conn, ClientMessage{Action: "catchup", Channel: "session:s1", LastEventID: &lastID})

	for i := 0; i < catchupLimit; i++ {
		msg := readJSON(t, conn)
		require.Equal(t, "evt", msg["type"], fmt.Sprintf("event %d", i))
	}

	msg := readJSON(t, conn)
	assert.Equal(t, "catchup.overflow", msg["type"])
	assert.Equal(t, true, msg["has_more"])
}

func TestConnectionManager_UnsubscribeStopsDelivery(t *testing.T) {
	manager, server := setupTestManager(t, &mockCatchupQuerier{})
	conn := connectWS(t, server)
	readJSON(t, conn)

	channel := "session:unsub"
	writeClientMessage(t, conn, ClientMessage{Action: "subscribe", Channel: channel})
	readJSON(t, conn)
	require.Eventually(t, func() bool {
		return manager.subscriberCount(channel) == 1
	}, 2*time.Second, 10*time.Millisecond)

	writeClientMessage(t, conn, ClientMessage{Action: "unsubscribe", Channel: channel})
	require.Eventually(t, func() bool {
		return manager.subscriberCount(channel) == 0
	}, 2*time.Second, 10*time.Millisecond)

	// Broadcast after unsubscribe is not delivered; ping confirms the
	// connection is still healthy and the read yields only the pong.
	manager.Broadcast(channel, []byte(`{"type":"test"}`))
	writeClientMessage(t, conn, ClientMessage{Action: "ping"})
	msg := readJSON(t, conn)
	assert.Equal(t, "pong", msg["type"])
}
