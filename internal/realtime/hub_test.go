package realtime

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOrigin = "http://dashboard.test"

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

func dial(t *testing.T, srv *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	h := http.Header{}
	if origin != "" {
		h.Set("Origin", origin)
	}
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), h)
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, b, err := conn.ReadMessage()
	require.NoError(t, err)
	var f frame
	require.NoError(t, json.Unmarshal(b, &f))
	return f
}

func TestInitialDataAndBroadcast(t *testing.T) {
	hub := startHub(t)
	srv := httptest.NewServer(NewHandler(hub, func() any { return map[string]string{"message": "none yet"} }, []string{testOrigin}))
	defer srv.Close()

	conn, _, err := dial(t, srv, testOrigin)
	require.NoError(t, err)

	first := readFrame(t, conn)
	assert.Equal(t, EventInitialData, first.Type)
	assert.JSONEq(t, `{"message":"none yet"}`, string(first.Data))

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	hub.Broadcast(EventSEOUpdate, map[string]int{"keywords": 3})

	got := readFrame(t, conn)
	assert.Equal(t, EventSEOUpdate, got.Type)
	assert.JSONEq(t, `{"keywords":3}`, string(got.Data))
}

func TestPingPong(t *testing.T) {
	hub := startHub(t)
	srv := httptest.NewServer(NewHandler(hub, func() any { return nil }, []string{"*"}))
	defer srv.Close()

	conn, _, err := dial(t, srv, "")
	require.NoError(t, err)
	readFrame(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	assert.Equal(t, EventPong, readFrame(t, conn).Type)
}

func TestRequestUpdateCallsHandler(t *testing.T) {
	hub := startHub(t)
	requested := make(chan struct{}, 1)
	hub.OnRequest(func() { requested <- struct{}{} })
	srv := httptest.NewServer(NewHandler(hub, func() any { return nil }, []string{testOrigin}))
	defer srv.Close()

	conn, _, err := dial(t, srv, testOrigin)
	require.NoError(t, err)
	readFrame(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"requestUpdate"}`)))
	select {
	case <-requested:
	case <-time.After(2 * time.Second):
		t.Fatal("requestUpdate not forwarded")
	}
}

func TestOriginRejected(t *testing.T) {
	hub := startHub(t)
	srv := httptest.NewServer(NewHandler(hub, func() any { return nil }, []string{testOrigin}))
	defer srv.Close()

	_, resp, err := dial(t, srv, "http://evil.test")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, _, err = dial(t, srv, "")
	assert.Error(t, err)
}

func TestDisconnectUnregisters(t *testing.T) {
	hub := startHub(t)
	srv := httptest.NewServer(NewHandler(hub, func() any { return nil }, []string{testOrigin}))
	defer srv.Close()

	conn, _, err := dial(t, srv, testOrigin)
	require.NoError(t, err)
	readFrame(t, conn)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestSlowClientDropped(t *testing.T) {
	hub := NewHub(quietLogger())
	c := &Client{id: 1, hub: hub, send: make(chan Message, 1)}
	hub.clients[c] = true

	hub.broadcastToClients(Message{Type: EventSEOUpdate})
	hub.broadcastToClients(Message{Type: EventSEOUpdate})

	assert.Zero(t, hub.ClientCount())
	_, open := <-c.send
	assert.True(t, open)
	_, open = <-c.send
	assert.False(t, open)
}

func TestBroadcastNeverBlocks(t *testing.T) {
	hub := NewHub(quietLogger())
	for i, n := 0, cap(hub.broadcast)+10; i < n; i++ {
		hub.Broadcast(EventPerformanceUpdate, nil)
	}
	assert.Len(t, hub.broadcast, cap(hub.broadcast))
}

func TestPingAfterDropDoesNotPanic(t *testing.T) {
	hub := NewHub(quietLogger())
	c := newClient(hub, nil)
	hub.clients[c] = true
	for i := 0; i < sendBuffer+1; i++ {
		hub.broadcastToClients(Message{Type: EventSEOUpdate})
	}
	require.Zero(t, hub.ClientCount())

	assert.NotPanics(t, func() {
		c.handle(Message{Type: EventPing})
		c.handle(Message{Type: EventPing})
	})
	got := <-c.pong
	assert.Equal(t, EventPong, got.Type)
}

func TestDroppedSessionPingKeepsHubServing(t *testing.T) {
	hub := startHub(t)
	srv := httptest.NewServer(NewHandler(hub, func() any { return nil }, []string{testOrigin}))
	defer srv.Close()

	conn, _, err := dial(t, srv, testOrigin)
	require.NoError(t, err)
	readFrame(t, conn)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.mu.RLock()
	var c *Client
	for cl := range hub.clients {
		c = cl
	}
	hub.mu.RUnlock()
	hub.unregister <- c
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)

	next, _, err := dial(t, srv, testOrigin)
	require.NoError(t, err)
	assert.Equal(t, EventInitialData, readFrame(t, next).Type)
}
