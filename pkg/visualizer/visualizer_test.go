package visualizer

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSnapshotter struct {
	nodes []Node
	edges []Edge
}

func (f fakeSnapshotter) Snapshot() ([]Node, []Edge) { return f.nodes, f.edges }

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(context.Background(), url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func TestHub_SendsFullSyncOnConnect(t *testing.T) {
	snap := fakeSnapshotter{nodes: []Node{{ID: "a1", Label: "Founder", State: "active"}}}
	hub := NewHub(snap, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"full_sync"`)
	assert.Contains(t, string(data), `"a1"`)
}

func TestHub_BroadcastsAgentCreated(t *testing.T) {
	hub := NewHub(fakeSnapshotter{}, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx) // drain full_sync
	require.NoError(t, err)

	hub.BroadcastAgentCreated(Node{ID: "a2", Label: "Worker", State: "active"}, "a1")

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"agent_created"`)
	assert.Contains(t, string(data), `"a2"`)
}

func TestHub_BroadcastsAgentStateChanged(t *testing.T) {
	hub := NewHub(fakeSnapshotter{}, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx) // drain full_sync
	require.NoError(t, err)

	hub.BroadcastAgentStateChanged("a1", "completed")

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"agent_state_changed"`)
	assert.Contains(t, string(data), `"completed"`)
}

func TestHub_ConnectionCountTracksLifecycle(t *testing.T) {
	hub := NewHub(fakeSnapshotter{}, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	_, _, err := conn.Read(ctx) // drain full_sync
	cancel()
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return hub.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)

	_ = conn.Close(websocket.StatusNormalClosure, "")
	assert.Eventually(t, func() bool { return hub.ConnectionCount() == 0 }, time.Second, 10*time.Millisecond)
}
