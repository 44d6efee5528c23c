package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vantrace/ferret-cli/internal/config"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// channelServer upgrades one connection and pushes the given frames.
type channelServer struct {
	*httptest.Server

	mu               sync.Mutex
	investigationIDs []string
}

func newChannelServer(t *testing.T, frames ...string) *channelServer {
	t.Helper()
	srv := &channelServer{}
	srv.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srv.mu.Lock()
		srv.investigationIDs = append(srv.investigationIDs, r.URL.Query().Get("investigation"))
		srv.mu.Unlock()

		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		for _, f := range frames {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(f)))
		}
		// Hold the connection open until the client closes it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *channelServer) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testConfig(srv *channelServer) config.ChannelConfig {
	return config.ChannelConfig{
		Endpoint:         wsURL(srv),
		HandshakeTimeout: 2 * time.Second,
	}
}

func TestChannel_DispatchesFrames(t *testing.T) {
	srv := newChannelServer(t,
		`{"event":"pipeline.update","payload":{"progress":42}}`,
		`{"event":"pipeline.update","payload":{"progress":55}}`,
		`{"event":"investigation.done","payload":{}}`,
		`not json at all`,
	)

	ch := NewChannel(testConfig(srv), zap.NewNop())

	var mu sync.Mutex
	var updates []string
	done := make(chan struct{})
	ch.On("pipeline.update", func(payload []byte) {
		mu.Lock()
		updates = append(updates, string(payload))
		mu.Unlock()
	})
	ch.On("investigation.done", func(payload []byte) { close(done) })

	require.NoError(t, ch.Connect(context.Background(), "inv-42"))
	defer ch.Disconnect()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("terminal event never dispatched")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, updates, 2, "frames dispatch in order, malformed ones are dropped")
	assert.JSONEq(t, `{"progress":42}`, updates[0])
	assert.JSONEq(t, `{"progress":55}`, updates[1])

	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Equal(t, []string{"inv-42"}, srv.investigationIDs, "dial carries the investigation id")
}

func TestChannel_ConnectTwiceFails(t *testing.T) {
	srv := newChannelServer(t)
	ch := NewChannel(testConfig(srv), zap.NewNop())

	require.NoError(t, ch.Connect(context.Background(), "inv-1"))
	defer ch.Disconnect()

	err := ch.Connect(context.Background(), "inv-2")
	assert.ErrorContains(t, err, "already connected")
}

func TestChannel_DialFailureLeavesChannelReusable(t *testing.T) {
	srv := newChannelServer(t)
	cfg := testConfig(srv)

	ch := NewChannel(config.ChannelConfig{
		Endpoint:         "ws://127.0.0.1:1/nothing-listens-here",
		HandshakeTimeout: 200 * time.Millisecond,
	}, zap.NewNop())
	require.Error(t, ch.Connect(context.Background(), "inv-1"))

	// A failed dial must not latch the connected state.
	ch.cfg = cfg
	require.NoError(t, ch.Connect(context.Background(), "inv-1"))
	assert.NoError(t, ch.Disconnect())
}

func TestChannel_DisconnectIsIdempotent(t *testing.T) {
	srv := newChannelServer(t)
	ch := NewChannel(testConfig(srv), zap.NewNop())

	assert.NoError(t, ch.Disconnect(), "disconnect before connect is a no-op")

	require.NoError(t, ch.Connect(context.Background(), "inv-1"))
	assert.NoError(t, ch.Disconnect())
	assert.NoError(t, ch.Disconnect())
	assert.NoError(t, ch.Disconnect())
}

func TestChannel_HandlerRegisteredAfterConnect(t *testing.T) {
	srv := newChannelServer(t)
	ch := NewChannel(testConfig(srv), zap.NewNop())
	require.NoError(t, ch.Connect(context.Background(), "inv-1"))
	defer ch.Disconnect()

	// Late registration must not panic or drop the connection.
	ch.On("late.event", func(payload []byte) {})
	ch.On("late.event", nil)
}

func TestForConfig(t *testing.T) {
	t.Run("empty endpoint selects the no-op channel", func(t *testing.T) {
		ch := ForConfig(config.ChannelConfig{}, zap.NewNop())
		_, ok := ch.(*NopChannel)
		assert.True(t, ok)
	})

	t.Run("configured endpoint selects the websocket channel", func(t *testing.T) {
		ch := ForConfig(config.ChannelConfig{Endpoint: "ws://localhost:9/x"}, zap.NewNop())
		_, ok := ch.(*Channel)
		assert.True(t, ok)
	})
}

func TestNopChannel(t *testing.T) {
	ch := NewNopChannel()
	assert.NoError(t, ch.Connect(context.Background(), "inv-1"))
	ch.On("anything", func(payload []byte) {})
	assert.NoError(t, ch.Disconnect())
	assert.NoError(t, ch.Disconnect())
}
