package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newWebsocketServer upgrades each request and drains incoming frames so
// control messages keep flowing.
func newWebsocketServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	return server, "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestHeartbeatDoesNotRaceSubscribeWrites(t *testing.T) {
	server, url := newWebsocketServer(t)
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	s := NewFinnhubStream("ws://unused", "key", zap.NewNop())
	s.pingEvery = time.Millisecond
	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.heartbeat(ctx, conn)

	// Pings land between subscribe/unsubscribe frames. Only control frames
	// may be written off the data-writer path.
	deadline := time.After(100 * time.Millisecond)
	for {
		select {
		case <-deadline:
			return
		default:
			require.NoError(t, s.Subscribe([]string{"AAPL", "MSFT", "TSLA"}))
			require.NoError(t, s.Subscribe([]string{"AAPL"}))
		}
	}
}
