package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHealth(t *testing.T) {
	log := zap.NewNop().Sugar()
	srv := httptest.NewServer(NewHandler(nil, NewHub(log), log).Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHub_PublishToSubscriber(t *testing.T) {
	log := zap.NewNop().Sugar()
	hub := NewHub(log)
	srv := httptest.NewServer(NewHandler(nil, hub, log).Routes())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The subscription registers on the server side after the handshake.
	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.clients) == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Publish("order_filled", map[string]any{"order_id": 3, "price": 40})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var event map[string]any
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, float64(3), event["order_id"])
	assert.Equal(t, float64(40), event["price"])
}

func TestHub_PublishWithNoClients(t *testing.T) {
	hub := NewHub(zap.NewNop().Sugar())
	// Must not panic or block.
	hub.Publish("order_expired", map[string]any{"order_id": 1})
}

func TestHub_DisconnectedClientIsDropped(t *testing.T) {
	log := zap.NewNop().Sugar()
	hub := NewHub(log)
	srv := httptest.NewServer(NewHandler(nil, hub, log).Routes())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	conn.Close()

	// Publishing to a closed connection removes it instead of failing.
	for i := 0; i < 3; i++ {
		hub.Publish("order_filled", map[string]any{"order_id": i})
		time.Sleep(10 * time.Millisecond)
	}

	hub.mu.Lock()
	remaining := len(hub.clients)
	hub.mu.Unlock()
	assert.Equal(t, 0, remaining)
}
