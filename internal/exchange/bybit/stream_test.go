package bybit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"gridflow/config"
	"gridflow/internal/channel/events"
	"gridflow/internal/models"
)

type wsHarness struct {
	mu         sync.Mutex
	authArgs   []interface{}
	subscribed [][]string
}

func (h *wsHarness) handler(t *testing.T) http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var msg struct {
				Op   string            `json:"op"`
				Args []json.RawMessage `json:"args"`
			}
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			switch msg.Op {
			case "auth":
				var args []interface{}
				for _, raw := range msg.Args {
					var v interface{}
					json.Unmarshal(raw, &v)
					args = append(args, v)
				}
				h.mu.Lock()
				h.authArgs = args
				h.mu.Unlock()
			case "subscribe":
				var topics []string
				for _, raw := range msg.Args {
					var s string
					json.Unmarshal(raw, &s)
					topics = append(topics, s)
				}
				h.mu.Lock()
				h.subscribed = append(h.subscribed, topics)
				h.mu.Unlock()
				conn.WriteJSON(map[string]interface{}{"success": true, "op": "subscribe"})
				conn.WriteJSON(map[string]interface{}{
					"topic": "wallet",
					"data":  []map[string]interface{}{{"wallet_balance": "42.0"}},
				})
			case "ping":
				conn.WriteJSON(map[string]string{"op": "pong"})
			}
		}
	}
}

func TestStreamManagerSessions(t *testing.T) {
	harness := &wsHarness{}
	server := httptest.NewServer(harness.handler(t))
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	c := newTestClient(server.URL, models.LinearPerpetual)
	rc := linearRuntime()
	channels := events.NewChannels(64, 64)
	m := NewStreamManager(c, rc, config.StreamConfig{
		MarketURL:      wsURL,
		UserURL:        wsURL,
		ReconnectDelay: 100 * time.Millisecond,
		PingInterval:   50 * time.Millisecond,
	}, channels)

	fixed := time.UnixMilli(1700000000000)
	m.now = func() time.Time { return fixed }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	waitFor(t, 5*time.Second, func() bool {
		harness.mu.Lock()
		defer harness.mu.Unlock()
		return len(harness.subscribed) >= 2 && harness.authArgs != nil
	})

	harness.mu.Lock()
	defer harness.mu.Unlock()

	// The user session authenticates with the signed expiry handshake.
	if len(harness.authArgs) != 3 {
		t.Fatalf("auth args = %+v", harness.authArgs)
	}
	if harness.authArgs[0] != "testkey" {
		t.Errorf("auth key = %v", harness.authArgs[0])
	}
	expires := int64(harness.authArgs[1].(float64))
	if expires != fixed.Add(time.Second).UnixMilli() {
		t.Errorf("expires = %d", expires)
	}
	mac := hmac.New(sha256.New, []byte("testsecret"))
	mac.Write([]byte("GET/realtime" + strconv.FormatInt(expires, 10)))
	if harness.authArgs[2] != hex.EncodeToString(mac.Sum(nil)) {
		t.Errorf("auth signature mismatch: %v", harness.authArgs[2])
	}

	var sawTrade, sawUser bool
	for _, topics := range harness.subscribed {
		if len(topics) == 1 && topics[0] == "trade.BTCUSDT" {
			sawTrade = true
		}
		if len(topics) == 4 && topics[0] == "position" && topics[3] == "order" {
			sawUser = true
		}
	}
	if !sawTrade {
		t.Error("market session did not subscribe the trade topic")
	}
	if !sawUser {
		t.Error("user session did not subscribe the account topics")
	}

	// Frames pushed by the server reach the raw channel.
	waitFor(t, 2*time.Second, func() bool { return channels.GetStats().RawSent > 0 })
}

func TestStreamManagerDoubleStartFails(t *testing.T) {
	c := newTestClient("http://unused", models.LinearPerpetual)
	channels := events.NewChannels(1, 1)
	m := NewStreamManager(c, linearRuntime(), config.StreamConfig{
		MarketURL: "ws://127.0.0.1:1", UserURL: "ws://127.0.0.1:1",
		ReconnectDelay: time.Hour,
	}, channels)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := m.Start(ctx); err == nil {
		t.Error("second Start should fail")
	}
	m.Stop()
}

func TestIsCleanClose(t *testing.T) {
	// Only a normal peer close may stop the ping loop; transient write
	// failures must leave it running.
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"normal closure", &websocket.CloseError{Code: websocket.CloseNormalClosure}, true},
		{"going away", &websocket.CloseError{Code: websocket.CloseGoingAway}, true},
		{"abnormal closure", &websocket.CloseError{Code: websocket.CloseAbnormalClosure}, false},
		{"write timeout", errors.New("write tcp: i/o timeout"), false},
		{"nil conn write", net.ErrClosed, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isCleanClose(tt.err); got != tt.want {
				t.Errorf("isCleanClose(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
