package bybit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gridflow/config"
	"gridflow/internal/channel/events"
	"gridflow/internal/models"
	"gridflow/logger"
)

const defaultReconnectDelay = 5 * time.Second

// The venue expects an application-level ping at most every 30 seconds.
const defaultPingInterval = 27 * time.Second

// StreamManager owns the two websocket sessions: the public market stream
// for trades and the authenticated user stream for account updates. Raw
// frames are forwarded to the channel layer; parsing happens downstream.
type StreamManager struct {
	rc        *models.RuntimeConfig
	cfg       config.StreamConfig
	endpoints streamEndpoints
	apiKey    string
	apiSecret string
	channels  *events.Channels
	log       *logger.Entry

	now func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewStreamManager(c *Client, rc *models.RuntimeConfig, cfg config.StreamConfig, ch *events.Channels) *StreamManager {
	endpoints := c.StreamEndpoints()
	if cfg.MarketURL != "" {
		endpoints.Market = cfg.MarketURL
	}
	if cfg.UserURL != "" {
		endpoints.User = cfg.UserURL
	}
	return &StreamManager{
		rc:        rc,
		cfg:       cfg,
		endpoints: endpoints,
		apiKey:    c.apiKey,
		apiSecret: c.apiSecret,
		channels:  ch,
		log:       logger.GetLogger().WithComponent("bybit-stream"),
		now:       time.Now,
	}
}

func (m *StreamManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("stream manager already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		m.runSession(runCtx, models.SourceMarket)
	}()
	go func() {
		defer m.wg.Done()
		m.runSession(runCtx, models.SourceUser)
	}()

	m.log.WithFields(logger.Fields{
		"symbol":     m.rc.Symbol,
		"market_url": m.endpoints.Market,
		"user_url":   m.endpoints.User,
	}).Info("stream manager started")
	return nil
}

func (m *StreamManager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.log.Info("stream manager stopped")
}

// runSession keeps one websocket session alive until the context ends,
// reconnecting after transport failures.
func (m *StreamManager) runSession(ctx context.Context, source models.StreamSource) {
	url := m.endpoints.Market
	if source == models.SourceUser {
		url = m.endpoints.User
	}
	log := m.log.WithFields(logger.Fields{"source": string(source), "url": url})

	delay := m.cfg.ReconnectDelay
	if delay <= 0 {
		delay = defaultReconnectDelay
	}

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			log.WithError(err).Warn("failed to connect websocket")
			if waitForReconnect(ctx, delay) {
				return
			}
			continue
		}

		if err := m.openSession(conn, source); err != nil {
			log.WithError(err).Warn("failed to open websocket session")
			conn.Close()
			if waitForReconnect(ctx, delay) {
				return
			}
			continue
		}

		pingCancel := m.startPingLoop(ctx, conn, log)
		if err := m.readFrames(ctx, conn, source); err != nil && ctx.Err() == nil {
			log.WithError(err).Warn("websocket read loop ended")
		}
		pingCancel()
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		if waitForReconnect(ctx, delay) {
			return
		}
	}
}

// openSession authenticates (user stream only) and subscribes the session's
// topics. The venue needs a moment after auth before it accepts private
// subscriptions.
func (m *StreamManager) openSession(conn *websocket.Conn, source models.StreamSource) error {
	var topics []string
	if source == models.SourceUser {
		if err := m.authenticate(conn); err != nil {
			return fmt.Errorf("authenticate: %w", err)
		}
		time.Sleep(time.Second)
		topics = []string{"position", "execution", "wallet", "order"}
	} else {
		topics = []string{"trade." + m.rc.Symbol}
	}
	return subscribe(conn, topics)
}

// authenticate signs a short-lived expiry with the API secret, the venue's
// websocket login handshake.
func (m *StreamManager) authenticate(conn *websocket.Conn) error {
	expires := m.now().Add(time.Second).UnixMilli()
	signature := signPayload(m.apiSecret, "GET/realtime"+strconv.FormatInt(expires, 10))
	req := struct {
		Op   string        `json:"op"`
		Args []interface{} `json:"args"`
	}{
		Op:   "auth",
		Args: []interface{}{m.apiKey, expires, signature},
	}
	return conn.WriteJSON(req)
}

func subscribe(conn *websocket.Conn, topics []string) error {
	req := struct {
		Op   string   `json:"op"`
		Args []string `json:"args"`
	}{
		Op:   "subscribe",
		Args: topics,
	}
	return conn.WriteJSON(req)
}

func (m *StreamManager) readFrames(ctx context.Context, conn *websocket.Conn, source models.StreamSource) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		m.channels.SendRaw(ctx, models.RawStreamMessage{
			Source:     source,
			Symbol:     m.rc.Symbol,
			Data:       msg,
			ReceivedAt: m.now(),
		})
	}
}

// startPingLoop sends the venue's application-level ping frame on a fixed
// cadence. A write failure on a cleanly closed connection ends the loop
// quietly; any other write failure is logged and the loop keeps its cadence
// so one transient miss does not leave the connection idle.
func (m *StreamManager) startPingLoop(ctx context.Context, conn *websocket.Conn, log *logger.Entry) context.CancelFunc {
	interval := m.cfg.PingInterval
	if interval <= 0 {
		interval = defaultPingInterval
	}
	pingCtx, cancel := context.WithCancel(ctx)
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(time.Second))
				if err := conn.WriteJSON(map[string]string{"op": "ping"}); err != nil {
					if isCleanClose(err) {
						log.Debug("ping loop ended on closed connection")
						cancel()
						return
					}
					log.WithError(err).Warn("failed to send websocket ping")
				}
			}
		}
	}()
	return cancel
}

// isCleanClose reports whether a write failed because the peer closed the
// connection normally. Anything else is transient from the ping loop's point
// of view.
func isCleanClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

func waitForReconnect(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}
