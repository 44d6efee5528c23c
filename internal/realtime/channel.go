// Package realtime implements the investigation-scoped notification channel.
// A channel is connected when an investigation starts and released exactly
// once when the investigation stops or is replaced.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vantrace/ferret-cli/api/schemas"
	"github.com/vantrace/ferret-cli/internal/config"
)

const (
	// Time allowed to write the close frame to the peer.
	writeWait = 5 * time.Second
	// Maximum message size allowed from the peer.
	maxMessageSize = 1 << 20
)

// frame is the wire shape of a channel notification.
type frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Channel is a websocket-backed RealtimeChannel. Handlers are dispatched from
// a single read pump goroutine, so a handler never races another.
type Channel struct {
	cfg    config.ChannelConfig
	logger *zap.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[string][]func(payload []byte)

	// pumpDone is closed when the read pump exits; Disconnect waits on it.
	pumpDone chan struct{}
}

// NewChannel creates a websocket channel for the configured endpoint.
func NewChannel(cfg config.ChannelConfig, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "realtime")),
		handlers: make(map[string][]func(payload []byte)),
	}
}

// Connect dials the endpoint and subscribes to events for the investigation.
// A channel connects at most once; a failed dial leaves it reusable.
func (c *Channel) Connect(ctx context.Context, investigationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return fmt.Errorf("channel already connected")
	}

	endpoint, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("parsing channel endpoint: %w", err)
	}
	q := endpoint.Query()
	q.Set("investigation", investigationID)
	endpoint.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, endpoint.String(), nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return fmt.Errorf("dialing channel endpoint: %w", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	conn.SetReadLimit(maxMessageSize)

	c.conn = conn
	c.pumpDone = make(chan struct{})
	go c.readPump(conn, c.pumpDone)

	c.logger.Debug("channel connected",
		zap.String("investigation_id", investigationID),
		zap.String("endpoint", c.cfg.Endpoint))
	return nil
}

// Disconnect closes the connection and waits for the read pump to exit. It is
// safe to call repeatedly and before Connect.
func (c *Channel) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	pumpDone := c.pumpDone
	c.conn = nil
	c.pumpDone = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	deadline := time.Now().Add(writeWait)
	err := conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	closeErr := conn.Close()
	<-pumpDone

	if err != nil && err != websocket.ErrCloseSent {
		return fmt.Errorf("sending close frame: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("closing channel: %w", closeErr)
	}
	return nil
}

// On registers a handler for an event name. Registration is valid before or
// after Connect and survives reconnection.
func (c *Channel) On(event string, handler func(payload []byte)) {
	if handler == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], handler)
}

func (c *Channel) readPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("channel read error", zap.Error(err))
			}
			return
		}

		var f frame
		if err := json.Unmarshal(message, &f); err != nil {
			c.logger.Debug("discarding malformed channel frame", zap.Error(err))
			continue
		}
		for _, handler := range c.handlersFor(f.Event) {
			handler(f.Payload)
		}
	}
}

func (c *Channel) handlersFor(event string) []func(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append(([]func(payload []byte))(nil), c.handlers[event]...)
}

// NopChannel satisfies the channel contract without any transport. It is used
// when no endpoint is configured, so investigations run offline unchanged.
type NopChannel struct{}

// NewNopChannel creates a transport-less channel.
func NewNopChannel() *NopChannel { return &NopChannel{} }

// Connect implements schemas.RealtimeChannel.
func (NopChannel) Connect(ctx context.Context, investigationID string) error { return nil }

// Disconnect implements schemas.RealtimeChannel.
func (NopChannel) Disconnect() error { return nil }

// On implements schemas.RealtimeChannel.
func (NopChannel) On(event string, handler func(payload []byte)) {}

// ForConfig selects the websocket channel when an endpoint is configured and
// the no-op channel otherwise.
func ForConfig(cfg config.ChannelConfig, logger *zap.Logger) schemas.RealtimeChannel {
	if cfg.Endpoint == "" {
		return NewNopChannel()
	}
	return NewChannel(cfg, logger)
}
