package feed

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/swaparb/internal/domain"
	"github.com/alanyoungcy/swaparb/internal/metrics"
	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = 15 * time.Second

	handshakeTimeout = 15 * time.Second

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second

	// DefaultStaleAfter is how long a connection may stay silent and still
	// count as alive.
	DefaultStaleAfter = 30 * time.Second

	eventBuffer = 4096
)

// WSCollector streams one venue's public market data over a WebSocket and
// implements domain.MarketDataCollector.
type WSCollector struct {
	venue      string
	url        string
	decoder    Decoder
	staleAfter time.Duration
	logger     *slog.Logger

	events chan domain.MarketEvent

	mu      sync.Mutex
	symbols []string
	conn    *websocket.Conn
	writeMu sync.Mutex

	connected atomic.Bool
	lastMsg   atomic.Int64 // unix nanos
}

// NewWSCollector creates a collector. staleAfter <= 0 uses DefaultStaleAfter.
func NewWSCollector(venue, url string, decoder Decoder, staleAfter time.Duration, logger *slog.Logger) *WSCollector {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &WSCollector{
		venue:      venue,
		url:        url,
		decoder:    decoder,
		staleAfter: staleAfter,
		logger:     logger.With(slog.String("component", "ws_collector"), slog.String("venue", venue)),
		events:     make(chan domain.MarketEvent, eventBuffer),
	}
}

func (c *WSCollector) Venue() string { return c.venue }

// Events implements domain.MarketDataCollector.
func (c *WSCollector) Events() <-chan domain.MarketEvent { return c.events }

// Subscribe adds symbols to the subscription set. When connected they are
// subscribed immediately; otherwise on the next connect.
func (c *WSCollector) Subscribe(ctx context.Context, symbols []string) error {
	c.mu.Lock()
	var added []string
	for _, s := range symbols {
		if !slices.Contains(c.symbols, s) {
			c.symbols = append(c.symbols, s)
			added = append(added, s)
		}
	}
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || len(added) == 0 {
		return nil
	}
	return c.sendSubscribe(conn, added)
}

// Unsubscribe drops symbols from the subscription set and, when connected,
// tells the venue to stop streaming them.
func (c *WSCollector) Unsubscribe(ctx context.Context, symbols []string) error {
	c.mu.Lock()
	var removed []string
	c.symbols = slices.DeleteFunc(c.symbols, func(s string) bool {
		if slices.Contains(symbols, s) {
			removed = append(removed, s)
			return true
		}
		return false
	})
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || len(removed) == 0 {
		return nil
	}
	msgs, err := c.decoder.UnsubscribeMessages(removed)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if err := c.write(conn, websocket.TextMessage, m); err != nil {
			return fmt.Errorf("feed/ws: %s: unsubscribe: %w", c.venue, err)
		}
	}
	return nil
}

// IsAlive reports whether the socket is connected and has delivered a frame
// within the staleness window.
func (c *WSCollector) IsAlive() bool {
	if !c.connected.Load() {
		return false
	}
	last := c.lastMsg.Load()
	return last > 0 && time.Since(time.Unix(0, last)) < c.staleAfter
}

// Run connects and reads until ctx is cancelled, reconnecting with
// exponential backoff on disconnect.
func (c *WSCollector) Run(ctx context.Context) error {
	delay := reconnectDelay
	for {
		started := time.Now()
		err := c.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A connection that stayed up for a while resets the backoff.
		if time.Since(started) > maxReconnectDelay {
			delay = reconnectDelay
		}
		c.logger.Warn("ws disconnected, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("delay", delay),
		)
		metrics.FeedReconnects.WithLabelValues(c.venue).Inc()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

func (c *WSCollector) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("feed/ws: %s: connect: %w", c.venue, err)
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.detach()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.mu.Lock()
	c.conn = conn
	symbols := slices.Clone(c.symbols)
	c.mu.Unlock()

	if err := c.sendSubscribe(conn, symbols); err != nil {
		return err
	}
	c.connected.Store(true)
	c.logger.Info("ws subscribed", slog.Int("symbols", len(symbols)))

	go c.pingLoop(connCtx, conn)
	go func() {
		<-connCtx.Done()
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed/ws: %s: read: %w: %v", c.venue, domain.ErrWSDisconnect, err)
		}
		now := time.Now()
		c.lastMsg.Store(now.UnixNano())
		conn.SetReadDeadline(now.Add(pongWait))

		evs, err := c.decoder.Decode(raw, now)
		if err != nil {
			c.logger.Debug("ws frame dropped", slog.String("error", err.Error()))
			continue
		}
		for _, ev := range evs {
			select {
			case c.events <- ev:
			case <-connCtx.Done():
				return connCtx.Err()
			}
		}
	}
}

func (c *WSCollector) detach() {
	c.connected.Store(false)
	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
}

func (c *WSCollector) sendSubscribe(conn *websocket.Conn, symbols []string) error {
	msgs, err := c.decoder.SubscribeMessages(symbols)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if err := c.write(conn, websocket.TextMessage, m); err != nil {
			return fmt.Errorf("feed/ws: %s: subscribe: %w", c.venue, err)
		}
	}
	return nil
}

func (c *WSCollector) write(conn *websocket.Conn, kind int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(kind, data)
}

// pingLoop keeps the connection open with protocol pings and, where the
// venue wants one, an application heartbeat.
func (c *WSCollector) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	heartbeat := c.decoder.Heartbeat()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.write(conn, websocket.PingMessage, nil); err != nil {
				return
			}
			if heartbeat != nil {
				if err := c.write(conn, websocket.TextMessage, heartbeat); err != nil {
					return
				}
			}
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
