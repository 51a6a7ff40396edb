package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/optrader/internal/contracts"
	"github.com/wonny/optrader/internal/realtime"
	"github.com/wonny/optrader/pkg/logger"
)

const (
	// Reconnect settings
	reconnectDelay    = 1 * time.Second
	maxReconnectDelay = 30 * time.Second

	// Kite sends a heartbeat every second; silence beyond readTimeout is a stale link
	readTimeout  = 10 * time.Second
	pingInterval = 5 * time.Second
	writeWait    = 5 * time.Second
)

// FrameDecoder turns raw frames into domain values (implemented by kite.Decoder)
type FrameDecoder interface {
	DecodeTicks(frame []byte) ([]contracts.Tick, error)
	DecodeOrderUpdate(frame []byte) (contracts.OrderUpdate, bool)
}

// URLFunc returns the websocket URL for the current session
type URLFunc func(ctx context.Context) (string, error)

// Feed owns the single live market-data connection
// ⭐ SSOT: 웹소켓 연결 및 구독 관리는 이 피드에서만
type Feed struct {
	urlFn   URLFunc
	decoder FrameDecoder
	logger  *logger.Logger
	dialer  *websocket.Dialer

	ticks   *TickQueue
	updates *UpdateBook

	conn    *websocket.Conn
	writeMu sync.Mutex

	subscribed map[uint32]bool
	subMu      sync.Mutex

	state      atomic.Value // realtime.ConnState
	reconnects atomic.Int64
	tickCount  atomic.Int64
	updCount   atomic.Int64
	lastMsg    atomic.Int64

	minDelay    time.Duration
	maxDelay    time.Duration
	readTimeout time.Duration
}

// Option customises a Feed
type Option func(*Feed)

// WithBackoff overrides the reconnect backoff bounds
func WithBackoff(initial, limit time.Duration) Option {
	return func(f *Feed) {
		f.minDelay = initial
		f.maxDelay = limit
	}
}

// WithReadTimeout overrides the stale-read deadline
func WithReadTimeout(d time.Duration) Option {
	return func(f *Feed) { f.readTimeout = d }
}

// New creates a feed; Run must be called to connect
func New(urlFn URLFunc, decoder FrameDecoder, log *logger.Logger, opts ...Option) *Feed {
	f := &Feed{
		urlFn:       urlFn,
		decoder:     decoder,
		logger:      log.Component("feed"),
		dialer:      &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		ticks:       NewTickQueue(),
		updates:     NewUpdateBook(),
		subscribed:  make(map[uint32]bool),
		minDelay:    reconnectDelay,
		maxDelay:    maxReconnectDelay,
		readTimeout: readTimeout,
	}
	f.state.Store(realtime.StateDisconnected)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Ticks returns the tick queue
func (f *Feed) Ticks() *TickQueue { return f.ticks }

// Updates returns the order-update book
func (f *Feed) Updates() *UpdateBook { return f.updates }

// Run keeps the connection alive until ctx is cancelled
func (f *Feed) Run(ctx context.Context) error {
	delay := f.minDelay

	for {
		connected, err := f.session(ctx)
		if ctx.Err() != nil {
			f.state.Store(realtime.StateDisconnected)
			return ctx.Err()
		}
		if connected {
			delay = f.minDelay
		}

		f.state.Store(realtime.StateDisconnected)
		f.reconnects.Add(1)
		f.logger.WithError(err).WithField("delay", delay.String()).Warn("Feed disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		// Exponential backoff
		delay *= 2
		if delay > f.maxDelay {
			delay = f.maxDelay
		}
	}
}

// session dials, resubscribes and reads until the connection fails
func (f *Feed) session(ctx context.Context) (bool, error) {
	f.state.Store(realtime.StateConnecting)

	url, err := f.urlFn(ctx)
	if err != nil {
		return false, fmt.Errorf("build url: %w", err)
	}

	conn, _, err := f.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return false, fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	// 재연결 시 전체 구독 목록 재전송
	f.subMu.Lock()
	f.writeMu.Lock()
	f.conn = conn
	f.writeMu.Unlock()
	err = f.sendSubscribe(f.subscribedTokens())
	f.subMu.Unlock()
	if err != nil {
		f.detach()
		return true, err
	}
	defer f.detach()

	f.state.Store(realtime.StateConnected)
	f.logger.Info("Connected to market data feed")

	done := make(chan struct{})
	defer close(done)
	go f.pingLoop(conn, done)

	// unblock ReadMessage on shutdown
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(f.readTimeout))
	})

	for {
		conn.SetReadDeadline(time.Now().Add(f.readTimeout))

		kind, message, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read failed: %w", err)
		}
		f.lastMsg.Store(time.Now().UnixNano())

		f.handleMessage(kind, message)
	}
}

func (f *Feed) detach() {
	f.writeMu.Lock()
	f.conn = nil
	f.writeMu.Unlock()
}

// handleMessage routes one frame to the tick queue or update book
func (f *Feed) handleMessage(kind int, message []byte) {
	switch kind {
	case websocket.BinaryMessage:
		ticks, err := f.decoder.DecodeTicks(message)
		if err != nil {
			f.logger.WithError(err).Warn("Failed to decode tick frame")
		}
		if len(ticks) == 0 {
			return
		}
		f.tickCount.Add(int64(len(ticks)))
		f.ticks.Push(ticks)

	case websocket.TextMessage:
		update, ok := f.decoder.DecodeOrderUpdate(message)
		if !ok {
			return
		}
		f.updCount.Add(1)
		f.updates.Append(update)

		f.logger.WithFields(map[string]interface{}{
			"symbol":   update.TradingSymbol,
			"order_id": update.OrderID,
			"status":   update.Status,
		}).Debug("Order update received")
	}
}

// pingLoop sends periodic pings to keep connection alive
func (f *Feed) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				f.logger.WithError(err).Debug("Failed to send ping")
				return
			}
		}
	}
}

// Subscribe adds tokens to the subscription set; already known tokens are ignored
// 연결 전 호출 시 기록만 하고 연결 시 전송
func (f *Feed) Subscribe(tokens ...uint32) error {
	f.subMu.Lock()
	defer f.subMu.Unlock()

	var fresh []uint32
	for _, token := range tokens {
		if f.subscribed[token] {
			continue
		}
		f.subscribed[token] = true
		fresh = append(fresh, token)
	}
	if len(fresh) == 0 {
		return nil
	}

	f.logger.WithField("tokens", fresh).Info("Subscribing instruments")

	err := f.sendSubscribe(fresh)
	if errors.Is(err, errNotConnected) {
		return nil
	}
	return err
}

var errNotConnected = errors.New("feed not connected")

// sendSubscribe writes {"a":"mode","v":["full",[tokens]]}; caller holds subMu
func (f *Feed) sendSubscribe(tokens []uint32) error {
	if len(tokens) == 0 {
		return nil
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if f.conn == nil {
		return errNotConnected
	}

	msg := map[string]interface{}{
		"a": "mode",
		"v": []interface{}{"full", tokens},
	}

	f.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := f.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

func (f *Feed) subscribedTokens() []uint32 {
	tokens := make([]uint32, 0, len(f.subscribed))
	for token := range f.subscribed {
		tokens = append(tokens, token)
	}
	return tokens
}

// Subscribed reports whether token is in the subscription set
func (f *Feed) Subscribed(token uint32) bool {
	f.subMu.Lock()
	defer f.subMu.Unlock()
	return f.subscribed[token]
}

// Stats returns a snapshot of the feed state
func (f *Feed) Stats() realtime.FeedStats {
	f.subMu.Lock()
	subscribed := len(f.subscribed)
	f.subMu.Unlock()

	stats := realtime.FeedStats{
		State:           f.state.Load().(realtime.ConnState),
		Reconnects:      f.reconnects.Load(),
		QueueDepth:      f.ticks.Len(),
		Subscribed:      subscribed,
		TrackedSymbols:  f.updates.Len(),
		TicksReceived:   f.tickCount.Load(),
		UpdatesReceived: f.updCount.Load(),
	}
	if ns := f.lastMsg.Load(); ns > 0 {
		stats.LastMessageAt = time.Unix(0, ns)
	}
	return stats
}
