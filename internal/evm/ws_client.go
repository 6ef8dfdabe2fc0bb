package evm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"

	"nft-holdings/internal/observability"
)

// ErrClientClosed is returned by operations on a closed WSClient.
var ErrClientClosed = errors.New("client closed")

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for an eth_subscribe confirmation.
	SubscribeTimeout time.Duration
	// Logger receives connection events. Defaults to a no-op logger.
	Logger *zerolog.Logger
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
	}
}

// headBuffer is the per-subscription channel capacity. Heads are only
// refresh triggers, so a full buffer drops the newest head.
const headBuffer = 16

type subResult struct {
	id  string
	err error
}

// pendingSub is an eth_subscribe request awaiting its confirmation. The
// read loop registers dest under the confirmed id before handling the next
// message, so no head following the confirmation is lost. replaces is the
// id being remapped after a reconnect.
type pendingSub struct {
	result   chan subResult
	dest     chan Head
	replaces string
}

// WSClient implements HeadSubscriber using eth_subscribe over gorilla/websocket.
type WSClient struct {
	endpoint string
	config   WSClientConfig
	logger   zerolog.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps node subscription id to delivery channel
	subs   map[string]chan Head
	subsMu sync.RWMutex

	// pending maps request id to the caller waiting for a subscription id
	pending   map[uint64]*pendingSub
	pendingMu sync.Mutex

	done         chan struct{}
	wg           sync.WaitGroup
	reconnecting atomic.Bool
}

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	c := &WSClient{
		endpoint: endpoint,
		config:   cfg,
		logger:   zerolog.Nop(),
		subs:     make(map[string]chan Head),
		pending:  make(map[uint64]*pendingSub),
		done:     make(chan struct{}),
	}
	if cfg.Logger != nil {
		c.logger = *cfg.Logger
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

func (c *WSClient) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	return nil
}

// SubscribeNewHeads subscribes to newHeads. The subscription survives
// reconnects; the channel is closed by Close.
func (c *WSClient) SubscribeNewHeads(ctx context.Context) (<-chan Head, error) {
	ch := make(chan Head, headBuffer)
	if _, err := c.subscribe(ctx, ch, ""); err != nil {
		c.dropSub(ch)
		return nil, err
	}
	return ch, nil
}

// subscribe sends eth_subscribe and waits for the node's subscription id.
// On success dest is already registered under that id.
func (c *WSClient) subscribe(ctx context.Context, dest chan Head, replaces string) (string, error) {
	if c.closed.Load() {
		return "", ErrClientClosed
	}

	reqID := c.requestID.Add(1)
	p := &pendingSub{result: make(chan subResult, 1), dest: dest, replaces: replaces}
	c.pendingMu.Lock()
	c.pending[reqID] = p
	c.pendingMu.Unlock()

	forget := func() {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
	}
	confirmCh := p.result

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "eth_subscribe",
		Params:  []interface{}{"newHeads"},
	}
	if err := c.write(req); err != nil {
		forget()
		return "", err
	}

	select {
	case res, ok := <-confirmCh:
		if !ok {
			return "", ErrClientClosed
		}
		return res.id, res.err
	case <-time.After(c.config.SubscribeTimeout):
		forget()
		return "", fmt.Errorf("subscription timeout after %s", c.config.SubscribeTimeout)
	case <-c.done:
		return "", ErrClientClosed
	case <-ctx.Done():
		forget()
		return "", ctx.Err()
	}
}

// dropSub removes dest from the subscription table. A confirmation can land
// after its caller gave up waiting.
func (c *WSClient) dropSub(dest chan Head) {
	c.subsMu.Lock()
	for id, ch := range c.subs {
		if ch == dest {
			delete(c.subs, id)
		}
	}
	c.subsMu.Unlock()
}

func (c *WSClient) write(v interface{}) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := c.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	return nil
}

// Close closes the WebSocket connection and every subscription channel.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	// Subscription channels are closed only after the read loop has exited.
	c.wg.Wait()

	c.subsMu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()

	c.pendingMu.Lock()
	for id, p := range c.pending {
		close(p.result)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	return nil
}

func (c *WSClient) readLoop() {
	defer c.wg.Done()

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			if !c.reconnecting.Swap(true) {
				c.wg.Add(1)
				go c.reconnect()
			}
			if !c.pause() {
				return
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			c.connMu.Lock()
			current := c.conn == conn
			c.connMu.Unlock()

			// A read error on a replaced connection needs no new reconnect.
			if current && !c.reconnecting.Swap(true) {
				c.logger.Warn().Err(err).Msg("websocket read failed, reconnecting")
				c.wg.Add(1)
				go c.reconnect()
			}

			if !c.pause() {
				return
			}
			continue
		}

		c.handleMessage(message)
	}
}

// pause waits briefly before the read loop retries. It reports false once
// the client is closed.
func (c *WSClient) pause() bool {
	select {
	case <-c.done:
		return false
	case <-time.After(100 * time.Millisecond):
		return true
	}
}

// reconnect replaces the connection, retrying with backoff until a dial
// succeeds or the client closes, then resubscribes every live subscription.
func (c *WSClient) reconnect() {
	defer c.wg.Done()
	defer c.reconnecting.Store(false)

	b := &backoff.Backoff{
		Min:    c.config.ReconnectDelay,
		Max:    c.config.MaxReconnectDelay,
		Factor: 2,
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	for {
		delay := b.Duration()
		select {
		case <-c.done:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := c.connect(ctx)
		cancel()
		if err == nil {
			break
		}
		c.logger.Warn().Err(err).Int("attempt", int(b.Attempt())).Dur("delay", delay).Msg("websocket reconnect failed")
	}

	if c.closed.Load() {
		c.connMu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.connMu.Unlock()
		return
	}
	c.logger.Info().Msg("websocket reconnected")

	// The reader must be running again before we wait on confirmations.
	c.reconnecting.Store(false)
	c.resubscribeAll()
}

func (c *WSClient) resubscribeAll() {
	c.subsMu.RLock()
	old := make(map[string]chan Head, len(c.subs))
	for id, ch := range c.subs {
		old[id] = ch
	}
	c.subsMu.RUnlock()

	for oldID, ch := range old {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		newID, err := c.subscribe(ctx, ch, oldID)
		cancel()
		if err != nil {
			c.logger.Warn().Err(err).Str("subscription", oldID).Msg("resubscribe failed")
			continue
		}
		c.logger.Debug().Str("old", oldID).Str("new", newID).Msg("resubscribed to newHeads")
	}
}

func (c *WSClient) handleMessage(message []byte) {
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Debug().Err(err).Msg("discarding malformed websocket message")
		return
	}

	switch {
	case msg.Method == "eth_subscription" && msg.Params != nil:
		c.handleHead(msg.Params)
	case msg.ID != nil:
		c.handleResponse(*msg.ID, &msg)
	}
}

func (c *WSClient) handleResponse(id uint64, msg *wsMessage) {
	c.pendingMu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
	if !ok {
		return
	}

	var res subResult
	switch {
	case msg.Error != nil:
		res.err = msg.Error
	default:
		if err := json.Unmarshal(msg.Result, &res.id); err != nil {
			res.err = fmt.Errorf("decode subscription id: %w", err)
		}
	}

	if res.err == nil && p.dest != nil {
		c.subsMu.Lock()
		if p.replaces != "" && c.subs[p.replaces] == p.dest {
			delete(c.subs, p.replaces)
		}
		c.subs[res.id] = p.dest
		c.subsMu.Unlock()
	}

	select {
	case p.result <- res:
	default:
	}
}

func (c *WSClient) handleHead(params *wsNotificationParams) {
	var raw struct {
		Number hexutil.Uint64 `json:"number"`
		Hash   string         `json:"hash"`
	}
	if err := json.Unmarshal(params.Result, &raw); err != nil {
		c.logger.Debug().Err(err).Msg("discarding malformed head")
		return
	}
	head := Head{Number: uint64(raw.Number), Hash: raw.Hash}
	observability.RecordHead(head.Number)

	c.subsMu.RLock()
	ch, ok := c.subs[params.Subscription]
	c.subsMu.RUnlock()
	if !ok {
		return
	}

	select {
	case ch <- head:
	default:
		c.logger.Debug().Uint64("number", head.Number).Msg("head dropped, subscriber busy")
	}
}

func (c *WSClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				// A dead connection surfaces on the read side.
				_ = c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// wsMessage covers responses (ID set) and notifications (Method set).
type wsMessage struct {
	JSONRPC string                `json:"jsonrpc"`
	ID      *uint64               `json:"id,omitempty"`
	Result  json.RawMessage       `json:"result,omitempty"`
	Error   *RPCError             `json:"error,omitempty"`
	Method  string                `json:"method,omitempty"`
	Params  *wsNotificationParams `json:"params,omitempty"`
}

type wsNotificationParams struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

var _ HeadSubscriber = (*WSClient)(nil)
