// Package transport maintains the persistent duplex connection to the relay:
// registration on open, a bounded inbound envelope stream, fire-and-forget
// sends, and a fixed-delay reconnect loop that never gives up.
package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rahulkumargit1/Krypt/internal/protocol"
)

// State tracks the connection lifecycle.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateRegistered
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateRegistered:
		return "registered"
	default:
		return "disconnected"
	}
}

// OverflowPolicy decides which envelope is dropped when the inbound buffer
// is full.
type OverflowPolicy int

const (
	// DropNewest discards the arriving envelope.
	DropNewest OverflowPolicy = iota
	// DropOldest evicts the oldest buffered envelope to make room.
	DropOldest
)

// ErrNotConnected reports a send attempted with no live registered
// connection. The message is dropped, not queued.
var ErrNotConnected = errors.New("transport not connected")

// Config wires dependencies and cadence for the client.
type Config struct {
	Log            *zap.Logger
	RelayURL       string
	ReconnectDelay time.Duration
	InboundBuffer  int
	Overflow       OverflowPolicy
	Dial           Dialer
	Metrics        *Metrics
}

// Client owns one relay connection and its reconnect loop.
type Client struct {
	log     *zap.Logger
	url     string
	delay   time.Duration
	policy  OverflowPolicy
	dial    Dialer
	metrics *Metrics

	inbound chan protocol.Envelope
	state   atomic.Int32

	mu   sync.Mutex
	conn Conn
}

// New builds a transport client.
func New(cfg Config) (*Client, error) {
	if cfg.RelayURL == "" {
		return nil, errors.New("relay url is required")
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	if cfg.InboundBuffer <= 0 {
		cfg.InboundBuffer = 256
	}
	if cfg.Dial == nil {
		cfg.Dial = DialWebSocket
	}
	return &Client{
		log:     cfg.Log,
		url:     cfg.RelayURL,
		delay:   cfg.ReconnectDelay,
		policy:  cfg.Overflow,
		dial:    cfg.Dial,
		metrics: cfg.Metrics,
		inbound: make(chan protocol.Envelope, cfg.InboundBuffer),
	}, nil
}

// Start runs the connection loop until ctx is canceled, registering the
// provided identity once per physical connection.
func (c *Client) Start(ctx context.Context, uuid, publicKey string) {
	go c.run(ctx, uuid, publicKey)
}

// Inbound exposes the raw envelope stream, ordered per physical connection
// only. The channel closes after Start's context is canceled.
func (c *Client) Inbound() <-chan protocol.Envelope {
	return c.inbound
}

// State reports the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Send pushes one envelope on the live connection. While disconnected the
// envelope is dropped and ErrNotConnected returned; there is no outbound
// queue and no retry.
func (c *Client) Send(ctx context.Context, env protocol.Envelope) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || c.State() != StateRegistered {
		c.metrics.RecordSendDropped()
		return ErrNotConnected
	}

	raw, err := env.Encode()
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, raw); err != nil {
		c.metrics.RecordSendDropped()
		return err
	}
	return nil
}

func (c *Client) run(ctx context.Context, uuid, publicKey string) {
	defer close(c.inbound)
	defer c.state.Store(int32(StateDisconnected))

	for ctx.Err() == nil {
		c.state.Store(int32(StateConnecting))

		conn, err := c.dial(ctx, c.url)
		if err != nil {
			c.metrics.RecordDialFailure()
			if ctx.Err() == nil {
				c.log.Warn("dial relay failed", zap.String("url", c.url), zap.Error(err))
			}
			c.sleep(ctx)
			continue
		}

		reg, err := protocol.NewRegister(uuid, publicKey).Encode()
		if err != nil {
			conn.Close()
			c.log.Error("encode register envelope", zap.Error(err))
			return
		}
		if err := conn.Write(ctx, reg); err != nil {
			c.metrics.RecordDialFailure()
			conn.Close()
			c.log.Warn("register with relay failed", zap.Error(err))
			c.sleep(ctx)
			continue
		}

		c.setConn(conn)
		c.state.Store(int32(StateRegistered))
		c.metrics.RecordConnect()
		c.log.Info("registered with relay", zap.String("url", c.url))

		c.readLoop(ctx, conn)

		c.setConn(nil)
		c.state.Store(int32(StateDisconnected))
		conn.Close()
		c.sleep(ctx)
	}
}

func (c *Client) readLoop(ctx context.Context, conn Conn) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn("relay connection lost", zap.Error(err))
			}
			return
		}
		c.metrics.RecordInboundFrame()

		env, err := protocol.Parse(data)
		if err != nil {
			// One bad frame never stops the stream.
			c.metrics.RecordParseDrop()
			c.log.Debug("dropped unparseable frame", zap.Error(err))
			continue
		}
		c.deliver(env)
	}
}

func (c *Client) deliver(env protocol.Envelope) {
	if c.policy == DropOldest {
		for {
			select {
			case c.inbound <- env:
				return
			default:
			}
			select {
			case <-c.inbound:
				c.metrics.RecordOverflowDrop()
			default:
			}
		}
	}

	select {
	case c.inbound <- env:
	default:
		c.metrics.RecordOverflowDrop()
	}
}

func (c *Client) setConn(conn Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) sleep(ctx context.Context) {
	timer := time.NewTimer(c.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
