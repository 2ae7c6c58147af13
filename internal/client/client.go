// Package client is the core engine of the communicator: it turns the raw,
// unordered, possibly duplicated envelope stream into consistent application
// state. One worker goroutine consumes the inbound stream in arrival order
// and owns the transfer table, the call machine, and key resolution, so none
// of that state needs a lock. Outbound operations run on caller goroutines
// and never block inbound processing.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rahulkumargit1/Krypt/internal/crypto/seal"
	"github.com/rahulkumargit1/Krypt/internal/identity"
	"github.com/rahulkumargit1/Krypt/internal/protocol"
	"github.com/rahulkumargit1/Krypt/internal/store"
	"github.com/rahulkumargit1/Krypt/internal/transport"
)

// Transport is the relay connection consumed by the engine.
type Transport interface {
	Send(ctx context.Context, env protocol.Envelope) error
	Inbound() <-chan protocol.Envelope
	State() transport.State
}

// Oracle is the opaque cryptographic collaborator. Failures are typed
// results; the engine drops and continues.
type Oracle interface {
	EncryptForRecipient(plaintext, recipientPub []byte) (protocol.CipherPayload, error)
	Decrypt(payload protocol.CipherPayload, private []byte) ([]byte, error)
	ChunkAndEncryptFile(data []byte, name, mime string, recipientPub []byte) ([]protocol.ChunkPayload, error)
	DecryptChunk(chunk protocol.ChunkPayload, private []byte) ([]byte, error)
}

// Config wires the engine's collaborators.
type Config struct {
	Log       *zap.Logger
	Transport Transport
	Oracle    Oracle
	Store     store.Store
	// Sessions may be nil, in which case call attempts are rejected.
	Sessions SessionFactory
	Identity identity.Identity
	Metrics  *Metrics
	// TransferMaxAge evicts stalled transfers; zero keeps them forever.
	TransferMaxAge time.Duration
	SweepInterval  time.Duration
	StatusTTL      time.Duration
}

// Client orchestrates transport, crypto, storage, and call signaling for one
// local identity.
type Client struct {
	log       *zap.Logger
	transport Transport
	oracle    Oracle
	records   store.Store
	id        identity.Identity
	metrics   *Metrics

	transferMaxAge time.Duration
	sweepInterval  time.Duration
	statusTTL      time.Duration

	calls     *callMachine
	transfers *transferTable
	cmds      chan command

	callView     atomic.Value
	pendingCount atomic.Int64
}

type command struct {
	run  func(ctx context.Context) error
	done chan error
}

// New builds the engine.
func New(cfg Config) (*Client, error) {
	if cfg.Transport == nil {
		return nil, errors.New("transport is required")
	}
	if cfg.Oracle == nil {
		return nil, errors.New("crypto oracle is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Identity.UUID == "" || len(cfg.Identity.PrivateKey) == 0 {
		return nil, errors.New("identity is required")
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = 24 * time.Hour
	}

	c := &Client{
		log:            cfg.Log,
		transport:      cfg.Transport,
		oracle:         cfg.Oracle,
		records:        cfg.Store,
		id:             cfg.Identity,
		metrics:        cfg.Metrics,
		transferMaxAge: cfg.TransferMaxAge,
		sweepInterval:  cfg.SweepInterval,
		statusTTL:      cfg.StatusTTL,
		cmds:           make(chan command),
	}
	c.callView.Store(CallSnapshot{})
	c.calls = newCallMachine(cfg.Log, cfg.Metrics, cfg.Identity.UUID, cfg.Sessions, cfg.Transport.Send, func(snap CallSnapshot) {
		c.callView.Store(snap)
	})
	c.transfers = newTransferTable(cfg.Log, cfg.Metrics, cfg.Oracle, cfg.Store, cfg.Identity.PrivateKey, func(n int) {
		c.pendingCount.Store(int64(n))
	})
	return c, nil
}

// Run drives the engine worker until ctx is canceled or the inbound stream
// closes. Every inbound handler executes here, one envelope at a time.
func (c *Client) Run(ctx context.Context) error {
	defer c.calls.endCall()

	var sweep <-chan time.Time
	if c.transferMaxAge > 0 {
		ticker := time.NewTicker(c.sweepInterval)
		defer ticker.Stop()
		sweep = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-c.transport.Inbound():
			if !ok {
				return nil
			}
			c.route(ctx, env)
		case ev := <-c.calls.events:
			c.calls.handleSessionEvent(ctx, ev)
		case cmd := <-c.cmds:
			cmd.done <- cmd.run(ctx)
		case now := <-sweep:
			c.transfers.sweep(now, c.transferMaxAge)
		}
	}
}

// SendTextMessage encrypts content for the contact and hands it to the
// transport, appending a local conversation record on success. A contact
// whose key is still unresolved refuses the send; nothing is queued.
func (c *Client) SendTextMessage(ctx context.Context, to, content string) error {
	key, err := c.recipientKey(ctx, to)
	if err != nil {
		return err
	}

	payload, err := c.oracle.EncryptForRecipient([]byte(content), key)
	if err != nil {
		return fmt.Errorf("encrypt message: %w", err)
	}
	env, err := protocol.NewMessage(c.id.UUID, to, payload)
	if err != nil {
		return err
	}
	if err := c.transport.Send(ctx, env); err != nil {
		return err
	}

	if err := c.records.AppendMessage(ctx, store.Message{
		ID:             uuid.NewString(),
		ConversationID: to,
		Kind:           store.KindText,
		Content:        content,
		Sent:           true,
		At:             time.Now(),
	}); err != nil {
		return err
	}
	c.metrics.RecordMessageSent()
	return nil
}

// SendFile chunks and encrypts a file for the contact and sends every chunk.
// Each chunk is sealed independently, so the receiver pays O(chunk) per
// envelope to decrypt.
func (c *Client) SendFile(ctx context.Context, to, name, mime string, data []byte) error {
	key, err := c.recipientKey(ctx, to)
	if err != nil {
		return err
	}

	chunks, err := c.oracle.ChunkAndEncryptFile(data, name, mime, key)
	if err != nil {
		return fmt.Errorf("encrypt file: %w", err)
	}
	for _, chunk := range chunks {
		env, err := protocol.NewFileChunk(c.id.UUID, to, chunk)
		if err != nil {
			return err
		}
		if err := c.transport.Send(ctx, env); err != nil {
			return fmt.Errorf("send chunk %d/%d: %w", chunk.ChunkIndex+1, chunk.TotalChunks, err)
		}
	}

	if err := c.records.AppendMessage(ctx, store.Message{
		ID:             uuid.NewString(),
		ConversationID: to,
		Kind:           store.KindFile,
		Content:        name,
		Sent:           true,
		At:             time.Now(),
	}); err != nil {
		return err
	}
	return nil
}

// StartCall begins an outgoing call to the contact. Overlapping call
// attempts are rejected.
func (c *Client) StartCall(ctx context.Context, remote string) error {
	return c.do(ctx, func(context.Context) error { return c.calls.startCall(remote) })
}

// AcceptCall answers the currently offered incoming call.
func (c *Client) AcceptCall(ctx context.Context) error {
	return c.do(ctx, func(context.Context) error { return c.calls.acceptCall() })
}

// EndCall tears down the current call, if any.
func (c *Client) EndCall(ctx context.Context) error {
	return c.do(ctx, func(context.Context) error {
		c.calls.endCall()
		return nil
	})
}

// do funnels a local action onto the engine worker so call and transfer
// state keep their single-writer invariant.
func (c *Client) do(ctx context.Context, fn func(ctx context.Context) error) error {
	cmd := command{run: fn, done: make(chan error, 1)}
	select {
	case c.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) decodeKey(encoded string) ([]byte, error) {
	return seal.DecodeKey(encoded)
}
