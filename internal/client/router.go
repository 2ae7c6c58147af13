package client

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rahulkumargit1/Krypt/internal/protocol"
	"github.com/rahulkumargit1/Krypt/internal/store"
)

// route is the single dispatch point. It runs on the engine worker, strictly
// one envelope at a time; a fault in one handler never halts the loop.
func (c *Client) route(ctx context.Context, env protocol.Envelope) {
	c.metrics.RecordEnvelope(string(env.Type))

	var err error
	switch env.Type {
	case protocol.TypeMessage:
		err = c.handleMessage(ctx, env)
	case protocol.TypeFileChunk:
		err = c.handleFileChunk(ctx, env)
	case protocol.TypeGetPublicKey:
		err = c.handleKeyRequest(ctx, env)
	case protocol.TypePublicKeyResponse:
		err = c.handleKeyResponse(ctx, env)
	case protocol.TypeStatus:
		err = c.handleStatus(ctx, env)
	case protocol.TypeWebRTCOffer:
		err = c.calls.handleOffer(env.From, env.SDP)
	case protocol.TypeWebRTCAnswer:
		err = c.calls.handleAnswer(env.SDP)
	case protocol.TypeWebRTCICE:
		err = c.calls.handleICE(ICECandidate{
			Candidate:     env.Candidate,
			SDPMid:        env.SDPMid,
			SDPMLineIndex: env.SDPMLineIndex,
		})
	default:
		c.log.Debug("dropped unexpected envelope", zap.String("type", string(env.Type)))
	}

	if err != nil {
		c.metrics.RecordHandlerFault()
		c.log.Warn("envelope handler failed",
			zap.String("type", string(env.Type)),
			zap.String("from", env.From),
			zap.Error(err))
	}
}

// handleMessage decrypts an inbound text message. A payload not encrypted
// for this key is dropped silently, with no sender notification and no
// partial record.
func (c *Client) handleMessage(ctx context.Context, env protocol.Envelope) error {
	payload, err := env.MessagePayload()
	if err != nil {
		return err
	}

	plaintext, err := c.oracle.Decrypt(payload, c.id.PrivateKey)
	if err != nil {
		c.metrics.RecordDecryptDrop()
		c.log.Debug("dropped undecryptable message", zap.String("from", env.From))
		return nil
	}

	if err := c.records.AppendMessage(ctx, store.Message{
		ID:             uuid.NewString(),
		ConversationID: env.From,
		Kind:           store.KindText,
		Content:        string(plaintext),
		Sent:           false,
		At:             time.Now(),
	}); err != nil {
		return err
	}
	c.metrics.RecordMessageReceived()
	return nil
}

// handleFileChunk validates the chunk payload and hands it to the
// reassembly table.
func (c *Client) handleFileChunk(ctx context.Context, env protocol.Envelope) error {
	chunk, err := env.FileChunkPayload()
	if err != nil {
		return err
	}
	return c.transfers.handleChunk(ctx, env.From, chunk, time.Now())
}

// handleStatus records an opaque presence marker. The payload is accepted
// but deliberately not decrypted or interpreted.
func (c *Client) handleStatus(ctx context.Context, env protocol.Envelope) error {
	now := time.Now()
	if err := c.records.PutStatus(ctx, store.Status{
		From:      env.From,
		Payload:   env.Payload,
		SeenAt:    now,
		ExpiresAt: now.Add(c.statusTTL),
	}); err != nil {
		return err
	}
	c.metrics.RecordStatus()
	return nil
}
