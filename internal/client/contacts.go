package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rahulkumargit1/Krypt/internal/protocol"
	"github.com/rahulkumargit1/Krypt/internal/store"
)

var (
	// ErrUnknownContact reports a send to a uuid with no contact row.
	ErrUnknownContact = errors.New("unknown contact")
	// ErrKeyUnresolved refuses a send to a contact whose key has not been
	// resolved yet. The message is not queued.
	ErrKeyUnresolved = errors.New("contact key not resolved yet")
)

// AddContact inserts a contact row with an empty-key placeholder and asks
// the relay for the contact's public key. Resolution completes later when
// the public_key_response arrives.
func (c *Client) AddContact(ctx context.Context, contactUUID, nickname string) error {
	if contactUUID == "" {
		return errors.New("contact uuid is required")
	}

	existing, ok, err := c.records.Contact(ctx, contactUUID)
	if err != nil {
		return fmt.Errorf("look up contact: %w", err)
	}
	if ok {
		// Re-adding only refreshes the nickname; key and addedAt survive.
		existing.Nickname = nickname
		if err := c.records.UpsertContact(ctx, existing); err != nil {
			return fmt.Errorf("update contact: %w", err)
		}
	} else {
		if err := c.records.UpsertContact(ctx, store.Contact{
			UUID:     contactUUID,
			Nickname: nickname,
			AddedAt:  time.Now(),
		}); err != nil {
			return fmt.Errorf("insert contact: %w", err)
		}
	}

	c.metrics.RecordKeyRequest()
	if err := c.transport.Send(ctx, protocol.NewKeyRequest(c.id.UUID, contactUUID)); err != nil {
		// Best effort: the key can be re-requested once the transport is back.
		c.log.Warn("key request not sent", zap.String("contact", contactUUID), zap.Error(err))
	}
	return nil
}

// RequestKey re-issues a key request for a known contact.
func (c *Client) RequestKey(ctx context.Context, contactUUID string) error {
	_, ok, err := c.records.Contact(ctx, contactUUID)
	if err != nil {
		return fmt.Errorf("look up contact: %w", err)
	}
	if !ok {
		return ErrUnknownContact
	}
	c.metrics.RecordKeyRequest()
	return c.transport.Send(ctx, protocol.NewKeyRequest(c.id.UUID, contactUUID))
}

// handleKeyResponse merges a resolved key into the contact row, overwriting
// only the key field.
func (c *Client) handleKeyResponse(ctx context.Context, env protocol.Envelope) error {
	contact, ok, err := c.records.Contact(ctx, env.Target)
	if err != nil {
		return fmt.Errorf("look up contact: %w", err)
	}
	if !ok {
		c.log.Debug("key response for unknown contact", zap.String("target", env.Target))
		return nil
	}
	if contact.PublicKey != "" && contact.PublicKey != env.PublicKey {
		c.log.Warn("contact key changed", zap.String("contact", env.Target))
	}

	contact.PublicKey = env.PublicKey
	if err := c.records.UpsertContact(ctx, contact); err != nil {
		return fmt.Errorf("store resolved key: %w", err)
	}
	c.metrics.RecordKeyResolved()
	c.log.Info("contact key resolved", zap.String("contact", env.Target))
	return nil
}

// handleKeyRequest answers a peer asking for our public key.
func (c *Client) handleKeyRequest(ctx context.Context, env protocol.Envelope) error {
	if env.Target != c.id.UUID {
		return nil
	}
	resp := protocol.NewKeyResponse(c.id.UUID, c.id.PublicKeyString())
	resp.To = env.From
	if err := c.transport.Send(ctx, resp); err != nil {
		return fmt.Errorf("send key response: %w", err)
	}
	return nil
}

// recipientKey resolves a contact's encryption key for an outbound send,
// refusing while resolution is pending.
func (c *Client) recipientKey(ctx context.Context, contactUUID string) ([]byte, error) {
	contact, ok, err := c.records.Contact(ctx, contactUUID)
	if err != nil {
		return nil, fmt.Errorf("look up contact: %w", err)
	}
	if !ok {
		return nil, ErrUnknownContact
	}
	if contact.PublicKey == "" {
		c.metrics.RecordSendRefused()
		return nil, ErrKeyUnresolved
	}
	key, err := c.decodeKey(contact.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("contact %s has invalid key: %w", contactUUID, err)
	}
	return key, nil
}
