// Package store persists contacts, conversation logs, received files, and
// time-bounded statuses for the client engine. The engine only issues
// commands and queries against it; read-after-write consistency on re-query
// is the contract, not push notification.
package store

import (
	"context"
	"encoding/json"
	"time"
)

// Contact is one addressable peer. An empty PublicKey marks key resolution
// as pending.
type Contact struct {
	UUID      string    `json:"uuid"`
	PublicKey string    `json:"public_key,omitempty"`
	Nickname  string    `json:"nickname"`
	AddedAt   time.Time `json:"added_at"`
}

// MessageKind distinguishes conversation record types.
type MessageKind string

const (
	KindText MessageKind = "text"
	KindFile MessageKind = "file"
)

// Message is one record in a per-conversation append-only log.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	Kind           MessageKind `json:"kind"`
	Content        string      `json:"content"`
	Sent           bool        `json:"sent"`
	At             time.Time   `json:"at"`
}

// StoredFile is a fully reassembled received file.
type StoredFile struct {
	Sender     string    `json:"sender"`
	Name       string    `json:"name"`
	MimeType   string    `json:"mime_type"`
	Data       []byte    `json:"data"`
	ReceivedAt time.Time `json:"received_at"`
}

// Status is an opaque presence record with an expiry.
type Status struct {
	From      string          `json:"from"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	SeenAt    time.Time       `json:"seen_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Store is the persistence contract consumed by the engine. Errors propagate
// only to the caller of the triggering operation.
type Store interface {
	UpsertContact(ctx context.Context, contact Contact) error
	Contact(ctx context.Context, uuid string) (Contact, bool, error)
	Contacts(ctx context.Context) ([]Contact, error)
	DeleteContact(ctx context.Context, uuid string) error

	AppendMessage(ctx context.Context, msg Message) error
	Messages(ctx context.Context, conversationID string) ([]Message, error)

	SaveFile(ctx context.Context, file StoredFile) error
	Files(ctx context.Context) ([]StoredFile, error)

	PutStatus(ctx context.Context, status Status) error
	Statuses(ctx context.Context) ([]Status, error)
}
