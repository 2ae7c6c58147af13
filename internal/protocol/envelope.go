// Package protocol defines the JSON wire envelopes exchanged with the relay.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type discriminates the envelope union.
type Type string

const (
	TypeRegister          Type = "register"
	TypeMessage           Type = "message"
	TypeFileChunk         Type = "file_chunk"
	TypeGetPublicKey      Type = "get_public_key"
	TypePublicKeyResponse Type = "public_key_response"
	TypeStatus            Type = "status"
	TypeWebRTCOffer       Type = "webrtc_offer"
	TypeWebRTCAnswer      Type = "webrtc_answer"
	TypeWebRTCICE         Type = "webrtc_ice"
)

var (
	ErrParse        = errors.New("malformed envelope")
	ErrMissingField = errors.New("missing required field")
)

// CipherPayload carries one independently encrypted blob. EncryptedKey holds
// the sender's ephemeral public key, IV the AEAD nonce, all base64 encoded.
type CipherPayload struct {
	EncryptedData string `json:"encryptedData"`
	IV            string `json:"iv"`
	EncryptedKey  string `json:"encryptedKey"`
}

// ChunkPayload is one encrypted fragment of a file transfer.
type ChunkPayload struct {
	FileName    string `json:"fileName"`
	MimeType    string `json:"mimeType"`
	ChunkIndex  int    `json:"chunkIndex"`
	TotalChunks int    `json:"totalChunks"`
	CipherPayload
}

// Envelope is the tagged union exchanged over the transport. Only the fields
// relevant to the Type are populated.
type Envelope struct {
	Type          Type            `json:"type"`
	From          string          `json:"from,omitempty"`
	To            string          `json:"to,omitempty"`
	UUID          string          `json:"uuid,omitempty"`
	PublicKey     string          `json:"public_key,omitempty"`
	Target        string          `json:"target,omitempty"`
	SDP           string          `json:"sdp,omitempty"`
	Candidate     string          `json:"candidate,omitempty"`
	SDPMid        string          `json:"sdpMid,omitempty"`
	SDPMLineIndex int             `json:"sdpMLineIndex,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// Parse decodes and validates one raw frame. Validation failures carry
// ErrParse or ErrMissingField so the router can drop the single frame.
func Parse(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Validate checks the per-type required fields.
func (e Envelope) Validate() error {
	switch e.Type {
	case TypeRegister:
		return requireFields(field{"uuid", e.UUID}, field{"public_key", e.PublicKey})
	case TypeMessage, TypeStatus:
		if err := requireFields(field{"from", e.From}); err != nil {
			return err
		}
		return requirePayload(e.Payload)
	case TypeFileChunk:
		if err := requireFields(field{"from", e.From}); err != nil {
			return err
		}
		return requirePayload(e.Payload)
	case TypeGetPublicKey:
		return requireFields(field{"from", e.From}, field{"target", e.Target})
	case TypePublicKeyResponse:
		return requireFields(field{"target", e.Target}, field{"public_key", e.PublicKey})
	case TypeWebRTCOffer, TypeWebRTCAnswer:
		return requireFields(field{"from", e.From}, field{"sdp", e.SDP})
	case TypeWebRTCICE:
		return requireFields(field{"from", e.From}, field{"candidate", e.Candidate})
	case "":
		return fmt.Errorf("%w: type", ErrMissingField)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrParse, e.Type)
	}
}

// Encode serializes the envelope for the wire.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// MessagePayload decodes the payload of a message envelope.
func (e Envelope) MessagePayload() (CipherPayload, error) {
	var p CipherPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return CipherPayload{}, fmt.Errorf("%w: payload: %v", ErrParse, err)
	}
	if p.EncryptedData == "" || p.IV == "" || p.EncryptedKey == "" {
		return CipherPayload{}, fmt.Errorf("%w: cipher payload", ErrMissingField)
	}
	return p, nil
}

// FileChunkPayload decodes and validates the payload of a file_chunk envelope.
func (e Envelope) FileChunkPayload() (ChunkPayload, error) {
	var p ChunkPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return ChunkPayload{}, fmt.Errorf("%w: payload: %v", ErrParse, err)
	}
	if p.FileName == "" {
		return ChunkPayload{}, fmt.Errorf("%w: fileName", ErrMissingField)
	}
	if p.EncryptedData == "" || p.IV == "" || p.EncryptedKey == "" {
		return ChunkPayload{}, fmt.Errorf("%w: cipher payload", ErrMissingField)
	}
	if p.TotalChunks <= 0 {
		return ChunkPayload{}, fmt.Errorf("%w: totalChunks %d", ErrParse, p.TotalChunks)
	}
	if p.ChunkIndex < 0 || p.ChunkIndex >= p.TotalChunks {
		return ChunkPayload{}, fmt.Errorf("%w: chunkIndex %d outside [0,%d)", ErrParse, p.ChunkIndex, p.TotalChunks)
	}
	return p, nil
}

// NewRegister builds the registration envelope sent once per connection.
func NewRegister(uuid, publicKey string) Envelope {
	return Envelope{Type: TypeRegister, UUID: uuid, PublicKey: publicKey}
}

// NewMessage builds an encrypted text message envelope.
func NewMessage(from, to string, payload CipherPayload) (Envelope, error) {
	return withPayload(Envelope{Type: TypeMessage, From: from, To: to}, payload)
}

// NewFileChunk builds one encrypted file chunk envelope.
func NewFileChunk(from, to string, chunk ChunkPayload) (Envelope, error) {
	return withPayload(Envelope{Type: TypeFileChunk, From: from, To: to}, chunk)
}

// NewKeyRequest asks the relay to resolve a contact's public key.
func NewKeyRequest(from, target string) Envelope {
	return Envelope{Type: TypeGetPublicKey, From: from, Target: target}
}

// NewKeyResponse answers a key request.
func NewKeyResponse(target, publicKey string) Envelope {
	return Envelope{Type: TypePublicKeyResponse, Target: target, PublicKey: publicKey}
}

// NewOffer builds a call offer envelope.
func NewOffer(from, to, sdp string) Envelope {
	return Envelope{Type: TypeWebRTCOffer, From: from, To: to, SDP: sdp}
}

// NewAnswer builds a call answer envelope.
func NewAnswer(from, to, sdp string) Envelope {
	return Envelope{Type: TypeWebRTCAnswer, From: from, To: to, SDP: sdp}
}

// NewICE builds an ICE candidate envelope.
func NewICE(from, to, candidate, sdpMid string, sdpMLineIndex int) Envelope {
	return Envelope{
		Type:          TypeWebRTCICE,
		From:          from,
		To:            to,
		Candidate:     candidate,
		SDPMid:        sdpMid,
		SDPMLineIndex: sdpMLineIndex,
	}
}

func withPayload(env Envelope, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode payload: %w", err)
	}
	env.Payload = raw
	return env, nil
}

type field struct {
	name  string
	value string
}

func requireFields(fields ...field) error {
	for _, f := range fields {
		if f.value == "" {
			return fmt.Errorf("%w: %s", ErrMissingField, f.name)
		}
	}
	return nil
}

func requirePayload(raw json.RawMessage) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: payload", ErrMissingField)
	}
	return nil
}
