// Package seal implements the envelope encryption used between contacts:
// an ephemeral X25519 exchange per payload, HKDF-SHA256 key derivation, and
// ChaCha20-Poly1305 sealing. Every payload (and every file chunk) carries its
// own ephemeral key and nonce, so decrypting one costs only its own size.
package seal

import (
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/rahulkumargit1/Krypt/internal/protocol"
)

const (
	// KeySize is the length of X25519 public/private keys.
	KeySize = 32

	// DefaultChunkSize is the plaintext size of one file chunk.
	DefaultChunkSize = 64 * 1024
)

// ErrDecrypt reports a payload that was not encrypted for this key or is
// malformed. Callers drop the payload and continue.
var ErrDecrypt = errors.New("decryption failed")

var curve = ecdh.X25519()

var hkdfInfo = []byte("krypt.seal.v1")

// KeyPair holds an X25519 key pair.
type KeyPair struct {
	Public  []byte
	Private []byte
}

// GenerateKeyPair produces a fresh X25519 key pair using the provided source
// of randomness.
func GenerateKeyPair(r io.Reader) (KeyPair, error) {
	if r == nil {
		r = rand.Reader
	}
	priv, err := curve.GenerateKey(r)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate x25519 key: %w", err)
	}
	return KeyPair{
		Public:  append([]byte(nil), priv.PublicKey().Bytes()...),
		Private: append([]byte(nil), priv.Bytes()...),
	}, nil
}

// PublicKey derives the public half from a stored private key.
func PublicKey(private []byte) ([]byte, error) {
	priv, err := curve.NewPrivateKey(private)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return append([]byte(nil), priv.PublicKey().Bytes()...), nil
}

// EncodeKey renders a key for the wire.
func EncodeKey(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

// DecodeKey parses a wire-encoded key, enforcing the X25519 size.
func DecodeKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes (got %d)", KeySize, len(key))
	}
	return key, nil
}

// Sealer is the crypto oracle handed to the client engine.
type Sealer struct {
	// ChunkSize is the plaintext size of one file chunk; zero means
	// DefaultChunkSize.
	ChunkSize int
}

// EncryptForRecipient seals plaintext for the recipient's public key. The
// returned payload carries the ephemeral public key in EncryptedKey and the
// AEAD nonce in IV.
func (Sealer) EncryptForRecipient(plaintext, recipientPub []byte) (protocol.CipherPayload, error) {
	pub, err := curve.NewPublicKey(recipientPub)
	if err != nil {
		return protocol.CipherPayload{}, fmt.Errorf("parse recipient key: %w", err)
	}

	eph, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return protocol.CipherPayload{}, fmt.Errorf("generate ephemeral key: %w", err)
	}
	shared, err := eph.ECDH(pub)
	if err != nil {
		return protocol.CipherPayload{}, fmt.Errorf("derive shared secret: %w", err)
	}
	defer zeroBytes(shared)

	aead, err := sealCipher(shared)
	if err != nil {
		return protocol.CipherPayload{}, err
	}

	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return protocol.CipherPayload{}, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, nil)
	return protocol.CipherPayload{
		EncryptedData: base64.StdEncoding.EncodeToString(ciphertext),
		IV:            base64.StdEncoding.EncodeToString(nonce),
		EncryptedKey:  base64.StdEncoding.EncodeToString(eph.PublicKey().Bytes()),
	}, nil
}

// Decrypt opens a payload with the local private key. Any mismatch or
// malformation yields ErrDecrypt with no partial output.
func (Sealer) Decrypt(payload protocol.CipherPayload, private []byte) ([]byte, error) {
	priv, err := curve.NewPrivateKey(private)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	ephRaw, err := base64.StdEncoding.DecodeString(payload.EncryptedKey)
	if err != nil {
		return nil, fmt.Errorf("%w: bad encrypted key", ErrDecrypt)
	}
	nonce, err := base64.StdEncoding.DecodeString(payload.IV)
	if err != nil || len(nonce) != chacha20poly1305.NonceSize {
		return nil, fmt.Errorf("%w: bad nonce", ErrDecrypt)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(payload.EncryptedData)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ciphertext", ErrDecrypt)
	}

	ephPub, err := curve.NewPublicKey(ephRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ephemeral key", ErrDecrypt)
	}
	shared, err := priv.ECDH(ephPub)
	if err != nil {
		return nil, fmt.Errorf("%w: ecdh", ErrDecrypt)
	}
	defer zeroBytes(shared)

	aead, err := sealCipher(shared)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: open", ErrDecrypt)
	}
	return plaintext, nil
}

// ChunkAndEncryptFile splits data into fixed-size chunks and seals each one
// independently for the recipient.
func (s Sealer) ChunkAndEncryptFile(data []byte, name, mime string, recipientPub []byte) ([]protocol.ChunkPayload, error) {
	chunkSize := s.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	total := (len(data) + chunkSize - 1) / chunkSize
	if total == 0 {
		total = 1
	}

	chunks := make([]protocol.ChunkPayload, 0, total)
	for i := 0; i < total; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(data) {
			end = len(data)
		}
		sealed, err := s.EncryptForRecipient(data[start:end], recipientPub)
		if err != nil {
			return nil, fmt.Errorf("encrypt chunk %d: %w", i, err)
		}
		chunks = append(chunks, protocol.ChunkPayload{
			FileName:      name,
			MimeType:      mime,
			ChunkIndex:    i,
			TotalChunks:   total,
			CipherPayload: sealed,
		})
	}
	return chunks, nil
}

// DecryptChunk opens one file chunk; cost is O(chunk size).
func (s Sealer) DecryptChunk(chunk protocol.ChunkPayload, private []byte) ([]byte, error) {
	return s.Decrypt(chunk.CipherPayload, private)
}

func sealCipher(shared []byte) (cipher.AEAD, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, nil, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("derive payload key: %w", err)
	}
	defer zeroBytes(key)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return aead, nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
