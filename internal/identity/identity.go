// Package identity manages the client's long-term identity material.
package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/rahulkumargit1/Krypt/internal/crypto/seal"
	"github.com/rahulkumargit1/Krypt/internal/keystore"
)

const (
	keySecretID  = "identity_key"
	uuidSecretID = "identity_uuid"
)

// Identity holds the local uuid and key pair. Created once, immutable after.
type Identity struct {
	UUID       string
	PublicKey  []byte
	PrivateKey []byte
}

// PublicKeyString renders the public key for the wire.
func (id Identity) PublicKeyString() string {
	return seal.EncodeKey(id.PublicKey)
}

// Ensure loads the identity from the keystore or generates and persists a new
// one. Failure here is the only unrecoverable startup condition.
func Ensure(ctx context.Context, ks keystore.KeyBackend) (Identity, error) {
	if ks == nil {
		return Identity{}, errors.New("keystore is required for identity")
	}

	raw, err := ks.LoadSecret(ctx, keySecretID)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Identity{}, fmt.Errorf("load identity key: %w", err)
		}
		return generate(ctx, ks)
	}
	defer zeroBytes(raw)

	if len(raw) != seal.KeySize {
		return Identity{}, fmt.Errorf("identity key has invalid size %d", len(raw))
	}
	private := append([]byte(nil), raw...)
	public, err := seal.PublicKey(private)
	if err != nil {
		return Identity{}, fmt.Errorf("derive identity public key: %w", err)
	}

	id, err := ks.LoadSecret(ctx, uuidSecretID)
	if err != nil {
		return Identity{}, fmt.Errorf("load identity uuid: %w", err)
	}

	return Identity{UUID: string(id), PublicKey: public, PrivateKey: private}, nil
}

func generate(ctx context.Context, ks keystore.KeyBackend) (Identity, error) {
	pair, err := seal.GenerateKeyPair(rand.Reader)
	if err != nil {
		return Identity{}, fmt.Errorf("generate identity key: %w", err)
	}
	id := uuid.NewString()

	if err := ks.StoreSecret(ctx, keySecretID, pair.Private); err != nil {
		return Identity{}, fmt.Errorf("store identity key: %w", err)
	}
	if err := ks.StoreSecret(ctx, uuidSecretID, []byte(id)); err != nil {
		return Identity{}, fmt.Errorf("store identity uuid: %w", err)
	}

	return Identity{UUID: id, PublicKey: pair.Public, PrivateKey: pair.Private}, nil
}

func zeroBytes(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
