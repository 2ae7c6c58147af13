package keystore

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestBackend(t *testing.T) *FileBackend {
	t.Helper()
	return NewFileBackend(filepath.Join(t.TempDir(), "keystore.json"))
}

func TestInitializeAndUnlockRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)

	if err := backend.Unlock(ctx, "pass"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized before init, got %v", err)
	}
	if err := backend.Initialize(ctx, "pass"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := backend.Initialize(ctx, "pass"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists on second init, got %v", err)
	}

	secret := []byte("identity-key-material")
	if err := backend.StoreSecret(ctx, "identity_key", secret); err != nil {
		t.Fatalf("store secret: %v", err)
	}

	// A fresh backend over the same file must recover the secret after unlock.
	reopened := NewFileBackend(backend.Path())
	if err := reopened.Unlock(ctx, "pass"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	loaded, err := reopened.LoadSecret(ctx, "identity_key")
	if err != nil {
		t.Fatalf("load secret: %v", err)
	}
	if !bytes.Equal(loaded, secret) {
		t.Fatalf("expected secret %q, got %q", secret, loaded)
	}
}

func TestUnlockRejectsWrongPassphrase(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)

	if err := backend.Initialize(ctx, "correct"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := backend.StoreSecret(ctx, "identity_key", []byte("material")); err != nil {
		t.Fatalf("store secret: %v", err)
	}

	reopened := NewFileBackend(backend.Path())
	if err := reopened.Unlock(ctx, "wrong"); !errors.Is(err, ErrInvalidPass) {
		t.Fatalf("expected ErrInvalidPass, got %v", err)
	}
}

func TestSecretValidation(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)

	if err := backend.StoreSecret(ctx, "id", []byte("x")); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked before unlock, got %v", err)
	}
	if err := backend.Initialize(ctx, "pass"); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if err := backend.StoreSecret(ctx, "", []byte("x")); !errors.Is(err, ErrInvalidSecretID) {
		t.Fatalf("expected ErrInvalidSecretID, got %v", err)
	}
	if err := backend.StoreSecret(ctx, "id", nil); !errors.Is(err, ErrInvalidSecret) {
		t.Fatalf("expected ErrInvalidSecret for empty secret, got %v", err)
	}
	big := bytes.Repeat([]byte{1}, maxSecretBytes+1)
	if err := backend.StoreSecret(ctx, "id", big); !errors.Is(err, ErrSecretTooBig) {
		t.Fatalf("expected ErrSecretTooBig, got %v", err)
	}
}

func TestDeleteAndList(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)

	if err := backend.Initialize(ctx, "pass"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	for _, id := range []string{"b", "a"} {
		if err := backend.StoreSecret(ctx, id, []byte(id)); err != nil {
			t.Fatalf("store %s: %v", id, err)
		}
	}

	ids, err := backend.ListSecrets(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("expected sorted ids [a b], got %v", ids)
	}

	if err := backend.DeleteSecret(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := backend.LoadSecret(ctx, "a"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist after delete, got %v", err)
	}
}
