package identity

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/rahulkumargit1/Krypt/internal/keystore"
)

func TestEnsureGeneratesOnceAndReloads(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "keystore.json")

	backend := keystore.NewFileBackend(path)
	if err := backend.Initialize(ctx, "pass"); err != nil {
		t.Fatalf("initialize keystore: %v", err)
	}

	first, err := Ensure(ctx, backend)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if first.UUID == "" || len(first.PublicKey) == 0 || len(first.PrivateKey) == 0 {
		t.Fatalf("incomplete identity: %+v", first)
	}

	// A second Ensure over the same keystore must return the same identity.
	reopened := keystore.NewFileBackend(path)
	if err := reopened.Unlock(ctx, "pass"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	second, err := Ensure(ctx, reopened)
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if second.UUID != first.UUID {
		t.Fatalf("uuid changed across restarts: %s vs %s", first.UUID, second.UUID)
	}
	if !bytes.Equal(second.PublicKey, first.PublicKey) {
		t.Fatalf("public key changed across restarts")
	}
	if second.PublicKeyString() != first.PublicKeyString() {
		t.Fatalf("encoded public key changed across restarts")
	}
}

func TestEnsureRequiresKeystore(t *testing.T) {
	if _, err := Ensure(context.Background(), nil); err == nil {
		t.Fatal("expected error without keystore")
	}
}
