package client

import (
	"context"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/rahulkumargit1/Krypt/internal/crypto/seal"
	"github.com/rahulkumargit1/Krypt/internal/identity"
	"github.com/rahulkumargit1/Krypt/internal/protocol"
	"github.com/rahulkumargit1/Krypt/internal/store"
	"github.com/rahulkumargit1/Krypt/internal/transport"
)

type fakeTransport struct {
	mu      sync.Mutex
	sent    []protocol.Envelope
	sendErr error
	inbound chan protocol.Envelope
	state   transport.State
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan protocol.Envelope, 64),
		state:   transport.StateRegistered,
	}
}

func (t *fakeTransport) Send(_ context.Context, env protocol.Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, env)
	return nil
}

func (t *fakeTransport) Inbound() <-chan protocol.Envelope { return t.inbound }

func (t *fakeTransport) State() transport.State { return t.state }

func (t *fakeTransport) sentEnvelopes() []protocol.Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]protocol.Envelope(nil), t.sent...)
}

type fakeSession struct {
	mu      sync.Mutex
	answers []string
	ice     []ICECandidate
	closed  bool
}

func (s *fakeSession) SetRemoteAnswer(sdp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = append(s.answers, sdp)
	return nil
}

func (s *fakeSession) AddICECandidate(c ICECandidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ice = append(s.ice, c)
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type fakeSessionFactory struct {
	session   *fakeSession
	events    chan<- SessionEvent
	outgoing  int
	fromOffer int
	lastOffer string
}

func (f *fakeSessionFactory) NewOutgoing(events chan<- SessionEvent) (Session, error) {
	f.outgoing++
	f.events = events
	f.session = &fakeSession{}
	return f.session, nil
}

func (f *fakeSessionFactory) NewFromOffer(offerSDP string, events chan<- SessionEvent) (Session, error) {
	f.fromOffer++
	f.events = events
	f.lastOffer = offerSDP
	f.session = &fakeSession{}
	return f.session, nil
}

type testHarness struct {
	client    *Client
	transport *fakeTransport
	sessions  *fakeSessionFactory
	store     *store.Memory
	self      identity.Identity
	peer      seal.KeyPair
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	selfPair, err := seal.GenerateKeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("generate self keys: %v", err)
	}
	peerPair, err := seal.GenerateKeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("generate peer keys: %v", err)
	}

	mem, err := store.NewMemory(nil, "")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ft := newFakeTransport()
	sessions := &fakeSessionFactory{}
	self := identity.Identity{UUID: "self-uuid", PublicKey: selfPair.Public, PrivateKey: selfPair.Private}

	c, err := New(Config{
		Log:       zaptest.NewLogger(t),
		Transport: ft,
		Oracle:    seal.Sealer{ChunkSize: 64},
		Store:     mem,
		Sessions:  sessions,
		Identity:  self,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	return &testHarness{
		client:    c,
		transport: ft,
		sessions:  sessions,
		store:     mem,
		self:      self,
		peer:      peerPair,
	}
}

// addResolvedContact stores a contact whose key already resolved to the
// harness peer key.
func (h *testHarness) addResolvedContact(t *testing.T, uuid, nickname string) {
	t.Helper()
	err := h.store.UpsertContact(context.Background(), store.Contact{
		UUID:      uuid,
		PublicKey: seal.EncodeKey(h.peer.Public),
		Nickname:  nickname,
		AddedAt:   time.Now(),
	})
	if err != nil {
		t.Fatalf("seed contact: %v", err)
	}
}

// encryptedChunksFor seals a file for the harness client itself, as a peer
// sending to us would.
func (h *testHarness) encryptedChunksFor(t *testing.T, data []byte, name, mime string) []protocol.ChunkPayload {
	t.Helper()
	chunks, err := seal.Sealer{ChunkSize: 64}.ChunkAndEncryptFile(data, name, mime, h.self.PublicKey)
	if err != nil {
		t.Fatalf("encrypt chunks: %v", err)
	}
	return chunks
}
