package client

import (
	"context"
	"errors"
	"testing"

	"github.com/rahulkumargit1/Krypt/internal/protocol"
)

func TestStartCallSendsOfferOnLocalSDP(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.client.calls.startCall("bob"); err != nil {
		t.Fatalf("start call: %v", err)
	}
	if h.sessions.outgoing != 1 {
		t.Fatalf("expected one outgoing session, got %d", h.sessions.outgoing)
	}
	if got := h.client.calls.phase; got != PhaseOutgoing {
		t.Fatalf("phase = %v, want outgoing", got)
	}
	if len(h.transport.sentEnvelopes()) != 0 {
		t.Fatal("offer sent before the session produced its SDP")
	}

	h.client.calls.handleSessionEvent(ctx, SessionEvent{Kind: SessionLocalSDP, SDP: "offer-sdp"})

	sent := h.transport.sentEnvelopes()
	if len(sent) != 1 {
		t.Fatalf("expected one signaling envelope, got %d", len(sent))
	}
	env := sent[0]
	if env.Type != protocol.TypeWebRTCOffer {
		t.Fatalf("type = %s, want webrtc_offer", env.Type)
	}
	if env.From != "self-uuid" || env.To != "bob" || env.SDP != "offer-sdp" {
		t.Fatalf("offer envelope wrong: %+v", env)
	}
}

func TestAnswerActivatesOutgoingCall(t *testing.T) {
	h := newHarness(t)

	if err := h.client.calls.startCall("bob"); err != nil {
		t.Fatalf("start call: %v", err)
	}
	if err := h.client.calls.handleAnswer("answer-sdp"); err != nil {
		t.Fatalf("handle answer: %v", err)
	}
	if got := h.client.calls.phase; got != PhaseActive {
		t.Fatalf("phase = %v, want active", got)
	}
	if got := h.sessions.session.answers; len(got) != 1 || got[0] != "answer-sdp" {
		t.Fatalf("session answers = %v", got)
	}
}

func TestAnswerWithoutOutgoingCallIsIgnored(t *testing.T) {
	h := newHarness(t)

	if err := h.client.calls.handleAnswer("stray-sdp"); err != nil {
		t.Fatalf("stray answer should be ignored, got %v", err)
	}
	if got := h.client.calls.phase; got != PhaseIdle {
		t.Fatalf("phase = %v, want idle", got)
	}
}

func TestICEWithoutSessionIsIgnored(t *testing.T) {
	h := newHarness(t)

	err := h.client.calls.handleICE(ICECandidate{Candidate: "candidate:1"})
	if err != nil {
		t.Fatalf("stray candidate should be ignored, got %v", err)
	}
}

func TestICEForwardedIntoSession(t *testing.T) {
	h := newHarness(t)

	if err := h.client.calls.startCall("bob"); err != nil {
		t.Fatalf("start call: %v", err)
	}
	cand := ICECandidate{Candidate: "candidate:1", SDPMid: "0", SDPMLineIndex: 0}
	if err := h.client.calls.handleICE(cand); err != nil {
		t.Fatalf("handle ice: %v", err)
	}
	if got := h.sessions.session.ice; len(got) != 1 || got[0] != cand {
		t.Fatalf("session candidates = %v", got)
	}
}

func TestOverlappingCallsRejected(t *testing.T) {
	h := newHarness(t)

	if err := h.client.calls.startCall("bob"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if err := h.client.calls.startCall("carol"); !errors.Is(err, ErrCallInProgress) {
		t.Fatalf("second call error = %v, want ErrCallInProgress", err)
	}
	// An inbound offer while busy is ignored; the existing call survives.
	if err := h.client.calls.handleOffer("carol", "competing-offer"); err != nil {
		t.Fatalf("offer while busy: %v", err)
	}
	if got := h.client.calls.remote; got != "bob" {
		t.Fatalf("remote = %s, want bob", got)
	}
	if h.sessions.outgoing != 1 {
		t.Fatalf("outgoing sessions = %d, want 1", h.sessions.outgoing)
	}
}

func TestIncomingOfferAcceptFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.client.calls.handleOffer("alice", "alice-offer"); err != nil {
		t.Fatalf("handle offer: %v", err)
	}
	if got := h.client.calls.phase; got != PhaseIncomingOffered {
		t.Fatalf("phase = %v, want incoming_offered", got)
	}
	if h.sessions.fromOffer != 0 {
		t.Fatal("session created before the call was accepted")
	}

	if err := h.client.calls.acceptCall(); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if h.sessions.fromOffer != 1 || h.sessions.lastOffer != "alice-offer" {
		t.Fatalf("session not built from the stored offer: %+v", h.sessions)
	}
	if got := h.client.calls.phase; got != PhaseActive {
		t.Fatalf("phase = %v, want active", got)
	}

	h.client.calls.handleSessionEvent(ctx, SessionEvent{Kind: SessionLocalSDP, SDP: "my-answer"})

	sent := h.transport.sentEnvelopes()
	if len(sent) != 1 {
		t.Fatalf("expected one answer envelope, got %d", len(sent))
	}
	env := sent[0]
	if env.Type != protocol.TypeWebRTCAnswer || env.To != "alice" || env.SDP != "my-answer" {
		t.Fatalf("answer envelope wrong: %+v", env)
	}
}

func TestAcceptWithoutOfferFails(t *testing.T) {
	h := newHarness(t)

	if err := h.client.calls.acceptCall(); !errors.Is(err, ErrNoIncomingCall) {
		t.Fatalf("accept error = %v, want ErrNoIncomingCall", err)
	}
}

func TestEndCallClosesSessionAndResets(t *testing.T) {
	h := newHarness(t)

	if err := h.client.calls.startCall("bob"); err != nil {
		t.Fatalf("start call: %v", err)
	}
	session := h.sessions.session
	h.client.calls.endCall()

	if !session.closed {
		t.Fatal("session not closed")
	}
	if got := h.client.calls.phase; got != PhaseIdle {
		t.Fatalf("phase = %v, want idle", got)
	}
	// A fresh call after hangup is allowed.
	if err := h.client.calls.startCall("carol"); err != nil {
		t.Fatalf("call after hangup: %v", err)
	}
}

func TestSessionTerminationEndsCall(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.client.calls.startCall("bob"); err != nil {
		t.Fatalf("start call: %v", err)
	}
	h.client.calls.handleSessionEvent(ctx, SessionEvent{Kind: SessionTerminated})

	if got := h.client.calls.phase; got != PhaseIdle {
		t.Fatalf("phase = %v, want idle", got)
	}
	if !h.sessions.session.closed {
		t.Fatal("terminated session not closed")
	}
}

func TestLocalICEEventSendsCandidate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.client.calls.startCall("bob"); err != nil {
		t.Fatalf("start call: %v", err)
	}
	h.client.calls.handleSessionEvent(ctx, SessionEvent{
		Kind:      SessionLocalICE,
		Candidate: ICECandidate{Candidate: "candidate:7", SDPMid: "0", SDPMLineIndex: 0},
	})

	sent := h.transport.sentEnvelopes()
	if len(sent) != 1 {
		t.Fatalf("expected one candidate envelope, got %d", len(sent))
	}
	env := sent[0]
	if env.Type != protocol.TypeWebRTCICE || env.To != "bob" || env.Candidate != "candidate:7" {
		t.Fatalf("candidate envelope wrong: %+v", env)
	}
}

func TestCallsUnavailableWithoutSessionFactory(t *testing.T) {
	h := newHarness(t)
	h.client.calls.sessions = nil

	if err := h.client.calls.startCall("bob"); !errors.Is(err, ErrNoSessionFactory) {
		t.Fatalf("start error = %v, want ErrNoSessionFactory", err)
	}
}
