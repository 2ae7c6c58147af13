package client

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/rahulkumargit1/Krypt/internal/protocol"
)

// Phase is the call lifecycle state. At most one call session exists at a
// time.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseOutgoing
	PhaseIncomingOffered
	PhaseActive
)

func (p Phase) String() string {
	switch p {
	case PhaseOutgoing:
		return "outgoing"
	case PhaseIncomingOffered:
		return "incoming_offered"
	case PhaseActive:
		return "active"
	default:
		return "idle"
	}
}

// ICECandidate mirrors the wire fields of a webrtc_ice envelope.
type ICECandidate struct {
	Candidate     string
	SDPMid        string
	SDPMLineIndex int
}

// SessionEventKind tags events emitted by a media session.
type SessionEventKind int

const (
	SessionLocalSDP SessionEventKind = iota
	SessionLocalICE
	SessionTerminated
)

// SessionEvent is delivered on the engine's event channel so call state stays
// on the single worker.
type SessionEvent struct {
	Kind      SessionEventKind
	SDP       string
	Candidate ICECandidate
}

// Session is the opaque media session collaborator. Its transport internals
// are out of scope; the engine only feeds it signaling.
type Session interface {
	SetRemoteAnswer(sdp string) error
	AddICECandidate(candidate ICECandidate) error
	Close() error
}

// SessionFactory creates sessions. Created sessions emit their local SDP,
// local ICE candidates, and termination on the provided channel.
type SessionFactory interface {
	NewOutgoing(events chan<- SessionEvent) (Session, error)
	NewFromOffer(offerSDP string, events chan<- SessionEvent) (Session, error)
}

var (
	// ErrCallInProgress rejects overlapping call attempts rather than
	// leaking the existing session.
	ErrCallInProgress   = errors.New("a call is already in progress")
	ErrNoIncomingCall   = errors.New("no incoming call to accept")
	ErrNoSessionFactory = errors.New("media sessions unavailable")
)

// callMachine owns the single call session. All methods run on the engine
// worker, so no locking is needed.
type callMachine struct {
	log      *zap.Logger
	metrics  *Metrics
	selfUUID string
	sessions SessionFactory
	send     func(ctx context.Context, env protocol.Envelope) error
	events   chan SessionEvent
	publish  func(CallSnapshot)

	phase    Phase
	remote   string
	offerSDP string
	session  Session
}

func newCallMachine(log *zap.Logger, metrics *Metrics, selfUUID string, sessions SessionFactory, send func(context.Context, protocol.Envelope) error, publish func(CallSnapshot)) *callMachine {
	return &callMachine{
		log:      log,
		metrics:  metrics,
		selfUUID: selfUUID,
		sessions: sessions,
		send:     send,
		events:   make(chan SessionEvent, 16),
		publish:  publish,
	}
}

// startCall creates an outgoing session. The session produces its SDP offer
// asynchronously; the offer is sent when the LocalSDP event arrives.
func (c *callMachine) startCall(remote string) error {
	if c.phase != PhaseIdle {
		return ErrCallInProgress
	}
	if c.sessions == nil {
		return ErrNoSessionFactory
	}

	session, err := c.sessions.NewOutgoing(c.events)
	if err != nil {
		return err
	}
	c.session = session
	c.remote = remote
	c.transition(PhaseOutgoing)
	c.metrics.RecordCallStarted()
	return nil
}

// acceptCall creates a session from the stored offer and clears it. The
// session's answer SDP arrives as a LocalSDP event.
func (c *callMachine) acceptCall() error {
	if c.phase != PhaseIncomingOffered {
		return ErrNoIncomingCall
	}
	if c.sessions == nil {
		return ErrNoSessionFactory
	}

	session, err := c.sessions.NewFromOffer(c.offerSDP, c.events)
	if err != nil {
		return err
	}
	c.session = session
	c.offerSDP = ""
	c.transition(PhaseActive)
	c.metrics.RecordCallStarted()
	return nil
}

// endCall tears the session down from any state.
func (c *callMachine) endCall() {
	if c.session != nil {
		if err := c.session.Close(); err != nil {
			c.log.Warn("close call session", zap.Error(err))
		}
		c.metrics.RecordCallEnded()
	}
	c.session = nil
	c.remote = ""
	c.offerSDP = ""
	c.transition(PhaseIdle)
}

// handleOffer records an incoming offer. No session is created until the
// user accepts.
func (c *callMachine) handleOffer(from, sdp string) error {
	if c.phase != PhaseIdle {
		c.log.Debug("ignoring call offer while busy",
			zap.String("from", from), zap.String("phase", c.phase.String()))
		return nil
	}
	c.remote = from
	c.offerSDP = sdp
	c.transition(PhaseIncomingOffered)
	return nil
}

// handleAnswer forwards the remote answer into the outgoing session. With no
// prior startCall the event is a no-op.
func (c *callMachine) handleAnswer(sdp string) error {
	if c.phase != PhaseOutgoing || c.session == nil {
		return nil
	}
	if err := c.session.SetRemoteAnswer(sdp); err != nil {
		return err
	}
	c.transition(PhaseActive)
	return nil
}

// handleICE forwards a candidate into the pending or active session, if one
// exists; otherwise the candidate is ignored.
func (c *callMachine) handleICE(candidate ICECandidate) error {
	if c.session == nil {
		return nil
	}
	return c.session.AddICECandidate(candidate)
}

// handleSessionEvent reacts to events emitted by the media session. All
// signaling flows through the transport envelopes; the machine never touches
// the transport connection directly.
func (c *callMachine) handleSessionEvent(ctx context.Context, ev SessionEvent) {
	switch ev.Kind {
	case SessionLocalSDP:
		if c.session == nil || c.remote == "" {
			return
		}
		var env protocol.Envelope
		switch c.phase {
		case PhaseOutgoing:
			env = protocol.NewOffer(c.selfUUID, c.remote, ev.SDP)
		case PhaseActive:
			env = protocol.NewAnswer(c.selfUUID, c.remote, ev.SDP)
		default:
			return
		}
		if err := c.send(ctx, env); err != nil {
			c.log.Warn("send call signaling", zap.String("type", string(env.Type)), zap.Error(err))
		}
	case SessionLocalICE:
		if c.session == nil || c.remote == "" {
			return
		}
		env := protocol.NewICE(c.selfUUID, c.remote, ev.Candidate.Candidate, ev.Candidate.SDPMid, ev.Candidate.SDPMLineIndex)
		if err := c.send(ctx, env); err != nil {
			c.log.Warn("send ice candidate", zap.Error(err))
		}
	case SessionTerminated:
		c.endCall()
	}
}

func (c *callMachine) transition(next Phase) {
	if next != c.phase {
		c.log.Info("call state changed",
			zap.String("from", c.phase.String()),
			zap.String("to", next.String()),
			zap.String("remote", c.remote))
	}
	c.phase = next
	if c.publish != nil {
		c.publish(CallSnapshot{Phase: c.phase, Remote: c.remote})
	}
}
