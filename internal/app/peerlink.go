package app

import (
	"errors"
	"time"

	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// PeerLink negotiates and supervises the connection to one remote participant.
// All methods except the constructor accessors must be called from the room loop.
type PeerLink struct {
	peer   domain.ParticipantID
	role   domain.Role
	gen    uint64
	conn   core.MediaConnection
	logger zerolog.Logger

	send           func(domain.SetupMessage) error
	post           func(LinkEvent)
	restartTimeout time.Duration

	negotiation   domain.NegotiationState
	connectivity  domain.ConnectivityState
	remoteApplied bool
	remoteSDP     string
	pending       []domain.Candidate
	pendingKeys   map[string]struct{}
	appliedKeys   map[string]struct{}
	remoteTracks  []core.RemoteTrack

	restartUsed  bool
	restartTimer *time.Timer
	restartArmed bool

	closed bool
}

type linkParams struct {
	peer           domain.ParticipantID
	role           domain.Role
	gen            uint64
	conn           core.MediaConnection
	send           func(domain.SetupMessage) error
	post           func(LinkEvent)
	restartTimeout time.Duration
}

func newPeerLink(p linkParams) *PeerLink {
	return &PeerLink{
		peer:           p.peer,
		role:           p.role,
		gen:            p.gen,
		conn:           p.conn,
		send:           p.send,
		post:           p.post,
		restartTimeout: p.restartTimeout,
		logger: log.With().
			Str("module", "app.link").
			Str("peer", string(p.peer)).
			Str("role", p.role.String()).
			Uint64("gen", p.gen).
			Logger(),
		negotiation:  domain.NegotiationIdle,
		connectivity: domain.ConnectivityNew,
		pendingKeys:  make(map[string]struct{}),
		appliedKeys:  make(map[string]struct{}),
	}
}

func (l *PeerLink) Peer() domain.ParticipantID { return l.peer }
func (l *PeerLink) Role() domain.Role          { return l.role }
func (l *PeerLink) Generation() uint64         { return l.gen }

func (l *PeerLink) Negotiation() domain.NegotiationState    { return l.negotiation }
func (l *PeerLink) Connectivity() domain.ConnectivityState { return l.connectivity }
func (l *PeerLink) PendingCandidates() int                 { return len(l.pending) }
func (l *PeerLink) Closed() bool                           { return l.closed }

func (l *PeerLink) Info() domain.LinkInfo {
	return domain.LinkInfo{
		Participant:  l.peer,
		Role:         l.role.String(),
		Negotiation:  l.negotiation,
		Connectivity: l.connectivity,
		Generation:   l.gen,
	}
}

// start binds connection callbacks, attaches the local tracks and, for an
// initiator, sends the first offer.
func (l *PeerLink) start(tracks []webrtc.TrackLocal) error {
	peer, gen := l.peer, l.gen
	l.conn.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		l.post(LinkEvent{Kind: LinkLocalCandidate, Peer: peer, Generation: gen, Candidate: ci})
	})
	l.conn.OnStateChange(func(s domain.ConnectivityState) {
		l.post(LinkEvent{Kind: LinkConnectivity, Peer: peer, Generation: gen, State: s})
	})
	l.conn.OnTrack(func(t core.RemoteTrack) {
		l.post(LinkEvent{Kind: LinkRemoteTrack, Peer: peer, Generation: gen, Track: t})
	})

	for _, t := range tracks {
		if err := l.conn.AddLocalTrack(t); err != nil {
			return domain.NewPeerError("attach "+t.Kind().String()+" track", l.peer, err)
		}
	}
	l.logger.Info().Int("tracks", len(tracks)).Msg("link started")

	if l.role == domain.RoleInitiator {
		return l.offer(false)
	}
	return nil
}

func (l *PeerLink) offer(restart bool) error {
	desc, err := l.conn.CreateOffer(restart)
	if err != nil {
		return domain.NewPeerError("create offer", l.peer, err)
	}
	l.negotiation = domain.NegotiationHaveLocalOffer

	msg := domain.NewOffer(desc.SDP)
	if restart {
		msg = domain.NewRestartOffer(desc.SDP)
	}
	if err := l.send(msg); err != nil {
		return domain.NewPeerError("send offer", l.peer, err)
	}
	l.logger.Info().Bool("restart", restart).Msg("offer sent")
	return nil
}

// HandleMessage applies one setup message from the peer.
func (l *PeerLink) HandleMessage(msg domain.SetupMessage) error {
	if l.closed {
		return domain.NewPeerError("handle "+string(msg.Kind), l.peer, domain.ErrLinkClosed)
	}
	if err := msg.Validate(); err != nil {
		var e *domain.Error
		if errors.As(err, &e) {
			e.Peer = l.peer
		}
		return err
	}
	switch msg.Kind {
	case domain.KindOffer:
		return l.handleOffer(msg)
	case domain.KindAnswer:
		return l.handleAnswer(msg)
	default:
		return l.handleCandidate(*msg.Candidate)
	}
}

func (l *PeerLink) stale(op, details string) error {
	return &domain.Error{Op: op, Peer: l.peer, Err: domain.ErrStaleMessage, Details: details}
}

func (l *PeerLink) handleOffer(msg domain.SetupMessage) error {
	if l.role != domain.RoleResponder {
		return l.stale("offer", "initiator links never accept offers")
	}
	switch {
	case l.negotiation == domain.NegotiationIdle:
	case msg.SDP == l.remoteSDP:
		return l.stale("offer", "duplicate")
	case msg.Restart && l.negotiation == domain.NegotiationStable:
		l.logger.Info().Msg("accepting ICE restart offer")
	default:
		return &domain.Error{Op: "offer", Peer: l.peer, Err: domain.ErrRenegotiationRequired, Details: "state " + string(l.negotiation)}
	}

	prev := l.negotiation
	l.negotiation = domain.NegotiationHaveRemoteOffer
	answer, err := l.conn.ApplyOfferAndCreateAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: msg.SDP})
	if err != nil {
		l.negotiation = prev
		return &domain.Error{Op: "apply offer", Peer: l.peer, Err: domain.ErrNegotiation, Details: err.Error()}
	}
	l.remoteApplied = true
	l.remoteSDP = msg.SDP
	l.drainPending()

	l.negotiation = domain.NegotiationStable
	if err := l.send(domain.NewAnswer(answer.SDP)); err != nil {
		return domain.NewPeerError("send answer", l.peer, err)
	}
	l.logger.Info().Bool("restart", msg.Restart).Msg("answer sent")
	return nil
}

func (l *PeerLink) handleAnswer(msg domain.SetupMessage) error {
	if l.negotiation != domain.NegotiationHaveLocalOffer {
		return l.stale("answer", "state "+string(l.negotiation))
	}
	if err := l.conn.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: msg.SDP}); err != nil {
		return &domain.Error{Op: "apply answer", Peer: l.peer, Err: domain.ErrNegotiation, Details: err.Error()}
	}
	l.remoteApplied = true
	l.remoteSDP = msg.SDP
	l.negotiation = domain.NegotiationStable
	l.drainPending()
	l.logger.Info().Msg("answer applied")
	return nil
}

func (l *PeerLink) handleCandidate(c domain.Candidate) error {
	if c.Candidate == "" {
		// end of candidates
		return nil
	}
	key := c.Key()
	if _, ok := l.appliedKeys[key]; ok {
		return nil
	}
	if !l.remoteApplied {
		if _, ok := l.pendingKeys[key]; !ok {
			l.pending = append(l.pending, c)
			l.pendingKeys[key] = struct{}{}
		}
		return nil
	}
	return l.applyCandidate(c)
}

func (l *PeerLink) applyCandidate(c domain.Candidate) error {
	if err := l.conn.AddICECandidate(candidateInit(c)); err != nil {
		return &domain.Error{Op: "add candidate", Peer: l.peer, Err: domain.ErrNegotiation, Details: err.Error()}
	}
	l.appliedKeys[c.Key()] = struct{}{}
	return nil
}

func (l *PeerLink) drainPending() {
	if len(l.pending) == 0 {
		return
	}
	l.logger.Debug().Int("candidates", len(l.pending)).Msg("draining queued candidates")
	for _, c := range l.pending {
		if err := l.applyCandidate(c); err != nil {
			l.logger.Warn().Err(err).Msg("queued candidate rejected")
		}
	}
	l.pending = nil
	clear(l.pendingKeys)
}

// HandleLocalCandidate forwards a gathered candidate to the peer.
func (l *PeerLink) HandleLocalCandidate(ci webrtc.ICECandidateInit) error {
	if l.closed {
		return nil
	}
	if err := l.send(domain.NewCandidate(candidateFromInit(ci))); err != nil {
		return domain.NewPeerError("send candidate", l.peer, err)
	}
	return nil
}

// HandleConnectivity records a transport state change. A first failure gets
// one ICE restart; a second failure, or a restart that does not reconnect in
// time, is permanent.
func (l *PeerLink) HandleConnectivity(state domain.ConnectivityState) Outcome {
	if l.closed || state == l.connectivity {
		return OutcomeNone
	}
	if !l.connectivity.CanTransition(state) {
		l.logger.Debug().Str("from", string(l.connectivity)).Str("to", string(state)).Msg("ignoring transition")
		return OutcomeNone
	}
	l.logger.Info().Str("from", string(l.connectivity)).Str("to", string(state)).Msg("connectivity")
	l.connectivity = state

	switch state {
	case domain.ConnectivityConnected:
		l.stopRestartTimer()
	case domain.ConnectivityFailed:
		if l.restartUsed {
			return OutcomePermanentFailure
		}
		l.restartUsed = true
		l.armRestartTimer()
		if l.role == domain.RoleInitiator && l.negotiation == domain.NegotiationStable {
			if err := l.offer(true); err != nil {
				l.logger.Error().Err(err).Msg("ICE restart")
				return OutcomePermanentFailure
			}
		}
	}
	return OutcomeChanged
}

// HandleRestartExpired is the restart timer firing.
func (l *PeerLink) HandleRestartExpired() Outcome {
	if l.closed || !l.restartArmed {
		return OutcomeNone
	}
	l.restartArmed = false
	if l.connectivity == domain.ConnectivityConnected {
		return OutcomeNone
	}
	l.logger.Warn().Dur("timeout", l.restartTimeout).Msg("ICE restart timed out")
	return OutcomePermanentFailure
}

func (l *PeerLink) armRestartTimer() {
	l.stopRestartTimer()
	peer, gen := l.peer, l.gen
	l.restartArmed = true
	l.restartTimer = time.AfterFunc(l.restartTimeout, func() {
		l.post(LinkEvent{Kind: LinkRestartExpired, Peer: peer, Generation: gen})
	})
}

func (l *PeerLink) stopRestartTimer() {
	if l.restartTimer != nil {
		l.restartTimer.Stop()
		l.restartTimer = nil
	}
	l.restartArmed = false
}

// HandleRemoteTrack records a remote track and returns everything received so far.
func (l *PeerLink) HandleRemoteTrack(t core.RemoteTrack) core.TrackBundle {
	l.remoteTracks = append(l.remoteTracks, t)
	return core.TrackBundle{
		Participant: l.peer,
		Tracks:      append([]core.RemoteTrack(nil), l.remoteTracks...),
	}
}

// Close releases the connection. Safe to call twice.
func (l *PeerLink) Close() {
	if l.closed {
		return
	}
	l.closed = true
	l.stopRestartTimer()
	l.connectivity = domain.ConnectivityClosed
	l.pending = nil
	if err := l.conn.Close(); err != nil {
		l.logger.Warn().Err(err).Msg("close connection")
	}
	l.logger.Info().Msg("link closed")
}
