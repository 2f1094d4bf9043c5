package rtc

import (
	"sync"

	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	peer   domain.ParticipantID
	logger zerolog.Logger

	mu      sync.Mutex
	onICE   func(webrtc.ICECandidateInit)
	onState func(domain.ConnectivityState)
	onTrack func(core.RemoteTrack)
	sending map[webrtc.RTPCodecType]bool
	recvAdd bool

	stateMu   sync.Mutex
	lastState domain.ConnectivityState
}

// Factory returns a ConnectionFactory creating one pion PeerConnection per link.
func Factory(cfg webrtc.Configuration) core.ConnectionFactory {
	return func(peer domain.ParticipantID) (core.MediaConnection, error) {
		return NewWebRTCConnection(cfg, peer)
	}
}

func NewWebRTCConnection(cfg webrtc.Configuration, peer domain.ParticipantID) (*WebRTCConnection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, domain.NewPeerError("create peer connection", peer, err)
	}
	c := &WebRTCConnection{
		pc:        pc,
		peer:      peer,
		logger:    log.With().Str("module", "webrtc").Str("peer", string(peer)).Logger(),
		sending:   make(map[webrtc.RTPCodecType]bool),
		lastState: domain.ConnectivityNew,
	}
	c.bindHandlers()
	return c, nil
}

func (c *WebRTCConnection) bindHandlers() {
	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.logger.Debug().Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		// pion runs each handler on its own goroutine; report the current state, not s
		c.emitState(c.pc.ConnectionState())
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		c.mu.Lock()
		fn := c.onICE
		c.mu.Unlock()
		if fn != nil {
			fn(cand.ToJSON())
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		c.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			// ask for a keyframe so the remote picture starts without waiting for the next GOP
			pli := []rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())}}
			if err := c.pc.WriteRTCP(pli); err != nil {
				c.logger.Warn().Err(err).Msg("PLI write")
			}
		}
		c.mu.Lock()
		fn := c.onTrack
		c.mu.Unlock()
		if fn != nil {
			fn(track)
		}
	})
}

// emitState reports s in order and at most once. A jump from New straight to
// a settled state means the connecting callback lost the race, so Checking is
// reported first.
func (c *WebRTCConnection) emitState(s webrtc.PeerConnectionState) {
	state, ok := MapState(s)
	if !ok {
		return
	}
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	steps := stateSteps(c.lastState, state)
	if len(steps) == 0 {
		return
	}
	c.lastState = state

	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	if fn == nil {
		return
	}
	for _, step := range steps {
		fn(step)
	}
}

func stateSteps(last, next domain.ConnectivityState) []domain.ConnectivityState {
	switch {
	case next == last:
		return nil
	case last == domain.ConnectivityNew && (next == domain.ConnectivityConnected || next == domain.ConnectivityFailed):
		return []domain.ConnectivityState{domain.ConnectivityChecking, next}
	default:
		return []domain.ConnectivityState{next}
	}
}

// MapState folds pion's peer connection states onto link connectivity states.
func MapState(s webrtc.PeerConnectionState) (domain.ConnectivityState, bool) {
	switch s {
	case webrtc.PeerConnectionStateNew:
		return domain.ConnectivityNew, true
	case webrtc.PeerConnectionStateConnecting:
		return domain.ConnectivityChecking, true
	case webrtc.PeerConnectionStateConnected:
		return domain.ConnectivityConnected, true
	case webrtc.PeerConnectionStateDisconnected:
		return domain.ConnectivityDisconnected, true
	case webrtc.PeerConnectionStateFailed:
		return domain.ConnectivityFailed, true
	case webrtc.PeerConnectionStateClosed:
		return domain.ConnectivityClosed, true
	default:
		return "", false
	}
}

// AddLocalTrack attaches a local track to the PeerConnection and drains its RTCP.
func (c *WebRTCConnection) AddLocalTrack(track webrtc.TrackLocal) error {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.sending[track.Kind()] = true
	c.mu.Unlock()

	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

// ensureReceivers offers to receive audio and video even without local tracks of that kind.
func (c *WebRTCConnection) ensureReceivers() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recvAdd {
		return nil
	}
	c.recvAdd = true
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if c.sending[kind] {
			continue
		}
		init := webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}
		if _, err := c.pc.AddTransceiverFromKind(kind, init); err != nil {
			return err
		}
	}
	return nil
}

func (c *WebRTCConnection) CreateOffer(iceRestart bool) (webrtc.SessionDescription, error) {
	if err := c.ensureReceivers(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	offer, err := c.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: iceRestart})
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (c *WebRTCConnection) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (c *WebRTCConnection) ApplyAnswer(answer webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(answer)
}

func (c *WebRTCConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *WebRTCConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

func (c *WebRTCConnection) OnStateChange(fn func(domain.ConnectivityState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

// OnTrack sets application-level callback for remote tracks.
func (c *WebRTCConnection) OnTrack(fn func(core.RemoteTrack)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *WebRTCConnection) Close() error {
	if err := c.pc.Close(); err != nil {
		c.logger.Error().Err(err).Msg("close error")
		return err
	}
	c.logger.Info().Msg("closed")
	return nil
}
