// Package apptest provides in-memory media connections for link and room tests.
package apptest

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

var ErrNoRemoteDescription = errors.New("remote description not set")

// Connection records what a link does to its media connection and lets the
// test fire the callbacks a real connection would.
type Connection struct {
	Peer domain.ParticipantID

	mu            sync.Mutex
	tracks        []webrtc.TrackLocal
	offers        int
	restartOffers int
	remoteOffers  []string
	remoteAnswers []string
	candidates    []webrtc.ICECandidateInit
	closed        bool
	failApply     bool

	onICE   func(webrtc.ICECandidateInit)
	onState func(domain.ConnectivityState)
	onTrack func(core.RemoteTrack)
}

var _ core.MediaConnection = (*Connection)(nil)

func NewConnection(peer domain.ParticipantID) *Connection {
	return &Connection{Peer: peer}
}

func (c *Connection) AddLocalTrack(t webrtc.TrackLocal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks = append(c.tracks, t)
	return nil
}

func (c *Connection) CreateOffer(iceRestart bool) (webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return webrtc.SessionDescription{}, io.ErrClosedPipe
	}
	c.offers++
	if iceRestart {
		c.restartOffers++
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("offer %s #%d", c.Peer, c.offers)}, nil
}

func (c *Connection) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failApply {
		return webrtc.SessionDescription{}, errors.New("malformed sdp")
	}
	c.remoteOffers = append(c.remoteOffers, offer.SDP)
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: fmt.Sprintf("answer %s #%d", c.Peer, len(c.remoteOffers))}, nil
}

func (c *Connection) ApplyAnswer(answer webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failApply {
		return errors.New("malformed sdp")
	}
	c.remoteAnswers = append(c.remoteAnswers, answer.SDP)
	return nil
}

func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.remoteOffers)+len(c.remoteAnswers) == 0 {
		return ErrNoRemoteDescription
	}
	c.candidates = append(c.candidates, ci)
	return nil
}

func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

func (c *Connection) OnStateChange(fn func(domain.ConnectivityState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *Connection) OnTrack(fn func(core.RemoteTrack)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// FailApply makes every following remote description rejected.
func (c *Connection) FailApply(fail bool) {
	c.mu.Lock()
	c.failApply = fail
	c.mu.Unlock()
}

func (c *Connection) EmitState(s domain.ConnectivityState) {
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (c *Connection) EmitCandidate(ci webrtc.ICECandidateInit) {
	c.mu.Lock()
	fn := c.onICE
	c.mu.Unlock()
	if fn != nil {
		fn(ci)
	}
}

func (c *Connection) EmitTrack(t core.RemoteTrack) {
	c.mu.Lock()
	fn := c.onTrack
	c.mu.Unlock()
	if fn != nil {
		fn(t)
	}
}

func (c *Connection) Tracks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tracks)
}

func (c *Connection) Offers() (total, restarts int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offers, c.restartOffers
}

func (c *Connection) RemoteOffers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.remoteOffers...)
}

func (c *Connection) RemoteAnswers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.remoteAnswers...)
}

func (c *Connection) Candidates() []webrtc.ICECandidateInit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), c.candidates...)
}

func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Factory hands out Connections and remembers every one it made.
type Factory struct {
	mu    sync.Mutex
	conns map[domain.ParticipantID][]*Connection
	fail  error
}

func NewFactory() *Factory {
	return &Factory{conns: make(map[domain.ParticipantID][]*Connection)}
}

func (f *Factory) New(peer domain.ParticipantID) (core.MediaConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	c := NewConnection(peer)
	f.conns[peer] = append(f.conns[peer], c)
	return c, nil
}

// Fail makes New return err until called with nil.
func (f *Factory) Fail(err error) {
	f.mu.Lock()
	f.fail = err
	f.mu.Unlock()
}

// Last is the newest connection made for peer, or nil.
func (f *Factory) Last(peer domain.ParticipantID) *Connection {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.conns[peer]
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

func (f *Factory) Count(peer domain.ParticipantID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns[peer])
}

// Track is a remote track that ends immediately.
type Track struct {
	TrackID string
	Stream  string
	Codec   webrtc.RTPCodecType
}

func (t Track) ID() string                { return t.TrackID }
func (t Track) StreamID() string          { return t.Stream }
func (t Track) Kind() webrtc.RTPCodecType { return t.Codec }

func (t Track) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	return nil, nil, io.EOF
}
