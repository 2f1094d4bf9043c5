package orch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/voicemesh/internal/app/apptest"
	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memHub is an in-process rendezvous service with the hub's ordering:
// the joiner gets the snapshot, everyone else gets member-joined.
type memHub struct {
	mu      sync.Mutex
	rooms   map[domain.RoomID][]*memSignaler
	relayed map[domain.MessageKind]int
}

func newMemHub() *memHub {
	return &memHub{
		rooms:   make(map[domain.RoomID][]*memSignaler),
		relayed: make(map[domain.MessageKind]int),
	}
}

func (h *memHub) count(kind domain.MessageKind) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.relayed[kind]
}

type memDialer struct {
	hub *memHub
	id  domain.ParticipantID
}

func (d memDialer) Dial(context.Context, string) (core.Signaler, error) {
	return &memSignaler{hub: d.hub, id: d.id, events: make(chan core.SignalEvent, 256)}, nil
}

type memSignaler struct {
	hub    *memHub
	id     domain.ParticipantID
	events chan core.SignalEvent
	once   sync.Once
}

func (s *memSignaler) LocalID() domain.ParticipantID   { return s.id }
func (s *memSignaler) Events() <-chan core.SignalEvent { return s.events }
func (s *memSignaler) deliver(ev core.SignalEvent)     { s.events <- ev }

func (s *memSignaler) JoinRoom(_ context.Context, room domain.RoomID) error {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]domain.ParticipantID, 0)
	for _, m := range h.rooms[room] {
		ids = append(ids, m.id)
		m.deliver(core.SignalEvent{Kind: core.EventMemberJoined, Room: room, Participant: s.id})
	}
	h.rooms[room] = append(h.rooms[room], s)
	s.deliver(core.SignalEvent{Kind: core.EventExistingMembers, Room: room, IDs: ids})
	return nil
}

func (s *memSignaler) LeaveRoom(_ context.Context, room domain.RoomID) error {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	s.leaveLocked(room)
	return nil
}

func (s *memSignaler) leaveLocked(room domain.RoomID) {
	members := s.hub.rooms[room]
	kept := members[:0]
	found := false
	for _, m := range members {
		if m == s {
			found = true
			continue
		}
		kept = append(kept, m)
	}
	s.hub.rooms[room] = kept
	if !found {
		return
	}
	for _, m := range kept {
		m.deliver(core.SignalEvent{Kind: core.EventMemberLeft, Room: room, Participant: s.id})
	}
}

func (s *memSignaler) Send(_ context.Context, room domain.RoomID, to domain.ParticipantID, msg domain.SetupMessage) error {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range h.rooms[room] {
		if m.id == to {
			h.relayed[msg.Kind]++
			m.deliver(core.SignalEvent{Kind: core.EventMessageReceived, Room: room, From: s.id, Message: msg})
			return nil
		}
	}
	return domain.NewPeerError("send", to, domain.ErrSend)
}

func (s *memSignaler) Close() error {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		defer h.mu.Unlock()
		for room := range h.rooms {
			s.leaveLocked(room)
		}
	})
	return nil
}

type meshPeer struct {
	c     *Coordinator
	conns *apptest.Factory
	obs   *recorder
}

func newMeshPeer(hub *memHub, id domain.ParticipantID) *meshPeer {
	conns := apptest.NewFactory()
	return &meshPeer{
		c: New(Options{
			HubURL:         "mem://hub",
			Dialer:         memDialer{hub: hub, id: id},
			Connections:    conns.New,
			RestartTimeout: 300 * time.Millisecond,
			JoinTimeout:    time.Second,
		}),
		conns: conns,
		obs:   newRecorder(),
	}
}

func (p *meshPeer) join(t *testing.T) {
	t.Helper()
	require.NoError(t, p.c.Join(context.Background(), testRoom, nil, p.obs))
}

func (p *meshPeer) link(peer domain.ParticipantID) (domain.LinkInfo, bool) {
	for _, l := range p.c.Links() {
		if l.Participant == peer {
			return l, true
		}
	}
	return domain.LinkInfo{}, false
}

func (p *meshPeer) negotiated(peer domain.ParticipantID) bool {
	l, ok := p.link(peer)
	return ok && l.Negotiation == domain.NegotiationStable
}

func (p *meshPeer) connectedTo(peer domain.ParticipantID) bool {
	l, ok := p.link(peer)
	return ok && l.Connectivity == domain.ConnectivityConnected
}

func connect(conn *apptest.Connection) {
	conn.EmitState(domain.ConnectivityChecking)
	conn.EmitState(domain.ConnectivityConnected)
}

// twoPeers brings alice and bob to a connected link through memHub.
func twoPeers(t *testing.T) (*memHub, *meshPeer, *meshPeer) {
	t.Helper()
	hub := newMemHub()
	alice := newMeshPeer(hub, "alice")
	bob := newMeshPeer(hub, "bob")

	alice.join(t)
	assert.Empty(t, alice.c.Links())
	assert.Equal(t, domain.StatusConnected, alice.c.Status())

	bob.join(t)
	require.Eventually(t, func() bool {
		return alice.negotiated("bob") && bob.negotiated("alice")
	}, waitFor, tick)

	connect(alice.conns.Last("bob"))
	connect(bob.conns.Last("alice"))
	require.Eventually(t, func() bool {
		return alice.connectedTo("bob") && bob.connectedTo("alice")
	}, waitFor, tick)
	return hub, alice, bob
}

func TestTwoPeersNegotiateOnce(t *testing.T) {
	hub, alice, bob := twoPeers(t)

	assert.Equal(t, 1, hub.count(domain.KindOffer))
	assert.Equal(t, 1, hub.count(domain.KindAnswer))

	l, _ := bob.link("alice")
	assert.Equal(t, "initiator", l.Role)
	l, _ = alice.link("bob")
	assert.Equal(t, "responder", l.Role)
	assert.Equal(t, []domain.ParticipantID{"bob"}, alice.obs.Joined())
	assert.Equal(t, []domain.ParticipantID{"alice"}, bob.obs.Joined())

	bob.conns.Last("alice").EmitCandidate(webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 10.0.0.2 5000 typ host"})
	require.Eventually(t, func() bool { return len(alice.conns.Last("bob").Candidates()) == 1 }, waitFor, tick)

	alice.conns.Last("bob").EmitTrack(apptest.Track{TrackID: "a", Codec: webrtc.RTPCodecTypeAudio})
	require.Eventually(t, func() bool { return alice.obs.Media("bob") == 1 }, waitFor, tick)

	require.NoError(t, bob.c.Leave(context.Background()))
	require.Eventually(t, func() bool { return len(alice.c.Participants()) == 0 }, waitFor, tick)
	assert.Equal(t, []domain.ParticipantID{"bob"}, alice.obs.Left())
	assert.True(t, alice.conns.Last("bob").IsClosed())

	require.NoError(t, alice.c.Leave(context.Background()))
}

func TestPermanentFailureReportsLeftOnce(t *testing.T) {
	_, alice, bob := twoPeers(t)

	alice.conns.Last("bob").EmitState(domain.ConnectivityFailed)
	require.Eventually(t, func() bool { return len(alice.obs.Left()) == 1 }, waitFor, tick)
	_, ok := alice.link("bob")
	assert.False(t, ok)

	require.NoError(t, bob.c.Leave(context.Background()))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []domain.ParticipantID{"bob"}, alice.obs.Left())

	require.NoError(t, alice.c.Leave(context.Background()))
}

func TestInitiatorRecoversWithIceRestart(t *testing.T) {
	hub, alice, bob := twoPeers(t)

	conn := bob.conns.Last("alice")
	conn.EmitState(domain.ConnectivityFailed)

	require.Eventually(t, func() bool { return len(conn.RemoteAnswers()) == 2 }, waitFor, tick)
	assert.Equal(t, 2, hub.count(domain.KindOffer))
	assert.Len(t, alice.conns.Last("bob").RemoteOffers(), 2)
	assert.Equal(t, 1, alice.conns.Count("bob"))

	connect(conn)
	require.Eventually(t, func() bool { return bob.connectedTo("alice") }, waitFor, tick)

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, bob.obs.Left())
	assert.True(t, bob.connectedTo("alice"))

	require.NoError(t, bob.c.Leave(context.Background()))
	require.NoError(t, alice.c.Leave(context.Background()))
}
