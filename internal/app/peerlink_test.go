package app

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/voicemesh/internal/app/apptest"
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type linkHarness struct {
	mu      sync.Mutex
	sent    []domain.SetupMessage
	sendErr error
	events  chan LinkEvent
}

func newLinkHarness() *linkHarness {
	return &linkHarness{events: make(chan LinkEvent, 16)}
}

func (h *linkHarness) send(msg domain.SetupMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sendErr != nil {
		return h.sendErr
	}
	h.sent = append(h.sent, msg)
	return nil
}

func (h *linkHarness) post(ev LinkEvent) {
	h.events <- ev
}

func (h *linkHarness) messages() []domain.SetupMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.SetupMessage(nil), h.sent...)
}

func (h *linkHarness) link(t *testing.T, role domain.Role) (*PeerLink, *apptest.Connection) {
	t.Helper()
	conn := apptest.NewConnection("bob")
	l := newPeerLink(linkParams{
		peer:           "bob",
		role:           role,
		gen:            7,
		conn:           conn,
		send:           h.send,
		post:           h.post,
		restartTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, l.start(nil))
	return l, conn
}

func candidate(addr string) domain.Candidate {
	mid := "0"
	return domain.Candidate{Candidate: "candidate:1 1 udp 2130706431 " + addr + " 5000 typ host", SDPMid: &mid}
}

func TestInitiatorOffersOnStart(t *testing.T) {
	h := newLinkHarness()
	l, conn := h.link(t, domain.RoleInitiator)

	msgs := h.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.KindOffer, msgs[0].Kind)
	assert.False(t, msgs[0].Restart)
	assert.Equal(t, domain.NegotiationHaveLocalOffer, l.Negotiation())

	require.NoError(t, l.HandleMessage(domain.NewAnswer("answer 1")))
	assert.Equal(t, domain.NegotiationStable, l.Negotiation())
	assert.Equal(t, []string{"answer 1"}, conn.RemoteAnswers())

	err := l.HandleMessage(domain.NewAnswer("answer 1"))
	assert.ErrorIs(t, err, domain.ErrStaleMessage)
	assert.Len(t, conn.RemoteAnswers(), 1)
}

func TestInitiatorRejectsOffers(t *testing.T) {
	h := newLinkHarness()
	l, conn := h.link(t, domain.RoleInitiator)

	err := l.HandleMessage(domain.NewOffer("offer from bob"))
	assert.ErrorIs(t, err, domain.ErrStaleMessage)
	assert.Empty(t, conn.RemoteOffers())
	assert.Equal(t, domain.NegotiationHaveLocalOffer, l.Negotiation())
}

func TestResponderAnswersOnce(t *testing.T) {
	h := newLinkHarness()
	l, conn := h.link(t, domain.RoleResponder)
	assert.Empty(t, h.messages())
	assert.Equal(t, domain.NegotiationIdle, l.Negotiation())

	require.NoError(t, l.HandleMessage(domain.NewOffer("offer 1")))
	assert.Equal(t, domain.NegotiationStable, l.Negotiation())
	msgs := h.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.KindAnswer, msgs[0].Kind)

	err := l.HandleMessage(domain.NewOffer("offer 1"))
	assert.ErrorIs(t, err, domain.ErrStaleMessage)

	err = l.HandleMessage(domain.NewOffer("offer 2"))
	assert.ErrorIs(t, err, domain.ErrRenegotiationRequired)

	assert.Equal(t, []string{"offer 1"}, conn.RemoteOffers())
	assert.Len(t, h.messages(), 1)
}

func TestResponderAcceptsRestartOffer(t *testing.T) {
	h := newLinkHarness()
	l, conn := h.link(t, domain.RoleResponder)

	require.NoError(t, l.HandleMessage(domain.NewOffer("offer 1")))
	require.NoError(t, l.HandleMessage(domain.NewRestartOffer("offer 2")))

	assert.Equal(t, []string{"offer 1", "offer 2"}, conn.RemoteOffers())
	assert.Len(t, h.messages(), 2)
	assert.Equal(t, domain.NegotiationStable, l.Negotiation())
}

func TestResponderApplyFailureKeepsLink(t *testing.T) {
	h := newLinkHarness()
	l, conn := h.link(t, domain.RoleResponder)
	conn.FailApply(true)

	err := l.HandleMessage(domain.NewOffer("garbage"))
	assert.ErrorIs(t, err, domain.ErrNegotiation)
	assert.True(t, domain.IsWarning(err))
	assert.Equal(t, domain.NegotiationIdle, l.Negotiation())

	conn.FailApply(false)
	require.NoError(t, l.HandleMessage(domain.NewOffer("offer 1")))
	assert.Equal(t, domain.NegotiationStable, l.Negotiation())
}

func TestCandidatesQueuedUntilRemoteDescription(t *testing.T) {
	h := newLinkHarness()
	l, conn := h.link(t, domain.RoleResponder)

	c1, c2 := candidate("10.0.0.1"), candidate("10.0.0.2")
	require.NoError(t, l.HandleMessage(domain.NewCandidate(c1)))
	require.NoError(t, l.HandleMessage(domain.NewCandidate(c2)))
	require.NoError(t, l.HandleMessage(domain.NewCandidate(c1)))
	assert.Equal(t, 2, l.PendingCandidates())
	assert.Empty(t, conn.Candidates())

	require.NoError(t, l.HandleMessage(domain.NewOffer("offer 1")))
	assert.Equal(t, 0, l.PendingCandidates())

	applied := conn.Candidates()
	require.Len(t, applied, 2)
	assert.Equal(t, c1.Candidate, applied[0].Candidate)
	assert.Equal(t, c2.Candidate, applied[1].Candidate)

	require.NoError(t, l.HandleMessage(domain.NewCandidate(c2)))
	require.NoError(t, l.HandleMessage(domain.NewCandidate(candidate("10.0.0.3"))))
	assert.Len(t, conn.Candidates(), 3)

	require.NoError(t, l.HandleMessage(domain.NewCandidate(domain.Candidate{})))
	assert.Len(t, conn.Candidates(), 3)
}

func TestMalformedMessageNamesPeer(t *testing.T) {
	h := newLinkHarness()
	l, _ := h.link(t, domain.RoleResponder)

	err := l.HandleMessage(domain.SetupMessage{Kind: domain.KindCandidate})
	require.ErrorIs(t, err, domain.ErrNegotiation)
	var derr *domain.Error
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, domain.ParticipantID("bob"), derr.Peer)
}

func TestLocalCandidatesAreSent(t *testing.T) {
	h := newLinkHarness()
	l, conn := h.link(t, domain.RoleResponder)

	conn.EmitCandidate(webrtc.ICECandidateInit{Candidate: "candidate:9 1 udp 1 10.0.0.9 9 typ host"})
	ev := <-h.events
	assert.Equal(t, LinkLocalCandidate, ev.Kind)
	assert.Equal(t, uint64(7), ev.Generation)
	assert.Equal(t, domain.ParticipantID("bob"), ev.Peer)

	require.NoError(t, l.HandleLocalCandidate(ev.Candidate))
	msgs := h.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.KindCandidate, msgs[0].Kind)
	assert.Equal(t, "candidate:9 1 udp 1 10.0.0.9 9 typ host", msgs[0].Candidate.Candidate)
}

func TestSendFailureIsReported(t *testing.T) {
	h := newLinkHarness()
	l, _ := h.link(t, domain.RoleResponder)
	h.sendErr = domain.ErrBackpressure

	err := l.HandleMessage(domain.NewOffer("offer 1"))
	assert.ErrorIs(t, err, domain.ErrBackpressure)
	assert.Equal(t, domain.NegotiationStable, l.Negotiation())
}

func TestInitiatorRestartsIceOnce(t *testing.T) {
	h := newLinkHarness()
	l, conn := h.link(t, domain.RoleInitiator)
	require.NoError(t, l.HandleMessage(domain.NewAnswer("answer 1")))

	assert.Equal(t, OutcomeChanged, l.HandleConnectivity(domain.ConnectivityChecking))
	assert.Equal(t, OutcomeChanged, l.HandleConnectivity(domain.ConnectivityConnected))
	assert.Equal(t, OutcomeNone, l.HandleConnectivity(domain.ConnectivityConnected))

	assert.Equal(t, OutcomeChanged, l.HandleConnectivity(domain.ConnectivityFailed))
	total, restarts := conn.Offers()
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, restarts)

	msgs := h.messages()
	last := msgs[len(msgs)-1]
	assert.Equal(t, domain.KindOffer, last.Kind)
	assert.True(t, last.Restart)

	require.NoError(t, l.HandleMessage(domain.NewAnswer("answer 2")))
	assert.Equal(t, OutcomeChanged, l.HandleConnectivity(domain.ConnectivityChecking))
	assert.Equal(t, OutcomePermanentFailure, l.HandleConnectivity(domain.ConnectivityFailed))
}

func TestRestartTimeoutIsPermanent(t *testing.T) {
	h := newLinkHarness()
	l, _ := h.link(t, domain.RoleResponder)
	require.NoError(t, l.HandleMessage(domain.NewOffer("offer 1")))

	l.HandleConnectivity(domain.ConnectivityChecking)
	assert.Equal(t, OutcomeChanged, l.HandleConnectivity(domain.ConnectivityFailed))

	select {
	case ev := <-h.events:
		require.Equal(t, LinkRestartExpired, ev.Kind)
		assert.Equal(t, OutcomePermanentFailure, l.HandleRestartExpired())
	case <-time.After(time.Second):
		t.Fatal("restart timer never fired")
	}
	assert.Equal(t, OutcomeNone, l.HandleRestartExpired())
}

func TestRecoveryCancelsRestartTimer(t *testing.T) {
	h := newLinkHarness()
	l, _ := h.link(t, domain.RoleResponder)
	require.NoError(t, l.HandleMessage(domain.NewOffer("offer 1")))

	l.HandleConnectivity(domain.ConnectivityChecking)
	l.HandleConnectivity(domain.ConnectivityFailed)
	l.HandleConnectivity(domain.ConnectivityConnected)

	assert.Equal(t, OutcomeNone, l.HandleRestartExpired())
	assert.Equal(t, domain.ConnectivityConnected, l.Connectivity())
}

func TestIllegalTransitionIgnored(t *testing.T) {
	h := newLinkHarness()
	l, _ := h.link(t, domain.RoleResponder)
	assert.Equal(t, OutcomeNone, l.HandleConnectivity(domain.ConnectivityConnected))
	assert.Equal(t, domain.ConnectivityNew, l.Connectivity())
}

func TestRemoteTracksAccumulate(t *testing.T) {
	h := newLinkHarness()
	l, _ := h.link(t, domain.RoleResponder)

	b := l.HandleRemoteTrack(apptest.Track{TrackID: "a", Codec: webrtc.RTPCodecTypeAudio})
	assert.Len(t, b.Tracks, 1)
	b = l.HandleRemoteTrack(apptest.Track{TrackID: "v", Codec: webrtc.RTPCodecTypeVideo})
	assert.Len(t, b.Tracks, 2)
	assert.Equal(t, domain.ParticipantID("bob"), b.Participant)
}

func TestClosedLinkRejectsMessages(t *testing.T) {
	h := newLinkHarness()
	l, conn := h.link(t, domain.RoleResponder)

	l.Close()
	l.Close()
	assert.True(t, conn.IsClosed())
	assert.True(t, l.Closed())
	assert.Equal(t, domain.ConnectivityClosed, l.Connectivity())

	err := l.HandleMessage(domain.NewOffer("offer 1"))
	assert.ErrorIs(t, err, domain.ErrLinkClosed)
	assert.Equal(t, OutcomeNone, l.HandleConnectivity(domain.ConnectivityChecking))
}
