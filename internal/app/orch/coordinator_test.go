package orch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/voicemesh/internal/app/apptest"
	"github.com/dkeye/voicemesh/internal/app/media"
	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/core/mocks"
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testSource(t *testing.T) *media.Source {
	t.Helper()
	audio, err := media.NewAudioTrack("me")
	require.NoError(t, err)
	video, err := media.NewVideoTrack("me")
	require.NoError(t, err)
	return media.NewSource(audio, video)
}

func TestJoinOffersToEveryExistingMember(t *testing.T) {
	f := newSigFixture(t, "me")
	f.joinWith("a", "b", "c")
	f.sig.EXPECT().Send(gomock.Any(), testRoom, gomock.Any(), kindMatcher(domain.KindOffer)).Return(nil).Times(3)
	f.sig.EXPECT().LeaveRoom(gomock.Any(), testRoom).Return(nil)

	factory := apptest.NewFactory()
	c := New(f.options(factory.New))
	obs := newRecorder()

	require.NoError(t, c.Join(context.Background(), testRoom, testSource(t), obs))

	assert.Equal(t, domain.StatusConnected, c.Status())
	assert.Equal(t, []domain.ParticipantID{"a", "b", "c"}, c.Participants())
	links := c.Links()
	require.Len(t, links, 3)
	for _, l := range links {
		assert.Equal(t, "initiator", l.Role)
		assert.Equal(t, domain.NegotiationHaveLocalOffer, l.Negotiation)
		assert.Equal(t, 2, factory.Last(l.Participant).Tracks())
	}
	assert.ElementsMatch(t, []domain.ParticipantID{"a", "b", "c"}, obs.Joined())

	// a later arrival offers to us, never the other way round
	f.push(core.SignalEvent{Kind: core.EventMemberJoined, Participant: "d"})
	require.Eventually(t, func() bool { return len(c.Participants()) == 4 }, waitFor, tick)
	for _, l := range c.Links() {
		if l.Participant == "d" {
			assert.Equal(t, "responder", l.Role)
			assert.Equal(t, domain.NegotiationIdle, l.Negotiation)
		}
	}

	require.NoError(t, c.Leave(context.Background()))
	assert.Equal(t, domain.StatusDisconnected, c.Status())
	assert.Empty(t, c.Links())
	assert.Empty(t, c.Participants())
	assert.Equal(t, 0, c.ActiveLocalTracks())
	for _, id := range []domain.ParticipantID{"a", "b", "c", "d"} {
		assert.True(t, factory.Last(id).IsClosed())
	}
	assert.Equal(t, []domain.Status{domain.StatusConnecting, domain.StatusConnected, domain.StatusDisconnected}, obs.Statuses())
}

func TestJoinEmptyRoom(t *testing.T) {
	f := newSigFixture(t, "me")
	f.joinWith()
	f.sig.EXPECT().LeaveRoom(gomock.Any(), testRoom).Return(nil)

	c := New(f.options(apptest.NewFactory().New))
	require.NoError(t, c.Join(context.Background(), testRoom, nil, nil))

	assert.Equal(t, domain.StatusConnected, c.Status())
	assert.Empty(t, c.Links())
	room, ok := c.Room()
	require.True(t, ok)
	assert.Equal(t, domain.Room{ID: testRoom, Self: "me"}, room)

	require.NoError(t, c.Leave(context.Background()))
	_, ok = c.Room()
	assert.False(t, ok)
	require.NoError(t, c.Leave(context.Background()))
}

func TestSnapshotSkipsSelf(t *testing.T) {
	f := newSigFixture(t, "me")
	f.joinWith("me", "a")
	f.recordSends()
	f.sig.EXPECT().LeaveRoom(gomock.Any(), testRoom).Return(nil)

	c := New(f.options(apptest.NewFactory().New))
	require.NoError(t, c.Join(context.Background(), testRoom, nil, nil))
	assert.Equal(t, []domain.ParticipantID{"a"}, c.Participants())
	require.NoError(t, c.Leave(context.Background()))
}

func TestLeaveSwallowsNotifyFailure(t *testing.T) {
	f := newSigFixture(t, "me")
	f.joinWith("a")
	f.recordSends()
	f.sig.EXPECT().LeaveRoom(gomock.Any(), testRoom).Return(domain.ErrChannelClosed)

	factory := apptest.NewFactory()
	c := New(f.options(factory.New))
	require.NoError(t, c.Join(context.Background(), testRoom, testSource(t), nil))

	require.NoError(t, c.Leave(context.Background()))
	assert.Equal(t, domain.StatusDisconnected, c.Status())
	assert.True(t, factory.Last("a").IsClosed())
	assert.Equal(t, 0, c.ActiveLocalTracks())
}

func TestJoinTimesOutWithoutSnapshot(t *testing.T) {
	f := newSigFixture(t, "me")
	f.sig.EXPECT().JoinRoom(gomock.Any(), testRoom).Return(nil)

	opts := f.options(apptest.NewFactory().New)
	opts.JoinTimeout = 50 * time.Millisecond
	c := New(opts)
	obs := newRecorder()

	err := c.Join(context.Background(), testRoom, testSource(t), obs)
	require.ErrorIs(t, err, domain.ErrJoin)
	assert.Equal(t, domain.StatusError, c.Status())
	assert.Equal(t, 0, c.ActiveLocalTracks())
	_, ok := c.Room()
	assert.False(t, ok)
}

func TestJoinDialFailure(t *testing.T) {
	dialer := mocks.NewMockSignalDialer(gomock.NewController(t))
	dialer.EXPECT().Dial(gomock.Any(), "ws://hub/ws").Return(nil, errors.New("connection refused"))

	c := New(Options{HubURL: "ws://hub/ws", Dialer: dialer, Connections: apptest.NewFactory().New})
	err := c.Join(context.Background(), testRoom, testSource(t), nil)
	require.ErrorIs(t, err, domain.ErrJoin)
	assert.Equal(t, domain.StatusError, c.Status())
	assert.Equal(t, 0, c.ActiveLocalTracks())
}

func TestJoinRejectedWhileJoined(t *testing.T) {
	f := newSigFixture(t, "me")
	f.joinWith()
	f.sig.EXPECT().LeaveRoom(gomock.Any(), testRoom).Return(nil)

	c := New(f.options(apptest.NewFactory().New))
	require.NoError(t, c.Join(context.Background(), testRoom, nil, nil))

	err := c.Join(context.Background(), "room-2", nil, nil)
	assert.ErrorIs(t, err, domain.ErrJoin)
	assert.Equal(t, domain.StatusConnected, c.Status())
	require.NoError(t, c.Leave(context.Background()))
}

func TestResyncAfterReconnect(t *testing.T) {
	f := newSigFixture(t, "me")
	f.joinWith("a", "b")
	f.recordSends()
	f.sig.EXPECT().LeaveRoom(gomock.Any(), testRoom).Return(nil)

	factory := apptest.NewFactory()
	c := New(f.options(factory.New))
	obs := newRecorder()
	require.NoError(t, c.Join(context.Background(), testRoom, nil, obs))
	staleB := factory.Last("b")

	f.push(core.SignalEvent{Kind: core.EventChannelStateChanged, State: domain.ChannelReconnecting})
	require.Eventually(t, func() bool { return c.Status() == domain.StatusConnecting }, waitFor, tick)

	f.push(core.SignalEvent{Kind: core.EventChannelStateChanged, State: domain.ChannelConnected})
	f.push(core.SignalEvent{Kind: core.EventExistingMembers, IDs: []domain.ParticipantID{"b", "c"}})
	require.Eventually(t, func() bool { return c.Status() == domain.StatusConnected }, waitFor, tick)

	assert.Equal(t, []domain.ParticipantID{"b", "c"}, c.Participants())
	assert.Equal(t, []domain.ParticipantID{"a"}, obs.Left())
	assert.ElementsMatch(t, []domain.ParticipantID{"a", "b", "c"}, obs.Joined())
	assert.True(t, factory.Last("a").IsClosed())
	assert.True(t, staleB.IsClosed())
	assert.Equal(t, 2, factory.Count("b"))
	assert.Len(t, f.sentOf(domain.KindOffer), 4)

	// callbacks of the replaced connection no longer reach the room
	staleB.EmitState(domain.ConnectivityChecking)
	f.push(core.SignalEvent{Kind: core.EventMemberJoined, Participant: "z"})
	require.Eventually(t, func() bool { return len(c.Participants()) == 3 }, waitFor, tick)
	for _, l := range c.Links() {
		assert.Equal(t, domain.ConnectivityNew, l.Connectivity, l.Participant)
	}

	require.NoError(t, c.Leave(context.Background()))
}

func TestUnknownSenders(t *testing.T) {
	f := newSigFixture(t, "me")
	f.joinWith()
	f.recordSends()
	f.sig.EXPECT().LeaveRoom(gomock.Any(), testRoom).Return(nil)

	factory := apptest.NewFactory()
	c := New(f.options(factory.New))
	obs := newRecorder()
	require.NoError(t, c.Join(context.Background(), testRoom, nil, obs))

	f.push(core.SignalEvent{Kind: core.EventMessageReceived, From: "ghost", Message: domain.NewAnswer("answer")})
	f.push(core.SignalEvent{Kind: core.EventMessageReceived, From: "x", Message: domain.NewOffer("offer x")})

	require.Eventually(t, func() bool { return len(f.sentOf(domain.KindAnswer)) == 1 }, waitFor, tick)
	assert.Equal(t, domain.ParticipantID("x"), f.sentOf(domain.KindAnswer)[0].to)
	assert.Equal(t, []domain.ParticipantID{"x"}, c.Participants())
	assert.Equal(t, []domain.ParticipantID{"x"}, obs.Joined())
	assert.Equal(t, 0, factory.Count("ghost"))

	// a renegotiation from x replaces the responder link
	f.push(core.SignalEvent{Kind: core.EventMessageReceived, From: "x", Message: domain.NewOffer("offer x again")})
	require.Eventually(t, func() bool { return len(f.sentOf(domain.KindAnswer)) == 2 }, waitFor, tick)
	assert.Equal(t, 2, factory.Count("x"))
	assert.Equal(t, []domain.ParticipantID{"x"}, obs.Joined())

	require.NoError(t, c.Leave(context.Background()))
}

func TestRemoteTracksReachObserver(t *testing.T) {
	f := newSigFixture(t, "me")
	f.joinWith("a")
	f.recordSends()
	f.sig.EXPECT().LeaveRoom(gomock.Any(), testRoom).Return(nil)

	factory := apptest.NewFactory()
	c := New(f.options(factory.New))
	obs := newRecorder()
	require.NoError(t, c.Join(context.Background(), testRoom, nil, obs))

	conn := factory.Last("a")
	conn.EmitTrack(apptest.Track{TrackID: "audio", Codec: webrtc.RTPCodecTypeAudio})
	conn.EmitTrack(apptest.Track{TrackID: "video", Codec: webrtc.RTPCodecTypeVideo})
	require.Eventually(t, func() bool { return obs.Media("a") == 2 }, waitFor, tick)

	conn.EmitCandidate(webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 10.0.0.1 1 typ host"})
	require.Eventually(t, func() bool { return len(f.sentOf(domain.KindCandidate)) == 1 }, waitFor, tick)

	require.NoError(t, c.Leave(context.Background()))
}

func TestMediaToggles(t *testing.T) {
	f := newSigFixture(t, "me")
	f.joinWith()
	f.sig.EXPECT().LeaveRoom(gomock.Any(), testRoom).Return(nil)

	src := testSource(t)
	c := New(f.options(apptest.NewFactory().New))
	require.NoError(t, c.Join(context.Background(), testRoom, src, nil))

	c.SetAudioEnabled(false)
	c.SetVideoEnabled(false)
	for _, tr := range src.Tracks() {
		assert.False(t, tr.Enabled())
	}
	c.SetAudioEnabled(true)
	assert.Equal(t, 2, c.ActiveLocalTracks())

	require.NoError(t, c.Leave(context.Background()))
}
