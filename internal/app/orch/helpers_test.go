package orch

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/core/mocks"
	"github.com/dkeye/voicemesh/internal/domain"
	"go.uber.org/mock/gomock"
)

type recorder struct {
	mu       sync.Mutex
	joined   []domain.ParticipantID
	left     []domain.ParticipantID
	media    map[domain.ParticipantID]int
	statuses []domain.Status
}

func newRecorder() *recorder {
	return &recorder{media: make(map[domain.ParticipantID]int)}
}

func (r *recorder) OnParticipantMediaAvailable(id domain.ParticipantID, b core.TrackBundle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.media[id] = len(b.Tracks)
}

func (r *recorder) OnParticipantJoined(id domain.ParticipantID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joined = append(r.joined, id)
}

func (r *recorder) OnParticipantLeft(id domain.ParticipantID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.left = append(r.left, id)
}

func (r *recorder) OnConnectionStatusChanged(s domain.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recorder) Joined() []domain.ParticipantID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.joined)
}

func (r *recorder) Left() []domain.ParticipantID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.left)
}

func (r *recorder) Media(id domain.ParticipantID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.media[id]
}

func (r *recorder) Statuses() []domain.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.statuses)
}

// kindMatcher matches setup messages of one kind.
type kindMatcher domain.MessageKind

func (k kindMatcher) Matches(x any) bool {
	msg, ok := x.(domain.SetupMessage)
	return ok && msg.Kind == domain.MessageKind(k)
}

func (k kindMatcher) String() string {
	return "setup message of kind " + string(k)
}

type sent struct {
	to  domain.ParticipantID
	msg domain.SetupMessage
}

// sigFixture is a mocked signaling channel whose events the test drives.
type sigFixture struct {
	sig    *mocks.MockSignaler
	dialer *mocks.MockSignalDialer
	events chan core.SignalEvent

	mu   sync.Mutex
	sent []sent
}

const testRoom = domain.RoomID("room-1")

func newSigFixture(t *testing.T, self domain.ParticipantID) *sigFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &sigFixture{
		sig:    mocks.NewMockSignaler(ctrl),
		dialer: mocks.NewMockSignalDialer(ctrl),
		events: make(chan core.SignalEvent, 32),
	}
	f.dialer.EXPECT().Dial(gomock.Any(), "ws://hub/ws").Return(f.sig, nil).AnyTimes()
	f.sig.EXPECT().LocalID().Return(self).AnyTimes()
	f.sig.EXPECT().Events().Return((<-chan core.SignalEvent)(f.events)).AnyTimes()
	f.sig.EXPECT().Close().Return(nil).Times(1)
	return f
}

// joinWith makes JoinRoom answer with a member snapshot.
func (f *sigFixture) joinWith(ids ...domain.ParticipantID) {
	f.sig.EXPECT().JoinRoom(gomock.Any(), testRoom).DoAndReturn(func(context.Context, domain.RoomID) error {
		f.events <- core.SignalEvent{Kind: core.EventExistingMembers, Room: testRoom, IDs: ids}
		return nil
	})
}

func (f *sigFixture) recordSends() {
	f.sig.EXPECT().Send(gomock.Any(), testRoom, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.RoomID, to domain.ParticipantID, msg domain.SetupMessage) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.sent = append(f.sent, sent{to, msg})
			return nil
		}).AnyTimes()
}

func (f *sigFixture) sentOf(kind domain.MessageKind) []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sent
	for _, s := range f.sent {
		if s.msg.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func (f *sigFixture) push(ev core.SignalEvent) {
	ev.Room = testRoom
	f.events <- ev
}

func (f *sigFixture) options(conns core.ConnectionFactory) Options {
	return Options{
		HubURL:         "ws://hub/ws",
		Dialer:         f.dialer,
		Connections:    conns,
		RestartTimeout: 50 * time.Millisecond,
		JoinTimeout:    time.Second,
	}
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)
