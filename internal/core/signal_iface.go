package core

import (
	"context"

	"github.com/dkeye/voicemesh/internal/domain"
)

//go:generate mockgen -source=signal_iface.go -destination=mocks/signal_mock.go -package=mocks

type EventKind string

const (
	EventExistingMembers     EventKind = "existing-members"
	EventMemberJoined        EventKind = "member-joined"
	EventMemberLeft          EventKind = "member-left"
	EventMessageReceived     EventKind = "message"
	EventChannelStateChanged EventKind = "channel-state"
)

// SignalEvent is one notification from the signaling channel. Only the
// fields relevant to Kind are set.
type SignalEvent struct {
	Kind        EventKind
	Room        domain.RoomID
	IDs         []domain.ParticipantID
	Participant domain.ParticipantID
	From        domain.ParticipantID
	Message     domain.SetupMessage
	State       domain.ChannelState
}

// Signaler abstracts the room-scoped rendezvous transport.
// Owned by whoever dialed it; that owner must Close() it.
type Signaler interface {
	LocalID() domain.ParticipantID
	JoinRoom(ctx context.Context, room domain.RoomID) error
	LeaveRoom(ctx context.Context, room domain.RoomID) error
	Send(ctx context.Context, room domain.RoomID, to domain.ParticipantID, msg domain.SetupMessage) error
	Events() <-chan SignalEvent
	Close() error
}

// SignalDialer connects to the rendezvous service at hubURL.
type SignalDialer interface {
	Dial(ctx context.Context, hubURL string) (Signaler, error)
}
