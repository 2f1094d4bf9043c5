package hub

import (
	"github.com/dkeye/voicemesh/internal/adapters/signal"
	"github.com/dkeye/voicemesh/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropMessage
	KickMember
)

func (a BackpressureAction) String() string {
	switch a {
	case DropMessage:
		return "drop"
	case KickMember:
		return "kick"
	default:
		return "none"
	}
}

// Policy decides what happens to a participant whose send queue is full.
type Policy interface {
	OnBackPressure(room domain.RoomID, member domain.ParticipantID, env signal.Envelope) BackpressureAction
}

// SimplePolicy kicks on the first overflow. A kicked participant reconnects
// with its resume id and receives a fresh snapshot.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.RoomID, domain.ParticipantID, signal.Envelope) BackpressureAction {
	return KickMember
}

// LenientPolicy drops candidates, which the remote gathers again on restart,
// and kicks for anything else.
type LenientPolicy struct{}

func (LenientPolicy) OnBackPressure(_ domain.RoomID, _ domain.ParticipantID, env signal.Envelope) BackpressureAction {
	if env.Type == signal.TypeICE {
		return DropMessage
	}
	return KickMember
}

// PolicyByName maps the hub.backpressure setting to a Policy.
func PolicyByName(name string) Policy {
	if name == "lenient" {
		return LenientPolicy{}
	}
	return SimplePolicy{}
}
