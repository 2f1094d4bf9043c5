// Package signal is the client side of the rendezvous protocol: a
// reconnecting websocket channel that joins rooms and relays setup messages.
package signal

import (
	"github.com/dkeye/voicemesh/internal/domain"
)

// Envelope types on the wire.
const (
	TypeWelcome         = "welcome"
	TypeJoin            = "join"
	TypeLeave           = "leave"
	TypeOffer           = string(domain.KindOffer)
	TypeAnswer          = string(domain.KindAnswer)
	TypeICE             = string(domain.KindCandidate)
	TypeExistingMembers = "existing-members"
	TypeMemberJoined    = "member-joined"
	TypeMemberLeft      = "member-left"
	TypeError           = "error"
)

// Envelope is the single frame shape shared by the hub and its clients.
type Envelope struct {
	Type    string   `json:"type" msgpack:"type"`
	RoomID  string   `json:"roomId,omitempty" msgpack:"roomId,omitempty"`
	To      string   `json:"toParticipantId,omitempty" msgpack:"toParticipantId,omitempty"`
	From    string   `json:"fromParticipantId,omitempty" msgpack:"fromParticipantId,omitempty"`
	Payload *Payload `json:"payload,omitempty" msgpack:"payload,omitempty"`
}

type Payload struct {
	SDP           string            `json:"sdp,omitempty" msgpack:"sdp,omitempty"`
	Restart       bool              `json:"restart,omitempty" msgpack:"restart,omitempty"`
	Candidate     *domain.Candidate `json:"candidate,omitempty" msgpack:"candidate,omitempty"`
	ParticipantID string            `json:"participantId,omitempty" msgpack:"participantId,omitempty"`
	IDs           []string          `json:"ids,omitempty" msgpack:"ids,omitempty"`
	Error         string            `json:"error,omitempty" msgpack:"error,omitempty"`
}

// IsSetup reports whether the envelope carries a peer-to-peer setup message.
func (e Envelope) IsSetup() bool {
	switch e.Type {
	case TypeOffer, TypeAnswer, TypeICE:
		return true
	}
	return false
}

// SetupEnvelope addresses msg to one participant of room.
func SetupEnvelope(room domain.RoomID, to domain.ParticipantID, msg domain.SetupMessage) Envelope {
	return Envelope{
		Type:   string(msg.Kind),
		RoomID: string(room),
		To:     string(to),
		Payload: &Payload{
			SDP:       msg.SDP,
			Restart:   msg.Restart,
			Candidate: msg.Candidate,
		},
	}
}

// SetupMessage extracts and validates the setup message of a relayed envelope.
func (e Envelope) SetupMessage() (domain.SetupMessage, error) {
	msg := domain.SetupMessage{Kind: domain.MessageKind(e.Type)}
	if e.Payload != nil {
		msg.SDP = e.Payload.SDP
		msg.Restart = e.Payload.Restart
		msg.Candidate = e.Payload.Candidate
	}
	if err := msg.Validate(); err != nil {
		return domain.SetupMessage{}, err
	}
	return msg, nil
}

// Members converts the ids of an existing-members envelope.
func (e Envelope) Members() []domain.ParticipantID {
	if e.Payload == nil {
		return nil
	}
	ids := make([]domain.ParticipantID, 0, len(e.Payload.IDs))
	for _, id := range e.Payload.IDs {
		ids = append(ids, domain.ParticipantID(id))
	}
	return ids
}

// Participant returns the subject of welcome, member-joined and member-left envelopes.
func (e Envelope) Participant() domain.ParticipantID {
	if e.Payload == nil {
		return ""
	}
	return domain.ParticipantID(e.Payload.ParticipantID)
}

func JoinEnvelope(room domain.RoomID) Envelope {
	return Envelope{Type: TypeJoin, RoomID: string(room)}
}

func LeaveEnvelope(room domain.RoomID) Envelope {
	return Envelope{Type: TypeLeave, RoomID: string(room)}
}

func WelcomeEnvelope(id domain.ParticipantID) Envelope {
	return Envelope{Type: TypeWelcome, Payload: &Payload{ParticipantID: string(id)}}
}

func MembersEnvelope(room domain.RoomID, ids []domain.ParticipantID) Envelope {
	raw := make([]string, 0, len(ids))
	for _, id := range ids {
		raw = append(raw, string(id))
	}
	return Envelope{Type: TypeExistingMembers, RoomID: string(room), Payload: &Payload{IDs: raw}}
}

func MemberEnvelope(typ string, room domain.RoomID, id domain.ParticipantID) Envelope {
	return Envelope{Type: typ, RoomID: string(room), Payload: &Payload{ParticipantID: string(id)}}
}

func ErrorEnvelope(room domain.RoomID, reason string) Envelope {
	return Envelope{Type: TypeError, RoomID: string(room), Payload: &Payload{Error: reason}}
}
