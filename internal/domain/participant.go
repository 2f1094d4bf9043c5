// Package domain contains the mesh entities without transport logic.
package domain

import "errors"

const MaxParticipantIDLen = 64

var (
	ErrParticipantIDEmpty   = errors.New("participant id empty")
	ErrParticipantIDTooLong = errors.New("participant id too long")
)

// ParticipantID is opaque and assigned by the rendezvous service.
type ParticipantID string

func (id ParticipantID) Validate() error {
	if len(id) == 0 {
		return ErrParticipantIDEmpty
	}
	if len(id) > MaxParticipantIDLen {
		return ErrParticipantIDTooLong
	}
	return nil
}

type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "unknown"
	}
}

// LinkInfo is a read-only view of one peer link for APIs and debugging.
type LinkInfo struct {
	Participant  ParticipantID     `json:"participant"`
	Role         string            `json:"role"`
	Negotiation  NegotiationState  `json:"negotiation"`
	Connectivity ConnectivityState `json:"connectivity"`
	Generation   uint64            `json:"generation"`
}
