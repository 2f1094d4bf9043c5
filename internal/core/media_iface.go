package core

import (
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// MediaConnection is the connection object owned by exactly one peer link.
// Callbacks may fire on any goroutine.
type MediaConnection interface {
	// AddLocalTrack attaches a shared local track to this connection.
	AddLocalTrack(track webrtc.TrackLocal) error
	// CreateOffer creates an offer and applies it as the local description.
	// iceRestart renews transport credentials only.
	CreateOffer(iceRestart bool) (webrtc.SessionDescription, error)
	// ApplyOfferAndCreateAnswer applies a remote offer and returns the applied local answer.
	ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	ApplyAnswer(answer webrtc.SessionDescription) error
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnStateChange sets a callback for connectivity transitions.
	OnStateChange(func(domain.ConnectivityState))
	// OnTrack sets a callback invoked when a new remote track arrives.
	OnTrack(func(RemoteTrack))
	Close() error
}

// ConnectionFactory creates the connection for a new link to peer.
type ConnectionFactory func(peer domain.ParticipantID) (MediaConnection, error)

// RemoteTrack is the read side of a remote media track. *webrtc.TrackRemote satisfies it.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// TrackBundle is every remote track received so far from one participant.
type TrackBundle struct {
	Participant domain.ParticipantID
	Tracks      []RemoteTrack
}
