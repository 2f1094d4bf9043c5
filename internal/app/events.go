package app

import (
	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/pion/webrtc/v4"
)

type LinkEventKind int

const (
	LinkLocalCandidate LinkEventKind = iota
	LinkConnectivity
	LinkRemoteTrack
	LinkRestartExpired
)

func (k LinkEventKind) String() string {
	switch k {
	case LinkLocalCandidate:
		return "local-candidate"
	case LinkConnectivity:
		return "connectivity"
	case LinkRemoteTrack:
		return "remote-track"
	case LinkRestartExpired:
		return "restart-expired"
	default:
		return "unknown"
	}
}

// LinkEvent is a connection callback turned into a message for the room loop.
// Generation tells events of a replaced link apart from the current one.
type LinkEvent struct {
	Kind       LinkEventKind
	Peer       domain.ParticipantID
	Generation uint64
	Candidate  webrtc.ICECandidateInit
	State      domain.ConnectivityState
	Track      core.RemoteTrack
}

// Outcome is what a connectivity change means for the room.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeChanged
	OutcomePermanentFailure
)

func candidateInit(c domain.Candidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func candidateFromInit(ci webrtc.ICECandidateInit) domain.Candidate {
	return domain.Candidate{
		Candidate:        ci.Candidate,
		SDPMid:           ci.SDPMid,
		SDPMLineIndex:    ci.SDPMLineIndex,
		UsernameFragment: ci.UsernameFragment,
	}
}
