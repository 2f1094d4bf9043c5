package domain

import "strconv"

type MessageKind string

// Wire names of the setup message kinds.
const (
	KindOffer     MessageKind = "offer"
	KindAnswer    MessageKind = "answer"
	KindCandidate MessageKind = "ice"
)

// Candidate mirrors an ICE candidate init as browsers and pion serialize it.
type Candidate struct {
	Candidate        string  `json:"candidate" msgpack:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty" msgpack:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty" msgpack:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty" msgpack:"usernameFragment,omitempty"`
}

// Key identifies a candidate for de-duplication.
func (c Candidate) Key() string {
	key := c.Candidate
	if c.SDPMid != nil {
		key += "|" + *c.SDPMid
	}
	if c.SDPMLineIndex != nil {
		key += "|" + strconv.FormatUint(uint64(*c.SDPMLineIndex), 10)
	}
	return key
}

// SetupMessage is one of Offer, Answer or Candidate. The sender and the
// recipient travel in the transport envelope, not here.
type SetupMessage struct {
	Kind      MessageKind
	SDP       string
	Restart   bool
	Candidate *Candidate
}

func NewOffer(sdp string) SetupMessage {
	return SetupMessage{Kind: KindOffer, SDP: sdp}
}

// NewRestartOffer is an offer that only renews transport credentials.
func NewRestartOffer(sdp string) SetupMessage {
	return SetupMessage{Kind: KindOffer, SDP: sdp, Restart: true}
}

func NewAnswer(sdp string) SetupMessage {
	return SetupMessage{Kind: KindAnswer, SDP: sdp}
}

func NewCandidate(c Candidate) SetupMessage {
	return SetupMessage{Kind: KindCandidate, Candidate: &c}
}

// Validate reports malformed messages as ErrNegotiation.
func (m SetupMessage) Validate() error {
	switch m.Kind {
	case KindOffer, KindAnswer:
		if m.SDP == "" {
			return WrapError("validate "+string(m.Kind), ErrNegotiation, "empty sdp")
		}
	case KindCandidate:
		if m.Candidate == nil {
			return WrapError("validate candidate", ErrNegotiation, "missing candidate")
		}
	default:
		return WrapError("validate", ErrNegotiation, "unknown kind "+string(m.Kind))
	}
	return nil
}
