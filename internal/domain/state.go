package domain

type NegotiationState string

const (
	NegotiationIdle            NegotiationState = "idle"
	NegotiationHaveLocalOffer  NegotiationState = "have-local-offer"
	NegotiationHaveRemoteOffer NegotiationState = "have-remote-offer"
	NegotiationStable          NegotiationState = "stable"
)

type ConnectivityState string

const (
	ConnectivityNew          ConnectivityState = "new"
	ConnectivityChecking     ConnectivityState = "checking"
	ConnectivityConnected    ConnectivityState = "connected"
	ConnectivityDisconnected ConnectivityState = "disconnected"
	ConnectivityFailed       ConnectivityState = "failed"
	ConnectivityClosed       ConnectivityState = "closed"
)

// connectivityEdges lists the allowed transitions. Closed is reachable from
// everywhere and handled separately.
var connectivityEdges = map[ConnectivityState][]ConnectivityState{
	ConnectivityNew:          {ConnectivityChecking},
	ConnectivityChecking:     {ConnectivityConnected, ConnectivityFailed},
	ConnectivityConnected:    {ConnectivityDisconnected, ConnectivityFailed},
	ConnectivityDisconnected: {ConnectivityConnected, ConnectivityChecking, ConnectivityFailed},
	// an ICE restart takes a failed transport back through checking
	ConnectivityFailed: {ConnectivityChecking, ConnectivityConnected},
}

// CanTransition reports whether a link may move from s to next.
func (s ConnectivityState) CanTransition(next ConnectivityState) bool {
	if s == ConnectivityClosed {
		return false
	}
	if next == ConnectivityClosed {
		return true
	}
	for _, allowed := range connectivityEdges[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Status is the simplified room state shown to the presentation layer.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

// ChannelState is the signaling transport state.
type ChannelState string

const (
	ChannelConnected    ChannelState = "connected"
	ChannelReconnecting ChannelState = "reconnecting"
	ChannelClosed       ChannelState = "closed"
)
