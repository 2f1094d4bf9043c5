package orch

import (
	"github.com/dkeye/voicemesh/internal/app"
)

func (c *Coordinator) handleLinkEvent(rs *roomState, ev app.LinkEvent) {
	link, ok := rs.registry.Get(ev.Peer)
	if !ok || link.Generation() != ev.Generation {
		rs.logger.Debug().Str("peer", string(ev.Peer)).Str("event", ev.Kind.String()).Uint64("gen", ev.Generation).Msg("event for replaced link")
		return
	}

	switch ev.Kind {
	case app.LinkLocalCandidate:
		if err := link.HandleLocalCandidate(ev.Candidate); err != nil {
			rs.logger.Warn().Err(err).Msg("local candidate")
		}
	case app.LinkConnectivity:
		if link.HandleConnectivity(ev.State) == app.OutcomePermanentFailure {
			c.dropMember(rs, ev.Peer, "connection failed")
		}
	case app.LinkRestartExpired:
		if link.HandleRestartExpired() == app.OutcomePermanentFailure {
			c.dropMember(rs, ev.Peer, "ICE restart timed out")
		}
	case app.LinkRemoteTrack:
		bundle := link.HandleRemoteTrack(ev.Track)
		rs.logger.Info().
			Str("peer", string(ev.Peer)).
			Str("kind", ev.Track.Kind().String()).
			Int("tracks", len(bundle.Tracks)).
			Msg("remote media available")
		rs.observer.OnParticipantMediaAvailable(ev.Peer, bundle)
	}
}
