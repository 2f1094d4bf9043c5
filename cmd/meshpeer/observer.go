package main

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicemesh/internal/app/media"
	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
)

// logObserver logs room activity and drains every remote track once.
type logObserver struct {
	ctx context.Context

	mu      sync.Mutex
	drained map[string]struct{}
}

func newLogObserver(ctx context.Context) *logObserver {
	return &logObserver{ctx: ctx, drained: make(map[string]struct{})}
}

func (o *logObserver) OnParticipantMediaAvailable(id domain.ParticipantID, bundle core.TrackBundle) {
	for _, t := range bundle.Tracks {
		key := string(id) + "/" + t.ID()
		o.mu.Lock()
		_, seen := o.drained[key]
		o.drained[key] = struct{}{}
		o.mu.Unlock()
		if seen {
			continue
		}
		logger := log.With().Str("module", "meshpeer").Str("peer", string(id)).Logger()
		go func(t core.RemoteTrack) {
			stats := media.Drain(o.ctx, t, logger)
			logger.Info().Uint64("packets", stats.Packets).Uint64("bytes", stats.Bytes).Msg("track done")
		}(t)
	}
}

func (o *logObserver) OnParticipantJoined(id domain.ParticipantID) {
	log.Info().Str("module", "meshpeer").Str("peer", string(id)).Msg("participant joined")
}

func (o *logObserver) OnParticipantLeft(id domain.ParticipantID) {
	log.Info().Str("module", "meshpeer").Str("peer", string(id)).Msg("participant left")
}

func (o *logObserver) OnConnectionStatusChanged(status domain.Status) {
	log.Info().Str("module", "meshpeer").Str("status", string(status)).Msg("status")
}
