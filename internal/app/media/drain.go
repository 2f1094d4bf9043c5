package media

import (
	"context"
	"errors"
	"io"

	"github.com/dkeye/voicemesh/internal/core"
	"github.com/rs/zerolog"
)

type DrainStats struct {
	Packets uint64
	Bytes   uint64
}

// Drain reads a remote track until it ends or ctx is done. Remote tracks
// must be read for the interceptors (NACK, RTCP reports) to keep working.
func Drain(ctx context.Context, track core.RemoteTrack, logger zerolog.Logger) DrainStats {
	var stats DrainStats
	logger = logger.With().Str("track_id", track.ID()).Str("kind", track.Kind().String()).Logger()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Uint64("packets", stats.Packets).Msg("drain ctx done")
			return stats
		default:
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Info().Uint64("packets", stats.Packets).Uint64("bytes", stats.Bytes).Msg("remote track ended")
			} else {
				logger.Warn().Err(err).Msg("remote track read error, stopping")
			}
			return stats
		}
		stats.Packets++
		stats.Bytes += uint64(len(pkt.Payload))
	}
}
