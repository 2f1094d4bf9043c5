package media

import (
	"context"
	"errors"
	"net"

	"github.com/pion/rtp"
	"github.com/rs/zerolog/log"
)

// ListenRTP feeds RTP packets received on a UDP address into track, e.g. from
// `ffmpeg ... -f rtp rtp://127.0.0.1:5004`. It returns when ctx is done.
func ListenRTP(ctx context.Context, addr string, track *Track) error {
	var lc net.ListenConfig
	conn, err := lc.ListenPacket(ctx, "udp", addr)
	if err != nil {
		return err
	}
	return ServeRTP(ctx, conn, track)
}

// ServeRTP is ListenRTP on an already bound socket. It closes conn.
func ServeRTP(ctx context.Context, conn net.PacketConn, track *Track) error {
	logger := log.With().Str("module", "media").Str("addr", conn.LocalAddr().String()).Str("kind", track.Kind().String()).Logger()
	logger.Info().Msg("listening for RTP")

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 1500)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			logger.Debug().Err(err).Msg("not an RTP packet")
			continue
		}
		if err := track.WriteRTP(&pkt); err != nil {
			logger.Warn().Err(err).Msg("track write")
		}
	}
}
