package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/voicemesh/internal/adapters/rtc"
	sig "github.com/dkeye/voicemesh/internal/adapters/signal"
	"github.com/dkeye/voicemesh/internal/app/media"
	"github.com/dkeye/voicemesh/internal/app/orch"
	"github.com/dkeye/voicemesh/internal/config"
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/dkeye/voicemesh/internal/logging"
)

var (
	flagAudioRTP  string
	flagVideoRTP  string
	flagMuteAudio bool
	flagMuteVideo bool
)

var joinCmd = &cobra.Command{
	Use:   "join [room]",
	Short: "Join a room and stay until interrupted",
	Long: `Join a room on the hub and connect to every participant in it.
Without a room name a random one is generated.

Examples:
  meshpeer join standup
  meshpeer join --audio-rtp 127.0.0.1:5004 --hub ws://hub.local:8080/ws
  ffmpeg -re -i talk.ogg -c:a libopus -f rtp rtp://127.0.0.1:5004`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		room := petname.Generate(3, "-")
		if len(args) == 1 {
			room = args[0]
		}
		return runJoin(cmd.Context(), domain.RoomID(room))
	},
}

func init() {
	f := joinCmd.Flags()
	f.StringVar(&flagAudioRTP, "audio-rtp", "", "UDP address to receive Opus RTP for the local audio track")
	f.StringVar(&flagVideoRTP, "video-rtp", "", "UDP address to receive VP8 RTP for the local video track")
	f.BoolVar(&flagMuteAudio, "mute-audio", false, "start with audio disabled")
	f.BoolVar(&flagMuteVideo, "mute-video", false, "start with video disabled")
	f.String("codec", "", "signaling codec: json or msgpack")
	bind(settings, "signaling.codec", f.Lookup("codec"))
}

func runJoin(parent context.Context, room domain.RoomID) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(settings, flagConfig)
	if err != nil {
		return err
	}
	logging.SetLevel(cfg.LogLevel)

	sigOpts, err := sig.OptionsFromConfig(cfg.HubURL, cfg.Signaling)
	if err != nil {
		return err
	}

	source, err := localSource(ctx)
	if err != nil {
		return err
	}

	coord := orch.New(orch.Options{
		HubURL:         cfg.HubURL,
		Dialer:         sig.Dialer{Options: sigOpts},
		Connections:    rtc.Factory(rtc.NewWebRTCConfig(cfg.ICE)),
		RestartTimeout: cfg.Link.RestartTimeout,
		JoinTimeout:    cfg.Room.JoinTimeout,
		LeaveTimeout:   cfg.Room.LeaveTimeout,
	})

	obs := newLogObserver(ctx)
	if err := coord.Join(ctx, room, source, obs); err != nil {
		return err
	}
	coord.SetAudioEnabled(!flagMuteAudio)
	coord.SetVideoEnabled(!flagMuteVideo)

	self, _ := coord.Room()
	log.Info().Str("room", string(room)).Str("self", string(self.Self)).Msg("in room, Ctrl+C to leave")

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return coord.Leave(context.Background())
		case <-ticker.C:
			for _, l := range coord.Links() {
				log.Info().
					Str("peer", string(l.Participant)).
					Str("role", l.Role).
					Str("negotiation", string(l.Negotiation)).
					Str("connectivity", string(l.Connectivity)).
					Msg("link")
			}
		}
	}
}

// localSource builds the tracks requested on the command line. No flags
// means receive-only.
func localSource(ctx context.Context) (*media.Source, error) {
	var tracks []*media.Track
	if flagAudioRTP != "" {
		t, err := media.NewAudioTrack("meshpeer")
		if err != nil {
			return nil, err
		}
		go serveRTP(ctx, flagAudioRTP, t)
		tracks = append(tracks, t)
	}
	if flagVideoRTP != "" {
		t, err := media.NewVideoTrack("meshpeer")
		if err != nil {
			return nil, err
		}
		go serveRTP(ctx, flagVideoRTP, t)
		tracks = append(tracks, t)
	}
	if len(tracks) == 0 {
		return nil, nil
	}
	return media.NewSource(tracks...), nil
}

func serveRTP(ctx context.Context, addr string, t *media.Track) {
	if err := media.ListenRTP(ctx, addr, t); err != nil {
		log.Error().Err(err).Str("addr", addr).Msg("RTP input stopped")
	}
}
