// Package media owns the local capture tracks shared by every peer link.
package media

import (
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

type TrackState int32

const (
	TrackStateLive TrackState = iota
	TrackStateMuted
	TrackStateReleased
)

func (s TrackState) String() string {
	switch s {
	case TrackStateLive:
		return "live"
	case TrackStateMuted:
		return "muted"
	case TrackStateReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Track is one local capture track. A single Track is attached to every
// peer connection; muting it stops the packets for all of them at once.
type Track struct {
	local *webrtc.TrackLocalStaticRTP
	state atomic.Int32 // zero is TrackStateLive

	written atomic.Uint64
	dropped atomic.Uint64
}

func NewTrack(local *webrtc.TrackLocalStaticRTP) *Track {
	return &Track{local: local}
}

// NewAudioTrack creates an Opus track for streamID.
func NewAudioTrack(streamID string) (*Track, error) {
	local, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", streamID,
	)
	if err != nil {
		return nil, err
	}
	return NewTrack(local), nil
}

// NewVideoTrack creates a VP8 track for streamID.
func NewVideoTrack(streamID string) (*Track, error) {
	local, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		"video", streamID,
	)
	if err != nil {
		return nil, err
	}
	return NewTrack(local), nil
}

func (t *Track) Local() webrtc.TrackLocal {
	return t.local
}

func (t *Track) Kind() webrtc.RTPCodecType {
	return t.local.Kind()
}

func (t *Track) State() TrackState {
	return TrackState(t.state.Load())
}

// SetEnabled toggles between live and muted. Released tracks stay released.
func (t *Track) SetEnabled(enabled bool) {
	next := TrackStateMuted
	if enabled {
		next = TrackStateLive
	}
	for {
		cur := t.state.Load()
		if TrackState(cur) == TrackStateReleased {
			return
		}
		if t.state.CompareAndSwap(cur, int32(next)) {
			return
		}
	}
}

func (t *Track) Enabled() bool {
	return t.State() == TrackStateLive
}

func (t *Track) release() {
	t.state.Store(int32(TrackStateReleased))
}

// WriteRTP forwards pkt to every bound connection while the track is live.
func (t *Track) WriteRTP(pkt *rtp.Packet) error {
	if t.State() != TrackStateLive {
		t.dropped.Add(1)
		return nil
	}
	if err := t.local.WriteRTP(pkt); err != nil {
		return err
	}
	t.written.Add(1)
	return nil
}

// Stats returns forwarded and dropped packet counts.
func (t *Track) Stats() (written, dropped uint64) {
	return t.written.Load(), t.dropped.Load()
}
