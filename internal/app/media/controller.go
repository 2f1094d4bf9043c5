package media

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Source is a capture device's set of tracks, at most one per kind in practice.
type Source struct {
	tracks []*Track
}

func NewSource(tracks ...*Track) *Source {
	return &Source{tracks: tracks}
}

func (s *Source) Tracks() []*Track {
	if s == nil {
		return nil
	}
	return s.tracks
}

// Controller holds the local source for the lifetime of a room.
type Controller struct {
	mu     sync.RWMutex
	source *Source
}

func NewController() *Controller {
	return &Controller{}
}

// AttachSource replaces the current source. nil means receive-only.
func (c *Controller) AttachSource(src *Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.source = src
	log.Debug().Str("module", "media").Int("tracks", len(src.Tracks())).Msg("source attached")
}

func (c *Controller) SetAudioEnabled(enabled bool) {
	c.setEnabled(webrtc.RTPCodecTypeAudio, enabled)
}

func (c *Controller) SetVideoEnabled(enabled bool) {
	c.setEnabled(webrtc.RTPCodecTypeVideo, enabled)
}

func (c *Controller) setEnabled(kind webrtc.RTPCodecType, enabled bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, t := range c.source.Tracks() {
		if t.Kind() == kind {
			t.SetEnabled(enabled)
			n++
		}
	}
	log.Info().Str("module", "media").Str("kind", kind.String()).Bool("enabled", enabled).Int("tracks", n).Msg("toggle")
}

// LocalTracks lists what every new peer connection gets attached.
func (c *Controller) LocalTracks() []webrtc.TrackLocal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]webrtc.TrackLocal, 0, len(c.source.Tracks()))
	for _, t := range c.source.Tracks() {
		out = append(out, t.Local())
	}
	return out
}

// ActiveTracks counts tracks that are attached and not released.
func (c *Controller) ActiveTracks() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, t := range c.source.Tracks() {
		if t.State() != TrackStateReleased {
			n++
		}
	}
	return n
}

// Release stops every track and forgets the source. Safe to call twice.
func (c *Controller) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.source.Tracks() {
		t.release()
	}
	if c.source != nil {
		log.Info().Str("module", "media").Int("tracks", len(c.source.tracks)).Msg("released")
	}
	c.source = nil
}
