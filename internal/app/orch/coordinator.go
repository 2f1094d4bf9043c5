// Package orch runs one mesh room: it turns signaling events and peer
// connection callbacks into link operations on a single event loop.
package orch

import (
	"slices"
	"sync"
	"time"

	"github.com/dkeye/voicemesh/internal/app/media"
	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/rs/zerolog/log"
)

type Options struct {
	HubURL         string
	Dialer         core.SignalDialer
	Connections    core.ConnectionFactory
	RestartTimeout time.Duration
	JoinTimeout    time.Duration
	LeaveTimeout   time.Duration
}

// Coordinator is the presentation-facing API. It is in at most one room at a time.
type Coordinator struct {
	opts  Options
	media *media.Controller

	mu       sync.RWMutex
	status   domain.Status
	observer core.Observer
	room     *roomState
	members  []domain.ParticipantID
	links    []domain.LinkInfo
}

func New(opts Options) *Coordinator {
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = 15 * time.Second
	}
	if opts.RestartTimeout <= 0 {
		opts.RestartTimeout = 15 * time.Second
	}
	if opts.LeaveTimeout <= 0 {
		opts.LeaveTimeout = 5 * time.Second
	}
	return &Coordinator{
		opts:     opts,
		media:    media.NewController(),
		status:   domain.StatusDisconnected,
		observer: core.NopObserver{},
	}
}

func (c *Coordinator) Status() domain.Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Participants lists the remote members currently known, sorted.
func (c *Coordinator) Participants() []domain.ParticipantID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.members)
}

// Links is a snapshot of every peer link as of the last processed event.
func (c *Coordinator) Links() []domain.LinkInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.links)
}

// Room is the joined room, if any.
func (c *Coordinator) Room() (domain.Room, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.room == nil {
		return domain.Room{}, false
	}
	return c.room.room, true
}

func (c *Coordinator) SetAudioEnabled(enabled bool) {
	c.media.SetAudioEnabled(enabled)
}

func (c *Coordinator) SetVideoEnabled(enabled bool) {
	c.media.SetVideoEnabled(enabled)
}

// ActiveLocalTracks counts local tracks still held.
func (c *Coordinator) ActiveLocalTracks() int {
	return c.media.ActiveTracks()
}

func (c *Coordinator) setStatus(status domain.Status) {
	c.mu.Lock()
	if c.status == status {
		c.mu.Unlock()
		return
	}
	c.status = status
	obs := c.observer
	c.mu.Unlock()

	log.Info().Str("module", "orch").Str("status", string(status)).Msg("status changed")
	obs.OnConnectionStatusChanged(status)
}

func (c *Coordinator) publish(rs *roomState) {
	members := make([]domain.ParticipantID, 0, len(rs.members))
	for id := range rs.members {
		members = append(members, id)
	}
	slices.Sort(members)
	links := rs.registry.Snapshot()

	c.mu.Lock()
	if c.room == rs {
		c.members = members
		c.links = links
	}
	c.mu.Unlock()
}
