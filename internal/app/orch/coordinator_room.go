package orch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/voicemesh/internal/app"
	"github.com/dkeye/voicemesh/internal/app/media"
	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var errAlreadyJoined = errors.New("already in a room")

const linkEventBuffer = 256

type roomState struct {
	room     domain.Room
	sig      core.Signaler
	registry *app.Registry
	observer core.Observer
	logger   zerolog.Logger

	// loop-owned
	members map[domain.ParticipantID]struct{}
	synced  bool

	ctx    context.Context
	cancel context.CancelFunc
	events chan app.LinkEvent
	joined chan struct{}
	stop   chan struct{}
	done   chan struct{}

	stopOnce sync.Once
}

// post hands a link event to the loop. Events after the loop stopped are dropped.
func (rs *roomState) post(ev app.LinkEvent) {
	select {
	case rs.events <- ev:
	case <-rs.done:
	}
}

func (rs *roomState) halt() {
	rs.stopOnce.Do(func() { close(rs.stop) })
	<-rs.done
}

// Join connects to the hub, enters roomID and waits for the member snapshot.
// Links to members already present are created before Join returns. The whole
// attempt is bounded by JoinTimeout. source may be nil to only receive.
func (c *Coordinator) Join(ctx context.Context, roomID domain.RoomID, source *media.Source, observer core.Observer) error {
	if observer == nil {
		observer = core.NopObserver{}
	}

	c.mu.Lock()
	if c.room != nil {
		c.mu.Unlock()
		return domain.JoinError("join "+string(roomID), errAlreadyJoined)
	}
	rs := &roomState{
		observer: observer,
		members:  make(map[domain.ParticipantID]struct{}),
		events:   make(chan app.LinkEvent, linkEventBuffer),
		joined:   make(chan struct{}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	c.room = rs
	c.observer = observer
	c.mu.Unlock()

	c.setStatus(domain.StatusConnecting)
	c.media.AttachSource(source)

	joinCtx, cancel := context.WithTimeout(ctx, c.opts.JoinTimeout)
	defer cancel()

	sig, err := c.opts.Dialer.Dial(joinCtx, c.opts.HubURL)
	if err != nil {
		c.abortJoin(rs)
		return domain.JoinError("connect "+c.opts.HubURL, err)
	}

	self := sig.LocalID()
	c.mu.Lock()
	if c.room != rs {
		c.mu.Unlock()
		_ = sig.Close()
		return domain.JoinError("join "+string(roomID), errors.New("left while connecting"))
	}
	rs.room = domain.Room{ID: roomID, Self: self}
	rs.sig = sig
	rs.logger = log.With().Str("module", "orch").Str("room", string(roomID)).Str("self", string(self)).Logger()
	rs.ctx, rs.cancel = context.WithCancel(context.WithoutCancel(ctx))
	rs.registry = app.NewRegistry(app.LinkOptions{
		Connections: c.opts.Connections,
		Send: func(peer domain.ParticipantID, msg domain.SetupMessage) error {
			return sig.Send(rs.ctx, roomID, peer, msg)
		},
		Post:           rs.post,
		LocalTracks:    c.media.LocalTracks,
		RestartTimeout: c.opts.RestartTimeout,
	})
	c.mu.Unlock()

	go c.run(rs)

	if err := sig.JoinRoom(joinCtx, roomID); err != nil {
		c.abortJoin(rs)
		return domain.JoinError("join "+string(roomID), c.joinCause(ctx, err))
	}

	select {
	case <-rs.joined:
		rs.logger.Info().Int("members", len(c.Participants())).Msg("joined room")
		return nil
	case <-joinCtx.Done():
		c.abortJoin(rs)
		return domain.JoinError("join "+string(roomID), c.joinCause(ctx, joinCtx.Err()))
	case <-rs.done:
		c.abortJoin(rs)
		return domain.JoinError("join "+string(roomID), domain.ErrChannelClosed)
	}
}

// joinCause names the join timeout when it, and not the caller, ended the attempt.
func (c *Coordinator) joinCause(ctx context.Context, err error) error {
	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("join timed out after %s: %w", c.opts.JoinTimeout, err)
	}
	return err
}

func (c *Coordinator) abortJoin(rs *roomState) {
	c.teardown(rs)
	c.setStatus(domain.StatusError)
}

// Leave exits the room and releases every link and the local media. The hub
// notification gets at most LeaveTimeout; its failure is logged only. Leave
// must not be called synchronously from an Observer callback.
func (c *Coordinator) Leave(ctx context.Context) error {
	c.mu.RLock()
	rs := c.room
	var sig core.Signaler
	if rs != nil {
		sig = rs.sig
	}
	c.mu.RUnlock()
	if rs == nil {
		return nil
	}
	if sig != nil {
		rs.halt()
		notifyCtx, cancel := context.WithTimeout(ctx, c.opts.LeaveTimeout)
		if err := sig.LeaveRoom(notifyCtx, rs.room.ID); err != nil {
			rs.logger.Warn().Err(err).Msg("leave notification failed")
		}
		cancel()
	}
	c.teardown(rs)
	c.setStatus(domain.StatusDisconnected)
	return nil
}

// teardown stops the loop and releases everything rs holds. Safe to call twice.
func (c *Coordinator) teardown(rs *roomState) {
	c.mu.Lock()
	if c.room != rs {
		c.mu.Unlock()
		return
	}
	c.room = nil
	c.members = nil
	c.links = nil
	sig := rs.sig
	c.mu.Unlock()

	if sig != nil {
		rs.halt()
		rs.registry.CloseAll()
		rs.cancel()
		if err := sig.Close(); err != nil {
			rs.logger.Warn().Err(err).Msg("close signaling")
		}
	}
	c.media.Release()
	log.Info().Str("module", "orch").Str("room", string(rs.room.ID)).Msg("room released")
}

func (c *Coordinator) run(rs *roomState) {
	defer close(rs.done)
	events := rs.sig.Events()
	for {
		select {
		case <-rs.stop:
			return
		case ev, ok := <-events:
			if !ok {
				rs.logger.Warn().Msg("signaling channel closed")
				c.setStatus(domain.StatusDisconnected)
				return
			}
			c.handleSignal(rs, ev)
		case ev := <-rs.events:
			c.handleLinkEvent(rs, ev)
		}
		c.publish(rs)
	}
}

func (c *Coordinator) handleSignal(rs *roomState, ev core.SignalEvent) {
	if ev.Room != "" && ev.Room != rs.room.ID {
		rs.logger.Debug().Str("event_room", string(ev.Room)).Str("kind", string(ev.Kind)).Msg("event for another room")
		return
	}
	switch ev.Kind {
	case core.EventExistingMembers:
		c.onExistingMembers(rs, ev.IDs)
	case core.EventMemberJoined:
		c.onMemberJoined(rs, ev.Participant)
	case core.EventMemberLeft:
		c.dropMember(rs, ev.Participant, "left")
	case core.EventMessageReceived:
		c.onMessage(rs, ev.From, ev.Message)
	case core.EventChannelStateChanged:
		c.onChannelState(rs, ev.State)
	}
}

// onExistingMembers starts an initiator link per listed member. After a
// reconnect the list is authoritative: absent members are dropped and every
// present one is renegotiated from scratch.
func (c *Coordinator) onExistingMembers(rs *roomState, ids []domain.ParticipantID) {
	present := make(map[domain.ParticipantID]struct{}, len(ids))
	for _, id := range ids {
		if id != rs.room.Self {
			present[id] = struct{}{}
		}
	}

	if rs.synced {
		rs.logger.Info().Int("members", len(present)).Msg("resyncing after reconnect")
		for id := range rs.members {
			if _, ok := present[id]; !ok {
				c.dropMember(rs, id, "absent after reconnect")
			}
		}
	}

	for _, id := range ids {
		if id == rs.room.Self {
			continue
		}
		if _, err := rs.registry.Replace(id, domain.RoleInitiator); err != nil {
			rs.logger.Error().Err(err).Str("peer", string(id)).Msg("create link")
		}
		c.announce(rs, id)
	}

	c.publish(rs)
	c.setStatus(domain.StatusConnected)
	if !rs.synced {
		rs.synced = true
		close(rs.joined)
	}
}

func (c *Coordinator) onMemberJoined(rs *roomState, id domain.ParticipantID) {
	if id == rs.room.Self || id == "" {
		return
	}
	if _, err := rs.registry.EnsureLink(id, domain.RoleResponder); err != nil {
		rs.logger.Error().Err(err).Str("peer", string(id)).Msg("create link")
	}
	c.announce(rs, id)
}

func (c *Coordinator) announce(rs *roomState, id domain.ParticipantID) {
	if _, ok := rs.members[id]; ok {
		return
	}
	rs.members[id] = struct{}{}
	rs.logger.Info().Str("peer", string(id)).Msg("participant joined")
	rs.observer.OnParticipantJoined(id)
}

// dropMember removes the link and reports the departure once per member.
func (c *Coordinator) dropMember(rs *roomState, id domain.ParticipantID, reason string) {
	rs.registry.Remove(id)
	if _, ok := rs.members[id]; !ok {
		return
	}
	delete(rs.members, id)
	rs.logger.Info().Str("peer", string(id)).Str("reason", reason).Msg("participant left")
	rs.observer.OnParticipantLeft(id)
}

func (c *Coordinator) onMessage(rs *roomState, from domain.ParticipantID, msg domain.SetupMessage) {
	logger := rs.logger.With().Str("peer", string(from)).Str("kind", string(msg.Kind)).Logger()
	if from == "" || from == rs.room.Self {
		logger.Warn().Msg("setup message without usable sender")
		return
	}

	link, ok := rs.registry.Get(from)
	if !ok {
		if msg.Kind == domain.KindAnswer {
			logger.Warn().Msg("answer from unknown participant")
			return
		}
		var err error
		if link, err = rs.registry.EnsureLink(from, domain.RoleResponder); err != nil {
			logger.Error().Err(err).Msg("create link")
			return
		}
		c.announce(rs, from)
	}

	err := link.HandleMessage(msg)
	if errors.Is(err, domain.ErrRenegotiationRequired) {
		logger.Info().Msg("peer renegotiated, replacing link")
		if link, err = rs.registry.Replace(from, domain.RoleResponder); err == nil {
			err = link.HandleMessage(msg)
		}
	}
	switch {
	case err == nil:
	case domain.IsWarning(err):
		logger.Warn().Err(err).Msg("setup message dropped")
	default:
		logger.Error().Err(err).Msg("setup message")
	}
}

func (c *Coordinator) onChannelState(rs *roomState, state domain.ChannelState) {
	rs.logger.Info().Str("channel", string(state)).Msg("signaling state")
	switch state {
	case domain.ChannelReconnecting:
		c.setStatus(domain.StatusConnecting)
	case domain.ChannelClosed:
		c.setStatus(domain.StatusDisconnected)
	}
}
