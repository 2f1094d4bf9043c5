package signal

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/sourcegraph/conc"
)

// supervise serves conn until it breaks, then reconnects on the configured
// schedule until Close.
func (c *Channel) supervise(conn *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.events)
		close(c.done)
	}()

	for {
		c.serve(conn)
		if c.ctx.Err() != nil {
			return
		}

		c.logger.Warn().Msg("connection lost, reconnecting")
		c.emit(core.SignalEvent{Kind: core.EventChannelStateChanged, State: domain.ChannelReconnecting})

		next, err := c.reconnect()
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Error().Err(err).Msg("giving up reconnect")
				c.emit(core.SignalEvent{Kind: core.EventChannelStateChanged, State: domain.ChannelClosed})
			}
			return
		}
		conn = next

		if room := c.currentRoom(); room != "" {
			if err := c.write(conn, JoinEnvelope(room)); err != nil {
				c.logger.Warn().Err(err).Str("room", string(room)).Msg("rejoin write")
			} else {
				c.logger.Info().Str("room", string(room)).Msg("rejoined")
			}
		}
		c.emit(core.SignalEvent{Kind: core.EventChannelStateChanged, State: domain.ChannelConnected})
	}
}

func (c *Channel) reconnect() (*websocket.Conn, error) {
	delays := c.opts.ReconnectDelays
	var first time.Duration
	if len(delays) > 0 {
		first, delays = delays[0], delays[1:]
	}
	if first > 0 {
		timer := time.NewTimer(first)
		select {
		case <-timer.C:
		case <-c.ctx.Done():
			timer.Stop()
			return nil, c.ctx.Err()
		}
	}

	var conn *websocket.Conn
	op := func() error {
		next, id, err := c.connect(c.ctx, c.LocalID())
		if err != nil {
			return err
		}
		c.mu.Lock()
		if c.id != id {
			c.logger.Warn().Str("old", string(c.id)).Str("new", string(id)).Msg("hub assigned a new participant id")
		}
		c.id = id
		c.mu.Unlock()
		conn = next
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn().Err(err).Dur("retry_in", wait).Msg("reconnect failed")
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(NewSchedule(delays), c.ctx), notify); err != nil {
		return nil, err
	}
	c.logger.Info().Str("participant", string(c.LocalID())).Msg("reconnected")
	return conn, nil
}

// serve runs both pumps on conn and returns when either of them stops.
func (c *Channel) serve(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(c.ctx)
	stop := func() {
		cancel()
		conn.Close()
	}

	var wg conc.WaitGroup
	wg.Go(func() {
		defer stop()
		c.readPump(ctx, conn)
	})
	wg.Go(func() {
		defer stop()
		c.writePump(ctx, conn)
	})
	wg.Wait()
}

func (c *Channel) write(conn *websocket.Conn, env Envelope) error {
	data, err := c.opts.Codec.Encode(env)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
		return err
	}
	return conn.WriteMessage(c.opts.Codec.FrameType(), data)
}

func (c *Channel) writeItem(conn *websocket.Conn, item outgoing) bool {
	if err := c.write(conn, item.env); err != nil {
		c.logger.Warn().Err(err).Str("type", item.env.Type).Msg("writePump write error, will retry")
		c.setPending(item)
		return false
	}
	if item.sent != nil {
		item.sent <- nil
	}
	return true
}

func (c *Channel) writePump(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.opts.PongWait * 9 / 10)
	defer ticker.Stop()

	for {
		if item, ok := c.takePending(); ok {
			if !c.writeItem(conn, item) {
				return
			}
			continue
		}
		select {
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteWait))
			return
		case item := <-c.outbox:
			if !c.writeItem(conn, item) {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteWait)); err != nil {
				c.logger.Warn().Err(err).Msg("ping")
				return
			}
		}
	}
}

func (c *Channel) readPump(ctx context.Context, conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn().Err(err).Msg("readPump read error")
			}
			return
		}
		var env Envelope
		if err := c.opts.Codec.Decode(data, &env); err != nil {
			c.logger.Error().Err(err).Msg("bad frame")
			continue
		}
		c.dispatch(env)
	}
}

func (c *Channel) dispatch(env Envelope) {
	room := domain.RoomID(env.RoomID)
	switch env.Type {
	case TypeExistingMembers:
		c.emit(core.SignalEvent{Kind: core.EventExistingMembers, Room: room, IDs: env.Members()})
	case TypeMemberJoined:
		c.emit(core.SignalEvent{Kind: core.EventMemberJoined, Room: room, Participant: env.Participant()})
	case TypeMemberLeft:
		c.emit(core.SignalEvent{Kind: core.EventMemberLeft, Room: room, Participant: env.Participant()})
	case TypeOffer, TypeAnswer, TypeICE:
		msg, err := env.SetupMessage()
		if err != nil {
			c.logger.Warn().Err(err).Str("from", env.From).Msg("dropping malformed setup message")
			return
		}
		c.emit(core.SignalEvent{
			Kind:    core.EventMessageReceived,
			Room:    room,
			From:    domain.ParticipantID(env.From),
			Message: msg,
		})
	case TypeError:
		reason := ""
		if env.Payload != nil {
			reason = env.Payload.Error
		}
		c.logger.Warn().Str("room", env.RoomID).Str("reason", reason).Msg("hub error")
	case TypeWelcome:
		c.mu.Lock()
		c.id = env.Participant()
		c.mu.Unlock()
	default:
		c.logger.Warn().Str("type", env.Type).Msg("unknown signal")
	}
}
