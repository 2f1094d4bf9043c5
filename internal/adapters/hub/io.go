package hub

import (
	"context"
	"time"

	"github.com/dkeye/voicemesh/internal/adapters/signal"
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (h *Hub) writePump(ctx context.Context, pc *peerConn) {
	ticker := time.NewTicker(h.opts.PongWait * 9 / 10)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-pc.send:
			if !ok {
				return
			}
			if err := pc.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "hub").Msg("writePump set deadline")
				return
			}
			if err := pc.conn.WriteMessage(h.opts.Codec.FrameType(), data); err != nil {
				log.Warn().Err(err).Str("module", "hub").Str("participant", string(pc.id)).Msg("writePump write error")
				pc.Close()
				return
			}
		case <-ticker.C:
			if err := pc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.opts.WriteWait)); err != nil {
				pc.Close()
				return
			}
		}
	}
}

func (h *Hub) readPump(ctx context.Context, pc *peerConn) {
	defer h.unregister(pc)

	pc.conn.SetReadLimit(h.opts.MaxMessageSize)
	_ = pc.conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	pc.conn.SetPongHandler(func(string) error {
		return pc.conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := pc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "hub").Str("participant", string(pc.id)).Msg("readPump read error")
			}
			return
		}
		var env signal.Envelope
		if err := h.opts.Codec.Decode(data, &env); err != nil {
			log.Error().Err(err).Str("module", "hub").Msg("bad frame")
			continue
		}
		h.handle(pc, env)
	}
}

func (h *Hub) handle(pc *peerConn, env signal.Envelope) {
	switch {
	case env.Type == signal.TypeJoin:
		h.join(pc, domain.RoomID(env.RoomID))
	case env.Type == signal.TypeLeave:
		h.leaveRoom(pc)
	case env.IsSetup():
		h.relay(pc, env)
	default:
		log.Warn().Str("module", "hub").Str("type", env.Type).Msg("unknown signal")
		h.sendTo(pc, signal.ErrorEnvelope(domain.RoomID(env.RoomID), "unknown type "+env.Type))
	}
}
