// Package hub is the rendezvous service: it assigns participant ids, tracks
// room membership and relays setup messages between members of a room.
package hub

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/voicemesh/internal/adapters/signal"
	"github.com/dkeye/voicemesh/internal/config"
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Codec          signal.Codec
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
	RelayLimit     int
	RelayInterval  time.Duration
	// Policy handles full send queues. Defaults to SimplePolicy.
	Policy Policy
}

func OptionsFromConfig(cfg *config.Config) (Options, error) {
	codec, err := signal.CodecByName(cfg.Signaling.Codec)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Codec:          codec,
		SendBuffer:     cfg.Signaling.SendBuffer,
		WriteWait:      cfg.Signaling.WriteWait,
		PongWait:       cfg.Signaling.PongWait,
		MaxMessageSize: cfg.Signaling.MaxMessageSize,
		RelayLimit:     cfg.Hub.RelayLimit,
		RelayInterval:  cfg.Hub.RelayInterval,
		Policy:         PolicyByName(cfg.Hub.Backpressure),
	}, nil
}

// RoomInfo is the public view of one room.
type RoomInfo struct {
	ID      domain.RoomID          `json:"id"`
	Members []domain.ParticipantID `json:"members"`
}

type Hub struct {
	opts     Options
	limiter  *RelayRateLimiter
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	peers map[domain.ParticipantID]*peerConn
	rooms map[domain.RoomID][]*peerConn
}

func New(opts Options) *Hub {
	if opts.Codec == nil {
		opts.Codec = signal.JSON
	}
	if opts.Policy == nil {
		opts.Policy = SimplePolicy{}
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = 10 * time.Second
	}
	if opts.PongWait <= 0 {
		opts.PongWait = 60 * time.Second
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 64 * 1024
	}
	return &Hub{
		opts:    opts,
		limiter: NewRelayRateLimiter(opts.RelayLimit, opts.RelayInterval),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		peers: make(map[domain.ParticipantID]*peerConn),
		rooms: make(map[domain.RoomID][]*peerConn),
	}
}

// HandleSignal upgrades the request and serves the connection until it drops.
// A valid resume query parameter reclaims a previously assigned id.
func (h *Hub) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "hub").Msg("ws upgrade")
		return
	}

	id := domain.ParticipantID(c.Query(signal.ResumeParam))
	if id.Validate() != nil {
		id = domain.ParticipantID(uuid.NewString())
	}
	pc := newPeerConn(id, ws, h.opts.SendBuffer)
	h.register(pc)
	h.sendTo(pc, signal.WelcomeEnvelope(id))
	log.Info().Str("module", "hub").Str("participant", string(id)).Str("remote", c.Request.RemoteAddr).Msg("connected")

	connCtx, cancel := context.WithCancel(ctx)
	go h.writePump(connCtx, pc)
	go func() {
		defer cancel()
		h.readPump(connCtx, pc)
	}()
}

func (h *Hub) register(pc *peerConn) {
	h.mu.Lock()
	old := h.peers[pc.id]
	h.peers[pc.id] = pc
	h.mu.Unlock()

	if old != nil {
		log.Info().Str("module", "hub").Str("participant", string(pc.id)).Msg("resumed, dropping stale connection")
		h.leaveRoom(old)
		old.Close()
	}
}

func (h *Hub) unregister(pc *peerConn) {
	h.mu.Lock()
	current := h.peers[pc.id] == pc
	if current {
		delete(h.peers, pc.id)
	}
	h.mu.Unlock()

	h.leaveRoom(pc)
	pc.Close()
	if current {
		h.limiter.Forget(pc.id)
		log.Info().Str("module", "hub").Str("participant", string(pc.id)).Msg("disconnected")
	}
}

func (h *Hub) join(pc *peerConn, room domain.RoomID) {
	if room == "" {
		h.sendTo(pc, signal.ErrorEnvelope(room, "empty room id"))
		return
	}
	h.mu.RLock()
	current := pc.room
	h.mu.RUnlock()
	if current == room {
		log.Debug().Str("module", "hub").Str("participant", string(pc.id)).Str("room", string(room)).Msg("duplicate join")
		return
	}
	if current != "" {
		h.leaveRoom(pc)
	}

	h.mu.Lock()
	others := slices.Clone(h.rooms[room])
	h.rooms[room] = append(h.rooms[room], pc)
	pc.room = room
	h.mu.Unlock()

	ids := make([]domain.ParticipantID, 0, len(others))
	for _, o := range others {
		ids = append(ids, o.id)
	}
	h.sendTo(pc, signal.MembersEnvelope(room, ids))
	joined := signal.MemberEnvelope(signal.TypeMemberJoined, room, pc.id)
	for _, o := range others {
		h.sendTo(o, joined)
	}
	log.Info().Str("module", "hub").Str("participant", string(pc.id)).Str("room", string(room)).Int("members", len(ids)+1).Msg("joined")
}

func (h *Hub) leaveRoom(pc *peerConn) {
	h.mu.Lock()
	room := pc.room
	if room == "" {
		h.mu.Unlock()
		return
	}
	pc.room = ""
	members := slices.DeleteFunc(h.rooms[room], func(m *peerConn) bool { return m == pc })
	if len(members) == 0 {
		delete(h.rooms, room)
	} else {
		h.rooms[room] = members
	}
	others := slices.Clone(members)
	h.mu.Unlock()

	left := signal.MemberEnvelope(signal.TypeMemberLeft, room, pc.id)
	for _, o := range others {
		h.sendTo(o, left)
	}
	log.Info().Str("module", "hub").Str("participant", string(pc.id)).Str("room", string(room)).Msg("left")
}

func (h *Hub) relay(pc *peerConn, env signal.Envelope) {
	room := domain.RoomID(env.RoomID)
	if ok, retry := h.limiter.Allow(pc.id); !ok {
		log.Warn().Str("module", "hub").Str("participant", string(pc.id)).Dur("retry_in", retry).Msg("relay rate limited")
		h.sendTo(pc, signal.ErrorEnvelope(room, "rate limited, retry in "+retry.Round(time.Millisecond).String()))
		return
	}

	h.mu.RLock()
	target, ok := h.peers[domain.ParticipantID(env.To)]
	sameRoom := ok && pc.room == room && target.room == room
	h.mu.RUnlock()
	if !sameRoom {
		log.Warn().Str("module", "hub").Str("from", string(pc.id)).Str("to", env.To).Str("type", env.Type).Msg("relay target not in room")
		h.sendTo(pc, signal.ErrorEnvelope(room, "unknown participant "+env.To))
		return
	}

	env.From = string(pc.id)
	h.sendTo(target, env)
}

// sendTo queues env for pc. A full queue is handed to the Policy; a kicked
// peer reconnects and resyncs on its own.
func (h *Hub) sendTo(pc *peerConn, env signal.Envelope) {
	data, err := h.opts.Codec.Encode(env)
	if err != nil {
		log.Error().Err(err).Str("module", "hub").Str("type", env.Type).Msg("encode")
		return
	}
	err = pc.TrySend(data)
	if !errors.Is(err, domain.ErrBackpressure) {
		return
	}
	h.mu.RLock()
	room := pc.room
	h.mu.RUnlock()
	action := h.opts.Policy.OnBackPressure(room, pc.id, env)
	log.Warn().Err(err).Str("module", "hub").Str("participant", string(pc.id)).Str("type", env.Type).Stringer("action", action).Msg("slow peer")
	if action == KickMember {
		pc.Close()
	}
}

// Rooms lists every non-empty room, sorted by id.
func (h *Hub) Rooms() []RoomInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]RoomInfo, 0, len(h.rooms))
	for id, members := range h.rooms {
		info := RoomInfo{ID: id, Members: make([]domain.ParticipantID, 0, len(members))}
		for _, m := range members {
			info.Members = append(info.Members, m.id)
		}
		slices.Sort(info.Members)
		out = append(out, info)
	}
	slices.SortFunc(out, func(a, b RoomInfo) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// Participants is the number of connected participants.
func (h *Hub) Participants() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

func (h *Hub) Room(id domain.RoomID) (RoomInfo, bool) {
	for _, r := range h.Rooms() {
		if r.ID == id {
			return r, true
		}
	}
	return RoomInfo{}, false
}

// Kick drops the participant's connection. Its room sees member-left.
func (h *Hub) Kick(id domain.ParticipantID) bool {
	h.mu.RLock()
	pc, ok := h.peers[id]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	log.Info().Str("module", "hub").Str("participant", string(id)).Msg("kicked")
	pc.Close()
	return true
}
