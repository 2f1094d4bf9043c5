package signal

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/dkeye/voicemesh/internal/config"
	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ResumeParam carries the previously assigned participant id on reconnect.
const ResumeParam = "resume"

const eventBuffer = 64

type Options struct {
	URL             string
	Codec           Codec
	SendBuffer      int
	WriteWait       time.Duration
	PongWait        time.Duration
	MaxMessageSize  int64
	WelcomeTimeout  time.Duration
	ReconnectDelays []time.Duration
	Dialer          *websocket.Dialer
}

// OptionsFromConfig maps the signaling section of the config onto channel options.
func OptionsFromConfig(hubURL string, cfg config.SignalingConfig) (Options, error) {
	codec, err := CodecByName(cfg.Codec)
	if err != nil {
		return Options{}, err
	}
	return Options{
		URL:             hubURL,
		Codec:           codec,
		SendBuffer:      cfg.SendBuffer,
		WriteWait:       cfg.WriteWait,
		PongWait:        cfg.PongWait,
		MaxMessageSize:  cfg.MaxMessageSize,
		WelcomeTimeout:  cfg.WelcomeTimeout,
		ReconnectDelays: cfg.ReconnectDelays,
	}, nil
}

func (o Options) withDefaults() Options {
	if o.Codec == nil {
		o.Codec = JSON
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
	if o.WelcomeTimeout <= 0 {
		o.WelcomeTimeout = 10 * time.Second
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	return o
}

type outgoing struct {
	env  Envelope
	sent chan error
}

// Channel is a reconnecting signaling connection. It implements core.Signaler.
// Messages queued while the link is down are delivered after it comes back,
// and the last joined room is re-joined first.
type Channel struct {
	opts   Options
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	outbox chan outgoing
	events chan core.SignalEvent
	done   chan struct{}

	mu      sync.Mutex
	id      domain.ParticipantID
	room    domain.RoomID
	pending *outgoing
	closed  bool

	closeOnce sync.Once
}

var _ core.Signaler = (*Channel)(nil)

// Dial connects to the hub and waits for its welcome. An error here is final;
// only later disconnects are retried.
func Dial(ctx context.Context, opts Options) (*Channel, error) {
	opts = opts.withDefaults()
	c := &Channel{
		opts:   opts,
		logger: log.With().Str("module", "signal").Str("hub", opts.URL).Logger(),
		outbox: make(chan outgoing, opts.SendBuffer),
		events: make(chan core.SignalEvent, eventBuffer),
		done:   make(chan struct{}),
	}
	conn, id, err := c.connect(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", opts.URL, err)
	}
	c.id = id
	// the channel outlives the dial context
	c.ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	c.logger.Info().Str("participant", string(id)).Msg("connected")

	c.emit(core.SignalEvent{Kind: core.EventChannelStateChanged, State: domain.ChannelConnected})
	go c.supervise(conn)
	return c, nil
}

// Dialer implements core.SignalDialer on top of Dial.
type Dialer struct {
	Options Options
}

func (d Dialer) Dial(ctx context.Context, hubURL string) (core.Signaler, error) {
	opts := d.Options
	opts.URL = hubURL
	return Dial(ctx, opts)
}

func (c *Channel) LocalID() domain.ParticipantID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *Channel) Events() <-chan core.SignalEvent {
	return c.events
}

// JoinRoom returns once the join request is written to the hub.
func (c *Channel) JoinRoom(ctx context.Context, room domain.RoomID) error {
	c.mu.Lock()
	c.room = room
	c.mu.Unlock()
	return c.deliver(ctx, JoinEnvelope(room))
}

// LeaveRoom returns once the leave request is written to the hub.
func (c *Channel) LeaveRoom(ctx context.Context, room domain.RoomID) error {
	c.mu.Lock()
	if c.room == room {
		c.room = ""
	}
	c.mu.Unlock()
	return c.deliver(ctx, LeaveEnvelope(room))
}

// Send queues msg for to without waiting. A full queue is ErrBackpressure.
func (c *Channel) Send(ctx context.Context, room domain.RoomID, to domain.ParticipantID, msg domain.SetupMessage) error {
	op := "send " + string(msg.Kind)
	if err := msg.Validate(); err != nil {
		return err
	}
	if c.isClosed() {
		return domain.NewPeerError(op, to, fmt.Errorf("%w: %w", domain.ErrSend, domain.ErrChannelClosed))
	}
	select {
	case c.outbox <- outgoing{env: SetupEnvelope(room, to, msg)}:
		return nil
	case <-ctx.Done():
		return domain.NewPeerError(op, to, fmt.Errorf("%w: %w", domain.ErrSend, ctx.Err()))
	default:
		return domain.NewPeerError(op, to, fmt.Errorf("%w: %w", domain.ErrSend, domain.ErrBackpressure))
	}
}

func (c *Channel) deliver(ctx context.Context, env Envelope) error {
	op := env.Type + " " + env.RoomID
	if c.isClosed() {
		return domain.NewError(op, domain.ErrChannelClosed)
	}
	item := outgoing{env: env, sent: make(chan error, 1)}
	select {
	case c.outbox <- item:
	case <-ctx.Done():
		return domain.NewError(op, ctx.Err())
	case <-c.done:
		return domain.NewError(op, domain.ErrChannelClosed)
	}
	select {
	case err := <-item.sent:
		return err
	case <-ctx.Done():
		return domain.NewError(op, ctx.Err())
	case <-c.done:
		return domain.NewError(op, domain.ErrChannelClosed)
	}
}

// Close stops reconnecting, closes the socket and then the events channel.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.cancel()
		<-c.done
		c.logger.Info().Msg("closed")
	})
	return nil
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Channel) currentRoom() domain.RoomID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Channel) takePending() (outgoing, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return outgoing{}, false
	}
	item := *c.pending
	c.pending = nil
	return item, true
}

func (c *Channel) setPending(item outgoing) {
	c.mu.Lock()
	c.pending = &item
	c.mu.Unlock()
}

// emit hands an event to the consumer unless the channel is shutting down.
func (c *Channel) emit(ev core.SignalEvent) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

func (c *Channel) connect(ctx context.Context, resume domain.ParticipantID) (*websocket.Conn, domain.ParticipantID, error) {
	target := c.opts.URL
	if resume != "" {
		u, err := url.Parse(target)
		if err != nil {
			return nil, "", err
		}
		q := u.Query()
		q.Set(ResumeParam, string(resume))
		u.RawQuery = q.Encode()
		target = u.String()
	}

	conn, _, err := c.opts.Dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, "", err
	}
	conn.SetReadLimit(c.opts.MaxMessageSize)

	if err := conn.SetReadDeadline(time.Now().Add(c.opts.WelcomeTimeout)); err != nil {
		conn.Close()
		return nil, "", err
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, "", fmt.Errorf("waiting for welcome: %w", err)
	}
	var env Envelope
	if err := c.opts.Codec.Decode(data, &env); err != nil {
		conn.Close()
		return nil, "", fmt.Errorf("decode welcome: %w", err)
	}
	id := env.Participant()
	if env.Type != TypeWelcome || id.Validate() != nil {
		conn.Close()
		return nil, "", fmt.Errorf("expected welcome, got %q", env.Type)
	}
	return conn, id, nil
}
