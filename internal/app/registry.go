package app

import (
	"iter"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

// LinkOptions is what every link of a room shares.
type LinkOptions struct {
	Connections    core.ConnectionFactory
	Send           func(peer domain.ParticipantID, msg domain.SetupMessage) error
	Post           func(LinkEvent)
	LocalTracks    func() []webrtc.TrackLocal
	RestartTimeout time.Duration
}

// Registry holds at most one link per remote participant. The map is safe
// for concurrent use; link state itself belongs to the room loop.
type Registry struct {
	opts LinkOptions

	mu    sync.RWMutex
	links map[domain.ParticipantID]*PeerLink
	gen   uint64
}

func NewRegistry(opts LinkOptions) *Registry {
	if opts.RestartTimeout <= 0 {
		opts.RestartTimeout = 15 * time.Second
	}
	return &Registry{
		opts:  opts,
		links: make(map[domain.ParticipantID]*PeerLink),
	}
}

// EnsureLink returns the live link to peer with the given role, replacing a
// link of the other role.
func (r *Registry) EnsureLink(peer domain.ParticipantID, role domain.Role) (*PeerLink, error) {
	r.mu.RLock()
	link, ok := r.links[peer]
	r.mu.RUnlock()
	if ok && link.role == role && !link.closed {
		return link, nil
	}
	return r.Replace(peer, role)
}

// Replace closes any link to peer and starts a fresh one.
func (r *Registry) Replace(peer domain.ParticipantID, role domain.Role) (*PeerLink, error) {
	if err := peer.Validate(); err != nil {
		return nil, domain.NewPeerError("create link", peer, err)
	}
	conn, err := r.opts.Connections(peer)
	if err != nil {
		return nil, domain.NewPeerError("create link", peer, err)
	}

	r.mu.Lock()
	r.gen++
	link := newPeerLink(linkParams{
		peer: peer,
		role: role,
		gen:  r.gen,
		conn: conn,
		send: func(msg domain.SetupMessage) error {
			return r.opts.Send(peer, msg)
		},
		post:           r.opts.Post,
		restartTimeout: r.opts.RestartTimeout,
	})
	old := r.links[peer]
	r.links[peer] = link
	r.mu.Unlock()

	if old != nil {
		log.Info().Str("module", "app.registry").Str("peer", string(peer)).Uint64("old_gen", old.gen).Msg("replacing link")
		old.Close()
	}

	var tracks []webrtc.TrackLocal
	if r.opts.LocalTracks != nil {
		tracks = r.opts.LocalTracks()
	}
	if err := link.start(tracks); err != nil {
		r.removeIf(link)
		return nil, err
	}
	log.Info().Str("module", "app.registry").Str("peer", string(peer)).Str("role", role.String()).Uint64("gen", link.gen).Msg("created link")
	return link, nil
}

func (r *Registry) removeIf(link *PeerLink) {
	r.mu.Lock()
	if r.links[link.peer] == link {
		delete(r.links, link.peer)
	}
	r.mu.Unlock()
	link.Close()
}

func (r *Registry) Get(peer domain.ParticipantID) (*PeerLink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	link, ok := r.links[peer]
	return link, ok
}

// Remove closes and forgets the link to peer. It reports whether one existed.
func (r *Registry) Remove(peer domain.ParticipantID) bool {
	r.mu.Lock()
	link, ok := r.links[peer]
	delete(r.links, peer)
	r.mu.Unlock()
	if !ok {
		return false
	}
	link.Close()
	log.Info().Str("module", "app.registry").Str("peer", string(peer)).Msg("removed link")
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.links)
}

// All iterates a snapshot of the links ordered by participant id.
func (r *Registry) All() iter.Seq2[domain.ParticipantID, *PeerLink] {
	r.mu.RLock()
	links := make([]*PeerLink, 0, len(r.links))
	for _, l := range r.links {
		links = append(links, l)
	}
	r.mu.RUnlock()
	slices.SortFunc(links, func(a, b *PeerLink) int { return strings.Compare(string(a.peer), string(b.peer)) })

	return func(yield func(domain.ParticipantID, *PeerLink) bool) {
		for _, l := range links {
			if !yield(l.peer, l) {
				return
			}
		}
	}
}

func (r *Registry) Snapshot() []domain.LinkInfo {
	out := make([]domain.LinkInfo, 0, r.Len())
	for _, l := range r.All() {
		out = append(out, l.Info())
	}
	return out
}

// CloseAll closes every link concurrently and empties the registry.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	links := r.links
	r.links = make(map[domain.ParticipantID]*PeerLink)
	r.mu.Unlock()

	var wg conc.WaitGroup
	for _, l := range links {
		wg.Go(l.Close)
	}
	wg.Wait()
	log.Info().Str("module", "app.registry").Int("links", len(links)).Msg("closed all links")
}
