package core

import "github.com/dkeye/voicemesh/internal/domain"

// Observer is the presentation-facing callback surface of a room.
// Calls arrive from the room's event loop and must not block for long.
// Leaving the room from a callback has to happen on another goroutine:
// Leave waits for the loop that is running the callback.
type Observer interface {
	OnParticipantMediaAvailable(id domain.ParticipantID, bundle TrackBundle)
	OnParticipantJoined(id domain.ParticipantID)
	OnParticipantLeft(id domain.ParticipantID)
	OnConnectionStatusChanged(status domain.Status)
}

// NopObserver ignores every callback. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) OnParticipantMediaAvailable(domain.ParticipantID, TrackBundle) {}
func (NopObserver) OnParticipantJoined(domain.ParticipantID)                      {}
func (NopObserver) OnParticipantLeft(domain.ParticipantID)                        {}
func (NopObserver) OnConnectionStatusChanged(domain.Status)                       {}
