// Package roster holds the participant list the UI renders.
package roster

import (
	"slices"
	"sync"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/rs/zerolog/log"
)

// Participant is a visible remote peer together with its live stream.
type Participant struct {
	domain.Participant
	Stream core.RemoteStream `json:"-"`
}

type Roster struct {
	self domain.SessionID

	mu      sync.RWMutex
	entries []Participant
}

// New returns an empty roster that never lists self.
func New(self domain.SessionID) *Roster {
	return &Roster{self: self}
}

// Publish adds remote or refreshes its name and stream.
// Self and nil streams are ignored; the return value reports a change.
func (r *Roster) Publish(remote domain.SessionID, displayName string, stream core.RemoteStream) bool {
	if remote == r.self || stream == nil {
		return false
	}
	name := domain.DisplayName(displayName, remote)

	r.mu.Lock()
	i := r.indexLocked(remote)
	if i >= 0 {
		r.entries[i].DisplayName = name
		r.entries[i].Stream = stream
	} else {
		r.entries = append(r.entries, Participant{
			Participant: domain.Participant{
				ID:          remote,
				DisplayName: name,
				IsMuted:     true,
				IsVideoOff:  true,
			},
			Stream: stream,
		})
	}
	r.mu.Unlock()

	log.Info().Str("module", "app.roster").Str("remote", string(remote)).Str("name", name).Msg("published")
	return true
}

// Retract removes remote; unknown ids are ignored.
func (r *Roster) Retract(remote domain.SessionID) bool {
	r.mu.Lock()
	i := r.indexLocked(remote)
	if i >= 0 {
		r.entries = slices.Delete(r.entries, i, i+1)
	}
	r.mu.Unlock()
	if i < 0 {
		return false
	}
	log.Info().Str("module", "app.roster").Str("remote", string(remote)).Msg("retracted")
	return true
}

func (r *Roster) indexLocked(remote domain.SessionID) int {
	return slices.IndexFunc(r.entries, func(p Participant) bool { return p.ID == remote })
}

// Snapshot returns the participants in the order they were first published.
func (r *Roster) Snapshot() []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.entries)
}
