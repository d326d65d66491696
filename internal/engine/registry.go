package engine

import (
	"sort"
	"sync"
)

// Registry tracks live slots by session ID so the API can list and inspect
// them whichever driver steps them.
type Registry struct {
	mu    sync.RWMutex
	slots map[string]*Simulation
	kinds map[string]string

	flowers int // Flower count applied to slots added later; 0 keeps theirs
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		slots: make(map[string]*Simulation),
		kinds: make(map[string]string),
	}
}

// Add registers a slot. kind names its driver, e.g. "batch" or "remote".
func (r *Registry) Add(s *Simulation, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[s.ID] = s
	r.kinds[s.ID] = kind
	if r.flowers > 0 {
		s.SetFlowerCount(r.flowers)
	}
}

// SetFlowerCount grows every live slot's meadow from its next reset and
// remembers n for slots added later. It returns how many slots took the new
// count and how many refused it because they already have more flowers.
func (r *Registry) SetFlowerCount(n int) (grown, refused int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flowers = n
	for _, s := range r.slots {
		if s.SetFlowerCount(n) {
			grown++
		} else {
			refused++
		}
	}
	return grown, refused
}

// Remove forgets a slot.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.slots, id)
	delete(r.kinds, id)
}

// Get returns a slot by session ID.
func (r *Registry) Get(id string) (*Simulation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.slots[id]
	return s, ok
}

// Len returns the number of live slots.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slots)
}

// SessionInfo summarizes one live slot.
type SessionInfo struct {
	Session string   `json:"session"`
	Kind    string   `json:"kind"`
	Slot    int      `json:"slot"`
	Episode int      `json:"episode"`
	Step    int      `json:"step"`
	Stats   SimStats `json:"stats"`
}

// List returns every live slot ordered by kind, then slot index.
func (r *Registry) List() []SessionInfo {
	r.mu.RLock()
	out := make([]SessionInfo, 0, len(r.slots))
	for id, s := range r.slots {
		last := s.Last()
		out = append(out, SessionInfo{
			Session: id,
			Kind:    r.kinds[id],
			Slot:    s.Slot(),
			Episode: last.Episode,
			Step:    last.Step,
			Stats:   s.Stats(),
		})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		if out[i].Slot != out[j].Slot {
			return out[i].Slot < out[j].Slot
		}
		return out[i].Session < out[j].Session
	})
	return out
}
