// Bee spawning — hands out sequential IDs so every training slot's bee is
// distinguishable in logs, events and episode records.
package agents

import "sync"

// Spawner creates bees for the simulation.
type Spawner struct {
	mu     sync.Mutex
	params Params
	nextID AgentID
}

// NewSpawner creates a spawner that gives every bee the same params.
func NewSpawner(p Params) *Spawner {
	return &Spawner{params: p, nextID: 1}
}

// SetNextID sets the next bee ID to be issued (used when resuming a run).
func (s *Spawner) SetNextID(id AgentID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID = id
}

// Spawn creates one bee. It is unplaced until its first Reset.
func (s *Spawner) Spawn() *Bee {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.mu.Unlock()
	return NewBee(id, s.params)
}
