// Package curriculum holds the training-curriculum parameters that relax the
// depot-contact requirement early in training, and the lesson schedule that
// tightens them as the policy improves.
package curriculum

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// Reset-parameter keys recognized at episode boundaries.
const (
	KeyHiveRadius = "hive_radius"
	KeyUseRadius  = "use_radius"
)

// Defaults applied when a key is missing from the reset parameters.
const (
	DefaultHiveRadius = 6.0
	DefaultUseRadius  = true
)

// ErrInvalidParams reports reset parameters outside their documented ranges.
var ErrInvalidParams = errors.New("invalid curriculum parameters")

// Params is the curriculum state in force for one episode.
type Params struct {
	HiveRadius float64 `json:"hive_radius"`
	UseRadius  bool    `json:"use_radius"`
}

// Default returns the parameters used before any curriculum update arrives.
func Default() Params {
	return Params{HiveRadius: DefaultHiveRadius, UseRadius: DefaultUseRadius}
}

// Validate checks the documented ranges.
func (p Params) Validate() error {
	if math.IsNaN(p.HiveRadius) || math.IsInf(p.HiveRadius, 0) || p.HiveRadius < 0 {
		return fmt.Errorf("%w: hive_radius must be a finite value >= 0, got %v", ErrInvalidParams, p.HiveRadius)
	}
	return nil
}

// InRange reports whether a bee at the given distance from the hive may
// deposit without touching it.
func (p Params) InRange(distance float64) bool {
	return p.UseRadius && distance <= p.HiveRadius
}

// ResetParameters renders the params in the key/value form used by trainers.
func (p Params) ResetParameters() map[string]float64 {
	use := 0.0
	if p.UseRadius {
		use = 1.0
	}
	return map[string]float64{
		KeyHiveRadius: p.HiveRadius,
		KeyUseRadius:  use,
	}
}

// FromResetParameters parses trainer key/value parameters. Missing keys take
// their defaults; unknown keys are ignored.
func FromResetParameters(m map[string]float64) (Params, error) {
	p := Default()
	if v, ok := m[KeyHiveRadius]; ok {
		p.HiveRadius = v
	}
	if v, ok := m[KeyUseRadius]; ok {
		switch v {
		case 0:
			p.UseRadius = false
		case 1:
			p.UseRadius = true
		default:
			return Params{}, fmt.Errorf("%w: use_radius must be 0 or 1, got %v", ErrInvalidParams, v)
		}
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// Source supplies the parameters to snapshot at an episode boundary.
type Source interface {
	Current() Params
}

// Board is the shared, mutable curriculum state. It is written by the
// curriculum collaborator and read by environments only when they reset.
type Board struct {
	mu      sync.RWMutex
	params  Params
	version uint64
}

// NewBoard creates a board holding p.
func NewBoard(p Params) *Board {
	return &Board{params: p}
}

// Current returns the parameters in force.
func (b *Board) Current() Params {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.params
}

// Version increments on every successful Set.
func (b *Board) Version() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

// Set replaces the parameters. Running episodes keep the value they
// snapshotted; the change applies from each environment's next reset.
func (b *Board) Set(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.params = p
	b.version++
	return nil
}

// Fixed is a Source that never changes.
type Fixed Params

// Current implements Source.
func (f Fixed) Current() Params { return Params(f) }
