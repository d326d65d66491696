package world

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidAmount reports a negative drain or a non-positive deposit. Both
// indicate an accounting bug in the caller, so they are rejected rather than
// clamped.
var ErrInvalidAmount = errors.New("invalid nectar amount")

// nectarEpsilon absorbs float residue so a drained flower reaches exactly 0.
const nectarEpsilon = 1e-9

// FlowerState is the refill state machine.
type FlowerState uint8

const (
	FlowerIdle      FlowerState = iota // Holding its nectar, possibly waiting on a refill deadline
	FlowerRefilling                    // Gaining nectar every tick
)

// Flower is a depletable nectar source.
type Flower struct {
	ID       int     `json:"id"`
	Cluster  int     `json:"cluster"`
	Position Vec3    `json:"position"`
	Yaw      float64 `json:"yaw"`   // Degrees
	Scale    float64 `json:"scale"` // Cosmetic only

	Nectar      float64 `json:"nectar"`
	MaxNectar   float64 `json:"max_nectar"`
	RefillDelay float64 `json:"refill_delay"` // Seconds from depletion to refill start
	RefillRate  float64 `json:"refill_rate"`  // Nectar per second while refilling

	state    FlowerState
	pending  bool   // A refill deadline is armed
	refillAt uint64 // Tick at which refilling starts
}

// NewFlower creates a full, idle flower.
func NewFlower(id int, maxNectar, refillDelay, refillRate float64) *Flower {
	return &Flower{
		ID:          id,
		Scale:       1,
		Nectar:      maxNectar,
		MaxNectar:   maxNectar,
		RefillDelay: refillDelay,
		RefillRate:  refillRate,
	}
}

// State returns the current refill state.
func (f *Flower) State() FlowerState { return f.state }

// IsRefilling reports whether nectar is increasing this tick.
func (f *Flower) IsRefilling() bool { return f.state == FlowerRefilling }

// RefillPending reports whether a refill deadline is armed, and when.
func (f *Flower) RefillPending() (uint64, bool) { return f.refillAt, f.pending }

// HasNectar reports whether a drain would yield anything.
func (f *Flower) HasNectar() bool { return f.Nectar > 0 }

// Drain removes up to amount nectar and returns what was actually removed.
// Emptying the flower arms the refill deadline. Any drain while refilling, or
// while a deadline is armed, restarts the delay from clock.Tick so a flower
// cannot be topped off mid-refill.
func (f *Flower) Drain(amount float64, clock Clock) (float64, error) {
	if math.IsNaN(amount) || amount < 0 {
		return 0, fmt.Errorf("%w: drain %v from flower %d", ErrInvalidAmount, amount, f.ID)
	}
	if amount == 0 {
		return 0, nil
	}

	if f.Nectar <= 0 {
		if f.pending || f.state == FlowerRefilling {
			f.armRefill(clock)
		}
		return 0, nil
	}

	drained := math.Min(amount, f.Nectar)
	f.Nectar -= drained
	if f.Nectar < nectarEpsilon {
		drained += f.Nectar
		f.Nectar = 0
	}

	if f.state == FlowerRefilling || f.pending || f.Nectar == 0 {
		f.armRefill(clock)
	}
	return drained, nil
}

func (f *Flower) armRefill(clock Clock) {
	f.state = FlowerIdle
	f.pending = true
	f.refillAt = clock.Tick + clock.TicksFor(f.RefillDelay)
}

// Update advances the refill state machine by one tick.
func (f *Flower) Update(now uint64, dt float64) {
	if f.pending && now >= f.refillAt {
		f.pending = false
		f.state = FlowerRefilling
	}
	if f.state != FlowerRefilling {
		return
	}

	f.Nectar += f.RefillRate * dt
	if f.Nectar >= f.MaxNectar {
		f.Nectar = f.MaxNectar
		f.state = FlowerIdle
	}
}

// Reset refills the flower, disarms any deadline, and applies a new scale.
func (f *Flower) Reset(scale float64) {
	f.pending = false
	f.refillAt = 0
	f.state = FlowerIdle
	f.Nectar = f.MaxNectar
	f.Scale = scale
}
