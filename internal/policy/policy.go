// Package policy provides in-process stand-ins for the external policy: a
// scripted forager for smoke runs and baselines, and a seeded random policy.
// Remote policies speak the websocket protocol instead.
package policy

import (
	"context"
	"math"
	"math/rand"

	"github.com/talgya/bee-forage/internal/agents"
	"github.com/talgya/bee-forage/internal/entropy"
	"github.com/talgya/bee-forage/internal/world"
)

// Policy maps an observation to an action. done is true on the last
// observation of an episode; the action returned for it is discarded.
type Policy interface {
	Name() string
	Act(ctx context.Context, obs []float64, done bool) (agents.Action, error)
}

// New returns a built-in policy by name: "heuristic" or "random".
func New(name string, seed int64) (Policy, bool) {
	switch name {
	case "heuristic":
		return Heuristic{}, true
	case "random":
		return NewRandom(seed), true
	default:
		return nil, false
	}
}

// Heuristic flies to the nearest flower it can see, drinks until full, then
// heads home. With nothing in sight it sweeps a wide circle.
type Heuristic struct {
	// FullAt is the fraction of capacity that sends the bee home. Zero means 1.
	FullAt float64
}

func (Heuristic) Name() string { return "heuristic" }

// Act decides from the observation alone.
func (h Heuristic) Act(_ context.Context, obs []float64, done bool) (agents.Action, error) {
	o, err := agents.DecodeObservation(obs)
	if err != nil {
		return agents.Action{}, err
	}
	if done {
		return agents.Action{}, nil
	}

	full := h.FullAt
	if full <= 0 {
		full = 1
	}
	if o.Carried >= o.MaxNectar*full-1e-9 {
		return steerToward(o.Forward, o.HiveDirection), nil
	}

	if angle, dist, ok := nearestFlower(o.Fan); ok {
		// Slow down on final approach so the bee settles on the flower.
		thrust := math.Min(1, 0.2+dist*4)
		return agents.Action{Thrust: thrust, Yaw: (90 - angle) / 45}.Clamped(), nil
	}
	return agents.Action{Thrust: 1, Yaw: 0.1}, nil
}

// nearestFlower returns the fan angle and normalized distance of the closest
// flower hit.
func nearestFlower(fan []float64) (float64, float64, bool) {
	stride := len(world.FanTags) + 2
	best, bestAngle := math.Inf(1), 0.0
	for i, a := range world.FanAngles {
		slot := fan[i*stride : (i+1)*stride]
		if slot[0] != 1 { // world.FanTags[0] is TagFlower
			continue
		}
		d := slot[len(slot)-1]
		// Ties go to the ray nearest dead ahead; inside a flower every ray reads 0.
		if d < best || (d == best && math.Abs(a-90) < math.Abs(bestAngle-90)) {
			best, bestAngle = d, a
		}
	}
	if math.IsInf(best, 1) {
		return 0, 0, false
	}
	return bestAngle, best, true
}

// steerToward turns a planar heading toward dir at full thrust.
func steerToward(forward, dir world.Vec3) agents.Action {
	current := math.Atan2(forward.X, forward.Z) * 180 / math.Pi
	target := math.Atan2(dir.X, dir.Z) * 180 / math.Pi
	delta := world.WrapDegrees(target-current+180) - 180
	return agents.Action{Thrust: 1, Yaw: delta / 45}.Clamped()
}

// Random samples actions uniformly. It is deterministic for a given seed.
type Random struct {
	rng *rand.Rand
}

// NewRandom creates a random policy on its own entropy stream.
func NewRandom(seed int64) *Random {
	return &Random{rng: entropy.Stream(seed, entropy.OffsetPolicy)}
}

func (*Random) Name() string { return "random" }

// Act ignores the observation.
func (r *Random) Act(_ context.Context, _ []float64, _ bool) (agents.Action, error) {
	return agents.Action{
		Thrust: r.rng.Float64(),
		Yaw:    r.rng.Float64()*2 - 1,
	}, nil
}
