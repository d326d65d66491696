// Package agents provides the bee: its pose and inventory, the observation it
// reports to a policy, and the act/reward/interact step it runs every tick.
package agents

import (
	"fmt"
	"math"

	"github.com/talgya/bee-forage/internal/curriculum"
	"github.com/talgya/bee-forage/internal/world"
)

// AgentID is a unique identifier for a bee.
type AgentID uint64

// Params are the per-bee tunables.
type Params struct {
	MoveSpeed    float64    `mapstructure:"move_speed" json:"move_speed"` // Units per second at full thrust
	TurnRate     float64    `mapstructure:"turn_rate" json:"turn_rate"`   // Degrees per second at full deflection
	MaxPitch     float64    `mapstructure:"max_pitch" json:"max_pitch"`   // Degrees either side of level
	MaxNectar    float64    `mapstructure:"max_nectar" json:"max_nectar"`
	DrainPerTick float64    `mapstructure:"drain_per_tick" json:"drain_per_tick"`
	StepPenalty  float64    `mapstructure:"step_penalty" json:"step_penalty"` // Subtracted every tick; 1/max_steps when zero
	RayDistance  float64    `mapstructure:"ray_distance" json:"ray_distance"`
	SpawnOffset  world.Vec3 `mapstructure:"spawn_offset" json:"spawn_offset"` // From the hive
	Ceiling      float64    `mapstructure:"ceiling" json:"ceiling"`
	Radius       float64    `mapstructure:"radius" json:"radius"` // Contact sphere
}

// DefaultParams returns the stock bee: 1 unit/s, 45°/s, carries one flower's worth.
func DefaultParams() Params {
	return Params{
		MoveSpeed:    1.0,
		TurnRate:     45.0,
		MaxPitch:     60.0,
		MaxNectar:    1.0,
		DrainPerTick: 0.02,
		StepPenalty:  1.0 / 5000,
		RayDistance:  10.0,
		SpawnOffset:  world.Vec3{Z: 3},
		Ceiling:      10.0,
		Radius:       0.25,
	}
}

// Observation layout. The fan block is last and its length follows the fan
// angles and tags in package world.
const (
	obsCarried   = 0
	obsMaxNectar = 1
	obsForward   = 2 // 3 values
	obsRotation  = 5
	obsHiveDist  = 8
	obsHiveDir   = 9
	obsFan       = 12
)

// ObservationSize is the length of every observation vector.
var ObservationSize = obsFan + world.FanSize(world.FanAngles, world.FanTags)

// Action is one policy decision. Thrust is in [0, 1]; Pitch and Yaw are turn
// rates in [-1, 1]. Reset asks for the episode to end after this tick.
type Action struct {
	Thrust float64 `json:"thrust"`
	Pitch  float64 `json:"pitch"`
	Yaw    float64 `json:"yaw"`
	Reset  bool    `json:"reset,omitempty"`
}

// ActionFromVector decodes a policy's continuous action. Two values are
// (thrust, yaw); three are (thrust, pitch, yaw).
func ActionFromVector(v []float64) (Action, error) {
	switch len(v) {
	case 2:
		return Action{Thrust: v[0], Yaw: v[1]}.Clamped(), nil
	case 3:
		return Action{Thrust: v[0], Pitch: v[1], Yaw: v[2]}.Clamped(), nil
	default:
		return Action{}, fmt.Errorf("action vector: want 2 or 3 values, got %d", len(v))
	}
}

// Clamped returns the action with every axis inside its range. NaN becomes 0.
func (a Action) Clamped() Action {
	a.Thrust = clamp(a.Thrust, 0, 1)
	a.Pitch = clamp(a.Pitch, -1, 1)
	a.Yaw = clamp(a.Yaw, -1, 1)
	return a
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}

// View is what a bee may read and touch in its environment. The environment
// stays the sole owner of flowers and the hive.
type View interface {
	HivePosition() world.Vec3
	Curriculum() curriculum.Params
	Perceive(origin world.Vec3, yaw, maxDistance float64, angles []float64, tags []world.Tag) []float64
	Contacts(pos world.Vec3, radius float64) []world.Contact
	Flower(id int) (*world.Flower, error)
	DrainFlower(id int, amount float64) (float64, error)
	Deposit(amount float64) error
}

// EpisodeController is a View that can also restart the episode.
type EpisodeController interface {
	View
	Reset()
}

// Bee is one foraging agent.
type Bee struct {
	ID   AgentID `json:"id"`
	Name string  `json:"name"`

	// Pose
	Position world.Vec3 `json:"position"`
	Velocity world.Vec3 `json:"velocity"`
	Pitch    float64    `json:"pitch"` // Degrees, positive is nose down
	Yaw      float64    `json:"yaw"`   // Degrees in [0, 360)

	// Inventory
	Carried float64 `json:"carried"`

	// Episode tallies
	Collected float64 `json:"collected"`
	Deposited float64 `json:"deposited"`
	Deposits  int     `json:"deposits"`

	Params Params `json:"-"`

	reward float64
}

// NewBee creates a bee at the origin. Call Reset to place it.
func NewBee(id AgentID, p Params) *Bee {
	return &Bee{
		ID:     id,
		Name:   fmt.Sprintf("bee-%d", id),
		Params: p,
	}
}

// Forward returns the bee's heading.
func (b *Bee) Forward() world.Vec3 {
	return world.HeadingVector(b.Pitch, b.Yaw)
}

// Reward returns the accumulated reward without clearing it.
func (b *Bee) Reward() float64 { return b.reward }

// Observation is a decoded observation vector.
type Observation struct {
	Carried       float64
	MaxNectar     float64
	Forward       world.Vec3
	Rotation      world.Vec3 // Normalized pitch, yaw, roll
	HiveDistance  float64
	HiveDirection world.Vec3
	Fan           []float64
}

// DecodeObservation splits an observation vector into its named parts.
func DecodeObservation(obs []float64) (Observation, error) {
	if len(obs) != ObservationSize {
		return Observation{}, fmt.Errorf("observation: want %d values, got %d", ObservationSize, len(obs))
	}
	vec := func(i int) world.Vec3 { return world.Vec3{X: obs[i], Y: obs[i+1], Z: obs[i+2]} }
	return Observation{
		Carried:       obs[obsCarried],
		MaxNectar:     obs[obsMaxNectar],
		Forward:       vec(obsForward),
		Rotation:      vec(obsRotation),
		HiveDistance:  obs[obsHiveDist],
		HiveDirection: vec(obsHiveDir),
		Fan:           obs[obsFan:],
	}, nil
}
