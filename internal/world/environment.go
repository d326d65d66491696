// Environment — the episode controller. It is the sole owner of the flowers
// and the hive; bees reach them only through its methods.
package world

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/google/uuid"

	"github.com/talgya/bee-forage/internal/curriculum"
	"github.com/talgya/bee-forage/internal/entropy"
)

// ErrUnknownFlower reports a flower ID the environment does not own.
var ErrUnknownFlower = errors.New("unknown flower")

// Config holds meadow generation and flower parameters.
type Config struct {
	Seed int64   `mapstructure:"-" json:"seed"`
	DT   float64 `mapstructure:"-" json:"dt"` // Seconds per tick

	FlowerCount int     `mapstructure:"flower_count" json:"flower_count"`
	ClusterSize int     `mapstructure:"cluster_size" json:"cluster_size"`
	ClusterRing Annulus `mapstructure:"cluster_ring" json:"cluster_ring"` // Anchor distance from origin

	FlowerMaxNectar float64 `mapstructure:"flower_max_nectar" json:"flower_max_nectar"`
	RefillDelay     Annulus `mapstructure:"refill_delay" json:"refill_delay"` // Seconds; drawn once per flower
	RefillRate      float64 `mapstructure:"refill_rate" json:"refill_rate"`   // Nectar per second
	FlowerRadius    float64 `mapstructure:"flower_radius" json:"flower_radius"`
	HiveRadius      float64 `mapstructure:"hive_radius" json:"hive_radius"` // Physical contact radius, not the curriculum radius

	ScaleMin       float64 `mapstructure:"scale_min" json:"scale_min"`
	ScaleMax       float64 `mapstructure:"scale_max" json:"scale_max"`
	ScaleFrequency float64 `mapstructure:"scale_frequency" json:"scale_frequency"`
}

// DefaultConfig returns the stock meadow: three flowers in one cluster
// 10–20 units from the hive.
func DefaultConfig() Config {
	return Config{
		Seed:            42,
		DT:              0.02,
		FlowerCount:     3,
		ClusterSize:     3,
		ClusterRing:     Annulus{Min: 10, Max: 20},
		FlowerMaxNectar: 1.0,
		RefillDelay:     Annulus{Min: 4, Max: 7},
		RefillRate:      1.0,
		FlowerRadius:    0.5,
		HiveRadius:      1.5,
		ScaleMin:        0.5,
		ScaleMax:        1.5,
		ScaleFrequency:  0.15,
	}
}

// Presenter receives cosmetic updates. It is optional; simulation state never
// depends on it.
type Presenter interface {
	FlowerScaled(id int, scale float64)
	HiveScored(total float64)
}

// Option configures an Environment.
type Option func(*Environment)

// WithOrigin places the hive and cluster centre somewhere other than (0,0,0).
func WithOrigin(o Vec3) Option {
	return func(e *Environment) { e.origin = o }
}

// WithCurriculum sets where reset snapshots curriculum parameters from.
func WithCurriculum(src curriculum.Source) Option {
	return func(e *Environment) { e.source = src }
}

// WithPresenter attaches a cosmetic sink.
func WithPresenter(p Presenter) Option {
	return func(e *Environment) { e.presenter = p }
}

// Environment owns one meadow: its flowers, hive, clock and curriculum snapshot.
type Environment struct {
	ID string

	cfg       Config
	origin    Vec3
	clock     Clock
	rng       *rand.Rand
	scales    *ScaleField
	flowers   []*Flower
	clusters  []Cluster
	hive      *Hive
	source    curriculum.Source
	params    curriculum.Params
	episode   int
	presenter Presenter
}

// NewEnvironment builds the hive and the initial flowers. Call Reset before
// the first episode.
func NewEnvironment(cfg Config, opts ...Option) *Environment {
	e := &Environment{
		ID:     uuid.NewString(),
		cfg:    cfg,
		clock:  Clock{DT: cfg.DT},
		rng:    entropy.Stream(cfg.Seed, entropy.OffsetPlacement),
		scales: NewScaleField(cfg.Seed+entropy.OffsetScale, cfg.ScaleMin, cfg.ScaleMax, cfg.ScaleFrequency),
		source: curriculum.Fixed(curriculum.Default()),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.params = e.source.Current()
	e.hive = &Hive{Position: e.origin, Radius: cfg.HiveRadius}

	e.instantiateFlowers(cfg.FlowerCount)
	e.clusters = PlaceFlowers(e.rng, e.origin, e.flowers, cfg.ClusterSize, cfg.ClusterRing, SpawnRing)
	for _, f := range e.flowers {
		e.rescale(f)
	}
	return e
}

func (e *Environment) instantiateFlowers(target int) {
	for len(e.flowers) < target {
		delay := e.cfg.RefillDelay.Min
		if e.cfg.RefillDelay.Max > e.cfg.RefillDelay.Min {
			delay += e.rng.Float64() * (e.cfg.RefillDelay.Max - e.cfg.RefillDelay.Min)
		}
		f := NewFlower(len(e.flowers), e.cfg.FlowerMaxNectar, delay, e.cfg.RefillRate)
		e.flowers = append(e.flowers, f)
	}
}

func (e *Environment) rescale(f *Flower) {
	f.Reset(e.scales.Sample(f.Position, e.episode))
	if e.presenter != nil {
		e.presenter.FlowerScaled(f.ID, f.Scale)
	}
}

// SetFlowerCount changes the configured flower count. Growth applies at the
// next reset. Shrinking is refused and reported as false: bees may still
// hold flower IDs.
func (e *Environment) SetFlowerCount(n int) bool {
	if n < len(e.flowers) {
		slog.Warn("flower count shrink ignored",
			"env", e.ID,
			"requested", n,
			"current", len(e.flowers),
		)
		return false
	}
	e.cfg.FlowerCount = n
	return true
}

// Reset starts a new episode: grows the flower set to the configured count,
// re-clusters and refills every flower, empties the hive, and snapshots the
// curriculum parameters for the episode.
func (e *Environment) Reset() {
	e.episode++
	e.params = e.source.Current()

	e.instantiateFlowers(e.cfg.FlowerCount)
	e.clusters = PlaceFlowers(e.rng, e.origin, e.flowers, e.cfg.ClusterSize, e.cfg.ClusterRing, RepositionRing)
	for _, f := range e.flowers {
		e.rescale(f)
	}

	e.hive.Reset()
	if e.presenter != nil {
		e.presenter.HiveScored(0)
	}

	slog.Debug("environment reset",
		"env", e.ID,
		"episode", e.episode,
		"flowers", len(e.flowers),
		"clusters", len(e.clusters),
		"hive_radius", e.params.HiveRadius,
		"use_radius", e.params.UseRadius,
	)
}

// Tick advances the clock and every flower's refill state by one step.
func (e *Environment) Tick() uint64 {
	now := e.clock.Advance()
	for _, f := range e.flowers {
		f.Update(now, e.clock.DT)
	}
	return now
}

// DrainFlower removes nectar from a flower and returns the amount removed.
func (e *Environment) DrainFlower(id int, amount float64) (float64, error) {
	f, err := e.Flower(id)
	if err != nil {
		return 0, err
	}
	return f.Drain(amount, e.clock)
}

// Deposit adds nectar to the hive.
func (e *Environment) Deposit(amount float64) error {
	if err := e.hive.Deposit(amount); err != nil {
		return err
	}
	if e.presenter != nil {
		e.presenter.HiveScored(e.hive.Nectar)
	}
	return nil
}

// Flower returns a flower by ID.
func (e *Environment) Flower(id int) (*Flower, error) {
	if id < 0 || id >= len(e.flowers) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFlower, id)
	}
	return e.flowers[id], nil
}

func (e *Environment) Flowers() []*Flower { return e.flowers }
func (e *Environment) Clusters() []Cluster { return e.clusters }
func (e *Environment) Hive() *Hive { return e.hive }
func (e *Environment) HivePosition() Vec3 { return e.hive.Position }
func (e *Environment) Origin() Vec3 { return e.origin }
func (e *Environment) Curriculum() curriculum.Params { return e.params }
func (e *Environment) Episode() int { return e.episode }
func (e *Environment) Clock() Clock { return e.clock }
func (e *Environment) Now() uint64 { return e.clock.Tick }
func (e *Environment) Config() Config { return e.cfg }

// FlowerView is a copy of one flower's state for reporting.
type FlowerView struct {
	ID        int     `json:"id"`
	Cluster   int     `json:"cluster"`
	Position  Vec3    `json:"position"`
	Scale     float64 `json:"scale"`
	Nectar    float64 `json:"nectar"`
	MaxNectar float64 `json:"max_nectar"`
	Refilling bool    `json:"refilling"`
	Pending   bool    `json:"refill_pending"`
}

// Snapshot is a copy of the environment's state for reporting.
type Snapshot struct {
	ID         string            `json:"id"`
	Episode    int               `json:"episode"`
	Tick       uint64            `json:"tick"`
	Hive       Hive              `json:"hive"`
	Flowers    []FlowerView      `json:"flowers"`
	Clusters   []Cluster         `json:"clusters"`
	Curriculum curriculum.Params `json:"curriculum"`
}

// Snapshot copies the current state.
func (e *Environment) Snapshot() Snapshot {
	flowers := make([]FlowerView, 0, len(e.flowers))
	for _, f := range e.flowers {
		_, pending := f.RefillPending()
		flowers = append(flowers, FlowerView{
			ID:        f.ID,
			Cluster:   f.Cluster,
			Position:  f.Position,
			Scale:     f.Scale,
			Nectar:    f.Nectar,
			MaxNectar: f.MaxNectar,
			Refilling: f.IsRefilling(),
			Pending:   pending,
		})
	}
	clusters := make([]Cluster, len(e.clusters))
	copy(clusters, e.clusters)
	return Snapshot{
		ID:         e.ID,
		Episode:    e.episode,
		Tick:       e.clock.Tick,
		Hive:       *e.hive,
		Flowers:    flowers,
		Clusters:   clusters,
		Curriculum: e.params,
	}
}
