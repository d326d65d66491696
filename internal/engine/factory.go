package engine

import (
	"github.com/talgya/bee-forage/internal/agents"
	"github.com/talgya/bee-forage/internal/curriculum"
	"github.com/talgya/bee-forage/internal/entropy"
	"github.com/talgya/bee-forage/internal/world"
)

// SlotFactory builds slots that share a curriculum source and the run's
// hooks. Each slot gets its own meadow seeded from the run seed and its index.
type SlotFactory struct {
	World    world.Config
	Bee      agents.Params
	MaxSteps int
	Source   curriculum.Source

	Spawner      *agents.Spawner
	Events       *EventLog
	Recorder     Recorder
	OnEpisodeEnd func(EpisodeSummary)
}

// New builds slot number i.
func (f *SlotFactory) New(i int) *Simulation {
	cfg := f.World
	cfg.Seed = entropy.SlotSeed(f.World.Seed, i)

	var opts []world.Option
	if f.Source != nil {
		opts = append(opts, world.WithCurriculum(f.Source))
	}
	env := world.NewEnvironment(cfg, opts...)

	spawner := f.Spawner
	if spawner == nil {
		spawner = agents.NewSpawner(f.Bee)
		spawner.SetNextID(agents.AgentID(i + 1))
	}

	s := NewSimulation(SlotConfig{Slot: i, MaxSteps: f.MaxSteps}, env, spawner.Spawn())
	s.Events = f.Events
	s.Recorder = f.Recorder
	s.OnEpisodeEnd = f.OnEpisodeEnd
	return s
}

// NewN builds slots 0..n-1.
func (f *SlotFactory) NewN(n int) []*Simulation {
	slots := make([]*Simulation, 0, n)
	for i := 0; i < n; i++ {
		slots = append(slots, f.New(i))
	}
	return slots
}
