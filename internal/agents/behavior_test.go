package agents

import (
	"math"
	"testing"

	"github.com/talgya/bee-forage/internal/curriculum"
	"github.com/talgya/bee-forage/internal/world"
)

func newMeadow(t *testing.T, flowers int) *world.Environment {
	t.Helper()
	cfg := world.DefaultConfig()
	cfg.FlowerCount = flowers
	env := world.NewEnvironment(cfg)
	env.Reset()
	return env
}

func testParams() Params {
	p := DefaultParams()
	p.StepPenalty = 0
	return p
}

func TestActionFromVector(t *testing.T) {
	tests := []struct {
		name    string
		in      []float64
		want    Action
		wantErr bool
	}{
		{name: "two dims", in: []float64{0.5, -0.25}, want: Action{Thrust: 0.5, Yaw: -0.25}},
		{name: "three dims", in: []float64{1, 0.5, -1}, want: Action{Thrust: 1, Pitch: 0.5, Yaw: -1}},
		{name: "reverse thrust clamps", in: []float64{-3, 0}, want: Action{Thrust: 0}},
		{name: "over range clamps", in: []float64{2, 4, -9}, want: Action{Thrust: 1, Pitch: 1, Yaw: -1}},
		{name: "nan is zero", in: []float64{math.NaN(), math.NaN()}, want: Action{}},
		{name: "too short", in: []float64{1}, wantErr: true},
		{name: "too long", in: []float64{1, 2, 3, 4}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ActionFromVector(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v want %+v", got, tt.want)
			}
		})
	}
}

func TestObserve_LayoutAndLength(t *testing.T) {
	env := newMeadow(t, 3)
	b := NewBee(1, testParams())
	b.Reset(env)
	b.Carried = 0.4

	obs := b.Observe(env)
	if len(obs) != ObservationSize || ObservationSize != 57 {
		t.Fatalf("length: got %d (size %d) want 57", len(obs), ObservationSize)
	}
	if obs[obsCarried] != 0.4 || obs[obsMaxNectar] != 1 {
		t.Fatalf("inventory: got %v, %v", obs[obsCarried], obs[obsMaxNectar])
	}
	if obs[obsForward+2] != 1 {
		t.Fatalf("forward z: got %v want 1", obs[obsForward+2])
	}
	for i := obsRotation; i < obsRotation+3; i++ {
		if obs[i] != -1 {
			t.Fatalf("identity rotation slot %d: got %v want -1", i, obs[i])
		}
	}
	wantDist := b.Params.SpawnOffset.Length()
	if math.Abs(obs[obsHiveDist]-wantDist) > 1e-12 {
		t.Fatalf("hive distance: got %v want %v", obs[obsHiveDist], wantDist)
	}
	dir := world.Vec3{X: obs[obsHiveDir], Y: obs[obsHiveDir+1], Z: obs[obsHiveDir+2]}
	if math.Abs(dir.Length()-1) > 1e-12 {
		t.Fatalf("hive direction not unit: %v", dir)
	}
}

func TestAct(t *testing.T) {
	b := NewBee(1, testParams())

	b.Act(Action{Thrust: 1, Yaw: 1}, 1)
	if b.Yaw != 45 {
		t.Fatalf("yaw: got %v want 45", b.Yaw)
	}
	if math.Abs(b.Velocity.Length()-1) > 1e-12 {
		t.Fatalf("speed: got %v want 1", b.Velocity.Length())
	}

	b.Act(Action{Thrust: -1, Yaw: -1}, 1)
	if b.Velocity != (world.Vec3{}) {
		t.Fatalf("negative thrust moved the bee: %v", b.Velocity)
	}
	if b.Yaw != 0 {
		t.Fatalf("yaw: got %v want 0", b.Yaw)
	}

	// Nose down at ground level stays on the ground.
	b.Position = world.Vec3{}
	b.Pitch = 45
	b.Act(Action{Thrust: 1}, 1)
	if b.Position.Y != 0 {
		t.Fatalf("went below ground: %v", b.Position.Y)
	}

	b.Act(Action{Pitch: 1}, 10)
	if b.Pitch != b.Params.MaxPitch {
		t.Fatalf("pitch: got %v want %v", b.Pitch, b.Params.MaxPitch)
	}
}

func TestShapeReward_ZeroThrustDoublePenalty(t *testing.T) {
	p := DefaultParams()
	p.StepPenalty = 0.01
	b := NewBee(1, p)

	b.ShapeReward(Action{Thrust: 0.5})
	if got := b.TakeReward(); math.Abs(got+0.01) > 1e-12 {
		t.Fatalf("moving: got %v want -0.01", got)
	}
	b.ShapeReward(Action{Thrust: 0})
	if got := b.TakeReward(); math.Abs(got+0.02) > 1e-12 {
		t.Fatalf("idle: got %v want -0.02", got)
	}
}

func TestTakeReward_ClearsAccumulator(t *testing.T) {
	b := NewBee(1, DefaultParams())
	b.ShapeReward(Action{})
	if b.TakeReward() == 0 {
		t.Fatalf("expected a penalty")
	}
	if got := b.TakeReward(); got != 0 {
		t.Fatalf("second read: got %v want 0", got)
	}
}

func TestInteract_DrainTenTicks(t *testing.T) {
	env := newMeadow(t, 1)
	p := testParams()
	p.DrainPerTick = 0.1
	b := NewBee(1, p)
	b.Reset(env)

	flower := env.Flowers()[0]
	b.Position = flower.Position

	total := 0.0
	for i := 0; i < 10; i++ {
		if err := b.Interact(env.Contacts(b.Position, p.Radius), env); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		total += b.TakeReward()
		env.Tick()
	}

	if math.Abs(flower.Nectar) > 1e-9 {
		t.Fatalf("flower: got %v want 0", flower.Nectar)
	}
	if math.Abs(b.Carried-1.0) > 1e-9 || b.Carried > p.MaxNectar {
		t.Fatalf("carried: got %v want 1.0", b.Carried)
	}
	if math.Abs(total-1.0) > 1e-9 {
		t.Fatalf("reward: got %v want 1.0", total)
	}
}

func TestInteract_RewardIsActualDrain(t *testing.T) {
	env := newMeadow(t, 1)
	p := testParams()
	p.DrainPerTick = 0.1
	b := NewBee(1, p)
	b.Reset(env)

	flower := env.Flowers()[0]
	flower.Nectar = 0.03
	b.Position = flower.Position

	if err := b.Interact(env.Contacts(b.Position, p.Radius), env); err != nil {
		t.Fatalf("interact: %v", err)
	}
	if got := b.TakeReward(); math.Abs(got-0.03) > 1e-12 {
		t.Fatalf("reward: got %v want 0.03", got)
	}
	if math.Abs(b.Carried-0.03) > 1e-12 {
		t.Fatalf("carried: got %v want 0.03", b.Carried)
	}
}

func TestInteract_NeverExceedsCapacity(t *testing.T) {
	env := newMeadow(t, 1)
	p := testParams()
	p.DrainPerTick = 0.1
	b := NewBee(1, p)
	b.Reset(env)

	flower := env.Flowers()[0]
	b.Position = flower.Position
	b.Carried = 0.95

	if err := b.Interact(env.Contacts(b.Position, p.Radius), env); err != nil {
		t.Fatalf("interact: %v", err)
	}
	if b.Carried > p.MaxNectar {
		t.Fatalf("carried %v exceeds max %v", b.Carried, p.MaxNectar)
	}
	if got := b.TakeReward(); math.Abs(got-0.05) > 1e-12 {
		t.Fatalf("reward: got %v want 0.05", got)
	}
	if math.Abs(flower.Nectar-0.95) > 1e-12 {
		t.Fatalf("flower lost more than the bee took: %v", flower.Nectar)
	}

	// Full bee leaves the flower alone.
	if err := b.Interact(env.Contacts(b.Position, p.Radius), env); err != nil {
		t.Fatalf("interact: %v", err)
	}
	if b.TakeReward() != 0 || math.Abs(flower.Nectar-0.95) > 1e-12 {
		t.Fatalf("full bee drained flower")
	}
}

func TestInteract_EmptyFlowerIsNoOp(t *testing.T) {
	env := newMeadow(t, 1)
	b := NewBee(1, testParams())
	b.Reset(env)

	flower := env.Flowers()[0]
	if _, err := env.DrainFlower(flower.ID, flower.MaxNectar); err != nil {
		t.Fatalf("drain: %v", err)
	}
	deadline, _ := flower.RefillPending()
	env.Tick()
	env.Tick()

	b.Position = flower.Position
	if err := b.Interact(env.Contacts(b.Position, b.Params.Radius), env); err != nil {
		t.Fatalf("interact: %v", err)
	}
	if b.TakeReward() != 0 || b.Carried != 0 {
		t.Fatalf("empty flower paid out")
	}
	if got, _ := flower.RefillPending(); got != deadline {
		t.Fatalf("refill deadline moved: got %d want %d", got, deadline)
	}
}

func TestInteract_HiveUnloadsEverything(t *testing.T) {
	env := newMeadow(t, 1)
	b := NewBee(1, testParams())
	b.Reset(env)
	b.Carried = 0.7
	b.Position = env.HivePosition()

	if err := b.Interact(env.Contacts(b.Position, b.Params.Radius), env); err != nil {
		t.Fatalf("interact: %v", err)
	}
	if b.Carried != 0 || env.Hive().Nectar != 0.7 {
		t.Fatalf("carried=%v hive=%v", b.Carried, env.Hive().Nectar)
	}
	if got := b.TakeReward(); got != 0.7 {
		t.Fatalf("reward: got %v want 0.7", got)
	}

	// Nothing carried, nothing deposited.
	if err := b.Interact(env.Contacts(b.Position, b.Params.Radius), env); err != nil {
		t.Fatalf("interact: %v", err)
	}
	if env.Hive().Deposits != 1 {
		t.Fatalf("deposits: got %d want 1", env.Hive().Deposits)
	}
}

func TestApplyCurriculum_Radius(t *testing.T) {
	params := curriculum.Params{HiveRadius: 5, UseRadius: true}
	tests := []struct {
		name     string
		distance float64
		params   curriculum.Params
		want     bool
	}{
		{name: "inside radius", distance: 4, params: params, want: true},
		{name: "outside radius", distance: 6, params: params, want: false},
		{name: "radius disabled", distance: 4, params: curriculum.Params{HiveRadius: 5}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newMeadow(t, 0)
			b := NewBee(1, testParams())
			b.Reset(env)
			b.Position = world.Vec3{Z: tt.distance}
			b.Carried = 0.5

			got, err := b.ApplyCurriculum(tt.params, env)
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			if got != tt.want {
				t.Fatalf("deposited: got %v want %v", got, tt.want)
			}
			wantHive := 0.0
			if tt.want {
				wantHive = 0.5
			}
			if env.Hive().Nectar != wantHive {
				t.Fatalf("hive: got %v want %v", env.Hive().Nectar, wantHive)
			}
		})
	}
}

func TestReset_RestoresBeeAndEnvironment(t *testing.T) {
	env := newMeadow(t, 3)
	b := NewBee(1, testParams())
	b.Reset(env)

	b.Position = world.Vec3{X: 12, Y: 3, Z: -4}
	b.Yaw, b.Pitch = 90, 20
	b.Carried = 0.6
	env.Deposit(1.2)
	env.DrainFlower(0, 1)

	b.Reset(env)
	want := env.HivePosition().Add(b.Params.SpawnOffset)
	if b.Position != want || b.Yaw != 0 || b.Pitch != 0 || b.Carried != 0 {
		t.Fatalf("bee: pos=%v yaw=%v pitch=%v carried=%v", b.Position, b.Yaw, b.Pitch, b.Carried)
	}
	if env.Hive().Nectar != 0 {
		t.Fatalf("hive: got %v want 0", env.Hive().Nectar)
	}
	for _, f := range env.Flowers() {
		if f.Nectar != f.MaxNectar || f.IsRefilling() {
			t.Fatalf("flower %d not restored", f.ID)
		}
	}
}

func TestStep_RewardMatchesNectarFlow(t *testing.T) {
	env := newMeadow(t, 3)
	p := DefaultParams()
	p.StepPenalty = 0
	b := NewBee(1, p)
	b.Reset(env)

	flower := env.Flowers()[0]
	b.Position = flower.Position

	total := 0.0
	for i := 0; i < 20; i++ {
		if err := b.Step(Action{}, env.Config().DT, env); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		total += b.TakeReward()
		env.Tick()
	}
	if math.Abs(total-b.Collected) > 1e-12 {
		t.Fatalf("reward %v != collected %v", total, b.Collected)
	}
	if b.Carried < 0 || b.Carried > p.MaxNectar {
		t.Fatalf("carried out of range: %v", b.Carried)
	}
}

func TestSpawner_SequentialIDs(t *testing.T) {
	s := NewSpawner(DefaultParams())
	s.SetNextID(7)
	bees := []*Bee{s.Spawn(), s.Spawn(), s.Spawn()}
	for i, b := range bees {
		if want := AgentID(7 + i); b.ID != want {
			t.Fatalf("bee %d: got id %d want %d", i, b.ID, want)
		}
	}
	if bees[0].Name != "bee-7" {
		t.Fatalf("name: got %q", bees[0].Name)
	}
}
