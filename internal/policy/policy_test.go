package policy

import (
	"context"
	"testing"

	"github.com/talgya/bee-forage/internal/agents"
	"github.com/talgya/bee-forage/internal/world"
)

func observation(carried float64, forward, hiveDir world.Vec3, fan []float64) []float64 {
	obs := make([]float64, 0, agents.ObservationSize)
	obs = append(obs, carried, 1)
	obs = append(obs, forward.X, forward.Y, forward.Z)
	obs = append(obs, -1, -1, -1)
	obs = append(obs, 5)
	obs = append(obs, hiveDir.X, hiveDir.Y, hiveDir.Z)
	return append(obs, fan...)
}

func emptyFan() []float64 {
	stride := len(world.FanTags) + 2
	fan := make([]float64, len(world.FanAngles)*stride)
	for i := range world.FanAngles {
		fan[i*stride+len(world.FanTags)] = 1
	}
	return fan
}

func TestHeuristic_FullBeeTurnsHome(t *testing.T) {
	tests := []struct {
		name    string
		hiveDir world.Vec3
		wantYaw float64
	}{
		{name: "hive ahead", hiveDir: world.Vec3{Z: 1}, wantYaw: 0},
		{name: "hive right", hiveDir: world.Vec3{X: 1}, wantYaw: 1},
		{name: "hive left", hiveDir: world.Vec3{X: -1}, wantYaw: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := observation(1, world.Forward, tt.hiveDir, emptyFan())
			a, err := Heuristic{}.Act(context.Background(), obs, false)
			if err != nil {
				t.Fatalf("act: %v", err)
			}
			if a.Thrust != 1 || a.Yaw != tt.wantYaw {
				t.Fatalf("got %+v want thrust 1 yaw %v", a, tt.wantYaw)
			}
		})
	}
}

func TestHeuristic_SteersAtNearestFlower(t *testing.T) {
	fan := emptyFan()
	stride := len(world.FanTags) + 2
	hit := func(ray int, dist float64) {
		slot := fan[ray*stride : (ray+1)*stride]
		slot[0], slot[len(world.FanTags)], slot[stride-1] = 1, 0, dist
	}
	hit(1, 0.4) // 45 degrees, right of ahead
	hit(7, 0.8) // 135 degrees, further away

	obs := observation(0, world.Forward, world.Vec3{Z: -1}, fan)
	a, err := Heuristic{}.Act(context.Background(), obs, false)
	if err != nil {
		t.Fatalf("act: %v", err)
	}
	if a.Yaw != 1 {
		t.Fatalf("yaw: got %v want 1", a.Yaw)
	}
}

func TestHeuristic_RejectsShortObservation(t *testing.T) {
	if _, err := (Heuristic{}).Act(context.Background(), []float64{1, 2}, false); err == nil {
		t.Fatalf("expected error")
	}
}

func TestHeuristic_ForagesAFlowerAhead(t *testing.T) {
	cfg := world.DefaultConfig()
	cfg.FlowerCount = 1
	env := world.NewEnvironment(cfg)
	bee := agents.NewBee(1, agents.DefaultParams())
	bee.Reset(env)

	flower := env.Flowers()[0]
	bee.Position = flower.Position.Sub(world.Vec3{Z: 3})

	var h Heuristic
	for i := 0; i < 400; i++ {
		a, err := h.Act(context.Background(), bee.Observe(env), false)
		if err != nil {
			t.Fatalf("act: %v", err)
		}
		if err := bee.Step(a, cfg.DT, env); err != nil {
			t.Fatalf("step: %v", err)
		}
		env.Tick()
	}
	if bee.Collected <= 0 {
		t.Fatalf("heuristic never reached the flower")
	}
}

func TestRandom_DeterministicPerSeed(t *testing.T) {
	a, b := NewRandom(9), NewRandom(9)
	for i := 0; i < 50; i++ {
		x, _ := a.Act(context.Background(), nil, false)
		y, _ := b.Act(context.Background(), nil, false)
		if x != y {
			t.Fatalf("step %d: %+v != %+v", i, x, y)
		}
		if x.Thrust < 0 || x.Thrust > 1 || x.Yaw < -1 || x.Yaw > 1 {
			t.Fatalf("out of range: %+v", x)
		}
	}
}

func TestNew(t *testing.T) {
	for _, name := range []string{"heuristic", "random"} {
		p, ok := New(name, 1)
		if !ok || p.Name() != name {
			t.Fatalf("%s: got %v, %v", name, p, ok)
		}
	}
	if _, ok := New("nope", 1); ok {
		t.Fatalf("unknown policy accepted")
	}
}
