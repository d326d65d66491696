// Bee behavior — the per-tick loop: observe, act, shape reward, interact.
// A policy sits between Observe and Act; everything after it runs in Step.
package agents

import (
	"errors"
	"fmt"
	"math"

	"github.com/talgya/bee-forage/internal/curriculum"
	"github.com/talgya/bee-forage/internal/world"
)

// carryEpsilon absorbs float residue so a full bee carries exactly MaxNectar.
const carryEpsilon = 1e-9

// Observe encodes the bee's state and perception for a policy. The result
// is always ObservationSize long.
func (b *Bee) Observe(v View) []float64 {
	obs := make([]float64, obsFan, ObservationSize)

	obs[obsCarried] = b.Carried
	obs[obsMaxNectar] = b.Params.MaxNectar

	fwd := b.Forward()
	obs[obsForward], obs[obsForward+1], obs[obsForward+2] = fwd.X, fwd.Y, fwd.Z

	obs[obsRotation] = world.NormalizeEuler(b.Pitch)
	obs[obsRotation+1] = world.NormalizeEuler(b.Yaw)
	obs[obsRotation+2] = world.NormalizeEuler(0) // Bees never roll

	toHive := v.HivePosition().Sub(b.Position)
	obs[obsHiveDist] = toHive.Length()
	dir := toHive.Normalized()
	obs[obsHiveDir], obs[obsHiveDir+1], obs[obsHiveDir+2] = dir.X, dir.Y, dir.Z

	fan := v.Perceive(b.Position, b.Yaw, b.Params.RayDistance, world.FanAngles, world.FanTags)
	return append(obs, fan...)
}

// Act turns the bee and sets its velocity straight from thrust. Motion is a
// direct velocity assignment, so it is independent of mass and friction. The
// ground and the ceiling bound altitude.
func (b *Bee) Act(a Action, dt float64) {
	a = a.Clamped()
	p := b.Params

	b.Yaw = world.WrapDegrees(b.Yaw + a.Yaw*p.TurnRate*dt)
	b.Pitch = math.Max(-p.MaxPitch, math.Min(p.MaxPitch, b.Pitch+a.Pitch*p.TurnRate*dt))

	b.Velocity = b.Forward().Scale(a.Thrust * p.MoveSpeed)
	b.Position = b.Position.Add(b.Velocity.Scale(dt))

	if b.Position.Y < 0 {
		b.Position.Y = 0
	}
	if p.Ceiling > 0 && b.Position.Y > p.Ceiling {
		b.Position.Y = p.Ceiling
	}
}

// ShapeReward applies the per-tick step penalty, twice when the bee did not
// thrust at all.
func (b *Bee) ShapeReward(a Action) {
	a = a.Clamped()
	b.reward -= b.Params.StepPenalty
	if a.Thrust == 0 {
		b.reward -= b.Params.StepPenalty
	}
}

// Interact handles every contact reported this tick. Flowers are sipped while
// the bee has room; touching the hive unloads everything carried.
func (b *Bee) Interact(contacts []world.Contact, v View) error {
	var errs []error
	for _, c := range contacts {
		switch c.Tag {
		case world.TagFlower:
			if err := b.sip(c.FlowerID, v); err != nil {
				errs = append(errs, err)
			}
		case world.TagHive:
			if err := b.unload(v); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (b *Bee) sip(id int, v View) error {
	room := b.Params.MaxNectar - b.Carried
	if room <= 0 {
		return nil
	}
	f, err := v.Flower(id)
	if err != nil {
		return err
	}
	// An empty flower is left alone; draining it would restart its refill delay.
	if !f.HasNectar() {
		return nil
	}

	drained, err := v.DrainFlower(id, math.Min(b.Params.DrainPerTick, room))
	if err != nil {
		return fmt.Errorf("bee %d sip flower %d: %w", b.ID, id, err)
	}
	b.Carried += drained
	if b.Params.MaxNectar-b.Carried < carryEpsilon {
		b.Carried = b.Params.MaxNectar
	}
	b.Collected += drained
	b.reward += drained
	return nil
}

func (b *Bee) unload(v View) error {
	if b.Carried <= 0 {
		return nil
	}
	amount := b.Carried
	if err := v.Deposit(amount); err != nil {
		return fmt.Errorf("bee %d deposit: %w", b.ID, err)
	}
	b.Carried = 0
	b.Deposited += amount
	b.Deposits++
	b.reward += amount
	return nil
}

// ApplyCurriculum unloads at the hive without contact when the curriculum
// radius allows it. It reports whether a deposit happened.
func (b *Bee) ApplyCurriculum(p curriculum.Params, v View) (bool, error) {
	if b.Carried <= 0 || !p.InRange(world.Distance(b.Position, v.HivePosition())) {
		return false, nil
	}
	if err := b.unload(v); err != nil {
		return false, err
	}
	return true, nil
}

// Step runs everything after the policy's decision for one tick: act, shape
// reward, handle contacts, then the curriculum shortcut. Contacts are read
// after the move.
func (b *Bee) Step(a Action, dt float64, v View) error {
	b.Act(a, dt)
	b.ShapeReward(a)
	err := b.Interact(v.Contacts(b.Position, b.Params.Radius), v)
	if _, cerr := b.ApplyCurriculum(v.Curriculum(), v); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}

// TakeReward returns the reward accumulated since the last call and clears it.
func (b *Bee) TakeReward() float64 {
	r := b.reward
	b.reward = 0
	return r
}

// Reset resets the whole environment, then returns the bee to its spawn
// point beside the hive, level and facing +Z, with nothing carried.
func (b *Bee) Reset(c EpisodeController) {
	c.Reset()

	b.Position = c.HivePosition().Add(b.Params.SpawnOffset)
	b.Velocity = world.Vec3{}
	b.Pitch = 0
	b.Yaw = 0
	b.Carried = 0
	b.Collected = 0
	b.Deposited = 0
	b.Deposits = 0
	b.reward = 0
}
