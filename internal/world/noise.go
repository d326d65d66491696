// Flower scale field — layered simplex noise sampled at a flower's position
// and episode, so scales look organic yet replay identically from a seed.
package world

import (
	opensimplex "github.com/ojrac/opensimplex-go"
)

// ScaleField maps (position, episode) to a flower scale in [Min, Max].
type ScaleField struct {
	Min       float64
	Max       float64
	Frequency float64

	noise opensimplex.Noise
}

// NewScaleField creates a field seeded independently of placement.
func NewScaleField(seed int64, min, max, frequency float64) *ScaleField {
	if frequency <= 0 {
		frequency = 0.15
	}
	return &ScaleField{
		Min:       min,
		Max:       max,
		Frequency: frequency,
		noise:     opensimplex.NewNormalized(seed),
	}
}

// Sample returns the scale for a flower at pos during the given episode.
func (s *ScaleField) Sample(pos Vec3, episode int) float64 {
	n := octaveNoise(s.noise, pos.X, pos.Z, float64(episode), 3, s.Frequency, 0.5)
	scale := s.Min + n*(s.Max-s.Min)
	if scale < s.Min {
		return s.Min
	}
	if scale > s.Max {
		return s.Max
	}
	return scale
}

// octaveNoise layers several frequencies of normalized noise.
func octaveNoise(noise opensimplex.Noise, x, z, w float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval3(x*frequency, z*frequency, w) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
