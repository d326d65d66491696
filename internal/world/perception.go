// Perception fan and contact queries. These stand in for an engine's raycast
// and collision callbacks: rays are cast on the horizontal plane through the
// bee, and contacts are sphere overlaps.
package world

import "math"

// Tag classifies what a ray or contact touched.
type Tag uint8

const (
	TagNone Tag = iota
	TagFlower
	TagHive
	TagBee // Reserved slot; a single-bee meadow never reports it
)

// String returns the tag name used on the wire and in logs.
func (t Tag) String() string {
	switch t {
	case TagFlower:
		return "flower"
	case TagHive:
		return "hive"
	case TagBee:
		return "bee"
	default:
		return "none"
	}
}

// Fan layout. Angles are degrees from the bee's right side, so 90 is dead
// ahead. Changing either list changes the observation length.
var (
	FanAngles = []float64{20, 45, 60, 75, 90, 105, 120, 135, 160}
	FanTags   = []Tag{TagFlower, TagHive, TagBee}
)

// CastRadius thickens each ray, like a sphere cast.
const CastRadius = 0.5

// FanSize is the number of values Perceive returns: per ray, a one-hot over
// tags, a miss flag, and the hit distance as a fraction of the ray length.
func FanSize(angles []float64, tags []Tag) int {
	return len(angles) * (len(tags) + 2)
}

type obstacle struct {
	tag    Tag
	center Vec3
	radius float64
}

// Perceive casts one ray per angle from origin on the horizontal plane.
func (e *Environment) Perceive(origin Vec3, yaw, maxDistance float64, angles []float64, tags []Tag) []float64 {
	stride := len(tags) + 2
	out := make([]float64, len(angles)*stride)
	obstacles := e.obstacles(tags)

	forward := PlanarDirection(yaw)
	right := PlanarDirection(yaw + 90)

	for i, a := range angles {
		rad := a * math.Pi / 180
		dir := right.Scale(math.Cos(rad)).Add(forward.Scale(math.Sin(rad)))
		slot := out[i*stride : (i+1)*stride]

		hitTag, dist, ok := castRay(origin, dir, maxDistance, obstacles)
		if !ok {
			slot[len(tags)] = 1
			continue
		}
		for j, t := range tags {
			if t == hitTag {
				slot[j] = 1
				break
			}
		}
		slot[len(tags)+1] = dist / maxDistance
	}
	return out
}

func (e *Environment) obstacles(tags []Tag) []obstacle {
	wants := func(t Tag) bool {
		for _, x := range tags {
			if x == t {
				return true
			}
		}
		return false
	}

	var obs []obstacle
	if wants(TagFlower) {
		for _, f := range e.flowers {
			obs = append(obs, obstacle{tag: TagFlower, center: f.Position, radius: e.cfg.FlowerRadius + CastRadius})
		}
	}
	if wants(TagHive) {
		obs = append(obs, obstacle{tag: TagHive, center: e.hive.Position, radius: e.hive.Radius + CastRadius})
	}
	return obs
}

// castRay returns the nearest obstacle hit within maxDistance. The test is
// planar: heights are ignored.
func castRay(origin, dir Vec3, maxDistance float64, obstacles []obstacle) (Tag, float64, bool) {
	best := math.Inf(1)
	bestTag := TagNone
	for _, o := range obstacles {
		ocx := origin.X - o.center.X
		ocz := origin.Z - o.center.Z
		b := ocx*dir.X + ocz*dir.Z
		c := ocx*ocx + ocz*ocz - o.radius*o.radius

		var t float64
		if c <= 0 {
			t = 0
		} else {
			disc := b*b - c
			if disc < 0 {
				continue
			}
			t = -b - math.Sqrt(disc)
			if t < 0 {
				continue
			}
		}
		if t <= maxDistance && t < best {
			best = t
			bestTag = o.tag
		}
	}
	if bestTag == TagNone {
		return TagNone, 0, false
	}
	return bestTag, best, true
}

// Contact is an overlap between a bee and a flower or the hive.
type Contact struct {
	Tag      Tag `json:"tag"`
	FlowerID int `json:"flower_id,omitempty"`
}

// Contacts returns everything a sphere of the given radius at pos overlaps,
// flowers first in ID order, then the hive.
func (e *Environment) Contacts(pos Vec3, radius float64) []Contact {
	var out []Contact
	for _, f := range e.flowers {
		if Distance(pos, f.Position) <= radius+e.cfg.FlowerRadius {
			out = append(out, Contact{Tag: TagFlower, FlowerID: f.ID})
		}
	}
	if Distance(pos, e.hive.Position) <= radius+e.hive.Radius {
		out = append(out, Contact{Tag: TagHive})
	}
	return out
}
