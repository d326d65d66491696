// Flower placement — scatters flowers in clusters around the environment origin.
package world

import "math/rand"

// Annulus is a ring between two radii on the ground plane.
type Annulus struct {
	Min float64 `json:"min" mapstructure:"min"`
	Max float64 `json:"max" mapstructure:"max"`
}

// Contains reports whether a planar distance falls inside the ring.
func (a Annulus) Contains(d float64) bool {
	return d >= a.Min && d <= a.Max
}

// Rings used inside a cluster. Repositioning on reset keeps flowers a little
// further from the anchor than initial placement does.
var (
	SpawnRing      = Annulus{Min: 1.0, Max: 3.0}
	RepositionRing = Annulus{Min: 1.5, Max: 3.0}
)

// Cluster is one group of flowers sharing an anchor.
type Cluster struct {
	Index     int   `json:"index"`
	Anchor    Vec3  `json:"anchor"`
	FlowerIDs []int `json:"flower_ids"`
}

// RandomOnAnnulus returns a ground-plane point around center at a uniform
// angle in [minAngle, maxAngle) degrees and a uniform radius within ring.
func RandomOnAnnulus(rng *rand.Rand, center Vec3, minAngle, maxAngle float64, ring Annulus) Vec3 {
	radius := ring.Min
	if ring.Max > ring.Min {
		radius = ring.Min + rng.Float64()*(ring.Max-ring.Min)
	}
	angle := minAngle + rng.Float64()*(maxAngle-minAngle)
	return center.Add(PlanarDirection(angle).Scale(radius))
}

// PlaceFlowers positions every flower. Every clusterSize-th flower opens a new
// cluster whose anchor lies on anchorRing around origin; each flower then
// lands on memberRing around its anchor with a fresh random yaw.
func PlaceFlowers(rng *rand.Rand, origin Vec3, flowers []*Flower, clusterSize int, anchorRing, memberRing Annulus) []Cluster {
	if clusterSize < 1 {
		clusterSize = 1
	}

	var clusters []Cluster
	for i, f := range flowers {
		if i%clusterSize == 0 {
			clusters = append(clusters, Cluster{
				Index:  len(clusters),
				Anchor: RandomOnAnnulus(rng, origin, 0, 360, anchorRing),
			})
		}
		c := &clusters[len(clusters)-1]

		f.Cluster = c.Index
		f.Position = RandomOnAnnulus(rng, c.Anchor, 0, 360, memberRing)
		f.Yaw = rng.Float64() * 360
		c.FlowerIDs = append(c.FlowerIDs, f.ID)
	}
	return clusters
}
