// Package world provides the meadow the bees forage in: flowers, the hive,
// their placement, and the perception and contact queries a bee runs against
// them. Space is continuous and Y-up; the ground is the Y=0 plane.
package world

import "math"

// Vec3 is a point or direction in world space.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Forward is +Z, the heading of an unrotated bee.
var Forward = Vec3{Z: 1}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }
func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

// Length returns the Euclidean norm.
func (v Vec3) Length() float64 {
	return math.Sqrt(v.Dot(v))
}

// Normalized returns the unit vector, or the zero vector for zero input.
func (v Vec3) Normalized() Vec3 {
	l := v.Length()
	if l == 0 {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

// Distance returns the Euclidean distance between two points.
func Distance(a, b Vec3) float64 {
	return a.Sub(b).Length()
}

// HeadingVector returns the unit forward vector for a pitch/yaw pair in
// degrees. Yaw turns about +Y (clockwise seen from above, 0 = +Z); positive
// pitch tips the nose down.
func HeadingVector(pitch, yaw float64) Vec3 {
	p := pitch * math.Pi / 180
	y := yaw * math.Pi / 180
	return Vec3{
		X: math.Sin(y) * math.Cos(p),
		Y: -math.Sin(p),
		Z: math.Cos(y) * math.Cos(p),
	}
}

// PlanarDirection returns the horizontal unit vector for a yaw in degrees.
func PlanarDirection(yaw float64) Vec3 {
	return HeadingVector(0, yaw)
}

// WrapDegrees maps an angle into [0, 360).
func WrapDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// NormalizeEuler maps an angle in [0, 360) onto [-1, 1).
func NormalizeEuler(deg float64) float64 {
	return WrapDegrees(deg)/180 - 1
}
