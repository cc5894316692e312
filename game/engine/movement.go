package engine

import "math"

// CollisionResolver corrects a desired displacement so the footprint never
// enters a wall. Implementations must return the zero vector when no valid
// move exists.
type CollisionResolver interface {
	ResolveCollision(footprint Rect, delta Vec2) Vec2
}

// HeadingDelta returns the rotation for one tick. Left is negative, right is
// positive and holding both cancels out.
func HeadingDelta(in InputFlags, rotationSpeed float64) float64 {
	if in.Left == in.Right {
		return 0
	}
	if in.Left {
		return -rotationSpeed
	}
	return rotationSpeed
}

// Displacement returns the per-tick movement for a heading (degrees, 0 = +Y,
// clockwise) and signed speed. Inside the dead-zone it is exactly zero.
func Displacement(heading, speed float64) Vec2 {
	if math.Abs(speed) <= MotionDeadZone || math.IsNaN(speed) {
		return Vec2{}
	}
	rad := heading * math.Pi / 180
	return Vec2{X: math.Sin(rad) * speed, Y: math.Cos(rad) * speed}
}

// Step advances the vehicle pose by one tick. The move uses the heading the
// car had at the start of the tick; the rotation is applied afterwards.
// A nil resolver means open ground.
func Step(v *Vehicle, in InputFlags, resolver CollisionResolver) Pose {
	delta := Displacement(v.Heading, v.Speed)
	if !delta.IsZero() && resolver != nil {
		delta = resolver.ResolveCollision(v.Footprint(), delta)
		if math.IsNaN(delta.X) || math.IsNaN(delta.Y) {
			delta = Vec2{}
		}
	}

	v.Position = v.Position.Add(delta)
	v.Heading = normalizeHeading(v.Heading + HeadingDelta(in, v.RotationSpeed))
	return v.Pose()
}
