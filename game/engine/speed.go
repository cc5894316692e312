package engine

import "math"

// TargetSpeed derives the speed the car is easing toward.
// Forward wins when both throttle keys are held. On a slow road only a
// positive target is capped; reverse is left alone.
func TargetSpeed(in InputFlags, onSlowRoad bool, p SpeedParams) float64 {
	var target float64
	switch {
	case in.Forward:
		target = p.MaxSpeed
	case in.Backward:
		target = -p.MaxSpeed * p.ReverseFactor
	}

	if onSlowRoad {
		limit := p.MaxSpeed * p.SlowRoadFactor
		if target > limit {
			target = limit
		}
	}
	return target
}

// UpdateSpeed eases current toward the target for one tick and returns the
// new current speed together with the target it used.
func UpdateSpeed(dt float64, in InputFlags, onSlowRoad bool, current float64, p SpeedParams) (float64, float64) {
	target := TargetSpeed(in, onSlowRoad, p)
	return easeSpeed(dt, current, target, p), target
}

func easeSpeed(dt, current, target float64, p SpeedParams) float64 {
	if dt < 0 || math.IsNaN(dt) {
		dt = 0
	}
	step := dt * ReferenceTickRate

	switch {
	case math.Abs(target-current) < SpeedSnapEpsilon:
		current = target
	case target > current:
		current += p.Burst * step
		if current > target {
			current = target
		}
	default:
		current -= p.Decel * step
		if current < target {
			current = target
		}
	}

	// Floor near zero so the car never creeps. The floor is capped by the
	// target so it cannot push past it.
	mag := math.Abs(current)
	if target != 0 && mag > 0 && mag < p.MinSpeed {
		floor := math.Min(p.MinSpeed, math.Abs(target))
		current = math.Copysign(floor, target)
	}
	return current
}
