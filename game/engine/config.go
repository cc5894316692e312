package engine

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidOptions is returned when RaceOptions fail validation
var ErrInvalidOptions = errors.New("invalid race options")

// RaceOptions configures a race. Zero values take the arcade defaults.
type RaceOptions struct {
	Difficulty string
	TrackID    string
	Params     SpeedParams

	// Geometry may be nil for an open field with no walls or zones
	Geometry TrackGeometry
	// Spawn is nil when the track has no spawn marker
	Spawn *Pose

	Clock Clock
	Rand  RandSource

	VehicleID         string
	CameraAlpha       float64
	FootprintHalfSize float64
	RotationSpeed     float64
	WheelOffsets      []Vec2
	// ParticleCount is the number of particles kept alive per wheel. Zero
	// selects DefaultParticleCount; particles are disabled with a nil Rand.
	ParticleCount int
}

// Validate checks the speed tuning and optional overrides
func (o RaceOptions) Validate() error {
	p := o.Params
	if !finitePositive(p.MaxSpeed) {
		return fmt.Errorf("%w: max_speed must be positive, got %v", ErrInvalidOptions, p.MaxSpeed)
	}
	if !finitePositive(p.Burst) {
		return fmt.Errorf("%w: burst must be positive, got %v", ErrInvalidOptions, p.Burst)
	}
	if !finitePositive(p.Decel) {
		return fmt.Errorf("%w: decel must be positive, got %v", ErrInvalidOptions, p.Decel)
	}
	if p.MinSpeed < 0 || math.IsNaN(p.MinSpeed) {
		return fmt.Errorf("%w: min_speed must not be negative, got %v", ErrInvalidOptions, p.MinSpeed)
	}
	if p.SlowRoadFactor < 0 || p.SlowRoadFactor > 1 || math.IsNaN(p.SlowRoadFactor) {
		return fmt.Errorf("%w: slow_road_factor must be in [0,1], got %v", ErrInvalidOptions, p.SlowRoadFactor)
	}
	if p.ReverseFactor < 0 || p.ReverseFactor > 1 || math.IsNaN(p.ReverseFactor) {
		return fmt.Errorf("%w: reverse_factor must be in [0,1], got %v", ErrInvalidOptions, p.ReverseFactor)
	}
	if o.CameraAlpha < 0 || o.CameraAlpha > 1 || math.IsNaN(o.CameraAlpha) {
		return fmt.Errorf("%w: camera alpha must be in (0,1], got %v", ErrInvalidOptions, o.CameraAlpha)
	}
	if o.FootprintHalfSize < 0 || math.IsNaN(o.FootprintHalfSize) {
		return fmt.Errorf("%w: footprint half size must not be negative", ErrInvalidOptions)
	}
	if o.ParticleCount < 0 {
		return fmt.Errorf("%w: particle count must not be negative", ErrInvalidOptions)
	}
	return nil
}

func (o RaceOptions) withDefaults() RaceOptions {
	if o.CameraAlpha == 0 {
		o.CameraAlpha = CameraLerp
	}
	if o.FootprintHalfSize == 0 {
		o.FootprintHalfSize = DefaultFootprintHalfSize
	}
	if o.RotationSpeed == 0 {
		o.RotationSpeed = PlayerRotationSpeed
	}
	if len(o.WheelOffsets) == 0 {
		o.WheelOffsets = DefaultWheelOffsets
	}
	if o.ParticleCount == 0 {
		o.ParticleCount = DefaultParticleCount
	}
	if o.Clock == nil {
		o.Clock = SystemClock{}
	}
	return o
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
