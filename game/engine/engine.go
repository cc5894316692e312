package engine

import (
	"math"

	"github.com/google/uuid"
)

// Engine is the contract presentation layers and services drive a race through
type Engine interface {
	// Tick advances the world by dt seconds with the given held keys
	Tick(dt float64, input InputFlags) TickResult
	IsFinished() bool
	Result() RaceResult
	Snapshot() Snapshot

	// ConsumeFinished reports the finish transition exactly once
	ConsumeFinished() bool
}

// TrackGeometry is everything the core asks of the Track Geometry Provider
type TrackGeometry interface {
	CollisionResolver
	ZoneQuery
}

// TickResult summarises one tick for callers that do not need a full snapshot
type TickResult struct {
	State        RaceState  `json:"state"`
	Zones        ZoneResult `json:"zones"`
	JustFinished bool       `json:"just_finished"`
	Advanced     bool       `json:"advanced"`
}

// Race is a single race session. It owns the vehicle, timer, camera and wheel
// trails and is updated synchronously by exactly one caller.
type Race struct {
	opts     RaceOptions
	vehicle  *Vehicle
	clock    *RaceClock
	camera   CameraState
	trail    *WheelTrailController
	geometry TrackGeometry
	tick     int64
}

// NewRace builds a race at the spawn pose, or at the origin when the track
// has none
func NewRace(opts RaceOptions) (*Race, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	spawn := Pose{}
	if opts.Spawn != nil {
		spawn = *opts.Spawn
	}

	id := opts.VehicleID
	if id == "" {
		id = uuid.NewString()
	}

	vehicle := &Vehicle{
		ID:            id,
		Position:      spawn.Position,
		Heading:       normalizeHeading(spawn.Heading),
		RotationSpeed: opts.RotationSpeed,
		HalfSize:      opts.FootprintHalfSize,
	}

	return &Race{
		opts:     opts,
		vehicle:  vehicle,
		clock:    NewRaceClock(opts.Clock),
		camera:   CameraState{Anchor: spawn.Position, Alpha: opts.CameraAlpha},
		trail:    NewWheelTrailController(opts.WheelOffsets, opts.ParticleCount, opts.Rand),
		geometry: opts.Geometry,
	}, nil
}

// Tick runs one frame in fixed order: speed, motion and collision, zones,
// race state, camera, wheel trails. Once finished it changes nothing.
func (r *Race) Tick(dt float64, input InputFlags) TickResult {
	if r.clock.State() == Finished {
		return TickResult{State: Finished}
	}
	if dt < 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		dt = 0
	}

	v := r.vehicle
	v.Speed, v.TargetSpeed = UpdateSpeed(dt, input, v.OnSlowRoad, v.Speed, r.opts.Params)

	Step(v, input, r.geometry)

	zones := DetectZones(v.Footprint(), r.geometry, r.clock.State())
	v.OnSlowRoad = zones.OnSlowRoad

	justFinished := r.clock.Update(zones.FinishTriggered)

	// the finishing tick still belongs to the race, later ticks are frozen
	r.camera.Anchor = FollowCamera(r.camera.Anchor, v.Position, r.camera.Alpha)

	if input.Moving() {
		r.trail.Activate(v)
	}
	r.trail.Update(v, dt)

	r.tick++
	return TickResult{
		State:        r.clock.State(),
		Zones:        zones,
		JustFinished: justFinished,
		Advanced:     true,
	}
}

// IsFinished reports whether the race reached the finish
func (r *Race) IsFinished() bool {
	return r.clock.State() == Finished
}

// ConsumeFinished returns true once, after the finish transition
func (r *Race) ConsumeFinished() bool {
	return r.clock.ConsumeFinished()
}

// Result returns the elapsed time and difficulty of the race
func (r *Race) Result() RaceResult {
	return RaceResult{
		ElapsedTime: r.clock.Elapsed(),
		Difficulty:  r.opts.Difficulty,
		TrackID:     r.opts.TrackID,
		Finished:    r.IsFinished(),
	}
}

// Snapshot returns a copy of everything a renderer needs
func (r *Race) Snapshot() Snapshot {
	v := r.vehicle
	return Snapshot{
		VehicleID:    v.ID,
		Position:     v.Position,
		Heading:      v.Heading,
		Speed:        v.Speed,
		TargetSpeed:  v.TargetSpeed,
		OnSlowRoad:   v.OnSlowRoad,
		RaceState:    r.clock.State(),
		ElapsedTime:  r.clock.Elapsed(),
		CameraAnchor: r.camera.Anchor,
		Wheels:       r.trail.Poses(v.ID),
		Particles:    r.trail.Particles(v.ID),
		Tick:         r.tick,
		Difficulty:   r.opts.Difficulty,
		TrackID:      r.opts.TrackID,
	}
}

// Vehicle returns a copy of the player vehicle
func (r *Race) Vehicle() Vehicle {
	return *r.vehicle
}

// Camera returns the camera state
func (r *Race) Camera() CameraState {
	return r.camera
}

// Options returns the options the race was built with, used to start a
// fresh race on restart
func (r *Race) Options() RaceOptions {
	return r.opts
}
