package engine

import "math"

// ZoneKind tags a static region of the track
type ZoneKind string

const (
	ZoneRoad     ZoneKind = "road"
	ZoneSlowRoad ZoneKind = "slow_road"
	ZoneFinish   ZoneKind = "finish"
	ZoneWall     ZoneKind = "wall"
)

// RaceState is the race phase. Finished is terminal.
type RaceState string

const (
	Racing   RaceState = "racing"
	Finished RaceState = "finished"
)

const (
	// Tuning carried over from the arcade build
	PlayerMaxSpeed      = 10.0
	PlayerMinSpeed      = 2.0
	PlayerBurst         = 0.3
	PlayerDeceleration  = 0.2
	PlayerRotationSpeed = 5.0
	SlowRoadFactor      = 0.4
	ReverseFactor       = 0.5
	CameraLerp          = 0.12

	// SpeedSnapEpsilon is the distance to target below which speed snaps to target.
	SpeedSnapEpsilon = 0.1
	// MotionDeadZone is the speed magnitude at or below which the vehicle does not move.
	MotionDeadZone = 0.1
	// ReferenceTickRate normalises accel/decel rates to a 60 Hz frame.
	ReferenceTickRate = 60.0

	DefaultFootprintHalfSize = 14.0
	DefaultParticleCount     = 20
)

// Vec2 is a point or displacement in world space
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns v+o
func (v Vec2) Add(o Vec2) Vec2 {
	return Vec2{X: v.X + o.X, Y: v.Y + o.Y}
}

// Sub returns v-o
func (v Vec2) Sub(o Vec2) Vec2 {
	return Vec2{X: v.X - o.X, Y: v.Y - o.Y}
}

// Scale returns v*s
func (v Vec2) Scale(s float64) Vec2 {
	return Vec2{X: v.X * s, Y: v.Y * s}
}

// IsZero reports whether both components are exactly zero
func (v Vec2) IsZero() bool {
	return v.X == 0 && v.Y == 0
}

// Rect is an axis-aligned box. Edges that only touch do not overlap.
type Rect struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// RectAround returns the square box of half extent h centred on c
func RectAround(c Vec2, h float64) Rect {
	return Rect{MinX: c.X - h, MinY: c.Y - h, MaxX: c.X + h, MaxY: c.Y + h}
}

// Overlaps reports whether r and o share interior area
func (r Rect) Overlaps(o Rect) bool {
	return r.MinX < o.MaxX && r.MaxX > o.MinX && r.MinY < o.MaxY && r.MaxY > o.MinY
}

// Translate shifts the box by d
func (r Rect) Translate(d Vec2) Rect {
	return Rect{MinX: r.MinX + d.X, MinY: r.MinY + d.Y, MaxX: r.MaxX + d.X, MaxY: r.MaxY + d.Y}
}

// Center returns the midpoint of the box
func (r Rect) Center() Vec2 {
	return Vec2{X: (r.MinX + r.MaxX) / 2, Y: (r.MinY + r.MaxY) / 2}
}

// Pose is a position plus heading in degrees
type Pose struct {
	Position Vec2    `json:"position"`
	Heading  float64 `json:"heading"`
}

// InputFlags are the four driving keys. The core only reads them.
type InputFlags struct {
	Forward  bool `json:"forward"`
	Backward bool `json:"backward"`
	Left     bool `json:"left"`
	Right    bool `json:"right"`
}

// Moving reports whether a throttle key is held
func (in InputFlags) Moving() bool {
	return in.Forward || in.Backward
}

// SpeedParams are the tuning values the Speed Controller reads
type SpeedParams struct {
	MaxSpeed       float64 `json:"max_speed"`
	Burst          float64 `json:"burst"`
	Decel          float64 `json:"decel"`
	MinSpeed       float64 `json:"min_speed"`
	SlowRoadFactor float64 `json:"slow_road_factor"`
	ReverseFactor  float64 `json:"reverse_factor"`
}

// DefaultSpeedParams returns the arcade tuning scaled by the difficulty factors
func DefaultSpeedParams(maxSpeedFactor, burstFactor float64) SpeedParams {
	return SpeedParams{
		MaxSpeed:       PlayerMaxSpeed * maxSpeedFactor,
		Burst:          PlayerBurst * burstFactor,
		Decel:          PlayerDeceleration,
		MinSpeed:       PlayerMinSpeed,
		SlowRoadFactor: SlowRoadFactor,
		ReverseFactor:  ReverseFactor,
	}
}

// Vehicle is the player car. It is owned by a single Race.
type Vehicle struct {
	ID            string  `json:"id"`
	Position      Vec2    `json:"position"`
	Heading       float64 `json:"heading"`
	Speed         float64 `json:"speed"`
	TargetSpeed   float64 `json:"target_speed"`
	RotationSpeed float64 `json:"rotation_speed"`
	HalfSize      float64 `json:"half_size"`
	OnSlowRoad    bool    `json:"on_slow_road"`
}

// Footprint returns the collision box at the current position
func (v *Vehicle) Footprint() Rect {
	return RectAround(v.Position, v.HalfSize)
}

// Pose returns the vehicle position and heading
func (v *Vehicle) Pose() Pose {
	return Pose{Position: v.Position, Heading: v.Heading}
}

// CameraState is the smoothed viewport anchor
type CameraState struct {
	Anchor Vec2    `json:"anchor"`
	Alpha  float64 `json:"alpha"`
}

// EmitterPose is the world placement of one wheel emitter
type EmitterPose struct {
	OwnerVehicleID string `json:"owner_vehicle_id"`
	Position       Vec2   `json:"position"`
	Active         bool   `json:"active"`
}

// ParticleView is a render-only copy of a trail particle
type ParticleView struct {
	Position Vec2    `json:"position"`
	Alpha    float64 `json:"alpha"`
}

// Snapshot is the read-only per-tick view handed to presentation layers
type Snapshot struct {
	VehicleID    string         `json:"vehicle_id"`
	Position     Vec2           `json:"position"`
	Heading      float64        `json:"heading"`
	Speed        float64        `json:"speed"`
	TargetSpeed  float64        `json:"target_speed"`
	OnSlowRoad   bool           `json:"on_slow_road"`
	RaceState    RaceState      `json:"race_state"`
	ElapsedTime  float64        `json:"elapsed_time"`
	CameraAnchor Vec2           `json:"camera_anchor"`
	Wheels       []EmitterPose  `json:"wheel_emitter_poses"`
	Particles    []ParticleView `json:"particles,omitempty"`
	Tick         int64          `json:"tick"`
	Difficulty   string         `json:"difficulty"`
	TrackID      string         `json:"track_id"`
}

// RaceResult is what a finished race reports
type RaceResult struct {
	ElapsedTime float64 `json:"elapsed_time"`
	Difficulty  string  `json:"difficulty"`
	TrackID     string  `json:"track_id"`
	Finished    bool    `json:"finished"`
}

// normalizeHeading wraps degrees into [0,360)
func normalizeHeading(h float64) float64 {
	if math.IsNaN(h) || math.IsInf(h, 0) {
		return 0
	}
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	// -tiny + 360 rounds to 360
	if h >= 360 {
		h = 0
	}
	return h
}
