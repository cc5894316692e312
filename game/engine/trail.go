package engine

import "math"

// DefaultWheelOffsets are the rear left and rear right wheel positions in
// vehicle-local space
var DefaultWheelOffsets = []Vec2{
	{X: 25, Y: -15},
	{X: -25, Y: -15},
}

const (
	particleSpread      = 1.2
	particleMinLifetime = 0.3
	particleMaxLifetime = 0.5
	particleStartAlpha  = 180.0
)

// RandSource is the subset of *rand.Rand the trail needs
type RandSource interface {
	Float64() float64
}

// Particle is one fading smoke puff
type Particle struct {
	Position Vec2
	Velocity Vec2
	Age      float64
	Lifetime float64
}

// Alpha fades linearly from the start alpha to zero over the lifetime
func (p *Particle) Alpha() float64 {
	if p.Lifetime <= 0 {
		return 0
	}
	a := particleStartAlpha * (1 - p.Age/p.Lifetime)
	if a < 0 {
		return 0
	}
	return a
}

// WheelEmitter pairs an emitter with the vehicle it follows and its fixed
// local offset
type WheelEmitter struct {
	OwnerVehicleID string
	LocalOffset    Vec2
	Position       Vec2
	Maintain       int
	Particles      []Particle
}

// WheelTrailController owns every wheel emitter, keyed by owner vehicle.
// It is cosmetic: nothing it does feeds back into motion or the race.
type WheelTrailController struct {
	offsets  []Vec2
	maintain int
	rng      RandSource
	emitters map[string][]*WheelEmitter
}

// NewWheelTrailController creates an idle controller. A nil rng disables
// particles but emitters still track the wheels.
func NewWheelTrailController(offsets []Vec2, maintain int, rng RandSource) *WheelTrailController {
	if len(offsets) == 0 {
		offsets = DefaultWheelOffsets
	}
	if maintain < 0 {
		maintain = 0
	}
	return &WheelTrailController{
		offsets:  offsets,
		maintain: maintain,
		rng:      rng,
		emitters: make(map[string][]*WheelEmitter),
	}
}

// Activate attaches emitters to the vehicle. Returns false if they were
// already attached.
func (c *WheelTrailController) Activate(v *Vehicle) bool {
	if _, ok := c.emitters[v.ID]; ok {
		return false
	}
	list := make([]*WheelEmitter, 0, len(c.offsets))
	for _, off := range c.offsets {
		e := &WheelEmitter{
			OwnerVehicleID: v.ID,
			LocalOffset:    off,
			Maintain:       c.maintain,
		}
		e.Position = WheelPosition(v.Pose(), off)
		list = append(list, e)
	}
	c.emitters[v.ID] = list
	return true
}

// Active reports whether the vehicle has emitters
func (c *WheelTrailController) Active(vehicleID string) bool {
	_, ok := c.emitters[vehicleID]
	return ok
}

// Update re-anchors the vehicle's emitters and ages their particles
func (c *WheelTrailController) Update(v *Vehicle, dt float64) {
	list, ok := c.emitters[v.ID]
	if !ok {
		return
	}
	if dt < 0 || math.IsNaN(dt) {
		dt = 0
	}
	pose := v.Pose()
	for _, e := range list {
		e.Position = WheelPosition(pose, e.LocalOffset)
		c.ageParticles(e, dt)
		c.refill(e)
	}
}

// Poses returns the world placement of each emitter of the vehicle
func (c *WheelTrailController) Poses(vehicleID string) []EmitterPose {
	list := c.emitters[vehicleID]
	poses := make([]EmitterPose, 0, len(list))
	for _, e := range list {
		poses = append(poses, EmitterPose{
			OwnerVehicleID: e.OwnerVehicleID,
			Position:       e.Position,
			Active:         true,
		})
	}
	return poses
}

// Particles returns a render copy of every live particle of the vehicle
func (c *WheelTrailController) Particles(vehicleID string) []ParticleView {
	var out []ParticleView
	for _, e := range c.emitters[vehicleID] {
		for i := range e.Particles {
			p := &e.Particles[i]
			out = append(out, ParticleView{Position: p.Position, Alpha: p.Alpha()})
		}
	}
	return out
}

func (c *WheelTrailController) ageParticles(e *WheelEmitter, dt float64) {
	alive := e.Particles[:0]
	for _, p := range e.Particles {
		p.Age += dt
		if p.Age >= p.Lifetime {
			continue
		}
		p.Position = p.Position.Add(p.Velocity)
		alive = append(alive, p)
	}
	e.Particles = alive
}

func (c *WheelTrailController) refill(e *WheelEmitter) {
	if c.rng == nil {
		return
	}
	for len(e.Particles) < e.Maintain {
		e.Particles = append(e.Particles, Particle{
			Position: e.Position,
			Velocity: c.randInCircle(particleSpread),
			Lifetime: particleMinLifetime + c.rng.Float64()*(particleMaxLifetime-particleMinLifetime),
		})
	}
}

func (c *WheelTrailController) randInCircle(radius float64) Vec2 {
	angle := c.rng.Float64() * 2 * math.Pi
	r := radius * math.Sqrt(c.rng.Float64())
	return Vec2{X: math.Cos(angle) * r, Y: math.Sin(angle) * r}
}

// WheelPosition rotates a local offset by the heading and adds the vehicle
// position: (ox cos t - oy sin t, ox sin t + oy cos t).
func WheelPosition(pose Pose, offset Vec2) Vec2 {
	rad := pose.Heading * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	return Vec2{
		X: pose.Position.X + offset.X*cos - offset.Y*sin,
		Y: pose.Position.Y + offset.X*sin + offset.Y*cos,
	}
}
