package engine

import (
	"sync"
	"time"
)

// Clock supplies wall-clock time to the race timer
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time
type SystemClock struct{}

// Now returns time.Now
func (SystemClock) Now() time.Time {
	return time.Now()
}

// ManualClock is a controllable clock for tests and replays
type ManualClock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewManualClock creates a clock frozen at start
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current manual time
func (c *ManualClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// RaceClock is the race timer and Racing -> Finished state machine
type RaceClock struct {
	clock        Clock
	start        time.Time
	elapsed      float64
	state        RaceState
	justFinished bool
}

// NewRaceClock starts a race at the clock's current time
func NewRaceClock(clock Clock) *RaceClock {
	if clock == nil {
		clock = SystemClock{}
	}
	return &RaceClock{
		clock: clock,
		start: clock.Now(),
		state: Racing,
	}
}

// Update refreshes elapsed time and applies a finish trigger. It returns true
// only on the tick the race finishes.
func (rc *RaceClock) Update(finishTriggered bool) bool {
	if rc.state == Finished {
		return false
	}

	elapsed := rc.clock.Now().Sub(rc.start).Seconds()
	// monotonic while racing, even if the wall clock steps back
	if elapsed > rc.elapsed {
		rc.elapsed = elapsed
	}

	if finishTriggered {
		rc.state = Finished
		rc.justFinished = true
		return true
	}
	return false
}

// State returns the current race phase
func (rc *RaceClock) State() RaceState {
	return rc.state
}

// Elapsed returns seconds since start, frozen once finished
func (rc *RaceClock) Elapsed() float64 {
	return rc.elapsed
}

// StartedAt returns the race start time
func (rc *RaceClock) StartedAt() time.Time {
	return rc.start
}

// ConsumeFinished returns true once after the race finishes
func (rc *RaceClock) ConsumeFinished() bool {
	if !rc.justFinished {
		return false
	}
	rc.justFinished = false
	return true
}
