// Package engine provides the motion and race-state core of the road racer.
//
// The engine package implements:
//   - Speed integration with asymmetric acceleration/deceleration and a minimum-speed floor
//   - Heading and position integration with collision resolution delegated to the track
//   - Slow-road and finish zone detection
//   - The race timer and Racing -> Finished state machine
//   - Exponential camera follow
//   - Cosmetic wheel trail emitters
//
// Core Types:
//
// Race is a single race session and implements the Engine interface. It owns
// the Vehicle, the RaceClock, the CameraState and a WheelTrailController, and
// is updated synchronously once per frame. TrackGeometry is the query
// interface the core calls for collisions and zone overlap; game/track
// provides the implementation.
//
// Usage:
//
//	race, err := engine.NewRace(engine.RaceOptions{
//		Difficulty: "easy",
//		Params:     engine.DefaultSpeedParams(0.8, 0.7),
//		Geometry:   geometry,
//		Spawn:      &spawn,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	result := race.Tick(1.0/60, engine.InputFlags{Forward: true})
//	snap := race.Snapshot()
//
// Tick Order:
//
// Every tick runs Speed Controller, Motion Integrator (plus collision),
// Zone Detector, Race State Machine, Camera Follow and Wheel Trail Controller
// in that order. Once the race is finished Tick is a no-op; a new race is
// started by building a fresh Race.
package engine
