// Package api provides the HTTP REST API for the road racer.
//
// Endpoints:
//
// Races:
//   - POST /api/races - Start a race ({"difficulty": "easy"})
//   - GET /api/races - List races (?sort=created|accessed&order=asc|desc&limit=N&difficulty=easy)
//   - GET /api/races/{id} - Race info with its latest snapshot
//   - DELETE /api/races/{id} - Delete a race and stop its live runner
//
// Driving:
//   - GET /api/races/{id}/snapshot - Current render view
//   - PUT /api/races/{id}/input - Replace held keys ({"forward": true, "left": false, ...})
//   - POST /api/races/{id}/tick - Advance ({"dt": 0.0167, "steps": 60, "input": {...}})
//   - POST /api/races/{id}/restart - Fresh race on the same difficulty
//   - GET /api/races/{id}/result - Finish time once the race is over
//   - POST /api/races/{id}/live - Tick on the server at {"hz": 60}
//   - DELETE /api/races/{id}/live - Stop server-side ticking
//
// Catalogue:
//   - GET /api/difficulties - Difficulty presets
//   - GET /api/tracks - Track summaries
//   - GET /api/tracks/{id} - Track file with tile statistics
//   - POST /api/tracks - Validate and save a track
//
// Other:
//   - GET /api/health - Liveness probe
//   - GET /ws?race={id} - WebSocket snapshot stream and input channel
//
// Errors are returned as {"error": "..."} with 404 for unknown races and
// tracks, 400 for invalid requests and 409 when live ticking already runs.
//
// Usage:
//
//	server := api.NewServer(raceService, hub, logger)
//	http.ListenAndServe(":8080", server)
package api
