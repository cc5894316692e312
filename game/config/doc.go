// Package config provides track storage and process settings for the road racer.
//
// The config package handles:
//   - Loading track files from the tracks directory, with caching
//   - Building and caching collision geometry per track
//   - Saving validated tracks
//   - Reading settings from roadracer.json and ROADRACER_* environment variables
//   - Resolving difficulty presets to speed parameters and tracks
//
// Track Files:
//
// Each track is a JSON file named after its id, e.g. tracks/track_a.json.
// The layout uses one character per tile:
//
//	#  wall
//	.  road
//	~  slow road
//	F  finish (also road)
//	S  spawn (road, at most one)
//	   empty
//
// Usage:
//
//	v := config.NewViper("")
//	settings, err := config.LoadSettings(v)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	tracks, err := config.NewManager(settings.TracksDir)
//	f, err := tracks.LoadTrack("track_a")
//	g, err := tracks.LoadGeometry("track_a")
//
//	easy, err := settings.Difficulty("easy")
package config
