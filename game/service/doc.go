// Package service provides the race lifecycle layer of the road racer.
//
// The service package implements:
//   - Starting, restarting and deleting races by difficulty
//   - Holding the latest input per race and advancing races on demand
//   - Optional server-side fixed-rate ticking (live mode)
//   - Track and difficulty catalogues
//   - Race metrics through the global OpenTelemetry meter
//
// Core Interfaces:
//
// RaceService is the API the REST, WebSocket and MCP transports call.
// SessionManager stores races, TrackManager loads track files and their
// geometry, and DifficultyCatalog resolves presets such as "easy" and "hard".
//
// Concurrency:
//
// Every operation that touches a race runs under one service lock, so ticks
// from a live runner and ticks requested over HTTP never interleave. Live
// runners are goroutines with their own cancellable context; StopLive and
// Close wait for them to exit.
//
// Usage:
//
//	svc, err := service.NewRaceService(sessionMgr, trackMgr, settings,
//		service.WithLogger(logger),
//		service.WithTickListener(hub.BroadcastSnapshot),
//	)
//	if err != nil {
//		return err
//	}
//	defer svc.Close()
//
//	race, err := svc.StartRace(ctx, "easy")
//	svc.SetInput(ctx, race.ID, engine.InputFlags{Forward: true})
//	result, err := svc.Tick(ctx, race.ID, 1.0/60, 60)
package service
