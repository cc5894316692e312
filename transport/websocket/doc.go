// Package websocket provides the WebSocket transport for the road racer.
//
// The websocket package implements:
//   - Race-aware WebSocket connections (?race=<id>)
//   - Snapshot broadcasting after every advanced tick
//   - Inbound held-key input from remote drivers
//   - Connection lifecycle management
//
// Architecture:
//
// A central Hub owns all connections. Each client has a read goroutine and a
// write goroutine; registration, broadcast and replies are funnelled through
// the hub's Run loop so a client's send channel is only ever closed by the hub.
//
// Message Protocol:
//
// Outgoing messages are JSON documents, one per frame:
//
//	{"race_id": "a1b2", "event": "snapshot", "snapshot": {...}}
//	{"race_id": "a1b2", "event": "input_ack", "data": {"forward": true, ...}}
//	{"race_id": "a1b2", "event": "error", "data": "race not found: a1b2"}
//
// Incoming messages:
//
//	{"type": "input", "input": {"forward": true, "left": false, ...}}
//	{"type": "ping"}
//
// Usage:
//
//	hub := websocket.NewHub(logger)
//	hub.OnInput(func(ctx context.Context, id string, in engine.InputFlags) error {
//		_, err := svc.SetInput(ctx, id, in)
//		return err
//	})
//	go hub.Run(ctx)
//
//	svc, _ := service.NewRaceService(sessions, tracks, settings,
//		service.WithTickListener(hub.BroadcastSnapshot))
//
// BroadcastSnapshot never blocks; when the queue is full the snapshot is
// dropped and the next tick's snapshot replaces it.
package websocket
