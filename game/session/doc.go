// Package session stores the active races of the road racer server.
//
// Manager keeps one service.Session per race, keyed case-insensitively by a
// 4-character hex id. Create builds the engine.Race from a service.RaceSetup,
// so a session never exists without a valid race.
//
// Sessions live in memory only. Idle races can be dropped with
// CleanupExpiredSessions or by a janitor goroutine started with
// StartJanitor.
//
// Usage:
//
//	manager := session.NewManagerWithLogger(logger)
//	manager.StartJanitor(ctx, time.Minute, 30*time.Minute)
//
//	sess, err := manager.Create("", setup)
//	if err != nil {
//		return err
//	}
//	sess, err = manager.Get(sess.ID)
package session
