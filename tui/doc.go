// Package tui is the terminal client: a local race drawn with tcell, with an
// optional music loop and an engine hum played through beep.
//
// Terminals report key presses but not releases, so a key counts as held for
// a short window after its last press or auto-repeat. Audio is best effort;
// when the speaker cannot be opened the client runs silently.
//
// Usage:
//
//	err := tui.Run(ctx, tui.Options{
//		Tracks:       trackManager,
//		Difficulties: settings,
//		Logger:       logger,
//	})
package tui
