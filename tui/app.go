package tui

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rs/zerolog"

	"github.com/wricardo/mcp-training/roadracer/game/engine"
	"github.com/wricardo/mcp-training/roadracer/game/screen"
	"github.com/wricardo/mcp-training/roadracer/game/service"
)

const DefaultTickRate = 60

// Options configures the terminal client
type Options struct {
	Tracks       service.TrackManager
	Difficulties service.DifficultyCatalog
	Logger       zerolog.Logger

	// TickRate is the simulation and redraw rate in Hz
	TickRate int
	// HoldWindow is how long a key press counts as held
	HoldWindow time.Duration
	// MusicFile is an optional WAV file looped during play
	MusicFile string
	Mute      bool
}

// App runs the menu, race and results screens on a terminal
type App struct {
	term     tcell.Screen
	flow     *screen.Flow
	keys     *HeldKeys
	audio    *Audio
	tracks   service.TrackManager
	logger   zerolog.Logger
	tickRate int

	view    *trackView
	viewID  string
	lastErr string
}

// action is a key press translated for the current screen
type action int

const (
	actNone action = iota
	actQuit
	actEscape
	actConfirm
	actForward
	actBackward
	actLeft
	actRight
)

func actionFor(key tcell.Key, r rune) action {
	switch key {
	case tcell.KeyCtrlC:
		return actQuit
	case tcell.KeyEscape:
		return actEscape
	case tcell.KeyEnter:
		return actConfirm
	case tcell.KeyUp:
		return actForward
	case tcell.KeyDown:
		return actBackward
	case tcell.KeyLeft:
		return actLeft
	case tcell.KeyRight:
		return actRight
	case tcell.KeyRune:
		switch r {
		case 'w', 'W':
			return actForward
		case 's', 'S':
			return actBackward
		case 'a', 'A':
			return actLeft
		case 'd', 'D':
			return actRight
		case ' ':
			return actConfirm
		case 'q', 'Q':
			return actQuit
		}
	}
	return actNone
}

// New builds an app on an initialised screen
func New(term tcell.Screen, opts Options) (*App, error) {
	if opts.Tracks == nil || opts.Difficulties == nil {
		return nil, fmt.Errorf("tracks and difficulties are required")
	}
	if opts.TickRate <= 0 {
		opts.TickRate = DefaultTickRate
	}

	names := make([]string, 0)
	for _, d := range opts.Difficulties.Difficulties() {
		names = append(names, d.Name)
	}

	return &App{
		term:     term,
		flow:     screen.NewFlow(screen.NewStarter(opts.Tracks, opts.Difficulties, opts.Logger), names),
		keys:     NewHeldKeys(opts.HoldWindow),
		tracks:   opts.Tracks,
		logger:   opts.Logger,
		tickRate: opts.TickRate,
	}, nil
}

// Run opens the terminal and plays until the player quits or ctx ends
func Run(ctx context.Context, opts Options) error {
	term, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("failed to open terminal: %w", err)
	}
	if err := term.Init(); err != nil {
		return fmt.Errorf("failed to initialise terminal: %w", err)
	}
	defer term.Fini()

	app, err := New(term, opts)
	if err != nil {
		return err
	}

	if !opts.Mute {
		audio, err := NewAudio(opts.MusicFile)
		if err != nil {
			// Non-fatal, the game runs without sound
			opts.Logger.Warn().Err(err).Msg("audio disabled")
		} else {
			app.audio = audio
			defer audio.Close()
		}
	}

	return app.Run(ctx)
}

// Run is the event and tick loop
func (a *App) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(a.tickRate))
	defer ticker.Stop()

	events := make(chan tcell.Event, 100)
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		for {
			ev := a.term.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-quit:
				return
			}
		}
	}()

	a.draw()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if !a.apply(actionFor(ev.Key(), ev.Rune()), time.Now()) {
					return nil
				}
				a.draw()
			case *tcell.EventResize:
				a.term.Sync()
				a.draw()
			}
		case now := <-ticker.C:
			a.tick(now)
			a.draw()
		}
	}
}

// apply handles a key press and reports whether to keep running
func (a *App) apply(act action, now time.Time) bool {
	if act == actQuit {
		return false
	}

	switch a.flow.Screen() {
	case screen.Menu:
		switch act {
		case actEscape:
			return false
		case actForward, actLeft:
			a.flow.MoveCursor(-1)
		case actBackward, actRight:
			a.flow.MoveCursor(1)
		case actConfirm:
			a.report(a.flow.SelectCursor())
		}

	case screen.Racing:
		switch act {
		case actEscape:
			a.keys.Release()
			a.flow.Escape()
			a.audio.SetSpeed(0)
		case actForward:
			a.keys.Press(KeyForward, now)
		case actBackward:
			a.keys.Press(KeyBackward, now)
		case actLeft:
			a.keys.Press(KeyLeft, now)
		case actRight:
			a.keys.Press(KeyRight, now)
		}

	case screen.Results:
		switch act {
		case actEscape:
			a.flow.Escape()
		case actConfirm:
			a.report(a.flow.Confirm())
		}
	}
	return true
}

func (a *App) report(_ screen.Transition, err error) {
	if err != nil {
		a.lastErr = err.Error()
		a.logger.Error().Err(err).Msg("failed to start race")
		return
	}
	a.lastErr = ""
	a.keys.Release()
}

// tick advances the race with the keys currently held
func (a *App) tick(now time.Time) {
	if a.flow.Screen() != screen.Racing {
		return
	}

	dt := 1 / float64(a.tickRate)
	if a.flow.Tick(dt, a.keys.Held(now)) == screen.ToResults {
		a.keys.Release()
		a.audio.SetSpeed(0)
		a.audio.Chime()
		if result, ok := a.flow.Result(); ok {
			a.logger.Info().
				Str("difficulty", result.Difficulty).
				Str("time", engine.FormatRaceTime(result.ElapsedTime)).
				Msg("race finished")
		}
		return
	}

	a.audio.SetSpeed(math.Abs(a.flow.Race().Snapshot().Speed) / engine.PlayerMaxSpeed)
}

// loadView caches the track of the current race
func (a *App) loadView(trackID string) *trackView {
	if a.viewID == trackID {
		return a.view
	}
	a.viewID = trackID
	a.view = nil

	f, err := a.tracks.LoadTrack(trackID)
	if err != nil {
		a.logger.Error().Err(err).Str("track_id", trackID).Msg("failed to load track for drawing")
		return nil
	}
	g, err := a.tracks.LoadGeometry(trackID)
	if err != nil {
		a.logger.Error().Err(err).Str("track_id", trackID).Msg("failed to build track for drawing")
		return nil
	}
	a.view = &trackView{file: f, geometry: g}
	return a.view
}

func (a *App) draw() {
	a.render(a.term)
	a.term.Show()
}

func (a *App) render(c canvas) {
	switch a.flow.Screen() {
	case screen.Menu:
		drawMenu(c, a.flow)
		if a.lastErr != "" {
			_, h := c.Size()
			drawText(c, 0, h-1, styleDefault, a.lastErr)
		}
	case screen.Racing:
		snap := a.flow.Race().Snapshot()
		drawRace(c, a.loadView(snap.TrackID), snap)
	case screen.Results:
		drawResults(c, a.flow)
	}
}
