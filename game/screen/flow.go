package screen

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/wricardo/mcp-training/roadracer/game/engine"
	"github.com/wricardo/mcp-training/roadracer/game/service"
)

var ErrWrongScreen = errors.New("action not available on this screen")

// Screen identifies what the player is looking at
type Screen int

const (
	Menu Screen = iota
	Racing
	Results
)

func (s Screen) String() string {
	switch s {
	case Menu:
		return "menu"
	case Racing:
		return "racing"
	case Results:
		return "results"
	}
	return fmt.Sprintf("screen(%d)", int(s))
}

// Transition reports a screen change caused by a call
type Transition int

const (
	None Transition = iota
	ToRacing
	ToResults
	ToMenu
)

// Starter builds a new race for a difficulty
type Starter func(difficulty string) (engine.Engine, error)

// NewStarter builds races from the track files and presets of a local setup
func NewStarter(tracks service.TrackManager, difficulties service.DifficultyCatalog, logger zerolog.Logger) Starter {
	return func(difficulty string) (engine.Engine, error) {
		setup, err := service.PrepareRace(tracks, difficulties, difficulty)
		if err != nil {
			return nil, err
		}
		if setup.Options.Spawn == nil {
			logger.Warn().Str("track_id", setup.Track.ID).Msg("track has no spawn, starting at origin")
		}
		setup.Options.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
		return engine.NewRace(setup.Options)
	}
}

// Flow is the screen state machine. It is not safe for concurrent use.
type Flow struct {
	start        Starter
	difficulties []string

	screen     Screen
	cursor     int
	difficulty string
	race       engine.Engine
	result     engine.RaceResult
}

// NewFlow starts on the menu with the given difficulty choices
func NewFlow(start Starter, difficulties []string) *Flow {
	return &Flow{
		start:        start,
		difficulties: append([]string(nil), difficulties...),
		screen:       Menu,
	}
}

func (f *Flow) Screen() Screen { return f.screen }

// Race returns the current race, nil on the menu
func (f *Flow) Race() engine.Engine { return f.race }

// Difficulty is the difficulty of the current or last race
func (f *Flow) Difficulty() string { return f.difficulty }

func (f *Flow) Difficulties() []string {
	return append([]string(nil), f.difficulties...)
}

// Cursor is the highlighted menu entry
func (f *Flow) Cursor() int { return f.cursor }

// MoveCursor moves the menu highlight, wrapping around
func (f *Flow) MoveCursor(delta int) {
	n := len(f.difficulties)
	if f.screen != Menu || n == 0 {
		return
	}
	f.cursor = ((f.cursor+delta)%n + n) % n
}

// Result is the finished race's result, valid on the results screen
func (f *Flow) Result() (engine.RaceResult, bool) {
	if f.screen != Results {
		return engine.RaceResult{}, false
	}
	return f.result, true
}

// Select starts a race on the difficulty. Only valid on the menu.
func (f *Flow) Select(difficulty string) (Transition, error) {
	if f.screen != Menu {
		return None, fmt.Errorf("%w: select on %s", ErrWrongScreen, f.screen)
	}
	return f.begin(difficulty)
}

// SelectCursor starts a race on the highlighted difficulty
func (f *Flow) SelectCursor() (Transition, error) {
	if len(f.difficulties) == 0 {
		return f.Select("")
	}
	return f.Select(f.difficulties[f.cursor])
}

// Tick advances the race. Finishing moves to the results screen.
func (f *Flow) Tick(dt float64, input engine.InputFlags) Transition {
	if f.screen != Racing || f.race == nil {
		return None
	}
	f.race.Tick(dt, input)
	if f.race.ConsumeFinished() {
		f.result = f.race.Result()
		f.screen = Results
		return ToResults
	}
	return None
}

// Confirm restarts on the same difficulty. Only valid on the results screen.
func (f *Flow) Confirm() (Transition, error) {
	if f.screen != Results {
		return None, fmt.Errorf("%w: confirm on %s", ErrWrongScreen, f.screen)
	}
	return f.begin(f.difficulty)
}

// Escape drops the race and returns to the menu. On the menu it does nothing
// so the caller can treat it as quit.
func (f *Flow) Escape() Transition {
	if f.screen == Menu {
		return None
	}
	f.race = nil
	f.result = engine.RaceResult{}
	f.screen = Menu
	return ToMenu
}

func (f *Flow) begin(difficulty string) (Transition, error) {
	race, err := f.start(difficulty)
	if err != nil {
		return None, err
	}
	f.race = race
	f.difficulty = race.Snapshot().Difficulty
	f.result = engine.RaceResult{}
	f.screen = Racing
	return ToRacing, nil
}
