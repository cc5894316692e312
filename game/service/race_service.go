package service

import (
	"context"
	"errors"
	"time"

	"github.com/wricardo/mcp-training/roadracer/game/engine"
	"github.com/wricardo/mcp-training/roadracer/game/track"
)

var (
	ErrRaceNotFound       = errors.New("race not found")
	ErrUnknownDifficulty  = errors.New("unknown difficulty")
	ErrTrackNotFound      = errors.New("track not found")
	ErrInvalidTick        = errors.New("invalid tick request")
	ErrLiveAlreadyRunning = errors.New("live ticking already running")
	ErrLiveNotRunning     = errors.New("live ticking not running")
)

// RaceService defines all race operations exposed to the transports
type RaceService interface {
	// Race lifecycle
	StartRace(ctx context.Context, difficulty string) (*RaceInfo, error)
	GetRace(ctx context.Context, raceID string) (*RaceInfo, error)
	ListRaces(ctx context.Context) ([]*RaceInfo, error)
	DeleteRace(ctx context.Context, raceID string) error
	Restart(ctx context.Context, raceID string) (*RaceInfo, error)

	// Driving
	SetInput(ctx context.Context, raceID string, input engine.InputFlags) (*engine.Snapshot, error)
	Tick(ctx context.Context, raceID string, dt float64, steps int) (*TickResult, error)
	Snapshot(ctx context.Context, raceID string) (*engine.Snapshot, error)
	Result(ctx context.Context, raceID string) (*engine.RaceResult, error)

	// Server-side fixed-rate ticking
	StartLive(ctx context.Context, raceID string, hz int) error
	StopLive(raceID string) error
	IsLive(raceID string) bool

	// Catalogue
	ListDifficulties(ctx context.Context) ([]*Difficulty, error)
	ListTracks(ctx context.Context) ([]*TrackInfo, error)
	LoadTrack(ctx context.Context, trackID string) (*track.File, error)
	SaveTrack(ctx context.Context, f *track.File) error

	// Close stops every live runner
	Close()
}

// SessionManager defines race session storage operations
type SessionManager interface {
	Create(id string, setup *RaceSetup) (*Session, error)
	Get(id string) (*Session, error)
	List() []*Session
	Delete(id string) error
	UpdateLastAccessed(id string) error
}

// TrackManager loads and stores track files
type TrackManager interface {
	LoadTrack(id string) (*track.File, error)
	LoadGeometry(id string) (*track.Geometry, error)
	ListTracks() ([]*TrackInfo, error)
	SaveTrack(f *track.File) error
}

// DifficultyCatalog resolves difficulty presets
type DifficultyCatalog interface {
	Difficulty(name string) (*Difficulty, error)
	Difficulties() []*Difficulty
}

// TickListener is called with the latest snapshot after a tick advanced a race
type TickListener func(raceID string, snap engine.Snapshot)

// RaceSetup is everything a session manager needs to build a race
type RaceSetup struct {
	Difficulty *Difficulty
	Track      *track.File
	Geometry   *track.Geometry
	Options    engine.RaceOptions
}

// Session is an active race and the keys currently held for it
type Session struct {
	ID             string
	Race           *engine.Race
	Difficulty     *Difficulty
	Track          *track.File
	Geometry       *track.Geometry
	Input          engine.InputFlags
	CreatedAt      time.Time
	LastAccessedAt time.Time
}
