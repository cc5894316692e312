package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wricardo/mcp-training/roadracer/game/engine"
	"github.com/wricardo/mcp-training/roadracer/game/track"
)

const (
	DefaultDifficulty = "easy"
	DefaultTickRate   = 60
	MaxTickRate       = 240
	MaxStepsPerCall   = 3600
	// MaxTickDt bounds a single step so a stalled client cannot tunnel the car
	MaxTickDt = 0.25
)

// raceServiceImpl implements the RaceService interface
type raceServiceImpl struct {
	sessions     SessionManager
	tracks       TrackManager
	difficulties DifficultyCatalog

	logger   zerolog.Logger
	clock    engine.Clock
	newRand  func() engine.RandSource
	listener TickListener
	tickRate int
	metrics  *raceMetrics

	mu sync.Mutex

	liveMu sync.Mutex
	live   map[string]*liveRunner
}

// Option configures the race service
type Option func(*raceServiceImpl)

// WithLogger sets the service logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *raceServiceImpl) { s.logger = logger }
}

// WithClock sets the clock new races time themselves with
func WithClock(clock engine.Clock) Option {
	return func(s *raceServiceImpl) { s.clock = clock }
}

// WithRandSource sets the particle randomness factory. Returning nil disables
// particles.
func WithRandSource(fn func() engine.RandSource) Option {
	return func(s *raceServiceImpl) { s.newRand = fn }
}

// WithTickListener registers a callback for advanced ticks
func WithTickListener(fn TickListener) Option {
	return func(s *raceServiceImpl) { s.listener = fn }
}

// WithTickRate sets the default dt and live rate in Hz
func WithTickRate(hz int) Option {
	return func(s *raceServiceImpl) {
		if hz > 0 && hz <= MaxTickRate {
			s.tickRate = hz
		}
	}
}

// NewRaceService creates a new race service instance
func NewRaceService(sessions SessionManager, tracks TrackManager, difficulties DifficultyCatalog, opts ...Option) (RaceService, error) {
	s := &raceServiceImpl{
		sessions:     sessions,
		tracks:       tracks,
		difficulties: difficulties,
		logger:       zerolog.Nop(),
		clock:        engine.SystemClock{},
		newRand: func() engine.RandSource {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
		tickRate: DefaultTickRate,
		live:     make(map[string]*liveRunner),
	}
	for _, opt := range opts {
		opt(s)
	}

	metrics, err := newRaceMetrics()
	if err != nil {
		return nil, err
	}
	s.metrics = metrics
	return s, nil
}

// PrepareRace resolves a difficulty to its track and the engine options for a
// race on it. Clock and randomness are left for the caller; Options.Spawn is
// nil when the track has no spawn.
func PrepareRace(tracks TrackManager, difficulties DifficultyCatalog, difficulty string) (*RaceSetup, error) {
	if difficulty == "" {
		difficulty = DefaultDifficulty
	}
	d, err := difficulties.Difficulty(difficulty)
	if err != nil {
		names := make([]string, 0)
		for _, known := range difficulties.Difficulties() {
			names = append(names, known.Name)
		}
		return nil, fmt.Errorf("%w: '%s'. Available difficulties: %v", ErrUnknownDifficulty, difficulty, names)
	}

	f, err := tracks.LoadTrack(d.TrackID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s (difficulty %s): %v", ErrTrackNotFound, d.TrackID, d.Name, err)
	}
	g, err := tracks.LoadGeometry(d.TrackID)
	if err != nil {
		return nil, fmt.Errorf("failed to build track %s: %w", d.TrackID, err)
	}

	opts := engine.RaceOptions{
		Difficulty: d.Name,
		TrackID:    f.ID,
		Params:     d.Params(),
		Geometry:   g,
	}
	if spawn, ok := g.Spawn(); ok {
		opts.Spawn = &spawn
	}

	return &RaceSetup{
		Difficulty: d,
		Track:      f,
		Geometry:   g,
		Options:    opts,
	}, nil
}

// StartRace builds a race for the difficulty on its bound track
func (s *raceServiceImpl) StartRace(ctx context.Context, difficulty string) (*RaceInfo, error) {
	setup, err := PrepareRace(s.tracks, s.difficulties, difficulty)
	if err != nil {
		return nil, err
	}
	setup.Options.Clock = s.clock
	setup.Options.Rand = s.newRand()
	if setup.Options.Spawn == nil {
		s.logger.Warn().Str("track_id", setup.Track.ID).Msg("track has no spawn, starting at origin")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Create("", setup)
	if err != nil {
		return nil, fmt.Errorf("failed to create race: %w", err)
	}

	s.metrics.raceStarted(ctx, setup.Difficulty.Name, false)
	s.logger.Info().
		Str("race_id", sess.ID).
		Str("difficulty", setup.Difficulty.Name).
		Str("track_id", setup.Track.ID).
		Msg("race started")

	return s.info(sess), nil
}

// GetRace retrieves race information
func (s *raceServiceImpl) GetRace(ctx context.Context, raceID string) (*RaceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(raceID)
	if err != nil {
		return nil, err
	}
	return s.info(sess), nil
}

// ListRaces returns all active races
func (s *raceServiceImpl) ListRaces(ctx context.Context) ([]*RaceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions := s.sessions.List()
	result := make([]*RaceInfo, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, s.info(sess))
	}
	return result, nil
}

// DeleteRace stops live ticking and removes the race
func (s *raceServiceImpl) DeleteRace(ctx context.Context, raceID string) error {
	if err := s.StopLive(raceID); err != nil && !errors.Is(err, ErrLiveNotRunning) {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sessions.Delete(raceID); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRaceNotFound, raceID, err)
	}
	s.logger.Info().Str("race_id", raceID).Msg("race deleted")
	return nil
}

// Restart replaces the race with a fresh one on the same difficulty and track
func (s *raceServiceImpl) Restart(ctx context.Context, raceID string) (*RaceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(raceID)
	if err != nil {
		return nil, err
	}

	opts := sess.Race.Options()
	opts.VehicleID = ""
	opts.Rand = s.newRand()
	race, err := engine.NewRace(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to restart race: %w", err)
	}
	sess.Race = race
	sess.Input = engine.InputFlags{}

	s.metrics.raceStarted(ctx, opts.Difficulty, true)
	s.logger.Info().Str("race_id", sess.ID).Str("difficulty", opts.Difficulty).Msg("race restarted")
	return s.info(sess), nil
}

// SetInput replaces the held keys used by subsequent ticks
func (s *raceServiceImpl) SetInput(ctx context.Context, raceID string, input engine.InputFlags) (*engine.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(raceID)
	if err != nil {
		return nil, err
	}
	sess.Input = input
	snap := sess.Race.Snapshot()
	return &snap, nil
}

// Tick advances the race steps times by dt with the held keys. A dt of zero
// uses the configured tick rate. Ticking stops early once the race finishes.
func (s *raceServiceImpl) Tick(ctx context.Context, raceID string, dt float64, steps int) (*TickResult, error) {
	if dt == 0 {
		dt = 1 / float64(s.tickRate)
	}
	if math.IsNaN(dt) || dt < 0 || dt > MaxTickDt {
		return nil, fmt.Errorf("%w: dt must be in (0, %v], got %v", ErrInvalidTick, MaxTickDt, dt)
	}
	if steps <= 0 {
		steps = 1
	}
	if steps > MaxStepsPerCall {
		return nil, fmt.Errorf("%w: steps must be at most %d, got %d", ErrInvalidTick, MaxStepsPerCall, steps)
	}

	s.mu.Lock()
	sess, err := s.session(raceID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	result := &TickResult{StepsRequested: steps, Dt: dt}
	for i := 0; i < steps; i++ {
		if ctx.Err() != nil {
			break
		}
		tr := sess.Race.Tick(dt, sess.Input)
		if !tr.Advanced {
			break
		}
		result.StepsRun++
		if tr.JustFinished {
			break
		}
	}

	difficulty := sess.Race.Options().Difficulty
	s.metrics.raceTicked(ctx, difficulty, result.StepsRun)

	if sess.Race.ConsumeFinished() {
		result.JustFinished = true
		res := sess.Race.Result()
		s.metrics.raceFinished(ctx, difficulty, res.ElapsedTime)
		s.logger.Info().
			Str("race_id", sess.ID).
			Str("difficulty", difficulty).
			Str("time", engine.FormatRaceTime(res.ElapsedTime)).
			Msg("race finished")
	}
	if sess.Race.IsFinished() {
		res := sess.Race.Result()
		result.Result = &res
	}
	result.Snapshot = sess.Race.Snapshot()
	result.FormattedTime = engine.FormatRaceTime(result.Snapshot.ElapsedTime)
	listener := s.listener
	s.mu.Unlock()

	if listener != nil && result.StepsRun > 0 {
		listener(sess.ID, result.Snapshot)
	}
	return result, nil
}

// Snapshot returns the current render view of the race
func (s *raceServiceImpl) Snapshot(ctx context.Context, raceID string) (*engine.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(raceID)
	if err != nil {
		return nil, err
	}
	snap := sess.Race.Snapshot()
	return &snap, nil
}

// Result returns the race result; Finished is false while still racing
func (s *raceServiceImpl) Result(ctx context.Context, raceID string) (*engine.RaceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(raceID)
	if err != nil {
		return nil, err
	}
	res := sess.Race.Result()
	return &res, nil
}

// ListDifficulties returns the configured presets
func (s *raceServiceImpl) ListDifficulties(ctx context.Context) ([]*Difficulty, error) {
	return s.difficulties.Difficulties(), nil
}

// ListTracks returns every valid track
func (s *raceServiceImpl) ListTracks(ctx context.Context) ([]*TrackInfo, error) {
	return s.tracks.ListTracks()
}

// LoadTrack returns a track file by id
func (s *raceServiceImpl) LoadTrack(ctx context.Context, trackID string) (*track.File, error) {
	f, err := s.tracks.LoadTrack(trackID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTrackNotFound, trackID, err)
	}
	return f, nil
}

// SaveTrack validates and stores a track file
func (s *raceServiceImpl) SaveTrack(ctx context.Context, f *track.File) error {
	if err := s.tracks.SaveTrack(f); err != nil {
		return err
	}
	s.logger.Info().Str("track_id", f.ID).Msg("track saved")
	return nil
}

// session looks up a race and refreshes its access time. Callers hold s.mu.
func (s *raceServiceImpl) session(raceID string) (*Session, error) {
	sess, err := s.sessions.Get(raceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRaceNotFound, raceID)
	}
	_ = s.sessions.UpdateLastAccessed(raceID)
	return sess, nil
}

// info builds the DTO for a session. Callers hold s.mu.
func (s *raceServiceImpl) info(sess *Session) *RaceInfo {
	snap := sess.Race.Snapshot()
	info := &RaceInfo{
		ID:             sess.ID,
		Difficulty:     snap.Difficulty,
		TrackID:        snap.TrackID,
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccessedAt,
		Input:          sess.Input,
		Live:           s.IsLive(sess.ID),
		Snapshot:       snap,
	}
	if sess.Race.IsFinished() {
		res := sess.Race.Result()
		info.Result = &res
	}
	return info
}
