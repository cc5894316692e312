package service_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/wricardo/mcp-training/roadracer/game/engine"
	"github.com/wricardo/mcp-training/roadracer/game/service"
	"github.com/wricardo/mcp-training/roadracer/game/track"
)

// MockSessionManager implements service.SessionManager for testing
type MockSessionManager struct {
	mu       sync.Mutex
	sessions map[string]*service.Session
}

func NewMockSessionManager() *MockSessionManager {
	return &MockSessionManager{sessions: make(map[string]*service.Session)}
}

func (m *MockSessionManager) Create(id string, setup *service.RaceSetup) (*service.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		id = fmt.Sprintf("t%03d", len(m.sessions)+1)
	}
	if _, exists := m.sessions[id]; exists {
		return nil, errors.New("session already exists")
	}

	race, err := engine.NewRace(setup.Options)
	if err != nil {
		return nil, err
	}
	sess := &service.Session{
		ID:             id,
		Race:           race,
		Difficulty:     setup.Difficulty,
		Track:          setup.Track,
		Geometry:       setup.Geometry,
		CreatedAt:      time.Now(),
		LastAccessedAt: time.Now(),
	}
	m.sessions[id] = sess
	return sess, nil
}

func (m *MockSessionManager) Get(id string) (*service.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, errors.New("session not found")
	}
	return sess, nil
}

func (m *MockSessionManager) List() []*service.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*service.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

func (m *MockSessionManager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return errors.New("session not found")
	}
	delete(m.sessions, id)
	return nil
}

func (m *MockSessionManager) UpdateLastAccessed(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[id]; ok {
		sess.LastAccessedAt = time.Now()
	}
	return nil
}

// MockTrackManager implements service.TrackManager in memory
type MockTrackManager struct {
	tracks map[string]*track.File
}

func (m *MockTrackManager) LoadTrack(id string) (*track.File, error) {
	f, ok := m.tracks[id]
	if !ok {
		return nil, errors.New("track not found")
	}
	return f, nil
}

func (m *MockTrackManager) LoadGeometry(id string) (*track.Geometry, error) {
	f, err := m.LoadTrack(id)
	if err != nil {
		return nil, err
	}
	return track.Build(f)
}

func (m *MockTrackManager) ListTracks() ([]*service.TrackInfo, error) {
	out := make([]*service.TrackInfo, 0, len(m.tracks))
	for id, f := range m.tracks {
		out = append(out, &service.TrackInfo{TrackID: id, Name: f.Name})
	}
	return out, nil
}

func (m *MockTrackManager) SaveTrack(f *track.File) error {
	if err := track.Validate(f); err != nil {
		return err
	}
	m.tracks[f.ID] = f
	return nil
}

// MockDifficulties implements service.DifficultyCatalog
type MockDifficulties map[string]*service.Difficulty

func (m MockDifficulties) Difficulty(name string) (*service.Difficulty, error) {
	d, ok := m[strings.ToLower(name)]
	if !ok {
		return nil, errors.New("not found")
	}
	return d, nil
}

func (m MockDifficulties) Difficulties() []*service.Difficulty {
	out := make([]*service.Difficulty, 0, len(m))
	for _, d := range m {
		out = append(out, d)
	}
	return out
}

func createTestTrack() *track.File {
	return &track.File{
		ID:       "sprint",
		Name:     "Sprint",
		TileSize: 32,
		Layout: []string{
			"#####",
			"#FFF#",
			"#...#",
			"#...#",
			"#.S.#",
			"#...#",
			"#####",
		},
	}
}

type testEnv struct {
	svc      service.RaceService
	sessions *MockSessionManager
	tracks   *MockTrackManager
	clock    *engine.ManualClock
	logs     *bytes.Buffer
}

func createTestService(t *testing.T, opts ...service.Option) *testEnv {
	t.Helper()
	open := createTestTrack()
	open.ID = "open"
	open.Layout = []string{"...", "...", "..."}

	env := &testEnv{
		sessions: NewMockSessionManager(),
		tracks: &MockTrackManager{tracks: map[string]*track.File{
			"sprint": createTestTrack(),
			"open":   open,
		}},
		clock: engine.NewManualClock(time.Unix(1000, 0)),
		logs:  &bytes.Buffer{},
	}
	difficulties := MockDifficulties{
		"easy":     {Name: "easy", MaxSpeedFactor: 0.8, BurstFactor: 0.7, TrackID: "sprint"},
		"open":     {Name: "open", MaxSpeedFactor: 1, BurstFactor: 1, TrackID: "open"},
		"orphaned": {Name: "orphaned", MaxSpeedFactor: 1, BurstFactor: 1, TrackID: "missing"},
	}

	base := []service.Option{
		service.WithClock(env.clock),
		service.WithLogger(zerolog.New(env.logs)),
		service.WithRandSource(func() engine.RandSource { return nil }),
	}
	svc, err := service.NewRaceService(env.sessions, env.tracks, difficulties, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewRaceService failed: %v", err)
	}
	t.Cleanup(svc.Close)
	env.svc = svc
	return env
}

func TestStartRace(t *testing.T) {
	env := createTestService(t)
	ctx := context.Background()

	info, err := env.svc.StartRace(ctx, "easy")
	if err != nil {
		t.Fatalf("StartRace failed: %v", err)
	}
	if info.ID == "" {
		t.Error("Expected race id")
	}
	if info.Difficulty != "easy" || info.TrackID != "sprint" {
		t.Errorf("Unexpected difficulty/track %s/%s", info.Difficulty, info.TrackID)
	}
	if info.Snapshot.Position != (engine.Vec2{X: 80, Y: 80}) {
		t.Errorf("Expected spawn at (80,80), got %+v", info.Snapshot.Position)
	}
	if info.Snapshot.RaceState != engine.Racing {
		t.Errorf("Expected Racing, got %s", info.Snapshot.RaceState)
	}
	if info.Result != nil {
		t.Error("Expected no result while racing")
	}
}

func TestStartRace_DefaultDifficulty(t *testing.T) {
	env := createTestService(t)

	info, err := env.svc.StartRace(context.Background(), "")
	if err != nil {
		t.Fatalf("StartRace failed: %v", err)
	}
	if info.Difficulty != service.DefaultDifficulty {
		t.Errorf("Expected %s, got %s", service.DefaultDifficulty, info.Difficulty)
	}
}

func TestStartRace_Errors(t *testing.T) {
	env := createTestService(t)
	ctx := context.Background()

	_, err := env.svc.StartRace(ctx, "nightmare")
	if !errors.Is(err, service.ErrUnknownDifficulty) {
		t.Errorf("Expected ErrUnknownDifficulty, got %v", err)
	}

	_, err = env.svc.StartRace(ctx, "orphaned")
	if !errors.Is(err, service.ErrTrackNotFound) {
		t.Errorf("Expected ErrTrackNotFound, got %v", err)
	}
}

func TestStartRace_NoSpawnStartsAtOrigin(t *testing.T) {
	env := createTestService(t)

	info, err := env.svc.StartRace(context.Background(), "open")
	if err != nil {
		t.Fatalf("StartRace failed: %v", err)
	}
	if !info.Snapshot.Position.IsZero() {
		t.Errorf("Expected origin, got %+v", info.Snapshot.Position)
	}
	if !strings.Contains(env.logs.String(), "no spawn") {
		t.Errorf("Expected a missing spawn warning, got logs: %s", env.logs.String())
	}
}

func TestPrepareRace(t *testing.T) {
	tracks := &MockTrackManager{tracks: map[string]*track.File{"sprint": createTestTrack()}}
	difficulties := MockDifficulties{
		"easy": {Name: "easy", MaxSpeedFactor: 0.8, BurstFactor: 0.7, TrackID: "sprint"},
	}

	setup, err := service.PrepareRace(tracks, difficulties, "EASY")
	if err != nil {
		t.Fatalf("PrepareRace failed: %v", err)
	}
	if setup.Options.Difficulty != "easy" || setup.Options.TrackID != "sprint" {
		t.Errorf("Unexpected options %s/%s", setup.Options.Difficulty, setup.Options.TrackID)
	}
	if setup.Options.Spawn == nil || setup.Options.Spawn.Position != (engine.Vec2{X: 80, Y: 80}) {
		t.Errorf("Expected spawn at (80,80), got %+v", setup.Options.Spawn)
	}
	if setup.Options.Params != setup.Difficulty.Params() {
		t.Errorf("Expected params from the difficulty, got %+v", setup.Options.Params)
	}
	if setup.Options.Clock != nil || setup.Options.Rand != nil {
		t.Error("Clock and randomness belong to the caller")
	}
	if _, err := engine.NewRace(setup.Options); err != nil {
		t.Errorf("Options should build a race: %v", err)
	}

	if _, err := service.PrepareRace(tracks, difficulties, "nightmare"); !errors.Is(err, service.ErrUnknownDifficulty) {
		t.Errorf("Expected ErrUnknownDifficulty, got %v", err)
	}
}

func TestTick_DriveToFinish(t *testing.T) {
	env := createTestService(t)
	ctx := context.Background()

	info, _ := env.svc.StartRace(ctx, "easy")
	if _, err := env.svc.SetInput(ctx, info.ID, engine.InputFlags{Forward: true}); err != nil {
		t.Fatalf("SetInput failed: %v", err)
	}

	env.clock.Advance(5 * time.Second)
	result, err := env.svc.Tick(ctx, info.ID, 1.0/60, 120)
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if !result.JustFinished {
		t.Fatalf("Expected race to finish, snapshot %+v", result.Snapshot)
	}
	if result.StepsRun == 0 || result.StepsRun >= 120 {
		t.Errorf("Expected ticking to stop at the finish, ran %d steps", result.StepsRun)
	}
	if result.Result == nil || !result.Result.Finished {
		t.Fatalf("Expected finished result, got %+v", result.Result)
	}
	if result.Result.ElapsedTime != 5 {
		t.Errorf("Expected elapsed 5s, got %v", result.Result.ElapsedTime)
	}
	if result.FormattedTime != "00:05.000" {
		t.Errorf("Expected formatted time 00:05.000, got %s", result.FormattedTime)
	}

	// frozen afterwards
	again, err := env.svc.Tick(ctx, info.ID, 1.0/60, 10)
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if again.StepsRun != 0 || again.JustFinished {
		t.Errorf("Expected no steps after finish, got %+v", again)
	}
	if again.Snapshot.Position != result.Snapshot.Position {
		t.Error("Expected position frozen after finish")
	}

	res, err := env.svc.Result(ctx, info.ID)
	if err != nil || !res.Finished {
		t.Errorf("Expected finished result, got %+v (%v)", res, err)
	}
}

func TestTick_InvalidRequests(t *testing.T) {
	env := createTestService(t)
	ctx := context.Background()
	info, _ := env.svc.StartRace(ctx, "easy")

	tests := []struct {
		name  string
		dt    float64
		steps int
	}{
		{"negative dt", -1, 1},
		{"NaN dt", math.NaN(), 1},
		{"dt too large", 1, 1},
		{"too many steps", 1.0 / 60, service.MaxStepsPerCall + 1},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := env.svc.Tick(ctx, info.ID, test.dt, test.steps)
			if !errors.Is(err, service.ErrInvalidTick) {
				t.Errorf("Expected ErrInvalidTick, got %v", err)
			}
		})
	}

	_, err := env.svc.Tick(ctx, "nope", 0, 1)
	if !errors.Is(err, service.ErrRaceNotFound) {
		t.Errorf("Expected ErrRaceNotFound, got %v", err)
	}
}

func TestTick_DefaultsDtAndSteps(t *testing.T) {
	env := createTestService(t, service.WithTickRate(30))
	ctx := context.Background()
	info, _ := env.svc.StartRace(ctx, "easy")

	result, err := env.svc.Tick(ctx, info.ID, 0, 0)
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if result.StepsRun != 1 {
		t.Errorf("Expected 1 step, got %d", result.StepsRun)
	}
	if result.Dt != 1.0/30 {
		t.Errorf("Expected dt 1/30, got %v", result.Dt)
	}
}

func TestTick_Listener(t *testing.T) {
	var mu sync.Mutex
	var calls []engine.Snapshot
	listener := func(id string, snap engine.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, snap)
	}
	env := createTestService(t, service.WithTickListener(listener))
	ctx := context.Background()
	info, _ := env.svc.StartRace(ctx, "easy")

	env.svc.Tick(ctx, info.ID, 1.0/60, 3)

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 1 {
		t.Fatalf("Expected 1 listener call per Tick, got %d", len(calls))
	}
	if calls[0].Tick != 3 {
		t.Errorf("Expected snapshot after 3 ticks, got tick %d", calls[0].Tick)
	}
}

func TestRestart(t *testing.T) {
	env := createTestService(t)
	ctx := context.Background()
	info, _ := env.svc.StartRace(ctx, "easy")

	env.svc.SetInput(ctx, info.ID, engine.InputFlags{Forward: true})
	env.svc.Tick(ctx, info.ID, 1.0/60, 120)

	restarted, err := env.svc.Restart(ctx, info.ID)
	if err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	if restarted.ID != info.ID {
		t.Errorf("Expected same race id, got %s", restarted.ID)
	}
	if restarted.Snapshot.RaceState != engine.Racing {
		t.Errorf("Expected Racing after restart, got %s", restarted.Snapshot.RaceState)
	}
	if restarted.Snapshot.Position != info.Snapshot.Position {
		t.Errorf("Expected vehicle back at spawn, got %+v", restarted.Snapshot.Position)
	}
	if restarted.Snapshot.Tick != 0 {
		t.Errorf("Expected tick counter reset, got %d", restarted.Snapshot.Tick)
	}
	if restarted.Input != (engine.InputFlags{}) {
		t.Errorf("Expected input cleared, got %+v", restarted.Input)
	}
	if restarted.Difficulty != "easy" {
		t.Errorf("Expected same difficulty, got %s", restarted.Difficulty)
	}
}

func TestDeleteRace(t *testing.T) {
	env := createTestService(t)
	ctx := context.Background()
	info, _ := env.svc.StartRace(ctx, "easy")

	if err := env.svc.DeleteRace(ctx, info.ID); err != nil {
		t.Fatalf("DeleteRace failed: %v", err)
	}
	if _, err := env.svc.GetRace(ctx, info.ID); !errors.Is(err, service.ErrRaceNotFound) {
		t.Errorf("Expected ErrRaceNotFound, got %v", err)
	}
	if err := env.svc.DeleteRace(ctx, info.ID); !errors.Is(err, service.ErrRaceNotFound) {
		t.Errorf("Expected ErrRaceNotFound on second delete, got %v", err)
	}
}

func TestListRaces(t *testing.T) {
	env := createTestService(t)
	ctx := context.Background()
	env.svc.StartRace(ctx, "easy")
	env.svc.StartRace(ctx, "open")

	races, err := env.svc.ListRaces(ctx)
	if err != nil {
		t.Fatalf("ListRaces failed: %v", err)
	}
	if len(races) != 2 {
		t.Errorf("Expected 2 races, got %d", len(races))
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestLive(t *testing.T) {
	env := createTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	info, _ := env.svc.StartRace(ctx, "open")

	if err := env.svc.StartLive(ctx, info.ID, service.MaxTickRate); err != nil {
		t.Fatalf("StartLive failed: %v", err)
	}
	// the runner must survive the caller's context
	cancel()

	if err := env.svc.StartLive(context.Background(), info.ID, 60); !errors.Is(err, service.ErrLiveAlreadyRunning) {
		t.Errorf("Expected ErrLiveAlreadyRunning, got %v", err)
	}
	if !env.svc.IsLive(info.ID) {
		t.Error("Expected race to be live")
	}

	waitFor(t, 3*time.Second, func() bool {
		snap, err := env.svc.Snapshot(context.Background(), info.ID)
		return err == nil && snap.Tick > 0
	})

	if err := env.svc.StopLive(info.ID); err != nil {
		t.Fatalf("StopLive failed: %v", err)
	}
	if env.svc.IsLive(info.ID) {
		t.Error("Expected race not live after StopLive")
	}
	if err := env.svc.StopLive(info.ID); !errors.Is(err, service.ErrLiveNotRunning) {
		t.Errorf("Expected ErrLiveNotRunning, got %v", err)
	}
}

func TestLive_StopsAtFinish(t *testing.T) {
	env := createTestService(t)
	ctx := context.Background()
	info, _ := env.svc.StartRace(ctx, "easy")
	env.svc.SetInput(ctx, info.ID, engine.InputFlags{Forward: true})

	if err := env.svc.StartLive(ctx, info.ID, service.MaxTickRate); err != nil {
		t.Fatalf("StartLive failed: %v", err)
	}

	waitFor(t, 3*time.Second, func() bool {
		return !env.svc.IsLive(info.ID)
	})

	snap, err := env.svc.Snapshot(ctx, info.ID)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.RaceState != engine.Finished {
		t.Errorf("Expected runner to stop only once finished, state %v", snap.RaceState)
	}
	got, err := env.svc.GetRace(ctx, info.ID)
	if err != nil {
		t.Fatalf("GetRace failed: %v", err)
	}
	if got.Live {
		t.Error("Expected race info to report not live")
	}
	if err := env.svc.StopLive(info.ID); !errors.Is(err, service.ErrLiveNotRunning) {
		t.Errorf("Expected ErrLiveNotRunning, got %v", err)
	}
	// a fresh runner may be started and exits at once
	if err := env.svc.StartLive(ctx, info.ID, 60); err != nil {
		t.Fatalf("StartLive after finish failed: %v", err)
	}
	waitFor(t, 3*time.Second, func() bool {
		return !env.svc.IsLive(info.ID)
	})
}

func TestLive_RejectsBadRate(t *testing.T) {
	env := createTestService(t)
	info, _ := env.svc.StartRace(context.Background(), "easy")

	err := env.svc.StartLive(context.Background(), info.ID, service.MaxTickRate+1)
	if !errors.Is(err, service.ErrInvalidTick) {
		t.Errorf("Expected ErrInvalidTick, got %v", err)
	}
	err = env.svc.StartLive(context.Background(), "nope", 60)
	if !errors.Is(err, service.ErrRaceNotFound) {
		t.Errorf("Expected ErrRaceNotFound, got %v", err)
	}
}

func TestLive_DeleteStopsRunner(t *testing.T) {
	env := createTestService(t)
	ctx := context.Background()
	info, _ := env.svc.StartRace(ctx, "easy")

	if err := env.svc.StartLive(ctx, info.ID, 120); err != nil {
		t.Fatalf("StartLive failed: %v", err)
	}
	if err := env.svc.DeleteRace(ctx, info.ID); err != nil {
		t.Fatalf("DeleteRace failed: %v", err)
	}
	if env.svc.IsLive(info.ID) {
		t.Error("Expected runner stopped with the race")
	}
}

func TestCatalogue(t *testing.T) {
	env := createTestService(t)
	ctx := context.Background()

	diffs, _ := env.svc.ListDifficulties(ctx)
	if len(diffs) != 3 {
		t.Errorf("Expected 3 difficulties, got %d", len(diffs))
	}

	tracks, _ := env.svc.ListTracks(ctx)
	if len(tracks) != 2 {
		t.Errorf("Expected 2 tracks, got %d", len(tracks))
	}

	f, err := env.svc.LoadTrack(ctx, "sprint")
	if err != nil || f.ID != "sprint" {
		t.Errorf("Expected sprint track, got %+v (%v)", f, err)
	}
	if _, err := env.svc.LoadTrack(ctx, "missing"); !errors.Is(err, service.ErrTrackNotFound) {
		t.Errorf("Expected ErrTrackNotFound, got %v", err)
	}

	bad := createTestTrack()
	bad.ID = ""
	if err := env.svc.SaveTrack(ctx, bad); !errors.Is(err, track.ErrInvalidTrack) {
		t.Errorf("Expected ErrInvalidTrack, got %v", err)
	}
	good := createTestTrack()
	good.ID = "copy"
	if err := env.svc.SaveTrack(ctx, good); err != nil {
		t.Errorf("SaveTrack failed: %v", err)
	}
}
