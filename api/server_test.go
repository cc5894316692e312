package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/wricardo/mcp-training/roadracer/game/config"
	"github.com/wricardo/mcp-training/roadracer/game/engine"
	"github.com/wricardo/mcp-training/roadracer/game/service"
	"github.com/wricardo/mcp-training/roadracer/game/session"
	"github.com/wricardo/mcp-training/roadracer/game/track"
	"github.com/wricardo/mcp-training/roadracer/transport/websocket"
)

// MockRaceService implements service.RaceService for testing
type MockRaceService struct {
	StartRaceFunc  func(ctx context.Context, difficulty string) (*service.RaceInfo, error)
	GetRaceFunc    func(ctx context.Context, raceID string) (*service.RaceInfo, error)
	ListRacesFunc  func(ctx context.Context) ([]*service.RaceInfo, error)
	DeleteRaceFunc func(ctx context.Context, raceID string) error
	RestartFunc    func(ctx context.Context, raceID string) (*service.RaceInfo, error)

	SetInputFunc func(ctx context.Context, raceID string, input engine.InputFlags) (*engine.Snapshot, error)
	TickFunc     func(ctx context.Context, raceID string, dt float64, steps int) (*service.TickResult, error)
	SnapshotFunc func(ctx context.Context, raceID string) (*engine.Snapshot, error)
	ResultFunc   func(ctx context.Context, raceID string) (*engine.RaceResult, error)

	StartLiveFunc func(ctx context.Context, raceID string, hz int) error
	StopLiveFunc  func(raceID string) error

	ListDifficultiesFunc func(ctx context.Context) ([]*service.Difficulty, error)
	ListTracksFunc       func(ctx context.Context) ([]*service.TrackInfo, error)
	LoadTrackFunc        func(ctx context.Context, trackID string) (*track.File, error)
	SaveTrackFunc        func(ctx context.Context, f *track.File) error
}

func (m *MockRaceService) StartRace(ctx context.Context, difficulty string) (*service.RaceInfo, error) {
	if m.StartRaceFunc != nil {
		return m.StartRaceFunc(ctx, difficulty)
	}
	return &service.RaceInfo{ID: "r001", Difficulty: difficulty, CreatedAt: time.Now()}, nil
}

func (m *MockRaceService) GetRace(ctx context.Context, raceID string) (*service.RaceInfo, error) {
	if m.GetRaceFunc != nil {
		return m.GetRaceFunc(ctx, raceID)
	}
	return &service.RaceInfo{ID: raceID, Difficulty: "easy", CreatedAt: time.Now()}, nil
}

func (m *MockRaceService) ListRaces(ctx context.Context) ([]*service.RaceInfo, error) {
	if m.ListRacesFunc != nil {
		return m.ListRacesFunc(ctx)
	}
	return []*service.RaceInfo{}, nil
}

func (m *MockRaceService) DeleteRace(ctx context.Context, raceID string) error {
	if m.DeleteRaceFunc != nil {
		return m.DeleteRaceFunc(ctx, raceID)
	}
	return nil
}

func (m *MockRaceService) Restart(ctx context.Context, raceID string) (*service.RaceInfo, error) {
	if m.RestartFunc != nil {
		return m.RestartFunc(ctx, raceID)
	}
	return &service.RaceInfo{ID: raceID}, nil
}

func (m *MockRaceService) SetInput(ctx context.Context, raceID string, input engine.InputFlags) (*engine.Snapshot, error) {
	if m.SetInputFunc != nil {
		return m.SetInputFunc(ctx, raceID, input)
	}
	return &engine.Snapshot{}, nil
}

func (m *MockRaceService) Tick(ctx context.Context, raceID string, dt float64, steps int) (*service.TickResult, error) {
	if m.TickFunc != nil {
		return m.TickFunc(ctx, raceID, dt, steps)
	}
	return &service.TickResult{StepsRequested: steps, StepsRun: steps, Dt: dt}, nil
}

func (m *MockRaceService) Snapshot(ctx context.Context, raceID string) (*engine.Snapshot, error) {
	if m.SnapshotFunc != nil {
		return m.SnapshotFunc(ctx, raceID)
	}
	return &engine.Snapshot{}, nil
}

func (m *MockRaceService) Result(ctx context.Context, raceID string) (*engine.RaceResult, error) {
	if m.ResultFunc != nil {
		return m.ResultFunc(ctx, raceID)
	}
	return &engine.RaceResult{}, nil
}

func (m *MockRaceService) StartLive(ctx context.Context, raceID string, hz int) error {
	if m.StartLiveFunc != nil {
		return m.StartLiveFunc(ctx, raceID, hz)
	}
	return nil
}

func (m *MockRaceService) StopLive(raceID string) error {
	if m.StopLiveFunc != nil {
		return m.StopLiveFunc(raceID)
	}
	return nil
}

func (m *MockRaceService) IsLive(raceID string) bool { return false }

func (m *MockRaceService) ListDifficulties(ctx context.Context) ([]*service.Difficulty, error) {
	if m.ListDifficultiesFunc != nil {
		return m.ListDifficultiesFunc(ctx)
	}
	return []*service.Difficulty{}, nil
}

func (m *MockRaceService) ListTracks(ctx context.Context) ([]*service.TrackInfo, error) {
	if m.ListTracksFunc != nil {
		return m.ListTracksFunc(ctx)
	}
	return []*service.TrackInfo{}, nil
}

func (m *MockRaceService) LoadTrack(ctx context.Context, trackID string) (*track.File, error) {
	if m.LoadTrackFunc != nil {
		return m.LoadTrackFunc(ctx, trackID)
	}
	return &track.File{ID: trackID, TileSize: 32, Layout: []string{"#S#"}}, nil
}

func (m *MockRaceService) SaveTrack(ctx context.Context, f *track.File) error {
	if m.SaveTrackFunc != nil {
		return m.SaveTrackFunc(ctx, f)
	}
	return nil
}

func (m *MockRaceService) Close() {}

// Test helpers
func setupTestServer(t *testing.T, mockService *MockRaceService) *Server {
	t.Helper()
	hub := websocket.NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return NewServer(mockService, hub, zerolog.Nop())
}

func makeRequest(method, path string, body interface{}) *http.Request {
	var bodyBytes []byte
	if body != nil {
		bodyBytes, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewBuffer(bodyBytes))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), target); err != nil {
		t.Fatalf("Failed to parse response: %v (body %s)", err, w.Body.String())
	}
}

func serve(t *testing.T, mockService *MockRaceService, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	server := setupTestServer(t, mockService)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest(method, path, body))
	return w
}

// Race Tests

func TestStartRace(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    interface{}
		setupMock      func(*MockRaceService)
		expectedStatus int
		validateResp   func(*testing.T, *httptest.ResponseRecorder)
	}{
		{
			name:        "Start race with default difficulty",
			requestBody: nil,
			setupMock: func(m *MockRaceService) {
				m.StartRaceFunc = func(ctx context.Context, difficulty string) (*service.RaceInfo, error) {
					if difficulty != "" {
						t.Errorf("Expected empty difficulty, got %q", difficulty)
					}
					return &service.RaceInfo{ID: "ab12", Difficulty: "easy"}, nil
				}
			},
			expectedStatus: http.StatusCreated,
			validateResp: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp service.RaceInfo
				parseResponse(t, w, &resp)
				if resp.ID != "ab12" {
					t.Errorf("Expected race ID ab12, got %s", resp.ID)
				}
			},
		},
		{
			name:        "Start race with specific difficulty",
			requestBody: map[string]string{"difficulty": "hard"},
			setupMock: func(m *MockRaceService) {
				m.StartRaceFunc = func(ctx context.Context, difficulty string) (*service.RaceInfo, error) {
					return &service.RaceInfo{ID: "cd34", Difficulty: difficulty}, nil
				}
			},
			expectedStatus: http.StatusCreated,
			validateResp: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp service.RaceInfo
				parseResponse(t, w, &resp)
				if resp.Difficulty != "hard" {
					t.Errorf("Expected difficulty hard, got %s", resp.Difficulty)
				}
			},
		},
		{
			name:        "Unknown difficulty",
			requestBody: map[string]string{"difficulty": "nightmare"},
			setupMock: func(m *MockRaceService) {
				m.StartRaceFunc = func(ctx context.Context, difficulty string) (*service.RaceInfo, error) {
					return nil, fmt.Errorf("%w: %s", service.ErrUnknownDifficulty, difficulty)
				}
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:        "Missing track",
			requestBody: map[string]string{"difficulty": "easy"},
			setupMock: func(m *MockRaceService) {
				m.StartRaceFunc = func(ctx context.Context, difficulty string) (*service.RaceInfo, error) {
					return nil, fmt.Errorf("%w: track_a", service.ErrTrackNotFound)
				}
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:        "Handle service error",
			requestBody: nil,
			setupMock: func(m *MockRaceService) {
				m.StartRaceFunc = func(ctx context.Context, difficulty string) (*service.RaceInfo, error) {
					return nil, fmt.Errorf("service error")
				}
			},
			expectedStatus: http.StatusInternalServerError,
			validateResp: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp map[string]string
				parseResponse(t, w, &resp)
				if resp["error"] != "service error" {
					t.Errorf("Expected error message 'service error', got %s", resp["error"])
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockRaceService{}
			if tt.setupMock != nil {
				tt.setupMock(mockService)
			}

			w := serve(t, mockService, "POST", "/api/races", tt.requestBody)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.validateResp != nil {
				tt.validateResp(t, w)
			}
		})
	}
}

func TestStartRaceInvalidBody(t *testing.T) {
	server := setupTestServer(t, &MockRaceService{})
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/races", strings.NewReader("{not json"))
	server.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestListRaces(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	races := func() []*service.RaceInfo {
		return []*service.RaceInfo{
			{ID: "r001", Difficulty: "easy", CreatedAt: base, LastAccessedAt: base.Add(3 * time.Minute)},
			{ID: "r002", Difficulty: "hard", CreatedAt: base.Add(time.Minute), LastAccessedAt: base.Add(time.Minute)},
			{ID: "r003", Difficulty: "easy", CreatedAt: base.Add(2 * time.Minute), LastAccessedAt: base.Add(2 * time.Minute)},
		}
	}

	tests := []struct {
		name      string
		query     string
		wantIDs   []string
		wantTotal int
	}{
		{"default sorts by last access, newest first", "", []string{"r001", "r003", "r002"}, 3},
		{"created ascending", "?sort=created&order=asc", []string{"r001", "r002", "r003"}, 3},
		{"limit", "?sort=created&limit=2", []string{"r003", "r002"}, 3},
		{"filter by difficulty", "?difficulty=EASY&sort=created&order=asc", []string{"r001", "r003"}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockRaceService{
				ListRacesFunc: func(ctx context.Context) ([]*service.RaceInfo, error) {
					return races(), nil
				},
			}

			w := serve(t, mockService, "GET", "/api/races"+tt.query, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", w.Code)
			}

			var resp struct {
				Count int                 `json:"count"`
				Total int                 `json:"total"`
				Races []*service.RaceInfo `json:"races"`
			}
			parseResponse(t, w, &resp)

			if resp.Total != tt.wantTotal {
				t.Errorf("Expected total %d, got %d", tt.wantTotal, resp.Total)
			}
			if resp.Count != len(tt.wantIDs) || len(resp.Races) != len(tt.wantIDs) {
				t.Fatalf("Expected %d races, got count %d, %d races", len(tt.wantIDs), resp.Count, len(resp.Races))
			}
			for i, id := range tt.wantIDs {
				if resp.Races[i].ID != id {
					t.Errorf("Position %d: expected %s, got %s", i, id, resp.Races[i].ID)
				}
			}
		})
	}

	t.Run("service error", func(t *testing.T) {
		mockService := &MockRaceService{
			ListRacesFunc: func(ctx context.Context) ([]*service.RaceInfo, error) {
				return nil, fmt.Errorf("registry error")
			},
		}
		w := serve(t, mockService, "GET", "/api/races", nil)
		if w.Code != http.StatusInternalServerError {
			t.Errorf("Expected status 500, got %d", w.Code)
		}
	})
}

func TestGetAndDeleteRace(t *testing.T) {
	notFound := func(ctx context.Context, raceID string) (*service.RaceInfo, error) {
		return nil, fmt.Errorf("%w: %s", service.ErrRaceNotFound, raceID)
	}

	tests := []struct {
		name           string
		method         string
		path           string
		mock           *MockRaceService
		expectedStatus int
	}{
		{"get existing", "GET", "/api/races/ab12", &MockRaceService{}, http.StatusOK},
		{"get missing", "GET", "/api/races/zz99", &MockRaceService{GetRaceFunc: notFound}, http.StatusNotFound},
		{"delete existing", "DELETE", "/api/races/ab12", &MockRaceService{}, http.StatusOK},
		{"delete missing", "DELETE", "/api/races/zz99", &MockRaceService{
			DeleteRaceFunc: func(ctx context.Context, raceID string) error {
				return fmt.Errorf("%w: %s", service.ErrRaceNotFound, raceID)
			},
		}, http.StatusNotFound},
		{"wrong method", "PATCH", "/api/races/ab12", &MockRaceService{}, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, tt.mock, tt.method, tt.path, nil)
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestUnroutedRequests(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{"patch race", "PATCH", "/api/races/ab12", http.StatusMethodNotAllowed},
		{"get tick", "GET", "/api/races/ab12/tick", http.StatusMethodNotAllowed},
		{"delete difficulties", "DELETE", "/api/difficulties", http.StatusMethodNotAllowed},
		{"unknown path", "GET", "/api/nothing", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, &MockRaceService{}, tt.method, tt.path, nil)
			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			var body map[string]string
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("Expected a JSON error body: %v", err)
			}
			if body["error"] == "" {
				t.Error("Expected an error message")
			}
		})
	}
}

// Driving Tests

func TestSetInput(t *testing.T) {
	var got engine.InputFlags
	mockService := &MockRaceService{
		SetInputFunc: func(ctx context.Context, raceID string, input engine.InputFlags) (*engine.Snapshot, error) {
			got = input
			return &engine.Snapshot{Speed: 1.5}, nil
		},
	}

	w := serve(t, mockService, "PUT", "/api/races/ab12/input", engine.InputFlags{Forward: true, Right: true})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !got.Forward || !got.Right || got.Left || got.Backward {
		t.Errorf("Unexpected input passed to service: %+v", got)
	}

	var resp struct {
		Snapshot engine.Snapshot `json:"snapshot"`
	}
	parseResponse(t, w, &resp)
	if resp.Snapshot.Speed != 1.5 {
		t.Errorf("Expected snapshot speed 1.5, got %v", resp.Snapshot.Speed)
	}

	t.Run("missing body", func(t *testing.T) {
		w := serve(t, &MockRaceService{}, "PUT", "/api/races/ab12/input", nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})
}

func TestTick(t *testing.T) {
	tests := []struct {
		name           string
		body           interface{}
		setupMock      func(t *testing.T, m *MockRaceService)
		expectedStatus int
	}{
		{
			name: "defaults are passed through",
			body: nil,
			setupMock: func(t *testing.T, m *MockRaceService) {
				m.TickFunc = func(ctx context.Context, raceID string, dt float64, steps int) (*service.TickResult, error) {
					if dt != 0 || steps != 0 {
						t.Errorf("Expected zero dt and steps, got %v and %d", dt, steps)
					}
					return &service.TickResult{StepsRun: 1}, nil
				}
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "input is applied before ticking",
			body: map[string]interface{}{"dt": 0.02, "steps": 30, "input": map[string]bool{"forward": true}},
			setupMock: func(t *testing.T, m *MockRaceService) {
				inputSet := false
				m.SetInputFunc = func(ctx context.Context, raceID string, input engine.InputFlags) (*engine.Snapshot, error) {
					if !input.Forward {
						t.Error("Expected forward input")
					}
					inputSet = true
					return &engine.Snapshot{}, nil
				}
				m.TickFunc = func(ctx context.Context, raceID string, dt float64, steps int) (*service.TickResult, error) {
					if !inputSet {
						t.Error("Expected input to be set before ticking")
					}
					if dt != 0.02 || steps != 30 {
						t.Errorf("Expected dt 0.02 and 30 steps, got %v and %d", dt, steps)
					}
					return &service.TickResult{StepsRun: steps}, nil
				}
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "invalid tick",
			body: map[string]interface{}{"dt": 5},
			setupMock: func(t *testing.T, m *MockRaceService) {
				m.TickFunc = func(ctx context.Context, raceID string, dt float64, steps int) (*service.TickResult, error) {
					return nil, fmt.Errorf("%w: dt too large", service.ErrInvalidTick)
				}
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "missing race on input",
			body: map[string]interface{}{"input": map[string]bool{"left": true}},
			setupMock: func(t *testing.T, m *MockRaceService) {
				m.SetInputFunc = func(ctx context.Context, raceID string, input engine.InputFlags) (*engine.Snapshot, error) {
					return nil, service.ErrRaceNotFound
				}
				m.TickFunc = func(ctx context.Context, raceID string, dt float64, steps int) (*service.TickResult, error) {
					t.Error("Tick should not run when input fails")
					return nil, nil
				}
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name: "finishing tick",
			body: map[string]interface{}{"steps": 10},
			setupMock: func(t *testing.T, m *MockRaceService) {
				m.TickFunc = func(ctx context.Context, raceID string, dt float64, steps int) (*service.TickResult, error) {
					return &service.TickResult{
						StepsRun:      4,
						JustFinished:  true,
						Result:        &engine.RaceResult{ElapsedTime: 5, Finished: true},
						FormattedTime: "00:05.000",
					}, nil
				}
			},
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockRaceService{}
			tt.setupMock(t, mockService)

			w := serve(t, mockService, "POST", "/api/races/ab12/tick", tt.body)
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d (%s)", tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestRestartAndResult(t *testing.T) {
	mockService := &MockRaceService{
		RestartFunc: func(ctx context.Context, raceID string) (*service.RaceInfo, error) {
			return &service.RaceInfo{ID: raceID, Snapshot: engine.Snapshot{RaceState: engine.Racing}}, nil
		},
		ResultFunc: func(ctx context.Context, raceID string) (*engine.RaceResult, error) {
			return &engine.RaceResult{ElapsedTime: 65.25, Finished: true, Difficulty: "easy"}, nil
		},
	}

	w := serve(t, mockService, "POST", "/api/races/ab12/restart", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	w = serve(t, mockService, "GET", "/api/races/ab12/result", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp struct {
		Result        engine.RaceResult `json:"result"`
		FormattedTime string            `json:"formatted_time"`
	}
	parseResponse(t, w, &resp)
	if !resp.Result.Finished {
		t.Error("Expected finished result")
	}
	if resp.FormattedTime != "01:05.250" {
		t.Errorf("Expected formatted time 01:05.250, got %s", resp.FormattedTime)
	}
}

func TestLive(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		mock           *MockRaceService
		expectedStatus int
	}{
		{"start", "POST", &MockRaceService{}, http.StatusAccepted},
		{"start twice", "POST", &MockRaceService{
			StartLiveFunc: func(ctx context.Context, raceID string, hz int) error {
				return service.ErrLiveAlreadyRunning
			},
		}, http.StatusConflict},
		{"bad rate", "POST", &MockRaceService{
			StartLiveFunc: func(ctx context.Context, raceID string, hz int) error {
				return fmt.Errorf("%w: rate", service.ErrInvalidTick)
			},
		}, http.StatusBadRequest},
		{"stop", "DELETE", &MockRaceService{}, http.StatusOK},
		{"stop when idle", "DELETE", &MockRaceService{
			StopLiveFunc: func(raceID string) error { return service.ErrLiveNotRunning },
		}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, tt.mock, tt.method, "/api/races/ab12/live", map[string]int{"hz": 30})
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

// Catalogue Tests

func TestTracks(t *testing.T) {
	t.Run("get track with stats", func(t *testing.T) {
		mockService := &MockRaceService{
			LoadTrackFunc: func(ctx context.Context, trackID string) (*track.File, error) {
				if trackID != "track_a" {
					t.Errorf("Expected .json suffix to be trimmed, got %s", trackID)
				}
				return &track.File{ID: trackID, TileSize: 32, Layout: []string{"#S.F#"}}, nil
			},
		}
		w := serve(t, mockService, "GET", "/api/tracks/track_a.json", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		var resp struct {
			Track track.File  `json:"track"`
			Stats track.Stats `json:"stats"`
		}
		parseResponse(t, w, &resp)
		if !resp.Stats.HasSpawn || !resp.Stats.HasFinish {
			t.Errorf("Unexpected stats: %+v", resp.Stats)
		}
	})

	t.Run("missing track", func(t *testing.T) {
		mockService := &MockRaceService{
			LoadTrackFunc: func(ctx context.Context, trackID string) (*track.File, error) {
				return nil, service.ErrTrackNotFound
			},
		}
		w := serve(t, mockService, "GET", "/api/tracks/nope", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", w.Code)
		}
	})

	t.Run("save track", func(t *testing.T) {
		var saved *track.File
		mockService := &MockRaceService{
			SaveTrackFunc: func(ctx context.Context, f *track.File) error {
				saved = f
				return track.Validate(f)
			},
		}

		w := serve(t, mockService, "POST", "/api/tracks", track.File{ID: "new", TileSize: 32, Layout: []string{"#S#"}})
		if w.Code != http.StatusCreated {
			t.Fatalf("Expected status 201, got %d (%s)", w.Code, w.Body.String())
		}
		if saved == nil || saved.ID != "new" {
			t.Error("Expected track to be passed to the service")
		}

		w = serve(t, mockService, "POST", "/api/tracks", track.File{ID: "bad", TileSize: 1, Layout: []string{"#"}})
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400 for invalid track, got %d", w.Code)
		}

		w = serve(t, mockService, "POST", "/api/tracks", track.File{TileSize: 32, Layout: []string{"#"}})
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400 for missing id, got %d", w.Code)
		}
	})

	t.Run("list", func(t *testing.T) {
		mockService := &MockRaceService{
			ListTracksFunc: func(ctx context.Context) ([]*service.TrackInfo, error) {
				return []*service.TrackInfo{{TrackID: "track_a"}, {TrackID: "track_b"}}, nil
			},
			ListDifficultiesFunc: func(ctx context.Context) ([]*service.Difficulty, error) {
				return []*service.Difficulty{{Name: "easy", TrackID: "track_a"}}, nil
			},
		}

		w := serve(t, mockService, "GET", "/api/tracks", nil)
		var tracks []*service.TrackInfo
		parseResponse(t, w, &tracks)
		if len(tracks) != 2 {
			t.Errorf("Expected 2 tracks, got %d", len(tracks))
		}

		w = serve(t, mockService, "GET", "/api/difficulties", nil)
		var difficulties []*service.Difficulty
		parseResponse(t, w, &difficulties)
		if len(difficulties) != 1 || difficulties[0].Name != "easy" {
			t.Errorf("Unexpected difficulties: %+v", difficulties)
		}
	})
}

func TestHealth(t *testing.T) {
	w := serve(t, &MockRaceService{}, "GET", "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestWebSocketEndpoint(t *testing.T) {
	t.Run("missing race parameter", func(t *testing.T) {
		w := serve(t, &MockRaceService{}, "GET", "/ws", nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})

	t.Run("unknown race", func(t *testing.T) {
		mockService := &MockRaceService{
			GetRaceFunc: func(ctx context.Context, raceID string) (*service.RaceInfo, error) {
				return nil, service.ErrRaceNotFound
			},
		}
		w := serve(t, mockService, "GET", "/ws?race=zz99", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", w.Code)
		}
	})
}

// TestDriveRaceEndToEnd runs the real service behind the API and drives the
// bundled first track to the finish line
func TestDriveRaceEndToEnd(t *testing.T) {
	tracks, err := config.NewManager("../tracks")
	if err != nil {
		t.Fatalf("Failed to create track manager: %v", err)
	}
	settings := &config.Settings{
		TickRate:          60,
		DefaultDifficulty: "easy",
		Presets: map[string]config.DifficultySettings{
			"easy": {MaxSpeedFactor: 0.8, BurstFactor: 0.7, Track: "track_a"},
		},
	}

	hub := websocket.NewHub(zerolog.Nop())
	svc, err := service.NewRaceService(session.NewManager(), tracks, settings,
		service.WithRandSource(func() engine.RandSource { return nil }),
		service.WithTickListener(hub.BroadcastSnapshot),
	)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	defer svc.Close()

	hub.OnInput(func(ctx context.Context, raceID string, input engine.InputFlags) error {
		_, err := svc.SetInput(ctx, raceID, input)
		return err
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	server := httptest.NewServer(NewServer(svc, hub, zerolog.Nop()))
	defer server.Close()

	post := func(path string, body interface{}, target interface{}) int {
		data, _ := json.Marshal(body)
		resp, err := http.Post(server.URL+path, "application/json", bytes.NewReader(data))
		if err != nil {
			t.Fatalf("POST %s failed: %v", path, err)
		}
		defer resp.Body.Close()
		if target != nil {
			if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
				t.Fatalf("Failed to decode %s response: %v", path, err)
			}
		}
		return resp.StatusCode
	}

	var race service.RaceInfo
	if status := post("/api/races", map[string]string{"difficulty": "easy"}, &race); status != http.StatusCreated {
		t.Fatalf("Expected 201 starting race, got %d", status)
	}
	if race.TrackID != "track_a" {
		t.Errorf("Expected track_a, got %s", race.TrackID)
	}

	// Drive forward over the WebSocket, then advance over REST
	conn, _, err := gorillaws.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws?race="+race.ID, nil)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(websocket.ClientMessage{Type: websocket.TypeInput, Input: &engine.InputFlags{Forward: true}}); err != nil {
		t.Fatalf("Failed to send input: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ack websocket.Message
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("Failed to read ack: %v", err)
	}
	if ack.Event != websocket.EventInputAck {
		t.Fatalf("Expected input ack, got %q (%v)", ack.Event, ack.Data)
	}

	var result service.TickResult
	if status := post("/api/races/"+race.ID+"/tick", map[string]interface{}{"steps": 600}, &result); status != http.StatusOK {
		t.Fatalf("Expected 200 ticking race, got %d", status)
	}
	if !result.JustFinished || result.Result == nil || !result.Result.Finished {
		t.Fatalf("Expected race to finish, got %+v", result)
	}
	if result.StepsRun >= 600 {
		t.Errorf("Expected ticking to stop at the finish, ran %d steps", result.StepsRun)
	}

	// The finishing snapshot is broadcast to the watcher
	for {
		var m websocket.Message
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatalf("Failed to read snapshot: %v", err)
		}
		if m.Event == websocket.EventSnapshot && m.Snapshot != nil {
			if m.Snapshot.RaceState != engine.Finished {
				t.Errorf("Expected finished snapshot, got %s", m.Snapshot.RaceState)
			}
			break
		}
	}
}
