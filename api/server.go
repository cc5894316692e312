package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/wricardo/mcp-training/roadracer/game/engine"
	"github.com/wricardo/mcp-training/roadracer/game/service"
	"github.com/wricardo/mcp-training/roadracer/game/track"
	"github.com/wricardo/mcp-training/roadracer/transport/websocket"
)

// maxBodyBytes bounds request bodies; the largest is a 256x256 track
const maxBodyBytes = 1 << 20

// Server represents the REST API server
type Server struct {
	service service.RaceService
	hub     *websocket.Hub
	router  *mux.Router
	logger  zerolog.Logger
}

// NewServer creates a new API server. hub may be nil, in which case /ws
// is not served.
func NewServer(raceService service.RaceService, hub *websocket.Hub, logger zerolog.Logger) *Server {
	s := &Server{
		service: raceService,
		hub:     hub,
		router:  mux.NewRouter(),
		logger:  logger,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.Use(s.logRequests)

	api := s.router.PathPrefix("/api").Subrouter()
	api.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	api.NotFoundHandler = http.HandlerFunc(notFound)

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Races
	api.HandleFunc("/races", s.handleStartRace).Methods("POST")
	api.HandleFunc("/races", s.handleListRaces).Methods("GET")
	api.HandleFunc("/races/{id}", s.handleGetRace).Methods("GET")
	api.HandleFunc("/races/{id}", s.handleDeleteRace).Methods("DELETE")

	// Driving
	api.HandleFunc("/races/{id}/snapshot", s.handleSnapshot).Methods("GET")
	api.HandleFunc("/races/{id}/input", s.handleSetInput).Methods("PUT")
	api.HandleFunc("/races/{id}/tick", s.handleTick).Methods("POST")
	api.HandleFunc("/races/{id}/restart", s.handleRestart).Methods("POST")
	api.HandleFunc("/races/{id}/result", s.handleResult).Methods("GET")
	api.HandleFunc("/races/{id}/live", s.handleStartLive).Methods("POST")
	api.HandleFunc("/races/{id}/live", s.handleStopLive).Methods("DELETE")

	// Catalogue
	api.HandleFunc("/difficulties", s.handleListDifficulties).Methods("GET")
	api.HandleFunc("/tracks", s.handleListTracks).Methods("GET")
	api.HandleFunc("/tracks", s.handleSaveTrack).Methods("POST")
	api.HandleFunc("/tracks/{id}", s.handleGetTrack).Methods("GET")

	// WebSocket
	if s.hub != nil {
		s.router.HandleFunc("/ws", s.handleWebSocket)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// statusRecorder captures the status code for request logs
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// logRequests writes one structured line per API request. WebSocket
// upgrades are passed through untouched because they need the hijacker.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// Response helpers

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondError(w, http.StatusMethodNotAllowed, fmt.Sprintf("method %s not allowed on %s", r.Method, r.URL.Path))
}

func notFound(w http.ResponseWriter, r *http.Request) {
	respondError(w, http.StatusNotFound, "no route for "+r.URL.Path)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps service errors to status codes
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrRaceNotFound),
		errors.Is(err, service.ErrTrackNotFound),
		errors.Is(err, service.ErrLiveNotRunning):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrUnknownDifficulty),
		errors.Is(err, service.ErrInvalidTick),
		errors.Is(err, track.ErrInvalidTrack):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrLiveAlreadyRunning):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// decodeBody decodes an optional JSON body. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Race Handlers

func (s *Server) handleStartRace(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Difficulty string `json:"difficulty,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	race, err := s.service.StartRace(r.Context(), req.Difficulty)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, race)
}

func (s *Server) handleListRaces(w http.ResponseWriter, r *http.Request) {
	races, err := s.service.ListRaces(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	total := len(races)

	query := r.URL.Query()
	sortBy := query.Get("sort") // "created", "accessed" (default)
	order := query.Get("order") // "asc", "desc" (default)
	if sortBy == "" {
		sortBy = "accessed"
	}
	if order == "" {
		order = "desc"
	}

	if difficulty := query.Get("difficulty"); difficulty != "" {
		filtered := races[:0]
		for _, race := range races {
			if strings.EqualFold(race.Difficulty, difficulty) {
				filtered = append(filtered, race)
			}
		}
		races = filtered
	}

	sort.SliceStable(races, func(i, j int) bool {
		var ti, tj time.Time
		if sortBy == "created" {
			ti, tj = races[i].CreatedAt, races[j].CreatedAt
		} else {
			ti, tj = races[i].LastAccessedAt, races[j].LastAccessedAt
		}

		if order == "asc" {
			return ti.Before(tj)
		}
		return ti.After(tj)
	})

	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < len(races) {
			races = races[:l]
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(races),
		"total": total,
		"races": races,
		"sort":  sortBy,
		"order": order,
	})
}

func (s *Server) handleGetRace(w http.ResponseWriter, r *http.Request) {
	race, err := s.service.GetRace(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, race)
}

func (s *Server) handleDeleteRace(w http.ResponseWriter, r *http.Request) {
	raceID := mux.Vars(r)["id"]

	if err := s.service.DeleteRace(r.Context(), raceID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Race %s deleted", raceID),
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Snapshot(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSetInput(w http.ResponseWriter, r *http.Request) {
	var input engine.InputFlags
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	snap, err := s.service.SetInput(r.Context(), mux.Vars(r)["id"], input)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"input":    input,
		"snapshot": snap,
	})
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	raceID := mux.Vars(r)["id"]

	var req struct {
		Dt    float64            `json:"dt,omitempty"`
		Steps int                `json:"steps,omitempty"`
		Input *engine.InputFlags `json:"input,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if req.Input != nil {
		if _, err := s.service.SetInput(r.Context(), raceID, *req.Input); err != nil {
			respondServiceError(w, err)
			return
		}
	}

	result, err := s.service.Tick(r.Context(), raceID, req.Dt, req.Steps)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if result.JustFinished {
		s.logger.Info().
			Str("race_id", raceID).
			Str("time", result.FormattedTime).
			Msg("race finished via api")
		if s.hub != nil {
			s.hub.BroadcastEvent(raceID, "race_finished", result.Result)
		}
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	race, err := s.service.Restart(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if s.hub != nil {
		s.hub.BroadcastSnapshot(race.ID, race.Snapshot)
	}

	respondJSON(w, http.StatusOK, race)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.Result(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"result":         result,
		"formatted_time": engine.FormatRaceTime(result.ElapsedTime),
	})
}

func (s *Server) handleStartLive(w http.ResponseWriter, r *http.Request) {
	raceID := mux.Vars(r)["id"]

	var req struct {
		Hz int `json:"hz,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.service.StartLive(r.Context(), raceID, req.Hz); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"race_id": raceID,
		"live":    true,
	})
}

func (s *Server) handleStopLive(w http.ResponseWriter, r *http.Request) {
	raceID := mux.Vars(r)["id"]

	if err := s.service.StopLive(raceID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"race_id": raceID,
		"live":    false,
	})
}

// Catalogue Handlers

func (s *Server) handleListDifficulties(w http.ResponseWriter, r *http.Request) {
	difficulties, err := s.service.ListDifficulties(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, difficulties)
}

func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.service.ListTracks(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, tracks)
}

func (s *Server) handleGetTrack(w http.ResponseWriter, r *http.Request) {
	trackID := strings.TrimSuffix(mux.Vars(r)["id"], ".json")

	f, err := s.service.LoadTrack(r.Context(), trackID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"track": f,
		"stats": track.ComputeStats(f),
	})
}

func (s *Server) handleSaveTrack(w http.ResponseWriter, r *http.Request) {
	var f track.File
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&f); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if f.ID == "" {
		respondError(w, http.StatusBadRequest, "Track id is required")
		return
	}

	if err := s.service.SaveTrack(r.Context(), &f); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message":  "Track saved successfully",
		"track_id": f.ID,
	})
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	raceID := r.URL.Query().Get("race")
	if raceID == "" {
		http.Error(w, "race parameter required", http.StatusBadRequest)
		return
	}

	race, err := s.service.GetRace(r.Context(), raceID)
	if err != nil {
		http.Error(w, "Invalid race", http.StatusNotFound)
		return
	}

	// Canonical id so broadcasts from the service reach this client
	s.hub.ServeWS(w, r, race.ID)
}
