package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/wricardo/mcp-training/roadracer/game/service"
	"github.com/wricardo/mcp-training/roadracer/game/track"
)

var (
	ErrTrackNotFound  = errors.New("track not found")
	ErrInvalidTrackID = fmt.Errorf("%w: bad track id", track.ErrInvalidTrack)
)

var trackIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Manager handles track loading and caching
type Manager struct {
	tracksDir  string
	tracks     map[string]*track.File
	geometries map[string]*track.Geometry
	mu         sync.RWMutex
}

// NewManager creates a new track manager
func NewManager(tracksDir string) (*Manager, error) {
	// Ensure tracks directory exists
	if _, err := os.Stat(tracksDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("tracks directory does not exist: %s", tracksDir)
	}

	return &Manager{
		tracksDir:  tracksDir,
		tracks:     make(map[string]*track.File),
		geometries: make(map[string]*track.Geometry),
	}, nil
}

// LoadTrack loads a track by id. The file name is the id.
func (m *Manager) LoadTrack(id string) (*track.File, error) {
	id = strings.TrimSuffix(id, ".json")
	if !trackIDPattern.MatchString(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTrackID, id)
	}

	m.mu.RLock()
	// Check cache first
	if f, exists := m.tracks[id]; exists {
		m.mu.RUnlock()
		return f, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if f, exists := m.tracks[id]; exists {
		return f, nil
	}

	f, err := track.LoadFile(filepath.Join(m.tracksDir, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrTrackNotFound
		}
		return nil, err
	}
	if f.ID != id {
		return nil, fmt.Errorf("%w: file %s.json declares id %q", track.ErrInvalidTrack, id, f.ID)
	}

	m.tracks[id] = f
	return f, nil
}

// LoadGeometry returns the built geometry for a track, building it once
func (m *Manager) LoadGeometry(id string) (*track.Geometry, error) {
	f, err := m.LoadTrack(id)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	g, exists := m.geometries[f.ID]
	m.mu.RUnlock()
	if exists {
		return g, nil
	}

	g, err = track.Build(f)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cached, exists := m.geometries[f.ID]; exists {
		return cached, nil
	}
	m.geometries[f.ID] = g
	return g, nil
}

// ListTracks returns information about all valid tracks, sorted by id
func (m *Manager) ListTracks() ([]*service.TrackInfo, error) {
	entries, err := os.ReadDir(m.tracksDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read tracks directory: %w", err)
	}

	var tracks []*service.TrackInfo

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		id := strings.TrimSuffix(entry.Name(), ".json")
		f, err := m.LoadTrack(id)
		if err != nil {
			// Skip invalid tracks
			continue
		}

		stats := track.ComputeStats(f)
		tracks = append(tracks, &service.TrackInfo{
			Filename:    entry.Name(),
			TrackID:     id,
			Name:        f.Name,
			Description: f.Description,
			Rows:        stats.Rows,
			Cols:        stats.Cols,
			TileSize:    f.TileSize,
			HasSpawn:    stats.HasSpawn,
			HasFinish:   stats.HasFinish,
		})
	}

	sort.Slice(tracks, func(i, j int) bool { return tracks[i].TrackID < tracks[j].TrackID })
	return tracks, nil
}

// SaveTrack validates a track and writes it as <id>.json
func (m *Manager) SaveTrack(f *track.File) error {
	if f == nil {
		return fmt.Errorf("%w: empty track", track.ErrInvalidTrack)
	}
	if err := track.Validate(f); err != nil {
		return err
	}
	if !trackIDPattern.MatchString(f.ID) {
		return fmt.Errorf("%w: %q", ErrInvalidTrackID, f.ID)
	}

	if f.Legend == nil {
		f.Legend = make(map[string]string, len(track.DefaultLegend))
		for k, v := range track.DefaultLegend {
			f.Legend[k] = v
		}
	}

	// Marshal track to JSON with indentation
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal track: %w", err)
	}

	if err := os.WriteFile(filepath.Join(m.tracksDir, f.ID+".json"), data, 0644); err != nil {
		return fmt.Errorf("failed to write track file: %w", err)
	}

	// Update cache; the geometry is rebuilt on next use
	m.mu.Lock()
	m.tracks[f.ID] = f
	delete(m.geometries, f.ID)
	m.mu.Unlock()

	return nil
}
