package track

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/wricardo/mcp-training/roadracer/game/engine"
)

var ErrInvalidTrack = errors.New("invalid track")

// Layout characters
const (
	CharWall     = '#'
	CharRoad     = '.'
	CharSlowRoad = '~'
	CharFinish   = 'F'
	CharSpawn    = 'S'
	CharEmpty    = ' '
)

const (
	MinTileSize = 4.0
	MaxTileSize = 512.0
	MaxGridSize = 256
)

// DefaultLegend describes the layout characters for tools and renderers
var DefaultLegend = map[string]string{
	string(CharWall):     "wall",
	string(CharRoad):     "road",
	string(CharSlowRoad): "slow_road",
	string(CharFinish):   "finish",
	string(CharSpawn):    "spawn",
	string(CharEmpty):    "empty",
}

// File is the on-disk track description
type File struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	TileSize     float64           `json:"tile_size"`
	Layout       []string          `json:"layout"`
	Legend       map[string]string `json:"legend,omitempty"`
	SpawnHeading float64           `json:"spawn_heading"`
	Zones        []ZoneSpec        `json:"zones,omitempty"`
}

// ZoneSpec is an extra polygon zone on top of the tile grid
type ZoneSpec struct {
	Kind   engine.ZoneKind `json:"kind"`
	Points [][2]float64    `json:"points"`
}

// Parse decodes and validates a track
func Parse(data []byte) (*File, error) {
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse track: %w", err)
	}
	if err := Validate(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadFile reads a track from disk
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Validate checks a track for structural problems. Tracks without slow
// roads, a finish or a spawn are accepted.
func Validate(f *File) error {
	if f.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidTrack)
	}
	if f.TileSize < MinTileSize || f.TileSize > MaxTileSize || math.IsNaN(f.TileSize) {
		return fmt.Errorf("%w: tile_size must be between %v and %v, got %v", ErrInvalidTrack, MinTileSize, MaxTileSize, f.TileSize)
	}
	if len(f.Layout) == 0 || len(f.Layout) > MaxGridSize {
		return fmt.Errorf("%w: layout must have between 1 and %d rows, got %d", ErrInvalidTrack, MaxGridSize, len(f.Layout))
	}

	width := len(f.Layout[0])
	if width == 0 || width > MaxGridSize {
		return fmt.Errorf("%w: rows must have between 1 and %d columns, got %d", ErrInvalidTrack, MaxGridSize, width)
	}

	spawns := 0
	for i, row := range f.Layout {
		if len(row) != width {
			return fmt.Errorf("%w: row %d must have %d characters, got %d", ErrInvalidTrack, i+1, width, len(row))
		}
		for j := 0; j < len(row); j++ {
			switch row[j] {
			case CharWall, CharRoad, CharSlowRoad, CharFinish, CharEmpty:
			case CharSpawn:
				spawns++
			default:
				return fmt.Errorf("%w: invalid character '%c' at row %d, col %d", ErrInvalidTrack, row[j], i+1, j+1)
			}
		}
	}
	if spawns > 1 {
		return fmt.Errorf("%w: at most one spawn (S) allowed, got %d", ErrInvalidTrack, spawns)
	}

	for i, z := range f.Zones {
		switch z.Kind {
		case engine.ZoneRoad, engine.ZoneSlowRoad, engine.ZoneFinish, engine.ZoneWall:
		default:
			return fmt.Errorf("%w: zone %d has unknown kind %q", ErrInvalidTrack, i+1, z.Kind)
		}
		if len(z.Points) < 3 {
			return fmt.Errorf("%w: zone %d needs at least 3 points, got %d", ErrInvalidTrack, i+1, len(z.Points))
		}
		for _, p := range z.Points {
			if math.IsNaN(p[0]) || math.IsNaN(p[1]) || math.IsInf(p[0], 0) || math.IsInf(p[1], 0) {
				return fmt.Errorf("%w: zone %d has a non-finite point", ErrInvalidTrack, i+1)
			}
		}
	}
	return nil
}

// Stats summarises a track layout
type Stats struct {
	Rows      int            `json:"rows"`
	Cols      int            `json:"cols"`
	Counts    map[string]int `json:"counts"`
	HasSpawn  bool           `json:"has_spawn"`
	HasFinish bool           `json:"has_finish"`
	Drivable  float64        `json:"drivable_ratio"`
}

// ComputeStats counts tiles by kind
func ComputeStats(f *File) Stats {
	s := Stats{Rows: len(f.Layout), Counts: make(map[string]int)}
	if s.Rows > 0 {
		s.Cols = len(f.Layout[0])
	}
	drivable := 0
	for _, row := range f.Layout {
		for j := 0; j < len(row); j++ {
			c := row[j]
			s.Counts[DefaultLegend[string(c)]]++
			switch c {
			case CharSpawn:
				s.HasSpawn = true
			case CharFinish:
				s.HasFinish = true
			}
			if Drivable(c) {
				drivable++
			}
		}
	}
	if total := s.Rows * s.Cols; total > 0 {
		s.Drivable = float64(drivable) / float64(total)
	}
	return s
}
