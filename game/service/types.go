package service

import (
	"time"

	"github.com/wricardo/mcp-training/roadracer/game/engine"
)

// RaceInfo provides information about a race session
type RaceInfo struct {
	ID             string             `json:"id"`
	Difficulty     string             `json:"difficulty"`
	TrackID        string             `json:"track_id"`
	CreatedAt      time.Time          `json:"created_at"`
	LastAccessedAt time.Time          `json:"last_accessed_at"`
	Input          engine.InputFlags  `json:"input"`
	Live           bool               `json:"live"`
	Snapshot       engine.Snapshot    `json:"snapshot"`
	Result         *engine.RaceResult `json:"result,omitempty"`
}

// TickResult is the outcome of advancing a race one or more ticks
type TickResult struct {
	StepsRequested int                `json:"steps_requested"`
	StepsRun       int                `json:"steps_run"`
	Dt             float64            `json:"dt"`
	JustFinished   bool               `json:"just_finished"`
	Snapshot       engine.Snapshot    `json:"snapshot"`
	Result         *engine.RaceResult `json:"result,omitempty"`
	FormattedTime  string             `json:"formatted_time"`
}

// Difficulty is a named tuning preset bound to a track
type Difficulty struct {
	Name           string  `json:"name"`
	Description    string  `json:"description,omitempty"`
	MaxSpeedFactor float64 `json:"max_speed_factor"`
	BurstFactor    float64 `json:"burst_factor"`
	TrackID        string  `json:"track_id"`
}

// Params returns the speed tuning for this preset
func (d *Difficulty) Params() engine.SpeedParams {
	return engine.DefaultSpeedParams(d.MaxSpeedFactor, d.BurstFactor)
}

// TrackInfo provides information about a track file
type TrackInfo struct {
	Filename    string  `json:"filename"`
	TrackID     string  `json:"track_id"` // The identifier difficulties refer to
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Rows        int     `json:"rows"`
	Cols        int     `json:"cols"`
	TileSize    float64 `json:"tile_size"`
	HasSpawn    bool    `json:"has_spawn"`
	HasFinish   bool    `json:"has_finish"`
}
