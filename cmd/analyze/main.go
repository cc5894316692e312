// Command analyze prints quick, human-readable statistics about the track
// files in the project's tracks directory. It summarizes dimensions, tile
// counts by kind, the drivable share of the grid, and the shortest tile
// route from spawn to finish with a rough lap time estimate.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/wricardo/mcp-training/roadracer/game/engine"
	"github.com/wricardo/mcp-training/roadracer/game/track"
)

// TrackReport is what analyze prints for one track
type TrackReport struct {
	ID          string
	Name        string
	TileSize    float64
	Stats       track.Stats
	RouteTiles  int
	Reachable   bool
	BestSeconds float64
}

func main() {
	trackDir := "tracks"
	if len(os.Args) > 1 {
		trackDir = os.Args[1]
	}
	files, err := filepath.Glob(filepath.Join(trackDir, "*.json"))
	if err != nil {
		fmt.Printf("Error finding track files: %v\n", err)
		os.Exit(1)
	}
	sort.Strings(files)

	for _, file := range files {
		fmt.Printf("\n=== Analyzing %s ===\n", filepath.Base(file))
		report, err := analyzeTrack(file)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		printReport(os.Stdout, report)
	}
}

// analyzeTrack loads a track and computes its report
func analyzeTrack(path string) (*TrackReport, error) {
	f, err := track.LoadFile(path)
	if err != nil {
		return nil, err
	}
	r := &TrackReport{
		ID:       f.ID,
		Name:     f.Name,
		TileSize: f.TileSize,
		Stats:    track.ComputeStats(f),
	}
	r.RouteTiles, r.Reachable = track.FinishDistance(f)
	if r.Reachable {
		r.BestSeconds = bestLapSeconds(r.RouteTiles, f.TileSize)
	}
	return r, nil
}

// bestLapSeconds is the time to cover the route at full speed on open road,
// one world unit per speed unit per reference frame. Slow road and turning
// only make a real lap slower.
func bestLapSeconds(tiles int, tileSize float64) float64 {
	perSecond := engine.PlayerMaxSpeed * engine.ReferenceTickRate
	return float64(tiles) * tileSize / perSecond
}

func printReport(w io.Writer, r *TrackReport) {
	fmt.Fprintf(w, "ID: %s\n", r.ID)
	fmt.Fprintf(w, "Name: %s\n", r.Name)
	fmt.Fprintf(w, "Grid Size: %d x %d (tile %.0f)\n", r.Stats.Cols, r.Stats.Rows, r.TileSize)

	kinds := make([]string, 0, len(r.Stats.Counts))
	for k := range r.Stats.Counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "  %-10s %d\n", k+":", r.Stats.Counts[k])
	}
	fmt.Fprintf(w, "Drivable: %.0f%%\n", r.Stats.Drivable*100)

	switch {
	case !r.Stats.HasSpawn:
		fmt.Fprintf(w, "⚠️  WARNING: no spawn, races start at the origin\n")
	case !r.Stats.HasFinish:
		fmt.Fprintf(w, "⚠️  WARNING: no finish line, races never end\n")
	case !r.Reachable:
		fmt.Fprintf(w, "⚠️  CRITICAL: finish line unreachable from spawn\n")
	default:
		fmt.Fprintf(w, "✅ Finish reachable in %d tiles (best case %s)\n", r.RouteTiles, engine.FormatRaceTime(r.BestSeconds))
	}
}
