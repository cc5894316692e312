// Command validate checks the track files in a directory (default
// ../tracks). For each file it reports:
//   - JSON and structural problems found by the track parser
//   - geometry that cannot be built
//   - a missing spawn or finish line, as warnings
//   - a finish line that cannot be reached from the spawn
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wricardo/mcp-training/roadracer/game/track"
)

// ValidationResult is the outcome of validating one file. Info lines are
// only filled in for valid files.
type ValidationResult struct {
	File     string
	Valid    bool
	Errors   []string
	Warnings []string
	Info     []string
}

func (r *ValidationResult) fail(format string, args ...interface{}) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// validateTrack loads a track file and runs every check on it
func validateTrack(filePath string) ValidationResult {
	result := ValidationResult{File: filepath.Base(filePath), Valid: true}

	f, err := track.LoadFile(filePath)
	if err != nil {
		result.fail("%v", err)
		return result
	}

	if want := strings.TrimSuffix(result.File, filepath.Ext(result.File)); f.ID != want {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("id %q differs from file name; the server serves this track as %q", f.ID, want))
	}

	geo, err := track.Build(f)
	if err != nil {
		result.fail("geometry: %v", err)
		return result
	}

	stats := track.ComputeStats(f)
	if !stats.HasSpawn {
		result.Warnings = append(result.Warnings, "no spawn (S); races start at the origin")
	}
	if !stats.HasFinish {
		result.Warnings = append(result.Warnings, "no finish (F); races can never end")
	}

	if stats.HasSpawn && stats.HasFinish && len(f.Zones) == 0 {
		steps, ok := track.FinishDistance(f)
		if !ok {
			result.fail("finish line unreachable from spawn")
			return result
		}
		result.Info = append(result.Info, fmt.Sprintf("✓ Finish reachable in %d tiles", steps))
	}

	bounds := geo.Bounds()
	result.Info = append(result.Info,
		fmt.Sprintf("✓ Name: %s", f.Name),
		fmt.Sprintf("✓ Grid: %dx%d tiles of %.0f", stats.Rows, stats.Cols, f.TileSize),
		fmt.Sprintf("✓ World: %.0f x %.0f", bounds.MaxX-bounds.MinX, bounds.MaxY-bounds.MinY),
		fmt.Sprintf("✓ Drivable: %.0f%%", stats.Drivable*100),
	)
	if len(f.Zones) > 0 {
		result.Info = append(result.Info, fmt.Sprintf("✓ Polygon zones: %d", len(f.Zones)))
	}
	return result
}

// main validates every *.json file in the directory given as the first
// argument and exits non-zero if any are invalid
func main() {
	trackDir := "../tracks"
	if len(os.Args) > 1 {
		trackDir = os.Args[1]
	}
	files, err := filepath.Glob(filepath.Join(trackDir, "*.json"))
	if err != nil {
		fmt.Printf("Error finding track files: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Printf("No track files in %s\n", trackDir)
		os.Exit(1)
	}

	allValid := true
	for _, file := range files {
		result := validateTrack(file)

		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)
		if result.Valid {
			fmt.Println("✅ VALID")
			for _, info := range result.Info {
				fmt.Println("  " + info)
			}
		} else {
			fmt.Println("❌ INVALID")
			allValid = false
			for _, e := range result.Errors {
				fmt.Println("  ❌ " + e)
			}
		}
		for _, w := range result.Warnings {
			fmt.Println("  ⚠️  " + w)
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Println("✅ All tracks are valid!")
	} else {
		fmt.Println("❌ Some tracks have errors")
		os.Exit(1)
	}
}
