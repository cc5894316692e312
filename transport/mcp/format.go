package mcp

import (
	"fmt"
	"strings"

	"github.com/wricardo/mcp-training/roadracer/game/engine"
	"github.com/wricardo/mcp-training/roadracer/game/service"
	"github.com/wricardo/mcp-training/roadracer/game/track"
)

const raceInstructions = `Road Racer Driving Rules

GOAL:
Drive from the spawn point (S) to the finish line (F). The timer starts when
the race starts and stops the moment the car touches the finish.

MAP:
  # = wall (blocks the car)
  . = road
  ~ = slow road (top speed drops to 40%)
  F = finish line
  S = spawn
Row 0 is the top of the map. World Y grows upwards, X grows to the right.

HEADING:
Degrees clockwise from north: 0 = up, 90 = right, 180 = down, 270 = left.

KEYS:
- forward: accelerate towards top speed
- backward: reverse at half top speed
- left / right: rotate 5 degrees per tick, only while the car is rolling
- no throttle: the car coasts down to a stop

TIPS:
- Use advance with steps=60 to drive one second at a time
- Stay off slow road (~) whenever possible
- Walls stop the car along the blocked axis only, so you can slide along them
- After finishing, the race is frozen; use restart_race to try again
`

// formatSnapshot renders the car state for humans and agents alike
func formatSnapshot(s *engine.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "State: %s\n", s.RaceState)
	fmt.Fprintf(&b, "Time: %s\n", engine.FormatRaceTime(s.ElapsedTime))
	fmt.Fprintf(&b, "Position: (%.1f, %.1f)\n", s.Position.X, s.Position.Y)
	fmt.Fprintf(&b, "Heading: %.0f° (%s)\n", s.Heading, compass(s.Heading))
	fmt.Fprintf(&b, "Speed: %.2f (target %.2f, %s)\n", s.Speed, s.TargetSpeed, engine.DisplaySpeed(s.Speed))
	if s.OnSlowRoad {
		b.WriteString("Surface: slow road\n")
	}
	fmt.Fprintf(&b, "Tick: %d\n", s.Tick)
	if s.RaceState == engine.Finished {
		fmt.Fprintf(&b, "\n🏁 FINISHED in %s!\n", engine.FormatRaceTime(s.ElapsedTime))
	}
	return b.String()
}

func formatTickResult(r *service.TickResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Advanced %d of %d ticks (dt %.4fs)\n\n", r.StepsRun, r.StepsRequested, r.Dt)
	b.WriteString(formatSnapshot(&r.Snapshot))
	if r.JustFinished {
		b.WriteString("You just crossed the finish line.\n")
	} else if r.StepsRun == 0 && r.Snapshot.RaceState == engine.Finished {
		b.WriteString("The race is already over. Use restart_race to drive again.\n")
	}
	return b.String()
}

func formatKeys(in engine.InputFlags) string {
	var held []string
	if in.Forward {
		held = append(held, "forward")
	}
	if in.Backward {
		held = append(held, "backward")
	}
	if in.Left {
		held = append(held, "left")
	}
	if in.Right {
		held = append(held, "right")
	}
	if len(held) == 0 {
		return "none"
	}
	return strings.Join(held, ", ")
}

// compass names the nearest of eight directions for a heading in degrees
func compass(heading float64) string {
	names := []string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}
	i := int((heading+22.5)/45) % len(names)
	if i < 0 {
		i += len(names)
	}
	return names[i]
}

// formatMinimap draws the layout window around pos with the car as 'C'
func formatMinimap(f *track.File, g *track.Geometry, pos engine.Vec2, radius int) string {
	carRow, carCol, ok := g.CellAt(pos)
	if !ok {
		return "Minimap: car is outside the track\n"
	}
	rows, cols := g.Size()

	var b strings.Builder
	fmt.Fprintf(&b, "Minimap (car at row %d, col %d):\n", carRow, carCol)
	for r := carRow - radius; r <= carRow+radius; r++ {
		if r < 0 || r >= rows {
			continue
		}
		for c := carCol - radius; c <= carCol+radius; c++ {
			switch {
			case c < 0 || c >= cols:
				continue
			case r == carRow && c == carCol:
				b.WriteByte('C')
			default:
				b.WriteByte(f.Layout[r][c])
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func describeTile(f *track.File, g *track.Geometry, row, col int) string {
	char := f.Layout[row][col]
	name := track.DefaultLegend[string(char)]
	if custom, ok := f.Legend[string(char)]; ok && custom != "" {
		name = custom
	}

	rect := g.TileRect(row, col)
	kinds := g.KindsAt(rect.Center())

	drivable := len(kinds) > 0
	for _, k := range kinds {
		if k == engine.ZoneWall {
			drivable = false
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Track %s, row %d, col %d\n", f.ID, row, col)
	fmt.Fprintf(&b, "Character: '%c' (%s)\n", char, name)
	if len(kinds) == 0 {
		b.WriteString("Zones: none\n")
	} else {
		names := make([]string, len(kinds))
		for i, k := range kinds {
			names[i] = string(k)
		}
		fmt.Fprintf(&b, "Zones: %s\n", strings.Join(names, ", "))
	}
	fmt.Fprintf(&b, "Drivable: %v\n", drivable)
	fmt.Fprintf(&b, "World box: x %.0f..%.0f, y %.0f..%.0f\n", rect.MinX, rect.MaxX, rect.MinY, rect.MaxY)
	return b.String()
}
