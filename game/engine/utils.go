package engine

import (
	"fmt"
	"math"
)

// FormatRaceTime renders seconds as mm:ss.mmm
func FormatRaceTime(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	minutes := int(seconds / 60)
	secs := int(math.Mod(seconds, 60))
	millis := int(math.Mod(seconds, 1) * 1000)
	return fmt.Sprintf("%02d:%02d.%03d", minutes, secs, millis)
}

// Distance returns the euclidean distance between two points
func Distance(a, b Vec2) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// DisplaySpeed is the speed magnitude shown on the HUD
func DisplaySpeed(speed float64) string {
	return fmt.Sprintf("%.1f km/h", math.Abs(speed))
}
