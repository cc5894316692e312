package engine

// ZoneQuery answers overlap questions against the static track zones
type ZoneQuery interface {
	Overlaps(kind ZoneKind, footprint Rect) bool
}

// ZoneResult is what the detector reports for one tick
type ZoneResult struct {
	OnSlowRoad      bool `json:"on_slow_road"`
	FinishTriggered bool `json:"finish_triggered"`
}

// DetectZones tests the post-move footprint against slow-road and finish
// zones. Finish only triggers while the race is still running. A nil query
// behaves like a track with no zones.
func DetectZones(footprint Rect, zones ZoneQuery, state RaceState) ZoneResult {
	if zones == nil {
		return ZoneResult{}
	}
	return ZoneResult{
		OnSlowRoad:      zones.Overlaps(ZoneSlowRoad, footprint),
		FinishTriggered: state == Racing && zones.Overlaps(ZoneFinish, footprint),
	}
}
