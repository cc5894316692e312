package track

// Cell is a layout position
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Drivable reports whether a layout character is a tile the car can enter
func Drivable(c byte) bool {
	switch c {
	case CharRoad, CharSlowRoad, CharFinish, CharSpawn:
		return true
	}
	return false
}

// SpawnCell returns the layout position of the spawn marker
func SpawnCell(f *File) (Cell, bool) {
	for i, row := range f.Layout {
		for j := 0; j < len(row); j++ {
			if row[j] == CharSpawn {
				return Cell{Row: i, Col: j}, true
			}
		}
	}
	return Cell{}, false
}

// FinishDistance floods the drivable tiles from the spawn with four-way
// moves and returns the number of tile steps to the nearest finish tile.
// It ignores polygon zones, so tracks whose route depends on them should
// not rely on it.
func FinishDistance(f *File) (int, bool) {
	start, ok := SpawnCell(f)
	if !ok {
		return 0, false
	}

	dist := map[Cell]int{start: 0}
	queue := []Cell{start}
	dirs := []Cell{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if f.Layout[cur.Row][cur.Col] == CharFinish {
			return dist[cur], true
		}
		for _, d := range dirs {
			next := Cell{Row: cur.Row + d.Row, Col: cur.Col + d.Col}
			if next.Row < 0 || next.Row >= len(f.Layout) || next.Col < 0 || next.Col >= len(f.Layout[next.Row]) {
				continue
			}
			if _, seen := dist[next]; seen || !Drivable(f.Layout[next.Row][next.Col]) {
				continue
			}
			dist[next] = dist[cur] + 1
			queue = append(queue, next)
		}
	}
	return 0, false
}
