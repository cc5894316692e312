package track

import (
	"fmt"
	"math"

	"github.com/peterstace/simplefeatures/geom"
	"github.com/peterstace/simplefeatures/rtree"

	"github.com/wricardo/mcp-training/roadracer/game/engine"
)

const (
	// zoneShrink keeps boxes that only touch a zone edge out of it
	zoneShrink = 1e-6
	// contactTolerance absorbs rounding when a footprint is clamped to a wall
	contactTolerance = 1e-7
)

// Tile is one cell of the layout in world space
type Tile struct {
	Row  int             `json:"row"`
	Col  int             `json:"col"`
	Char string          `json:"char"`
	Kind engine.ZoneKind `json:"kind"`
	Rect engine.Rect     `json:"rect"`
}

type zoneSet struct {
	polygons []geom.Geometry
	boxes    []engine.Rect
	index    *rtree.RTree
}

func newZoneSet(polys []geom.Polygon, boxes []engine.Rect) *zoneSet {
	zs := &zoneSet{boxes: boxes}
	items := make([]rtree.BulkItem, 0, len(boxes))
	for i, p := range polys {
		zs.polygons = append(zs.polygons, p.AsGeometry())
		items = append(items, rtree.BulkItem{Box: toBox(boxes[i]), RecordID: i})
	}
	if len(items) > 0 {
		zs.index = rtree.BulkLoad(items)
	}
	return zs
}

// candidates returns the ids whose bounding box meets r
func (zs *zoneSet) candidates(r engine.Rect) []int {
	if zs == nil || zs.index == nil {
		return nil
	}
	var ids []int
	_ = zs.index.RangeSearch(toBox(r), func(id int) error {
		ids = append(ids, id)
		return nil
	})
	return ids
}

// Geometry answers collision and zone queries for one track. It is
// immutable after Build and safe for concurrent readers.
type Geometry struct {
	id       string
	tileSize float64
	rows     int
	cols     int
	tiles    []Tile
	zones    map[engine.ZoneKind]*zoneSet
	spawn    *engine.Pose
	bounds   engine.Rect
}

// Build converts a validated track into queryable geometry. Row 0 of the
// layout is the top of the map, so heading 0 drives up the screen.
func Build(f *File) (*Geometry, error) {
	if err := Validate(f); err != nil {
		return nil, err
	}

	g := &Geometry{
		id:       f.ID,
		tileSize: f.TileSize,
		rows:     len(f.Layout),
		cols:     len(f.Layout[0]),
		zones:    make(map[engine.ZoneKind]*zoneSet),
	}
	g.bounds = engine.Rect{MaxX: float64(g.cols) * f.TileSize, MaxY: float64(g.rows) * f.TileSize}

	polys := make(map[engine.ZoneKind][]geom.Polygon)
	boxes := make(map[engine.ZoneKind][]engine.Rect)
	add := func(kind engine.ZoneKind, p geom.Polygon, box engine.Rect) {
		polys[kind] = append(polys[kind], p)
		boxes[kind] = append(boxes[kind], box)
	}

	for row, line := range f.Layout {
		for col := 0; col < len(line); col++ {
			c := line[col]
			kind, ok := tileKind(c)
			if !ok {
				continue
			}
			r := g.TileRect(row, col)
			g.tiles = append(g.tiles, Tile{Row: row, Col: col, Char: string(c), Kind: kind, Rect: r})

			poly, err := rectPolygon(r)
			if err != nil {
				return nil, fmt.Errorf("%w: tile at row %d, col %d: %v", ErrInvalidTrack, row+1, col+1, err)
			}
			add(kind, poly, r)
			// finish and spawn cells are drivable road as well
			if kind == engine.ZoneFinish {
				add(engine.ZoneRoad, poly, r)
			}
			if c == CharSpawn {
				g.spawn = &engine.Pose{Position: r.Center(), Heading: f.SpawnHeading}
			}
		}
	}

	for i, z := range f.Zones {
		poly, box, err := pointsPolygon(z.Points)
		if err != nil {
			return nil, fmt.Errorf("%w: zone %d: %v", ErrInvalidTrack, i+1, err)
		}
		add(z.Kind, poly, box)
	}

	for _, kind := range []engine.ZoneKind{engine.ZoneRoad, engine.ZoneSlowRoad, engine.ZoneFinish, engine.ZoneWall} {
		g.zones[kind] = newZoneSet(polys[kind], boxes[kind])
	}
	return g, nil
}

func tileKind(c byte) (engine.ZoneKind, bool) {
	switch c {
	case CharWall:
		return engine.ZoneWall, true
	case CharRoad, CharSpawn:
		return engine.ZoneRoad, true
	case CharSlowRoad:
		return engine.ZoneSlowRoad, true
	case CharFinish:
		return engine.ZoneFinish, true
	}
	return "", false
}

// ID returns the track id
func (g *Geometry) ID() string { return g.id }

// TileSize returns the edge length of one tile
func (g *Geometry) TileSize() float64 { return g.tileSize }

// Size returns rows and columns
func (g *Geometry) Size() (int, int) { return g.rows, g.cols }

// Bounds covers the whole grid
func (g *Geometry) Bounds() engine.Rect { return g.bounds }

// Tiles returns the non-empty tiles for renderers
func (g *Geometry) Tiles() []Tile {
	out := make([]Tile, len(g.tiles))
	copy(out, g.tiles)
	return out
}

// Spawn returns the spawn pose, or false when the track has none
func (g *Geometry) Spawn() (engine.Pose, bool) {
	if g.spawn == nil {
		return engine.Pose{}, false
	}
	return *g.spawn, true
}

// TileRect returns the world box of a layout cell
func (g *Geometry) TileRect(row, col int) engine.Rect {
	ts := g.tileSize
	return engine.Rect{
		MinX: float64(col) * ts,
		MinY: float64(g.rows-1-row) * ts,
		MaxX: float64(col+1) * ts,
		MaxY: float64(g.rows-row) * ts,
	}
}

// CellAt maps a world point to a layout cell
func (g *Geometry) CellAt(p engine.Vec2) (row, col int, ok bool) {
	if p.X < g.bounds.MinX || p.X >= g.bounds.MaxX || p.Y < g.bounds.MinY || p.Y >= g.bounds.MaxY {
		return 0, 0, false
	}
	col = int(math.Floor(p.X / g.tileSize))
	row = g.rows - 1 - int(math.Floor(p.Y/g.tileSize))
	return row, col, true
}

// KindsAt lists every zone kind that contains the point
func (g *Geometry) KindsAt(p engine.Vec2) []engine.ZoneKind {
	point, err := geom.NewPoint(geom.Coordinates{XY: geom.XY{X: p.X, Y: p.Y}, Type: geom.DimXY})
	if err != nil {
		return nil
	}
	pt := point.AsGeometry()
	var kinds []engine.ZoneKind
	for _, kind := range []engine.ZoneKind{engine.ZoneWall, engine.ZoneRoad, engine.ZoneSlowRoad, engine.ZoneFinish} {
		zs := g.zones[kind]
		for _, id := range zs.candidates(engine.Rect{MinX: p.X, MinY: p.Y, MaxX: p.X, MaxY: p.Y}) {
			if geom.Intersects(pt, zs.polygons[id]) {
				kinds = append(kinds, kind)
				break
			}
		}
	}
	return kinds
}

// Overlaps reports whether the box shares area with any zone of the kind.
// Touching a zone edge does not count.
func (g *Geometry) Overlaps(kind engine.ZoneKind, footprint engine.Rect) bool {
	zs := g.zones[kind]
	if zs == nil {
		return false
	}
	inner := footprint
	if inner.MaxX-inner.MinX > 2*zoneShrink && inner.MaxY-inner.MinY > 2*zoneShrink {
		inner = engine.Rect{
			MinX: inner.MinX + zoneShrink,
			MinY: inner.MinY + zoneShrink,
			MaxX: inner.MaxX - zoneShrink,
			MaxY: inner.MaxY - zoneShrink,
		}
	}

	ids := zs.candidates(inner)
	if len(ids) == 0 {
		return false
	}
	poly, err := rectPolygon(inner)
	if err != nil {
		return false
	}
	box := poly.AsGeometry()
	for _, id := range ids {
		if geom.Intersects(box, zs.polygons[id]) {
			return true
		}
	}
	return false
}

// ResolveCollision slides the footprint along X then Y, stopping each axis
// at the first wall it would enter. A footprint already inside a wall
// cannot move.
func (g *Geometry) ResolveCollision(footprint engine.Rect, delta engine.Vec2) engine.Vec2 {
	walls := g.zones[engine.ZoneWall]
	if walls == nil || walls.index == nil {
		return delta
	}
	for _, id := range walls.candidates(footprint) {
		if penetrates(footprint, walls.boxes[id]) {
			return engine.Vec2{}
		}
	}

	dx := g.resolveAxis(walls, footprint, delta.X, true)
	moved := footprint.Translate(engine.Vec2{X: dx})
	dy := g.resolveAxis(walls, moved, delta.Y, false)
	return engine.Vec2{X: dx, Y: dy}
}

func (g *Geometry) resolveAxis(walls *zoneSet, fp engine.Rect, d float64, horizontal bool) float64 {
	if d == 0 || math.IsNaN(d) {
		return 0
	}
	step := engine.Vec2{Y: d}
	if horizontal {
		step = engine.Vec2{X: d}
	}
	sweep := union(fp, fp.Translate(step))

	for _, id := range walls.candidates(sweep) {
		w := walls.boxes[id]
		if !penetrates(sweep, w) {
			continue
		}
		if horizontal {
			if d > 0 && w.MinX >= fp.MaxX-contactTolerance {
				d = math.Min(d, math.Max(0, w.MinX-fp.MaxX))
			} else if d < 0 && w.MaxX <= fp.MinX+contactTolerance {
				d = math.Max(d, math.Min(0, w.MaxX-fp.MinX))
			}
		} else {
			if d > 0 && w.MinY >= fp.MaxY-contactTolerance {
				d = math.Min(d, math.Max(0, w.MinY-fp.MaxY))
			} else if d < 0 && w.MaxY <= fp.MinY+contactTolerance {
				d = math.Max(d, math.Min(0, w.MaxY-fp.MinY))
			}
		}
	}
	return d
}

// penetrates is a strict overlap that ignores contact within tolerance
func penetrates(a, b engine.Rect) bool {
	return a.MinX < b.MaxX-contactTolerance && a.MaxX > b.MinX+contactTolerance &&
		a.MinY < b.MaxY-contactTolerance && a.MaxY > b.MinY+contactTolerance
}

func union(a, b engine.Rect) engine.Rect {
	return engine.Rect{
		MinX: math.Min(a.MinX, b.MinX),
		MinY: math.Min(a.MinY, b.MinY),
		MaxX: math.Max(a.MaxX, b.MaxX),
		MaxY: math.Max(a.MaxY, b.MaxY),
	}
}

func toBox(r engine.Rect) rtree.Box {
	return rtree.Box{MinX: r.MinX, MinY: r.MinY, MaxX: r.MaxX, MaxY: r.MaxY}
}

func rectPolygon(r engine.Rect) (geom.Polygon, error) {
	flat := []float64{
		r.MinX, r.MinY,
		r.MaxX, r.MinY,
		r.MaxX, r.MaxY,
		r.MinX, r.MaxY,
		r.MinX, r.MinY,
	}
	ring, err := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	if err != nil {
		return geom.Polygon{}, err
	}
	return geom.NewPolygon([]geom.LineString{ring})
}

// pointsPolygon closes the ring if needed and returns its bounding box.
// Degenerate and self-intersecting rings are rejected.
func pointsPolygon(points [][2]float64) (geom.Polygon, engine.Rect, error) {
	box := engine.Rect{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
	flat := make([]float64, 0, 2*len(points)+2)
	for _, p := range points {
		flat = append(flat, p[0], p[1])
		box.MinX = math.Min(box.MinX, p[0])
		box.MinY = math.Min(box.MinY, p[1])
		box.MaxX = math.Max(box.MaxX, p[0])
		box.MaxY = math.Max(box.MaxY, p[1])
	}
	first, last := points[0], points[len(points)-1]
	if first != last {
		flat = append(flat, first[0], first[1])
	}
	ring, err := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	if err != nil {
		return geom.Polygon{}, box, err
	}
	poly, err := geom.NewPolygon([]geom.LineString{ring})
	if err != nil {
		return geom.Polygon{}, box, err
	}
	return poly, box, nil
}
