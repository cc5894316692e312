package tui

import (
	"fmt"
	"math"

	"github.com/gdamore/tcell/v2"

	"github.com/wricardo/mcp-training/roadracer/game/engine"
	"github.com/wricardo/mcp-training/roadracer/game/screen"
	"github.com/wricardo/mcp-training/roadracer/game/track"
)

// canvas is the part of tcell.Screen the renderer draws on
type canvas interface {
	SetContent(x, y int, primary rune, combining []rune, style tcell.Style)
	Size() (int, int)
}

var (
	styleDefault  = tcell.StyleDefault
	styleWall     = tcell.StyleDefault.Background(tcell.ColorGray).Foreground(tcell.ColorGray)
	styleRoad     = tcell.StyleDefault.Foreground(tcell.ColorDarkGray)
	styleSlow     = tcell.StyleDefault.Foreground(tcell.ColorOlive)
	styleFinishA  = tcell.StyleDefault.Background(tcell.ColorWhite).Foreground(tcell.ColorBlack)
	styleFinishB  = tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite)
	styleCar      = tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
	styleHUD      = tcell.StyleDefault.Reverse(true)
	styleTitle    = tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	styleSelected = tcell.StyleDefault.Reverse(true)
)

// carGlyphs are indexed by heading octant, clockwise from north
var carGlyphs = []rune{'↑', '↗', '→', '↘', '↓', '↙', '←', '↖'}

// trackView is a loaded track ready to draw
type trackView struct {
	file     *track.File
	geometry *track.Geometry
}

// viewport maps terminal cells to world points around the camera anchor.
// One row covers a tile height and one column half a tile width, which keeps
// tiles roughly square in a terminal font.
type viewport struct {
	anchor         engine.Vec2
	width, height  int
	top            int
	scaleX, scaleY float64
}

func newViewport(c canvas, anchor engine.Vec2, tileSize float64, top int) viewport {
	w, h := c.Size()
	return viewport{
		anchor: anchor,
		width:  w,
		height: h - top,
		top:    top,
		scaleX: tileSize / 2,
		scaleY: tileSize,
	}
}

// world returns the world point at the centre of a cell
func (v viewport) world(x, y int) engine.Vec2 {
	return engine.Vec2{
		X: v.anchor.X + (float64(x-v.width/2)+0.5)*v.scaleX,
		Y: v.anchor.Y - (float64(y-v.top-v.height/2)+0.5)*v.scaleY,
	}
}

// cell returns the terminal cell containing a world point
func (v viewport) cell(p engine.Vec2) (int, int, bool) {
	x := int(math.Floor((p.X-v.anchor.X)/v.scaleX)) + v.width/2
	y := int(math.Floor((v.anchor.Y-p.Y)/v.scaleY)) + v.height/2 + v.top
	if x < 0 || x >= v.width || y < v.top || y >= v.top+v.height {
		return 0, 0, false
	}
	return x, y, true
}

func carGlyph(heading float64) rune {
	i := int(math.Floor((heading+22.5)/45)) % len(carGlyphs)
	if i < 0 {
		i += len(carGlyphs)
	}
	return carGlyphs[i]
}

func tileGlyph(c byte, row, col int) (rune, tcell.Style) {
	switch c {
	case track.CharWall:
		return '█', styleWall
	case track.CharRoad, track.CharSpawn:
		return '·', styleRoad
	case track.CharSlowRoad:
		return '~', styleSlow
	case track.CharFinish:
		if (row+col)%2 == 0 {
			return ' ', styleFinishA
		}
		return ' ', styleFinishB
	}
	return ' ', styleDefault
}

func drawText(c canvas, x, y int, style tcell.Style, text string) {
	for _, r := range text {
		c.SetContent(x, y, r, nil, style)
		x++
	}
}

func fill(c canvas) {
	w, h := c.Size()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c.SetContent(x, y, ' ', nil, styleDefault)
		}
	}
}

func centered(c canvas, y int, style tcell.Style, text string) {
	w, _ := c.Size()
	x := (w - len([]rune(text))) / 2
	if x < 0 {
		x = 0
	}
	drawText(c, x, y, style, text)
}

// drawRace draws the visible part of the track, the wheel trails, the car
// and a one-line HUD on top
func drawRace(c canvas, view *trackView, snap engine.Snapshot) {
	fill(c)

	tileSize := 32.0
	if view != nil {
		tileSize = view.geometry.TileSize()
	}
	vp := newViewport(c, snap.CameraAnchor, tileSize, 1)

	if view != nil {
		for y := vp.top; y < vp.top+vp.height; y++ {
			for x := 0; x < vp.width; x++ {
				row, col, ok := view.geometry.CellAt(vp.world(x, y))
				if !ok {
					continue
				}
				r, style := tileGlyph(view.file.Layout[row][col], row, col)
				c.SetContent(x, y, r, nil, style)
			}
		}
	}

	for _, p := range snap.Particles {
		if x, y, ok := vp.cell(p.Position); ok {
			level := int32(80 + 175*p.Alpha)
			c.SetContent(x, y, '∙', nil, tcell.StyleDefault.Foreground(tcell.NewRGBColor(level, level, level)))
		}
	}

	if x, y, ok := vp.cell(snap.Position); ok {
		c.SetContent(x, y, carGlyph(snap.Heading), nil, styleCar)
	}

	drawHUD(c, snap)
}

func drawHUD(c canvas, snap engine.Snapshot) {
	w, _ := c.Size()
	for x := 0; x < w; x++ {
		c.SetContent(x, 0, ' ', nil, styleHUD)
	}
	surface := ""
	if snap.OnSlowRoad {
		surface = "  SLOW ROAD"
	}
	hud := fmt.Sprintf(" %s  %s  %s%s   esc: menu", snap.Difficulty,
		engine.FormatRaceTime(snap.ElapsedTime), engine.DisplaySpeed(snap.Speed), surface)
	drawText(c, 0, 0, styleHUD, hud)
}

func drawMenu(c canvas, flow *screen.Flow) {
	fill(c)
	_, h := c.Size()
	y := h/2 - 4
	if y < 0 {
		y = 0
	}

	centered(c, y, styleTitle, "ROAD RACER")
	centered(c, y+1, styleDefault, "Choose a difficulty")

	for i, d := range flow.Difficulties() {
		style := styleDefault
		label := fmt.Sprintf("  %s  ", d)
		if i == flow.Cursor() {
			style = styleSelected
			label = fmt.Sprintf("> %s <", d)
		}
		centered(c, y+3+i, style, label)
	}
	centered(c, y+4+len(flow.Difficulties()), styleDefault, "↑/↓ choose   enter: race   q: quit")
}

func drawResults(c canvas, flow *screen.Flow) {
	fill(c)
	_, h := c.Size()
	y := h/2 - 2
	if y < 0 {
		y = 0
	}

	result, _ := flow.Result()
	centered(c, y, styleTitle, "FINISHED")
	centered(c, y+1, styleDefault, fmt.Sprintf("%s on %s", result.Difficulty, result.TrackID))
	centered(c, y+2, styleTitle, engine.FormatRaceTime(result.ElapsedTime))
	centered(c, y+4, styleDefault, "enter: race again   esc: menu   q: quit")
}
