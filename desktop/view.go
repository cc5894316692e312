package main

import (
	"image/color"
	"math"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/wricardo/mcp-training/roadracer/game/engine"
	"github.com/wricardo/mcp-training/roadracer/game/track"
)

const (
	screenWidth  = 960
	screenHeight = 640
	hudHeight    = 24
)

var (
	colorBackground = color.RGBA{20, 20, 30, 255}
	colorHUD        = color.RGBA{0, 0, 0, 200}
	colorCar        = color.RGBA{255, 100, 100, 255}
	colorNose       = color.RGBA{255, 255, 255, 255}
	colorSelected   = color.RGBA{60, 60, 110, 255}
)

// tileColor returns the fill for a layout character. Finish tiles alternate
// like a chequered flag.
func tileColor(c byte, row, col int) color.Color {
	switch c {
	case track.CharWall:
		return color.RGBA{100, 50, 0, 255}
	case track.CharRoad, track.CharSpawn:
		return color.RGBA{128, 128, 128, 255}
	case track.CharSlowRoad:
		return color.RGBA{110, 140, 60, 255}
	case track.CharFinish:
		if (row+col)%2 == 0 {
			return color.RGBA{240, 240, 240, 255}
		}
		return color.RGBA{30, 30, 30, 255}
	default:
		return nil
	}
}

// particleColor fades smoke with the particle alpha, which runs 0..180
func particleColor(alpha float64) color.RGBA {
	a := uint8(math.Max(0, math.Min(255, alpha)))
	return color.RGBA{a, a, a, a}
}

// camera maps world points, Y up, to screen pixels, Y down, with the anchor
// at the centre of the play area below the HUD
type camera struct {
	anchor        engine.Vec2
	width, height float64
	top           float64
}

func newCamera(anchor engine.Vec2) camera {
	return camera{anchor: anchor, width: screenWidth, height: screenHeight - hudHeight, top: hudHeight}
}

func (c camera) toScreen(p engine.Vec2) (float64, float64) {
	return c.width/2 + (p.X - c.anchor.X), c.top + c.height/2 - (p.Y - c.anchor.Y)
}

// rect returns the screen box of a world rect as x, y, w, h
func (c camera) rect(r engine.Rect) (float64, float64, float64, float64) {
	x, y := c.toScreen(engine.Vec2{X: r.MinX, Y: r.MaxY})
	return x, y, r.MaxX - r.MinX, r.MaxY - r.MinY
}

// visible reports whether any part of the screen box is on the play area
func (c camera) visible(x, y, w, h float64) bool {
	return x+w > 0 && x < c.width && y+h > c.top && y < c.top+c.height
}

// nose returns the point dist pixels ahead of p along heading, in world space
func nose(p engine.Vec2, heading, dist float64) engine.Vec2 {
	rad := heading * math.Pi / 180
	return engine.Vec2{X: p.X + math.Sin(rad)*dist, Y: p.Y + math.Cos(rad)*dist}
}

// Driving keys: arrows and WASD
var (
	forwardKeys  = []ebiten.Key{ebiten.KeyArrowUp, ebiten.KeyW}
	backwardKeys = []ebiten.Key{ebiten.KeyArrowDown, ebiten.KeyS}
	leftKeys     = []ebiten.Key{ebiten.KeyArrowLeft, ebiten.KeyA}
	rightKeys    = []ebiten.Key{ebiten.KeyArrowRight, ebiten.KeyD}
)

// heldInput reads the four driving flags through pressed, which is
// ebiten.IsKeyPressed outside tests
func heldInput(pressed func(ebiten.Key) bool) engine.InputFlags {
	held := func(keys []ebiten.Key) bool {
		for _, k := range keys {
			if pressed(k) {
				return true
			}
		}
		return false
	}
	return engine.InputFlags{
		Forward:  held(forwardKeys),
		Backward: held(backwardKeys),
		Left:     held(leftKeys),
		Right:    held(rightKeys),
	}
}
