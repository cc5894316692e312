package main

import (
	"fmt"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"github.com/rs/zerolog"

	"github.com/wricardo/mcp-training/roadracer/game/engine"
	"github.com/wricardo/mcp-training/roadracer/game/screen"
	"github.com/wricardo/mcp-training/roadracer/game/service"
	"github.com/wricardo/mcp-training/roadracer/game/track"
)

// Game is the ebiten front end over a screen.Flow
type Game struct {
	flow   *screen.Flow
	tracks service.TrackManager
	logger zerolog.Logger

	file     *track.File
	geometry *track.Geometry
	trackID  string
	errorMsg string
}

// NewGame builds the menu from the difficulty catalogue
func NewGame(tracks service.TrackManager, difficulties service.DifficultyCatalog, logger zerolog.Logger) *Game {
	var names []string
	for _, d := range difficulties.Difficulties() {
		names = append(names, d.Name)
	}
	return &Game{
		flow:   screen.NewFlow(screen.NewStarter(tracks, difficulties, logger), names),
		tracks: tracks,
		logger: logger,
	}
}

// Update advances the current screen once per ebiten tick
func (g *Game) Update() error {
	switch g.flow.Screen() {
	case screen.Menu:
		if inpututil.IsKeyJustPressed(ebiten.KeyArrowUp) || inpututil.IsKeyJustPressed(ebiten.KeyW) {
			g.flow.MoveCursor(-1)
		}
		if inpututil.IsKeyJustPressed(ebiten.KeyArrowDown) || inpututil.IsKeyJustPressed(ebiten.KeyS) {
			g.flow.MoveCursor(1)
		}
		if inpututil.IsKeyJustPressed(ebiten.KeyEnter) || inpututil.IsKeyJustPressed(ebiten.KeySpace) {
			if _, err := g.flow.SelectCursor(); err != nil {
				g.errorMsg = err.Error()
				g.logger.Error().Err(err).Msg("could not start race")
				return nil
			}
			g.errorMsg = ""
		}
		if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
			return ebiten.Termination
		}

	case screen.Racing:
		if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
			g.flow.Escape()
			return nil
		}
		dt := 1 / float64(ebiten.TPS())
		if g.flow.Tick(dt, heldInput(ebiten.IsKeyPressed)) == screen.ToResults {
			if res, ok := g.flow.Result(); ok {
				g.logger.Info().
					Str("difficulty", res.Difficulty).
					Str("track_id", res.TrackID).
					Float64("elapsed", res.ElapsedTime).
					Msg("race finished")
			}
		}

	case screen.Results:
		if inpututil.IsKeyJustPressed(ebiten.KeyEnter) || inpututil.IsKeyJustPressed(ebiten.KeySpace) {
			if _, err := g.flow.Confirm(); err != nil {
				g.errorMsg = err.Error()
			}
		}
		if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
			g.flow.Escape()
		}
	}
	return nil
}

// Draw renders the current screen
func (g *Game) Draw(dst *ebiten.Image) {
	dst.Fill(colorBackground)
	switch g.flow.Screen() {
	case screen.Menu:
		g.drawMenu(dst)
	case screen.Racing:
		g.drawRace(dst)
	case screen.Results:
		g.drawRace(dst)
		g.drawResults(dst)
	}
}

// Layout returns the fixed logical screen size
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return screenWidth, screenHeight
}

func (g *Game) drawMenu(dst *ebiten.Image) {
	y := 40
	ebitenutil.DebugPrintAt(dst, "=== ROAD RACER ===", 400, y)
	y += 40
	ebitenutil.DebugPrintAt(dst, "Choose a difficulty:", 360, y)
	y += 30
	for i, name := range g.flow.Difficulties() {
		if i == g.flow.Cursor() {
			vector.DrawFilledRect(dst, 350, float32(y-2), 260, 20, colorSelected, false)
		}
		ebitenutil.DebugPrintAt(dst, name, 370, y)
		y += 24
	}
	y += 20
	ebitenutil.DebugPrintAt(dst, "Up/Down: choose  Enter: race  Esc: quit", 320, y)
	if g.errorMsg != "" {
		ebitenutil.DebugPrintAt(dst, "Error: "+g.errorMsg, 320, y+30)
	}
}

func (g *Game) drawRace(dst *ebiten.Image) {
	race := g.flow.Race()
	if race == nil {
		return
	}
	snap := race.Snapshot()
	cam := newCamera(snap.CameraAnchor)

	if g.loadTrack(snap.TrackID) {
		rows, cols := g.geometry.Size()
		for r := 0; r < rows; r++ {
			line := g.file.Layout[r]
			for c := 0; c < cols && c < len(line); c++ {
				fill := tileColor(line[c], r, c)
				if fill == nil {
					continue
				}
				x, y, w, h := cam.rect(g.geometry.TileRect(r, c))
				if !cam.visible(x, y, w, h) {
					continue
				}
				vector.DrawFilledRect(dst, float32(x), float32(y), float32(w), float32(h), fill, false)
			}
		}
	}

	for _, p := range snap.Particles {
		x, y := cam.toScreen(p.Position)
		vector.DrawFilledRect(dst, float32(x-1.5), float32(y-1.5), 3, 3, particleColor(p.Alpha), false)
	}

	half := engine.DefaultFootprintHalfSize
	x, y, w, h := cam.rect(engine.RectAround(snap.Position, half))
	vector.DrawFilledRect(dst, float32(x), float32(y), float32(w), float32(h), colorCar, false)
	nx, ny := cam.toScreen(nose(snap.Position, snap.Heading, half))
	vector.DrawFilledRect(dst, float32(nx-3), float32(ny-3), 6, 6, colorNose, false)

	vector.DrawFilledRect(dst, 0, 0, screenWidth, hudHeight, colorHUD, false)
	hud := fmt.Sprintf("%s  %s  %s  %s",
		snap.Difficulty, engine.FormatRaceTime(snap.ElapsedTime), engine.DisplaySpeed(snap.Speed), snap.TrackID)
	if snap.OnSlowRoad {
		hud += "  [SLOW ROAD]"
	}
	ebitenutil.DebugPrintAt(dst, hud, 8, 4)
	ebitenutil.DebugPrintAt(dst, "Esc: menu", screenWidth-80, 4)
}

func (g *Game) drawResults(dst *ebiten.Image) {
	res, ok := g.flow.Result()
	if !ok {
		return
	}
	vector.DrawFilledRect(dst, 300, 220, 360, 140, colorHUD, false)
	ebitenutil.DebugPrintAt(dst, "FINISHED", 450, 240)
	ebitenutil.DebugPrintAt(dst, fmt.Sprintf("%s on %s", res.Difficulty, res.TrackID), 330, 270)
	ebitenutil.DebugPrintAt(dst, "Time: "+engine.FormatRaceTime(res.ElapsedTime), 330, 295)
	ebitenutil.DebugPrintAt(dst, "Enter: race again  Esc: menu", 330, 330)
}

// loadTrack caches the layout and geometry of the current track
func (g *Game) loadTrack(id string) bool {
	if id == "" {
		return false
	}
	if id == g.trackID && g.geometry != nil {
		return true
	}
	f, err := g.tracks.LoadTrack(id)
	if err != nil {
		g.logger.Warn().Err(err).Str("track_id", id).Msg("track not drawable")
		g.trackID = ""
		return false
	}
	geo, err := g.tracks.LoadGeometry(id)
	if err != nil {
		g.logger.Warn().Err(err).Str("track_id", id).Msg("track not drawable")
		return false
	}
	g.file, g.geometry, g.trackID = f, geo, id
	return true
}
