// Command desktop plays a race in a window. It runs the same race core as
// the server, locally, with held-key input from the keyboard.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/urfave/cli/v3"

	"github.com/wricardo/mcp-training/roadracer/game/config"
	"github.com/wricardo/mcp-training/roadracer/logging"
)

const windowTitle = "Road Racer"

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "desktop",
		Usage: "Play a race in a desktop window",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Settings file (default: ./roadracer.json when present)",
				Sources: cli.EnvVars("ROADRACER_CONFIG"),
			},
			&cli.StringFlag{Name: "tracks-dir", Usage: "Directory containing track files"},
			&cli.StringFlag{Name: "log-level", Usage: "Log level: trace, debug, info, warn, error"},
		},
		Action: run,
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	settings, err := config.LoadSettings(config.NewViper(cmd.String("config")))
	if err != nil {
		return err
	}
	if cmd.IsSet("tracks-dir") {
		settings.TracksDir = cmd.String("tracks-dir")
	}
	if cmd.IsSet("log-level") {
		settings.LogLevel = cmd.String("log-level")
	}
	logger := logging.New(settings.LogLevel, settings.LogPretty, nil)

	tracks, err := config.NewManager(settings.TracksDir)
	if err != nil {
		return err
	}

	ebiten.SetWindowSize(screenWidth, screenHeight)
	ebiten.SetWindowTitle(windowTitle)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	if settings.TickRate > 0 {
		ebiten.SetTPS(settings.TickRate)
	}

	logger.Info().Str("tracks_dir", settings.TracksDir).Msg("opening window")
	if err := ebiten.RunGame(NewGame(tracks, settings, logger)); err != nil {
		return fmt.Errorf("desktop client: %w", err)
	}
	return nil
}
