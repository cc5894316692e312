// Command roadracer runs the road racer server, its MCP bridge and the
// terminal client.
//
// It supports these commands:
//  1. "serve" (default) – runs the HTTP server exposing REST API, WebSocket, and an /mcp HTTP endpoint
//  2. "mcp" – runs an MCP stdio server and spins up an internal HTTP API if none is available
//  3. "drive" – plays a race in the terminal
//  4. "config" – prints the resolved settings
//
// Settings come from roadracer.json, ROADRACER_* environment variables and a
// .env file; flags override all of them.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/wricardo/mcp-training/roadracer/api"
	"github.com/wricardo/mcp-training/roadracer/game/config"
	"github.com/wricardo/mcp-training/roadracer/game/engine"
	"github.com/wricardo/mcp-training/roadracer/game/service"
	"github.com/wricardo/mcp-training/roadracer/game/session"
	"github.com/wricardo/mcp-training/roadracer/logging"
	"github.com/wricardo/mcp-training/roadracer/transport/mcp"
	"github.com/wricardo/mcp-training/roadracer/transport/websocket"
	"github.com/wricardo/mcp-training/roadracer/tui"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Road Racer Server"
)

const janitorInterval = time.Minute

// dotenvErr is reported once a logger exists
var dotenvErr error

func main() {
	// Load .env file if it exists
	dotenvErr = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newCommand()
	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newCommand builds the CLI. Flags override settings from files and the
// environment.
func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "roadracer",
		Usage:   "Top-down racing game server, MCP bridge and terminal client",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Settings file (default: ./roadracer.json when present)",
				Sources: cli.EnvVars("ROADRACER_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "tracks-dir",
				Usage: "Directory containing track files",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: trace, debug, info, warn, error",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Shorthand for --log-level debug",
			},
		},
		DefaultCommand: "serve",
		Commands: []*cli.Command{
			{
				Name:    "serve",
				Aliases: []string{"server", "http"},
				Usage:   "Run HTTP server with API, WebSocket, and MCP endpoint",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "host", Usage: "HTTP server host"},
					&cli.IntFlag{Name: "port", Usage: "HTTP server port"},
					&cli.BoolFlag{Name: "ngrok", Usage: "Enable ngrok tunnel", Sources: cli.EnvVars("NGROK_ENABLED")},
					&cli.StringFlag{Name: "ngrok-auth", Usage: "Ngrok auth token", Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")},
					&cli.StringFlag{Name: "ngrok-domain", Usage: "Custom ngrok domain", Sources: cli.EnvVars("NGROK_DOMAIN")},
				},
				Action: runServe,
			},
			{
				Name:    "mcp",
				Aliases: []string{"stdio-mcp", "mcp-stdio"},
				Usage:   "Run MCP stdio server with internal HTTP server",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "api-url", Value: "http://localhost:8080", Usage: "External API to proxy when it is running"},
				},
				Action: runStdioMCP,
			},
			{
				Name:  "drive",
				Usage: "Play a race in the terminal",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "music", Usage: "WAV file looped while playing"},
					&cli.BoolFlag{Name: "mute", Usage: "Disable audio"},
					&cli.DurationFlag{Name: "hold", Value: tui.DefaultHoldWindow, Usage: "How long a key press counts as held"},
				},
				Action: runDrive,
			},
			{
				Name:   "config",
				Usage:  "Print the resolved settings",
				Action: runPrintConfig,
			},
		},
	}
}

// loadSettings reads settings and applies the flags that were set
func loadSettings(cmd *cli.Command) (*config.Settings, error) {
	v := config.NewViper(cmd.String("config"))
	settings, err := config.LoadSettings(v)
	if err != nil {
		return nil, err
	}

	if cmd.IsSet("tracks-dir") {
		settings.TracksDir = cmd.String("tracks-dir")
	}
	if cmd.IsSet("log-level") {
		settings.LogLevel = cmd.String("log-level")
	}
	if cmd.Bool("debug") {
		settings.LogLevel = "debug"
	}
	if cmd.IsSet("host") {
		settings.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		settings.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("ngrok") {
		settings.Ngrok.Enabled = cmd.Bool("ngrok")
	}
	if cmd.IsSet("ngrok-domain") {
		settings.Ngrok.Domain = cmd.String("ngrok-domain")
	}
	if cmd.IsSet("music") {
		settings.MusicFile = cmd.String("music")
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// application holds the services shared by every command
type application struct {
	settings *config.Settings
	logger   zerolog.Logger
	tracks   *config.Manager
	sessions *session.Manager
	hub      *websocket.Hub
	service  service.RaceService
}

// newApplication wires track/session managers, the race service and the
// WebSocket hub
func newApplication(settings *config.Settings, logger zerolog.Logger) (*application, error) {
	tracks, err := config.NewManager(settings.TracksDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create track manager: %w", err)
	}

	sessions := session.NewManagerWithLogger(logging.Component(logger, "sessions"))
	hub := websocket.NewHub(logging.Component(logger, "websocket"))

	svc, err := service.NewRaceService(sessions, tracks, settings,
		service.WithLogger(logging.Component(logger, "service")),
		service.WithTickRate(settings.TickRate),
		service.WithTickListener(hub.BroadcastSnapshot),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create race service: %w", err)
	}

	hub.OnInput(func(ctx context.Context, raceID string, input engine.InputFlags) error {
		_, err := svc.SetInput(ctx, raceID, input)
		return err
	})

	return &application{
		settings: settings,
		logger:   logger,
		tracks:   tracks,
		sessions: sessions,
		hub:      hub,
		service:  svc,
	}, nil
}

// start runs the hub and the session janitor until ctx ends
func (a *application) start(ctx context.Context) {
	go a.hub.Run(ctx)
	go a.sessions.StartJanitor(ctx, janitorInterval, a.settings.SessionTTL)
}

// handler combines the API and the /mcp endpoint. The MCP tools call the
// API at baseURL.
func (a *application) handler(baseURL string) http.Handler {
	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", api.NewServer(a.service, a.hub, logging.Component(a.logger, "api")))
	mainRouter.Handle("/mcp", mcp.NewClient(baseURL))
	return mainRouter
}

func setup(cmd *cli.Command) (*config.Settings, zerolog.Logger, error) {
	settings, err := loadSettings(cmd)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger := logging.New(settings.LogLevel, settings.LogPretty, nil)

	if dotenvErr != nil && !errors.Is(dotenvErr, os.ErrNotExist) {
		logger.Warn().Err(dotenvErr).Msg("failed to load .env file")
	}
	return settings, logger, nil
}

// runServe starts the HTTP server with REST API, WebSocket hub, and an /mcp
// proxy endpoint. With ngrok enabled it also provisions a public tunnel.
func runServe(ctx context.Context, cmd *cli.Command) error {
	settings, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	logger.Info().Str("version", Version).Msg("starting " + AppName)

	app, err := newApplication(settings, logger)
	if err != nil {
		return err
	}
	defer app.service.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	app.start(ctx)

	addr := settings.Addr()
	mainRouter := app.handler(fmt.Sprintf("http://%s", addr))

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mainRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var wg sync.WaitGroup
	serverErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()

		logger.Info().
			Str("addr", addr).
			Str("api", fmt.Sprintf("http://%s/api", addr)).
			Str("websocket", fmt.Sprintf("ws://%s/ws?race=<race_id>", addr)).
			Str("mcp", fmt.Sprintf("http://%s/mcp", addr)).
			Msg("HTTP server listening")

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	if settings.Ngrok.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrok(ctx, logger, cmd.String("ngrok-auth"), settings.Ngrok.Domain, mainRouter)
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err = <-serverErr:
	}
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error().Err(shutdownErr).Msg("HTTP server shutdown error")
	}

	wg.Wait()
	logger.Info().Msg("server stopped")
	return err
}

// runNgrok serves the router through an ngrok tunnel until ctx ends
func runNgrok(ctx context.Context, logger zerolog.Logger, authToken, domain string, handler http.Handler) {
	if authToken == "" {
		logger.Warn().Msg("ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN)")
		return
	}

	logger.Info().Msg("starting ngrok tunnel")

	var tunnel ngrokConfig.Tunnel
	if domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
		logger.Info().Str("domain", domain).Msg("using custom ngrok domain")
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(authToken))
	if err != nil {
		logger.Error().Err(err).Msg("failed to start ngrok tunnel")
		return
	}

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close ngrok tunnel")
		}
	}()

	ngrokURL := tun.URL()
	logger.Info().
		Str("url", ngrokURL).
		Str("api", ngrokURL+"/api").
		Str("websocket", ngrokURL+"/ws?race=<race_id>").
		Str("mcp", ngrokURL+"/mcp").
		Msg("ngrok tunnel established")

	if err := http.Serve(tun, handler); err != nil && err != http.ErrServerClosed && ctx.Err() == nil {
		logger.Error().Err(err).Msg("ngrok server error")
	}
	logger.Info().Msg("ngrok tunnel closed")
}

// apiAvailable reports whether an API answers health checks at baseURL
func apiAvailable(baseURL string) bool {
	testClient := &http.Client{Timeout: 2 * time.Second}
	resp, err := testClient.Get(baseURL + "/api/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

// runStdioMCP runs an MCP stdio server. It reuses an external API when one
// answers at --api-url; otherwise it starts an internal API on a random
// loopback port.
func runStdioMCP(ctx context.Context, cmd *cli.Command) error {
	settings, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	externalURL := cmd.String("api-url")
	logger.Info().Str("url", externalURL).Msg("checking for external API server")

	baseURL := externalURL
	if !apiAvailable(externalURL) {
		logger.Info().Msg("no external API server found, starting internal HTTP server")

		app, err := newApplication(settings, logger)
		if err != nil {
			return err
		}
		defer app.service.Close()
		app.start(ctx)

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}
		baseURL = fmt.Sprintf("http://%s", listener.Addr().String())

		httpServer := &http.Server{Handler: app.handler(baseURL)}
		go func() {
			if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("internal HTTP server error")
			}
		}()
		defer httpServer.Close()

		logger.Info().Str("url", baseURL).Msg("internal HTTP server started for MCP stdio")
	} else {
		logger.Info().Str("url", externalURL).Msg("external API server found, using it for MCP")
	}

	mcpClient := mcp.NewClient(baseURL)
	logger.Info().Msg("MCP stdio server ready")

	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}

// runDrive plays a local race in the terminal. Logs go to stderr at warn
// level or above so they do not tear the screen.
func runDrive(ctx context.Context, cmd *cli.Command) error {
	settings, _, err := setup(cmd)
	if err != nil {
		return err
	}

	logger := logging.New("error", false, nil)
	if cmd.IsSet("log-level") || cmd.Bool("debug") {
		logger = logging.New(settings.LogLevel, false, nil)
	}

	tracks, err := config.NewManager(settings.TracksDir)
	if err != nil {
		return fmt.Errorf("failed to create track manager: %w", err)
	}

	return tui.Run(ctx, tui.Options{
		Tracks:       tracks,
		Difficulties: settings,
		Logger:       logger,
		TickRate:     settings.TickRate,
		HoldWindow:   cmd.Duration("hold"),
		MusicFile:    settings.MusicFile,
		Mute:         cmd.Bool("mute"),
	})
}

func runPrintConfig(ctx context.Context, cmd *cli.Command) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.Root().Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(settings)
}
