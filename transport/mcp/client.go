package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/mcp-training/roadracer/game/engine"
	"github.com/wricardo/mcp-training/roadracer/game/service"
	"github.com/wricardo/mcp-training/roadracer/game/track"
)

const (
	ServerName    = "Road Racer"
	ServerVersion = "1.0.0"

	// minimapRadius is how many tiles around the car race_snapshot draws
	minimapRadius = 3
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(true),
		server.WithInstructions(`Road Racer - MCP Interface

This is a thin client that proxies all requests to the REST API server.

OBJECTIVE:
Drive the car from the spawn point to the finish line as fast as possible.

AVAILABLE TOOLS:
- start_race: Start a race on a difficulty (easy, hard)
- race_snapshot: Position, heading, speed, timer and a minimap around the car
- set_input: Hold or release forward/backward/left/right
- advance: Run simulation ticks with the held keys
- restart_race: Start the same race over
- list_races, list_difficulties, list_tracks: Catalogue
- describe_tile: What a layout cell is (wall, road, slow road, finish)
- race_instructions: Full driving rules

NOTE: Keys stay held between advance calls until you change them with set_input.`),
	)

	c.registerTools()
}

func raceIDProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Race ID",
	}
}

func keyProperties(props map[string]interface{}) map[string]interface{} {
	for _, key := range []string{"forward", "backward", "left", "right"} {
		props[key] = map[string]interface{}{
			"type":        "boolean",
			"description": fmt.Sprintf("Hold the %s key", key),
		}
	}
	return props
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Race lifecycle
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "start_race",
		Description: "Start a new race on a difficulty preset",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"difficulty": map[string]interface{}{
					"type":        "string",
					"description": "Difficulty preset, e.g. easy or hard (optional, defaults to easy)",
				},
			},
		},
	}, c.handleStartRace)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_races",
		Description: "List all active races",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListRaces)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "restart_race",
		Description: "Restart a race from the spawn point with a fresh timer",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"race_id": raceIDProperty()},
			Required:   []string{"race_id"},
		},
	}, c.handleRestartRace)

	// Driving
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "race_snapshot",
		Description: "Get the car's position, heading, speed, race state, elapsed time and a minimap of nearby tiles",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"race_id": raceIDProperty()},
			Required:   []string{"race_id"},
		},
	}, c.handleRaceSnapshot)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "set_input",
		Description: "Set which driving keys are held. Omitted keys are released.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: keyProperties(map[string]interface{}{"race_id": raceIDProperty()}),
			Required:   []string{"race_id"},
		},
	}, c.handleSetInput)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "advance",
		Description: "Advance the race by a number of ticks (60 ticks = 1 second). Stops early at the finish line. Passing any key replaces the held keys first.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: keyProperties(map[string]interface{}{
				"race_id": raceIDProperty(),
				"steps": map[string]interface{}{
					"type":        "integer",
					"description": "Ticks to run (default 1, max 3600)",
				},
				"intent": map[string]interface{}{
					"type":        "string",
					"description": "Brief explanation of what this manoeuvre should achieve",
				},
			}),
			Required: []string{"race_id"},
		},
	}, c.handleAdvance)

	// Catalogue
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_difficulties",
		Description: "List difficulty presets and the tracks they use",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListDifficulties)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_tracks",
		Description: "List available tracks",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListTracks)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "describe_tile",
		Description: "Describe one layout cell of a track: its character, kind, whether it is drivable and its world rectangle",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"track_id": map[string]interface{}{
					"type":        "string",
					"description": "Track ID (or pass race_id to use the race's track)",
				},
				"race_id": raceIDProperty(),
				"row": map[string]interface{}{
					"type":        "integer",
					"description": "Layout row, 0 is the top of the map",
				},
				"col": map[string]interface{}{
					"type":        "integer",
					"description": "Layout column, 0 is the left edge",
				},
			},
			Required: []string{"row", "col"},
		},
	}, c.handleDescribeTile)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "race_instructions",
		Description: "Get the driving rules and tips",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleRaceInstructions)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// ServeHTTP answers single JSON-RPC messages posted to the /mcp endpoint
func (c *Client) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	response := c.mcpServer.HandleMessage(r.Context(), body)

	w.Header().Set("Content-Type", "application/json")
	if response == nil {
		// Notifications have no response
		w.WriteHeader(http.StatusAccepted)
		return
	}
	responseData, err := json.Marshal(response)
	if err != nil {
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Write(responseData)
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	url := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

// arguments returns the tool arguments, tolerating a missing object
func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		return map[string]interface{}{}
	}
	return args
}

func intArg(args map[string]interface{}, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}

// keysArg reads the four key flags, reporting whether any was given
func keysArg(args map[string]interface{}) (engine.InputFlags, bool) {
	var in engine.InputFlags
	given := false
	for key, dst := range map[string]*bool{
		"forward":  &in.Forward,
		"backward": &in.Backward,
		"left":     &in.Left,
		"right":    &in.Right,
	} {
		if v, ok := args[key].(bool); ok {
			*dst = v
			given = true
		}
	}
	return in, given
}

// Tool handlers

func (c *Client) handleStartRace(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	difficulty, _ := args["difficulty"].(string)

	body := map[string]string{}
	if difficulty != "" {
		body["difficulty"] = difficulty
	}

	var race service.RaceInfo
	if err := c.apiCall(ctx, "POST", "/api/races", body, &race); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Started race: %s\nDifficulty: %s\nTrack: %s\n\n%s",
		race.ID, race.Difficulty, race.TrackID, formatSnapshot(&race.Snapshot))
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleListRaces(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count int                `json:"count"`
		Races []service.RaceInfo `json:"races"`
	}

	if err := c.apiCall(ctx, "GET", "/api/races", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Active Races (%d):\n\n", response.Count)
	for _, r := range response.Races {
		live := ""
		if r.Live {
			live = ", live"
		}
		fmt.Fprintf(&b, "- %s (Difficulty: %s, Track: %s, %s %s%s)\n",
			r.ID, r.Difficulty, r.TrackID, r.Snapshot.RaceState,
			engine.FormatRaceTime(r.Snapshot.ElapsedTime), live)
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleRestartRace(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raceID, _ := arguments(request)["race_id"].(string)

	var race service.RaceInfo
	if err := c.apiCall(ctx, "POST", fmt.Sprintf("/api/races/%s/restart", raceID), nil, &race); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Race %s restarted\n\n%s", race.ID, formatSnapshot(&race.Snapshot))
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleRaceSnapshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raceID, _ := arguments(request)["race_id"].(string)

	var race service.RaceInfo
	if err := c.apiCall(ctx, "GET", fmt.Sprintf("/api/races/%s", raceID), nil, &race); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Race %s (%s on %s)\n", race.ID, race.Difficulty, race.TrackID)
	fmt.Fprintf(&b, "Held keys: %s\n\n", formatKeys(race.Input))
	b.WriteString(formatSnapshot(&race.Snapshot))

	// The minimap is best effort; the snapshot alone is still useful
	if f, err := c.fetchTrack(ctx, race.TrackID); err == nil {
		if g, err := track.Build(f); err == nil {
			b.WriteString("\n")
			b.WriteString(formatMinimap(f, g, race.Snapshot.Position, minimapRadius))
		}
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleSetInput(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	raceID, _ := args["race_id"].(string)
	input, _ := keysArg(args)

	var response struct {
		Input    engine.InputFlags `json:"input"`
		Snapshot engine.Snapshot   `json:"snapshot"`
	}
	if err := c.apiCall(ctx, "PUT", fmt.Sprintf("/api/races/%s/input", raceID), input, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Held keys: %s\n\n%s", formatKeys(response.Input), formatSnapshot(&response.Snapshot))
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleAdvance(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	raceID, _ := args["race_id"].(string)

	// Intent serves as rubber duck debugging and is not sent to the server
	_, _ = args["intent"].(string)

	body := map[string]interface{}{}
	if steps, ok := intArg(args, "steps"); ok {
		body["steps"] = steps
	}
	if input, given := keysArg(args); given {
		body["input"] = input
	}

	var result service.TickResult
	if err := c.apiCall(ctx, "POST", fmt.Sprintf("/api/races/%s/tick", raceID), body, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatTickResult(&result)), nil
}

func (c *Client) handleListDifficulties(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var difficulties []service.Difficulty
	if err := c.apiCall(ctx, "GET", "/api/difficulties", nil, &difficulties); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	b.WriteString("Difficulties:\n\n")
	for _, d := range difficulties {
		p := d.Params()
		fmt.Fprintf(&b, "• %s (track %s)\n", d.Name, d.TrackID)
		if d.Description != "" {
			fmt.Fprintf(&b, "  %s\n", d.Description)
		}
		fmt.Fprintf(&b, "  Max speed %.1f, slow road cap %.1f, acceleration %.2f/tick\n\n",
			p.MaxSpeed, p.MaxSpeed*p.SlowRoadFactor, p.Burst)
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleListTracks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var tracks []service.TrackInfo
	if err := c.apiCall(ctx, "GET", "/api/tracks", nil, &tracks); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	b.WriteString("Available Tracks:\n\n")
	for _, t := range tracks {
		fmt.Fprintf(&b, "• %s: %s\n  %s\n  Grid: %dx%d tiles of %.0f units, spawn: %v, finish: %v\n\n",
			t.TrackID, t.Name, t.Description, t.Cols, t.Rows, t.TileSize, t.HasSpawn, t.HasFinish)
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleDescribeTile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	trackID, _ := args["track_id"].(string)
	raceID, _ := args["race_id"].(string)
	row, okRow := intArg(args, "row")
	col, okCol := intArg(args, "col")
	if !okRow || !okCol {
		return mcp.NewToolResultError("row and col are required"), nil
	}

	if trackID == "" {
		if raceID == "" {
			return mcp.NewToolResultError("track_id or race_id is required"), nil
		}
		var race service.RaceInfo
		if err := c.apiCall(ctx, "GET", fmt.Sprintf("/api/races/%s", raceID), nil, &race); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		trackID = race.TrackID
	}

	f, err := c.fetchTrack(ctx, trackID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	g, err := track.Build(f)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	rows, cols := g.Size()
	if row < 0 || row >= rows || col < 0 || col >= cols {
		return mcp.NewToolResultError(fmt.Sprintf("Cell (row %d, col %d) is out of bounds. Track is %d rows x %d cols",
			row, col, rows, cols)), nil
	}

	return mcp.NewToolResultText(describeTile(f, g, row, col)), nil
}

func (c *Client) handleRaceInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(raceInstructions), nil
}

func (c *Client) fetchTrack(ctx context.Context, trackID string) (*track.File, error) {
	var response struct {
		Track *track.File `json:"track"`
	}
	if err := c.apiCall(ctx, "GET", fmt.Sprintf("/api/tracks/%s", trackID), nil, &response); err != nil {
		return nil, err
	}
	if response.Track == nil {
		return nil, fmt.Errorf("track %s: empty response", trackID)
	}
	return response.Track, nil
}
