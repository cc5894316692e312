// Package mcp provides the Model Context Protocol interface of the road racer.
//
// The mcp package implements:
//   - MCP server for AI agent integration
//   - Tool definitions that proxy to the REST API
//   - Text renderings of snapshots, tick results and a minimap
//   - Stdio and HTTP transport modes
//
// MCP Tools:
//
// The package exposes the following tools for AI agents:
//   - start_race: Start a race on a difficulty preset
//   - race_snapshot: Car state plus a minimap around the car
//   - set_input: Hold or release the driving keys
//   - advance: Run ticks with the held keys, stopping at the finish
//   - restart_race: Start the same race over
//   - list_races: List active races
//   - list_difficulties: List presets and their tracks
//   - list_tracks: List track files
//   - describe_tile: Describe one layout cell
//   - race_instructions: Driving rules
//
// Transport Modes:
//
//   - Stdio: server.ServeStdio(client.GetMCPServer())
//   - HTTP: mount the Client itself, it answers JSON-RPC posts
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	router.Handle("/mcp", client)
package mcp
