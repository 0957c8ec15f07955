// Walletpulse MCP server.
// Exposes read-only dispatcher tools over MCP stdio transport.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	mcptools "github.com/gateway-fm/walletpulse/internal/mcp"
)

func main() {
	pulseURL := os.Getenv("PULSE_URL")
	if pulseURL == "" {
		pulseURL = "http://localhost:9464"
	}

	s := server.NewMCPServer(
		"walletpulse",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	client := mcptools.NewClient(pulseURL)
	mcptools.RegisterTools(s, client)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}
