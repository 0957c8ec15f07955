package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// listLimit caps the rows printed by list formatters.
const listLimit = 20

// RegisterTools registers all dispatcher tools on the MCP server.
func RegisterTools(s *server.MCPServer, client *Client) {
	registerStatus(s, client)
	registerHealth(s, client)
	registerPersonas(s, client)
	registerDeadProxies(s, client)
	registerRecentTxs(s, client)
	registerTx(s, client)
}

func registerStatus(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("pulse_status",
		gomcp.WithDescription("Get dispatcher status: cycle outcomes, retries, last error, buffered log entries, key and proxy counts."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		raw, err := client.Get(ctx, "/v1/status")
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Dispatcher unreachable: %v\n\nIs the status server enabled? Check status.listen / -listen.", err)), nil
		}
		return gomcp.NewToolResultText(formatStatus(raw)), nil
	})
}

func registerHealth(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("pulse_health",
		gomcp.WithDescription("Quick liveness check for the dispatcher status server."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		raw, err := client.Get(ctx, "/health")
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Dispatcher unhealthy: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatHealth(raw)), nil
	})
}

func registerPersonas(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("pulse_personas",
		gomcp.WithDescription("List wallet personas: idle and ping probabilities and transfer amount range per wallet."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		raw, err := client.Get(ctx, "/v1/personas")
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Personas failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatPersonas(raw)), nil
	})
}

func registerDeadProxies(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("pulse_dead_proxies",
		gomcp.WithDescription("List proxies marked dead, with failure counts and when they were last marked."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		raw, err := client.Get(ctx, "/v1/dead-proxies")
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Dead proxies failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatDeadProxies(raw)), nil
	})
}

func registerRecentTxs(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("pulse_recent_txs",
		gomcp.WithDescription("List archived transactions, newest first (paginated). Requires the SQLite archive."),
		gomcp.WithNumber("limit",
			gomcp.Description("Max transactions to return (default: 20, max: 100)"),
		),
		gomcp.WithNumber("offset",
			gomcp.Description("Offset for pagination (default: 0)"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		limit := req.GetInt("limit", listLimit)
		offset := req.GetInt("offset", 0)
		path := fmt.Sprintf("/v1/txs?limit=%d&offset=%d", limit, offset)

		raw, err := client.Get(ctx, path)
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Transactions failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatTxs(raw)), nil
	})
}

func registerTx(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("pulse_tx",
		gomcp.WithDescription("Get one archived transaction by hash."),
		gomcp.WithString("hash",
			gomcp.Required(),
			gomcp.Description("Transaction hash (0x...)"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		hash, err := req.RequireString("hash")
		if err != nil {
			return gomcp.NewToolResultError("hash is required"), nil
		}
		raw, err := client.Get(ctx, "/v1/txs/"+hash)
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Transaction lookup failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatTx(raw)), nil
	})
}

// Formatters

func formatStatus(raw json.RawMessage) string {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Sprintf("Error parsing status: %v", err)
	}

	mode := "direct"
	if getBool(m, "proxyMode") {
		mode = "proxy"
	}

	lines := joinLines(
		section("Dispatcher Status"),
		kv("Started", formatTime(getStr(m, "startedAt"))),
		kv("Mode", mode),
		kv("Keys", formatNumber(getNum(m, "keys"))),
		kv("Active Proxies", formatNumber(getNum(m, "activeProxies"))),
		kv("Dead Proxies", formatNumber(getNum(m, "deadProxies"))),
		kv("Buffered Entries", formatNumber(getNum(m, "buffered"))),
		kv("Feed Clients", formatNumber(getNum(m, "feedClients"))),
	)

	lines += "\n\n" + section("Cycles")
	if cycles, ok := m["cycles"].(map[string]any); ok && len(cycles) > 0 {
		for _, outcome := range slices.Sorted(maps.Keys(cycles)) {
			n, _ := cycles[outcome].(float64)
			lines += "\n" + kv(outcome, formatNumber(n))
		}
	} else {
		lines += "\nNo cycles yet."
	}
	lines += "\n" + kv("retries", formatNumber(getNum(m, "retries")))

	if last := getStr(m, "lastOutcome"); last != "" {
		lines += "\n\n" + joinLines(
			section("Last Cycle"),
			kv("Outcome", last),
			kv("At", formatTime(getStr(m, "lastCycleAt"))),
			optional("Error", getStr(m, "lastError")),
		)
	}

	return lines
}

func formatHealth(raw json.RawMessage) string {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Sprintf("Error parsing health: %v", err)
	}

	status := getStr(m, "status")
	uptime := time.Duration(getNum(m, "uptime_seconds") * float64(time.Second)).Round(time.Second)
	return joinLines(
		section("Dispatcher Health: "+status),
		kv("Uptime", uptime),
	)
}

func formatPersonas(raw json.RawMessage) string {
	var m map[string]map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Sprintf("Error parsing personas: %v", err)
	}

	lines := joinLines(
		section("Personas"),
		kv("Wallets", formatNumber(len(m))),
		"",
	)
	if len(m) == 0 {
		return lines + "No personas yet."
	}

	for _, wallet := range slices.Sorted(maps.Keys(m)) {
		p := m[wallet]
		lines += fmt.Sprintf("\n  %s  idle=%s  ping=%s  amount=%.4f-%.4f",
			wallet,
			formatPct(getNum(p, "idleBias")),
			formatPct(getNum(p, "pingBias")),
			getNum(p, "minAmount"),
			getNum(p, "maxAmount"),
		)
	}
	return lines
}

func formatDeadProxies(raw json.RawMessage) string {
	var m map[string]map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Sprintf("Error parsing dead proxies: %v", err)
	}

	lines := joinLines(
		section("Dead Proxies"),
		kv("Total", formatNumber(len(m))),
		"",
	)
	if len(m) == 0 {
		return lines + "No dead proxies."
	}

	for _, uri := range slices.Sorted(maps.Keys(m)) {
		d := m[uri]
		lines += fmt.Sprintf("\n  %s  failures=%d  marked=%s",
			uri, int64(getNum(d, "failures")), formatTime(getStr(d, "markedAt")))
	}
	return lines
}

func formatTxs(raw json.RawMessage) string {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Sprintf("Error parsing transactions: %v", err)
	}

	total := getNum(m, "total")
	lines := joinLines(
		section("Transaction Log"),
		kv("Total", formatNumber(total)),
		"",
	)

	txs, ok := m["transactions"].([]any)
	if !ok || len(txs) == 0 {
		return lines + "No transactions found."
	}

	for i, t := range txs {
		if i >= listLimit {
			lines += fmt.Sprintf("\n... and %d more", len(txs)-listLimit)
			break
		}
		tx, ok := t.(map[string]any)
		if !ok {
			continue
		}
		lines += fmt.Sprintf("\n  [%d] %s  %s  %-9s %-6s nonce=%d",
			i,
			formatTime(getStr(tx, "timestamp")),
			shortHash(getStr(tx, "txHash")),
			getStr(tx, "status"),
			getStr(tx, "action"),
			int64(getNum(tx, "nonce")),
		)
	}
	return lines
}

func formatTx(raw json.RawMessage) string {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Sprintf("Error parsing transaction: %v", err)
	}

	return joinLines(
		section("Transaction "+getStr(m, "txHash")),
		kv("Time", formatTime(getStr(m, "timestamp"))),
		kv("Wallet", getStr(m, "wallet")),
		kv("Nonce", int64(getNum(m, "nonce"))),
		kv("Action", getStr(m, "action")),
		kv("Status", getStr(m, "status")),
		optional("Gas Used", getStr(m, "gasUsed")),
		optional("Gas Price (gwei)", getStr(m, "gasPriceGwei")),
		optional("Fee (CELO)", getStr(m, "fee")),
	)
}

// optional returns kv(key, value), or "" when value is empty so joinLines drops it.
func optional(key, value string) string {
	if value == "" {
		return ""
	}
	return kv(key, value)
}

func formatTime(s string) string {
	if s == "" {
		return "-"
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return s
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
