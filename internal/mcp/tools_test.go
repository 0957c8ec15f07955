package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/server"
)

func TestClientGet(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/status":
			w.Write([]byte(`{"keys":2}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"Transaction archive not enabled"}`))
		}
	}))
	defer ts.Close()

	c := NewClient(ts.URL + "/")

	raw, err := c.Get(context.Background(), "/v1/status")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(raw) != `{"keys":2}` {
		t.Errorf("body = %s", raw)
	}

	_, err = c.Get(context.Background(), "/v1/txs")
	if err == nil || !strings.Contains(err.Error(), "HTTP 404") || !strings.Contains(err.Error(), "archive not enabled") {
		t.Errorf("Get() error = %v, want HTTP 404 with message", err)
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{in: float64(7), want: "7"},
		{in: float64(1234567), want: "1,234,567"},
		{in: 1.25, want: "1.2"},
		{in: 1000, want: "1,000"},
		{in: uint64(999), want: "999"},
		{in: "x", want: "x"},
	}
	for _, tt := range tests {
		if got := formatNumber(tt.in); got != tt.want {
			t.Errorf("formatNumber(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatStatus(t *testing.T) {
	raw := json.RawMessage(`{
		"startedAt": "2025-03-01T10:00:00Z",
		"cycles": {"sent": 12, "idle": 3, "failed": 1},
		"retries": 2,
		"lastOutcome": "failed",
		"lastError": "resolve endpoint: all RPC endpoints failed",
		"lastCycleAt": "2025-03-01T11:00:00.5Z",
		"buffered": 4,
		"keys": 5,
		"activeProxies": 8,
		"deadProxies": 1,
		"proxyMode": true,
		"feedClients": 2
	}`)

	out := formatStatus(raw)
	for _, want := range []string{
		"## Dispatcher Status",
		"Mode:                proxy",
		"Active Proxies:      8",
		"Feed Clients:        2",
		"sent:                12",
		"retries:             2",
		"all RPC endpoints failed",
		"2025-03-01 11:00:00",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("formatStatus output missing %q:\n%s", want, out)
		}
	}
	// Outcomes are listed in sorted order.
	if strings.Index(out, "failed:") > strings.Index(out, "idle:") {
		t.Errorf("cycles not sorted:\n%s", out)
	}
}

func TestFormatStatusNoCycles(t *testing.T) {
	out := formatStatus(json.RawMessage(`{"cycles":{},"keys":1}`))
	if !strings.Contains(out, "No cycles yet.") {
		t.Errorf("output = %s", out)
	}
	if strings.Contains(out, "Last Cycle") {
		t.Errorf("unexpected last cycle section:\n%s", out)
	}
}

func TestFormatPersonasAndDeadProxies(t *testing.T) {
	personas := formatPersonas(json.RawMessage(`{
		"0xbbb": {"idleBias": 0.1, "pingBias": 0.25, "minAmount": 0.0001, "maxAmount": 0.015},
		"0xaaa": {"idleBias": 0.05, "pingBias": 0.1, "minAmount": 0.0002, "maxAmount": 0.012}
	}`))
	if !strings.Contains(personas, "ping=25.0%") || !strings.Contains(personas, "amount=0.0001-0.0150") {
		t.Errorf("personas output:\n%s", personas)
	}
	if strings.Index(personas, "0xaaa") > strings.Index(personas, "0xbbb") {
		t.Errorf("personas not sorted:\n%s", personas)
	}

	dead := formatDeadProxies(json.RawMessage(`{"socks5://10.0.0.1:1080": {"failures": 2, "markedAt": "2025-03-01T00:00:00Z"}}`))
	if !strings.Contains(dead, "failures=2") || !strings.Contains(dead, "2025-03-01 00:00:00") {
		t.Errorf("dead proxies output:\n%s", dead)
	}

	if out := formatDeadProxies(json.RawMessage(`{}`)); !strings.Contains(out, "No dead proxies.") {
		t.Errorf("empty dead proxies output:\n%s", out)
	}
}

func TestFormatTxs(t *testing.T) {
	raw := json.RawMessage(`{"total": 1, "limit": 20, "offset": 0, "transactions": [
		{"timestamp": "2025-03-01T12:00:00.123Z", "wallet": "0xf39F", "txHash": "0x8b1f0c2a9d3e4f5061728394a5b6c7d8e9f00112233445566778899aabbccdd",
		 "nonce": 41, "status": "pending", "action": "ping"}
	]}`)

	out := formatTxs(raw)
	for _, want := range []string{"Total:               1", "0x8b1f0c2a9d3e4f50...", "pending", "ping", "nonce=41"} {
		if !strings.Contains(out, want) {
			t.Errorf("formatTxs output missing %q:\n%s", want, out)
		}
	}

	if out := formatTxs(json.RawMessage(`{"total":0,"transactions":[]}`)); !strings.Contains(out, "No transactions found.") {
		t.Errorf("empty output:\n%s", out)
	}
}

func TestFormatTxOmitsEmptyGasFields(t *testing.T) {
	out := formatTx(json.RawMessage(`{"txHash":"0xabc","timestamp":"2025-03-01T12:00:00Z","nonce":3,"status":"pending","action":"normal"}`))
	if strings.Contains(out, "Gas Used") || strings.Contains(out, "Fee") {
		t.Errorf("pending tx shows gas fields:\n%s", out)
	}

	out = formatTx(json.RawMessage(`{"txHash":"0xabc","status":"confirmed","gasUsed":"21000","fee":"0.000525"}`))
	if !strings.Contains(out, "21000") || !strings.Contains(out, "0.000525") {
		t.Errorf("confirmed tx missing gas fields:\n%s", out)
	}
}

func TestRegisterTools(t *testing.T) {
	s := server.NewMCPServer("walletpulse", "test", server.WithToolCapabilities(true))
	RegisterTools(s, NewClient("http://127.0.0.1:0"))

	resp := s.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	for _, name := range []string{"pulse_status", "pulse_health", "pulse_personas", "pulse_dead_proxies", "pulse_recent_txs", "pulse_tx"} {
		if !strings.Contains(string(data), `"`+name+`"`) {
			t.Errorf("tools/list missing %s: %s", name, data)
		}
	}
}
