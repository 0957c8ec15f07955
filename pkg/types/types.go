// Package types contains shared types for the dispatcher and its status API.
package types

import "time"

// CycleOutcome describes how a dispatch cycle ended.
type CycleOutcome string

const (
	OutcomeSent       CycleOutcome = "sent"        // transaction submitted and recorded
	OutcomeIdle       CycleOutcome = "idle"        // persona chose to skip
	OutcomeNonceCap   CycleOutcome = "nonce_cap"   // wallet reached its activity budget
	OutcomeLowBalance CycleOutcome = "low_balance" // not enough funds
	OutcomeFailed     CycleOutcome = "failed"      // cycle-fatal error (after retry)
)

// TxAction is the kind of transfer a cycle submitted.
type TxAction string

const (
	ActionNormal TxAction = "normal" // random value self-transfer
	ActionPing   TxAction = "ping"   // zero-value self-transfer
)

// TxStatus is the confirmation state recorded for a submitted transaction.
type TxStatus string

const (
	TxStatusConfirmed TxStatus = "confirmed" // receipt with status 1
	TxStatusFailed    TxStatus = "failed"    // receipt with status 0 (reverted)
	TxStatusPending   TxStatus = "pending"   // no receipt within the confirm timeout
	TxStatusError     TxStatus = "error"     // receipt lookup failed
)

// Status is the dispatcher's live status, served at /v1/status.
type Status struct {
	StartedAt     time.Time         `json:"startedAt"`
	Cycles        map[string]uint64 `json:"cycles"`
	Retries       uint64            `json:"retries"`
	LastOutcome   CycleOutcome      `json:"lastOutcome,omitempty"`
	LastError     string            `json:"lastError,omitempty"`
	LastCycleAt   *time.Time        `json:"lastCycleAt,omitempty"`
	Buffered      int               `json:"buffered"`
	Keys          int               `json:"keys"`
	ActiveProxies int               `json:"activeProxies"`
	DeadProxies   int               `json:"deadProxies"`
	ProxyMode     bool              `json:"proxyMode"`
	FeedClients   int               `json:"feedClients"`

	ConfirmLatency *LatencyStats `json:"confirmLatency,omitempty"`
}

// LatencyStats summarizes submit-to-receipt latency. Values are milliseconds.
type LatencyStats struct {
	Count   int             `json:"count"`
	Min     float64         `json:"min"`
	Max     float64         `json:"max"`
	Avg     float64         `json:"avg"`
	P50     float64         `json:"p50"`
	P90     float64         `json:"p90"`
	P99     float64         `json:"p99"`
	Buckets []LatencyBucket `json:"buckets"`
}

// LatencyBucket is one histogram bucket.
type LatencyBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}
