// Package txlog buffers transaction log entries in memory and flushes them
// in batches to one or more sinks.
package txlog

import (
	"strconv"
	"time"

	"github.com/gateway-fm/walletpulse/pkg/types"
)

// TimestampLayout is RFC3339 in UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Header is the column row written at the top of every daily CSV file.
var Header = []string{
	"timestamp", "wallet", "tx_hash", "nonce", "gas_used",
	"gas_price_gwei", "fee_celo", "status", "action",
}

// Entry records one submitted transaction. GasUsed, GasPriceGwei and Fee are
// empty when no receipt was obtained.
type Entry struct {
	Timestamp    time.Time      `json:"timestamp"`
	Wallet       string         `json:"wallet"`
	TxHash       string         `json:"txHash"`
	Nonce        uint64         `json:"nonce"`
	GasUsed      string         `json:"gasUsed,omitempty"`
	GasPriceGwei string         `json:"gasPriceGwei,omitempty"`
	Fee          string         `json:"fee,omitempty"`
	Status       types.TxStatus `json:"status"`
	Action       types.TxAction `json:"action"`
}

// Row returns the CSV columns of e in Header order.
func (e Entry) Row() []string {
	return []string{
		e.Timestamp.UTC().Format(TimestampLayout),
		e.Wallet,
		e.TxHash,
		strconv.FormatUint(e.Nonce, 10),
		e.GasUsed,
		e.GasPriceGwei,
		e.Fee,
		string(e.Status),
		string(e.Action),
	}
}
