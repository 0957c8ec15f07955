// Package storage archives flushed transaction log entries in SQLite.
package storage

import (
	"context"

	"github.com/gateway-fm/walletpulse/internal/txlog"
)

// Archive is the query side of the transaction log archive.
type Archive interface {
	BulkInsertTxLogs(ctx context.Context, entries []txlog.Entry) error
	GetTxLogs(ctx context.Context, limit, offset int) (*PaginatedTxLogs, error)
	GetTxLogByHash(ctx context.Context, txHash string) (*txlog.Entry, error)
	Close() error
}

// PaginatedTxLogs is one page of archived entries, newest first.
type PaginatedTxLogs struct {
	Transactions []txlog.Entry `json:"transactions"`
	Total        int           `json:"total"`
	Limit        int           `json:"limit"`
	Offset       int           `json:"offset"`
}
