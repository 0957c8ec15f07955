package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gateway-fm/walletpulse/internal/txlog"
	"github.com/gateway-fm/walletpulse/pkg/types"
)

// writeTimeout bounds one archive write from the flush path.
const writeTimeout = 30 * time.Second

// SQLiteStorage implements Archive using SQLite. It is also a txlog.Sink.
type SQLiteStorage struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ txlog.Sink = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens (or creates) the archive at dbPath.
func NewSQLiteStorage(dbPath string, logger *slog.Logger) (*SQLiteStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL lets the status server read while a flush is inserting.
	dsn := fmt.Sprintf("%s?_journal=WAL&_sync=NORMAL&_cache_size=10000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLiteStorage{db: db, logger: logger}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// migrate runs database migrations.
func (s *SQLiteStorage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tx_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp_ms INTEGER NOT NULL,
		wallet TEXT NOT NULL,
		tx_hash TEXT NOT NULL,
		nonce INTEGER NOT NULL,
		gas_used TEXT,
		gas_price_gwei TEXT,
		fee TEXT,
		status TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tx_logs_time ON tx_logs(timestamp_ms DESC);
	CREATE INDEX IF NOT EXISTS idx_tx_logs_hash ON tx_logs(tx_hash);
	CREATE INDEX IF NOT EXISTS idx_tx_logs_wallet ON tx_logs(wallet);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Columns added after the first archive format shipped.
	migrations := []struct {
		table  string
		column string
		ddl    string
	}{
		{"tx_logs", "action", "ALTER TABLE tx_logs ADD COLUMN action TEXT DEFAULT 'normal'"},
	}

	for _, m := range migrations {
		if !s.columnExists(m.table, m.column) {
			if _, err := s.db.Exec(m.ddl); err != nil {
				s.logger.Warn("migration failed",
					slog.String("table", m.table),
					slog.String("column", m.column),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	return nil
}

// columnExists checks if a column exists in a table.
// Identifiers are validated before being interpolated.
func (s *SQLiteStorage) columnExists(table, column string) bool {
	if !isValidIdentifier(table) || !isValidIdentifier(column) {
		return false
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM pragma_table_info('%s') WHERE name = '%s'", table, column)
	var count int
	if err := s.db.QueryRow(query).Scan(&count); err != nil {
		return false
	}
	return count > 0
}

// isValidIdentifier allows only alphanumeric characters and underscore.
func isValidIdentifier(s string) bool {
	if len(s) == 0 || len(s) > 128 {
		return false
	}
	for _, c := range s {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_') {
			return false
		}
	}
	return true
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Name implements txlog.Sink.
func (s *SQLiteStorage) Name() string { return "sqlite" }

// Write implements txlog.Sink.
func (s *SQLiteStorage) Write(entries []txlog.Entry) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return s.BulkInsertTxLogs(ctx, entries)
}

// BulkInsertTxLogs inserts entries in a single transaction so a flush pays
// the fsync cost once.
func (s *SQLiteStorage) BulkInsertTxLogs(ctx context.Context, entries []txlog.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tx_logs (timestamp_ms, wallet, tx_hash, nonce, gas_used, gas_price_gwei, fee, status, action)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, err := stmt.ExecContext(ctx, e.Timestamp.UnixMilli(), e.Wallet, e.TxHash, int64(e.Nonce),
			nullString(e.GasUsed), nullString(e.GasPriceGwei), nullString(e.Fee),
			string(e.Status), string(e.Action))
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetTxLogs returns archived entries, newest first.
func (s *SQLiteStorage) GetTxLogs(ctx context.Context, limit, offset int) (*PaginatedTxLogs, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tx_logs").Scan(&total); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp_ms, wallet, tx_hash, nonce, gas_used, gas_price_gwei, fee, status, COALESCE(action, 'normal')
		FROM tx_logs
		ORDER BY timestamp_ms DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []txlog.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &PaginatedTxLogs{
		Transactions: logs,
		Total:        total,
		Limit:        limit,
		Offset:       offset,
	}, nil
}

// GetTxLogByHash retrieves the latest entry for txHash, or nil if none.
func (s *SQLiteStorage) GetTxLogByHash(ctx context.Context, txHash string) (*txlog.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT timestamp_ms, wallet, tx_hash, nonce, gas_used, gas_price_gwei, fee, status, COALESCE(action, 'normal')
		FROM tx_logs
		WHERE tx_hash = ?
		ORDER BY id DESC
		LIMIT 1
	`, txHash)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (*txlog.Entry, error) {
	var (
		e                      txlog.Entry
		tsMs, nonce            int64
		gasUsed, gasPrice, fee sql.NullString
		status, action         string
	)
	if err := sc.Scan(&tsMs, &e.Wallet, &e.TxHash, &nonce, &gasUsed, &gasPrice, &fee, &status, &action); err != nil {
		return nil, err
	}
	e.Timestamp = time.UnixMilli(tsMs).UTC()
	e.Nonce = uint64(nonce)
	e.GasUsed = gasUsed.String
	e.GasPriceGwei = gasPrice.String
	e.Fee = fee.String
	e.Status = types.TxStatus(status)
	e.Action = types.TxAction(action)
	return &e, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
