// Package dispatch runs one transaction cycle: pick a wallet, resolve an
// endpoint, let the wallet's persona decide, submit a self-transfer, wait
// briefly for a receipt, and record the result.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/gateway-fm/walletpulse/internal/account"
	"github.com/gateway-fm/walletpulse/internal/metrics"
	"github.com/gateway-fm/walletpulse/internal/rpc"
	"github.com/gateway-fm/walletpulse/internal/store"
	"github.com/gateway-fm/walletpulse/internal/txbuilder"
	"github.com/gateway-fm/walletpulse/internal/txlog"
	ptypes "github.com/gateway-fm/walletpulse/pkg/types"
)

// Defaults for Config fields left at their zero value.
const (
	DefaultNonceThreshold = 535
	DefaultConfirmTimeout = 10 * time.Second
	DefaultPollInterval   = time.Second
	DefaultQueryTimeout   = 10 * time.Second
)

// DefaultMinBalance is the native balance below which a wallet is skipped.
var DefaultMinBalance = decimal.RequireFromString("0.01")

// KeyPicker selects the signing key for a cycle.
type KeyPicker interface {
	Pick() string
}

// Resolver returns an identity-checked connection, optionally via a proxy.
type Resolver interface {
	Resolve(ctx context.Context, proxyURI string) (*rpc.Connection, error)
}

// PersonaStore returns the persistent behavior profile of a wallet.
type PersonaStore interface {
	Ensure(address string) (store.Persona, error)
}

// LogAppender receives the entry recorded by a sent cycle.
type LogAppender interface {
	Append(e txlog.Entry)
}

// Config holds Dispatcher dependencies and tunables.
type Config struct {
	Keys     KeyPicker
	Proxies  []string
	Rand     account.Rand
	Resolver Resolver
	Personas PersonaStore
	Log      LogAppender
	ChainID  *big.Int

	NonceThreshold uint64
	MinBalance     decimal.Decimal
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	QueryTimeout   time.Duration

	Metrics *metrics.PrometheusMetrics
	Stats   *metrics.CycleStats
	Logger  *slog.Logger
}

// Dispatcher executes dispatch cycles. It is driven by a single goroutine.
type Dispatcher struct {
	keys     KeyPicker
	proxies  []string
	rnd      account.Rand
	resolver Resolver
	personas PersonaStore
	log      LogAppender
	chainID  *big.Int

	nonceThreshold uint64
	minBalanceWei  *big.Int
	confirmTimeout time.Duration
	pollInterval   time.Duration
	queryTimeout   time.Duration

	metrics *metrics.PrometheusMetrics
	stats   *metrics.CycleStats
	logger  *slog.Logger

	now func() time.Time
}

// New creates a Dispatcher, filling unset tunables with defaults.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Keys == nil || cfg.Resolver == nil || cfg.Personas == nil || cfg.Log == nil {
		return nil, errors.New("dispatch: keys, resolver, personas and log are required")
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, errors.New("dispatch: chain ID must be positive")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rnd := cfg.Rand
	if rnd == nil {
		rnd = account.NewRand()
	}

	d := &Dispatcher{
		keys:           cfg.Keys,
		proxies:        cfg.Proxies,
		rnd:            rnd,
		resolver:       cfg.Resolver,
		personas:       cfg.Personas,
		log:            cfg.Log,
		chainID:        cfg.ChainID,
		nonceThreshold: cfg.NonceThreshold,
		confirmTimeout: cfg.ConfirmTimeout,
		pollInterval:   cfg.PollInterval,
		queryTimeout:   cfg.QueryTimeout,
		metrics:        cfg.Metrics,
		stats:          cfg.Stats,
		logger:         logger,
		now:            time.Now,
	}
	if d.nonceThreshold == 0 {
		d.nonceThreshold = DefaultNonceThreshold
	}
	minBalance := cfg.MinBalance
	if minBalance.IsZero() {
		minBalance = DefaultMinBalance
	}
	d.minBalanceWei = txbuilder.NativeToWei(minBalance)
	if d.confirmTimeout <= 0 {
		d.confirmTimeout = DefaultConfirmTimeout
	}
	if d.pollInterval <= 0 {
		d.pollInterval = DefaultPollInterval
	}
	if d.queryTimeout <= 0 {
		d.queryTimeout = DefaultQueryTimeout
	}
	return d, nil
}

// RunCycle performs one cycle. A non-nil error means the cycle failed
// before a transaction was broadcast; the outcome is then OutcomeFailed.
//
// Cancelling ctx stops resolution and the pre-send queries. Once signing
// starts the cycle runs to completion on a detached context so a broadcast
// transaction is always recorded.
func (d *Dispatcher) RunCycle(ctx context.Context) (ptypes.CycleOutcome, error) {
	outcome, err := d.runCycle(ctx)
	if err != nil {
		outcome = ptypes.OutcomeFailed
	}
	d.metrics.CycleOutcome(string(outcome))
	if d.stats != nil {
		d.stats.Record(outcome, err)
	}
	return outcome, err
}

func (d *Dispatcher) runCycle(ctx context.Context) (ptypes.CycleOutcome, error) {
	// SELECT
	key := d.keys.Pick()
	proxyURI := store.PickProxy(d.proxies, d.rnd)

	// RESOLVE
	conn, err := d.resolver.Resolve(ctx, proxyURI)
	if err != nil {
		return "", fmt.Errorf("resolve endpoint: %w", err)
	}
	defer conn.Close()

	acct, err := account.NewAccountFromHex(key)
	if err != nil {
		return "", err
	}
	wallet := acct.Address.Hex()
	logger := d.logger.With(slog.String("wallet", wallet), slog.String("rpc", conn.URL))
	if conn.Proxy != "" {
		logger = logger.With(slog.String("proxy", conn.Proxy))
	}

	// DECIDE
	persona, err := d.personas.Ensure(wallet)
	if err != nil {
		return "", fmt.Errorf("load persona: %w", err)
	}

	if d.rnd.Float64() < persona.IdleBias {
		logger.Info("persona idle, skipping cycle")
		return ptypes.OutcomeIdle, nil
	}

	balance, err := d.balance(ctx, conn.Client, acct)
	if err != nil {
		return "", err
	}
	nonce, err := d.nonce(ctx, conn.Client, acct)
	if err != nil {
		return "", err
	}

	logger.Info("wallet selected",
		slog.String("balance", txbuilder.FormatNative(balance)),
		slog.Uint64("nonce", nonce),
	)

	if nonce >= d.nonceThreshold {
		logger.Warn("nonce threshold reached, skipping",
			slog.Uint64("nonce", nonce),
			slog.Uint64("threshold", d.nonceThreshold),
		)
		return ptypes.OutcomeNonceCap, nil
	}
	if balance.Cmp(d.minBalanceWei) < 0 {
		logger.Warn("insufficient balance, skipping",
			slog.String("balance", txbuilder.FormatNative(balance)),
		)
		return ptypes.OutcomeLowBalance, nil
	}

	action, amount := d.decideAction(persona)

	// SUBMIT
	sendCtx := context.WithoutCancel(ctx)
	tx, err := d.submit(sendCtx, conn.Client, acct, nonce, txbuilder.NativeToWei(amount))
	if err != nil {
		return "", err
	}
	amountF, _ := amount.Float64()
	d.metrics.TxSubmitted(string(action), amountF)
	logger.Info("transaction sent",
		slog.String("tx_hash", tx.Hash().Hex()),
		slog.String("action", string(action)),
		slog.String("value", amount.String()),
		slog.String("gas_price_gwei", txbuilder.FormatGwei(tx.GasPrice())),
	)

	// AWAIT-CONFIRM
	entry := txlog.Entry{
		Wallet: wallet,
		TxHash: tx.Hash().Hex(),
		Nonce:  tx.Nonce(),
		Action: action,
	}
	d.awaitReceipt(sendCtx, conn.Client, tx, &entry, logger)

	// RECORD
	entry.Timestamp = d.now().UTC()
	d.log.Append(entry)
	return ptypes.OutcomeSent, nil
}

// decideAction draws ping vs normal and, for normal, an amount in the
// persona's range rounded to txbuilder.AmountDecimals places.
func (d *Dispatcher) decideAction(p store.Persona) (ptypes.TxAction, decimal.Decimal) {
	if d.rnd.Float64() < p.PingBias {
		return ptypes.ActionPing, decimal.Zero
	}
	amount := account.Uniform(d.rnd, p.MinAmount, p.MaxAmount)
	return ptypes.ActionNormal, txbuilder.RoundAmount(amount)
}

func (d *Dispatcher) balance(ctx context.Context, c rpc.Client, acct *account.Account) (*big.Int, error) {
	qctx, cancel := context.WithTimeout(ctx, d.queryTimeout)
	defer cancel()
	bal, err := c.BalanceAt(qctx, acct.Address, nil)
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return bal, nil
}

func (d *Dispatcher) nonce(ctx context.Context, c rpc.Client, acct *account.Account) (uint64, error) {
	qctx, cancel := context.WithTimeout(ctx, d.queryTimeout)
	defer cancel()
	n, err := c.NonceAt(qctx, acct.Address, nil)
	if err != nil {
		return 0, fmt.Errorf("get nonce: %w", err)
	}
	return n, nil
}

func (d *Dispatcher) submit(ctx context.Context, c rpc.Client, acct *account.Account, nonce uint64, value *big.Int) (*types.Transaction, error) {
	qctx, cancel := context.WithTimeout(ctx, d.queryTimeout)
	defer cancel()

	gasPrice, err := c.SuggestGasPrice(qctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}

	tx, err := txbuilder.SignSelfTransfer(txbuilder.TransferParams{
		ChainID:  d.chainID,
		Nonce:    nonce,
		From:     acct.Address,
		Value:    value,
		GasPrice: gasPrice,
	}, acct.PrivateKey)
	if err != nil {
		return nil, err
	}

	if err := c.SendTransaction(qctx, tx); err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}
	return tx, nil
}

// awaitReceipt polls for the receipt until confirmTimeout and fills the
// status, gas and fee fields of e. It never fails the cycle.
func (d *Dispatcher) awaitReceipt(ctx context.Context, c rpc.Client, tx *types.Transaction, e *txlog.Entry, logger *slog.Logger) {
	start := d.now()
	ctx, cancel := context.WithTimeout(ctx, d.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.TransactionReceipt(ctx, tx.Hash())
		switch {
		case err == nil && receipt != nil:
			d.fillReceipt(e, receipt, tx)
			elapsed := d.now().Sub(start)
			d.metrics.TxConfirmed(elapsed.Seconds())
			if d.stats != nil {
				d.stats.RecordConfirm(elapsed)
			}
			logger.Info("transaction confirmed",
				slog.String("tx_hash", e.TxHash),
				slog.String("status", string(e.Status)),
				slog.String("gas_used", e.GasUsed),
				slog.String("fee", e.Fee),
			)
			return
		case err != nil && !errors.Is(err, ethereum.NotFound) && ctx.Err() == nil:
			e.Status = ptypes.TxStatusError
			logger.Warn("receipt lookup failed",
				slog.String("tx_hash", e.TxHash),
				slog.String("error", err.Error()),
			)
			return
		}

		select {
		case <-ctx.Done():
			e.Status = ptypes.TxStatusPending
			logger.Warn("no confirmation before timeout, moving on",
				slog.String("tx_hash", e.TxHash),
				slog.Duration("timeout", d.confirmTimeout),
			)
			return
		case <-ticker.C:
		}
	}
}

func (d *Dispatcher) fillReceipt(e *txlog.Entry, r *types.Receipt, tx *types.Transaction) {
	e.Status = ptypes.TxStatusConfirmed
	if r.Status == types.ReceiptStatusFailed {
		e.Status = ptypes.TxStatusFailed
	}
	price := r.EffectiveGasPrice
	if price == nil {
		price = tx.GasPrice()
	}
	e.GasUsed = strconv.FormatUint(r.GasUsed, 10)
	e.GasPriceGwei = txbuilder.FormatGwei(price)
	e.Fee = txbuilder.FormatNative(txbuilder.Fee(r.GasUsed, price))
}
