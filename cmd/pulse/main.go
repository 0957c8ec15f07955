package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/gateway-fm/walletpulse/internal/account"
	"github.com/gateway-fm/walletpulse/internal/config"
	"github.com/gateway-fm/walletpulse/internal/dispatch"
	"github.com/gateway-fm/walletpulse/internal/metrics"
	"github.com/gateway-fm/walletpulse/internal/rpc"
	"github.com/gateway-fm/walletpulse/internal/scheduler"
	"github.com/gateway-fm/walletpulse/internal/storage"
	"github.com/gateway-fm/walletpulse/internal/store"
	"github.com/gateway-fm/walletpulse/internal/transport"
	"github.com/gateway-fm/walletpulse/internal/txlog"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	level, _ := cfg.SlogLevel() // validated by Load
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := shutdownContext()
	err = run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Error("dispatcher stopped with error", "error", err)
		os.Exit(1)
	}
}

// shutdownContext is cancelled by SIGINT or SIGTERM.
func shutdownContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// run wires the dispatcher and blocks until ctx is done. Buffered log entries
// are flushed on the configured interval and once more before returning.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	keys, err := store.LoadKeys(cfg.Files.Keys)
	if err != nil {
		if errors.Is(err, store.ErrNoKeys) {
			logger.Error("no private keys found", "path", cfg.Files.Keys)
		}
		return err
	}

	dead, err := store.OpenDeadProxies(cfg.Files.DeadProxies, logger)
	if err != nil {
		return err
	}
	proxies, err := store.LoadProxies(cfg.ProxyFile(), dead)
	if err != nil {
		return err
	}

	rnd := account.NewRand()
	personas, err := store.OpenPersonas(cfg.Files.Personas, rnd, logger)
	if err != nil {
		return err
	}
	pool, err := account.NewKeyPool(keys, rnd)
	if err != nil {
		return err
	}
	minBalance, err := cfg.MinBalance()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promMetrics := metrics.NewPrometheusMetrics(reg)
	promMetrics.SetActiveProxies(len(proxies))
	stats := metrics.NewCycleStats()

	// Transaction log sinks: daily CSV always, SQLite archive and live feed optionally.
	sinks := []txlog.Sink{txlog.NewCSVSink(cfg.Log.Dir)}
	var archive *storage.SQLiteStorage
	if cfg.Archive.SQLitePath != "" {
		archive, err = storage.NewSQLiteStorage(cfg.Archive.SQLitePath, logger)
		if err != nil {
			return err
		}
		defer archive.Close()
		sinks = append(sinks, archive)
		logger.Info("initialized archive", "path", cfg.Archive.SQLitePath)
	}
	hub := transport.NewHub(logger)
	sinks = append(sinks, hub)

	buffer := txlog.NewBuffer(txlog.BufferConfig{
		Sinks:   sinks,
		Metrics: promMetrics,
		Logger:  logger,
	})
	flush := func() {
		_, _ = buffer.Flush() // sink failures are logged by the buffer
	}
	defer flush()

	chainID := big.NewInt(cfg.RPC.ChainID)
	resolver := rpc.NewResolver(rpc.ResolverConfig{
		Endpoints: cfg.RPC.Endpoints,
		ChainID:   chainID,
		Timeout:   cfg.RPC.ResolveTimeout,
		Dial:      rpc.Dial,
		Marker:    dead,
		Metrics:   promMetrics,
		Logger:    logger,
	})

	dispatcher, err := dispatch.New(dispatch.Config{
		Keys:           pool,
		Proxies:        proxies,
		Rand:           rnd,
		Resolver:       resolver,
		Personas:       personas,
		Log:            buffer,
		ChainID:        chainID,
		NonceThreshold: cfg.Dispatch.NonceThreshold,
		MinBalance:     minBalance,
		ConfirmTimeout: cfg.Dispatch.ConfirmTimeout,
		PollInterval:   cfg.Dispatch.PollInterval,
		QueryTimeout:   cfg.Dispatch.QueryTimeout,
		Metrics:        promMetrics,
		Stats:          stats,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	loop := scheduler.New(scheduler.Config{
		Cycle:  dispatcher,
		Rand:   rnd,
		Stats:  stats,
		Logger: logger,
	})

	interval := cfg.FlushIntervalFor(len(proxies))
	c := cron.New()
	if _, err := c.AddFunc("@every "+interval.String(), flush); err != nil {
		return fmt.Errorf("schedule log flush: %w", err)
	}

	logger.Info("dispatcher starting",
		"keys", pool.Len(),
		"proxies", len(proxies),
		"deadProxies", dead.Len(),
		"proxyMode", cfg.Proxy.Enabled && len(proxies) > 0,
		"chainId", cfg.RPC.ChainID,
		"endpoints", len(cfg.RPC.Endpoints),
		"flushInterval", interval.String(),
	)

	c.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := loop.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if cfg.Status.Listen != "" {
		provider := &app{
			stats:     stats,
			buffer:    buffer,
			dead:      dead,
			personas:  personas,
			hub:       hub,
			keys:      pool.Len(),
			proxies:   len(proxies),
			proxyMode: len(proxies) > 0,
		}
		srvCfg := transport.ServerConfig{
			Provider:           provider,
			Hub:                hub,
			Gatherer:           reg,
			CORSAllowedOrigins: cfg.Status.CORSOrigins,
			Logger:             logger,
		}
		if archive != nil {
			srvCfg.Archive = archive
		}
		srv := transport.NewServer(srvCfg)
		// The status server is optional; losing it must not stop the dispatcher.
		g.Go(func() error {
			if err := srv.ListenAndServe(gctx, cfg.Status.Listen); err != nil {
				logger.Error("status server unavailable, dispatching continues",
					slog.String("addr", cfg.Status.Listen),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}

	err = g.Wait()
	logger.Info("shutting down...")

	select {
	case <-c.Stop().Done():
	case <-time.After(30 * time.Second):
		logger.Warn("timed out waiting for scheduled flush")
	}
	return err
}
