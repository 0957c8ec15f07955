package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/gateway-fm/walletpulse/internal/metrics"
)

var (
	// ErrAllEndpointsFailed is returned when no endpoint answered, with or
	// without a proxy. It is fatal for the current cycle only.
	ErrAllEndpointsFailed = errors.New("all RPC endpoints failed")

	// ErrChainIDMismatch is returned when an endpoint serves a different chain.
	ErrChainIDMismatch = errors.New("chain ID mismatch")
)

// DefaultResolveTimeout bounds one endpoint attempt (dial + chain ID query).
const DefaultResolveTimeout = 5 * time.Second

// ProxyMarker records proxies that could not reach any endpoint.
type ProxyMarker interface {
	MarkDead(uri string) error
}

// Connection is a resolved, identity-checked endpoint.
type Connection struct {
	URL    string
	Proxy  string
	Client Client
}

// Close releases the connection's client.
func (c *Connection) Close() {
	if c != nil && c.Client != nil {
		c.Client.Close()
	}
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	Endpoints []string
	ChainID   *big.Int
	Timeout   time.Duration
	Dial      DialFunc
	Marker    ProxyMarker
	Metrics   *metrics.PrometheusMetrics
	Logger    *slog.Logger
}

// Resolver walks an ordered endpoint list and returns the first endpoint that
// answers with the expected chain ID.
type Resolver struct {
	endpoints []string
	chainID   *big.Int
	timeout   time.Duration
	dial      DialFunc
	marker    ProxyMarker
	metrics   *metrics.PrometheusMetrics
	logger    *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}
	dial := cfg.Dial
	if dial == nil {
		dial = Dial
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{
		endpoints: append([]string(nil), cfg.Endpoints...),
		chainID:   cfg.ChainID,
		timeout:   timeout,
		dial:      dial,
		marker:    cfg.Marker,
		metrics:   cfg.Metrics,
		logger:    logger,
	}
}

// Resolve returns a working connection. With a proxy, a full failed pass
// marks the proxy dead and is followed by one direct pass.
func (r *Resolver) Resolve(ctx context.Context, proxyURI string) (*Connection, error) {
	conn, err := r.tryEndpoints(ctx, NewTransport(proxyURI))
	if err == nil {
		return conn, nil
	}
	if proxyURI == "" || ctx.Err() != nil {
		return nil, err
	}

	r.logger.Warn("proxy failed, retrying without proxy",
		slog.String("proxy", proxyURI),
		slog.String("error", err.Error()),
	)
	if r.marker != nil {
		if markErr := r.marker.MarkDead(proxyURI); markErr != nil {
			r.logger.Error("failed to persist dead proxy",
				slog.String("proxy", proxyURI),
				slog.String("error", markErr.Error()),
			)
		}
	}
	r.metrics.ProxyMarkedDead()

	conn, err = r.tryEndpoints(ctx, Direct())
	if err != nil {
		return nil, fmt.Errorf("%w, even without proxy", err)
	}
	return conn, nil
}

// tryEndpoints makes one ordered pass over the endpoint list.
func (r *Resolver) tryEndpoints(ctx context.Context, transport Transport) (*Connection, error) {
	mode := modeLabel(transport)
	r.logger.Info("searching for a working RPC endpoint",
		slog.String("mode", mode),
		slog.Int("candidates", len(r.endpoints)),
	)

	var errs []error
	for _, url := range r.endpoints {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		ep := Endpoint{URL: url, Transport: transport}
		client, chainID, err := r.checkEndpoint(ctx, ep)
		if err != nil {
			r.metrics.ResolveAttempt(mode, "failure")
			r.logger.Warn("failed to connect to endpoint",
				slog.String("url", url),
				slog.String("mode", mode),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", url, err))
			continue
		}

		r.metrics.ResolveAttempt(mode, "success")
		r.logger.Info("connected to endpoint",
			slog.String("url", url),
			slog.String("mode", mode),
			slog.String("chainId", chainID.String()),
		)
		return &Connection{URL: url, Proxy: transport.Proxy(), Client: client}, nil
	}

	if len(errs) == 0 {
		return nil, ErrAllEndpointsFailed
	}
	return nil, fmt.Errorf("%w: %w", ErrAllEndpointsFailed, errors.Join(errs...))
}

// checkEndpoint dials ep and checks its chain ID within the per-attempt timeout.
// The client is closed on any failure.
func (r *Resolver) checkEndpoint(ctx context.Context, ep Endpoint) (Client, *big.Int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	client, err := r.dial(attemptCtx, ep)
	if err != nil {
		return nil, nil, err
	}

	chainID, err := client.ChainID(attemptCtx)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	if r.chainID != nil && chainID.Cmp(r.chainID) != 0 {
		client.Close()
		return nil, nil, fmt.Errorf("%w: got %s, want %s", ErrChainIDMismatch, chainID, r.chainID)
	}
	return client, chainID, nil
}

func modeLabel(t Transport) string {
	if t.Proxy() == "" {
		return "direct"
	}
	return "proxy"
}
