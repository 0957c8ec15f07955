// Package config handles configuration loading and validation.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Defaults
const (
	DefaultChainID        = 42220
	DefaultKeysFile       = "key.txt"
	DefaultProxyFile      = "proxy.txt"
	DefaultDeadProxyFile  = "dead_proxies.json"
	DefaultPersonaFile    = "personas.json"
	DefaultLogDir         = "."
	DefaultLogLevel       = "info"
	DefaultEnvFile        = ".env"
	DefaultStatusListen   = "127.0.0.1:9464"
	DefaultCORSOrigins    = "*"
	DefaultNonceThreshold = 535
	DefaultMinBalance     = "0.01"
	DefaultResolveTimeout = 5 * time.Second
	DefaultConfirmTimeout = 10 * time.Second
	DefaultPollInterval   = time.Second
	DefaultQueryTimeout   = 10 * time.Second

	// Flush cadence when log.flush_interval is unset.
	ProxyFlushInterval  = time.Minute
	DirectFlushInterval = 5 * time.Minute
)

// DefaultEndpoints are the public Celo RPCs, tried in order.
var DefaultEndpoints = []string{
	"https://celo.drpc.org",
	"https://forno.celo.org",
	"https://rpc.ankr.com/celo",
	"https://1rpc.io/celo",
}

// RPCConfig selects the chain and its endpoints.
type RPCConfig struct {
	Endpoints      []string      `yaml:"endpoints"`
	ChainID        int64         `yaml:"chain_id"`
	ResolveTimeout time.Duration `yaml:"resolve_timeout"`
}

// FilesConfig locates the persistent state files.
type FilesConfig struct {
	Keys        string `yaml:"keys"`
	Proxies     string `yaml:"proxies"`
	DeadProxies string `yaml:"dead_proxies"`
	Personas    string `yaml:"personas"`
}

// ProxyConfig toggles proxy routing.
type ProxyConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DispatchConfig tunes the dispatch cycle.
type DispatchConfig struct {
	NonceThreshold uint64        `yaml:"nonce_threshold"`
	MinBalance     string        `yaml:"min_balance"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	QueryTimeout   time.Duration `yaml:"query_timeout"`
}

// LogConfig covers both process logging and the transaction log files.
type LogConfig struct {
	Dir           string        `yaml:"dir"`
	Level         string        `yaml:"level"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// ArchiveConfig enables the SQLite archive when SQLitePath is set.
type ArchiveConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// StatusConfig enables the status server when Listen is set.
type StatusConfig struct {
	Listen      string `yaml:"listen"`
	CORSOrigins string `yaml:"cors_origins"` // comma-separated, or "*" for all
}

// Config holds dispatcher configuration.
type Config struct {
	RPC      RPCConfig      `yaml:"rpc"`
	Files    FilesConfig    `yaml:"files"`
	Proxy    ProxyConfig    `yaml:"proxy"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Log      LogConfig      `yaml:"log"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Status   StatusConfig   `yaml:"status"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		RPC: RPCConfig{
			Endpoints:      append([]string(nil), DefaultEndpoints...),
			ChainID:        DefaultChainID,
			ResolveTimeout: DefaultResolveTimeout,
		},
		Files: FilesConfig{
			Keys:        DefaultKeysFile,
			Proxies:     DefaultProxyFile,
			DeadProxies: DefaultDeadProxyFile,
			Personas:    DefaultPersonaFile,
		},
		Proxy: ProxyConfig{Enabled: true},
		Dispatch: DispatchConfig{
			NonceThreshold: DefaultNonceThreshold,
			MinBalance:     DefaultMinBalance,
			ConfirmTimeout: DefaultConfirmTimeout,
			PollInterval:   DefaultPollInterval,
			QueryTimeout:   DefaultQueryTimeout,
		},
		Log: LogConfig{
			Dir:   DefaultLogDir,
			Level: DefaultLogLevel,
		},
		Status: StatusConfig{
			Listen:      DefaultStatusListen,
			CORSOrigins: DefaultCORSOrigins,
		},
	}
}

// Load builds the configuration from, in increasing precedence: defaults,
// the YAML file (-config or PULSE_CONFIG), environment variables (including
// those loaded from the .env file), and command-line flags.
func Load(args []string) (*Config, error) {
	fset := flag.NewFlagSet("pulse", flag.ContinueOnError)
	var (
		configPath    = fset.String("config", "", "YAML config file (env PULSE_CONFIG)")
		envFile       = fset.String("env-file", DefaultEnvFile, "dotenv file loaded into the environment")
		keysFile      = fset.String("keys", "", "Private key file, one hex key per line")
		proxyFile     = fset.String("proxies", "", "Proxy file, one URI per line")
		noProxy       = fset.Bool("no-proxy", false, "Disable proxy routing")
		endpoints     = fset.String("rpc", "", "Comma-separated RPC endpoints, tried in order")
		chainID       = fset.Int64("chainid", 0, "Expected chain ID")
		logDir        = fset.String("log-dir", "", "Directory for daily transaction CSV files")
		logLevel      = fset.String("log-level", "", "Log level (debug, info, warn, error)")
		flushInterval = fset.Duration("flush-interval", 0, "Transaction log flush interval (0 = by proxy mode)")
		sqlitePath    = fset.String("sqlite", "", "SQLite archive path (empty disables)")
		listen        = fset.String("listen", "", "Status server listen address")
	)
	if err := fset.Parse(args); err != nil {
		return nil, err
	}
	set := map[string]bool{}
	fset.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if err := loadEnvFile(*envFile); err != nil {
		return nil, err
	}

	cfg := Default()

	path := *configPath
	if path == "" {
		path = os.Getenv("PULSE_CONFIG")
	}
	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if set["keys"] {
		cfg.Files.Keys = *keysFile
	}
	if set["proxies"] {
		cfg.Files.Proxies = *proxyFile
	}
	if set["no-proxy"] {
		cfg.Proxy.Enabled = !*noProxy
	}
	if set["rpc"] {
		cfg.RPC.Endpoints = splitList(*endpoints)
	}
	if set["chainid"] {
		cfg.RPC.ChainID = *chainID
	}
	if set["log-dir"] {
		cfg.Log.Dir = *logDir
	}
	if set["log-level"] {
		cfg.Log.Level = *logLevel
	}
	if set["flush-interval"] {
		cfg.Log.FlushInterval = *flushInterval
	}
	if set["sqlite"] {
		cfg.Archive.SQLitePath = *sqlitePath
	}
	if set["listen"] {
		cfg.Status.Listen = *listen
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFile loads a dotenv file without overriding variables already set.
// A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// loadYAML overlays the YAML file at path onto c. A missing file is ignored.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// applyEnv applies environment variable overrides.
func (c *Config) applyEnv() error {
	if v := os.Getenv("KEYS_FILE"); v != "" {
		c.Files.Keys = v
	}
	if v := os.Getenv("PROXY_FILE"); v != "" {
		c.Files.Proxies = v
	}
	if v := os.Getenv("DEAD_PROXY_FILE"); v != "" {
		c.Files.DeadProxies = v
	}
	if v := os.Getenv("PERSONA_FILE"); v != "" {
		c.Files.Personas = v
	}
	if v := os.Getenv("PROXY_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PROXY_ENABLED: %w", err)
		}
		c.Proxy.Enabled = enabled
	}
	if v := os.Getenv("RPC_ENDPOINTS"); v != "" {
		c.RPC.Endpoints = splitList(v)
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("CHAIN_ID: %w", err)
		}
		c.RPC.ChainID = id
	}
	if v := os.Getenv("NONCE_THRESHOLD"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("NONCE_THRESHOLD: %w", err)
		}
		c.Dispatch.NonceThreshold = n
	}
	if v := os.Getenv("MIN_BALANCE"); v != "" {
		c.Dispatch.MinBalance = v
	}
	if v := os.Getenv("LOG_DIR"); v != "" {
		c.Log.Dir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("FLUSH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("FLUSH_INTERVAL: %w", err)
		}
		c.Log.FlushInterval = d
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Archive.SQLitePath = v
	}
	if v, ok := os.LookupEnv("STATUS_LISTEN"); ok {
		c.Status.Listen = v
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.Status.CORSOrigins = v
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.RPC.Endpoints) == 0 {
		return fmt.Errorf("at least one RPC endpoint is required")
	}
	for _, ep := range c.RPC.Endpoints {
		u, err := url.Parse(ep)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid RPC endpoint: %q", ep)
		}
	}
	if c.RPC.ChainID <= 0 {
		return fmt.Errorf("chain ID must be positive")
	}
	if c.RPC.ResolveTimeout <= 0 {
		return fmt.Errorf("rpc.resolve_timeout must be positive")
	}
	if c.Files.Keys == "" {
		return fmt.Errorf("key file path is required")
	}
	if c.Files.DeadProxies == "" || c.Files.Personas == "" {
		return fmt.Errorf("dead proxy and persona file paths are required")
	}
	if c.Dispatch.NonceThreshold == 0 {
		return fmt.Errorf("dispatch.nonce_threshold must be positive")
	}
	if _, err := c.MinBalance(); err != nil {
		return err
	}
	if c.Dispatch.ConfirmTimeout <= 0 || c.Dispatch.PollInterval <= 0 || c.Dispatch.QueryTimeout <= 0 {
		return fmt.Errorf("dispatch timeouts must be positive")
	}
	if c.Log.FlushInterval < 0 {
		return fmt.Errorf("log.flush_interval cannot be negative")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// MinBalance parses Dispatch.MinBalance.
func (c *Config) MinBalance() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.Dispatch.MinBalance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid dispatch.min_balance %q: %w", c.Dispatch.MinBalance, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("dispatch.min_balance must be positive")
	}
	return d, nil
}

// SlogLevel parses Log.Level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}
	return level, nil
}

// ProxyFile returns the proxy file to load, or "" in direct mode.
func (c *Config) ProxyFile() string {
	if !c.Proxy.Enabled {
		return ""
	}
	return c.Files.Proxies
}

// FlushIntervalFor returns the configured flush interval, or the default
// for the mode: frequent with proxies in play, relaxed when direct.
func (c *Config) FlushIntervalFor(activeProxies int) time.Duration {
	if c.Log.FlushInterval > 0 {
		return c.Log.FlushInterval
	}
	if activeProxies > 0 {
		return ProxyFlushInterval
	}
	return DirectFlushInterval
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
