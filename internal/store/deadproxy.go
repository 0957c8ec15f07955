package store

import (
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"
)

// DeadProxy records how often a proxy failed to reach any endpoint.
type DeadProxy struct {
	Failures int       `json:"failures"`
	MarkedAt time.Time `json:"markedAt"`
}

// DeadProxies is the persisted proxy blocklist. Entries never expire.
type DeadProxies struct {
	path    string
	entries map[string]DeadProxy
	mu      sync.RWMutex
	logger  *slog.Logger
	now     func() time.Time
}

// OpenDeadProxies loads the blocklist from path. A missing file starts empty;
// a corrupt file is logged and reset to empty.
func OpenDeadProxies(path string, logger *slog.Logger) (*DeadProxies, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &DeadProxies{
		path:    path,
		entries: make(map[string]DeadProxy),
		logger:  logger,
		now:     time.Now,
	}

	found, err := readJSON(path, &d.entries)
	if err != nil {
		if !found {
			return nil, fmt.Errorf("read dead proxies: %w", err)
		}
		logger.Warn("dead proxy file is corrupt, starting fresh",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		d.entries = make(map[string]DeadProxy)
	}
	if d.entries == nil {
		d.entries = make(map[string]DeadProxy)
	}
	return d, nil
}

// MarkDead records a failure for uri and persists the set. Empty uri is a no-op.
func (d *DeadProxies) MarkDead(uri string) error {
	if uri == "" {
		return nil
	}

	d.mu.Lock()
	entry := d.entries[uri]
	entry.Failures++
	entry.MarkedAt = d.now().UTC()
	d.entries[uri] = entry
	snapshot := maps.Clone(d.entries)
	d.mu.Unlock()

	if err := writeJSONAtomic(d.path, snapshot); err != nil {
		return fmt.Errorf("save dead proxies: %w", err)
	}

	d.logger.Warn("marked proxy as dead",
		slog.String("proxy", uri),
		slog.Int("failures", entry.Failures),
	)
	return nil
}

// Contains reports whether uri is on the blocklist.
func (d *DeadProxies) Contains(uri string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.entries[uri]
	return ok
}

// Get returns the entry for uri.
func (d *DeadProxies) Get(uri string) (DeadProxy, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.entries[uri]
	return e, ok
}

// Len returns the number of blocklisted proxies.
func (d *DeadProxies) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Snapshot returns a copy of the blocklist.
func (d *DeadProxies) Snapshot() map[string]DeadProxy {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return maps.Clone(d.entries)
}
