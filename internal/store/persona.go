package store

import (
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/gateway-fm/walletpulse/internal/account"
)

// Persona draw ranges. Each bound is [lo, hi).
const (
	MaxIdleBias = 0.25
	MaxPingBias = 0.25
	MinAmountLo = 0.00005
	MinAmountHi = 0.00015
	MaxAmountLo = 0.015
	MaxAmountHi = 0.02
)

// Persona is a wallet's behavioral profile. Once created it never changes.
type Persona struct {
	IdleBias  float64 `json:"idleBias"`  // probability of skipping a cycle
	PingBias  float64 `json:"pingBias"`  // probability of a zero-value send
	MinAmount float64 `json:"minAmount"` // native units
	MaxAmount float64 `json:"maxAmount"` // native units
}

// Personas is the persisted address -> Persona map.
type Personas struct {
	path     string
	profiles map[string]Persona
	rnd      account.Rand
	mu       sync.RWMutex
	logger   *slog.Logger
}

// OpenPersonas loads personas from path. A missing file starts empty; a
// corrupt file is logged and reset to empty.
func OpenPersonas(path string, rnd account.Rand, logger *slog.Logger) (*Personas, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if rnd == nil {
		rnd = account.NewRand()
	}
	p := &Personas{
		path:     path,
		profiles: make(map[string]Persona),
		rnd:      rnd,
		logger:   logger,
	}

	found, err := readJSON(path, &p.profiles)
	switch {
	case err != nil && !found:
		return nil, fmt.Errorf("read personas: %w", err)
	case err != nil:
		logger.Warn("persona file is corrupt, starting fresh",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		p.profiles = make(map[string]Persona)
	case found:
		logger.Info("loaded existing personas", slog.Int("count", len(p.profiles)))
	}
	if p.profiles == nil {
		p.profiles = make(map[string]Persona)
	}
	return p, nil
}

// Ensure returns the persona for address, creating and persisting a new one
// on first use.
func (p *Personas) Ensure(address string) (Persona, error) {
	p.mu.RLock()
	existing, ok := p.profiles[address]
	p.mu.RUnlock()
	if ok {
		return existing, nil
	}

	persona := NewPersona(p.rnd)

	p.mu.Lock()
	p.profiles[address] = persona
	snapshot := maps.Clone(p.profiles)
	p.mu.Unlock()

	if err := writeJSONAtomic(p.path, snapshot); err != nil {
		return persona, fmt.Errorf("save personas: %w", err)
	}

	p.logger.Info("created persona",
		slog.String("wallet", address),
		slog.Float64("idleBias", persona.IdleBias),
		slog.Float64("pingBias", persona.PingBias),
	)
	return persona, nil
}

// Snapshot returns a copy of all personas.
func (p *Personas) Snapshot() map[string]Persona {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return maps.Clone(p.profiles)
}

// NewPersona draws a fresh persona from the fixed ranges.
func NewPersona(rnd account.Rand) Persona {
	return Persona{
		IdleBias:  account.Uniform(rnd, 0, MaxIdleBias),
		PingBias:  account.Uniform(rnd, 0, MaxPingBias),
		MinAmount: account.Uniform(rnd, MinAmountLo, MinAmountHi),
		MaxAmount: account.Uniform(rnd, MaxAmountLo, MaxAmountHi),
	}
}
