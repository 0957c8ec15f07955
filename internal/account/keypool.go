package account

import "errors"

// ErrEmptyPool is returned when a key pool is built from no keys.
var ErrEmptyPool = errors.New("key pool is empty")

// ReuseProbability is the chance that Pick returns the previous key again,
// modelling a user staying on one wallet for a while.
const ReuseProbability = 0.2

// KeyPool is an immutable list of signing keys with sticky selection.
// Not safe for concurrent Pick calls; the scheduler drives it from one goroutine.
type KeyPool struct {
	keys []string
	rnd  Rand
	last string
}

// NewKeyPool creates a pool over keys. The slice is copied.
func NewKeyPool(keys []string, rnd Rand) (*KeyPool, error) {
	if len(keys) == 0 {
		return nil, ErrEmptyPool
	}
	if rnd == nil {
		rnd = NewRand()
	}
	return &KeyPool{
		keys: append([]string(nil), keys...),
		rnd:  rnd,
	}, nil
}

// Pick returns the previous key with probability ReuseProbability,
// otherwise a uniformly random key which becomes the new "previous".
func (p *KeyPool) Pick() string {
	if p.last != "" && p.rnd.Float64() < ReuseProbability {
		return p.last
	}
	p.last = p.keys[p.rnd.IntN(len(p.keys))]
	return p.last
}

// Len returns the number of keys in the pool.
func (p *KeyPool) Len() int {
	return len(p.keys)
}
