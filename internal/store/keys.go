package store

import (
	"errors"
	"fmt"
	"os"

	"github.com/gateway-fm/walletpulse/internal/account"
)

// ErrNoKeys is returned when the key file is missing or holds no usable keys.
// The process cannot start without at least one key.
var ErrNoKeys = errors.New("no private keys available")

// ErrInvalidKey is returned when a non-blank line is not a secp256k1 key.
var ErrInvalidKey = errors.New("invalid private key")

// LoadKeys reads newline-delimited private keys. Blank lines are ignored and
// every other line must parse as a hex private key, with or without 0x.
func LoadKeys(path string) ([]string, error) {
	keys, err := readLines(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s not found", ErrNoKeys, path)
		}
		return nil, fmt.Errorf("load keys: %w", err)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrNoKeys, path)
	}
	for i, k := range keys {
		if _, err := account.NewAccountFromHex(k); err != nil {
			// The key itself is never echoed.
			return nil, fmt.Errorf("%w: %s entry %d", ErrInvalidKey, path, i+1)
		}
	}
	return keys, nil
}

// LoadProxies reads newline-delimited proxy URIs. The file is optional: a
// missing path (or an empty path string) yields an empty pool. URIs already
// present in dead are dropped.
func LoadProxies(path string, dead *DeadProxies) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	lines, err := readLines(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load proxies: %w", err)
	}

	proxies := make([]string, 0, len(lines))
	for _, uri := range lines {
		if dead != nil && dead.Contains(uri) {
			continue
		}
		proxies = append(proxies, uri)
	}
	return proxies, nil
}

// PickProxy returns a uniformly random proxy, or "" for a direct connection
// when the pool is empty.
func PickProxy(proxies []string, rnd account.Rand) string {
	if len(proxies) == 0 {
		return ""
	}
	return proxies[rnd.IntN(len(proxies))]
}
