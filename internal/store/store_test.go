package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gateway-fm/walletpulse/internal/account"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadKeys(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadKeys(filepath.Join(dir, "nope.txt"))
		if !errors.Is(err, ErrNoKeys) {
			t.Errorf("error = %v, want ErrNoKeys", err)
		}
	})

	t.Run("only blank lines", func(t *testing.T) {
		path := filepath.Join(dir, "blank.txt")
		writeFile(t, path, "\n   \n\t\n")
		_, err := LoadKeys(path)
		if !errors.Is(err, ErrNoKeys) {
			t.Errorf("error = %v, want ErrNoKeys", err)
		}
	})

	t.Run("trims and skips blanks", func(t *testing.T) {
		k1 := account.TestPrivateKeys[0]
		k2 := "0x" + account.TestPrivateKeys[1]
		path := filepath.Join(dir, "key.txt")
		writeFile(t, path, " "+k1+" \n\n"+k2+"\r\n")
		keys, err := LoadKeys(path)
		if err != nil {
			t.Fatalf("LoadKeys() error = %v", err)
		}
		if len(keys) != 2 || keys[0] != k1 || keys[1] != k2 {
			t.Errorf("keys = %q, want [%s %s]", keys, k1, k2)
		}
	})

	t.Run("garbage lines are fatal", func(t *testing.T) {
		path := filepath.Join(dir, "garbage.txt")
		writeFile(t, path, account.TestPrivateKeys[0]+"\nnot-a-key\n")
		_, err := LoadKeys(path)
		if !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("error = %v, want ErrInvalidKey", err)
		}
		if !strings.Contains(err.Error(), "entry 2") {
			t.Errorf("error = %v, want entry number", err)
		}
		if strings.Contains(err.Error(), "not-a-key") {
			t.Errorf("error leaks key material: %v", err)
		}
	})
}

func TestLoadProxiesExcludesDead(t *testing.T) {
	dir := t.TempDir()
	deadPath := filepath.Join(dir, "dead_proxies.json")
	writeFile(t, deadPath, `{"socks5://dead:1080":{"failures":3,"markedAt":"2024-05-01T10:00:00Z"}}`)

	dead, err := OpenDeadProxies(deadPath, nil)
	if err != nil {
		t.Fatalf("OpenDeadProxies() error = %v", err)
	}

	proxyPath := filepath.Join(dir, "proxy.txt")
	writeFile(t, proxyPath, "socks5://alive:1080\nsocks5://dead:1080\n\nsocks5://other:1080\n")

	proxies, err := LoadProxies(proxyPath, dead)
	if err != nil {
		t.Fatalf("LoadProxies() error = %v", err)
	}
	want := []string{"socks5://alive:1080", "socks5://other:1080"}
	if len(proxies) != len(want) {
		t.Fatalf("proxies = %q, want %q", proxies, want)
	}
	for i := range want {
		if proxies[i] != want[i] {
			t.Errorf("proxies[%d] = %s, want %s", i, proxies[i], want[i])
		}
	}
}

func TestLoadProxiesOptional(t *testing.T) {
	proxies, err := LoadProxies(filepath.Join(t.TempDir(), "proxy.txt"), nil)
	if err != nil {
		t.Fatalf("LoadProxies() error = %v", err)
	}
	if len(proxies) != 0 {
		t.Errorf("proxies = %q, want empty", proxies)
	}
	if got := PickProxy(proxies, account.NewRand()); got != "" {
		t.Errorf("PickProxy(empty) = %q, want \"\"", got)
	}
}

func TestDeadProxiesMarkDead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "dead_proxies.json")
	dead, err := OpenDeadProxies(path, nil)
	if err != nil {
		t.Fatalf("OpenDeadProxies() error = %v", err)
	}
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	dead.now = func() time.Time { return fixed }

	if err := dead.MarkDead(""); err != nil {
		t.Fatalf("MarkDead(\"\") error = %v", err)
	}
	if dead.Len() != 0 {
		t.Fatalf("Len() = %d after empty mark, want 0", dead.Len())
	}

	for i := 0; i < 2; i++ {
		if err := dead.MarkDead("socks5://p:1"); err != nil {
			t.Fatalf("MarkDead() error = %v", err)
		}
	}

	e, ok := dead.Get("socks5://p:1")
	if !ok || e.Failures != 2 {
		t.Fatalf("entry = %+v, ok=%v, want failures=2", e, ok)
	}
	if !e.MarkedAt.Equal(fixed) {
		t.Errorf("MarkedAt = %v, want %v", e.MarkedAt, fixed)
	}

	// Persisted state reloads identically.
	reloaded, err := OpenDeadProxies(path, nil)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	e2, _ := reloaded.Get("socks5://p:1")
	if e2.Failures != 2 {
		t.Errorf("reloaded failures = %d, want 2", e2.Failures)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}
}

func TestCorruptStateResets(t *testing.T) {
	dir := t.TempDir()
	deadPath := filepath.Join(dir, "dead_proxies.json")
	personaPath := filepath.Join(dir, "personas.json")
	writeFile(t, deadPath, "{not json")
	writeFile(t, personaPath, "[1,2,")

	dead, err := OpenDeadProxies(deadPath, nil)
	if err != nil {
		t.Fatalf("OpenDeadProxies() error = %v", err)
	}
	if dead.Len() != 0 {
		t.Errorf("dead Len() = %d, want 0", dead.Len())
	}

	personas, err := OpenPersonas(personaPath, nil, nil)
	if err != nil {
		t.Fatalf("OpenPersonas() error = %v", err)
	}
	if len(personas.Snapshot()) != 0 {
		t.Errorf("personas not reset")
	}

	// The next mutation heals the file.
	if err := dead.MarkDead("http://p:8080"); err != nil {
		t.Fatalf("MarkDead() error = %v", err)
	}
	data, _ := os.ReadFile(deadPath)
	var decoded map[string]DeadProxy
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Errorf("dead proxy file still invalid: %v", err)
	}
}

func TestEnsurePersonaIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.json")
	personas, err := OpenPersonas(path, nil, nil)
	if err != nil {
		t.Fatalf("OpenPersonas() error = %v", err)
	}

	first, err := personas.Ensure("0xabc")
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := personas.Ensure("0xabc")
		if err != nil {
			t.Fatalf("Ensure() error = %v", err)
		}
		if again != first {
			t.Fatalf("Ensure() = %+v, want stable %+v", again, first)
		}
	}

	reopened, err := OpenPersonas(path, nil, nil)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	got, _ := reopened.Ensure("0xabc")
	if got != first {
		t.Errorf("reloaded persona = %+v, want %+v", got, first)
	}
}

func TestNewPersonaRanges(t *testing.T) {
	tests := []struct {
		name string
		rnd  account.Rand
	}{
		{name: "system rand", rnd: account.NewRand()},
		{name: "lowest draws", rnd: &account.SequenceRand{Floats: []float64{0}}},
		{name: "highest draws", rnd: &account.SequenceRand{Floats: []float64{0.999999999}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 500; i++ {
				p := NewPersona(tt.rnd)
				if p.IdleBias < 0 || p.IdleBias >= MaxIdleBias {
					t.Fatalf("IdleBias = %v out of range", p.IdleBias)
				}
				if p.PingBias < 0 || p.PingBias >= MaxPingBias {
					t.Fatalf("PingBias = %v out of range", p.PingBias)
				}
				if p.MinAmount < MinAmountLo || p.MinAmount >= MinAmountHi {
					t.Fatalf("MinAmount = %v out of range", p.MinAmount)
				}
				if p.MaxAmount < MaxAmountLo || p.MaxAmount >= MaxAmountHi {
					t.Fatalf("MaxAmount = %v out of range", p.MaxAmount)
				}
				if p.MinAmount >= p.MaxAmount {
					t.Fatalf("MinAmount %v >= MaxAmount %v", p.MinAmount, p.MaxAmount)
				}
			}
		})
	}
}
