package account

import "math/rand/v2"

// Rand is the random source used for every behavioral draw.
// Tests substitute a scripted source to force specific branches.
type Rand interface {
	// Float64 returns a random float64 in [0, 1).
	Float64() float64
	// IntN returns a random int in [0, n).
	IntN(n int) int
}

// SystemRand provides goroutine-safe randomness backed by math/rand/v2.
// math/rand/v2 is automatically seeded.
type SystemRand struct{}

// Float64 returns a random float64 in [0, 1).
func (SystemRand) Float64() float64 {
	return rand.Float64()
}

// IntN returns a random int in [0, n).
func (SystemRand) IntN(n int) int {
	return rand.IntN(n)
}

// NewRand returns the default random source.
func NewRand() Rand {
	return SystemRand{}
}

// Uniform returns a float64 drawn uniformly from [lo, hi).
func Uniform(r Rand, lo, hi float64) float64 {
	return lo + r.Float64()*(hi-lo)
}

// UniformInt returns an int drawn uniformly from [lo, hi], inclusive on both ends.
func UniformInt(r Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + r.IntN(hi-lo+1)
}

// SequenceRand replays fixed draws in order, wrapping around when exhausted.
// An empty sequence yields 0. Used to script behavior in tests.
type SequenceRand struct {
	Floats []float64
	Ints   []int

	fi, ii int
}

// Float64 returns the next scripted float.
func (s *SequenceRand) Float64() float64 {
	if len(s.Floats) == 0 {
		return 0
	}
	v := s.Floats[s.fi%len(s.Floats)]
	s.fi++
	return v
}

// IntN returns the next scripted int, reduced modulo n.
func (s *SequenceRand) IntN(n int) int {
	if len(s.Ints) == 0 || n <= 0 {
		return 0
	}
	v := s.Ints[s.ii%len(s.Ints)]
	s.ii++
	return v % n
}
