// Package rng implements the WELL512a pseudo-random generator (Panneton,
// L'Ecuyer and Matsumoto), the deterministic 32-bit uniform source the
// optimiser uses for swarm initialisation and the stochastic steps of the
// velocity/position update.
package rng

import (
	"math"

	"github.com/j-r-jones/optsearch/logging"
)

// SeedSize is the number of 32-bit words WELL512a requires to seed its
// state.
const SeedSize = 16

const (
	m1 = 13
	m2 = 9
	m3 = 5
)

// Source is a WELL512a generator instance. It is not safe for concurrent
// use; callers that want a single shared stream (matching the source
// implementation's process-wide singleton) should wrap a *Source in their
// own synchronization or, as here, thread it through an explicit context
// instead of reaching for a package-level global.
type Source struct {
	state     [16]uint32
	stateI    uint32
	iteration uint64
}

// New creates a Source initialised with seed. seed must contain SeedSize
// words; InitWELLRNG512a in the original implementation takes the seed
// array directly as the initial state.
func New(seed [SeedSize]uint32) *Source {
	s := &Source{}
	copy(s.state[:], seed[:])
	return s
}

func mat0pos(t uint, v uint32) uint32 { return v ^ (v >> t) }
func mat0neg(t uint, v uint32) uint32 { return v ^ (v << t) }
func mat3neg(t uint, v uint32) uint32 { return v << t }
func mat4neg(t uint, b, v uint32) uint32 {
	return v ^ ((v << t) & b)
}

// NextUint32 advances the generator and returns the next 32-bit word. The
// recurrence is the unmodified WELL512a transition function.
func (s *Source) NextUint32() uint32 {
	s.iteration++

	i := s.stateI
	v0 := s.state[i]
	vm1 := s.state[(i+m1)&0xf]
	vm2 := s.state[(i+m2)&0xf]
	vrm1 := s.state[(i+15)&0xf]

	z0 := vrm1
	z1 := mat0neg(16, v0) ^ mat0neg(15, vm1)
	z2 := mat0pos(11, vm2)
	newV1 := z1 ^ z2
	newV0 := mat0neg(2, z0) ^ mat0neg(18, z1) ^ mat3neg(28, z2) ^ mat4neg(5, 0xda442d24, newV1)

	s.state[(i+15)&0xf] = newV0
	s.state[i] = newV1
	s.stateI = (i + 15) & 0xf

	return s.state[s.stateI]
}

// UniformInt returns an integer uniformly distributed over the inclusive
// range [min, max]. If min > max the arguments are swapped and a warning is
// logged, matching opt_rand_int_range's handling of reversed bounds. When
// the width of the range would overflow, the implementation falls back to
// returning a raw generator value reduced into range, accepting a known
// small bias rather than failing.
func (s *Source) UniformInt(min, max int) int {
	if min == max {
		return min
	}
	if min > max {
		logging.Warnf("rng: UniformInt called with min > max (%d > %d); swapping", min, max)
		min, max = max, min
	}

	width := int64(max) - int64(min) + 1
	raw := int64(s.NextUint32())

	if width <= 0 || width > math.MaxInt32 {
		// Range too wide to reduce safely; fall back to a scaled raw
		// value, accepting a small bias.
		v := min + int(raw%int64(math.MaxInt32))
		if v < min {
			v = min
		}
		if v > max {
			v = max
		}
		return v
	}

	return min + int(raw%width)
}

// UniformFloat64 returns a value in [0, 1) derived from the next raw word,
// used only by the SPSO boundary-dampening step. It deliberately does not
// reuse opt_rand_double's approach (casting the raw word straight to a
// double without scaling), which the source itself documents as
// questionable; the division below is the minimal fix needed to land in
// [0, 1).
func (s *Source) UniformFloat64() float64 {
	return float64(s.NextUint32()) / (float64(math.MaxUint32) + 1)
}

// StateSnapshot returns a copy of the current 16-word state, for
// checkpointing or analysis. The words are rotated so that the one the next
// draw starts from comes first; passing the snapshot to New therefore yields
// a Source that continues the same stream (with Iteration counting from
// zero again).
func (s *Source) StateSnapshot() [16]uint32 {
	var snap [16]uint32
	for k := range snap {
		snap[k] = s.state[(s.stateI+uint32(k))&0xf]
	}
	return snap
}

// Iteration returns the number of words produced so far.
func (s *Source) Iteration() uint64 {
	return s.iteration
}
