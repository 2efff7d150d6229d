// Package spso implements Standard Particle Swarm Optimisation specialised
// for a discrete, per-dimension-bounded integer search space: the swarm
// state, the velocity/position update rule, stopping criteria, and a
// listener registry for global-best and stop notifications.
package spso

import "fmt"

// Dimension is one integer axis of the search space. Values lie in
// [Min, Max). Dimensions are immutable after construction.
type Dimension struct {
	UID  int64
	Name string
	Min  int
	Max  int
}

// Width reports the number of distinct values this dimension admits.
func (d Dimension) Width() int {
	return d.Max - d.Min
}

// Position is an integer vector over all dimensions: a candidate
// compiler-flag set. Every component must satisfy dims[i].Min <= p[i] <
// dims[i].Max.
type Position []int

// Clone returns an independent copy of p.
func (p Position) Clone() Position {
	c := make(Position, len(p))
	copy(c, p)
	return c
}

// Equal reports whether p and o have identical components.
func (p Position) Equal(o Position) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// Velocity is an integer-valued signed displacement used to compute the
// next position. It has no hard bound of its own; boundary rules clamp it
// only indirectly, via the position they produce.
type Velocity []int

// Clone returns an independent copy of v.
func (v Velocity) Clone() Velocity {
	c := make(Velocity, len(v))
	copy(c, v)
	return c
}

// Equal reports whether v and o have identical components.
func (v Velocity) Equal(o Velocity) bool {
	if len(v) != len(o) {
		return false
	}
	for i := range v {
		if v[i] != o[i] {
			return false
		}
	}
	return true
}

// Particle is a candidate solution trajectory: a position, a velocity, and
// a remembered personal best. UID is a small non-negative index into the
// owning Swarm.
type Particle struct {
	UID              int
	Position         Position
	Velocity         Velocity
	PrevBestPosition Position
	PrevBestFitness  float64
}

// Swarm is the fixed ordered collection of particles searched in parallel.
// N (len(Particles)) and particle UIDs are immutable after construction.
type Swarm struct {
	Particles []Particle
}

// Particle returns a pointer to the particle with the given uid, or an
// error if none exists. Swarm.Particles is kept as a dense slice indexed by
// UID, so this is O(1) in the common case but validates bounds explicitly
// since callers pass UIDs that cross the farm/RPC boundary.
func (s *Swarm) Particle(uid int) (*Particle, error) {
	if uid < 0 || uid >= len(s.Particles) {
		return nil, fmt.Errorf("spso: no particle with uid %d (swarm has %d particles)", uid, len(s.Particles))
	}
	return &s.Particles[uid], nil
}

// GlobalBest holds the three historical best fitnesses (current, previous,
// previous-previous) plus an owned copy of the current-best position. It is
// updated only monotonically: Current can only decrease.
type GlobalBest struct {
	Current          float64
	Previous         float64
	PreviousPrevious float64
	Position         Position
}

// UnsetBest is the sentinel the two historical (non-current) best
// fitnesses hold before any improvement has been recorded; it suppresses
// false convergence on the very first evaluation.
const UnsetBest = -1
