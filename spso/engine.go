package spso

import (
	"math"

	"github.com/j-r-jones/optsearch/rng"
)

// Tuning constants from the Standard PSO formulation: sigma is "a bit
// beyond" unity, omega is the inertia weight.
const (
	sigma = 1.193
	omega = 0.721
)

// NoMovementThreshold is the number of consecutive non-improving reports
// after which the engine declares convergence by exhaustion rather than by
// tolerance.
const NoMovementThreshold = 200

// FitnessFunc enqueues an evaluation request for the given particle UID. It
// must return promptly; evaluation itself happens asynchronously, off the
// Engine's call stack, with the result later delivered back through
// UpdateParticle.
type FitnessFunc func(uid int)

// Engine holds the full, self-contained state of a running search: the
// dimension set, the swarm, the global-best record, the no-movement
// counter, the stop flag, and the listener registry. It replaces the
// source implementation's process-wide statics; callers thread an *Engine
// explicitly rather than relying on global state.
type Engine struct {
	dims    []Dimension
	swarm   Swarm
	best    GlobalBest
	noMove  int
	stopped bool
	epsilon float64

	fitness   FitnessFunc
	rng       *rng.Source
	listeners listenerRegistry
}

// New creates a fresh Engine: a swarm of len(dims)+1 particles, each with a
// uniformly random position and an independent uniformly random
// previous-best position. Velocity starts at the zero vector, intentionally,
// to prevent premature drift. The global-best fitness starts at the
// largest finite float64; the two historical bests start at UnsetBest.
func New(dims []Dimension, fitness FitnessFunc, epsilonPct float64, stop StopListener, r *rng.Source) *Engine {
	e := &Engine{
		dims:    dims,
		epsilon: epsilonPct,
		fitness: fitness,
		rng:     r,
		best: GlobalBest{
			Current:          math.MaxFloat64,
			Previous:         UnsetBest,
			PreviousPrevious: UnsetBest,
			Position:         make(Position, len(dims)),
		},
	}
	if stop != nil {
		e.AddStopListener(stop)
	}

	n := len(dims) + 1
	particles := make([]Particle, n)
	for i := 0; i < n; i++ {
		pos := e.randomPosition()
		prevBest := e.randomPosition()
		particles[i] = Particle{
			UID:              i,
			Position:         pos,
			Velocity:         make(Velocity, len(dims)),
			PrevBestPosition: prevBest,
			PrevBestFitness:  math.MaxFloat64,
		}
	}
	e.swarm = Swarm{Particles: particles}
	return e
}

// NewFromPrevious restores an Engine to a previously checkpointed state.
// The PRNG is re-seeded from persisted state but, per the PRNG-resume
// design note, its stream position is not reproduced: callers must not
// expect bit-identical search across resumes.
func NewFromPrevious(
	dims []Dimension,
	swarm Swarm,
	fitness FitnessFunc,
	epsilonPct float64,
	stop StopListener,
	r *rng.Source,
	currBestPos Position,
	currBestFit, prevBestFit, prevPrevBestFit float64,
	noMoveCount int,
) *Engine {
	e := &Engine{
		dims:    dims,
		swarm:   swarm,
		epsilon: epsilonPct,
		fitness: fitness,
		rng:     r,
		noMove:  noMoveCount,
		best: GlobalBest{
			Current:          currBestFit,
			Previous:         prevBestFit,
			PreviousPrevious: prevPrevBestFit,
			Position:         currBestPos.Clone(),
		},
	}
	if stop != nil {
		e.AddStopListener(stop)
	}
	return e
}

func (e *Engine) randomPosition() Position {
	pos := make(Position, len(e.dims))
	for i, d := range e.dims {
		pos[i] = e.rng.UniformInt(d.Min, d.Max-1)
	}
	return pos
}

func (e *Engine) randomVelocity() Velocity {
	vel := make(Velocity, len(e.dims))
	for i, d := range e.dims {
		vel[i] = e.rng.UniformInt(d.Min, d.Max-1)
	}
	return vel
}

// GlobalBest returns a copy of the current global-best record.
func (e *Engine) GlobalBest() GlobalBest {
	return e.best
}

// NoMovementCounter reports the current no-movement counter.
func (e *Engine) NoMovementCounter() int {
	return e.noMove
}

// Stopped reports whether a stop condition has fired.
func (e *Engine) Stopped() bool {
	return e.stopped
}

// Swarm returns a copy of the swarm's particle slice header; callers must
// not mutate particle contents in place other than through Engine methods.
func (e *Engine) Swarm() Swarm {
	return e.swarm
}

// Dimensions returns the dimension set the engine was constructed with.
func (e *Engine) Dimensions() []Dimension {
	return e.dims
}

// Start enqueues an evaluation request for every particle in the swarm and
// returns immediately.
func (e *Engine) Start() {
	for _, p := range e.swarm.Particles {
		e.fitness(p.UID)
	}
}

// Stop forces the stop flag and notifies STOP listeners, for use by an
// external cancellation signal (see the Optimiser glue and cmd/optsearchd).
func (e *Engine) Stop() {
	if e.stopped {
		return
	}
	e.stopped = true
	e.notifyStop()
}

// UpdateParticle is called by the task farm with a fitness report for the
// given particle. It updates the particle's personal best if improved,
// checks stopping criteria, and otherwise computes a new velocity/position
// and re-enqueues the particle.
func (e *Engine) UpdateParticle(uid int, fitness float64, visits, knownPositions int) error {
	p, err := e.swarm.Particle(uid)
	if err != nil {
		return err
	}

	if fitness < p.PrevBestFitness {
		p.PrevBestFitness = fitness
		p.PrevBestPosition = p.Position.Clone()
	}

	if e.ShouldStop(fitness, p.Position) {
		return nil
	}

	e.computeVelocity(p, visits, knownPositions)
	e.fitness(p.UID)
	return nil
}

// ShouldStop evaluates the three stopping conditions against the just
// reported fitness/position and the engine's current state. A true result
// sets the stop flag and notifies STOP listeners exactly once.
func (e *Engine) ShouldStop(fitness float64, position Position) bool {
	if e.stopped {
		return true
	}

	if fitness >= e.best.Current {
		e.noMove++
		if e.noMove >= NoMovementThreshold {
			e.Stop()
		}
		return e.stopped
	}

	e.noMove = 0
	c, p, pp := e.best.Current, e.best.Previous, e.best.PreviousPrevious
	improved := e.updateGlobalBest(fitness, position)
	if !improved {
		return false
	}

	if e.best.Previous == UnsetBest || e.best.PreviousPrevious == UnsetBest {
		return false
	}

	twoSigma := fitness * (e.epsilon / 100.0) * 2.0
	if absF(pp-p) < twoSigma && absF(p-c) < twoSigma && absF(c-fitness) < twoSigma {
		e.Stop()
	}
	return e.stopped
}

// updateGlobalBest applies the global-best update rule: it fires only when
// fitness strictly improves the current best, shifting
// current -> previous -> previous_previous and firing GLOBAL_BEST_UPDATE
// listeners in insertion order. It returns whether an update happened.
func (e *Engine) updateGlobalBest(fitness float64, position Position) bool {
	if fitness >= e.best.Current {
		return false
	}
	e.best.PreviousPrevious = e.best.Previous
	e.best.Previous = e.best.Current
	e.best.Current = fitness
	e.best.Position = position.Clone()
	e.notifyGlobalBest(fitness, e.best.Position)
	return true
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
