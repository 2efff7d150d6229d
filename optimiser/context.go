package optimiser

import (
	"fmt"

	"github.com/j-r-jones/optsearch/farm"
	"github.com/j-r-jones/optsearch/logging"
	"github.com/j-r-jones/optsearch/rng"
	"github.com/j-r-jones/optsearch/spso"
	"github.com/j-r-jones/optsearch/store"
)

// Context threads the RNG, store, SPSO engine, configured flags, and task
// farm together, replacing the source implementation's file-scope statics
// (spec.md §9's explicit design note): every glue method hangs off this
// struct rather than touching package-level state.
type Context struct {
	RNG    *rng.Source
	Store  *store.Store
	Engine *spso.Engine
	Flags  []Flag
	Master *farm.Master
}

// NewContext wires a Checkpoint call as a GlobalBestUpdate listener on
// engine, so every improving fitness report durably persists the search's
// resumable state before the next particle is dispatched.
func NewContext(r *rng.Source, st *store.Store, engine *spso.Engine, flags []Flag, master *farm.Master) *Context {
	ctx := &Context{RNG: r, Store: st, Engine: engine, Flags: flags, Master: master}
	engine.AddGlobalBestListener(func(fitness float64, position spso.Position) {
		if err := ctx.Checkpoint(); err != nil {
			logging.Errorf("optimiser: checkpoint after global best update: %v", err)
		}
	})
	return ctx
}

// AddToFitnessQueue is the spso.FitnessFunc the Engine calls to request an
// evaluation. If the particle's current position has already been visited
// more than once and carries a recorded fitness, that stored value is fed
// straight back to the engine instead of spending a new farm evaluation on
// it.
func (c *Context) AddToFitnessQueue(uid int) error {
	swarm := c.Engine.Swarm()
	p, err := swarm.Particle(uid)
	if err != nil {
		return err
	}

	posID, err := c.Store.StorePosition(p.Position)
	if err != nil {
		return fmt.Errorf("optimiser: add to fitness queue: %w", err)
	}
	_, fitness, visits, err := c.Store.PositionByID(posID)
	if err != nil {
		return fmt.Errorf("optimiser: add to fitness queue: %w", err)
	}

	if visits > 1 && fitness != store.UnknownReal {
		return c.ReportFitness(uid, fitness, true)
	}

	cmd := RenderPosition(c.Flags, p.Position)
	c.Master.Submit(farm.WorkItem{UID: uid, Command: cmd})
	return nil
}

// ReportFitness is the farm's result callback: it feeds the fitness back
// into the engine, durably records the particle's new state, stamps the
// position's fitness column, and writes a checkpoint.
func (c *Context) ReportFitness(uid int, fitness float64, wasCached bool) error {
	swarm := c.Engine.Swarm()
	p, err := swarm.Particle(uid)
	if err != nil {
		return err
	}

	posID, err := c.Store.StorePosition(p.Position)
	if err != nil {
		return fmt.Errorf("optimiser: report fitness: %w", err)
	}
	if err := c.Store.UpdatePositionFitness(posID, fitness); err != nil {
		return fmt.Errorf("optimiser: report fitness: %w", err)
	}

	knownPositions, err := c.Store.PositionCount()
	if err != nil {
		return fmt.Errorf("optimiser: report fitness: %w", err)
	}
	_, _, visits, err := c.Store.PositionByID(posID)
	if err != nil {
		return fmt.Errorf("optimiser: report fitness: %w", err)
	}

	if err := c.Engine.UpdateParticle(uid, fitness, visits, knownPositions); err != nil {
		return fmt.Errorf("optimiser: report fitness: %w", err)
	}

	updated, err := swarm.Particle(uid)
	if err != nil {
		return err
	}
	if err := c.Store.StoreParticle(*updated); err != nil {
		return err
	}
	return c.Checkpoint()
}

// Checkpoint persists everything needed to resume the search: the three
// historical best fitnesses, the current-best position, the no-movement
// counter, and the PRNG's diagnostic iteration count. It does not
// re-persist the swarm; ReportFitness's call to Store.StoreParticle already
// covers that.
func (c *Context) Checkpoint() error {
	best := c.Engine.GlobalBest()

	if err := c.Store.SetCurrBest(best.Current); err != nil {
		return fmt.Errorf("optimiser: checkpoint: %w", err)
	}
	if err := c.Store.SetPrevBest(best.Previous); err != nil {
		return fmt.Errorf("optimiser: checkpoint: %w", err)
	}
	if err := c.Store.SetPrevPrevBest(best.PreviousPrevious); err != nil {
		return fmt.Errorf("optimiser: checkpoint: %w", err)
	}

	bestPosID, err := c.Store.StorePosition(best.Position)
	if err != nil {
		return fmt.Errorf("optimiser: checkpoint: %w", err)
	}
	if err := c.Store.SetBestPos(bestPosID); err != nil {
		return fmt.Errorf("optimiser: checkpoint: %w", err)
	}
	if err := c.Store.RecordGlobalBestHistory(bestPosID); err != nil {
		return fmt.Errorf("optimiser: checkpoint: %w", err)
	}

	if err := c.Store.SetNoMovementCounter(c.Engine.NoMovementCounter()); err != nil {
		return fmt.Errorf("optimiser: checkpoint: %w", err)
	}
	if err := c.Store.SetPRNGIteration(c.RNG.Iteration()); err != nil {
		return fmt.Errorf("optimiser: checkpoint: %w", err)
	}
	return nil
}
