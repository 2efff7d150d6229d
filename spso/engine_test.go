package spso

import (
	"math"
	"testing"

	"github.com/j-r-jones/optsearch/rng"
)

func newTestRNG(t *testing.T) *rng.Source {
	t.Helper()
	seed, err := rng.GenerateSeed()
	if err != nil {
		t.Fatalf("GenerateSeed: %v", err)
	}
	return rng.New(seed)
}

// TestTrivialOneDConvergence grounds scenario 1: dimension {uid=1, name="x",
// min=-5, max=6}; fitness f(x)=x^2; default 2 particles; epsilon=10. The
// engine must report stop with current_best_position.x = 0 and
// current_best_fitness = 0 within 200 iterations.
func TestTrivialOneDConvergence(t *testing.T) {
	dims := []Dimension{{UID: 1, Name: "x", Min: -5, Max: 6}}
	r := newTestRNG(t)

	var e *Engine
	queue := make([]int, 0, 256)

	fitnessOf := func(x int) float64 { return float64(x * x) }

	reportAll := func() {
		n := len(queue)
		for i := 0; i < n; i++ {
			uid := queue[0]
			queue = queue[1:]
			p, err := e.swarm.Particle(uid)
			if err != nil {
				t.Fatalf("Particle(%d): %v", uid, err)
			}
			f := fitnessOf(p.Position[0])
			if err := e.UpdateParticle(uid, f, 1, 1); err != nil {
				t.Fatalf("UpdateParticle: %v", err)
			}
			if e.Stopped() {
				return
			}
		}
	}

	e = New(dims, func(uid int) { queue = append(queue, uid) }, 10, nil, r)
	e.Start()

	iterations := 0
	for !e.Stopped() && iterations < 200*len(e.swarm.Particles) {
		reportAll()
		iterations++
	}

	if !e.Stopped() {
		t.Fatalf("engine did not stop within bound; best=%v noMove=%d", e.GlobalBest(), e.NoMovementCounter())
	}

	best := e.GlobalBest()
	if best.Position[0] != 0 {
		t.Errorf("current best position = %d, want 0", best.Position[0])
	}
	if best.Current != 0 {
		t.Errorf("current best fitness = %v, want 0", best.Current)
	}
}

// TestNoMovementStop grounds scenario 2: a fitness function that always
// returns 1000.0 must set the stop condition after exactly 200
// non-improving reports. The first report improves on the initial
// MaxFloat64 best, so the 200 non-improving reports are the ones after it.
func TestNoMovementStop(t *testing.T) {
	dims := []Dimension{{UID: 1, Name: "x", Min: 0, Max: 10}}
	r := newTestRNG(t)

	var e *Engine
	reports := 0

	e = New(dims, func(uid int) {}, 5, nil, r)

	for i := 0; i < NoMovementThreshold+1; i++ {
		p := &e.swarm.Particles[0]
		if err := e.UpdateParticle(p.UID, 1000.0, 1, 1); err != nil {
			t.Fatalf("UpdateParticle: %v", err)
		}
		reports++
		if e.Stopped() && reports < NoMovementThreshold+1 {
			t.Fatalf("engine stopped early after %d reports", reports)
		}
	}

	if !e.Stopped() {
		t.Fatalf("engine did not stop after %d non-improving reports", reports-1)
	}
	if e.NoMovementCounter() != NoMovementThreshold {
		t.Errorf("no-movement counter = %d, want %d", e.NoMovementCounter(), NoMovementThreshold)
	}
}

func TestNoMovementCounterResetsOnImprovement(t *testing.T) {
	dims := []Dimension{{UID: 1, Name: "x", Min: 0, Max: 100}}
	r := newTestRNG(t)
	e := New(dims, func(uid int) {}, 5, nil, r)

	// The first report improves on the initial MaxFloat64 best; only the
	// four after it are non-improving.
	p := &e.swarm.Particles[0]
	for i := 0; i < 5; i++ {
		_ = e.UpdateParticle(p.UID, 1000.0, 1, 1)
	}
	if e.NoMovementCounter() != 4 {
		t.Fatalf("counter = %d, want 4", e.NoMovementCounter())
	}

	_ = e.UpdateParticle(p.UID, 1.0, 1, 1)
	if e.NoMovementCounter() != 0 {
		t.Fatalf("counter after improvement = %d, want 0", e.NoMovementCounter())
	}
}

func TestPositionsStayInBounds(t *testing.T) {
	dims := []Dimension{
		{UID: 1, Name: "x", Min: -3, Max: 4},
		{UID: 2, Name: "y", Min: 0, Max: 8},
	}
	r := newTestRNG(t)
	var e *Engine
	queue := make([]int, 0, 256)
	e = New(dims, func(uid int) { queue = append(queue, uid) }, 5, nil, r)
	e.Start()

	for step := 0; step < 500 && len(queue) > 0; step++ {
		uid := queue[0]
		queue = queue[1:]
		p, err := e.swarm.Particle(uid)
		if err != nil {
			t.Fatalf("Particle: %v", err)
		}
		f := math.Abs(float64(p.Position[0]*p.Position[0] + p.Position[1]))
		_ = e.UpdateParticle(uid, f, 1, 1)

		for _, particle := range e.swarm.Particles {
			for i, d := range dims {
				if particle.Position[i] < d.Min || particle.Position[i] >= d.Max {
					t.Fatalf("particle %d dimension %d position %d out of bounds [%d,%d)",
						particle.UID, i, particle.Position[i], d.Min, d.Max)
				}
			}
		}
		if e.Stopped() {
			break
		}
	}
}

func TestBoundaryMinMaxMinusOne(t *testing.T) {
	dims := []Dimension{{UID: 1, Name: "x", Min: 5, Max: 6}}
	r := newTestRNG(t)
	e := New(dims, func(uid int) {}, 5, nil, r)
	for _, p := range e.swarm.Particles {
		if p.Position[0] != 5 {
			t.Fatalf("degenerate dimension produced position %d, want 5", p.Position[0])
		}
	}
}
