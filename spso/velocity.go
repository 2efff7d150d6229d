package spso

import "math"

// maxFoldIterations bounds the periodic boundary-confinement loop; after
// this many folds without landing inside bounds, the dimension is
// abandoned in favour of an independent uniform redraw.
const maxFoldIterations = 64

// computeVelocity implements the per-particle velocity/position update:
// the visited-too-often random restart, the centre-of-gravity computation,
// the hypersphere redraw, and the periodic boundary confinement with
// dampening.
func (e *Engine) computeVelocity(p *Particle, visits, knownPositions int) {
	if e.shouldRandomRestart(visits, knownPositions) {
		p.Position = e.randomPosition()
		p.Velocity = e.randomVelocity()
		return
	}

	gBest := e.best.Position
	isBest := p.PrevBestPosition.Equal(gBest)

	g := make([]float64, len(e.dims))
	for i, d := range e.dims {
		x := float64(p.Position[i])
		l := float64(p.PrevBestPosition[i])
		gb := float64(gBest[i])

		var gi float64
		if isBest {
			gi = x + sigma*(l-x)/2
		} else {
			gi = x + sigma*((gb+l-2*x)/3)
		}
		g[i] = clampF(gi, float64(d.Min), float64(d.Max-1))
	}

	var sumSq float64
	for i, d := range e.dims {
		delta := g[i] - float64(p.Position[i])
		_ = d
		sumSq += delta * delta
	}
	radius := int(math.Floor(math.Sqrt(sumSq)))

	xDash := make([]int, len(e.dims))
	for i, d := range e.dims {
		lo := maxInt(d.Min, int(g[i])-radius)
		hi := minInt(d.Max-1, int(g[i])+radius)
		if lo > hi {
			lo, hi = hi, lo
		}
		xDash[i] = e.rng.UniformInt(lo, hi)
	}

	newVel := make([]float64, len(e.dims))
	newPos := make([]float64, len(e.dims))
	for i := range e.dims {
		v := float64(p.Velocity[i])
		x := float64(p.Position[i])
		xd := float64(xDash[i])
		newVel[i] = omega*v + xd - x
		newPos[i] = omega*v + xd
	}

	e.confineToBounds(p.Position, newPos, newVel)

	for i, d := range e.dims {
		px := int(newPos[i])
		if px < d.Min {
			px = d.Min
		}
		if px > d.Max-1 {
			px = d.Max - 1
		}
		p.Position[i] = px
		p.Velocity[i] = int(newVel[i])
	}
}

// shouldRandomRestart decides whether a heavily revisited position should
// be abandoned for a fresh uniform draw: the threshold scales with how
// crowded the search has become (visits relative to the number of distinct
// positions discovered so far), with a floor of 2 visits.
func (e *Engine) shouldRandomRestart(visits, knownPositions int) bool {
	maxVisits := 2
	if knownPositions > 0 {
		if scaled := 2 * visits / knownPositions; scaled > maxVisits {
			maxVisits = scaled
		}
	}
	if visits <= maxVisits {
		return false
	}
	return e.rng.UniformInt(0, 1) == 1
}

// confineToBounds applies periodic boundary confinement with dampening to
// newPos/newVel in place. A single dampening factor is drawn once per
// particle and reused across every dimension's fold — see the
// dampening-factor design note for why this departs from a literal reading
// of the original source's loop structure.
func (e *Engine) confineToBounds(curPos Position, newPos, newVel []float64) {
	dampen := e.rng.UniformFloat64()

	for i, d := range e.dims {
		min, max := float64(d.Min), float64(d.Max)
		width := max - min
		if width <= 0 {
			continue
		}

		count := 0
		for newPos[i] < min || newPos[i] > max {
			if count >= maxFoldIterations {
				restart := e.rng.UniformInt(d.Min, d.Max-1)
				newPos[i] = float64(restart)
				newVel[i] = newPos[i] - float64(curPos[i])
				break
			}
			newPos[i] = foldPeriodic(min, max, newPos[i])
			newPos[i] *= dampen
			newVel[i] = newPos[i] - float64(curPos[i])
			count++
		}
	}
}

// foldPeriodic wraps v outside [min,max] around to the opposite boundary,
// per spso.c's periodic/torus boundary handling: an overshoot past max
// reappears just above min, an undershoot below min reappears just below
// max. width is max-min and is assumed positive; callers already skip
// degenerate dimensions.
func foldPeriodic(min, max, v float64) float64 {
	width := max - min
	if v > max {
		return min + math.Mod(v-max, width)
	}
	return max - math.Mod(min-v, width)
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
