package physics

import (
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"
)

// RepulsionLaw selects the falloff of the global n-body repulsion.
type RepulsionLaw uint8

const (
	// RepulsionLinear falls off with the inverse of distance.
	RepulsionLinear RepulsionLaw = iota
	// RepulsionQuadratic falls off with the inverse square of distance.
	RepulsionQuadratic
)

// GlobalRepulsion accumulates the repelling n-body force acting on
// one particle during a Barnes-Hut traversal. Below the minimum
// distance the force law is capped to avoid singularities; exactly
// coincident particles repel in a uniformly random direction.
type GlobalRepulsion struct {
	law      RepulsionLaw
	minDist  float64
	minDist2 float64
	force    mgl64.Vec3
	rng      *rand.Rand
}

// NewGlobalRepulsion creates a force accumulator for the given law
// and minimum distance.
func NewGlobalRepulsion(law RepulsionLaw, minDist float64) *GlobalRepulsion {
	return &GlobalRepulsion{
		law:      law,
		minDist:  minDist,
		minDist2: minDist * minDist,
		rng:      rand.New(rand.NewSource(rand.Int63())),
	}
}

// Reset clears the accumulated force for the next particle.
func (g *GlobalRepulsion) Reset() { g.force = mgl64.Vec3{} }

// Force returns the force accumulated since the last Reset.
func (g *GlobalRepulsion) Force() mgl64.Vec3 { return g.force }

// Accumulate adds the contribution of one particle or particle
// cluster with the given displacement vector, squared distance and
// mass. It has the signature Octree.CalcForce expects.
func (g *GlobalRepulsion) Accumulate(d mgl64.Vec3, d2, mass float64) {
	switch g.law {
	case RepulsionLinear:
		switch {
		case d2 >= g.minDist2:
			g.force = g.force.Sub(d.Mul(mass / d2))
		case d2 > 0:
			g.force = g.force.Sub(d.Mul(mass / math.Sqrt(g.minDist2*d2)))
		default:
			g.force = g.force.Sub(g.randVec().Mul(mass / g.minDist2))
		}
	case RepulsionQuadratic:
		switch {
		case d2 >= g.minDist2:
			g.force = g.force.Sub(d.Mul(mass / (d2 * math.Sqrt(d2))))
		case d2 > 0:
			g.force = g.force.Sub(d.Mul(mass / (g.minDist2 * math.Sqrt(d2))))
		default:
			g.force = g.force.Sub(g.randVec().Mul(mass / (g.minDist2 * g.minDist)))
		}
	}
}

// randVec returns a uniformly random direction scaled to the minimum
// distance.
func (g *GlobalRepulsion) randVec() mgl64.Vec3 {
	for {
		v := mgl64.Vec3{g.rng.NormFloat64(), g.rng.NormFloat64(), g.rng.NormFloat64()}
		if l2 := v.LenSqr(); l2 > 1e-12 {
			return v.Mul(g.minDist / math.Sqrt(l2))
		}
	}
}

// ApplyGlobalRepulsion accumulates the Barnes-Hut repulsion for every
// particle in [iBegin,iEnd) and applies it scaled by factor, the
// repelling force coefficient times the squared timestep.
func ApplyGlobalRepulsion(ps *ParticleSystem, iBegin, iEnd int32, g *GlobalRepulsion, theta, factor float64) {
	oct := ps.Octree()
	accum := g.Accumulate
	for i := iBegin; i < iEnd; i++ {
		g.Reset()
		oct.CalcForce(i, ps.Position(i), theta, accum)
		ps.ForceParticle(i, g.Force(), factor)
	}
}

// ApplyCentralForce pulls every particle in [iBegin,iEnd) toward
// center with a force proportional to its offset, scaled by factor.
func ApplyCentralForce(ps *ParticleSystem, iBegin, iEnd int32, center mgl64.Vec3, factor float64) {
	for i := iBegin; i < iEnd; i++ {
		d := center.Sub(ps.Position(i))
		ps.ForceParticle(i, d, factor)
	}
}

// cutoffRepulsionDist2 is the squared range of the short-range pair
// repulsion: twice the link rest length, squared.
const cutoffRepulsionDist2 = 4.0

// ApplyCutoffRepulsion pushes apart all particle pairs within twice
// the link rest length, driven from the particles in [iBegin,iEnd)
// and applied with equal and opposite forces scaled by dt2. Each
// unordered pair is handled exactly once, by its lower-indexed
// particle.
func ApplyCutoffRepulsion(ps *ParticleSystem, iBegin, iEnd int32, dt2 float64) {
	oct := ps.Octree()
	var index int32
	var pos mgl64.Vec3
	visit := func(other int32, otherPos mgl64.Vec3, d2 float64) {
		if index < other && d2 > 0 {
			f := otherPos.Sub(pos).Mul((10 - 5*math.Sqrt(d2)) / d2)
			ps.ForceParticle(index, f.Mul(-1), dt2)
			ps.ForceParticle(other, f, dt2)
		}
	}
	for index = iBegin; index < iEnd; index++ {
		pos = ps.Position(index)
		oct.ForEachClose(pos, cutoffRepulsionDist2, visit)
	}
}
