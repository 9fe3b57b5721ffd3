package sim

import (
	"math"
	"runtime"

	"github.com/dgravesa/go-parallel/parallel"

	"github.com/vrui-vr/networkviewer/internal/physics"
)

// Quality summarizes how faithfully a layout satisfies its link
// constraints and how close the approximate n-body repulsion is to
// the exact pairwise sum.
type Quality struct {
	ConstraintErrorMean float64 `json:"constraint_error_mean"`
	ConstraintErrorMax  float64 `json:"constraint_error_max"`
	ForceResidualMean   float64 `json:"force_residual_mean"`
	ForceResidualMax    float64 `json:"force_residual_max"`
}

// residualFloor is the force magnitude below which a particle's
// relative residual is meaningless and skipped.
const residualFloor = 1e-12

// MeasureQuality evaluates the current layout of a headless
// simulation. The force residual compares the tree walk at the
// configured opening angle against a full descent, which visits every
// particle pair. workers bounds the goroutines used for the sweep; 0
// uses all CPUs.
func (h *Headless) MeasureQuality(workers int) Quality {
	var q Quality

	links := h.network.Links()
	nodes := h.network.Nodes()
	for _, link := range links {
		p0 := h.ps.Position(nodes[link.Source].ParticleIndex)
		p1 := h.ps.Position(nodes[link.Target].ParticleIndex)
		err := math.Abs(p0.Sub(p1).Len() - 1)
		q.ConstraintErrorMean += err
		if err > q.ConstraintErrorMax {
			q.ConstraintErrorMax = err
		}
	}
	if len(links) > 0 {
		q.ConstraintErrorMean /= float64(len(links))
	}

	n := h.ps.NumParticles()
	if n < 2 {
		return q
	}
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}

	law := repulsionLaw(h.params.RepellingForceMode)
	cutoff := h.params.RepellingForceCutoff
	theta := h.params.RepellingForceTheta

	approx := make([]*physics.GlobalRepulsion, workers)
	exact := make([]*physics.GlobalRepulsion, workers)
	for g := 0; g < workers; g++ {
		approx[g] = physics.NewGlobalRepulsion(law, cutoff)
		exact[g] = physics.NewGlobalRepulsion(law, cutoff)
	}
	sums := make([]float64, workers)
	maxes := make([]float64, workers)
	counts := make([]int, workers)

	oct := h.ps.Octree()
	parallel.WithNumGoroutines(workers).For(n, func(i, grID int) {
		pos := h.ps.Position(int32(i))

		approx[grID].Reset()
		oct.CalcForce(int32(i), pos, theta, approx[grID].Accumulate)
		exact[grID].Reset()
		oct.CalcForce(int32(i), pos, 0, exact[grID].Accumulate)

		ref := exact[grID].Force().Len()
		if ref < residualFloor {
			return
		}
		residual := approx[grID].Force().Sub(exact[grID].Force()).Len() / ref
		sums[grID] += residual
		if residual > maxes[grID] {
			maxes[grID] = residual
		}
		counts[grID]++
	})

	total := 0
	for g := 0; g < workers; g++ {
		q.ForceResidualMean += sums[g]
		if maxes[g] > q.ForceResidualMax {
			q.ForceResidualMax = maxes[g]
		}
		total += counts[g]
	}
	if total > 0 {
		q.ForceResidualMean /= float64(total)
	}
	return q
}
