package sim

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/vrui-vr/networkviewer/internal/graph"
	"github.com/vrui-vr/networkviewer/internal/physics"
	"github.com/vrui-vr/networkviewer/internal/protocol"
)

// Headless drives the layout solver synchronously on the caller's
// goroutine, single-threaded, for offline tools that want to run a
// fixed number of ticks and read the result. It shares the tick
// implementation with Simulator but starts no goroutines.
type Headless struct {
	network *graph.Network
	ps      *physics.ParticleSystem
	params  protocol.SimulationParameters
	thread  threadState
}

// NewHeadless builds the particle system for the network the same way
// a live simulator does.
func NewHeadless(network *graph.Network, params protocol.SimulationParameters) *Headless {
	h := &Headless{
		network: network,
		ps:      physics.NewParticleSystem(physics.DefaultLeafCapacity),
		params:  params,
	}
	h.ps.SetGravity(mgl64.Vec3{})
	h.ps.SetAttenuation(params.Attenuation)
	h.ps.SetDistConstraintScale(params.LinkStrength)
	h.ps.SetNumRelaxationIterations(int(params.NumRelaxationIterations))
	network.CreateParticles(h.ps, 1)
	h.ps.FinishUpdate()
	return h
}

// Step advances the layout by one fixed tick.
func (h *Headless) Step() {
	stepRange(h.ps, &h.params, &h.thread, tickStep, 0)
}

// SetParameters replaces the solver parameters between ticks.
func (h *Headless) SetParameters(params protocol.SimulationParameters) {
	h.params = params
	h.ps.SetAttenuation(params.Attenuation)
	h.ps.SetDistConstraintScale(params.LinkStrength)
	h.ps.SetNumRelaxationIterations(int(params.NumRelaxationIterations))
}

// System exposes the particle system for integrity checks and quality
// metrics.
func (h *Headless) System() *physics.ParticleSystem { return h.ps }

// Positions returns a copy of all particle positions.
func (h *Headless) Positions() []mgl64.Vec3 {
	out := make([]mgl64.Vec3, h.ps.NumParticles())
	for i := range out {
		out[i] = h.ps.Position(int32(i))
	}
	return out
}
