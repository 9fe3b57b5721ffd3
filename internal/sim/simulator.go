// Package sim runs the network layout solver on a dedicated goroutine,
// optionally assisted by a team of worker goroutines in lockstep. All
// mutation of the network and particle state happens on the simulation
// goroutine; other goroutines communicate through queued commands and a
// parameter buffer.
package sim

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/vrui-vr/networkviewer/internal/errorreporting"
	"github.com/vrui-vr/networkviewer/internal/graph"
	"github.com/vrui-vr/networkviewer/internal/logger"
	"github.com/vrui-vr/networkviewer/internal/metrics"
	"github.com/vrui-vr/networkviewer/internal/physics"
	"github.com/vrui-vr/networkviewer/internal/protocol"
)

// tickStep is the fixed solver time step.
const tickStep = 1.0 / 60.0

// DefaultUpdateInterval is the default period between position
// snapshots pushed to the update callback.
const DefaultUpdateInterval = time.Second / 30

// UpdateFunc receives a position snapshot after each update interval.
// It is called on the simulation goroutine and the slice is reused
// between calls, so implementations must encode or copy before
// returning.
type UpdateFunc func(positions []mgl64.Vec3)

// threadState holds per-thread scratch that must not be shared between
// the solver goroutines.
type threadState struct {
	repulsion *physics.GlobalRepulsion
	law       physics.RepulsionLaw
	minDist   float64
}

// Simulator owns a network and its particle system and advances them
// at a fixed tick rate until stopped.
type Simulator struct {
	network *graph.Network
	ps      *physics.ParticleSystem
	workers int
	barrier *physics.Barrier
	threads []threadState

	// params carries replacement parameter sets to the simulation
	// goroutine; cur is the set adopted for the current tick.
	params atomic.Pointer[protocol.SimulationParameters]
	cur    *protocol.SimulationParameters

	commandsMu sync.Mutex
	commands   []command

	activeDrags map[dragKey]*activeDrag
	nodeDrags   []bool

	pauseMu   sync.Mutex
	pauseCond *sync.Cond
	paused    bool

	stop   atomic.Bool
	failed atomic.Bool
	// stopping is published to the workers through the barrier
	// rendezvous, so every party leaves on the same tick.
	stopping bool

	updateInterval atomic.Int64
	update         UpdateFunc
	snapshot       []mgl64.Vec3

	wg sync.WaitGroup
}

// New creates a simulator for the given network and starts its
// goroutines: one simulation goroutine plus the given number of
// workers. The simulator starts running; callers pause it when no one
// is watching. The update callback may be nil.
func New(network *graph.Network, params protocol.SimulationParameters, update UpdateFunc, workers int) *Simulator {
	return newSimulator(network, params, update, workers, 0)
}

// newSimulator additionally takes the octree leaf capacity, zero for
// the default.
func newSimulator(network *graph.Network, params protocol.SimulationParameters, update UpdateFunc, workers, leafCapacity int) *Simulator {
	if workers < 0 {
		workers = 0
	}
	s := &Simulator{
		network:     network,
		ps:          physics.NewParticleSystem(leafCapacity),
		workers:     workers,
		threads:     make([]threadState, 1+workers),
		activeDrags: make(map[dragKey]*activeDrag),
		nodeDrags:   make([]bool, network.NumNodes()),
		update:      update,
	}
	s.pauseCond = sync.NewCond(&s.pauseMu)
	s.updateInterval.Store(int64(DefaultUpdateInterval))

	s.ps.SetGravity(mgl64.Vec3{})
	s.ps.SetAttenuation(params.Attenuation)
	s.ps.SetDistConstraintScale(params.LinkStrength)
	s.ps.SetNumRelaxationIterations(int(params.NumRelaxationIterations))

	// Constraints are created at full strength; the runtime link
	// strength is applied through the constraint scale instead.
	network.CreateParticles(s.ps, 1)
	s.ps.FinishUpdate()

	p := params
	s.params.Store(&p)
	s.cur = &p

	if workers > 0 {
		s.barrier = physics.NewBarrier(1 + workers)
		s.ps.SetNumThreads(1+workers, s.barrier)
	}
	s.wg.Add(1 + workers)
	for ti := 1; ti <= workers; ti++ {
		go s.runWorker(ti)
	}
	go s.run()
	metrics.SimRunning.Set(1)
	return s
}

// NumParticles returns the particle count, which is fixed for the
// simulator's lifetime.
func (s *Simulator) NumParticles() int { return s.ps.NumParticles() }

// SetParameters hands a new parameter set to the simulation goroutine.
// It takes effect on the next tick.
func (s *Simulator) SetParameters(p protocol.SimulationParameters) {
	metrics.SimCommandsTotal.WithLabelValues("set_parameters").Inc()
	s.params.Store(&p)
}

// UpdateInterval returns the current snapshot period.
func (s *Simulator) UpdateInterval() time.Duration {
	return time.Duration(s.updateInterval.Load())
}

// SetUpdateInterval changes the snapshot period. The simulation
// goroutine picks it up when scheduling the next snapshot.
func (s *Simulator) SetUpdateInterval(d time.Duration) {
	if d > 0 {
		s.updateInterval.Store(int64(d))
	}
}

// Pause stops the simulation goroutine after the current tick. Workers
// block on the barrier until the simulator resumes.
func (s *Simulator) Pause() {
	s.pauseMu.Lock()
	s.paused = true
	s.pauseMu.Unlock()
	metrics.SimRunning.Set(0)
}

// Resume wakes a paused simulator.
func (s *Simulator) Resume() {
	s.pauseMu.Lock()
	s.paused = false
	s.pauseCond.Signal()
	s.pauseMu.Unlock()
	metrics.SimRunning.Set(1)
}

// Paused reports whether the simulator is parked.
func (s *Simulator) Paused() bool {
	s.pauseMu.Lock()
	defer s.pauseMu.Unlock()
	return s.paused
}

// Failed reports whether the simulation goroutine died on a broken
// invariant. A failed simulator stays failed; loading a network builds
// a fresh one.
func (s *Simulator) Failed() bool { return s.failed.Load() }

// Stop shuts down the simulation goroutines and waits for them to
// finish. Commands already queued still execute on the final
// iteration, so pending queries get their replies.
func (s *Simulator) Stop() {
	s.stop.Store(true)
	s.Resume()
	if s.failed.Load() {
		// After a failure the tick team cannot rendezvous; whatever is
		// still parked on the barrier is abandoned.
		metrics.SimRunning.Set(0)
		return
	}
	s.wg.Wait()
	metrics.SimRunning.Set(0)
}

// run is the main simulation goroutine.
func (s *Simulator) run() {
	defer s.wg.Done()

	// A broken structural invariant (octree containment, selection
	// flood order) panics rather than simulating on corrupt state. The
	// recover keeps the process up: the instance is marked failed, the
	// panic is reported, and workers parked at the tick rendezvous are
	// released to exit.
	released := true
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		s.failed.Store(true)
		metrics.SimRunning.Set(0)
		var err error
		if perr, ok := r.(error); ok {
			err = fmt.Errorf("simulation tick panic: %w", perr)
		} else {
			err = fmt.Errorf("simulation tick panic: %v", r)
		}
		logger.Error("simulation halted", "error", err)
		errorreporting.CaptureError(err)
		if s.workers > 0 && !released {
			s.stopping = true
			s.barrier.Wait()
		}
	}()

	next := time.Now()
	for {
		s.pauseMu.Lock()
		for s.paused && !s.stop.Load() {
			s.pauseCond.Wait()
		}
		s.pauseMu.Unlock()

		if s.stop.Load() {
			s.stopping = true
		}
		tickStart := time.Now()
		released = false

		// Adopt replaced parameters. The solver fields live in the
		// particle system; the rest are read from cur every tick.
		if p := s.params.Load(); p != s.cur {
			if s.ps.Attenuation() != p.Attenuation {
				s.ps.SetAttenuation(p.Attenuation)
			}
			if s.ps.DistConstraintScale() != p.LinkStrength {
				s.ps.SetDistConstraintScale(p.LinkStrength)
			}
			if n := int(p.NumRelaxationIterations); s.ps.NumRelaxationIterations() != n {
				s.ps.SetNumRelaxationIterations(n)
			}
			s.cur = p
		}

		// Execute all queued commands.
		s.commandsMu.Lock()
		cmds := s.commands
		s.commands = nil
		s.commandsMu.Unlock()
		for _, c := range cmds {
			c.execute(s)
		}

		// Pin all dragged particles to their device poses.
		for _, ad := range s.activeDrags {
			for i := range ad.particles {
				dp := &ad.particles[i]
				s.ps.SetPosition(dp.index, ad.transform.Transform(dp.dragPos))
			}
		}

		if s.workers > 0 {
			s.barrier.Wait()
		}
		released = true
		if s.stopping {
			return
		}
		s.innerUpdate(tickStep, 0)
		metrics.SimTickDuration.Observe(time.Since(tickStart).Seconds())

		// Snapshot on a wall-clock schedule with bounded lag: if a
		// whole interval was missed, restart from now instead of
		// bursting to catch up.
		now := time.Now()
		if !now.Before(next) {
			s.emitSnapshot()
			next = next.Add(s.UpdateInterval())
			if !now.Before(next) {
				next = now
			}
		}
	}
}

// runWorker is a worker goroutine cooperating on ticks with the
// simulation goroutine.
func (s *Simulator) runWorker(threadIndex int) {
	defer s.wg.Done()
	for {
		s.barrier.Wait()
		if s.stopping {
			return
		}
		s.innerUpdate(tickStep, threadIndex)
	}
}

// innerUpdate advances this thread's share of one tick.
func (s *Simulator) innerUpdate(dt float64, threadIndex int) {
	stepRange(s.ps, s.cur, &s.threads[threadIndex], dt, threadIndex)
}

// stepRange runs one solver tick for one thread's particle range:
// Verlet integration, the central pull toward the origin, the global
// repelling force, and constraint relaxation.
func stepRange(ps *physics.ParticleSystem, sp *protocol.SimulationParameters, ts *threadState, dt float64, threadIndex int) {
	dt2 := dt * dt
	ps.MoveParticles(dt, threadIndex)

	n := int32(ps.NumParticles())
	nt := int32(ps.NumThreads())
	iBegin := (int32(threadIndex) * n) / nt
	iEnd := ((int32(threadIndex) + 1) * n) / nt

	physics.ApplyCentralForce(ps, iBegin, iEnd, mgl64.Vec3{}, sp.CentralForce*dt2)

	law := repulsionLaw(sp.RepellingForceMode)
	if ts.repulsion == nil || ts.law != law || ts.minDist != sp.RepellingForceCutoff {
		ts.repulsion = physics.NewGlobalRepulsion(law, sp.RepellingForceCutoff)
		ts.law = law
		ts.minDist = sp.RepellingForceCutoff
	}
	physics.ApplyGlobalRepulsion(ps, iBegin, iEnd, ts.repulsion, sp.RepellingForceTheta, sp.RepellingForce*dt2)

	ps.EnforceConstraints(dt, threadIndex)
}

func repulsionLaw(mode protocol.RepellingForceMode) physics.RepulsionLaw {
	if mode == protocol.RepelQuadratic {
		return physics.RepulsionQuadratic
	}
	return physics.RepulsionLinear
}

// emitSnapshot copies the current positions into the reusable snapshot
// buffer and hands it to the update callback.
func (s *Simulator) emitSnapshot() {
	if s.update == nil {
		return
	}
	n := s.ps.NumParticles()
	if cap(s.snapshot) < n {
		s.snapshot = make([]mgl64.Vec3, n)
	}
	s.snapshot = s.snapshot[:n]
	for i := 0; i < n; i++ {
		s.snapshot[i] = s.ps.Position(int32(i))
	}
	s.update(s.snapshot)

	metrics.SimSnapshotsTotal.Inc()
	tree := s.ps.Octree()
	metrics.OctreeNodes.Set(float64(tree.NumNodes()))
	metrics.OctreeDepth.Set(float64(tree.Depth()))
}
