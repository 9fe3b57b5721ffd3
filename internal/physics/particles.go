package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// DistConstraint ties two particles to a target separation. Strength
// in [0,1] blends the correction in partially for soft springs.
type DistConstraint struct {
	Index0, Index1 int32
	Dist, Dist2    float64
	Strength       float64
}

// BoxConstraint keeps particles inside or outside an axis-aligned box.
type BoxConstraint struct {
	Inside   bool
	Min, Max mgl64.Vec3
}

// SphereConstraint keeps particles inside or outside a sphere.
type SphereConstraint struct {
	Inside  bool
	Center  mgl64.Vec3
	Radius  float64
	Radius2 float64
}

// ParticleSystem is a Verlet-integrated particle simulation with
// distance and boundary constraints. Particle state is stored in
// parallel arrays addressed by stable indices; particles are only
// ever added. The state update methods can be driven cooperatively by
// a fixed team of goroutines, each owning the contiguous index range
// (ti*N)/numThreads .. ((ti+1)*N)/numThreads.
type ParticleSystem struct {
	distConstraints   []DistConstraint
	boxConstraints    []BoxConstraint
	sphereConstraints []SphereConstraint

	gravity             mgl64.Vec3
	attenuation         float64
	bounce              float64
	friction            float64
	distConstraintScale float64
	relaxIterations     int

	invMass []float64
	numDist []int32 // distance constraints incident on each particle
	pos     []mgl64.Vec3
	prevPos []mgl64.Vec3
	prevDt  float64

	octree *Octree

	numThreads int
	barrier    *Barrier
	deltas     []mgl64.Vec3 // numThreads x numParticles relaxation staging
}

// NewParticleSystem creates an empty particle system whose octree
// splits leaves above the given capacity.
func NewParticleSystem(leafCapacity int) *ParticleSystem {
	if leafCapacity < 1 {
		leafCapacity = DefaultLeafCapacity
	}
	ps := &ParticleSystem{
		gravity:             mgl64.Vec3{0, 0, -9.81},
		attenuation:         0.75,
		friction:            1,
		distConstraintScale: 1,
		relaxIterations:     10,
		prevDt:              1,
		numThreads:          1,
		barrier:             NewBarrier(1),
	}
	ps.octree = newOctree(ps, leafCapacity)
	return ps
}

// AddParticle adds a particle with the given inverse mass, position
// and velocity and returns its stable index. An inverse mass of zero
// pins the particle.
func (ps *ParticleSystem) AddParticle(invMass float64, pos, vel mgl64.Vec3) int32 {
	index := int32(len(ps.pos))
	ps.invMass = append(ps.invMass, invMass)
	ps.numDist = append(ps.numDist, 0)
	ps.pos = append(ps.pos, pos)
	ps.prevPos = append(ps.prevPos, pos.Sub(vel.Mul(ps.prevDt)))
	ps.octree.AddParticle(index)
	return index
}

// AddDistConstraint constrains two particles to the given distance
// with the given strength.
func (ps *ParticleSystem) AddDistConstraint(index0, index1 int32, dist, strength float64) {
	ps.distConstraints = append(ps.distConstraints, DistConstraint{
		Index0:   index0,
		Index1:   index1,
		Dist:     dist,
		Dist2:    dist * dist,
		Strength: strength,
	})
	ps.numDist[index0]++
	ps.numDist[index1]++
}

// AddBoxConstraint keeps all particles inside or outside the given
// axis-aligned box.
func (ps *ParticleSystem) AddBoxConstraint(inside bool, min, max mgl64.Vec3) {
	ps.boxConstraints = append(ps.boxConstraints, BoxConstraint{Inside: inside, Min: min, Max: max})
}

// AddSphereConstraint keeps all particles inside or outside the given
// sphere.
func (ps *ParticleSystem) AddSphereConstraint(inside bool, center mgl64.Vec3, radius float64) {
	ps.sphereConstraints = append(ps.sphereConstraints, SphereConstraint{
		Inside:  inside,
		Center:  center,
		Radius:  radius,
		Radius2: radius * radius,
	})
}

// NumDistConstraints returns the number of distance constraints.
func (ps *ParticleSystem) NumDistConstraints() int { return len(ps.distConstraints) }

// SetDistConstraintStrength changes the strength of one constraint.
func (ps *ParticleSystem) SetDistConstraintStrength(index int, strength float64) {
	ps.distConstraints[index].Strength = strength
}

// Gravity returns the gravity vector.
func (ps *ParticleSystem) Gravity() mgl64.Vec3 { return ps.gravity }

// SetGravity sets the gravity vector.
func (ps *ParticleSystem) SetGravity(g mgl64.Vec3) { ps.gravity = g }

// Attenuation returns the fraction of velocity lost per second.
func (ps *ParticleSystem) Attenuation() float64 { return ps.attenuation }

// SetAttenuation sets the fraction of velocity lost per second.
func (ps *ParticleSystem) SetAttenuation(a float64) { ps.attenuation = a }

// SetBounce sets the bounce factor for boundary constraint impacts.
func (ps *ParticleSystem) SetBounce(b float64) { ps.bounce = b }

// SetFriction sets the friction coefficient for boundary contact.
func (ps *ParticleSystem) SetFriction(f float64) { ps.friction = f }

// DistConstraintScale returns the overall constraint solver scale.
func (ps *ParticleSystem) DistConstraintScale() float64 { return ps.distConstraintScale }

// SetDistConstraintScale sets the overall constraint solver scale.
func (ps *ParticleSystem) SetDistConstraintScale(s float64) { ps.distConstraintScale = s }

// NumRelaxationIterations returns the constraint solver iteration
// count.
func (ps *ParticleSystem) NumRelaxationIterations() int { return ps.relaxIterations }

// SetNumRelaxationIterations sets the constraint solver iteration
// count.
func (ps *ParticleSystem) SetNumRelaxationIterations(n int) { ps.relaxIterations = n }

// NumThreads returns the number of cooperating update goroutines.
func (ps *ParticleSystem) NumThreads() int { return ps.numThreads }

// SetNumThreads prepares the system to be advanced cooperatively by n
// goroutines synchronized through the given barrier, each calling the
// update methods with its own thread index.
func (ps *ParticleSystem) SetNumThreads(n int, barrier *Barrier) {
	ps.numThreads = n
	ps.barrier = barrier
	ps.deltas = make([]mgl64.Vec3, n*len(ps.pos))
}

// NumParticles returns the number of particles in the system.
func (ps *ParticleSystem) NumParticles() int { return len(ps.pos) }

// InvMass returns a particle's inverse mass.
func (ps *ParticleSystem) InvMass(index int32) float64 { return ps.invMass[index] }

// SetInvMass sets a particle's inverse mass.
func (ps *ParticleSystem) SetInvMass(index int32, invMass float64) {
	ps.invMass[index] = invMass
}

// Position returns a particle's current position.
func (ps *ParticleSystem) Position(index int32) mgl64.Vec3 { return ps.pos[index] }

// SetPosition overwrites a particle's current position.
func (ps *ParticleSystem) SetPosition(index int32, p mgl64.Vec3) {
	ps.pos[index] = p
}

// SetVelocity overwrites a particle's velocity by adjusting its
// previous position.
func (ps *ParticleSystem) SetVelocity(index int32, v mgl64.Vec3) {
	ps.prevPos[index] = ps.pos[index].Sub(v.Mul(ps.prevDt))
}

// Octree returns the octree the particles are sorted into.
func (ps *ParticleSystem) Octree() *Octree { return ps.octree }

// FinishUpdate finalizes the system after setup added particles and
// constraints: refreshes the octree's centers of gravity and sizes
// the relaxation staging buffer.
func (ps *ParticleSystem) FinishUpdate() {
	ps.octree.FinishUpdate()
	ps.deltas = make([]mgl64.Vec3, ps.numThreads*len(ps.pos))
}

// MoveParticles advances this thread's particle range by one Verlet
// extrapolation step with velocity attenuation. The new positions are
// staged in prevPos; pos keeps the pre-step positions valid for
// octree queries until EnforceConstraints swaps the arrays.
func (ps *ParticleSystem) MoveParticles(dt float64, threadIndex int) {
	att := math.Pow(ps.attenuation, ps.prevDt)
	pc := dt * att / ps.prevDt
	dt2 := dt * dt

	// Euler-style gravity step where velocity updates before position
	g := ps.gravity.Mul(dt2)

	n := len(ps.pos)
	begin := (threadIndex * n) / ps.numThreads
	end := ((threadIndex + 1) * n) / ps.numThreads
	for i := begin; i < end; i++ {
		p := &ps.pos[i]
		pp := &ps.prevPos[i]
		for c := 0; c < 3; c++ {
			pp[c] = p[c] + (p[c]-pp[c])*pc + g[c]
		}
	}
}

// AccelerateParticle applies a mass-independent acceleration to the
// staged next position of the given particle.
func (ps *ParticleSystem) AccelerateParticle(index int32, accel mgl64.Vec3, dt2 float64) {
	pp := &ps.prevPos[index]
	pp[0] += accel[0] * dt2
	pp[1] += accel[1] * dt2
	pp[2] += accel[2] * dt2
}

// ForceParticle applies a force to the staged next position of the
// given particle, scaled by its inverse mass and the squared
// timestep.
func (ps *ParticleSystem) ForceParticle(index int32, force mgl64.Vec3, dt2 float64) {
	s := ps.invMass[index] * dt2
	pp := &ps.prevPos[index]
	pp[0] += force[0] * s
	pp[1] += force[1] * s
	pp[2] += force[2] * s
}

// EnforceConstraints completes a simulation step: swaps the staged
// positions in, resolves boundary constraints with bounce and
// friction, relaxes all distance constraints iteratively and lets one
// thread update the octree. Every cooperating goroutine must call it
// with its own thread index; the barrier sequences the serial phases.
func (ps *ParticleSystem) EnforceConstraints(dt float64, threadIndex int) {
	ps.barrier.Await(func() {
		ps.pos, ps.prevPos = ps.prevPos, ps.pos
		ps.prevDt = dt
	})

	n := len(ps.pos)
	iBegin := (threadIndex * n) / ps.numThreads
	iEnd := ((threadIndex + 1) * n) / ps.numThreads

	ps.enforceBoundaries(iBegin, iEnd)

	cBegin := (threadIndex * len(ps.distConstraints)) / ps.numThreads
	cEnd := ((threadIndex + 1) * len(ps.distConstraints)) / ps.numThreads

	for iter := 0; iter < ps.relaxIterations; iter++ {
		// Switch from per-particle to per-constraint partitioning
		ps.barrier.Wait()

		deltas := ps.deltas[threadIndex*n : (threadIndex+1)*n]
		for i := range deltas {
			deltas[i] = mgl64.Vec3{}
		}

		for ci := cBegin; ci < cEnd; ci++ {
			dc := &ps.distConstraints[ci]
			im0 := ps.invMass[dc.Index0]
			im1 := ps.invMass[dc.Index1]
			imSum := im0 + im1

			d := ps.pos[dc.Index1].Sub(ps.pos[dc.Index0])
			d2 := d.LenSqr()
			var dScale float64
			if d2 >= 1e-8 {
				dScale = (1 - dc.Dist/math.Sqrt(d2)) * dc.Strength * ps.distConstraintScale
			} else {
				// Coincident particles: nudge them apart along a fixed axis
				d = mgl64.Vec3{1, 0, 0}
				dScale = dc.Dist * dc.Strength * ps.distConstraintScale
			}

			// Dampen the correction by the busier particle's incidence count
			inc := ps.numDist[dc.Index0]
			if ps.numDist[dc.Index1] > inc {
				inc = ps.numDist[dc.Index1]
			}
			dScale /= float64(inc)

			if imSum > 0 {
				deltas[dc.Index0] = deltas[dc.Index0].Add(d.Mul(dScale * im0 / imSum))
				deltas[dc.Index1] = deltas[dc.Index1].Sub(d.Mul(dScale * im1 / imSum))
			} else {
				// Both pinned: split the correction evenly
				half := d.Mul(dScale * 0.5)
				deltas[dc.Index0] = deltas[dc.Index0].Add(half)
				deltas[dc.Index1] = deltas[dc.Index1].Sub(half)
			}
		}

		// All delta buffers must be complete before anyone reads them
		ps.barrier.Wait()

		for ti := 0; ti < ps.numThreads; ti++ {
			pd := ps.deltas[ti*n+iBegin : ti*n+iEnd]
			for i := range pd {
				p := &ps.pos[iBegin+i]
				p[0] += pd[i][0]
				p[1] += pd[i][1]
				p[2] += pd[i][2]
			}
		}

		ps.clampBoundaries(iBegin, iEnd)
	}

	ps.barrier.Await(func() {
		ps.octree.UpdateParticles()
	})
}

// Advance runs one full step without external forces.
func (ps *ParticleSystem) Advance(dt float64, threadIndex int) {
	ps.MoveParticles(dt, threadIndex)
	ps.EnforceConstraints(dt, threadIndex)
}

// applyFriction damps the tangential velocity of a particle in
// contact with a boundary, capped at friction times the penetration
// depth.
func (ps *ParticleSystem) applyFriction(p, pp *mgl64.Vec3, axis int, depth float64) {
	v := p.Sub(*pp)
	v[axis] = 0
	vLen2 := v.LenSqr()
	fLen := ps.friction * depth
	if vLen2 > fLen*fLen {
		*p = p.Sub(v.Mul(fLen / math.Sqrt(vLen2)))
	} else {
		*p = p.Sub(v)
	}
}

// enforceBoundaries resolves box and sphere constraints for this
// thread's particle range with bounce and friction response against
// the velocity encoded in prevPos.
func (ps *ParticleSystem) enforceBoundaries(iBegin, iEnd int) {
	for bi := range ps.boxConstraints {
		bc := &ps.boxConstraints[bi]
		if bc.Inside {
			// Keep all particles inside of the box
			for i := iBegin; i < iEnd; i++ {
				p := &ps.pos[i]
				pp := &ps.prevPos[i]
				for c := 0; c < 3; c++ {
					if p[c] < bc.Min[c] {
						d := bc.Min[c] - p[c]
						p[c] = bc.Min[c] + d*ps.bounce
						pp[c] = bc.Min[c] + (bc.Min[c]-pp[c])*ps.bounce
						ps.applyFriction(p, pp, c, d)
					} else if p[c] > bc.Max[c] {
						d := p[c] - bc.Max[c]
						p[c] = bc.Max[c] - d*ps.bounce
						pp[c] = bc.Max[c] + (bc.Max[c]-pp[c])*ps.bounce
						ps.applyFriction(p, pp, c, d)
					}
				}
			}
		} else {
			// Keep all particles outside of the box: reflect any particle
			// whose path from the previous position enters it
			for i := iBegin; i < iEnd; i++ {
				p := &ps.pos[i]
				pp := &ps.prevPos[i]
				minLambda, maxLambda := 0.0, 1.0
				minAxis := -1
				minBound := 0.0
				for c := 0; c < 3; c++ {
					po := pp[c]
					pc := p[c]
					lo := bc.Min[c]
					hi := bc.Max[c]
					switch {
					case po <= lo:
						if pc > lo {
							l0 := (lo - po) / (pc - po)
							if minLambda <= l0 {
								minLambda = l0
								minAxis = c
								minBound = lo
							}
							if pc > hi {
								if l1 := (hi - po) / (pc - po); maxLambda > l1 {
									maxLambda = l1
								}
							}
						} else {
							minLambda = maxLambda
						}
					case po >= hi:
						if pc < hi {
							l0 := (hi - po) / (pc - po)
							if minLambda <= l0 {
								minLambda = l0
								minAxis = c
								minBound = hi
							}
							if pc < lo {
								if l1 := (lo - po) / (pc - po); maxLambda > l1 {
									maxLambda = l1
								}
							}
						} else {
							minLambda = maxLambda
						}
					default:
						if pc < lo {
							if l1 := (lo - po) / (pc - po); maxLambda > l1 {
								maxLambda = l1
							}
						} else if pc > hi {
							if l1 := (hi - po) / (pc - po); maxLambda > l1 {
								maxLambda = l1
							}
						}
					}
				}
				if minLambda < maxLambda && minAxis >= 0 {
					d := p[minAxis] - minBound
					p[minAxis] = minBound - d*ps.bounce
					pp[minAxis] = minBound - (pp[minAxis]-minBound)*ps.bounce
					ps.applyFriction(p, pp, minAxis, math.Abs(d))
				}
			}
		}
	}

	for si := range ps.sphereConstraints {
		sc := &ps.sphereConstraints[si]
		if sc.Inside {
			// Keep all particles inside of the sphere
			for i := iBegin; i < iEnd; i++ {
				p := &ps.pos[i]
				pp := &ps.prevPos[i]
				dist2 := p.Sub(sc.Center).LenSqr()
				if dist2 > sc.Radius2 {
					// Find where the particle's path exits the sphere
					poc := pp.Sub(sc.Center)
					ppo := p.Sub(*pp)
					a := ppo.LenSqr()
					b := 2 * poc.Dot(ppo)
					cq := poc.LenSqr() - sc.Radius2

					// Larger solution of a*x^2 + b*x + c = 0
					sq := math.Sqrt(b*b - 4*a*cq)
					var lambda float64
					if b >= 0 {
						lambda = (2 * cq) / (-b - sq)
					} else {
						lambda = (-b + sq) / (2 * a)
					}

					// Project the particle onto the tangent plane at the
					// contact point; Radius2 is the squared normal length
					cp := pp.Add(ppo.Mul(lambda))
					nrm := cp.Sub(sc.Center)
					bounceVec := nrm.Mul(ppo.Dot(nrm) / sc.Radius2)

					*p = p.Sub(bounceVec.Mul((1 - lambda) * (1 + ps.bounce)))
					*pp = pp.Add(bounceVec.Mul(lambda * (1 + ps.bounce)))

					// Tangential velocity for friction
					ppo = ppo.Sub(bounceVec)
					vLen2 := ppo.LenSqr()
					fLen := ps.friction * (math.Sqrt(dist2) - sc.Radius)
					if vLen2 > fLen*fLen {
						*p = p.Sub(ppo.Mul(fLen / math.Sqrt(vLen2)))
					} else {
						*p = p.Sub(ppo)
					}
				}
			}
		} else {
			// Keep all particles outside of the sphere
			for i := iBegin; i < iEnd; i++ {
				p := &ps.pos[i]
				pp := &ps.prevPos[i]
				poc := pp.Sub(sc.Center)
				ppo := p.Sub(*pp)
				a := ppo.LenSqr()
				b := 2 * poc.Dot(ppo)
				cq := poc.LenSqr() - sc.Radius2

				// Smaller solution of a*x^2 + b*x + c = 0, where the
				// particle's path enters the sphere
				sq := b*b - 4*a*cq
				if sq >= 0 {
					sq = math.Sqrt(sq)
					var lambda float64
					if b >= 0 {
						lambda = (-b - sq) / (2 * a)
					} else {
						lambda = (2 * cq) / (-b + sq)
					}
					if lambda >= -0.1 && lambda < 1 {
						cp := pp.Add(ppo.Mul(lambda))
						nrm := cp.Sub(sc.Center)
						bounceVec := nrm.Mul(ppo.Dot(nrm) / sc.Radius2)

						*p = p.Sub(bounceVec.Mul((1 - lambda) * (1 + ps.bounce)))
						*pp = pp.Add(bounceVec.Mul(lambda * (1 + ps.bounce)))

						ppo = ppo.Sub(bounceVec)
						vLen2 := ppo.LenSqr()
						fLen := ps.friction * bounceVec.Len() * (1 - lambda)
						if vLen2 > fLen*fLen {
							*p = p.Sub(ppo.Mul(fLen / math.Sqrt(vLen2)))
						} else {
							*p = p.Sub(ppo)
						}
					}
				}
			}
		}
	}
}

// clampBoundaries re-applies boundary constraints position-only after
// a relaxation round.
func (ps *ParticleSystem) clampBoundaries(iBegin, iEnd int) {
	for bi := range ps.boxConstraints {
		bc := &ps.boxConstraints[bi]
		if bc.Inside {
			for i := iBegin; i < iEnd; i++ {
				p := &ps.pos[i]
				for c := 0; c < 3; c++ {
					if p[c] < bc.Min[c] {
						p[c] = bc.Min[c]
					} else if p[c] > bc.Max[c] {
						p[c] = bc.Max[c]
					}
				}
			}
		} else {
			// Eject interior particles through the nearest face
			for i := iBegin; i < iEnd; i++ {
				p := &ps.pos[i]
				inside := true
				minDepth := math.MaxFloat64
				minAxis := 0
				for c := 0; c < 3 && inside; c++ {
					inside = p[c] > bc.Min[c] && p[c] < bc.Max[c]
					if inside {
						m := (bc.Min[c] + bc.Max[c]) * 0.5
						if p[c] < m {
							if depth := p[c] - bc.Min[c]; minDepth > depth {
								minDepth = depth
								minAxis = -c - 1
							}
						} else {
							if depth := bc.Max[c] - p[c]; minDepth > depth {
								minDepth = depth
								minAxis = c + 1
							}
						}
					}
				}
				if inside {
					if minAxis < 0 {
						p[-minAxis-1] -= minDepth
					} else {
						p[minAxis-1] += minDepth
					}
				}
			}
		}
	}

	for si := range ps.sphereConstraints {
		sc := &ps.sphereConstraints[si]
		if sc.Inside {
			for i := iBegin; i < iEnd; i++ {
				p := &ps.pos[i]
				dist2 := p.Sub(sc.Center).LenSqr()
				if dist2 > sc.Radius2 {
					// Project the particle back to the sphere surface
					*p = p.Add(p.Sub(sc.Center).Mul(sc.Radius/math.Sqrt(dist2) - 1))
				}
			}
		} else {
			for i := iBegin; i < iEnd; i++ {
				p := &ps.pos[i]
				dist2 := p.Sub(sc.Center).LenSqr()
				if dist2 < sc.Radius2 {
					*p = p.Add(p.Sub(sc.Center).Mul(sc.Radius/math.Sqrt(dist2) - 1))
				}
			}
		}
	}
}
