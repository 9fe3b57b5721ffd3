package physics

import (
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func addGridParticles(ps *ParticleSystem, n int, spacing float64) {
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			for z := 0; z < n; z++ {
				p := mgl64.Vec3{float64(x) * spacing, float64(y) * spacing, float64(z) * spacing}
				ps.AddParticle(1, p, mgl64.Vec3{})
			}
		}
	}
}

func TestOctreeAddAndCheck(t *testing.T) {
	ps := NewParticleSystem(4)
	addGridParticles(ps, 3, 0.25)

	oct := ps.Octree()
	if got := oct.NumParticles(); got != 27 {
		t.Errorf("expected 27 particles in octree, got %d", got)
	}
	if err := oct.Check(); err != nil {
		t.Fatalf("octree check failed: %v", err)
	}
	if oct.Depth() < 2 {
		t.Errorf("expected the octree to split beyond one level, depth is %d", oct.Depth())
	}
}

func TestOctreeLeafSplitExactlyOnOverflow(t *testing.T) {
	ps := NewParticleSystem(4)

	// Four particles fit in the root leaf
	for i := 0; i < 4; i++ {
		ps.AddParticle(1, mgl64.Vec3{0.1 + float64(i)*0.2, 0.5, 0.5}, mgl64.Vec3{})
	}
	if got := ps.Octree().Depth(); got != 1 {
		t.Errorf("expected depth 1 before overflow, got %d", got)
	}

	// The fifth forces a split
	ps.AddParticle(1, mgl64.Vec3{0.9, 0.5, 0.5}, mgl64.Vec3{})
	if got := ps.Octree().Depth(); got < 2 {
		t.Errorf("expected a split after overflow, depth is %d", got)
	}
	if err := ps.Octree().Check(); err != nil {
		t.Fatalf("octree check failed: %v", err)
	}
}

func TestOctreeReRooting(t *testing.T) {
	ps := NewParticleSystem(4)

	// Force an interior root near the origin
	for i := 0; i < 8; i++ {
		ps.AddParticle(1, mgl64.Vec3{float64(i) * 0.1, 0.2, 0.3}, mgl64.Vec3{})
	}
	oct := ps.Octree()
	if err := oct.Check(); err != nil {
		t.Fatalf("octree check failed before growth: %v", err)
	}

	// A distant particle must grow the domain without disturbing the
	// existing subtree
	far := ps.AddParticle(1, mgl64.Vec3{100, 100, 100}, mgl64.Vec3{})
	if err := oct.Check(); err != nil {
		t.Fatalf("octree check failed after growth: %v", err)
	}

	root := &oct.nodes[oct.root]
	if !root.contains(mgl64.Vec3{0, 0.2, 0.3}) || !root.contains(mgl64.Vec3{100, 100, 100}) {
		t.Error("grown root domain does not contain both particle clusters")
	}
	if got := oct.NumParticles(); got != 9 {
		t.Errorf("expected 9 particles after growth, got %d", got)
	}

	// All original particles are still present near the origin
	seen := 0
	oct.ForEachClose(mgl64.Vec3{0.35, 0.2, 0.3}, 1, func(index int32, pos mgl64.Vec3, dist2 float64) {
		if index != far {
			seen++
		}
	})
	if seen != 8 {
		t.Errorf("expected to find all 8 original particles after re-rooting, found %d", seen)
	}
}

func TestOctreeRemoveParticle(t *testing.T) {
	ps := NewParticleSystem(4)
	for i := 0; i < 6; i++ {
		ps.AddParticle(1, mgl64.Vec3{float64(i) * 0.15, 0.5, 0.5}, mgl64.Vec3{})
	}
	oct := ps.Octree()

	if err := oct.RemoveParticle(3); err != nil {
		t.Fatalf("unexpected remove error: %v", err)
	}
	if got := oct.NumParticles(); got != 5 {
		t.Errorf("expected 5 particles after removal, got %d", got)
	}
	if err := oct.Check(); err != nil {
		t.Fatalf("octree check failed after removal: %v", err)
	}
}

func TestOctreeRemoveFromEmpty(t *testing.T) {
	ps := NewParticleSystem(4)
	if err := ps.Octree().RemoveParticle(0); err != ErrOctreeEmpty {
		t.Errorf("expected ErrOctreeEmpty, got %v", err)
	}
}

func TestOctreeCollapseAfterRemoval(t *testing.T) {
	ps := NewParticleSystem(4)
	for i := 0; i < 5; i++ {
		ps.AddParticle(1, mgl64.Vec3{0.1 + float64(i)*0.18, 0.5, 0.5}, mgl64.Vec3{})
	}
	oct := ps.Octree()
	if oct.Depth() < 2 {
		t.Fatalf("expected a split before removal, depth is %d", oct.Depth())
	}

	// Dropping back to capacity collapses the subtree into one leaf
	if err := oct.RemoveParticle(2); err != nil {
		t.Fatalf("unexpected remove error: %v", err)
	}
	if got := oct.Depth(); got != 1 {
		t.Errorf("expected depth 1 after collapse, got %d", got)
	}
	if err := oct.Check(); err != nil {
		t.Fatalf("octree check failed after collapse: %v", err)
	}
}

func TestOctreeUpdateParticlesTracksMovement(t *testing.T) {
	ps := NewParticleSystem(4)
	addGridParticles(ps, 2, 0.3)
	oct := ps.Octree()

	// Scatter the particles and rebalance
	rng := rand.New(rand.NewSource(7))
	for i := int32(0); i < int32(ps.NumParticles()); i++ {
		p := mgl64.Vec3{rng.Float64()*20 - 10, rng.Float64()*20 - 10, rng.Float64()*20 - 10}
		ps.SetPosition(i, p)
	}
	oct.UpdateParticles()

	if err := oct.Check(); err != nil {
		t.Fatalf("octree check failed after update: %v", err)
	}
	if got := oct.NumParticles(); got != ps.NumParticles() {
		t.Errorf("expected %d particles after update, got %d", ps.NumParticles(), got)
	}

	// Every particle is findable at its new position
	for i := int32(0); i < int32(ps.NumParticles()); i++ {
		found := false
		oct.ForEachClose(ps.Position(i), 1e-12, func(index int32, pos mgl64.Vec3, dist2 float64) {
			if index == i {
				found = true
			}
		})
		if !found {
			t.Errorf("particle %d not found at its new position after update", i)
		}
	}
}

func TestOctreeShrinkAfterUpdate(t *testing.T) {
	ps := NewParticleSystem(4)
	for i := 0; i < 8; i++ {
		ps.AddParticle(1, mgl64.Vec3{float64(i) * 0.1, 0.5, 0.5}, mgl64.Vec3{})
	}
	oct := ps.Octree()

	// Growing out to a distant particle and pulling it back strands
	// empty shells around the populated core
	far := ps.AddParticle(1, mgl64.Vec3{200, 200, 200}, mgl64.Vec3{})
	grownDepth := oct.Depth()
	ps.SetPosition(far, mgl64.Vec3{0.85, 0.5, 0.5})
	oct.UpdateParticles()

	if got := oct.Depth(); got >= grownDepth {
		t.Errorf("expected the octree to shrink, depth %d not below %d", got, grownDepth)
	}
	if err := oct.Check(); err != nil {
		t.Fatalf("octree check failed after shrink: %v", err)
	}
}

func TestOctreeCenterOfGravity(t *testing.T) {
	ps := NewParticleSystem(4)
	ps.AddParticle(1, mgl64.Vec3{1, 0, 0}, mgl64.Vec3{})
	ps.AddParticle(1, mgl64.Vec3{-1, 0, 0}, mgl64.Vec3{})
	ps.AddParticle(1, mgl64.Vec3{0, 1, 0}, mgl64.Vec3{})
	ps.AddParticle(1, mgl64.Vec3{0, -1, 0}, mgl64.Vec3{})
	ps.FinishUpdate()

	cog, err := ps.Octree().CenterOfGravity()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cog.Len() > 1e-9 {
		t.Errorf("expected center of gravity at the origin, got %v", cog)
	}
}

func TestOctreeCenterOfGravityEmpty(t *testing.T) {
	ps := NewParticleSystem(4)
	if _, err := ps.Octree().CenterOfGravity(); err != ErrOctreeEmpty {
		t.Errorf("expected ErrOctreeEmpty, got %v", err)
	}
}

func TestOctreeForEachCloseVisitsExactlyInRange(t *testing.T) {
	ps := NewParticleSystem(8)
	addGridParticles(ps, 5, 1)
	oct := ps.Octree()

	center := mgl64.Vec3{2, 2, 2}
	maxDist2 := 2.25
	visited := make(map[int32]int)
	oct.ForEachClose(center, maxDist2, func(index int32, pos mgl64.Vec3, dist2 float64) {
		visited[index]++
		if dist2 > maxDist2 {
			t.Errorf("particle %d visited at squared distance %f beyond %f", index, dist2, maxDist2)
		}
	})

	for i := int32(0); i < int32(ps.NumParticles()); i++ {
		inRange := ps.Position(i).Sub(center).LenSqr() <= maxDist2
		switch n := visited[i]; {
		case inRange && n != 1:
			t.Errorf("expected particle %d to be visited once, got %d", i, n)
		case !inRange && n != 0:
			t.Errorf("particle %d outside the range was visited %d times", i, n)
		}
	}
}

func TestOctreeCheckDetectsCorruption(t *testing.T) {
	ps := NewParticleSystem(4)
	addGridParticles(ps, 2, 0.4)
	oct := ps.Octree()
	if err := oct.Check(); err != nil {
		t.Fatalf("octree check failed on a healthy tree: %v", err)
	}

	oct.nodes[oct.root].count++
	if err := oct.Check(); err == nil {
		t.Error("expected the check to flag a corrupted count")
	}
	oct.nodes[oct.root].count--
}
