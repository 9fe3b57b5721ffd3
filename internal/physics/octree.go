package physics

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// DefaultLeafCapacity is the octree leaf capacity used when no
// explicit capacity is configured.
const DefaultLeafCapacity = 16

const nilNode = int32(-1)

// ErrOctreeEmpty is returned when removing a particle from an octree
// that holds no particles.
var ErrOctreeEmpty = errors.New("physics: octree is empty")

// ErrOctreeCorrupt is the panic value raised when a structural octree
// invariant breaks. Wrapped with the broken invariant's detail, it is
// never returned: a corrupt tree cannot be repaired mid-simulation, so
// the simulation goroutine recovers it at top level and marks the
// instance failed.
var ErrOctreeCorrupt = errors.New("physics: octree invariant violated")

// octreeNode is one slot in the octree arena. A node is a leaf while
// children is nilNode; an interior node references a block of 8
// consecutive arena slots, one per octant. Octant k covers the half of
// the domain at or above the center on axis i when bit i of k is set.
type octreeNode struct {
	min, max  mgl64.Vec3
	center    mgl64.Vec3
	parent    int32
	children  int32
	count     int32
	cog       mgl64.Vec3
	particles []int32
}

// contains reports whether p lies in the node's half-open domain.
func (n *octreeNode) contains(p mgl64.Vec3) bool {
	for i := 0; i < 3; i++ {
		if p[i] < n.min[i] || p[i] >= n.max[i] {
			return false
		}
	}
	return true
}

// childOctant returns the octant index of p relative to center.
func childOctant(center, p mgl64.Vec3) int32 {
	k := int32(0)
	for i := 0; i < 3; i++ {
		if p[i] >= center[i] {
			k |= 1 << i
		}
	}
	return k
}

// sqrDistToDomain returns the squared distance from p to the closest
// point of the axis-aligned box [min,max].
func sqrDistToDomain(min, max, p mgl64.Vec3) float64 {
	d2 := 0.0
	for i := 0; i < 3; i++ {
		if d := min[i] - p[i]; d > 0 {
			d2 += d * d
		} else if d := p[i] - max[i]; d > 0 {
			d2 += d * d
		}
	}
	return d2
}

// Octree sorts the particles of a particle system into an adaptive
// octree for fast neighborhood queries and Barnes-Hut force
// approximation. Nodes live in a growable arena and reference each
// other by index, so splitting, collapsing and re-rooting never leave
// dangling references. The octree is not safe for concurrent
// mutation; the particle system serializes structural updates onto a
// single elected thread.
type Octree struct {
	ps      *ParticleSystem
	nodes   []octreeNode
	free    []int32 // first slots of freed 8-child blocks
	root    int32
	leafCap int
	ood     []int32 // per-update scratch for out-of-domain particles
}

func newOctree(ps *ParticleSystem, leafCapacity int) *Octree {
	return &Octree{ps: ps, root: nilNode, leafCap: leafCapacity}
}

func (t *Octree) position(i int32) mgl64.Vec3 { return t.ps.pos[i] }

// LeafCapacity returns the maximum number of particles per leaf node.
func (t *Octree) LeafCapacity() int { return t.leafCap }

// allocNode appends a single fresh arena slot.
func (t *Octree) allocNode() int32 {
	t.nodes = append(t.nodes, octreeNode{})
	return int32(len(t.nodes) - 1)
}

// allocChildren returns the first index of a block of 8 arena slots,
// reusing a freed block when one is available.
func (t *Octree) allocChildren() int32 {
	if n := len(t.free); n > 0 {
		c := t.free[n-1]
		t.free = t.free[:n-1]
		return c
	}
	var block [8]octreeNode
	t.nodes = append(t.nodes, block[:]...)
	return int32(len(t.nodes) - 8)
}

// AddParticle inserts the particle with the given system index by its
// current position, growing the octree until the position falls
// inside its domain.
func (t *Octree) AddParticle(index int32) {
	p := t.position(index)

	if t.root == nilNode {
		// Anchor a unit cube domain at the first particle
		t.root = t.allocNode()
		r := &t.nodes[t.root]
		for i := 0; i < 3; i++ {
			r.min[i] = math.Floor(p[i])
			r.max[i] = r.min[i] + 1
		}
		r.center = r.min.Add(r.max).Mul(0.5)
		r.parent = nilNode
		r.children = nilNode
		r.particles = make([]int32, 0, t.leafCap)
	}

	for !t.nodes[t.root].contains(p) {
		t.growRoot(p)
	}

	t.insert(t.root, index, p)
}

// growRoot doubles the root domain away from p along each axis, so
// that the old root domain becomes one octant of the new one.
func (t *Octree) growRoot(p mgl64.Vec3) {
	r := &t.nodes[t.root]
	var min, max, center mgl64.Vec3
	rootOctant := int32(0)
	for i := 0; i < 3; i++ {
		if p[i] >= r.center[i] {
			min[i] = r.min[i]
			max[i] = r.max[i] + (r.max[i] - r.min[i])
			center[i] = r.max[i]
		} else {
			min[i] = r.min[i] - (r.max[i] - r.min[i])
			max[i] = r.max[i]
			center[i] = r.min[i]
			rootOctant |= 1 << i
		}
	}

	if r.children == nilNode {
		// A leaf root just takes the larger domain
		r.min, r.max, r.center = min, max, center
		return
	}

	// Interior root: install the larger domain, carve fresh octants and
	// hang the old root's children under the matching octant
	oldChildren := r.children
	oldMin, oldMax := r.min, r.max
	oldCount := r.count
	r.min, r.max, r.center = min, max, center
	r.children = nilNode
	t.splitLeaf(t.root)

	child := t.nodes[t.root].children + rootOctant
	cn := &t.nodes[child]
	if cn.min != oldMin || cn.max != oldMax {
		panic(fmt.Errorf("%w: re-rooted domain does not match the old root", ErrOctreeCorrupt))
	}
	cn.count = oldCount
	cn.children = oldChildren
	for k := int32(0); k < 8; k++ {
		t.nodes[oldChildren+k].parent = child
	}
}

// insert places a particle into the subtree rooted at n, splitting
// full leaves on the way down. Every node on the path has its subtree
// count bumped.
func (t *Octree) insert(n int32, index int32, p mgl64.Vec3) {
	for {
		if t.nodes[n].children == nilNode && len(t.nodes[n].particles) >= t.leafCap {
			t.splitLeaf(n)
		}
		nd := &t.nodes[n]
		nd.count++
		if nd.children == nilNode {
			nd.particles = append(nd.particles, index)
			return
		}
		n = nd.children + childOctant(nd.center, p)
	}
}

// splitLeaf turns the leaf at n into an interior node with 8 fresh
// children and deals its particles out by octant.
func (t *Octree) splitLeaf(n int32) {
	c := t.allocChildren()
	nd := &t.nodes[n]
	for k := int32(0); k < 8; k++ {
		ch := &t.nodes[c+k]
		ch.parent = n
		ch.children = nilNode
		ch.count = 0
		for i := 0; i < 3; i++ {
			if k&(1<<i) != 0 {
				ch.min[i] = nd.center[i]
				ch.max[i] = nd.max[i]
			} else {
				ch.min[i] = nd.min[i]
				ch.max[i] = nd.center[i]
			}
		}
		ch.center = ch.min.Add(ch.max).Mul(0.5)
		if ch.particles == nil {
			ch.particles = make([]int32, 0, t.leafCap)
		} else {
			ch.particles = ch.particles[:0]
		}
	}

	for _, pi := range nd.particles {
		ch := &t.nodes[c+childOctant(nd.center, t.position(pi))]
		ch.particles = append(ch.particles, pi)
		ch.count++
	}
	nd.particles = nd.particles[:0]
	nd.children = c
}

// collapseSubtree folds an interior node whose children are all
// leaves back into a single leaf.
func (t *Octree) collapseSubtree(n int32) {
	nd := &t.nodes[n]
	c := nd.children
	nd.particles = nd.particles[:0]
	for k := int32(0); k < 8; k++ {
		nd.particles = append(nd.particles, t.nodes[c+k].particles...)
	}
	if len(nd.particles) > t.leafCap {
		panic(fmt.Errorf("%w: collapse gathered %d particles into a leaf of capacity %d",
			ErrOctreeCorrupt, len(nd.particles), t.leafCap))
	}
	nd.children = nilNode
	t.free = append(t.free, c)
}

// RemoveParticle removes the particle with the given system index by
// its current position. Removing from an empty octree returns
// ErrOctreeEmpty; a particle missing from the leaf its position maps
// to means the octree no longer matches the particle system, which is
// fatal.
func (t *Octree) RemoveParticle(index int32) error {
	if t.root == nilNode || t.nodes[t.root].count == 0 {
		return ErrOctreeEmpty
	}
	t.remove(t.root, index, t.position(index))
	t.tryShrink()
	return nil
}

func (t *Octree) remove(n int32, index int32, p mgl64.Vec3) {
	nd := &t.nodes[n]
	if nd.children != nilNode {
		t.remove(nd.children+childOctant(nd.center, p), index, p)

		// The child recursion already dropped its count, so a subtree
		// at capacity+1 here holds exactly capacity particles
		if nd.count == int32(t.leafCap)+1 {
			t.collapseSubtree(n)
		}
	} else {
		found := -1
		for i, pi := range nd.particles {
			if pi == index {
				found = i
				break
			}
		}
		if found < 0 {
			panic(fmt.Errorf("%w: particle %d not found in its leaf", ErrOctreeCorrupt, index))
		}
		last := len(nd.particles) - 1
		nd.particles[found] = nd.particles[last]
		nd.particles = nd.particles[:last]
	}
	nd.count--
}

// UpdateParticles rebalances the octree after a simulation step moved
// particle positions, then refreshes the cached centers of gravity.
// Particles that left their leaf re-insert at the nearest containing
// ancestor; particles that left the whole domain re-insert through
// AddParticle, growing the root.
func (t *Octree) UpdateParticles() {
	if t.root == nilNode {
		return
	}
	t.ood = t.ood[:0]
	t.updateNode(t.root)
	for _, pi := range t.ood {
		t.AddParticle(pi)
	}
	t.tryShrink()
	t.updateCOG(t.root)
}

func (t *Octree) updateNode(n int32) {
	if c := t.nodes[n].children; c != nilNode {
		for k := int32(0); k < 8; k++ {
			t.updateNode(c + k)
		}

		// Recount from the children; strays re-inserted during the
		// recursion may have landed anywhere in the subtree
		count := int32(0)
		for k := int32(0); k < 8; k++ {
			count += t.nodes[c+k].count
		}
		t.nodes[n].count = count
		if count <= int32(t.leafCap) {
			t.collapseSubtree(n)
		}
		return
	}

	// Evict particles that left this leaf's domain and re-insert them
	// below the nearest containing ancestor
	for i := 0; i < len(t.nodes[n].particles); {
		pi := t.nodes[n].particles[i]
		p := t.position(pi)
		if t.nodes[n].contains(p) {
			i++
			continue
		}
		last := len(t.nodes[n].particles) - 1
		t.nodes[n].particles[i] = t.nodes[n].particles[last]
		t.nodes[n].particles = t.nodes[n].particles[:last]
		t.nodes[n].count--

		a := t.nodes[n].parent
		for a != nilNode && !t.nodes[a].contains(p) {
			a = t.nodes[a].parent
		}
		if a != nilNode {
			t.insert(a, pi, p)
		} else {
			t.ood = append(t.ood, pi)
		}
	}
}

// tryShrink re-roots to the sole populated child while the root is
// interior, shedding empty shells left behind by domain growth.
func (t *Octree) tryShrink() {
	for {
		c := t.nodes[t.root].children
		if c == nilNode {
			return
		}
		used := nilNode
		numUsed := 0
		for k := int32(0); k < 8; k++ {
			if t.nodes[c+k].count > 0 {
				used = c + k
				numUsed++
			}
		}
		if numUsed != 1 {
			return
		}

		// The sole populated child holds every particle of the root, so
		// it is interior as well
		un := t.nodes[used]
		r := &t.nodes[t.root]
		r.min, r.max, r.center = un.min, un.max, un.center
		r.children = un.children
		for k := int32(0); k < 8; k++ {
			t.nodes[un.children+k].parent = t.root
		}
		t.free = append(t.free, c)
	}
}

// updateCOG refreshes the cached centers of gravity bottom-up.
// Interior nodes average their children's centers weighted by count;
// leaves average their member positions.
func (t *Octree) updateCOG(n int32) {
	nd := &t.nodes[n]
	if nd.children != nilNode {
		var cog mgl64.Vec3
		for k := int32(0); k < 8; k++ {
			c := nd.children + k
			t.updateCOG(c)
			ch := &t.nodes[c]
			cog = cog.Add(ch.cog.Mul(float64(ch.count)))
		}
		nd.cog = cog.Mul(1 / float64(nd.count))
	} else if nd.count > 0 {
		var cog mgl64.Vec3
		for _, pi := range nd.particles {
			cog = cog.Add(t.position(pi))
		}
		nd.cog = cog.Mul(1 / float64(nd.count))
	} else {
		nd.cog = mgl64.Vec3{}
	}
}

// FinishUpdate refreshes the centers of gravity after setup added
// particles outside the per-tick update cycle.
func (t *Octree) FinishUpdate() {
	if t.root == nilNode {
		return
	}
	t.updateCOG(t.root)
}

// CenterOfGravity returns the center of gravity of the whole octree.
func (t *Octree) CenterOfGravity() (mgl64.Vec3, error) {
	if t.root == nilNode {
		return mgl64.Vec3{}, ErrOctreeEmpty
	}
	return t.nodes[t.root].cog, nil
}

// ForEachClose visits every particle within the given squared distance
// of center, in approximate order of increasing distance, passing its
// index, position and squared distance. Pair deduplication is the
// caller's job.
func (t *Octree) ForEachClose(center mgl64.Vec3, maxDist2 float64, visit func(index int32, pos mgl64.Vec3, dist2 float64)) {
	if t.root == nilNode {
		return
	}
	t.forEachClose(t.root, center, maxDist2, visit)
}

func (t *Octree) forEachClose(n int32, center mgl64.Vec3, maxDist2 float64, visit func(int32, mgl64.Vec3, float64)) {
	nd := &t.nodes[n]
	if nd.children != nilNode {
		// Nearest octant first
		first := childOctant(nd.center, center)
		for k := int32(0); k < 8; k++ {
			c := nd.children + (first ^ k)
			ch := &t.nodes[c]
			if ch.count > 0 && sqrDistToDomain(ch.min, ch.max, center) <= maxDist2 {
				t.forEachClose(c, center, maxDist2, visit)
			}
		}
		return
	}
	for _, pi := range nd.particles {
		p := t.position(pi)
		d2 := p.Sub(center).LenSqr()
		if d2 <= maxDist2 {
			visit(pi, p, d2)
		}
	}
}

// CalcForce accumulates the n-body force acting on the particle with
// the given index and position. An interior node whose edge length
// over distance is below theta contributes once as a pseudo-particle
// of its aggregate count at its center of gravity; otherwise the
// traversal recurses, and leaves contribute their particles
// individually, excluding the particle itself.
func (t *Octree) CalcForce(index int32, pos mgl64.Vec3, theta float64, accum func(d mgl64.Vec3, dist2, mass float64)) {
	if t.root == nilNode {
		return
	}
	t.calcForce(t.root, index, pos, theta, accum)
}

func (t *Octree) calcForce(n int32, index int32, pos mgl64.Vec3, theta float64, accum func(mgl64.Vec3, float64, float64)) {
	nd := &t.nodes[n]
	if nd.children == nilNode {
		for _, pi := range nd.particles {
			if pi == index {
				continue
			}
			d := t.position(pi).Sub(pos)
			accum(d, d.LenSqr(), 1)
		}
		return
	}

	d := nd.cog.Sub(pos)
	d2 := d.LenSqr()
	size := nd.max[0] - nd.min[0]
	if size*size < theta*theta*d2 {
		accum(d, d2, float64(nd.count))
		return
	}
	for k := int32(0); k < 8; k++ {
		if c := nd.children + k; t.nodes[c].count > 0 {
			t.calcForce(c, index, pos, theta, accum)
		}
	}
}

// NumParticles returns the number of particles sorted into the octree.
func (t *Octree) NumParticles() int {
	if t.root == nilNode {
		return 0
	}
	return int(t.nodes[t.root].count)
}

// NumNodes returns the number of live octree nodes.
func (t *Octree) NumNodes() int {
	if t.root == nilNode {
		return 0
	}
	return len(t.nodes) - 8*len(t.free)
}

// Depth returns the height of the octree in levels.
func (t *Octree) Depth() int {
	if t.root == nilNode {
		return 0
	}
	return t.depth(t.root)
}

func (t *Octree) depth(n int32) int {
	nd := &t.nodes[n]
	if nd.children == nilNode {
		return 1
	}
	max := 0
	for k := int32(0); k < 8; k++ {
		if d := t.depth(nd.children + k); d > max {
			max = d
		}
	}
	return max + 1
}

// Check verifies the octree's structural invariants: parent links,
// exact embedding of child domains, subtree counts, leaf capacity and
// leaf containment. It returns an error describing the first
// violation found.
func (t *Octree) Check() error {
	if t.root == nilNode {
		return nil
	}
	if got := t.nodes[t.root].parent; got != nilNode {
		return fmt.Errorf("root node has parent %d, want none", got)
	}
	return t.checkNode(t.root)
}

func (t *Octree) checkNode(n int32) error {
	nd := &t.nodes[n]
	if nd.children == nilNode {
		if len(nd.particles) > t.leafCap {
			return fmt.Errorf("leaf %d holds %d particles, capacity is %d", n, len(nd.particles), t.leafCap)
		}
		if nd.count != int32(len(nd.particles)) {
			return fmt.Errorf("leaf %d count %d does not match %d stored particles", n, nd.count, len(nd.particles))
		}
		for _, pi := range nd.particles {
			if !nd.contains(t.position(pi)) {
				return fmt.Errorf("particle %d outside the domain of leaf %d", pi, n)
			}
		}
		return nil
	}

	if nd.count <= int32(t.leafCap) {
		return fmt.Errorf("interior node %d count %d not above leaf capacity %d", n, nd.count, t.leafCap)
	}
	var sum int32
	for k := int32(0); k < 8; k++ {
		c := nd.children + k
		ch := &t.nodes[c]
		if ch.parent != n {
			return fmt.Errorf("node %d does not point back to parent %d", c, n)
		}
		var cmin, cmax mgl64.Vec3
		for i := 0; i < 3; i++ {
			if k&(1<<i) != 0 {
				cmin[i] = nd.center[i]
				cmax[i] = nd.max[i]
			} else {
				cmin[i] = nd.min[i]
				cmax[i] = nd.center[i]
			}
		}
		if ch.min != cmin || ch.max != cmax {
			return fmt.Errorf("node %d domain is not embedded in parent %d", c, n)
		}
		sum += ch.count
		if err := t.checkNode(c); err != nil {
			return err
		}
	}
	if sum != nd.count {
		return fmt.Errorf("node %d count %d does not match children sum %d", n, nd.count, sum)
	}
	return nil
}
