package graph

import (
	"errors"
	"math"
	"sort"
)

// ErrTraversalCorrupt is the panic value raised when the breadth-first
// coloring reaches a node at more than its shortest link distance. The
// adjacency lists are immutable after parse, so this can only mean
// memory corruption; the simulation goroutine recovers it at top level.
var ErrTraversalCorrupt = errors.New("graph: network traversal took the long way around")

// SelectMode picks how a selection command changes a node's selection
// state.
type SelectMode uint8

const (
	// SelectModeSelect adds the node to the selection.
	SelectModeSelect SelectMode = iota
	// SelectModeDeselect removes the node from the selection.
	SelectModeDeselect
	// SelectModeToggle flips the node's selection state.
	SelectModeToggle
)

// selectionDistanceColors is the six-stop gradient nodes are colored
// from by their link distance to the selection.
var selectionDistanceColors = [6]Color{
	{255, 0, 0, 255},
	{255, 255, 0, 255},
	{0, 255, 0, 255},
	{0, 255, 255, 255},
	{0, 0, 255, 255},
	{255, 0, 255, 255},
}

// IsSelected returns whether the node of the given index is selected.
func (n *Network) IsSelected(index int32) bool {
	_, ok := n.selection[index]
	return ok
}

// SelectionSize returns the number of selected nodes.
func (n *Network) SelectionSize() int { return len(n.selection) }

// Selection returns the selected node indices in ascending order.
func (n *Network) Selection() []int32 {
	sel := make([]int32, 0, len(n.selection))
	for index := range n.selection {
		sel = append(sel, index)
	}
	sort.Slice(sel, func(i, j int) bool { return sel[i] < sel[j] })
	return sel
}

// SelectNode changes the selection state of one node and recolors the
// network accordingly.
func (n *Network) SelectNode(index int32, mode SelectMode) {
	switch mode {
	case SelectModeSelect:
		n.selection[index] = struct{}{}
	case SelectModeDeselect:
		delete(n.selection, index)
	case SelectModeToggle:
		if _, ok := n.selection[index]; ok {
			delete(n.selection, index)
		} else {
			n.selection[index] = struct{}{}
		}
	}
	n.recolor()
}

// ClearSelection deselects all nodes and restores their document
// colors.
func (n *Network) ClearSelection() {
	n.selection = make(map[int32]struct{})
	n.mapColorsFromNodes()
}

// GrowSelection selects every node directly linked to an already
// selected node.
func (n *Network) GrowSelection() {
	selected := make([]int32, 0, len(n.selection))
	for index := range n.selection {
		selected = append(selected, index)
	}

	for _, index := range selected {
		for _, linked := range n.nodes[index].linkedNodes {
			n.selection[linked] = struct{}{}
		}
	}
	n.recolor()
}

// ShrinkSelection deselects every selected node that is linked to at
// least one unselected node.
func (n *Network) ShrinkSelection() {
	var deselect []int32
	for index := range n.selection {
		allSelected := true
		for _, linked := range n.nodes[index].linkedNodes {
			if _, ok := n.selection[linked]; !ok {
				allSelected = false
				break
			}
		}
		if !allSelected {
			deselect = append(deselect, index)
		}
	}

	for _, index := range deselect {
		delete(n.selection, index)
	}
	n.recolor()
}

// recolor refreshes node colors after a selection change.
func (n *Network) recolor() {
	if len(n.selection) > 0 {
		n.mapColorsFromSelectionDistance()
	} else {
		n.mapColorsFromNodes()
	}
}

// mapColorsFromSelectionDistance floods link distances outward from
// the selection in breadth-first order and colors every reached node
// through the distance gradient. Unreached nodes turn grey.
func (n *Network) mapColorsFromSelectionDistance() {
	numNodes := uint32(len(n.nodes))

	// The node count doubles as the unreached sentinel
	distances := make([]uint32, numNodes)
	for i := range distances {
		distances[i] = numNodes
	}

	queue := make([]int32, 0, len(n.selection))
	for index := range n.selection {
		distances[index] = 0
		queue = append(queue, index)
	}

	maxDistance := uint32(0)
	for head := 0; head < len(queue); head++ {
		index := queue[head]
		distance := distances[index]

		for _, linked := range n.nodes[index].linkedNodes {
			if distances[linked] == numNodes {
				distances[linked] = distance + 1
				if maxDistance < distance+1 {
					maxDistance = distance + 1
				}
				queue = append(queue, linked)
			} else if distances[linked] > distance+1 {
				// Breadth-first order guarantees shortest distances
				panic(ErrTraversalCorrupt)
			}
		}
	}

	for i := range n.nodeColors {
		if distances[i] < numNodes {
			n.nodeColors[i] = distanceColor(distances[i], maxDistance)
		} else {
			n.nodeColors[i] = defaultNodeColor
		}
	}
}

// distanceColor evaluates the six-stop gradient stretched over
// [0, maxDistance].
func distanceColor(distance, maxDistance uint32) Color {
	if maxDistance == 0 {
		return selectionDistanceColors[0]
	}

	t := float64(distance) / float64(maxDistance) * 5
	i := int(t)
	if i >= 5 {
		return selectionDistanceColors[5]
	}
	f := t - float64(i)

	c0 := selectionDistanceColors[i]
	c1 := selectionDistanceColors[i+1]
	var c Color
	for k := 0; k < 4; k++ {
		c[k] = uint8(math.Round(float64(c0[k])*(1-f) + float64(c1[k])*f))
	}
	return c
}
