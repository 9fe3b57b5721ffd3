package sim

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/vrui-vr/networkviewer/internal/graph"
	"github.com/vrui-vr/networkviewer/internal/metrics"
	"github.com/vrui-vr/networkviewer/internal/protocol"
)

// command is one queued mutation, executed on the simulation goroutine
// at the start of the next tick. The union is closed: every variant
// lives in this file.
type command interface {
	execute(s *Simulator)
}

func (s *Simulator) queue(c command) {
	s.commandsMu.Lock()
	s.commands = append(s.commands, c)
	s.commandsMu.Unlock()
}

// SelectNode changes one node's selection state. Unknown modes and
// out-of-range nodes are ignored.
func (s *Simulator) SelectNode(node protocol.NodeID, mode uint8) {
	metrics.SimCommandsTotal.WithLabelValues("select_node").Inc()
	s.queue(selectNodeCommand{node: node, mode: mode})
}

// ChangeSelection clears, grows, or shrinks the selection as a whole.
func (s *Simulator) ChangeSelection(cmd uint8) {
	metrics.SimCommandsTotal.WithLabelValues("change_selection").Inc()
	s.queue(changeSelectionCommand{command: cmd})
}

// DragStart begins a drag operation, identified by the client and the
// client-chosen drag ID. If the picked node is selected the whole
// selection is grabbed, otherwise just the picked node.
func (s *Simulator) DragStart(client string, drag protocol.DragID, node protocol.NodeID, initial protocol.DragTransform) {
	metrics.SimCommandsTotal.WithLabelValues("drag_start").Inc()
	s.queue(dragStartCommand{
		key:     dragKey{client: client, drag: drag},
		node:    node,
		initial: initial,
	})
}

// Drag updates the device pose of an active drag. Unknown drags are
// ignored, which covers poses still in flight after a DragStop.
func (s *Simulator) Drag(client string, drag protocol.DragID, transform protocol.DragTransform) {
	metrics.SimCommandsTotal.WithLabelValues("drag").Inc()
	s.queue(dragCommand{
		key:       dragKey{client: client, drag: drag},
		transform: transform,
	})
}

// DragStop ends an active drag and returns its particles to the
// solver with their saved masses.
func (s *Simulator) DragStop(client string, drag protocol.DragID) {
	metrics.SimCommandsTotal.WithLabelValues("drag_stop").Inc()
	s.queue(dragStopCommand{key: dragKey{client: client, drag: drag}})
}

// dragKey identifies an active drag. Drag IDs are only unique per
// client, so the client is part of the key.
type dragKey struct {
	client string
	drag   protocol.DragID
}

// draggedParticle is one particle grabbed by an active drag. The grab
// position is stored in device-local space so the particle follows the
// device rigidly; the particle is pinned by zeroing its inverse mass
// for the duration of the drag.
type draggedParticle struct {
	index        int32
	savedInvMass float64
	dragPos      mgl64.Vec3
}

type activeDrag struct {
	transform protocol.DragTransform
	particles []draggedParticle
}

type selectNodeCommand struct {
	node protocol.NodeID
	mode uint8
}

func (c selectNodeCommand) execute(s *Simulator) {
	if c.mode > protocol.SelectModeToggle {
		return
	}
	if int64(c.node) >= int64(s.network.NumNodes()) {
		return
	}
	s.network.SelectNode(int32(c.node), graph.SelectMode(c.mode))
}

type changeSelectionCommand struct {
	command uint8
}

func (c changeSelectionCommand) execute(s *Simulator) {
	switch c.command {
	case protocol.SelectionClear:
		s.network.ClearSelection()
	case protocol.SelectionGrow:
		s.network.GrowSelection()
	case protocol.SelectionShrink:
		s.network.ShrinkSelection()
	}
}

type dragStartCommand struct {
	key     dragKey
	node    protocol.NodeID
	initial protocol.DragTransform
}

func (c dragStartCommand) execute(s *Simulator) {
	if int64(c.node) >= int64(s.network.NumNodes()) {
		return
	}

	ad := s.activeDrags[c.key]
	if ad == nil {
		ad = &activeDrag{}
		s.activeDrags[c.key] = ad
	}
	ad.transform = c.initial

	if s.network.IsSelected(int32(c.node)) {
		// Grab the entire selection.
		for _, index := range s.network.Selection() {
			s.dragParticle(ad, index)
		}
	} else {
		s.dragParticle(ad, int32(c.node))
	}

	// Every candidate may already belong to another drag; an empty
	// grab leaves no active drag behind.
	if len(ad.particles) == 0 {
		delete(s.activeDrags, c.key)
	}
	metrics.SimActiveDrags.Set(float64(len(s.activeDrags)))
}

// dragParticle adds one particle to a drag unless another drag already
// owns it.
func (s *Simulator) dragParticle(ad *activeDrag, index int32) {
	if s.nodeDrags[index] {
		return
	}
	ad.particles = append(ad.particles, draggedParticle{
		index:        index,
		savedInvMass: s.ps.InvMass(index),
		dragPos:      ad.transform.InverseTransform(s.ps.Position(index)),
	})
	s.ps.SetInvMass(index, 0)
	s.nodeDrags[index] = true
}

type dragCommand struct {
	key       dragKey
	transform protocol.DragTransform
}

func (c dragCommand) execute(s *Simulator) {
	if ad, ok := s.activeDrags[c.key]; ok {
		ad.transform = c.transform
	}
}

type dragStopCommand struct {
	key dragKey
}

func (c dragStopCommand) execute(s *Simulator) {
	ad, ok := s.activeDrags[c.key]
	if !ok {
		return
	}
	for i := range ad.particles {
		dp := &ad.particles[i]
		s.ps.SetInvMass(dp.index, dp.savedInvMass)
		s.nodeDrags[dp.index] = false
	}
	delete(s.activeDrags, c.key)
	metrics.SimActiveDrags.Set(float64(len(s.activeDrags)))
}

// Selection returns a copy of the current selection, fetched at a
// tick boundary. The simulator must be running and must not be
// stopped before the reply arrives.
func (s *Simulator) Selection() []int32 {
	reply := make(chan []int32, 1)
	s.queue(selectionQueryCommand{reply: reply})
	return <-reply
}

type selectionQueryCommand struct {
	reply chan []int32
}

func (c selectionQueryCommand) execute(s *Simulator) {
	c.reply <- s.network.Selection()
}
