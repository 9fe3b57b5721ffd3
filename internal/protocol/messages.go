package protocol

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// Request is a message sent from a client to the server.
type Request interface {
	// Type returns the frame's leading type byte.
	Type() MessageType
	// Encode builds the complete wire frame.
	Encode() []byte

	isRequest()
}

// Notification is a message sent from the server to clients.
type Notification interface {
	Type() MessageType
	Encode() []byte

	isNotification()
}

// Client requests.

// LoadNetworkRequest asks the server to replace the current network
// with the given document. Version must match the server's current
// version, so two clients racing to upload cannot clobber each other.
type LoadNetworkRequest struct {
	Version  Version
	Name     string
	Document []byte
}

func (m *LoadNetworkRequest) Type() MessageType { return MsgLoadNetworkRequest }
func (m *LoadNetworkRequest) isRequest()        {}

func (m *LoadNetworkRequest) Encode() []byte {
	b := make([]byte, 0, 1+2+2+len(m.Name)+4+len(m.Document))
	b = appendU8(b, uint8(MsgLoadNetworkRequest))
	b = appendU16(b, uint16(m.Version))
	b = appendString(b, m.Name)
	b = appendBytes(b, m.Document)
	return b
}

func (m *LoadNetworkRequest) decode(r *reader) {
	m.Version = Version(r.u16())
	m.Name = r.string()
	m.Document = r.bytes()
}

// SetSimulationParametersRequest replaces the shared solver parameters.
type SetSimulationParametersRequest struct {
	Params SimulationParameters
}

func (m *SetSimulationParametersRequest) Type() MessageType { return MsgSetSimulationParametersRequest }
func (m *SetSimulationParametersRequest) isRequest()        {}

func (m *SetSimulationParametersRequest) Encode() []byte {
	b := make([]byte, 0, 1+simulationParametersWireSize)
	b = appendU8(b, uint8(MsgSetSimulationParametersRequest))
	return m.Params.append(b)
}

func (m *SetSimulationParametersRequest) decode(r *reader) {
	m.Params.read(r)
}

// SetRenderingParametersRequest replaces the shared rendering
// parameters.
type SetRenderingParametersRequest struct {
	Params RenderingParameters
}

func (m *SetRenderingParametersRequest) Type() MessageType { return MsgSetRenderingParametersRequest }
func (m *SetRenderingParametersRequest) isRequest()        {}

func (m *SetRenderingParametersRequest) Encode() []byte {
	b := make([]byte, 0, 1+renderingParametersWireSize)
	b = appendU8(b, uint8(MsgSetRenderingParametersRequest))
	return m.Params.append(b)
}

func (m *SetRenderingParametersRequest) decode(r *reader) {
	m.Params.read(r)
}

// SelectNodeRequest adds, removes, or toggles a single node in the
// shared selection. Mode is one of the SelectMode constants.
type SelectNodeRequest struct {
	Version Version
	Node    NodeID
	Mode    uint8
}

func (m *SelectNodeRequest) Type() MessageType { return MsgSelectNodeRequest }
func (m *SelectNodeRequest) isRequest()        {}

func (m *SelectNodeRequest) Encode() []byte {
	b := make([]byte, 0, 1+2+4+1)
	b = appendU8(b, uint8(MsgSelectNodeRequest))
	b = appendU16(b, uint16(m.Version))
	b = appendU32(b, uint32(m.Node))
	b = appendU8(b, m.Mode)
	return b
}

func (m *SelectNodeRequest) decode(r *reader) {
	m.Version = Version(r.u16())
	m.Node = NodeID(r.u32())
	m.Mode = r.u8()
}

// ChangeSelectionRequest clears, grows, or shrinks the shared
// selection as a whole. Command is one of the Selection constants.
type ChangeSelectionRequest struct {
	Version Version
	Command uint8
}

func (m *ChangeSelectionRequest) Type() MessageType { return MsgChangeSelectionRequest }
func (m *ChangeSelectionRequest) isRequest()        {}

func (m *ChangeSelectionRequest) Encode() []byte {
	b := make([]byte, 0, 1+2+1)
	b = appendU8(b, uint8(MsgChangeSelectionRequest))
	b = appendU16(b, uint16(m.Version))
	b = appendU8(b, m.Command)
	return b
}

func (m *ChangeSelectionRequest) decode(r *reader) {
	m.Version = Version(r.u16())
	m.Command = r.u8()
}

// DisplayLabelRequest shows or hides a node's label, or clears the
// whole label set. Command is one of the Label constants; Node is
// ignored for LabelClear.
type DisplayLabelRequest struct {
	Version Version
	Node    NodeID
	Command uint8
}

func (m *DisplayLabelRequest) Type() MessageType { return MsgDisplayLabelRequest }
func (m *DisplayLabelRequest) isRequest()        {}

func (m *DisplayLabelRequest) Encode() []byte {
	b := make([]byte, 0, 1+2+4+1)
	b = appendU8(b, uint8(MsgDisplayLabelRequest))
	b = appendU16(b, uint16(m.Version))
	b = appendU32(b, uint32(m.Node))
	b = appendU8(b, m.Command)
	return b
}

func (m *DisplayLabelRequest) decode(r *reader) {
	m.Version = Version(r.u16())
	m.Node = NodeID(r.u32())
	m.Command = r.u8()
}

// DragStartRequest begins dragging the given node with an input
// device. Transform is the device's initial pose, from which the grab
// offset is derived; subsequent DragRequests move the grabbed nodes
// rigidly with the device. If the node is selected, the entire
// selection is dragged.
type DragStartRequest struct {
	Version   Version
	Drag      DragID
	Device    uint32
	Node      NodeID
	Transform DragTransform
}

func (m *DragStartRequest) Type() MessageType { return MsgDragStartRequest }
func (m *DragStartRequest) isRequest()        {}

func (m *DragStartRequest) Encode() []byte {
	b := make([]byte, 0, 1+2+2+4+4+dragTransformWireSize)
	b = appendU8(b, uint8(MsgDragStartRequest))
	b = appendU16(b, uint16(m.Version))
	b = appendU16(b, uint16(m.Drag))
	b = appendU32(b, m.Device)
	b = appendU32(b, uint32(m.Node))
	return m.Transform.append(b)
}

func (m *DragStartRequest) decode(r *reader) {
	m.Version = Version(r.u16())
	m.Drag = DragID(r.u16())
	m.Device = r.u32()
	m.Node = NodeID(r.u32())
	m.Transform.read(r)
}

// DragRequest updates the device pose of an active drag.
type DragRequest struct {
	Version   Version
	Drag      DragID
	Transform DragTransform
}

func (m *DragRequest) Type() MessageType { return MsgDragRequest }
func (m *DragRequest) isRequest()        {}

func (m *DragRequest) Encode() []byte {
	b := make([]byte, 0, 1+2+2+dragTransformWireSize)
	b = appendU8(b, uint8(MsgDragRequest))
	b = appendU16(b, uint16(m.Version))
	b = appendU16(b, uint16(m.Drag))
	return m.Transform.append(b)
}

func (m *DragRequest) decode(r *reader) {
	m.Version = Version(r.u16())
	m.Drag = DragID(r.u16())
	m.Transform.read(r)
}

// DragStopRequest ends an active drag and releases its nodes back to
// the solver.
type DragStopRequest struct {
	Version Version
	Drag    DragID
}

func (m *DragStopRequest) Type() MessageType { return MsgDragStopRequest }
func (m *DragStopRequest) isRequest()        {}

func (m *DragStopRequest) Encode() []byte {
	b := make([]byte, 0, 1+2+2)
	b = appendU8(b, uint8(MsgDragStopRequest))
	b = appendU16(b, uint16(m.Version))
	b = appendU16(b, uint16(m.Drag))
	return b
}

func (m *DragStopRequest) decode(r *reader) {
	m.Version = Version(r.u16())
	m.Drag = DragID(r.u16())
}

// Server notifications.

// LoadNetworkNotification announces a new network to a client,
// carrying the full document.
type LoadNetworkNotification struct {
	Version  Version
	Name     string
	Document []byte
}

func (m *LoadNetworkNotification) Type() MessageType { return MsgLoadNetworkNotification }
func (m *LoadNetworkNotification) isNotification()   {}

func (m *LoadNetworkNotification) Encode() []byte {
	b := make([]byte, 0, 1+2+2+len(m.Name)+4+len(m.Document))
	b = appendU8(b, uint8(MsgLoadNetworkNotification))
	b = appendU16(b, uint16(m.Version))
	b = appendString(b, m.Name)
	b = appendBytes(b, m.Document)
	return b
}

func (m *LoadNetworkNotification) decode(r *reader) {
	m.Version = Version(r.u16())
	m.Name = r.string()
	m.Document = r.bytes()
}

// LoadNetworkCompleteNotification announces that the simulation for
// the given network version is constructed and producing updates.
type LoadNetworkCompleteNotification struct {
	Version Version
}

func (m *LoadNetworkCompleteNotification) Type() MessageType {
	return MsgLoadNetworkCompleteNotification
}
func (m *LoadNetworkCompleteNotification) isNotification() {}

func (m *LoadNetworkCompleteNotification) Encode() []byte {
	b := make([]byte, 0, 1+2)
	b = appendU8(b, uint8(MsgLoadNetworkCompleteNotification))
	b = appendU16(b, uint16(m.Version))
	return b
}

func (m *LoadNetworkCompleteNotification) decode(r *reader) {
	m.Version = Version(r.u16())
}

func appendNodeSet(b []byte, version Version, nodes []NodeID) []byte {
	b = appendU16(b, uint16(version))
	b = appendU32(b, uint32(len(nodes)))
	for _, n := range nodes {
		b = appendU32(b, uint32(n))
	}
	return b
}

func readNodeSet(r *reader) (Version, []NodeID) {
	version := Version(r.u16())
	n := int(r.u32())
	if r.err != nil || r.off+4*n > len(r.b) {
		r.fail()
		return version, nil
	}
	nodes := make([]NodeID, n)
	for i := range nodes {
		nodes[i] = NodeID(r.u32())
	}
	return version, nodes
}

// SelectionSetNotification carries the complete shared selection,
// sent to clients that join while a network is loaded.
type SelectionSetNotification struct {
	Version Version
	Nodes   []NodeID
}

func (m *SelectionSetNotification) Type() MessageType { return MsgSelectionSetNotification }
func (m *SelectionSetNotification) isNotification()   {}

func (m *SelectionSetNotification) Encode() []byte {
	b := make([]byte, 0, 1+2+4+4*len(m.Nodes))
	b = appendU8(b, uint8(MsgSelectionSetNotification))
	return appendNodeSet(b, m.Version, m.Nodes)
}

func (m *SelectionSetNotification) decode(r *reader) {
	m.Version, m.Nodes = readNodeSet(r)
}

// LabelSetNotification carries the complete set of labeled nodes,
// sent to clients that join while a network is loaded.
type LabelSetNotification struct {
	Version Version
	Nodes   []NodeID
}

func (m *LabelSetNotification) Type() MessageType { return MsgLabelSetNotification }
func (m *LabelSetNotification) isNotification()   {}

func (m *LabelSetNotification) Encode() []byte {
	b := make([]byte, 0, 1+2+4+4*len(m.Nodes))
	b = appendU8(b, uint8(MsgLabelSetNotification))
	return appendNodeSet(b, m.Version, m.Nodes)
}

func (m *LabelSetNotification) decode(r *reader) {
	m.Version, m.Nodes = readNodeSet(r)
}

// SetSimulationParametersNotification announces the current solver
// parameters, either after a change or to a newly connected client.
type SetSimulationParametersNotification struct {
	Params SimulationParameters
}

func (m *SetSimulationParametersNotification) Type() MessageType {
	return MsgSetSimulationParametersNotification
}
func (m *SetSimulationParametersNotification) isNotification() {}

func (m *SetSimulationParametersNotification) Encode() []byte {
	b := make([]byte, 0, 1+simulationParametersWireSize)
	b = appendU8(b, uint8(MsgSetSimulationParametersNotification))
	return m.Params.append(b)
}

func (m *SetSimulationParametersNotification) decode(r *reader) {
	m.Params.read(r)
}

// SetRenderingParametersNotification announces the current rendering
// parameters.
type SetRenderingParametersNotification struct {
	Params RenderingParameters
}

func (m *SetRenderingParametersNotification) Type() MessageType {
	return MsgSetRenderingParametersNotification
}
func (m *SetRenderingParametersNotification) isNotification() {}

func (m *SetRenderingParametersNotification) Encode() []byte {
	b := make([]byte, 0, 1+renderingParametersWireSize)
	b = appendU8(b, uint8(MsgSetRenderingParametersNotification))
	return m.Params.append(b)
}

func (m *SetRenderingParametersNotification) decode(r *reader) {
	m.Params.read(r)
}

// SelectNodeNotification echoes an applied SelectNodeRequest to all
// clients, the requester included.
type SelectNodeNotification struct {
	Version Version
	Node    NodeID
	Mode    uint8
}

func (m *SelectNodeNotification) Type() MessageType { return MsgSelectNodeNotification }
func (m *SelectNodeNotification) isNotification()   {}

func (m *SelectNodeNotification) Encode() []byte {
	b := make([]byte, 0, 1+2+4+1)
	b = appendU8(b, uint8(MsgSelectNodeNotification))
	b = appendU16(b, uint16(m.Version))
	b = appendU32(b, uint32(m.Node))
	b = appendU8(b, m.Mode)
	return b
}

func (m *SelectNodeNotification) decode(r *reader) {
	m.Version = Version(r.u16())
	m.Node = NodeID(r.u32())
	m.Mode = r.u8()
}

// ChangeSelectionNotification echoes an applied ChangeSelectionRequest
// to all clients.
type ChangeSelectionNotification struct {
	Version Version
	Command uint8
}

func (m *ChangeSelectionNotification) Type() MessageType { return MsgChangeSelectionNotification }
func (m *ChangeSelectionNotification) isNotification()   {}

func (m *ChangeSelectionNotification) Encode() []byte {
	b := make([]byte, 0, 1+2+1)
	b = appendU8(b, uint8(MsgChangeSelectionNotification))
	b = appendU16(b, uint16(m.Version))
	b = appendU8(b, m.Command)
	return b
}

func (m *ChangeSelectionNotification) decode(r *reader) {
	m.Version = Version(r.u16())
	m.Command = r.u8()
}

// DisplayLabelNotification forwards an applied DisplayLabelRequest to
// the other clients; the requester already updated its own label set.
type DisplayLabelNotification struct {
	Version Version
	Node    NodeID
	Command uint8
}

func (m *DisplayLabelNotification) Type() MessageType { return MsgDisplayLabelNotification }
func (m *DisplayLabelNotification) isNotification()   {}

func (m *DisplayLabelNotification) Encode() []byte {
	b := make([]byte, 0, 1+2+4+1)
	b = appendU8(b, uint8(MsgDisplayLabelNotification))
	b = appendU16(b, uint16(m.Version))
	b = appendU32(b, uint32(m.Node))
	b = appendU8(b, m.Command)
	return b
}

func (m *DisplayLabelNotification) decode(r *reader) {
	m.Version = Version(r.u16())
	m.Node = NodeID(r.u32())
	m.Command = r.u8()
}

// SimulationUpdate carries one snapshot of all particle positions,
// truncated to float32 for the wire.
type SimulationUpdate struct {
	Version   Version
	Positions [][3]float32
}

func (m *SimulationUpdate) Type() MessageType { return MsgSimulationUpdate }
func (m *SimulationUpdate) isNotification()   {}

func (m *SimulationUpdate) Encode() []byte {
	b := make([]byte, 0, 1+2+4+12*len(m.Positions))
	b = appendU8(b, uint8(MsgSimulationUpdate))
	b = appendU16(b, uint16(m.Version))
	b = appendU32(b, uint32(len(m.Positions)))
	for _, p := range m.Positions {
		b = appendF32(b, p[0])
		b = appendF32(b, p[1])
		b = appendF32(b, p[2])
	}
	return b
}

func (m *SimulationUpdate) decode(r *reader) {
	m.Version = Version(r.u16())
	n := int(r.u32())
	if r.err != nil || r.off+12*n > len(r.b) {
		r.fail()
		return
	}
	m.Positions = make([][3]float32, n)
	for i := range m.Positions {
		m.Positions[i][0] = r.f32()
		m.Positions[i][1] = r.f32()
		m.Positions[i][2] = r.f32()
	}
}

// EncodeSimulationUpdate builds a SimulationUpdate frame straight from
// solver positions, skipping the intermediate float32 slice. This is
// the snapshot hot path, called once per broadcast interval.
func EncodeSimulationUpdate(version Version, positions []mgl64.Vec3) []byte {
	b := make([]byte, 0, 1+2+4+12*len(positions))
	b = appendU8(b, uint8(MsgSimulationUpdate))
	b = appendU16(b, uint16(version))
	b = appendU32(b, uint32(len(positions)))
	for _, p := range positions {
		b = appendF32(b, float32(p[0]))
		b = appendF32(b, float32(p[1]))
		b = appendF32(b, float32(p[2]))
	}
	return b
}

// Decoding.

type decoder interface {
	decode(r *reader)
}

// DecodeRequest parses a frame received from a client.
func DecodeRequest(data []byte) (Request, error) {
	if len(data) == 0 {
		return nil, ErrEmptyMessage
	}
	t := MessageType(data[0])
	var m Request
	switch t {
	case MsgLoadNetworkRequest:
		m = &LoadNetworkRequest{}
	case MsgSetSimulationParametersRequest:
		m = &SetSimulationParametersRequest{}
	case MsgSetRenderingParametersRequest:
		m = &SetRenderingParametersRequest{}
	case MsgSelectNodeRequest:
		m = &SelectNodeRequest{}
	case MsgChangeSelectionRequest:
		m = &ChangeSelectionRequest{}
	case MsgDisplayLabelRequest:
		m = &DisplayLabelRequest{}
	case MsgDragStartRequest:
		m = &DragStartRequest{}
	case MsgDragRequest:
		m = &DragRequest{}
	case MsgDragStopRequest:
		m = &DragStopRequest{}
	default:
		return nil, fmt.Errorf("%w 0x%02x", ErrUnknownMessage, uint8(t))
	}
	if err := decodeBody(m.(decoder), data); err != nil {
		return nil, fmt.Errorf("decode %s: %w", t, err)
	}
	return m, nil
}

// DecodeNotification parses a frame received from the server.
func DecodeNotification(data []byte) (Notification, error) {
	if len(data) == 0 {
		return nil, ErrEmptyMessage
	}
	t := MessageType(data[0])
	var m Notification
	switch t {
	case MsgLoadNetworkNotification:
		m = &LoadNetworkNotification{}
	case MsgLoadNetworkCompleteNotification:
		m = &LoadNetworkCompleteNotification{}
	case MsgSelectionSetNotification:
		m = &SelectionSetNotification{}
	case MsgLabelSetNotification:
		m = &LabelSetNotification{}
	case MsgSetSimulationParametersNotification:
		m = &SetSimulationParametersNotification{}
	case MsgSetRenderingParametersNotification:
		m = &SetRenderingParametersNotification{}
	case MsgSelectNodeNotification:
		m = &SelectNodeNotification{}
	case MsgChangeSelectionNotification:
		m = &ChangeSelectionNotification{}
	case MsgDisplayLabelNotification:
		m = &DisplayLabelNotification{}
	case MsgSimulationUpdate:
		m = &SimulationUpdate{}
	default:
		return nil, fmt.Errorf("%w 0x%02x", ErrUnknownMessage, uint8(t))
	}
	if err := decodeBody(m.(decoder), data); err != nil {
		return nil, fmt.Errorf("decode %s: %w", t, err)
	}
	return m, nil
}

func decodeBody(m decoder, data []byte) error {
	r := &reader{b: data, off: 1}
	m.decode(r)
	return r.finish()
}
