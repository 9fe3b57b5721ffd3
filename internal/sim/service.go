package sim

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vrui-vr/networkviewer/internal/graph"
	"github.com/vrui-vr/networkviewer/internal/metrics"
	"github.com/vrui-vr/networkviewer/internal/protocol"
	"github.com/vrui-vr/networkviewer/internal/tracing"
)

// Broadcaster delivers encoded frames to connected clients. The
// websocket hub implements it; sends must not block the caller.
type Broadcaster interface {
	// Send queues a frame to one client.
	Send(clientID string, frame []byte)
	// Broadcast queues a frame to every connected client.
	Broadcast(frame []byte)
	// BroadcastOthers queues a frame to every client except the one
	// given.
	BroadcastOthers(clientID string, frame []byte)
}

// clientState is the per-client view the service keeps: which network
// version the client has been sent, and which of its drags are active.
type clientState struct {
	version protocol.Version
	drags   map[protocol.DragID]struct{}
}

// Service owns the network lifecycle: the current document, its
// version, the running simulator, the shared parameter sets, and the
// labeled-node set. It translates decoded protocol requests into
// simulator commands and notification broadcasts.
type Service struct {
	log       *slog.Logger
	broadcast Broadcaster
	workers   int

	// mu guards the lifecycle state below. The simulation goroutine
	// never takes it, so holding it across Simulator.Stop is safe.
	mu           sync.Mutex
	version      protocol.Version
	networkName  string
	document     []byte
	network      *graph.Network
	simulator    *Simulator
	simParams    protocol.SimulationParameters
	renderParams protocol.RenderingParameters
	labeled      map[protocol.NodeID]struct{}

	// Solver tuning applied to simulators as they are created.
	updateInterval time.Duration
	leafCapacity   int

	// clientsMu guards the client registry. It is the only lock the
	// snapshot broadcast path takes.
	clientsMu sync.Mutex
	clients   map[string]*clientState
}

// NewService creates a service with default parameters and no network
// loaded.
func NewService(log *slog.Logger, broadcast Broadcaster, workers int) *Service {
	return &Service{
		log:          log,
		broadcast:    broadcast,
		workers:      workers,
		simParams:    protocol.DefaultSimulationParameters(),
		renderParams: protocol.DefaultRenderingParameters(),
		labeled:      make(map[protocol.NodeID]struct{}),
		clients:      make(map[string]*clientState),
	}
}

// SetUpdateInterval overrides the period between position broadcasts,
// for the current simulator and any created later. Non-positive
// durations are ignored.
func (s *Service) SetUpdateInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateInterval = d
	if s.simulator != nil {
		s.simulator.SetUpdateInterval(d)
	}
}

// SetLeafCapacity overrides the octree leaf capacity for networks
// loaded after the call. Non-positive values are ignored.
func (s *Service) SetLeafCapacity(c int) {
	if c < 1 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leafCapacity = c
}

// HandleMessage decodes one client frame and applies it. Errors are
// reported to the caller for logging; the connection stays usable.
func (s *Service) HandleMessage(clientID string, data []byte) error {
	req, err := protocol.DecodeRequest(data)
	if err != nil {
		return err
	}
	switch m := req.(type) {
	case *protocol.LoadNetworkRequest:
		return s.handleLoadNetwork(m)
	case *protocol.SetSimulationParametersRequest:
		return s.SetSimulationParameters(clientID, m.Params)
	case *protocol.SetRenderingParametersRequest:
		return s.SetRenderingParameters(clientID, m.Params)
	case *protocol.SelectNodeRequest:
		s.handleSelectNode(m)
	case *protocol.ChangeSelectionRequest:
		s.handleChangeSelection(m)
	case *protocol.DisplayLabelRequest:
		s.handleDisplayLabel(clientID, m)
	case *protocol.DragStartRequest:
		s.handleDragStart(clientID, m)
	case *protocol.DragRequest:
		s.handleDrag(clientID, m)
	case *protocol.DragStopRequest:
		s.handleDragStop(clientID, m)
	default:
		return fmt.Errorf("unhandled request %s", req.Type())
	}
	return nil
}

// handleLoadNetwork applies a client upload. The request must name the
// version the client believes is current, so two clients racing to
// upload cannot clobber each other: the loser's request is dropped.
func (s *Service) handleLoadNetwork(m *protocol.LoadNetworkRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.Version != s.version {
		s.log.Warn("dropping stale network upload",
			"name", m.Name, "request_version", m.Version, "current_version", s.version)
		return nil
	}
	return s.loadLocked(m.Name, m.Document)
}

// LoadNetwork replaces the current network unconditionally. This is
// the administrative path used by the HTTP API and offline tools.
func (s *Service) LoadNetwork(name string, document []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(name, document)
}

func (s *Service) loadLocked(name string, document []byte) error {
	// Loads arrive over HTTP and the websocket alike, so the span roots
	// its own trace instead of borrowing a request context.
	_, span := tracing.StartSpan(context.Background(), "sim.LoadNetwork")
	defer span.End()
	span.SetAttributes(
		attribute.String("network", name),
		attribute.Int("document_bytes", len(document)),
	)

	started := time.Now()

	// Parse before tearing anything down: a bad document leaves the
	// current network running.
	network, err := graph.Parse(document)
	if err != nil {
		metrics.NetworkLoadErrors.Inc()
		return fmt.Errorf("parse network %q: %w", name, err)
	}
	span.SetAttributes(
		attribute.Int("nodes", network.NumNodes()),
		attribute.Int("links", len(network.Links())),
	)

	// All active drags die with the old simulator.
	s.clientsMu.Lock()
	for _, cs := range s.clients {
		cs.drags = make(map[protocol.DragID]struct{})
	}
	s.clientsMu.Unlock()

	if s.simulator != nil {
		s.simulator.Stop()
		s.simulator = nil
	}

	s.version = s.version.Next()
	s.networkName = name
	s.document = document
	s.network = network
	s.labeled = make(map[protocol.NodeID]struct{})

	version := s.version
	update := func(positions []mgl64.Vec3) {
		s.broadcastCurrent(version, protocol.EncodeSimulationUpdate(version, positions))
	}
	s.simulator = newSimulator(network, s.simParams, update, s.workers, s.leafCapacity)
	if s.updateInterval > 0 {
		s.simulator.SetUpdateInterval(s.updateInterval)
	}

	// Announce the new network, then reset everyone's selection and
	// label state, then signal that the simulator is live.
	load := (&protocol.LoadNetworkNotification{
		Version:  version,
		Name:     name,
		Document: document,
	}).Encode()
	s.clientsMu.Lock()
	clientCount := len(s.clients)
	for id, cs := range s.clients {
		cs.version = version
		s.broadcast.Send(id, load)
	}
	s.clientsMu.Unlock()
	s.broadcast.Broadcast((&protocol.SelectionSetNotification{Version: version, Nodes: []protocol.NodeID{}}).Encode())
	s.broadcast.Broadcast((&protocol.LabelSetNotification{Version: version, Nodes: []protocol.NodeID{}}).Encode())
	s.broadcast.Broadcast((&protocol.LoadNetworkCompleteNotification{Version: version}).Encode())

	// Nobody is watching yet; save the cycles.
	if clientCount == 0 {
		s.simulator.Pause()
	}

	metrics.NetworkVersion.Set(float64(version))
	metrics.SimParticles.Set(float64(network.NumNodes()))
	metrics.SimConstraints.Set(float64(len(network.Links())))
	metrics.NetworkLoadDuration.Observe(time.Since(started).Seconds())

	s.log.Info("network loaded",
		"name", name,
		"version", version,
		"nodes", network.NumNodes(),
		"links", len(network.Links()),
		"workers", s.workers)
	return nil
}

// SetSimulationParameters replaces the shared solver parameters and
// rebroadcasts them. An empty clientID means the change did not come
// from a connected client, so no one is excluded from the broadcast.
func (s *Service) SetSimulationParameters(clientID string, p protocol.SimulationParameters) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("simulation parameters: %w", err)
	}
	s.mu.Lock()
	s.simParams = p
	if s.simulator != nil {
		s.simulator.SetParameters(p)
	}
	s.mu.Unlock()

	frame := (&protocol.SetSimulationParametersNotification{Params: p}).Encode()
	if clientID == "" {
		s.broadcast.Broadcast(frame)
	} else {
		s.broadcast.BroadcastOthers(clientID, frame)
	}
	return nil
}

// SetRenderingParameters replaces the shared rendering parameters and
// rebroadcasts them. The server never interprets them.
func (s *Service) SetRenderingParameters(clientID string, p protocol.RenderingParameters) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("rendering parameters: %w", err)
	}
	s.mu.Lock()
	s.renderParams = p
	s.mu.Unlock()

	frame := (&protocol.SetRenderingParametersNotification{Params: p}).Encode()
	if clientID == "" {
		s.broadcast.Broadcast(frame)
	} else {
		s.broadcast.BroadcastOthers(clientID, frame)
	}
	return nil
}

// handleSelectNode forwards a selection change to the simulator and
// echoes it to every client, the requester included: the server is
// authoritative for selection state.
func (s *Service) handleSelectNode(m *protocol.SelectNodeRequest) {
	s.mu.Lock()
	ok := m.Version == s.version && s.simulator != nil
	if ok {
		s.simulator.SelectNode(m.Node, m.Mode)
	}
	s.mu.Unlock()
	if ok {
		s.broadcast.Broadcast((&protocol.SelectNodeNotification{
			Version: m.Version,
			Node:    m.Node,
			Mode:    m.Mode,
		}).Encode())
	}
}

func (s *Service) handleChangeSelection(m *protocol.ChangeSelectionRequest) {
	s.mu.Lock()
	ok := m.Version == s.version && s.simulator != nil
	if ok {
		s.simulator.ChangeSelection(m.Command)
	}
	s.mu.Unlock()
	if ok {
		s.broadcast.Broadcast((&protocol.ChangeSelectionNotification{
			Version: m.Version,
			Command: m.Command,
		}).Encode())
	}
}

// handleDisplayLabel updates the service-owned label set and forwards
// the change to the other clients; the requester already applied it
// locally.
func (s *Service) handleDisplayLabel(clientID string, m *protocol.DisplayLabelRequest) {
	s.mu.Lock()
	ok := m.Version == s.version && s.simulator != nil
	if ok {
		switch m.Command {
		case protocol.LabelClear:
			s.labeled = make(map[protocol.NodeID]struct{})
		case protocol.LabelShow:
			if int64(m.Node) < int64(s.network.NumNodes()) {
				s.labeled[m.Node] = struct{}{}
			} else {
				ok = false
			}
		case protocol.LabelHide:
			delete(s.labeled, m.Node)
		}
	}
	s.mu.Unlock()
	if ok {
		s.broadcast.BroadcastOthers(clientID, (&protocol.DisplayLabelNotification{
			Version: m.Version,
			Node:    m.Node,
			Command: m.Command,
		}).Encode())
	}
}

// Drags produce no notifications of their own; the moved positions
// reach all clients through the simulation updates.

func (s *Service) handleDragStart(clientID string, m *protocol.DragStartRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.Version != s.version || s.simulator == nil {
		return
	}
	s.clientsMu.Lock()
	if cs := s.clients[clientID]; cs != nil {
		cs.drags[m.Drag] = struct{}{}
	}
	s.clientsMu.Unlock()
	s.simulator.DragStart(clientID, m.Drag, m.Node, m.Transform)
}

func (s *Service) handleDrag(clientID string, m *protocol.DragRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.Version != s.version || s.simulator == nil {
		return
	}
	s.simulator.Drag(clientID, m.Drag, m.Transform)
}

func (s *Service) handleDragStop(clientID string, m *protocol.DragStopRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.Version != s.version || s.simulator == nil {
		return
	}
	s.clientsMu.Lock()
	if cs := s.clients[clientID]; cs != nil {
		delete(cs.drags, m.Drag)
	}
	s.clientsMu.Unlock()
	s.simulator.DragStop(clientID, m.Drag)
}

// ClientConnected registers a client and brings it up to date: the
// shared parameter sets, then the current network with its selection
// and label sets. The first client resumes a paused simulator.
func (s *Service) ClientConnected(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clientsMu.Lock()
	first := len(s.clients) == 0
	s.clients[clientID] = &clientState{drags: make(map[protocol.DragID]struct{})}
	s.clientsMu.Unlock()

	if s.simulator != nil && first {
		s.log.Info("first client connected, resuming simulation")
		s.simulator.Resume()
	}

	s.broadcast.Send(clientID, (&protocol.SetSimulationParametersNotification{Params: s.simParams}).Encode())
	s.broadcast.Send(clientID, (&protocol.SetRenderingParametersNotification{Params: s.renderParams}).Encode())

	if s.network == nil {
		return
	}
	s.broadcast.Send(clientID, (&protocol.LoadNetworkNotification{
		Version:  s.version,
		Name:     s.networkName,
		Document: s.document,
	}).Encode())
	s.clientsMu.Lock()
	s.clients[clientID].version = s.version
	s.clientsMu.Unlock()

	// The selection lives on the simulation goroutine; fetch it at a
	// tick boundary. The simulator is running here: either this is
	// the first client and it was just resumed, or others are
	// already connected.
	var selection []protocol.NodeID
	if s.simulator != nil {
		for _, index := range s.simulator.Selection() {
			selection = append(selection, protocol.NodeID(index))
		}
	}
	s.broadcast.Send(clientID, (&protocol.SelectionSetNotification{
		Version: s.version,
		Nodes:   selection,
	}).Encode())
	s.broadcast.Send(clientID, (&protocol.LabelSetNotification{
		Version: s.version,
		Nodes:   s.labeledNodes(),
	}).Encode())
}

// labeledNodes returns the label set in ascending order. Callers hold
// mu.
func (s *Service) labeledNodes() []protocol.NodeID {
	nodes := make([]protocol.NodeID, 0, len(s.labeled))
	for n := range s.labeled {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	return nodes
}

// ClientDisconnected releases a client's drags and pauses the
// simulator when the last client leaves.
func (s *Service) ClientDisconnected(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clientsMu.Lock()
	cs := s.clients[clientID]
	delete(s.clients, clientID)
	last := len(s.clients) == 0
	s.clientsMu.Unlock()
	if cs == nil {
		return
	}

	if s.simulator != nil {
		for drag := range cs.drags {
			s.simulator.DragStop(clientID, drag)
		}
		if last {
			s.log.Info("last client disconnected, pausing simulation")
			s.simulator.Pause()
		}
	}
}

// broadcastCurrent sends a frame to every client that has received the
// current network. Called from the simulation goroutine, so it only
// touches the client registry.
func (s *Service) broadcastCurrent(version protocol.Version, frame []byte) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for id, cs := range s.clients {
		if cs.version == version {
			s.broadcast.Send(id, frame)
		}
	}
}

// Status is a point-in-time summary for health and status endpoints.
type Status struct {
	NetworkName string           `json:"network_name,omitempty"`
	Version     protocol.Version `json:"network_version"`
	Nodes       int              `json:"nodes"`
	Links       int              `json:"links"`
	Particles   int              `json:"particles"`
	Clients     int              `json:"clients"`
	Simulating  bool             `json:"simulating"`
	Failed      bool             `json:"failed,omitempty"`
}

// Status reports the current service state.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Version: s.version}
	if s.network != nil {
		st.NetworkName = s.networkName
		st.Nodes = s.network.NumNodes()
		st.Links = len(s.network.Links())
	}
	if s.simulator != nil {
		st.Particles = s.simulator.NumParticles()
		st.Failed = s.simulator.Failed()
		st.Simulating = !s.simulator.Paused() && !st.Failed
	}
	s.clientsMu.Lock()
	st.Clients = len(s.clients)
	s.clientsMu.Unlock()
	return st
}

// Sample reports the collector's view of the simulation, taken under
// one lock acquisition.
func (s *Service) Sample() metrics.SimulationSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	sm := metrics.SimulationSample{NetworkVersion: uint16(s.version)}
	if s.network != nil {
		sm.Constraints = len(s.network.Links())
	}
	if s.simulator != nil {
		sm.Particles = s.simulator.NumParticles()
		sm.Running = !s.simulator.Paused() && !s.simulator.Failed()
	}
	return sm
}

// SimulationParameters returns the current shared solver parameters.
func (s *Service) SimulationParameters() protocol.SimulationParameters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.simParams
}

// RenderingParameters returns the current shared rendering parameters.
func (s *Service) RenderingParameters() protocol.RenderingParameters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renderParams
}

// CurrentNetwork returns the loaded document, or ok=false when none is
// loaded.
func (s *Service) CurrentNetwork() (name string, version protocol.Version, document []byte, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.network == nil {
		return "", 0, nil, false
	}
	return s.networkName, s.version, s.document, true
}

// Shutdown stops the simulator. The service must not be used after.
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.simulator != nil {
		s.simulator.Stop()
		s.simulator = nil
	}
}
