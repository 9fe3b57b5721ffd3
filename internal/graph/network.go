package graph

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/vrui-vr/networkviewer/internal/physics"
)

// Color is an RGBA color with 8 bits per channel.
type Color [4]uint8

// defaultNodeColor is the grey assigned to nodes without a color
// property and to nodes unreached by a selection traversal.
var defaultNodeColor = Color{128, 128, 128, 255}

// Node is one node of a network.
type Node struct {
	ID            string
	Size          float64
	Color         Color
	ParticleIndex int32
	linkedNodes   []int32
}

// LinkedNodes returns the indices of the nodes connected to this one.
func (n *Node) LinkedNodes() []int32 { return n.linkedNodes }

// Link connects two nodes with a strength value.
type Link struct {
	Source int32
	Target int32
	Value  float64
}

// Network is a set of nodes and links parsed from a JSON document,
// immutable after parsing except for its selection state.
type Network struct {
	nodes         []Node
	nodeColors    []Color
	propertyNames []string
	properties    []map[string]any
	links         []Link
	selection     map[int32]struct{}
}

// Parse builds a network from a JSON document with a "nodes" list and
// a "links" list. Nodes require a string "id" and may carry a numeric
// "size" and a "#RRGGBB" color string; links reference nodes by id
// and may carry a numeric "value".
func Parse(document []byte) (*Network, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(document, &root); err != nil {
		return nil, fmt.Errorf("document root is not a map: %w", err)
	}

	var rawNodes []json.RawMessage
	if err := json.Unmarshal(root["nodes"], &rawNodes); err != nil {
		return nil, fmt.Errorf("nodes entity is not a list: %w", err)
	}

	n := &Network{
		nodes:      make([]Node, 0, len(rawNodes)),
		properties: make([]map[string]any, 0, len(rawNodes)),
		selection:  make(map[int32]struct{}),
	}

	nodeIndices := make(map[string]int32, len(rawNodes))
	propertyNames := make(map[string]struct{})
	for i, raw := range rawNodes {
		var props map[string]any
		if err := json.Unmarshal(raw, &props); err != nil {
			return nil, fmt.Errorf("node %d is not a map: %w", i, err)
		}

		node, err := parseNode(props)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		if _, exists := nodeIndices[node.ID]; exists {
			return nil, fmt.Errorf("duplicate node id %q", node.ID)
		}
		nodeIndices[node.ID] = int32(i)
		n.nodes = append(n.nodes, node)
		n.properties = append(n.properties, props)

		for name := range props {
			propertyNames[name] = struct{}{}
		}
	}

	n.propertyNames = make([]string, 0, len(propertyNames))
	for name := range propertyNames {
		n.propertyNames = append(n.propertyNames, name)
	}
	sort.Strings(n.propertyNames)

	var rawLinks []json.RawMessage
	if err := json.Unmarshal(root["links"], &rawLinks); err != nil {
		return nil, fmt.Errorf("links entity is not a list: %w", err)
	}

	n.links = make([]Link, 0, len(rawLinks))
	for i, raw := range rawLinks {
		var props map[string]any
		if err := json.Unmarshal(raw, &props); err != nil {
			return nil, fmt.Errorf("link %d is not a map: %w", i, err)
		}

		link, err := parseLink(props, nodeIndices)
		if err != nil {
			return nil, fmt.Errorf("link %d: %w", i, err)
		}
		n.links = append(n.links, link)

		// Connect the two linked nodes
		n.nodes[link.Source].linkedNodes = append(n.nodes[link.Source].linkedNodes, link.Target)
		n.nodes[link.Target].linkedNodes = append(n.nodes[link.Target].linkedNodes, link.Source)
	}

	n.nodeColors = make([]Color, len(n.nodes))
	n.mapColorsFromNodes()

	return n, nil
}

func parseNode(props map[string]any) (Node, error) {
	node := Node{
		Size:          1,
		Color:         defaultNodeColor,
		ParticleIndex: -1,
	}

	id, ok := props["id"].(string)
	if !ok {
		return node, fmt.Errorf("id is missing or not a string")
	}
	node.ID = id

	// A non-numeric size is ignored rather than rejected
	if size, ok := props["size"].(float64); ok {
		node.Size = size
	}

	if c, present := props["color"]; present {
		name, ok := c.(string)
		if !ok {
			return node, fmt.Errorf("color is not a string")
		}
		color, err := parseHexColor(name)
		if err != nil {
			return node, err
		}
		node.Color = color
	}

	return node, nil
}

func parseLink(props map[string]any, nodeIndices map[string]int32) (Link, error) {
	link := Link{Value: 1}

	sourceID, ok := props["source"].(string)
	if !ok {
		return link, fmt.Errorf("source is missing or not a string")
	}
	source, ok := nodeIndices[sourceID]
	if !ok {
		return link, fmt.Errorf("source references unknown node %q", sourceID)
	}
	link.Source = source

	targetID, ok := props["target"].(string)
	if !ok {
		return link, fmt.Errorf("target is missing or not a string")
	}
	target, ok := nodeIndices[targetID]
	if !ok {
		return link, fmt.Errorf("target references unknown node %q", targetID)
	}
	link.Target = target

	if v, present := props["value"]; present {
		value, ok := v.(float64)
		if !ok {
			return link, fmt.Errorf("value is not a number")
		}
		link.Value = value
	}

	return link, nil
}

// parseHexColor converts a "#RRGGBB" color name into an opaque RGBA
// color.
func parseHexColor(name string) (Color, error) {
	if len(name) < 7 || name[0] != '#' {
		return Color{}, fmt.Errorf("invalid color name %q", name)
	}
	var c Color
	for i := 0; i < 3; i++ {
		hi, err := hexDigit(name[1+i*2])
		if err != nil {
			return Color{}, fmt.Errorf("invalid color name %q: %w", name, err)
		}
		lo, err := hexDigit(name[2+i*2])
		if err != nil {
			return Color{}, fmt.Errorf("invalid color name %q: %w", name, err)
		}
		c[i] = uint8(hi*16 + lo)
	}
	c[3] = 255
	return c, nil
}

func hexDigit(b byte) (int, error) {
	switch {
	case b >= '0' && b <= '9':
		return int(b - '0'), nil
	case b >= 'A' && b <= 'F':
		return int(b-'A') + 10, nil
	case b >= 'a' && b <= 'f':
		return int(b-'a') + 10, nil
	}
	return 0, fmt.Errorf("character %q is not a hexadecimal digit", b)
}

// NumNodes returns the number of nodes in the network.
func (n *Network) NumNodes() int { return len(n.nodes) }

// Nodes returns the network's nodes.
func (n *Network) Nodes() []Node { return n.nodes }

// Links returns the network's links.
func (n *Network) Links() []Link { return n.links }

// NodeColors returns the current color of every node.
func (n *Network) NodeColors() []Color { return n.nodeColors }

// PropertyNames returns the sorted names of all properties appearing
// on any node in the document.
func (n *Network) PropertyNames() []string { return n.propertyNames }

// Properties returns the raw document properties of one node.
func (n *Network) Properties(index int32) map[string]any { return n.properties[index] }

// mapColorsFromNodes resets every node's color to its document color.
func (n *Network) mapColorsFromNodes() {
	for i := range n.nodes {
		n.nodeColors[i] = n.nodes[i].Color
	}
}

// CreateParticles adds one particle per node at a random position
// inside a domain sized to the node count, and one distance
// constraint per link with the link's value scaled by linkStrength.
func (n *Network) CreateParticles(ps *physics.ParticleSystem, linkStrength float64) {
	domainSize := math.Cbrt(float64(len(n.nodes)))

	for i := range n.nodes {
		pos := mgl64.Vec3{
			rand.Float64()*2*domainSize - domainSize,
			rand.Float64()*2*domainSize - domainSize,
			rand.Float64()*2*domainSize - domainSize,
		}
		n.nodes[i].ParticleIndex = ps.AddParticle(1, pos, mgl64.Vec3{})
	}

	for _, link := range n.links {
		p0 := n.nodes[link.Source].ParticleIndex
		p1 := n.nodes[link.Target].ParticleIndex
		ps.AddDistConstraint(p0, p1, 1, link.Value*linkStrength)
	}
}
