package graph

import (
	"math"
	"reflect"
	"testing"

	"github.com/vrui-vr/networkviewer/internal/physics"
)

const testDocument = `{
	"nodes": [
		{"id": "a", "size": 2.5, "color": "#FF0000", "group": "x"},
		{"id": "b", "color": "#00ff80"},
		{"id": "c", "size": 3}
	],
	"links": [
		{"source": "a", "target": "b", "value": 2},
		{"source": "b", "target": "c"}
	]
}`

func TestParseNetwork(t *testing.T) {
	n, err := Parse([]byte(testDocument))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	if n.NumNodes() != 3 {
		t.Fatalf("expected 3 nodes, got %d", n.NumNodes())
	}
	nodes := n.Nodes()
	if nodes[0].ID != "a" || nodes[1].ID != "b" || nodes[2].ID != "c" {
		t.Errorf("unexpected node ids %q %q %q", nodes[0].ID, nodes[1].ID, nodes[2].ID)
	}
	if nodes[0].Size != 2.5 || nodes[1].Size != 1 || nodes[2].Size != 3 {
		t.Errorf("unexpected node sizes %v %v %v", nodes[0].Size, nodes[1].Size, nodes[2].Size)
	}
	if nodes[0].Color != (Color{255, 0, 0, 255}) {
		t.Errorf("expected node a colored #FF0000, got %v", nodes[0].Color)
	}
	if nodes[1].Color != (Color{0, 255, 128, 255}) {
		t.Errorf("expected node b colored #00ff80, got %v", nodes[1].Color)
	}
	if nodes[2].Color != defaultNodeColor {
		t.Errorf("expected node c in default grey, got %v", nodes[2].Color)
	}

	links := n.Links()
	if len(links) != 2 {
		t.Fatalf("expected 2 links, got %d", len(links))
	}
	if links[0].Source != 0 || links[0].Target != 1 || links[0].Value != 2 {
		t.Errorf("unexpected first link %+v", links[0])
	}
	if links[1].Source != 1 || links[1].Target != 2 || links[1].Value != 1 {
		t.Errorf("unexpected second link %+v", links[1])
	}

	// Adjacency is bidirectional
	if got := nodes[1].LinkedNodes(); len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Errorf("unexpected adjacency for node b: %v", got)
	}
	if got := nodes[2].LinkedNodes(); len(got) != 1 || got[0] != 1 {
		t.Errorf("unexpected adjacency for node c: %v", got)
	}

	want := []string{"color", "group", "id", "size"}
	if !reflect.DeepEqual(n.PropertyNames(), want) {
		t.Errorf("expected property names %v, got %v", want, n.PropertyNames())
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"root not a map", `[1,2,3]`},
		{"nodes missing", `{"links": []}`},
		{"nodes not a list", `{"nodes": {}, "links": []}`},
		{"node not a map", `{"nodes": [17], "links": []}`},
		{"node without id", `{"nodes": [{"size": 1}], "links": []}`},
		{"duplicate node id", `{"nodes": [{"id": "a"}, {"id": "a"}], "links": []}`},
		{"color not a string", `{"nodes": [{"id": "a", "color": 7}], "links": []}`},
		{"color without hash", `{"nodes": [{"id": "a", "color": "red"}], "links": []}`},
		{"color bad hex digit", `{"nodes": [{"id": "a", "color": "#GG0000"}], "links": []}`},
		{"color too short", `{"nodes": [{"id": "a", "color": "#F00"}], "links": []}`},
		{"links missing", `{"nodes": [{"id": "a"}]}`},
		{"link not a map", `{"nodes": [{"id": "a"}], "links": ["x"]}`},
		{"link unknown source", `{"nodes": [{"id": "a"}], "links": [{"source": "z", "target": "a"}]}`},
		{"link unknown target", `{"nodes": [{"id": "a"}], "links": [{"source": "a", "target": "z"}]}`},
		{"link value not a number", `{"nodes": [{"id": "a"}], "links": [{"source": "a", "target": "a", "value": "big"}]}`},
	}

	for _, c := range cases {
		if _, err := Parse([]byte(c.doc)); err == nil {
			t.Errorf("%s: expected a parse error", c.name)
		}
	}
}

func TestParseIgnoresNonNumericSize(t *testing.T) {
	n, err := Parse([]byte(`{"nodes": [{"id": "a", "size": "large"}], "links": []}`))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if got := n.Nodes()[0].Size; got != 1 {
		t.Errorf("expected the default size 1, got %v", got)
	}
}

func pathNetwork(t *testing.T) *Network {
	t.Helper()
	n, err := Parse([]byte(`{
		"nodes": [{"id": "a"}, {"id": "b"}, {"id": "c"}],
		"links": [
			{"source": "a", "target": "b"},
			{"source": "b", "target": "c"}
		]
	}`))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	return n
}

func TestSelectNodeModes(t *testing.T) {
	n := pathNetwork(t)

	n.SelectNode(1, SelectModeSelect)
	if !n.IsSelected(1) || n.SelectionSize() != 1 {
		t.Error("expected node b selected")
	}

	n.SelectNode(1, SelectModeToggle)
	if n.IsSelected(1) || n.SelectionSize() != 0 {
		t.Error("expected toggle to deselect node b")
	}

	n.SelectNode(1, SelectModeToggle)
	if !n.IsSelected(1) {
		t.Error("expected toggle to reselect node b")
	}

	n.SelectNode(1, SelectModeDeselect)
	if n.IsSelected(1) {
		t.Error("expected node b deselected")
	}

	n.SelectNode(0, SelectModeSelect)
	n.SelectNode(2, SelectModeSelect)
	if got := n.Selection(); len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Errorf("expected selection [0 2], got %v", got)
	}
}

// Grow selection on the path a-b-c: {a} grows to {a,b}, then {a,b,c}.
// Shrinking the closed selection {a,b,c} changes nothing; shrinking
// {a,b} drops b for its unselected neighbor c.
func TestGrowShrinkSelectionOnPath(t *testing.T) {
	n := pathNetwork(t)

	n.SelectNode(0, SelectModeSelect)
	n.GrowSelection()
	if got := n.Selection(); !reflect.DeepEqual(got, []int32{0, 1}) {
		t.Fatalf("expected the selection to grow to [0 1], got %v", got)
	}

	n.GrowSelection()
	if got := n.Selection(); !reflect.DeepEqual(got, []int32{0, 1, 2}) {
		t.Fatalf("expected the selection to grow to [0 1 2], got %v", got)
	}

	n.ShrinkSelection()
	if got := n.Selection(); !reflect.DeepEqual(got, []int32{0, 1, 2}) {
		t.Errorf("expected the closed selection to stay [0 1 2], got %v", got)
	}

	n.SelectNode(2, SelectModeDeselect)
	n.ShrinkSelection()
	if got := n.Selection(); !reflect.DeepEqual(got, []int32{0}) {
		t.Errorf("expected the selection to shrink to [0], got %v", got)
	}
}

func TestSelectionDistanceColors(t *testing.T) {
	n := pathNetwork(t)

	// Selecting a colors the path red, middle, magenta
	n.SelectNode(0, SelectModeSelect)
	colors := n.NodeColors()
	if colors[0] != selectionDistanceColors[0] {
		t.Errorf("expected the selected node red, got %v", colors[0])
	}
	if colors[2] != selectionDistanceColors[5] {
		t.Errorf("expected the farthest node magenta, got %v", colors[2])
	}
	if colors[1] == colors[0] || colors[1] == colors[2] {
		t.Errorf("expected the middle node between the gradient ends, got %v", colors[1])
	}
}

func TestSelectionColorsUnreachedNodesGrey(t *testing.T) {
	n, err := Parse([]byte(`{
		"nodes": [{"id": "a"}, {"id": "b"}, {"id": "x", "color": "#123456"}],
		"links": [{"source": "a", "target": "b"}]
	}`))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	n.SelectNode(0, SelectModeSelect)
	if got := n.NodeColors()[2]; got != defaultNodeColor {
		t.Errorf("expected the disconnected node grey, got %v", got)
	}
}

func TestClearSelectionRestoresDocumentColors(t *testing.T) {
	n, err := Parse([]byte(`{
		"nodes": [{"id": "a", "color": "#112233"}, {"id": "b", "color": "#445566"}],
		"links": [{"source": "a", "target": "b"}]
	}`))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	want := append([]Color(nil), n.NodeColors()...)

	n.SelectNode(0, SelectModeSelect)
	if reflect.DeepEqual(n.NodeColors(), want) {
		t.Fatal("expected selection coloring to change node colors")
	}

	n.ClearSelection()
	if !reflect.DeepEqual(n.NodeColors(), want) {
		t.Errorf("expected document colors restored, got %v", n.NodeColors())
	}

	// Deselecting the last node restores colors as well
	n.SelectNode(1, SelectModeSelect)
	n.SelectNode(1, SelectModeDeselect)
	if !reflect.DeepEqual(n.NodeColors(), want) {
		t.Errorf("expected document colors after emptying the selection, got %v", n.NodeColors())
	}
}

func TestCreateParticles(t *testing.T) {
	n, err := Parse([]byte(`{
		"nodes": [{"id": "a"}, {"id": "b"}, {"id": "c"}, {"id": "d"}],
		"links": [
			{"source": "a", "target": "b", "value": 3},
			{"source": "b", "target": "c"},
			{"source": "c", "target": "d", "value": 0.5}
		]
	}`))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	ps := physics.NewParticleSystem(physics.DefaultLeafCapacity)
	n.CreateParticles(ps, 0.5)

	if ps.NumParticles() != 4 {
		t.Fatalf("expected 4 particles, got %d", ps.NumParticles())
	}
	if ps.NumDistConstraints() != 3 {
		t.Errorf("expected 3 distance constraints, got %d", ps.NumDistConstraints())
	}

	domainSize := math.Cbrt(4)
	seen := make(map[int32]bool)
	for _, node := range n.Nodes() {
		pi := node.ParticleIndex
		if pi < 0 || pi >= int32(ps.NumParticles()) {
			t.Fatalf("node %q has invalid particle index %d", node.ID, pi)
		}
		if seen[pi] {
			t.Fatalf("particle index %d assigned twice", pi)
		}
		seen[pi] = true

		if got := ps.InvMass(pi); got != 1 {
			t.Errorf("expected inverse mass 1 for node %q, got %v", node.ID, got)
		}
		pos := ps.Position(pi)
		for c := 0; c < 3; c++ {
			if pos[c] < -domainSize || pos[c] >= domainSize {
				t.Errorf("node %q placed outside the domain at %v", node.ID, pos)
			}
		}
	}
}
