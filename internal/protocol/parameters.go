package protocol

import "fmt"

// RepellingForceMode selects the inter-node repulsion law.
type RepellingForceMode uint8

const (
	// RepelLinear applies force proportional to 1/distance.
	RepelLinear RepellingForceMode = iota
	// RepelQuadratic applies force proportional to 1/distance².
	RepelQuadratic
)

func (m RepellingForceMode) String() string {
	switch m {
	case RepelLinear:
		return "linear"
	case RepelQuadratic:
		return "quadratic"
	}
	return fmt.Sprintf("RepellingForceMode(%d)", uint8(m))
}

// SimulationParameters steer the layout solver. They are shared by all
// clients; any client may replace them and the server rebroadcasts the
// full set.
type SimulationParameters struct {
	Attenuation             float64            `json:"attenuation"`
	CentralForce            float64            `json:"central_force"`
	RepellingForceMode      RepellingForceMode `json:"repelling_force_mode"`
	RepellingForce          float64            `json:"repelling_force"`
	RepellingForceTheta     float64            `json:"repelling_force_theta"`
	RepellingForceCutoff    float64            `json:"repelling_force_cutoff"`
	NumRelaxationIterations uint8              `json:"num_relaxation_iterations"`
	LinkStrength            float64            `json:"link_strength"`
}

// simulationParametersWireSize is the encoded size of the struct:
// six float64 fields plus two single-byte fields.
const simulationParametersWireSize = 6*8 + 2

// DefaultSimulationParameters returns the parameter set a freshly
// started server announces.
func DefaultSimulationParameters() SimulationParameters {
	return SimulationParameters{
		Attenuation:             0.5,
		CentralForce:            5,
		RepellingForceMode:      RepelLinear,
		RepellingForce:          2,
		RepellingForceTheta:     0.25,
		RepellingForceCutoff:    0.01,
		NumRelaxationIterations: 20,
		LinkStrength:            0.5,
	}
}

// Validate rejects parameter sets the solver cannot run with.
func (p *SimulationParameters) Validate() error {
	if p.Attenuation < 0 || p.Attenuation > 1 {
		return fmt.Errorf("attenuation %g outside [0, 1]", p.Attenuation)
	}
	if p.RepellingForceMode > RepelQuadratic {
		return fmt.Errorf("unknown repelling force mode %d", p.RepellingForceMode)
	}
	if p.NumRelaxationIterations == 0 {
		return fmt.Errorf("relaxation iteration count must be positive")
	}
	if p.RepellingForceTheta < 0 {
		return fmt.Errorf("repelling force theta %g is negative", p.RepellingForceTheta)
	}
	if p.LinkStrength < 0 || p.LinkStrength > 1 {
		return fmt.Errorf("link strength %g outside [0, 1]", p.LinkStrength)
	}
	return nil
}

func (p *SimulationParameters) append(b []byte) []byte {
	b = appendF64(b, p.Attenuation)
	b = appendF64(b, p.CentralForce)
	b = appendU8(b, uint8(p.RepellingForceMode))
	b = appendF64(b, p.RepellingForce)
	b = appendF64(b, p.RepellingForceTheta)
	b = appendF64(b, p.RepellingForceCutoff)
	b = appendU8(b, p.NumRelaxationIterations)
	b = appendF64(b, p.LinkStrength)
	return b
}

func (p *SimulationParameters) read(r *reader) {
	p.Attenuation = r.f64()
	p.CentralForce = r.f64()
	p.RepellingForceMode = RepellingForceMode(r.u8())
	p.RepellingForce = r.f64()
	p.RepellingForceTheta = r.f64()
	p.RepellingForceCutoff = r.f64()
	p.NumRelaxationIterations = r.u8()
	p.LinkStrength = r.f64()
}

// RenderingParameters control client-side drawing. The server never
// interprets them; it only keeps the shared copy and rebroadcasts it.
type RenderingParameters struct {
	NodeRadius       float64 `json:"node_radius"`
	UseNodeSize      bool    `json:"use_node_size"`
	NodeSizeExponent float64 `json:"node_size_exponent"`
	LinkLineWidth    float32 `json:"link_line_width"`
	LinkOpacity      float32 `json:"link_opacity"`
}

const renderingParametersWireSize = 8 + 1 + 8 + 4 + 4

// DefaultRenderingParameters returns the rendering defaults announced
// to clients before anyone customizes them.
func DefaultRenderingParameters() RenderingParameters {
	return RenderingParameters{
		NodeRadius:       0.5,
		UseNodeSize:      false,
		NodeSizeExponent: 0.75,
		LinkLineWidth:    1,
		LinkOpacity:      1,
	}
}

// Validate rejects rendering settings no client could draw with.
func (p *RenderingParameters) Validate() error {
	if p.NodeRadius <= 0 {
		return fmt.Errorf("node radius %g must be positive", p.NodeRadius)
	}
	if p.LinkLineWidth < 0 {
		return fmt.Errorf("link line width %g is negative", p.LinkLineWidth)
	}
	if p.LinkOpacity < 0 || p.LinkOpacity > 1 {
		return fmt.Errorf("link opacity %g outside [0, 1]", p.LinkOpacity)
	}
	return nil
}

func (p *RenderingParameters) append(b []byte) []byte {
	b = appendF64(b, p.NodeRadius)
	if p.UseNodeSize {
		b = appendU8(b, 1)
	} else {
		b = appendU8(b, 0)
	}
	b = appendF64(b, p.NodeSizeExponent)
	b = appendF32(b, p.LinkLineWidth)
	b = appendF32(b, p.LinkOpacity)
	return b
}

func (p *RenderingParameters) read(r *reader) {
	p.NodeRadius = r.f64()
	p.UseNodeSize = r.u8() != 0
	p.NodeSizeExponent = r.f64()
	p.LinkLineWidth = r.f32()
	p.LinkOpacity = r.f32()
}
