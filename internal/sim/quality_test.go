package sim

import (
	"testing"

	"github.com/vrui-vr/networkviewer/internal/graph"
	"github.com/vrui-vr/networkviewer/internal/protocol"
)

func TestMeasureQualityFullDescentMatchesExact(t *testing.T) {
	params := protocol.DefaultSimulationParameters()
	params.RepellingForceTheta = 0
	h := NewHeadless(chainNetwork(t), params)
	for i := 0; i < 20; i++ {
		h.Step()
	}

	q := h.MeasureQuality(2)
	if q.ForceResidualMax != 0 || q.ForceResidualMean != 0 {
		t.Errorf("expected zero residual with a zero opening angle, got mean %v max %v",
			q.ForceResidualMean, q.ForceResidualMax)
	}
}

func TestMeasureQualityApproximationBounds(t *testing.T) {
	h := NewHeadless(chainNetwork(t), protocol.DefaultSimulationParameters())
	for i := 0; i < 50; i++ {
		h.Step()
	}

	q := h.MeasureQuality(0)
	if q.ForceResidualMean < 0 || q.ForceResidualMax < q.ForceResidualMean {
		t.Errorf("inconsistent residuals: mean %v max %v", q.ForceResidualMean, q.ForceResidualMax)
	}
	if q.ForceResidualMax > 1 {
		t.Errorf("expected the tree walk close to the exact force, got max residual %v", q.ForceResidualMax)
	}
	if q.ConstraintErrorMax < q.ConstraintErrorMean {
		t.Errorf("inconsistent constraint errors: mean %v max %v", q.ConstraintErrorMean, q.ConstraintErrorMax)
	}
	if q.ConstraintErrorMean > 1 {
		t.Errorf("expected relaxed links near their rest length, got mean error %v", q.ConstraintErrorMean)
	}
}

func TestMeasureQualityEmptyNetwork(t *testing.T) {
	network, err := graph.Parse([]byte(`{"nodes":[],"links":[]}`))
	if err != nil {
		t.Fatalf("parsing document: %v", err)
	}
	h := NewHeadless(network, protocol.DefaultSimulationParameters())

	if q := h.MeasureQuality(1); q != (Quality{}) {
		t.Errorf("expected a zero quality report, got %+v", q)
	}
}
