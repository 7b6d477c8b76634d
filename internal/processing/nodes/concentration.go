package nodes

import (
	"fmt"
	"sync"

	"github.com/sonoptix/photoacoustic-go/internal/computing"
	"github.com/sonoptix/photoacoustic-go/internal/errors"
	"github.com/sonoptix/photoacoustic-go/internal/processing"
)

// ConcentrationCalculatorNode converts the latest peak amplitude into a gas
// concentration through a 4th-degree calibration polynomial
// a0 + a1·x + a2·x² + a3·x³ + a4·x⁴. Whether x is the raw or a log-scaled
// amplitude is a deployment calibration decision; this node uses the raw
// amplitude as published by the peak finder.
type ConcentrationCalculatorNode struct {
	id string

	mu           sync.Mutex
	coefficients [5]float64
	sourceNodeID string

	state *computing.SharedState
}

// NewConcentrationCalculatorNode creates a calculator. Parameters:
// polynomial (list of 5 coefficients, a0 first) and source_node_id (the peak
// finder to read; empty means the latest result across all finders).
func NewConcentrationCalculatorNode(id string, params map[string]any) (*ConcentrationCalculatorNode, error) {
	n := &ConcentrationCalculatorNode{
		id:           id,
		sourceNodeID: paramString(params, "source_node_id", ""),
	}
	coeffs, err := parsePolynomial(params)
	if err != nil {
		return nil, errors.New(err).
			Component(componentNodes).
			Category(errors.CategoryValidation).
			Context("node_id", id).
			Build()
	}
	n.coefficients = coeffs
	return n, nil
}

func parsePolynomial(params map[string]any) ([5]float64, error) {
	var coeffs [5]float64
	raw, ok := params["polynomial"]
	if !ok {
		return coeffs, nil
	}
	list, ok := raw.([]any)
	if !ok || len(list) != 5 {
		return coeffs, fmt.Errorf("polynomial must be a list of 5 coefficients")
	}
	for i, v := range list {
		switch x := v.(type) {
		case float64:
			coeffs[i] = x
		case int:
			coeffs[i] = float64(x)
		case int64:
			coeffs[i] = float64(x)
		default:
			return coeffs, fmt.Errorf("polynomial coefficient %d must be numeric, got %T", i, v)
		}
	}
	return coeffs, nil
}

// AttachComputingState gives the node its shared state handle and installs
// its calibration polynomial there for external visibility.
func (n *ConcentrationCalculatorNode) AttachComputingState(state *computing.SharedState) {
	n.state = state
	state.SetPolynomialCoefficients(n.coefficients)
}

func (n *ConcentrationCalculatorNode) ID() string       { return n.id }
func (n *ConcentrationCalculatorNode) NodeType() string { return "concentration_calculator" }

func (n *ConcentrationCalculatorNode) Accepts(kind processing.Kind) bool {
	return kind == processing.KindPhotoacousticResult
}

func (n *ConcentrationCalculatorNode) OutputKind() processing.Kind {
	return processing.KindPhotoacousticResult
}

func (n *ConcentrationCalculatorNode) Process(input processing.Data) (processing.Data, error) {
	if input.Kind != processing.KindPhotoacousticResult {
		return processing.Data{}, errors.Newf("concentration calculator requires PhotoacousticResult, got %s", input.Kind).
			Component(componentNodes).
			Category(errors.CategoryNode).
			Context("node_id", n.id).
			Build()
	}

	amplitude := 0.0
	sourceID := ""
	if input.Metadata != nil {
		amplitude = input.Metadata.PeakAmplitude
	}
	if n.state != nil {
		n.mu.Lock()
		source := n.sourceNodeID
		n.mu.Unlock()
		if source != "" {
			if r, ok := n.state.GetPeakResult(source); ok {
				amplitude = r.Amplitude
				sourceID = source
			}
		} else if r, ok := n.state.GetLatestPeakResult(); ok {
			amplitude = r.Amplitude
		}
	}

	ppm := n.evaluate(amplitude)

	out := input.Clone()
	if out.Metadata == nil {
		out.Metadata = &processing.ResultMetadata{}
	}
	out.Metadata.ConcentrationPPM = &ppm

	if n.state != nil {
		target := sourceID
		if target == "" {
			if ids := n.state.PeakFinderNodeIDs(); len(ids) > 0 {
				if r, ok := n.state.GetLatestPeakResult(); ok {
					for _, id := range ids {
						if pr, found := n.state.GetPeakResult(id); found && pr.Timestamp.Equal(r.Timestamp) {
							target = id
							break
						}
					}
				}
			}
		}
		n.state.SetConcentration(target, ppm)
	}

	return out, nil
}

// evaluate applies the polynomial by Horner's rule.
func (n *ConcentrationCalculatorNode) evaluate(x float64) float64 {
	n.mu.Lock()
	c := n.coefficients
	n.mu.Unlock()
	return ((((c[4]*x)+c[3])*x+c[2])*x+c[1])*x + c[0]
}

func (n *ConcentrationCalculatorNode) Reset() {}

func (n *ConcentrationCalculatorNode) SupportsHotReload() bool { return true }

func (n *ConcentrationCalculatorNode) UpdateConfig(params map[string]any) (bool, error) {
	if !hasParam(params, "polynomial", "source_node_id") {
		return false, nil
	}
	applied := false
	if _, ok := params["polynomial"]; ok {
		coeffs, err := parsePolynomial(params)
		if err != nil {
			return false, errors.New(err).
				Component(componentNodes).
				Category(errors.CategoryConfiguration).
				Context("node_id", n.id).
				Build()
		}
		n.mu.Lock()
		n.coefficients = coeffs
		n.mu.Unlock()
		if n.state != nil {
			n.state.SetPolynomialCoefficients(coeffs)
		}
		applied = true
	}
	if src, ok := params["source_node_id"].(string); ok {
		n.mu.Lock()
		n.sourceNodeID = src
		n.mu.Unlock()
		applied = true
	}
	return applied, nil
}

func (n *ConcentrationCalculatorNode) CloneNode() processing.Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	return &ConcentrationCalculatorNode{
		id:           n.id,
		coefficients: n.coefficients,
		sourceNodeID: n.sourceNodeID,
		state:        n.state,
	}
}

func (n *ConcentrationCalculatorNode) Parameters() map[string]any {
	n.mu.Lock()
	defer n.mu.Unlock()
	poly := make([]any, 5)
	for i, c := range n.coefficients {
		poly[i] = c
	}
	return map[string]any{
		"polynomial":     poly,
		"source_node_id": n.sourceNodeID,
	}
}
