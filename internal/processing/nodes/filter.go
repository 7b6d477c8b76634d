package nodes

import (
	"fmt"

	"github.com/sonoptix/photoacoustic-go/internal/errors"
	"github.com/sonoptix/photoacoustic-go/internal/filters"
	"github.com/sonoptix/photoacoustic-go/internal/processing"
)

// Filter types recognized by the filter node.
const (
	FilterBandpass = "bandpass"
	FilterLowpass  = "lowpass"
	FilterHighpass = "highpass"
)

type filterParams struct {
	filterType string
	center     float64
	bandwidth  float64
	cutoff     float64
	sampleRate float64
	order      int
}

// FilterNode runs a biquad SOS cascade over each channel: a Butterworth
// cascade for lowpass and highpass; for bandpass, order/2 identical
// constant-peak-gain sections, which is not a Butterworth response. Per-channel
// filter state survives across frames; a hot-reload that keeps (type, order)
// retunes coefficients in place and preserves state, while an order change
// rebuilds the cascades with cleared state.
type FilterNode struct {
	id     string
	params filterParams

	chainA *filters.Chain
	chainB *filters.Chain

	outKind processing.Kind
}

// NewFilterNode creates a filter node from its parameter map.
func NewFilterNode(id string, params map[string]any) (*FilterNode, error) {
	fp, err := parseFilterParams(params)
	if err != nil {
		return nil, errors.New(err).
			Component(componentNodes).
			Category(errors.CategoryValidation).
			Context("node_id", id).
			Build()
	}
	n := &FilterNode{id: id, params: fp}
	if err := n.rebuildChains(); err != nil {
		return nil, err
	}
	return n, nil
}

func parseFilterParams(params map[string]any) (filterParams, error) {
	fp := filterParams{
		filterType: paramString(params, "type", FilterBandpass),
		center:     paramFloat(params, "center", 1000),
		bandwidth:  paramFloat(params, "bandwidth", 100),
		cutoff:     paramFloat(params, "cutoff", 1000),
		sampleRate: paramFloat(params, "sample_rate", 48000),
		order:      paramInt(params, "order", 4),
	}
	switch fp.filterType {
	case FilterBandpass, FilterLowpass, FilterHighpass:
	default:
		return fp, fmt.Errorf("unknown filter type %q", fp.filterType)
	}
	return fp, nil
}

func (n *FilterNode) designSections() ([]filters.Biquad, error) {
	switch n.params.filterType {
	case FilterBandpass:
		return filters.Bandpass(n.params.center, n.params.bandwidth, n.params.sampleRate, n.params.order)
	case FilterLowpass:
		return filters.Lowpass(n.params.cutoff, n.params.sampleRate, n.params.order)
	case FilterHighpass:
		return filters.Highpass(n.params.cutoff, n.params.sampleRate, n.params.order)
	default:
		return nil, fmt.Errorf("unknown filter type %q", n.params.filterType)
	}
}

func (n *FilterNode) rebuildChains() error {
	sections, err := n.designSections()
	if err != nil {
		return errors.New(err).
			Component(componentNodes).
			Category(errors.CategoryValidation).
			Context("node_id", n.id).
			Build()
	}
	sectionsB := make([]filters.Biquad, len(sections))
	copy(sectionsB, sections)
	n.chainA = filters.NewChain(sections)
	n.chainB = filters.NewChain(sectionsB)
	return nil
}

func (n *FilterNode) ID() string       { return n.id }
func (n *FilterNode) NodeType() string { return "filter" }

func (n *FilterNode) Accepts(kind processing.Kind) bool {
	switch kind {
	case processing.KindAudioFrame, processing.KindDualChannel, processing.KindSingleChannel:
		return true
	default:
		return false
	}
}

func (n *FilterNode) OutputKind() processing.Kind {
	if n.outKind == processing.KindSingleChannel {
		return processing.KindSingleChannel
	}
	return processing.KindDualChannel
}

// SetInputKind records the variant this node will receive.
func (n *FilterNode) SetInputKind(kind processing.Kind) {
	n.outKind = kind
}

func (n *FilterNode) Process(input processing.Data) (processing.Data, error) {
	switch input.Kind {
	case processing.KindAudioFrame, processing.KindDualChannel:
		chA := make([]float32, len(input.ChannelA))
		chB := make([]float32, len(input.ChannelB))
		copy(chA, input.ChannelA)
		copy(chB, input.ChannelB)
		n.chainA.ProcessBlock(chA)
		n.chainB.ProcessBlock(chB)
		return processing.NewDualChannel(&input, chA, chB), nil
	case processing.KindSingleChannel:
		samples := make([]float32, len(input.Samples))
		copy(samples, input.Samples)
		n.chainA.ProcessBlock(samples)
		return processing.NewSingleChannel(&input, samples), nil
	default:
		return processing.Data{}, errors.Newf("filter node cannot process %s", input.Kind).
			Component(componentNodes).
			Category(errors.CategoryNode).
			Context("node_id", n.id).
			Build()
	}
}

// Reset zeroes the per-channel filter history.
func (n *FilterNode) Reset() {
	n.chainA.Reset()
	n.chainB.Reset()
}

func (n *FilterNode) SupportsHotReload() bool { return true }

// UpdateConfig retunes the filter. Same (type, order): coefficients change
// under the running state. Different order: the cascades are rebuilt with
// cleared state. A type change is not absorbed; the consumer rebuilds the
// node. Invalid parameters leave the node untouched.
func (n *FilterNode) UpdateConfig(params map[string]any) (bool, error) {
	if !hasParam(params, "type", "center", "bandwidth", "cutoff", "sample_rate", "order") {
		return false, nil
	}

	next := n.params
	if v, ok, err := paramFloatStrict(params, "center"); err != nil {
		return false, n.configError(err)
	} else if ok {
		next.center = v
	}
	if v, ok, err := paramFloatStrict(params, "bandwidth"); err != nil {
		return false, n.configError(err)
	} else if ok {
		next.bandwidth = v
	}
	if v, ok, err := paramFloatStrict(params, "cutoff"); err != nil {
		return false, n.configError(err)
	} else if ok {
		next.cutoff = v
	}
	if v, ok, err := paramFloatStrict(params, "sample_rate"); err != nil {
		return false, n.configError(err)
	} else if ok {
		next.sampleRate = v
	}
	if _, ok := params["order"]; ok {
		next.order = paramInt(params, "order", n.params.order)
	}
	if t := paramString(params, "type", n.params.filterType); t != n.params.filterType {
		// Changing the filter family means different state semantics;
		// let the consumer rebuild the node from scratch.
		return false, nil
	}

	probe := &FilterNode{id: n.id, params: next}
	sections, err := probe.designSections()
	if err != nil {
		return false, n.configError(err)
	}

	sectionsB := make([]filters.Biquad, len(sections))
	copy(sectionsB, sections)

	if next.order == n.params.order {
		n.chainA.Retune(sections)
		n.chainB.Retune(sectionsB)
		n.params = next
		return true, nil
	}

	// Order changed: new cascade shape, state cannot carry over.
	n.chainA = filters.NewChain(sections)
	n.chainB = filters.NewChain(sectionsB)
	n.params = next
	return true, nil
}

func (n *FilterNode) configError(err error) error {
	return errors.New(err).
		Component(componentNodes).
		Category(errors.CategoryConfiguration).
		Context("node_id", n.id).
		Build()
}

func (n *FilterNode) CloneNode() processing.Node {
	clone := &FilterNode{id: n.id, params: n.params, outKind: n.outKind}
	// Clone starts with fresh filter state.
	_ = clone.rebuildChains()
	return clone
}

func (n *FilterNode) Parameters() map[string]any {
	p := map[string]any{
		"type":        n.params.filterType,
		"sample_rate": n.params.sampleRate,
		"order":       n.params.order,
	}
	if n.params.filterType == FilterBandpass {
		p["center"] = n.params.center
		p["bandwidth"] = n.params.bandwidth
	} else {
		p["cutoff"] = n.params.cutoff
	}
	return p
}
