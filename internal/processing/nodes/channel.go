package nodes

import (
	"fmt"
	"sync/atomic"

	"github.com/sonoptix/photoacoustic-go/internal/errors"
	"github.com/sonoptix/photoacoustic-go/internal/processing"
)

// Channel targets for the selector node.
const (
	ChannelA = "A"
	ChannelB = "B"
)

// ChannelSelectorNode extracts one channel of a stereo frame.
type ChannelSelectorNode struct {
	id     string
	target atomic.Value // string
}

// NewChannelSelectorNode creates a selector for the target parameter ("A" or "B").
func NewChannelSelectorNode(id string, params map[string]any) (*ChannelSelectorNode, error) {
	target := paramString(params, "target", ChannelA)
	if target != ChannelA && target != ChannelB {
		return nil, errors.Newf("target must be %q or %q, got %q", ChannelA, ChannelB, target).
			Component(componentNodes).
			Category(errors.CategoryValidation).
			Context("node_id", id).
			Build()
	}
	n := &ChannelSelectorNode{id: id}
	n.target.Store(target)
	return n, nil
}

func (n *ChannelSelectorNode) ID() string       { return n.id }
func (n *ChannelSelectorNode) NodeType() string { return "channel_selector" }

func (n *ChannelSelectorNode) Accepts(kind processing.Kind) bool {
	return kind == processing.KindAudioFrame || kind == processing.KindDualChannel
}

func (n *ChannelSelectorNode) OutputKind() processing.Kind {
	return processing.KindSingleChannel
}

func (n *ChannelSelectorNode) Process(input processing.Data) (processing.Data, error) {
	if !n.Accepts(input.Kind) {
		return processing.Data{}, errors.Newf("channel selector cannot process %s", input.Kind).
			Component(componentNodes).
			Category(errors.CategoryNode).
			Context("node_id", n.id).
			Build()
	}
	samples := input.ChannelA
	if n.target.Load().(string) == ChannelB {
		samples = input.ChannelB
	}
	out := make([]float32, len(samples))
	copy(out, samples)
	return processing.NewSingleChannel(&input, out), nil
}

func (n *ChannelSelectorNode) Reset() {}

func (n *ChannelSelectorNode) SupportsHotReload() bool { return true }

func (n *ChannelSelectorNode) UpdateConfig(params map[string]any) (bool, error) {
	target, ok := params["target"]
	if !ok {
		return false, nil
	}
	s, ok := target.(string)
	if !ok || (s != ChannelA && s != ChannelB) {
		return false, errors.Newf("target must be %q or %q, got %v", ChannelA, ChannelB, target).
			Component(componentNodes).
			Category(errors.CategoryConfiguration).
			Context("node_id", n.id).
			Build()
	}
	n.target.Store(s)
	return true, nil
}

func (n *ChannelSelectorNode) CloneNode() processing.Node {
	clone := &ChannelSelectorNode{id: n.id}
	clone.target.Store(n.target.Load())
	return clone
}

func (n *ChannelSelectorNode) Parameters() map[string]any {
	return map[string]any{"target": n.target.Load().(string)}
}

// Mix strategies for the mixer node.
const (
	MixAdd      = "add"
	MixSubtract = "subtract"
	MixAverage  = "average"
	MixWeighted = "weighted"
)

type mixConfig struct {
	strategy string
	weightA  float64
	weightB  float64
}

// ChannelMixerNode combines both channels into one signal.
type ChannelMixerNode struct {
	id  string
	cfg atomic.Value // mixConfig
}

// NewChannelMixerNode creates a mixer with the strategy parameter and, for
// the weighted strategy, weight_a/weight_b.
func NewChannelMixerNode(id string, params map[string]any) (*ChannelMixerNode, error) {
	cfg, err := parseMixConfig(params, mixConfig{strategy: MixAverage, weightA: 0.5, weightB: 0.5})
	if err != nil {
		return nil, errors.New(err).
			Component(componentNodes).
			Category(errors.CategoryValidation).
			Context("node_id", id).
			Build()
	}
	n := &ChannelMixerNode{id: id}
	n.cfg.Store(cfg)
	return n, nil
}

func parseMixConfig(params map[string]any, base mixConfig) (mixConfig, error) {
	cfg := base
	cfg.strategy = paramString(params, "strategy", base.strategy)
	switch cfg.strategy {
	case MixAdd, MixSubtract, MixAverage:
	case MixWeighted:
		cfg.weightA = paramFloat(params, "weight_a", base.weightA)
		cfg.weightB = paramFloat(params, "weight_b", base.weightB)
	default:
		return cfg, fmt.Errorf("unknown mix strategy %q", cfg.strategy)
	}
	return cfg, nil
}

func (n *ChannelMixerNode) ID() string       { return n.id }
func (n *ChannelMixerNode) NodeType() string { return "channel_mixer" }

func (n *ChannelMixerNode) Accepts(kind processing.Kind) bool {
	return kind == processing.KindAudioFrame || kind == processing.KindDualChannel
}

func (n *ChannelMixerNode) OutputKind() processing.Kind {
	return processing.KindSingleChannel
}

func (n *ChannelMixerNode) Process(input processing.Data) (processing.Data, error) {
	if !n.Accepts(input.Kind) {
		return processing.Data{}, errors.Newf("channel mixer cannot process %s", input.Kind).
			Component(componentNodes).
			Category(errors.CategoryNode).
			Context("node_id", n.id).
			Build()
	}
	cfg := n.cfg.Load().(mixConfig)
	length := len(input.ChannelA)
	if len(input.ChannelB) < length {
		length = len(input.ChannelB)
	}
	out := make([]float32, length)
	for i := 0; i < length; i++ {
		a, b := input.ChannelA[i], input.ChannelB[i]
		switch cfg.strategy {
		case MixAdd:
			out[i] = a + b
		case MixSubtract:
			out[i] = a - b
		case MixAverage:
			out[i] = (a + b) / 2
		case MixWeighted:
			out[i] = float32(float64(a)*cfg.weightA + float64(b)*cfg.weightB)
		}
	}
	return processing.NewSingleChannel(&input, out), nil
}

func (n *ChannelMixerNode) Reset() {}

func (n *ChannelMixerNode) SupportsHotReload() bool { return true }

func (n *ChannelMixerNode) UpdateConfig(params map[string]any) (bool, error) {
	if !hasParam(params, "strategy", "weight_a", "weight_b") {
		return false, nil
	}
	cfg, err := parseMixConfig(params, n.cfg.Load().(mixConfig))
	if err != nil {
		return false, errors.New(err).
			Component(componentNodes).
			Category(errors.CategoryConfiguration).
			Context("node_id", n.id).
			Build()
	}
	n.cfg.Store(cfg)
	return true, nil
}

func (n *ChannelMixerNode) CloneNode() processing.Node {
	clone := &ChannelMixerNode{id: n.id}
	clone.cfg.Store(n.cfg.Load())
	return clone
}

func (n *ChannelMixerNode) Parameters() map[string]any {
	cfg := n.cfg.Load().(mixConfig)
	p := map[string]any{"strategy": cfg.strategy}
	if cfg.strategy == MixWeighted {
		p["weight_a"] = cfg.weightA
		p["weight_b"] = cfg.weightB
	}
	return p
}
