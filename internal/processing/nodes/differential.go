package nodes

import (
	"math"
	"sync/atomic"

	"github.com/sonoptix/photoacoustic-go/internal/errors"
	"github.com/sonoptix/photoacoustic-go/internal/processing"
)

// DifferentialNode computes the channel difference A−B, the core of the
// dual-microphone photoacoustic measurement: coherent acoustic signal
// subtracts out while the resonance cell signal remains.
type DifferentialNode struct {
	id        string
	normalize atomic.Bool
}

// NewDifferentialNode creates a differential node. The normalize parameter
// rescales the difference to unit peak.
func NewDifferentialNode(id string, params map[string]any) *DifferentialNode {
	n := &DifferentialNode{id: id}
	n.normalize.Store(paramBool(params, "normalize", false))
	return n
}

func (n *DifferentialNode) ID() string       { return n.id }
func (n *DifferentialNode) NodeType() string { return "differential" }

func (n *DifferentialNode) Accepts(kind processing.Kind) bool {
	return kind == processing.KindAudioFrame || kind == processing.KindDualChannel
}

func (n *DifferentialNode) OutputKind() processing.Kind {
	return processing.KindSingleChannel
}

func (n *DifferentialNode) Process(input processing.Data) (processing.Data, error) {
	if !n.Accepts(input.Kind) {
		return processing.Data{}, errors.Newf("differential node cannot process %s", input.Kind).
			Component(componentNodes).
			Category(errors.CategoryNode).
			Context("node_id", n.id).
			Build()
	}
	length := len(input.ChannelA)
	if len(input.ChannelB) < length {
		length = len(input.ChannelB)
	}
	out := make([]float32, length)
	peak := float32(0)
	for i := 0; i < length; i++ {
		d := input.ChannelA[i] - input.ChannelB[i]
		out[i] = d
		if a := float32(math.Abs(float64(d))); a > peak {
			peak = a
		}
	}
	if n.normalize.Load() && peak > 0 {
		inv := 1 / peak
		for i := range out {
			out[i] *= inv
		}
	}
	return processing.NewSingleChannel(&input, out), nil
}

func (n *DifferentialNode) Reset() {}

func (n *DifferentialNode) SupportsHotReload() bool { return true }

func (n *DifferentialNode) UpdateConfig(params map[string]any) (bool, error) {
	v, ok := params["normalize"]
	if !ok {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, errors.Newf("normalize must be a boolean, got %T", v).
			Component(componentNodes).
			Category(errors.CategoryConfiguration).
			Context("node_id", n.id).
			Build()
	}
	n.normalize.Store(b)
	return true, nil
}

func (n *DifferentialNode) CloneNode() processing.Node {
	clone := &DifferentialNode{id: n.id}
	clone.normalize.Store(n.normalize.Load())
	return clone
}

func (n *DifferentialNode) Parameters() map[string]any {
	return map[string]any{"normalize": n.normalize.Load()}
}
