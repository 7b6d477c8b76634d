package nodes

import (
	"math"
	"sync/atomic"

	"github.com/sonoptix/photoacoustic-go/internal/errors"
	"github.com/sonoptix/photoacoustic-go/internal/processing"
)

// gainLimitDB bounds the configurable gain to a sane hardware range.
const gainLimitDB = 60.0

// GainNode scales both channels by a decibel gain. The gain value lives in
// an atomic so hot-reload never races the processing path.
type GainNode struct {
	id      string
	valueDB atomic.Value // float64
	outKind processing.Kind
}

// NewGainNode creates a gain node with the value_db parameter.
func NewGainNode(id string, params map[string]any) (*GainNode, error) {
	db := paramFloat(params, "value_db", 0.0)
	if math.Abs(db) > gainLimitDB {
		return nil, errors.Newf("value_db must be within ±%g dB, got %g", gainLimitDB, db).
			Component(componentNodes).
			Category(errors.CategoryValidation).
			Context("node_id", id).
			Build()
	}
	n := &GainNode{id: id}
	n.valueDB.Store(db)
	return n, nil
}

func (n *GainNode) ID() string       { return n.id }
func (n *GainNode) NodeType() string { return "gain" }

func (n *GainNode) Accepts(kind processing.Kind) bool {
	switch kind {
	case processing.KindAudioFrame, processing.KindDualChannel, processing.KindSingleChannel:
		return true
	default:
		return false
	}
}

// OutputKind follows the propagated input variant: stereo in, stereo out;
// mono in, mono out. Before propagation it defaults to DualChannel, the form
// every first transforming node emits.
func (n *GainNode) OutputKind() processing.Kind {
	if n.outKind == processing.KindSingleChannel {
		return processing.KindSingleChannel
	}
	return processing.KindDualChannel
}

// SetInputKind records the variant this node will receive.
func (n *GainNode) SetInputKind(kind processing.Kind) {
	n.outKind = kind
}

func (n *GainNode) Process(input processing.Data) (processing.Data, error) {
	db := n.valueDB.Load().(float64)
	linear := float32(math.Pow(10, db/20))

	switch input.Kind {
	case processing.KindAudioFrame, processing.KindDualChannel:
		chA := scaled(input.ChannelA, linear)
		chB := scaled(input.ChannelB, linear)
		return processing.NewDualChannel(&input, chA, chB), nil
	case processing.KindSingleChannel:
		return processing.NewSingleChannel(&input, scaled(input.Samples, linear)), nil
	default:
		return processing.Data{}, errors.Newf("gain node cannot process %s", input.Kind).
			Component(componentNodes).
			Category(errors.CategoryNode).
			Context("node_id", n.id).
			Build()
	}
}

func scaled(samples []float32, gain float32) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = s * gain
	}
	return out
}

func (n *GainNode) Reset() {}

func (n *GainNode) SupportsHotReload() bool { return true }

// UpdateConfig applies a new value_db live. Unknown parameter sets are
// ignored with (false, nil) so the consumer can decide on rebuild.
func (n *GainNode) UpdateConfig(params map[string]any) (bool, error) {
	db, present, err := paramFloatStrict(params, "value_db")
	if err != nil {
		return false, errors.New(err).
			Component(componentNodes).
			Category(errors.CategoryConfiguration).
			Context("node_id", n.id).
			Build()
	}
	if !present {
		return false, nil
	}
	if math.Abs(db) > gainLimitDB {
		return false, errors.Newf("value_db must be within ±%g dB, got %g", gainLimitDB, db).
			Component(componentNodes).
			Category(errors.CategoryConfiguration).
			Context("node_id", n.id).
			Build()
	}
	n.valueDB.Store(db)
	return true, nil
}

func (n *GainNode) CloneNode() processing.Node {
	clone := &GainNode{id: n.id, outKind: n.outKind}
	clone.valueDB.Store(n.valueDB.Load())
	return clone
}

func (n *GainNode) Parameters() map[string]any {
	return map[string]any{"value_db": n.valueDB.Load().(float64)}
}
