package nodes

import (
	"github.com/sonoptix/photoacoustic-go/internal/errors"
	"github.com/sonoptix/photoacoustic-go/internal/processing"
)

// InputNode is the graph entry point. It accepts raw audio frames and passes
// them through unchanged; when rewrite_timestamps is set it restamps frames
// with the node's own clock.
type InputNode struct {
	id                string
	rewriteTimestamps bool
}

// NewInputNode creates an input node.
func NewInputNode(id string, params map[string]any) *InputNode {
	return &InputNode{
		id:                id,
		rewriteTimestamps: paramBool(params, "rewrite_timestamps", false),
	}
}

func (n *InputNode) ID() string       { return n.id }
func (n *InputNode) NodeType() string { return "input" }

func (n *InputNode) Accepts(kind processing.Kind) bool {
	return kind == processing.KindAudioFrame
}

func (n *InputNode) OutputKind() processing.Kind {
	return processing.KindAudioFrame
}

func (n *InputNode) Process(input processing.Data) (processing.Data, error) {
	if input.Kind != processing.KindAudioFrame {
		return processing.Data{}, errors.Newf("input node requires AudioFrame, got %s", input.Kind).
			Component(componentNodes).
			Category(errors.CategoryNode).
			Context("node_id", n.id).
			Build()
	}
	if n.rewriteTimestamps {
		input.Timestamp = nowMicros()
	}
	return input, nil
}

func (n *InputNode) Reset() {}

func (n *InputNode) SupportsHotReload() bool { return false }

func (n *InputNode) UpdateConfig(params map[string]any) (bool, error) {
	return false, nil
}

func (n *InputNode) CloneNode() processing.Node {
	clone := *n
	return &clone
}

func (n *InputNode) Parameters() map[string]any {
	return map[string]any{"rewrite_timestamps": n.rewriteTimestamps}
}
