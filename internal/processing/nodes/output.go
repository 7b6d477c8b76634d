package nodes

import (
	"sync"

	"github.com/sonoptix/photoacoustic-go/internal/processing"
)

// OutputNode is the terminal sink of the graph. It passes data through
// unchanged and retains the most recent non-empty result for inspection.
type OutputNode struct {
	id      string
	outKind processing.Kind

	mu   sync.Mutex
	last processing.Data
}

// NewOutputNode creates an output node.
func NewOutputNode(id string) *OutputNode {
	return &OutputNode{id: id}
}

func (n *OutputNode) ID() string       { return n.id }
func (n *OutputNode) NodeType() string { return "output" }

func (n *OutputNode) Accepts(kind processing.Kind) bool {
	return kind != processing.KindEmpty
}

func (n *OutputNode) OutputKind() processing.Kind {
	if n.outKind == "" {
		return processing.KindPhotoacousticResult
	}
	return n.outKind
}

// SetInputKind records the variant this node will receive.
func (n *OutputNode) SetInputKind(kind processing.Kind) {
	n.outKind = kind
}

func (n *OutputNode) Process(input processing.Data) (processing.Data, error) {
	n.mu.Lock()
	n.last = input
	n.mu.Unlock()
	return input, nil
}

// LastResult returns the most recent value seen by the sink.
func (n *OutputNode) LastResult() processing.Data {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last
}

func (n *OutputNode) Reset() {
	n.mu.Lock()
	n.last = processing.Data{}
	n.mu.Unlock()
}

func (n *OutputNode) SupportsHotReload() bool { return false }

func (n *OutputNode) UpdateConfig(params map[string]any) (bool, error) {
	return false, nil
}

func (n *OutputNode) CloneNode() processing.Node {
	return &OutputNode{id: n.id, outKind: n.outKind}
}

func (n *OutputNode) Parameters() map[string]any {
	return map[string]any{}
}
