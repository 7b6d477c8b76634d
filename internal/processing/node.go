package processing

import (
	"github.com/sonoptix/photoacoustic-go/internal/computing"
)

// Node is the uniform contract every graph vertex implements.
//
// Process may return Empty() to skip a tick without error. UpdateConfig
// returns (true, nil) when the new parameters were applied live,
// (false, nil) when the node ignored them (the consumer then schedules a
// rebuild), and an error when the parameters are semantically invalid, in
// which case node state is unchanged.
type Node interface {
	ID() string
	NodeType() string

	// Accepts reports whether the node can consume the given variant.
	Accepts(kind Kind) bool
	// OutputKind is the variant the node produces, used for edge
	// validation. Shape-preserving nodes (see InputKindAware) report the
	// kind propagated to them by Validate, and a fixed default before that.
	OutputKind() Kind

	Process(input Data) (Data, error)

	// Reset clears internal state: ring buffers, filter history,
	// accumulators.
	Reset()

	SupportsHotReload() bool
	UpdateConfig(params map[string]any) (bool, error)

	// CloneNode deep-copies the node for rebuild paths. Statistics and
	// transient state are not carried over.
	CloneNode() Node
}

// ComputingStateConsumer is an optional node capability: nodes that publish
// or read shared analytical state receive the handle after construction.
type ComputingStateConsumer interface {
	AttachComputingState(state *computing.SharedState)
}

// Parameterized is an optional capability for serialization: nodes expose a
// snapshot of their current parameters as a free-form object.
type Parameterized interface {
	Parameters() map[string]any
}

// InputKindAware is an optional capability for shape-preserving nodes whose
// output variant follows their input (gain, filter, record, streaming).
// During validation the graph propagates variants along the topological
// order and tells each such node what it will receive, so OutputKind
// reflects the node's actual position in the graph.
type InputKindAware interface {
	SetInputKind(kind Kind)
}
