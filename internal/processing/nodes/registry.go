package nodes

import (
	"github.com/sonoptix/photoacoustic-go/internal/computing"
	"github.com/sonoptix/photoacoustic-go/internal/conf"
	"github.com/sonoptix/photoacoustic-go/internal/errors"
	"github.com/sonoptix/photoacoustic-go/internal/processing"
)

// BuildDeps carries the shared collaborators nodes may need.
type BuildDeps struct {
	ComputingState    *computing.SharedState
	StreamingRegistry *StreamingRegistry
}

// NewNode constructs a node of the given type from its parameter map.
func NewNode(cfg conf.NodeConfig, deps BuildDeps) (processing.Node, error) {
	var (
		node processing.Node
		err  error
	)
	switch cfg.NodeType {
	case "input":
		node = NewInputNode(cfg.ID, cfg.Parameters)
	case "gain":
		node, err = NewGainNode(cfg.ID, cfg.Parameters)
	case "filter":
		node, err = NewFilterNode(cfg.ID, cfg.Parameters)
	case "channel_selector":
		node, err = NewChannelSelectorNode(cfg.ID, cfg.Parameters)
	case "channel_mixer":
		node, err = NewChannelMixerNode(cfg.ID, cfg.Parameters)
	case "differential":
		node = NewDifferentialNode(cfg.ID, cfg.Parameters)
	case "record":
		node, err = NewRecordNode(cfg.ID, cfg.Parameters)
	case "peak_finder":
		node, err = NewPeakFinderNode(cfg.ID, cfg.Parameters)
	case "concentration_calculator":
		node, err = NewConcentrationCalculatorNode(cfg.ID, cfg.Parameters)
	case "output":
		node = NewOutputNode(cfg.ID)
	case "streaming":
		node = NewStreamingNode(cfg.ID, cfg.Parameters, deps.StreamingRegistry)
	case "scripted":
		node, err = NewScriptedNode(cfg.ID, cfg.Parameters)
	default:
		return nil, errors.Newf("unknown node type %q", cfg.NodeType).
			Component(componentNodes).
			Category(errors.CategoryConfiguration).
			Context("node_id", cfg.ID).
			Build()
	}
	if err != nil {
		return nil, err
	}

	if consumer, ok := node.(processing.ComputingStateConsumer); ok && deps.ComputingState != nil {
		consumer.AttachComputingState(deps.ComputingState)
	}
	return node, nil
}

// BuildGraph constructs and wires a graph from configuration. The result is
// not yet validated; callers run Validate before swapping it in.
func BuildGraph(cfg *conf.GraphConfig, deps BuildDeps) (*processing.Graph, error) {
	graph := processing.NewGraph(cfg.ID)
	for i := range cfg.Nodes {
		node, err := NewNode(cfg.Nodes[i], deps)
		if err != nil {
			return nil, err
		}
		if err := graph.AddNode(node); err != nil {
			return nil, err
		}
	}
	for _, conn := range cfg.Connections {
		if err := graph.Connect(conn.From, conn.To); err != nil {
			return nil, err
		}
	}
	if cfg.OutputNode != "" {
		if err := graph.SetOutputNode(cfg.OutputNode); err != nil {
			return nil, err
		}
	}
	return graph, nil
}
