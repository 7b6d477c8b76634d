package processing

import (
	"encoding/json"
	"sort"
)

// allKinds enumerates the data variants for accepts-list serialization.
var allKinds = []Kind{
	KindAudioFrame,
	KindDualChannel,
	KindSingleChannel,
	KindPhotoacousticResult,
	KindEmpty,
}

// SerializableNode is the wire representation of one node. Field names are a
// contract with downstream clients; do not rename.
type SerializableNode struct {
	ID                string         `json:"id"`
	NodeType          string         `json:"node_type"`
	AcceptsInputTypes []string       `json:"accepts_input_types"`
	OutputType        string         `json:"output_type"`
	Parameters        map[string]any `json:"parameters"`
	SupportsHotReload bool           `json:"supports_hot_reload"`
	Statistics        NodeStatistics `json:"statistics"`
}

// SerializableConnection is the wire representation of one edge.
type SerializableConnection struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// SerializableGraph is a point-in-time snapshot of the graph for external
// consumers. The graph itself is never shared.
type SerializableGraph struct {
	ID          string                   `json:"id"`
	Nodes       []SerializableNode       `json:"nodes"`
	Connections []SerializableConnection `json:"connections"`
	OutputNode  string                   `json:"output_node"`
	IsValid     bool                     `json:"is_valid"`
	Summary     PerformanceSummary       `json:"statistics"`
}

// ToSerializable snapshots the graph: nodes sorted by id, connections sorted
// by (from, to), so that serializing the same structure twice yields
// byte-identical output.
func (g *Graph) ToSerializable() SerializableGraph {
	nodes := make([]SerializableNode, 0, len(g.nodes))
	for _, id := range g.NodeIDs() {
		node := g.nodes[id]

		accepts := make([]string, 0, 2)
		for _, k := range allKinds {
			if k == KindEmpty {
				continue
			}
			if node.Accepts(k) {
				accepts = append(accepts, string(k))
			}
		}

		params := map[string]any{}
		if p, ok := node.(Parameterized); ok && p.Parameters() != nil {
			params = p.Parameters()
		}

		nodes = append(nodes, SerializableNode{
			ID:                id,
			NodeType:          node.NodeType(),
			AcceptsInputTypes: accepts,
			OutputType:        string(node.OutputKind()),
			Parameters:        params,
			SupportsHotReload: node.SupportsHotReload(),
			Statistics:        *g.stats[id],
		})
	}

	conns := make([]SerializableConnection, 0, g.ConnectionCount())
	for from, succ := range g.successors {
		for _, to := range succ {
			conns = append(conns, SerializableConnection{From: from, To: to})
		}
	}
	sort.Slice(conns, func(i, j int) bool {
		if conns[i].From != conns[j].From {
			return conns[i].From < conns[j].From
		}
		return conns[i].To < conns[j].To
	})

	return SerializableGraph{
		ID:          g.id,
		Nodes:       nodes,
		Connections: conns,
		OutputNode:  g.outputNode,
		IsValid:     g.Validate() == nil,
		Summary:     g.GetPerformanceSummary(),
	}
}

// Marshal renders the canonical JSON used by the API and tests.
func (sg SerializableGraph) Marshal() ([]byte, error) {
	return json.Marshal(sg)
}
