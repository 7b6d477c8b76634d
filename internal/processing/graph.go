package processing

import (
	"log/slog"
	"sort"
	"time"

	"github.com/sonoptix/photoacoustic-go/internal/errors"
	"github.com/sonoptix/photoacoustic-go/internal/logging"
)

// componentProcessing tags errors raised by this package.
const componentProcessing = "processing"

// Graph is a directed acyclic graph of processing nodes. The graph owns its
// nodes exclusively; external code refers to nodes by id only. Not safe for
// concurrent use: the consumer task is the only caller, and external readers
// receive serialized snapshots.
type Graph struct {
	id           string
	nodes        map[string]Node
	successors   map[string][]string
	predecessors map[string][]string
	outputNode   string

	topoCache []string // invalidated on structural change

	stats       map[string]*NodeStatistics
	frameBudget time.Duration
	logger      *slog.Logger
}

// NewGraph creates an empty graph.
func NewGraph(id string) *Graph {
	logger := logging.ForService("processing")
	if logger == nil {
		logger = slog.Default()
	}
	return &Graph{
		id:           id,
		nodes:        make(map[string]Node),
		successors:   make(map[string][]string),
		predecessors: make(map[string][]string),
		stats:        make(map[string]*NodeStatistics),
		logger:       logger.With("component", "graph", "graph_id", id),
	}
}

// ID returns the graph id.
func (g *Graph) ID() string {
	return g.id
}

// SetFrameBudget sets the nominal frame period used for the efficiency
// figure in the performance summary.
func (g *Graph) SetFrameBudget(d time.Duration) {
	g.frameBudget = d
}

// AddNode inserts a node. Ids are unique within one graph.
func (g *Graph) AddNode(node Node) error {
	if node == nil {
		return errors.Newf("node cannot be nil").
			Component(componentProcessing).
			Category(errors.CategoryValidation).
			Build()
	}
	id := node.ID()
	if _, exists := g.nodes[id]; exists {
		return errors.Newf("duplicate node id: %s", id).
			Component(componentProcessing).
			Category(errors.CategoryConflict).
			Context("node_id", id).
			Build()
	}
	g.nodes[id] = node
	g.stats[id] = &NodeStatistics{NodeID: id, NodeType: node.NodeType()}
	g.topoCache = nil
	return nil
}

// Connect adds the directed edge from -> to. Both endpoints must exist;
// variant compatibility is checked by Validate.
func (g *Graph) Connect(from, to string) error {
	if _, ok := g.nodes[from]; !ok {
		return g.unknownNode(from)
	}
	if _, ok := g.nodes[to]; !ok {
		return g.unknownNode(to)
	}
	if from == to {
		return errors.Newf("self connection on node %s", from).
			Component(componentProcessing).
			Category(errors.CategoryGraph).
			Context("node_id", from).
			Build()
	}
	for _, existing := range g.successors[from] {
		if existing == to {
			return errors.Newf("connection %s -> %s already exists", from, to).
				Component(componentProcessing).
				Category(errors.CategoryConflict).
				Build()
		}
	}
	// Variant compatibility is checked by Validate after kind propagation,
	// not here: edge insertion order must not matter.
	g.successors[from] = append(g.successors[from], to)
	g.predecessors[to] = append(g.predecessors[to], from)
	g.topoCache = nil
	return nil
}

// SetOutputNode designates the terminal node whose outputs Execute returns.
func (g *Graph) SetOutputNode(id string) error {
	if _, ok := g.nodes[id]; !ok {
		return g.unknownNode(id)
	}
	g.outputNode = id
	return nil
}

// OutputNode returns the designated output node id.
func (g *Graph) OutputNode() string {
	return g.outputNode
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// ConnectionCount returns the number of edges.
func (g *Graph) ConnectionCount() int {
	n := 0
	for _, succ := range g.successors {
		n += len(succ)
	}
	return n
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// NodeIDs returns all node ids in ascending order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (g *Graph) unknownNode(id string) error {
	return errors.Newf("unknown node id: %s", id).
		Component(componentProcessing).
		Category(errors.CategoryNotFound).
		Context("node_id", id).
		Build()
}

// Validate checks graph structure: non-empty, acyclic, a designated output
// reachable from every source, and type-compatible edges. It never runs
// during execution; a validated graph cannot raise structure errors later.
func (g *Graph) Validate() error {
	if len(g.nodes) == 0 {
		return errors.Newf("graph is empty").
			Component(componentProcessing).
			Category(errors.CategoryGraph).
			Build()
	}
	if g.outputNode == "" {
		return errors.Newf("no output node designated").
			Component(componentProcessing).
			Category(errors.CategoryGraph).
			Build()
	}
	order, err := g.topologicalOrder()
	if err != nil {
		return err
	}
	// Propagate variants: shape-preserving nodes learn what they will
	// receive so their OutputKind reflects their position in the graph.
	for _, id := range order {
		node := g.nodes[id]
		aware, ok := node.(InputKindAware)
		if !ok {
			continue
		}
		if preds := g.predecessors[id]; len(preds) > 0 {
			aware.SetInputKind(g.nodes[preds[0]].OutputKind())
		} else {
			aware.SetInputKind(KindAudioFrame)
		}
	}
	// Connect does not check variant compatibility; check every edge now
	// that the kinds have been propagated.
	for from, succ := range g.successors {
		src := g.nodes[from]
		for _, to := range succ {
			if !g.nodes[to].Accepts(src.OutputKind()) {
				return errors.Newf("type mismatch on edge %s -> %s", from, to).
					Component(componentProcessing).
					Category(errors.CategoryGraph).
					Context("from", from).
					Context("to", to).
					Build()
			}
		}
	}
	// The output must be reachable from every source node.
	reaches := g.reachableTo(g.outputNode)
	for id := range g.nodes {
		if len(g.predecessors[id]) == 0 && !reaches[id] {
			return errors.Newf("source node %s cannot reach output %s", id, g.outputNode).
				Component(componentProcessing).
				Category(errors.CategoryGraph).
				Context("node_id", id).
				Build()
		}
	}
	return nil
}

// reachableTo returns the set of nodes from which target is reachable,
// including target itself.
func (g *Graph) reachableTo(target string) map[string]bool {
	reached := map[string]bool{target: true}
	queue := []string{target}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, pred := range g.predecessors[cur] {
			if !reached[pred] {
				reached[pred] = true
				queue = append(queue, pred)
			}
		}
	}
	return reached
}

// topologicalOrder returns the cached stable topological order, computing it
// on structural change. Ties between ready nodes break by ascending id so
// that repeated executions of the same structure use the same order.
func (g *Graph) topologicalOrder() ([]string, error) {
	if g.topoCache != nil {
		return g.topoCache, nil
	}

	inDegree := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		inDegree[id] = len(g.predecessors[id])
	}
	ready := make([]string, 0, len(g.nodes))
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		cur := ready[0]
		ready = ready[1:]
		order = append(order, cur)

		released := make([]string, 0, len(g.successors[cur]))
		for _, next := range g.successors[cur] {
			inDegree[next]--
			if inDegree[next] == 0 {
				released = append(released, next)
			}
		}
		if len(released) > 0 {
			ready = append(ready, released...)
			sort.Strings(ready)
		}
	}

	if len(order) != len(g.nodes) {
		return nil, errors.Newf("graph contains a cycle").
			Component(componentProcessing).
			Category(errors.CategoryGraph).
			Build()
	}
	g.topoCache = order
	return order, nil
}

// Execute feeds input through the graph in topological order and returns the
// outputs produced by the designated output node, one per processed input
// path. Source nodes receive the graph input; every other node receives each
// of its predecessors' outputs in turn. A node receiving Empty is skipped and
// emits Empty. A node error aborts the frame without touching downstream
// state; the graph stays usable for the next frame.
func (g *Graph) Execute(input Data) ([]Data, error) {
	order, err := g.topologicalOrder()
	if err != nil {
		return nil, err
	}

	results := make(map[string][]Data, len(g.nodes))
	var outputs []Data

	for _, id := range order {
		node := g.nodes[id]

		var inputs []Data
		preds := g.predecessors[id]
		if len(preds) == 0 {
			inputs = []Data{input}
		} else {
			for _, pred := range preds {
				inputs = append(inputs, results[pred]...)
			}
		}

		nodeOutputs := make([]Data, 0, len(inputs))
		processed := false
		start := time.Now()
		for _, in := range inputs {
			if in.IsEmpty() {
				nodeOutputs = append(nodeOutputs, Empty())
				continue
			}
			processed = true
			out, err := node.Process(in)
			if err != nil {
				g.stats[id].ErrorCount++
				g.logger.Warn("node execution failed",
					"node_id", id,
					"node_type", node.NodeType(),
					"frame_number", in.FrameNumber,
					"error", err)
				return nil, errors.New(err).
					Component(componentProcessing).
					Category(errors.CategoryNode).
					Context("node_id", id).
					Context("frame_number", in.FrameNumber).
					Build()
			}
			nodeOutputs = append(nodeOutputs, out)
		}
		if processed {
			g.stats[id].record(time.Since(start))
		}

		results[id] = nodeOutputs
		if id == g.outputNode {
			for _, out := range nodeOutputs {
				if !out.IsEmpty() {
					outputs = append(outputs, out)
				}
			}
		}
	}
	return outputs, nil
}

// Reset clears every node's internal state.
func (g *Graph) Reset() {
	for _, node := range g.nodes {
		node.Reset()
	}
}

// Statistics returns a copy of all per-node statistics.
func (g *Graph) Statistics() map[string]NodeStatistics {
	out := make(map[string]NodeStatistics, len(g.stats))
	for id, ns := range g.stats {
		out[id] = *ns
	}
	return out
}

// GetNodeStatistics returns the statistics for one node.
func (g *Graph) GetNodeStatistics(id string) (NodeStatistics, bool) {
	ns, ok := g.stats[id]
	if !ok {
		return NodeStatistics{}, false
	}
	return *ns, true
}

// ResetStatistics zeroes every node's statistics.
func (g *Graph) ResetStatistics() {
	for id, node := range g.nodes {
		g.stats[id] = &NodeStatistics{NodeID: id, NodeType: node.NodeType()}
	}
}

// ImportStatistics carries statistics over from a previous graph for nodes
// that survive a rebuild, matched by id.
func (g *Graph) ImportStatistics(prev map[string]NodeStatistics) {
	for id, ns := range prev {
		if _, ok := g.nodes[id]; ok {
			imported := ns
			g.stats[id] = &imported
		}
	}
}

// GetPerformanceSummary aggregates per-node statistics into the monitoring
// summary shape.
func (g *Graph) GetPerformanceSummary() PerformanceSummary {
	return buildSummary(g.stats, g.ConnectionCount(), g.frameBudget)
}
