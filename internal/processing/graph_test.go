package processing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonoptix/photoacoustic-go/internal/acquisition"
)

// stubNode is a minimal node for graph structure tests.
type stubNode struct {
	id       string
	accepts  []Kind
	output   Kind
	fail     bool
	executed *[]string
}

func newStubNode(id string, accepts []Kind, output Kind) *stubNode {
	return &stubNode{id: id, accepts: accepts, output: output}
}

func (n *stubNode) ID() string       { return n.id }
func (n *stubNode) NodeType() string { return "stub" }

func (n *stubNode) Accepts(kind Kind) bool {
	for _, k := range n.accepts {
		if k == kind {
			return true
		}
	}
	return false
}

func (n *stubNode) OutputKind() Kind { return n.output }

func (n *stubNode) Process(input Data) (Data, error) {
	if n.executed != nil {
		*n.executed = append(*n.executed, n.id)
	}
	if n.fail {
		return Data{}, fmt.Errorf("stub failure")
	}
	out := input
	out.Kind = n.output
	return out, nil
}

func (n *stubNode) Reset()                  {}
func (n *stubNode) SupportsHotReload() bool { return false }
func (n *stubNode) UpdateConfig(params map[string]any) (bool, error) {
	return false, nil
}
func (n *stubNode) CloneNode() Node {
	clone := *n
	return &clone
}

func anyKinds() []Kind {
	return []Kind{KindAudioFrame, KindDualChannel, KindSingleChannel, KindPhotoacousticResult}
}

func testFrame() Data {
	return FromAudioFrame(acquisition.AudioFrame{
		ChannelA:    []float32{0.1, 0.2, 0.3},
		ChannelB:    []float32{0.4, 0.5, 0.6},
		SampleRate:  48000,
		FrameNumber: 1,
	})
}

func linearGraph(t *testing.T, ids ...string) *Graph {
	t.Helper()
	g := NewGraph("test")
	for _, id := range ids {
		require.NoError(t, g.AddNode(newStubNode(id, anyKinds(), KindDualChannel)))
	}
	for i := 1; i < len(ids); i++ {
		require.NoError(t, g.Connect(ids[i-1], ids[i]))
	}
	require.NoError(t, g.SetOutputNode(ids[len(ids)-1]))
	return g
}

func TestGraph_ValidateAcceptsLinearChain(t *testing.T) {
	g := linearGraph(t, "input", "middle", "sink")
	assert.NoError(t, g.Validate())
}

func TestGraph_ValidateRejectsEmpty(t *testing.T) {
	g := NewGraph("empty")
	assert.Error(t, g.Validate())
}

func TestGraph_ValidateRejectsMissingOutput(t *testing.T) {
	g := NewGraph("test")
	require.NoError(t, g.AddNode(newStubNode("a", anyKinds(), KindDualChannel)))
	assert.Error(t, g.Validate())
}

func TestGraph_ValidateRejectsCycle(t *testing.T) {
	g := NewGraph("test")
	require.NoError(t, g.AddNode(newStubNode("a", anyKinds(), KindDualChannel)))
	require.NoError(t, g.AddNode(newStubNode("b", anyKinds(), KindDualChannel)))
	require.NoError(t, g.Connect("a", "b"))
	require.NoError(t, g.Connect("b", "a"))
	require.NoError(t, g.SetOutputNode("b"))
	assert.Error(t, g.Validate())
}

func TestGraph_ValidateRejectsTypeMismatch(t *testing.T) {
	g := NewGraph("test")
	require.NoError(t, g.AddNode(newStubNode("mono", anyKinds(), KindSingleChannel)))
	// Downstream only accepts PhotoacousticResult, never SingleChannel.
	require.NoError(t, g.AddNode(newStubNode("result_only", []Kind{KindPhotoacousticResult}, KindPhotoacousticResult)))
	require.NoError(t, g.Connect("mono", "result_only"))
	require.NoError(t, g.SetOutputNode("result_only"))
	assert.Error(t, g.Validate())
}

func TestGraph_ValidateRejectsUnreachableSource(t *testing.T) {
	g := NewGraph("test")
	require.NoError(t, g.AddNode(newStubNode("a", anyKinds(), KindDualChannel)))
	require.NoError(t, g.AddNode(newStubNode("b", anyKinds(), KindDualChannel)))
	require.NoError(t, g.AddNode(newStubNode("orphan", anyKinds(), KindDualChannel)))
	require.NoError(t, g.Connect("a", "b"))
	require.NoError(t, g.SetOutputNode("b"))
	assert.Error(t, g.Validate(), "orphan source cannot reach the output")
}

func TestGraph_ConnectRejectsUnknownAndDuplicateEdges(t *testing.T) {
	g := NewGraph("test")
	require.NoError(t, g.AddNode(newStubNode("a", anyKinds(), KindDualChannel)))
	require.NoError(t, g.AddNode(newStubNode("b", anyKinds(), KindDualChannel)))

	assert.Error(t, g.Connect("a", "missing"))
	assert.Error(t, g.Connect("missing", "b"))
	assert.Error(t, g.Connect("a", "a"))

	require.NoError(t, g.Connect("a", "b"))
	assert.Error(t, g.Connect("a", "b"), "duplicate edge must be rejected")
}

func TestGraph_AddNodeRejectsDuplicateID(t *testing.T) {
	g := NewGraph("test")
	require.NoError(t, g.AddNode(newStubNode("a", anyKinds(), KindDualChannel)))
	assert.Error(t, g.AddNode(newStubNode("a", anyKinds(), KindDualChannel)))
}

func TestGraph_TopologicalOrderIsStable(t *testing.T) {
	build := func() (*Graph, *[]string) {
		executed := &[]string{}
		g := NewGraph("test")
		// Diamond: input fans out to b and a, both feed sink. Equal
		// in-degree ties must break by ascending id.
		for _, id := range []string{"input", "b", "a", "sink"} {
			node := newStubNode(id, anyKinds(), KindDualChannel)
			node.executed = executed
			require.NoError(t, g.AddNode(node))
		}
		require.NoError(t, g.Connect("input", "b"))
		require.NoError(t, g.Connect("input", "a"))
		require.NoError(t, g.Connect("a", "sink"))
		require.NoError(t, g.Connect("b", "sink"))
		require.NoError(t, g.SetOutputNode("sink"))
		return g, executed
	}

	g1, order1 := build()
	_, err := g1.Execute(testFrame())
	require.NoError(t, err)

	g2, order2 := build()
	_, err = g2.Execute(testFrame())
	require.NoError(t, err)

	assert.Equal(t, *order1, *order2, "same structure must execute in the same order")
	assert.Equal(t, []string{"input", "a", "b", "sink"}, (*order1)[:4])
}

func TestGraph_ExecuteRecordsStatistics(t *testing.T) {
	g := linearGraph(t, "input", "sink")
	for i := 0; i < 5; i++ {
		_, err := g.Execute(testFrame())
		require.NoError(t, err)
	}

	stats, ok := g.GetNodeStatistics("input")
	require.True(t, ok)
	assert.Equal(t, uint64(5), stats.ExecutionCount)
	assert.Equal(t, uint64(0), stats.ErrorCount)
	assert.GreaterOrEqual(t, stats.Slowest, stats.Fastest)

	summary := g.GetPerformanceSummary()
	assert.Equal(t, 2, summary.TotalNodes)
	assert.Equal(t, 2, summary.ActiveNodes)
	assert.Equal(t, 1, summary.TotalConnections)
	assert.Equal(t, uint64(10), summary.TotalExecutions)
	require.NotNil(t, summary.SlowestNode)
	require.NotNil(t, summary.FastestNode)
	assert.Len(t, summary.NodesByPerformance, 2)
}

func TestGraph_NodeErrorAbortsFrameButNotGraph(t *testing.T) {
	g := NewGraph("test")
	failing := newStubNode("bad", anyKinds(), KindDualChannel)
	failing.fail = true
	require.NoError(t, g.AddNode(newStubNode("input", anyKinds(), KindDualChannel)))
	require.NoError(t, g.AddNode(failing))
	require.NoError(t, g.Connect("input", "bad"))
	require.NoError(t, g.SetOutputNode("bad"))

	_, err := g.Execute(testFrame())
	require.Error(t, err)

	stats, _ := g.GetNodeStatistics("bad")
	assert.Equal(t, uint64(1), stats.ErrorCount)

	// The graph stays usable: a subsequent frame is attempted normally.
	failing.fail = false
	_, err = g.Execute(testFrame())
	assert.NoError(t, err)
}

func TestGraph_EmptyInputSkipsNodes(t *testing.T) {
	g := linearGraph(t, "input", "sink")
	outputs, err := g.Execute(Empty())
	require.NoError(t, err)
	assert.Empty(t, outputs, "empty input must produce no outputs")
}

func TestGraph_ResetStatistics(t *testing.T) {
	g := linearGraph(t, "input", "sink")
	_, err := g.Execute(testFrame())
	require.NoError(t, err)

	g.ResetStatistics()
	stats, ok := g.GetNodeStatistics("input")
	require.True(t, ok)
	assert.Zero(t, stats.ExecutionCount)
}

func TestGraph_ImportStatisticsCarriesSurvivors(t *testing.T) {
	g1 := linearGraph(t, "input", "sink")
	for i := 0; i < 3; i++ {
		_, err := g1.Execute(testFrame())
		require.NoError(t, err)
	}

	g2 := linearGraph(t, "input", "middle", "sink")
	g2.ImportStatistics(g1.Statistics())

	stats, ok := g2.GetNodeStatistics("input")
	require.True(t, ok)
	assert.Equal(t, uint64(3), stats.ExecutionCount, "surviving node keeps its history")

	fresh, ok := g2.GetNodeStatistics("middle")
	require.True(t, ok)
	assert.Zero(t, fresh.ExecutionCount)
}

func TestGraph_SerializationRoundTrip(t *testing.T) {
	g := linearGraph(t, "input", "sink")
	_, err := g.Execute(testFrame())
	require.NoError(t, err)

	first := g.ToSerializable()
	data1, err := first.Marshal()
	require.NoError(t, err)

	second := g.ToSerializable()
	data2, err := second.Marshal()
	require.NoError(t, err)
	assert.Equal(t, string(data1), string(data2), "same structure must serialize identically")

	// Required node fields appear verbatim.
	for _, field := range []string{
		`"id"`, `"node_type"`, `"accepts_input_types"`, `"output_type"`,
		`"parameters"`, `"supports_hot_reload"`,
	} {
		assert.Contains(t, string(data1), field)
	}
	assert.True(t, first.IsValid)
	assert.Equal(t, "sink", first.OutputNode)
	assert.Len(t, first.Nodes, 2)
	assert.Len(t, first.Connections, 1)
}
