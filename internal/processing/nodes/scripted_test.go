package nodes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonoptix/photoacoustic-go/internal/processing"
)

func monoData(samples ...float32) processing.Data {
	return processing.Data{
		Kind:        processing.KindSingleChannel,
		Samples:     samples,
		SampleRate:  48000,
		FrameNumber: 11,
	}
}

func TestScriptedNode_TransformsSamples(t *testing.T) {
	n, err := NewScriptedNode("js", map[string]any{
		"script": `function process(input) {
			return { samples: input.samples.map(function(s) { return s * 2; }) };
		}`,
	})
	require.NoError(t, err)

	out, err := n.Process(monoData(0.1, -0.25))
	require.NoError(t, err)
	require.Equal(t, processing.KindSingleChannel, out.Kind)
	assert.InDelta(t, 0.2, float64(out.Samples[0]), 1e-6)
	assert.InDelta(t, -0.5, float64(out.Samples[1]), 1e-6)
	assert.Equal(t, uint64(11), out.FrameNumber)
}

func TestScriptedNode_NullEmitsEmpty(t *testing.T) {
	n, err := NewScriptedNode("js", map[string]any{
		"script": `function process(input) { return null; }`,
	})
	require.NoError(t, err)

	out, err := n.Process(monoData(0.5))
	require.NoError(t, err)
	assert.True(t, out.IsEmpty())
}

func TestScriptedNode_RuntimeErrorIsNodeError(t *testing.T) {
	n, err := NewScriptedNode("js", map[string]any{
		"script": `function process(input) { throw new Error("boom"); }`,
	})
	require.NoError(t, err)

	_, err = n.Process(monoData(0.5))
	assert.Error(t, err)
}

func TestScriptedNode_RequiresProcessFunction(t *testing.T) {
	_, err := NewScriptedNode("js", map[string]any{"script": `var x = 1;`})
	assert.Error(t, err)

	_, err = NewScriptedNode("js", map[string]any{"script": `not valid js (`})
	assert.Error(t, err)

	_, err = NewScriptedNode("js", nil)
	assert.Error(t, err, "script parameter is mandatory")
}

func TestScriptedNode_HotReloadReplacesProgram(t *testing.T) {
	n, err := NewScriptedNode("js", map[string]any{
		"script": `function process(input) { return { samples: input.samples }; }`,
	})
	require.NoError(t, err)

	applied, err := n.UpdateConfig(map[string]any{
		"script": `function process(input) { return { samples: input.samples.map(function(s) { return -s; }) }; }`,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	out, err := n.Process(monoData(0.5))
	require.NoError(t, err)
	assert.InDelta(t, -0.5, float64(out.Samples[0]), 1e-6)

	// A broken replacement keeps the running program.
	_, err = n.UpdateConfig(map[string]any{"script": `syntax error here (`})
	assert.Error(t, err)
	out, err = n.Process(monoData(1.0))
	require.NoError(t, err)
	assert.InDelta(t, -1.0, float64(out.Samples[0]), 1e-6)
}

func TestScriptedNode_ConfigurableKinds(t *testing.T) {
	n, err := NewScriptedNode("js", map[string]any{
		"script":  `function process(input) { return { samples: input.samples }; }`,
		"accepts": "PhotoacousticResult",
		"output":  "PhotoacousticResult",
	})
	require.NoError(t, err)
	assert.True(t, n.Accepts(processing.KindPhotoacousticResult))
	assert.False(t, n.Accepts(processing.KindSingleChannel))
	assert.Equal(t, processing.KindPhotoacousticResult, n.OutputKind())
}
