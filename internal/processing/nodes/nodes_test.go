package nodes

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonoptix/photoacoustic-go/internal/acquisition"
	"github.com/sonoptix/photoacoustic-go/internal/processing"
)

func sineSample(freq, sampleRate float64, i int) float32 {
	return float32(math.Sin(2 * math.Pi * freq * float64(i) / sampleRate))
}

func dualFrame(samplesA, samplesB []float32) processing.Data {
	return processing.FromAudioFrame(acquisition.AudioFrame{
		ChannelA:    samplesA,
		ChannelB:    samplesB,
		SampleRate:  48000,
		FrameNumber: 7,
	})
}

func TestInputNode_PassesFramesThrough(t *testing.T) {
	n := NewInputNode("input", nil)
	in := dualFrame([]float32{0.1, 0.2}, []float32{0.3, 0.4})
	out, err := n.Process(in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, uint64(7), out.FrameNumber)
}

func TestInputNode_RejectsWrongVariant(t *testing.T) {
	n := NewInputNode("input", nil)
	_, err := n.Process(processing.Data{Kind: processing.KindSingleChannel})
	assert.Error(t, err)
}

func TestGainNode_AppliesDecibels(t *testing.T) {
	n, err := NewGainNode("gain", map[string]any{"value_db": 6.0})
	require.NoError(t, err)

	out, err := n.Process(dualFrame([]float32{0.1}, []float32{0.2}))
	require.NoError(t, err)
	require.Equal(t, processing.KindDualChannel, out.Kind)

	linear := math.Pow(10, 6.0/20)
	assert.InDelta(t, 0.1*linear, float64(out.ChannelA[0]), 1e-6)
	assert.InDelta(t, 0.2*linear, float64(out.ChannelB[0]), 1e-6)
	assert.Equal(t, uint64(7), out.FrameNumber, "frame number must be preserved")
}

func TestGainNode_ZeroDBIsIdentityOnSamples(t *testing.T) {
	n, err := NewGainNode("gain", nil)
	require.NoError(t, err)
	out, err := n.Process(dualFrame([]float32{0.5}, []float32{-0.5}))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, float64(out.ChannelA[0]), 1e-7)
	assert.InDelta(t, -0.5, float64(out.ChannelB[0]), 1e-7)
}

func TestGainNode_HotReload(t *testing.T) {
	n, err := NewGainNode("gain", map[string]any{"value_db": 0.0})
	require.NoError(t, err)
	require.True(t, n.SupportsHotReload())

	applied, err := n.UpdateConfig(map[string]any{"value_db": 6.0})
	require.NoError(t, err)
	assert.True(t, applied)

	out, err := n.Process(dualFrame([]float32{1.0}, []float32{1.0}))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, float64(out.ChannelA[0]), 0.01, "6 dB is a ratio of ~2.0")

	// Unrelated parameters are ignored, not an error.
	applied, err = n.UpdateConfig(map[string]any{"unrelated": 1})
	require.NoError(t, err)
	assert.False(t, applied)

	// Out-of-range values are rejected without touching the gain.
	_, err = n.UpdateConfig(map[string]any{"value_db": 500.0})
	assert.Error(t, err)
}

func TestChannelSelectorNode_SelectsTarget(t *testing.T) {
	in := dualFrame([]float32{0.1, 0.2}, []float32{0.3, 0.4})

	a, err := NewChannelSelectorNode("sel", map[string]any{"target": "A"})
	require.NoError(t, err)
	out, err := a.Process(in)
	require.NoError(t, err)
	assert.Equal(t, processing.KindSingleChannel, out.Kind)
	assert.Equal(t, []float32{0.1, 0.2}, out.Samples)

	b, err := NewChannelSelectorNode("sel", map[string]any{"target": "B"})
	require.NoError(t, err)
	out, err = b.Process(in)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.3, 0.4}, out.Samples)
}

func TestChannelSelectorNode_RejectsBadTarget(t *testing.T) {
	_, err := NewChannelSelectorNode("sel", map[string]any{"target": "C"})
	assert.Error(t, err)
}

func TestChannelMixerNode_Strategies(t *testing.T) {
	in := dualFrame([]float32{0.2}, []float32{0.4})

	cases := []struct {
		strategy string
		params   map[string]any
		expected float32
	}{
		{strategy: "add", params: map[string]any{"strategy": "add"}, expected: 0.6},
		{strategy: "subtract", params: map[string]any{"strategy": "subtract"}, expected: -0.2},
		{strategy: "average", params: map[string]any{"strategy": "average"}, expected: 0.3},
		{strategy: "weighted", params: map[string]any{"strategy": "weighted", "weight_a": 1.0, "weight_b": 0.5}, expected: 0.4},
	}
	for _, tc := range cases {
		t.Run(tc.strategy, func(t *testing.T) {
			n, err := NewChannelMixerNode("mix", tc.params)
			require.NoError(t, err)
			out, err := n.Process(in)
			require.NoError(t, err)
			require.Equal(t, processing.KindSingleChannel, out.Kind)
			assert.InDelta(t, float64(tc.expected), float64(out.Samples[0]), 1e-6)
		})
	}
}

func TestChannelMixerNode_RejectsUnknownStrategy(t *testing.T) {
	_, err := NewChannelMixerNode("mix", map[string]any{"strategy": "multiply"})
	assert.Error(t, err)
}

func TestDifferentialNode_SubtractsChannels(t *testing.T) {
	n := NewDifferentialNode("diff", nil)
	out, err := n.Process(dualFrame([]float32{0.5, 0.2}, []float32{0.1, 0.3}))
	require.NoError(t, err)
	require.Equal(t, processing.KindSingleChannel, out.Kind)
	assert.InDelta(t, 0.4, float64(out.Samples[0]), 1e-6)
	assert.InDelta(t, -0.1, float64(out.Samples[1]), 1e-6)
}

func TestDifferentialNode_Normalize(t *testing.T) {
	n := NewDifferentialNode("diff", map[string]any{"normalize": true})
	out, err := n.Process(dualFrame([]float32{0.5, 0.25}, []float32{0.0, 0.0}))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, float64(out.Samples[0]), 1e-6, "peak is rescaled to unity")
	assert.InDelta(t, 0.5, float64(out.Samples[1]), 1e-6)
}

func TestOutputNode_RetainsLastResult(t *testing.T) {
	n := NewOutputNode("out")
	in := dualFrame([]float32{0.1}, []float32{0.2})
	out, err := n.Process(in)
	require.NoError(t, err)
	assert.Equal(t, in, out, "output node is a passthrough")
	assert.Equal(t, in, n.LastResult())

	n.Reset()
	last := n.LastResult()
	assert.True(t, last.IsEmpty())
}

func TestStreamingNode_PublishesToRegistry(t *testing.T) {
	registry := NewStreamingRegistry()
	ch, cancel := registry.Subscribe("live")
	defer cancel()

	n := NewStreamingNode("stream", map[string]any{"stream_id": "live"}, registry)
	in := dualFrame([]float32{0.1}, []float32{0.2})
	out, err := n.Process(in)
	require.NoError(t, err)
	assert.Equal(t, in, out, "streaming node is a passthrough")

	select {
	case data := <-ch:
		assert.Equal(t, uint64(7), data.FrameNumber)
	default:
		t.Fatal("expected published frame in subscriber channel")
	}
	assert.Equal(t, uint64(1), n.PublishedFrames())
}

func TestStreamingRegistry_DropOldestWhenSubscriberFull(t *testing.T) {
	registry := NewStreamingRegistry()
	ch, cancel := registry.Subscribe("live")
	defer cancel()

	for i := 0; i < streamBacklog+10; i++ {
		registry.Publish("live", processing.Data{Kind: processing.KindSingleChannel, FrameNumber: uint64(i + 1)})
	}

	// The oldest entries were dropped; the newest survive in order.
	first := <-ch
	assert.Greater(t, first.FrameNumber, uint64(1))
	var last processing.Data
	for {
		select {
		case d := <-ch:
			last = d
			continue
		default:
		}
		break
	}
	assert.Equal(t, uint64(streamBacklog+10), last.FrameNumber)
}

func TestFilterNode_HotReloadSemantics(t *testing.T) {
	n, err := NewFilterNode("filter", map[string]any{
		"type": "bandpass", "center": 1000.0, "bandwidth": 200.0,
		"sample_rate": 48000.0, "order": 4,
	})
	require.NoError(t, err)
	require.True(t, n.SupportsHotReload())

	// New cutoff with same (type, order) is absorbed live.
	applied, err := n.UpdateConfig(map[string]any{"center": 1500.0})
	require.NoError(t, err)
	assert.True(t, applied)

	// Changed order is absorbed with state reset.
	applied, err = n.UpdateConfig(map[string]any{"order": 6})
	require.NoError(t, err)
	assert.True(t, applied)

	// A type change is not absorbed; the consumer rebuilds instead.
	applied, err = n.UpdateConfig(map[string]any{"type": "lowpass"})
	require.NoError(t, err)
	assert.False(t, applied)

	// Invalid values are rejected.
	_, err = n.UpdateConfig(map[string]any{"order": 3})
	assert.Error(t, err)
}

func TestFilterNode_FiltersBothChannels(t *testing.T) {
	n, err := NewFilterNode("filter", map[string]any{
		"type": "lowpass", "cutoff": 1000.0, "sample_rate": 48000.0, "order": 2,
	})
	require.NoError(t, err)

	// A DC input passes a lowpass nearly unchanged once settled.
	samples := make([]float32, 2000)
	for i := range samples {
		samples[i] = 0.5
	}
	out, err := n.Process(dualFrame(samples, samples))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, float64(out.ChannelA[len(out.ChannelA)-1]), 0.01)
	assert.InDelta(t, 0.5, float64(out.ChannelB[len(out.ChannelB)-1]), 0.01)
}
