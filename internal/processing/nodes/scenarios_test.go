package nodes

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonoptix/photoacoustic-go/internal/acquisition"
	"github.com/sonoptix/photoacoustic-go/internal/computing"
	"github.com/sonoptix/photoacoustic-go/internal/conf"
	"github.com/sonoptix/photoacoustic-go/internal/processing"
)

func peakResultWithAmplitude(a float64) computing.PeakResult {
	return computing.PeakResult{Frequency: 2000, Amplitude: a, Timestamp: time.Now()}
}

func rmsOf(samples []float32) float64 {
	sum := 0.0
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func toneFrame(freq float64, sampleRate uint32, samples int) processing.Data {
	chA := make([]float32, samples)
	for i := range chA {
		chA[i] = sineSample(freq, float64(sampleRate), i)
	}
	chB := make([]float32, samples)
	copy(chB, chA)
	return processing.FromAudioFrame(acquisition.AudioFrame{
		ChannelA:    chA,
		ChannelB:    chB,
		SampleRate:  sampleRate,
		FrameNumber: 1,
	})
}

func bandpassGraph(t *testing.T) *processing.Graph {
	t.Helper()
	cfg := &conf.GraphConfig{
		ID: "s1",
		Nodes: []conf.NodeConfig{
			{ID: "input", NodeType: "input"},
			{ID: "bandpass", NodeType: "filter", Parameters: map[string]any{
				"type": "bandpass", "center": 1000.0, "bandwidth": 200.0,
				"sample_rate": 48000.0, "order": 4,
			}},
			{ID: "out", NodeType: "output"},
		},
		Connections: []conf.ConnectionConfig{
			{From: "input", To: "bandpass"},
			{From: "bandpass", To: "out"},
		},
		OutputNode: "out",
	}
	graph, err := BuildGraph(cfg, testDeps())
	require.NoError(t, err)
	require.NoError(t, graph.Validate())
	return graph
}

func TestScenario_BandpassPassesInBandTone(t *testing.T) {
	graph := bandpassGraph(t)

	// 0.1 s of a 1 kHz tone.
	in := toneFrame(1000, 48000, 4800)
	inRMS := rmsOf(in.ChannelA)

	outputs, err := graph.Execute(in)
	require.NoError(t, err)
	require.Len(t, outputs, 1)

	out := outputs[0]
	require.Equal(t, processing.KindDualChannel, out.Kind)
	outRMS := rmsOf(out.ChannelA[960:])
	assert.Greater(t, outRMS, 0.9*inRMS)
}

func TestScenario_BandpassRejectsOutOfBandTone(t *testing.T) {
	graph := bandpassGraph(t)

	in := toneFrame(5000, 48000, 4800)
	inRMS := rmsOf(in.ChannelA)

	outputs, err := graph.Execute(in)
	require.NoError(t, err)
	require.Len(t, outputs, 1)

	outRMS := rmsOf(outputs[0].ChannelA[960:])
	assert.Less(t, outRMS, 0.1*inRMS)
}

func TestScenario_PeakDetectionOnSimulatedSource(t *testing.T) {
	const sampleRate = 48000
	const frameSize = 4096

	source, err := acquisition.NewSimulatedSource(acquisition.SimulatedConfig{
		Frequency:   2000,
		Correlation: 1.0,
		NoiseLevel:  0.01,
		SampleRate:  sampleRate,
		FrameSize:   frameSize,
	})
	require.NoError(t, err)

	deps := testDeps()
	cfg := &conf.GraphConfig{
		ID: "s2",
		Nodes: []conf.NodeConfig{
			{ID: "input", NodeType: "input"},
			{ID: "select", NodeType: "channel_selector", Parameters: map[string]any{"target": "A"}},
			{ID: "peak", NodeType: "peak_finder", Parameters: map[string]any{
				"frequency": 2000.0, "bandwidth": 200.0,
				"fft_size": frameSize, "averages": 4,
			}},
			{ID: "out", NodeType: "output"},
		},
		Connections: []conf.ConnectionConfig{
			{From: "input", To: "select"},
			{From: "select", To: "peak"},
			{From: "peak", To: "out"},
		},
		OutputNode: "out",
	}
	graph, err := BuildGraph(cfg, deps)
	require.NoError(t, err)
	require.NoError(t, graph.Validate())

	// Within 10 frames the reported peak frequency settles inside
	// [1988, 2012] Hz.
	for frame := 0; frame < 10; frame++ {
		chA, chB, err := source.ReadFrame()
		require.NoError(t, err)
		_, err = graph.Execute(processing.FromAudioFrame(acquisition.AudioFrame{
			ChannelA:    chA,
			ChannelB:    chB,
			SampleRate:  sampleRate,
			FrameNumber: uint64(frame + 1),
		}))
		require.NoError(t, err)
	}

	result, ok := deps.ComputingState.GetPeakResult("peak")
	require.True(t, ok)
	assert.GreaterOrEqual(t, result.Frequency, 1988.0)
	assert.LessOrEqual(t, result.Frequency, 2012.0)
	assert.Greater(t, result.Amplitude, 0.1)
}

func TestScenario_ConcentrationPolynomial(t *testing.T) {
	deps := testDeps()
	node, err := NewConcentrationCalculatorNode("conc", map[string]any{
		// ppm = 10 + 100·x
		"polynomial":     []any{10.0, 100.0, 0.0, 0.0, 0.0},
		"source_node_id": "pf",
	})
	require.NoError(t, err)
	node.AttachComputingState(deps.ComputingState)

	deps.ComputingState.UpdatePeakResult("pf", peakResultWithAmplitude(0.5))

	in := processing.Data{
		Kind:       processing.KindPhotoacousticResult,
		Signal:     []float32{0.1},
		Metadata:   &processing.ResultMetadata{PeakAmplitude: 0.5},
		SampleRate: 48000,
	}
	out, err := node.Process(in)
	require.NoError(t, err)
	require.NotNil(t, out.Metadata)
	require.NotNil(t, out.Metadata.ConcentrationPPM)
	assert.InDelta(t, 60.0, *out.Metadata.ConcentrationPPM, 1e-9)

	snapshot := deps.ComputingState.GetSnapshot()
	require.NotNil(t, snapshot.ConcentrationPPM)
	assert.InDelta(t, 60.0, *snapshot.ConcentrationPPM, 1e-9)
}
