package processing_test

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonoptix/photoacoustic-go/internal/acquisition"
	"github.com/sonoptix/photoacoustic-go/internal/computing"
	"github.com/sonoptix/photoacoustic-go/internal/conf"
	"github.com/sonoptix/photoacoustic-go/internal/processing"
	"github.com/sonoptix/photoacoustic-go/internal/processing/nodes"
)

// settingsStore is a mutable config source for the consumer's poll loop.
type settingsStore struct {
	mu       sync.Mutex
	settings *conf.Settings
}

func (s *settingsStore) get() *conf.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *settingsStore) set(settings *conf.Settings) {
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
}

func gainGraphSettings(valueDB float64) *conf.Settings {
	return &conf.Settings{
		Processing: conf.ProcessingSettings{
			Enabled: true,
			DefaultGraph: conf.GraphConfig{
				ID: "test",
				Nodes: []conf.NodeConfig{
					{ID: "input", NodeType: "input"},
					{ID: "gain", NodeType: "gain", Parameters: map[string]any{"value_db": valueDB}},
					{ID: "stream", NodeType: "streaming", Parameters: map[string]any{"stream_id": "live"}},
					{ID: "out", NodeType: "output"},
				},
				Connections: []conf.ConnectionConfig{
					{From: "input", To: "gain"},
					{From: "gain", To: "stream"},
					{From: "stream", To: "out"},
				},
				OutputNode: "out",
			},
		},
	}
}

type consumerHarness struct {
	stream    *acquisition.SharedAudioStream
	registry  *nodes.StreamingRegistry
	consumer  *processing.Consumer
	store     *settingsStore
	cancel    context.CancelFunc
	done      chan struct{}
}

func startConsumer(t *testing.T, initial *conf.Settings) *consumerHarness {
	t.Helper()

	store := &settingsStore{settings: initial}
	registry := nodes.NewStreamingRegistry()
	deps := nodes.BuildDeps{
		ComputingState:    computing.NewSharedState(),
		StreamingRegistry: registry,
	}
	builder := func(cfg *conf.GraphConfig) (*processing.Graph, error) {
		return nodes.BuildGraph(cfg, deps)
	}

	graph, err := builder(&initial.Processing.DefaultGraph)
	require.NoError(t, err)
	require.NoError(t, graph.Validate())

	stream := acquisition.NewSharedAudioStream(256)
	consumer := processing.NewConsumer(stream.Subscribe(), graph, builder, store.get, processing.ConsumerOptions{
		ConfigCheckInterval: 20 * time.Millisecond,
		SnapshotInterval:    20 * time.Millisecond,
		FramePeriod:         time.Second, // generous rebuild deadline for CI machines
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = consumer.Run(ctx)
	}()

	h := &consumerHarness{
		stream:   stream,
		registry: registry,
		consumer: consumer,
		store:    store,
		cancel:   cancel,
		done:     done,
	}
	t.Cleanup(func() {
		cancel()
		stream.Close()
		<-done
	})
	return h
}

func (h *consumerHarness) publishFrames(n int, amplitude float32) {
	samples := make([]float32, 64)
	for i := range samples {
		samples[i] = amplitude
	}
	for i := 0; i < n; i++ {
		h.stream.Publish(acquisition.AudioFrame{
			ChannelA:   samples,
			ChannelB:   samples,
			SampleRate: 48000,
		})
		time.Sleep(2 * time.Millisecond)
	}
}

func peakOf(samples []float32) float64 {
	peak := 0.0
	for _, s := range samples {
		if a := math.Abs(float64(s)); a > peak {
			peak = a
		}
	}
	return peak
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestConsumer_HotReloadGain(t *testing.T) {
	h := startConsumer(t, gainGraphSettings(0))
	live, cancelSub := h.registry.Subscribe("live")
	defer cancelSub()

	// Warm up with unity gain.
	h.publishFrames(5, 0.25)
	waitFor(t, time.Second, func() bool {
		select {
		case data := <-live:
			return math.Abs(peakOf(data.PrimarySamples())-0.25) < 0.01
		default:
			return false
		}
	}, "expected unity-gain frames")

	// Publish the 6 dB configuration; the consumer's watcher absorbs it
	// through hot reload.
	h.store.set(gainGraphSettings(6))
	waitFor(t, 2*time.Second, func() bool {
		_, _, hotReloads, _ := h.consumer.Stats()
		return hotReloads == 1
	}, "expected the gain change to hot reload")

	// Within a couple of frames the output amplitude doubles.
	h.publishFrames(5, 0.25)
	expected := 0.25 * math.Pow(10, 6.0/20)
	waitFor(t, 2*time.Second, func() bool {
		for {
			select {
			case data := <-live:
				if math.Abs(peakOf(data.PrimarySamples())-expected) < 0.02*expected {
					return true
				}
			default:
				return false
			}
		}
	}, "expected doubled amplitude after hot reload")

	_, lagged, _, rebuilds := h.consumer.Stats()
	assert.Zero(t, lagged, "no frame may be lost during hot reload")
	assert.Zero(t, rebuilds, "a parameter change must not rebuild")

	// The published snapshot reflects the new parameter.
	snapshot := h.consumer.Snapshot()
	for _, node := range snapshot.Nodes {
		if node.ID == "gain" {
			assert.InDelta(t, 6.0, node.Parameters["value_db"], 1e-9)
		}
	}
}

func TestConsumer_RebuildOnNodeAddition(t *testing.T) {
	h := startConsumer(t, gainGraphSettings(0))

	h.publishFrames(5, 0.25)
	waitFor(t, time.Second, func() bool {
		frames, _, _, _ := h.consumer.Stats()
		return frames >= 5
	}, "expected initial frames to be processed")
	// Snapshots are republished on the snapshot tick, not per frame.
	waitFor(t, time.Second, func() bool {
		for _, node := range h.consumer.Snapshot().Nodes {
			if node.ID == "input" {
				return node.Statistics.ExecutionCount > 0
			}
		}
		return false
	}, "expected a snapshot covering the initial frames")

	preSnapshot := h.consumer.Snapshot()
	var preInputExecutions uint64
	for _, node := range preSnapshot.Nodes {
		if node.ID == "input" {
			preInputExecutions = node.Statistics.ExecutionCount
		}
	}
	require.NotZero(t, preInputExecutions)

	// Insert a filter between input and gain: a structural change, so the
	// consumer must rebuild.
	next := gainGraphSettings(0)
	g := &next.Processing.DefaultGraph
	g.Nodes = append(g.Nodes[:1], append([]conf.NodeConfig{{
		ID:       "filter",
		NodeType: "filter",
		Parameters: map[string]any{
			"type": "lowpass", "cutoff": 5000.0, "sample_rate": 48000.0, "order": 2,
		},
	}}, g.Nodes[1:]...)...)
	g.Connections = []conf.ConnectionConfig{
		{From: "input", To: "filter"},
		{From: "filter", To: "gain"},
		{From: "gain", To: "stream"},
		{From: "stream", To: "out"},
	}
	h.store.set(next)

	waitFor(t, 2*time.Second, func() bool {
		_, _, _, rebuilds := h.consumer.Stats()
		return rebuilds == 1
	}, "expected a rebuild for the structural change")

	// Within two frames the new graph is active and valid.
	h.publishFrames(2, 0.25)
	waitFor(t, time.Second, func() bool {
		snapshot := h.consumer.Snapshot()
		return len(snapshot.Nodes) == 5 && snapshot.IsValid
	}, "expected the rebuilt graph in the snapshot")

	// Statistics for the surviving input node carried over.
	snapshot := h.consumer.Snapshot()
	for _, node := range snapshot.Nodes {
		if node.ID == "input" {
			assert.GreaterOrEqual(t, node.Statistics.ExecutionCount, preInputExecutions,
				"surviving node keeps its execution history")
		}
		if node.ID == "filter" {
			assert.Equal(t, "filter", node.NodeType)
		}
	}
}

func TestConsumer_InvalidConfigKeepsOldGraph(t *testing.T) {
	h := startConsumer(t, gainGraphSettings(0))

	h.publishFrames(3, 0.25)

	// A graph with a dangling connection fails to build; the consumer
	// must keep the old graph running.
	broken := gainGraphSettings(0)
	broken.Processing.DefaultGraph.Connections = append(
		broken.Processing.DefaultGraph.Connections,
		conf.ConnectionConfig{From: "gain", To: "missing"},
	)
	h.store.set(broken)

	waitFor(t, 2*time.Second, func() bool {
		return h.consumer.LastError() != ""
	}, "expected the bad config to surface an error")

	// Frames keep flowing through the old graph.
	before, _, _, _ := h.consumer.Stats()
	h.publishFrames(3, 0.25)
	waitFor(t, time.Second, func() bool {
		frames, _, _, _ := h.consumer.Stats()
		return frames > before
	}, "expected the old graph to keep processing")

	snapshot := h.consumer.Snapshot()
	assert.Len(t, snapshot.Nodes, 4, "old graph remains active")
}
