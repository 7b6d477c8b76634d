package processing

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sonoptix/photoacoustic-go/internal/acquisition"
	"github.com/sonoptix/photoacoustic-go/internal/conf"
	"github.com/sonoptix/photoacoustic-go/internal/errors"
	"github.com/sonoptix/photoacoustic-go/internal/logging"
)

// GraphBuilder constructs a graph from configuration. Injected by the daemon
// so the consumer does not depend on the node registry.
type GraphBuilder func(cfg *conf.GraphConfig) (*Graph, error)

// ConfigProvider returns the current settings. The consumer polls it to
// detect configuration changes.
type ConfigProvider func() *conf.Settings

// Finalizer is implemented by nodes that hold open resources needing a
// graceful close on shutdown or before rebuild discard (record files).
type Finalizer interface {
	Finalize() error
}

// ConsumerOptions tunes the processing consumer.
type ConsumerOptions struct {
	// ConfigCheckInterval is the config-watch period. Default 1s.
	ConfigCheckInterval time.Duration
	// SnapshotInterval throttles visualization snapshots. Default 1s.
	SnapshotInterval time.Duration
	// FramePeriod is the nominal frame duration, used as the rebuild
	// deadline. Zero derives it from the first frame.
	FramePeriod time.Duration
}

// Consumer pulls frames from the audio stream, drives the graph, and
// manages dynamic reconfiguration: hot-reload where nodes allow it, atomic
// graph rebuild otherwise. A bad configuration never stops the consumer; the
// old graph keeps running and the error is surfaced through logs and
// LastError.
type Consumer struct {
	stream    *acquisition.StreamConsumer
	graph     *Graph
	builder   GraphBuilder
	provider  ConfigProvider
	opts      ConsumerOptions

	lastHash   string
	lastConfig conf.GraphConfig

	snapshotMu sync.RWMutex
	snapshot   SerializableGraph
	lastError  string

	framesSeen   atomic.Uint64
	framesLagged atomic.Uint64
	hotReloads   atomic.Uint64
	rebuilds     atomic.Uint64

	logger *slog.Logger
}

// NewConsumer creates a consumer driving graph with frames from stream.
func NewConsumer(stream *acquisition.StreamConsumer, graph *Graph, builder GraphBuilder, provider ConfigProvider, opts ConsumerOptions) *Consumer {
	if opts.ConfigCheckInterval <= 0 {
		opts.ConfigCheckInterval = time.Second
	}
	if opts.SnapshotInterval <= 0 {
		opts.SnapshotInterval = time.Second
	}
	logger := logging.ForService("processing")
	if logger == nil {
		logger = slog.Default()
	}
	c := &Consumer{
		stream:   stream,
		graph:    graph,
		builder:  builder,
		provider: provider,
		opts:     opts,
		logger:   logger.With("component", "consumer"),
	}
	if settings := provider(); settings != nil {
		c.lastHash = conf.ProcessingHash(settings)
		c.lastConfig = settings.Processing.DefaultGraph
	}
	c.publishSnapshot()
	return c
}

// Run is the consumer main loop. It returns when ctx is cancelled or the
// stream closes. The current frame is always drained before shutdown and
// open recordings are finalized.
func (c *Consumer) Run(ctx context.Context) error {
	configTick := time.NewTicker(c.opts.ConfigCheckInterval)
	defer configTick.Stop()
	snapshotTick := time.NewTicker(c.opts.SnapshotInterval)
	defer snapshotTick.Stop()
	defer c.finalizeNodes()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping", "frames_processed", c.framesSeen.Load())
			return nil
		case <-configTick.C:
			c.checkConfig()
		case <-snapshotTick.C:
			c.publishSnapshot()
		case frame, ok := <-c.stream.Frames():
			if !ok {
				c.logger.Info("audio stream closed, consumer exiting", "frames_processed", c.framesSeen.Load())
				return nil
			}
			if dropped := c.stream.TakeLag(); dropped > 0 {
				c.framesLagged.Add(dropped)
				c.logger.Warn("consumer lagged", "dropped_frames", dropped, "total_lagged", c.framesLagged.Load())
			}
			c.processFrame(frame)
		}
	}
}

func (c *Consumer) processFrame(frame acquisition.AudioFrame) {
	c.framesSeen.Add(1)
	if c.opts.FramePeriod == 0 {
		c.opts.FramePeriod = frame.Duration()
		c.graph.SetFrameBudget(c.opts.FramePeriod)
	}
	if _, err := c.graph.Execute(FromAudioFrame(frame)); err != nil {
		// Node errors abort the frame but never the consumer.
		c.setLastError(err)
		c.logger.Warn("frame aborted", "frame_number", frame.FrameNumber, "error", err)
	}
}

// checkConfig hashes the processing configuration and reconciles the running
// graph when it changed.
func (c *Consumer) checkConfig() {
	settings := c.provider()
	if settings == nil {
		return
	}
	hash := conf.ProcessingHash(settings)
	if hash == c.lastHash {
		return
	}
	c.logger.Info("processing configuration changed", "hash", hash)

	newConfig := settings.Processing.DefaultGraph
	if c.tryHotReload(&newConfig) {
		c.hotReloads.Add(1)
		c.logger.Info("configuration absorbed by hot reload")
	} else {
		if !c.rebuild(&newConfig) {
			// Leave lastHash untouched so the next tick retries; the old
			// graph keeps running meanwhile.
			return
		}
		c.rebuilds.Add(1)
	}
	c.lastHash = hash
	c.lastConfig = newConfig
	c.publishSnapshot()
}

// tryHotReload absorbs the new configuration through per-node UpdateConfig
// calls. It succeeds only when the graph structure is unchanged and every
// changed node applied its parameters live.
func (c *Consumer) tryHotReload(newConfig *conf.GraphConfig) bool {
	if !sameStructure(&c.lastConfig, newConfig) {
		return false
	}
	oldParams := make(map[string]conf.NodeConfig, len(c.lastConfig.Nodes))
	for _, n := range c.lastConfig.Nodes {
		oldParams[n.ID] = n
	}
	for i := range newConfig.Nodes {
		nc := &newConfig.Nodes[i]
		old := oldParams[nc.ID]
		if reflect.DeepEqual(old.Parameters, nc.Parameters) {
			continue
		}
		node, ok := c.graph.Node(nc.ID)
		if !ok || !node.SupportsHotReload() {
			return false
		}
		applied, err := node.UpdateConfig(nc.Parameters)
		if err != nil {
			c.setLastError(err)
			c.logger.Warn("hot reload rejected", "node_id", nc.ID, "error", err)
			return false
		}
		if !applied {
			c.logger.Info("node ignored hot reload, scheduling rebuild", "node_id", nc.ID)
			return false
		}
	}
	return true
}

// sameStructure reports whether two graph configs share node ids, types,
// connections and output node.
func sameStructure(a, b *conf.GraphConfig) bool {
	if len(a.Nodes) != len(b.Nodes) || len(a.Connections) != len(b.Connections) || a.OutputNode != b.OutputNode {
		return false
	}
	types := make(map[string]string, len(a.Nodes))
	for _, n := range a.Nodes {
		types[n.ID] = n.NodeType
	}
	for _, n := range b.Nodes {
		if t, ok := types[n.ID]; !ok || t != n.NodeType {
			return false
		}
	}
	edges := make(map[conf.ConnectionConfig]bool, len(a.Connections))
	for _, e := range a.Connections {
		edges[e] = true
	}
	for _, e := range b.Connections {
		if !edges[e] {
			return false
		}
	}
	return true
}

// rebuild constructs a fresh graph from configuration, validates it, and
// swaps it in between frames. Statistics for surviving node ids carry over;
// filter state does not. Returns false when the new graph is unusable or the
// rebuild missed the frame deadline.
func (c *Consumer) rebuild(newConfig *conf.GraphConfig) bool {
	start := time.Now()
	newGraph, err := c.builder(newConfig)
	if err == nil {
		err = newGraph.Validate()
	}
	if err != nil {
		c.setLastError(err)
		c.logger.Error("graph rebuild failed, keeping old graph", "error", err)
		return false
	}
	if c.opts.FramePeriod > 0 && time.Since(start) > c.opts.FramePeriod {
		c.setLastError(errors.Newf("rebuild exceeded frame period").
			Component("processing").
			Category(errors.CategoryTimeout).
			Context("elapsed", time.Since(start).String()).
			Build())
		c.logger.Error("graph rebuild exceeded frame period, keeping old graph",
			"elapsed", time.Since(start), "frame_period", c.opts.FramePeriod)
		return false
	}

	newGraph.ImportStatistics(c.graph.Statistics())
	newGraph.SetFrameBudget(c.opts.FramePeriod)
	c.finalizeNodes()
	c.graph = newGraph
	c.logger.Info("graph rebuilt",
		"nodes", newGraph.NodeCount(),
		"connections", newGraph.ConnectionCount(),
		"elapsed", time.Since(start))
	return true
}

func (c *Consumer) finalizeNodes() {
	for _, id := range c.graph.NodeIDs() {
		node, _ := c.graph.Node(id)
		if f, ok := node.(Finalizer); ok {
			if err := f.Finalize(); err != nil {
				c.logger.Warn("node finalization failed", "node_id", id, "error", err)
			}
		}
	}
}

func (c *Consumer) setLastError(err error) {
	c.snapshotMu.Lock()
	c.lastError = err.Error()
	c.snapshotMu.Unlock()
}

func (c *Consumer) publishSnapshot() {
	snapshot := c.graph.ToSerializable()
	c.snapshotMu.Lock()
	c.snapshot = snapshot
	c.snapshotMu.Unlock()
}

// Snapshot returns the latest published serialized graph. Safe for
// concurrent readers; the graph itself is never shared.
func (c *Consumer) Snapshot() SerializableGraph {
	c.snapshotMu.RLock()
	defer c.snapshotMu.RUnlock()
	return c.snapshot
}

// LastError returns the most recent surfaced error message, empty when none.
func (c *Consumer) LastError() string {
	c.snapshotMu.RLock()
	defer c.snapshotMu.RUnlock()
	return c.lastError
}

// Stats reports consumer-level counters.
func (c *Consumer) Stats() (framesSeen, framesLagged, hotReloads, rebuilds uint64) {
	return c.framesSeen.Load(), c.framesLagged.Load(), c.hotReloads.Load(), c.rebuilds.Load()
}
