package nodes

import (
	"sync"
	"sync/atomic"

	"github.com/sonoptix/photoacoustic-go/internal/processing"
)

// StreamingRegistry fans processed data out to interested live consumers
// (SSE handlers, websockets) keyed by stream id. Subscribers get a bounded
// channel with drop-oldest overflow so the graph never blocks on a slow
// browser.
type StreamingRegistry struct {
	mu      sync.RWMutex
	streams map[string][]chan processing.Data
}

// streamBacklog bounds the per-subscriber buffer.
const streamBacklog = 16

// NewStreamingRegistry creates an empty registry.
func NewStreamingRegistry() *StreamingRegistry {
	return &StreamingRegistry{streams: make(map[string][]chan processing.Data)}
}

// Subscribe returns a receive channel for the stream and a cancel function.
func (r *StreamingRegistry) Subscribe(streamID string) (<-chan processing.Data, func()) {
	ch := make(chan processing.Data, streamBacklog)
	r.mu.Lock()
	r.streams[streamID] = append(r.streams[streamID], ch)
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		subs := r.streams[streamID]
		for i, sub := range subs {
			if sub == ch {
				r.streams[streamID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
	return ch, cancel
}

// Publish delivers data to every subscriber of the stream, dropping the
// oldest buffered entry when a subscriber is full.
func (r *StreamingRegistry) Publish(streamID string, data processing.Data) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ch := range r.streams[streamID] {
		select {
		case ch <- data:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- data:
			default:
			}
		}
	}
}

// SubscriberCount returns the number of subscribers on a stream.
func (r *StreamingRegistry) SubscriberCount(streamID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams[streamID])
}

// StreamingNode publishes everything flowing through it to a registry
// endpoint keyed by stream_id, passing the data downstream unchanged.
type StreamingNode struct {
	id       string
	streamID string
	registry *StreamingRegistry
	outKind  processing.Kind
	frames   atomic.Uint64
}

// NewStreamingNode creates a streaming node. The stream id defaults to the
// node id.
func NewStreamingNode(id string, params map[string]any, registry *StreamingRegistry) *StreamingNode {
	return &StreamingNode{
		id:       id,
		streamID: paramString(params, "stream_id", id),
		registry: registry,
	}
}

func (n *StreamingNode) ID() string       { return n.id }
func (n *StreamingNode) NodeType() string { return "streaming" }

func (n *StreamingNode) Accepts(kind processing.Kind) bool {
	return kind != processing.KindEmpty
}

func (n *StreamingNode) OutputKind() processing.Kind {
	if n.outKind == "" {
		return processing.KindDualChannel
	}
	return n.outKind
}

// SetInputKind records the variant this node will receive.
func (n *StreamingNode) SetInputKind(kind processing.Kind) {
	n.outKind = kind
}

func (n *StreamingNode) Process(input processing.Data) (processing.Data, error) {
	if n.registry != nil {
		n.registry.Publish(n.streamID, input.Clone())
		n.frames.Add(1)
	}
	return input, nil
}

// PublishedFrames returns how many frames this node pushed to the registry.
func (n *StreamingNode) PublishedFrames() uint64 {
	return n.frames.Load()
}

func (n *StreamingNode) Reset() {}

func (n *StreamingNode) SupportsHotReload() bool { return false }

func (n *StreamingNode) UpdateConfig(params map[string]any) (bool, error) {
	return false, nil
}

func (n *StreamingNode) CloneNode() processing.Node {
	return &StreamingNode{
		id:       n.id,
		streamID: n.streamID,
		registry: n.registry,
		outKind:  n.outKind,
	}
}

func (n *StreamingNode) Parameters() map[string]any {
	return map[string]any{"stream_id": n.streamID}
}
