package acquisition

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/sonoptix/photoacoustic-go/internal/logging"
)

// DefaultStreamCapacity is the per-consumer backlog in frames.
const DefaultStreamCapacity = 1024

// ErrStreamClosed is returned by Recv after the producer closed the stream
// and the consumer drained its backlog.
var ErrStreamClosed = fmt.Errorf("audio stream closed")

// FrameLagError reports frames dropped for a slow consumer since its last
// successful receive. It is a signal, not a failure: the next Recv resumes
// with the oldest retained frame.
type FrameLagError struct {
	Count uint64
}

func (e *FrameLagError) Error() string {
	return fmt.Sprintf("consumer lagged, %d frames dropped", e.Count)
}

// SharedAudioStream broadcasts frames from a single producer to any number of
// consumers. Each consumer owns a bounded backlog; when it is full the oldest
// frame is dropped so that publication never blocks the producer.
type SharedAudioStream struct {
	mu        sync.RWMutex
	consumers map[uint64]*StreamConsumer
	capacity  int
	closed    bool

	nextConsumerID atomic.Uint64
	frameCounter   atomic.Uint64
	published      atomic.Uint64
	logger         *slog.Logger
}

// StreamConsumer is one subscriber's handle onto the stream.
type StreamConsumer struct {
	id      uint64
	ch      chan AudioFrame
	lagged  atomic.Uint64
	dropped atomic.Uint64
	stream  *SharedAudioStream
}

// NewSharedAudioStream creates a stream with the given per-consumer backlog.
// capacity <= 0 selects DefaultStreamCapacity.
func NewSharedAudioStream(capacity int) *SharedAudioStream {
	if capacity <= 0 {
		capacity = DefaultStreamCapacity
	}
	logger := logging.ForService("acquisition")
	if logger == nil {
		logger = slog.Default()
	}
	return &SharedAudioStream{
		consumers: make(map[uint64]*StreamConsumer),
		capacity:  capacity,
		logger:    logger.With("component", "shared_audio_stream"),
	}
}

// Publish stamps the frame with the next frame number and fans it out.
// It never blocks: a consumer whose backlog is full loses its oldest frame
// and has its lag counter incremented. Publishing on a closed stream is a
// no-op.
func (s *SharedAudioStream) Publish(frame AudioFrame) {
	frame.FrameNumber = s.frameCounter.Add(1)
	frame.Timestamp = nowMicros()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	s.published.Add(1)
	for _, c := range s.consumers {
		select {
		case c.ch <- frame:
		default:
			// Backlog full: drop the oldest frame, then retry once. The
			// second send can still lose the race against a concurrent
			// subscriber pile-up; count the new frame as dropped then.
			select {
			case <-c.ch:
				c.lagged.Add(1)
				c.dropped.Add(1)
			default:
			}
			select {
			case c.ch <- frame:
			default:
				c.lagged.Add(1)
				c.dropped.Add(1)
			}
		}
	}
}

// Subscribe registers a new consumer starting at the current head.
func (s *SharedAudioStream) Subscribe() *StreamConsumer {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &StreamConsumer{
		id:     s.nextConsumerID.Add(1),
		ch:     make(chan AudioFrame, s.capacity),
		stream: s,
	}
	if s.closed {
		close(c.ch)
		return c
	}
	s.consumers[c.id] = c
	s.logger.Debug("consumer subscribed", "consumer_id", c.id, "capacity", s.capacity)
	return c
}

// Close stops the stream. Consumers drain their buffered frames and then
// observe ErrStreamClosed.
func (s *SharedAudioStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, c := range s.consumers {
		close(c.ch)
		delete(s.consumers, id)
	}
	s.logger.Info("audio stream closed", "frames_published", s.published.Load())
}

// PublishedFrames returns the total number of frames published.
func (s *SharedAudioStream) PublishedFrames() uint64 {
	return s.published.Load()
}

// ConsumerCount returns the number of active subscribers.
func (s *SharedAudioStream) ConsumerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.consumers)
}

// Recv returns the next frame for this consumer. If frames were dropped since
// the last receive it first returns a *FrameLagError carrying the count; the
// following call resumes with the oldest retained frame. After the producer
// closes the stream, buffered frames are drained before ErrStreamClosed.
func (c *StreamConsumer) Recv(ctx context.Context) (AudioFrame, error) {
	if n := c.lagged.Swap(0); n > 0 {
		return AudioFrame{}, &FrameLagError{Count: n}
	}
	select {
	case frame, ok := <-c.ch:
		if !ok {
			return AudioFrame{}, ErrStreamClosed
		}
		return frame, nil
	case <-ctx.Done():
		return AudioFrame{}, ctx.Err()
	}
}

// TryRecv returns the next buffered frame without blocking. ok is false when
// the backlog is empty.
func (c *StreamConsumer) TryRecv() (frame AudioFrame, ok bool, err error) {
	if n := c.lagged.Swap(0); n > 0 {
		return AudioFrame{}, false, &FrameLagError{Count: n}
	}
	select {
	case frame, open := <-c.ch:
		if !open {
			return AudioFrame{}, false, ErrStreamClosed
		}
		return frame, true, nil
	default:
		return AudioFrame{}, false, nil
	}
}

// Frames exposes the consumer's receive channel for use in select loops.
// The channel closes after the producer closes the stream and the backlog
// drains. Callers using Frames directly should drain TakeLag around
// receives to observe drops.
func (c *StreamConsumer) Frames() <-chan AudioFrame {
	return c.ch
}

// TakeLag returns and clears the number of frames dropped since the last
// call.
func (c *StreamConsumer) TakeLag() uint64 {
	return c.lagged.Swap(0)
}

// DroppedFrames returns the total frames this consumer lost to backlog
// overflow.
func (c *StreamConsumer) DroppedFrames() uint64 {
	return c.dropped.Load()
}

// Unsubscribe detaches the consumer from the stream. Buffered frames remain
// readable until drained.
func (c *StreamConsumer) Unsubscribe() {
	c.stream.mu.Lock()
	defer c.stream.mu.Unlock()
	if _, ok := c.stream.consumers[c.id]; ok {
		delete(c.stream.consumers, c.id)
		close(c.ch)
	}
}
