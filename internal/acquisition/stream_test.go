package acquisition

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeFrame(samples int) AudioFrame {
	return AudioFrame{
		ChannelA:   make([]float32, samples),
		ChannelB:   make([]float32, samples),
		SampleRate: 48000,
	}
}

func TestSharedAudioStream_FrameNumbersMonotonic(t *testing.T) {
	stream := NewSharedAudioStream(16)
	consumer := stream.Subscribe()

	for i := 0; i < 10; i++ {
		stream.Publish(makeFrame(4))
	}
	stream.Close()

	ctx := context.Background()
	var last uint64
	for i := 0; i < 10; i++ {
		frame, err := consumer.Recv(ctx)
		require.NoError(t, err)
		assert.Greater(t, frame.FrameNumber, last, "frame numbers must be strictly increasing")
		last = frame.FrameNumber
	}
	_, err := consumer.Recv(ctx)
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestSharedAudioStream_BroadcastExactlyOnce(t *testing.T) {
	const consumers = 4
	const frames = 100

	stream := NewSharedAudioStream(frames + 1)
	handles := make([]*StreamConsumer, consumers)
	for i := range handles {
		handles[i] = stream.Subscribe()
	}

	var wg sync.WaitGroup
	received := make([][]uint64, consumers)
	for i, h := range handles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := context.Background()
			for {
				frame, err := h.Recv(ctx)
				if err != nil {
					return
				}
				received[i] = append(received[i], frame.FrameNumber)
			}
		}()
	}

	for i := 0; i < frames; i++ {
		stream.Publish(makeFrame(4))
	}
	stream.Close()
	wg.Wait()

	for i := 0; i < consumers; i++ {
		require.Len(t, received[i], frames, "consumer %d should see every frame exactly once", i)
		for j := 0; j < frames; j++ {
			assert.Equal(t, uint64(j+1), received[i][j])
		}
	}
}

func TestSharedAudioStream_SlowConsumerLags(t *testing.T) {
	const capacity = 8
	stream := NewSharedAudioStream(capacity)
	consumer := stream.Subscribe()

	// Publish far more than the backlog while the consumer sleeps.
	const published = 50
	for i := 0; i < published; i++ {
		stream.Publish(makeFrame(4))
	}

	ctx := context.Background()
	_, err := consumer.Recv(ctx)
	var lag *FrameLagError
	require.ErrorAs(t, err, &lag)
	assert.GreaterOrEqual(t, lag.Count, uint64(published-capacity))
	assert.Equal(t, lag.Count, consumer.DroppedFrames())

	// Subsequent frames are still strictly increasing and the gap is
	// observable.
	frame, err := consumer.Recv(ctx)
	require.NoError(t, err)
	assert.Greater(t, frame.FrameNumber, uint64(capacity))

	last := frame.FrameNumber
	for {
		frame, ok, err := consumer.TryRecv()
		require.NoError(t, err)
		if !ok {
			break
		}
		assert.Greater(t, frame.FrameNumber, last)
		last = frame.FrameNumber
	}
	assert.Equal(t, uint64(published), last, "newest frame must be retained")
}

func TestSharedAudioStream_CloseDrainsBufferedFrames(t *testing.T) {
	stream := NewSharedAudioStream(16)
	consumer := stream.Subscribe()

	for i := 0; i < 5; i++ {
		stream.Publish(makeFrame(4))
	}
	stream.Close()

	// Publishing after close is a no-op.
	stream.Publish(makeFrame(4))

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		frame, err := consumer.Recv(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), frame.FrameNumber)
	}
	_, err := consumer.Recv(ctx)
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestSharedAudioStream_RecvRespectsContext(t *testing.T) {
	stream := NewSharedAudioStream(4)
	consumer := stream.Subscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := consumer.Recv(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSharedAudioStream_Unsubscribe(t *testing.T) {
	stream := NewSharedAudioStream(4)
	consumer := stream.Subscribe()
	assert.Equal(t, 1, stream.ConsumerCount())

	consumer.Unsubscribe()
	assert.Equal(t, 0, stream.ConsumerCount())

	// Publishing after unsubscribe must not panic.
	stream.Publish(makeFrame(4))
}
