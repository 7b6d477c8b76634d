package acquisition

import (
	"context"
	"log/slog"
	"time"

	"github.com/sonoptix/photoacoustic-go/internal/conf"
	"github.com/sonoptix/photoacoustic-go/internal/errors"
	"github.com/sonoptix/photoacoustic-go/internal/logging"
)

// AudioSource produces stereo sample blocks. Implementations are not safe for
// concurrent use; the producer task is the only caller.
type AudioSource interface {
	// ReadFrame returns the next block of samples for both channels. The
	// returned slices have equal length. io semantics: a source that is
	// exhausted (end of file) or broken returns an error; there is no
	// partial frame.
	ReadFrame() (channelA, channelB []float32, err error)

	// SampleRate returns the sample rate of this source in Hz.
	SampleRate() uint32

	// Close releases the underlying device or file.
	Close() error
}

// NewSource builds the audio source selected by the configuration:
// simulated generator, WAV file, or capture device, in that precedence.
func NewSource(pa *conf.PhotoacousticSettings) (AudioSource, error) {
	switch {
	case pa.SimulatedSource.Enabled:
		return NewSimulatedSource(SimulatedConfig{
			Frequency:   pa.SimulatedSource.Frequency,
			Correlation: pa.SimulatedSource.Correlation,
			NoiseLevel:  pa.SimulatedSource.NoiseLevel,
			SampleRate:  uint32(pa.SampleRate),
			FrameSize:   pa.FrameSize,
		})
	case pa.InputFile != "":
		return NewFileSource(pa.InputFile, pa.FrameSize)
	case pa.InputDevice != "":
		return NewDeviceSource(pa.InputDevice, uint32(pa.SampleRate), pa.FrameSize)
	default:
		return nil, errors.Newf("no audio source configured").
			Component("acquisition").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// Producer drives an AudioSource and publishes its frames onto the shared
// stream. It owns the source and closes it on exit.
type Producer struct {
	source AudioSource
	stream *SharedAudioStream
	pace   bool
	logger *slog.Logger
}

// NewProducer creates a producer task. pace selects real-time pacing: file
// and simulated sources would otherwise publish as fast as the CPU allows.
func NewProducer(source AudioSource, stream *SharedAudioStream, pace bool) *Producer {
	logger := logging.ForService("acquisition")
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{
		source: source,
		stream: stream,
		pace:   pace,
		logger: logger.With("component", "producer"),
	}
}

// Run reads frames until the source is exhausted or ctx is cancelled, then
// closes the stream so consumers can drain and observe the end. Source errors
// terminate the producer; consumers see a closed stream, not the error.
func (p *Producer) Run(ctx context.Context) error {
	defer p.stream.Close()
	defer func() {
		if err := p.source.Close(); err != nil {
			p.logger.Warn("closing audio source", "error", err)
		}
	}()

	var ticker *time.Ticker
	if p.pace {
		// One tick per frame period.
		chA, chB, err := p.source.ReadFrame()
		if err != nil {
			return p.sourceError(err)
		}
		period := time.Duration(len(chA)) * time.Second / time.Duration(p.source.SampleRate())
		if period <= 0 {
			period = time.Millisecond
		}
		ticker = time.NewTicker(period)
		defer ticker.Stop()
		p.publish(chA, chB)
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("producer stopping", "frames_published", p.stream.PublishedFrames())
			return nil
		default:
		}

		if ticker != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}

		chA, chB, err := p.source.ReadFrame()
		if err != nil {
			return p.sourceError(err)
		}
		p.publish(chA, chB)
	}
}

func (p *Producer) publish(chA, chB []float32) {
	p.stream.Publish(AudioFrame{
		ChannelA:   chA,
		ChannelB:   chB,
		SampleRate: p.source.SampleRate(),
	})
}

func (p *Producer) sourceError(err error) error {
	if errors.Is(err, errEndOfSource) {
		p.logger.Info("audio source exhausted", "frames_published", p.stream.PublishedFrames())
		return nil
	}
	p.logger.Error("audio source failed", "error", err)
	return errors.New(err).
		Component("acquisition").
		Category(errors.CategoryAudioSource).
		Build()
}
