package daemon

import (
	"context"
	"log/slog"

	"github.com/sonoptix/photoacoustic-go/internal/acquisition"
	"github.com/sonoptix/photoacoustic-go/internal/conf"
	"github.com/sonoptix/photoacoustic-go/internal/errors"
	"github.com/sonoptix/photoacoustic-go/internal/logging"
	"github.com/sonoptix/photoacoustic-go/internal/processing"
	"github.com/sonoptix/photoacoustic-go/internal/processing/nodes"
)

// recordConsumer archives raw stream frames to a WAV file on its own
// subscription, independent of the processing graph. It doubles as a live
// validation of the multi-consumer broadcast.
type recordConsumer struct {
	stream *acquisition.StreamConsumer
	node   *nodes.RecordNode
	logger *slog.Logger
}

func newRecordConsumer(stream *acquisition.StreamConsumer, pa *conf.PhotoacousticSettings) (*recordConsumer, error) {
	node, err := nodes.NewRecordNode("record_consumer", map[string]any{
		"path": pa.RecordFile,
	})
	if err != nil {
		return nil, err
	}
	logger := logging.ForService("daemon")
	if logger == nil {
		logger = slog.Default()
	}
	return &recordConsumer{
		stream: stream,
		node:   node,
		logger: logger.With("component", "record_consumer"),
	}, nil
}

func (rc *recordConsumer) Run(ctx context.Context) error {
	defer func() {
		if err := rc.node.Finalize(); err != nil {
			rc.logger.Warn("finalizing record file failed", "error", err)
		}
	}()

	for {
		frame, err := rc.stream.Recv(ctx)
		switch {
		case err == nil:
			if _, perr := rc.node.Process(processing.FromAudioFrame(frame)); perr != nil {
				rc.logger.Warn("recording frame failed", "error", perr)
			}
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		case errors.Is(err, acquisition.ErrStreamClosed):
			return nil
		default:
			var lag *acquisition.FrameLagError
			if errors.As(err, &lag) {
				rc.logger.Debug("record consumer lagged", "dropped_frames", lag.Count)
				continue
			}
			return err
		}
	}
}
