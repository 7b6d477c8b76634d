// Package daemon assembles the analyzer: audio source, shared stream,
// processing consumer, action drivers, Modbus publisher, HTTP API and
// metrics, all under one cancellation domain.
package daemon

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sonoptix/photoacoustic-go/internal/acquisition"
	"github.com/sonoptix/photoacoustic-go/internal/action"
	"github.com/sonoptix/photoacoustic-go/internal/api"
	"github.com/sonoptix/photoacoustic-go/internal/computing"
	"github.com/sonoptix/photoacoustic-go/internal/conf"
	"github.com/sonoptix/photoacoustic-go/internal/errors"
	"github.com/sonoptix/photoacoustic-go/internal/logging"
	"github.com/sonoptix/photoacoustic-go/internal/modbusd"
	"github.com/sonoptix/photoacoustic-go/internal/observability"
	"github.com/sonoptix/photoacoustic-go/internal/processing"
	"github.com/sonoptix/photoacoustic-go/internal/processing/nodes"
)

// Daemon owns the long-running tasks of the analyzer.
type Daemon struct {
	settings *conf.Settings

	stream    *acquisition.SharedAudioStream
	state     *computing.SharedState
	streaming *nodes.StreamingRegistry
	consumer  *processing.Consumer
	dispatch  *action.Dispatcher
	metrics   *observability.Metrics

	logger *slog.Logger
}

// New wires the daemon from settings. The audio source itself is opened in
// Run so that construction never touches hardware.
func New(settings *conf.Settings) (*Daemon, error) {
	logger := logging.ForService("daemon")
	if logger == nil {
		logger = slog.Default()
	}

	d := &Daemon{
		settings:  settings,
		stream:    acquisition.NewSharedAudioStream(0),
		state:     computing.NewSharedState(),
		streaming: nodes.NewStreamingRegistry(),
		metrics:   observability.NewMetrics(),
		logger:    logger,
	}

	deps := nodes.BuildDeps{
		ComputingState:    d.state,
		StreamingRegistry: d.streaming,
	}
	builder := func(cfg *conf.GraphConfig) (*processing.Graph, error) {
		return nodes.BuildGraph(cfg, deps)
	}

	graph, err := builder(&settings.Processing.DefaultGraph)
	if err != nil {
		return nil, err
	}
	if err := graph.Validate(); err != nil {
		return nil, err
	}

	frameSize := settings.Photoacoustic.FrameSize
	sampleRate := settings.Photoacoustic.SampleRate
	framePeriod := time.Duration(frameSize) * time.Second / time.Duration(sampleRate)
	graph.SetFrameBudget(framePeriod)

	d.consumer = processing.NewConsumer(
		d.stream.Subscribe(),
		graph,
		builder,
		conf.Setting,
		processing.ConsumerOptions{FramePeriod: framePeriod},
	)

	workers, err := buildDriverWorkers(&settings.Drivers)
	if err != nil {
		return nil, err
	}
	d.dispatch = action.NewDispatcher(d.state, workers)

	return d, nil
}

func buildDriverWorkers(cfg *conf.DriverSettings) ([]*action.Worker, error) {
	var workers []*action.Worker

	if cfg.HTTP.Enabled {
		driver, err := action.NewHTTPCallbackDriver(
			cfg.HTTP.CallbackURL,
			cfg.HTTP.AuthHeader,
			cfg.HTTP.Headers,
			time.Duration(cfg.HTTP.TimeoutMS)*time.Millisecond,
		)
		if err != nil {
			return nil, err
		}
		workers = append(workers, action.NewWorker(driver, 0))
	}
	if cfg.Redis.Enabled {
		driver, err := action.NewRedisDriver(
			cfg.Redis.Address,
			cfg.Redis.Channel,
			action.RedisDriverMode(cfg.Redis.Mode),
			time.Duration(cfg.Redis.ExpirySecond)*time.Second,
		)
		if err != nil {
			return nil, err
		}
		workers = append(workers, action.NewWorker(driver, 0))
	}
	if cfg.Kafka.Enabled {
		driver, err := action.NewKafkaDriver(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, err
		}
		workers = append(workers, action.NewWorker(driver, 0))
	}
	if cfg.MQTT.Enabled {
		driver, err := action.NewMQTTDriver(
			cfg.MQTT.Broker,
			cfg.MQTT.Topic,
			cfg.MQTT.Username,
			cfg.MQTT.Password,
		)
		if err != nil {
			return nil, err
		}
		workers = append(workers, action.NewWorker(driver, 0))
	}
	return workers, nil
}

// Run opens the audio source and drives every task until ctx is cancelled
// or the source is exhausted.
func (d *Daemon) Run(ctx context.Context) error {
	source, err := acquisition.NewSource(&d.settings.Photoacoustic)
	if err != nil {
		return err
	}
	// Live devices pace themselves; files and generators need pacing.
	pace := d.settings.Photoacoustic.SimulatedSource.Enabled || d.settings.Photoacoustic.InputFile != ""
	producer := acquisition.NewProducer(source, d.stream, pace)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return producer.Run(ctx) })
	g.Go(func() error { return d.consumer.Run(ctx) })
	g.Go(func() error { return d.dispatch.Run(ctx) })
	g.Go(func() error { return d.runMetricsPump(ctx) })

	if d.settings.Photoacoustic.RecordConsumer {
		recorder, err := newRecordConsumer(d.stream.Subscribe(), &d.settings.Photoacoustic)
		if err != nil {
			return err
		}
		g.Go(func() error { return recorder.Run(ctx) })
	}

	if d.settings.Modbus.Enabled {
		server, err := modbusd.NewServer(&d.settings.Modbus, d.state)
		if err != nil {
			return err
		}
		g.Go(func() error { return server.Run(ctx) })
	}

	if d.settings.API.Enabled {
		server := api.NewServer(
			d.settings.API.Listen,
			d.consumer,
			d.state,
			d.dispatch,
			d.streaming,
			d.metrics,
		)
		g.Go(func() error { return server.Run(ctx) })
	}

	d.logger.Info("daemon started",
		"sample_rate", d.settings.Photoacoustic.SampleRate,
		"frame_size", d.settings.Photoacoustic.FrameSize)

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// runMetricsPump mirrors internal counters into prometheus gauges once a
// second. Gauges read by scrape are cheaper than instrumenting the hot path.
func (d *Daemon) runMetricsPump(ctx context.Context) error {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			d.pumpMetrics()
		}
	}
}

func (d *Daemon) pumpMetrics() {
	m := d.metrics
	m.FramesPublished.Set(float64(d.stream.PublishedFrames()))

	frames, lagged, hotReloads, rebuilds := d.consumer.Stats()
	m.FramesProcessed.Set(float64(frames))
	m.FramesLagged.Set(float64(lagged))
	m.HotReloads.Set(float64(hotReloads))
	m.Rebuilds.Set(float64(rebuilds))

	snapshot := d.consumer.Snapshot()
	for i := range snapshot.Nodes {
		n := &snapshot.Nodes[i]
		m.NodeExecutionMS.WithLabelValues(n.ID, n.NodeType).Set(float64(n.Statistics.Average()) / float64(time.Millisecond))
		m.NodeErrors.WithLabelValues(n.ID, n.NodeType).Set(float64(n.Statistics.ErrorCount))
	}

	for name, st := range d.dispatch.Statuses() {
		m.DriverDelivered.WithLabelValues(name).Set(float64(st.Delivered))
		m.DriverFailed.WithLabelValues(name).Set(float64(st.Failed))
	}

	state := d.state.GetSnapshot()
	if state.PeakFrequency != nil {
		m.PeakFrequencyHz.Set(*state.PeakFrequency)
	}
	if state.PeakAmplitude != nil {
		m.PeakAmplitude.Set(*state.PeakAmplitude)
	}
	if state.ConcentrationPPM != nil {
		m.ConcentrationPPM.Set(*state.ConcentrationPPM)
	}
}
