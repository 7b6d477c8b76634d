package action

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sonoptix/photoacoustic-go/internal/logging"
)

// mailboxCapacity bounds each driver's input queue. Overflow drops the
// oldest pending event to protect the real-time path.
const mailboxCapacity = 8

type event struct {
	measurement *MeasurementData
	alert       *AlertData
}

// Worker owns one driver on its own task. Events arrive through a bounded
// mailbox; delivery failures trigger reconnection with exponential backoff
// while newer events keep replacing older ones in the mailbox.
type Worker struct {
	driver      Driver
	mailbox     chan event
	callTimeout time.Duration
	logger      *slog.Logger
}

// NewWorker wraps a driver. callTimeout <= 0 selects DefaultCallTimeout.
func NewWorker(driver Driver, callTimeout time.Duration) *Worker {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	logger := logging.ForService("action")
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		driver:      driver,
		mailbox:     make(chan event, mailboxCapacity),
		callTimeout: callTimeout,
		logger:      logger.With("component", "driver_worker", "driver", driver.DriverType()),
	}
}

// Driver returns the wrapped driver.
func (w *Worker) Driver() Driver {
	return w.driver
}

// Deliver enqueues a measurement, dropping the oldest pending event when the
// mailbox is full. Never blocks.
func (w *Worker) Deliver(data *MeasurementData) {
	w.enqueue(event{measurement: data})
}

// Alert enqueues a threshold event with the same overflow policy.
func (w *Worker) Alert(alert *AlertData) {
	w.enqueue(event{alert: alert})
}

func (w *Worker) enqueue(ev event) {
	select {
	case w.mailbox <- ev:
	default:
		select {
		case <-w.mailbox:
		default:
		}
		select {
		case w.mailbox <- ev:
		default:
		}
	}
}

// Run processes the mailbox until ctx is cancelled, then clears and shuts
// the driver down.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.initialize(ctx); err != nil {
		// Initialization keeps retrying inside deliver paths; log once.
		w.logger.Warn("driver initialization failed, will retry on delivery", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			w.teardown()
			return nil
		case ev := <-w.mailbox:
			w.handle(ctx, ev)
		}
	}
}

func (w *Worker) handle(ctx context.Context, ev event) {
	callCtx, cancel := context.WithTimeout(ctx, w.callTimeout)
	defer cancel()

	var err error
	switch {
	case ev.measurement != nil:
		err = w.driver.UpdateDisplay(callCtx, ev.measurement)
	case ev.alert != nil:
		err = w.driver.ShowAlert(callCtx, ev.alert)
	default:
		return
	}
	if err == nil {
		return
	}
	if ctx.Err() != nil {
		return
	}

	w.logger.Warn("delivery failed, reconnecting", "error", err)
	if rerr := w.reconnect(ctx); rerr != nil {
		w.logger.Error("reconnect failed", "error", rerr)
		return
	}
	// One redelivery attempt after a successful reconnect; afterwards the
	// event is lost, newer data supersedes it anyway.
	retryCtx, retryCancel := context.WithTimeout(ctx, w.callTimeout)
	defer retryCancel()
	switch {
	case ev.measurement != nil:
		err = w.driver.UpdateDisplay(retryCtx, ev.measurement)
	case ev.alert != nil:
		err = w.driver.ShowAlert(retryCtx, ev.alert)
	}
	if err != nil {
		w.logger.Warn("redelivery after reconnect failed", "error", err)
	}
}

func (w *Worker) initialize(ctx context.Context) error {
	initCtx, cancel := context.WithTimeout(ctx, w.callTimeout)
	defer cancel()
	return w.driver.Initialize(initCtx)
}

// reconnect re-initializes the driver with bounded exponential backoff.
func (w *Worker) reconnect(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return w.initialize(ctx)
	}, backoff.WithContext(policy, ctx))
}

func (w *Worker) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), w.callTimeout)
	defer cancel()
	if err := w.driver.ClearDisplay(ctx); err != nil {
		w.logger.Debug("clear display on shutdown failed", "error", err)
	}
	if err := w.driver.Shutdown(ctx); err != nil {
		w.logger.Warn("driver shutdown failed", "error", err)
	}
}
