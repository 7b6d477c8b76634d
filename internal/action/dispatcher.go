package action

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sonoptix/photoacoustic-go/internal/computing"
	"github.com/sonoptix/photoacoustic-go/internal/logging"
)

// Dispatcher watches the shared computing state and fans new measurements
// out to every registered driver worker. It is the only bridge between the
// processing side and the drivers; the graph never calls a driver directly.
type Dispatcher struct {
	state   *computing.SharedState
	workers []*Worker

	// AlertThresholdPPM raises a concentration alert when exceeded.
	// Zero disables alerting.
	AlertThresholdPPM float64

	alertActive bool
	logger      *slog.Logger
}

// NewDispatcher creates a dispatcher over the shared state.
func NewDispatcher(state *computing.SharedState, workers []*Worker) *Dispatcher {
	logger := logging.ForService("action")
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		state:   state,
		workers: workers,
		logger:  logger.With("component", "dispatcher"),
	}
}

// Run starts every driver worker and forwards state updates until ctx is
// cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	if len(d.workers) == 0 {
		<-ctx.Done()
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, w := range d.workers {
		g.Go(func() error { return w.Run(ctx) })
	}
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-d.state.Updates():
				d.dispatch()
			}
		}
	})
	return g.Wait()
}

func (d *Dispatcher) dispatch() {
	snapshot := d.state.GetSnapshot()
	latest, ok := d.state.GetLatestPeakResult()
	if !ok {
		return
	}

	data := &MeasurementData{
		PeakFrequency: latest.Frequency,
		PeakAmplitude: latest.Amplitude,
		Timestamp:     latest.Timestamp,
	}
	if snapshot.ConcentrationPPM != nil {
		data.ConcentrationPPM = *snapshot.ConcentrationPPM
	}
	for _, id := range d.state.PeakFinderNodeIDs() {
		if r, found := d.state.GetPeakResult(id); found && r.Timestamp.Equal(latest.Timestamp) {
			data.SourceNodeID = id
			break
		}
	}

	for _, w := range d.workers {
		w.Deliver(data)
	}

	d.checkThreshold(data)
}

func (d *Dispatcher) checkThreshold(data *MeasurementData) {
	if d.AlertThresholdPPM <= 0 {
		return
	}
	exceeded := data.ConcentrationPPM > d.AlertThresholdPPM
	if exceeded && !d.alertActive {
		d.alertActive = true
		alert := &AlertData{
			AlertType: "concentration",
			Severity:  "critical",
			Message: fmt.Sprintf("concentration %.1f ppm exceeds threshold %.1f ppm",
				data.ConcentrationPPM, d.AlertThresholdPPM),
			Data: map[string]any{
				"concentration_ppm": data.ConcentrationPPM,
				"threshold_ppm":     d.AlertThresholdPPM,
				"source_node_id":    data.SourceNodeID,
			},
			Timestamp: time.Now(),
		}
		d.logger.Warn("concentration threshold exceeded",
			"concentration_ppm", data.ConcentrationPPM,
			"threshold_ppm", d.AlertThresholdPPM)
		for _, w := range d.workers {
			w.Alert(alert)
		}
	} else if !exceeded && d.alertActive {
		d.alertActive = false
		d.logger.Info("concentration back under threshold",
			"concentration_ppm", data.ConcentrationPPM)
	}
}

// Statuses returns every driver's status snapshot keyed by driver type.
func (d *Dispatcher) Statuses() map[string]DriverStatus {
	out := make(map[string]DriverStatus, len(d.workers))
	for _, w := range d.workers {
		st := w.Driver().GetStatus()
		out[st.DriverType] = st
	}
	return out
}
