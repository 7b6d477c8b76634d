// Package action delivers measurement and alert events to external sinks
// through pluggable drivers (HTTP callback, Redis, Kafka, MQTT). Driver
// failures never propagate into the processing path: each driver runs on its
// own task behind a bounded drop-oldest mailbox, retries with backoff, and
// reconnects on transport errors.
package action

import (
	"context"
	"time"
)

// DefaultCallTimeout bounds every driver call. On timeout the call fails and
// the driver enters reconnect.
const DefaultCallTimeout = 2 * time.Second

// MeasurementData is the latest measurement delivered to a driver.
type MeasurementData struct {
	ConcentrationPPM float64        `json:"concentration_ppm"`
	SourceNodeID     string         `json:"source_node_id"`
	PeakAmplitude    float64        `json:"peak_amplitude"`
	PeakFrequency    float64        `json:"peak_frequency"`
	Timestamp        time.Time      `json:"timestamp"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// AlertData is a threshold event delivered to a driver.
type AlertData struct {
	AlertType string         `json:"alert_type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// DriverStatus is the introspection snapshot returned by GetStatus.
type DriverStatus struct {
	DriverType   string    `json:"driver_type"`
	Connected    bool      `json:"connected"`
	LastDelivery time.Time `json:"last_delivery,omitzero"`
	LastError    string    `json:"last_error,omitempty"`
	Delivered    uint64    `json:"delivered"`
	Failed       uint64    `json:"failed"`
	Reconnects   uint64    `json:"reconnects"`
}

// Driver is the contract every action driver implements. Implementations
// are called from a single worker goroutine; they do not need internal
// synchronization beyond what their client library requires, except for
// GetStatus which may be called concurrently.
type Driver interface {
	// Initialize establishes the transport. Idempotent: a connected
	// driver returns nil immediately.
	Initialize(ctx context.Context) error

	// UpdateDisplay delivers the latest measurement.
	UpdateDisplay(ctx context.Context, data *MeasurementData) error

	// ShowAlert delivers a threshold event.
	ShowAlert(ctx context.Context, alert *AlertData) error

	// ClearDisplay returns the sink to its idle state.
	ClearDisplay(ctx context.Context) error

	// Shutdown releases the transport.
	Shutdown(ctx context.Context) error

	// GetStatus returns diagnostic information. Safe for concurrent use.
	GetStatus() DriverStatus

	// DriverType identifies the driver for logging.
	DriverType() string

	// SupportsRealtime reports whether the sink handles per-measurement
	// updates or only periodic batches.
	SupportsRealtime() bool
}
