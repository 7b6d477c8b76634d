package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sonoptix/photoacoustic-go/internal/errors"
)

// HTTPCallbackDriver POSTs measurements and alerts as JSON to a callback URL.
type HTTPCallbackDriver struct {
	callbackURL string
	authHeader  string
	headers     map[string]string
	client      *http.Client

	statusTracker
}

// NewHTTPCallbackDriver creates the driver. timeout <= 0 selects
// DefaultCallTimeout for the underlying client.
func NewHTTPCallbackDriver(callbackURL, authHeader string, headers map[string]string, timeout time.Duration) (*HTTPCallbackDriver, error) {
	if callbackURL == "" {
		return nil, errors.Newf("http driver requires a callback URL").
			Component("action").
			Category(errors.CategoryValidation).
			Build()
	}
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &HTTPCallbackDriver{
		callbackURL:   callbackURL,
		authHeader:    authHeader,
		headers:       headers,
		client:        &http.Client{Timeout: timeout},
		statusTracker: newStatusTracker("https_callback"),
	}, nil
}

// Initialize is a no-op for a stateless HTTP client beyond marking the
// driver usable; connectivity is probed by the first delivery.
func (d *HTTPCallbackDriver) Initialize(ctx context.Context) error {
	d.setConnected(true)
	return nil
}

func (d *HTTPCallbackDriver) UpdateDisplay(ctx context.Context, data *MeasurementData) error {
	return d.post(ctx, map[string]any{"type": "measurement", "data": data})
}

func (d *HTTPCallbackDriver) ShowAlert(ctx context.Context, alert *AlertData) error {
	return d.post(ctx, map[string]any{"type": "alert", "data": alert})
}

func (d *HTTPCallbackDriver) ClearDisplay(ctx context.Context) error {
	return d.post(ctx, map[string]any{"type": "clear"})
}

func (d *HTTPCallbackDriver) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.callbackURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.authHeader != "" {
		req.Header.Set("Authorization", d.authHeader)
	}
	for k, v := range d.headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		d.recordFailure(err)
		return errors.New(err).
			Component("action").
			Category(errors.CategoryNetwork).
			Context("url", d.callbackURL).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("callback returned status %d", resp.StatusCode)
		d.recordFailure(err)
		return errors.New(err).
			Component("action").
			Category(errors.CategoryNetwork).
			Context("url", d.callbackURL).
			Context("status", resp.StatusCode).
			Build()
	}
	d.recordDelivery()
	return nil
}

func (d *HTTPCallbackDriver) Shutdown(ctx context.Context) error {
	d.client.CloseIdleConnections()
	d.setConnected(false)
	return nil
}

func (d *HTTPCallbackDriver) GetStatus() DriverStatus {
	return d.snapshot()
}

func (d *HTTPCallbackDriver) DriverType() string {
	return "https_callback"
}

func (d *HTTPCallbackDriver) SupportsRealtime() bool {
	return true
}
