package action

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDriver records calls and can be told to fail.
type fakeDriver struct {
	mu           sync.Mutex
	initialized  int
	measurements []*MeasurementData
	alerts       []*AlertData
	cleared      bool
	shutdown     bool
	failNext     int

	statusTracker
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{statusTracker: newStatusTracker("fake")}
}

func (d *fakeDriver) Initialize(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.initialized++
	d.setConnected(true)
	return nil
}

func (d *fakeDriver) UpdateDisplay(ctx context.Context, data *MeasurementData) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failNext > 0 {
		d.failNext--
		err := fmt.Errorf("transient failure")
		d.recordFailure(err)
		return err
	}
	d.measurements = append(d.measurements, data)
	d.recordDelivery()
	return nil
}

func (d *fakeDriver) ShowAlert(ctx context.Context, alert *AlertData) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alerts = append(d.alerts, alert)
	d.recordDelivery()
	return nil
}

func (d *fakeDriver) ClearDisplay(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cleared = true
	return nil
}

func (d *fakeDriver) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shutdown = true
	return nil
}

func (d *fakeDriver) GetStatus() DriverStatus { return d.snapshot() }
func (d *fakeDriver) DriverType() string      { return "fake" }
func (d *fakeDriver) SupportsRealtime() bool  { return true }

func (d *fakeDriver) measurementCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.measurements)
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestWorker_DeliversMeasurements(t *testing.T) {
	driver := newFakeDriver()
	worker := NewWorker(driver, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { defer close(done); _ = worker.Run(ctx) }()

	worker.Deliver(measurement())
	waitUntil(t, time.Second, func() bool { return driver.measurementCount() == 1 }, "expected delivery")

	cancel()
	<-done
	assert.True(t, driver.cleared, "shutdown clears the display")
	assert.True(t, driver.shutdown)
}

func TestWorker_MailboxDropsOldestWhenFull(t *testing.T) {
	driver := newFakeDriver()
	worker := NewWorker(driver, 0)

	// Without a running worker the mailbox fills; overflow drops the
	// oldest entries, never blocks.
	for i := 0; i < mailboxCapacity+5; i++ {
		data := measurement()
		data.ConcentrationPPM = float64(i)
		worker.Deliver(data)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { defer close(done); _ = worker.Run(ctx) }()

	waitUntil(t, time.Second, func() bool {
		return driver.measurementCount() == mailboxCapacity
	}, "expected exactly the mailbox capacity worth of deliveries")

	driver.mu.Lock()
	newest := driver.measurements[len(driver.measurements)-1].ConcentrationPPM
	driver.mu.Unlock()
	assert.Equal(t, float64(mailboxCapacity+4), newest, "the newest event must survive")

	cancel()
	<-done
}

func TestWorker_ReconnectsAfterFailure(t *testing.T) {
	driver := newFakeDriver()
	driver.failNext = 1
	worker := NewWorker(driver, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { defer close(done); _ = worker.Run(ctx) }()

	worker.Deliver(measurement())

	// The failed delivery triggers a reconnect (second Initialize) and a
	// redelivery of the same event.
	waitUntil(t, 2*time.Second, func() bool {
		driver.mu.Lock()
		defer driver.mu.Unlock()
		return driver.initialized >= 2 && len(driver.measurements) == 1
	}, "expected reconnect and redelivery")

	cancel()
	<-done
}

func TestDispatcher_StatusesReportsAllDrivers(t *testing.T) {
	d1 := newFakeDriver()
	workers := []*Worker{NewWorker(d1, 0)}
	dispatcher := NewDispatcher(nil, workers)

	statuses := dispatcher.Statuses()
	require.Contains(t, statuses, "fake")
	assert.Equal(t, "fake", statuses["fake"].DriverType)
}
