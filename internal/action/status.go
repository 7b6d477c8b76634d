package action

import (
	"sync"
	"time"
)

// statusTracker provides the concurrency-safe bookkeeping behind GetStatus,
// shared by every driver implementation.
type statusTracker struct {
	mu     sync.Mutex
	status DriverStatus
}

func newStatusTracker(driverType string) statusTracker {
	return statusTracker{status: DriverStatus{DriverType: driverType}}
}

func (st *statusTracker) setConnected(connected bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if connected && !st.status.Connected && st.status.Delivered+st.status.Failed > 0 {
		st.status.Reconnects++
	}
	st.status.Connected = connected
}

func (st *statusTracker) recordDelivery() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.status.Delivered++
	st.status.LastDelivery = time.Now()
	st.status.LastError = ""
}

func (st *statusTracker) recordFailure(err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.status.Failed++
	st.status.LastError = err.Error()
	st.status.Connected = false
}

func (st *statusTracker) snapshot() DriverStatus {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.status
}
