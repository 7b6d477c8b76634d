// Package computing holds the shared analytical state published by peak
// finder and concentration nodes and read by the external APIs and action
// drivers.
package computing

import (
	"maps"
	"sort"
	"sync"
	"time"
)

// DefaultRecentWindow bounds how old a peak result may be and still count as
// recent for HasRecentPeakData.
const DefaultRecentWindow = 30 * time.Second

// PeakResult is one peak-finder measurement.
type PeakResult struct {
	// Frequency of the detected resonance peak in Hz.
	Frequency float64 `json:"frequency"`
	// Amplitude of the peak, normalized to [0,1].
	Amplitude float64 `json:"amplitude"`
	// ConcentrationPPM is filled in by a concentration calculator node.
	ConcentrationPPM *float64 `json:"concentration_ppm,omitempty"`
	// Timestamp of the measurement.
	Timestamp time.Time `json:"timestamp"`
	// CoherenceScore estimates how concentrated the band energy is in the
	// peak, in [0,1].
	CoherenceScore float64 `json:"coherence_score"`
	// Metadata carries free-form per-node context.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Snapshot is a point-in-time copy of the shared state for external readers.
type Snapshot struct {
	PeakResults            map[string]PeakResult `json:"peak_results"`
	PeakFrequency          *float64              `json:"peak_frequency,omitempty"`
	PeakAmplitude          *float64              `json:"peak_amplitude,omitempty"`
	ConcentrationPPM       *float64              `json:"concentration_ppm,omitempty"`
	PolynomialCoefficients [5]float64            `json:"polynomial_coefficients"`
	LastUpdate             time.Time             `json:"last_update"`
}

// SharedState is the multi-producer map of peak results plus legacy scalar
// mirrors of the most recent update. Writes are short fixed-size copies under
// a writer lock; readers share a read lock.
type SharedState struct {
	mu sync.RWMutex

	peakResults map[string]PeakResult

	// Legacy mirrors of the most recent update across the map.
	peakFrequency    *float64
	peakAmplitude    *float64
	concentrationPPM *float64

	polynomial   [5]float64
	lastUpdate   time.Time
	recentWindow time.Duration

	// updateCh notifies at most one pending update; the dispatcher polls
	// the state after each wakeup, so coalescing is safe.
	updateCh chan struct{}
}

// NewSharedState creates an empty state with the default recency window.
func NewSharedState() *SharedState {
	return &SharedState{
		peakResults:  make(map[string]PeakResult),
		recentWindow: DefaultRecentWindow,
		lastUpdate:   time.Now(),
		updateCh:     make(chan struct{}, 1),
	}
}

// SetRecentWindow overrides the recency window used by HasRecentPeakData.
func (s *SharedState) SetRecentWindow(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d > 0 {
		s.recentWindow = d
	}
}

// SetPolynomialCoefficients installs the concentration calibration
// polynomial a0..a4.
func (s *SharedState) SetPolynomialCoefficients(coeffs [5]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polynomial = coeffs
}

// PolynomialCoefficients returns the calibration polynomial a0..a4.
func (s *SharedState) PolynomialCoefficients() [5]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.polynomial
}

// UpdatePeakResult inserts or overwrites the entry for nodeID. When the
// update is the most recent across the map, the legacy scalar mirrors follow
// it.
func (s *SharedState) UpdatePeakResult(nodeID string, result PeakResult) {
	s.mu.Lock()
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now()
	}
	s.peakResults[nodeID] = result
	// Mirror the most recent entry across the map into the legacy scalars.
	if latest, ok := s.latestLocked(); ok {
		f, a := latest.Frequency, latest.Amplitude
		s.peakFrequency = &f
		s.peakAmplitude = &a
		if latest.ConcentrationPPM != nil {
			c := *latest.ConcentrationPPM
			s.concentrationPPM = &c
		}
	}
	s.lastUpdate = time.Now()
	s.mu.Unlock()

	s.notify()
}

// SetConcentration attaches a concentration value to the entry for nodeID,
// updating the legacy mirror.
func (s *SharedState) SetConcentration(nodeID string, ppm float64) {
	s.mu.Lock()
	if r, ok := s.peakResults[nodeID]; ok {
		r.ConcentrationPPM = &ppm
		s.peakResults[nodeID] = r
	}
	c := ppm
	s.concentrationPPM = &c
	s.lastUpdate = time.Now()
	s.mu.Unlock()

	s.notify()
}

// GetPeakResult returns the entry for nodeID.
func (s *SharedState) GetPeakResult(nodeID string) (PeakResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.peakResults[nodeID]
	return r, ok
}

// GetLatestPeakResult returns the entry with the largest timestamp, ties
// broken by ascending node id.
func (s *SharedState) GetLatestPeakResult() (PeakResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestLocked()
}

func (s *SharedState) latestLocked() (PeakResult, bool) {
	ids := make([]string, 0, len(s.peakResults))
	for id := range s.peakResults {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var best PeakResult
	found := false
	for _, id := range ids {
		r := s.peakResults[id]
		if !found || r.Timestamp.After(best.Timestamp) {
			best = r
			found = true
		}
	}
	return best, found
}

// PeakFinderNodeIDs returns the ids with stored results, sorted.
func (s *SharedState) PeakFinderNodeIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.peakResults))
	for id := range s.peakResults {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HasRecentPeakData reports whether nodeID published within the recency
// window.
func (s *SharedState) HasRecentPeakData(nodeID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.peakResults[nodeID]
	if !ok {
		return false
	}
	return time.Since(r.Timestamp) <= s.recentWindow
}

// GetSnapshot returns a deep copy for external readers.
func (s *SharedState) GetSnapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make(map[string]PeakResult, len(s.peakResults))
	for id, r := range s.peakResults {
		if r.Metadata != nil {
			meta := make(map[string]any, len(r.Metadata))
			maps.Copy(meta, r.Metadata)
			r.Metadata = meta
		}
		if r.ConcentrationPPM != nil {
			c := *r.ConcentrationPPM
			r.ConcentrationPPM = &c
		}
		results[id] = r
	}
	return Snapshot{
		PeakResults:            results,
		PeakFrequency:          copyFloat(s.peakFrequency),
		PeakAmplitude:          copyFloat(s.peakAmplitude),
		ConcentrationPPM:       copyFloat(s.concentrationPPM),
		PolynomialCoefficients: s.polynomial,
		LastUpdate:             s.lastUpdate,
	}
}

// Updates exposes the coalesced update notification channel. Receivers poll
// GetSnapshot after each wakeup.
func (s *SharedState) Updates() <-chan struct{} {
	return s.updateCh
}

func (s *SharedState) notify() {
	select {
	case s.updateCh <- struct{}{}:
	default:
	}
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	c := *f
	return &c
}
