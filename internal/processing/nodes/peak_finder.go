package nodes

import (
	"log/slog"
	"time"

	"github.com/sonoptix/photoacoustic-go/internal/computing"
	"github.com/sonoptix/photoacoustic-go/internal/errors"
	"github.com/sonoptix/photoacoustic-go/internal/processing"
	"github.com/sonoptix/photoacoustic-go/internal/spectral"
)

// PeakFinderNode runs a windowed FFT over the mono signal, locates the
// strongest bin inside the configured band, and publishes the result into
// the shared computing state keyed by its own id.
type PeakFinderNode struct {
	id string

	frequency float64
	bandwidth float64
	fftSize   int
	averages  int

	analyzer *spectral.Analyzer
	state    *computing.SharedState
	logger   *slog.Logger
}

// NewPeakFinderNode creates a peak finder from its parameter map.
func NewPeakFinderNode(id string, params map[string]any) (*PeakFinderNode, error) {
	n := &PeakFinderNode{
		id:        id,
		frequency: paramFloat(params, "frequency", 1000),
		bandwidth: paramFloat(params, "bandwidth", 200),
		fftSize:   paramInt(params, "fft_size", 4096),
		averages:  paramInt(params, "averages", 1),
		logger:    nodeLogger("peak_finder", id),
	}
	analyzer, err := spectral.NewAnalyzer(n.fftSize, n.averages)
	if err != nil {
		return nil, errors.New(err).
			Component(componentNodes).
			Category(errors.CategoryValidation).
			Context("node_id", id).
			Build()
	}
	n.analyzer = analyzer
	return n, nil
}

// AttachComputingState gives the node its publication target.
func (n *PeakFinderNode) AttachComputingState(state *computing.SharedState) {
	n.state = state
}

func (n *PeakFinderNode) ID() string       { return n.id }
func (n *PeakFinderNode) NodeType() string { return "peak_finder" }

func (n *PeakFinderNode) Accepts(kind processing.Kind) bool {
	return kind == processing.KindSingleChannel
}

func (n *PeakFinderNode) OutputKind() processing.Kind {
	return processing.KindPhotoacousticResult
}

func (n *PeakFinderNode) Process(input processing.Data) (processing.Data, error) {
	if input.Kind != processing.KindSingleChannel {
		return processing.Data{}, errors.Newf("peak finder requires SingleChannel, got %s", input.Kind).
			Component(componentNodes).
			Category(errors.CategoryNode).
			Context("node_id", n.id).
			Build()
	}

	n.analyzer.Feed(input.Samples)

	lo := n.frequency - n.bandwidth/2
	hi := n.frequency + n.bandwidth/2
	peak, ok := n.analyzer.FindPeak(input.SampleRate, lo, hi)
	if !ok {
		return processing.Empty(), nil
	}

	meta := &processing.ResultMetadata{
		PeakFrequency:  peak.Frequency,
		PeakAmplitude:  peak.Amplitude,
		CoherenceScore: peak.Coherence,
	}

	if n.state != nil {
		n.state.UpdatePeakResult(n.id, computing.PeakResult{
			Frequency:      peak.Frequency,
			Amplitude:      peak.Amplitude,
			Timestamp:      time.Now(),
			CoherenceScore: peak.Coherence,
		})
	}

	return processing.NewResult(&input, input.Samples, meta), nil
}

// Reset discards the spectral averaging history.
func (n *PeakFinderNode) Reset() {
	n.analyzer.Reset()
}

func (n *PeakFinderNode) SupportsHotReload() bool { return true }

// UpdateConfig retunes the search band live. Changing fft_size or averages
// reallocates the analyzer, dropping the averaging history.
func (n *PeakFinderNode) UpdateConfig(params map[string]any) (bool, error) {
	if !hasParam(params, "frequency", "bandwidth", "fft_size", "averages") {
		return false, nil
	}
	frequency := paramFloat(params, "frequency", n.frequency)
	bandwidth := paramFloat(params, "bandwidth", n.bandwidth)
	if frequency <= 0 || bandwidth <= 0 {
		return false, errors.Newf("frequency and bandwidth must be positive").
			Component(componentNodes).
			Category(errors.CategoryConfiguration).
			Context("node_id", n.id).
			Build()
	}
	fftSize := paramInt(params, "fft_size", n.fftSize)
	averages := paramInt(params, "averages", n.averages)
	if fftSize != n.fftSize || averages != n.averages {
		analyzer, err := spectral.NewAnalyzer(fftSize, averages)
		if err != nil {
			return false, errors.New(err).
				Component(componentNodes).
				Category(errors.CategoryConfiguration).
				Context("node_id", n.id).
				Build()
		}
		n.analyzer = analyzer
		n.fftSize = fftSize
		n.averages = averages
	}
	n.frequency = frequency
	n.bandwidth = bandwidth
	return true, nil
}

func (n *PeakFinderNode) CloneNode() processing.Node {
	clone := &PeakFinderNode{
		id:        n.id,
		frequency: n.frequency,
		bandwidth: n.bandwidth,
		fftSize:   n.fftSize,
		averages:  n.averages,
		state:     n.state,
		logger:    n.logger,
	}
	clone.analyzer, _ = spectral.NewAnalyzer(n.fftSize, n.averages)
	return clone
}

func (n *PeakFinderNode) Parameters() map[string]any {
	return map[string]any{
		"frequency": n.frequency,
		"bandwidth": n.bandwidth,
		"fft_size":  n.fftSize,
		"averages":  n.averages,
	}
}
