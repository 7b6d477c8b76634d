// Package spectral provides FFT-based frequency analysis for peak detection.
package spectral

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// hannCoherentGain is the amplitude correction for a Hann window.
const hannCoherentGain = 0.5

// Peak is one detected spectral maximum.
type Peak struct {
	// Frequency in Hz, refined by parabolic interpolation between bins.
	Frequency float64
	// Amplitude normalized so a full-scale sinusoid reports ~1.0.
	Amplitude float64
	// Coherence is the fraction of band energy concentrated in the peak
	// bin and its neighbours, in [0,1].
	Coherence float64
}

// Analyzer computes magnitude spectra over a fixed window with spectral
// averaging. Not safe for concurrent use; each peak-finder node owns one.
type Analyzer struct {
	fft        *fourier.FFT
	windowSize int
	averages   int

	windowed []float64
	history  [][]float64
	histPos  int
	filled   int
	averaged []float64
	coeffs   []complex128
}

// NewAnalyzer creates an analyzer with the given FFT window size and number
// of averaged spectra. windowSize must be positive; averages < 1 is treated
// as 1 (no averaging).
func NewAnalyzer(windowSize, averages int) (*Analyzer, error) {
	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", windowSize)
	}
	if averages < 1 {
		averages = 1
	}
	bins := windowSize/2 + 1
	a := &Analyzer{
		fft:        fourier.NewFFT(windowSize),
		windowSize: windowSize,
		averages:   averages,
		windowed:   make([]float64, windowSize),
		history:    make([][]float64, averages),
		averaged:   make([]float64, bins),
		coeffs:     make([]complex128, bins),
	}
	for i := range a.history {
		a.history[i] = make([]float64, bins)
	}
	return a, nil
}

// Feed windows the samples, computes their magnitude spectrum, and folds it
// into the running average. Samples beyond the window size are ignored;
// shorter inputs are zero-padded.
func (a *Analyzer) Feed(samples []float32) {
	for i := range a.windowed {
		if i < len(samples) {
			a.windowed[i] = float64(samples[i])
		} else {
			a.windowed[i] = 0
		}
	}
	window.Hann(a.windowed)
	a.fft.Coefficients(a.coeffs, a.windowed)

	spectrum := a.history[a.histPos]
	norm := 2.0 / (float64(a.windowSize) * hannCoherentGain)
	for i, c := range a.coeffs {
		spectrum[i] = math.Hypot(real(c), imag(c)) * norm
	}
	a.histPos = (a.histPos + 1) % a.averages
	if a.filled < a.averages {
		a.filled++
	}

	for i := range a.averaged {
		sum := 0.0
		for j := 0; j < a.filled; j++ {
			sum += a.history[j][i]
		}
		a.averaged[i] = sum / float64(a.filled)
	}
}

// Ready reports whether at least one spectrum has been folded in.
func (a *Analyzer) Ready() bool {
	return a.filled > 0
}

// Reset discards the averaging history.
func (a *Analyzer) Reset() {
	a.histPos = 0
	a.filled = 0
	for i := range a.averaged {
		a.averaged[i] = 0
	}
}

// FindPeak locates the strongest bin within [minFreq, maxFreq] in the
// averaged spectrum. ok is false when no spectrum has been fed yet or the
// band contains no bins.
func (a *Analyzer) FindPeak(sampleRate uint32, minFreq, maxFreq float64) (peak Peak, ok bool) {
	if a.filled == 0 || sampleRate == 0 {
		return Peak{}, false
	}
	binWidth := float64(sampleRate) / float64(a.windowSize)
	lo := int(math.Ceil(minFreq / binWidth))
	hi := int(math.Floor(maxFreq / binWidth))
	if lo < 1 {
		lo = 1
	}
	if hi > len(a.averaged)-2 {
		hi = len(a.averaged) - 2
	}
	if lo > hi {
		return Peak{}, false
	}

	best := lo
	for i := lo + 1; i <= hi; i++ {
		if a.averaged[i] > a.averaged[best] {
			best = i
		}
	}

	// Parabolic interpolation over the peak bin and its neighbours gives a
	// sub-bin frequency estimate.
	y0, y1, y2 := a.averaged[best-1], a.averaged[best], a.averaged[best+1]
	delta := 0.0
	if denom := y0 - 2*y1 + y2; denom != 0 {
		delta = 0.5 * (y0 - y2) / denom
		if delta > 0.5 {
			delta = 0.5
		} else if delta < -0.5 {
			delta = -0.5
		}
	}

	bandEnergy := 0.0
	for i := lo; i <= hi; i++ {
		bandEnergy += a.averaged[i] * a.averaged[i]
	}
	peakEnergy := y0*y0 + y1*y1 + y2*y2
	coherence := 0.0
	if bandEnergy > 0 {
		coherence = math.Min(1.0, peakEnergy/bandEnergy)
	}

	return Peak{
		Frequency: (float64(best) + delta) * binWidth,
		Amplitude: y1,
		Coherence: coherence,
	}, true
}
