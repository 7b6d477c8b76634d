package filters

import (
	"fmt"
	"math"
)

// Butterworth designs use the prewarped bilinear transform of the analog
// prototype: an order-N filter becomes N/2 cascaded second-order sections.
// Orders must be even and at least 2.

func validateOrder(order int) error {
	if order < 2 || order%2 != 0 {
		return fmt.Errorf("filter order must be an even integer >= 2, got %d", order)
	}
	return nil
}

func validateFrequency(name string, freq, sampleRate float64) error {
	if freq <= 0 || freq >= sampleRate/2 {
		return fmt.Errorf("%s must be in (0, nyquist), got %g at %g Hz", name, freq, sampleRate)
	}
	return nil
}

// butterworthQ returns the Q of section k in an order-N Butterworth cascade.
// The analog prototype's pole pairs sit at angles (2k+1)π/2N off the real
// axis; each pair maps to one biquad.
func butterworthQ(order, k int) float64 {
	return 1.0 / (2.0 * math.Cos(math.Pi*float64(2*k+1)/float64(2*order)))
}

// Lowpass designs an order-N Butterworth lowpass cascade.
func Lowpass(cutoff, sampleRate float64, order int) ([]Biquad, error) {
	if err := validateOrder(order); err != nil {
		return nil, err
	}
	if err := validateFrequency("cutoff", cutoff, sampleRate); err != nil {
		return nil, err
	}
	w0 := 2 * math.Pi * cutoff / sampleRate
	sinW0, cosW0 := math.Sin(w0), math.Cos(w0)

	sections := make([]Biquad, order/2)
	for k := range sections {
		alpha := sinW0 / (2 * butterworthQ(order, k))
		b1 := 1 - cosW0
		b0 := b1 / 2
		sections[k] = NewBiquad(1+alpha, -2*cosW0, 1-alpha, b0, b1, b0)
	}
	return sections, nil
}

// Highpass designs an order-N Butterworth highpass cascade.
func Highpass(cutoff, sampleRate float64, order int) ([]Biquad, error) {
	if err := validateOrder(order); err != nil {
		return nil, err
	}
	if err := validateFrequency("cutoff", cutoff, sampleRate); err != nil {
		return nil, err
	}
	w0 := 2 * math.Pi * cutoff / sampleRate
	sinW0, cosW0 := math.Sin(w0), math.Cos(w0)

	sections := make([]Biquad, order/2)
	for k := range sections {
		alpha := sinW0 / (2 * butterworthQ(order, k))
		b1 := -(1 + cosW0)
		b0 := (1 + cosW0) / 2
		sections[k] = NewBiquad(1+alpha, -2*cosW0, 1-alpha, b0, b1, b0)
	}
	return sections, nil
}

// Bandpass designs an order-N bandpass cascade centered on center with the
// given bandwidth. Each section is a constant-peak-gain bandpass biquad with
// Q = center/bandwidth, so the cascade keeps unity gain at the center
// frequency while the skirts steepen with order.
func Bandpass(center, bandwidth, sampleRate float64, order int) ([]Biquad, error) {
	if err := validateOrder(order); err != nil {
		return nil, err
	}
	if err := validateFrequency("center", center, sampleRate); err != nil {
		return nil, err
	}
	if bandwidth <= 0 {
		return nil, fmt.Errorf("bandwidth must be positive, got %g", bandwidth)
	}

	w0 := 2 * math.Pi * center / sampleRate
	sinW0, cosW0 := math.Sin(w0), math.Cos(w0)
	q := center / bandwidth
	alpha := sinW0 / (2 * q)

	sections := make([]Biquad, order/2)
	for k := range sections {
		sections[k] = NewBiquad(1+alpha, -2*cosW0, 1-alpha, alpha, 0, -alpha)
	}
	return sections, nil
}
