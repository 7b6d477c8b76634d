// Package filters implements the IIR filters used by the processing graph:
// cascaded biquad second-order sections with Butterworth-style tuning.
package filters

// Biquad is one second-order IIR section in direct form I. Coefficients are
// stored pre-normalized by a0.
type Biquad struct {
	b0, b1, b2 float64
	a1, a2     float64

	x1, x2 float64
	y1, y2 float64
}

// NewBiquad builds a section from raw coefficients, normalizing by a0.
func NewBiquad(a0, a1, a2, b0, b1, b2 float64) Biquad {
	return Biquad{
		b0: b0 / a0,
		b1: b1 / a0,
		b2: b2 / a0,
		a1: a1 / a0,
		a2: a2 / a0,
	}
}

// Process filters one sample, updating the section state.
func (bq *Biquad) Process(x float64) float64 {
	y := bq.b0*x + bq.b1*bq.x1 + bq.b2*bq.x2 - bq.a1*bq.y1 - bq.a2*bq.y2
	bq.x2, bq.x1 = bq.x1, x
	bq.y2, bq.y1 = bq.y1, y
	return y
}

// Reset zeroes the section state.
func (bq *Biquad) Reset() {
	bq.x1, bq.x2, bq.y1, bq.y2 = 0, 0, 0, 0
}

// Chain is a cascade of biquad sections applied per channel. It keeps filter
// state across blocks so streamed audio filters continuously.
type Chain struct {
	sections []Biquad
}

// NewChain wraps the given sections into a cascade.
func NewChain(sections []Biquad) *Chain {
	return &Chain{sections: sections}
}

// ProcessBlock filters samples in place through every section.
func (c *Chain) ProcessBlock(samples []float32) {
	for i := range samples {
		x := float64(samples[i])
		for j := range c.sections {
			x = c.sections[j].Process(x)
		}
		samples[i] = float32(x)
	}
}

// Reset zeroes all section state.
func (c *Chain) Reset() {
	for i := range c.sections {
		c.sections[i].Reset()
	}
}

// SectionCount returns the number of cascaded sections.
func (c *Chain) SectionCount() int {
	return len(c.sections)
}

// Retune swaps in new coefficients while keeping section state, provided the
// section count is unchanged. Returns false when the shapes differ; the
// caller should then rebuild the chain instead.
func (c *Chain) Retune(sections []Biquad) bool {
	if len(sections) != len(c.sections) {
		return false
	}
	for i := range sections {
		state := c.sections[i]
		c.sections[i] = sections[i]
		c.sections[i].x1, c.sections[i].x2 = state.x1, state.x2
		c.sections[i].y1, c.sections[i].y2 = state.y1, state.y2
	}
	return true
}
