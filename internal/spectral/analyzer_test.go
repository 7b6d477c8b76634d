package spectral

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(freq float64, sampleRate uint32, samples int, amplitude float64) []float32 {
	out := make([]float32, samples)
	for i := range out {
		out[i] = float32(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}

func TestAnalyzer_FindsPureTone(t *testing.T) {
	const sampleRate = 48000
	analyzer, err := NewAnalyzer(4096, 1)
	require.NoError(t, err)

	analyzer.Feed(sine(2000, sampleRate, 4096, 1.0))
	require.True(t, analyzer.Ready())

	peak, ok := analyzer.FindPeak(sampleRate, 1800, 2200)
	require.True(t, ok)
	assert.InDelta(t, 2000, peak.Frequency, 12, "peak frequency within one bin")
	assert.InDelta(t, 1.0, peak.Amplitude, 0.15, "full-scale tone reports ~1.0")
	assert.Greater(t, peak.Coherence, 0.5)
}

func TestAnalyzer_ConvergesWithinTenFrames(t *testing.T) {
	const sampleRate = 48000
	analyzer, err := NewAnalyzer(4096, 10)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		analyzer.Feed(sine(2000, sampleRate, 4096, 0.8))
		peak, ok := analyzer.FindPeak(sampleRate, 1000, 3000)
		require.True(t, ok, "frame %d", i)
		assert.InDelta(t, 2000, peak.Frequency, 12, "frame %d", i)
	}
}

func TestAnalyzer_BandRestriction(t *testing.T) {
	const sampleRate = 48000
	analyzer, err := NewAnalyzer(4096, 1)
	require.NoError(t, err)

	// Two tones; the search band excludes the stronger one.
	signal := make([]float32, 4096)
	strong := sine(5000, sampleRate, 4096, 1.0)
	weak := sine(1000, sampleRate, 4096, 0.3)
	for i := range signal {
		signal[i] = strong[i] + weak[i]
	}
	analyzer.Feed(signal)

	peak, ok := analyzer.FindPeak(sampleRate, 800, 1200)
	require.True(t, ok)
	assert.InDelta(t, 1000, peak.Frequency, 12, "search must stay inside the band")
}

func TestAnalyzer_AveragingSuppressesNoiseVariance(t *testing.T) {
	const sampleRate = 48000
	analyzer, err := NewAnalyzer(1024, 8)
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		analyzer.Feed(sine(2000, sampleRate, 1024, 0.5))
	}
	peak, ok := analyzer.FindPeak(sampleRate, 1500, 2500)
	require.True(t, ok)
	assert.InDelta(t, 2000, peak.Frequency, 50)
}

func TestAnalyzer_EmptyBeforeFeed(t *testing.T) {
	analyzer, err := NewAnalyzer(1024, 1)
	require.NoError(t, err)
	assert.False(t, analyzer.Ready())
	_, ok := analyzer.FindPeak(48000, 100, 1000)
	assert.False(t, ok)
}

func TestAnalyzer_ResetClearsHistory(t *testing.T) {
	analyzer, err := NewAnalyzer(1024, 4)
	require.NoError(t, err)
	analyzer.Feed(sine(2000, 48000, 1024, 1.0))
	require.True(t, analyzer.Ready())

	analyzer.Reset()
	assert.False(t, analyzer.Ready())
	_, ok := analyzer.FindPeak(48000, 1500, 2500)
	assert.False(t, ok)
}

func TestAnalyzer_RejectsInvalidWindow(t *testing.T) {
	_, err := NewAnalyzer(0, 1)
	assert.Error(t, err)
}
