// Package processing implements the typed signal-processing graph: the data
// variants flowing through it, the node contract, the graph itself, and the
// consumer that drives it at frame rate.
package processing

import (
	"maps"

	"github.com/sonoptix/photoacoustic-go/internal/acquisition"
)

// Kind tags the variant carried by a Data value.
type Kind string

const (
	// KindAudioFrame is the entry form produced by the input node.
	KindAudioFrame Kind = "AudioFrame"
	// KindDualChannel is a stereo frame after at least one transformation.
	KindDualChannel Kind = "DualChannel"
	// KindSingleChannel is a mono signal after selection or mixing.
	KindSingleChannel Kind = "SingleChannel"
	// KindPhotoacousticResult carries the post-detection time series plus
	// extracted scalars.
	KindPhotoacousticResult Kind = "PhotoacousticResult"
	// KindEmpty is the passthrough sentinel for nodes that emit nothing
	// this tick.
	KindEmpty Kind = "Empty"
)

// ResultMetadata carries the scalars extracted by analysis nodes.
type ResultMetadata struct {
	PeakFrequency    float64        `json:"peak_frequency"`
	PeakAmplitude    float64        `json:"peak_amplitude"`
	ConcentrationPPM *float64       `json:"concentration_ppm,omitempty"`
	CoherenceScore   float64        `json:"coherence_score"`
	Extra            map[string]any `json:"extra,omitempty"`
}

// Data is the tagged variant passed between nodes. Exactly the fields
// relevant to Kind are populated; the rest are zero.
type Data struct {
	Kind Kind

	// ChannelA/ChannelB carry AudioFrame and DualChannel payloads.
	ChannelA []float32
	ChannelB []float32
	// Samples carries SingleChannel payloads.
	Samples []float32
	// Signal and Metadata carry PhotoacousticResult payloads.
	Signal   []float32
	Metadata *ResultMetadata

	SampleRate  uint32
	Timestamp   uint64
	FrameNumber uint64
}

// Empty returns the empty sentinel.
func Empty() Data {
	return Data{Kind: KindEmpty}
}

// IsEmpty reports whether the value is the empty sentinel.
func (d *Data) IsEmpty() bool {
	return d.Kind == KindEmpty || d.Kind == ""
}

// FromAudioFrame wraps a stream frame as the graph entry variant.
func FromAudioFrame(frame acquisition.AudioFrame) Data {
	return Data{
		Kind:        KindAudioFrame,
		ChannelA:    frame.ChannelA,
		ChannelB:    frame.ChannelB,
		SampleRate:  frame.SampleRate,
		Timestamp:   frame.Timestamp,
		FrameNumber: frame.FrameNumber,
	}
}

// NewDualChannel builds a DualChannel value stamped with the provenance of in.
func NewDualChannel(in *Data, chA, chB []float32) Data {
	return Data{
		Kind:        KindDualChannel,
		ChannelA:    chA,
		ChannelB:    chB,
		SampleRate:  in.SampleRate,
		Timestamp:   in.Timestamp,
		FrameNumber: in.FrameNumber,
	}
}

// NewSingleChannel builds a SingleChannel value stamped with the provenance
// of in.
func NewSingleChannel(in *Data, samples []float32) Data {
	return Data{
		Kind:        KindSingleChannel,
		Samples:     samples,
		SampleRate:  in.SampleRate,
		Timestamp:   in.Timestamp,
		FrameNumber: in.FrameNumber,
	}
}

// NewResult builds a PhotoacousticResult stamped with the provenance of in.
func NewResult(in *Data, signal []float32, meta *ResultMetadata) Data {
	return Data{
		Kind:        KindPhotoacousticResult,
		Signal:      signal,
		Metadata:    meta,
		SampleRate:  in.SampleRate,
		Timestamp:   in.Timestamp,
		FrameNumber: in.FrameNumber,
	}
}

// PrimarySamples returns the time-domain samples most relevant to the
// variant: channel A for stereo forms, the mono samples, or the result
// signal. Nil for Empty.
func (d *Data) PrimarySamples() []float32 {
	switch d.Kind {
	case KindAudioFrame, KindDualChannel:
		return d.ChannelA
	case KindSingleChannel:
		return d.Samples
	case KindPhotoacousticResult:
		return d.Signal
	default:
		return nil
	}
}

// Clone deep-copies the value, including sample buffers and metadata.
func (d *Data) Clone() Data {
	out := *d
	out.ChannelA = cloneSamples(d.ChannelA)
	out.ChannelB = cloneSamples(d.ChannelB)
	out.Samples = cloneSamples(d.Samples)
	out.Signal = cloneSamples(d.Signal)
	if d.Metadata != nil {
		meta := *d.Metadata
		if d.Metadata.ConcentrationPPM != nil {
			c := *d.Metadata.ConcentrationPPM
			meta.ConcentrationPPM = &c
		}
		if d.Metadata.Extra != nil {
			meta.Extra = make(map[string]any, len(d.Metadata.Extra))
			maps.Copy(meta.Extra, d.Metadata.Extra)
		}
		out.Metadata = &meta
	}
	return out
}

func cloneSamples(s []float32) []float32 {
	if s == nil {
		return nil
	}
	out := make([]float32, len(s))
	copy(out, s)
	return out
}
