// Package acquisition handles audio input: live capture, WAV file playback,
// and a synthetic generator, all feeding the shared audio stream.
package acquisition

import "time"

// AudioFrame is one stereo frame of samples. ChannelA and ChannelB always
// have equal length. FrameNumber is assigned by the stream on publication and
// is strictly increasing, never reused.
type AudioFrame struct {
	ChannelA    []float32
	ChannelB    []float32
	SampleRate  uint32
	Timestamp   uint64 // microseconds since the Unix epoch
	FrameNumber uint64
}

// Duration returns the wall-clock span covered by the frame.
func (f *AudioFrame) Duration() time.Duration {
	if f.SampleRate == 0 {
		return 0
	}
	return time.Duration(len(f.ChannelA)) * time.Second / time.Duration(f.SampleRate)
}

// nowMicros returns the current time in microseconds since the Unix epoch.
func nowMicros() uint64 {
	return uint64(time.Now().UnixMicro())
}
