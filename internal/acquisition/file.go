package acquisition

import (
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/sonoptix/photoacoustic-go/internal/errors"
)

// errEndOfSource marks normal exhaustion of a finite source.
var errEndOfSource = fmt.Errorf("end of audio source")

const (
	wavFormatPCM       = 1
	wavFormatIEEEFloat = 3
)

// FileSource reads stereo frames from a WAV file. Supported encodings are
// 16-bit PCM and 32-bit IEEE float; non-stereo files are rejected.
type FileSource struct {
	file       *os.File
	decoder    *wav.Decoder
	buf        *audio.IntBuffer
	frameSize  int
	sampleRate uint32
	scale      float32
	isFloat    bool
}

// NewFileSource opens the WAV file and validates its format.
func NewFileSource(path string, frameSize int) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("acquisition").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}

	d := wav.NewDecoder(f)
	d.ReadInfo()
	if !d.IsValidFile() {
		_ = f.Close()
		return nil, errors.Newf("not a valid WAV file: %s", path).
			Component("acquisition").
			Category(errors.CategoryAudioSource).
			Context("path", path).
			Build()
	}
	if d.NumChans != 2 {
		_ = f.Close()
		return nil, errors.Newf("input file must be stereo, got %d channel(s)", d.NumChans).
			Component("acquisition").
			Category(errors.CategoryAudioSource).
			Context("path", path).
			Context("channels", d.NumChans).
			Build()
	}

	var scale float32
	isFloat := false
	switch {
	case d.WavAudioFormat == wavFormatPCM && d.BitDepth == 16:
		scale = 1.0 / 32768.0
	case d.WavAudioFormat == wavFormatIEEEFloat && d.BitDepth == 32:
		isFloat = true
		scale = 1.0
	default:
		_ = f.Close()
		return nil, errors.Newf("unsupported WAV encoding: format %d, %d-bit", d.WavAudioFormat, d.BitDepth).
			Component("acquisition").
			Category(errors.CategoryAudioSource).
			Context("path", path).
			Build()
	}

	return &FileSource{
		file:       f,
		decoder:    d,
		frameSize:  frameSize,
		sampleRate: d.SampleRate,
		scale:      scale,
		isFloat:    isFloat,
		buf: &audio.IntBuffer{
			Data: make([]int, frameSize*2),
			Format: &audio.Format{
				NumChannels: 2,
				SampleRate:  int(d.SampleRate),
			},
		},
	}, nil
}

// ReadFrame deinterleaves the next frameSize samples per channel. A trailing
// partial frame at the end of the file ends the source.
func (fs *FileSource) ReadFrame() ([]float32, []float32, error) {
	n, err := fs.decoder.PCMBuffer(fs.buf)
	if err != nil {
		return nil, nil, errors.New(err).
			Component("acquisition").
			Category(errors.CategoryAudioSource).
			Context("operation", "decode_wav").
			Build()
	}
	if n < len(fs.buf.Data) {
		return nil, nil, errEndOfSource
	}

	samplesPerChannel := n / 2
	chA := make([]float32, samplesPerChannel)
	chB := make([]float32, samplesPerChannel)
	for i := 0; i < samplesPerChannel; i++ {
		chA[i] = fs.toFloat(fs.buf.Data[2*i])
		chB[i] = fs.toFloat(fs.buf.Data[2*i+1])
	}
	return chA, chB, nil
}

func (fs *FileSource) toFloat(v int) float32 {
	if fs.isFloat {
		// IEEE float samples arrive as raw 32-bit patterns.
		return math.Float32frombits(uint32(int32(v)))
	}
	return float32(v) * fs.scale
}

// SampleRate returns the file's sample rate.
func (fs *FileSource) SampleRate() uint32 {
	return fs.sampleRate
}

// Close closes the underlying file.
func (fs *FileSource) Close() error {
	return fs.file.Close()
}
