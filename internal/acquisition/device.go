package acquisition

import (
	"encoding/binary"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/sonoptix/photoacoustic-go/internal/errors"
)

// DeviceSource captures stereo frames from a soundcard through malgo.
// The capture callback runs on the audio thread and only appends to the
// pending buffer; ReadFrame assembles fixed-size frames on the caller side.
type DeviceSource struct {
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	sampleRate uint32
	frameSize  int

	mu       sync.Mutex
	cond     *sync.Cond
	pendingA []float32
	pendingB []float32
	stopped  bool
}

// NewDeviceSource opens the named capture device. The name "first" (or "")
// selects the first available capture device. Matching is a case-insensitive
// substring match on the device description.
func NewDeviceSource(deviceName string, sampleRate uint32, frameSize int) (*DeviceSource, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component("acquisition").
			Category(errors.CategoryAudioSource).
			Context("operation", "init_context").
			Build()
	}

	ds := &DeviceSource{
		ctx:        mctx,
		sampleRate: sampleRate,
		frameSize:  frameSize,
	}
	ds.cond = sync.NewCond(&ds.mu)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 2
	deviceConfig.SampleRate = sampleRate
	deviceConfig.Alsa.NoMMap = 1

	if deviceName != "" && deviceName != "first" {
		info, err := ds.findDevice(deviceName)
		if err != nil {
			_ = mctx.Uninit()
			return nil, err
		}
		deviceConfig.Capture.DeviceID = info.ID.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: ds.onAudioData,
	}
	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		return nil, errors.New(err).
			Component("acquisition").
			Category(errors.CategoryAudioSource).
			Context("device", deviceName).
			Context("operation", "init_device").
			Build()
	}
	ds.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		return nil, errors.New(err).
			Component("acquisition").
			Category(errors.CategoryAudioSource).
			Context("device", deviceName).
			Context("operation", "start_device").
			Build()
	}
	return ds, nil
}

// ListCaptureDevices enumerates the names of available capture devices.
func ListCaptureDevices() ([]string, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component("acquisition").
			Category(errors.CategoryAudioSource).
			Context("operation", "init_context").
			Build()
	}
	defer func() { _ = mctx.Uninit() }()

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component("acquisition").
			Category(errors.CategoryAudioSource).
			Context("operation", "enumerate_devices").
			Build()
	}
	names := make([]string, 0, len(infos))
	for i := range infos {
		names = append(names, infos[i].Name())
	}
	return names, nil
}

func (ds *DeviceSource) findDevice(name string) (*malgo.DeviceInfo, error) {
	infos, err := ds.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component("acquisition").
			Category(errors.CategoryAudioSource).
			Context("operation", "enumerate_devices").
			Build()
	}
	needle := strings.ToLower(name)
	for i := range infos {
		if strings.Contains(strings.ToLower(infos[i].Name()), needle) {
			return &infos[i], nil
		}
	}
	return nil, errors.Newf("capture device not found: %s", name).
		Component("acquisition").
		Category(errors.CategoryNotFound).
		Context("device", name).
		Build()
}

// onAudioData runs on the audio thread: deinterleave and append only.
func (ds *DeviceSource) onAudioData(outputSamples, inputSamples []byte, frameCount uint32) {
	if len(inputSamples) < 4 {
		return
	}
	ds.mu.Lock()
	for i := 0; i+3 < len(inputSamples); i += 4 {
		a := int16(binary.LittleEndian.Uint16(inputSamples[i : i+2]))
		b := int16(binary.LittleEndian.Uint16(inputSamples[i+2 : i+4]))
		ds.pendingA = append(ds.pendingA, float32(a)/32768.0)
		ds.pendingB = append(ds.pendingB, float32(b)/32768.0)
	}
	ds.mu.Unlock()
	ds.cond.Signal()
}

// ReadFrame blocks until a full frame of samples is available.
func (ds *DeviceSource) ReadFrame() ([]float32, []float32, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	for len(ds.pendingA) < ds.frameSize && !ds.stopped {
		ds.cond.Wait()
	}
	if ds.stopped {
		return nil, nil, errEndOfSource
	}

	chA := make([]float32, ds.frameSize)
	chB := make([]float32, ds.frameSize)
	copy(chA, ds.pendingA[:ds.frameSize])
	copy(chB, ds.pendingB[:ds.frameSize])
	ds.pendingA = ds.pendingA[ds.frameSize:]
	ds.pendingB = ds.pendingB[ds.frameSize:]
	return chA, chB, nil
}

// SampleRate returns the configured sample rate.
func (ds *DeviceSource) SampleRate() uint32 {
	return ds.sampleRate
}

// Close stops the device and releases the context.
func (ds *DeviceSource) Close() error {
	ds.mu.Lock()
	ds.stopped = true
	ds.mu.Unlock()
	ds.cond.Broadcast()

	if ds.device != nil {
		ds.device.Uninit()
	}
	if ds.ctx != nil {
		return ds.ctx.Uninit()
	}
	return nil
}
