package audio

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

const (
	wasapiLoopbackSuffix = " [Loopback]"
	pulseMonitorPrefix   = "Monitor of "
)

// LoopbackSource captures the system's audio output through a loopback
// input device using a blocking PortAudio stream
type LoopbackSource struct {
	config     CaptureConfig
	device     Device
	stream     *portaudio.Stream
	buffer     []float32
	mu         sync.Mutex
	overflows  int
	terminated bool
}

// ListDevices returns every device PortAudio knows about.
// PortAudio must already be initialized.
func ListDevices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	defaultOutput, err := portaudio.DefaultOutputDevice()
	if err != nil {
		// If we can't get the default device, continue without marking any as default
		defaultOutput = nil
	}

	result := make([]Device, 0, len(devices))
	for _, dev := range devices {
		d := Device{
			ID:      dev.Index,
			Name:    dev.Name,
			Inputs:  dev.MaxInputChannels,
			Outputs: dev.MaxOutputChannels,
		}
		if dev.HostApi != nil {
			d.HostAPI = dev.HostApi.Name
		}
		if defaultOutput != nil && dev.Index == defaultOutput.Index {
			d.IsDefault = true
		}
		result = append(result, d)
	}

	return result, nil
}

// ListDevicesOnce initializes PortAudio, lists devices and terminates again
func ListDevicesOnce() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	return ListDevices()
}

// ResolveLoopback reports the device OpenLoopback would capture from
// without opening a stream
func ResolveLoopback(match string) (Device, error) {
	devices, err := ListDevicesOnce()
	if err != nil {
		return Device{}, err
	}
	return FindLoopback(devices, DefaultOutputName(devices), match)
}

// DefaultOutputName returns the name of the device marked as default output
func DefaultOutputName(devices []Device) string {
	for _, d := range devices {
		if d.IsDefault {
			return d.Name
		}
	}
	return ""
}

// FindLoopback selects the capture device mirroring defaultOutput.
// A non-empty match replaces discovery with a substring search over
// input-capable devices.
func FindLoopback(devices []Device, defaultOutput, match string) (Device, error) {
	if match != "" {
		needle := strings.ToLower(match)
		for _, d := range devices {
			if d.Inputs > 0 && strings.Contains(strings.ToLower(d.Name), needle) {
				return d, nil
			}
		}
		return Device{}, fmt.Errorf("%w: no input device contains %q", ErrDeviceUnavailable, match)
	}

	if defaultOutput == "" {
		return Device{}, fmt.Errorf("%w: no default output device", ErrDeviceUnavailable)
	}

	for _, d := range devices {
		if d.Inputs <= 0 {
			continue
		}
		if base, ok := loopbackBaseName(d.Name); ok && strings.EqualFold(base, defaultOutput) {
			return d, nil
		}
	}

	// Some host APIs expose the loopback endpoint under the speaker's own name
	for _, d := range devices {
		if d.Inputs > 0 && d.Outputs == 0 && strings.EqualFold(d.Name, defaultOutput) {
			return d, nil
		}
	}

	return Device{}, fmt.Errorf("%w: default output %q", ErrDeviceUnavailable, defaultOutput)
}

// loopbackBaseName strips the host API decoration from a loopback device name
func loopbackBaseName(name string) (string, bool) {
	if strings.HasSuffix(name, wasapiLoopbackSuffix) {
		return strings.TrimSuffix(name, wasapiLoopbackSuffix), true
	}
	if strings.HasPrefix(name, pulseMonitorPrefix) {
		return strings.TrimPrefix(name, pulseMonitorPrefix), true
	}
	return "", false
}

// OpenLoopback opens a loopback capture stream for the default output device.
// A missing device is reported as ErrDeviceUnavailable and is not retryable.
func OpenLoopback(config CaptureConfig) (*LoopbackSource, error) {
	if config.SampleRate <= 0 || config.FrameSize() <= 0 {
		return nil, fmt.Errorf("invalid capture config: rate=%d frame=%v", config.SampleRate, config.FrameDuration)
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	src, err := openLoopback(config)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	return src, nil
}

func openLoopback(config CaptureConfig) (*LoopbackSource, error) {
	devices, err := ListDevices()
	if err != nil {
		return nil, err
	}

	defaultName := ""
	if out, err := portaudio.DefaultOutputDevice(); err == nil && out != nil {
		defaultName = out.Name
	}

	selected, err := FindLoopback(devices, defaultName, config.DeviceMatch)
	if err != nil {
		return nil, err
	}

	all, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	var info *portaudio.DeviceInfo
	for _, dev := range all {
		if dev.Index == selected.ID {
			info = dev
			break
		}
	}
	if info == nil {
		return nil, fmt.Errorf("%w: device %d disappeared", ErrDeviceUnavailable, selected.ID)
	}

	var latency time.Duration
	switch config.Latency {
	case LowLatency:
		latency = info.DefaultLowInputLatency
	default:
		latency = info.DefaultHighInputLatency
	}

	s := &LoopbackSource{
		config: config,
		device: selected,
		buffer: make([]float32, config.FrameSize()),
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: 1,
			Latency:  latency,
		},
		SampleRate:      float64(config.SampleRate),
		FramesPerBuffer: len(s.buffer),
	}

	stream, err := portaudio.OpenStream(params, s.buffer)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream on %q: %w", info.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start stream: %w", err)
	}

	s.stream = stream
	return s, nil
}

// Device returns the selected capture device
func (s *LoopbackSource) Device() Device {
	return s.device
}

// ReadFrame blocks for one frame and returns it as 16-bit PCM.
// Input overflows are counted and otherwise ignored.
func (s *LoopbackSource) ReadFrame() ([]int16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return nil, os.ErrClosed
	}

	if err := s.stream.Read(); err != nil {
		if !errors.Is(err, portaudio.InputOverflowed) {
			return nil, fmt.Errorf("failed to read frame: %w", err)
		}
		s.overflows++
	}

	return FloatToInt16(s.buffer), nil
}

// Overflows returns how many reads reported an input overflow
func (s *LoopbackSource) Overflows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overflows
}

// Close stops the stream and releases PortAudio
func (s *LoopbackSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminated {
		return nil
	}

	var errs []error
	if s.stream != nil {
		if err := s.stream.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop stream: %w", err))
		}
		if err := s.stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close stream: %w", err))
		}
		s.stream = nil
	}

	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("failed to terminate PortAudio: %w", err))
	}
	s.terminated = true

	return errors.Join(errs...)
}
