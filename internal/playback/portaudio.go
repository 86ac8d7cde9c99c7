package playback

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/yok-tottii/echocap/internal/audio"
)

// framesPerBuffer is the write granularity of the output stream
const framesPerBuffer = 1024

// PortAudioOutput renders on PortAudio output devices
type PortAudioOutput struct{}

// Lookup finds the output device whose name contains match
func (PortAudioOutput) Lookup(match string) (audio.Device, error) {
	devices, err := audio.ListDevicesOnce()
	if err != nil {
		return audio.Device{}, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	return FindOutput(devices, match)
}

// Render blocks until samples have been written to dev
func (PortAudioOutput) Render(dev audio.Device, samples []float32, channels, sampleRate int) (err error) {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	info, err := deviceInfo(dev)
	if err != nil {
		return err
	}

	buffer := make([]float32, framesPerBuffer*channels)
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: channels,
			Latency:  info.DefaultHighOutputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: framesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, buffer)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close output stream: %w", cerr))
		}
	}()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}

	for off := 0; off < len(samples); off += len(buffer) {
		n := copy(buffer, samples[off:])
		clear(buffer[n:])
		if err := stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			stream.Stop()
			return fmt.Errorf("failed to write frames: %w", err)
		}
	}

	if err := stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop output stream: %w", err)
	}
	return nil
}

// deviceInfo resolves a Device back to PortAudio's descriptor.
// PortAudio must be initialized.
func deviceInfo(dev audio.Device) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	for _, info := range devices {
		if info.Index == dev.ID && info.Name == dev.Name {
			return info, nil
		}
	}
	for _, info := range devices {
		if info.Name == dev.Name && info.MaxOutputChannels > 0 {
			return info, nil
		}
	}
	return nil, fmt.Errorf("%w: %s disappeared", ErrNoDevice, dev.Name)
}
