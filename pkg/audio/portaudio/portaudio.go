// Package portaudio implements [audio.Device] on top of PortAudio.
//
// The PortAudio shared library (libportaudio) and headers must be available
// at build time; see github.com/gordonklaus/portaudio.
package portaudio

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/voxwriter/pkg/audio"
)

// Device opens PortAudio input streams. PortAudio is initialised once per
// open stream and terminated when the stream closes, so the zero value is
// ready to use.
type Device struct{}

// New returns a PortAudio-backed [audio.Device].
func New() *Device { return &Device{} }

// Ensure Device implements the audio interfaces at compile time.
var (
	_ audio.Device = (*Device)(nil)
	_ audio.Lister = (*Device)(nil)
)

// Open implements [audio.Device]. cfg.Channels must be 1.
func (d *Device) Open(cfg audio.CaptureConfig, push audio.PushFunc) (audio.Stream, error) {
	if cfg.Channels != 0 && cfg.Channels != 1 {
		return nil, fmt.Errorf("portaudio: only mono capture is supported, got %d channels", cfg.Channels)
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("portaudio: sample rate must be positive, got %d", cfg.SampleRate)
	}
	if push == nil {
		return nil, errors.New("portaudio: push callback must not be nil")
	}

	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}

	dev, err := resolveDevice(cfg.Device)
	if err != nil {
		_ = pa.Terminate()
		return nil, err
	}

	params := pa.HighLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = cfg.BlockSize

	cb := func(in []int16, _ pa.StreamCallbackTimeInfo, flags pa.StreamCallbackFlags) {
		push(in, flags&pa.InputOverflow != 0)
	}

	st, err := pa.OpenStream(params, cb)
	if err != nil {
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: open stream on %q: %w", dev.Name, err)
	}

	slog.Debug("portaudio stream opened",
		"device", dev.Name,
		"sample_rate", cfg.SampleRate,
		"block_size", cfg.BlockSize,
	)
	return &stream{st: st, name: dev.Name}, nil
}

// Devices implements [audio.Lister]. Only devices with at least one input
// channel are returned.
func (d *Device) Devices() ([]audio.DeviceInfo, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	defer pa.Terminate()

	all, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	def, _ := pa.DefaultInputDevice()

	var out []audio.DeviceInfo
	for _, di := range all {
		if di.MaxInputChannels < 1 {
			continue
		}
		out = append(out, audio.DeviceInfo{
			ID:               strconv.Itoa(di.Index),
			Name:             di.Name,
			Default:          def != nil && def.Index == di.Index,
			MaxInputChannels: di.MaxInputChannels,
		})
	}
	return out, nil
}

// resolveDevice maps a selector to a PortAudio input device.
func resolveDevice(selector string) (*pa.DeviceInfo, error) {
	if selector == "" {
		dev, err := pa.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("portaudio: default input device: %w", err)
		}
		return dev, nil
	}
	all, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	return selectDevice(all, selector)
}

// selectDevice picks an input device by numeric index, exact name, or
// case-insensitive name substring, in that order of preference.
func selectDevice(devices []*pa.DeviceInfo, selector string) (*pa.DeviceInfo, error) {
	if idx, err := strconv.Atoi(selector); err == nil {
		for _, d := range devices {
			if d.Index == idx {
				if d.MaxInputChannels < 1 {
					return nil, fmt.Errorf("portaudio: device %d (%q) has no input channels", idx, d.Name)
				}
				return d, nil
			}
		}
		return nil, fmt.Errorf("portaudio: no device with index %d", idx)
	}

	var partial *pa.DeviceInfo
	lower := strings.ToLower(selector)
	for _, d := range devices {
		if d.MaxInputChannels < 1 {
			continue
		}
		if d.Name == selector {
			return d, nil
		}
		if partial == nil && strings.Contains(strings.ToLower(d.Name), lower) {
			partial = d
		}
	}
	if partial != nil {
		return partial, nil
	}
	return nil, fmt.Errorf("portaudio: no input device matches %q", selector)
}

// stream wraps a PortAudio stream. Close stops, closes, and terminates
// PortAudio exactly once.
type stream struct {
	st   *pa.Stream
	name string

	closeOnce sync.Once
	closeErr  error
}

func (s *stream) DeviceName() string { return s.name }

func (s *stream) Start() error {
	if err := s.st.Start(); err != nil {
		return fmt.Errorf("portaudio: start stream: %w", err)
	}
	return nil
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		// Stop fails when the stream was never started; that is not worth reporting.
		_ = s.st.Stop()
		if err := s.st.Close(); err != nil {
			errs = append(errs, fmt.Errorf("portaudio: close stream: %w", err))
		}
		if err := pa.Terminate(); err != nil {
			errs = append(errs, fmt.Errorf("portaudio: terminate: %w", err))
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
