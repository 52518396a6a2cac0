// Package mock provides an in-memory [audio.Device] for unit tests.
//
// The mock is safe for concurrent use. It records every Open call and
// exposes exported fields that the test can set to control behaviour.
//
// Typical usage:
//
//	dev := &mock.Device{
//	    Blocks: [][]int16{speech, speech, silence},
//	    Tail:   silence, // keep pushing silence until Close
//	}
//	stream, err := dev.Open(cfg, buf.Push)
//	stream.Start()
package mock

import (
	"sync"
	"time"

	"github.com/MrWong99/voxwriter/pkg/audio"
)

// Device is a mock implementation of [audio.Device] and [audio.Lister].
// Set the exported fields before use; inspect the Call* fields after.
type Device struct {
	mu sync.Mutex

	// Name is reported by Stream.DeviceName. Defaults to "mock".
	Name string

	// Blocks are pushed in order after Start, one per Interval.
	Blocks [][]int16

	// OverflowAt marks block indices that are pushed with overflow=true.
	OverflowAt map[int]bool

	// Tail, when non-nil, is pushed repeatedly after Blocks are exhausted
	// until the stream is closed.
	Tail []int16

	// Interval is the delay between pushes. Zero pushes as fast as possible.
	Interval time.Duration

	// OpenErr, StartErr, CloseErr are returned by the corresponding calls.
	OpenErr  error
	StartErr error
	CloseErr error

	// DevicesResult and DevicesErr are returned by Devices.
	DevicesResult []audio.DeviceInfo
	DevicesErr    error

	// OpenCalls records the config of every Open call in order.
	OpenCalls []audio.CaptureConfig

	// CallCountClose records how many streams were closed.
	CallCountClose int
}

// Open implements [audio.Device].
func (d *Device) Open(cfg audio.CaptureConfig, push audio.PushFunc) (audio.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OpenCalls = append(d.OpenCalls, cfg)
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	name := d.Name
	if name == "" {
		name = "mock"
	}
	return &Stream{
		dev:  d,
		name: name,
		push: push,
		done: make(chan struct{}),
	}, nil
}

// Devices implements [audio.Lister].
func (d *Device) Devices() ([]audio.DeviceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.DevicesResult, d.DevicesErr
}

// Ensure Device implements the audio interfaces at compile time.
var (
	_ audio.Device = (*Device)(nil)
	_ audio.Lister = (*Device)(nil)
)

// Stream is the [audio.Stream] returned by [Device.Open].
type Stream struct {
	dev  *Device
	name string
	push audio.PushFunc

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// DeviceName implements [audio.Stream].
func (s *Stream) DeviceName() string { return s.name }

// Start implements [audio.Stream]. It begins pushing the scripted blocks on a
// background goroutine.
func (s *Stream) Start() error {
	s.dev.mu.Lock()
	startErr := s.dev.StartErr
	blocks := s.dev.Blocks
	overflow := s.dev.OverflowAt
	tail := s.dev.Tail
	interval := s.dev.Interval
	s.dev.mu.Unlock()

	if startErr != nil {
		return startErr
	}

	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.run(blocks, overflow, tail, interval)
	})
	return nil
}

func (s *Stream) run(blocks [][]int16, overflow map[int]bool, tail []int16, interval time.Duration) {
	defer s.wg.Done()

	wait := func() bool {
		if interval <= 0 {
			select {
			case <-s.done:
				return false
			default:
				return true
			}
		}
		select {
		case <-s.done:
			return false
		case <-time.After(interval):
			return true
		}
	}

	for i, b := range blocks {
		if !wait() {
			return
		}
		s.push(b, overflow[i])
	}
	if tail == nil {
		return
	}
	for wait() {
		s.push(tail, false)
		if interval <= 0 {
			// Yield so a busy consumer can observe Close.
			time.Sleep(50 * time.Microsecond)
		}
	}
}

// Close implements [audio.Stream].
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		s.dev.mu.Lock()
		s.dev.CallCountClose++
		err = s.dev.CloseErr
		s.dev.mu.Unlock()
	})
	return err
}
