package audio

import (
	"context"
	"errors"
	"sync"
	"time"
)

// FrameBuffer accumulates samples pushed by a capture callback and hands them
// out in fixed-size frames, oldest first. It is safe for one producer calling
// Push concurrently with one consumer calling TryTakeFrame and Wait.
//
// Samples are never reordered or dropped. Overflow flags reported by the
// capture device are counted so that the consumer can surface them.
type FrameBuffer struct {
	frameSize  int
	sampleRate int

	mu       sync.Mutex
	buf      []int16
	head     int   // read cursor into buf
	taken    int64 // samples handed out so far
	overruns int

	// notify holds at most one pending wake-up for Wait.
	notify chan struct{}
}

// NewFrameBuffer returns a FrameBuffer that yields frames of frameSize samples
// at sampleRate. capacity is a size hint in samples for the backing store.
func NewFrameBuffer(sampleRate, frameSize, capacity int) (*FrameBuffer, error) {
	if sampleRate <= 0 {
		return nil, errors.New("audio: frame buffer sample rate must be positive")
	}
	if frameSize <= 0 {
		return nil, errors.New("audio: frame buffer frame size must be positive")
	}
	if capacity < frameSize {
		capacity = frameSize * 2
	}
	return &FrameBuffer{
		frameSize:  frameSize,
		sampleRate: sampleRate,
		buf:        make([]int16, 0, capacity),
		notify:     make(chan struct{}, 1),
	}, nil
}

// FrameSize returns the number of samples per frame.
func (b *FrameBuffer) FrameSize() int { return b.frameSize }

// Push appends newly captured samples. overflow reports that the capture
// device lost input before this block (an input overrun). The slice is copied;
// the caller may reuse it after Push returns.
func (b *FrameBuffer) Push(samples []int16, overflow bool) {
	b.mu.Lock()
	b.buf = append(b.buf, samples...)
	if overflow {
		b.overruns++
	}
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// TryTakeFrame removes and returns the oldest frame if at least one full
// frame is buffered. It never blocks; ok is false when not enough samples are
// available yet.
func (b *FrameBuffer) TryTakeFrame() (frame Frame, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.buf)-b.head < b.frameSize {
		return Frame{}, false
	}

	samples := make([]int16, b.frameSize)
	copy(samples, b.buf[b.head:b.head+b.frameSize])
	frame = Frame{
		Samples:    samples,
		SampleRate: b.sampleRate,
		Offset:     SamplesDuration(int(b.taken), b.sampleRate),
	}
	b.head += b.frameSize
	b.taken += int64(b.frameSize)

	// Compact once the consumed prefix dominates the backing array so that the
	// amortised cost per frame stays constant.
	if b.head >= len(b.buf)-b.head {
		n := copy(b.buf, b.buf[b.head:])
		b.buf = b.buf[:n]
		b.head = 0
	}
	return frame, true
}

// Wait blocks until new samples are pushed, maxWait elapses, or ctx is done.
// It returns ctx.Err() in the latter case and nil otherwise. A non-positive
// maxWait waits for data or ctx only.
func (b *FrameBuffer) Wait(ctx context.Context, maxWait time.Duration) error {
	if maxWait <= 0 {
		select {
		case <-b.notify:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	timer := time.NewTimer(maxWait)
	defer timer.Stop()
	select {
	case <-b.notify:
		return nil
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Buffered returns the number of samples not yet handed out.
func (b *FrameBuffer) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf) - b.head
}

// Overruns returns the number of overflow flags reported through Push.
func (b *FrameBuffer) Overruns() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overruns
}
