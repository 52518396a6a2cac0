package app

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/MrWong99/voxwriter/internal/recorder"
)

// Trigger is the cancel flag of the running session. A line read by
// [Trigger.Listen] or a signal delivered to [Trigger.WatchSignals] asserts
// it. The trigger is also the session's companion: a silence stop disarms it
// so that input arriving after the utterance ended does not carry over into
// the next session.
type Trigger struct {
	armed atomic.Bool
	fired atomic.Bool
	stops atomic.Int64
}

var _ recorder.Stopper = (*Trigger)(nil)

// NewTrigger returns a disarmed Trigger.
func NewTrigger() *Trigger { return &Trigger{} }

// Arm clears the flag and starts accepting input for a new session.
func (t *Trigger) Arm() {
	t.fired.Store(false)
	t.armed.Store(true)
}

// Fire asserts the flag if the trigger is armed and reports whether it did.
func (t *Trigger) Fire() bool {
	if !t.armed.Load() {
		return false
	}
	t.fired.Store(true)
	return true
}

// Cancelled is the session's [recorder.CancelProbe].
func (t *Trigger) Cancelled() bool { return t.fired.Load() }

// Stop implements [recorder.Stopper]. It disarms the trigger until the next
// Arm.
func (t *Trigger) Stop() {
	t.disarm()
	t.stops.Add(1)
}

func (t *Trigger) disarm() { t.armed.Store(false) }

// Stops returns how many times the trigger was stopped by a session.
func (t *Trigger) Stops() int { return int(t.stops.Load()) }

// Listen fires the trigger once per line read from r. It returns when r is
// exhausted or ctx is done; a blocked read on r is not interrupted.
func (t *Trigger) Listen(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if t.Fire() {
			slog.Debug("cancel requested", "source", "input")
		}
	}
	return sc.Err()
}

// WatchSignals fires the trigger for every signal received on sig until ctx
// is done.
func (t *Trigger) WatchSignals(ctx context.Context, sig <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-sig:
			if t.Fire() {
				slog.Debug("cancel requested", "source", "signal", "signal", s.String())
			}
		}
	}
}
