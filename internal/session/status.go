package session

import (
	"log/slog"
	"sync"
)

// State tags a status update.
type State string

const (
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
	StateIdle         State = "idle"
	StateCancel       State = "cancel"
	StateError        State = "error"
)

// Status is one update on the status channel.
type Status struct {
	State   State
	Message string
}

// StatusQueue is a bounded outbound queue of status updates. Push never
// blocks: when the queue is full the oldest update is dropped. A nil
// *StatusQueue discards every update.
type StatusQueue struct {
	mu      sync.Mutex
	ch      chan Status
	dropped int
	last    State
}

// DefaultStatusQueueSize is used by NewStatusQueue for non-positive sizes.
const DefaultStatusQueueSize = 16

// NewStatusQueue returns a queue holding up to size updates.
func NewStatusQueue(size int) *StatusQueue {
	if size <= 0 {
		size = DefaultStatusQueueSize
	}
	return &StatusQueue{ch: make(chan Status, size)}
}

// C returns the channel consumers read updates from.
func (q *StatusQueue) C() <-chan Status { return q.ch }

// Push enqueues s, dropping the oldest pending update if the queue is full.
func (q *StatusQueue) Push(s Status) {
	if q == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.last = s.State
	for {
		select {
		case q.ch <- s:
			return
		default:
		}
		select {
		case old := <-q.ch:
			q.dropped++
			slog.Debug("status queue full; dropped oldest update", "dropped_state", old.State, "state", s.State)
		default:
		}
	}
}

// Last returns the state of the most recent update, or StateIdle before the
// first one. Dropped updates still count.
func (q *StatusQueue) Last() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.last == "" {
		return StateIdle
	}
	return q.last
}

// Dropped returns how many updates were discarded because the queue was full.
func (q *StatusQueue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
