package transcribe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/voxwriter/internal/observe"
	"github.com/MrWong99/voxwriter/pkg/provider/stt"
)

// Lazy is an [stt.Provider] whose backend is constructed on the first
// Transcribe call and reused afterwards. A failed construction is not cached;
// the next call tries again.
type Lazy struct {
	name  string
	build func() (stt.Provider, error)

	mu sync.Mutex
	p  stt.Provider

	verbose atomic.Bool
}

var _ stt.Provider = (*Lazy)(nil)

// NewLazy returns a Lazy that calls build on first use. name is reported by
// Name before and after construction.
func NewLazy(name string, build func() (stt.Provider, error)) *Lazy {
	return &Lazy{name: name, build: build}
}

// Ready wraps an already constructed provider.
func Ready(p stt.Provider) *Lazy {
	return &Lazy{name: p.Name(), p: p}
}

// SetVerbose reports model construction at Info instead of Debug.
func (l *Lazy) SetVerbose(v bool) { l.verbose.Store(v) }

func (l *Lazy) progress(ctx context.Context, msg string) {
	level := slog.LevelDebug
	if l.verbose.Load() {
		level = slog.LevelInfo
	}
	observe.Logger(ctx).Log(ctx, level, msg, "provider", l.name)
}

// Name implements [stt.Provider].
func (l *Lazy) Name() string { return l.name }

// Built reports whether the backend has been constructed.
func (l *Lazy) Built() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p != nil
}

// Get returns the backend, constructing it if necessary.
func (l *Lazy) Get(ctx context.Context) (stt.Provider, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.p != nil {
		return l.p, nil
	}
	if l.build == nil {
		return nil, fmt.Errorf("transcribe: %s is closed", l.name)
	}
	l.progress(ctx, "creating local model")
	p, err := l.build()
	if err != nil {
		return nil, fmt.Errorf("transcribe: create %s: %w", l.name, err)
	}
	l.progress(ctx, "local model created")
	l.p = p
	return p, nil
}

// Transcribe implements [stt.Provider].
func (l *Lazy) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	p, err := l.Get(ctx)
	if err != nil {
		return stt.Transcript{}, err
	}
	return p.Transcribe(ctx, req)
}

// Close closes the backend if it was constructed and implements io.Closer.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.p.(io.Closer); ok {
		l.p = nil
		return c.Close()
	}
	return nil
}
