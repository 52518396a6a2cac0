// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to inject a Transcript or error and to inspect the requests a
// caller made. Because the audio file handed to a provider is removed once
// Transcribe returns, the mock snapshots the file while the call is running.
//
// Example:
//
//	p := &mock.Provider{Result: stt.Transcript{Text: "hello"}}
//	tr, _ := p.Transcribe(ctx, stt.Request{AudioPath: path})
//	p.Calls[0].AudioExisted // true
package mock

import (
	"context"
	"os"
	"sync"

	"github.com/MrWong99/voxwriter/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Req is the Request passed to Transcribe.
	Req stt.Request

	// AudioExisted reports whether Req.AudioPath existed during the call.
	AudioExisted bool

	// AudioSize is the size in bytes of Req.AudioPath during the call.
	AudioSize int64
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// Result is returned by Transcribe when Err is nil.
	Result stt.Transcript

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// OnTranscribe, if set, is called with each request before the result is
	// returned. It may block to simulate a slow backend.
	OnTranscribe func(ctx context.Context, req stt.Request)

	// Calls records every call to Transcribe in order.
	Calls []TranscribeCall
}

// Transcribe records the call and returns Result, Err.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	call := TranscribeCall{Req: req}
	if fi, err := os.Stat(req.AudioPath); err == nil {
		call.AudioExisted = true
		call.AudioSize = fi.Size()
	}

	p.mu.Lock()
	p.Calls = append(p.Calls, call)
	hook := p.OnTranscribe
	p.mu.Unlock()

	if hook != nil {
		hook(ctx, req)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return stt.Transcript{}, p.Err
	}
	return p.Result, nil
}

// Name implements stt.Provider.
func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// CallCount returns the number of Transcribe calls so far. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
