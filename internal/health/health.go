// Package health serves the liveness and readiness endpoints of the voxwriter
// status server.
//
// GET /healthz answers 200 while the process can serve HTTP and reports the
// state of the recording loop. GET /readyz also runs every [Checker], all at
// once under one deadline, and answers 503 when any of them fails:
//
//	{"status":"fail","state":"recording","checks":{"vad":"ok","capture":"fail: no input device"}}
//
// [VAD], [Capture] and [Transcriber] build the checkers voxwriter registers.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/voxwriter/internal/observe"
)

// DefaultTimeout bounds a whole /readyz evaluation.
const DefaultTimeout = 5 * time.Second

// Checker is a named readiness check. Check returns nil when the dependency is
// usable and must return promptly once ctx is done.
type Checker struct {
	// Name is the key of the result in the "checks" map.
	Name  string
	Check func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	State  string            `json:"state,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction.
type Handler struct {
	checkers []Checker
	state    func() string
	timeout  time.Duration
}

// Option configures a Handler.
type Option func(*Handler)

// WithState reports fn's result as "state" in every response.
func WithState(fn func() string) Option {
	return func(h *Handler) { h.state = fn }
}

// WithTimeout overrides [DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// New returns a Handler evaluating checkers on each /readyz request.
func New(checkers []Checker, opts ...Option) *Handler {
	h := &Handler{
		checkers: append([]Checker(nil), checkers...),
		timeout:  DefaultTimeout,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Handler) currentState() string {
	if h.state == nil {
		return ""
	}
	return h.state()
}

// Healthz is the liveness endpoint.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok", State: h.currentState()})
}

// Readyz is the readiness endpoint.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	errs := make([]error, len(h.checkers))
	var wg sync.WaitGroup
	for i, c := range h.checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = c.Check(ctx)
		}()
	}
	wg.Wait()

	res := result{Status: "ok", State: h.currentState(), Checks: make(map[string]string, len(h.checkers))}
	status := http.StatusOK
	for i, c := range h.checkers {
		if errs[i] != nil {
			res.Checks[c.Name] = "fail: " + errs[i].Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		res.Checks[c.Name] = "ok"
	}
	writeJSON(w, status, res)
}

// Register adds the health routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET "+observe.RouteHealthz, h.Healthz)
	mux.HandleFunc("GET "+observe.RouteReadyz, h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
