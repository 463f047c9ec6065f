package health

import (
	"net/http"
	"sync/atomic"
)

// WatchState describes where the Watch Supervisor's event loop currently
// stands. Readiness is driven directly off this state rather than a bare
// flag, so a /readyz probe reports why the controller isn't serving, not
// just that it isn't.
type WatchState int32

const (
	// WatchNotStarted is the state before Run has opened the Pod and
	// EdgeDeployment watches.
	WatchNotStarted WatchState = iota
	// WatchEstablished is the state once both watches are open and
	// dispatching events to the Status Tracker and Reconciler.
	WatchEstablished
	// WatchStopped is the state after Run has torn both watches down,
	// whether from context cancellation or a fatal setup error.
	WatchStopped
)

func (s WatchState) String() string {
	switch s {
	case WatchEstablished:
		return "watching"
	case WatchStopped:
		return "stopped"
	default:
		return "not-started"
	}
}

// HealthChecker exposes the Watch Supervisor's lifecycle over HTTP: liveness
// answers "is the process alive", readiness answers "are both watches
// currently established".
type HealthChecker struct {
	state atomic.Int32
}

// NewHealthChecker returns a checker in WatchNotStarted.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{}
}

// SetWatchState records the Watch Supervisor's current state.
func (hc *HealthChecker) SetWatchState(s WatchState) {
	hc.state.Store(int32(s))
}

// SetReady is a boolean convenience over SetWatchState for callers that
// only distinguish established/not: true maps to WatchEstablished, false to
// WatchStopped.
func (hc *HealthChecker) SetReady(ready bool) {
	if ready {
		hc.SetWatchState(WatchEstablished)
	} else {
		hc.SetWatchState(WatchStopped)
	}
}

// State returns the Watch Supervisor's last-reported state.
func (hc *HealthChecker) State() WatchState {
	return WatchState(hc.state.Load())
}

// IsReady reports whether both watches are currently established.
func (hc *HealthChecker) IsReady() bool {
	return hc.State() == WatchEstablished
}

// LivenessHandler always reports ok: the process being able to serve this
// handler at all is the only thing liveness checks, independent of watch
// state.
func (hc *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
}

// ReadinessHandler reports 200 only while the Watch Supervisor is in
// WatchEstablished; the response body carries the state name so an operator
// watching a node's readiness probe output can tell "never started" apart
// from "stopped".
func (hc *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := hc.State()
		if state == WatchEstablished {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		w.Write([]byte(state.String()))
	})
}

// AttachHealthEndpoints wires /healthz and /readyz onto mux.
func AttachHealthEndpoints(mux *http.ServeMux, checker *HealthChecker) {
	mux.Handle("/healthz", checker.LivenessHandler())
	mux.Handle("/readyz", checker.ReadinessHandler())
}
