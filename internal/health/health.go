// Package health serves the liveness and readiness probes of the assistant.
//
//   - /healthz — liveness; a process that can answer HTTP is alive, so this
//     always returns 200.
//   - /readyz  — readiness; 200 only while every registered probe passes.
//     The assistant registers a probe for the client bridge connection, so
//     an orchestrator won't route traffic to an instance no browser is
//     attached to.
//
// Both respond with JSON: a top-level "status" ("ok" or "fail") and, for
// readiness, a per-probe "checks" map.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// probeTimeout bounds a single readiness probe. Probes here are in-memory
// flag reads, so anything slower than this is itself a failure.
const probeTimeout = 2 * time.Second

// Checker is one named readiness probe. Check returns nil while the probed
// dependency is usable and an error describing the problem otherwise.
type Checker struct {
	// Name keys this probe's entry in the readiness response, e.g. "client"
	// or "backend".
	Name string

	// Check probes the dependency. It must honor ctx cancellation.
	Check func(ctx context.Context) error
}

// report is the response body shared by both probes.
type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler answers the two probe endpoints. The probe set is fixed at
// construction; serving is safe for concurrent use.
type Handler struct {
	probes []Checker
}

// New creates a Handler that runs the given probes, in order, on every
// /readyz request.
func New(probes ...Checker) *Handler {
	p := make([]Checker, len(probes))
	copy(p, probes)
	return &Handler{probes: p}
}

// Healthz answers the liveness probe. Always 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, report{Status: "ok"})
}

// Readyz answers the readiness probe: 200 when every probe passes, 503 with
// the failing probes named otherwise.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := report{
		Status: "ok",
		Checks: make(map[string]string, len(h.probes)),
	}
	code := http.StatusOK

	for _, p := range h.probes {
		if err := h.runProbe(r.Context(), p); err != nil {
			rep.Checks[p.Name] = "fail: " + err.Error()
			rep.Status = "fail"
			code = http.StatusServiceUnavailable
		} else {
			rep.Checks[p.Name] = "ok"
		}
	}

	respond(w, code, rep)
}

// runProbe executes one probe under the probe timeout.
func (h *Handler) runProbe(ctx context.Context, p Checker) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return p.Check(ctx)
}

// Register mounts both probe routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func respond(w http.ResponseWriter, code int, rep report) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
