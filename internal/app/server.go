package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/neurobridge/neurobridge/internal/health"
	"github.com/neurobridge/neurobridge/internal/observe"
	"github.com/neurobridge/neurobridge/pkg/capability/recognizer"
)

const shutdownTimeout = 10 * time.Second

// transcriptMessage is the JSON shape of one transcript entry.
type transcriptMessage struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Handler returns the full HTTP surface of the assistant: the client
// WebSocket endpoint, the control API, and the health probes.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()

	if a.deps.BridgeHandler != nil {
		mux.Handle("/ws", a.deps.BridgeHandler)
	}

	h := health.New(health.Checker{
		Name: "client",
		Check: func(context.Context) error {
			if a.deps.ClientConnected != nil && !a.deps.ClientConnected() {
				return errors.New("no client page connected")
			}
			return nil
		},
	})
	h.Register(mux)

	mux.HandleFunc("GET /api/status", a.handleStatus)
	mux.HandleFunc("GET /api/transcript", a.handleTranscript)
	mux.HandleFunc("POST /api/record", a.handleRecord)
	mux.HandleFunc("POST /api/gesture", a.handleGesture)
	mux.HandleFunc("POST /api/voice/start", a.handleVoiceStart)
	mux.HandleFunc("POST /api/voice/stop", a.handleVoiceStop)

	return observe.Middleware(a.deps.Metrics)(mux)
}

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.Status())
}

func (a *App) handleTranscript(w http.ResponseWriter, _ *http.Request) {
	msgs := a.Transcript()
	out := make([]transcriptMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, transcriptMessage{Role: string(m.Role), Text: m.Text, At: m.At})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) handleRecord(w http.ResponseWriter, r *http.Request) {
	switch err := a.RecordIntent(r.Context()); {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "recording"})
	case errors.Is(err, ErrRecordingActive):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, ErrNoBackend):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (a *App) handleGesture(w http.ResponseWriter, r *http.Request) {
	switch err := a.CaptureGesture(r.Context()); {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
			"intent": a.state.LastIntent(),
		})
	case errors.Is(err, ErrAnalysisActive):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, ErrNoBackend):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeError(w, http.StatusBadGateway, err)
	}
}

func (a *App) handleVoiceStart(w http.ResponseWriter, r *http.Request) {
	switch err := a.StartVoice(r.Context()); {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "listening"})
	case errors.Is(err, recognizer.ErrUnsupported):
		writeError(w, http.StatusNotImplemented, err)
	default:
		writeError(w, http.StatusBadGateway, err)
	}
}

func (a *App) handleVoiceStop(w http.ResponseWriter, _ *http.Request) {
	if err := a.StopVoice(); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// Run serves the HTTP surface and the voice event loop until ctx is
// cancelled, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: a.Handler(),
	}

	g.Go(func() error {
		slog.Info("app: serving", "addr", addr, "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})

	// Metrics on a separate listener so the control API can be exposed to
	// the client without also exposing Prometheus internals.
	var metricsSrv *http.Server
	if maddr := a.cfg.Server.MetricsAddr; maddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("GET /metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: maddr, Handler: metricsMux}
		g.Go(func() error {
			slog.Info("app: serving metrics", "addr", maddr)
			if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: serve metrics: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return a.ctrl.Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("app: server shutdown", "error", err)
		}
		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				slog.Warn("app: metrics server shutdown", "error", err)
			}
		}
		return nil
	})

	return g.Wait()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
