// Package app wires all NeuroBridge subsystems into a running application.
//
// The App owns the orchestration flows: gesture recording and analysis, the
// voice command session, and the HTTP surface the client page talks to. The
// device capabilities (camera, recognizer, synthesizer) are injected, so
// tests run against mocks while production runs against the WebSocket bridge.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/neurobridge/neurobridge/internal/backend"
	"github.com/neurobridge/neurobridge/internal/capture"
	"github.com/neurobridge/neurobridge/internal/config"
	"github.com/neurobridge/neurobridge/internal/observe"
	"github.com/neurobridge/neurobridge/internal/speech"
	"github.com/neurobridge/neurobridge/internal/transcript"
	"github.com/neurobridge/neurobridge/internal/voice"
	"github.com/neurobridge/neurobridge/pkg/capability/camera"
	"github.com/neurobridge/neurobridge/pkg/capability/recognizer"
	"github.com/neurobridge/neurobridge/pkg/capability/synth"
)

// Fixed spoken responses for the gesture flows. Failures are always
// translated into one of these; raw errors never reach the synthesizer.
const (
	apologyGesture  = "I'm sorry, I couldn't analyze your gestures at the moment."
	responseNoMatch = "I didn't catch a gesture just now."
)

// ErrRecordingActive is returned when a gesture recording is requested while
// one is already running.
var ErrRecordingActive = errors.New("app: a recording session is already active")

// ErrAnalysisActive is returned when an analysis is requested while one is
// already in flight.
var ErrAnalysisActive = errors.New("app: an analysis is already in flight")

// ErrNoBackend is returned when a flow needs the analysis backend but none
// is configured.
var ErrNoBackend = errors.New("app: no analysis backend configured")

// BackendClient is the slice of the backend the App needs.
type BackendClient interface {
	AnalyzeBuffer(ctx context.Context, frames []camera.Frame) (string, error)
	DescribeImage(ctx context.Context, image camera.Frame) (string, error)
	DetectGesture(ctx context.Context, image camera.Frame) (backend.Gesture, error)
	GenerateIntent(ctx context.Context, gesture string) (string, error)
}

// Deps holds the injected capabilities and infrastructure for an [App].
type Deps struct {
	// Camera, Recognizer and Synth are the device capabilities. Required.
	// In production all three are the WebSocket bridge.
	Camera     camera.Camera
	Recognizer recognizer.Recognizer
	Synth      synth.Synthesizer

	// Backend is the analysis backend. Nil disables the gesture and
	// describe flows.
	Backend BackendClient

	// BridgeHandler serves the client WebSocket endpoint at /ws. Optional.
	BridgeHandler http.Handler

	// ClientConnected reports whether a client page is attached; used for
	// readiness. Optional.
	ClientConnected func() bool

	// Metrics is optional.
	Metrics *observe.Metrics
}

// App owns the assistant's orchestration flows. All exported methods are
// safe for concurrent use.
type App struct {
	cfg  *config.Config
	deps Deps

	speaker  *speech.Speaker
	recorder *capture.Recorder
	ctrl     *voice.Controller
	log      *transcript.Log
	state    *State
}

// New creates an App from cfg and the injected dependencies.
func New(cfg *config.Config, deps Deps) (*App, error) {
	if deps.Camera == nil || deps.Recognizer == nil || deps.Synth == nil {
		return nil, errors.New("app: camera, recognizer and synth are all required")
	}
	if cfg == nil {
		cfg = &config.Config{}
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}

	a := &App{
		cfg:   cfg,
		deps:  deps,
		log:   transcript.NewLog(),
		state: NewState(),
	}

	a.speaker = speech.NewSpeaker(deps.Synth,
		speech.WithMetrics(deps.Metrics),
		speech.WithErrorHandler(func(err error) {
			a.state.SetError(err.Error())
		}),
	)

	var recOpts []capture.Option
	if d := cfg.Capture.Interval.Std(); d > 0 {
		recOpts = append(recOpts, capture.WithInterval(d))
	}
	if n := cfg.Capture.MaxFrames; n > 0 {
		recOpts = append(recOpts, capture.WithMaxFrames(n))
	}
	if d := cfg.Capture.Window.Std(); d > 0 {
		recOpts = append(recOpts, capture.WithWindow(d))
	}
	if deps.Metrics != nil {
		recOpts = append(recOpts, capture.WithMetrics(deps.Metrics))
	}
	a.recorder = capture.New(deps.Camera, recOpts...)

	var describe voice.DescribeClient
	if deps.Backend != nil {
		describe = deps.Backend
	}
	ctrl, err := voice.NewController(voice.ControllerConfig{
		Engine:   deps.Recognizer,
		Speaker:  a.speaker,
		Log:      a.log,
		Backend:  describe,
		Camera:   deps.Camera,
		Greeting: cfg.Voice.Greeting,
		Metrics:  deps.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("app: create voice controller: %w", err)
	}
	a.ctrl = ctrl

	return a, nil
}

// RecordIntent starts a gesture recording session. The collected buffer is
// analyzed asynchronously and the interpreted intent is spoken. Returns
// ErrRecordingActive while a session is running and ErrNoBackend when no
// analysis backend is configured.
func (a *App) RecordIntent(ctx context.Context) error {
	if a.deps.Backend == nil {
		return ErrNoBackend
	}
	started := a.recorder.Start(ctx, func(frames []camera.Frame) {
		a.analyzeBuffer(context.WithoutCancel(ctx), frames)
	})
	if !started {
		return ErrRecordingActive
	}
	slog.Info("app: gesture recording started")
	return nil
}

// analyzeBuffer submits the finished frame buffer and speaks the result. It
// runs on the recorder's session goroutine.
func (a *App) analyzeBuffer(ctx context.Context, frames []camera.Frame) {
	if !a.state.BeginProcessing() {
		slog.Warn("app: dropping frame buffer, analysis already in flight")
		return
	}
	defer a.state.EndProcessing()

	ctx, span := observe.StartSpan(ctx, "app.analyze_buffer")
	defer span.End()

	intent, err := a.deps.Backend.AnalyzeBuffer(ctx, frames)
	if err != nil {
		slog.Warn("app: buffer analysis failed", "frames", len(frames), "error", err)
		a.state.SetError(err.Error())
		a.say(ctx, apologyGesture)
		return
	}
	if intent == "" {
		slog.Info("app: buffer analysis found no intent", "frames", len(frames))
		a.say(ctx, responseNoMatch)
		return
	}

	slog.Info("app: gesture intent interpreted", "intent", intent, "frames", len(frames))
	a.state.SetIntent(intent)
	a.say(ctx, intent)
}

// CaptureGesture runs the one-shot flow: capture a frame, detect the gesture
// on it, turn the gesture into an intent sentence, and speak it. Failures are
// spoken as the fixed apology and also returned for the HTTP layer.
func (a *App) CaptureGesture(ctx context.Context) error {
	if a.deps.Backend == nil {
		return ErrNoBackend
	}
	if !a.state.BeginProcessing() {
		return ErrAnalysisActive
	}
	defer a.state.EndProcessing()

	ctx, span := observe.StartSpan(ctx, "app.capture_gesture")
	defer span.End()

	frame, err := a.deps.Camera.Screenshot(ctx)
	if err != nil {
		a.state.SetError(err.Error())
		a.say(ctx, apologyGesture)
		return fmt.Errorf("app: capture frame: %w", err)
	}

	gesture, err := a.deps.Backend.DetectGesture(ctx, frame)
	if err != nil {
		a.state.SetError(err.Error())
		a.say(ctx, apologyGesture)
		return fmt.Errorf("app: detect gesture: %w", err)
	}
	if gesture.Name == "" {
		a.say(ctx, responseNoMatch)
		return nil
	}

	intent, err := a.deps.Backend.GenerateIntent(ctx, gesture.Name)
	if err != nil {
		a.state.SetError(err.Error())
		a.say(ctx, apologyGesture)
		return fmt.Errorf("app: generate intent: %w", err)
	}

	slog.Info("app: gesture detected",
		"gesture", gesture.Name,
		"confidence", gesture.Confidence,
		"intent", intent,
	)
	a.state.SetIntent(intent)
	a.say(ctx, intent)
	return nil
}

// CancelRecording aborts the active gesture recording, if any.
func (a *App) CancelRecording() {
	a.recorder.Cancel()
}

// StartVoice begins the voice command session.
func (a *App) StartVoice(ctx context.Context) error {
	return a.ctrl.StartListening(ctx)
}

// StopVoice ends the voice command session.
func (a *App) StopVoice() error {
	return a.ctrl.StopListening()
}

// say speaks text and records it as an assistant transcript message.
func (a *App) say(ctx context.Context, text string) {
	a.speaker.Speak(ctx, text)
	a.log.Append(transcript.RoleAssistant, text)
}

// Status is the JSON shape served by /api/status.
type Status struct {
	Processing bool   `json:"processing"`
	Recording  bool   `json:"recording"`
	Listening  bool   `json:"listening"`
	Speaking   bool   `json:"speaking"`
	Connected  bool   `json:"client_connected"`
	LastIntent string `json:"last_intent,omitempty"`
	LastError  string `json:"last_error,omitempty"`
	Messages   int    `json:"messages"`
}

// Status returns a point-in-time snapshot of the assistant.
func (a *App) Status() Status {
	connected := true
	if a.deps.ClientConnected != nil {
		connected = a.deps.ClientConnected()
	}
	return Status{
		Processing: a.state.Processing(),
		Recording:  a.recorder.Recording(),
		Listening:  a.ctrl.Listening(),
		Speaking:   a.speaker.Speaking(),
		Connected:  connected,
		LastIntent: a.state.LastIntent(),
		LastError:  a.state.LastError(),
		Messages:   a.log.Len(),
	}
}

// Transcript returns a copy of the session transcript.
func (a *App) Transcript() []transcript.Message {
	return a.log.Messages()
}

/// Shutdown stops all background work: the gesture recorder, the voice
// session, and any in-flight speech. The drain is bounded by ctx; on
// expiry the remaining goroutines are abandoned and the error says so.
func (a *App) Shutdown(ctx context.Context) error {
	a.recorder.Cancel()
	err := a.ctrl.StopListening()

	drained := make(chan struct{})
	go func() {
		a.ctrl.Router().Wait()
		a.speaker.Close()
		close(drained)
	}()
	select {
	case <-drained:
		return err
	case <-ctx.Done():
		return errors.Join(err, fmt.Errorf("app: shutdown drain: %w", ctx.Err()))
	}
}
