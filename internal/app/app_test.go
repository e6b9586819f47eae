package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/neurobridge/neurobridge/internal/backend"
	"github.com/neurobridge/neurobridge/internal/config"
	"github.com/neurobridge/neurobridge/pkg/capability/camera"
	cameramock "github.com/neurobridge/neurobridge/pkg/capability/camera/mock"
	"github.com/neurobridge/neurobridge/pkg/capability/recognizer"
	recmock "github.com/neurobridge/neurobridge/pkg/capability/recognizer/mock"
	synthmock "github.com/neurobridge/neurobridge/pkg/capability/synth/mock"
)

// fakeBackend is a scriptable BackendClient.
type fakeBackend struct {
	mu           sync.Mutex
	intent       string
	analyzeErr   error
	analyzeCalls int
	gesture      backend.Gesture
	detectErr    error
	detectGate   chan struct{}
	genIntent    string
	genErr       error
	description  string
	describeErr  error
}

func (f *fakeBackend) AnalyzeBuffer(ctx context.Context, frames []camera.Frame) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyzeCalls++
	return f.intent, f.analyzeErr
}

func (f *fakeBackend) DescribeImage(ctx context.Context, _ camera.Frame) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.description, f.describeErr
}

func (f *fakeBackend) DetectGesture(ctx context.Context, _ camera.Frame) (backend.Gesture, error) {
	f.mu.Lock()
	gate := f.detectGate
	g, err := f.gesture, f.detectErr
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return backend.Gesture{}, ctx.Err()
		}
	}
	return g, err
}

func (f *fakeBackend) GenerateIntent(ctx context.Context, gesture string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.genIntent, f.genErr
}

type harness struct {
	app     *App
	cam     *cameramock.Camera
	engine  *recmock.Engine
	synth   *synthmock.Synthesizer
	backend *fakeBackend
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		cam:    &cameramock.Camera{Frame: "data:image/jpeg;base64,AAA"},
		engine: recmock.New(),
		synth:  synthmock.New(),
		backend: &fakeBackend{
			intent:    "I need water",
			gesture:   backend.Gesture{Name: "head_nod", Confidence: 0.9},
			genIntent: "I agree",
		},
	}
	cfg := &config.Config{}
	cfg.Capture.Interval = config.Duration(2 * time.Millisecond)
	cfg.Capture.MaxFrames = 3
	cfg.Capture.Window = config.Duration(250 * time.Millisecond)

	a, err := New(cfg, Deps{
		Camera:     h.cam,
		Recognizer: h.engine,
		Synth:      h.synth,
		Backend:    h.backend,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.app = a
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = a.Shutdown(shutdownCtx)
	})
	return h
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func spoke(s *synthmock.Synthesizer, text string) func() bool {
	return func() bool {
		for _, spoken := range s.SpokenTexts() {
			if spoken == text {
				return true
			}
		}
		return false
	}
}

func TestRecordIntent_SpeaksInterpretedIntent(t *testing.T) {
	h := newHarness(t)

	if err := h.app.RecordIntent(context.Background()); err != nil {
		t.Fatalf("RecordIntent: %v", err)
	}
	waitFor(t, spoke(h.synth, "I need water"), "intent was never spoken")
	waitFor(t, func() bool { return !h.app.Status().Processing }, "processing flag never cleared")

	if got := h.app.Status().LastIntent; got != "I need water" {
		t.Errorf("last intent = %q, want the interpreted intent", got)
	}

	// The spoken intent lands in the transcript as an assistant message.
	msgs := h.app.Transcript()
	if len(msgs) == 0 || msgs[len(msgs)-1].Text != "I need water" {
		t.Errorf("transcript = %+v, want the intent as its last message", msgs)
	}
}

func TestRecordIntent_FailureSpeaksApology(t *testing.T) {
	h := newHarness(t)
	h.backend.analyzeErr = errors.New("mediapipe crashed")
	h.backend.intent = ""

	if err := h.app.RecordIntent(context.Background()); err != nil {
		t.Fatalf("RecordIntent: %v", err)
	}
	waitFor(t, spoke(h.synth, apologyGesture), "apology was never spoken")

	if got := h.app.Status().LastError; !strings.Contains(got, "mediapipe") {
		t.Errorf("last error = %q, want the analysis failure", got)
	}
	for _, s := range h.synth.SpokenTexts() {
		if strings.Contains(s, "mediapipe") {
			t.Errorf("raw error leaked into speech: %q", s)
		}
	}
}

func TestRecordIntent_EmptyIntentSpeaksNoMatch(t *testing.T) {
	h := newHarness(t)
	h.backend.intent = ""

	if err := h.app.RecordIntent(context.Background()); err != nil {
		t.Fatalf("RecordIntent: %v", err)
	}
	waitFor(t, spoke(h.synth, responseNoMatch), "no-match response was never spoken")
}

func TestRecordIntent_WhileActiveIsRejected(t *testing.T) {
	h := newHarness(t)

	if err := h.app.RecordIntent(context.Background()); err != nil {
		t.Fatalf("first RecordIntent: %v", err)
	}
	if err := h.app.RecordIntent(context.Background()); !errors.Is(err, ErrRecordingActive) {
		t.Errorf("second RecordIntent = %v, want ErrRecordingActive", err)
	}
}

func TestRecordIntent_WithoutBackend(t *testing.T) {
	cam := &cameramock.Camera{Frame: "f"}
	a, err := New(nil, Deps{Camera: cam, Recognizer: recmock.New(), Synth: synthmock.New()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.RecordIntent(context.Background()); !errors.Is(err, ErrNoBackend) {
		t.Errorf("RecordIntent = %v, want ErrNoBackend", err)
	}
}

func TestCaptureGesture_SpeaksGeneratedIntent(t *testing.T) {
	h := newHarness(t)

	if err := h.app.CaptureGesture(context.Background()); err != nil {
		t.Fatalf("CaptureGesture: %v", err)
	}
	waitFor(t, spoke(h.synth, "I agree"), "generated intent was never spoken")
	if got := h.app.Status().LastIntent; got != "I agree" {
		t.Errorf("last intent = %q, want I agree", got)
	}
}

func TestCaptureGesture_NoGestureDetected(t *testing.T) {
	h := newHarness(t)
	h.backend.gesture = backend.Gesture{}

	if err := h.app.CaptureGesture(context.Background()); err != nil {
		t.Fatalf("CaptureGesture: %v", err)
	}
	waitFor(t, spoke(h.synth, responseNoMatch), "no-match response was never spoken")
}

func TestCaptureGesture_BackendFailure(t *testing.T) {
	h := newHarness(t)
	h.backend.detectErr = errors.New("model overloaded")

	err := h.app.CaptureGesture(context.Background())
	if err == nil {
		t.Fatal("expected error from failing backend")
	}
	waitFor(t, spoke(h.synth, apologyGesture), "apology was never spoken")
}

func TestCaptureGesture_WhileProcessingIsRejected(t *testing.T) {
	h := newHarness(t)
	h.backend.detectGate = make(chan struct{})
	defer close(h.backend.detectGate)

	first := make(chan error, 1)
	go func() {
		first <- h.app.CaptureGesture(context.Background())
	}()
	waitFor(t, func() bool { return h.app.Status().Processing }, "first capture never started")

	if err := h.app.CaptureGesture(context.Background()); !errors.Is(err, ErrAnalysisActive) {
		t.Errorf("concurrent CaptureGesture = %v, want ErrAnalysisActive", err)
	}
}

func TestHandler_StatusAndHealth(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.app.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/healthz status = %d, want 200", resp.StatusCode)
	}

	resp2, err := http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp2.Body.Close()
	var status Status
	if err := json.NewDecoder(resp2.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Processing || status.Recording {
		t.Errorf("fresh app status = %+v, want everything idle", status)
	}
}

func TestHandler_GestureIntentPlaysAfterResponse(t *testing.T) {
	h := newHarness(t)
	h.synth.Delay = 20 * time.Millisecond
	srv := httptest.NewServer(h.app.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/gesture", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/gesture: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("gesture status = %d, want 200", resp.StatusCode)
	}

	// The handler has responded and its request context is dead; the spoken
	// intent must still play to its natural end.
	waitFor(t, func() bool {
		for _, done := range h.synth.CompletedTexts() {
			if done == "I agree" {
				return true
			}
		}
		return false
	}, "intent playback was cut short")
}

func TestHandler_RecordConflict(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.app.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/record", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/record: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("first record status = %d, want 202", resp.StatusCode)
	}

	resp2, err := http.Post(srv.URL+"/api/record", "application/json", nil)
	if err != nil {
		t.Fatalf("second POST /api/record: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusConflict {
		t.Errorf("second record status = %d, want 409", resp2.StatusCode)
	}
}

func TestHandler_VoiceStartUnsupported(t *testing.T) {
	h := newHarness(t)
	h.engine.StartErr = recognizer.ErrUnsupported
	srv := httptest.NewServer(h.app.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/voice/start", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/voice/start: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("voice start status = %d, want 501", resp.StatusCode)
	}
}

// deafSynth never finishes an utterance and ignores cancellation.
type deafSynth struct {
	started chan struct{}
}

func (d *deafSynth) Speak(context.Context, string) error {
	close(d.started)
	select {}
}

func TestShutdown_DrainBoundedByContext(t *testing.T) {
	started := make(chan struct{})
	a, err := New(nil, Deps{
		Camera:     &cameramock.Camera{Frame: "f"},
		Recognizer: recmock.New(),
		Synth:      &deafSynth{started: started},
		Backend: &fakeBackend{
			gesture:   backend.Gesture{Name: "head_nod", Confidence: 0.9},
			genIntent: "I agree",
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := a.CaptureGesture(context.Background()); err != nil {
		t.Fatalf("CaptureGesture: %v", err)
	}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("synthesizer was never reached")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Shutdown(ctx) }()

	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Shutdown error = %v, want context.DeadlineExceeded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return when its context expired")
	}
}

func TestStatus_ReflectsRecording(t *testing.T) {
	h := newHarness(t)
	// A camera that never yields keeps the session open until the window.
	h.cam.Frame = ""
	h.cam.Err = camera.ErrNoFrame

	if err := h.app.RecordIntent(context.Background()); err != nil {
		t.Fatalf("RecordIntent: %v", err)
	}
	if !h.app.Status().Recording {
		t.Error("status.Recording = false during an active session")
	}
	h.app.CancelRecording()
	if h.app.Status().Recording {
		t.Error("status.Recording = true after cancel")
	}
}
