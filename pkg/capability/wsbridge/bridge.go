// Package wsbridge implements the camera, recognizer and synth capabilities
// over a WebSocket connection to the client page.
//
// The assistant's reasoning runs server-side, but the devices live in the
// client's browser: the webcam, the speech-recognition engine and the
// speech-synthesis voices. The bridge inverts those capabilities over a
// single JSON message stream — the server sends requests (take a screenshot,
// start recognizing, speak this), the client answers with results and
// engine events.
//
// One client is connected at a time; a new connection replaces the previous
// one, which covers page reloads.
package wsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/neurobridge/neurobridge/pkg/capability/camera"
	"github.com/neurobridge/neurobridge/pkg/capability/recognizer"
	"github.com/neurobridge/neurobridge/pkg/capability/synth"
)

const (
	// writeTimeout bounds each outbound message.
	writeTimeout = 10 * time.Second

	// screenshotTimeout bounds a screenshot round trip.
	screenshotTimeout = 5 * time.Second
)

// ErrNoClient is returned when a capability is used while no client page is
// connected.
var ErrNoClient = errors.New("wsbridge: no client connected")

// ErrDisconnected is returned for operations interrupted by the client
// going away.
var ErrDisconnected = errors.New("wsbridge: client disconnected")

// Option is a functional option for configuring the Bridge.
type Option func(*Bridge)

// WithLanguage sets the recognition language tag sent on recognizer.start.
func WithLanguage(lang string) Option {
	return func(b *Bridge) {
		if lang != "" {
			b.language = lang
		}
	}
}

// WithSpeechParams sets the synthesis rate, pitch and volume forwarded with
// every speak request. Zero values mean the client's defaults.
func WithSpeechParams(rate, pitch, volume float64) Option {
	return func(b *Bridge) {
		b.rate, b.pitch, b.volume = rate, pitch, volume
	}
}

// WithOriginPatterns sets the allowed WebSocket origins. Default allows only
// same-origin requests.
func WithOriginPatterns(patterns []string) Option {
	return func(b *Bridge) {
		b.originPatterns = patterns
	}
}

// Bridge implements camera.Camera, recognizer.Recognizer and
// synth.Synthesizer against the currently connected client. All methods are
// safe for concurrent use.
type Bridge struct {
	language       string
	rate           float64
	pitch          float64
	volume         float64
	originPatterns []string

	events chan recognizer.Event

	mu        sync.Mutex
	conn      *websocket.Conn
	connGone  chan struct{}
	supported bool
	listening bool
	nextID    uint64
	shots     map[uint64]chan envelope
	speaks    map[uint64]chan error
	closed    bool
}

// New creates a Bridge with no client connected yet.
func New(opts ...Option) *Bridge {
	b := &Bridge{
		language: "en-US",
		events:   make(chan recognizer.Event, 32),
		shots:    make(map[uint64]chan envelope),
		speaks:   make(map[uint64]chan error),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Handler returns the HTTP handler that upgrades client connections.
func (b *Bridge) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: b.originPatterns,
		})
		if err != nil {
			slog.Warn("wsbridge: accept failed", "error", err)
			return
		}
		b.serve(r.Context(), conn, r.RemoteAddr)
	})
}

// serve installs conn as the active client and reads messages until it goes
// away.
func (b *Bridge) serve(ctx context.Context, conn *websocket.Conn, remote string) {
	gone := make(chan struct{})

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	if prev := b.conn; prev != nil {
		prev.Close(websocket.StatusPolicyViolation, "replaced by a new client")
	}
	b.conn = conn
	b.connGone = gone
	b.supported = false
	b.mu.Unlock()

	slog.Info("wsbridge: client connected", "remote", remote)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		env, ok := decodeEnvelope(data)
		if !ok {
			slog.Debug("wsbridge: ignoring malformed message")
			continue
		}
		b.handleMessage(env)
	}

	close(gone)
	b.dropConn(conn)
	slog.Info("wsbridge: client disconnected")
}

// dropConn clears conn if it is still the active client and fails everything
// that was waiting on it.
func (b *Bridge) dropConn(conn *websocket.Conn) {
	b.mu.Lock()
	if b.conn != conn {
		b.mu.Unlock()
		return
	}
	b.conn = nil
	b.connGone = nil
	wasListening := b.listening
	b.listening = false
	shots := b.shots
	speaks := b.speaks
	b.shots = make(map[uint64]chan envelope)
	b.speaks = make(map[uint64]chan error)
	b.mu.Unlock()

	for _, ch := range shots {
		close(ch)
	}
	for _, ch := range speaks {
		ch <- ErrDisconnected
	}
	if wasListening {
		b.emit(recognizer.Event{Kind: recognizer.EventError, Err: ErrDisconnected})
	}
}

// handleMessage dispatches one decoded client envelope.
func (b *Bridge) handleMessage(env envelope) {
	switch env.Type {
	case typeHello:
		b.mu.Lock()
		b.supported = env.Recognition
		b.mu.Unlock()
		slog.Info("wsbridge: client hello", "recognition", env.Recognition)

	case typeScreenshotResult, typeScreenshotError:
		b.mu.Lock()
		ch, ok := b.shots[env.ID]
		delete(b.shots, env.ID)
		b.mu.Unlock()
		if ok {
			ch <- env
		}

	case typeRecognizerStarted:
		b.mu.Lock()
		b.listening = true
		b.mu.Unlock()
		b.emit(recognizer.Event{Kind: recognizer.EventStarted})

	case typeRecognizerResult:
		if text, ok := pickFinal(env.Results); ok {
			b.emit(recognizer.Event{Kind: recognizer.EventResult, Transcript: text})
		}

	case typeRecognizerEnded:
		b.mu.Lock()
		b.listening = false
		b.mu.Unlock()
		b.emit(recognizer.Event{Kind: recognizer.EventEnded})

	case typeRecognizerError:
		b.mu.Lock()
		b.listening = false
		b.mu.Unlock()
		b.emit(recognizer.Event{Kind: recognizer.EventError,
			Err: fmt.Errorf("wsbridge: recognition failed: %s", env.Error)})

	case typeSpeakDone, typeSpeakError:
		b.mu.Lock()
		ch, ok := b.speaks[env.ID]
		delete(b.speaks, env.ID)
		b.mu.Unlock()
		if !ok {
			return
		}
		if env.Type == typeSpeakError {
			ch <- fmt.Errorf("wsbridge: synthesis failed: %s", env.Error)
		} else {
			ch <- nil
		}

	default:
		slog.Debug("wsbridge: ignoring unknown message type", "type", env.Type)
	}
}

// emit delivers a recognizer event without blocking the read loop. Dropping
// is safe only because the channel is far larger than any realistic burst.
// The mutex is held across the send so no event races [Bridge.Close] closing
// the channel.
func (b *Bridge) emit(ev recognizer.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	select {
	case b.events <- ev:
	default:
		slog.Warn("wsbridge: recognizer event dropped, consumer too slow", "kind", ev.Kind)
	}
}

// send marshals env and writes it to the active connection.
func (b *Bridge) send(ctx context.Context, env envelope) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return ErrNoClient
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("wsbridge: encode %s: %w", env.Type, err)
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("wsbridge: send %s: %w", env.Type, err)
	}
	return nil
}

// ---- camera.Camera ----

// Screenshot requests one frame from the client's webcam.
func (b *Bridge) Screenshot(ctx context.Context) (camera.Frame, error) {
	b.mu.Lock()
	if b.conn == nil {
		b.mu.Unlock()
		return "", ErrNoClient
	}
	b.nextID++
	id := b.nextID
	ch := make(chan envelope, 1)
	b.shots[id] = ch
	gone := b.connGone
	b.mu.Unlock()

	if err := b.send(ctx, envelope{Type: typeScreenshotRequest, ID: id}); err != nil {
		b.forgetShot(id)
		return "", err
	}

	select {
	case env, ok := <-ch:
		if !ok {
			return "", ErrDisconnected
		}
		if env.Type == typeScreenshotError || env.Frame == "" {
			return "", camera.ErrNoFrame
		}
		return env.Frame, nil
	case <-gone:
		b.forgetShot(id)
		return "", ErrDisconnected
	case <-time.After(screenshotTimeout):
		b.forgetShot(id)
		return "", camera.ErrNoFrame
	case <-ctx.Done():
		b.forgetShot(id)
		return "", ctx.Err()
	}
}

func (b *Bridge) forgetShot(id uint64) {
	b.mu.Lock()
	delete(b.shots, id)
	b.mu.Unlock()
}

// ---- recognizer.Recognizer ----

// Start asks the client to begin a recognition run.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	conn := b.conn
	supported := b.supported
	b.mu.Unlock()
	if conn == nil {
		return ErrNoClient
	}
	if !supported {
		return recognizer.ErrUnsupported
	}
	return b.send(ctx, envelope{Type: typeRecognizerStart, Language: b.language})
}

// Stop asks the client to end the current recognition run. The run's
// EventEnded arrives asynchronously.
func (b *Bridge) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	err := b.send(ctx, envelope{Type: typeRecognizerStop})
	if errors.Is(err, ErrNoClient) {
		// Stopping with nobody connected is a no-op.
		return nil
	}
	return err
}

// Events returns the recognizer event stream. The channel is closed by
// [Bridge.Close].
func (b *Bridge) Events() <-chan recognizer.Event {
	return b.events
}

// ---- synth.Synthesizer ----

// Speak sends text to the client's synthesis engine and blocks until the
// utterance finishes, fails, or ctx is cancelled. Cancellation tells the
// client to cut the utterance off.
func (b *Bridge) Speak(ctx context.Context, text string) error {
	b.mu.Lock()
	if b.conn == nil {
		b.mu.Unlock()
		return ErrNoClient
	}
	b.nextID++
	id := b.nextID
	ch := make(chan error, 1)
	b.speaks[id] = ch
	gone := b.connGone
	b.mu.Unlock()

	env := envelope{
		Type:   typeSpeak,
		ID:     id,
		Text:   text,
		Rate:   b.rate,
		Pitch:  b.pitch,
		Volume: b.volume,
	}
	if err := b.send(ctx, env); err != nil {
		b.forgetSpeak(id)
		return err
	}

	select {
	case err := <-ch:
		return err
	case <-gone:
		b.forgetSpeak(id)
		return ErrDisconnected
	case <-ctx.Done():
		b.forgetSpeak(id)
		// Best effort: the client cuts playback immediately.
		cctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		_ = b.send(cctx, envelope{Type: typeSpeakCancel, ID: id})
		return ctx.Err()
	}
}

func (b *Bridge) forgetSpeak(id uint64) {
	b.mu.Lock()
	delete(b.speaks, id)
	b.mu.Unlock()
}

// Close tears the bridge down for good: the active client is disconnected
// and the event channel is closed.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	conn := b.conn
	b.mu.Unlock()

	if conn != nil {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
	close(b.events)
}

// Connected reports whether a client page is currently attached.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

// RecognitionSupported reports whether the attached client announced a
// speech-recognition engine in its hello.
func (b *Bridge) RecognitionSupported() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.supported
}

// Compile-time capability checks.
var (
	_ camera.Camera         = (*Bridge)(nil)
	_ recognizer.Recognizer = (*Bridge)(nil)
	_ synth.Synthesizer     = (*Bridge)(nil)
)
