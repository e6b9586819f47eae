// Package capture implements the frame buffer recorder: a timed capture loop
// that collects a bounded burst of encoded frames from the camera capability
// and delivers the finished buffer exactly once.
//
// Two stop conditions race — the frame count reaching its maximum and a
// safety deadline elapsing. Both are owned by a single goroutine's select
// loop, so whichever fires first wins deterministically: there is no second
// delivery and no leaked timer. A session that reaches the deadline with an
// empty buffer ends silently, since there is nothing to analyze.
package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/neurobridge/neurobridge/internal/observe"
	"github.com/neurobridge/neurobridge/pkg/capability/camera"
)

const (
	// defaultInterval targets 10 captures per second.
	defaultInterval = 100 * time.Millisecond

	// defaultMaxFrames is the count stop condition.
	defaultMaxFrames = 10

	// defaultWindow is the safety deadline: the session ends after this long
	// regardless of how many frames were collected.
	defaultWindow = 2 * time.Second
)

// Option is a functional option for configuring a Recorder.
type Option func(*Recorder)

// WithInterval sets the capture interval between frame attempts.
func WithInterval(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithMaxFrames sets the frame count at which a session stops and delivers.
func WithMaxFrames(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.maxFrames = n
		}
	}
}

// WithWindow sets the safety deadline for a session.
func WithWindow(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.window = d
		}
	}
}

// WithMetrics wires metric recording into the Recorder.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// Recorder owns at most one recording session at a time. All exported
// methods are safe for concurrent use.
type Recorder struct {
	cam       camera.Camera
	interval  time.Duration
	maxFrames int
	window    time.Duration
	metrics   *observe.Metrics

	mu     sync.Mutex
	active bool
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Recorder reading from cam.
func New(cam camera.Camera, opts ...Option) *Recorder {
	r := &Recorder{
		cam:       cam,
		interval:  defaultInterval,
		maxFrames: defaultMaxFrames,
		window:    defaultWindow,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Start begins a new recording session. deliver is invoked at most once, from
// the session goroutine, with the ordered non-empty frame buffer. A session
// that collects zero frames by the deadline ends without delivery. Start is
// an idempotent no-op while a session is active and reports whether a new
// session was started.
func (r *Recorder) Start(ctx context.Context, deliver func(frames []camera.Frame)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		slog.Debug("capture: start ignored, session already active")
		return false
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.active = true
	r.cancel = cancel
	r.done = done

	if r.metrics != nil {
		r.metrics.ActiveRecordings.Add(context.WithoutCancel(ctx), 1)
	}

	go r.run(sessionCtx, deliver, done)
	return true
}

// run is the single owner of both stop conditions. It exits through exactly
// one select arm, so delivery can happen at most once.
func (r *Recorder) run(ctx context.Context, deliver func([]camera.Frame), done chan struct{}) {
	start := time.Now()
	ticker := time.NewTicker(r.interval)
	deadline := time.NewTimer(r.window)
	frames := make([]camera.Frame, 0, r.maxFrames)

	defer func() {
		ticker.Stop()
		deadline.Stop()
		r.finish(time.Since(start), len(frames))
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			// Cancelled session: clear timers, never deliver a partial buffer.
			slog.Debug("capture: session cancelled", "frames", len(frames))
			return

		case <-deadline.C:
			if len(frames) == 0 {
				// The camera yielded nothing for the whole window. Known-soft
				// behaviour: end silently, nothing to analyze.
				slog.Debug("capture: deadline reached with empty buffer")
				return
			}
			slog.Debug("capture: deadline reached", "frames", len(frames))
			deliver(frames)
			return

		case <-ticker.C:
			// A slow camera must not hold the session open past its window.
			tickCtx, cancel := context.WithDeadline(ctx, start.Add(r.window))
			frame, err := r.cam.Screenshot(tickCtx)
			cancel()
			if err != nil {
				// An unavailable frame does not count as an error; skip the tick.
				if !errors.Is(err, camera.ErrNoFrame) && !errors.Is(err, context.Canceled) &&
					!errors.Is(err, context.DeadlineExceeded) {
					slog.Debug("capture: screenshot failed, skipping tick", "error", err)
				}
				continue
			}
			frames = append(frames, frame)
			if r.metrics != nil {
				r.metrics.FramesCaptured.Add(context.WithoutCancel(ctx), 1)
			}
			if len(frames) >= r.maxFrames {
				slog.Debug("capture: max frame count reached", "frames", len(frames))
				deliver(frames)
				return
			}
		}
	}
}

// finish settles the session bookkeeping after run exits.
func (r *Recorder) finish(elapsed time.Duration, frames int) {
	r.mu.Lock()
	r.active = false
	r.cancel = nil
	r.mu.Unlock()

	if r.metrics != nil {
		ctx := context.Background()
		r.metrics.ActiveRecordings.Add(ctx, -1)
		r.metrics.CaptureWindowDuration.Record(ctx, elapsed.Seconds())
	}
	slog.Debug("capture: session finished", "elapsed", elapsed, "frames", frames)
}

// Cancel aborts the active session, if any, clearing both timers without
// delivering a partial buffer. It blocks until the session goroutine exits.
func (r *Recorder) Cancel() {
	r.mu.Lock()
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Recording reports whether a session is currently active.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}
