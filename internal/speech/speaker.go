// Package speech serializes all spoken output through the singleton
// speech-synthesis capability.
//
// The synthesis engine can only play one utterance at a time, so the Speaker
// guarantees at most one utterance in flight. The arbitration policy is
// cancel-then-speak: a new request preempts the current utterance so the most
// recent message always wins, which avoids stale queued speech during rapid
// command turnover. Empty requests and identical repeats of the currently
// playing text are dropped.
package speech

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/neurobridge/neurobridge/internal/observe"
	"github.com/neurobridge/neurobridge/pkg/capability/synth"
)

// Option is a functional option for configuring a Speaker.
type Option func(*Speaker)

// WithMetrics wires metric recording into the Speaker.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Speaker) {
		s.metrics = m
	}
}

// WithErrorHandler registers fn to be called when the synthesis engine
// reports a failure. The speaking flag is always reset first, so the system
// stays usable regardless of what fn does.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Speaker) {
		s.onError = fn
	}
}

// Speaker owns the synthesis capability and serializes utterances.
// All methods are safe for concurrent use.
type Speaker struct {
	engine  synth.Synthesizer
	metrics *observe.Metrics
	onError func(error)

	mu       sync.Mutex
	speaking bool
	current  string
	gen      uint64
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSpeaker creates a Speaker backed by engine.
func NewSpeaker(engine synth.Synthesizer, opts ...Option) *Speaker {
	s := &Speaker{engine: engine}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Speak requests text to be spoken. It returns immediately; synthesis runs
// asynchronously. An empty text, or a repeat of the text currently playing,
// is a no-op. Any other request while an utterance is in flight cancels that
// utterance first.
func (s *Speaker) Speak(ctx context.Context, text string) {
	if text == "" {
		s.record(ctx, "dropped")
		return
	}

	s.mu.Lock()
	if s.speaking && s.current == text {
		s.mu.Unlock()
		s.record(ctx, "dropped")
		return
	}
	if s.speaking && s.cancel != nil {
		s.cancel()
		s.record(ctx, "preempted")
	}
	prevDone := s.done

	// Playback must outlive the caller: HTTP handlers and the dispatch loop
	// return long before the engine finishes an utterance. Preemption and
	// Close cancel through the Speaker's own cancel func.
	utterCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.gen++
	gen := s.gen
	done := make(chan struct{})
	s.speaking = true
	s.current = text
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.play(utterCtx, gen, text, prevDone, done)
}

// play waits for the previous utterance to fully release the engine, then
// synthesises text and settles the speaking state.
func (s *Speaker) play(ctx context.Context, gen uint64, text string, prevDone, done chan struct{}) {
	defer close(done)

	if prevDone != nil {
		<-prevDone
	}
	if ctx.Err() != nil {
		// Preempted before the engine was even reached. The state must still
		// settle, or this utterance would report speaking forever.
		s.settle(gen)
		return
	}

	start := time.Now()
	err := s.engine.Speak(ctx, text)

	s.settle(gen)

	switch {
	case err == nil:
		s.record(ctx, "spoken")
		if s.metrics != nil {
			s.metrics.SpeechDuration.Record(context.WithoutCancel(ctx), time.Since(start).Seconds())
		}
	case errors.Is(err, context.Canceled):
		// Preempted mid-play; the preempting call already recorded it.
	default:
		s.record(context.WithoutCancel(ctx), "failed")
		slog.Warn("speech: synthesis failed", "error", err)
		if s.onError != nil {
			s.onError(err)
		}
	}
}

// settle clears the speaking state if gen is still the live utterance. A
// stale generation means a newer utterance owns the state now.
func (s *Speaker) settle(gen uint64) {
	s.mu.Lock()
	if s.gen == gen {
		s.speaking = false
		s.current = ""
		s.cancel = nil
	}
	s.mu.Unlock()
}

// Speaking reports whether an utterance is currently in flight.
func (s *Speaker) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// Close cancels any in-flight utterance and waits for the engine to release.
func (s *Speaker) Close() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *Speaker) record(ctx context.Context, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordSpeechRequest(context.WithoutCancel(ctx), outcome)
	}
}
