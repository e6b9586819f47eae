package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/neurobridge/neurobridge/internal/observe"
	"github.com/neurobridge/neurobridge/internal/speech"
	"github.com/neurobridge/neurobridge/internal/transcript"
	"github.com/neurobridge/neurobridge/pkg/capability/camera"
	"github.com/neurobridge/neurobridge/pkg/capability/recognizer"
)

// State is the controller's listening lifecycle state.
type State int

const (
	// StateIdle means no session is active and none is wanted.
	StateIdle State = iota

	// StateStarting means Start was issued and the engine's acknowledgment
	// is pending.
	StateStarting

	// StateListening means the engine acknowledged and results may arrive.
	StateListening

	// StateStopped means the user explicitly ended the session. Unlike Idle,
	// it is only reachable through StopListening or a "stop listening"
	// utterance.
	StateStopped
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// defaultGreeting is spoken once when a listening session is explicitly
// started, never on engine auto-restarts.
const defaultGreeting = "Voice control activated. I'm listening."

// apologyEngine is spoken when the recognition engine fails mid-session.
const apologyEngine = "I'm sorry, voice recognition ran into a problem, so I've stopped listening."

// ControllerConfig holds all dependencies for a [Controller].
type ControllerConfig struct {
	// Engine is the speech-recognition capability. Required.
	Engine recognizer.Recognizer

	// Speaker serializes all spoken responses. Required.
	Speaker *speech.Speaker

	// Log is the session transcript. Required.
	Log *transcript.Log

	// Backend serves describe requests. Optional.
	Backend DescribeClient

	// Camera provides describe frames. Optional.
	Camera camera.Camera

	// Greeting overrides the default session greeting. Empty means default;
	// use a single space to disable greeting entirely.
	Greeting string

	// Metrics is optional.
	Metrics *observe.Metrics
}

// Controller emulates continuous listening on top of an engine that only
// supports discrete recognition runs: whenever a run ends and the session
// should continue, the engine is started again. Explicit stops flip the
// continuation flag before stopping the engine, so the final EventEnded does
// not trigger a restart.
type Controller struct {
	engine   recognizer.Recognizer
	router   *Router
	metrics  *observe.Metrics
	greeting string

	mu             sync.Mutex
	state          State
	shouldContinue bool
	greetPending   bool

	// generation counts listening sessions. It advances whenever a session
	// ends, invalidating responses issued under a previous session.
	generation atomic.Uint64
}

// NewController creates a Controller and its internal command router.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Engine == nil {
		return nil, errors.New("voice: engine must not be nil")
	}
	if cfg.Speaker == nil {
		return nil, errors.New("voice: speaker must not be nil")
	}
	if cfg.Log == nil {
		return nil, errors.New("voice: transcript log must not be nil")
	}
	greeting := cfg.Greeting
	if greeting == "" {
		greeting = defaultGreeting
	}
	c := &Controller{
		engine:   cfg.Engine,
		metrics:  cfg.Metrics,
		greeting: strings.TrimSpace(greeting),
	}
	c.router = NewRouter(RouterConfig{
		Speaker:    cfg.Speaker,
		Log:        cfg.Log,
		Backend:    cfg.Backend,
		Camera:     cfg.Camera,
		Stop:       func() { _ = c.StopListening() },
		Generation: c.Generation,
		Metrics:    cfg.Metrics,
	})
	return c, nil
}

// StartListening begins a listening session. It is a no-op while a session is
// starting or active. recognizer.ErrUnsupported is surfaced unwrapped so the
// caller can disable voice control for good.
func (c *Controller) StartListening(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateStarting || c.state == StateListening {
		c.mu.Unlock()
		slog.Debug("voice: start ignored, session already active")
		return nil
	}
	c.state = StateStarting
	c.shouldContinue = true
	c.greetPending = true
	c.mu.Unlock()

	if err := c.engine.Start(ctx); err != nil {
		c.mu.Lock()
		c.state = StateIdle
		c.shouldContinue = false
		c.greetPending = false
		c.mu.Unlock()
		if errors.Is(err, recognizer.ErrUnsupported) {
			return err
		}
		return fmt.Errorf("voice: start recognition: %w", err)
	}
	slog.Info("voice: listening session requested")
	return nil
}

// StopListening ends the session. The continuation flag is cleared before the
// engine is stopped, so the run's final EventEnded finds nothing to restart.
func (c *Controller) StopListening() error {
	c.mu.Lock()
	if c.state == StateIdle || c.state == StateStopped {
		c.mu.Unlock()
		return nil
	}
	c.state = StateStopped
	c.shouldContinue = false
	c.greetPending = false
	c.mu.Unlock()

	c.generation.Add(1)
	slog.Info("voice: listening session stopped")
	return c.engine.Stop()
}

// Run consumes engine events until ctx is cancelled or the engine's event
// channel closes. It must be running for the controller to react to results.
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			_ = c.StopListening()
			c.router.Wait()
			return nil
		case ev, ok := <-c.engine.Events():
			if !ok {
				c.router.Wait()
				return nil
			}
			c.handleEvent(ctx, ev)
		}
	}
}

func (c *Controller) handleEvent(ctx context.Context, ev recognizer.Event) {
	switch ev.Kind {
	case recognizer.EventStarted:
		c.mu.Lock()
		c.state = StateListening
		greet := c.greetPending
		c.greetPending = false
		c.mu.Unlock()

		if c.metrics != nil {
			c.metrics.ListeningSessions.Add(context.WithoutCancel(ctx), 1)
		}
		slog.Info("voice: engine listening")
		if greet && c.greeting != "" {
			c.router.Announce(ctx, c.greeting)
		}

	case recognizer.EventResult:
		// Engines occasionally finalize an empty candidate; there is nothing
		// to route.
		if strings.TrimSpace(ev.Transcript) == "" {
			return
		}
		c.router.Dispatch(ctx, ev.Transcript)

	case recognizer.EventEnded:
		c.mu.Lock()
		wasListening := c.state == StateListening
		cont := c.shouldContinue
		if cont {
			c.state = StateStarting
		} else if c.state != StateStopped {
			c.state = StateIdle
		}
		c.mu.Unlock()

		if c.metrics != nil && wasListening {
			c.metrics.ListeningSessions.Add(context.WithoutCancel(ctx), -1)
		}
		if !cont {
			slog.Debug("voice: run ended, session over")
			return
		}
		slog.Debug("voice: run ended, restarting engine")
		if err := c.engine.Start(ctx); err != nil {
			c.fail(ctx, fmt.Errorf("voice: restart recognition: %w", err))
		}

	case recognizer.EventError:
		c.fail(ctx, ev.Err)
	}
}

// fail ends the session after an engine failure: no restart, a spoken
// apology, and a fresh generation so pending responses are discarded.
func (c *Controller) fail(ctx context.Context, err error) {
	c.mu.Lock()
	wasListening := c.state == StateListening
	c.state = StateIdle
	c.shouldContinue = false
	c.greetPending = false
	c.mu.Unlock()

	c.generation.Add(1)
	if c.metrics != nil {
		mctx := context.WithoutCancel(ctx)
		c.metrics.EngineErrors.Add(mctx, 1)
		if wasListening {
			c.metrics.ListeningSessions.Add(mctx, -1)
		}
	}
	slog.Warn("voice: recognition engine failed", "error", err)
	c.router.Announce(ctx, apologyEngine)
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Listening reports whether results are currently expected.
func (c *Controller) Listening() bool {
	return c.State() == StateListening
}

// Generation returns the current listening session token.
func (c *Controller) Generation() uint64 {
	return c.generation.Load()
}

// Router exposes the controller's command router, e.g. to dispatch
// programmatic utterances or to drain in-flight describe calls on shutdown.
func (c *Controller) Router() *Router {
	return c.router
}
