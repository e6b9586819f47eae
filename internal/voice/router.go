// Package voice implements the voice command loop: a controller that keeps a
// discrete-session speech-recognition engine running continuously, and a
// router that maps each recognized utterance to an action.
package voice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/neurobridge/neurobridge/internal/observe"
	"github.com/neurobridge/neurobridge/internal/speech"
	"github.com/neurobridge/neurobridge/internal/transcript"
	"github.com/neurobridge/neurobridge/pkg/capability/camera"
)

// Command is the action category an utterance resolves to.
type Command string

const (
	// CommandStop ends the listening session.
	CommandStop Command = "stop"

	// CommandDescribe captures the current frame and asks the backend to
	// describe it.
	CommandDescribe Command = "describe"

	// CommandGreeting answers a greeting with a fixed response.
	CommandGreeting Command = "greeting"

	// CommandStatus answers "how are you" with a fixed response.
	CommandStatus Command = "status"

	// CommandFallback acknowledges an unrecognized utterance.
	CommandFallback Command = "fallback"
)

// Fixed spoken responses. Kept as constants so tests and the transcript stay
// in lockstep with what the synthesizer receives.
const (
	responseStop     = "Okay, I'll stop listening now."
	responseLooking  = "Let me take a look."
	responseGreeting = "Hello! How can I help you today?"
	responseStatus   = "I'm doing well, thank you for asking!"
	apologyDescribe  = "I'm sorry, I couldn't analyze the image at the moment."
	fallbackFormat   = "You said: %s. I'm not sure how to help with that yet."
)

// Classify normalizes text (lower-case, trimmed) and returns its command
// category. Matching is priority-ordered substring containment: the first
// matching rule wins, so an utterance containing both "stop listening" and
// "describe" resolves to CommandStop.
func Classify(text string) Command {
	t := strings.ToLower(strings.TrimSpace(text))
	switch {
	case strings.Contains(t, "stop listening"):
		return CommandStop
	case strings.Contains(t, "describe"):
		return CommandDescribe
	case strings.Contains(t, "hello"), strings.Contains(t, "hi"), strings.Contains(t, "greet"):
		return CommandGreeting
	case strings.Contains(t, "how are you"):
		return CommandStatus
	default:
		return CommandFallback
	}
}

// commandKeywords maps each routable keyword to its command, used for the
// fuzzy "did you mean" hint logged on fallback.
var commandKeywords = map[string]Command{
	"stop listening": CommandStop,
	"describe":       CommandDescribe,
	"hello":          CommandGreeting,
	"how are you":    CommandStatus,
}

// DescribeClient is the slice of the backend client the router needs.
type DescribeClient interface {
	DescribeImage(ctx context.Context, image camera.Frame) (string, error)
}

// RouterConfig holds all dependencies for a [Router].
type RouterConfig struct {
	// Speaker serializes all spoken responses.
	Speaker *speech.Speaker

	// Log is the session transcript.
	Log *transcript.Log

	// Backend serves describe requests. May be nil, in which case Describe
	// degrades to the fixed apology.
	Backend DescribeClient

	// Camera provides the one-shot frame for Describe.
	Camera camera.Camera

	// Stop is invoked when an utterance resolves to CommandStop.
	Stop func()

	// Generation returns the current listening session token. A describe
	// response whose token no longer matches is discarded rather than
	// spoken, so stale responses never outlive the session that issued them.
	Generation func() uint64

	// DescribeTimeout bounds the backend describe call. Default: 30s.
	DescribeTimeout time.Duration

	// Metrics is optional.
	Metrics *observe.Metrics
}

// Router classifies utterances and executes the resulting actions. Every
// dispatched utterance appends exactly one user transcript message before
// its action runs, and every spoken response appends exactly one assistant
// message.
type Router struct {
	cfg RouterConfig

	// inflight tracks asynchronous describe calls so Wait can drain them.
	inflight sync.WaitGroup
}

// NewRouter creates a Router. Speaker and Log must be non-nil.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.DescribeTimeout <= 0 {
		cfg.DescribeTimeout = 30 * time.Second
	}
	if cfg.Generation == nil {
		cfg.Generation = func() uint64 { return 0 }
	}
	if cfg.Stop == nil {
		cfg.Stop = func() {}
	}
	return &Router{cfg: cfg}
}

// Dispatch routes one recognized utterance. Synchronous actions complete
// before Dispatch returns; Describe's backend call continues asynchronously.
func (r *Router) Dispatch(ctx context.Context, utterance string) Command {
	r.cfg.Log.Append(transcript.RoleUser, utterance)

	cmd := Classify(utterance)
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordUtterance(context.WithoutCancel(ctx), string(cmd))
	}
	slog.Info("voice: utterance routed", "command", string(cmd), "utterance", utterance)

	switch cmd {
	case CommandStop:
		r.cfg.Stop()
		r.respond(ctx, responseStop)

	case CommandDescribe:
		r.describe(ctx)

	case CommandGreeting:
		r.respond(ctx, responseGreeting)

	case CommandStatus:
		r.respond(ctx, responseStatus)

	case CommandFallback:
		r.logNearestCommand(utterance)
		r.respond(ctx, fmt.Sprintf(fallbackFormat, utterance))
	}
	return cmd
}

// describe speaks an immediate acknowledgment, captures the current frame,
// and asks the backend for a description asynchronously. The response is
// spoken and logged only if the session token still matches; failures become
// the fixed apology, never a raw error.
func (r *Router) describe(ctx context.Context) {
	r.respond(ctx, responseLooking)

	if r.cfg.Camera == nil || r.cfg.Backend == nil {
		r.respond(ctx, apologyDescribe)
		return
	}

	frame, err := r.cfg.Camera.Screenshot(ctx)
	if err != nil {
		slog.Warn("voice: describe capture failed", "error", err)
		r.respond(ctx, apologyDescribe)
		return
	}

	gen := r.cfg.Generation()
	// The request must survive the dispatch context: a describe call keeps
	// running after the utterance is handled.
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.DescribeTimeout)

	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		defer cancel()

		description, err := r.cfg.Backend.DescribeImage(reqCtx, frame)

		if cur := r.cfg.Generation(); cur != gen {
			slog.Debug("voice: discarding stale describe response",
				"request_generation", gen,
				"current_generation", cur,
			)
			return
		}
		if err != nil {
			slog.Warn("voice: describe request failed", "error", err)
			r.respond(reqCtx, apologyDescribe)
			return
		}
		r.respond(reqCtx, description)
	}()
}

// Announce speaks a system-initiated message, such as the session greeting or
// an engine failure apology, recording it in the transcript like any routed
// response.
func (r *Router) Announce(ctx context.Context, text string) {
	r.respond(ctx, text)
}

// respond speaks text and appends the matching assistant transcript message.
func (r *Router) respond(ctx context.Context, text string) {
	r.cfg.Speaker.Speak(ctx, text)
	r.cfg.Log.Append(transcript.RoleAssistant, text)
}

// Wait blocks until all in-flight describe calls have settled. Used during
// shutdown and by tests.
func (r *Router) Wait() {
	r.inflight.Wait()
}

// logNearestCommand logs a debug hint with the known keyword most similar to
// the unrecognized utterance, to help diagnose recognition near-misses.
func (r *Router) logNearestCommand(utterance string) {
	t := strings.ToLower(strings.TrimSpace(utterance))
	var best string
	var bestScore float64
	for kw := range commandKeywords {
		if s := matchr.JaroWinkler(t, kw, false); s > bestScore {
			bestScore = s
			best = kw
		}
	}
	if best != "" && bestScore >= 0.70 {
		slog.Debug("voice: unrecognized utterance near known command",
			"utterance", utterance,
			"closest", best,
			"similarity", bestScore,
		)
	}
}
