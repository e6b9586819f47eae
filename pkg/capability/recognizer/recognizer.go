// Package recognizer defines the Recognizer capability interface for
// speech-recognition engines.
//
// The underlying engines (a browser SpeechRecognition instance reached over
// the WebSocket bridge, or a scripted mock in tests) deliver discrete
// recognition runs: each run starts, emits zero or more final results, and
// ends. Continuous listening is emulated by the voice controller, which
// restarts the engine whenever a run ends and the session should continue.
//
// The engine's callback surface is reduced to exactly four named events, each
// carrying a typed payload. Implementations must be safe for concurrent use.
package recognizer

import (
	"context"
	"errors"
)

// ErrUnsupported is returned by Start when no speech-recognition engine
// exists in the host environment. Callers must surface this immediately and
// must not retry.
var ErrUnsupported = errors.New("recognizer: speech recognition not supported in this host")

// EventKind identifies one of the four recognition engine events.
type EventKind int

const (
	// EventStarted signals that the engine acknowledged a Start call and is
	// now listening. Carries no payload.
	EventStarted EventKind = iota + 1

	// EventResult carries one finalized (non-interim) utterance in Transcript.
	// Interim results are never delivered through this interface.
	EventResult

	// EventEnded signals that the current recognition run finished. The
	// engine is idle afterwards; a new Start call begins a fresh run.
	EventEnded

	// EventError signals an engine failure mid-run, carried in Err. An
	// EventEnded may or may not follow, depending on the engine.
	EventError
)

// String returns the event kind name for logging.
func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventResult:
		return "result"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a single typed recognition engine event.
type Event struct {
	// Kind selects which of the four events this is.
	Kind EventKind

	// Transcript is the finalized utterance text. Set only for EventResult.
	Transcript string

	// Err is the engine failure. Set only for EventError.
	Err error
}

// Recognizer is the abstraction over any speech-recognition engine.
//
// Callers own exactly one run at a time: Start must not be called again
// until an EventEnded (or EventError) for the previous run was observed.
type Recognizer interface {
	// Start begins a new recognition run. It returns ErrUnsupported when the
	// host has no recognition engine, or another error when the run cannot
	// be started. The engine acknowledges a successful start asynchronously
	// with EventStarted on the Events channel.
	Start(ctx context.Context) error

	// Stop requests the current run to end. Stopping is cooperative: the
	// engine finishes its current turn and then emits EventEnded. Calling
	// Stop with no active run is a no-op.
	Stop() error

	// Events returns the channel on which the engine delivers its events.
	// The channel is closed when the engine is torn down for good.
	Events() <-chan Event
}
