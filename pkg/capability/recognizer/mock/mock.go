// Package mock provides a scriptable test double for the recognizer package.
//
// Tests drive the engine by calling Emit* helpers; the code under test
// observes them through Events(). Start and Stop calls are recorded so tests
// can assert on restart behaviour.
package mock

import (
	"context"
	"sync"

	"github.com/neurobridge/neurobridge/pkg/capability/recognizer"
)

// Engine is a mock implementation of recognizer.Recognizer.
type Engine struct {
	mu sync.Mutex

	// StartErr, if non-nil, is returned by every Start call.
	StartErr error

	// StartErrs maps a zero-based Start call index to the error returned by
	// that specific call. Takes precedence over StartErr for listed indices.
	StartErrs map[int]error

	// AckStart, when true, makes every successful Start emit EventStarted
	// automatically. Default false: tests emit events explicitly.
	AckStart bool

	// StopErr, if non-nil, is returned by every Stop call.
	StopErr error

	starts int
	stops  int
	events chan recognizer.Event
	closed bool
}

// New creates a mock engine with a buffered event channel.
func New() *Engine {
	return &Engine{events: make(chan recognizer.Event, 32)}
}

// Start records the call and returns the configured error, if any.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	idx := e.starts
	e.starts++
	err := e.StartErr
	if specific, ok := e.StartErrs[idx]; ok {
		err = specific
	}
	ack := e.AckStart && err == nil
	e.mu.Unlock()
	if err != nil {
		return err
	}
	if ack {
		e.EmitStarted()
	}
	return nil
}

// Stop records the call and returns StopErr.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stops++
	return e.StopErr
}

// Events returns the engine's event channel.
func (e *Engine) Events() <-chan recognizer.Event {
	return e.events
}

// EmitStarted delivers an EventStarted to the consumer.
func (e *Engine) EmitStarted() {
	e.emit(recognizer.Event{Kind: recognizer.EventStarted})
}

// EmitResult delivers a finalized utterance to the consumer.
func (e *Engine) EmitResult(text string) {
	e.emit(recognizer.Event{Kind: recognizer.EventResult, Transcript: text})
}

// EmitEnded delivers an EventEnded to the consumer.
func (e *Engine) EmitEnded() {
	e.emit(recognizer.Event{Kind: recognizer.EventEnded})
}

// EmitError delivers an EventError carrying err to the consumer.
func (e *Engine) EmitError(err error) {
	e.emit(recognizer.Event{Kind: recognizer.EventError, Err: err})
}

// Close closes the event channel. Safe to call once.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.events)
	}
}

func (e *Engine) emit(ev recognizer.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.events <- ev
}

// StartCalls returns the number of Start invocations so far. Thread-safe.
func (e *Engine) StartCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.starts
}

// StopCalls returns the number of Stop invocations so far. Thread-safe.
func (e *Engine) StopCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stops
}

// Ensure Engine implements recognizer.Recognizer at compile time.
var _ recognizer.Recognizer = (*Engine)(nil)
