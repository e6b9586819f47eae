// Package mock provides a test double for the synth package.
//
// By default Speak returns immediately. Set Block to true to make utterances
// hang until Release is called or their context is cancelled — used to test
// preemption and the at-most-one-in-flight invariant. Set Delay to give every
// utterance a fixed playback time, which is how a real engine behaves; an
// utterance that reaches the end of its delay is recorded as completed.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/neurobridge/neurobridge/pkg/capability/synth"
)

// Synthesizer is a mock implementation of synth.Synthesizer.
type Synthesizer struct {
	mu sync.Mutex

	// Block makes every Speak call wait for Release or ctx cancellation.
	Block bool

	// Delay gives each utterance a playback duration. Cancellation during
	// the delay aborts the utterance with the context's error.
	Delay time.Duration

	// Err, if non-nil, is returned by every Speak call (after blocking).
	Err error

	// Spoken records the text of every Speak call in order.
	Spoken []string

	inFlight  int
	maxSeen   int
	completed []string
	release   chan struct{}
}

// New creates a mock synthesizer.
func New() *Synthesizer {
	return &Synthesizer{release: make(chan struct{})}
}

// Speak records text, optionally blocks, and returns Err.
func (s *Synthesizer) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	s.Spoken = append(s.Spoken, text)
	s.inFlight++
	if s.inFlight > s.maxSeen {
		s.maxSeen = s.inFlight
	}
	block := s.Block
	delay := s.Delay
	release := s.release
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if block {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.completed = append(s.completed, text)
	return nil
}

// Release unblocks all currently blocked Speak calls and re-arms the mock
// for the next batch.
func (s *Synthesizer) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.release)
	s.release = make(chan struct{})
}

// SpokenTexts returns a copy of all spoken texts so far. Thread-safe.
func (s *Synthesizer) SpokenTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Spoken))
	copy(out, s.Spoken)
	return out
}

// CompletedTexts returns a copy of every utterance that played to its natural
// end, i.e. was neither cancelled nor failed. Thread-safe.
func (s *Synthesizer) CompletedTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.completed))
	copy(out, s.completed)
	return out
}

// MaxInFlight reports the highest number of concurrently active Speak calls
// observed, used to assert the serializer never overlaps utterances.
func (s *Synthesizer) MaxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxSeen
}

// Ensure Synthesizer implements synth.Synthesizer at compile time.
var _ synth.Synthesizer = (*Synthesizer)(nil)
