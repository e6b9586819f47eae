package app

import "sync"

// State tracks the observable session state of the assistant: whether an
// analysis is in flight, the most recent interpreted intent, and the most
// recent failure. It is a single mutable snapshot, not a history — the
// transcript keeps the history. All methods are safe for concurrent use.
type State struct {
	mu         sync.Mutex
	processing bool
	lastIntent string
	lastError  string
}

// NewState creates an empty State.
func NewState() *State {
	return &State{}
}

// BeginProcessing marks an analysis as in flight. It reports false, without
// changing anything, when one is already running — the guard that keeps
// analysis requests from overlapping.
func (s *State) BeginProcessing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processing {
		return false
	}
	s.processing = true
	return true
}

// EndProcessing clears the in-flight flag.
func (s *State) EndProcessing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processing = false
}

// Processing reports whether an analysis is in flight.
func (s *State) Processing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// SetIntent records a successful interpretation and clears the last error.
func (s *State) SetIntent(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastIntent = text
	s.lastError = ""
}

// SetError records a failed interpretation.
func (s *State) SetError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = msg
}

// LastIntent returns the most recent interpreted intent.
func (s *State) LastIntent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastIntent
}

// LastError returns the most recent failure message.
func (s *State) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}
