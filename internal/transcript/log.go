// Package transcript maintains the in-memory chat transcript of one client
// session.
//
// The transcript is an append-only ordered sequence of messages: insertion
// order is chronological and meaningful, entries are never reordered or
// deduplicated, and nothing is persisted across sessions.
package transcript

import (
	"sync"
	"time"
)

// Role identifies who authored a transcript message.
type Role string

const (
	// RoleUser marks a message carrying the user's recognized utterance.
	RoleUser Role = "user"

	// RoleAssistant marks a spoken response from the assistant.
	RoleAssistant Role = "assistant"
)

// Message is a single transcript entry.
type Message struct {
	// Role is who authored the message.
	Role Role

	// Text is the message content: the raw utterance for user messages, the
	// spoken response for assistant messages.
	Text string

	// At is when the message was appended.
	At time.Time
}

// Log is an append-only message sequence. All methods are safe for
// concurrent use.
type Log struct {
	mu   sync.Mutex
	msgs []Message
	now  func() time.Time
}

// NewLog creates an empty transcript log.
func NewLog() *Log {
	return &Log{now: time.Now}
}

// Append adds one message to the end of the transcript.
func (l *Log) Append(role Role, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, Message{Role: role, Text: text, At: l.now()})
}

// Messages returns a copy of the full transcript in append order.
func (l *Log) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.msgs))
	copy(out, l.msgs)
	return out
}

// Len returns the number of messages in the transcript.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.msgs)
}
