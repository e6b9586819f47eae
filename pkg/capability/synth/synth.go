// Package synth defines the Synthesizer capability interface for
// speech-synthesis engines.
//
// The synthesis engine is a singleton host resource. Arbitration — at most
// one utterance in flight, cancel-then-speak preemption — is the job of the
// speech output serializer, not of implementations; a Synthesizer only needs
// to speak one utterance and report how it ended.
package synth

import "context"

// Synthesizer is the abstraction over any speech-synthesis engine.
type Synthesizer interface {
	// Speak synthesises and plays text, blocking until playback finishes
	// naturally, the engine reports an error, or ctx is cancelled.
	// Cancelling ctx aborts the utterance mid-play; Speak then returns
	// ctx.Err().
	Speak(ctx context.Context, text string) error
}
