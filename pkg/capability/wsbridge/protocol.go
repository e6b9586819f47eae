package wsbridge

import (
	"encoding/json"

	"github.com/neurobridge/neurobridge/pkg/capability/camera"
)

// Envelope types sent server → client.
const (
	typeScreenshotRequest = "screenshot.request"
	typeRecognizerStart   = "recognizer.start"
	typeRecognizerStop    = "recognizer.stop"
	typeSpeak             = "speak"
	typeSpeakCancel       = "speak.cancel"
)

// Envelope types sent client → server.
const (
	typeHello             = "hello"
	typeScreenshotResult  = "screenshot.result"
	typeScreenshotError   = "screenshot.error"
	typeRecognizerStarted = "recognizer.started"
	typeRecognizerResult  = "recognizer.result"
	typeRecognizerEnded   = "recognizer.ended"
	typeRecognizerError   = "recognizer.error"
	typeSpeakDone         = "speak.done"
	typeSpeakError        = "speak.error"
)

// envelope is the single JSON message shape exchanged in both directions.
// Type selects which fields are meaningful.
type envelope struct {
	Type string `json:"type"`

	// ID correlates request/response pairs (screenshots and speaks).
	ID uint64 `json:"id,omitempty"`

	// Recognition reports whether the client host supports speech
	// recognition. Set on hello.
	Recognition bool `json:"recognition,omitempty"`

	// Frame carries a captured frame on screenshot.result.
	Frame camera.Frame `json:"frame,omitempty"`

	// Text is the utterance to synthesize on speak.
	Text string `json:"text,omitempty"`

	// Language is the recognition language tag on recognizer.start.
	Language string `json:"language,omitempty"`

	// Rate, Pitch and Volume are synthesis parameters on speak.
	Rate   float64 `json:"rate,omitempty"`
	Pitch  float64 `json:"pitch,omitempty"`
	Volume float64 `json:"volume,omitempty"`

	// Results carries recognition candidates on recognizer.result.
	Results []candidate `json:"results,omitempty"`

	// Error describes a failure on *.error envelopes.
	Error string `json:"error,omitempty"`
}

// candidate is one recognition alternative inside a recognizer.result
// envelope.
type candidate struct {
	Transcript string `json:"transcript"`
	Final      bool   `json:"final"`
}

// decodeEnvelope parses one raw client message. Returns (zero, false) for
// malformed messages, which the caller ignores.
func decodeEnvelope(data []byte) (envelope, bool) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, false
	}
	if env.Type == "" {
		return envelope{}, false
	}
	return env, true
}

// pickFinal selects the utterance from a result set: the last non-empty final
// candidate wins, since engines refine earlier candidates as the run
// progresses. Returns ("", false) when no usable final candidate exists.
func pickFinal(results []candidate) (string, bool) {
	for i := len(results) - 1; i >= 0; i-- {
		if results[i].Final && results[i].Transcript != "" {
			return results[i].Transcript, true
		}
	}
	return "", false
}
