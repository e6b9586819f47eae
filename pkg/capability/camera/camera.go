// Package camera defines the Camera capability interface used to obtain
// encoded still frames on demand.
//
// A Camera wraps whatever device actually produces images — in production a
// browser webcam reached over the WebSocket bridge, in tests a scripted mock.
// The capability is deliberately narrow: one blocking call that either yields
// a fully encoded frame or reports that none is available right now.
//
// Implementations must be safe for concurrent use, but callers should treat
// the camera as a single logical reader at a time: the frame buffer recorder
// and one-shot describe captures must not interleave mid-capture.
package camera

import (
	"context"
	"errors"
)

// Frame is a single encoded still image, represented as a data-URL-encoded
// JPEG string (e.g., "data:image/jpeg;base64,..."). Frames are passed to the
// backend verbatim; no re-encoding happens on this side.
type Frame string

// ErrNoFrame is returned by Screenshot when the camera has no frame available
// at this instant. Callers polling on a capture interval should skip the tick
// silently — this is not a failure condition.
var ErrNoFrame = errors.New("camera: no frame available")

// Camera is the abstraction over any still-image source.
type Camera interface {
	// Screenshot captures one encoded frame. It returns ErrNoFrame when no
	// frame can be produced right now (device warming up, client not
	// connected). Any other error indicates the capability itself failed.
	//
	// Screenshot respects ctx cancellation and must not block past it.
	Screenshot(ctx context.Context) (Frame, error)
}
