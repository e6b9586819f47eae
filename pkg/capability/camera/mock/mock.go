// Package mock provides a test double for the camera package.
//
// Use Camera to feed a scripted sequence of frames (or errors) to code under
// test and to inspect how many captures were requested.
package mock

import (
	"context"
	"sync"

	"github.com/neurobridge/neurobridge/pkg/capability/camera"
)

// Camera is a mock implementation of camera.Camera.
//
// When Script is non-empty, each Screenshot call consumes the next entry.
// Once the script is exhausted (or when Script is nil), Screenshot returns
// Frame and Err. All fields must be set before first use.
type Camera struct {
	mu sync.Mutex

	// Script is an optional ordered list of results, consumed one per call.
	Script []Result

	// Frame is the frame returned after the script is exhausted.
	Frame camera.Frame

	// Err, if non-nil, is returned after the script is exhausted.
	Err error

	// Calls is the number of Screenshot invocations so far.
	Calls int
}

// Result is a single scripted Screenshot outcome.
type Result struct {
	Frame camera.Frame
	Err   error
}

// Screenshot returns the next scripted result, or the static Frame/Err pair.
func (c *Camera) Screenshot(ctx context.Context) (camera.Frame, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls++
	if len(c.Script) > 0 {
		r := c.Script[0]
		c.Script = c.Script[1:]
		return r.Frame, r.Err
	}
	if c.Err != nil {
		return "", c.Err
	}
	return c.Frame, nil
}

// CallCount returns the number of Screenshot calls. Thread-safe.
func (c *Camera) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Calls
}

// Ensure Camera implements camera.Camera at compile time.
var _ camera.Camera = (*Camera)(nil)
