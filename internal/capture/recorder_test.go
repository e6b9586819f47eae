package capture

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/neurobridge/neurobridge/pkg/capability/camera"
	cameramock "github.com/neurobridge/neurobridge/pkg/capability/camera/mock"
)

func TestRecorder_CountConditionDelivers(t *testing.T) {
	cam := &cameramock.Camera{Frame: "data:image/jpeg;base64,AAA"}
	r := New(cam,
		WithInterval(5*time.Millisecond),
		WithMaxFrames(10),
		WithWindow(time.Second),
	)

	delivered := make(chan []camera.Frame, 1)
	start := time.Now()
	if !r.Start(context.Background(), func(frames []camera.Frame) {
		delivered <- frames
	}) {
		t.Fatal("Start returned false on idle recorder")
	}

	select {
	case frames := <-delivered:
		if len(frames) != 10 {
			t.Errorf("delivered %d frames, want exactly 10", len(frames))
		}
		// The count condition must fire well before the safety deadline.
		if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
			t.Errorf("count condition took %v, deadline should never have been reached", elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery before timeout")
	}
}

func TestRecorder_EmptyBufferEndsSilently(t *testing.T) {
	cam := &cameramock.Camera{Err: camera.ErrNoFrame}
	r := New(cam,
		WithInterval(5*time.Millisecond),
		WithMaxFrames(10),
		WithWindow(50*time.Millisecond),
	)

	var deliveries atomic.Int32
	r.Start(context.Background(), func([]camera.Frame) {
		deliveries.Add(1)
	})

	// Wait past the deadline; the session must end without delivering.
	time.Sleep(150 * time.Millisecond)
	if got := deliveries.Load(); got != 0 {
		t.Errorf("empty buffer delivered %d times, want 0", got)
	}
	if r.Recording() {
		t.Error("session still active after deadline")
	}
}

func TestRecorder_TimeConditionDeliversPartialBuffer(t *testing.T) {
	// Three frames, then nothing: the deadline must deliver what was collected.
	cam := &cameramock.Camera{
		Script: []cameramock.Result{
			{Frame: "f1"}, {Frame: "f2"}, {Frame: "f3"},
		},
		Err: camera.ErrNoFrame,
	}
	r := New(cam,
		WithInterval(5*time.Millisecond),
		WithMaxFrames(10),
		WithWindow(100*time.Millisecond),
	)

	delivered := make(chan []camera.Frame, 1)
	r.Start(context.Background(), func(frames []camera.Frame) {
		delivered <- frames
	})

	select {
	case frames := <-delivered:
		if len(frames) != 3 {
			t.Errorf("delivered %d frames, want 3", len(frames))
		}
		want := []camera.Frame{"f1", "f2", "f3"}
		for i, f := range frames {
			if f != want[i] {
				t.Errorf("frame %d = %q, want %q (capture order must be preserved)", i, f, want[i])
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery before timeout")
	}
}

func TestRecorder_UnavailableTicksAreSkipped(t *testing.T) {
	cam := &cameramock.Camera{
		Script: []cameramock.Result{
			{Err: camera.ErrNoFrame},
			{Frame: "f1"},
			{Err: camera.ErrNoFrame},
			{Frame: "f2"},
		},
	}
	r := New(cam,
		WithInterval(5*time.Millisecond),
		WithMaxFrames(2),
		WithWindow(time.Second),
	)

	delivered := make(chan []camera.Frame, 1)
	r.Start(context.Background(), func(frames []camera.Frame) {
		delivered <- frames
	})

	select {
	case frames := <-delivered:
		if len(frames) != 2 {
			t.Errorf("delivered %d frames, want 2 (unavailable ticks must not count)", len(frames))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery before timeout")
	}
}

// stalledCamera blocks every Screenshot call until its context expires.
type stalledCamera struct{}

func (stalledCamera) Screenshot(ctx context.Context) (camera.Frame, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestRecorder_StalledCameraEndsWithWindow(t *testing.T) {
	r := New(stalledCamera{},
		WithInterval(5*time.Millisecond),
		WithMaxFrames(10),
		WithWindow(60*time.Millisecond),
	)

	var deliveries atomic.Int32
	start := time.Now()
	r.Start(context.Background(), func([]camera.Frame) {
		deliveries.Add(1)
	})

	// A capture call that never returns must not hold the session open past
	// its window.
	waitFor := time.After(2 * time.Second)
	for r.Recording() {
		select {
		case <-waitFor:
			t.Fatal("session still active long after the window elapsed")
		default:
			time.Sleep(2 * time.Millisecond)
		}
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("session ran %v, want it bounded by the 60ms window", elapsed)
	}
	if got := deliveries.Load(); got != 0 {
		t.Errorf("stalled session delivered %d times, want 0", got)
	}
}

func TestRecorder_StartWhileActiveIsNoOp(t *testing.T) {
	cam := &cameramock.Camera{Err: camera.ErrNoFrame}
	r := New(cam,
		WithInterval(5*time.Millisecond),
		WithMaxFrames(10),
		WithWindow(300*time.Millisecond),
	)

	if !r.Start(context.Background(), func([]camera.Frame) {}) {
		t.Fatal("first Start returned false")
	}
	if r.Start(context.Background(), func([]camera.Frame) {}) {
		t.Error("second Start must be a no-op while a session is active")
	}
	r.Cancel()
}

func TestRecorder_DeliversExactlyOnce(t *testing.T) {
	cam := &cameramock.Camera{Frame: "f"}
	// maxFrames low and window short so both stop conditions are near each
	// other; only one may deliver.
	r := New(cam,
		WithInterval(2*time.Millisecond),
		WithMaxFrames(5),
		WithWindow(12*time.Millisecond),
	)

	var deliveries atomic.Int32
	r.Start(context.Background(), func([]camera.Frame) {
		deliveries.Add(1)
	})

	time.Sleep(100 * time.Millisecond)
	if got := deliveries.Load(); got != 1 {
		t.Errorf("session delivered %d times, want exactly 1", got)
	}
}

func TestRecorder_CancelNeverDelivers(t *testing.T) {
	cam := &cameramock.Camera{Frame: "f"}
	r := New(cam,
		WithInterval(5*time.Millisecond),
		WithMaxFrames(100),
		WithWindow(time.Second),
	)

	var deliveries atomic.Int32
	r.Start(context.Background(), func([]camera.Frame) {
		deliveries.Add(1)
	})

	// Let a few frames accumulate, then tear down.
	time.Sleep(30 * time.Millisecond)
	r.Cancel()

	if r.Recording() {
		t.Error("session still active after Cancel")
	}
	if got := deliveries.Load(); got != 0 {
		t.Errorf("cancelled session delivered %d times, want 0", got)
	}

	// The recorder must accept a fresh session afterwards.
	delivered := make(chan []camera.Frame, 1)
	r2 := r.Start(context.Background(), func(frames []camera.Frame) {
		delivered <- frames
	})
	if !r2 {
		t.Fatal("Start after Cancel returned false")
	}
	r.Cancel()
}

func TestRecorder_BufferNeverExceedsMax(t *testing.T) {
	cam := &cameramock.Camera{Frame: "f"}
	r := New(cam,
		WithInterval(time.Millisecond),
		WithMaxFrames(7),
		WithWindow(time.Second),
	)

	delivered := make(chan []camera.Frame, 1)
	r.Start(context.Background(), func(frames []camera.Frame) {
		delivered <- frames
	})

	select {
	case frames := <-delivered:
		if len(frames) < 1 || len(frames) > 7 {
			t.Errorf("delivered %d frames, want within [1, 7]", len(frames))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery before timeout")
	}
}
