// Package backend implements the HTTP client for the gesture/vision backend.
//
// The backend exposes four JSON operations under /api: buffer analysis,
// single-image description, single-image gesture detection, and gesture
// intent generation. The wire shapes are fixed compatibility contracts —
// frames travel as data-URL-encoded JPEG strings exactly as produced by the
// camera capability, with no format negotiation. Any non-2xx status is a
// hard failure surfaced as an error; callers convert failures into
// user-visible messages, never raw errors.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/neurobridge/neurobridge/internal/observe"
	"github.com/neurobridge/neurobridge/internal/resilience"
	"github.com/neurobridge/neurobridge/pkg/capability/camera"
)

const defaultTimeout = 30 * time.Second

// ErrEmptyResponse is returned when the backend answers 2xx but the expected
// response field is missing or empty.
var ErrEmptyResponse = errors.New("backend: response missing expected field")

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (e.g., for tests or
// custom transports).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithMetrics wires metric recording into the Client.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithCircuitBreaker guards every request with cb. While the breaker is open,
// calls fail fast with resilience.ErrCircuitOpen instead of hitting the
// backend.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Client) {
		c.breaker = cb
	}
}

// Client talks to the gesture/vision backend. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *observe.Metrics
	breaker    *resilience.CircuitBreaker
}

// New creates a Client for the backend at baseURL (e.g.,
// "http://localhost:8000"). baseURL must be non-empty; a trailing slash is
// tolerated.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("backend: baseURL must not be empty")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// ---- Wire types ----

type analyzeBufferRequest struct {
	Frames []camera.Frame `json:"frames"`
}

type analyzeBufferResponse struct {
	Intent string `json:"intent"`
}

type describeImageRequest struct {
	Image camera.Frame `json:"image"`
}

type describeImageResponse struct {
	Description string `json:"description"`
}

type detectGestureRequest struct {
	Image camera.Frame `json:"image"`
}

type detectGestureResponse struct {
	Gesture    string  `json:"gesture"`
	Confidence float64 `json:"confidence"`
}

type generateIntentRequest struct {
	Gesture string `json:"gesture"`
}

type generateIntentResponse struct {
	Intent string `json:"intent"`
}

// Gesture is a single-frame gesture detection result.
type Gesture struct {
	// Name is the detected gesture label.
	Name string

	// Confidence is the detector's confidence score (0.0–1.0).
	Confidence float64
}

// AnalyzeBuffer submits an ordered frame buffer for gesture-sequence
// interpretation and returns the interpreted intent text.
func (c *Client) AnalyzeBuffer(ctx context.Context, frames []camera.Frame) (string, error) {
	if len(frames) == 0 {
		return "", errors.New("backend: analyze-buffer requires at least one frame")
	}
	var out analyzeBufferResponse
	if err := c.post(ctx, "analyze-buffer", analyzeBufferRequest{Frames: frames}, &out); err != nil {
		return "", err
	}
	return out.Intent, nil
}

// DescribeImage submits one frame for description. A 2xx response without a
// description is a hard failure (ErrEmptyResponse).
func (c *Client) DescribeImage(ctx context.Context, image camera.Frame) (string, error) {
	var out describeImageResponse
	if err := c.post(ctx, "describe-image", describeImageRequest{Image: image}, &out); err != nil {
		return "", err
	}
	if out.Description == "" {
		return "", fmt.Errorf("backend: describe-image: %w", ErrEmptyResponse)
	}
	return out.Description, nil
}

// DetectGesture submits one frame for single-shot gesture detection.
func (c *Client) DetectGesture(ctx context.Context, image camera.Frame) (Gesture, error) {
	var out detectGestureResponse
	if err := c.post(ctx, "detect-gesture", detectGestureRequest{Image: image}, &out); err != nil {
		return Gesture{}, err
	}
	return Gesture{Name: out.Gesture, Confidence: out.Confidence}, nil
}

// GenerateIntent asks the backend to interpret a detected gesture label into
// an intent sentence.
func (c *Client) GenerateIntent(ctx context.Context, gesture string) (string, error) {
	var out generateIntentResponse
	if err := c.post(ctx, "generate-intent", generateIntentRequest{Gesture: gesture}, &out); err != nil {
		return "", err
	}
	return out.Intent, nil
}

// post issues one JSON POST to /api/<operation> and decodes the response
// body into out. It records a span plus request/error metrics per call.
func (c *Client) post(ctx context.Context, operation string, in, out any) error {
	ctx, span := observe.StartSpan(ctx, "backend."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	start := time.Now()
	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(func() error {
			return c.doPost(ctx, operation, in, out)
		})
	} else {
		err = c.doPost(ctx, operation, in, out)
	}

	if c.metrics != nil {
		mctx := context.WithoutCancel(ctx)
		c.metrics.BackendRequestDuration.Record(mctx, time.Since(start).Seconds(),
			metric.WithAttributes(observe.Attr("operation", operation)),
		)
		status := "ok"
		if err != nil {
			status = "error"
			c.metrics.RecordBackendError(mctx, operation)
		}
		c.metrics.RecordBackendRequest(mctx, operation, status)
	}
	return err
}

// doPost performs the actual request/response cycle.
func (c *Client) doPost(ctx context.Context, operation string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("backend: %s: encode request: %w", operation, err)
	}

	url := c.baseURL + "/api/" + operation
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("backend: %s: build request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("backend: %s: unexpected status %d", operation, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("backend: %s: decode response: %w", operation, err)
	}
	return nil
}
