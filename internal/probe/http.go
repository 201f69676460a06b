package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hazz-dev/availmon/internal/endpoint"
)

const (
	// DefaultTimeout bounds a single request, including reading the body.
	DefaultTimeout = 5 * time.Second
	// DefaultSlowThreshold is the latency at or above which a 2xx response
	// is still considered unhealthy.
	DefaultSlowThreshold = 500 * time.Millisecond
)

// Recorder receives every probe outcome, keyed by host.
type Recorder interface {
	Record(host string, success bool)
}

// Options tunes a Prober. Zero values select the defaults.
type Options struct {
	Timeout       time.Duration
	SlowThreshold time.Duration
	Client        *http.Client
}

// Prober performs single HTTP probes and reports them to a Recorder.
type Prober struct {
	client        *http.Client
	timeout       time.Duration
	slowThreshold time.Duration
	recorder      Recorder
}

// New creates a Prober. recorder may be nil when outcomes are only needed
// by the caller.
func New(recorder Recorder, opts Options) *Prober {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.SlowThreshold <= 0 {
		opts.SlowThreshold = DefaultSlowThreshold
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Prober{
		client:        client,
		timeout:       opts.Timeout,
		slowThreshold: opts.SlowThreshold,
		recorder:      recorder,
	}
}

// Classify applies the health rule: healthy iff the status is 2xx and the
// response completed in under threshold.
func Classify(statusCode int, latency, threshold time.Duration) error {
	if statusCode < 200 || statusCode >= 300 {
		return &HTTPError{StatusCode: statusCode, Latency: latency}
	}
	if latency >= threshold {
		return &HTTPError{StatusCode: statusCode, Latency: latency, Slow: true}
	}
	return nil
}

// Probe sends one request to ep and classifies the response. It never
// returns an error: failures are carried in the Outcome.
func (p *Prober) Probe(ctx context.Context, ep endpoint.Endpoint) Outcome {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	out := Outcome{
		Endpoint:  ep.Name(),
		Host:      ep.Host(),
		CheckedAt: start,
	}

	status, err := p.do(ctx, ep)
	out.Latency = time.Since(start)
	out.StatusCode = status
	if err != nil {
		out.Err = &TransportError{Err: err}
	} else {
		out.Err = Classify(status, out.Latency, p.slowThreshold)
	}
	out.Success = out.Err == nil

	if p.recorder != nil {
		p.recorder.Record(out.Host, out.Success)
	}
	return out
}

func (p *Prober) do(ctx context.Context, ep endpoint.Endpoint) (int, error) {
	var body io.Reader
	payload, hasBody := ep.Body()
	if hasBody && ep.SendsBody() {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("encoding body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, ep.Method(), ep.URL(), body)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range ep.Headers() {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return resp.StatusCode, fmt.Errorf("reading body: %w", err)
	}
	return resp.StatusCode, nil
}
