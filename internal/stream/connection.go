package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	sse "github.com/tmaxmax/go-sse"
	"github.com/utrack/statlens/internal/metrics"
	"github.com/utrack/statlens/internal/model"
	"go.uber.org/zap"
)

// connection is the background consumer behind one Open call.
type connection struct {
	client   *Client
	endpoint string
	events   chan Event
	logger   *zap.Logger

	lastEventID string
}

func (c *connection) run(ctx context.Context) {
	defer close(c.events)

	for {
		resp, err := backoff.Retry(ctx, func() (*http.Response, error) {
			return c.connect(ctx)
		}, c.retryOptions()...)
		if err != nil {
			if ctx.Err() == nil {
				c.fail(ctx, err)
			}
			return
		}

		c.logger.Info("stream connected")
		err = c.read(ctx, resp.Body)
		_ = resp.Body.Close()
		if ctx.Err() != nil {
			return
		}

		c.logger.Warn("stream interrupted, reconnecting", zap.Error(err))
		if !sleep(ctx, c.client.reconnectDelay) {
			return
		}
	}
}

func (c *connection) retryOptions() []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.client.initialInterval
	b.MaxInterval = c.client.maxInterval

	return []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(c.client.maxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.client.metrics.Connect(metrics.ConnectRetry)
			c.logger.Warn("stream connect failed", zap.Error(err), zap.Duration("retry_in", next))
		}),
	}
}

func (c *connection) connect(ctx context.Context) (*http.Response, error) {
	tok, err := c.client.token()
	if err != nil {
		return nil, backoff.Permanent(&TransportError{Err: err})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(&TransportError{Err: err})
	}
	tok.SetAuthHeader(req)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if c.lastEventID != "" {
		req.Header.Set("Last-Event-ID", c.lastEventID)
	}

	resp, err := c.client.http.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()

		terr := &TransportError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response: %q", strings.TrimSpace(string(body))),
		}
		if isPermanentStatus(resp.StatusCode) {
			return nil, backoff.Permanent(terr)
		}
		return nil, terr
	}

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		_ = resp.Body.Close()
		return nil, backoff.Permanent(&TransportError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected content type %q", ct),
		})
	}

	c.client.metrics.Connect(metrics.ConnectOK)
	return resp, nil
}

func isPermanentStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return false
	}
	return code >= 400 && code < 500
}

// read dispatches every event of one response body until it ends. Event names are
// not filtered: upstreams may tag sample frames with any type.
func (c *connection) read(ctx context.Context, body io.Reader) error {
	cfg := &sse.ReadConfig{MaxEventSize: c.client.maxEventSize}
	for ev, err := range sse.Read(body, cfg) {
		if err != nil {
			return err
		}
		if ev.LastEventID != "" {
			c.lastEventID = ev.LastEventID
		}
		c.dispatch(ctx, ev.Data)
	}
	return io.ErrUnexpectedEOF
}

func (c *connection) dispatch(ctx context.Context, frame string) {
	payload, ok := plausibleFrame(frame)
	if !ok {
		c.client.metrics.Frame(metrics.FrameDiscarded)
		return
	}

	sample, err := model.DecodeSample(payload)
	if err != nil {
		result := metrics.FrameMalformed
		if errors.Is(err, model.ErrInvalidSample) {
			result = metrics.FrameInvalid
		}
		c.client.metrics.Frame(result)
		c.logger.Warn("failed to decode stream frame", zap.Error(err))
		c.emit(ctx, Event{Err: err})
		return
	}

	c.client.metrics.Frame(metrics.FrameSample)
	c.emit(ctx, Event{Sample: sample})
}

// plausibleFrame filters heartbeat and non-object frames: only trimmed payloads that
// open a JSON object are worth decoding. Truncated objects still go to the decoder.
func plausibleFrame(frame string) ([]byte, bool) {
	trimmed := strings.TrimSpace(frame)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	return []byte(trimmed), true
}

func (c *connection) fail(ctx context.Context, err error) {
	var te *TransportError
	if !errors.As(err, &te) {
		err = &TransportError{Err: err}
	}
	c.client.metrics.Connect(metrics.ConnectTerminal)
	c.logger.Error("stream failed permanently", zap.Error(err))
	c.emit(ctx, Event{Err: err})
}

func (c *connection) emit(ctx context.Context, ev Event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
