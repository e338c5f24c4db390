package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/utrack/statlens/internal/metrics"
	"github.com/utrack/statlens/internal/model"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 30 * time.Second
	defaultMaxElapsed      = 5 * time.Minute
	defaultReconnectDelay  = time.Second
	defaultEventBuffer     = 64
	defaultMaxEventSize    = 1 << 20
)

// ErrMissingCredential is returned when no usable bearer token is available.
var ErrMissingCredential = errors.New("missing stream credential")

// TransportError is a terminal stream failure: either a non-retryable response or
// an outage that outlived the retry budget.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("stream transport: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("stream transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Event is one item delivered by an open stream: a decoded sample or an error.
// Errors wrapping model.ErrMalformedSample or model.ErrInvalidSample leave the
// stream open; a *TransportError is the last event before the channel closes.
type Event struct {
	Sample model.Sample
	Err    error
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	var te *TransportError
	return errors.As(e.Err, &te)
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for every connection attempt.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger for connection lifecycle and frame decode failures.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics records connect attempts and frame outcomes into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithBackOff tunes the exponential reconnect schedule. maxElapsed bounds one outage;
// zero retries until the stream is cancelled.
func WithBackOff(initial, maxInterval, maxElapsed time.Duration) Option {
	return func(c *Client) {
		c.initialInterval = initial
		c.maxInterval = maxInterval
		c.maxElapsed = maxElapsed
	}
}

// WithReconnectDelay sets the pause between an interrupted stream and the next connect.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) { c.reconnectDelay = d }
}

// WithMaxEventSize caps the bytes buffered for one event. A larger event drops the
// connection, which is then re-established.
func WithMaxEventSize(n int) Option {
	return func(c *Client) { c.maxEventSize = n }
}

// Client opens authenticated Server-Sent-Events streams of samples.
type Client struct {
	tokens  oauth2.TokenSource
	http    *http.Client
	logger  *zap.Logger
	metrics *metrics.Metrics

	initialInterval time.Duration
	maxInterval     time.Duration
	maxElapsed      time.Duration
	reconnectDelay  time.Duration
	maxEventSize    int
}

// NewClient builds a stream client. tokens supplies the bearer credential for every
// connection attempt.
func NewClient(tokens oauth2.TokenSource, opts ...Option) *Client {
	c := &Client{
		tokens:          tokens,
		http:            &http.Client{},
		logger:          zap.NewNop(),
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
		maxElapsed:      defaultMaxElapsed,
		reconnectDelay:  defaultReconnectDelay,
		maxEventSize:    defaultMaxEventSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open starts consuming endpoint in the background. It fails fast, without
// connecting, when no credential is available. The returned cancel func must be
// called to release the connection; the channel is closed once the stream stops.
func (c *Client) Open(ctx context.Context, endpoint string) (<-chan Event, context.CancelFunc, error) {
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, nil, fmt.Errorf("invalid stream endpoint %q: %w", endpoint, err)
	}
	if _, err := c.token(); err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	conn := &connection{
		client:   c,
		endpoint: endpoint,
		events:   make(chan Event, defaultEventBuffer),
		logger:   c.logger.With(zap.String("endpoint", endpoint)),
	}
	go conn.run(ctx)

	return conn.events, cancel, nil
}

func (c *Client) token() (*oauth2.Token, error) {
	if c.tokens == nil {
		return nil, ErrMissingCredential
	}
	tok, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingCredential, err)
	}
	if tok == nil || !tok.Valid() {
		return nil, ErrMissingCredential
	}
	return tok, nil
}
