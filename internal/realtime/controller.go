package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/utrack/statlens/internal/buffer"
	"github.com/utrack/statlens/internal/metrics"
	"github.com/utrack/statlens/internal/model"
	"github.com/utrack/statlens/internal/stream"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultGranularityParam = "granularity"
	defaultNotifyInterval   = 5 * time.Second
	defaultNotifyBurst      = 3

	// genericFailure is what users see; details go to the log.
	genericFailure = "operation failed"
)

var (
	ErrClosed     = errors.New("controller closed")
	ErrNotStarted = errors.New("controller not started")
)

// Opener starts a sample stream against a fully parameterized endpoint.
type Opener interface {
	Open(ctx context.Context, endpoint string) (<-chan stream.Event, context.CancelFunc, error)
}

// Publisher receives every buffer change and every user-visible notification.
type Publisher interface {
	PublishSnapshot(model.Snapshot)
	PublishNotification(model.Notification)
}

// Config describes the upstream stream and the initial selection.
type Config struct {
	Endpoint         string
	GranularityParam string
	Initial          model.Granularity
	Capacity         int
	NotifyInterval   time.Duration
	NotifyBurst      int
}

// Status is the externally visible controller state.
type Status struct {
	Granularity model.Granularity   `json:"granularity"`
	Options     []model.Granularity `json:"options"`
	Streaming   bool                `json:"streaming"`
}

// Controller owns the selected granularity, the buffer for it, and the stream feeding it.
// Changing the granularity cancels the running stream, clears the buffer and opens a
// new stream; events from a superseded stream are discarded by generation.
type Controller struct {
	endpoint  *url.URL
	param     string
	opener    Opener
	publisher Publisher
	logger    *zap.Logger
	metrics   *metrics.Metrics
	limiter   *rate.Limiter
	buffer    *buffer.Buffer

	mu          sync.Mutex
	ctx         context.Context
	granularity model.Granularity
	generation  uint64
	cancel      context.CancelFunc
	streaming   bool
	updatedAt   time.Time
	closed      bool
}

func New(cfg Config, opener Opener, publisher Publisher, logger *zap.Logger, m *metrics.Metrics) (*Controller, error) {
	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil || endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, fmt.Errorf("invalid stream endpoint %q", cfg.Endpoint)
	}
	if !cfg.Initial.Valid() {
		return nil, fmt.Errorf("initial %w: %d", model.ErrInvalidGranularity, cfg.Initial)
	}
	if cfg.GranularityParam == "" {
		cfg.GranularityParam = defaultGranularityParam
	}
	if cfg.NotifyInterval <= 0 {
		cfg.NotifyInterval = defaultNotifyInterval
	}
	if cfg.NotifyBurst <= 0 {
		cfg.NotifyBurst = defaultNotifyBurst
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Controller{
		endpoint:    endpoint,
		param:       cfg.GranularityParam,
		opener:      opener,
		publisher:   publisher,
		logger:      logger,
		metrics:     m,
		limiter:     rate.NewLimiter(rate.Every(cfg.NotifyInterval), cfg.NotifyBurst),
		buffer:      buffer.New(cfg.Capacity),
		granularity: cfg.Initial,
	}, nil
}

// Start opens the stream for the initial granularity. Streams live until ctx is done
// or Close is called.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.ctx = ctx
	return c.restartLocked()
}

// SetGranularity switches the aggregation window. Selecting the current window while
// its stream is running is a no-op; selecting it after a terminal failure reconnects.
func (c *Controller) SetGranularity(g model.Granularity) error {
	if !g.Valid() {
		return fmt.Errorf("%w: %d", model.ErrInvalidGranularity, g)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.closed:
		return ErrClosed
	case c.ctx == nil:
		return ErrNotStarted
	case g == c.granularity && c.streaming:
		return nil
	}

	c.logger.Info("granularity changed",
		zap.Int("from_minutes", int(c.granularity)),
		zap.Int("to_minutes", int(g)))
	c.granularity = g
	c.metrics.Restart()
	return c.restartLocked()
}

// Granularity returns the selected window.
func (c *Controller) Granularity() model.Granularity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.granularity
}

// Status reports the selection and whether a stream is currently open.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Granularity: c.granularity,
		Options:     model.Granularities(),
		Streaming:   c.streaming,
	}
}

// Snapshot returns the buffered samples for the selected window.
func (c *Controller) Snapshot() model.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Close cancels the running stream. The controller cannot be restarted.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.streaming = false
	c.generation++
}

func (c *Controller) restartLocked() error {
	c.stopLocked()
	c.buffer.Reset()
	c.updatedAt = time.Now().UTC()
	c.metrics.BufferSize(0)
	c.metrics.Granularity(int(c.granularity))
	c.publisher.PublishSnapshot(c.snapshotLocked())

	endpoint := c.endpointFor(c.granularity)
	events, cancel, err := c.opener.Open(c.ctx, endpoint)
	if err != nil {
		c.logger.Error("failed to open stream", zap.Error(err), zap.String("endpoint", endpoint))
		c.notifyLocked()
		return fmt.Errorf("open stream: %w", err)
	}

	c.cancel = cancel
	c.streaming = true
	go c.consume(c.generation, events)
	return nil
}

func (c *Controller) consume(generation uint64, events <-chan stream.Event) {
	for ev := range events {
		c.apply(generation, ev)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if generation == c.generation {
		c.streaming = false
	}
}

func (c *Controller) apply(generation uint64, ev stream.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		return
	}

	if ev.Err != nil {
		if ev.Terminal() {
			c.streaming = false
		}
		c.logger.Warn("stream event failed",
			zap.Error(ev.Err),
			zap.Bool("terminal", ev.Terminal()),
			zap.Int("granularity_minutes", int(c.granularity)))
		c.notifyLocked()
		return
	}

	size := c.buffer.Ingest(ev.Sample)
	c.updatedAt = time.Now().UTC()
	c.metrics.BufferSize(size)
	c.publisher.PublishSnapshot(c.snapshotLocked())
}

func (c *Controller) notifyLocked() {
	if !c.limiter.Allow() {
		c.metrics.Notification(true)
		return
	}
	c.metrics.Notification(false)
	c.publisher.PublishNotification(model.Notification{
		ID:        uuid.NewString(),
		Level:     model.LevelError,
		Message:   genericFailure,
		CreatedAt: time.Now().UTC(),
	})
}

func (c *Controller) snapshotLocked() model.Snapshot {
	return model.Snapshot{
		Granularity: c.granularity,
		Capacity:    c.buffer.Capacity(),
		Samples:     c.buffer.Snapshot(),
		UpdatedAt:   c.updatedAt,
	}
}

func (c *Controller) endpointFor(g model.Granularity) string {
	u := *c.endpoint
	q := u.Query()
	q.Set(c.param, g.String())
	u.RawQuery = q.Encode()
	return u.String()
}

type nopPublisher struct{}

func (nopPublisher) PublishSnapshot(model.Snapshot)         {}
func (nopPublisher) PublishNotification(model.Notification) {}
