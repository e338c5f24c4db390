package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "statlens"

// Frame results recorded by the stream client.
const (
	FrameSample    = "sample"
	FrameDiscarded = "discarded"
	FrameMalformed = "malformed"
	FrameInvalid   = "invalid"
)

// Connection outcomes recorded by the stream client.
const (
	ConnectOK       = "ok"
	ConnectRetry    = "retry"
	ConnectTerminal = "terminal"
)

// Metrics groups every collector exported by statlens.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	frames          *prometheus.CounterVec
	connects        *prometheus.CounterVec
	bufferSamples   prometheus.Gauge
	granularity     prometheus.Gauge
	restarts        prometheus.Counter
	notifications   *prometheus.CounterVec
	watchSessions   prometheus.Gauge
	droppedEnvelope prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		frames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frames_total",
			Help:      "Stream frames received, by handling result.",
		}, []string{"result"}),
		connects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "connects_total",
			Help:      "Stream connection attempts, by outcome.",
		}, []string{"outcome"}),
		bufferSamples: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "buffer",
			Name:      "samples",
			Help:      "Samples currently held in the real-time buffer.",
		}),
		granularity: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "granularity_minutes",
			Help:      "Currently selected aggregation window.",
		}),
		restarts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "restarts_total",
			Help:      "Stream restarts caused by granularity changes.",
		}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "User notifications, by whether they were published or throttled.",
		}, []string{"state"}),
		watchSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "sessions",
			Help:      "Active watch sessions.",
		}),
		droppedEnvelope: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "dropped_envelopes_total",
			Help:      "Envelopes dropped because a watcher fell behind.",
		}),
	}
}

// Frame counts one stream frame by result.
func (m *Metrics) Frame(result string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(result).Inc()
}

// Connect counts one upstream connect attempt by outcome.
func (m *Metrics) Connect(outcome string) {
	if m == nil {
		return
	}
	m.connects.WithLabelValues(outcome).Inc()
}

// BufferSize sets the number of samples held in the buffer.
func (m *Metrics) BufferSize(n int) {
	if m == nil {
		return
	}
	m.bufferSamples.Set(float64(n))
}

// Granularity sets the active granularity in minutes.
func (m *Metrics) Granularity(minutes int) {
	if m == nil {
		return
	}
	m.granularity.Set(float64(minutes))
}

// Restart counts a stream restart caused by a granularity change.
func (m *Metrics) Restart() {
	if m == nil {
		return
	}
	m.restarts.Inc()
}

// Notification records a notification; throttled ones were suppressed.
func (m *Metrics) Notification(throttled bool) {
	if m == nil {
		return
	}
	state := "published"
	if throttled {
		state = "throttled"
	}
	m.notifications.WithLabelValues(state).Inc()
}

// WatchSessions sets the number of open watch sessions.
func (m *Metrics) WatchSessions(n int) {
	if m == nil {
		return
	}
	m.watchSessions.Set(float64(n))
}

// DroppedEnvelope counts an envelope dropped for a slow watcher.
func (m *Metrics) DroppedEnvelope() {
	if m == nil {
		return
	}
	m.droppedEnvelope.Inc()
}
