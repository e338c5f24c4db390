package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/utrack/statlens/internal/metrics"
	"github.com/utrack/statlens/internal/model"
)

var ErrSessionLimitReached = errors.New("session limit reached")

// RegisterRequest defines runtime knobs for creating a session.
type RegisterRequest struct {
	Filter     Filter
	MaxEvents  int
	BufferSize int
}

// Registry stores active watch sessions and fans buffer updates out to them.
type Registry struct {
	maxSessions int
	metrics     *metrics.Metrics

	mu       sync.RWMutex
	sessions map[string]*Session

	hasActive atomic.Bool
}

// NewRegistry creates a registry with a hard cap on active sessions.
func NewRegistry(maxSessions int, m *metrics.Metrics) *Registry {
	if maxSessions <= 0 {
		maxSessions = 128
	}
	return &Registry{
		maxSessions: maxSessions,
		metrics:     m,
		sessions:    make(map[string]*Session),
	}
}

// HasActiveSessions returns true if at least one session is currently registered.
func (r *Registry) HasActiveSessions() bool {
	return r.hasActive.Load()
}

// Register creates a new session and removes it automatically when ctx is cancelled.
func (r *Registry) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.sessions) >= r.maxSessions {
		return nil, ErrSessionLimitReached
	}

	sessionID := uuid.NewString()
	session := newSession(sessionID, req.Filter, req.MaxEvents, req.BufferSize)
	r.sessions[sessionID] = session
	r.hasActive.Store(true)
	r.metrics.WatchSessions(len(r.sessions))

	go func() {
		select {
		case <-ctx.Done():
			r.Deregister(sessionID)
		case <-session.Done():
		}
	}()

	return session, nil
}

// Deregister closes and removes a session.
func (r *Registry) Deregister(sessionID string) {
	r.mu.Lock()
	session, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.hasActive.Store(len(r.sessions) > 0)
	r.metrics.WatchSessions(len(r.sessions))
	r.mu.Unlock()

	if ok {
		session.Close()
	}
}

// PublishSnapshot routes the current buffer contents to all interested sessions.
func (r *Registry) PublishSnapshot(snapshot model.Snapshot) {
	r.publish(model.EnvelopeSnapshot, snapshot)
}

// PublishNotification routes a user-visible notification to all interested sessions.
func (r *Registry) PublishNotification(n model.Notification) {
	r.publish(model.EnvelopeNotification, n)
}

func (r *Registry) publish(t model.EnvelopeType, payload interface{}) {
	if !r.HasActiveSessions() {
		return
	}

	now := time.Now().UTC()
	for _, session := range r.snapshotSessions() {
		if !session.Filter().Accepts(t) {
			continue
		}

		streamed, completed := session.Emit(model.Envelope{
			Type:      t,
			EmittedAt: now,
			Payload:   payload,
		})
		if !streamed && !completed {
			r.metrics.DroppedEnvelope()
		}
		if completed {
			r.Deregister(session.ID())
		}
	}
}

func (r *Registry) snapshotSessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}
