package capture

import (
	"sync"
	"sync/atomic"

	"github.com/utrack/statlens/internal/model"
)

// Session is a single active watch stream.
type Session struct {
	id        string
	filter    Filter
	maxEvents uint64

	events chan model.Envelope
	done   chan struct{}

	mu     sync.Mutex
	closed bool

	sentEvents    atomic.Uint64
	droppedEvents atomic.Uint64
}

func newSession(id string, filter Filter, maxEvents int, bufferSize int) *Session {
	if bufferSize <= 0 {
		bufferSize = 32
	}
	if maxEvents < 0 {
		maxEvents = 0
	}
	return &Session{
		id:        id,
		filter:    filter,
		maxEvents: uint64(maxEvents),
		events:    make(chan model.Envelope, bufferSize),
		done:      make(chan struct{}),
	}
}

// ID returns the immutable session identifier.
func (s *Session) ID() string { return s.id }

// Filter returns session filter definition.
func (s *Session) Filter() Filter { return s.filter }

// Events returns a read-only stream of envelopes.
func (s *Session) Events() <-chan model.Envelope { return s.events }

// Done closes when session is terminated.
func (s *Session) Done() <-chan struct{} { return s.done }

// SentEvents returns number of envelopes queued for the client.
func (s *Session) SentEvents() uint64 { return s.sentEvents.Load() }

// DroppedEvents returns number of envelopes dropped due to backpressure.
func (s *Session) DroppedEvents() uint64 { return s.droppedEvents.Load() }

// Emit tries to enqueue one envelope without blocking the publisher.
func (s *Session) Emit(envelope model.Envelope) (streamed bool, completed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, true
	}

	envelope.SessionID = s.id
	envelope.Sequence = s.sentEvents.Load() + 1

	select {
	case s.events <- envelope:
		sent := s.sentEvents.Add(1)
		if s.maxEvents > 0 && sent >= s.maxEvents {
			s.closeLocked()
			return true, true
		}
		return true, false
	default:
		s.droppedEvents.Add(1)
		return false, false
	}
}

// Close ends the session and releases stream resources.
func (s *Session) Close() {
	s.mu.Lock()
	s.closeLocked()
	s.mu.Unlock()
}

func (s *Session) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	close(s.events)
}
