package capture

import (
	"context"
	"testing"
	"time"

	"github.com/utrack/statlens/internal/model"
)

func TestRegistryHasActiveSessions(t *testing.T) {
	registry := NewRegistry(10, nil)
	if registry.HasActiveSessions() {
		t.Fatal("expected no active sessions")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, err := registry.Register(ctx, RegisterRequest{MaxEvents: 2, BufferSize: 2})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if !registry.HasActiveSessions() {
		t.Fatal("expected active session")
	}

	registry.Deregister(session.ID())
	if registry.HasActiveSessions() {
		t.Fatal("expected no active sessions after deregister")
	}
}

func TestRegistryEnforcesSessionLimit(t *testing.T) {
	registry := NewRegistry(1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := registry.Register(ctx, RegisterRequest{}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := registry.Register(ctx, RegisterRequest{}); err != ErrSessionLimitReached {
		t.Fatalf("expected ErrSessionLimitReached, got %v", err)
	}
}

func TestRegistryPublishesAndAutoDeregistersAtEventLimit(t *testing.T) {
	registry := NewRegistry(10, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	session, err := registry.Register(ctx, RegisterRequest{MaxEvents: 2, BufferSize: 2})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	registry.PublishSnapshot(model.Snapshot{Granularity: 5})
	registry.PublishNotification(model.Notification{Message: "operation failed"})

	var received []model.Envelope
	for envelope := range session.Events() {
		received = append(received, envelope)
	}
	if len(received) != 2 {
		t.Fatalf("expected 2 events, got %d", len(received))
	}
	if received[0].Type != model.EnvelopeSnapshot || received[1].Type != model.EnvelopeNotification {
		t.Fatalf("unexpected envelope order: %s, %s", received[0].Type, received[1].Type)
	}
	if received[0].Sequence != 1 || received[1].Sequence != 2 {
		t.Fatalf("unexpected sequence numbers: %d, %d", received[0].Sequence, received[1].Sequence)
	}
	if received[0].SessionID != session.ID() {
		t.Fatalf("expected session id %s, got %s", session.ID(), received[0].SessionID)
	}

	if registry.HasActiveSessions() {
		t.Fatal("expected auto-deregister after max events")
	}
}

func TestRegistryRespectsFilter(t *testing.T) {
	registry := NewRegistry(10, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, err := registry.Register(ctx, RegisterRequest{
		Filter:     NewFilter(model.EnvelopeNotification),
		BufferSize: 4,
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	registry.PublishSnapshot(model.Snapshot{})
	registry.PublishNotification(model.Notification{Message: "operation failed"})

	envelope := <-session.Events()
	if envelope.Type != model.EnvelopeNotification {
		t.Fatalf("expected notification, got %s", envelope.Type)
	}
	if session.SentEvents() != 1 {
		t.Fatalf("expected 1 sent event, got %d", session.SentEvents())
	}
}

func TestRegistryDropsWhenWatcherLags(t *testing.T) {
	registry := NewRegistry(10, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, err := registry.Register(ctx, RegisterRequest{BufferSize: 1})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		registry.PublishSnapshot(model.Snapshot{})
	}
	if session.SentEvents() != 1 || session.DroppedEvents() != 4 {
		t.Fatalf("expected 1 sent / 4 dropped, got %d / %d", session.SentEvents(), session.DroppedEvents())
	}
}

func TestRegistryDeregistersOnContextCancel(t *testing.T) {
	registry := NewRegistry(10, nil)
	ctx, cancel := context.WithCancel(context.Background())

	session, err := registry.Register(ctx, RegisterRequest{})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	cancel()

	select {
	case <-session.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session not closed after context cancel")
	}
	if registry.HasActiveSessions() {
		t.Fatal("expected no active sessions")
	}
}

func TestRegistryFastDropPath(t *testing.T) {
	registry := NewRegistry(1, nil)
	for i := 0; i < 1000; i++ {
		registry.PublishSnapshot(model.Snapshot{})
	}
}
