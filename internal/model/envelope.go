package model

import "time"

// EnvelopeType identifies the payload family carried by a watch envelope.
type EnvelopeType string

const (
	EnvelopeSnapshot     EnvelopeType = "snapshot"
	EnvelopeNotification EnvelopeType = "notification"
)

// Envelope is a single NDJSON (or websocket) event streamed to watch clients.
type Envelope struct {
	SessionID string       `json:"session_id"`
	Type      EnvelopeType `json:"type"`
	Sequence  uint64       `json:"sequence"`
	EmittedAt time.Time    `json:"emitted_at"`
	Payload   interface{}  `json:"payload"`
}

// StreamEnd is emitted when a watch session ends.
type StreamEnd struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Sent      uint64 `json:"sent"`
	Dropped   uint64 `json:"dropped"`
}

// Snapshot is the read-only view of the buffer handed to rendering clients.
type Snapshot struct {
	Granularity Granularity `json:"granularity"`
	Capacity    int         `json:"capacity"`
	Samples     []Sample    `json:"samples"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// NotificationLevel is the severity shown next to a notification.
type NotificationLevel string

const (
	LevelError   NotificationLevel = "error"
	LevelWarning NotificationLevel = "warning"
)

// Notification is a transient, user-visible notice raised on stream failures.
type Notification struct {
	ID        string            `json:"id"`
	Level     NotificationLevel `json:"level"`
	Message   string            `json:"message"`
	CreatedAt time.Time         `json:"created_at"`
}
