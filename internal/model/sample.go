package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrMalformedSample marks a frame that looked like a JSON object but failed to decode.
	ErrMalformedSample = errors.New("malformed sample payload")
	// ErrInvalidSample marks a decoded payload whose timestamp cannot be used as a sort key.
	ErrInvalidSample = errors.New("invalid sample")
)

// timestampLayouts are tried in order; zone-less layouts are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Sample is one timestamped data point of the real-time statistics feed.
// Timestamp is kept verbatim: it is the identity key within a buffer.
type Sample struct {
	Timestamp    string    `json:"timestamp"`
	MessageCount float64   `json:"message_count"`
	CallCount    float64   `json:"call_count"`
	SuccessCount float64   `json:"success_count"`
	At           time.Time `json:"-"`
}

// DecodeSample decodes one stream payload. Missing numeric fields stay zero.
func DecodeSample(data []byte) (Sample, error) {
	var s Sample
	if err := json.Unmarshal(data, &s); err != nil {
		return Sample{}, fmt.Errorf("%w: %v", ErrMalformedSample, err)
	}

	at, err := ParseTimestamp(s.Timestamp)
	if err != nil {
		return Sample{}, err
	}
	s.At = at
	return s, nil
}

// ParseTimestamp parses an ISO-8601 sample timestamp.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: timestamp is required", ErrInvalidSample)
	}
	for _, layout := range timestampLayouts {
		if at, err := time.Parse(layout, raw); err == nil {
			return at, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable timestamp %q", ErrInvalidSample, raw)
}

// NewSample builds a sample from a point in time, formatting the timestamp as RFC 3339.
func NewSample(at time.Time, messages, calls, successes float64) Sample {
	at = at.UTC()
	return Sample{
		Timestamp:    at.Format(time.RFC3339Nano),
		MessageCount: messages,
		CallCount:    calls,
		SuccessCount: successes,
		At:           at,
	}
}
