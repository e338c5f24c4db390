package httpapi

import "github.com/utrack/statlens/internal/model"

// WatchRequest defines one on-demand watch session.
type WatchRequest struct {
	Types          []model.EnvelopeType `json:"types"`
	MaxEvents      int                  `json:"max_events"`
	TimeoutSeconds int                  `json:"timeout_seconds"`
}

// GranularityRequest selects a new aggregation window.
type GranularityRequest struct {
	Granularity int `json:"granularity"`
}

// StreamError is serialized for API-level failures.
type StreamError struct {
	Error string `json:"error"`
}
