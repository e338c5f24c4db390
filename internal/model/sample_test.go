package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSample(t *testing.T) {
	s, err := DecodeSample([]byte(`{"timestamp":"2026-03-01T12:00:00Z","message_count":3,"call_count":4,"success_count":2}`))
	require.NoError(t, err)

	assert.Equal(t, "2026-03-01T12:00:00Z", s.Timestamp)
	assert.Equal(t, 3.0, s.MessageCount)
	assert.Equal(t, 4.0, s.CallCount)
	assert.Equal(t, 2.0, s.SuccessCount)
	assert.True(t, s.At.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
}

func TestDecodeSampleCoalescesMissingFields(t *testing.T) {
	s, err := DecodeSample([]byte(`{"timestamp":"2026-03-01T12:00:00.250+01:00"}`))
	require.NoError(t, err)

	assert.Zero(t, s.MessageCount)
	assert.Zero(t, s.CallCount)
	assert.Zero(t, s.SuccessCount)
	assert.True(t, s.At.Equal(time.Date(2026, 3, 1, 11, 0, 0, 250_000_000, time.UTC)))
}

func TestDecodeSampleZonelessTimestamp(t *testing.T) {
	s, err := DecodeSample([]byte(`{"timestamp":"2026-03-01 12:30:00"}`))
	require.NoError(t, err)
	assert.True(t, s.At.Equal(time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)))
}

func TestDecodeSampleErrors(t *testing.T) {
	_, err := DecodeSample([]byte(`{not valid json`))
	assert.ErrorIs(t, err, ErrMalformedSample)

	_, err = DecodeSample([]byte(`{"message_count":1}`))
	assert.ErrorIs(t, err, ErrInvalidSample)

	_, err = DecodeSample([]byte(`{"timestamp":"yesterday"}`))
	assert.ErrorIs(t, err, ErrInvalidSample)
}

func TestParseGranularity(t *testing.T) {
	for _, g := range Granularities() {
		parsed, err := ParseGranularity(g.String())
		require.NoError(t, err)
		assert.Equal(t, g, parsed)
	}

	for _, raw := range []string{"0", "7", "-5", "ten", ""} {
		_, err := ParseGranularity(raw)
		assert.ErrorIs(t, err, ErrInvalidGranularity, raw)
	}

	assert.Equal(t, 30*time.Minute, Granularity(30).Duration())
}
