package buffer

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/utrack/statlens/internal/model"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleAt(minute int, messages float64) model.Sample {
	return model.NewSample(base.Add(time.Duration(minute)*time.Minute), messages, messages*2, messages)
}

func timestamps(samples []model.Sample) []string {
	out := make([]string, 0, len(samples))
	for _, s := range samples {
		out = append(out, s.Timestamp)
	}
	return out
}

func TestIngestSortsOutOfOrderArrivals(t *testing.T) {
	t1, t2, t3 := sampleAt(1, 1), sampleAt(2, 2), sampleAt(3, 3)

	var got []model.Sample
	for _, s := range []model.Sample{t1, t3, t2} {
		got = Ingest(got, s, DefaultCapacity)
	}

	assert.Equal(t, timestamps([]model.Sample{t1, t2, t3}), timestamps(got))
}

func TestIngestReplacesMatchingTimestamp(t *testing.T) {
	got := Ingest(nil, sampleAt(0, 1), DefaultCapacity)
	got = Ingest(got, sampleAt(1, 5), DefaultCapacity)
	got = Ingest(got, sampleAt(2, 7), DefaultCapacity)

	updated := sampleAt(1, 42)
	next := Ingest(got, updated, DefaultCapacity)

	require.Len(t, next, 3)
	assert.Equal(t, updated, next[1])
	assert.Equal(t, got[0], next[0])
	assert.Equal(t, got[2], next[2])
	assert.Equal(t, 5.0, got[1].MessageCount, "input slice must not be mutated")
}

func TestIngestEvictsOldest(t *testing.T) {
	var got []model.Sample
	for i := 0; i < 55; i++ {
		got = Ingest(got, sampleAt(i, float64(i)), DefaultCapacity)
	}

	require.Len(t, got, DefaultCapacity)
	assert.Equal(t, sampleAt(5, 5).Timestamp, got[0].Timestamp)
	assert.Equal(t, sampleAt(54, 54).Timestamp, got[len(got)-1].Timestamp)
}

func TestIngestDropsSampleOlderThanFullWindow(t *testing.T) {
	var got []model.Sample
	for i := 10; i < 13; i++ {
		got = Ingest(got, sampleAt(i, 1), 3)
	}

	next := Ingest(got, sampleAt(1, 1), 3)
	assert.Equal(t, timestamps(got), timestamps(next))
}

func TestIngestUpdateKeepsPositionAcrossEviction(t *testing.T) {
	var got []model.Sample
	for i := 0; i < 3; i++ {
		got = Ingest(got, sampleAt(i, 1), 3)
	}

	got = Ingest(got, sampleAt(1, 99), 3)
	require.Len(t, got, 3)
	assert.Equal(t, 99.0, got[1].MessageCount)

	got = Ingest(got, sampleAt(3, 1), 3)
	require.Len(t, got, 3)
	assert.Equal(t, sampleAt(1, 0).Timestamp, got[0].Timestamp)
	assert.Equal(t, 99.0, got[0].MessageCount)
}

func TestIngestOrdersByTimeNotLexically(t *testing.T) {
	early, err := model.DecodeSample([]byte(`{"timestamp":"2026-03-01T12:00:00+02:00","message_count":1}`))
	require.NoError(t, err)
	late, err := model.DecodeSample([]byte(`{"timestamp":"2026-03-01T11:00:00Z","message_count":2}`))
	require.NoError(t, err)

	got := Ingest(nil, late, DefaultCapacity)
	got = Ingest(got, early, DefaultCapacity)

	assert.Equal(t, []string{early.Timestamp, late.Timestamp}, timestamps(got))
}

func TestIngestInvariantsRandomArrival(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const capacity = 20

	seen := make(map[string]struct{})
	var got []model.Sample
	for i := 0; i < 500; i++ {
		s := sampleAt(rng.Intn(80), float64(i))
		seen[s.Timestamp] = struct{}{}
		got = Ingest(got, s, capacity)

		require.LessOrEqual(t, len(got), capacity)
		keys := make(map[string]struct{}, len(got))
		for j, cur := range got {
			_, dup := keys[cur.Timestamp]
			require.False(t, dup, "duplicate timestamp %s", cur.Timestamp)
			keys[cur.Timestamp] = struct{}{}
			if j > 0 {
				require.False(t, cur.At.Before(got[j-1].At), "series not sorted at %d", j)
			}
		}
	}

	assert.Len(t, got, min(len(seen), capacity))
}

func TestBufferSnapshotIsCopy(t *testing.T) {
	b := New(0)
	assert.Equal(t, DefaultCapacity, b.Capacity())

	b.Ingest(sampleAt(0, 1))
	snap := b.Snapshot()
	snap[0].MessageCount = 100

	assert.Equal(t, 1.0, b.Snapshot()[0].MessageCount)
}

func TestBufferReset(t *testing.T) {
	b := New(3)
	for i := 0; i < 5; i++ {
		b.Ingest(sampleAt(i, 1))
	}
	assert.Equal(t, 3, b.Len())

	b.Reset()
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Snapshot())
}
