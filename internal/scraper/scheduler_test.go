package scraper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/domain"
)

func TestSchedulerEmptyWorklist(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	sched := NewScheduler(store, okAnalyzer(), 5, 0, discardLogger())

	summary, err := sched.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)
	assert.Equal(t, 0, store.updates)
}

func TestSchedulerEnrichesWorklist(t *testing.T) {
	t.Parallel()

	recs := []domain.Record{
		collectedRecord(1, "У ніч на 1 червня 10 Shahed"),
		collectedRecord(2, "У ніч на 2 червня 5 ракет"),
		collectedRecord(3, "У ніч на 3 червня"),
	}
	store := newMemStore(recs...)
	sched := NewScheduler(store, okAnalyzer(), 2, 0, discardLogger())

	summary, err := sched.Run(context.Background(), recs)
	require.NoError(t, err)
	assert.Equal(t, Summary{Succeeded: 3}, summary)

	for _, rec := range recs {
		got := store.get(t, rec.MessageID)
		assert.True(t, got.Processed)
		assert.NotEmpty(t, got.Analysis)
		assert.Empty(t, got.ProcessError)
	}
}

func TestSchedulerBoundsConcurrency(t *testing.T) {
	t.Parallel()

	const maxConcurrent = 3

	var inFlight, peak atomic.Int64
	analyzer := funcAnalyzer(func(ctx context.Context, text string, messageID int64) (*domain.Analysis, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return &domain.Analysis{Date: "2025-06-01", Counts: []domain.AssetCount{{Type: "drones", Number: 1}}}, nil
	})

	var recs []domain.Record
	for id := int64(1); id <= 20; id++ {
		recs = append(recs, collectedRecord(id, "text"))
	}
	store := newMemStore(recs...)
	sched := NewScheduler(store, analyzer, maxConcurrent, 0, discardLogger())

	summary, err := sched.Run(context.Background(), recs)
	require.NoError(t, err)
	assert.Equal(t, 20, summary.Succeeded)
	assert.LessOrEqual(t, peak.Load(), int64(maxConcurrent))
}

func TestSchedulerIsolatesOutcomes(t *testing.T) {
	t.Parallel()

	analyzer := funcAnalyzer(func(ctx context.Context, text string, messageID int64) (*domain.Analysis, error) {
		switch messageID {
		case 1:
			return &domain.Analysis{Date: "2025-06-01", Counts: []domain.AssetCount{{Type: "drones", Number: 10}}}, nil
		case 2:
			return nil, errors.New("model melted down")
		default:
			return nil, nil
		}
	})

	recs := []domain.Record{
		collectedRecord(1, "ok"),
		collectedRecord(2, "boom"),
		collectedRecord(3, "thin"),
	}
	store := newMemStore(recs...)
	sched := NewScheduler(store, analyzer, 2, 0, discardLogger())

	summary, err := sched.Run(context.Background(), recs)
	require.NoError(t, err)
	assert.Equal(t, Summary{Succeeded: 1, Failed: 2}, summary)

	ok := store.get(t, 1)
	assert.True(t, ok.Processed)
	assert.Empty(t, ok.ProcessError)

	errored := store.get(t, 2)
	assert.False(t, errored.Processed)
	assert.Equal(t, "model melted down", errored.ProcessError)
	assert.Empty(t, errored.Analysis)

	null := store.get(t, 3)
	assert.False(t, null.Processed)
	assert.Equal(t, failedDiagnostic, null.ProcessError)

	// All three are now terminal, so a fresh load yields an empty worklist.
	_, pending := store.LoadAll()
	assert.Empty(t, pending)
}

func TestSchedulerCancellationAbandonsUnwritten(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int64
	analyzer := funcAnalyzer(func(ctx context.Context, text string, messageID int64) (*domain.Analysis, error) {
		if calls.Add(1) == 1 {
			cancel()
		}
		<-ctx.Done()
		return nil, ctx.Err()
	})

	var recs []domain.Record
	for id := int64(1); id <= 10; id++ {
		recs = append(recs, collectedRecord(id, "text"))
	}
	store := newMemStore(recs...)
	sched := NewScheduler(store, analyzer, 2, 0, discardLogger())

	summary, err := sched.Run(ctx, recs)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Summary{}, summary)
	assert.Equal(t, 0, store.updates, "interrupted entries must not be written back")

	// Everything stays pending for the next run.
	_, pending := store.LoadAll()
	assert.Len(t, pending, 10)
}
