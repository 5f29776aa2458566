package scraper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/domain"
	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/ports"
)

// failedDiagnostic marks records the analyzer conclusively could not enrich.
const failedDiagnostic = "Failed to process or returned NULL"

// Summary counts terminal outcomes of one scheduler pass.
type Summary struct {
	Succeeded int
	Failed    int
}

// Scheduler fans the analyzer out over a worklist under a concurrency cap and
// a per-call pacing delay, writing each outcome back through the store.
type Scheduler struct {
	store       ports.RecordStore
	analyzer    ports.Analyzer
	concurrency int64
	delay       time.Duration
	logger      *slog.Logger
}

// NewScheduler wires the enrichment pass.
func NewScheduler(store ports.RecordStore, analyzer ports.Analyzer, concurrency int, delay time.Duration, logger *slog.Logger) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:       store,
		analyzer:    analyzer,
		concurrency: int64(concurrency),
		delay:       delay,
		logger:      logger,
	}
}

// Run processes every worklist entry to a terminal outcome. One entry's
// failure never aborts another's processing; the summary is reported only
// after all scheduled entries finished. On cancellation, entries that have
// not written back yet are abandoned so a later run picks them up again.
func (s *Scheduler) Run(ctx context.Context, worklist []domain.Record) (Summary, error) {
	if len(worklist) == 0 {
		s.logger.Info("all stored messages already enriched")
		return Summary{}, nil
	}

	s.logger.Info("starting enrichment pass",
		"messages", len(worklist),
		"max_concurrent", s.concurrency)

	var (
		mu      sync.Mutex
		summary Summary
	)
	sem := semaphore.NewWeighted(s.concurrency)
	g := new(errgroup.Group)

	for _, rec := range worklist {
		rec := rec
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				// Cancelled before the entry ever started; leave it
				// non-terminal for the next run.
				return nil
			}
			defer sem.Release(1)

			outcome := s.processOne(ctx, rec)

			mu.Lock()
			switch outcome {
			case outcomeSucceeded:
				summary.Succeeded++
			case outcomeFailed:
				summary.Failed++
			}
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		s.logger.Info("enrichment interrupted, progress saved",
			"succeeded", summary.Succeeded,
			"failed", summary.Failed)
		return summary, err
	}

	s.logger.Info("enrichment pass complete",
		"succeeded", summary.Succeeded,
		"failed", summary.Failed)
	return summary, nil
}

type outcome int

const (
	outcomeAbandoned outcome = iota
	outcomeSucceeded
	outcomeFailed
)

// processOne drives a single entry to a terminal outcome and persists it.
// Interruption before write-back leaves the stored record untouched.
func (s *Scheduler) processOne(ctx context.Context, rec domain.Record) outcome {
	// Pacing applies per call, inside the admission gate, so the outbound
	// rate stays bounded even at full concurrency.
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return outcomeAbandoned
		}
	}

	analysis, err := s.analyzer.Classify(ctx, rec.MessageText, rec.MessageID)
	switch {
	case err != nil:
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return outcomeAbandoned
		}
		rec.Analysis = ""
		rec.Processed = false
		rec.ProcessError = err.Error()
		s.logger.Error("enrichment failed", "message_id", rec.MessageID, "error", err)

	case analysis == nil:
		rec.Analysis = ""
		rec.Processed = false
		rec.ProcessError = failedDiagnostic
		s.logger.Warn("message could not be enriched", "message_id", rec.MessageID)

	default:
		encoded, encErr := analysis.Encode()
		if encErr != nil {
			rec.Analysis = ""
			rec.Processed = false
			rec.ProcessError = encErr.Error()
			s.logger.Error("cannot serialize analysis", "message_id", rec.MessageID, "error", encErr)
			break
		}
		rec.Analysis = encoded
		rec.Processed = true
		rec.ProcessError = ""
	}

	if err := s.store.Update(rec); err != nil {
		s.logger.Error("cannot write enrichment outcome", "message_id", rec.MessageID, "error", err)
		return outcomeAbandoned
	}

	if rec.Processed {
		return outcomeSucceeded
	}
	return outcomeFailed
}
