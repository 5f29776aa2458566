package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/domain"
	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/ports"
)

// State tracks the orchestrator through one run.
type State string

const (
	StateDisconnected    State = "disconnected"
	StateAuthenticated   State = "authenticated"
	StateChannelResolved State = "channel_resolved"
	StateRunning         State = "running"
	StateCompleted       State = "completed"
	StateInterrupted     State = "interrupted"
	StateFailed          State = "failed"
)

// Options select the run topology and its bounds.
type Options struct {
	Channel      string
	SearchPhrase string
	// Incremental appends and enriches each message before touching the
	// next; false collects everything first, then enriches concurrently.
	Incremental  bool
	MessageLimit int
	RequestDelay time.Duration
	Concurrency  int
}

// Orchestrator composes the reconciler, the scheduler and the analyzer into
// the two supported run modes and owns the feed lifecycle.
type Orchestrator struct {
	feed     ports.SourceFeed
	store    ports.RecordStore
	analyzer ports.Analyzer
	opts     Options
	logger   *slog.Logger
	state    State
}

// NewOrchestrator wires a run.
func NewOrchestrator(feed ports.SourceFeed, store ports.RecordStore, analyzer ports.Analyzer, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		feed:     feed,
		store:    store,
		analyzer: analyzer,
		opts:     opts,
		logger:   logger,
		state:    StateDisconnected,
	}
}

// State returns the last state the run reached.
func (o *Orchestrator) State() State {
	return o.state
}

// Run executes one scrape. Interruption is reported via the returned
// cancellation error so the process can exit cleanly; the feed connection is
// always released first.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.store.EnsureInitialized(); err != nil {
		o.setState(StateFailed)
		return fmt.Errorf("initialize store: %w", err)
	}

	err := o.feed.Run(ctx, func(ctx context.Context, session ports.FeedSession) error {
		o.setState(StateAuthenticated)

		channel, err := session.ResolveChannel(ctx, o.opts.Channel)
		if err != nil {
			return fmt.Errorf("resolve channel %s: %w", o.opts.Channel, err)
		}
		o.setState(StateChannelResolved)
		o.logger.Info("found channel", "channel", channel.Username, "title", channel.Title)

		o.setState(StateRunning)
		if o.opts.Incremental {
			o.logger.Info("using incremental processing mode")
			return o.runIncremental(ctx, session, channel)
		}
		o.logger.Info("using two-phase processing mode")
		return o.runTwoPhase(ctx, session, channel)
	})

	// The feed's Run has returned, so the connection is released regardless
	// of the outcome. A clean run steps through Completed back to
	// Disconnected; interrupted and failed runs keep their terminal state so
	// callers can read the outcome after Run returns.
	switch {
	case err == nil:
		o.setState(StateCompleted)
		o.setState(StateDisconnected)
		return nil
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		o.setState(StateInterrupted)
		o.logger.Info("interrupted; progress is saved, run again to resume")
		return err
	default:
		o.setState(StateFailed)
		o.logger.Error("scrape failed", "error", err)
		return err
	}
}

// runIncremental iterates the feed once and, per qualifying new message,
// appends it, enriches it and persists the outcome before moving on. Message
// N+1 is not started until message N's cycle completed.
func (o *Orchestrator) runIncremental(ctx context.Context, session ports.FeedSession, channel domain.Channel) error {
	recon := NewReconciler(o.store, o.opts.SearchPhrase, o.logger)
	o.logger.Info("starting incremental scrape",
		"phrase", o.opts.SearchPhrase,
		"already_stored", recon.KnownCount())

	var limiter *rate.Limiter
	if o.opts.RequestDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(o.opts.RequestDelay), 1)
	}

	var found, processed int
	err := session.IterateMessages(ctx, channel, o.opts.MessageLimit, func(ctx context.Context, msg domain.FeedMessage) error {
		if !recon.Qualifies(msg.Text) {
			return nil
		}
		found++
		if recon.Known(msg.ID) {
			o.logger.Debug("skipping already stored message", "message_id", msg.ID)
			return nil
		}

		o.logger.Info("found new message", "message_id", msg.ID, "date", msg.Date)

		rec := domain.NewRecord(channel, msg)
		if err := o.store.Append(rec); err != nil {
			return fmt.Errorf("append message %d: %w", msg.ID, err)
		}
		recon.MarkKnown(msg.ID)

		o.enrichOne(ctx, rec)
		processed++

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		return err
	}

	// Records an earlier interrupted run left collected-only are skipped by
	// the id check above; drain them here so the run ends with no pending
	// rows.
	for _, rec := range recon.Worklist() {
		if err := ctx.Err(); err != nil {
			return err
		}
		o.logger.Info("resuming pending message", "message_id", rec.MessageID)
		o.enrichOne(ctx, rec)
		processed++
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}
	}

	o.logger.Info("incremental scrape finished",
		"matched", found,
		"new_processed", processed)
	return nil
}

// enrichOne runs the analyzer for a just-appended record and persists the
// terminal outcome. Cancellation mid-call leaves the record collected-only so
// the next run resumes it.
func (o *Orchestrator) enrichOne(ctx context.Context, rec domain.Record) {
	analysis, err := o.analyzer.Classify(ctx, rec.MessageText, rec.MessageID)
	switch {
	case err != nil:
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		rec.ProcessError = err.Error()
		o.logger.Error("enrichment failed", "message_id", rec.MessageID, "error", err)
	case analysis == nil:
		rec.ProcessError = failedDiagnostic
		o.logger.Warn("message could not be enriched", "message_id", rec.MessageID)
	default:
		encoded, encErr := analysis.Encode()
		if encErr != nil {
			rec.ProcessError = encErr.Error()
			o.logger.Error("cannot serialize analysis", "message_id", rec.MessageID, "error", encErr)
			break
		}
		rec.Analysis = encoded
		rec.Processed = true
	}

	if err := o.store.Update(rec); err != nil {
		o.logger.Error("cannot write enrichment outcome", "message_id", rec.MessageID, "error", err)
	}
}

// runTwoPhase collects every qualifying new message first (phase 1), then
// rebuilds the worklist from the store and enriches it concurrently
// (phase 2). Either phase can be interrupted independently.
func (o *Orchestrator) runTwoPhase(ctx context.Context, session ports.FeedSession, channel domain.Channel) error {
	recon := NewReconciler(o.store, o.opts.SearchPhrase, o.logger)
	o.logger.Info("phase 1: collecting messages",
		"phrase", o.opts.SearchPhrase,
		"already_stored", recon.KnownCount())

	var collected int
	err := session.IterateMessages(ctx, channel, o.opts.MessageLimit, func(ctx context.Context, msg domain.FeedMessage) error {
		if !recon.Qualifies(msg.Text) {
			return nil
		}
		if recon.Known(msg.ID) {
			o.logger.Debug("skipping already stored message", "message_id", msg.ID)
			return nil
		}

		rec := domain.NewRecord(channel, msg)
		if err := o.store.Append(rec); err != nil {
			return fmt.Errorf("append message %d: %w", msg.ID, err)
		}
		recon.MarkKnown(msg.ID)
		collected++
		o.logger.Info("collected message", "message_id", msg.ID, "new_total", collected)
		return nil
	})
	if err != nil {
		o.logger.Info("collection stopped, messages saved so far are resumable", "collected", collected)
		return err
	}
	o.logger.Info("phase 1 complete", "new_messages", collected)

	// Phase 2 reloads from the store rather than trusting the in-memory
	// pass: interrupted previous runs left pending rows the live pass never
	// saw.
	o.logger.Info("phase 2: enriching pending messages")
	_, pending := o.store.LoadAll()
	sched := NewScheduler(o.store, o.analyzer, o.opts.Concurrency, o.opts.RequestDelay, o.logger)
	_, err = sched.Run(ctx, pending)
	return err
}

func (o *Orchestrator) setState(next State) {
	o.state = next
	o.logger.Debug("orchestrator state", "state", string(next))
}
