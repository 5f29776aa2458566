package scraper

import (
	"log/slog"
	"strings"

	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/domain"
	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/ports"
)

// Reconciler computes the delta between the store and a live feed pass.
//
// Matching is exact equality on the message id, nothing fuzzier: a message is
// only ever "the same" when its identifier matches a stored one.
type Reconciler struct {
	phrase  string
	known   map[int64]struct{}
	pending []domain.Record
	logger  *slog.Logger
}

// NewReconciler snapshots the store's known ids and resumption worklist.
func NewReconciler(store ports.RecordStore, phrase string, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	known, pending := store.LoadAll()
	return &Reconciler{
		phrase:  phrase,
		known:   known,
		pending: pending,
		logger:  logger,
	}
}

// Qualifies applies the filter predicate: non-empty text containing the
// search phrase as a literal, case-sensitive substring.
func (r *Reconciler) Qualifies(text string) bool {
	return text != "" && strings.Contains(text, r.phrase)
}

// Known reports whether the id was stored before this run or appended during
// it.
func (r *Reconciler) Known(id int64) bool {
	_, ok := r.known[id]
	return ok
}

// MarkKnown registers an id appended during this run so an overlapping feed
// window cannot produce a duplicate row.
func (r *Reconciler) MarkKnown(id int64) {
	r.known[id] = struct{}{}
}

// KnownCount returns how many distinct message ids the reconciler tracks.
func (r *Reconciler) KnownCount() int {
	return len(r.known)
}

// Worklist returns the stored records still lacking a terminal enrichment
// outcome, independent of any live feed pass.
func (r *Reconciler) Worklist() []domain.Record {
	out := make([]domain.Record, len(r.pending))
	copy(out, r.pending)
	return out
}
