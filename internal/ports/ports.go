package ports

import (
	"context"

	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/domain"
)

// RecordStore persists message records for deduplication and resumption.
type RecordStore interface {
	// EnsureInitialized creates an empty store with the fixed schema if none
	// exists; it is a no-op otherwise.
	EnsureInitialized() error

	// LoadAll returns every known message id and, separately, the records
	// still lacking a terminal enrichment outcome. It fails softly: a corrupt
	// or partially readable store yields the best-effort subset parsed so far.
	LoadAll() (map[int64]struct{}, []domain.Record)

	// Append adds one new record. The caller guarantees the message id is not
	// already present.
	Append(rec domain.Record) error

	// Update replaces the enrichment fields of the row matching the record's
	// message id. A missing row is logged and left alone, never fatal.
	Update(rec domain.Record) error
}

// Analyzer turns message text into a structured extraction.
//
// A (nil, nil) return means the analyzer conclusively determined the input
// carries insufficient information; it is a sentinel, not an error.
type Analyzer interface {
	Classify(ctx context.Context, text string, messageID int64) (*domain.Analysis, error)
}

// SourceFeed owns the lifecycle of a channel transport. Run connects and
// authenticates, invokes fn with a live session, and always releases the
// connection before returning.
type SourceFeed interface {
	Name() string
	Run(ctx context.Context, fn func(ctx context.Context, session FeedSession) error) error
}

// FeedSession is an authenticated view of the transport.
type FeedSession interface {
	ResolveChannel(ctx context.Context, username string) (domain.Channel, error)

	// IterateMessages walks the channel history in feed-native (reverse
	// chronological) order, invoking fn per message, at most limit messages
	// when limit > 0. Returning an error from fn stops the iteration.
	IterateMessages(ctx context.Context, ch domain.Channel, limit int, fn func(ctx context.Context, msg domain.FeedMessage) error) error
}

// ChallengeResponder supplies out-of-band authentication answers. The feed
// adapter calls it when the transport asks for a login code or a second
// factor, keeping the interactive surface out of the transport itself.
type ChallengeResponder interface {
	LoginCode(ctx context.Context) (string, error)
	Password(ctx context.Context) (string, error)
}
