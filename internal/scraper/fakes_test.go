package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/domain"
	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/ports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory RecordStore that keeps append order and counts
// every mutation.
type memStore struct {
	mu      sync.Mutex
	order   []int64
	records map[int64]domain.Record
	appends int
	updates int
}

func newMemStore(seed ...domain.Record) *memStore {
	s := &memStore{records: make(map[int64]domain.Record)}
	for _, rec := range seed {
		s.order = append(s.order, rec.MessageID)
		s.records[rec.MessageID] = rec
	}
	return s
}

func (s *memStore) EnsureInitialized() error { return nil }

func (s *memStore) LoadAll() (map[int64]struct{}, []domain.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	known := make(map[int64]struct{}, len(s.records))
	var pending []domain.Record
	for _, id := range s.order {
		rec := s.records[id]
		known[id] = struct{}{}
		if rec.NeedsEnrichment() {
			pending = append(pending, rec)
		}
	}
	return known, pending
}

func (s *memStore) Append(rec domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.MessageID]; ok {
		return fmt.Errorf("duplicate append for message %d", rec.MessageID)
	}
	s.order = append(s.order, rec.MessageID)
	s.records[rec.MessageID] = rec
	s.appends++
	return nil
}

func (s *memStore) Update(rec domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	stored, ok := s.records[rec.MessageID]
	if !ok {
		return nil
	}
	stored.Analysis = rec.Analysis
	stored.Processed = rec.Processed
	stored.ProcessError = rec.ProcessError
	s.records[rec.MessageID] = stored
	return nil
}

func (s *memStore) get(t *testing.T, id int64) domain.Record {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		t.Fatalf("record %d not in store", id)
	}
	return rec
}

func (s *memStore) has(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[id]
	return ok
}

var _ ports.RecordStore = (*memStore)(nil)

// funcAnalyzer adapts a function to the Analyzer port.
type funcAnalyzer func(ctx context.Context, text string, messageID int64) (*domain.Analysis, error)

func (f funcAnalyzer) Classify(ctx context.Context, text string, messageID int64) (*domain.Analysis, error) {
	return f(ctx, text, messageID)
}

func okAnalyzer() funcAnalyzer {
	return func(ctx context.Context, text string, messageID int64) (*domain.Analysis, error) {
		return &domain.Analysis{
			Date:   "2025-06-01",
			Counts: []domain.AssetCount{{Type: "drones", Number: 10}},
		}, nil
	}
}

// stubFeed replays a fixed message slice through the session callback.
type stubFeed struct {
	channel  domain.Channel
	messages []domain.FeedMessage
}

func (f *stubFeed) Name() string { return "stub" }

func (f *stubFeed) Run(ctx context.Context, fn func(ctx context.Context, session ports.FeedSession) error) error {
	return fn(ctx, &stubSession{feed: f})
}

type stubSession struct {
	feed *stubFeed
}

func (s *stubSession) ResolveChannel(ctx context.Context, username string) (domain.Channel, error) {
	if username != s.feed.channel.Username {
		return domain.Channel{}, fmt.Errorf("no such channel: %s", username)
	}
	return s.feed.channel, nil
}

func (s *stubSession) IterateMessages(ctx context.Context, ch domain.Channel, limit int, fn func(ctx context.Context, msg domain.FeedMessage) error) error {
	for i, msg := range s.feed.messages {
		if limit > 0 && i >= limit {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

var (
	_ ports.SourceFeed  = (*stubFeed)(nil)
	_ ports.FeedSession = (*stubSession)(nil)
)

func collectedRecord(id int64, text string) domain.Record {
	return domain.Record{
		ChannelUsername: "kpszsu",
		ChannelTitle:    "Повітряні сили ЗС України",
		ChannelID:       1001,
		MessageID:       id,
		MessageText:     text,
	}
}
