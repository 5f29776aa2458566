package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/domain"
	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/ports"
)

// Column set of the output file. Kept byte-compatible with archives produced
// by earlier deployments of this tool so existing files resume cleanly.
var fieldNames = []string{
	"channel_username", "channel_title", "channel_id",
	"message_id", "date", "message_text", "views", "forwards",
	"replies", "edit_date", "grouped_id", "from_id", "post_author",
	"openai_analysis", "openai_processed", "openai_error",
	"full_message_object",
}

// CSVStore persists message records to a single header-rowed CSV file.
//
// Appends are O(1); point updates re-read, patch and rewrite the whole file.
// That full rewrite is an accepted ceiling: enrichment throughput is bounded
// by the analyzer concurrency cap, not by storage. All file access is
// serialized behind a mutex.
type CSVStore struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

var _ ports.RecordStore = (*CSVStore)(nil)

// New builds a store over the given file path.
func New(path string, logger *slog.Logger) *CSVStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVStore{path: path, logger: logger}
}

// EnsureInitialized creates the file with the header row if it is absent.
func (s *CSVStore) EnsureInitialized() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat store: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(fieldNames); err != nil {
		f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush header: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}

	s.logger.Info("created new store file", "file", s.path)
	return nil
}

// LoadAll returns every known message id plus the records still awaiting a
// terminal enrichment outcome. It never fails hard: unreadable or corrupt
// content yields the best-effort subset parsed so far and a warning.
func (s *CSVStore) LoadAll() (map[int64]struct{}, []domain.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	known := make(map[int64]struct{})
	var pending []domain.Record

	f, err := os.Open(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("cannot open store, treating as empty", "file", s.path, "error", err)
		}
		return known, pending
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if err != io.EOF {
			s.logger.Warn("cannot read store header, treating as empty", "file", s.path, "error", err)
		}
		return known, pending
	}
	cols := columnIndex(header)

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.logger.Warn("store partially unreadable, keeping rows parsed so far",
				"file", s.path, "rows", len(known), "error", err)
			break
		}

		rec, ok := rowToRecord(cols, row)
		if !ok {
			continue
		}
		known[rec.MessageID] = struct{}{}
		if rec.NeedsEnrichment() {
			pending = append(pending, rec)
		}
	}

	s.logger.Info("loaded existing store", "file", s.path, "messages", len(known), "pending", len(pending))
	return known, pending
}

// Append adds one new record and makes it durable before returning.
func (s *CSVStore) Append(rec domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open store for append: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(recordToRow(rec)); err != nil {
		f.Close()
		return fmt.Errorf("append record %d: %w", rec.MessageID, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush record %d: %w", rec.MessageID, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync store: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}

	s.logger.Debug("appended record", "message_id", rec.MessageID)
	return nil
}

// Update replaces the enrichment fields of the row carrying the record's
// message id. The rewrite goes through a temp file and a rename so an
// interrupt mid-update leaves the previous file intact. A missing row is
// logged and the file stays untouched.
func (s *CSVStore) Update(rec domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open store for update: %w", err)
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	f.Close()
	if err != nil {
		return fmt.Errorf("read store for update: %w", err)
	}
	if len(rows) == 0 {
		s.logger.Error("update miss: store is empty", "message_id", rec.MessageID)
		return nil
	}

	cols := columnIndex(rows[0])
	idCol, okID := cols["message_id"]
	if !okID {
		s.logger.Error("update miss: store has no message_id column", "message_id", rec.MessageID)
		return nil
	}

	want := strconv.FormatInt(rec.MessageID, 10)
	found := false
	for _, row := range rows[1:] {
		if idCol < len(row) && row[idCol] == want {
			patchRow(cols, row, rec)
			found = true
			break
		}
	}
	if !found {
		s.logger.Error("update miss: message not present in store", "message_id", rec.MessageID)
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp store: %w", err)
	}
	tmpName := tmp.Name()

	w := csv.NewWriter(tmp)
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("rewrite store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp store: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace store: %w", err)
	}

	s.logger.Debug("updated record", "message_id", rec.MessageID)
	return nil
}

// patchRow overwrites only the enrichment columns; everything else keeps its
// original bytes.
func patchRow(cols map[string]int, row []string, rec domain.Record) {
	set := func(name, value string) {
		if idx, ok := cols[name]; ok && idx < len(row) {
			row[idx] = value
		}
	}
	set("openai_analysis", rec.Analysis)
	set("openai_processed", formatBool(rec.Processed))
	set("openai_error", rec.ProcessError)
}

func columnIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	return cols
}

func recordToRow(rec domain.Record) []string {
	return []string{
		rec.ChannelUsername,
		rec.ChannelTitle,
		strconv.FormatInt(rec.ChannelID, 10),
		strconv.FormatInt(rec.MessageID, 10),
		formatTime(rec.Date),
		rec.MessageText,
		formatInt(rec.Views),
		formatInt(rec.Forwards),
		formatInt(rec.Replies),
		formatTime(rec.EditDate),
		formatInt64(rec.GroupedID),
		formatInt64(rec.FromID),
		rec.PostAuthor,
		rec.Analysis,
		formatBool(rec.Processed),
		rec.ProcessError,
		rec.RawMessage,
	}
}

func rowToRecord(cols map[string]int, row []string) (domain.Record, bool) {
	get := func(name string) string {
		if idx, ok := cols[name]; ok && idx < len(row) {
			return row[idx]
		}
		return ""
	}

	id, err := strconv.ParseInt(strings.TrimSpace(get("message_id")), 10, 64)
	if err != nil {
		return domain.Record{}, false
	}

	channelID, _ := strconv.ParseInt(strings.TrimSpace(get("channel_id")), 10, 64)

	return domain.Record{
		ChannelUsername: get("channel_username"),
		ChannelTitle:    get("channel_title"),
		ChannelID:       channelID,
		MessageID:       id,
		Date:            parseTime(get("date")),
		MessageText:     get("message_text"),
		Views:           parseInt(get("views")),
		Forwards:        parseInt(get("forwards")),
		Replies:         parseInt(get("replies")),
		EditDate:        parseTime(get("edit_date")),
		GroupedID:       parseInt64(get("grouped_id")),
		FromID:          parseInt64(get("from_id")),
		PostAuthor:      get("post_author"),
		Analysis:        get("openai_analysis"),
		Processed:       parseBool(get("openai_processed")),
		ProcessError:    get("openai_error"),
		RawMessage:      get("full_message_object"),
	}, true
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(v string) *time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &t
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func parseInt(v string) *int {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

func formatInt64(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func parseInt64(v string) *int64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

func formatBool(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		return true
	}
	return false
}
