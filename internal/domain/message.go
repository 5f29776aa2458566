package domain

import "time"

// Channel identifies a resolved source channel.
type Channel struct {
	ID         int64
	AccessHash int64
	Username   string
	Title      string
}

// FeedMessage is the feed's projection of a single channel message.
type FeedMessage struct {
	ID         int64
	Date       *time.Time
	Text       string
	Views      *int
	Forwards   *int
	Replies    *int
	EditDate   *time.Time
	GroupedID  *int64
	FromID     *int64
	PostAuthor string
	// Raw carries the serialized full message object for audit.
	Raw string
}

// Record is one persisted row of the output file, keyed by MessageID.
//
// A record is collected-only (Processed=false, Analysis empty, ProcessError
// empty), terminally enriched (Processed=true, Analysis set) or terminally
// failed (Processed=false, ProcessError set). Only the enrichment fields
// mutate after the first append.
type Record struct {
	ChannelUsername string
	ChannelTitle    string
	ChannelID       int64
	MessageID       int64
	Date            *time.Time
	MessageText     string
	Views           *int
	Forwards        *int
	Replies         *int
	EditDate        *time.Time
	GroupedID       *int64
	FromID          *int64
	PostAuthor      string

	// Analysis holds the serialized enrichment payload once Processed is true.
	Analysis     string
	Processed    bool
	ProcessError string

	// RawMessage is the serialized full source object, kept opaque.
	RawMessage string
}

// NewRecord builds a collected-only record from a feed message.
func NewRecord(ch Channel, msg FeedMessage) Record {
	return Record{
		ChannelUsername: ch.Username,
		ChannelTitle:    ch.Title,
		ChannelID:       ch.ID,
		MessageID:       msg.ID,
		Date:            msg.Date,
		MessageText:     msg.Text,
		Views:           msg.Views,
		Forwards:        msg.Forwards,
		Replies:         msg.Replies,
		EditDate:        msg.EditDate,
		GroupedID:       msg.GroupedID,
		FromID:          msg.FromID,
		PostAuthor:      msg.PostAuthor,
		RawMessage:      msg.Raw,
	}
}

// NeedsEnrichment reports whether the record lacks a terminal outcome.
func (r Record) NeedsEnrichment() bool {
	return !r.Processed && r.ProcessError == ""
}
