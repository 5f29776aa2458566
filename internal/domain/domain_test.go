package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalysisValidate(t *testing.T) {
	t.Parallel()

	valid := &Analysis{Date: "2025-06-01", Counts: []AssetCount{{Type: "drones", Number: 10}}}
	assert.NoError(t, valid.Validate())

	var nilAnalysis *Analysis
	assert.Error(t, nilAnalysis.Validate())
	assert.Error(t, (&Analysis{Date: "2025-06-01"}).Validate())
}

func TestAnalysisEncode(t *testing.T) {
	t.Parallel()

	a := &Analysis{
		Date: "2025-06-01",
		Counts: []AssetCount{
			{
				Type:              "drones",
				Number:            10,
				AdditionalDetails: "Shahed-type",
				Subtypes:          []AssetSubtype{{Subtype: "Shahed-136", Number: 10}},
			},
			{Type: "cruise missiles", Number: 5},
		},
	}

	encoded, err := a.Encode()
	require.NoError(t, err)

	var decoded Analysis
	require.NoError(t, json.Unmarshal([]byte(encoded), &decoded))
	assert.Equal(t, *a, decoded)

	// Missing subtypes stay absent instead of serializing as null.
	assert.NotContains(t, encoded, `"subtypes":null`)
}

func TestNewRecord(t *testing.T) {
	t.Parallel()

	date := time.Date(2025, 6, 1, 5, 30, 0, 0, time.UTC)
	views := 1200
	ch := Channel{ID: 1001, Username: "kpszsu", Title: "Повітряні сили ЗС України"}
	msg := FeedMessage{
		ID:         42,
		Date:       &date,
		Text:       "У ніч на 1 червня",
		Views:      &views,
		PostAuthor: "ПС ЗСУ",
		Raw:        `{"id":42}`,
	}

	rec := NewRecord(ch, msg)
	assert.Equal(t, int64(42), rec.MessageID)
	assert.Equal(t, "kpszsu", rec.ChannelUsername)
	assert.Equal(t, int64(1001), rec.ChannelID)
	assert.Equal(t, &date, rec.Date)
	assert.Equal(t, `{"id":42}`, rec.RawMessage)

	assert.True(t, rec.NeedsEnrichment(), "a fresh record is collected-only")
	assert.False(t, rec.Processed)
	assert.Empty(t, rec.Analysis)
}

func TestNeedsEnrichment(t *testing.T) {
	t.Parallel()

	pending := Record{MessageID: 1}
	assert.True(t, pending.NeedsEnrichment())

	enriched := Record{MessageID: 2, Processed: true, Analysis: `{"date":"2025-06-01","counts":[]}`}
	assert.False(t, enriched.NeedsEnrichment())

	failed := Record{MessageID: 3, ProcessError: "analyzer gave up"}
	assert.False(t, failed.NeedsEnrichment())
}
