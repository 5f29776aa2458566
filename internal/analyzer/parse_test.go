package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validPayload = `{
  "date": "2025-06-01",
  "counts": [
    {
      "type": "drones",
      "number": 10,
      "additional_details": "shot down by air defense",
      "subtypes": [
        {"subtype": "Shahed-136", "number": 10, "additional_details": "launched from the south"}
      ]
    }
  ]
}`

func TestParseAnalysisRecovery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{name: "bare object", input: validPayload},
		{name: "json code fence", input: "```json\n" + validPayload + "\n```"},
		{name: "anonymous code fence", input: "```\n" + validPayload + "\n```"},
		{name: "leading prose", input: "Here is the extracted data you asked for:\n" + validPayload},
		{name: "leading and trailing prose", input: "Sure!\n" + validPayload + "\nLet me know if you need more."},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			analysis, err := parseAnalysis(tt.input)
			require.NoError(t, err)
			require.NotNil(t, analysis)
			assert.Equal(t, "2025-06-01", analysis.Date)
			require.Len(t, analysis.Counts, 1)
			assert.Equal(t, "drones", analysis.Counts[0].Type)
			assert.Equal(t, 10, analysis.Counts[0].Number)
			require.Len(t, analysis.Counts[0].Subtypes, 1)
			assert.Equal(t, "Shahed-136", analysis.Counts[0].Subtypes[0].Subtype)
		})
	}
}

func TestParseAnalysisBraceBalancedFallback(t *testing.T) {
	t.Parallel()

	// The trailing stray brace breaks the first-{-to-last-} span; only the
	// line scan recovers the object.
	input := validPayload + "\nnote: unbalanced } below"

	analysis, err := parseAnalysis(input)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01", analysis.Date)
}

func TestParseAnalysisFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{name: "no object at all", input: "nothing to see here"},
		{name: "empty", input: ""},
		{name: "broken json", input: `{"date": "2025-06-01", "counts": [`},
		{name: "empty counts", input: `{"date": "2025-06-01", "counts": []}`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := parseAnalysis(tt.input)
			assert.Error(t, err)
		})
	}
}
