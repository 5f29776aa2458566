package analyzer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/domain"
)

// parseAnalysis recovers a structured payload from model output that may be
// wrapped in formatting noise. Strategies, in order:
//
//  1. strip code fences, then parse the span between the first '{' and the
//     last '}',
//  2. brace-balanced line scan: accumulate lines from the first line starting
//     with '{' until the running brace count returns to zero, and parse that.
//
// All failures return an error with the last parse problem; the caller decides
// how loudly to log the raw payload.
func parseAnalysis(content string) (*domain.Analysis, error) {
	cleaned := stripFences(content)

	if span := braceSpan(cleaned); span != "" {
		if a, err := decode(span); err == nil {
			return a, nil
		}
	}

	span, err := braceBalancedScan(cleaned)
	if err != nil {
		return nil, err
	}
	a, err := decode(span)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func decode(span string) (*domain.Analysis, error) {
	var a domain.Analysis
	if err := json.Unmarshal([]byte(span), &a); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// stripFences removes leading/trailing markdown code fence markers.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```json") {
		content = content[len("```json"):]
	} else if strings.HasPrefix(content, "```") {
		content = content[len("```"):]
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

// braceSpan returns the substring between the first '{' and the last '}', or
// "" when no such span exists.
func braceSpan(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return content[start : end+1]
}

func braceBalancedScan(content string) (string, error) {
	var (
		lines   []string
		started bool
		depth   int
	)

	for _, line := range strings.Split(content, "\n") {
		if !started && strings.HasPrefix(strings.TrimSpace(line), "{") {
			started = true
		}
		if !started {
			continue
		}

		lines = append(lines, line)
		depth += strings.Count(line, "{") - strings.Count(line, "}")
		if depth == 0 {
			break
		}
	}

	if len(lines) == 0 {
		return "", fmt.Errorf("no JSON object found in response")
	}
	if depth != 0 {
		return "", fmt.Errorf("unbalanced JSON object in response")
	}
	return strings.Join(lines, "\n"), nil
}
