package domain

import (
	"encoding/json"
	"fmt"
)

// Analysis is the structured extraction produced for one message.
type Analysis struct {
	Date   string       `json:"date"`
	Counts []AssetCount `json:"counts"`
}

// AssetCount aggregates one attacking asset type as of the report date.
type AssetCount struct {
	Type              string         `json:"type"`
	Number            int            `json:"number"`
	AdditionalDetails string         `json:"additional_details"`
	Subtypes          []AssetSubtype `json:"subtypes,omitempty"`
}

// AssetSubtype breaks an asset type down (e.g. Shahed-136 within drones).
type AssetSubtype struct {
	Subtype           string `json:"subtype"`
	Number            int    `json:"number"`
	AdditionalDetails string `json:"additional_details"`
}

// Validate rejects payloads that do not carry at least one counted type.
func (a *Analysis) Validate() error {
	if a == nil {
		return fmt.Errorf("analysis is nil")
	}
	if len(a.Counts) == 0 {
		return fmt.Errorf("analysis has no counts")
	}
	return nil
}

// Encode serializes the analysis for persistence.
func (a *Analysis) Encode() (string, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("encode analysis: %w", err)
	}
	return string(raw), nil
}
