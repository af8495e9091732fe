// internal/workers/sessions/create-session/models.go
package createsession

import "encoding/json"

type Input struct {
	// DraftSummary is the raw draft document produced upstream. It is
	// validated against the ingest schema before anything is stored.
	DraftSummary  json.RawMessage `json:"draftSummary"`
	SalesRepEmail string          `json:"salesRepEmail"`
	// DurationHours overrides the default session lifetime when positive.
	DurationHours int `json:"durationHours,omitempty"`
}

// Output reports the opened session back to the workflow.
type Output struct {
	SessionID      string `json:"sessionId"`
	DraftSummaryID string `json:"draftSummaryId"`
	QuestionCount  int    `json:"questionCount"`
	ExpiresAt      string `json:"expiresAt"`
}
