package models

import (
	"context"
	"time"
)

// ActionItem is one extracted follow-up task from a meeting.
type ActionItem struct {
	Description string `json:"description"`
	Assignee    string `json:"assignee,omitempty"`
	DueDate     string `json:"dueDate,omitempty"`
	Priority    string `json:"priority,omitempty"`
}

// DraftSummary is the AI-generated, unreviewed meeting summary. It is produced
// by an external collaborator and treated as immutable input here.
type DraftSummary struct {
	ID                   string                 `json:"id" db:"id"`
	MeetingID            string                 `json:"meetingId" db:"meeting_id"`
	AIGeneratedSummary   string                 `json:"aiGeneratedSummary" db:"ai_generated_summary"`
	KeyPoints            []string               `json:"keyPoints,omitempty" db:"key_points"`
	ExtractedActionItems []ActionItem           `json:"extractedActionItems,omitempty" db:"extracted_action_items"`
	SuggestedNextSteps   []string               `json:"suggestedNextSteps,omitempty" db:"suggested_next_steps"`
	DecisionsMade        []string               `json:"decisionsMade,omitempty" db:"decisions_made"`
	SuggestedCRMUpdates  map[string]interface{} `json:"suggestedCrmUpdates,omitempty" db:"suggested_crm_updates"`
	ConfidenceScore      float64                `json:"confidenceScore" db:"confidence_score"`
	// MeetingOutcome is the sentiment recorded by the upstream AI collaborator
	// (very_positive, positive, neutral, negative).
	MeetingOutcome string    `json:"meetingOutcome,omitempty" db:"meeting_outcome"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}

// LeadDirectory is the commercial-record collaborator. It only answers whether
// a lead exists for a meeting and what its current stage is.
type LeadDirectory interface {
	LeadForMeeting(meetingID string) (leadID string, currentStage string, found bool)
}

// DraftSummaryRepository defines draft summary data access.
type DraftSummaryRepository interface {
	Create(ctx context.Context, draft *DraftSummary) error
	FindByID(ctx context.Context, id string) (*DraftSummary, error)
}
