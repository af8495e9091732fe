// internal/session/questions_test.go
package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetingsync/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func fullDraft() *models.DraftSummary {
	return &models.DraftSummary{
		ID:                 "draft-1",
		MeetingID:          "meeting-1",
		AIGeneratedSummary: "Discussed pricing and the client asked for a proposal by Friday.",
		KeyPoints:          []string{"Budget approved", "Decision maker present"},
		ExtractedActionItems: []models.ActionItem{
			{Description: "Send proposal", Assignee: "alex", DueDate: "2026-09-05", Priority: "high"},
		},
		SuggestedNextSteps:  []string{"Schedule follow-up call"},
		DecisionsMade:       []string{"Move forward with pilot"},
		SuggestedCRMUpdates: map[string]interface{}{"deal_stage": "Proposal"},
		ConfidenceScore:     0.9,
		MeetingOutcome:      "positive",
	}
}

func questionIDs(questions []models.Question) []string {
	ids := make([]string, 0, len(questions))
	for _, q := range questions {
		ids = append(ids, q.ID)
	}
	return ids
}

// ==========================
// Stage Suggestion Tests
// ==========================

func TestSuggestDealStage(t *testing.T) {
	tests := []struct {
		name     string
		summary  string
		expected string
	}{
		{
			name:     "contract signed wins",
			summary:  "They signed the contract today.",
			expected: "Closed Won",
		},
		{
			name:     "signed beats proposal when both present",
			summary:  "We signed after reviewing the proposal.",
			expected: "Closed Won",
		},
		{
			name:     "proposal keywords",
			summary:  "Client requested a quote with updated pricing.",
			expected: "Proposal",
		},
		{
			name:     "demo keywords",
			summary:  "Scheduled a product demo for next week.",
			expected: "Demo Scheduled",
		},
		{
			name:     "qualification keywords",
			summary:  "They confirmed budget and a rollout timeline.",
			expected: "Qualified",
		},
		{
			name:     "lost keywords",
			summary:  "They are not interested at this time.",
			expected: "Closed Lost",
		},
		{
			name:     "case insensitive",
			summary:  "SIGNED the Agreement",
			expected: "Closed Won",
		},
		{
			name:     "no keywords falls back",
			summary:  "General catch-up conversation.",
			expected: "In Progress",
		},
		{
			name:     "empty summary falls back",
			summary:  "",
			expected: "In Progress",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SuggestDealStage(tt.summary))
		})
	}
}

// ==========================
// Question Generation Tests
// ==========================

func TestGenerateQuestions_FullDraftWithLead(t *testing.T) {
	questions := GenerateQuestions(fullDraft(), true)

	require.Len(t, questions, 7)
	assert.Equal(t, []string{
		models.QIDSummaryAccuracy,
		models.QIDKeyPointsValidation,
		models.QIDActionItemsValidation,
		models.QIDNextStepsConfirmation,
		models.QIDCRMUpdatesApproval,
		models.QIDDealStageUpdate,
		models.QIDAdditionalNotes,
	}, questionIDs(questions))
}

func TestGenerateQuestions_FullDraftWithoutLead(t *testing.T) {
	questions := GenerateQuestions(fullDraft(), false)

	require.Len(t, questions, 6)
	assert.NotContains(t, questionIDs(questions), models.QIDDealStageUpdate)
}

func TestGenerateQuestions_SparseDraft(t *testing.T) {
	draft := &models.DraftSummary{
		ID:                 "draft-2",
		MeetingID:          "meeting-2",
		AIGeneratedSummary: "Short sync, nothing actionable.",
	}

	questions := GenerateQuestions(draft, false)

	require.Len(t, questions, 2)
	assert.Equal(t, models.QIDSummaryAccuracy, questions[0].ID)
	assert.Equal(t, models.QIDAdditionalNotes, questions[1].ID)
}

func TestGenerateQuestions_RequiredFlags(t *testing.T) {
	questions := GenerateQuestions(fullDraft(), true)

	required := map[string]bool{}
	for _, q := range questions {
		required[q.ID] = q.Required
	}

	assert.True(t, required[models.QIDSummaryAccuracy])
	assert.True(t, required[models.QIDKeyPointsValidation])
	assert.True(t, required[models.QIDActionItemsValidation])
	assert.True(t, required[models.QIDNextStepsConfirmation])
	assert.True(t, required[models.QIDCRMUpdatesApproval])
	assert.False(t, required[models.QIDDealStageUpdate])
	assert.False(t, required[models.QIDAdditionalNotes])
}

func TestGenerateQuestions_TypesAndPayloads(t *testing.T) {
	draft := fullDraft()
	questions := GenerateQuestions(draft, true)

	byID := map[string]models.Question{}
	for _, q := range questions {
		byID[q.ID] = q
	}

	accuracy := byID[models.QIDSummaryAccuracy]
	assert.Equal(t, models.QuestionConfirmation, accuracy.Type)
	assert.Equal(t, draft.AIGeneratedSummary, accuracy.SuggestedText)

	keyPoints := byID[models.QIDKeyPointsValidation]
	assert.Equal(t, models.QuestionMultiSelect, keyPoints.Type)
	assert.Equal(t, draft.KeyPoints, keyPoints.Options)

	actionItems := byID[models.QIDActionItemsValidation]
	assert.Equal(t, models.QuestionActionItemsReview, actionItems.Type)
	assert.Equal(t, draft.ExtractedActionItems, actionItems.Items)

	nextSteps := byID[models.QIDNextStepsConfirmation]
	assert.Equal(t, models.QuestionTextEdit, nextSteps.Type)
	assert.Equal(t, "Schedule follow-up call", nextSteps.SuggestedText)

	crmApproval := byID[models.QIDCRMUpdatesApproval]
	assert.Equal(t, models.QuestionCRMApproval, crmApproval.Type)
	assert.Equal(t, draft.SuggestedCRMUpdates, crmApproval.SuggestedUpdates)

	stage := byID[models.QIDDealStageUpdate]
	assert.Equal(t, models.QuestionStageSelection, stage.Type)
	assert.Equal(t, "Proposal", stage.SuggestedStage)
	assert.Equal(t, DealStages, stage.StageOptions)

	notes := byID[models.QIDAdditionalNotes]
	assert.Equal(t, models.QuestionTextArea, notes.Type)
}
