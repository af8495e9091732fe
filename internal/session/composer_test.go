// internal/session/composer_test.go
package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"meetingsync/internal/models"
)

func sessionWithResponses(responses map[string]models.RepResponse) *models.ValidationSession {
	return &models.ValidationSession{
		ID:           "session-1",
		RepResponses: responses,
	}
}

func response(qtype models.QuestionType, payload map[string]interface{}) models.RepResponse {
	return models.RepResponse{Response: payload, Type: qtype}
}

func TestComposeSummary_ConfirmedSummaryKeepsDraftText(t *testing.T) {
	draft := fullDraft()
	sess := sessionWithResponses(map[string]models.RepResponse{
		models.QIDSummaryAccuracy: response(models.QuestionConfirmation, map[string]interface{}{
			"confirmed": true,
		}),
	})

	summary := ComposeSummary(draft, sess)

	assert.True(t, strings.HasPrefix(summary, draft.AIGeneratedSummary))
}

func TestComposeSummary_EditedSummaryReplacesDraftText(t *testing.T) {
	draft := fullDraft()
	sess := sessionWithResponses(map[string]models.RepResponse{
		models.QIDSummaryAccuracy: response(models.QuestionConfirmation, map[string]interface{}{
			"confirmed":   false,
			"edited_text": "We agreed on the pilot scope.",
		}),
	})

	summary := ComposeSummary(draft, sess)

	assert.True(t, strings.HasPrefix(summary, "We agreed on the pilot scope."))
	assert.NotContains(t, summary, draft.AIGeneratedSummary)
}

func TestComposeSummary_KeyPointsUseSelection(t *testing.T) {
	draft := fullDraft()
	sess := sessionWithResponses(map[string]models.RepResponse{
		models.QIDKeyPointsValidation: response(models.QuestionMultiSelect, map[string]interface{}{
			"selected_options": []interface{}{"Budget approved"},
		}),
	})

	summary := ComposeSummary(draft, sess)

	assert.Contains(t, summary, "Key Points:\n- Budget approved")
	assert.NotContains(t, summary, "Decision maker present")
}

func TestComposeSummary_KeyPointsFallBackToDraftWhenUnanswered(t *testing.T) {
	draft := fullDraft()
	sess := sessionWithResponses(map[string]models.RepResponse{})

	summary := ComposeSummary(draft, sess)

	assert.Contains(t, summary, "Budget approved")
	assert.Contains(t, summary, "Decision maker present")
}

func TestComposeSummary_ActionItemFormatting(t *testing.T) {
	draft := fullDraft()
	sess := sessionWithResponses(map[string]models.RepResponse{
		models.QIDActionItemsValidation: response(models.QuestionActionItemsReview, map[string]interface{}{
			"approved_items": []interface{}{
				map[string]interface{}{
					"description": "Send proposal",
					"assignee":    "alex",
					"due_date":    "2026-09-05",
				},
				map[string]interface{}{"description": "Book demo room"},
				"Follow up by email",
				map[string]interface{}{"assignee": "orphan"}, // no description, dropped
			},
		}),
	})

	summary := ComposeSummary(draft, sess)

	assert.Contains(t, summary, "- Send proposal (alex), due 2026-09-05")
	assert.Contains(t, summary, "- Book demo room")
	assert.Contains(t, summary, "- Follow up by email")
	assert.NotContains(t, summary, "orphan")
}

func TestComposeSummary_NextStepsAndNotes(t *testing.T) {
	draft := fullDraft()
	sess := sessionWithResponses(map[string]models.RepResponse{
		models.QIDNextStepsConfirmation: response(models.QuestionTextEdit, map[string]interface{}{
			"text": "Call them Monday.",
		}),
		models.QIDAdditionalNotes: response(models.QuestionTextArea, map[string]interface{}{
			"notes": "Champion is moving teams next quarter.",
		}),
	})

	summary := ComposeSummary(draft, sess)

	assert.Contains(t, summary, "Next Steps:\nCall them Monday.")
	assert.Contains(t, summary, "Additional Notes:\nChampion is moving teams next quarter.")
}

func TestComposeSummary_SectionsJoinedByBlankLine(t *testing.T) {
	draft := &models.DraftSummary{AIGeneratedSummary: "Base summary.", KeyPoints: []string{"One"}}
	sess := sessionWithResponses(map[string]models.RepResponse{})

	summary := ComposeSummary(draft, sess)

	assert.Equal(t, "Base summary.\n\nKey Points:\n- One", summary)
}

func TestComposeSummary_EmptyDraftAndNoResponses(t *testing.T) {
	summary := ComposeSummary(&models.DraftSummary{}, sessionWithResponses(nil))
	assert.Empty(t, summary)
}
