// internal/session/planner_test.go
package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"meetingsync/internal/models"
)

func TestPlanCRMUpdates_ApprovedSuggestionsWithModifications(t *testing.T) {
	draft := &models.DraftSummary{
		SuggestedCRMUpdates: map[string]interface{}{
			"deal_stage": "Proposal",
			"amount":     1000.0,
		},
	}
	sess := sessionWithResponses(map[string]models.RepResponse{
		models.QIDCRMUpdatesApproval: response(models.QuestionCRMApproval, map[string]interface{}{
			"approved":      true,
			"modifications": map[string]interface{}{"amount": 5000.0},
		}),
	})

	updates := PlanCRMUpdates(draft, sess, "final summary")

	assert.Equal(t, "Proposal", updates["deal_stage"])
	assert.Equal(t, 5000.0, updates["amount"], "modification overrides the suggestion")
	assert.Equal(t, "final summary", updates["meeting_summary"])
}

func TestPlanCRMUpdates_DeclinedApprovalDropsSuggestions(t *testing.T) {
	draft := &models.DraftSummary{
		SuggestedCRMUpdates: map[string]interface{}{"deal_stage": "Proposal"},
	}
	sess := sessionWithResponses(map[string]models.RepResponse{
		models.QIDCRMUpdatesApproval: response(models.QuestionCRMApproval, map[string]interface{}{
			"approved": false,
		}),
	})

	updates := PlanCRMUpdates(draft, sess, "final summary")

	assert.NotContains(t, updates, "deal_stage")
	assert.Equal(t, map[string]interface{}{"meeting_summary": "final summary"}, updates)
}

func TestPlanCRMUpdates_StageSelectionAppliesIndependently(t *testing.T) {
	draft := &models.DraftSummary{
		SuggestedCRMUpdates: map[string]interface{}{"amount": 1000.0},
	}
	sess := sessionWithResponses(map[string]models.RepResponse{
		models.QIDCRMUpdatesApproval: response(models.QuestionCRMApproval, map[string]interface{}{
			"approved": false,
		}),
		models.QIDDealStageUpdate: response(models.QuestionStageSelection, map[string]interface{}{
			"selected_stage": "Negotiation",
		}),
	})

	updates := PlanCRMUpdates(draft, sess, "final summary")

	assert.Equal(t, "Negotiation", updates["deal_stage"])
	assert.NotContains(t, updates, "amount")
}

func TestPlanCRMUpdates_StageSelectionOverridesApprovedStage(t *testing.T) {
	draft := &models.DraftSummary{
		SuggestedCRMUpdates: map[string]interface{}{"deal_stage": "Proposal"},
	}
	sess := sessionWithResponses(map[string]models.RepResponse{
		models.QIDCRMUpdatesApproval: response(models.QuestionCRMApproval, map[string]interface{}{
			"approved": true,
		}),
		models.QIDDealStageUpdate: response(models.QuestionStageSelection, map[string]interface{}{
			"selected_stage": "Closed Won",
		}),
	})

	updates := PlanCRMUpdates(draft, sess, "final summary")

	assert.Equal(t, "Closed Won", updates["deal_stage"])
}

func TestPlanCRMUpdates_NonStringStagePreserved(t *testing.T) {
	sess := sessionWithResponses(map[string]models.RepResponse{
		models.QIDDealStageUpdate: response(models.QuestionStageSelection, map[string]interface{}{
			"selected_stage": 3.0,
		}),
	})

	updates := PlanCRMUpdates(&models.DraftSummary{}, sess, "s")

	assert.Equal(t, 3.0, updates["deal_stage"])
}

func TestPlanCRMUpdates_NoResponsesStillAttachesSummary(t *testing.T) {
	updates := PlanCRMUpdates(&models.DraftSummary{
		SuggestedCRMUpdates: map[string]interface{}{"deal_stage": "Proposal"},
	}, sessionWithResponses(nil), "only the summary")

	assert.Equal(t, map[string]interface{}{"meeting_summary": "only the summary"}, updates)
}
