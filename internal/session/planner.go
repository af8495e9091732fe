package session

import (
	"meetingsync/internal/models"
)

// PlanCRMUpdates derives the approved-updates document from the draft's
// suggestions and the rep's responses. The stage selection applies
// independently of the approval flag, and the validated summary is always
// attached. A near-empty result is legitimate when approval was declined
// but a stage was still chosen.
func PlanCRMUpdates(draft *models.DraftSummary, session *models.ValidationSession, validatedSummary string) map[string]interface{} {
	updates := map[string]interface{}{}

	if approval, ok := session.RepResponses[models.QIDCRMUpdatesApproval]; ok && crmApproved(approval) {
		for key, value := range draft.SuggestedCRMUpdates {
			updates[key] = value
		}
		for key, value := range crmModifications(approval) {
			updates[key] = value
		}
	}

	if stageResp, ok := session.RepResponses[models.QIDDealStageUpdate]; ok {
		if stage, answered := selectedStage(stageResp); answered {
			updates["deal_stage"] = stage
		}
	}

	updates["meeting_summary"] = validatedSummary
	return updates
}
