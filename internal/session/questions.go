package session

import (
	"fmt"
	"strings"

	"meetingsync/internal/models"
)

// DealStages is the stage vocabulary offered to reps and produced by the
// suggestion heuristic.
var DealStages = []string{
	"Qualified",
	"Demo Scheduled",
	"Proposal",
	"Negotiation",
	"In Progress",
	"Closed Won",
	"Closed Lost",
}

// stageKeywords is evaluated in order; the first group with a match wins.
var stageKeywords = []struct {
	stage    string
	keywords []string
}{
	{"Closed Won", []string{"signed", "contract", "agreement", "closed"}},
	{"Proposal", []string{"proposal", "quote", "pricing"}},
	{"Demo Scheduled", []string{"demo", "presentation", "showcase"}},
	{"Qualified", []string{"qualified", "budget", "timeline"}},
	{"Closed Lost", []string{"not interested", "no budget", "postpone"}},
}

// SuggestDealStage scans the summary text for stage keywords. Matching is
// case-insensitive and first match wins, so a summary mentioning both
// "signed" and "proposal" suggests Closed Won.
func SuggestDealStage(summary string) string {
	lower := strings.ToLower(summary)
	for _, group := range stageKeywords {
		for _, keyword := range group.keywords {
			if strings.Contains(lower, keyword) {
				return group.stage
			}
		}
	}
	return "In Progress"
}

// GenerateQuestions builds the ordered question list for a draft. Questions
// whose source material is empty are skipped entirely; the deal stage
// question appears only when the meeting has an associated commercial
// record.
func GenerateQuestions(draft *models.DraftSummary, hasLead bool) []models.Question {
	questions := []models.Question{
		{
			ID:            models.QIDSummaryAccuracy,
			Type:          models.QuestionConfirmation,
			Text:          "Is this summary accurate? If not, provide a corrected version.",
			Required:      true,
			SuggestedText: draft.AIGeneratedSummary,
		},
	}

	if len(draft.KeyPoints) > 0 {
		questions = append(questions, models.Question{
			ID:       models.QIDKeyPointsValidation,
			Type:     models.QuestionMultiSelect,
			Text:     "Which of these key points should be kept?",
			Required: true,
			Options:  draft.KeyPoints,
		})
	}

	if len(draft.ExtractedActionItems) > 0 {
		questions = append(questions, models.Question{
			ID:       models.QIDActionItemsValidation,
			Type:     models.QuestionActionItemsReview,
			Text:     "Review the extracted action items and approve or adjust them.",
			Required: true,
			Items:    draft.ExtractedActionItems,
		})
	}

	if len(draft.SuggestedNextSteps) > 0 {
		questions = append(questions, models.Question{
			ID:            models.QIDNextStepsConfirmation,
			Type:          models.QuestionTextEdit,
			Text:          "Confirm or edit the suggested next steps.",
			Required:      true,
			SuggestedText: strings.Join(draft.SuggestedNextSteps, "\n"),
		})
	}

	if len(draft.SuggestedCRMUpdates) > 0 {
		questions = append(questions, models.Question{
			ID:               models.QIDCRMUpdatesApproval,
			Type:             models.QuestionCRMApproval,
			Text:             "Approve these suggested CRM updates?",
			Required:         true,
			SuggestedUpdates: draft.SuggestedCRMUpdates,
		})
	}

	if hasLead {
		suggested := SuggestDealStage(draft.AIGeneratedSummary)
		questions = append(questions, models.Question{
			ID:             models.QIDDealStageUpdate,
			Type:           models.QuestionStageSelection,
			Text:           fmt.Sprintf("Based on this meeting, the deal stage looks like %q. Select the current stage.", suggested),
			Required:       false,
			SuggestedStage: suggested,
			StageOptions:   DealStages,
		})
	}

	questions = append(questions, models.Question{
		ID:       models.QIDAdditionalNotes,
		Type:     models.QuestionTextArea,
		Text:     "Anything else worth recording about this meeting?",
		Required: false,
	})

	return questions
}
