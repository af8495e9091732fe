// internal/session/responses_test.go
package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	commonerrors "meetingsync/internal/common/errors"
	"meetingsync/internal/models"
)

func question(id string, qtype models.QuestionType) *models.Question {
	return &models.Question{ID: id, Type: qtype, Text: "test question"}
}

func TestValidateResponse(t *testing.T) {
	tests := []struct {
		name     string
		question *models.Question
		payload  map[string]interface{}
		wantErr  bool
	}{
		{
			name:     "confirmation accepted",
			question: question(models.QIDSummaryAccuracy, models.QuestionConfirmation),
			payload:  map[string]interface{}{"confirmed": true},
			wantErr:  false,
		},
		{
			name:     "confirmation with edited text",
			question: question(models.QIDSummaryAccuracy, models.QuestionConfirmation),
			payload:  map[string]interface{}{"confirmed": false, "edited_text": "Corrected summary."},
			wantErr:  false,
		},
		{
			name:     "confirmation missing confirmed",
			question: question(models.QIDSummaryAccuracy, models.QuestionConfirmation),
			payload:  map[string]interface{}{"edited_text": "text only"},
			wantErr:  true,
		},
		{
			name:     "confirmation wrong confirmed type",
			question: question(models.QIDSummaryAccuracy, models.QuestionConfirmation),
			payload:  map[string]interface{}{"confirmed": "yes"},
			wantErr:  true,
		},
		{
			name:     "confirmation extra field rejected",
			question: question(models.QIDSummaryAccuracy, models.QuestionConfirmation),
			payload:  map[string]interface{}{"confirmed": true, "mood": "great"},
			wantErr:  true,
		},
		{
			name:     "multi select accepted",
			question: question(models.QIDKeyPointsValidation, models.QuestionMultiSelect),
			payload:  map[string]interface{}{"selected_options": []interface{}{"a", "b"}},
			wantErr:  false,
		},
		{
			name:     "multi select empty selection accepted",
			question: question(models.QIDKeyPointsValidation, models.QuestionMultiSelect),
			payload:  map[string]interface{}{"selected_options": []interface{}{}},
			wantErr:  false,
		},
		{
			name:     "multi select missing selection",
			question: question(models.QIDKeyPointsValidation, models.QuestionMultiSelect),
			payload:  map[string]interface{}{},
			wantErr:  true,
		},
		{
			name:     "multi select non-array",
			question: question(models.QIDKeyPointsValidation, models.QuestionMultiSelect),
			payload:  map[string]interface{}{"selected_options": "a"},
			wantErr:  true,
		},
		{
			name:     "action items accepted",
			question: question(models.QIDActionItemsValidation, models.QuestionActionItemsReview),
			payload: map[string]interface{}{"approved_items": []interface{}{
				map[string]interface{}{"description": "Send proposal"},
			}},
			wantErr: false,
		},
		{
			name:     "action items missing list",
			question: question(models.QIDActionItemsValidation, models.QuestionActionItemsReview),
			payload:  map[string]interface{}{},
			wantErr:  true,
		},
		{
			name:     "text edit accepted",
			question: question(models.QIDNextStepsConfirmation, models.QuestionTextEdit),
			payload:  map[string]interface{}{"text": "Call them Monday."},
			wantErr:  false,
		},
		{
			name:     "text edit missing text",
			question: question(models.QIDNextStepsConfirmation, models.QuestionTextEdit),
			payload:  map[string]interface{}{},
			wantErr:  true,
		},
		{
			name:     "crm approval accepted",
			question: question(models.QIDCRMUpdatesApproval, models.QuestionCRMApproval),
			payload:  map[string]interface{}{"approved": true},
			wantErr:  false,
		},
		{
			name:     "crm approval with modifications",
			question: question(models.QIDCRMUpdatesApproval, models.QuestionCRMApproval),
			payload: map[string]interface{}{
				"approved":      true,
				"modifications": map[string]interface{}{"amount": 5000.0},
			},
			wantErr: false,
		},
		{
			name:     "crm approval missing approved",
			question: question(models.QIDCRMUpdatesApproval, models.QuestionCRMApproval),
			payload:  map[string]interface{}{"modifications": map[string]interface{}{}},
			wantErr:  true,
		},
		{
			name:     "stage selection string accepted",
			question: question(models.QIDDealStageUpdate, models.QuestionStageSelection),
			payload:  map[string]interface{}{"selected_stage": "Proposal"},
			wantErr:  false,
		},
		{
			name:     "stage selection numeric code accepted",
			question: question(models.QIDDealStageUpdate, models.QuestionStageSelection),
			payload:  map[string]interface{}{"selected_stage": 3.0},
			wantErr:  false,
		},
		{
			name:     "stage selection missing stage",
			question: question(models.QIDDealStageUpdate, models.QuestionStageSelection),
			payload:  map[string]interface{}{},
			wantErr:  true,
		},
		{
			name:     "text area unconstrained",
			question: question(models.QIDAdditionalNotes, models.QuestionTextArea),
			payload:  map[string]interface{}{"anything": []interface{}{1.0, "x"}},
			wantErr:  false,
		},
		{
			name:     "unknown question type",
			question: question("mystery", models.QuestionType("poll")),
			payload:  map[string]interface{}{"confirmed": true},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateResponse(tt.question, tt.payload)
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, commonerrors.IsCode(err, commonerrors.ErrCodeInvalidResponse))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
