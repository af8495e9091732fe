package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	commonerrors "meetingsync/internal/common/errors"
	"meetingsync/internal/models"
)

// draftSchema validates incoming draft summary documents produced by the
// upstream AI collaborator before they enter the pipeline.
const draftSchema = `{
	"type": "object",
	"properties": {
		"meeting_id": {"type": "string", "minLength": 1},
		"ai_generated_summary": {"type": "string", "minLength": 1},
		"key_points": {"type": "array", "items": {"type": "string"}},
		"extracted_action_items": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"description": {"type": "string", "minLength": 1},
					"assignee": {"type": "string"},
					"due_date": {"type": "string"},
					"priority": {"type": "string", "enum": ["low", "normal", "high", "urgent"]}
				},
				"required": ["description"]
			}
		},
		"suggested_next_steps": {"type": "array", "items": {"type": "string"}},
		"decisions_made": {"type": "array", "items": {"type": "string"}},
		"suggested_crm_updates": {"type": "object"},
		"confidence_score": {"type": "number", "minimum": 0, "maximum": 1},
		"meeting_outcome": {
			"type": "string",
			"enum": ["very_positive", "positive", "neutral", "negative"]
		}
	},
	"required": ["meeting_id", "ai_generated_summary"]
}`

var compiledDraftSchema *gojsonschema.Schema

func init() {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(draftSchema))
	if err != nil {
		panic(fmt.Sprintf("invalid draft schema: %v", err))
	}
	compiledDraftSchema = schema
}

// draftDocument is the snake_case wire shape the AI collaborator emits.
type draftDocument struct {
	MeetingID          string   `json:"meeting_id"`
	AIGeneratedSummary string   `json:"ai_generated_summary"`
	KeyPoints          []string `json:"key_points"`
	ExtractedActionItems []struct {
		Description string `json:"description"`
		Assignee    string `json:"assignee"`
		DueDate     string `json:"due_date"`
		Priority    string `json:"priority"`
	} `json:"extracted_action_items"`
	SuggestedNextSteps  []string               `json:"suggested_next_steps"`
	DecisionsMade       []string               `json:"decisions_made"`
	SuggestedCRMUpdates map[string]interface{} `json:"suggested_crm_updates"`
	ConfidenceScore     float64                `json:"confidence_score"`
	MeetingOutcome      string                 `json:"meeting_outcome"`
}

// ParseDraft validates a raw draft summary document and converts it into the
// internal model, assigning it a fresh id.
func ParseDraft(raw []byte) (*models.DraftSummary, error) {
	result, err := compiledDraftSchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, commonerrors.NewInputParsingError(err)
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, commonerrors.NewInputParsingError(
			fmt.Errorf("draft summary failed validation: %s", strings.Join(problems, "; ")))
	}

	var doc draftDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, commonerrors.NewInputParsingError(err)
	}

	draft := &models.DraftSummary{
		ID:                  uuid.New().String(),
		MeetingID:           doc.MeetingID,
		AIGeneratedSummary:  doc.AIGeneratedSummary,
		KeyPoints:           doc.KeyPoints,
		SuggestedNextSteps:  doc.SuggestedNextSteps,
		DecisionsMade:       doc.DecisionsMade,
		SuggestedCRMUpdates: doc.SuggestedCRMUpdates,
		ConfidenceScore:     doc.ConfidenceScore,
		MeetingOutcome:      doc.MeetingOutcome,
		CreatedAt:           time.Now().UTC(),
	}
	for _, item := range doc.ExtractedActionItems {
		draft.ExtractedActionItems = append(draft.ExtractedActionItems, models.ActionItem{
			Description: item.Description,
			Assignee:    item.Assignee,
			DueDate:     item.DueDate,
			Priority:    item.Priority,
		})
	}
	return draft, nil
}
