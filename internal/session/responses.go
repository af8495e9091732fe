package session

import (
	"strings"

	commonerrors "meetingsync/internal/common/errors"
	"meetingsync/internal/common/validation"
	"meetingsync/internal/models"
)

// Response payload schemas, keyed by question type. Payloads are a closed
// tagged union: the question's type selects the schema, never the payload's
// shape.
var responseSchemas = map[models.QuestionType]validation.JSONSchema{
	models.QuestionConfirmation: {
		Type: "object",
		Properties: map[string]validation.Property{
			"confirmed":   {Type: "boolean"},
			"edited_text": {Type: "string"},
		},
		Required: []string{"confirmed"},
	},
	models.QuestionMultiSelect: {
		Type: "object",
		Properties: map[string]validation.Property{
			"selected_options": {Type: "array", Items: &validation.Property{Type: "string"}},
		},
		Required: []string{"selected_options"},
	},
	models.QuestionActionItemsReview: {
		Type: "object",
		Properties: map[string]validation.Property{
			"approved_items": {Type: "array"},
		},
		Required: []string{"approved_items"},
	},
	models.QuestionTextEdit: {
		Type: "object",
		Properties: map[string]validation.Property{
			"text": {Type: "string"},
		},
		Required: []string{"text"},
	},
	models.QuestionCRMApproval: {
		Type: "object",
		Properties: map[string]validation.Property{
			"approved":      {Type: "boolean"},
			"modifications": {Type: "object"},
		},
		Required: []string{"approved"},
	},
	models.QuestionStageSelection: {
		Type: "object",
		Properties: map[string]validation.Property{
			"selected_stage": {},
		},
		Required: []string{"selected_stage"},
	},
}

// ValidateResponse checks a raw payload against the schema for its
// question's type. text_area payloads are unconstrained.
func ValidateResponse(question *models.Question, payload map[string]interface{}) error {
	if question.Type == models.QuestionTextArea {
		return nil
	}
	schema, ok := responseSchemas[question.Type]
	if !ok {
		return commonerrors.NewInvalidResponseError(question.ID, "unknown question type "+string(question.Type))
	}
	result := validation.ValidateInput(payload, schema)
	if !result.Valid {
		return commonerrors.NewInvalidResponseError(question.ID, strings.Join(result.GetErrorMessages(), "; "))
	}
	return nil
}

// Typed accessors over accepted payloads. The payload has already passed
// schema validation, so lookups only need soft type assertions.

func confirmationConfirmed(resp models.RepResponse) bool {
	confirmed, _ := resp.Response["confirmed"].(bool)
	return confirmed
}

func confirmationEditedText(resp models.RepResponse) string {
	text, _ := resp.Response["edited_text"].(string)
	return text
}

func selectedOptions(resp models.RepResponse) []string {
	raw, _ := resp.Response["selected_options"].([]interface{})
	options := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			options = append(options, s)
		}
	}
	return options
}

func approvedItems(resp models.RepResponse) []map[string]interface{} {
	raw, _ := resp.Response["approved_items"].([]interface{})
	items := make([]map[string]interface{}, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case map[string]interface{}:
			items = append(items, v)
		case string:
			items = append(items, map[string]interface{}{"description": v})
		}
	}
	return items
}

func editedText(resp models.RepResponse) string {
	text, _ := resp.Response["text"].(string)
	return text
}

func crmApproved(resp models.RepResponse) bool {
	approved, _ := resp.Response["approved"].(bool)
	return approved
}

func crmModifications(resp models.RepResponse) map[string]interface{} {
	mods, _ := resp.Response["modifications"].(map[string]interface{})
	return mods
}

func selectedStage(resp models.RepResponse) (interface{}, bool) {
	stage, ok := resp.Response["selected_stage"]
	return stage, ok
}

func textAreaContent(resp models.RepResponse) string {
	if text, ok := resp.Response["text"].(string); ok {
		return text
	}
	if notes, ok := resp.Response["notes"].(string); ok {
		return notes
	}
	return ""
}
