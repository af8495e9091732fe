package session

import (
	"fmt"
	"strings"

	"meetingsync/internal/models"
)

// ComposeSummary builds the final validated summary text from the draft and
// the rep's accepted responses. Sections whose source is empty are omitted.
func ComposeSummary(draft *models.DraftSummary, session *models.ValidationSession) string {
	var sections []string

	base := draft.AIGeneratedSummary
	if accuracy, ok := session.RepResponses[models.QIDSummaryAccuracy]; ok {
		if !confirmationConfirmed(accuracy) {
			if edited := confirmationEditedText(accuracy); edited != "" {
				base = edited
			}
		}
	}
	if base != "" {
		sections = append(sections, base)
	}

	keyPoints := draft.KeyPoints
	if kp, ok := session.RepResponses[models.QIDKeyPointsValidation]; ok {
		keyPoints = selectedOptions(kp)
	}
	if len(keyPoints) > 0 {
		sections = append(sections, bulletSection("Key Points", keyPoints))
	}

	if items, ok := session.RepResponses[models.QIDActionItemsValidation]; ok {
		if lines := actionItemLines(approvedItems(items)); len(lines) > 0 {
			sections = append(sections, bulletSection("Action Items", lines))
		}
	}

	if next, ok := session.RepResponses[models.QIDNextStepsConfirmation]; ok {
		if text := editedText(next); text != "" {
			sections = append(sections, "Next Steps:\n"+text)
		}
	}

	if notes, ok := session.RepResponses[models.QIDAdditionalNotes]; ok {
		if text := textAreaContent(notes); text != "" {
			sections = append(sections, "Additional Notes:\n"+text)
		}
	}

	return strings.Join(sections, "\n\n")
}

func bulletSection(title string, lines []string) string {
	var b strings.Builder
	b.WriteString(title)
	b.WriteString(":")
	for _, line := range lines {
		b.WriteString("\n- ")
		b.WriteString(line)
	}
	return b.String()
}

func actionItemLines(items []map[string]interface{}) []string {
	var lines []string
	for _, item := range items {
		description, _ := item["description"].(string)
		if description == "" {
			continue
		}
		line := description
		if assignee, ok := item["assignee"].(string); ok && assignee != "" {
			line = fmt.Sprintf("%s (%s)", line, assignee)
		}
		if due, ok := item["due_date"].(string); ok && due != "" {
			line = fmt.Sprintf("%s, due %s", line, due)
		}
		lines = append(lines, line)
	}
	return lines
}
