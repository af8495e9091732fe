package crm

import (
	"context"
	"fmt"

	"meetingsync/internal/models"
)

// CreatioClient talks to the Creatio OData API. Meeting details land on Usr*
// custom columns; enumerated task fields are nested {Name: ...} lookup
// objects rather than flat strings.
type CreatioClient struct {
	*baseClient
}

func (c *CreatioClient) System() models.CRMSystem {
	return models.CRMCreatio
}

func (c *CreatioClient) Authenticate(ctx context.Context) error {
	_, err := c.tokens.Token(ctx)
	return err
}

func (c *CreatioClient) FormatMeetingData(outcome MeetingOutcome) map[string]interface{} {
	data := map[string]interface{}{
		"UsrMeetingSummary": outcome.Title,
		"UsrMeetingNotes":   outcome.Summary,
	}
	if outcome.Outcome != "" {
		data["UsrMeetingOutcome"] = outcome.Outcome
	}
	if stage, ok := outcome.Updates["deal_stage"]; ok {
		data["UsrDealStage"] = stage
	}
	return data
}

func (c *CreatioClient) FormatTaskData(task TaskData) map[string]interface{} {
	data := map[string]interface{}{
		"Title":            task.Subject,
		"Notes":            task.Description,
		"ActivityCategory": map[string]interface{}{"Name": "To do"},
		"Status":           map[string]interface{}{"Name": "Not started"},
		"Priority":         map[string]interface{}{"Name": creatioPriority(task.Priority)},
	}
	if task.DueDate != "" {
		data["DueDate"] = task.DueDate
	}
	if task.ParentRecordID != "" {
		data["ParentActivityId"] = task.ParentRecordID
	}
	return data
}

func (c *CreatioClient) UpdateRecord(ctx context.Context, objectType, recordID string, fields map[string]interface{}) (map[string]interface{}, error) {
	return c.doRequest(ctx, "PATCH", fmt.Sprintf("/odata/%s(%s)", objectType, recordID), fields)
}

func (c *CreatioClient) CreateTask(ctx context.Context, task TaskData) (map[string]interface{}, error) {
	return c.doRequest(ctx, "POST", "/odata/Activity", c.FormatTaskData(task))
}

func (c *CreatioClient) UpdateOpportunityStage(ctx context.Context, opportunityID, stage string) error {
	_, err := c.doRequest(ctx, "PATCH", fmt.Sprintf("/odata/Opportunity(%s)", opportunityID), map[string]interface{}{
		"Stage": map[string]interface{}{"Name": stage},
	})
	return err
}

func (c *CreatioClient) GetOpportunityDetails(ctx context.Context, opportunityID string) (*OpportunityDetails, error) {
	raw, err := c.doRequest(ctx, "GET", fmt.Sprintf("/odata/Opportunity(%s)", opportunityID), nil)
	if err != nil {
		return nil, err
	}
	stage := stringField(raw, "Stage")
	if nested, ok := raw["Stage"].(map[string]interface{}); ok {
		stage = stringField(nested, "Name")
	}
	return &OpportunityDetails{
		ID:          opportunityID,
		Stage:       stage,
		Probability: floatField(raw, "Probability"),
		Amount:      floatField(raw, "Amount"),
		CloseDate:   stringField(raw, "DueDate"),
		Raw:         raw,
	}, nil
}

func creatioPriority(priority string) string {
	switch priority {
	case "high", "urgent":
		return "High"
	case "low":
		return "Low"
	default:
		return "Medium"
	}
}
