package crm

import (
	"context"
	"fmt"

	"meetingsync/internal/models"
)

// SAPC4CClient talks to the SAP Cloud for Customer OData API. Activities are
// appointments with coded type and status fields; deals live in the
// opportunity collection.
type SAPC4CClient struct {
	*baseClient
}

func (c *SAPC4CClient) System() models.CRMSystem {
	return models.CRMSAPC4C
}

func (c *SAPC4CClient) Authenticate(ctx context.Context) error {
	_, err := c.tokens.Token(ctx)
	return err
}

func (c *SAPC4CClient) FormatMeetingData(outcome MeetingOutcome) map[string]interface{} {
	data := map[string]interface{}{
		"Subject":      outcome.Title,
		"ActivityType": "APPOINTMENT",
		"Status":       "COMPLETED",
		"Notes":        outcome.Summary,
		"Duration":     "PT1H",
	}
	if nextSteps, ok := outcome.Updates["next_steps"]; ok {
		data["NextSteps"] = nextSteps
	}
	if stage, ok := outcome.Updates["deal_stage"]; ok {
		data["SalesStageCode"] = stage
	}
	return data
}

func (c *SAPC4CClient) FormatTaskData(task TaskData) map[string]interface{} {
	data := map[string]interface{}{
		"Subject":      task.Subject,
		"ActivityType": "TASK",
		"Status":       "OPEN",
		"Notes":        task.Description,
		"Priority":     sapPriorityCode(task.Priority),
	}
	if task.DueDate != "" {
		data["DueDate"] = task.DueDate
	}
	if task.ParentRecordID != "" {
		data["ParentObjectID"] = task.ParentRecordID
	}
	return data
}

func (c *SAPC4CClient) UpdateRecord(ctx context.Context, objectType, recordID string, fields map[string]interface{}) (map[string]interface{}, error) {
	return c.doRequest(ctx, "PATCH", fmt.Sprintf("/%sCollection('%s')", objectType, recordID), fields)
}

func (c *SAPC4CClient) CreateTask(ctx context.Context, task TaskData) (map[string]interface{}, error) {
	return c.doRequest(ctx, "POST", "/TaskCollection", c.FormatTaskData(task))
}

func (c *SAPC4CClient) UpdateOpportunityStage(ctx context.Context, opportunityID, stage string) error {
	_, err := c.doRequest(ctx, "PATCH", fmt.Sprintf("/OpportunityCollection('%s')", opportunityID), map[string]interface{}{
		"SalesStageCode": stage,
	})
	return err
}

func (c *SAPC4CClient) GetOpportunityDetails(ctx context.Context, opportunityID string) (*OpportunityDetails, error) {
	raw, err := c.doRequest(ctx, "GET", fmt.Sprintf("/OpportunityCollection('%s')", opportunityID), nil)
	if err != nil {
		return nil, err
	}
	payload := raw
	if d, ok := raw["d"].(map[string]interface{}); ok {
		payload = d
	}
	return &OpportunityDetails{
		ID:          opportunityID,
		Stage:       stringField(payload, "SalesStageCode"),
		Probability: floatField(payload, "ProbabilityPercent"),
		Amount:      floatField(payload, "ExpectedValue"),
		CloseDate:   stringField(payload, "ExpectedDecisionDate"),
		Raw:         raw,
	}, nil
}

func sapPriorityCode(priority string) string {
	switch priority {
	case "high", "urgent":
		return "1"
	case "low":
		return "7"
	default:
		return "3"
	}
}
