package crm

import (
	"context"
	"fmt"

	"meetingsync/internal/models"
)

// HubSpotClient talks to the HubSpot CRM v3 objects API. Meeting details map
// onto engagement properties prefixed hs_meeting_*; deals are keyed by
// dealstage.
type HubSpotClient struct {
	*baseClient
}

func (c *HubSpotClient) System() models.CRMSystem {
	return models.CRMHubSpot
}

func (c *HubSpotClient) Authenticate(ctx context.Context) error {
	_, err := c.tokens.Token(ctx)
	return err
}

func (c *HubSpotClient) FormatMeetingData(outcome MeetingOutcome) map[string]interface{} {
	properties := map[string]interface{}{
		"hs_meeting_title": outcome.Title,
		"hs_meeting_body":  outcome.Summary,
		"hs_activity_type": "MEETING",
		"hs_timestamp":     outcome.MeetingDate.UnixMilli(),
	}
	if outcome.Outcome != "" {
		properties["hs_meeting_outcome"] = hubspotOutcome(outcome.Outcome)
	}
	for key, value := range outcome.Updates {
		switch key {
		case "deal_stage":
			properties["dealstage"] = value
		case "meeting_summary":
			// Already carried in hs_meeting_body.
		default:
			properties[key] = value
		}
	}
	return map[string]interface{}{"properties": properties}
}

func (c *HubSpotClient) FormatTaskData(task TaskData) map[string]interface{} {
	properties := map[string]interface{}{
		"hs_task_subject":  task.Subject,
		"hs_task_body":     task.Description,
		"hs_task_status":   "NOT_STARTED",
		"hs_task_priority": hubspotPriority(task.Priority),
	}
	if task.DueDate != "" {
		properties["hs_task_due_date"] = task.DueDate
	}
	data := map[string]interface{}{"properties": properties}
	if task.ParentRecordID != "" {
		data["associations"] = []map[string]interface{}{
			{"to": map[string]interface{}{"id": task.ParentRecordID}},
		}
	}
	return data
}

func (c *HubSpotClient) UpdateRecord(ctx context.Context, objectType, recordID string, fields map[string]interface{}) (map[string]interface{}, error) {
	body := fields
	if _, wrapped := fields["properties"]; !wrapped {
		body = map[string]interface{}{"properties": fields}
	}
	return c.doRequest(ctx, "PATCH", fmt.Sprintf("/crm/v3/objects/%s/%s", objectType, recordID), body)
}

func (c *HubSpotClient) CreateTask(ctx context.Context, task TaskData) (map[string]interface{}, error) {
	return c.doRequest(ctx, "POST", "/crm/v3/objects/tasks", c.FormatTaskData(task))
}

func (c *HubSpotClient) UpdateOpportunityStage(ctx context.Context, opportunityID, stage string) error {
	_, err := c.doRequest(ctx, "PATCH", "/crm/v3/objects/deals/"+opportunityID, map[string]interface{}{
		"properties": map[string]interface{}{"dealstage": stage},
	})
	return err
}

func (c *HubSpotClient) GetOpportunityDetails(ctx context.Context, opportunityID string) (*OpportunityDetails, error) {
	raw, err := c.doRequest(ctx, "GET", "/crm/v3/objects/deals/"+opportunityID, nil)
	if err != nil {
		return nil, err
	}
	properties, _ := raw["properties"].(map[string]interface{})
	if properties == nil {
		properties = map[string]interface{}{}
	}
	return &OpportunityDetails{
		ID:          opportunityID,
		Stage:       stringField(properties, "dealstage"),
		Probability: floatField(properties, "hs_deal_stage_probability"),
		Amount:      floatField(properties, "amount"),
		CloseDate:   stringField(properties, "closedate"),
		Raw:         raw,
	}, nil
}

func hubspotOutcome(outcome string) string {
	switch outcome {
	case "very_positive", "positive":
		return "COMPLETED"
	case "negative":
		return "CANCELED"
	default:
		return "COMPLETED"
	}
}

func hubspotPriority(priority string) string {
	switch priority {
	case "high", "urgent":
		return "HIGH"
	case "low":
		return "LOW"
	default:
		return "MEDIUM"
	}
}
