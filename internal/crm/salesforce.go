package crm

import (
	"context"
	"fmt"

	"meetingsync/internal/models"
)

// SalesforceClient talks to the Salesforce REST API. Meeting details land on
// activity fields plus custom extension fields; deals are Opportunity
// records keyed by StageName.
type SalesforceClient struct {
	*baseClient
}

func (c *SalesforceClient) System() models.CRMSystem {
	return models.CRMSalesforce
}

func (c *SalesforceClient) Authenticate(ctx context.Context) error {
	_, err := c.tokens.Token(ctx)
	return err
}

func (c *SalesforceClient) FormatMeetingData(outcome MeetingOutcome) map[string]interface{} {
	data := map[string]interface{}{
		"Subject":      outcome.Title,
		"Description":  outcome.Summary,
		"ActivityDate": outcome.MeetingDate.Format("2006-01-02"),
		"Status":       "Completed",
		"Type":         "Meeting",
	}
	if outcome.Outcome != "" {
		data["Meeting_Outcome__c"] = outcome.Outcome
	}
	for key, value := range outcome.Updates {
		switch key {
		case "deal_stage":
			data["Deal_Stage__c"] = value
		case "meeting_summary":
			// Already carried in Description.
		default:
			data[key] = value
		}
	}
	return data
}

func (c *SalesforceClient) FormatTaskData(task TaskData) map[string]interface{} {
	data := map[string]interface{}{
		"Subject":     task.Subject,
		"Description": task.Description,
		"Status":      "Not Started",
		"Priority":    salesforcePriority(task.Priority),
	}
	if task.DueDate != "" {
		data["ActivityDate"] = task.DueDate
	}
	if task.ParentRecordID != "" {
		data["WhatId"] = task.ParentRecordID
	}
	return data
}

func (c *SalesforceClient) UpdateRecord(ctx context.Context, objectType, recordID string, fields map[string]interface{}) (map[string]interface{}, error) {
	return c.doRequest(ctx, "PATCH", fmt.Sprintf("/sobjects/%s/%s", objectType, recordID), fields)
}

func (c *SalesforceClient) CreateTask(ctx context.Context, task TaskData) (map[string]interface{}, error) {
	return c.doRequest(ctx, "POST", "/sobjects/Task", c.FormatTaskData(task))
}

func (c *SalesforceClient) UpdateOpportunityStage(ctx context.Context, opportunityID, stage string) error {
	_, err := c.doRequest(ctx, "PATCH", "/sobjects/Opportunity/"+opportunityID, map[string]interface{}{
		"StageName": stage,
	})
	return err
}

func (c *SalesforceClient) GetOpportunityDetails(ctx context.Context, opportunityID string) (*OpportunityDetails, error) {
	raw, err := c.doRequest(ctx, "GET", "/sobjects/Opportunity/"+opportunityID, nil)
	if err != nil {
		return nil, err
	}
	return &OpportunityDetails{
		ID:          opportunityID,
		Stage:       stringField(raw, "StageName"),
		Probability: floatField(raw, "Probability"),
		Amount:      floatField(raw, "Amount"),
		CloseDate:   stringField(raw, "CloseDate"),
		Raw:         raw,
	}, nil
}

func salesforcePriority(priority string) string {
	switch priority {
	case "high", "urgent":
		return "High"
	case "low":
		return "Low"
	default:
		return "Normal"
	}
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func floatField(m map[string]interface{}, key string) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}
