// internal/crm/providers_test.go
package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetingsync/internal/common/config"
	"meetingsync/internal/common/logger"
	"meetingsync/internal/models"
)

func testMeetingOutcome() MeetingOutcome {
	return MeetingOutcome{
		Title:       "Meeting summary: meet-42",
		Summary:     "Discussed renewal pricing.",
		Outcome:     "positive",
		MeetingDate: time.Date(2026, 8, 20, 14, 0, 0, 0, time.UTC),
		Updates: map[string]interface{}{
			"deal_stage":      "Proposal",
			"meeting_summary": "Discussed renewal pricing.",
			"amount":          12500.0,
		},
	}
}

func TestFormatMeetingData_Salesforce(t *testing.T) {
	data := (&SalesforceClient{}).FormatMeetingData(testMeetingOutcome())

	assert.Equal(t, "Meeting summary: meet-42", data["Subject"])
	assert.Equal(t, "Discussed renewal pricing.", data["Description"])
	assert.Equal(t, "2026-08-20", data["ActivityDate"])
	assert.Equal(t, "Completed", data["Status"])
	assert.Equal(t, "positive", data["Meeting_Outcome__c"])
	assert.Equal(t, "Proposal", data["Deal_Stage__c"])
	assert.Equal(t, 12500.0, data["amount"], "unmapped updates pass through")
	assert.NotContains(t, data, "meeting_summary", "summary is carried in Description")
}

func TestFormatMeetingData_HubSpot(t *testing.T) {
	data := (&HubSpotClient{}).FormatMeetingData(testMeetingOutcome())

	properties, ok := data["properties"].(map[string]interface{})
	require.True(t, ok, "HubSpot payloads wrap fields in properties")
	assert.Equal(t, "Meeting summary: meet-42", properties["hs_meeting_title"])
	assert.Equal(t, "Discussed renewal pricing.", properties["hs_meeting_body"])
	assert.Equal(t, "COMPLETED", properties["hs_meeting_outcome"])
	assert.Equal(t, "Proposal", properties["dealstage"])
	assert.NotContains(t, properties, "meeting_summary")
}

func TestFormatMeetingData_SAPC4C(t *testing.T) {
	data := (&SAPC4CClient{}).FormatMeetingData(testMeetingOutcome())

	assert.Equal(t, "APPOINTMENT", data["ActivityType"])
	assert.Equal(t, "COMPLETED", data["Status"])
	assert.Equal(t, "Discussed renewal pricing.", data["Notes"])
	assert.Equal(t, "Proposal", data["SalesStageCode"])
}

func TestFormatMeetingData_Creatio(t *testing.T) {
	data := (&CreatioClient{}).FormatMeetingData(testMeetingOutcome())

	assert.Equal(t, "Meeting summary: meet-42", data["UsrMeetingSummary"])
	assert.Equal(t, "Discussed renewal pricing.", data["UsrMeetingNotes"])
	assert.Equal(t, "positive", data["UsrMeetingOutcome"])
	assert.Equal(t, "Proposal", data["UsrDealStage"])
}

func TestFormatTaskData_PriorityMapping(t *testing.T) {
	task := TaskData{Subject: "Send proposal", Description: "Include Q4 pricing", DueDate: "2026-09-05", Priority: "high", ParentRecordID: "lead-7"}

	sf := (&SalesforceClient{}).FormatTaskData(task)
	assert.Equal(t, "High", sf["Priority"])
	assert.Equal(t, "lead-7", sf["WhatId"])

	hs := (&HubSpotClient{}).FormatTaskData(task)
	hsProps := hs["properties"].(map[string]interface{})
	assert.Equal(t, "HIGH", hsProps["hs_task_priority"])
	assert.NotNil(t, hs["associations"])

	sap := (&SAPC4CClient{}).FormatTaskData(task)
	assert.Equal(t, "1", sap["Priority"])
	assert.Equal(t, "lead-7", sap["ParentObjectID"])

	creatio := (&CreatioClient{}).FormatTaskData(task)
	priority := creatio["Priority"].(map[string]interface{})
	assert.Equal(t, "High", priority["Name"], "Creatio enumerations are lookup objects")
}

func TestFormatTaskData_DefaultPriority(t *testing.T) {
	task := TaskData{Subject: "Follow up", Description: "Call back next week"}

	assert.Equal(t, "Normal", (&SalesforceClient{}).FormatTaskData(task)["Priority"])
	assert.Equal(t, "3", (&SAPC4CClient{}).FormatTaskData(task)["Priority"])
}

// opportunityProvider builds a provider client whose API answers every call
// with the given body.
func opportunityProvider(t *testing.T, system models.CRMSystem, body map[string]interface{}) Provider {
	t.Helper()

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "test-token", ExpiresIn: 3600})
	}))
	t.Cleanup(tokenServer.Close)

	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(apiServer.Close)

	provider, err := NewProvider(system, config.ProviderConfig{
		TokenURL:          tokenServer.URL,
		BaseURL:           apiServer.URL,
		ClientID:          "client-id",
		ClientSecret:      "client-secret",
		RequestsPerMinute: 600,
	}, logger.NewTestLogger(t))
	require.NoError(t, err)
	return provider
}

func TestGetOpportunityDetails_Salesforce(t *testing.T) {
	provider := opportunityProvider(t, models.CRMSalesforce, map[string]interface{}{
		"StageName":   "Proposal",
		"Probability": 60.0,
		"Amount":      12500.0,
		"CloseDate":   "2026-09-30",
	})

	details, err := provider.GetOpportunityDetails(context.Background(), "opp-1")

	require.NoError(t, err)
	assert.Equal(t, "Proposal", details.Stage)
	assert.Equal(t, 60.0, details.Probability)
	assert.Equal(t, 12500.0, details.Amount)
	assert.Equal(t, "2026-09-30", details.CloseDate)
}

func TestGetOpportunityDetails_SAPC4CUnwrapsODataEnvelope(t *testing.T) {
	provider := opportunityProvider(t, models.CRMSAPC4C, map[string]interface{}{
		"d": map[string]interface{}{
			"SalesStageCode":       "02",
			"ProbabilityPercent":   40.0,
			"ExpectedValue":        9000.0,
			"ExpectedDecisionDate": "2026-10-15",
		},
	})

	details, err := provider.GetOpportunityDetails(context.Background(), "opp-2")

	require.NoError(t, err)
	assert.Equal(t, "02", details.Stage)
	assert.Equal(t, 40.0, details.Probability)
	assert.Equal(t, 9000.0, details.Amount)
}

func TestGetOpportunityDetails_CreatioNestedStage(t *testing.T) {
	provider := opportunityProvider(t, models.CRMCreatio, map[string]interface{}{
		"Stage":       map[string]interface{}{"Name": "Negotiation"},
		"Probability": 55.0,
		"Amount":      20000.0,
	})

	details, err := provider.GetOpportunityDetails(context.Background(), "opp-3")

	require.NoError(t, err)
	assert.Equal(t, "Negotiation", details.Stage)
	assert.Equal(t, 55.0, details.Probability)
}

func TestNewRegistry_OnlyConfiguredProviders(t *testing.T) {
	cfg := config.CRMConfig{
		Salesforce: config.ProviderConfig{
			TokenURL:     "https://login.example.com/token",
			BaseURL:      "https://api.example.com",
			ClientID:     "id",
			ClientSecret: "secret",
		},
		// HubSpot has no credentials and must be absent.
	}

	registry, err := NewRegistry(cfg, logger.NewNoOpLogger())
	require.NoError(t, err)

	assert.Equal(t, []models.CRMSystem{models.CRMSalesforce}, registry.Systems())

	_, err = registry.Get(models.CRMSalesforce)
	assert.NoError(t, err)
	_, err = registry.Get(models.CRMHubSpot)
	assert.Error(t, err)
}
