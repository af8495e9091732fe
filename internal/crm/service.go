package crm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"meetingsync/internal/common/logger"
	"meetingsync/internal/common/metrics"
	"meetingsync/internal/models"
)

// SyncResult reports the per-provider outcome of one sync. Failure is data,
// not an error: a provider failure must never propagate into the validation
// session.
type SyncResult struct {
	System      models.CRMSystem       `json:"system"`
	Success     bool                   `json:"success"`
	CRMRecordID string                 `json:"crmRecordId,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Response    map[string]interface{} `json:"response,omitempty"`
	Duration    time.Duration          `json:"-"`
}

// SyncSuggestions is advisory output derived from meeting-outcome sentiment.
// It never mutates any external system by itself.
type SyncSuggestions struct {
	StageSuggestions      []string `json:"stageSuggestions"`
	ProbabilityAdjustment int      `json:"probabilityAdjustment"`
	FollowUpRequired      bool     `json:"followUpRequired"`
}

// Service pushes validated meeting outcomes into CRM systems.
type Service struct {
	registry *Registry
	sessions models.SessionRepository
	drafts   models.DraftSummaryRepository
	leads    models.LeadDirectory
	log      logger.Logger
}

func NewService(registry *Registry, sessions models.SessionRepository, drafts models.DraftSummaryRepository, leads models.LeadDirectory, log logger.Logger) *Service {
	return &Service{
		registry: registry,
		sessions: sessions,
		drafts:   drafts,
		leads:    leads,
		log:      log,
	}
}

// SyncMeetingOutcome pushes one session's validated outcome into one CRM.
// A meeting with no associated commercial record yields a failed result
// rather than an error.
func (s *Service) SyncMeetingOutcome(ctx context.Context, sessionID string, system models.CRMSystem) SyncResult {
	start := time.Now()
	result := s.syncOne(ctx, sessionID, system)
	result.Duration = time.Since(start)

	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	metrics.SyncAttempts.WithLabelValues(string(system), outcome).Inc()
	metrics.SyncDuration.WithLabelValues(string(system)).Observe(result.Duration.Seconds())
	return result
}

func (s *Service) syncOne(ctx context.Context, sessionID string, system models.CRMSystem) SyncResult {
	failed := func(format string, args ...interface{}) SyncResult {
		return SyncResult{System: system, Success: false, Error: fmt.Sprintf(format, args...)}
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return failed("load session: %v", err)
	}
	draft, err := s.drafts.FindByID(ctx, session.DraftSummaryID)
	if err != nil {
		return failed("load draft summary: %v", err)
	}

	leadID, _, found := s.leads.LeadForMeeting(draft.MeetingID)
	if !found {
		return failed("meeting %s has no associated commercial record", draft.MeetingID)
	}

	provider, err := s.registry.Get(system)
	if err != nil {
		return failed("%v", err)
	}

	outcome := MeetingOutcome{
		Title:       fmt.Sprintf("Meeting summary: %s", draft.MeetingID),
		Summary:     session.ValidatedSummary,
		Outcome:     draft.MeetingOutcome,
		MeetingDate: draft.CreatedAt,
		Updates:     session.ApprovedCRMUpdates,
	}

	response, err := provider.UpdateRecord(ctx, providerLeadObject(system), leadID, provider.FormatMeetingData(outcome))
	if err != nil {
		s.log.WithError(err).WithFields(map[string]interface{}{
			"provider":  string(system),
			"sessionId": sessionID,
		}).Error("CRM record update failed")
		return failed("update record: %v", err)
	}

	if stage, ok := session.ApprovedCRMUpdates["deal_stage"].(string); ok && stage != "" {
		if err := provider.UpdateOpportunityStage(ctx, leadID, stage); err != nil {
			return failed("update opportunity stage: %v", err)
		}
	}

	return SyncResult{
		System:      system,
		Success:     true,
		CRMRecordID: leadID,
		Response:    response,
	}
}

// SyncToMultipleCRMs fans out per system as independent goroutines so one
// slow or failing provider never blocks another. Partial failure is expected
// and reported per system.
func (s *Service) SyncToMultipleCRMs(ctx context.Context, sessionID string, systems []models.CRMSystem) map[models.CRMSystem]SyncResult {
	results := make(map[models.CRMSystem]SyncResult, len(systems))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, system := range systems {
		wg.Add(1)
		go func(system models.CRMSystem) {
			defer wg.Done()
			result := s.SyncMeetingOutcome(ctx, sessionID, system)
			mu.Lock()
			results[system] = result
			mu.Unlock()
		}(system)
	}
	wg.Wait()
	return results
}

// GetOpportunitySyncSuggestions derives advisory stage and probability hints
// from the recorded meeting-outcome sentiment.
func (s *Service) GetOpportunitySyncSuggestions(ctx context.Context, sessionID string) (*SyncSuggestions, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	draft, err := s.drafts.FindByID(ctx, session.DraftSummaryID)
	if err != nil {
		return nil, err
	}

	suggestions := &SyncSuggestions{}
	switch draft.MeetingOutcome {
	case "very_positive":
		suggestions.ProbabilityAdjustment = 20
		suggestions.StageSuggestions = []string{"Proposal", "Negotiation"}
	case "positive":
		suggestions.ProbabilityAdjustment = 10
		suggestions.FollowUpRequired = true
		suggestions.StageSuggestions = []string{"Qualified"}
	case "negative":
		suggestions.ProbabilityAdjustment = -20
		suggestions.StageSuggestions = []string{"Closed Lost"}
	}
	return suggestions, nil
}

// TestConnection forces authentication against one provider.
func (s *Service) TestConnection(ctx context.Context, system models.CRMSystem) error {
	provider, err := s.registry.Get(system)
	if err != nil {
		return err
	}
	return provider.Authenticate(ctx)
}

// ConfiguredSystems lists the providers this service can target.
func (s *Service) ConfiguredSystems() []models.CRMSystem {
	return s.registry.Systems()
}

func providerLeadObject(system models.CRMSystem) string {
	switch system {
	case models.CRMSalesforce:
		return "Lead"
	case models.CRMHubSpot:
		return "contacts"
	case models.CRMSAPC4C:
		return "Lead"
	case models.CRMCreatio:
		return "Lead"
	default:
		return "Lead"
	}
}
