package approval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	commonerrors "meetingsync/internal/common/errors"
	"meetingsync/internal/common/logger"
	"meetingsync/internal/crm"
	"meetingsync/internal/models"
	"meetingsync/internal/session"
)

// Coordinator manages the handoff from a completed validation session to the
// CRM sync machinery: approving updates into pending sync records, rejecting
// them, and steering individual record retries and status transitions.
type Coordinator struct {
	sessions models.SessionRepository
	records  models.SyncRecordRepository
	drafts   models.DraftSummaryRepository
	registry *crm.Registry
	manager  *session.Manager
	log      logger.Logger
}

func NewCoordinator(sessions models.SessionRepository, records models.SyncRecordRepository, drafts models.DraftSummaryRepository, registry *crm.Registry, manager *session.Manager, log logger.Logger) *Coordinator {
	return &Coordinator{
		sessions: sessions,
		records:  records,
		drafts:   drafts,
		registry: registry,
		manager:  manager,
		log:      log,
	}
}

// Approve turns a completed session's approved updates into one pending sync
// record per requested system. Custom updates win over the planner's output;
// the payload is translated into each provider's native vocabulary before it
// is stored. One batch audit entry covers the whole approval.
func (c *Coordinator) Approve(ctx context.Context, sessionID string, systems []string, customUpdates map[string]interface{}) ([]*models.CRMSyncRecord, error) {
	parsed := make([]models.CRMSystem, 0, len(systems))
	for _, name := range systems {
		system, err := models.ParseCRMSystem(name)
		if err != nil {
			return nil, commonerrors.NewInvalidArgumentError(err.Error())
		}
		parsed = append(parsed, system)
	}

	sess, err := c.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.SessionCompleted {
		return nil, commonerrors.NewInvalidStateError("approve", string(sess.Status))
	}

	draft, err := c.drafts.FindByID(ctx, sess.DraftSummaryID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	for key, value := range sess.ApprovedCRMUpdates {
		updates[key] = value
	}
	for key, value := range customUpdates {
		updates[key] = value
	}

	outcome := crm.MeetingOutcome{
		Title:       fmt.Sprintf("Meeting summary: %s", draft.MeetingID),
		Summary:     sess.ValidatedSummary,
		Outcome:     draft.MeetingOutcome,
		MeetingDate: draft.CreatedAt,
		Updates:     updates,
	}

	now := time.Now().UTC()
	records := make([]*models.CRMSyncRecord, 0, len(parsed))
	for _, system := range parsed {
		provider, err := c.registry.Get(system)
		if err != nil {
			return nil, err
		}
		record := &models.CRMSyncRecord{
			ID:          uuid.New().String(),
			SessionID:   sessionID,
			CRMSystem:   system,
			SyncStatus:  models.SyncPending,
			SyncPayload: provider.FormatMeetingData(outcome),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := c.records.Create(ctx, record); err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	names := make([]string, len(parsed))
	for i, system := range parsed {
		names[i] = string(system)
	}
	if _, err := c.manager.AppendSessionAudit(ctx, sessionID, models.AuditEntry{
		Action: "crm_sync_approved",
		Digest: fmt.Sprintf("CRM sync approved for %s", strings.Join(names, ", ")),
		Metadata: map[string]interface{}{
			"systems":     names,
			"recordCount": len(records),
		},
	}); err != nil {
		return nil, err
	}

	c.log.WithFields(map[string]interface{}{
		"sessionId": sessionID,
		"systems":   names,
	}).Info("CRM sync approved")

	return records, nil
}

// Reject clears a completed session's approved updates so nothing will be
// synced. The clear and its audit entry are applied under the session lock.
func (c *Coordinator) Reject(ctx context.Context, sessionID, reason string) (*models.ValidationSession, error) {
	return c.manager.Mutate(ctx, sessionID, func(sess *models.ValidationSession) ([]models.AuditEntry, error) {
		if sess.Status != models.SessionCompleted {
			return nil, commonerrors.NewInvalidStateError("reject", string(sess.Status))
		}
		sess.ApprovedCRMUpdates = nil
		return []models.AuditEntry{{
			Action:   "crm_sync_rejected",
			Digest:   fmt.Sprintf("CRM updates rejected: %s", reason),
			Metadata: map[string]interface{}{"reason": reason},
		}}, nil
	})
}

// GetSyncStatus lists every sync record belonging to a session.
func (c *Coordinator) GetSyncStatus(ctx context.Context, sessionID string) ([]*models.CRMSyncRecord, error) {
	if _, err := c.sessions.FindByID(ctx, sessionID); err != nil {
		return nil, err
	}
	return c.records.FindBySessionID(ctx, sessionID)
}

// Retry re-queues one failed sync record. Completed records are terminal and
// pending or in-flight records cannot be retried; the storage guard makes
// concurrent retries on the same record resolve to a single winner.
func (c *Coordinator) Retry(ctx context.Context, syncRecordID string) (*models.CRMSyncRecord, error) {
	record, err := c.records.FindByID(ctx, syncRecordID)
	if err != nil {
		return nil, err
	}
	if !record.Retryable() {
		return nil, commonerrors.NewInvalidStateError("retry", string(record.SyncStatus))
	}

	flipped, err := c.records.MarkForRetry(ctx, syncRecordID)
	if err != nil {
		return nil, err
	}
	if !flipped {
		return nil, commonerrors.NewInvalidStateError("retry", string(record.SyncStatus))
	}

	record, err = c.records.FindByID(ctx, syncRecordID)
	if err != nil {
		return nil, err
	}

	_, _ = c.manager.AppendSessionAudit(ctx, record.SessionID, models.AuditEntry{
		Action: "sync_retry_requested",
		Digest: fmt.Sprintf("Retry requested for %s sync (attempt %d)", record.CRMSystem, record.RetryCount),
		Metadata: map[string]interface{}{
			"syncRecordId": record.ID,
			"crmSystem":    string(record.CRMSystem),
		},
	})

	return record, nil
}

// UpdateStatus records the outcome of one sync attempt. Completion stamps
// synced_at; failures keep the error message on the record rather than
// surfacing it into the session.
func (c *Coordinator) UpdateStatus(ctx context.Context, syncRecordID string, status models.SyncStatus, crmRecordID, errorMessage string) (*models.CRMSyncRecord, error) {
	switch status {
	case models.SyncPending, models.SyncInProgress, models.SyncCompleted, models.SyncFailed:
	default:
		return nil, commonerrors.NewInvalidArgumentError(fmt.Sprintf("unknown sync status: %q", status))
	}

	record, err := c.records.FindByID(ctx, syncRecordID)
	if err != nil {
		return nil, err
	}
	if record.SyncStatus == models.SyncCompleted {
		return nil, commonerrors.NewInvalidStateError("updateStatus", string(record.SyncStatus))
	}

	record.SyncStatus = status
	record.SyncError = errorMessage
	if crmRecordID != "" {
		if record.SyncResult == nil {
			record.SyncResult = map[string]interface{}{}
		}
		record.SyncResult["crmRecordId"] = crmRecordID
	}
	if status == models.SyncCompleted {
		now := time.Now().UTC()
		record.SyncedAt = &now
	}

	if err := c.records.Update(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// ApprovalSummary is the read-only rollup for one session.
type ApprovalSummary struct {
	SessionID          string                  `json:"sessionId"`
	Status             models.SessionStatus    `json:"status"`
	QuestionsAnswered  int                     `json:"questionsAnswered"`
	QuestionsTotal     int                     `json:"questionsTotal"`
	ResponsesRevised   int                     `json:"responsesRevised"`
	ApprovedCRMUpdates map[string]interface{}  `json:"approvedCrmUpdates,omitempty"`
	SyncRecords        []*models.CRMSyncRecord `json:"syncRecords"`
	AuditTrail         []models.AuditEntry     `json:"auditTrail"`
	ChangesSummary     []string                `json:"changesSummary"`
}

// GenerateApprovalSummary builds the rollup without mutating anything.
func (c *Coordinator) GenerateApprovalSummary(ctx context.Context, sessionID string) (*ApprovalSummary, error) {
	sess, err := c.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	records, err := c.records.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	answered, total := sess.Progress()
	summary := &ApprovalSummary{
		SessionID:          sessionID,
		Status:             sess.Status,
		QuestionsAnswered:  answered,
		QuestionsTotal:     total,
		ApprovedCRMUpdates: sess.ApprovedCRMUpdates,
		SyncRecords:        records,
		AuditTrail:         sess.ChangesMade,
	}
	for _, entry := range sess.ChangesMade {
		if entry.Action == "response_revised" {
			summary.ResponsesRevised++
		}
		summary.ChangesSummary = append(summary.ChangesSummary, entry.Digest)
	}
	return summary, nil
}
