package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	commonerrors "meetingsync/internal/common/errors"
	"meetingsync/internal/common/logger"
	"meetingsync/internal/common/metrics"
	"meetingsync/internal/models"
)

// AuditSink receives every audit entry the manager appends, for indexing
// outside the session aggregate. Sink failures never fail the operation.
type AuditSink interface {
	Index(ctx context.Context, sessionID string, entry models.AuditEntry)
}

// Manager drives the validation session state machine. All state transitions
// on one session are serialized through a per-session lock, so a complete
// call always sees a stable answered-question snapshot.
type Manager struct {
	sessions models.SessionRepository
	drafts   models.DraftSummaryRepository
	leads    models.LeadDirectory
	audit    AuditSink
	log      logger.Logger

	defaultDuration time.Duration
	auditMaxEntries int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewManager(sessions models.SessionRepository, drafts models.DraftSummaryRepository, leads models.LeadDirectory, audit AuditSink, defaultDuration time.Duration, auditMaxEntries int, log logger.Logger) *Manager {
	if defaultDuration <= 0 {
		defaultDuration = 24 * time.Hour
	}
	return &Manager{
		sessions:        sessions,
		drafts:          drafts,
		leads:           leads,
		audit:           audit,
		log:             log,
		defaultDuration: defaultDuration,
		auditMaxEntries: auditMaxEntries,
		locks:           make(map[string]*sync.Mutex),
	}
}

// sessionLock returns the mutex serializing transitions for one session id.
// Locks are small and sessions are short-lived relative to the process, so
// the map is grow-only.
func (m *Manager) sessionLock(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[id] = lock
	}
	return lock
}

// Create opens a validation session for a draft summary. At most one session
// may exist per draft; a second attempt fails with a duplicate error.
func (m *Manager) Create(ctx context.Context, draftSummaryID, salesRepEmail string, duration time.Duration) (*models.ValidationSession, error) {
	draft, err := m.drafts.FindByID(ctx, draftSummaryID)
	if err != nil {
		return nil, err
	}

	_, _, hasLead := m.leads.LeadForMeeting(draft.MeetingID)

	if duration <= 0 {
		duration = m.defaultDuration
	}
	now := time.Now().UTC()
	session := &models.ValidationSession{
		ID:                  uuid.New().String(),
		DraftSummaryID:      draftSummaryID,
		SalesRepEmail:       salesRepEmail,
		ValidationQuestions: GenerateQuestions(draft, hasLead),
		RepResponses:        map[string]models.RepResponse{},
		Status:              models.SessionPending,
		StartedAt:           now,
		ExpiresAt:           now.Add(duration),
	}
	m.appendAudit(ctx, session, models.AuditEntry{
		Action: "session_created",
		Digest: fmt.Sprintf("Validation session opened for draft %s, expires %s", draftSummaryID, session.ExpiresAt.Format(time.RFC3339)),
	})

	if err := m.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	metrics.SessionsCreated.Inc()
	m.log.WithFields(map[string]interface{}{
		"sessionId":      session.ID,
		"draftSummaryId": draftSummaryID,
		"salesRepEmail":  salesRepEmail,
		"questionCount":  len(session.ValidationQuestions),
	}).Info("Validation session created")

	return session, nil
}

// Get loads a session. A pending session past its expiry is flipped to
// expired, persisted, and reported as an error; the lazy check deliberately
// leaves in_progress sessions alone.
func (m *Manager) Get(ctx context.Context, sessionID string) (*models.ValidationSession, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()
	return m.getLocked(ctx, sessionID)
}

func (m *Manager) getLocked(ctx context.Context, sessionID string) (*models.ValidationSession, error) {
	session, err := m.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.Status == models.SessionPending && session.IsExpired() {
		session.Status = models.SessionExpired
		m.appendAudit(ctx, session, models.AuditEntry{
			Action: "session_expired",
			Digest: "Session expired before any response was submitted",
		})
		if err := m.sessions.Update(ctx, session); err != nil {
			return nil, err
		}
		metrics.SessionsExpired.Inc()
		return nil, commonerrors.NewSessionExpiredError(sessionID)
	}

	return session, nil
}

// SubmitResponse validates and upserts one answer. The first accepted
// response flips the session to in_progress; every accepted submission
// appends an audit entry even when it overwrites an earlier answer.
func (m *Manager) SubmitResponse(ctx context.Context, sessionID, questionID string, payload map[string]interface{}) (*models.ValidationSession, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := m.getLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.AcceptsResponses() {
		return nil, commonerrors.NewInvalidStateError("submitResponse", string(session.Status))
	}

	question := session.QuestionByID(questionID)
	if question == nil {
		return nil, commonerrors.NewNotFoundError("question", questionID)
	}
	if err := ValidateResponse(question, payload); err != nil {
		return nil, err
	}

	_, overwrite := session.RepResponses[questionID]
	session.RepResponses[questionID] = models.RepResponse{
		Response:  payload,
		Timestamp: time.Now().UTC(),
		Type:      question.Type,
	}

	if session.Status == models.SessionPending {
		session.Status = models.SessionInProgress
	}

	action := "response_submitted"
	digest := fmt.Sprintf("Answered %q", questionID)
	if overwrite {
		action = "response_revised"
		digest = fmt.Sprintf("Revised answer to %q", questionID)
	}
	m.appendAudit(ctx, session, models.AuditEntry{
		Action:     action,
		QuestionID: questionID,
		Digest:     digest,
	})

	if err := m.sessions.Update(ctx, session); err != nil {
		return nil, err
	}

	metrics.ResponsesSubmitted.WithLabelValues(string(question.Type)).Inc()
	return session, nil
}

// Complete finalizes an in_progress session once every required question has
// an answer. It computes the validated summary and the approved CRM updates
// in one transition; no partially completed state is ever persisted.
func (m *Manager) Complete(ctx context.Context, sessionID string) (*models.ValidationSession, string, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := m.getLocked(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}
	if session.Status != models.SessionInProgress {
		return nil, "", commonerrors.NewInvalidStateError("complete", string(session.Status))
	}
	if missing := session.MissingRequired(); len(missing) > 0 {
		return nil, "", commonerrors.NewIncompleteRequiredError(missing)
	}

	draft, err := m.drafts.FindByID(ctx, session.DraftSummaryID)
	if err != nil {
		return nil, "", err
	}

	validated := ComposeSummary(draft, session)
	session.ValidatedSummary = validated
	session.ApprovedCRMUpdates = PlanCRMUpdates(draft, session, validated)
	session.Status = models.SessionCompleted
	now := time.Now().UTC()
	session.CompletedAt = &now

	answered, total := session.Progress()
	m.appendAudit(ctx, session, models.AuditEntry{
		Action: "session_completed",
		Digest: fmt.Sprintf("Session completed with %d of %d questions answered", answered, total),
	})

	if err := m.sessions.Update(ctx, session); err != nil {
		return nil, "", err
	}

	metrics.SessionsCompleted.Inc()
	m.log.WithFields(map[string]interface{}{
		"sessionId": session.ID,
		"answered":  answered,
		"total":     total,
	}).Info("Validation session completed")

	return session, validated, nil
}

// ListForRep returns all sessions belonging to one sales rep, newest first.
func (m *Manager) ListForRep(ctx context.Context, salesRepEmail string) ([]*models.ValidationSession, error) {
	return m.sessions.FindByRepEmail(ctx, salesRepEmail)
}

// MetadataUpdate carries the operator-editable fields of a live session.
// Zero-value fields are left untouched.
type MetadataUpdate struct {
	SalesRepEmail string
	ExpiresAt     *time.Time
	Metadata      map[string]interface{}
}

// UpdateMetadata applies operator changes to a pending or in_progress
// session: reassigning the rep, moving the deadline, and merging free-form
// metadata keys. Completed and expired sessions are immutable.
func (m *Manager) UpdateMetadata(ctx context.Context, sessionID string, update MetadataUpdate) (*models.ValidationSession, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := m.getLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionPending && session.Status != models.SessionInProgress {
		return nil, commonerrors.NewInvalidStateError("updateMetadata", string(session.Status))
	}

	var changed []string
	if update.SalesRepEmail != "" && update.SalesRepEmail != session.SalesRepEmail {
		session.SalesRepEmail = update.SalesRepEmail
		changed = append(changed, "sales_rep_email")
	}
	if update.ExpiresAt != nil {
		if !update.ExpiresAt.After(time.Now().UTC()) {
			return nil, commonerrors.NewInvalidArgumentError("expires_at must be in the future")
		}
		session.ExpiresAt = update.ExpiresAt.UTC()
		changed = append(changed, "expires_at")
	}
	if len(update.Metadata) > 0 {
		if session.Metadata == nil {
			session.Metadata = map[string]interface{}{}
		}
		for key, value := range update.Metadata {
			session.Metadata[key] = value
		}
		changed = append(changed, fmt.Sprintf("%d metadata keys", len(update.Metadata)))
	}
	if len(changed) == 0 {
		return session, nil
	}

	m.appendAudit(ctx, session, models.AuditEntry{
		Action: "metadata_updated",
		Digest: fmt.Sprintf("Session updated: %s", strings.Join(changed, ", ")),
	})
	if err := m.sessions.Update(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// ExpireOldSessions sweeps every pending session past its expiry. Overdue
// in_progress sessions are counted and logged but left untouched; a rep who
// has started answering keeps the session until they finish or abandon it.
func (m *Manager) ExpireOldSessions(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	expired, err := m.sessions.ExpirePending(ctx, now)
	if err != nil {
		return 0, err
	}
	for i := 0; i < expired; i++ {
		metrics.SessionsExpired.Inc()
	}

	if overdue, err := m.sessions.CountOverdueInProgress(ctx, now); err == nil && overdue > 0 {
		m.log.WithFields(map[string]interface{}{
			"count": overdue,
		}).Warn("In-progress sessions past expiry were left active")
	}

	if expired > 0 {
		m.log.WithFields(map[string]interface{}{"count": expired}).Info("Expired pending sessions")
	}
	return expired, nil
}

// ExpiringSoon lists pending sessions whose expiry falls within the window.
// Sessions already past expiry are excluded; the sweep handles those.
func (m *Manager) ExpiringSoon(ctx context.Context, window time.Duration) ([]*models.ValidationSession, error) {
	now := time.Now().UTC()
	sessions, err := m.sessions.FindPendingExpiringBefore(ctx, now.Add(window))
	if err != nil {
		return nil, err
	}
	upcoming := sessions[:0]
	for _, s := range sessions {
		if s.ExpiresAt.After(now) {
			upcoming = append(upcoming, s)
		}
	}
	return upcoming, nil
}

// MutateFunc inspects and modifies one freshly loaded session. Returned
// audit entries are appended and indexed before the session is persisted.
type MutateFunc func(*models.ValidationSession) ([]models.AuditEntry, error)

// Mutate runs fn on the current session row under the per-session lock and
// persists the result, so writes from other components cannot interleave
// with the manager's own transitions. An error from fn aborts without
// persisting anything.
func (m *Manager) Mutate(ctx context.Context, sessionID string, fn MutateFunc) (*models.ValidationSession, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := m.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	entries, err := fn(session)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		m.appendAudit(ctx, session, entry)
	}
	if err := m.sessions.Update(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// AppendSessionAudit appends one audit entry on behalf of another component
// (coordinator batch approvals, retries) and persists the session.
func (m *Manager) AppendSessionAudit(ctx context.Context, sessionID string, entry models.AuditEntry) (*models.ValidationSession, error) {
	return m.Mutate(ctx, sessionID, func(*models.ValidationSession) ([]models.AuditEntry, error) {
		return []models.AuditEntry{entry}, nil
	})
}

func (m *Manager) appendAudit(ctx context.Context, session *models.ValidationSession, entry models.AuditEntry) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	session.AppendAudit(entry, m.auditMaxEntries)
	if m.audit != nil {
		m.audit.Index(ctx, session.ID, entry)
	}
}
