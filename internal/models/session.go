package models

import (
	"context"
	"time"
)

// SessionStatus is the validation session lifecycle state.
type SessionStatus string

const (
	SessionPending    SessionStatus = "pending"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionExpired    SessionStatus = "expired"
)

// QuestionType tags the closed set of validation question kinds. Response
// payloads are validated by dispatching on this tag.
type QuestionType string

const (
	QuestionConfirmation      QuestionType = "confirmation"
	QuestionMultiSelect       QuestionType = "multi_select"
	QuestionActionItemsReview QuestionType = "action_items_review"
	QuestionTextEdit          QuestionType = "text_edit"
	QuestionCRMApproval       QuestionType = "crm_approval"
	QuestionStageSelection    QuestionType = "stage_selection"
	QuestionTextArea          QuestionType = "text_area"
)

// Well-known question ids, generated once per session in this order.
const (
	QIDSummaryAccuracy       = "summary_accuracy"
	QIDKeyPointsValidation   = "key_points_validation"
	QIDActionItemsValidation = "action_items_validation"
	QIDNextStepsConfirmation = "next_steps_confirmation"
	QIDCRMUpdatesApproval    = "crm_updates_approval"
	QIDDealStageUpdate       = "deal_stage_update"
	QIDAdditionalNotes       = "additional_notes"
)

// Question is embedded in a session; it is not independently persisted.
// The payload fields are type-specific and empty for other types.
type Question struct {
	ID       string       `json:"id"`
	Type     QuestionType `json:"type"`
	Text     string       `json:"text"`
	Required bool         `json:"required"`

	Options          []string               `json:"options,omitempty"`          // multi_select
	Items            []ActionItem           `json:"items,omitempty"`            // action_items_review
	SuggestedText    string                 `json:"suggestedText,omitempty"`    // text_edit, confirmation
	SuggestedUpdates map[string]interface{} `json:"suggestedUpdates,omitempty"` // crm_approval
	SuggestedStage   string                 `json:"suggestedStage,omitempty"`   // stage_selection
	StageOptions     []string               `json:"stageOptions,omitempty"`     // stage_selection
}

// RepResponse is one accepted answer. Responses are upserted per question id;
// the raw payload is kept as submitted after schema validation.
type RepResponse struct {
	Response  map[string]interface{} `json:"response"`
	Timestamp time.Time              `json:"timestamp"`
	Type      QuestionType           `json:"type"`
}

// AuditEntry is one record in the session's append-only audit trail.
type AuditEntry struct {
	ID         string                 `json:"id"`
	Action     string                 `json:"action"`
	QuestionID string                 `json:"questionId,omitempty"`
	Digest     string                 `json:"digest"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// ValidationSession is the time-boxed human-review state machine wrapping one
// draft summary. Exactly one session may exist per draft.
type ValidationSession struct {
	ID                  string                 `json:"id" db:"id"`
	DraftSummaryID      string                 `json:"draftSummaryId" db:"draft_summary_id"`
	SalesRepEmail       string                 `json:"salesRepEmail" db:"sales_rep_email"`
	ValidationQuestions []Question             `json:"validationQuestions" db:"validation_questions"`
	RepResponses        map[string]RepResponse `json:"repResponses" db:"rep_responses"`
	ValidatedSummary    string                 `json:"validatedSummary,omitempty" db:"validated_summary"`
	ApprovedCRMUpdates  map[string]interface{} `json:"approvedCrmUpdates,omitempty" db:"approved_crm_updates"`
	Status              SessionStatus          `json:"status" db:"status"`
	Metadata            map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	ChangesMade         []AuditEntry           `json:"changesMade" db:"changes_made"`
	StartedAt           time.Time              `json:"startedAt" db:"started_at"`
	CompletedAt         *time.Time             `json:"completedAt,omitempty" db:"completed_at"`
	ExpiresAt           time.Time              `json:"expiresAt" db:"expires_at"`
}

// IsExpired reports the wall-clock fact; note the sweep only acts on pending
// sessions, so an in_progress session may be past expiry and still active.
func (s *ValidationSession) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// AcceptsResponses reports whether submitResponse is permitted.
func (s *ValidationSession) AcceptsResponses() bool {
	return s.Status == SessionPending || s.Status == SessionInProgress
}

// QuestionByID returns the question with the given id, or nil.
func (s *ValidationSession) QuestionByID(id string) *Question {
	for i := range s.ValidationQuestions {
		if s.ValidationQuestions[i].ID == id {
			return &s.ValidationQuestions[i]
		}
	}
	return nil
}

// RequiredQuestionIDs returns the ids of all required questions in order.
func (s *ValidationSession) RequiredQuestionIDs() []string {
	var ids []string
	for _, q := range s.ValidationQuestions {
		if q.Required {
			ids = append(ids, q.ID)
		}
	}
	return ids
}

// MissingRequired returns required question ids with no accepted response,
// in question order.
func (s *ValidationSession) MissingRequired() []string {
	var missing []string
	for _, q := range s.ValidationQuestions {
		if !q.Required {
			continue
		}
		if _, answered := s.RepResponses[q.ID]; !answered {
			missing = append(missing, q.ID)
		}
	}
	return missing
}

// Progress returns answered/total counts over all questions.
func (s *ValidationSession) Progress() (answered, total int) {
	total = len(s.ValidationQuestions)
	for _, q := range s.ValidationQuestions {
		if _, ok := s.RepResponses[q.ID]; ok {
			answered++
		}
	}
	return answered, total
}

// AppendAudit appends an entry, enforcing the retention cap: on overflow the
// oldest entries are dropped behind a single truncation marker.
func (s *ValidationSession) AppendAudit(entry AuditEntry, maxEntries int) {
	s.ChangesMade = append(s.ChangesMade, entry)
	if maxEntries <= 0 || len(s.ChangesMade) <= maxEntries {
		return
	}

	// The marker occupies one slot, so keep the newest maxEntries-1 entries.
	// A previous marker is always the oldest entry and falls inside the
	// dropped prefix, so markers never stack.
	drop := len(s.ChangesMade) - (maxEntries - 1)
	marker := AuditEntry{
		ID:        entry.ID + "-trunc",
		Action:    "audit_truncated",
		Digest:    "older audit entries dropped by retention policy",
		Timestamp: time.Now().UTC(),
	}
	trimmed := make([]AuditEntry, 0, maxEntries)
	trimmed = append(trimmed, marker)
	if drop < len(s.ChangesMade) {
		trimmed = append(trimmed, s.ChangesMade[drop:]...)
	}
	s.ChangesMade = trimmed
}

// SessionRepository defines validation session data access. Implementations
// must make Create fail on a duplicate draft summary id and keep status
// transitions atomic.
type SessionRepository interface {
	Create(ctx context.Context, session *ValidationSession) error
	FindByID(ctx context.Context, id string) (*ValidationSession, error)
	FindByDraftSummaryID(ctx context.Context, draftSummaryID string) (*ValidationSession, error)
	FindByRepEmail(ctx context.Context, email string) ([]*ValidationSession, error)
	Update(ctx context.Context, session *ValidationSession) error
	// FindPendingExpiringBefore lists pending sessions whose expiry falls
	// before the cutoff, oldest first. Used for reminder notifications.
	FindPendingExpiringBefore(ctx context.Context, cutoff time.Time) ([]*ValidationSession, error)
	// ExpirePending flips every pending session past its expiry to expired and
	// returns how many were flipped.
	ExpirePending(ctx context.Context, now time.Time) (int, error)
	// CountOverdueInProgress reports in_progress sessions past expiry; the
	// sweep deliberately leaves them alone but logs the count.
	CountOverdueInProgress(ctx context.Context, now time.Time) (int, error)
}
