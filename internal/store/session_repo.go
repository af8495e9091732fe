package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	commonerrors "meetingsync/internal/common/errors"
	"meetingsync/internal/models"
)

// PostgresSessionRepository persists validation sessions. The question list,
// responses and audit trail are stored as JSONB.
type PostgresSessionRepository struct {
	db *sql.DB
}

func NewPostgresSessionRepository(db *sql.DB) *PostgresSessionRepository {
	return &PostgresSessionRepository{db: db}
}

const sessionColumns = `id, draft_summary_id, sales_rep_email, validation_questions,
       rep_responses, validated_summary, approved_crm_updates, status,
       metadata, changes_made, started_at, completed_at, expires_at`

func (r *PostgresSessionRepository) Create(ctx context.Context, s *models.ValidationSession) error {
	questions, responses, approved, metadata, changes, err := marshalSessionJSON(s)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO validation_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		s.ID, s.DraftSummaryID, s.SalesRepEmail, questions,
		responses, nullString(s.ValidatedSummary), approved, string(s.Status),
		metadata, changes, s.StartedAt, s.CompletedAt, s.ExpiresAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return commonerrors.NewDuplicateSessionError(s.DraftSummaryID)
		}
		return commonerrors.NewStorageError("create session", err)
	}
	return nil
}

func (r *PostgresSessionRepository) FindByID(ctx context.Context, id string) (*models.ValidationSession, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM validation_sessions
		WHERE id = $1`, id)

	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, commonerrors.NewNotFoundError("validation session", id)
	}
	if err != nil {
		return nil, commonerrors.NewStorageError("find session", err)
	}
	return session, nil
}

func (r *PostgresSessionRepository) FindByDraftSummaryID(ctx context.Context, draftSummaryID string) (*models.ValidationSession, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM validation_sessions
		WHERE draft_summary_id = $1`, draftSummaryID)

	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, commonerrors.NewNotFoundError("validation session for draft", draftSummaryID)
	}
	if err != nil {
		return nil, commonerrors.NewStorageError("find session by draft", err)
	}
	return session, nil
}

func (r *PostgresSessionRepository) FindByRepEmail(ctx context.Context, email string) ([]*models.ValidationSession, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM validation_sessions
		WHERE sales_rep_email = $1
		ORDER BY started_at DESC`, email)
	if err != nil {
		return nil, commonerrors.NewStorageError("list sessions by rep", err)
	}
	defer rows.Close()

	var sessions []*models.ValidationSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, commonerrors.NewStorageError("scan session row", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, commonerrors.NewStorageError("iterate session rows", err)
	}
	return sessions, nil
}

func (r *PostgresSessionRepository) FindPendingExpiringBefore(ctx context.Context, cutoff time.Time) ([]*models.ValidationSession, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM validation_sessions
		WHERE status = $1 AND expires_at < $2
		ORDER BY expires_at ASC`, models.SessionPending, cutoff)
	if err != nil {
		return nil, commonerrors.NewStorageError("list expiring sessions", err)
	}
	defer rows.Close()

	var sessions []*models.ValidationSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, commonerrors.NewStorageError("scan session row", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, commonerrors.NewStorageError("iterate session rows", err)
	}
	return sessions, nil
}

func (r *PostgresSessionRepository) Update(ctx context.Context, s *models.ValidationSession) error {
	questions, responses, approved, metadata, changes, err := marshalSessionJSON(s)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE validation_sessions
		SET sales_rep_email = $2,
		    validation_questions = $3,
		    rep_responses = $4,
		    validated_summary = $5,
		    approved_crm_updates = $6,
		    status = $7,
		    metadata = $8,
		    changes_made = $9,
		    completed_at = $10,
		    expires_at = $11
		WHERE id = $1`,
		s.ID, s.SalesRepEmail, questions, responses, nullString(s.ValidatedSummary),
		approved, string(s.Status), metadata, changes, s.CompletedAt, s.ExpiresAt,
	)
	if err != nil {
		return commonerrors.NewStorageError("update session", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return commonerrors.NewStorageError("update session", err)
	}
	if affected == 0 {
		return commonerrors.NewNotFoundError("validation session", s.ID)
	}
	return nil
}

func (r *PostgresSessionRepository) ExpirePending(ctx context.Context, now time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE validation_sessions
		SET status = $1
		WHERE status = $2 AND expires_at < $3`,
		string(models.SessionExpired), string(models.SessionPending), now,
	)
	if err != nil {
		return 0, commonerrors.NewStorageError("expire pending sessions", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, commonerrors.NewStorageError("expire pending sessions", err)
	}
	return int(affected), nil
}

func (r *PostgresSessionRepository) CountOverdueInProgress(ctx context.Context, now time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM validation_sessions
		WHERE status = $1 AND expires_at < $2`,
		string(models.SessionInProgress), now,
	).Scan(&count)
	if err != nil {
		return 0, commonerrors.NewStorageError("count overdue sessions", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*models.ValidationSession, error) {
	var (
		s                sessionRow
		validatedSummary sql.NullString
		completedAt      sql.NullTime
	)
	err := row.Scan(
		&s.id, &s.draftSummaryID, &s.salesRepEmail, &s.questions,
		&s.responses, &validatedSummary, &s.approved, &s.status,
		&s.metadata, &s.changes, &s.startedAt, &completedAt, &s.expiresAt,
	)
	if err != nil {
		return nil, err
	}

	session := &models.ValidationSession{
		ID:             s.id,
		DraftSummaryID: s.draftSummaryID,
		SalesRepEmail:  s.salesRepEmail,
		Status:         models.SessionStatus(s.status),
		StartedAt:      s.startedAt,
		ExpiresAt:      s.expiresAt,
	}
	if validatedSummary.Valid {
		session.ValidatedSummary = validatedSummary.String
	}
	if completedAt.Valid {
		t := completedAt.Time
		session.CompletedAt = &t
	}

	if err := json.Unmarshal(s.questions, &session.ValidationQuestions); err != nil {
		return nil, fmt.Errorf("decode validation_questions: %w", err)
	}
	if err := json.Unmarshal(s.responses, &session.RepResponses); err != nil {
		return nil, fmt.Errorf("decode rep_responses: %w", err)
	}
	if len(s.approved) > 0 {
		if err := json.Unmarshal(s.approved, &session.ApprovedCRMUpdates); err != nil {
			return nil, fmt.Errorf("decode approved_crm_updates: %w", err)
		}
	}
	if len(s.metadata) > 0 {
		if err := json.Unmarshal(s.metadata, &session.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if err := json.Unmarshal(s.changes, &session.ChangesMade); err != nil {
		return nil, fmt.Errorf("decode changes_made: %w", err)
	}
	return session, nil
}

type sessionRow struct {
	id             string
	draftSummaryID string
	salesRepEmail  string
	questions      []byte
	responses      []byte
	approved       []byte
	status         string
	metadata       []byte
	changes        []byte
	startedAt      time.Time
	expiresAt      time.Time
}

func marshalSessionJSON(s *models.ValidationSession) (questions, responses, approved, metadata, changes []byte, err error) {
	if questions, err = json.Marshal(s.ValidationQuestions); err != nil {
		return nil, nil, nil, nil, nil, commonerrors.NewSerializationError("validation_questions", err)
	}
	reps := s.RepResponses
	if reps == nil {
		reps = map[string]models.RepResponse{}
	}
	if responses, err = json.Marshal(reps); err != nil {
		return nil, nil, nil, nil, nil, commonerrors.NewSerializationError("rep_responses", err)
	}
	if s.ApprovedCRMUpdates != nil {
		if approved, err = json.Marshal(s.ApprovedCRMUpdates); err != nil {
			return nil, nil, nil, nil, nil, commonerrors.NewSerializationError("approved_crm_updates", err)
		}
	}
	if s.Metadata != nil {
		if metadata, err = json.Marshal(s.Metadata); err != nil {
			return nil, nil, nil, nil, nil, commonerrors.NewSerializationError("metadata", err)
		}
	}
	audit := s.ChangesMade
	if audit == nil {
		audit = []models.AuditEntry{}
	}
	if changes, err = json.Marshal(audit); err != nil {
		return nil, nil, nil, nil, nil, commonerrors.NewSerializationError("changes_made", err)
	}
	return questions, responses, approved, metadata, changes, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
