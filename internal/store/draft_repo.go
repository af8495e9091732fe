package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	commonerrors "meetingsync/internal/common/errors"
	"meetingsync/internal/models"
)

// PostgresDraftRepository reads AI-generated draft summaries produced
// upstream of the validation pipeline.
type PostgresDraftRepository struct {
	db *sql.DB
}

func NewPostgresDraftRepository(db *sql.DB) *PostgresDraftRepository {
	return &PostgresDraftRepository{db: db}
}

func (r *PostgresDraftRepository) Create(ctx context.Context, draft *models.DraftSummary) error {
	keyPoints, err := json.Marshal(draft.KeyPoints)
	if err != nil {
		return commonerrors.NewSerializationError("key_points", err)
	}
	items, err := json.Marshal(draft.ExtractedActionItems)
	if err != nil {
		return commonerrors.NewSerializationError("extracted_action_items", err)
	}
	nextSteps, err := json.Marshal(draft.SuggestedNextSteps)
	if err != nil {
		return commonerrors.NewSerializationError("suggested_next_steps", err)
	}
	decisions, err := json.Marshal(draft.DecisionsMade)
	if err != nil {
		return commonerrors.NewSerializationError("decisions_made", err)
	}
	crmUpdates, err := json.Marshal(draft.SuggestedCRMUpdates)
	if err != nil {
		return commonerrors.NewSerializationError("suggested_crm_updates", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO draft_summaries (
			id, meeting_id, ai_generated_summary, key_points,
			extracted_action_items, suggested_next_steps, decisions_made,
			suggested_crm_updates, confidence_score, meeting_outcome, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		draft.ID, draft.MeetingID, draft.AIGeneratedSummary, keyPoints,
		items, nextSteps, decisions,
		crmUpdates, draft.ConfidenceScore, nullString(draft.MeetingOutcome), draft.CreatedAt,
	)
	if err != nil {
		return commonerrors.NewStorageError("create draft summary", err)
	}
	return nil
}

func (r *PostgresDraftRepository) FindByID(ctx context.Context, id string) (*models.DraftSummary, error) {
	var (
		d          models.DraftSummary
		keyPoints  []byte
		items      []byte
		nextSteps  []byte
		decisions  []byte
		crmUpdates []byte
		outcome    sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, meeting_id, ai_generated_summary, key_points,
		       extracted_action_items, suggested_next_steps, decisions_made,
		       suggested_crm_updates, confidence_score, meeting_outcome, created_at
		FROM draft_summaries
		WHERE id = $1`, id).Scan(
		&d.ID, &d.MeetingID, &d.AIGeneratedSummary, &keyPoints,
		&items, &nextSteps, &decisions,
		&crmUpdates, &d.ConfidenceScore, &outcome, &d.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, commonerrors.NewNotFoundError("draft summary", id)
	}
	if err != nil {
		return nil, commonerrors.NewStorageError("find draft summary", err)
	}

	if outcome.Valid {
		d.MeetingOutcome = outcome.String
	}
	if err := decodeJSONColumn(keyPoints, &d.KeyPoints, "key_points"); err != nil {
		return nil, err
	}
	if err := decodeJSONColumn(items, &d.ExtractedActionItems, "extracted_action_items"); err != nil {
		return nil, err
	}
	if err := decodeJSONColumn(nextSteps, &d.SuggestedNextSteps, "suggested_next_steps"); err != nil {
		return nil, err
	}
	if err := decodeJSONColumn(decisions, &d.DecisionsMade, "decisions_made"); err != nil {
		return nil, err
	}
	if err := decodeJSONColumn(crmUpdates, &d.SuggestedCRMUpdates, "suggested_crm_updates"); err != nil {
		return nil, err
	}
	return &d, nil
}

func decodeJSONColumn(raw []byte, dst interface{}, column string) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", column, err)
	}
	return nil
}
