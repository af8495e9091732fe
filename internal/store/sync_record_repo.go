package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	commonerrors "meetingsync/internal/common/errors"
	"meetingsync/internal/models"
)

// PostgresSyncRecordRepository persists CRM sync records. Payload and result
// documents are stored as JSONB; status transitions are guarded in SQL so
// concurrent coordinators cannot double-claim or revive a record.
type PostgresSyncRecordRepository struct {
	db *sql.DB
}

func NewPostgresSyncRecordRepository(db *sql.DB) *PostgresSyncRecordRepository {
	return &PostgresSyncRecordRepository{db: db}
}

const syncRecordColumns = `id, session_id, crm_system, sync_status, sync_payload,
       sync_result, sync_error, retry_count, synced_at, created_at, updated_at`

func (r *PostgresSyncRecordRepository) Create(ctx context.Context, rec *models.CRMSyncRecord) error {
	payload, result, err := marshalSyncJSON(rec)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO crm_sync_records (`+syncRecordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.SessionID, string(rec.CRMSystem), string(rec.SyncStatus),
		payload, result, nullString(rec.SyncError), rec.RetryCount,
		rec.SyncedAt, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return commonerrors.NewStorageError("create sync record", err)
	}
	return nil
}

func (r *PostgresSyncRecordRepository) FindByID(ctx context.Context, id string) (*models.CRMSyncRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+syncRecordColumns+`
		FROM crm_sync_records
		WHERE id = $1`, id)

	rec, err := scanSyncRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, commonerrors.NewNotFoundError("CRM sync record", id)
	}
	if err != nil {
		return nil, commonerrors.NewStorageError("find sync record", err)
	}
	return rec, nil
}

func (r *PostgresSyncRecordRepository) FindBySessionID(ctx context.Context, sessionID string) ([]*models.CRMSyncRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+syncRecordColumns+`
		FROM crm_sync_records
		WHERE session_id = $1
		ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, commonerrors.NewStorageError("list sync records", err)
	}
	defer rows.Close()

	var records []*models.CRMSyncRecord
	for rows.Next() {
		rec, err := scanSyncRecord(rows)
		if err != nil {
			return nil, commonerrors.NewStorageError("scan sync record row", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, commonerrors.NewStorageError("iterate sync record rows", err)
	}
	return records, nil
}

func (r *PostgresSyncRecordRepository) Update(ctx context.Context, rec *models.CRMSyncRecord) error {
	payload, result, err := marshalSyncJSON(rec)
	if err != nil {
		return err
	}

	rec.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE crm_sync_records
		SET sync_status = $2,
		    sync_payload = $3,
		    sync_result = $4,
		    sync_error = $5,
		    retry_count = $6,
		    synced_at = $7,
		    updated_at = $8
		WHERE id = $1`,
		rec.ID, string(rec.SyncStatus), payload, result,
		nullString(rec.SyncError), rec.RetryCount, rec.SyncedAt, rec.UpdatedAt,
	)
	if err != nil {
		return commonerrors.NewStorageError("update sync record", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return commonerrors.NewStorageError("update sync record", err)
	}
	if affected == 0 {
		return commonerrors.NewNotFoundError("CRM sync record", rec.ID)
	}
	return nil
}

// MarkForRetry flips a failed record back to pending. The WHERE guard keeps
// the transition legal: completed and in-flight records are never touched,
// and two concurrent retries cannot both succeed.
func (r *PostgresSyncRecordRepository) MarkForRetry(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE crm_sync_records
		SET sync_status = $2, sync_error = '', retry_count = retry_count + 1, updated_at = $3
		WHERE id = $1 AND sync_status = $4`,
		id, string(models.SyncPending), time.Now().UTC(), string(models.SyncFailed),
	)
	if err != nil {
		return false, commonerrors.NewStorageError("mark sync record for retry", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, commonerrors.NewStorageError("mark sync record for retry", err)
	}
	return affected == 1, nil
}

func (r *PostgresSyncRecordRepository) ClaimPending(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE crm_sync_records
		SET sync_status = $2, updated_at = $3
		WHERE id = $1 AND sync_status = $4`,
		id, string(models.SyncInProgress), time.Now().UTC(), string(models.SyncPending),
	)
	if err != nil {
		return false, commonerrors.NewStorageError("claim sync record", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, commonerrors.NewStorageError("claim sync record", err)
	}
	return affected == 1, nil
}

func scanSyncRecord(row rowScanner) (*models.CRMSyncRecord, error) {
	var (
		rec       models.CRMSyncRecord
		crmSystem string
		status    string
		payload   []byte
		result    []byte
		syncErr   sql.NullString
		syncedAt  sql.NullTime
	)
	err := row.Scan(
		&rec.ID, &rec.SessionID, &crmSystem, &status, &payload,
		&result, &syncErr, &rec.RetryCount, &syncedAt,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.CRMSystem = models.CRMSystem(crmSystem)
	rec.SyncStatus = models.SyncStatus(status)
	if syncErr.Valid {
		rec.SyncError = syncErr.String
	}
	if syncedAt.Valid {
		t := syncedAt.Time
		rec.SyncedAt = &t
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &rec.SyncPayload); err != nil {
			return nil, fmt.Errorf("decode sync_payload: %w", err)
		}
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &rec.SyncResult); err != nil {
			return nil, fmt.Errorf("decode sync_result: %w", err)
		}
	}
	return &rec, nil
}

func marshalSyncJSON(rec *models.CRMSyncRecord) (payload, result []byte, err error) {
	if rec.SyncPayload != nil {
		if payload, err = json.Marshal(rec.SyncPayload); err != nil {
			return nil, nil, commonerrors.NewSerializationError("sync_payload", err)
		}
	}
	if rec.SyncResult != nil {
		if result, err = json.Marshal(rec.SyncResult); err != nil {
			return nil, nil, commonerrors.NewSerializationError("sync_result", err)
		}
	}
	return payload, result, nil
}
