package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresLeadDirectory answers the only two questions the pipeline asks
// about commercial records: does a lead exist for this meeting, and what
// stage is it in.
type PostgresLeadDirectory struct {
	db *sql.DB
}

func NewPostgresLeadDirectory(db *sql.DB) *PostgresLeadDirectory {
	return &PostgresLeadDirectory{db: db}
}

func (d *PostgresLeadDirectory) LeadForMeeting(meetingID string) (string, string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var leadID string
	var stage sql.NullString
	err := d.db.QueryRowContext(ctx, `
		SELECT l.id, l.current_stage
		FROM leads l
		JOIN meetings m ON m.lead_id = l.id
		WHERE m.id = $1`, meetingID).Scan(&leadID, &stage)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", false
	}
	if err != nil {
		return "", "", false
	}
	return leadID, stage.String, true
}
