// internal/workers/sessions/expire-sessions/handler_test.go
package expiresessions

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonerrors "meetingsync/internal/common/errors"
	"meetingsync/internal/common/logger"
	"meetingsync/internal/models"
	"meetingsync/internal/session"
)

// ==========================
// Test Fakes
// ==========================

// sweepSessions keeps pending sessions in memory and mirrors the storage
// sweep semantics: only pending sessions past their deadline flip.
type sweepSessions struct {
	models.SessionRepository
	sessions []*models.ValidationSession
	overdue  int
}

func (r *sweepSessions) ExpirePending(_ context.Context, now time.Time) (int, error) {
	expired := 0
	for _, s := range r.sessions {
		if s.Status == models.SessionPending && s.ExpiresAt.Before(now) {
			s.Status = models.SessionExpired
			expired++
		}
	}
	return expired, nil
}

func (r *sweepSessions) CountOverdueInProgress(_ context.Context, _ time.Time) (int, error) {
	return r.overdue, nil
}

func (r *sweepSessions) FindPendingExpiringBefore(_ context.Context, cutoff time.Time) ([]*models.ValidationSession, error) {
	var out []*models.ValidationSession
	for _, s := range r.sessions {
		if s.Status == models.SessionPending && s.ExpiresAt.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out, nil
}

type reminderRecorder struct {
	reminded []string
}

func (n *reminderRecorder) SessionExpiring(_ context.Context, sess *models.ValidationSession) {
	n.reminded = append(n.reminded, sess.ID)
}

func pendingSession(id string, expiresAt time.Time) *models.ValidationSession {
	return &models.ValidationSession{
		ID:            id,
		SalesRepEmail: "rep@example.com",
		Status:        models.SessionPending,
		ExpiresAt:     expiresAt,
	}
}

func newSweepHandler(t *testing.T, repo *sweepSessions, notifier Notifier, window time.Duration) *Handler {
	t.Helper()
	log := logger.NewTestLogger(t)
	manager := session.NewManager(repo, nil, nil, nil, 24*time.Hour, 100, log)
	return NewHandler(&Config{Timeout: 30 * time.Second, ReminderWindow: window}, manager, notifier, log)
}

// ==========================
// Execute Tests
// ==========================

func TestExecute_ExpiresOnlyOverduePending(t *testing.T) {
	now := time.Now().UTC()
	repo := &sweepSessions{sessions: []*models.ValidationSession{
		pendingSession("overdue-1", now.Add(-2*time.Hour)),
		pendingSession("overdue-2", now.Add(-time.Minute)),
		pendingSession("fresh", now.Add(30*time.Hour)),
	}}
	handler := newSweepHandler(t, repo, &reminderRecorder{}, 2*time.Hour)

	output, err := handler.Execute(context.Background(), &Input{})

	require.NoError(t, err)
	assert.Equal(t, 2, output.ExpiredCount)
	assert.Equal(t, models.SessionExpired, repo.sessions[0].Status)
	assert.Equal(t, models.SessionPending, repo.sessions[2].Status)
}

func TestExecute_RemindsSessionsInsideWindow(t *testing.T) {
	now := time.Now().UTC()
	repo := &sweepSessions{sessions: []*models.ValidationSession{
		pendingSession("soon", now.Add(time.Hour)),
		pendingSession("later", now.Add(12*time.Hour)),
	}}
	notifier := &reminderRecorder{}
	handler := newSweepHandler(t, repo, notifier, 2*time.Hour)

	output, err := handler.Execute(context.Background(), &Input{})

	require.NoError(t, err)
	assert.Equal(t, 0, output.ExpiredCount)
	assert.Equal(t, 1, output.RemindedCount)
	assert.Equal(t, []string{"soon"}, notifier.reminded)
}

func TestExecute_JustExpiredSessionIsNotReminded(t *testing.T) {
	// A session swept in this very pass must not also get a reminder.
	now := time.Now().UTC()
	repo := &sweepSessions{sessions: []*models.ValidationSession{
		pendingSession("overdue", now.Add(-time.Minute)),
	}}
	notifier := &reminderRecorder{}
	handler := newSweepHandler(t, repo, notifier, 2*time.Hour)

	output, err := handler.Execute(context.Background(), &Input{})

	require.NoError(t, err)
	assert.Equal(t, 1, output.ExpiredCount)
	assert.Equal(t, 0, output.RemindedCount)
	assert.Empty(t, notifier.reminded)
}

func TestExecute_NilNotifierSkipsReminders(t *testing.T) {
	now := time.Now().UTC()
	repo := &sweepSessions{sessions: []*models.ValidationSession{
		pendingSession("soon", now.Add(time.Hour)),
	}}
	handler := newSweepHandler(t, repo, nil, 2*time.Hour)

	output, err := handler.Execute(context.Background(), &Input{})

	require.NoError(t, err)
	assert.Equal(t, 0, output.RemindedCount)
}

func TestExecute_ZeroWindowDisablesReminders(t *testing.T) {
	now := time.Now().UTC()
	repo := &sweepSessions{sessions: []*models.ValidationSession{
		pendingSession("soon", now.Add(time.Hour)),
	}}
	notifier := &reminderRecorder{}
	handler := newSweepHandler(t, repo, notifier, 0)

	output, err := handler.Execute(context.Background(), &Input{})

	require.NoError(t, err)
	assert.Equal(t, 0, output.RemindedCount)
	assert.Empty(t, notifier.reminded)
}

// ==========================
// Error Conversion Tests
// ==========================

func TestConvertToStandardError(t *testing.T) {
	stdErr := convertToStandardError(fmt.Errorf("expire old sessions: %w", commonerrors.NewStorageError("expire pending sessions", errors.New("connection reset"))))
	assert.Equal(t, commonerrors.ErrCodeStorage, stdErr.Code)
	assert.True(t, stdErr.Retryable)

	stdErr = convertToStandardError(errors.New("boom"))
	assert.Equal(t, commonerrors.ErrorCode("SESSION_SWEEP_ERROR"), stdErr.Code)
	assert.Equal(t, "boom", stdErr.Details)
}
