// internal/store/session_cache_test.go
package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonerrors "meetingsync/internal/common/errors"
	"meetingsync/internal/common/logger"
	"meetingsync/internal/models"
)

// countingSessionRepo is a minimal backing store that counts lookups.
type countingSessionRepo struct {
	models.SessionRepository

	session *models.ValidationSession
	finds   int
	updates int
}

func (r *countingSessionRepo) FindByID(_ context.Context, id string) (*models.ValidationSession, error) {
	r.finds++
	if r.session == nil || r.session.ID != id {
		return nil, commonerrors.NewNotFoundError("validation session", id)
	}
	return r.session, nil
}

func (r *countingSessionRepo) Update(_ context.Context, session *models.ValidationSession) error {
	r.updates++
	r.session = session
	return nil
}

func newCacheFixture(t *testing.T) (*CachedSessionRepository, *countingSessionRepo, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	backing := &countingSessionRepo{session: testSession()}
	cached := NewCachedSessionRepository(backing, client, time.Minute, logger.NewTestLogger(t))
	return cached, backing, mr
}

func TestSessionCache_MissFillsCache(t *testing.T) {
	cached, backing, mr := newCacheFixture(t)
	ctx := context.Background()

	found, err := cached.FindByID(ctx, "session-1")

	require.NoError(t, err)
	assert.Equal(t, "session-1", found.ID)
	assert.Equal(t, 1, backing.finds)
	assert.True(t, mr.Exists("session:session-1"))
}

func TestSessionCache_HitSkipsBackingStore(t *testing.T) {
	cached, backing, _ := newCacheFixture(t)
	ctx := context.Background()

	_, err := cached.FindByID(ctx, "session-1")
	require.NoError(t, err)
	found, err := cached.FindByID(ctx, "session-1")
	require.NoError(t, err)

	assert.Equal(t, "session-1", found.ID)
	assert.Equal(t, 1, backing.finds, "second lookup served from cache")
}

func TestSessionCache_UpdateInvalidates(t *testing.T) {
	cached, backing, mr := newCacheFixture(t)
	ctx := context.Background()

	_, err := cached.FindByID(ctx, "session-1")
	require.NoError(t, err)
	require.True(t, mr.Exists("session:session-1"))

	session := backing.session
	session.Status = models.SessionInProgress
	require.NoError(t, cached.Update(ctx, session))

	assert.False(t, mr.Exists("session:session-1"))

	// Next read refills from the backing store with the new status.
	found, err := cached.FindByID(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionInProgress, found.Status)
	assert.Equal(t, 2, backing.finds)
}

func TestSessionCache_CorruptEntryFallsBack(t *testing.T) {
	cached, backing, mr := newCacheFixture(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("session:session-1", "{not json"))

	found, err := cached.FindByID(ctx, "session-1")

	require.NoError(t, err)
	assert.Equal(t, "session-1", found.ID)
	assert.Equal(t, 1, backing.finds)

	// The corrupt entry was replaced with a good one.
	raw, err := mr.Get("session:session-1")
	require.NoError(t, err)
	var roundTrip models.ValidationSession
	assert.NoError(t, json.Unmarshal([]byte(raw), &roundTrip))
}

func TestSessionCache_FillUsesConfiguredTTL(t *testing.T) {
	client, mock := redismock.NewClientMock()
	backing := &countingSessionRepo{session: testSession()}
	cached := NewCachedSessionRepository(backing, client, 5*time.Minute, logger.NewTestLogger(t))

	data, err := json.Marshal(backing.session)
	require.NoError(t, err)
	mock.ExpectGet("session:session-1").RedisNil()
	mock.ExpectSet("session:session-1", data, 5*time.Minute).SetVal("OK")

	_, err = cached.FindByID(context.Background(), "session-1")

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionCache_BackingErrorPropagates(t *testing.T) {
	cached, _, _ := newCacheFixture(t)

	_, err := cached.FindByID(context.Background(), "missing")

	assert.True(t, commonerrors.IsCode(err, commonerrors.ErrCodeNotFound))
}

func TestSessionCache_RedisDownFallsBack(t *testing.T) {
	cached, backing, mr := newCacheFixture(t)
	mr.Close()

	found, err := cached.FindByID(context.Background(), "session-1")

	require.NoError(t, err)
	assert.Equal(t, "session-1", found.ID)
	assert.Equal(t, 1, backing.finds)
}
