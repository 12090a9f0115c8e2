package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/czhao39/ion/internal/models"
	appErrors "github.com/czhao39/ion/pkg/errors"
)

type mockCatalogBlocks struct {
	block       *models.Block
	blocks      []models.Block
	upcoming    *models.Block
	upcomingDay time.Time
	upcomingErr error
	lockedSet   *bool
	setLockErr  error
}

func (m *mockCatalogBlocks) FindByID(ctx context.Context, id string) (*models.Block, error) {
	if m.block == nil {
		return nil, sql.ErrNoRows
	}
	return m.block, nil
}

func (m *mockCatalogBlocks) List(ctx context.Context, filter models.BlockFilter) ([]models.Block, int, error) {
	return m.blocks, len(m.blocks), nil
}

func (m *mockCatalogBlocks) FindFirstUpcoming(ctx context.Context, day time.Time) (*models.Block, error) {
	m.upcomingDay = day
	if m.upcomingErr != nil {
		return nil, m.upcomingErr
	}
	return m.upcoming, nil
}

func (m *mockCatalogBlocks) SetLocked(ctx context.Context, id string, locked bool) error {
	if m.setLockErr != nil {
		return m.setLockErr
	}
	m.lockedSet = &locked
	return nil
}

type mockCatalogActivities struct {
	activity  *models.Activity
	favorited bool
}

func (m *mockCatalogActivities) FindByID(ctx context.Context, id string) (*models.Activity, error) {
	if m.activity == nil {
		return nil, sql.ErrNoRows
	}
	return m.activity, nil
}

func (m *mockCatalogActivities) ListUndeleted(ctx context.Context) ([]models.Activity, error) {
	if m.activity == nil {
		return nil, nil
	}
	return []models.Activity{*m.activity}, nil
}

func (m *mockCatalogActivities) ToggleFavorite(ctx context.Context, activityID, userID string) (bool, error) {
	m.favorited = !m.favorited
	return m.favorited, nil
}

func (m *mockCatalogActivities) IsFavorite(ctx context.Context, activityID, userID string) (bool, error) {
	return m.favorited, nil
}

type mockCatalogOccurrences struct {
	activities []models.ScheduledActivityDetail
	calls      int
}

func (m *mockCatalogOccurrences) ListByBlock(ctx context.Context, blockID string) ([]models.ScheduledActivityDetail, error) {
	m.calls++
	return m.activities, nil
}

type mockCatalogLedger struct {
	signup  *models.SignupDetail
	entries []models.RosterEntry
}

func (m *mockCatalogLedger) FindByUserAndBlock(ctx context.Context, userID, blockID string) (*models.SignupDetail, error) {
	if m.signup == nil {
		return nil, sql.ErrNoRows
	}
	return m.signup, nil
}

func (m *mockCatalogLedger) ListRosterByBlock(ctx context.Context, blockID string) ([]models.RosterEntry, error) {
	return m.entries, nil
}

type memoryCache struct {
	data    map[string][]byte
	deleted []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string][]byte)}
}

func (c *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := c.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = raw
	return nil
}

func (c *memoryCache) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(c.data, key)
		c.deleted = append(c.deleted, key)
	}
	return nil
}

type catalogFixture struct {
	blocks      *mockCatalogBlocks
	activities  *mockCatalogActivities
	occurrences *mockCatalogOccurrences
	ledger      *mockCatalogLedger
	cache       *memoryCache
	svc         *CatalogService
}

func newCatalogFixture() *catalogFixture {
	block := &models.Block{ID: "b1", Date: time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC), BlockLetter: "A"}
	f := &catalogFixture{
		blocks:      &mockCatalogBlocks{block: block, upcoming: block},
		activities:  &mockCatalogActivities{activity: &models.Activity{ID: "act1", Name: "Chess Club"}},
		occurrences: &mockCatalogOccurrences{activities: []models.ScheduledActivityDetail{*testOccurrence(nil)}},
		ledger:      &mockCatalogLedger{},
		cache:       newMemoryCache(),
	}
	f.svc = NewCatalogService(f.blocks, f.activities, f.occurrences, f.ledger, f.cache, CatalogConfig{
		DayCutoverHour: 17,
		RosterCacheTTL: time.Minute,
	}, zap.NewNop())
	return f
}

func TestCurrentBlockBeforeCutover(t *testing.T) {
	f := newCatalogFixture()
	f.svc.now = func() time.Time {
		return time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)
	}

	_, err := f.svc.CurrentBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC), f.blocks.upcomingDay)
}

func TestCurrentBlockAfterCutoverAdvancesDay(t *testing.T) {
	f := newCatalogFixture()
	f.svc.now = func() time.Time {
		return time.Date(2026, 4, 10, 18, 30, 0, 0, time.UTC)
	}

	_, err := f.svc.CurrentBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 4, 11, 0, 0, 0, 0, time.UTC), f.blocks.upcomingDay)
}

func TestCurrentBlockNoneScheduled(t *testing.T) {
	f := newCatalogFixture()
	f.blocks.upcomingErr = sql.ErrNoRows

	_, err := f.svc.CurrentBlock(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestBlockRosterCachesOccurrences(t *testing.T) {
	f := newCatalogFixture()

	view, err := f.svc.BlockRoster(context.Background(), "b1", "")
	require.NoError(t, err)
	assert.Len(t, view.Activities, 1)
	assert.Equal(t, 1, f.occurrences.calls)

	// Second read is served from the cache.
	view, err = f.svc.BlockRoster(context.Background(), "b1", "")
	require.NoError(t, err)
	assert.Len(t, view.Activities, 1)
	assert.Equal(t, 1, f.occurrences.calls)
}

func TestBlockRosterAttachesViewerSignup(t *testing.T) {
	f := newCatalogFixture()
	f.ledger.signup = &models.SignupDetail{Signup: models.Signup{ID: "s1", UserID: "u1", BlockID: "b1"}}

	view, err := f.svc.BlockRoster(context.Background(), "b1", "u1")
	require.NoError(t, err)
	require.NotNil(t, view.UserSignup)
	assert.Equal(t, "s1", view.UserSignup.ID)
}

func TestInvalidateRosterDropsCacheKeys(t *testing.T) {
	f := newCatalogFixture()

	_, err := f.svc.BlockRoster(context.Background(), "b1", "")
	require.NoError(t, err)

	f.svc.InvalidateRoster(context.Background(), "b1")
	assert.Contains(t, f.cache.deleted, "eighth:roster:b1")

	_, err = f.svc.BlockRoster(context.Background(), "b1", "")
	require.NoError(t, err)
	assert.Equal(t, 2, f.occurrences.calls)
}

func TestSetBlockLockedInvalidatesRoster(t *testing.T) {
	f := newCatalogFixture()
	_, err := f.svc.BlockRoster(context.Background(), "b1", "")
	require.NoError(t, err)

	block, err := f.svc.SetBlockLocked(context.Background(), "b1", true)
	require.NoError(t, err)
	assert.Equal(t, "b1", block.ID)
	require.NotNil(t, f.blocks.lockedSet)
	assert.True(t, *f.blocks.lockedSet)
	assert.Contains(t, f.cache.deleted, "eighth:roster:b1")
}

func TestGetActivityIncludesFavoriteState(t *testing.T) {
	f := newCatalogFixture()
	f.activities.favorited = true

	detail, err := f.svc.GetActivity(context.Background(), "act1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Chess Club", detail.Name)
	assert.True(t, detail.Favorited)

	anonymous, err := f.svc.GetActivity(context.Background(), "act1", "")
	require.NoError(t, err)
	assert.False(t, anonymous.Favorited)
}

func TestToggleFavoriteUnknownActivity(t *testing.T) {
	f := newCatalogFixture()
	f.activities.activity = nil

	_, err := f.svc.ToggleFavorite(context.Background(), "missing", "u1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExportRosterCSV(t *testing.T) {
	f := newCatalogFixture()
	f.ledger.entries = []models.RosterEntry{
		{UserName: "Ada Lovelace", Email: "ada@example.com", ActivityName: "Chess Club", AfterDeadline: false},
		{UserName: "Grace Hopper", Email: "grace@example.com", ActivityName: "Robotics", AfterDeadline: true},
	}

	payload, contentType, err := f.svc.ExportRoster(context.Background(), "b1", "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	assert.True(t, bytes.HasPrefix(payload, []byte("Student,Email,Activity,Pass\n")))
	assert.Contains(t, string(payload), "Ada Lovelace,ada@example.com,Chess Club,false")
	assert.Contains(t, string(payload), "Grace Hopper,grace@example.com,Robotics,true")
}

func TestExportRosterPDF(t *testing.T) {
	f := newCatalogFixture()
	f.ledger.entries = []models.RosterEntry{
		{UserName: "Ada Lovelace", Email: "ada@example.com", ActivityName: "Chess Club"},
	}

	payload, contentType, err := f.svc.ExportRoster(context.Background(), "b1", "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)
	assert.True(t, bytes.HasPrefix(payload, []byte("%PDF")))
}

func TestExportRosterUnknownFormat(t *testing.T) {
	f := newCatalogFixture()

	_, _, err := f.svc.ExportRoster(context.Background(), "b1", "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestBlockRosterMissingBlock(t *testing.T) {
	f := newCatalogFixture()
	f.blocks.block = nil

	_, err := f.svc.BlockRoster(context.Background(), "missing", "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
