package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/czhao39/ion/internal/models"
	"github.com/czhao39/ion/pkg/export"
	appErrors "github.com/czhao39/ion/pkg/errors"
)

type catalogBlockRepository interface {
	FindByID(ctx context.Context, id string) (*models.Block, error)
	List(ctx context.Context, filter models.BlockFilter) ([]models.Block, int, error)
	FindFirstUpcoming(ctx context.Context, day time.Time) (*models.Block, error)
	SetLocked(ctx context.Context, id string, locked bool) error
}

type catalogActivityRepository interface {
	FindByID(ctx context.Context, id string) (*models.Activity, error)
	ListUndeleted(ctx context.Context) ([]models.Activity, error)
	ToggleFavorite(ctx context.Context, activityID, userID string) (bool, error)
	IsFavorite(ctx context.Context, activityID, userID string) (bool, error)
}

type catalogOccurrenceRepository interface {
	ListByBlock(ctx context.Context, blockID string) ([]models.ScheduledActivityDetail, error)
}

type catalogLedgerReader interface {
	FindByUserAndBlock(ctx context.Context, userID, blockID string) (*models.SignupDetail, error)
	ListRosterByBlock(ctx context.Context, blockID string) ([]models.RosterEntry, error)
}

type rosterCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type cacheObserver interface {
	ObserveRosterCache(hit bool)
}

// CatalogConfig tunes catalog reads.
type CatalogConfig struct {
	// DayCutoverHour is the local hour after which the "current" block
	// advances past today.
	DayCutoverHour int
	RosterCacheTTL time.Duration
}

// CatalogService serves the read side of the signup surface: block
// listings, per-block rosters, the activity catalog and favorites.
type CatalogService struct {
	blocks      catalogBlockRepository
	activities  catalogActivityRepository
	occurrences catalogOccurrenceRepository
	ledger      catalogLedgerReader
	cache       rosterCache
	metrics     cacheObserver
	cfg         CatalogConfig
	logger      *zap.Logger
	now         func() time.Time
}

// NewCatalogService constructs CatalogService.
func NewCatalogService(blocks catalogBlockRepository, activities catalogActivityRepository, occurrences catalogOccurrenceRepository, ledger catalogLedgerReader, cache rosterCache, cfg CatalogConfig, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DayCutoverHour <= 0 {
		cfg.DayCutoverHour = 17
	}
	if cfg.RosterCacheTTL <= 0 {
		cfg.RosterCacheTTL = 2 * time.Minute
	}
	return &CatalogService{
		blocks:      blocks,
		activities:  activities,
		occurrences: occurrences,
		ledger:      ledger,
		cache:       cache,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// SetMetrics attaches an optional cache instrumentation sink.
func (s *CatalogService) SetMetrics(m cacheObserver) {
	s.metrics = m
}

// ListBlocks returns blocks with pagination metadata.
func (s *CatalogService) ListBlocks(ctx context.Context, filter models.BlockFilter) ([]models.Block, *models.Pagination, error) {
	blocks, total, err := s.blocks.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list blocks")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	return blocks, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// CurrentBlock returns the first upcoming block. The same day counts
// until the cutover hour; after that the search starts tomorrow.
func (s *CatalogService) CurrentBlock(ctx context.Context) (*models.Block, error) {
	now := s.now()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if now.Hour() >= s.cfg.DayCutoverHour {
		day = day.AddDate(0, 0, 1)
	}
	block, err := s.blocks.FindFirstUpcoming(ctx, day)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no blocks have been scheduled")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to find current block")
	}
	return block, nil
}

// BlockRoster returns a block's scheduled activities with occupancy,
// plus the viewer's current signup. The occurrence list is cached.
func (s *CatalogService) BlockRoster(ctx context.Context, blockID, viewerID string) (*models.BlockRosterView, error) {
	block, err := s.blocks.FindByID(ctx, blockID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "block not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load block")
	}

	var activities []models.ScheduledActivityDetail
	key := rosterCacheKey(blockID)
	cached := s.cache != nil && s.cache.Get(ctx, key, &activities) == nil
	if s.metrics != nil {
		s.metrics.ObserveRosterCache(cached)
	}
	if !cached {
		activities, err = s.occurrences.ListByBlock(ctx, blockID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load block roster")
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, key, activities, s.cfg.RosterCacheTTL); err != nil {
				s.logger.Warn("roster cache write failed", zap.String("block_id", blockID), zap.Error(err))
			}
		}
	}

	view := &models.BlockRosterView{Block: *block, Activities: activities}
	if viewerID != "" {
		signup, err := s.ledger.FindByUserAndBlock(ctx, viewerID, blockID)
		if err == nil {
			view.UserSignup = signup
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current signup")
		}
	}
	return view, nil
}

// InvalidateRoster drops cached rosters for the given blocks. Called
// by the signup coordinator after every ledger mutation.
func (s *CatalogService) InvalidateRoster(ctx context.Context, blockIDs ...string) {
	if s.cache == nil || len(blockIDs) == 0 {
		return
	}
	keys := make([]string, len(blockIDs))
	for i, id := range blockIDs {
		keys[i] = rosterCacheKey(id)
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn("roster cache invalidation failed", zap.Error(err))
	}
}

// ListActivities returns the catalog of activities open to signups.
func (s *CatalogService) ListActivities(ctx context.Context) ([]models.Activity, error) {
	activities, err := s.activities.ListUndeleted(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list activities")
	}
	return activities, nil
}

// ActivityDetail pairs an activity with the viewer's favorite mark.
type ActivityDetail struct {
	models.Activity
	Favorited bool `json:"favorited"`
}

// GetActivity returns one activity with the viewer's favorite state.
func (s *CatalogService) GetActivity(ctx context.Context, id, viewerID string) (*ActivityDetail, error) {
	activity, err := s.activities.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "activity not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load activity")
	}
	detail := &ActivityDetail{Activity: *activity}
	if viewerID != "" {
		favorited, err := s.activities.IsFavorite(ctx, id, viewerID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load favorite state")
		}
		detail.Favorited = favorited
	}
	return detail, nil
}

// ToggleFavorite flips the caller's favorite mark on an activity and
// reports the new state.
func (s *CatalogService) ToggleFavorite(ctx context.Context, activityID, userID string) (bool, error) {
	if _, err := s.activities.FindByID(ctx, activityID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, appErrors.Clone(appErrors.ErrNotFound, "activity not found")
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load activity")
	}
	favorited, err := s.activities.ToggleFavorite(ctx, activityID, userID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to toggle favorite")
	}
	return favorited, nil
}

// SetBlockLocked toggles signups on a block.
func (s *CatalogService) SetBlockLocked(ctx context.Context, blockID string, locked bool) (*models.Block, error) {
	if err := s.blocks.SetLocked(ctx, blockID, locked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "block not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update block lock")
	}
	s.InvalidateRoster(ctx, blockID)
	block, err := s.blocks.FindByID(ctx, blockID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload block")
	}
	return block, nil
}

// ExportRoster renders a block's attendance roster as a CSV or PDF
// dataset.
func (s *CatalogService) ExportRoster(ctx context.Context, blockID, format string) ([]byte, string, error) {
	block, err := s.blocks.FindByID(ctx, blockID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "block not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load block")
	}
	entries, err := s.ledger.ListRosterByBlock(ctx, blockID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster entries")
	}

	dataset := export.Dataset{
		Headers: []string{"Student", "Email", "Activity", "Pass"},
		Rows:    make([]map[string]string, len(entries)),
	}
	for i, entry := range entries {
		dataset.Rows[i] = map[string]string{
			"Student":  entry.UserName,
			"Email":    entry.Email,
			"Activity": entry.ActivityName,
			"Pass":     strconv.FormatBool(entry.AfterDeadline),
		}
	}

	title := fmt.Sprintf("Eighth Period Roster %s", block.DisplayName())
	switch format {
	case "pdf":
		payload, err := export.NewPDFExporter().Render(dataset, title)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster pdf")
		}
		return payload, "application/pdf", nil
	case "", "csv":
		payload, err := export.NewCSVExporter().Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster csv")
		}
		return payload, "text/csv", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}

func rosterCacheKey(blockID string) string {
	return "eighth:roster:" + blockID
}
