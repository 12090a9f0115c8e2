package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/czhao39/ion/internal/models"
)

// ActivityRepository handles persistence of eighth-period activities
// and their allow-lists.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository constructs the repository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

const activityColumns = `id, name, description, presign, one_a_day, both_blocks, sticky, special,
        administrative, restricted, deleted, freshmen_allowed, sophomores_allowed, juniors_allowed,
        seniors_allowed, created_at, updated_at`

// FindByID returns an activity by its ID, soft-deleted or not.
func (r *ActivityRepository) FindByID(ctx context.Context, id string) (*models.Activity, error) {
	query := fmt.Sprintf(`SELECT %s FROM eighth_activities WHERE id = $1`, activityColumns)
	var activity models.Activity
	if err := r.db.GetContext(ctx, &activity, query, id); err != nil {
		return nil, err
	}
	return &activity, nil
}

// ListUndeleted returns activities available for new signups. The
// deleted flag is a soft delete: filtered here, preserved for history.
func (r *ActivityRepository) ListUndeleted(ctx context.Context) ([]models.Activity, error) {
	query := fmt.Sprintf(`SELECT %s FROM eighth_activities WHERE deleted = FALSE ORDER BY name`, activityColumns)
	var activities []models.Activity
	if err := r.db.SelectContext(ctx, &activities, query); err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	return activities, nil
}

// RestrictedActivityIDsForUser resolves the restricted-activity
// allow-list for a user: explicit per-user entries, entries for any of
// the user's groups, and grade-level flags.
func (r *ActivityRepository) RestrictedActivityIDsForUser(ctx context.Context, user *models.User, groupIDs []string) ([]string, error) {
	allowed := make(map[string]struct{})

	const userQuery = `SELECT activity_id FROM eighth_activity_users_allowed WHERE user_id = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, userQuery, user.ID); err != nil {
		return nil, fmt.Errorf("list user allow-list: %w", err)
	}
	for _, id := range ids {
		allowed[id] = struct{}{}
	}

	if len(groupIDs) > 0 {
		groupQuery, args, err := sqlx.In(`SELECT activity_id FROM eighth_activity_groups_allowed WHERE group_id IN (?)`, groupIDs)
		if err != nil {
			return nil, fmt.Errorf("build group allow-list query: %w", err)
		}
		ids = ids[:0]
		if err := r.db.SelectContext(ctx, &ids, r.db.Rebind(groupQuery), args...); err != nil {
			return nil, fmt.Errorf("list group allow-list: %w", err)
		}
		for _, id := range ids {
			allowed[id] = struct{}{}
		}
	}

	if user.Grade != nil {
		var gradeColumn string
		switch *user.Grade {
		case 9:
			gradeColumn = "freshmen_allowed"
		case 10:
			gradeColumn = "sophomores_allowed"
		case 11:
			gradeColumn = "juniors_allowed"
		case 12:
			gradeColumn = "seniors_allowed"
		}
		if gradeColumn != "" {
			gradeQuery := fmt.Sprintf(`SELECT id FROM eighth_activities WHERE %s = TRUE`, gradeColumn)
			ids = ids[:0]
			if err := r.db.SelectContext(ctx, &ids, gradeQuery); err != nil {
				return nil, fmt.Errorf("list grade allow-list: %w", err)
			}
			for _, id := range ids {
				allowed[id] = struct{}{}
			}
		}
	}

	result := make([]string, 0, len(allowed))
	for id := range allowed {
		result = append(result, id)
	}
	return result, nil
}

// ToggleFavorite flips the favorite mark for (user, activity) and
// reports whether the activity is now favorited.
func (r *ActivityRepository) ToggleFavorite(ctx context.Context, activityID, userID string) (bool, error) {
	const deleteQuery = `DELETE FROM eighth_activity_favorites WHERE activity_id = $1 AND user_id = $2`
	res, err := r.db.ExecContext(ctx, deleteQuery, activityID, userID)
	if err != nil {
		return false, fmt.Errorf("unfavorite activity: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected > 0 {
		return false, nil
	}

	const insertQuery = `INSERT INTO eighth_activity_favorites (activity_id, user_id) VALUES ($1, $2)`
	if _, err := r.db.ExecContext(ctx, insertQuery, activityID, userID); err != nil {
		return false, fmt.Errorf("favorite activity: %w", err)
	}
	return true, nil
}

// IsFavorite reports whether the user has favorited the activity.
func (r *ActivityRepository) IsFavorite(ctx context.Context, activityID, userID string) (bool, error) {
	const query = `SELECT 1 FROM eighth_activity_favorites WHERE activity_id = $1 AND user_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, activityID, userID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check favorite: %w", err)
	}
	return true, nil
}
