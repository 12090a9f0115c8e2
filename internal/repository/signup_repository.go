package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/czhao39/ion/internal/models"
)

// Sentinel errors surfaced from plan application. The service layer
// translates them into typed API errors.
var (
	// ErrDuplicateSignup reports that a concurrent writer claimed the
	// (user, block) slot first. The whole transaction was rolled back
	// and may be retried.
	ErrDuplicateSignup = errors.New("signup already exists for user and block")
	// ErrCapacityExceeded reports that the in-transaction occupancy
	// re-check found the occurrence full.
	ErrCapacityExceeded = errors.New("scheduled activity is at capacity")
)

// SignupRepository owns the signup ledger. All mutation goes through
// Apply or the delete helpers so the ledger invariants stay with one
// writer.
type SignupRepository struct {
	db *sqlx.DB
}

// NewSignupRepository constructs the repository.
func NewSignupRepository(db *sqlx.DB) *SignupRepository {
	return &SignupRepository{db: db}
}

// signupRow is the flat join row for signup detail queries.
type signupRow struct {
	ID                       string    `db:"id"`
	UserID                   string    `db:"user_id"`
	ScheduledActivityID      string    `db:"scheduled_activity_id"`
	BlockID                  string    `db:"block_id"`
	AfterDeadline            bool      `db:"after_deadline"`
	PreviousActivityName     *string   `db:"previous_activity_name"`
	PreviousActivitySponsors *string   `db:"previous_activity_sponsors"`
	PassAccepted             bool      `db:"pass_accepted"`
	WasAbsent                bool      `db:"was_absent"`
	AbsenceAcknowledged      bool      `db:"absence_acknowledged"`
	CreatedAt                time.Time `db:"created_at"`
	UpdatedAt                time.Time `db:"updated_at"`

	BlockDate   time.Time `db:"date"`
	BlockLetter string    `db:"block_letter"`
	BlockLocked bool      `db:"locked"`

	ActivityID     string `db:"activity_id"`
	ActivityName   string `db:"name"`
	Presign        bool   `db:"presign"`
	OneADay        bool   `db:"one_a_day"`
	BothBlocks     bool   `db:"both_blocks"`
	Sticky         bool   `db:"sticky"`
	Special        bool   `db:"special"`
	Administrative bool   `db:"administrative"`
	Restricted     bool   `db:"restricted"`
	Deleted        bool   `db:"deleted"`
}

func (row *signupRow) toDetail() models.SignupDetail {
	return models.SignupDetail{
		Signup: models.Signup{
			ID:                       row.ID,
			UserID:                   row.UserID,
			ScheduledActivityID:      row.ScheduledActivityID,
			BlockID:                  row.BlockID,
			AfterDeadline:            row.AfterDeadline,
			PreviousActivityName:     row.PreviousActivityName,
			PreviousActivitySponsors: row.PreviousActivitySponsors,
			PassAccepted:             row.PassAccepted,
			WasAbsent:                row.WasAbsent,
			AbsenceAcknowledged:      row.AbsenceAcknowledged,
			CreatedAt:                row.CreatedAt,
			UpdatedAt:                row.UpdatedAt,
		},
		Block: models.Block{
			ID:          row.BlockID,
			Date:        row.BlockDate,
			BlockLetter: row.BlockLetter,
			Locked:      row.BlockLocked,
		},
		Activity: models.Activity{
			ID:             row.ActivityID,
			Name:           row.ActivityName,
			Presign:        row.Presign,
			OneADay:        row.OneADay,
			BothBlocks:     row.BothBlocks,
			Sticky:         row.Sticky,
			Special:        row.Special,
			Administrative: row.Administrative,
			Restricted:     row.Restricted,
			Deleted:        row.Deleted,
		},
	}
}

const signupJoin = `SELECT s.id, s.user_id, s.scheduled_activity_id, s.block_id, s.after_deadline,
        s.previous_activity_name, s.previous_activity_sponsors, s.pass_accepted, s.was_absent,
        s.absence_acknowledged, s.created_at, s.updated_at,
        b.date, b.block_letter, b.locked,
        a.id AS activity_id, a.name, a.presign, a.one_a_day, a.both_blocks, a.sticky, a.special,
        a.administrative, a.restricted, a.deleted
        FROM eighth_signups s
        JOIN eighth_blocks b ON b.id = s.block_id
        JOIN eighth_scheduled_activities sa ON sa.id = s.scheduled_activity_id
        JOIN eighth_activities a ON a.id = sa.activity_id`

// FindByUserAndBlock returns the signup a user holds in a block, if any.
func (r *SignupRepository) FindByUserAndBlock(ctx context.Context, userID, blockID string) (*models.SignupDetail, error) {
	query := signupJoin + ` WHERE s.user_id = $1 AND s.block_id = $2`
	var row signupRow
	if err := r.db.GetContext(ctx, &row, query, userID, blockID); err != nil {
		return nil, err
	}
	detail := row.toDetail()
	return &detail, nil
}

// ListByUserAndDate returns every signup a user holds on a date,
// ordered by block letter.
func (r *SignupRepository) ListByUserAndDate(ctx context.Context, userID string, date time.Time) ([]models.SignupDetail, error) {
	query := signupJoin + ` WHERE s.user_id = $1 AND b.date = $2 ORDER BY b.block_letter`
	var rows []signupRow
	if err := r.db.SelectContext(ctx, &rows, query, userID, date.Format("2006-01-02")); err != nil {
		return nil, fmt.Errorf("list signups by date: %w", err)
	}
	details := make([]models.SignupDetail, len(rows))
	for i := range rows {
		details[i] = rows[i].toDetail()
	}
	return details, nil
}

// ListByUser returns a user's full signup schedule ordered by block.
func (r *SignupRepository) ListByUser(ctx context.Context, userID string) ([]models.SignupDetail, error) {
	query := signupJoin + ` WHERE s.user_id = $1 ORDER BY b.date, b.block_letter`
	var rows []signupRow
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("list signups: %w", err)
	}
	details := make([]models.SignupDetail, len(rows))
	for i := range rows {
		details[i] = rows[i].toDetail()
	}
	return details, nil
}

// ListRosterByBlock returns the attendance roster for a block: every
// signup joined to its user and activity, ordered by activity then
// student name.
func (r *SignupRepository) ListRosterByBlock(ctx context.Context, blockID string) ([]models.RosterEntry, error) {
	const query = `SELECT u.full_name, u.email, a.name, s.after_deadline
        FROM eighth_signups s
        JOIN users u ON u.id = s.user_id
        JOIN eighth_scheduled_activities sa ON sa.id = s.scheduled_activity_id
        JOIN eighth_activities a ON a.id = sa.activity_id
        WHERE s.block_id = $1 ORDER BY a.name, u.full_name`
	var entries []models.RosterEntry
	if err := r.db.SelectContext(ctx, &entries, query, blockID); err != nil {
		return nil, fmt.Errorf("list block roster entries: %w", err)
	}
	return entries, nil
}

// ExistsStickyInBlock reports whether the user already holds a signup
// in a sticky activity for this block.
func (r *SignupRepository) ExistsStickyInBlock(ctx context.Context, userID, blockID string) (bool, error) {
	const query = `SELECT 1 FROM eighth_signups s
        JOIN eighth_scheduled_activities sa ON sa.id = s.scheduled_activity_id
        JOIN eighth_activities a ON a.id = sa.activity_id
        WHERE s.user_id = $1 AND s.block_id = $2 AND a.sticky = TRUE LIMIT 1`
	return r.exists(ctx, query, userID, blockID)
}

// ExistsStickyOnDate reports whether the user holds a sticky signup in
// the given activity anywhere on the date. This is the both-blocks
// variant of the sticky check and deliberately scopes to one activity.
func (r *SignupRepository) ExistsStickyOnDate(ctx context.Context, userID string, date time.Time, activityID string) (bool, error) {
	const query = `SELECT 1 FROM eighth_signups s
        JOIN eighth_blocks b ON b.id = s.block_id
        JOIN eighth_scheduled_activities sa ON sa.id = s.scheduled_activity_id
        JOIN eighth_activities a ON a.id = sa.activity_id
        WHERE s.user_id = $1 AND b.date = $2 AND sa.activity_id = $3 AND a.sticky = TRUE LIMIT 1`
	return r.exists(ctx, query, userID, date.Format("2006-01-02"), activityID)
}

// ExistsSameActivityOnDate reports whether the user already holds a
// signup for this activity on another block of the same day.
func (r *SignupRepository) ExistsSameActivityOnDate(ctx context.Context, userID string, date time.Time, activityID, excludeBlockID string) (bool, error) {
	const query = `SELECT 1 FROM eighth_signups s
        JOIN eighth_blocks b ON b.id = s.block_id
        JOIN eighth_scheduled_activities sa ON sa.id = s.scheduled_activity_id
        WHERE s.user_id = $1 AND b.date = $2 AND sa.activity_id = $3 AND s.block_id <> $4 LIMIT 1`
	return r.exists(ctx, query, userID, date.Format("2006-01-02"), activityID, excludeBlockID)
}

func (r *SignupRepository) exists(ctx context.Context, query string, args ...interface{}) (bool, error) {
	var one int
	if err := r.db.GetContext(ctx, &one, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("existence check: %w", err)
	}
	return true, nil
}

// Apply executes a signup plan as one serializable transaction:
// same-day deletes first, then the in-place reassignment or the
// creates, with an occupancy re-check for every non-forced create.
// Either the whole plan lands or none of it does.
func (r *SignupRepository) Apply(ctx context.Context, plan *models.SignupPlan) (err error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin signup transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if plan.ClearDay {
		const clearQuery = `DELETE FROM eighth_signups s USING eighth_blocks b
            WHERE s.block_id = b.id AND s.user_id = $1 AND b.date = $2`
		if _, err = tx.ExecContext(ctx, clearQuery, plan.UserID, plan.Date.Format("2006-01-02")); err != nil {
			return fmt.Errorf("clear day signups: %w", err)
		}
	}

	if !plan.Force {
		for _, check := range plan.CapacityChecks {
			if check.Capacity == models.UnlimitedCapacity {
				continue
			}
			var count int
			const countQuery = `SELECT COUNT(*) FROM eighth_signups WHERE scheduled_activity_id = $1`
			if err = tx.GetContext(ctx, &count, countQuery, check.ScheduledActivityID); err != nil {
				return fmt.Errorf("recount occupancy: %w", err)
			}
			if count >= check.Capacity {
				err = ErrCapacityExceeded
				return err
			}
		}
	}

	now := time.Now().UTC()

	if plan.Reassign != nil {
		const reassignQuery = `UPDATE eighth_signups
            SET scheduled_activity_id = $2, block_id = $3, after_deadline = $4,
                previous_activity_name = $5, previous_activity_sponsors = $6,
                was_absent = FALSE, absence_acknowledged = FALSE, pass_accepted = FALSE,
                updated_at = $7
            WHERE id = $1`
		if _, err = tx.ExecContext(ctx, reassignQuery,
			plan.Reassign.SignupID,
			plan.Reassign.ScheduledActivityID,
			plan.Reassign.BlockID,
			plan.AfterDeadline,
			plan.Reassign.PreviousActivityName,
			plan.Reassign.PreviousActivitySponsors,
			now,
		); err != nil {
			return fmt.Errorf("reassign signup: %w", err)
		}
	}

	for _, create := range plan.Creates {
		const insertQuery = `INSERT INTO eighth_signups
            (id, user_id, scheduled_activity_id, block_id, after_deadline,
             previous_activity_name, previous_activity_sponsors,
             pass_accepted, was_absent, absence_acknowledged, created_at, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, FALSE, FALSE, $8, $8)`
		if _, err = tx.ExecContext(ctx, insertQuery,
			uuid.NewString(),
			plan.UserID,
			create.ScheduledActivityID,
			create.BlockID,
			plan.AfterDeadline,
			create.PreviousActivityName,
			create.PreviousActivitySponsors,
			now,
		); err != nil {
			if isUniqueViolation(err) {
				err = ErrDuplicateSignup
				return err
			}
			return fmt.Errorf("create signup: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			err = ErrDuplicateSignup
			return err
		}
		return fmt.Errorf("commit signup transaction: %w", err)
	}
	return nil
}

// DeleteByID removes one signup row.
func (r *SignupRepository) DeleteByID(ctx context.Context, id string) error {
	const query = `DELETE FROM eighth_signups WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete signup: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteByUserDateActivity removes every signup the user holds for one
// activity across the date's blocks. Both-blocks removal runs through
// here so enrollment stays all-or-none.
func (r *SignupRepository) DeleteByUserDateActivity(ctx context.Context, userID string, date time.Time, activityID string) error {
	const query = `DELETE FROM eighth_signups s USING eighth_blocks b, eighth_scheduled_activities sa
        WHERE s.block_id = b.id AND s.scheduled_activity_id = sa.id
        AND s.user_id = $1 AND b.date = $2 AND sa.activity_id = $3`
	if _, err := r.db.ExecContext(ctx, query, userID, date.Format("2006-01-02"), activityID); err != nil {
		return fmt.Errorf("delete same-day signups: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
