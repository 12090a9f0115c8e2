package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/czhao39/ion/internal/models"
)

// ScheduledActivityRepository handles persistence of activity
// occurrences and their override resolution.
type ScheduledActivityRepository struct {
	db *sqlx.DB
}

// NewScheduledActivityRepository constructs the repository.
func NewScheduledActivityRepository(db *sqlx.DB) *ScheduledActivityRepository {
	return &ScheduledActivityRepository{db: db}
}

// scheduledActivityRow is the flat join row for detail queries.
type scheduledActivityRow struct {
	ID              string    `db:"id"`
	BlockID         string    `db:"block_id"`
	ActivityID      string    `db:"activity_id"`
	Capacity        *int      `db:"capacity"`
	Comments        string    `db:"comments"`
	AdminComments   string    `db:"admin_comments"`
	AttendanceTaken bool      `db:"attendance_taken"`
	Cancelled       bool      `db:"cancelled"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`

	BlockDate       time.Time  `db:"date"`
	BlockLetter     string     `db:"block_letter"`
	BlockLocked     bool       `db:"locked"`
	BlockSignupTime *time.Time `db:"signup_time"`

	ActivityName      string `db:"name"`
	Description       string `db:"description"`
	Presign           bool   `db:"presign"`
	OneADay           bool   `db:"one_a_day"`
	BothBlocks        bool   `db:"both_blocks"`
	Sticky            bool   `db:"sticky"`
	Special           bool   `db:"special"`
	Administrative    bool   `db:"administrative"`
	Restricted        bool   `db:"restricted"`
	Deleted           bool   `db:"deleted"`
	FreshmenAllowed   bool   `db:"freshmen_allowed"`
	SophomoresAllowed bool   `db:"sophomores_allowed"`
	JuniorsAllowed    bool   `db:"juniors_allowed"`
	SeniorsAllowed    bool   `db:"seniors_allowed"`
}

func (row *scheduledActivityRow) toDetail() models.ScheduledActivityDetail {
	return models.ScheduledActivityDetail{
		ScheduledActivity: models.ScheduledActivity{
			ID:              row.ID,
			BlockID:         row.BlockID,
			ActivityID:      row.ActivityID,
			Capacity:        row.Capacity,
			Comments:        row.Comments,
			AdminComments:   row.AdminComments,
			AttendanceTaken: row.AttendanceTaken,
			Cancelled:       row.Cancelled,
			CreatedAt:       row.CreatedAt,
			UpdatedAt:       row.UpdatedAt,
		},
		Block: models.Block{
			ID:          row.BlockID,
			Date:        row.BlockDate,
			BlockLetter: row.BlockLetter,
			Locked:      row.BlockLocked,
			SignupTime:  row.BlockSignupTime,
		},
		Activity: models.Activity{
			ID:                row.ActivityID,
			Name:              row.ActivityName,
			Description:       row.Description,
			Presign:           row.Presign,
			OneADay:           row.OneADay,
			BothBlocks:        row.BothBlocks,
			Sticky:            row.Sticky,
			Special:           row.Special,
			Administrative:    row.Administrative,
			Restricted:        row.Restricted,
			Deleted:           row.Deleted,
			FreshmenAllowed:   row.FreshmenAllowed,
			SophomoresAllowed: row.SophomoresAllowed,
			JuniorsAllowed:    row.JuniorsAllowed,
			SeniorsAllowed:    row.SeniorsAllowed,
		},
	}
}

const scheduledActivityJoin = `SELECT sa.id, sa.block_id, sa.activity_id, sa.capacity, sa.comments,
        sa.admin_comments, sa.attendance_taken, sa.cancelled, sa.created_at, sa.updated_at,
        b.date, b.block_letter, b.locked, b.signup_time,
        a.name, a.description, a.presign, a.one_a_day, a.both_blocks, a.sticky, a.special,
        a.administrative, a.restricted, a.deleted, a.freshmen_allowed, a.sophomores_allowed,
        a.juniors_allowed, a.seniors_allowed
        FROM eighth_scheduled_activities sa
        JOIN eighth_blocks b ON b.id = sa.block_id
        JOIN eighth_activities a ON a.id = sa.activity_id`

// FindSignupTarget returns the occurrence for (block, activity),
// excluding soft-deleted activities and cancelled occurrences, the way
// the signup endpoint looks targets up.
func (r *ScheduledActivityRepository) FindSignupTarget(ctx context.Context, blockID, activityID string) (*models.ScheduledActivityDetail, error) {
	query := scheduledActivityJoin + ` WHERE sa.block_id = $1 AND sa.activity_id = $2
        AND a.deleted = FALSE AND sa.cancelled = FALSE`
	var row scheduledActivityRow
	if err := r.db.GetContext(ctx, &row, query, blockID, activityID); err != nil {
		return nil, err
	}
	return r.hydrate(ctx, row)
}

// FindDetailByID returns a fully resolved occurrence regardless of
// deletion or cancellation state.
func (r *ScheduledActivityRepository) FindDetailByID(ctx context.Context, id string) (*models.ScheduledActivityDetail, error) {
	query := scheduledActivityJoin + ` WHERE sa.id = $1`
	var row scheduledActivityRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	return r.hydrate(ctx, row)
}

// ListByActivityAndDate returns every occurrence of the activity on a
// date, the relevant set for both-blocks signups.
func (r *ScheduledActivityRepository) ListByActivityAndDate(ctx context.Context, activityID string, date time.Time) ([]models.ScheduledActivityDetail, error) {
	query := scheduledActivityJoin + ` WHERE sa.activity_id = $1 AND b.date = $2 ORDER BY b.block_letter`
	var rows []scheduledActivityRow
	if err := r.db.SelectContext(ctx, &rows, query, activityID, date.Format("2006-01-02")); err != nil {
		return nil, fmt.Errorf("list occurrences by date: %w", err)
	}
	details := make([]models.ScheduledActivityDetail, 0, len(rows))
	for _, row := range rows {
		detail, err := r.hydrate(ctx, row)
		if err != nil {
			return nil, err
		}
		details = append(details, *detail)
	}
	return details, nil
}

// ListByBlock returns the block's roster of occurrences. Soft-deleted
// activities are excluded from signup-facing listings.
func (r *ScheduledActivityRepository) ListByBlock(ctx context.Context, blockID string) ([]models.ScheduledActivityDetail, error) {
	query := scheduledActivityJoin + ` WHERE sa.block_id = $1 AND a.deleted = FALSE ORDER BY a.name`
	var rows []scheduledActivityRow
	if err := r.db.SelectContext(ctx, &rows, query, blockID); err != nil {
		return nil, fmt.Errorf("list block roster: %w", err)
	}
	details := make([]models.ScheduledActivityDetail, 0, len(rows))
	for _, row := range rows {
		detail, err := r.hydrate(ctx, row)
		if err != nil {
			return nil, err
		}
		details = append(details, *detail)
	}
	return details, nil
}

// hydrate resolves rooms, sponsors, effective capacity and occupancy.
func (r *ScheduledActivityRepository) hydrate(ctx context.Context, row scheduledActivityRow) (*models.ScheduledActivityDetail, error) {
	detail := row.toDetail()

	rooms, err := r.TrueRooms(ctx, detail.ID, detail.ActivityID)
	if err != nil {
		return nil, err
	}
	detail.Rooms = rooms

	if detail.Capacity != nil {
		detail.TrueCapacity = *detail.Capacity
	} else {
		detail.TrueCapacity = models.TotalRoomCapacity(rooms)
	}

	sponsors, err := r.TrueSponsors(ctx, detail.ID, detail.ActivityID)
	if err != nil {
		return nil, err
	}
	detail.Sponsors = sponsors

	count, err := r.CountSignups(ctx, detail.ID)
	if err != nil {
		return nil, err
	}
	detail.SignupCount = count

	return &detail, nil
}

const roomColumns = `r.id, r.name, r.capacity, r.created_at, r.updated_at`

// TrueRooms applies the override-then-default room resolution.
func (r *ScheduledActivityRepository) TrueRooms(ctx context.Context, scheduledActivityID, activityID string) ([]models.Room, error) {
	overrideQuery := fmt.Sprintf(`SELECT %s FROM eighth_rooms r
        JOIN eighth_scheduled_rooms sr ON sr.room_id = r.id
        WHERE sr.scheduled_activity_id = $1 ORDER BY r.name`, roomColumns)
	var rooms []models.Room
	if err := r.db.SelectContext(ctx, &rooms, overrideQuery, scheduledActivityID); err != nil {
		return nil, fmt.Errorf("list override rooms: %w", err)
	}
	if len(rooms) > 0 {
		return rooms, nil
	}

	defaultQuery := fmt.Sprintf(`SELECT %s FROM eighth_rooms r
        JOIN eighth_activity_rooms ar ON ar.room_id = r.id
        WHERE ar.activity_id = $1 ORDER BY r.name`, roomColumns)
	if err := r.db.SelectContext(ctx, &rooms, defaultQuery, activityID); err != nil {
		return nil, fmt.Errorf("list default rooms: %w", err)
	}
	return rooms, nil
}

const sponsorColumns = `s.id, s.first_name, s.last_name, s.user_id, s.show_full_name, s.created_at, s.updated_at`

// TrueSponsors applies the override-then-default sponsor resolution.
func (r *ScheduledActivityRepository) TrueSponsors(ctx context.Context, scheduledActivityID, activityID string) ([]models.Sponsor, error) {
	overrideQuery := fmt.Sprintf(`SELECT %s FROM eighth_sponsors s
        JOIN eighth_scheduled_sponsors ss ON ss.sponsor_id = s.id
        WHERE ss.scheduled_activity_id = $1 ORDER BY s.last_name, s.first_name`, sponsorColumns)
	var sponsors []models.Sponsor
	if err := r.db.SelectContext(ctx, &sponsors, overrideQuery, scheduledActivityID); err != nil {
		return nil, fmt.Errorf("list override sponsors: %w", err)
	}
	if len(sponsors) > 0 {
		return sponsors, nil
	}

	defaultQuery := fmt.Sprintf(`SELECT %s FROM eighth_sponsors s
        JOIN eighth_activity_sponsors asp ON asp.sponsor_id = s.id
        WHERE asp.activity_id = $1 ORDER BY s.last_name, s.first_name`, sponsorColumns)
	if err := r.db.SelectContext(ctx, &sponsors, defaultQuery, activityID); err != nil {
		return nil, fmt.Errorf("list default sponsors: %w", err)
	}
	return sponsors, nil
}

// CountSignups returns the current ledger occupancy for an occurrence.
func (r *ScheduledActivityRepository) CountSignups(ctx context.Context, scheduledActivityID string) (int, error) {
	const query = `SELECT COUNT(*) FROM eighth_signups WHERE scheduled_activity_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, scheduledActivityID); err != nil {
		return 0, fmt.Errorf("count signups: %w", err)
	}
	return count, nil
}
