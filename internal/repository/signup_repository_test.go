package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/czhao39/ion/internal/models"
)

func newSignupRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func signupDetailRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "scheduled_activity_id", "block_id", "after_deadline",
		"previous_activity_name", "previous_activity_sponsors", "pass_accepted", "was_absent",
		"absence_acknowledged", "created_at", "updated_at",
		"date", "block_letter", "locked",
		"activity_id", "name", "presign", "one_a_day", "both_blocks", "sticky", "special",
		"administrative", "restricted", "deleted",
	})
}

func TestSignupRepositoryFindByUserAndBlock(t *testing.T) {
	db, mock, cleanup := newSignupRepoMock(t)
	defer cleanup()
	repo := NewSignupRepository(db)

	rows := signupDetailRows().AddRow(
		"s1", "u1", "sa1", "b1", true,
		nil, nil, false, false,
		false, time.Now(), time.Now(),
		time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC), "A", false,
		"act1", "Chess Club", false, false, false, false, false,
		false, false, false,
	)
	mock.ExpectQuery("SELECT s.id, s.user_id.+FROM eighth_signups s.+WHERE s.user_id = \\$1 AND s.block_id = \\$2").
		WithArgs("u1", "b1").
		WillReturnRows(rows)

	detail, err := repo.FindByUserAndBlock(context.Background(), "u1", "b1")
	require.NoError(t, err)
	assert.Equal(t, "s1", detail.ID)
	assert.Equal(t, "Chess Club", detail.Activity.Name)
	assert.True(t, detail.AfterDeadline)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSignupRepositoryExistsStickyInBlock(t *testing.T) {
	db, mock, cleanup := newSignupRepoMock(t)
	defer cleanup()
	repo := NewSignupRepository(db)

	mock.ExpectQuery("SELECT 1 FROM eighth_signups s.+a.sticky = TRUE LIMIT 1").
		WithArgs("u1", "b1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	exists, err := repo.ExistsStickyInBlock(context.Background(), "u1", "b1")
	require.NoError(t, err)
	assert.True(t, exists)

	mock.ExpectQuery("SELECT 1 FROM eighth_signups s.+a.sticky = TRUE LIMIT 1").
		WithArgs("u1", "b2").
		WillReturnError(sql.ErrNoRows)

	exists, err = repo.ExistsStickyInBlock(context.Background(), "u1", "b2")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSignupRepositoryApplyCreates(t *testing.T) {
	db, mock, cleanup := newSignupRepoMock(t)
	defer cleanup()
	repo := NewSignupRepository(db)

	plan := &models.SignupPlan{
		UserID: "u1",
		Date:   time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC),
		Creates: []models.SignupCreate{
			{ScheduledActivityID: "sa1", BlockID: "b1"},
		},
		CapacityChecks: []models.CapacityCheck{
			{ScheduledActivityID: "sa1", Capacity: 20},
		},
	}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM eighth_signups WHERE scheduled_activity_id = \\$1").
		WithArgs("sa1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectExec("INSERT INTO eighth_signups").
		WithArgs(sqlmock.AnyArg(), "u1", "sa1", "b1", false, nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Apply(context.Background(), plan))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSignupRepositoryApplyCapacityExceeded(t *testing.T) {
	db, mock, cleanup := newSignupRepoMock(t)
	defer cleanup()
	repo := NewSignupRepository(db)

	plan := &models.SignupPlan{
		UserID: "u1",
		Date:   time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC),
		Creates: []models.SignupCreate{
			{ScheduledActivityID: "sa1", BlockID: "b1"},
		},
		CapacityChecks: []models.CapacityCheck{
			{ScheduledActivityID: "sa1", Capacity: 2},
		},
	}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM eighth_signups WHERE scheduled_activity_id = \\$1").
		WithArgs("sa1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	err := repo.Apply(context.Background(), plan)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSignupRepositoryApplySkipsUnlimitedCapacity(t *testing.T) {
	db, mock, cleanup := newSignupRepoMock(t)
	defer cleanup()
	repo := NewSignupRepository(db)

	plan := &models.SignupPlan{
		UserID: "u1",
		Date:   time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC),
		Creates: []models.SignupCreate{
			{ScheduledActivityID: "sa1", BlockID: "b1"},
		},
		CapacityChecks: []models.CapacityCheck{
			{ScheduledActivityID: "sa1", Capacity: models.UnlimitedCapacity},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO eighth_signups").
		WithArgs(sqlmock.AnyArg(), "u1", "sa1", "b1", false, nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Apply(context.Background(), plan))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSignupRepositoryApplyForcedSkipsCapacityCheck(t *testing.T) {
	db, mock, cleanup := newSignupRepoMock(t)
	defer cleanup()
	repo := NewSignupRepository(db)

	plan := &models.SignupPlan{
		UserID: "u1",
		Date:   time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC),
		Force:  true,
		Creates: []models.SignupCreate{
			{ScheduledActivityID: "sa1", BlockID: "b1"},
		},
		CapacityChecks: []models.CapacityCheck{
			{ScheduledActivityID: "sa1", Capacity: 0},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO eighth_signups").
		WithArgs(sqlmock.AnyArg(), "u1", "sa1", "b1", false, nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Apply(context.Background(), plan))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSignupRepositoryApplyBothBlocksClearsDayFirst(t *testing.T) {
	db, mock, cleanup := newSignupRepoMock(t)
	defer cleanup()
	repo := NewSignupRepository(db)

	name := "Band (BB)"
	plan := &models.SignupPlan{
		UserID:   "u1",
		Date:     time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC),
		ClearDay: true,
		Creates: []models.SignupCreate{
			{ScheduledActivityID: "sa-a", BlockID: "b-a", PreviousActivityName: &name},
			{ScheduledActivityID: "sa-b", BlockID: "b-b"},
		},
		CapacityChecks: []models.CapacityCheck{
			{ScheduledActivityID: "sa-a", Capacity: 30},
			{ScheduledActivityID: "sa-b", Capacity: 30},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM eighth_signups s USING eighth_blocks b").
		WithArgs("u1", "2026-04-10").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM eighth_signups").
		WithArgs("sa-a").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM eighth_signups").
		WithArgs("sa-b").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectExec("INSERT INTO eighth_signups").
		WithArgs(sqlmock.AnyArg(), "u1", "sa-a", "b-a", false, &name, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO eighth_signups").
		WithArgs(sqlmock.AnyArg(), "u1", "sa-b", "b-b", false, nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Apply(context.Background(), plan))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSignupRepositoryApplyDuplicate(t *testing.T) {
	db, mock, cleanup := newSignupRepoMock(t)
	defer cleanup()
	repo := NewSignupRepository(db)

	plan := &models.SignupPlan{
		UserID: "u1",
		Date:   time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC),
		Force:  true,
		Creates: []models.SignupCreate{
			{ScheduledActivityID: "sa1", BlockID: "b1"},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO eighth_signups").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := repo.Apply(context.Background(), plan)
	assert.ErrorIs(t, err, ErrDuplicateSignup)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSignupRepositoryApplyReassign(t *testing.T) {
	db, mock, cleanup := newSignupRepoMock(t)
	defer cleanup()
	repo := NewSignupRepository(db)

	plan := &models.SignupPlan{
		UserID:        "u1",
		Date:          time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC),
		AfterDeadline: true,
		Reassign: &models.SignupReassign{
			SignupID:                 "s1",
			ScheduledActivityID:      "sa2",
			BlockID:                  "b1",
			PreviousActivityName:     "Chess Club",
			PreviousActivitySponsors: "Smith",
		},
		CapacityChecks: []models.CapacityCheck{},
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE eighth_signups").
		WithArgs("s1", "sa2", "b1", true, "Chess Club", "Smith", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Apply(context.Background(), plan))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSignupRepositoryDeleteByIDNotFound(t *testing.T) {
	db, mock, cleanup := newSignupRepoMock(t)
	defer cleanup()
	repo := NewSignupRepository(db)

	mock.ExpectExec("DELETE FROM eighth_signups WHERE id = \\$1").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSignupRepositoryListRosterByBlock(t *testing.T) {
	db, mock, cleanup := newSignupRepoMock(t)
	defer cleanup()
	repo := NewSignupRepository(db)

	rows := sqlmock.NewRows([]string{"full_name", "email", "name", "after_deadline"}).
		AddRow("Ada Lovelace", "ada@example.com", "Chess Club", false).
		AddRow("Grace Hopper", "grace@example.com", "Robotics", true)
	mock.ExpectQuery("SELECT u.full_name, u.email, a.name, s.after_deadline").
		WithArgs("b1").
		WillReturnRows(rows)

	entries, err := repo.ListRosterByBlock(context.Background(), "b1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Ada Lovelace", entries[0].UserName)
	assert.True(t, entries[1].AfterDeadline)
	assert.NoError(t, mock.ExpectationsWereMet())
}
