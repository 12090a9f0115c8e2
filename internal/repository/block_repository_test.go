package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/czhao39/ion/internal/models"
)

func newBlockRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func blockRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "date", "block_letter", "locked", "signup_time", "created_at", "updated_at"})
}

func TestBlockRepositoryList(t *testing.T) {
	db, mock, cleanup := newBlockRepoMock(t)
	defer cleanup()
	repo := NewBlockRepository(db)

	rows := blockRows().
		AddRow("b1", time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC), "A", false, nil, time.Now(), time.Now()).
		AddRow("b2", time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC), "B", false, nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, date, block_letter, locked, signup_time, created_at, updated_at FROM eighth_blocks ORDER BY date, block_letter LIMIT 50 OFFSET 0")).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM eighth_blocks")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	blocks, total, err := repo.List(context.Background(), models.BlockFilter{})
	require.NoError(t, err)
	assert.Len(t, blocks, 2)
	assert.Equal(t, 2, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBlockRepositoryFindFirstUpcoming(t *testing.T) {
	db, mock, cleanup := newBlockRepoMock(t)
	defer cleanup()
	repo := NewBlockRepository(db)

	rows := blockRows().
		AddRow("b1", time.Date(2026, 4, 13, 0, 0, 0, 0, time.UTC), "A", false, nil, time.Now(), time.Now())
	mock.ExpectQuery("SELECT .+ FROM eighth_blocks WHERE date >= \\$1 ORDER BY date, block_letter LIMIT 1").
		WithArgs("2026-04-11").
		WillReturnRows(rows)

	block, err := repo.FindFirstUpcoming(context.Background(), time.Date(2026, 4, 11, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "b1", block.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBlockRepositoryFindFirstUpcomingFallsBack(t *testing.T) {
	db, mock, cleanup := newBlockRepoMock(t)
	defer cleanup()
	repo := NewBlockRepository(db)

	mock.ExpectQuery("SELECT .+ FROM eighth_blocks WHERE date >= \\$1 ORDER BY date, block_letter LIMIT 1").
		WithArgs("2026-06-20").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT .+ FROM eighth_blocks ORDER BY date DESC, block_letter DESC LIMIT 1").
		WillReturnRows(blockRows().AddRow("b-last", time.Date(2026, 6, 12, 0, 0, 0, 0, time.UTC), "B", true, nil, time.Now(), time.Now()))

	block, err := repo.FindFirstUpcoming(context.Background(), time.Date(2026, 6, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "b-last", block.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBlockRepositorySetLocked(t *testing.T) {
	db, mock, cleanup := newBlockRepoMock(t)
	defer cleanup()
	repo := NewBlockRepository(db)

	mock.ExpectExec("UPDATE eighth_blocks SET locked = \\$2").
		WithArgs("b1", true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetLocked(context.Background(), "b1", true))

	mock.ExpectExec("UPDATE eighth_blocks SET locked = \\$2").
		WithArgs("missing", false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetLocked(context.Background(), "missing", false)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
