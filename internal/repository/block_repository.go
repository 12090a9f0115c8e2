package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/czhao39/ion/internal/models"
)

// BlockRepository handles persistence of eighth-period blocks.
type BlockRepository struct {
	db *sqlx.DB
}

// NewBlockRepository constructs the repository.
func NewBlockRepository(db *sqlx.DB) *BlockRepository {
	return &BlockRepository{db: db}
}

const blockColumns = `id, date, block_letter, locked, signup_time, created_at, updated_at`

// FindByID returns a block by its ID.
func (r *BlockRepository) FindByID(ctx context.Context, id string) (*models.Block, error) {
	query := fmt.Sprintf(`SELECT %s FROM eighth_blocks WHERE id = $1`, blockColumns)
	var block models.Block
	if err := r.db.GetContext(ctx, &block, query, id); err != nil {
		return nil, err
	}
	return &block, nil
}

// List returns blocks ordered by (date, letter) with optional filters.
func (r *BlockRepository) List(ctx context.Context, filter models.BlockFilter) ([]models.Block, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Date != nil {
		conditions = append(conditions, fmt.Sprintf("date = $%d", len(args)+1))
		args = append(args, filter.Date.Format("2006-01-02"))
	}
	if filter.Locked != nil {
		conditions = append(conditions, fmt.Sprintf("locked = $%d", len(args)+1))
		args = append(args, *filter.Locked)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM eighth_blocks%s ORDER BY date, block_letter LIMIT %d OFFSET %d`,
		blockColumns, clause, size, offset)

	var blocks []models.Block
	if err := r.db.SelectContext(ctx, &blocks, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list blocks: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM eighth_blocks" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count blocks: %w", err)
	}
	return blocks, total, nil
}

// FindFirstUpcoming returns the first block on or after the given day,
// falling back to the most recent block when nothing lies ahead.
func (r *BlockRepository) FindFirstUpcoming(ctx context.Context, day time.Time) (*models.Block, error) {
	query := fmt.Sprintf(`SELECT %s FROM eighth_blocks WHERE date >= $1 ORDER BY date, block_letter LIMIT 1`, blockColumns)
	var block models.Block
	err := r.db.GetContext(ctx, &block, query, day.Format("2006-01-02"))
	if err == nil {
		return &block, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("find upcoming block: %w", err)
	}

	fallback := fmt.Sprintf(`SELECT %s FROM eighth_blocks ORDER BY date DESC, block_letter DESC LIMIT 1`, blockColumns)
	if err := r.db.GetContext(ctx, &block, fallback); err != nil {
		return nil, err
	}
	return &block, nil
}

// SetLocked toggles the signup lock on a block.
func (r *BlockRepository) SetLocked(ctx context.Context, id string, locked bool) error {
	const query = `UPDATE eighth_blocks SET locked = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, locked, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set block lock: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
