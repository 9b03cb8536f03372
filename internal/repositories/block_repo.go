package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/daygrid/daygrid/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const blockColumns = `id, note_id, user_id, kind, position, content, asset_id, asset_mime_type,
	                  version, is_deleted, created_at, updated_at`

type PostgresBlockRepository struct {
	db Querier
}

func NewPostgresBlockRepository(db Querier) *PostgresBlockRepository {
	return &PostgresBlockRepository{db: db}
}

func (r *PostgresBlockRepository) Create(ctx context.Context, block *models.Block) error {
	query := `INSERT INTO blocks (id, note_id, user_id, kind, position, content, asset_id, asset_mime_type,
	                              version, is_deleted, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.Exec(ctx, query,
		block.ID,
		block.NoteID,
		block.UserID,
		block.Kind,
		block.Position,
		block.Content,
		block.AssetID,
		block.AssetMimeType,
		block.Version,
		block.IsDeleted,
		block.CreatedAt,
		block.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create block: %w", err)
	}
	return nil
}

func (r *PostgresBlockRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Block, error) {
	query := `SELECT ` + blockColumns + ` FROM blocks WHERE id = $1`

	block, err := scanBlock(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get block: %w", err)
	}
	return block, nil
}

func (r *PostgresBlockRepository) ListByNote(ctx context.Context, noteID uuid.UUID, includeDeleted bool) ([]*models.Block, error) {
	query := `SELECT ` + blockColumns + ` FROM blocks
	          WHERE note_id = $1`
	if !includeDeleted {
		query += ` AND is_deleted = FALSE`
	}
	query += ` ORDER BY position ASC`

	rows, err := r.db.Query(ctx, query, noteID)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocks: %w", err)
	}
	defer rows.Close()

	return collectBlocks(rows)
}

func (r *PostgresBlockRepository) ListChangedSince(ctx context.Context, userID uuid.UUID, since *time.Time) ([]*models.Block, error) {
	var (
		query string
		args  []any
	)
	if since == nil {
		query = `SELECT ` + blockColumns + ` FROM blocks
		         WHERE user_id = $1 AND is_deleted = FALSE
		         ORDER BY updated_at ASC`
		args = []any{userID}
	} else {
		query = `SELECT ` + blockColumns + ` FROM blocks
		         WHERE user_id = $1 AND updated_at > $2
		         ORDER BY updated_at ASC`
		args = []any{userID, *since}
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocks: %w", err)
	}
	defer rows.Close()

	return collectBlocks(rows)
}

func (r *PostgresBlockRepository) Update(ctx context.Context, block *models.Block, expectedVersion int64) error {
	query := `UPDATE blocks
	          SET kind = $1, position = $2, content = $3, asset_id = $4, asset_mime_type = $5,
	              version = $6, is_deleted = $7, updated_at = $8
	          WHERE id = $9 AND version = $10`

	result, err := r.db.Exec(ctx, query,
		block.Kind,
		block.Position,
		block.Content,
		block.AssetID,
		block.AssetMimeType,
		block.Version,
		block.IsDeleted,
		block.UpdatedAt,
		block.ID,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update block: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

func collectBlocks(rows pgx.Rows) ([]*models.Block, error) {
	var blocks []*models.Block
	for rows.Next() {
		block, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		blocks = append(blocks, block)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating blocks: %w", err)
	}
	return blocks, nil
}

func scanBlock(row pgx.Row) (*models.Block, error) {
	var block models.Block
	err := row.Scan(
		&block.ID,
		&block.NoteID,
		&block.UserID,
		&block.Kind,
		&block.Position,
		&block.Content,
		&block.AssetID,
		&block.AssetMimeType,
		&block.Version,
		&block.IsDeleted,
		&block.CreatedAt,
		&block.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &block, nil
}
