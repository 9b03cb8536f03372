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

const noteColumns = `id, user_id, title, date, version, is_deleted, created_at, updated_at`

type PostgresNoteRepository struct {
	db Querier
}

func NewPostgresNoteRepository(db Querier) *PostgresNoteRepository {
	return &PostgresNoteRepository{db: db}
}

func (r *PostgresNoteRepository) Create(ctx context.Context, note *models.Note) error {
	query := `INSERT INTO notes (id, user_id, title, date, version, is_deleted, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(ctx, query,
		note.ID,
		note.UserID,
		note.Title,
		note.Date,
		note.Version,
		note.IsDeleted,
		note.CreatedAt,
		note.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create note: %w", err)
	}
	return nil
}

func (r *PostgresNoteRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE id = $1`

	note, err := scanNote(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	return note, nil
}

func (r *PostgresNoteRepository) ListChangedSince(ctx context.Context, userID uuid.UUID, since *time.Time) ([]*models.Note, error) {
	var (
		query string
		args  []any
	)
	if since == nil {
		query = `SELECT ` + noteColumns + ` FROM notes
		         WHERE user_id = $1 AND is_deleted = FALSE
		         ORDER BY updated_at ASC`
		args = []any{userID}
	} else {
		query = `SELECT ` + noteColumns + ` FROM notes
		         WHERE user_id = $1 AND updated_at > $2
		         ORDER BY updated_at ASC`
		args = []any{userID, *since}
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	var notes []*models.Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notes: %w", err)
	}
	return notes, nil
}

func (r *PostgresNoteRepository) Update(ctx context.Context, note *models.Note, expectedVersion int64) error {
	query := `UPDATE notes
	          SET title = $1, date = $2, version = $3, is_deleted = $4, updated_at = $5
	          WHERE id = $6 AND version = $7`

	result, err := r.db.Exec(ctx, query,
		note.Title,
		note.Date,
		note.Version,
		note.IsDeleted,
		note.UpdatedAt,
		note.ID,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update note: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

func scanNote(row pgx.Row) (*models.Note, error) {
	var note models.Note
	err := row.Scan(
		&note.ID,
		&note.UserID,
		&note.Title,
		&note.Date,
		&note.Version,
		&note.IsDeleted,
		&note.CreatedAt,
		&note.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &note, nil
}
