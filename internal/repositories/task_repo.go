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

const taskColumns = `id, user_id, title, description, date, is_completed, completed_at,
	                 reminder_at, reminder_acknowledged, version, is_deleted, created_at, updated_at`

type PostgresTaskRepository struct {
	db Querier
}

func NewPostgresTaskRepository(db Querier) *PostgresTaskRepository {
	return &PostgresTaskRepository{db: db}
}

func (r *PostgresTaskRepository) Create(ctx context.Context, task *models.Task) error {
	query := `INSERT INTO tasks (id, user_id, title, description, date, is_completed, completed_at,
	                             reminder_at, reminder_acknowledged, version, is_deleted, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.db.Exec(ctx, query,
		task.ID,
		task.UserID,
		task.Title,
		task.Description,
		task.Date,
		task.IsCompleted,
		task.CompletedAt,
		task.ReminderAt,
		task.ReminderAcknowledged,
		task.Version,
		task.IsDeleted,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

func (r *PostgresTaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	task, err := scanTask(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

func (r *PostgresTaskRepository) ListChangedSince(ctx context.Context, userID uuid.UUID, since *time.Time) ([]*models.Task, error) {
	var (
		query string
		args  []any
	)
	if since == nil {
		query = `SELECT ` + taskColumns + ` FROM tasks
		         WHERE user_id = $1 AND is_deleted = FALSE
		         ORDER BY updated_at ASC`
		args = []any{userID}
	} else {
		query = `SELECT ` + taskColumns + ` FROM tasks
		         WHERE user_id = $1 AND updated_at > $2
		         ORDER BY updated_at ASC`
		args = []any{userID, *since}
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// Update persists the task guarded by its version column: the WHERE clause
// matches only when the stored version is still expectedVersion, so a lost
// race surfaces as ErrVersionConflict instead of a silent overwrite.
func (r *PostgresTaskRepository) Update(ctx context.Context, task *models.Task, expectedVersion int64) error {
	query := `UPDATE tasks
	          SET title = $1, description = $2, date = $3, is_completed = $4, completed_at = $5,
	              reminder_at = $6, reminder_acknowledged = $7, version = $8, is_deleted = $9, updated_at = $10
	          WHERE id = $11 AND version = $12`

	result, err := r.db.Exec(ctx, query,
		task.Title,
		task.Description,
		task.Date,
		task.IsCompleted,
		task.CompletedAt,
		task.ReminderAt,
		task.ReminderAcknowledged,
		task.Version,
		task.IsDeleted,
		task.UpdatedAt,
		task.ID,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

func scanTask(row pgx.Row) (*models.Task, error) {
	var task models.Task
	err := row.Scan(
		&task.ID,
		&task.UserID,
		&task.Title,
		&task.Description,
		&task.Date,
		&task.IsCompleted,
		&task.CompletedAt,
		&task.ReminderAt,
		&task.ReminderAcknowledged,
		&task.Version,
		&task.IsDeleted,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &task, nil
}
