package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/daygrid/daygrid/internal/models"
	"github.com/google/uuid"
)

type PostgresOutboxRepository struct {
	db Querier
}

func NewPostgresOutboxRepository(db Querier) *PostgresOutboxRepository {
	return &PostgresOutboxRepository{db: db}
}

func (r *PostgresOutboxRepository) Append(ctx context.Context, record *models.OutboxRecord) error {
	query := `INSERT INTO outbox (id, aggregate_type, aggregate_id, user_id, event_name, payload,
	                              attempts, processed_at, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query,
		record.ID,
		record.AggregateType,
		record.AggregateID,
		record.UserID,
		record.EventName,
		record.Payload,
		record.Attempts,
		record.ProcessedAt,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append outbox record: %w", err)
	}
	return nil
}

func (r *PostgresOutboxRepository) ListPending(ctx context.Context, limit int) ([]*models.OutboxRecord, error) {
	query := `SELECT id, aggregate_type, aggregate_id, user_id, event_name, payload,
	                 attempts, processed_at, created_at
	          FROM outbox
	          WHERE processed_at IS NULL
	          ORDER BY created_at ASC
	          LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var records []*models.OutboxRecord
	for rows.Next() {
		var record models.OutboxRecord
		err := rows.Scan(
			&record.ID,
			&record.AggregateType,
			&record.AggregateID,
			&record.UserID,
			&record.EventName,
			&record.Payload,
			&record.Attempts,
			&record.ProcessedAt,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox record: %w", err)
		}
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox records: %w", err)
	}
	return records, nil
}

func (r *PostgresOutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error {
	query := `UPDATE outbox SET processed_at = $1 WHERE id = $2 AND processed_at IS NULL`

	result, err := r.db.Exec(ctx, query, processedAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox record processed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresOutboxRepository) IncrementAttempts(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE outbox SET attempts = attempts + 1 WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to increment outbox attempts: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
