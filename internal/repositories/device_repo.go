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

type PostgresDeviceRepository struct {
	db Querier
}

func NewPostgresDeviceRepository(db Querier) *PostgresDeviceRepository {
	return &PostgresDeviceRepository{db: db}
}

func (r *PostgresDeviceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Device, error) {
	query := `SELECT id, user_id, name, platform, is_active, last_seen_at, created_at, updated_at
	          FROM devices
	          WHERE id = $1`

	var device models.Device
	err := r.db.QueryRow(ctx, query, id).Scan(
		&device.ID,
		&device.UserID,
		&device.Name,
		&device.Platform,
		&device.IsActive,
		&device.LastSeenAt,
		&device.CreatedAt,
		&device.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return &device, nil
}

func (r *PostgresDeviceRepository) Touch(ctx context.Context, id uuid.UUID, seenAt time.Time) error {
	query := `UPDATE devices
	          SET last_seen_at = $1, updated_at = $1
	          WHERE id = $2`

	result, err := r.db.Exec(ctx, query, seenAt, id)
	if err != nil {
		return fmt.Errorf("failed to touch device: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
