package repositories

import (
	"context"
	"time"

	"github.com/daygrid/daygrid/internal/models"
	"github.com/google/uuid"
)

// TaskRepository persists synchronized tasks. GetByID returns soft-deleted
// rows too: the push engine needs tombstones to classify stale updates.
type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	// ListChangedSince returns the user's tasks with updatedAt newer than
	// since. A nil since means initial sync: all live tasks, no tombstones.
	ListChangedSince(ctx context.Context, userID uuid.UUID, since *time.Time) ([]*models.Task, error)
	// Update persists the task only if the stored version still equals
	// expectedVersion; otherwise it returns ErrVersionConflict.
	Update(ctx context.Context, task *models.Task, expectedVersion int64) error
}

type NoteRepository interface {
	Create(ctx context.Context, note *models.Note) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Note, error)
	ListChangedSince(ctx context.Context, userID uuid.UUID, since *time.Time) ([]*models.Note, error)
	Update(ctx context.Context, note *models.Note, expectedVersion int64) error
}

type BlockRepository interface {
	Create(ctx context.Context, block *models.Block) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Block, error)
	// ListByNote returns the note's blocks ordered by position. Soft-deleted
	// blocks are included only when includeDeleted is set.
	ListByNote(ctx context.Context, noteID uuid.UUID, includeDeleted bool) ([]*models.Block, error)
	ListChangedSince(ctx context.Context, userID uuid.UUID, since *time.Time) ([]*models.Block, error)
	Update(ctx context.Context, block *models.Block, expectedVersion int64) error
}

type DeviceRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Device, error)
	Touch(ctx context.Context, id uuid.UUID, seenAt time.Time) error
}

// OutboxRepository appends event records inside the mutation's transaction
// and serves the dispatcher side of the at-least-once contract.
type OutboxRepository interface {
	Append(ctx context.Context, record *models.OutboxRecord) error
	ListPending(ctx context.Context, limit int) ([]*models.OutboxRecord, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error
	IncrementAttempts(ctx context.Context, id uuid.UUID) error
}

// CheckpointRepository caches per-device sync checkpoints (redis-backed).
type CheckpointRepository interface {
	Save(ctx context.Context, checkpoint *models.SyncCheckpoint) error
	Get(ctx context.Context, deviceID uuid.UUID) (*models.SyncCheckpoint, error)
}

// Store bundles the repositories participating in one unit of work.
type Store interface {
	Tasks() TaskRepository
	Notes() NoteRepository
	Blocks() BlockRepository
	Devices() DeviceRepository
	Outbox() OutboxRepository
}

// TxManager runs a function against a Store whose writes share a single
// commit boundary. Entity mutations and their outbox records go through the
// same transactional Store so they can never be observed independently.
type TxManager interface {
	Store
	WithinTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}
