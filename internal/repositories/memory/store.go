// Package memory provides an in-memory Store and TxManager used by service
// tests. Semantics mirror the postgres repositories: tombstones are readable
// by id, version-guarded updates fail with ErrVersionConflict, and WithinTx
// rolls every write back when the callback errors.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/daygrid/daygrid/internal/models"
	"github.com/daygrid/daygrid/internal/repositories"
	"github.com/google/uuid"
)

type Store struct {
	mu      sync.Mutex
	tasks   map[uuid.UUID]models.Task
	notes   map[uuid.UUID]models.Note
	blocks  map[uuid.UUID]models.Block
	devices map[uuid.UUID]models.Device
	outbox  []models.OutboxRecord
}

func NewStore() *Store {
	return &Store{
		tasks:   make(map[uuid.UUID]models.Task),
		notes:   make(map[uuid.UUID]models.Note),
		blocks:  make(map[uuid.UUID]models.Block),
		devices: make(map[uuid.UUID]models.Device),
	}
}

func (s *Store) Tasks() repositories.TaskRepository     { return &taskRepo{s} }
func (s *Store) Notes() repositories.NoteRepository     { return &noteRepo{s} }
func (s *Store) Blocks() repositories.BlockRepository   { return &blockRepo{s} }
func (s *Store) Devices() repositories.DeviceRepository { return &deviceRepo{s} }
func (s *Store) Outbox() repositories.OutboxRepository  { return &outboxRepo{s} }

// WithinTx snapshots all tables, runs fn, and restores the snapshot when fn
// fails, so tests observe the same single-commit boundary as postgres.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, store repositories.Store) error) error {
	s.mu.Lock()
	snapshot := s.clone()
	s.mu.Unlock()

	if err := fn(ctx, s); err != nil {
		s.mu.Lock()
		s.tasks = snapshot.tasks
		s.notes = snapshot.notes
		s.blocks = snapshot.blocks
		s.devices = snapshot.devices
		s.outbox = snapshot.outbox
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) clone() *Store {
	c := NewStore()
	for k, v := range s.tasks {
		c.tasks[k] = v
	}
	for k, v := range s.notes {
		c.notes[k] = v
	}
	for k, v := range s.blocks {
		c.blocks[k] = v
	}
	for k, v := range s.devices {
		c.devices[k] = v
	}
	c.outbox = append([]models.OutboxRecord(nil), s.outbox...)
	return c
}

// SeedDevice registers a device directly, bypassing repository interfaces.
func (s *Store) SeedDevice(device *models.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[device.ID] = *device
}

type taskRepo struct{ s *Store }

func (r *taskRepo) Create(ctx context.Context, task *models.Task) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.tasks[task.ID] = *task
	return nil
}

func (r *taskRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	task, ok := r.s.tasks[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &task, nil
}

func (r *taskRepo) ListChangedSince(ctx context.Context, userID uuid.UUID, since *time.Time) ([]*models.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var tasks []*models.Task
	for _, task := range r.s.tasks {
		if task.UserID != userID {
			continue
		}
		if !changedSince(task.UpdatedAt, task.IsDeleted, since) {
			continue
		}
		task := task
		tasks = append(tasks, &task)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].UpdatedAt.Before(tasks[j].UpdatedAt) })
	return tasks, nil
}

func (r *taskRepo) Update(ctx context.Context, task *models.Task, expectedVersion int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.tasks[task.ID]
	if !ok || current.Version != expectedVersion {
		return repositories.ErrVersionConflict
	}
	r.s.tasks[task.ID] = *task
	return nil
}

type noteRepo struct{ s *Store }

func (r *noteRepo) Create(ctx context.Context, note *models.Note) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.notes[note.ID] = *note
	return nil
}

func (r *noteRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Note, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	note, ok := r.s.notes[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &note, nil
}

func (r *noteRepo) ListChangedSince(ctx context.Context, userID uuid.UUID, since *time.Time) ([]*models.Note, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var notes []*models.Note
	for _, note := range r.s.notes {
		if note.UserID != userID {
			continue
		}
		if !changedSince(note.UpdatedAt, note.IsDeleted, since) {
			continue
		}
		note := note
		notes = append(notes, &note)
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i].UpdatedAt.Before(notes[j].UpdatedAt) })
	return notes, nil
}

func (r *noteRepo) Update(ctx context.Context, note *models.Note, expectedVersion int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.notes[note.ID]
	if !ok || current.Version != expectedVersion {
		return repositories.ErrVersionConflict
	}
	r.s.notes[note.ID] = *note
	return nil
}

type blockRepo struct{ s *Store }

func (r *blockRepo) Create(ctx context.Context, block *models.Block) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.blocks[block.ID] = *block
	return nil
}

func (r *blockRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Block, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	block, ok := r.s.blocks[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &block, nil
}

func (r *blockRepo) ListByNote(ctx context.Context, noteID uuid.UUID, includeDeleted bool) ([]*models.Block, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var blocks []*models.Block
	for _, block := range r.s.blocks {
		if block.NoteID != noteID {
			continue
		}
		if block.IsDeleted && !includeDeleted {
			continue
		}
		block := block
		blocks = append(blocks, &block)
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Position < blocks[j].Position })
	return blocks, nil
}

func (r *blockRepo) ListChangedSince(ctx context.Context, userID uuid.UUID, since *time.Time) ([]*models.Block, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var blocks []*models.Block
	for _, block := range r.s.blocks {
		if block.UserID != userID {
			continue
		}
		if !changedSince(block.UpdatedAt, block.IsDeleted, since) {
			continue
		}
		block := block
		blocks = append(blocks, &block)
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].UpdatedAt.Before(blocks[j].UpdatedAt) })
	return blocks, nil
}

func (r *blockRepo) Update(ctx context.Context, block *models.Block, expectedVersion int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.blocks[block.ID]
	if !ok || current.Version != expectedVersion {
		return repositories.ErrVersionConflict
	}
	r.s.blocks[block.ID] = *block
	return nil
}

type deviceRepo struct{ s *Store }

func (r *deviceRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Device, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	device, ok := r.s.devices[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &device, nil
}

func (r *deviceRepo) Touch(ctx context.Context, id uuid.UUID, seenAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	device, ok := r.s.devices[id]
	if !ok {
		return repositories.ErrNotFound
	}
	device.LastSeenAt = &seenAt
	r.s.devices[id] = device
	return nil
}

type outboxRepo struct{ s *Store }

func (r *outboxRepo) Append(ctx context.Context, record *models.OutboxRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.outbox = append(r.s.outbox, *record)
	return nil
}

func (r *outboxRepo) ListPending(ctx context.Context, limit int) ([]*models.OutboxRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var records []*models.OutboxRecord
	for i := range r.s.outbox {
		if r.s.outbox[i].ProcessedAt != nil {
			continue
		}
		record := r.s.outbox[i]
		records = append(records, &record)
		if len(records) == limit {
			break
		}
	}
	return records, nil
}

func (r *outboxRepo) MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.outbox {
		if r.s.outbox[i].ID == id && r.s.outbox[i].ProcessedAt == nil {
			r.s.outbox[i].ProcessedAt = &processedAt
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (r *outboxRepo) IncrementAttempts(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.outbox {
		if r.s.outbox[i].ID == id {
			r.s.outbox[i].Attempts++
			return nil
		}
	}
	return repositories.ErrNotFound
}

// changedSince is the bucket-eligibility rule: with a checkpoint, anything
// touched after it (tombstones included); without one, live entities only.
func changedSince(updatedAt time.Time, isDeleted bool, since *time.Time) bool {
	if since == nil {
		return !isDeleted
	}
	return updatedAt.After(*since)
}

// Checkpoints is an in-memory CheckpointRepository.
type Checkpoints struct {
	mu          sync.Mutex
	checkpoints map[uuid.UUID]models.SyncCheckpoint
}

func NewCheckpoints() *Checkpoints {
	return &Checkpoints{checkpoints: make(map[uuid.UUID]models.SyncCheckpoint)}
}

func (c *Checkpoints) Save(ctx context.Context, checkpoint *models.SyncCheckpoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkpoints[checkpoint.DeviceID] = *checkpoint
	return nil
}

func (c *Checkpoints) Get(ctx context.Context, deviceID uuid.UUID) (*models.SyncCheckpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	checkpoint, ok := c.checkpoints[deviceID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &checkpoint, nil
}
