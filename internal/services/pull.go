package services

import (
	"context"
	"time"

	"github.com/daygrid/daygrid/internal/logging"
	"github.com/daygrid/daygrid/internal/models"
	"github.com/daygrid/daygrid/internal/repositories"
	"github.com/google/uuid"
)

// PullService computes the change feed: everything a device is missing since
// its checkpoint, classified into created/updated/deleted buckets per entity
// type. Purely a read; entity state is never touched.
type PullService struct {
	store        repositories.Store
	checkpoints  repositories.CheckpointRepository
	logger       logging.Logger
	defaultLimit int
}

func NewPullService(store repositories.Store, checkpoints repositories.CheckpointRepository, logger logging.Logger, defaultLimit int) *PullService {
	return &PullService{
		store:        store,
		checkpoints:  checkpoints,
		logger:       logger,
		defaultLimit: defaultLimit,
	}
}

type PullRequest struct {
	UserID            uuid.UUID  `json:"-"`
	SinceUtc          *time.Time `json:"sinceUtc,omitempty"`
	DeviceID          *uuid.UUID `json:"deviceId,omitempty"`
	MaxItemsPerEntity int        `json:"maxItemsPerEntity,omitempty"`
}

type PullResponse struct {
	ServerTimestampUtc time.Time    `json:"serverTimestampUtc"`
	Tasks              TaskChanges  `json:"tasks"`
	Notes              NoteChanges  `json:"notes"`
	Blocks             BlockChanges `json:"blocks"`
	HasMoreTasks       bool         `json:"hasMoreTasks"`
	HasMoreNotes       bool         `json:"hasMoreNotes"`
	HasMoreBlocks      bool         `json:"hasMoreBlocks"`
}

func (s *PullService) Pull(ctx context.Context, req PullRequest) (*PullResponse, error) {
	if req.DeviceID != nil {
		if _, err := requireDevice(ctx, s.store.Devices(), req.UserID, *req.DeviceID); err != nil {
			return nil, err
		}
	}

	limit := req.MaxItemsPerEntity
	if limit <= 0 {
		limit = s.defaultLimit
	}

	// Captured before the reads so a client using it as its next checkpoint
	// can only re-see a change, never miss one.
	serverTimestamp := time.Now().UTC()

	resp := &PullResponse{ServerTimestampUtc: serverTimestamp}

	tasks, err := s.store.Tasks().ListChangedSince(ctx, req.UserID, req.SinceUtc)
	if err != nil {
		return nil, err
	}
	resp.Tasks, resp.HasMoreTasks = bucketTasks(tasks, req.SinceUtc, limit)

	notes, err := s.store.Notes().ListChangedSince(ctx, req.UserID, req.SinceUtc)
	if err != nil {
		return nil, err
	}
	resp.Notes, resp.HasMoreNotes = bucketNotes(notes, req.SinceUtc, limit)

	blocks, err := s.store.Blocks().ListChangedSince(ctx, req.UserID, req.SinceUtc)
	if err != nil {
		return nil, err
	}
	resp.Blocks, resp.HasMoreBlocks = bucketBlocks(blocks, req.SinceUtc, limit)

	if req.DeviceID != nil {
		s.saveCheckpoint(ctx, req.UserID, *req.DeviceID, serverTimestamp)
	}

	return resp, nil
}

// saveCheckpoint is best-effort cache bookkeeping; a redis failure is logged
// and swallowed because the client owns its checkpoint.
func (s *PullService) saveCheckpoint(ctx context.Context, userID, deviceID uuid.UUID, pulledAt time.Time) {
	if s.checkpoints == nil {
		return
	}
	checkpoint, err := s.checkpoints.Get(ctx, deviceID)
	if err != nil {
		checkpoint = &models.SyncCheckpoint{DeviceID: deviceID, UserID: userID}
	}
	checkpoint.LastPulledAt = &pulledAt
	if err := s.checkpoints.Save(ctx, checkpoint); err != nil {
		s.logger.Warn(ctx, "failed to save pull checkpoint", "device_id", deviceID, "error", err)
	}
}

type changeKind int

const (
	changeSkip changeKind = iota
	changeCreated
	changeUpdated
	changeDeleted
)

// classifyChange applies the feed rules: no checkpoint means initial sync
// (live entities only, all "created"); with a checkpoint, entities created
// after it are "created", tombstones are "deleted", the rest "updated".
func classifyChange(createdAt time.Time, isDeleted bool, since *time.Time) changeKind {
	if since == nil {
		if isDeleted {
			return changeSkip
		}
		return changeCreated
	}
	if createdAt.After(*since) {
		return changeCreated
	}
	if isDeleted {
		return changeDeleted
	}
	return changeUpdated
}

// truncate caps one bucket at limit, reporting whether anything was cut off.
func truncate[T any](items []T, limit int) ([]T, bool) {
	if len(items) > limit {
		return items[:limit], true
	}
	return items, false
}

func bucketTasks(tasks []*models.Task, since *time.Time, limit int) (TaskChanges, bool) {
	var changes TaskChanges
	for _, task := range tasks {
		switch classifyChange(task.CreatedAt, task.IsDeleted, since) {
		case changeCreated:
			changes.Created = append(changes.Created, task)
		case changeUpdated:
			changes.Updated = append(changes.Updated, task)
		case changeDeleted:
			changes.Deleted = append(changes.Deleted, DeletedEntry{ID: task.ID, DeletedAtUtc: task.UpdatedAt})
		}
	}

	var moreCreated, moreUpdated, moreDeleted bool
	changes.Created, moreCreated = truncate(changes.Created, limit)
	changes.Updated, moreUpdated = truncate(changes.Updated, limit)
	changes.Deleted, moreDeleted = truncate(changes.Deleted, limit)
	return changes, moreCreated || moreUpdated || moreDeleted
}

func bucketNotes(notes []*models.Note, since *time.Time, limit int) (NoteChanges, bool) {
	var changes NoteChanges
	for _, note := range notes {
		switch classifyChange(note.CreatedAt, note.IsDeleted, since) {
		case changeCreated:
			changes.Created = append(changes.Created, note)
		case changeUpdated:
			changes.Updated = append(changes.Updated, note)
		case changeDeleted:
			changes.Deleted = append(changes.Deleted, DeletedEntry{ID: note.ID, DeletedAtUtc: note.UpdatedAt})
		}
	}

	var moreCreated, moreUpdated, moreDeleted bool
	changes.Created, moreCreated = truncate(changes.Created, limit)
	changes.Updated, moreUpdated = truncate(changes.Updated, limit)
	changes.Deleted, moreDeleted = truncate(changes.Deleted, limit)
	return changes, moreCreated || moreUpdated || moreDeleted
}

func bucketBlocks(blocks []*models.Block, since *time.Time, limit int) (BlockChanges, bool) {
	var changes BlockChanges
	for _, block := range blocks {
		switch classifyChange(block.CreatedAt, block.IsDeleted, since) {
		case changeCreated:
			changes.Created = append(changes.Created, block)
		case changeUpdated:
			changes.Updated = append(changes.Updated, block)
		case changeDeleted:
			changes.Deleted = append(changes.Deleted, DeletedEntry{ID: block.ID, DeletedAtUtc: block.UpdatedAt})
		}
	}

	var moreCreated, moreUpdated, moreDeleted bool
	changes.Created, moreCreated = truncate(changes.Created, limit)
	changes.Updated, moreUpdated = truncate(changes.Updated, limit)
	changes.Deleted, moreDeleted = truncate(changes.Deleted, limit)
	return changes, moreCreated || moreUpdated || moreDeleted
}
