package services

import (
	"context"
	"errors"
	"time"

	"github.com/daygrid/daygrid/internal/logging"
	"github.com/daygrid/daygrid/internal/models"
	"github.com/daygrid/daygrid/internal/repositories"
	"github.com/google/uuid"
)

// ErrBatchTooLarge rejects a push whose lists exceed the configured limits
// before any item is processed.
var ErrBatchTooLarge = errors.New("push batch exceeds configured size limits")

// PushService reconciles a device's locally queued changes against the
// server of record. Items are evaluated independently so one bad item never
// blocks the rest, and every accepted mutation plus its outbox record is
// committed in one transaction per request. Version mismatches come back as
// Conflict values for the client to resolve, never as errors.
type PushService struct {
	tx          repositories.TxManager
	checkpoints repositories.CheckpointRepository
	logger      logging.Logger

	maxItemsPerList int
	maxTotalItems   int
}

func NewPushService(tx repositories.TxManager, checkpoints repositories.CheckpointRepository, logger logging.Logger, maxItemsPerList, maxTotalItems int) *PushService {
	return &PushService{
		tx:              tx,
		checkpoints:     checkpoints,
		logger:          logger,
		maxItemsPerList: maxItemsPerList,
		maxTotalItems:   maxTotalItems,
	}
}

type PushRequest struct {
	UserID                 uuid.UUID `json:"-"`
	DeviceID               uuid.UUID `json:"deviceId"`
	ClientSyncTimestampUtc time.Time `json:"clientSyncTimestampUtc"`
	Tasks                  TaskPush  `json:"tasks"`
	Notes                  NotePush  `json:"notes"`
}

type TaskPush struct {
	Created []TaskCreateItem `json:"created"`
	Updated []TaskUpdateItem `json:"updated"`
	Deleted []DeleteItem     `json:"deleted"`
}

type NotePush struct {
	Created []NoteCreateItem `json:"created"`
	Updated []NoteUpdateItem `json:"updated"`
	Deleted []DeleteItem     `json:"deleted"`
}

// TaskCreateItem carries a client-generated correlation id that the response
// maps to the new server id. Creates are not deduplicated by correlation id:
// a client that re-sends an accepted create after a lost response will
// produce a duplicate entity.
type TaskCreateItem struct {
	CorrelationID string          `json:"correlationId"`
	Data          models.TaskData `json:"data"`
}

type TaskUpdateItem struct {
	ID              uuid.UUID       `json:"id"`
	ExpectedVersion int64           `json:"expectedVersion"`
	Data            models.TaskData `json:"data"`
}

type NoteCreateItem struct {
	CorrelationID string          `json:"correlationId"`
	Data          models.NoteData `json:"data"`
}

type NoteUpdateItem struct {
	ID              uuid.UUID       `json:"id"`
	ExpectedVersion int64           `json:"expectedVersion"`
	Data            models.NoteData `json:"data"`
}

// DeleteItem's ExpectedVersion is informational: deletes win regardless of
// version, and deleting a missing or already-deleted entity is satisfied,
// not conflicting.
type DeleteItem struct {
	ID              uuid.UUID `json:"id"`
	ExpectedVersion int64     `json:"expectedVersion"`
}

type CreateResult struct {
	CorrelationID string     `json:"correlationId"`
	ID            uuid.UUID  `json:"id,omitempty"`
	Status        ItemStatus `json:"status"`
	Version       int64      `json:"version,omitempty"`
	Errors        []string   `json:"errors,omitempty"`
}

type MutateResult struct {
	ID         uuid.UUID  `json:"id"`
	Status     ItemStatus `json:"status"`
	NewVersion int64      `json:"newVersion,omitempty"`
	Errors     []string   `json:"errors,omitempty"`
}

type EntityPushResult struct {
	Created []CreateResult `json:"created"`
	Updated []MutateResult `json:"updated"`
	Deleted []MutateResult `json:"deleted"`
}

type PushResponse struct {
	Tasks     EntityPushResult `json:"tasks"`
	Notes     EntityPushResult `json:"notes"`
	Conflicts []Conflict       `json:"conflicts"`
}

func (s *PushService) Push(ctx context.Context, req PushRequest) (*PushResponse, error) {
	if err := s.validateBatchSize(req); err != nil {
		return nil, err
	}

	resp := &PushResponse{Conflicts: []Conflict{}}

	err := s.tx.WithinTx(ctx, func(ctx context.Context, store repositories.Store) error {
		if _, err := requireDevice(ctx, store.Devices(), req.UserID, req.DeviceID); err != nil {
			return err
		}

		var err error
		if resp.Tasks, err = s.pushTasks(ctx, store, req.UserID, req.Tasks, &resp.Conflicts); err != nil {
			return err
		}
		if resp.Notes, err = s.pushNotes(ctx, store, req.UserID, req.Notes, &resp.Conflicts); err != nil {
			return err
		}

		if err := store.Devices().Touch(ctx, req.DeviceID, time.Now().UTC()); err != nil {
			s.logger.Warn(ctx, "failed to touch device", "device_id", req.DeviceID, "error", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.saveCheckpoint(ctx, req.UserID, req.DeviceID)
	return resp, nil
}

func (s *PushService) validateBatchSize(req PushRequest) error {
	lists := []int{
		len(req.Tasks.Created), len(req.Tasks.Updated), len(req.Tasks.Deleted),
		len(req.Notes.Created), len(req.Notes.Updated), len(req.Notes.Deleted),
	}
	total := 0
	for _, n := range lists {
		if n > s.maxItemsPerList {
			return ErrBatchTooLarge
		}
		total += n
	}
	if total > s.maxTotalItems {
		return ErrBatchTooLarge
	}
	return nil
}

func (s *PushService) pushTasks(ctx context.Context, store repositories.Store, userID uuid.UUID, push TaskPush, conflicts *[]Conflict) (EntityPushResult, error) {
	var result EntityPushResult

	for _, item := range push.Created {
		created, err := s.createTask(ctx, store, userID, item)
		if err != nil {
			return result, err
		}
		result.Created = append(result.Created, created)
	}
	for _, item := range push.Updated {
		updated, conflict, err := s.updateTask(ctx, store, userID, item)
		if err != nil {
			return result, err
		}
		if conflict != nil {
			*conflicts = append(*conflicts, *conflict)
		}
		result.Updated = append(result.Updated, updated)
	}
	for _, item := range push.Deleted {
		deleted, err := s.deleteTask(ctx, store, userID, item)
		if err != nil {
			return result, err
		}
		result.Deleted = append(result.Deleted, deleted)
	}
	return result, nil
}

func (s *PushService) createTask(ctx context.Context, store repositories.Store, userID uuid.UUID, item TaskCreateItem) (CreateResult, error) {
	task, err := models.NewTask(userID, item.Data)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			return CreateResult{CorrelationID: item.CorrelationID, Status: StatusFailed, Errors: verr.Errors}, nil
		}
		return CreateResult{}, err
	}

	if err := store.Tasks().Create(ctx, task); err != nil {
		return CreateResult{}, err
	}
	if err := appendOutbox(ctx, store, models.AggregateTask, task.ID, userID, models.EventCreated, task); err != nil {
		return CreateResult{}, err
	}
	return CreateResult{CorrelationID: item.CorrelationID, ID: task.ID, Status: StatusCreated, Version: task.Version}, nil
}

func (s *PushService) updateTask(ctx context.Context, store repositories.Store, userID uuid.UUID, item TaskUpdateItem) (MutateResult, *Conflict, error) {
	task, err := store.Tasks().GetByID(ctx, item.ID)
	if errors.Is(err, repositories.ErrNotFound) {
		return MutateResult{ID: item.ID, Status: StatusNotFound}, nil, nil
	}
	if err != nil {
		return MutateResult{}, nil, err
	}
	// Foreign and deleted-on-server collapse into not_found, same as absent.
	if task.UserID != userID || task.IsDeleted {
		return MutateResult{ID: item.ID, Status: StatusNotFound}, nil, nil
	}

	if task.Version != item.ExpectedVersion {
		conflict := versionMismatch(EntityTypeTask, task.ID, item.ExpectedVersion, task.Version, task)
		return MutateResult{ID: item.ID, Status: StatusConflict}, &conflict, nil
	}

	expected := task.Version
	if err := task.Apply(item.Data); err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			return MutateResult{ID: item.ID, Status: StatusFailed, Errors: verr.Errors}, nil, nil
		}
		return MutateResult{}, nil, err
	}

	if err := store.Tasks().Update(ctx, task, expected); err != nil {
		if errors.Is(err, repositories.ErrVersionConflict) {
			return s.taskRaceConflict(ctx, store, item)
		}
		return MutateResult{}, nil, err
	}
	if err := appendOutbox(ctx, store, models.AggregateTask, task.ID, userID, models.EventUpdated, task); err != nil {
		return MutateResult{}, nil, err
	}
	return MutateResult{ID: task.ID, Status: StatusUpdated, NewVersion: task.Version}, nil, nil
}

// taskRaceConflict handles the narrow window where another commit landed
// between our read and the version-guarded write.
func (s *PushService) taskRaceConflict(ctx context.Context, store repositories.Store, item TaskUpdateItem) (MutateResult, *Conflict, error) {
	current, err := store.Tasks().GetByID(ctx, item.ID)
	if err != nil {
		return MutateResult{}, nil, err
	}
	conflict := versionMismatch(EntityTypeTask, item.ID, item.ExpectedVersion, current.Version, current)
	return MutateResult{ID: item.ID, Status: StatusConflict}, &conflict, nil
}

// deleteRaceRetries bounds how often a delete re-reads after losing the
// version-guarded write to a concurrent commit.
const deleteRaceRetries = 3

// deleteTask applies delete-wins semantics: a version race with a concurrent
// commit is retried against the fresh row rather than surfaced, because a
// delete is valid against any live version.
func (s *PushService) deleteTask(ctx context.Context, store repositories.Store, userID uuid.UUID, item DeleteItem) (MutateResult, error) {
	for attempt := 0; attempt < deleteRaceRetries; attempt++ {
		task, err := store.Tasks().GetByID(ctx, item.ID)
		if errors.Is(err, repositories.ErrNotFound) {
			return MutateResult{ID: item.ID, Status: StatusNotFound}, nil
		}
		if err != nil {
			return MutateResult{}, err
		}
		if task.UserID != userID {
			return MutateResult{ID: item.ID, Status: StatusNotFound}, nil
		}
		if task.IsDeleted {
			return MutateResult{ID: item.ID, Status: StatusAlreadyDeleted, NewVersion: task.Version}, nil
		}

		expected := task.Version
		task.SoftDelete()
		if err := store.Tasks().Update(ctx, task, expected); err != nil {
			if errors.Is(err, repositories.ErrVersionConflict) {
				continue
			}
			return MutateResult{}, err
		}
		if err := appendOutbox(ctx, store, models.AggregateTask, task.ID, userID, models.EventDeleted, task); err != nil {
			return MutateResult{}, err
		}
		return MutateResult{ID: task.ID, Status: StatusDeleted, NewVersion: task.Version}, nil
	}
	return MutateResult{ID: item.ID, Status: StatusFailed, Errors: []string{"delete kept losing version races"}}, nil
}

func (s *PushService) pushNotes(ctx context.Context, store repositories.Store, userID uuid.UUID, push NotePush, conflicts *[]Conflict) (EntityPushResult, error) {
	var result EntityPushResult

	for _, item := range push.Created {
		created, err := s.createNote(ctx, store, userID, item)
		if err != nil {
			return result, err
		}
		result.Created = append(result.Created, created)
	}
	for _, item := range push.Updated {
		updated, conflict, err := s.updateNote(ctx, store, userID, item)
		if err != nil {
			return result, err
		}
		if conflict != nil {
			*conflicts = append(*conflicts, *conflict)
		}
		result.Updated = append(result.Updated, updated)
	}
	for _, item := range push.Deleted {
		deleted, err := s.deleteNote(ctx, store, userID, item)
		if err != nil {
			return result, err
		}
		result.Deleted = append(result.Deleted, deleted)
	}
	return result, nil
}

func (s *PushService) createNote(ctx context.Context, store repositories.Store, userID uuid.UUID, item NoteCreateItem) (CreateResult, error) {
	if errs := validateBlockSet(item.Data.Blocks); len(errs) > 0 {
		return CreateResult{CorrelationID: item.CorrelationID, Status: StatusFailed, Errors: errs}, nil
	}

	note, err := models.NewNote(userID, item.Data)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			return CreateResult{CorrelationID: item.CorrelationID, Status: StatusFailed, Errors: verr.Errors}, nil
		}
		return CreateResult{}, err
	}

	if err := store.Notes().Create(ctx, note); err != nil {
		return CreateResult{}, err
	}
	if err := appendOutbox(ctx, store, models.AggregateNote, note.ID, userID, models.EventCreated, note); err != nil {
		return CreateResult{}, err
	}

	for _, blockData := range item.Data.Blocks {
		block, err := models.NewBlock(note.ID, userID, blockData)
		if err != nil {
			return CreateResult{}, err
		}
		if err := store.Blocks().Create(ctx, block); err != nil {
			return CreateResult{}, err
		}
		if err := appendOutbox(ctx, store, models.AggregateBlock, block.ID, userID, models.EventCreated, block); err != nil {
			return CreateResult{}, err
		}
	}

	return CreateResult{CorrelationID: item.CorrelationID, ID: note.ID, Status: StatusCreated, Version: note.Version}, nil
}

func (s *PushService) updateNote(ctx context.Context, store repositories.Store, userID uuid.UUID, item NoteUpdateItem) (MutateResult, *Conflict, error) {
	note, err := store.Notes().GetByID(ctx, item.ID)
	if errors.Is(err, repositories.ErrNotFound) {
		return MutateResult{ID: item.ID, Status: StatusNotFound}, nil, nil
	}
	if err != nil {
		return MutateResult{}, nil, err
	}
	if note.UserID != userID || note.IsDeleted {
		return MutateResult{ID: item.ID, Status: StatusNotFound}, nil, nil
	}

	if note.Version != item.ExpectedVersion {
		conflict := versionMismatch(EntityTypeNote, note.ID, item.ExpectedVersion, note.Version, note)
		return MutateResult{ID: item.ID, Status: StatusConflict}, &conflict, nil
	}

	if errs := validateBlockSet(item.Data.Blocks); len(errs) > 0 {
		return MutateResult{ID: item.ID, Status: StatusFailed, Errors: errs}, nil, nil
	}

	expected := note.Version
	if err := note.Apply(item.Data); err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			return MutateResult{ID: item.ID, Status: StatusFailed, Errors: verr.Errors}, nil, nil
		}
		return MutateResult{}, nil, err
	}

	if err := store.Notes().Update(ctx, note, expected); err != nil {
		if errors.Is(err, repositories.ErrVersionConflict) {
			current, gerr := store.Notes().GetByID(ctx, item.ID)
			if gerr != nil {
				return MutateResult{}, nil, gerr
			}
			conflict := versionMismatch(EntityTypeNote, item.ID, item.ExpectedVersion, current.Version, current)
			return MutateResult{ID: item.ID, Status: StatusConflict}, &conflict, nil
		}
		return MutateResult{}, nil, err
	}
	if err := appendOutbox(ctx, store, models.AggregateNote, note.ID, userID, models.EventUpdated, note); err != nil {
		return MutateResult{}, nil, err
	}

	if item.Data.Blocks != nil {
		if err := applyBlockSet(ctx, store, note, item.Data.Blocks); err != nil {
			return MutateResult{}, nil, err
		}
	}

	return MutateResult{ID: note.ID, Status: StatusUpdated, NewVersion: note.Version}, nil, nil
}

// deleteNote retries lost version races the same way deleteTask does.
func (s *PushService) deleteNote(ctx context.Context, store repositories.Store, userID uuid.UUID, item DeleteItem) (MutateResult, error) {
	for attempt := 0; attempt < deleteRaceRetries; attempt++ {
		note, err := store.Notes().GetByID(ctx, item.ID)
		if errors.Is(err, repositories.ErrNotFound) {
			return MutateResult{ID: item.ID, Status: StatusNotFound}, nil
		}
		if err != nil {
			return MutateResult{}, err
		}
		if note.UserID != userID {
			return MutateResult{ID: item.ID, Status: StatusNotFound}, nil
		}
		if note.IsDeleted {
			return MutateResult{ID: item.ID, Status: StatusAlreadyDeleted, NewVersion: note.Version}, nil
		}

		expected := note.Version
		note.SoftDelete()
		if err := store.Notes().Update(ctx, note, expected); err != nil {
			if errors.Is(err, repositories.ErrVersionConflict) {
				continue
			}
			return MutateResult{}, err
		}
		if err := appendOutbox(ctx, store, models.AggregateNote, note.ID, userID, models.EventDeleted, note); err != nil {
			return MutateResult{}, err
		}

		s.cascadeDeleteBlocks(ctx, store, note)

		return MutateResult{ID: note.ID, Status: StatusDeleted, NewVersion: note.Version}, nil
	}
	return MutateResult{ID: item.ID, Status: StatusFailed, Errors: []string{"delete kept losing version races"}}, nil
}

// cascadeDeleteBlocks soft-deletes the note's live blocks as a best-effort
// fan-out: a block whose write or event append fails is logged and skipped,
// never blocking the parent or sibling deletions.
func (s *PushService) cascadeDeleteBlocks(ctx context.Context, store repositories.Store, note *models.Note) {
	blocks, err := store.Blocks().ListByNote(ctx, note.ID, false)
	if err != nil {
		s.logger.Warn(ctx, "failed to list blocks for cascade delete", "note_id", note.ID, "error", err)
		return
	}

	for _, block := range blocks {
		expected := block.Version
		if !block.SoftDelete() {
			continue
		}
		if err := store.Blocks().Update(ctx, block, expected); err != nil {
			s.logger.Warn(ctx, "failed to cascade block delete", "block_id", block.ID, "error", err)
			continue
		}
		if err := appendOutbox(ctx, store, models.AggregateBlock, block.ID, block.UserID, models.EventDeleted, block); err != nil {
			s.logger.Warn(ctx, "failed to append block delete event", "block_id", block.ID, "error", err)
		}
	}
}

func (s *PushService) saveCheckpoint(ctx context.Context, userID, deviceID uuid.UUID) {
	if s.checkpoints == nil {
		return
	}
	now := time.Now().UTC()
	checkpoint, err := s.checkpoints.Get(ctx, deviceID)
	if err != nil {
		checkpoint = &models.SyncCheckpoint{DeviceID: deviceID, UserID: userID}
	}
	checkpoint.LastPushedAt = &now
	if err := s.checkpoints.Save(ctx, checkpoint); err != nil {
		s.logger.Warn(ctx, "failed to save push checkpoint", "device_id", deviceID, "error", err)
	}
}
