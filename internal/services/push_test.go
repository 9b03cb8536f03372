package services

import (
	"context"
	"testing"

	"github.com/daygrid/daygrid/internal/models"
	"github.com/daygrid/daygrid/internal/repositories"
	"github.com/daygrid/daygrid/internal/repositories/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPush_Create_MapsCorrelationIDToServerID(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()

	resp, err := env.push.Push(ctx, PushRequest{
		UserID:   env.userID,
		DeviceID: env.deviceID,
		Tasks: TaskPush{
			Created: []TaskCreateItem{{CorrelationID: "local-42", Data: taskData("new task")}},
		},
	})

	require.NoError(t, err)
	require.Len(t, resp.Tasks.Created, 1)
	created := resp.Tasks.Created[0]
	assert.Equal(t, "local-42", created.CorrelationID)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, StatusCreated, created.Status)
	assert.Equal(t, int64(1), created.Version)
	assert.Empty(t, resp.Conflicts)
}

func TestPush_Create_WritesOutboxRecordAtomically(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()

	taskID := env.pushCreateTask(t, "journaled")

	pending, err := env.store.Outbox().ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Task.Created", pending[0].EventName)
	assert.Equal(t, taskID, pending[0].AggregateID)
	assert.Equal(t, env.userID, pending[0].UserID)
}

func TestPush_Create_ValidationFailureIsPerItem(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()

	resp, err := env.push.Push(ctx, PushRequest{
		UserID:   env.userID,
		DeviceID: env.deviceID,
		Tasks: TaskPush{
			Created: []TaskCreateItem{
				{CorrelationID: "bad", Data: models.TaskData{}},
				{CorrelationID: "good", Data: taskData("survives")},
			},
		},
	})

	require.NoError(t, err)
	require.Len(t, resp.Tasks.Created, 2)
	assert.Equal(t, StatusFailed, resp.Tasks.Created[0].Status)
	assert.NotEmpty(t, resp.Tasks.Created[0].Errors)
	assert.Equal(t, StatusCreated, resp.Tasks.Created[1].Status)
	// Validation failures are not conflicts.
	assert.Empty(t, resp.Conflicts)
}

func TestPush_Update_VersionMismatchYieldsConflictWithoutMutation(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()

	taskID := env.pushCreateTask(t, "contested")

	// Bump the server version to 2.
	data := taskData("contested")
	data.Description = "server edit"
	resp, err := env.push.Push(ctx, PushRequest{
		UserID:   env.userID,
		DeviceID: env.deviceID,
		Tasks:    TaskPush{Updated: []TaskUpdateItem{{ID: taskID, ExpectedVersion: 1, Data: data}}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusUpdated, resp.Tasks.Updated[0].Status)

	// A stale client still believes version 1.
	stale := taskData("contested")
	stale.Description = "stale edit"
	resp, err = env.push.Push(ctx, PushRequest{
		UserID:   env.userID,
		DeviceID: env.deviceID,
		Tasks:    TaskPush{Updated: []TaskUpdateItem{{ID: taskID, ExpectedVersion: 1, Data: stale}}},
	})
	require.NoError(t, err)

	require.Equal(t, StatusConflict, resp.Tasks.Updated[0].Status)
	require.Len(t, resp.Conflicts, 1)
	conflict := resp.Conflicts[0]
	assert.Equal(t, EntityTypeTask, conflict.EntityType)
	assert.Equal(t, taskID, conflict.EntityID)
	assert.Equal(t, ConflictTypeVersionMismatch, conflict.Type)
	assert.Equal(t, int64(1), conflict.ClientVersion)
	assert.Equal(t, int64(2), conflict.ServerVersion)
	require.NotNil(t, conflict.ServerEntity)

	server, err := env.store.Tasks().GetByID(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, "server edit", server.Description, "stale edit must not be applied")
	assert.Equal(t, int64(2), server.Version)
}

func TestPush_Update_MissingAndDeletedCollapseToNotFound(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()

	deletedID := env.pushCreateTask(t, "soon gone")
	_, err := env.push.Push(ctx, PushRequest{
		UserID:   env.userID,
		DeviceID: env.deviceID,
		Tasks:    TaskPush{Deleted: []DeleteItem{{ID: deletedID}}},
	})
	require.NoError(t, err)

	resp, err := env.push.Push(ctx, PushRequest{
		UserID:   env.userID,
		DeviceID: env.deviceID,
		Tasks: TaskPush{Updated: []TaskUpdateItem{
			{ID: uuid.New(), ExpectedVersion: 1, Data: taskData("ghost")},
			{ID: deletedID, ExpectedVersion: 2, Data: taskData("zombie")},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusNotFound, resp.Tasks.Updated[0].Status)
	assert.Equal(t, StatusNotFound, resp.Tasks.Updated[1].Status)
	assert.Empty(t, resp.Conflicts, "not-found outcomes are not conflicts")
}

func TestPush_Delete_IsIdempotentAndNeverConflicts(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()

	taskID := env.pushCreateTask(t, "doomed")

	resp, err := env.push.Push(ctx, PushRequest{
		UserID:   env.userID,
		DeviceID: env.deviceID,
		Tasks: TaskPush{Deleted: []DeleteItem{
			{ID: taskID, ExpectedVersion: 1},
			{ID: uuid.New()},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusDeleted, resp.Tasks.Deleted[0].Status)
	assert.Equal(t, int64(2), resp.Tasks.Deleted[0].NewVersion)
	assert.Equal(t, StatusNotFound, resp.Tasks.Deleted[1].Status)
	assert.Empty(t, resp.Conflicts)

	// Deleting again reports already_deleted without a version bump.
	resp, err = env.push.Push(ctx, PushRequest{
		UserID:   env.userID,
		DeviceID: env.deviceID,
		Tasks:    TaskPush{Deleted: []DeleteItem{{ID: taskID}}},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyDeleted, resp.Tasks.Deleted[0].Status)
	assert.Equal(t, int64(2), resp.Tasks.Deleted[0].NewVersion)
	assert.Empty(t, resp.Conflicts)
}

func TestPush_ForeignDevice_RejectsWholeBatch(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()

	foreignDevice := env.seedDevice(uuid.New(), true)

	_, err := env.push.Push(ctx, PushRequest{
		UserID:   env.userID,
		DeviceID: foreignDevice,
		Tasks: TaskPush{
			Created: []TaskCreateItem{{CorrelationID: "never", Data: taskData("never applied")}},
		},
	})
	require.ErrorIs(t, err, ErrDeviceNotFound)

	// Nothing from the batch may have been applied.
	pulled, perr := env.pull.Pull(ctx, PullRequest{UserID: env.userID})
	require.NoError(t, perr)
	assert.Empty(t, pulled.Tasks.Created)

	pending, oerr := env.store.Outbox().ListPending(ctx, 10)
	require.NoError(t, oerr)
	assert.Empty(t, pending)
}

func TestPush_BatchSizeLimits(t *testing.T) {
	env := newSyncEnv(t)
	env.push = NewPushService(env.store, nil, testLogger(), 2, 3)
	ctx := context.Background()

	// One list over its cap.
	_, err := env.push.Push(ctx, PushRequest{
		UserID:   env.userID,
		DeviceID: env.deviceID,
		Tasks: TaskPush{Created: []TaskCreateItem{
			{CorrelationID: "1", Data: taskData("a")},
			{CorrelationID: "2", Data: taskData("b")},
			{CorrelationID: "3", Data: taskData("c")},
		}},
	})
	assert.ErrorIs(t, err, ErrBatchTooLarge)

	// Lists within caps but total over the batch cap.
	_, err = env.push.Push(ctx, PushRequest{
		UserID:   env.userID,
		DeviceID: env.deviceID,
		Tasks: TaskPush{
			Created: []TaskCreateItem{{CorrelationID: "1", Data: taskData("a")}, {CorrelationID: "2", Data: taskData("b")}},
			Deleted: []DeleteItem{{ID: uuid.New()}, {ID: uuid.New()}},
		},
	})
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestPush_NoteCreate_CreatesBlocksWithEvents(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()

	noteID := env.pushCreateNote(t, noteData("meeting notes",
		models.BlockData{Kind: models.BlockKindText, Position: 0, Content: "agenda"},
		models.BlockData{Kind: models.BlockKindText, Position: 1, Content: "minutes"},
	))

	blocks, err := env.store.Blocks().ListByNote(ctx, noteID, false)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, "agenda", blocks[0].Content)

	pending, err := env.store.Outbox().ListPending(ctx, 10)
	require.NoError(t, err)
	var names []string
	for _, record := range pending {
		names = append(names, record.EventName)
	}
	assert.Contains(t, names, "Note.Created")
	assert.Contains(t, names, "Block.Created")
}

func TestPush_NoteUpdate_ReplacesBlockSet(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()

	noteID := env.pushCreateNote(t, noteData("draft",
		models.BlockData{Kind: models.BlockKindText, Position: 0, Content: "keep me"},
		models.BlockData{Kind: models.BlockKindText, Position: 1, Content: "drop me"},
	))

	blocks, err := env.store.Blocks().ListByNote(ctx, noteID, false)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	keptID := blocks[0].ID

	// Keep block 0 with edited content, drop block 1, add a new one.
	resp, err := env.push.Push(ctx, PushRequest{
		UserID:   env.userID,
		DeviceID: env.deviceID,
		Notes: NotePush{Updated: []NoteUpdateItem{{
			ID:              noteID,
			ExpectedVersion: 1,
			Data: noteData("draft v2",
				models.BlockData{ID: &keptID, Kind: models.BlockKindText, Position: 0, Content: "kept, edited"},
				models.BlockData{Kind: models.BlockKindText, Position: 1, Content: "brand new"},
			),
		}}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusUpdated, resp.Notes.Updated[0].Status)
	assert.Equal(t, int64(2), resp.Notes.Updated[0].NewVersion)

	live, err := env.store.Blocks().ListByNote(ctx, noteID, false)
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, keptID, live[0].ID)
	assert.Equal(t, "kept, edited", live[0].Content)
	assert.Equal(t, int64(2), live[0].Version)
	assert.Equal(t, "brand new", live[1].Content)

	all, err := env.store.Blocks().ListByNote(ctx, noteID, true)
	require.NoError(t, err)
	assert.Len(t, all, 3, "dropped block stays as a tombstone")
}

func TestPush_NoteDelete_CascadesToBlocks(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()

	noteID := env.pushCreateNote(t, noteData("cascade",
		models.BlockData{Kind: models.BlockKindText, Position: 0, Content: "b0"},
		models.BlockData{Kind: models.BlockKindText, Position: 1, Content: "b1"},
	))

	resp, err := env.push.Push(ctx, PushRequest{
		UserID:   env.userID,
		DeviceID: env.deviceID,
		Notes:    NotePush{Deleted: []DeleteItem{{ID: noteID}}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusDeleted, resp.Notes.Deleted[0].Status)

	all, err := env.store.Blocks().ListByNote(ctx, noteID, true)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, block := range all {
		assert.True(t, block.IsDeleted)
		assert.Equal(t, int64(2), block.Version)
	}

	pending, err := env.store.Outbox().ListPending(ctx, 20)
	require.NoError(t, err)
	var blockDeletes int
	for _, record := range pending {
		if record.EventName == "Block.Deleted" {
			blockDeletes++
		}
	}
	assert.Equal(t, 2, blockDeletes)
}

// racingStore simulates another device committing between a read and the
// version-guarded write: the first GetByID per entity type returns a stale
// copy after applying a competing edit to the underlying store.
type racingStore struct {
	*memory.Store
	racedTask bool
	racedNote bool
}

func (s *racingStore) WithinTx(ctx context.Context, fn func(context.Context, repositories.Store) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, _ repositories.Store) error {
		return fn(ctx, s)
	})
}

func (s *racingStore) Tasks() repositories.TaskRepository {
	return &racingTaskRepo{TaskRepository: s.Store.Tasks(), store: s}
}

func (s *racingStore) Notes() repositories.NoteRepository {
	return &racingNoteRepo{NoteRepository: s.Store.Notes(), store: s}
}

type racingTaskRepo struct {
	repositories.TaskRepository
	store *racingStore
}

func (r *racingTaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	task, err := r.TaskRepository.GetByID(ctx, id)
	if err != nil || r.store.racedTask || task.IsDeleted {
		return task, err
	}
	r.store.racedTask = true
	competitor := *task
	if err := competitor.Apply(models.TaskData{Title: competitor.Title, Description: "edited elsewhere", Date: competitor.Date}); err != nil {
		return nil, err
	}
	if err := r.TaskRepository.Update(ctx, &competitor, task.Version); err != nil {
		return nil, err
	}
	return task, nil
}

type racingNoteRepo struct {
	repositories.NoteRepository
	store *racingStore
}

func (r *racingNoteRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Note, error) {
	note, err := r.NoteRepository.GetByID(ctx, id)
	if err != nil || r.store.racedNote || note.IsDeleted {
		return note, err
	}
	r.store.racedNote = true
	competitor := *note
	if err := competitor.Apply(models.NoteData{Title: competitor.Title + " (elsewhere)", Date: competitor.Date}); err != nil {
		return nil, err
	}
	if err := r.NoteRepository.Update(ctx, &competitor, note.Version); err != nil {
		return nil, err
	}
	return note, nil
}

func TestPush_Delete_RetriesLostVersionRace(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()

	taskID := env.pushCreateTask(t, "contested delete")
	noteID := env.pushCreateNote(t, noteData("contested note"))

	racing := &racingStore{Store: env.store}
	push := NewPushService(racing, nil, testLogger(), 100, 500)

	resp, err := push.Push(ctx, PushRequest{
		UserID:   env.userID,
		DeviceID: env.deviceID,
		Tasks:    TaskPush{Deleted: []DeleteItem{{ID: taskID, ExpectedVersion: 1}}},
		Notes:    NotePush{Deleted: []DeleteItem{{ID: noteID, ExpectedVersion: 1}}},
	})
	require.NoError(t, err, "a lost delete race must not abort the batch")

	require.Len(t, resp.Tasks.Deleted, 1)
	assert.Equal(t, StatusDeleted, resp.Tasks.Deleted[0].Status)
	assert.Equal(t, int64(3), resp.Tasks.Deleted[0].NewVersion, "delete lands on top of the competing edit")

	require.Len(t, resp.Notes.Deleted, 1)
	assert.Equal(t, StatusDeleted, resp.Notes.Deleted[0].Status)
	assert.Equal(t, int64(3), resp.Notes.Deleted[0].NewVersion)
	assert.Empty(t, resp.Conflicts, "deletes win; they never conflict")

	task, err := env.store.Tasks().GetByID(ctx, taskID)
	require.NoError(t, err)
	assert.True(t, task.IsDeleted)

	note, err := env.store.Notes().GetByID(ctx, noteID)
	require.NoError(t, err)
	assert.True(t, note.IsDeleted)
}

func TestPush_NoteCreate_RetryWithClientBlockIDsGetsFreshServerIDs(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()

	clientBlockID := uuid.New()
	payload := noteData("retried note",
		models.BlockData{ID: &clientBlockID, Kind: models.BlockKindText, Position: 0, Content: "body"},
	)

	firstID := env.pushCreateNote(t, payload)
	// The response was lost; the client re-sends the identical payload,
	// client block id included.
	secondID := env.pushCreateNote(t, payload)
	require.NotEqual(t, firstID, secondID)

	firstBlocks, err := env.store.Blocks().ListByNote(ctx, firstID, false)
	require.NoError(t, err)
	secondBlocks, err := env.store.Blocks().ListByNote(ctx, secondID, false)
	require.NoError(t, err)
	require.Len(t, firstBlocks, 1)
	require.Len(t, secondBlocks, 1)

	assert.NotEqual(t, clientBlockID, firstBlocks[0].ID, "create mints a server id")
	assert.NotEqual(t, clientBlockID, secondBlocks[0].ID)
	assert.NotEqual(t, firstBlocks[0].ID, secondBlocks[0].ID)
}
