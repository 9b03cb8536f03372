package services

import (
	"context"
	"testing"
	"time"

	"github.com/daygrid/daygrid/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Walks the full two-device conflict lifecycle: device A and device B both
// edit the same task, B loses the optimistic race, sees the conflict with
// both versions, then settles it with keep_client against the fresh version.
func TestScenario_TwoDeviceConflictAndResolution(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()
	deviceA := env.deviceID
	deviceB := env.seedDevice(env.userID, true)

	// Device A creates the task.
	created, err := env.push.Push(ctx, PushRequest{
		UserID:   env.userID,
		DeviceID: deviceA,
		Tasks:    TaskPush{Created: []TaskCreateItem{{CorrelationID: "a-1", Data: taskData("plan sprint")}}},
	})
	require.NoError(t, err)
	taskID := created.Tasks.Created[0].ID
	require.Equal(t, int64(1), created.Tasks.Created[0].Version)

	// Device B pulls and sees version 1.
	pulled, err := env.pull.Pull(ctx, PullRequest{UserID: env.userID, DeviceID: &deviceB})
	require.NoError(t, err)
	require.Len(t, pulled.Tasks.Created, 1)
	assert.Equal(t, int64(1), pulled.Tasks.Created[0].Version)

	// Device A edits first, bumping the task to version 2.
	edited := taskData("plan sprint")
	edited.Description = "device A got here first"
	_, err = env.push.Push(ctx, PushRequest{
		UserID:   env.userID,
		DeviceID: deviceA,
		Tasks:    TaskPush{Updated: []TaskUpdateItem{{ID: taskID, ExpectedVersion: 1, Data: edited}}},
	})
	require.NoError(t, err)

	// Device B pushes against the version it last saw and loses.
	stale := taskData("plan sprint")
	stale.Description = "device B's stale edit"
	resp, err := env.push.Push(ctx, PushRequest{
		UserID:   env.userID,
		DeviceID: deviceB,
		Tasks:    TaskPush{Updated: []TaskUpdateItem{{ID: taskID, ExpectedVersion: 1, Data: stale}}},
	})
	require.NoError(t, err)

	require.Equal(t, StatusConflict, resp.Tasks.Updated[0].Status)
	require.Len(t, resp.Conflicts, 1)
	conflict := resp.Conflicts[0]
	assert.Equal(t, EntityTypeTask, conflict.EntityType)
	assert.Equal(t, taskID, conflict.EntityID)
	assert.Equal(t, int64(1), conflict.ClientVersion)
	assert.Equal(t, int64(2), conflict.ServerVersion)
	require.NotNil(t, conflict.ServerEntity)

	// The losing push changed nothing.
	task, err := env.store.Tasks().GetByID(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, "device A got here first", task.Description)

	// Device B keeps its own edit, now re-based on the server version.
	rebased := taskData("plan sprint")
	rebased.Description = "device B's considered edit"
	resolved, err := env.resolve.Resolve(ctx, ResolveRequest{
		UserID: env.userID,
		Resolutions: []Resolution{{
			EntityType:      EntityTypeTask,
			EntityID:        taskID,
			Choice:          KeepClient,
			ExpectedVersion: 2,
			Data:            mustJSON(t, rebased),
		}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusUpdated, resolved.Results[0].Status)
	assert.Equal(t, int64(3), resolved.Results[0].NewVersion)

	task, err = env.store.Tasks().GetByID(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, "device B's considered edit", task.Description)
	assert.Equal(t, int64(3), task.Version)
}

// A note delete must fan out to its blocks, and a later incremental pull
// must report the note and every block in the deleted buckets.
func TestScenario_NoteDeleteCascadeVisibleOnPull(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()

	noteID := env.pushCreateNote(t, noteData("grocery run",
		models.BlockData{Kind: models.BlockKindText, Position: 0, Content: "milk"},
		models.BlockData{Kind: models.BlockKindText, Position: 1, Content: "eggs"},
	))

	checkpoint := time.Now().UTC()
	time.Sleep(2 * time.Millisecond)

	_, err := env.push.Push(ctx, PushRequest{
		UserID:   env.userID,
		DeviceID: env.deviceID,
		Notes:    NotePush{Deleted: []DeleteItem{{ID: noteID}}},
	})
	require.NoError(t, err)

	pulled, err := env.pull.Pull(ctx, PullRequest{UserID: env.userID, SinceUtc: &checkpoint})
	require.NoError(t, err)

	require.Len(t, pulled.Notes.Deleted, 1)
	assert.Equal(t, noteID, pulled.Notes.Deleted[0].ID)
	assert.False(t, pulled.Notes.Deleted[0].DeletedAtUtc.IsZero())

	require.Len(t, pulled.Blocks.Deleted, 2)
	assert.Empty(t, pulled.Notes.Created)
	assert.Empty(t, pulled.Blocks.Created)

	// An initial sync after the delete never mentions the note at all.
	fresh, err := env.pull.Pull(ctx, PullRequest{UserID: env.userID})
	require.NoError(t, err)
	assert.Empty(t, fresh.Notes.Created)
	assert.Empty(t, fresh.Notes.Deleted)
	assert.Empty(t, fresh.Blocks.Created)
}
