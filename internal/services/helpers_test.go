package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/daygrid/daygrid/internal/logging"
	"github.com/daygrid/daygrid/internal/models"
	"github.com/daygrid/daygrid/internal/repositories/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// syncEnv is a fully wired sync stack over the in-memory store with one
// active device seeded for the test user.
type syncEnv struct {
	store    *memory.Store
	pull     *PullService
	push     *PushService
	resolve  *ResolveService
	userID   uuid.UUID
	deviceID uuid.UUID
}

func newSyncEnv(t *testing.T) *syncEnv {
	t.Helper()

	store := memory.NewStore()
	logger := testLogger()
	userID := uuid.New()
	deviceID := uuid.New()

	store.SeedDevice(&models.Device{
		ID:        deviceID,
		UserID:    userID,
		Name:      "Test Phone",
		Platform:  "ios",
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	})

	return &syncEnv{
		store:    store,
		pull:     NewPullService(store, nil, logger, 200),
		push:     NewPushService(store, nil, logger, 100, 500),
		resolve:  NewResolveService(store, logger),
		userID:   userID,
		deviceID: deviceID,
	}
}

func (e *syncEnv) seedDevice(userID uuid.UUID, active bool) uuid.UUID {
	deviceID := uuid.New()
	e.store.SeedDevice(&models.Device{
		ID:        deviceID,
		UserID:    userID,
		Name:      "Another Device",
		Platform:  "android",
		IsActive:  active,
		CreatedAt: time.Now().UTC(),
	})
	return deviceID
}

func taskData(title string) models.TaskData {
	return models.TaskData{
		Title: title,
		Date:  time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
	}
}

func noteData(title string, blocks ...models.BlockData) models.NoteData {
	return models.NoteData{
		Title:  title,
		Date:   time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		Blocks: blocks,
	}
}

// pushCreateTask pushes one task create and returns the new server id.
func (e *syncEnv) pushCreateTask(t *testing.T, title string) uuid.UUID {
	t.Helper()

	resp, err := e.push.Push(context.Background(), PushRequest{
		UserID:   e.userID,
		DeviceID: e.deviceID,
		Tasks: TaskPush{
			Created: []TaskCreateItem{{CorrelationID: "c-" + title, Data: taskData(title)}},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Tasks.Created, 1)
	require.Equal(t, StatusCreated, resp.Tasks.Created[0].Status)
	return resp.Tasks.Created[0].ID
}

// pushCreateNote pushes one note create and returns the new server id.
func (e *syncEnv) pushCreateNote(t *testing.T, data models.NoteData) uuid.UUID {
	t.Helper()

	resp, err := e.push.Push(context.Background(), PushRequest{
		UserID:   e.userID,
		DeviceID: e.deviceID,
		Notes: NotePush{
			Created: []NoteCreateItem{{CorrelationID: "n-" + data.Title, Data: data}},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Notes.Created, 1)
	require.Equal(t, StatusCreated, resp.Notes.Created[0].Status)
	return resp.Notes.Created[0].ID
}
