package models

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOutboxRecord_DotQualifiedEventName(t *testing.T) {
	task, err := NewTask(uuid.New(), validTaskData())
	require.NoError(t, err)

	record, err := NewOutboxRecord(AggregateTask, task.ID, task.UserID, EventCreated, task)

	require.NoError(t, err)
	assert.Equal(t, "Task.Created", record.EventName)
	assert.Equal(t, task.ID, record.AggregateID)
	assert.Equal(t, 0, record.Attempts)
	assert.Nil(t, record.ProcessedAt)

	var snapshot Task
	require.NoError(t, json.Unmarshal(record.Payload, &snapshot))
	assert.Equal(t, task.ID, snapshot.ID)
	assert.Equal(t, task.Version, snapshot.Version)
}

func TestNewOutboxRecord_RejectsEmptyPayload(t *testing.T) {
	_, err := NewOutboxRecord(AggregateNote, uuid.New(), uuid.New(), EventDeleted, nil)
	assert.Error(t, err)
}

func TestNewOutboxRecord_RequiresAggregate(t *testing.T) {
	_, err := NewOutboxRecord("", uuid.New(), uuid.New(), EventCreated, struct{}{})
	assert.Error(t, err)

	_, err = NewOutboxRecord(AggregateTask, uuid.Nil, uuid.New(), EventCreated, struct{}{})
	assert.Error(t, err)
}
