package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	AggregateTask  = "Task"
	AggregateNote  = "Note"
	AggregateBlock = "Block"
)

const (
	EventCreated = "Created"
	EventUpdated = "Updated"
	EventDeleted = "Deleted"
)

// OutboxRecord is one immutable event, appended in the same transaction as
// the entity mutation it describes. An external dispatcher consumes pending
// records, retrying with Attempts as its counter; delivery is at-least-once.
type OutboxRecord struct {
	ID            uuid.UUID  `json:"id"`
	AggregateType string     `json:"aggregate_type"`
	AggregateID   uuid.UUID  `json:"aggregate_id"`
	UserID        uuid.UUID  `json:"user_id"`
	EventName     string     `json:"event_name"`
	Payload       []byte     `json:"payload"`
	Attempts      int        `json:"attempts"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// NewOutboxRecord builds a record with the dot-qualified event name
// "{AggregateType}.{EventName}" and the entity snapshot as JSON payload.
func NewOutboxRecord(aggregateType string, aggregateID, userID uuid.UUID, event string, snapshot any) (*OutboxRecord, error) {
	if aggregateType == "" || event == "" {
		return nil, errors.New("outbox record requires aggregate type and event name")
	}
	if aggregateID == uuid.Nil {
		return nil, errors.New("outbox record requires an aggregate id")
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal outbox payload: %w", err)
	}
	if len(payload) == 0 || string(payload) == "null" {
		return nil, errors.New("outbox record requires a non-empty payload")
	}

	return &OutboxRecord{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		UserID:        userID,
		EventName:     aggregateType + "." + event,
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
	}, nil
}
