package services

import (
	"time"

	"github.com/daygrid/daygrid/internal/models"
	"github.com/google/uuid"
)

// ItemStatus is the per-item outcome of a push or resolve batch member.
// Conflicts and not-found are ordinary statuses, not errors: a client always
// gets a complete accounting of its batch.
type ItemStatus string

const (
	StatusCreated        ItemStatus = "created"
	StatusUpdated        ItemStatus = "updated"
	StatusDeleted        ItemStatus = "deleted"
	StatusAlreadyDeleted ItemStatus = "already_deleted"
	StatusNotFound       ItemStatus = "not_found"
	StatusFailed         ItemStatus = "failed"
	StatusConflict       ItemStatus = "conflict"
	StatusKeptServer     ItemStatus = "kept_server"
)

const (
	EntityTypeTask = "task"
	EntityTypeNote = "note"
)

const ConflictTypeVersionMismatch = "version_mismatch"

// Conflict is the structured record of a concurrent-edit collision. It
// carries both versions and a snapshot of the current server entity so the
// losing client can reconcile without another round trip.
type Conflict struct {
	EntityType    string    `json:"entityType"`
	EntityID      uuid.UUID `json:"entityId"`
	Type          string    `json:"type"`
	ClientVersion int64     `json:"clientVersion"`
	ServerVersion int64     `json:"serverVersion"`
	ServerEntity  any       `json:"serverEntity,omitempty"`
}

func versionMismatch(entityType string, entityID uuid.UUID, clientVersion, serverVersion int64, serverEntity any) Conflict {
	return Conflict{
		EntityType:    entityType,
		EntityID:      entityID,
		Type:          ConflictTypeVersionMismatch,
		ClientVersion: clientVersion,
		ServerVersion: serverVersion,
		ServerEntity:  serverEntity,
	}
}

// DeletedEntry is the change-feed representation of a soft-deleted entity:
// id plus the deletion instant, nothing else.
type DeletedEntry struct {
	ID           uuid.UUID `json:"id"`
	DeletedAtUtc time.Time `json:"deletedAtUtc"`
}

type TaskChanges struct {
	Created []*models.Task `json:"created"`
	Updated []*models.Task `json:"updated"`
	Deleted []DeletedEntry `json:"deleted"`
}

type NoteChanges struct {
	Created []*models.Note `json:"created"`
	Updated []*models.Note `json:"updated"`
	Deleted []DeletedEntry `json:"deleted"`
}

type BlockChanges struct {
	Created []*models.Block `json:"created"`
	Updated []*models.Block `json:"updated"`
	Deleted []DeletedEntry  `json:"deleted"`
}
