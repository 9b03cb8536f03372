package models

import (
	"time"

	"github.com/google/uuid"
)

type BlockKind string

const (
	BlockKindText  BlockKind = "text"
	BlockKindAsset BlockKind = "asset"
)

// Block is an ordered content unit inside a note. Text blocks carry content;
// asset blocks carry a reference to an externally stored binary. Blocks
// version independently of their parent note.
type Block struct {
	ID            uuid.UUID  `json:"id"`
	NoteID        uuid.UUID  `json:"noteId"`
	UserID        uuid.UUID  `json:"userId"`
	Kind          BlockKind  `json:"kind"`
	Position      int        `json:"position"`
	Content       string     `json:"content,omitempty"`
	AssetID       *uuid.UUID `json:"assetId,omitempty"`
	AssetMimeType string     `json:"assetMimeType,omitempty"`
	Version       int64      `json:"version"`
	IsDeleted     bool       `json:"isDeleted"`
	CreatedAt     time.Time  `json:"createdAtUtc"`
	UpdatedAt     time.Time  `json:"updatedAtUtc"`
}

// BlockData is the client-submitted state for one block. ID is set when the
// client is updating a block it already knows; nil, or an id the server does
// not have, means a new block with a server-assigned id.
type BlockData struct {
	ID            *uuid.UUID `json:"id,omitempty"`
	Kind          BlockKind  `json:"kind"`
	Position      int        `json:"position"`
	Content       string     `json:"content,omitempty"`
	AssetID       *uuid.UUID `json:"assetId,omitempty"`
	AssetMimeType string     `json:"assetMimeType,omitempty"`
}

// ValidateBlockData checks a block payload without constructing a block,
// letting callers reject a whole note payload before mutating anything.
func ValidateBlockData(data BlockData) error {
	var errs []string
	switch data.Kind {
	case BlockKindText:
		if data.AssetID != nil {
			errs = append(errs, "text block cannot carry an asset reference")
		}
	case BlockKindAsset:
		if data.AssetID == nil {
			errs = append(errs, "asset block requires an asset id")
		}
	default:
		errs = append(errs, "unknown block kind")
	}
	if data.Position < 0 {
		errs = append(errs, "position cannot be negative")
	}
	return newValidationError(errs)
}

// NewBlock always assigns a fresh server id. Client-supplied ids are only
// used to match existing blocks during an update; adopting them on create
// would let a retried note create collide on the primary key.
func NewBlock(noteID, userID uuid.UUID, data BlockData) (*Block, error) {
	if err := ValidateBlockData(data); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Block{
		ID:            uuid.New(),
		NoteID:        noteID,
		UserID:        userID,
		Kind:          data.Kind,
		Position:      data.Position,
		Content:       data.Content,
		AssetID:       data.AssetID,
		AssetMimeType: data.AssetMimeType,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Apply replaces the block's content. Returns false without bumping the
// version when the submitted state equals the current state, so re-applying
// the same block set during a note update stays a no-op.
func (b *Block) Apply(data BlockData) (bool, error) {
	if err := ValidateBlockData(data); err != nil {
		return false, err
	}
	if b.equalsData(data) {
		return false, nil
	}

	b.Kind = data.Kind
	b.Position = data.Position
	b.Content = data.Content
	b.AssetID = data.AssetID
	b.AssetMimeType = data.AssetMimeType
	b.touch()
	return true, nil
}

func (b *Block) equalsData(data BlockData) bool {
	if b.Kind != data.Kind || b.Position != data.Position ||
		b.Content != data.Content || b.AssetMimeType != data.AssetMimeType {
		return false
	}
	switch {
	case b.AssetID == nil && data.AssetID == nil:
		return true
	case b.AssetID != nil && data.AssetID != nil:
		return *b.AssetID == *data.AssetID
	default:
		return false
	}
}

// SoftDelete marks the block deleted. Re-deleting is a no-op.
func (b *Block) SoftDelete() bool {
	if b.IsDeleted {
		return false
	}
	b.IsDeleted = true
	b.touch()
	return true
}

func (b *Block) touch() {
	b.Version++
	b.UpdatedAt = time.Now().UTC()
}
