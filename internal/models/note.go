package models

import (
	"time"

	"github.com/google/uuid"
)

// Note is a synchronized document pinned to a calendar date. Its content
// lives in ordered blocks, which version independently; the note's own
// version covers its header fields only.
type Note struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	Title     string    `json:"title"`
	Date      time.Time `json:"date"`
	Version   int64     `json:"version"`
	IsDeleted bool      `json:"isDeleted"`
	CreatedAt time.Time `json:"createdAtUtc"`
	UpdatedAt time.Time `json:"updatedAtUtc"`
}

// NoteData is the client-submitted state for a note. Blocks is the full
// desired block set; blocks missing from it are deleted on apply.
type NoteData struct {
	Title  string      `json:"title"`
	Date   time.Time   `json:"date"`
	Blocks []BlockData `json:"blocks,omitempty"`
}

func validateNoteData(userID uuid.UUID, title string, date time.Time) error {
	var errs []string
	if userID == uuid.Nil {
		errs = append(errs, "user id is required")
	}
	if title == "" {
		errs = append(errs, "title is required")
	}
	if len(title) > MaxTitleLength {
		errs = append(errs, "title exceeds maximum length")
	}
	if date.IsZero() {
		errs = append(errs, "date is required")
	}
	return newValidationError(errs)
}

func NewNote(userID uuid.UUID, data NoteData) (*Note, error) {
	if err := validateNoteData(userID, data.Title, data.Date); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Note{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     data.Title,
		Date:      data.Date,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Apply replaces the note's header fields and bumps the version. Block
// changes are applied separately, block by block.
func (n *Note) Apply(data NoteData) error {
	if err := validateNoteData(n.UserID, data.Title, data.Date); err != nil {
		return err
	}
	n.Title = data.Title
	n.Date = data.Date
	n.touch()
	return nil
}

// SoftDelete marks the note deleted. Re-deleting is a no-op.
func (n *Note) SoftDelete() bool {
	if n.IsDeleted {
		return false
	}
	n.IsDeleted = true
	n.touch()
	return true
}

func (n *Note) touch() {
	n.Version++
	n.UpdatedAt = time.Now().UTC()
}
