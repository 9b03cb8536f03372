package models

import (
	"time"

	"github.com/google/uuid"
)

const MaxTitleLength = 500

// Task is a synchronized to-do item pinned to a calendar date.
//
// Version starts at 1 and increments by exactly one on every state-changing
// mutation. Idempotent no-ops (completing a completed task, re-deleting,
// re-acknowledging a reminder) leave it untouched; the version column is the
// optimistic lock every device races against.
type Task struct {
	ID                   uuid.UUID  `json:"id"`
	UserID               uuid.UUID  `json:"userId"`
	Title                string     `json:"title"`
	Description          string     `json:"description,omitempty"`
	Date                 time.Time  `json:"date"`
	IsCompleted          bool       `json:"isCompleted"`
	CompletedAt          *time.Time `json:"completedAtUtc,omitempty"`
	ReminderAt           *time.Time `json:"reminderAtUtc,omitempty"`
	ReminderAcknowledged bool       `json:"reminderAcknowledged"`
	Version              int64      `json:"version"`
	IsDeleted            bool       `json:"isDeleted"`
	CreatedAt            time.Time  `json:"createdAtUtc"`
	UpdatedAt            time.Time  `json:"updatedAtUtc"`
}

// TaskData is the full desired state a client submits for a task.
type TaskData struct {
	Title                string     `json:"title"`
	Description          string     `json:"description,omitempty"`
	Date                 time.Time  `json:"date"`
	IsCompleted          bool       `json:"isCompleted"`
	ReminderAt           *time.Time `json:"reminderAtUtc,omitempty"`
	ReminderAcknowledged bool       `json:"reminderAcknowledged"`
}

func validateTaskData(userID uuid.UUID, title string, date time.Time) error {
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

func NewTask(userID uuid.UUID, data TaskData) (*Task, error) {
	if err := validateTaskData(userID, data.Title, data.Date); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	t := &Task{
		ID:          uuid.New(),
		UserID:      userID,
		Title:       data.Title,
		Description: data.Description,
		Date:        data.Date,
		ReminderAt:  data.ReminderAt,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if data.IsCompleted {
		t.IsCompleted = true
		t.CompletedAt = &now
	}
	return t, nil
}

// Apply replaces the task's client-editable state and bumps the version.
// Ownership, identity and timestamps are not client-editable.
func (t *Task) Apply(data TaskData) error {
	if err := validateTaskData(t.UserID, data.Title, data.Date); err != nil {
		return err
	}

	t.Title = data.Title
	t.Description = data.Description
	t.Date = data.Date
	t.ReminderAt = data.ReminderAt
	t.ReminderAcknowledged = data.ReminderAcknowledged

	if data.IsCompleted && !t.IsCompleted {
		now := time.Now().UTC()
		t.CompletedAt = &now
	}
	if !data.IsCompleted {
		t.CompletedAt = nil
	}
	t.IsCompleted = data.IsCompleted

	t.touch()
	return nil
}

// Complete marks the task done. Completing an already-completed task is a
// no-op and does not bump the version.
func (t *Task) Complete() bool {
	if t.IsCompleted {
		return false
	}
	now := time.Now().UTC()
	t.IsCompleted = true
	t.CompletedAt = &now
	t.touch()
	return true
}

// AcknowledgeReminder is idempotent; only the first acknowledgement changes state.
func (t *Task) AcknowledgeReminder() bool {
	if t.ReminderAcknowledged {
		return false
	}
	t.ReminderAcknowledged = true
	t.touch()
	return true
}

// SoftDelete marks the task deleted, keeping the row for the change feed.
// Re-deleting is a no-op.
func (t *Task) SoftDelete() bool {
	if t.IsDeleted {
		return false
	}
	t.IsDeleted = true
	t.touch()
	return true
}

func (t *Task) touch() {
	t.Version++
	t.UpdatedAt = time.Now().UTC()
}
