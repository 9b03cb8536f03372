package services

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/daygrid/daygrid/internal/logging"
	"github.com/daygrid/daygrid/internal/models"
	"github.com/daygrid/daygrid/internal/repositories"
	"github.com/google/uuid"
)

type ResolutionChoice string

const (
	KeepServer ResolutionChoice = "keep_server"
	KeepClient ResolutionChoice = "keep_client"
)

// ResolveService settles conflicts the push engine surfaced. KeepClient is
// re-gated against the live version because time has passed since the
// conflict was reported; a second mismatch comes back as another conflict,
// not a silent overwrite. Each resolution runs in its own transaction, so
// one failure never affects the others.
type ResolveService struct {
	tx     repositories.TxManager
	logger logging.Logger
}

func NewResolveService(tx repositories.TxManager, logger logging.Logger) *ResolveService {
	return &ResolveService{tx: tx, logger: logger}
}

type ResolveRequest struct {
	UserID      uuid.UUID    `json:"-"`
	Resolutions []Resolution `json:"resolutions"`
}

// Resolution names one conflicted entity and the client's choice. Data holds
// the desired final state for keep_client; its shape depends on EntityType.
type Resolution struct {
	EntityType      string           `json:"entityType"`
	EntityID        uuid.UUID        `json:"entityId"`
	Choice          ResolutionChoice `json:"choice"`
	ExpectedVersion int64            `json:"expectedVersion"`
	Data            json.RawMessage  `json:"data,omitempty"`
}

type ResolveResult struct {
	EntityType string     `json:"entityType"`
	EntityID   uuid.UUID  `json:"entityId"`
	Status     ItemStatus `json:"status"`
	NewVersion int64      `json:"newVersion,omitempty"`
	Errors     []string   `json:"errors,omitempty"`
}

type ResolveResponse struct {
	Results []ResolveResult `json:"results"`
}

func (s *ResolveService) Resolve(ctx context.Context, req ResolveRequest) (*ResolveResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp := &ResolveResponse{Results: make([]ResolveResult, 0, len(req.Resolutions))}
	for _, res := range req.Resolutions {
		var result ResolveResult
		err := s.tx.WithinTx(ctx, func(ctx context.Context, store repositories.Store) error {
			var rerr error
			result, rerr = s.resolveOne(ctx, store, req.UserID, res)
			return rerr
		})
		if err != nil {
			s.logger.Error(ctx, "resolution failed", "entity_type", res.EntityType, "entity_id", res.EntityID, "error", err)
			result = ResolveResult{
				EntityType: res.EntityType,
				EntityID:   res.EntityID,
				Status:     StatusFailed,
				Errors:     []string{"unexpected error applying resolution"},
			}
		}
		resp.Results = append(resp.Results, result)
	}
	return resp, nil
}

func (s *ResolveService) resolveOne(ctx context.Context, store repositories.Store, userID uuid.UUID, res Resolution) (ResolveResult, error) {
	switch res.EntityType {
	case EntityTypeTask:
		return s.resolveTask(ctx, store, userID, res)
	case EntityTypeNote:
		return s.resolveNote(ctx, store, userID, res)
	default:
		return ResolveResult{
			EntityType: res.EntityType,
			EntityID:   res.EntityID,
			Status:     StatusFailed,
			Errors:     []string{"unknown entity type"},
		}, nil
	}
}

func (s *ResolveService) resolveTask(ctx context.Context, store repositories.Store, userID uuid.UUID, res Resolution) (ResolveResult, error) {
	result := ResolveResult{EntityType: EntityTypeTask, EntityID: res.EntityID}

	task, err := store.Tasks().GetByID(ctx, res.EntityID)
	if errors.Is(err, repositories.ErrNotFound) {
		result.Status = StatusNotFound
		return result, nil
	}
	if err != nil {
		return result, err
	}
	if task.UserID != userID || task.IsDeleted {
		result.Status = StatusNotFound
		return result, nil
	}

	switch res.Choice {
	case KeepServer:
		result.Status = StatusKeptServer
		result.NewVersion = task.Version
		return result, nil

	case KeepClient:
		if task.Version != res.ExpectedVersion {
			result.Status = StatusConflict
			result.NewVersion = task.Version
			return result, nil
		}

		var data models.TaskData
		if len(res.Data) == 0 {
			result.Status = StatusFailed
			result.Errors = []string{"data is required for keep_client"}
			return result, nil
		}
		if err := json.Unmarshal(res.Data, &data); err != nil {
			result.Status = StatusFailed
			result.Errors = []string{"invalid task data"}
			return result, nil
		}

		expected := task.Version
		if err := task.Apply(data); err != nil {
			var verr *models.ValidationError
			if errors.As(err, &verr) {
				result.Status = StatusFailed
				result.Errors = verr.Errors
				return result, nil
			}
			return result, err
		}
		if err := store.Tasks().Update(ctx, task, expected); err != nil {
			if errors.Is(err, repositories.ErrVersionConflict) {
				current, gerr := store.Tasks().GetByID(ctx, res.EntityID)
				if gerr != nil {
					return result, gerr
				}
				result.Status = StatusConflict
				result.NewVersion = current.Version
				return result, nil
			}
			return result, err
		}
		if err := appendOutbox(ctx, store, models.AggregateTask, task.ID, userID, models.EventUpdated, task); err != nil {
			return result, err
		}
		result.Status = StatusUpdated
		result.NewVersion = task.Version
		return result, nil

	default:
		result.Status = StatusFailed
		result.Errors = []string{"unknown resolution choice"}
		return result, nil
	}
}

func (s *ResolveService) resolveNote(ctx context.Context, store repositories.Store, userID uuid.UUID, res Resolution) (ResolveResult, error) {
	result := ResolveResult{EntityType: EntityTypeNote, EntityID: res.EntityID}

	note, err := store.Notes().GetByID(ctx, res.EntityID)
	if errors.Is(err, repositories.ErrNotFound) {
		result.Status = StatusNotFound
		return result, nil
	}
	if err != nil {
		return result, err
	}
	if note.UserID != userID || note.IsDeleted {
		result.Status = StatusNotFound
		return result, nil
	}

	switch res.Choice {
	case KeepServer:
		result.Status = StatusKeptServer
		result.NewVersion = note.Version
		return result, nil

	case KeepClient:
		if note.Version != res.ExpectedVersion {
			result.Status = StatusConflict
			result.NewVersion = note.Version
			return result, nil
		}

		var data models.NoteData
		if len(res.Data) == 0 {
			result.Status = StatusFailed
			result.Errors = []string{"data is required for keep_client"}
			return result, nil
		}
		if err := json.Unmarshal(res.Data, &data); err != nil {
			result.Status = StatusFailed
			result.Errors = []string{"invalid note data"}
			return result, nil
		}
		if errs := validateBlockSet(data.Blocks); len(errs) > 0 {
			result.Status = StatusFailed
			result.Errors = errs
			return result, nil
		}

		expected := note.Version
		if err := note.Apply(data); err != nil {
			var verr *models.ValidationError
			if errors.As(err, &verr) {
				result.Status = StatusFailed
				result.Errors = verr.Errors
				return result, nil
			}
			return result, err
		}
		if err := store.Notes().Update(ctx, note, expected); err != nil {
			if errors.Is(err, repositories.ErrVersionConflict) {
				current, gerr := store.Notes().GetByID(ctx, res.EntityID)
				if gerr != nil {
					return result, gerr
				}
				result.Status = StatusConflict
				result.NewVersion = current.Version
				return result, nil
			}
			return result, err
		}
		if err := appendOutbox(ctx, store, models.AggregateNote, note.ID, userID, models.EventUpdated, note); err != nil {
			return result, err
		}
		if data.Blocks != nil {
			if err := applyBlockSet(ctx, store, note, data.Blocks); err != nil {
				return result, err
			}
		}
		result.Status = StatusUpdated
		result.NewVersion = note.Version
		return result, nil

	default:
		result.Status = StatusFailed
		result.Errors = []string{"unknown resolution choice"}
		return result, nil
	}
}
