package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/daygrid/daygrid/internal/models"
	"github.com/daygrid/daygrid/internal/repositories"
	"github.com/google/uuid"
)

// appendOutbox records one entity mutation as an event in the mutation's own
// transaction, keeping the journal and entity state inseparable.
func appendOutbox(ctx context.Context, store repositories.Store, aggregateType string, aggregateID, userID uuid.UUID, event string, snapshot any) error {
	record, err := models.NewOutboxRecord(aggregateType, aggregateID, userID, event, snapshot)
	if err != nil {
		return err
	}
	return store.Outbox().Append(ctx, record)
}

// validateBlockSet checks every block of a note payload up front, so an
// invalid block rejects the whole note item before anything is written.
func validateBlockSet(blocks []models.BlockData) []string {
	var errs []string
	for i, data := range blocks {
		if err := models.ValidateBlockData(data); err != nil {
			var verr *models.ValidationError
			if errors.As(err, &verr) {
				for _, msg := range verr.Errors {
					errs = append(errs, fmt.Sprintf("block %d: %s", i, msg))
				}
			}
		}
	}
	return errs
}

// applyBlockSet reconciles a note's stored blocks with the full desired set
// from the client: known ids are updated in place (version-bumped only when
// content actually changed), unknown entries become new blocks, and live
// blocks missing from the payload are soft-deleted. Callers validate the set
// first; errors here are infrastructure failures.
func applyBlockSet(ctx context.Context, store repositories.Store, note *models.Note, desired []models.BlockData) error {
	existing, err := store.Blocks().ListByNote(ctx, note.ID, false)
	if err != nil {
		return err
	}
	byID := make(map[uuid.UUID]*models.Block, len(existing))
	for _, block := range existing {
		byID[block.ID] = block
	}

	seen := make(map[uuid.UUID]bool, len(desired))
	for _, data := range desired {
		if data.ID != nil {
			if block, ok := byID[*data.ID]; ok {
				seen[block.ID] = true
				expected := block.Version
				changed, err := block.Apply(data)
				if err != nil {
					return err
				}
				if !changed {
					continue
				}
				if err := store.Blocks().Update(ctx, block, expected); err != nil {
					return err
				}
				if err := appendOutbox(ctx, store, models.AggregateBlock, block.ID, block.UserID, models.EventUpdated, block); err != nil {
					return err
				}
				continue
			}
		}

		block, err := models.NewBlock(note.ID, note.UserID, data)
		if err != nil {
			return err
		}
		seen[block.ID] = true
		if err := store.Blocks().Create(ctx, block); err != nil {
			return err
		}
		if err := appendOutbox(ctx, store, models.AggregateBlock, block.ID, block.UserID, models.EventCreated, block); err != nil {
			return err
		}
	}

	for _, block := range existing {
		if seen[block.ID] {
			continue
		}
		expected := block.Version
		if !block.SoftDelete() {
			continue
		}
		if err := store.Blocks().Update(ctx, block, expected); err != nil {
			return err
		}
		if err := appendOutbox(ctx, store, models.AggregateBlock, block.ID, block.UserID, models.EventDeleted, block); err != nil {
			return err
		}
	}
	return nil
}
