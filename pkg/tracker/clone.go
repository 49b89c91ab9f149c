package tracker

import (
	"context"

	"github.com/ethpandaops/promotoor/pkg/api/store"
	"github.com/ethpandaops/promotoor/pkg/entity"
	"github.com/ethpandaops/promotoor/pkg/events"
)

// CloneBranch replicates a branch's structural configuration onto a new
// branch of the same project: promotion levels with their ordering and
// images, validation stamps with their links, unlinked stamps, and the
// branch's extension properties. Build and run history is never cloned.
// Auto-promote flags are not copied either; the clone starts with every
// gate disabled. The whole clone runs in one transaction.
func (s *Service) CloneBranch(
	ctx context.Context, sig Signature, sourceBranchID uint, newName, newDescription string,
) (*store.Branch, error) {
	if err := checkName("branch", newName); err != nil {
		return nil, err
	}

	var clone *store.Branch

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		source, err := tx.GetBranch(ctx, sourceBranchID)
		if err != nil {
			return mapErr(err, "branch %d", sourceBranchID)
		}

		if _, err := tx.GetBranchByName(ctx, source.ProjectID, newName); err == nil {
			return conflictErr("branch %q already exists in project %d", newName, source.ProjectID)
		} else if !isNotFound(err) {
			return mapErr(err, "checking branch name %q", newName)
		}

		clone = &store.Branch{
			ProjectID:   source.ProjectID,
			Name:        newName,
			Description: newDescription,
		}

		if err := tx.CreateBranch(ctx, clone); err != nil {
			return mapErr(err, "creating branch %q", newName)
		}

		// Levels sorted ascending by level number so their numbers are
		// reproduced in the same relative order on the clone.
		levels, err := tx.ListPromotionLevelsByBranch(ctx, sourceBranchID)
		if err != nil {
			return mapErr(err, "levels of branch %d", sourceBranchID)
		}

		for _, src := range levels {
			level := &store.PromotionLevel{
				BranchID:    clone.ID,
				Name:        src.Name,
				Description: src.Description,
				LevelNb:     src.LevelNb,
				Image:       src.Image,
			}

			if err := tx.CreatePromotionLevel(ctx, level); err != nil {
				return mapErr(err, "cloning promotion level %q", src.Name)
			}

			linked, err := tx.ListValidationStampsByPromotionLevel(ctx, src.ID)
			if err != nil {
				return mapErr(err, "stamps of promotion level %d", src.ID)
			}

			for _, stamp := range linked {
				if err := cloneStamp(ctx, tx, clone.ID, stamp, &level.ID); err != nil {
					return err
				}
			}
		}

		unlinked, err := tx.ListUnlinkedValidationStamps(ctx, sourceBranchID)
		if err != nil {
			return mapErr(err, "unlinked stamps of branch %d", sourceBranchID)
		}

		for _, stamp := range unlinked {
			if err := cloneStamp(ctx, tx, clone.ID, stamp, nil); err != nil {
				return err
			}
		}

		props, err := tx.GetProperties(ctx, entity.KindBranch, sourceBranchID)
		if err != nil {
			return mapErr(err, "properties of branch %d", sourceBranchID)
		}

		for _, prop := range props {
			copied := store.Property{
				EntityKind: entity.KindBranch,
				EntityID:   clone.ID,
				Extension:  prop.Extension,
				Name:       prop.Name,
				Value:      prop.Value,
			}

			if err := tx.SetProperty(ctx, &copied); err != nil {
				return mapErr(err, "copying property %s/%s", prop.Extension, prop.Name)
			}
		}

		return s.emit(ctx, tx, events.TypeBranchCloned, sig,
			map[string]string{"source_branch": source.Name},
			entity.Ref{Kind: entity.KindBranch, ID: clone.ID})
	})
	if err != nil {
		return nil, err
	}

	return clone, nil
}

// cloneStamp copies a stamp onto the target branch, preserving its
// explicit order number and image, optionally linked to a level.
func cloneStamp(
	ctx context.Context,
	tx store.Store,
	branchID uint,
	src store.ValidationStamp,
	promotionLevelID *uint,
) error {
	stamp := &store.ValidationStamp{
		BranchID:         branchID,
		Name:             src.Name,
		Description:      src.Description,
		OrderNb:          src.OrderNb,
		PromotionLevelID: promotionLevelID,
		Image:            src.Image,
	}

	if err := tx.CreateValidationStamp(ctx, stamp); err != nil {
		return mapErr(err, "cloning validation stamp %q", src.Name)
	}

	return nil
}
