package tracker

import (
	"context"

	"github.com/ethpandaops/promotoor/pkg/api/store"
	"github.com/ethpandaops/promotoor/pkg/entity"
	"github.com/ethpandaops/promotoor/pkg/events"
)

// Flag is the outcome of a guarded flag change. FlagUnset is a soft,
// recoverable outcome rather than an error: the request was understood
// but the flag could not be enabled.
type Flag string

// Flag outcomes.
const (
	FlagSet   Flag = "SET"
	FlagUnset Flag = "UNSET"
)

// SetAutoPromote enables or disables automatic qualification on a
// promotion level. Enabling is rejected with FlagUnset while the level
// has no linked validation stamps, since an empty criteria set would
// make the evaluator vacuously true.
func (s *Service) SetAutoPromote(
	ctx context.Context, sig Signature, promotionLevelID uint, enable bool,
) (Flag, error) {
	outcome := FlagUnset

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		if _, err := tx.GetPromotionLevel(ctx, promotionLevelID); err != nil {
			return mapErr(err, "promotion level %d", promotionLevelID)
		}

		if enable {
			stamps, err := tx.ListValidationStampsByPromotionLevel(ctx, promotionLevelID)
			if err != nil {
				return mapErr(err, "listing stamps of promotion level %d", promotionLevelID)
			}

			if len(stamps) == 0 {
				return nil
			}
		}

		if err := tx.SetPromotionLevelAutoPromote(ctx, promotionLevelID, enable); err != nil {
			return mapErr(err, "setting auto promote on level %d", promotionLevelID)
		}

		if enable {
			outcome = FlagSet
		}

		values := map[string]string{"auto_promote": "false"}
		if enable {
			values["auto_promote"] = "true"
		}

		return s.emit(ctx, tx, events.TypePromotionLevelUpdated, sig, values,
			entity.Ref{Kind: entity.KindPromotionLevel, ID: promotionLevelID})
	})
	if err != nil {
		return FlagUnset, err
	}

	return outcome, nil
}

// IsAutoPromotable decides whether a build satisfies a promotion
// level's automatic qualification criteria. It fails closed: false
// unless auto-promote is enabled, the level has at least one linked
// stamp, and every linked stamp's latest run status for the build is
// passing. The decision is advisory; it records nothing.
func (s *Service) IsAutoPromotable(
	ctx context.Context, buildID, promotionLevelID uint,
) (bool, error) {
	pl, err := s.store.GetPromotionLevel(ctx, promotionLevelID)
	if err != nil {
		return false, mapErr(err, "promotion level %d", promotionLevelID)
	}

	if !pl.AutoPromote {
		return false, nil
	}

	if _, err := s.store.GetBuild(ctx, buildID); err != nil {
		return false, mapErr(err, "build %d", buildID)
	}

	stamps, err := s.store.ListValidationStampsByPromotionLevel(ctx, promotionLevelID)
	if err != nil {
		return false, mapErr(err, "listing stamps of promotion level %d", promotionLevelID)
	}

	if len(stamps) == 0 {
		return false, nil
	}

	for _, vs := range stamps {
		run, err := s.store.LastValidationRun(ctx, buildID, vs.ID)
		if err != nil {
			if isNotFound(err) {
				return false, nil
			}

			return false, mapErr(err, "run for build %d stamp %d", buildID, vs.ID)
		}

		status, err := s.store.LastStatusForRun(ctx, run.ID)
		if err != nil {
			if isNotFound(err) {
				return false, nil
			}

			return false, mapErr(err, "status for run %d", run.ID)
		}

		if status.Status != store.StatusPassed {
			return false, nil
		}
	}

	return true, nil
}

// Promote records that a build achieved a promotion level, replacing
// any prior promotion for the same pair. The build and level must
// belong to the same branch.
func (s *Service) Promote(
	ctx context.Context, sig Signature, buildID, promotionLevelID uint, description string,
) (*store.PromotedRun, error) {
	var pr *store.PromotedRun

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		b, err := tx.GetBuild(ctx, buildID)
		if err != nil {
			return mapErr(err, "build %d", buildID)
		}

		pl, err := tx.GetPromotionLevel(ctx, promotionLevelID)
		if err != nil {
			return mapErr(err, "promotion level %d", promotionLevelID)
		}

		if b.BranchID != pl.BranchID {
			return invalidStateErr(
				"build %d and promotion level %d belong to different branches",
				buildID, promotionLevelID,
			)
		}

		record := &store.PromotedRun{
			BuildID:          buildID,
			PromotionLevelID: promotionLevelID,
			Description:      description,
			Author:           sig.Name,
			AuthorID:         sig.AccountID,
		}

		if err := tx.ReplacePromotedRun(ctx, record); err != nil {
			return mapErr(err, "promoting build %d to level %d", buildID, promotionLevelID)
		}

		// Upserts do not report the surviving row id; re-read it.
		pr, err = tx.GetPromotedRun(ctx, buildID, promotionLevelID)
		if err != nil {
			return mapErr(err, "promoted run for build %d level %d", buildID, promotionLevelID)
		}

		return s.emit(ctx, tx, events.TypeBuildPromoted, sig,
			map[string]string{"promotion_level": pl.Name},
			entity.Ref{Kind: entity.KindPromotedRun, ID: pr.ID})
	})
	if err != nil {
		return nil, err
	}

	return pr, nil
}

// DeletePromotion removes the promotion fact for a (build, level) pair.
func (s *Service) DeletePromotion(
	ctx context.Context, sig Signature, buildID, promotionLevelID uint,
) error {
	return s.store.Transaction(ctx, func(tx store.Store) error {
		if _, err := tx.GetPromotedRun(ctx, buildID, promotionLevelID); err != nil {
			return mapErr(err, "promoted run for build %d level %d", buildID, promotionLevelID)
		}

		pl, err := tx.GetPromotionLevel(ctx, promotionLevelID)
		if err != nil {
			return mapErr(err, "promotion level %d", promotionLevelID)
		}

		if err := tx.DeletePromotedRun(ctx, buildID, promotionLevelID); err != nil {
			return mapErr(err, "deleting promotion for build %d level %d", buildID, promotionLevelID)
		}

		return s.emit(ctx, tx, events.TypePromotionDeleted, sig,
			map[string]string{"promotion_level": pl.Name},
			entity.Ref{Kind: entity.KindBuild, ID: buildID})
	})
}

// ListPromotedRuns returns a level's promotions, most recent build
// first.
func (s *Service) ListPromotedRuns(
	ctx context.Context, promotionLevelID uint, offset, count int,
) ([]store.PromotedRun, error) {
	runs, err := s.store.ListPromotedRunsByLevel(ctx, promotionLevelID, offset, count)

	return runs, mapErr(err, "listing promotions of level %d", promotionLevelID)
}
