package tracker

import (
	"context"

	"github.com/ethpandaops/promotoor/pkg/api/store"
	"github.com/ethpandaops/promotoor/pkg/entity"
	"github.com/ethpandaops/promotoor/pkg/events"
)

// CreateBuild records a new build on a branch. Build names are not
// required to be unique; lookups by name return the most recent match.
func (s *Service) CreateBuild(
	ctx context.Context, sig Signature, branchID uint, name, description string,
) (*store.Build, error) {
	if err := checkName("build", name); err != nil {
		return nil, err
	}

	b := &store.Build{BranchID: branchID, Name: name, Description: description}

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		if _, err := tx.GetBranch(ctx, branchID); err != nil {
			return mapErr(err, "branch %d", branchID)
		}

		if err := tx.CreateBuild(ctx, b); err != nil {
			return mapErr(err, "creating build %q", name)
		}

		return s.emit(ctx, tx, events.TypeBuildCreated, sig, nil,
			entity.Ref{Kind: entity.KindBuild, ID: b.ID})
	})
	if err != nil {
		return nil, err
	}

	return b, nil
}

// GetBuild returns a build by id.
func (s *Service) GetBuild(ctx context.Context, id uint) (*store.Build, error) {
	b, err := s.store.GetBuild(ctx, id)

	return b, mapErr(err, "build %d", id)
}

// FindBuildByName returns the most recent build with the given name on
// a branch.
func (s *Service) FindBuildByName(
	ctx context.Context, branchID uint, name string,
) (*store.Build, error) {
	b, err := s.store.FindBuildByName(ctx, branchID, name)

	return b, mapErr(err, "build %q", name)
}

// ListBuilds returns a page of a branch's builds, most recent first.
func (s *Service) ListBuilds(
	ctx context.Context, branchID uint, offset, count int,
) ([]store.Build, error) {
	builds, err := s.store.ListBuildsByBranch(ctx, branchID, offset, count)

	return builds, mapErr(err, "listing builds of branch %d", branchID)
}

// LastBuild returns the most recent build of a branch.
func (s *Service) LastBuild(
	ctx context.Context, branchID uint,
) (*store.Build, error) {
	b, err := s.store.LastBuildByBranch(ctx, branchID)

	return b, mapErr(err, "last build of branch %d", branchID)
}

// DeleteBuild removes a build.
func (s *Service) DeleteBuild(
	ctx context.Context, sig Signature, id uint,
) error {
	return s.store.Transaction(ctx, func(tx store.Store) error {
		b, err := tx.GetBuild(ctx, id)
		if err != nil {
			return mapErr(err, "build %d", id)
		}

		if err := tx.DeleteBuild(ctx, id); err != nil {
			return mapErr(err, "deleting build %d", id)
		}

		return s.emit(ctx, tx, events.TypeBuildDeleted, sig,
			map[string]string{"name": b.Name},
			entity.Ref{Kind: entity.KindBranch, ID: b.BranchID})
	})
}

// CreateValidationRun records one execution of a stamp against a build
// together with its initial status, atomically. A run never exists
// without at least one status.
func (s *Service) CreateValidationRun(
	ctx context.Context,
	sig Signature,
	buildID, stampID uint,
	description string,
	status store.Status,
	statusDescription string,
) (*store.ValidationRun, error) {
	if !store.ValidStatus(status) {
		return nil, validationErr("unknown status %q", status)
	}

	vr := &store.ValidationRun{
		BuildID:           buildID,
		ValidationStampID: stampID,
		Description:       description,
	}

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		b, err := tx.GetBuild(ctx, buildID)
		if err != nil {
			return mapErr(err, "build %d", buildID)
		}

		vs, err := tx.GetValidationStamp(ctx, stampID)
		if err != nil {
			return mapErr(err, "validation stamp %d", stampID)
		}

		if b.BranchID != vs.BranchID {
			return invalidStateErr(
				"build %d and validation stamp %d belong to different branches",
				buildID, stampID,
			)
		}

		if err := tx.CreateValidationRun(ctx, vr); err != nil {
			return mapErr(err, "creating validation run")
		}

		vrs := &store.ValidationRunStatus{
			ValidationRunID: vr.ID,
			Status:          status,
			Description:     statusDescription,
			Author:          sig.Name,
			AuthorID:        sig.AccountID,
		}

		if err := tx.CreateValidationRunStatus(ctx, vrs); err != nil {
			return mapErr(err, "creating initial run status")
		}

		return s.emit(ctx, tx, events.TypeValidationRunCreated, sig,
			map[string]string{"status": string(status)},
			entity.Ref{Kind: entity.KindValidationRun, ID: vr.ID})
	})
	if err != nil {
		return nil, err
	}

	return vr, nil
}

// GetValidationRun returns a run by id.
func (s *Service) GetValidationRun(
	ctx context.Context, id uint,
) (*store.ValidationRun, error) {
	vr, err := s.store.GetValidationRun(ctx, id)

	return vr, mapErr(err, "validation run %d", id)
}

// ListValidationRuns returns all runs of a stamp against a build, in
// run order.
func (s *Service) ListValidationRuns(
	ctx context.Context, buildID, stampID uint,
) ([]store.ValidationRun, error) {
	runs, err := s.store.ListValidationRuns(ctx, buildID, stampID)

	return runs, mapErr(err, "listing runs for build %d stamp %d", buildID, stampID)
}

// AddValidationRunStatus appends a status to an existing run, typically
// moving a failed run through investigation to resolution.
func (s *Service) AddValidationRunStatus(
	ctx context.Context, sig Signature, runID uint, status store.Status, description string,
) (*store.ValidationRunStatus, error) {
	if !store.ValidStatus(status) {
		return nil, validationErr("unknown status %q", status)
	}

	vrs := &store.ValidationRunStatus{
		ValidationRunID: runID,
		Status:          status,
		Description:     description,
		Author:          sig.Name,
		AuthorID:        sig.AccountID,
	}

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		if _, err := tx.GetValidationRun(ctx, runID); err != nil {
			return mapErr(err, "validation run %d", runID)
		}

		if err := tx.CreateValidationRunStatus(ctx, vrs); err != nil {
			return mapErr(err, "creating run status")
		}

		return s.emit(ctx, tx, events.TypeRunStatusCreated, sig,
			map[string]string{"status": string(status)},
			entity.Ref{Kind: entity.KindValidationRunStatus, ID: vrs.ID})
	})
	if err != nil {
		return nil, err
	}

	return vrs, nil
}

// ListValidationRunStatuses returns a run's status history, newest
// first.
func (s *Service) ListValidationRunStatuses(
	ctx context.Context, runID uint, offset, count int,
) ([]store.ValidationRunStatus, error) {
	statuses, err := s.store.ListStatusesForRun(ctx, runID, offset, count)

	return statuses, mapErr(err, "listing statuses for run %d", runID)
}
