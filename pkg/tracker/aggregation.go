package tracker

import (
	"context"

	"github.com/ethpandaops/promotoor/pkg/api/store"
)

// maxRunStatusEvents bounds the status history attached to each run in
// a build rollup.
const maxRunStatusEvents = 10

// RunSummary pairs a validation run with its authoritative status and a
// bounded window of its most recent status changes, newest first.
type RunSummary struct {
	Run        store.ValidationRun         `json:"run"`
	LastStatus store.ValidationRunStatus   `json:"last_status"`
	Statuses   []store.ValidationRunStatus `json:"statuses"`
}

// BuildFilter narrows a branch build listing.
type BuildFilter struct {
	// SincePromotionLevel caps the candidate set at the most recent
	// build that achieved the named level, that build included.
	SincePromotionLevel string
	// WithPromotionLevel keeps only builds promoted to the named level.
	WithPromotionLevel string
	// Limit bounds the result count.
	Limit int
}

// LastValidationRunStatus returns the authoritative status of a run.
// Runs are created atomically with an initial status, so a missing
// status indicates the run itself does not exist.
func (s *Service) LastValidationRunStatus(
	ctx context.Context, runID uint,
) (*store.ValidationRunStatus, error) {
	vrs, err := s.store.LastStatusForRun(ctx, runID)

	return vrs, mapErr(err, "status for run %d", runID)
}

// StatusesForLastRuns returns the last status of each of the n most
// recent runs of a stamp across all builds, most recent run first. If
// fewer than n runs exist, fewer entries are returned.
func (s *Service) StatusesForLastRuns(
	ctx context.Context, stampID uint, n int,
) ([]store.ValidationRunStatus, error) {
	runs, err := s.store.LastRunsByStamp(ctx, stampID, n)
	if err != nil {
		return nil, mapErr(err, "last runs for stamp %d", stampID)
	}

	statuses := make([]store.ValidationRunStatus, 0, len(runs))

	for _, run := range runs {
		vrs, err := s.store.LastStatusForRun(ctx, run.ID)
		if err != nil {
			return nil, mapErr(err, "status for run %d", run.ID)
		}

		statuses = append(statuses, *vrs)
	}

	return statuses, nil
}

// StampStatusHistory pages through every status change recorded against
// a stamp's runs across all builds, newest first.
func (s *Service) StampStatusHistory(
	ctx context.Context, stampID uint, offset, count int,
) ([]store.ValidationRunStatus, error) {
	statuses, err := s.store.ListStatusesForStamp(ctx, stampID, offset, count)

	return statuses, mapErr(err, "status history for stamp %d", stampID)
}

// BuildValidationStampRollup summarizes every run of a stamp against a
// build, in run order. Each summary carries the run's last status plus
// at most maxRunStatusEvents recent status changes to bound response
// size.
func (s *Service) BuildValidationStampRollup(
	ctx context.Context, buildID, stampID uint,
) ([]RunSummary, error) {
	runs, err := s.store.ListValidationRuns(ctx, buildID, stampID)
	if err != nil {
		return nil, mapErr(err, "runs for build %d stamp %d", buildID, stampID)
	}

	summaries := make([]RunSummary, 0, len(runs))

	for _, run := range runs {
		last, err := s.store.LastStatusForRun(ctx, run.ID)
		if err != nil {
			return nil, mapErr(err, "status for run %d", run.ID)
		}

		history, err := s.store.ListStatusesForRun(ctx, run.ID, 0, maxRunStatusEvents)
		if err != nil {
			return nil, mapErr(err, "status history for run %d", run.ID)
		}

		summaries = append(summaries, RunSummary{
			Run:        run,
			LastStatus: *last,
			Statuses:   history,
		})
	}

	return summaries, nil
}

// BuildPromotionRollup returns the promotion levels a build actually
// achieved, from recorded promotions. Whether auto-promotion criteria
// still hold is irrelevant; recorded promotions are historical facts.
func (s *Service) BuildPromotionRollup(
	ctx context.Context, buildID uint,
) ([]store.PromotionLevel, error) {
	if _, err := s.store.GetBuild(ctx, buildID); err != nil {
		return nil, mapErr(err, "build %d", buildID)
	}

	levels, err := s.store.ListPromotionLevelsByBuild(ctx, buildID)

	return levels, mapErr(err, "promotions of build %d", buildID)
}

// LastBuildWithPromotion returns the most recent build that achieved
// the given promotion level, or a NotFound error when none has.
func (s *Service) LastBuildWithPromotion(
	ctx context.Context, promotionLevelID uint,
) (*store.Build, error) {
	b, err := s.store.LastBuildWithPromotionLevel(ctx, promotionLevelID)

	return b, mapErr(err, "last build with promotion level %d", promotionLevelID)
}

// LastBuildWithStampStatus returns the most recent build whose latest
// run status for the stamp is one of the acceptable statuses.
func (s *Service) LastBuildWithStampStatus(
	ctx context.Context, stampID uint, statuses []store.Status,
) (*store.Build, error) {
	for _, status := range statuses {
		if !store.ValidStatus(status) {
			return nil, validationErr("unknown status %q", status)
		}
	}

	b, err := s.store.LastBuildWithStampStatus(ctx, stampID, statuses)

	return b, mapErr(err, "last build for stamp %d", stampID)
}

// EarliestPromotion returns the earliest build at or before the given
// build that carries the promotion level, answering "since when has
// this promotion held." The build and level must belong to the same
// branch; nil is returned when no such promotion exists.
func (s *Service) EarliestPromotion(
	ctx context.Context, buildID, promotionLevelID uint,
) (*store.Build, error) {
	b, err := s.store.GetBuild(ctx, buildID)
	if err != nil {
		return nil, mapErr(err, "build %d", buildID)
	}

	pl, err := s.store.GetPromotionLevel(ctx, promotionLevelID)
	if err != nil {
		return nil, mapErr(err, "promotion level %d", promotionLevelID)
	}

	if b.BranchID != pl.BranchID {
		return nil, invalidStateErr(
			"build %d and promotion level %d belong to different branches",
			buildID, promotionLevelID,
		)
	}

	id, err := s.store.EarliestPromotedBuildID(ctx, buildID, promotionLevelID)
	if err != nil {
		return nil, mapErr(err, "earliest promotion for build %d", buildID)
	}

	if id == nil {
		return nil, nil
	}

	earliest, err := s.store.GetBuild(ctx, *id)

	return earliest, mapErr(err, "build %d", *id)
}

// QueryBuilds returns a branch's builds, most recent first, narrowed by
// the filter. The since-filter is resolved first: it caps the candidate
// set at the most recent build achieving the named level before the
// other filters and the limit apply.
func (s *Service) QueryBuilds(
	ctx context.Context, branchID uint, filter BuildFilter,
) ([]store.Build, error) {
	if _, err := s.store.GetBranch(ctx, branchID); err != nil {
		return nil, mapErr(err, "branch %d", branchID)
	}

	q := store.BuildQuery{
		WithPromotionLevel: filter.WithPromotionLevel,
		Limit:              filter.Limit,
	}

	if filter.SincePromotionLevel != "" {
		pl, err := s.store.GetPromotionLevelByName(ctx, branchID, filter.SincePromotionLevel)
		if err != nil {
			return nil, mapErr(err, "promotion level %q", filter.SincePromotionLevel)
		}

		last, err := s.store.LastBuildWithPromotionLevel(ctx, pl.ID)
		if err != nil {
			if isNotFound(err) {
				// No build ever achieved the level; nothing qualifies.
				return []store.Build{}, nil
			}

			return nil, mapErr(err, "last build with promotion level %q", pl.Name)
		}

		q.MaxBuildID = &last.ID
	}

	builds, err := s.store.QueryBuilds(ctx, branchID, q)

	return builds, mapErr(err, "querying builds of branch %d", branchID)
}
