package tracker_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/promotoor/pkg/api/store"
	"github.com/ethpandaops/promotoor/pkg/tracker"
)

func TestQueryBuilds_SincePromotionLevel(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	b := seedBranch(t, svc)

	pl, err := svc.CreatePromotionLevel(ctx, testSig, b.ID, "GOLD", "")
	require.NoError(t, err)

	builds := make([]*store.Build, 0, 5)

	for i := 1; i <= 5; i++ {
		build, err := svc.CreateBuild(ctx, testSig, b.ID, fmt.Sprintf("%d", i), "")
		require.NoError(t, err)

		builds = append(builds, build)
	}

	// Only build 3 achieved GOLD.
	_, err = svc.Promote(ctx, testSig, builds[2].ID, pl.ID, "")
	require.NoError(t, err)

	got, err := svc.QueryBuilds(ctx, b.ID, tracker.BuildFilter{
		SincePromotionLevel: "GOLD",
		Limit:               10,
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "3", got[0].Name)
	assert.Equal(t, "2", got[1].Name)
	assert.Equal(t, "1", got[2].Name)

	// Nothing achieved SILVER; the since-filter yields no candidates.
	_, err = svc.CreatePromotionLevel(ctx, testSig, b.ID, "SILVER", "")
	require.NoError(t, err)

	got, err = svc.QueryBuilds(ctx, b.ID, tracker.BuildFilter{SincePromotionLevel: "SILVER"})
	require.NoError(t, err)
	assert.Empty(t, got)

	// With-filter keeps promoted builds only.
	got, err = svc.QueryBuilds(ctx, b.ID, tracker.BuildFilter{WithPromotionLevel: "GOLD"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "3", got[0].Name)
}

func TestEarliestPromotion(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	b := seedBranch(t, svc)

	pl, err := svc.CreatePromotionLevel(ctx, testSig, b.ID, "GOLD", "")
	require.NoError(t, err)

	builds := make([]*store.Build, 0, 4)

	for i := 1; i <= 4; i++ {
		build, err := svc.CreateBuild(ctx, testSig, b.ID, fmt.Sprintf("%d", i), "")
		require.NoError(t, err)

		builds = append(builds, build)
	}

	_, err = svc.Promote(ctx, testSig, builds[1].ID, pl.ID, "")
	require.NoError(t, err)
	_, err = svc.Promote(ctx, testSig, builds[2].ID, pl.ID, "")
	require.NoError(t, err)

	// Promotion has held since build 2.
	earliest, err := svc.EarliestPromotion(ctx, builds[3].ID, pl.ID)
	require.NoError(t, err)
	require.NotNil(t, earliest)
	assert.Equal(t, "2", earliest.Name)

	// No promotion at or before build 1.
	earliest, err = svc.EarliestPromotion(ctx, builds[0].ID, pl.ID)
	require.NoError(t, err)
	assert.Nil(t, earliest)
}

func TestEarliestPromotion_CrossBranchRejected(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	b := seedBranch(t, svc)

	other, err := svc.CreateBranch(ctx, testSig, b.ProjectID, "release", "")
	require.NoError(t, err)

	pl, err := svc.CreatePromotionLevel(ctx, testSig, other.ID, "GOLD", "")
	require.NoError(t, err)

	build, err := svc.CreateBuild(ctx, testSig, b.ID, "1", "")
	require.NoError(t, err)

	_, err = svc.EarliestPromotion(ctx, build.ID, pl.ID)
	require.Error(t, err)
	assert.Equal(t, tracker.CodeInvalidState, tracker.ErrCode(err))
}

func TestBuildValidationStampRollup(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	b := seedBranch(t, svc)

	vs, err := svc.CreateValidationStamp(ctx, testSig, b.ID, "TESTS", "")
	require.NoError(t, err)

	build, err := svc.CreateBuild(ctx, testSig, b.ID, "1", "")
	require.NoError(t, err)

	run1, err := svc.CreateValidationRun(ctx, testSig, build.ID, vs.ID, "", store.StatusFailed, "")
	require.NoError(t, err)

	// Long investigation trail on the first run; the rollup window must
	// cap the history it attaches.
	for i := 0; i < 15; i++ {
		_, err = svc.AddValidationRunStatus(ctx, testSig, run1.ID, store.StatusInvestigating, "")
		require.NoError(t, err)
	}

	_, err = svc.AddValidationRunStatus(ctx, testSig, run1.ID, store.StatusExplained, "")
	require.NoError(t, err)

	_, err = svc.CreateValidationRun(ctx, testSig, build.ID, vs.ID, "", store.StatusPassed, "")
	require.NoError(t, err)

	rollup, err := svc.BuildValidationStampRollup(ctx, build.ID, vs.ID)
	require.NoError(t, err)
	require.Len(t, rollup, 2)

	// Run order preserved.
	assert.Equal(t, 1, rollup[0].Run.RunOrder)
	assert.Equal(t, 2, rollup[1].Run.RunOrder)

	// Authoritative status is the latest one.
	assert.Equal(t, store.StatusExplained, rollup[0].LastStatus.Status)
	assert.Equal(t, store.StatusPassed, rollup[1].LastStatus.Status)

	// History window is capped at 10, newest first.
	require.Len(t, rollup[0].Statuses, 10)
	assert.Equal(t, store.StatusExplained, rollup[0].Statuses[0].Status)
}

func TestStatusesForLastRuns(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	b := seedBranch(t, svc)

	vs, err := svc.CreateValidationStamp(ctx, testSig, b.ID, "TESTS", "")
	require.NoError(t, err)

	statuses := []store.Status{store.StatusPassed, store.StatusFailed, store.StatusPassed}

	for i, status := range statuses {
		build, err := svc.CreateBuild(ctx, testSig, b.ID, fmt.Sprintf("%d", i+1), "")
		require.NoError(t, err)

		_, err = svc.CreateValidationRun(ctx, testSig, build.ID, vs.ID, "", status, "")
		require.NoError(t, err)
	}

	got, err := svc.StatusesForLastRuns(ctx, vs.ID, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Most recent run first.
	assert.Equal(t, store.StatusPassed, got[0].Status)
	assert.Equal(t, store.StatusFailed, got[1].Status)

	// Asking for more than exists returns what exists.
	got, err = svc.StatusesForLastRuns(ctx, vs.ID, 10)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestDashboardBranchSection(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	b := seedBranch(t, svc)

	passing, err := svc.CreateValidationStamp(ctx, testSig, b.ID, "UNIT", "")
	require.NoError(t, err)

	failing, err := svc.CreateValidationStamp(ctx, testSig, b.ID, "E2E", "")
	require.NoError(t, err)

	neverRun, err := svc.CreateValidationStamp(ctx, testSig, b.ID, "PERF", "")
	require.NoError(t, err)

	build, err := svc.CreateBuild(ctx, testSig, b.ID, "1", "")
	require.NoError(t, err)

	_, err = svc.CreateValidationRun(ctx, testSig, build.ID, passing.ID, "", store.StatusPassed, "")
	require.NoError(t, err)

	_, err = svc.CreateValidationRun(ctx, testSig, build.ID, failing.ID, "", store.StatusFailed, "")
	require.NoError(t, err)

	section, err := svc.DashboardBranchSection(ctx, b.ID)
	require.NoError(t, err)

	require.Len(t, section.Passing, 1)
	assert.Equal(t, "UNIT", section.Passing[0].Stamp.Name)

	require.Len(t, section.Failing, 1)
	assert.Equal(t, "E2E", section.Failing[0].Stamp.Name)
	assert.Equal(t, store.StatusFailed, section.Failing[0].Status.Status)

	require.Len(t, section.NeverRun, 1)
	assert.Equal(t, neverRun.ID, section.NeverRun[0].ID)
}

func TestLastBuildWithPromotion(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	b := seedBranch(t, svc)

	pl, err := svc.CreatePromotionLevel(ctx, testSig, b.ID, "GOLD", "")
	require.NoError(t, err)

	_, err = svc.LastBuildWithPromotion(ctx, pl.ID)
	require.Error(t, err)
	assert.Equal(t, tracker.CodeNotFound, tracker.ErrCode(err))

	for i := 1; i <= 3; i++ {
		build, err := svc.CreateBuild(ctx, testSig, b.ID, fmt.Sprintf("%d", i), "")
		require.NoError(t, err)

		if i <= 2 {
			_, err = svc.Promote(ctx, testSig, build.ID, pl.ID, "")
			require.NoError(t, err)
		}
	}

	got, err := svc.LastBuildWithPromotion(ctx, pl.ID)
	require.NoError(t, err)
	assert.Equal(t, "2", got.Name)
}

func TestLastValidationRunStatus_NotFound(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.LastValidationRunStatus(ctx, 42)
	require.Error(t, err)
	assert.Equal(t, tracker.CodeNotFound, tracker.ErrCode(err))
}
