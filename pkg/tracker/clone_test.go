package tracker_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/promotoor/pkg/api/store"
	"github.com/ethpandaops/promotoor/pkg/entity"
	"github.com/ethpandaops/promotoor/pkg/tracker"
)

func TestCloneBranch_ReplicatesStructure(t *testing.T) {
	svc, st := setupService(t)
	ctx := context.Background()
	b := seedBranch(t, svc)

	// Two gates, one with a linked stamp, plus an unlinked stamp.
	bronze, err := svc.CreatePromotionLevel(ctx, testSig, b.ID, "BRONZE", "entry gate")
	require.NoError(t, err)

	gold, err := svc.CreatePromotionLevel(ctx, testSig, b.ID, "GOLD", "release gate")
	require.NoError(t, err)

	tests, err := svc.CreateValidationStamp(ctx, testSig, b.ID, "TESTS", "")
	require.NoError(t, err)
	require.NoError(t, svc.LinkValidationStamp(ctx, testSig, tests.ID, gold.ID))

	_, err = svc.CreateValidationStamp(ctx, testSig, b.ID, "LINT", "")
	require.NoError(t, err)

	outcome, err := svc.SetAutoPromote(ctx, testSig, gold.ID, true)
	require.NoError(t, err)
	require.Equal(t, tracker.FlagSet, outcome)

	// Some history that must not travel to the clone.
	build, err := svc.CreateBuild(ctx, testSig, b.ID, "1", "")
	require.NoError(t, err)
	_, err = svc.CreateValidationRun(ctx, testSig, build.ID, tests.ID, "", store.StatusPassed, "")
	require.NoError(t, err)
	_, err = svc.Promote(ctx, testSig, build.ID, gold.ID, "")
	require.NoError(t, err)

	// Branch-level extension properties travel verbatim.
	require.NoError(t, svc.SetProperties(ctx, entity.KindBranch, b.ID, []store.Property{
		{Extension: "scm", Name: "url", Value: "git://src"},
	}))

	clone, err := svc.CloneBranch(ctx, testSig, b.ID, "release-1.0", "clone")
	require.NoError(t, err)
	assert.Equal(t, b.ProjectID, clone.ProjectID)

	levels, err := svc.ListPromotionLevels(ctx, clone.ID)
	require.NoError(t, err)
	require.Len(t, levels, 2)
	assert.Equal(t, "BRONZE", levels[0].Name)
	assert.Equal(t, bronze.LevelNb, levels[0].LevelNb)
	assert.Equal(t, "GOLD", levels[1].Name)

	// Auto-promote is never copied.
	assert.False(t, levels[1].AutoPromote)

	// Linked/unlinked stamp partition mirrors the source.
	linked, err := st.ListValidationStampsByPromotionLevel(ctx, levels[1].ID)
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Equal(t, "TESTS", linked[0].Name)

	unlinked, err := st.ListUnlinkedValidationStamps(ctx, clone.ID)
	require.NoError(t, err)
	require.Len(t, unlinked, 1)
	assert.Equal(t, "LINT", unlinked[0].Name)

	// No history on the clone.
	builds, err := svc.ListBuilds(ctx, clone.ID, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, builds)

	// Properties copied verbatim.
	props, err := svc.GetProperties(ctx, entity.KindBranch, clone.ID)
	require.NoError(t, err)
	require.Len(t, props, 1)
	assert.Equal(t, "git://src", props[0].Value)
}

func TestCloneBranch_NameConflict(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	b := seedBranch(t, svc)

	_, err := svc.CloneBranch(ctx, testSig, b.ID, "main", "")
	require.Error(t, err)
	assert.Equal(t, tracker.CodeNameConflict, tracker.ErrCode(err))
}

func TestCloneBranch_SourceNotFound(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.CloneBranch(ctx, testSig, 404, "release", "")
	require.Error(t, err)
	assert.Equal(t, tracker.CodeNotFound, tracker.ErrCode(err))
}
