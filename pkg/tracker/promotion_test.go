package tracker_test

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/promotoor/pkg/api/store"
	"github.com/ethpandaops/promotoor/pkg/config"
	"github.com/ethpandaops/promotoor/pkg/tracker"
)

var testSig = tracker.Signature{Name: "tester"}

func setupService(t *testing.T) (*tracker.Service, store.Store) {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: ":memory:"},
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	s := store.NewStore(log, cfg)
	require.NoError(t, s.Start(context.Background()))

	t.Cleanup(func() { _ = s.Stop() })

	return tracker.NewService(log, s, config.DefaultImageMaxBytes), s
}

// seedBranch creates a project and branch through the service.
func seedBranch(t *testing.T, svc *tracker.Service) *store.Branch {
	t.Helper()

	ctx := context.Background()

	p, err := svc.CreateProject(ctx, testSig, "proj", "")
	require.NoError(t, err)

	b, err := svc.CreateBranch(ctx, testSig, p.ID, "main", "")
	require.NoError(t, err)

	return b
}

func TestSetAutoPromote_RequiresLinkedStamps(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	b := seedBranch(t, svc)

	pl, err := svc.CreatePromotionLevel(ctx, testSig, b.ID, "GOLD", "")
	require.NoError(t, err)

	// No linked stamps: enabling reports the soft unset outcome and
	// leaves the stored flag disabled.
	outcome, err := svc.SetAutoPromote(ctx, testSig, pl.ID, true)
	require.NoError(t, err)
	assert.Equal(t, tracker.FlagUnset, outcome)

	got, err := svc.GetPromotionLevel(ctx, pl.ID)
	require.NoError(t, err)
	assert.False(t, got.AutoPromote)

	vs, err := svc.CreateValidationStamp(ctx, testSig, b.ID, "TESTS", "")
	require.NoError(t, err)
	require.NoError(t, svc.LinkValidationStamp(ctx, testSig, vs.ID, pl.ID))

	outcome, err = svc.SetAutoPromote(ctx, testSig, pl.ID, true)
	require.NoError(t, err)
	assert.Equal(t, tracker.FlagSet, outcome)

	got, err = svc.GetPromotionLevel(ctx, pl.ID)
	require.NoError(t, err)
	assert.True(t, got.AutoPromote)
}

func TestUnlinkLastStamp_ClearsAutoPromote(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	b := seedBranch(t, svc)

	pl, err := svc.CreatePromotionLevel(ctx, testSig, b.ID, "GOLD", "")
	require.NoError(t, err)

	vs, err := svc.CreateValidationStamp(ctx, testSig, b.ID, "TESTS", "")
	require.NoError(t, err)
	require.NoError(t, svc.LinkValidationStamp(ctx, testSig, vs.ID, pl.ID))

	outcome, err := svc.SetAutoPromote(ctx, testSig, pl.ID, true)
	require.NoError(t, err)
	require.Equal(t, tracker.FlagSet, outcome)

	require.NoError(t, svc.UnlinkValidationStamp(ctx, testSig, vs.ID))

	got, err := svc.GetPromotionLevel(ctx, pl.ID)
	require.NoError(t, err)
	assert.False(t, got.AutoPromote, "auto promote must not survive without criteria")
}

func TestIsAutoPromotable_EndToEnd(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	b := seedBranch(t, svc)

	pl, err := svc.CreatePromotionLevel(ctx, testSig, b.ID, "GOLD", "")
	require.NoError(t, err)

	vs, err := svc.CreateValidationStamp(ctx, testSig, b.ID, "TESTS", "")
	require.NoError(t, err)
	require.NoError(t, svc.LinkValidationStamp(ctx, testSig, vs.ID, pl.ID))

	outcome, err := svc.SetAutoPromote(ctx, testSig, pl.ID, true)
	require.NoError(t, err)
	require.Equal(t, tracker.FlagSet, outcome)

	build1, err := svc.CreateBuild(ctx, testSig, b.ID, "1", "")
	require.NoError(t, err)

	_, err = svc.CreateValidationRun(ctx, testSig, build1.ID, vs.ID, "", store.StatusPassed, "")
	require.NoError(t, err)

	ok, err := svc.IsAutoPromotable(ctx, build1.ID, pl.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// A build with no run for the stamp does not qualify.
	build2, err := svc.CreateBuild(ctx, testSig, b.ID, "2", "")
	require.NoError(t, err)

	ok, err = svc.IsAutoPromotable(ctx, build2.ID, pl.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	// A failing latest status does not qualify either.
	run, err := svc.CreateValidationRun(ctx, testSig, build2.ID, vs.ID, "", store.StatusFailed, "")
	require.NoError(t, err)

	ok, err = svc.IsAutoPromotable(ctx, build2.ID, pl.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	// A later passing status flips the decision.
	_, err = svc.AddValidationRunStatus(ctx, testSig, run.ID, store.StatusPassed, "flaky")
	require.NoError(t, err)

	ok, err = svc.IsAutoPromotable(ctx, build2.ID, pl.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsAutoPromotable_FailsClosed(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	b := seedBranch(t, svc)

	pl, err := svc.CreatePromotionLevel(ctx, testSig, b.ID, "GOLD", "")
	require.NoError(t, err)

	build, err := svc.CreateBuild(ctx, testSig, b.ID, "1", "")
	require.NoError(t, err)

	// Flag disabled.
	ok, err := svc.IsAutoPromotable(ctx, build.ID, pl.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPromote_ReplacesPriorPromotion(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	b := seedBranch(t, svc)

	pl, err := svc.CreatePromotionLevel(ctx, testSig, b.ID, "GOLD", "")
	require.NoError(t, err)

	build, err := svc.CreateBuild(ctx, testSig, b.ID, "1", "")
	require.NoError(t, err)

	_, err = svc.Promote(ctx, testSig, build.ID, pl.ID, "first")
	require.NoError(t, err)

	other := tracker.Signature{Name: "release-bot"}
	pr, err := svc.Promote(ctx, other, build.ID, pl.ID, "again")
	require.NoError(t, err)
	assert.Equal(t, "release-bot", pr.Author)

	rollup, err := svc.BuildPromotionRollup(ctx, build.ID)
	require.NoError(t, err)
	require.Len(t, rollup, 1)
	assert.Equal(t, "GOLD", rollup[0].Name)
}

func TestPromote_CrossBranchRejected(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	b := seedBranch(t, svc)

	other, err := svc.CreateBranch(ctx, testSig, b.ProjectID, "release", "")
	require.NoError(t, err)

	pl, err := svc.CreatePromotionLevel(ctx, testSig, other.ID, "GOLD", "")
	require.NoError(t, err)

	build, err := svc.CreateBuild(ctx, testSig, b.ID, "1", "")
	require.NoError(t, err)

	_, err = svc.Promote(ctx, testSig, build.ID, pl.ID, "")
	require.Error(t, err)
	assert.Equal(t, tracker.CodeInvalidState, tracker.ErrCode(err))
}

func TestDeletePromotion(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	b := seedBranch(t, svc)

	pl, err := svc.CreatePromotionLevel(ctx, testSig, b.ID, "GOLD", "")
	require.NoError(t, err)

	build, err := svc.CreateBuild(ctx, testSig, b.ID, "1", "")
	require.NoError(t, err)

	_, err = svc.Promote(ctx, testSig, build.ID, pl.ID, "")
	require.NoError(t, err)

	require.NoError(t, svc.DeletePromotion(ctx, testSig, build.ID, pl.ID))

	rollup, err := svc.BuildPromotionRollup(ctx, build.ID)
	require.NoError(t, err)
	assert.Empty(t, rollup)

	err = svc.DeletePromotion(ctx, testSig, build.ID, pl.ID)
	require.Error(t, err)
	assert.Equal(t, tracker.CodeNotFound, tracker.ErrCode(err))
}
