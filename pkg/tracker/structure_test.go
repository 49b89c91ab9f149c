package tracker_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/promotoor/pkg/entity"
	"github.com/ethpandaops/promotoor/pkg/tracker"
)

func TestCreateProject_NameRules(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.CreateProject(ctx, testSig, "proj", "")
	require.NoError(t, err)

	// Duplicate name.
	_, err = svc.CreateProject(ctx, testSig, "proj", "")
	require.Error(t, err)
	assert.Equal(t, tracker.CodeNameConflict, tracker.ErrCode(err))

	// Invalid names.
	for _, name := range []string{"", "has space", "has/slash"} {
		_, err = svc.CreateProject(ctx, testSig, name, "")
		require.Error(t, err)
		assert.Equal(t, tracker.CodeValidation, tracker.ErrCode(err))
	}
}

func TestCreateBranch_UniqueWithinProject(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	b := seedBranch(t, svc)

	_, err := svc.CreateBranch(ctx, testSig, b.ProjectID, "main", "")
	require.Error(t, err)
	assert.Equal(t, tracker.CodeNameConflict, tracker.ErrCode(err))

	// Same branch name under another project is fine.
	p2, err := svc.CreateProject(ctx, testSig, "other", "")
	require.NoError(t, err)

	_, err = svc.CreateBranch(ctx, testSig, p2.ID, "main", "")
	require.NoError(t, err)
}

func TestLinkValidationStamp_CrossBranchRejected(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	b := seedBranch(t, svc)

	other, err := svc.CreateBranch(ctx, testSig, b.ProjectID, "release", "")
	require.NoError(t, err)

	pl, err := svc.CreatePromotionLevel(ctx, testSig, other.ID, "GOLD", "")
	require.NoError(t, err)

	vs, err := svc.CreateValidationStamp(ctx, testSig, b.ID, "TESTS", "")
	require.NoError(t, err)

	err = svc.LinkValidationStamp(ctx, testSig, vs.ID, pl.ID)
	require.Error(t, err)
	assert.Equal(t, tracker.CodeInvalidState, tracker.ErrCode(err))
}

func TestMoveValidationStamp(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	b := seedBranch(t, svc)

	first, err := svc.CreateValidationStamp(ctx, testSig, b.ID, "FIRST", "")
	require.NoError(t, err)

	second, err := svc.CreateValidationStamp(ctx, testSig, b.ID, "SECOND", "")
	require.NoError(t, err)

	moved, err := svc.MoveValidationStamp(ctx, testSig, second.ID, true)
	require.NoError(t, err)
	assert.True(t, moved)

	stamps, err := svc.ListValidationStamps(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, stamps, 2)
	assert.Equal(t, "SECOND", stamps[0].Name)
	assert.Equal(t, "FIRST", stamps[1].Name)

	// Boundary move is a soft no.
	moved, err = svc.MoveValidationStamp(ctx, testSig, second.ID, true)
	require.NoError(t, err)
	assert.False(t, moved)

	_ = first
}

func TestComments(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	b := seedBranch(t, svc)

	build, err := svc.CreateBuild(ctx, testSig, b.ID, "1", "")
	require.NoError(t, err)

	c, err := svc.CreateComment(ctx, testSig, entity.KindBuild, build.ID, "looks good")
	require.NoError(t, err)
	assert.Equal(t, "tester", c.Author)

	_, err = svc.CreateComment(ctx, testSig, entity.KindBuild, build.ID, "")
	require.Error(t, err)
	assert.Equal(t, tracker.CodeValidation, tracker.ErrCode(err))

	_, err = svc.CreateComment(ctx, testSig, entity.Kind("bogus"), build.ID, "x")
	require.Error(t, err)
	assert.Equal(t, tracker.CodeValidation, tracker.ErrCode(err))

	comments, err := svc.ListComments(ctx, entity.KindBuild, build.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "looks good", comments[0].Content)
}

func TestCommentEventCarriesTextAndRef(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	b := seedBranch(t, svc)

	c, err := svc.CreateComment(ctx, testSig, entity.KindBranch, b.ID, "needs attention")
	require.NoError(t, err)

	// Newest first: the comment event sits on top of branch.created.
	evts, err := svc.ListEntityEvents(ctx, entity.KindBranch, b.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, evts, 2)
	assert.Equal(t, "comment.created", evts[0].EventType)
	assert.Contains(t, evts[0].Values, "needs attention")

	require.NotNil(t, evts[0].CommentID)
	assert.Equal(t, c.ID, *evts[0].CommentID)

	// The event is reachable from the comment itself too.
	evts, err = svc.ListEntityEvents(ctx, entity.KindComment, c.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, "comment.created", evts[0].EventType)
}

func TestMoveEmitsReorderEvent(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	b := seedBranch(t, svc)

	_, err := svc.CreatePromotionLevel(ctx, testSig, b.ID, "BRONZE", "")
	require.NoError(t, err)

	silver, err := svc.CreatePromotionLevel(ctx, testSig, b.ID, "SILVER", "")
	require.NoError(t, err)

	moved, err := svc.MovePromotionLevel(ctx, testSig, silver.ID, true)
	require.NoError(t, err)
	assert.True(t, moved)

	evts, err := svc.ListEntityEvents(ctx, entity.KindPromotionLevel, silver.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, evts, 2)
	assert.Equal(t, "promotion_level.updated", evts[0].EventType)
	assert.Contains(t, evts[0].Values, "reordered")

	// A boundary no-op changes nothing and emits nothing.
	moved, err = svc.MovePromotionLevel(ctx, testSig, silver.ID, true)
	require.NoError(t, err)
	assert.False(t, moved)

	evts, err = svc.ListEntityEvents(ctx, entity.KindPromotionLevel, silver.ID, 0, 10)
	require.NoError(t, err)
	assert.Len(t, evts, 2)
}

func TestMutationsEmitEvents(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	p, err := svc.CreateProject(ctx, testSig, "audited", "")
	require.NoError(t, err)

	evts, err := svc.ListEntityEvents(ctx, entity.KindProject, p.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, "project.created", evts[0].EventType)
	assert.Equal(t, "tester", evts[0].Author)

	// Failed mutations emit nothing.
	_, err = svc.CreateProject(ctx, testSig, "audited", "")
	require.Error(t, err)

	evts, err = svc.ListEntityEvents(ctx, entity.KindProject, p.ID, 0, 10)
	require.NoError(t, err)
	assert.Len(t, evts, 1)
}
