package store_test

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ethpandaops/promotoor/pkg/api/store"
	"github.com/ethpandaops/promotoor/pkg/config"
	"github.com/ethpandaops/promotoor/pkg/entity"
)

func setupTestStore(t *testing.T) store.Store {
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

	return s
}

// seedBranch creates a project and branch for tests that need one.
func seedBranch(t *testing.T, s store.Store) *store.Branch {
	t.Helper()

	ctx := context.Background()

	p := &store.Project{Name: "proj"}
	require.NoError(t, s.CreateProject(ctx, p))

	b := &store.Branch{ProjectID: p.ID, Name: "main"}
	require.NoError(t, s.CreateBranch(ctx, b))

	return b
}

func TestStore_ProjectCRUD(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	p := &store.Project{Name: "alpha", Description: "first"}
	require.NoError(t, s.CreateProject(ctx, p))
	require.NotZero(t, p.ID)

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.Name)

	byName, err := s.GetProjectByName(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byName.ID)

	_, err = s.GetProject(ctx, 9999)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.DeleteProject(ctx, p.ID))

	_, err = s.GetProject(ctx, p.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_BranchByName(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	b := seedBranch(t, s)

	got, err := s.GetBranchByName(ctx, b.ProjectID, "main")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	_, err = s.GetBranchByName(ctx, b.ProjectID, "release")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_PromotionLevelNumbering(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	b := seedBranch(t, s)

	bronze := &store.PromotionLevel{BranchID: b.ID, Name: "BRONZE"}
	silver := &store.PromotionLevel{BranchID: b.ID, Name: "SILVER"}
	gold := &store.PromotionLevel{BranchID: b.ID, Name: "GOLD"}

	for _, pl := range []*store.PromotionLevel{bronze, silver, gold} {
		require.NoError(t, s.CreatePromotionLevel(ctx, pl))
	}

	assert.Equal(t, 1, bronze.LevelNb)
	assert.Equal(t, 2, silver.LevelNb)
	assert.Equal(t, 3, gold.LevelNb)

	levels, err := s.ListPromotionLevelsByBranch(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, levels, 3)
	assert.Equal(t, "BRONZE", levels[0].Name)
	assert.Equal(t, "GOLD", levels[2].Name)
}

func TestStore_SwapPromotionLevelOrder(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	b := seedBranch(t, s)

	first := &store.PromotionLevel{BranchID: b.ID, Name: "FIRST"}
	second := &store.PromotionLevel{BranchID: b.ID, Name: "SECOND"}
	require.NoError(t, s.CreatePromotionLevel(ctx, first))
	require.NoError(t, s.CreatePromotionLevel(ctx, second))

	// Moving the top level up is a no-op at the boundary.
	moved, err := s.SwapPromotionLevelOrder(ctx, first.ID, true)
	require.NoError(t, err)
	assert.False(t, moved)

	moved, err = s.SwapPromotionLevelOrder(ctx, second.ID, true)
	require.NoError(t, err)
	assert.True(t, moved)

	levels, err := s.ListPromotionLevelsByBranch(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, levels, 2)
	assert.Equal(t, "SECOND", levels[0].Name)
	assert.Equal(t, "FIRST", levels[1].Name)
}

func TestStore_ValidationStampLinking(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	b := seedBranch(t, s)

	pl := &store.PromotionLevel{BranchID: b.ID, Name: "GOLD"}
	require.NoError(t, s.CreatePromotionLevel(ctx, pl))

	vs := &store.ValidationStamp{BranchID: b.ID, Name: "TESTS"}
	require.NoError(t, s.CreateValidationStamp(ctx, vs))
	assert.Equal(t, 1, vs.OrderNb)

	unlinked, err := s.ListUnlinkedValidationStamps(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, unlinked, 1)

	require.NoError(t, s.LinkValidationStamp(ctx, vs.ID, pl.ID))

	linked, err := s.ListValidationStampsByPromotionLevel(ctx, pl.ID)
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Equal(t, "TESTS", linked[0].Name)

	unlinked, err = s.ListUnlinkedValidationStamps(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, unlinked)

	require.NoError(t, s.UnlinkValidationStamp(ctx, vs.ID))

	linked, err = s.ListValidationStampsByPromotionLevel(ctx, pl.ID)
	require.NoError(t, err)
	assert.Empty(t, linked)
}

func TestStore_ValidationRunOrdering(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	b := seedBranch(t, s)

	vs := &store.ValidationStamp{BranchID: b.ID, Name: "TESTS"}
	require.NoError(t, s.CreateValidationStamp(ctx, vs))

	build := &store.Build{BranchID: b.ID, Name: "1"}
	require.NoError(t, s.CreateBuild(ctx, build))

	runA := &store.ValidationRun{BuildID: build.ID, ValidationStampID: vs.ID}
	runB := &store.ValidationRun{BuildID: build.ID, ValidationStampID: vs.ID}
	require.NoError(t, s.CreateValidationRun(ctx, runA))
	require.NoError(t, s.CreateValidationRun(ctx, runB))

	assert.Equal(t, 1, runA.RunOrder)
	assert.Equal(t, 2, runB.RunOrder)

	last, err := s.LastValidationRun(ctx, build.ID, vs.ID)
	require.NoError(t, err)
	assert.Equal(t, runB.ID, last.ID)
}

func TestStore_LastStatusForRun(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	b := seedBranch(t, s)

	vs := &store.ValidationStamp{BranchID: b.ID, Name: "TESTS"}
	require.NoError(t, s.CreateValidationStamp(ctx, vs))

	build := &store.Build{BranchID: b.ID, Name: "1"}
	require.NoError(t, s.CreateBuild(ctx, build))

	run := &store.ValidationRun{BuildID: build.ID, ValidationStampID: vs.ID}
	require.NoError(t, s.CreateValidationRun(ctx, run))

	failed := &store.ValidationRunStatus{ValidationRunID: run.ID, Status: store.StatusFailed}
	require.NoError(t, s.CreateValidationRunStatus(ctx, failed))

	fixed := &store.ValidationRunStatus{ValidationRunID: run.ID, Status: store.StatusFixed}
	require.NoError(t, s.CreateValidationRunStatus(ctx, fixed))

	last, err := s.LastStatusForRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFixed, last.Status)

	history, err := s.ListStatusesForRun(ctx, run.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, store.StatusFixed, history[0].Status)
	assert.Equal(t, store.StatusFailed, history[1].Status)
}

func TestStore_ReplacePromotedRun(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	b := seedBranch(t, s)

	pl := &store.PromotionLevel{BranchID: b.ID, Name: "GOLD"}
	require.NoError(t, s.CreatePromotionLevel(ctx, pl))

	build := &store.Build{BranchID: b.ID, Name: "1"}
	require.NoError(t, s.CreateBuild(ctx, build))

	first := &store.PromotedRun{
		BuildID: build.ID, PromotionLevelID: pl.ID,
		Author: "alice", Description: "initial",
	}
	require.NoError(t, s.ReplacePromotedRun(ctx, first))

	second := &store.PromotedRun{
		BuildID: build.ID, PromotionLevelID: pl.ID,
		Author: "bob", Description: "re-promoted",
	}
	require.NoError(t, s.ReplacePromotedRun(ctx, second))

	// Exactly one live row for the pair, carrying the later values.
	runs, err := s.ListPromotedRunsByBuild(ctx, build.ID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "bob", runs[0].Author)
	assert.Equal(t, "re-promoted", runs[0].Description)
}

func TestStore_EarliestPromotedBuildID(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	b := seedBranch(t, s)

	pl := &store.PromotionLevel{BranchID: b.ID, Name: "GOLD"}
	require.NoError(t, s.CreatePromotionLevel(ctx, pl))

	builds := make([]*store.Build, 0, 4)

	for _, name := range []string{"1", "2", "3", "4"} {
		build := &store.Build{BranchID: b.ID, Name: name}
		require.NoError(t, s.CreateBuild(ctx, build))
		builds = append(builds, build)
	}

	// Promote builds 2 and 3.
	for _, build := range builds[1:3] {
		pr := &store.PromotedRun{BuildID: build.ID, PromotionLevelID: pl.ID}
		require.NoError(t, s.ReplacePromotedRun(ctx, pr))
	}

	id, err := s.EarliestPromotedBuildID(ctx, builds[3].ID, pl.ID)
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, builds[1].ID, *id)

	// No promotion at or before build 1.
	id, err = s.EarliestPromotedBuildID(ctx, builds[0].ID, pl.ID)
	require.NoError(t, err)
	assert.Nil(t, id)
}

func TestStore_QueryBuilds(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	b := seedBranch(t, s)

	pl := &store.PromotionLevel{BranchID: b.ID, Name: "GOLD"}
	require.NoError(t, s.CreatePromotionLevel(ctx, pl))

	builds := make([]*store.Build, 0, 5)

	for _, name := range []string{"1", "2", "3", "4", "5"} {
		build := &store.Build{BranchID: b.ID, Name: name}
		require.NoError(t, s.CreateBuild(ctx, build))
		builds = append(builds, build)
	}

	pr := &store.PromotedRun{BuildID: builds[2].ID, PromotionLevelID: pl.ID}
	require.NoError(t, s.ReplacePromotedRun(ctx, pr))

	// Capped at build 3, descending.
	got, err := s.QueryBuilds(ctx, b.ID, store.BuildQuery{MaxBuildID: &builds[2].ID})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "3", got[0].Name)
	assert.Equal(t, "2", got[1].Name)
	assert.Equal(t, "1", got[2].Name)

	// Only promoted builds.
	got, err = s.QueryBuilds(ctx, b.ID, store.BuildQuery{WithPromotionLevel: "GOLD"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "3", got[0].Name)

	// Limit applies after ordering.
	got, err = s.QueryBuilds(ctx, b.ID, store.BuildQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "5", got[0].Name)
	assert.Equal(t, "4", got[1].Name)
}

func TestStore_LastBuildWithStampStatus(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	b := seedBranch(t, s)

	vs := &store.ValidationStamp{BranchID: b.ID, Name: "TESTS"}
	require.NoError(t, s.CreateValidationStamp(ctx, vs))

	record := func(name string, statuses ...store.Status) *store.Build {
		build := &store.Build{BranchID: b.ID, Name: name}
		require.NoError(t, s.CreateBuild(ctx, build))

		run := &store.ValidationRun{BuildID: build.ID, ValidationStampID: vs.ID}
		require.NoError(t, s.CreateValidationRun(ctx, run))

		for _, status := range statuses {
			vrs := &store.ValidationRunStatus{ValidationRunID: run.ID, Status: status}
			require.NoError(t, s.CreateValidationRunStatus(ctx, vrs))
		}

		return build
	}

	passed := record("1", store.StatusPassed)
	record("2", store.StatusFailed)
	// Build 3 failed first but its latest status is passing.
	repaired := record("3", store.StatusFailed, store.StatusPassed)

	got, err := s.LastBuildWithStampStatus(ctx, vs.ID, []store.Status{store.StatusPassed})
	require.NoError(t, err)
	assert.Equal(t, repaired.ID, got.ID)

	got, err = s.LastBuildWithStampStatus(ctx, vs.ID, []store.Status{store.StatusFailed})
	require.NoError(t, err)
	assert.Equal(t, "2", got.Name)

	_, err = s.LastBuildWithStampStatus(ctx, vs.ID, []store.Status{store.StatusDefective})
	require.ErrorIs(t, err, store.ErrNotFound)

	_ = passed
}

func TestStore_ParentID(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	b := seedBranch(t, s)

	pl := &store.PromotionLevel{BranchID: b.ID, Name: "GOLD"}
	require.NoError(t, s.CreatePromotionLevel(ctx, pl))

	vs := &store.ValidationStamp{BranchID: b.ID, Name: "TESTS"}
	require.NoError(t, s.CreateValidationStamp(ctx, vs))

	projectID, err := s.ParentID(ctx, entity.KindProject, entity.KindBranch, b.ID)
	require.NoError(t, err)
	require.NotNil(t, projectID)
	assert.Equal(t, b.ProjectID, *projectID)

	// Unlinked stamp has no promotion level parent; not an error.
	levelID, err := s.ParentID(ctx, entity.KindPromotionLevel, entity.KindValidationStamp, vs.ID)
	require.NoError(t, err)
	assert.Nil(t, levelID)

	require.NoError(t, s.LinkValidationStamp(ctx, vs.ID, pl.ID))

	levelID, err = s.ParentID(ctx, entity.KindPromotionLevel, entity.KindValidationStamp, vs.ID)
	require.NoError(t, err)
	require.NotNil(t, levelID)
	assert.Equal(t, pl.ID, *levelID)

	_, err = s.ParentID(ctx, entity.KindProject, entity.KindBranch, 9999)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_SeedAccounts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	seeds := []config.SeedAccount{
		{Username: "admin", Password: "secret", Role: "admin", FullName: "Admin"},
	}

	require.NoError(t, s.SeedAccounts(ctx, seeds))

	account, err := s.GetAccountByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "admin", account.Role)
	assert.Equal(t, store.SourceConfig, account.Source)
	require.NoError(t, bcrypt.CompareHashAndPassword(
		[]byte(account.PasswordHash), []byte("secret"),
	))

	// Re-seeding updates in place, no duplicate.
	seeds[0].Password = "rotated"
	require.NoError(t, s.SeedAccounts(ctx, seeds))

	accounts, err := s.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	require.NoError(t, bcrypt.CompareHashAndPassword(
		[]byte(accounts[0].PasswordHash), []byte("rotated"),
	))
}

func TestStore_Properties(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	b := seedBranch(t, s)

	props := []store.Property{
		{EntityKind: entity.KindBranch, EntityID: b.ID, Extension: "scm", Name: "url", Value: "git://a"},
		{EntityKind: entity.KindBranch, EntityID: b.ID, Extension: "ci", Name: "job", Value: "build-main"},
	}
	require.NoError(t, s.SetProperties(ctx, props))

	got, err := s.GetProperties(ctx, entity.KindBranch, b.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Ordered by extension then name.
	assert.Equal(t, "ci", got[0].Extension)
	assert.Equal(t, "scm", got[1].Extension)

	// Upsert replaces the value for an existing key.
	update := store.Property{
		EntityKind: entity.KindBranch, EntityID: b.ID,
		Extension: "scm", Name: "url", Value: "git://b",
	}
	require.NoError(t, s.SetProperty(ctx, &update))

	got, err = s.GetProperties(ctx, entity.KindBranch, b.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "git://b", got[1].Value)
}

func TestStore_EventRefColumns(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	b := seedBranch(t, s)

	e := &store.Event{UUID: "evt-1", EventType: "branch.created"}
	e.SetRef(entity.KindProject, b.ProjectID)
	e.SetRef(entity.KindBranch, b.ID)
	require.NoError(t, s.CreateEvent(ctx, e))

	byBranch, err := s.ListEventsByEntity(ctx, entity.KindBranch, b.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, byBranch, 1)

	byProject, err := s.ListEventsByEntity(ctx, entity.KindProject, b.ProjectID, 0, 10)
	require.NoError(t, err)
	require.Len(t, byProject, 1)
	assert.Equal(t, "evt-1", byProject[0].UUID)
}
