package stages

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/data/repos/repoerr"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/data/repos/testutil"
	types "github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/domain"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/dbctx"
)

func TestStageRepo_GetForOrgTenancy(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewStageRepo(db, testutil.Logger(t))

	org := testutil.SeedOrg(t, ctx, db, 1000, 0, 0)
	other := testutil.SeedOrg(t, ctx, db, 1000, 0, 0)
	p := testutil.SeedProject(t, ctx, db, org.ID, types.ProjectKindBrand)
	st := testutil.SeedStage(t, ctx, db, p.ID, "naming", types.StageNotStarted)
	require.NoError(t, db.Model(st).Update("display_key", "step-2").Error)

	got, err := repo.GetForOrg(dbctx.Context{Ctx: ctx}, org.ID, p.ID, "naming")
	require.NoError(t, err)
	assert.Equal(t, st.ID, got.ID)

	got, err = repo.GetForOrg(dbctx.Context{Ctx: ctx}, org.ID, p.ID, "step-2")
	require.NoError(t, err, "display key is a lookup alias")
	assert.Equal(t, st.ID, got.ID)

	_, err = repo.GetForOrg(dbctx.Context{Ctx: ctx}, other.ID, p.ID, "naming")
	assert.ErrorIs(t, err, repoerr.ErrNotFound, "another org must not see the stage")

	_, err = repo.GetForOrg(dbctx.Context{Ctx: ctx}, org.ID, uuid.New(), "naming")
	assert.ErrorIs(t, err, repoerr.ErrNotFound)
}

func TestStageRepo_ResetToNotStarted(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewStageRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	org := testutil.SeedOrg(t, ctx, db, 1000, 0, 0)
	p := testutil.SeedProject(t, ctx, db, org.ID, types.ProjectKindBrand)
	a := testutil.SeedStage(t, ctx, db, p.ID, "a", types.StageApproved)
	b := testutil.SeedStage(t, ctx, db, p.ID, "b", types.StageNotStarted)
	c := testutil.SeedStage(t, ctx, db, p.ID, "c", types.StageGenerated)
	vid := uuid.New()
	require.NoError(t, repo.UpdateFields(dbc, a.ID, map[string]interface{}{"approved_version_id": vid}))

	n, err := repo.ResetToNotStarted(dbc, p.ID, []string{"a", "b"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "already NOT_STARTED rows are untouched")

	got, err := repo.GetByID(dbc, a.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StageNotStarted, got.Status)
	assert.Nil(t, got.ApprovedVersionID)

	got, err = repo.GetByID(dbc, c.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StageGenerated, got.Status)

	got, err = repo.GetByID(dbc, b.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StageNotStarted, got.Status)

	list, err := repo.ListByProject(dbc, p.ID)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}
