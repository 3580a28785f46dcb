package services_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/domain"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/modules/stagerun/pipeline"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/services"
)

func TestCreateOrganizationDefaults(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	org, err := h.projects.CreateOrganization(h.dbc(), services.NewOrganization{Name: "  Globex  "})
	require.NoError(t, err)
	assert.Equal(t, "Globex", org.Name)
	assert.Equal(t, "starter", org.Plan)
	assert.Equal(t, services.DefaultMonthlyTokenLimit, org.MonthlyTokenLimit)
	assert.True(t, org.TokenResetDate.After(org.CreatedAt))

	_, err = h.projects.CreateOrganization(h.dbc(), services.NewOrganization{})
	assert.ErrorIs(t, err, services.ErrInvalidInput)

	_, err = h.projects.CreateOrganization(h.dbc(), services.NewOrganization{Name: "x", BonusTokens: -1})
	assert.ErrorIs(t, err, services.ErrInvalidInput)
}

func TestCreateProjectBootstrapsCatalog(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	cases := []struct {
		kind string
		want []string
	}{
		{types.ProjectKindBrand, []string{pipeline.BrandContext, pipeline.Naming, pipeline.Manifesto, pipeline.Voice, pipeline.Tagline, pipeline.VisualIdentity}},
		{"Venture", []string{pipeline.VentureIntake, pipeline.VentureIdeaValidation, pipeline.VentureBuyerPersona, pipeline.VentureBusinessPlan}},
	}
	for _, tc := range cases {
		t.Run(tc.kind, func(t *testing.T) {
			p, stages, err := h.projects.CreateProject(h.dbc(), h.org.ID, h.userID, "Northbean", tc.kind)
			require.NoError(t, err)
			assert.Equal(t, h.org.ID, p.OrgID)

			keys := make([]string, 0, len(stages))
			for _, st := range stages {
				keys = append(keys, st.StageKey)
				assert.Equal(t, types.StageNotStarted, st.Status)
				assert.Equal(t, p.ID, st.ProjectID)
			}
			assert.Equal(t, tc.want, keys)
		})
	}
}

func TestCreateProjectValidation(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	_, _, err := h.projects.CreateProject(h.dbc(), h.org.ID, h.userID, " ", types.ProjectKindBrand)
	assert.ErrorIs(t, err, services.ErrInvalidInput)

	_, _, err = h.projects.CreateProject(h.dbc(), h.org.ID, h.userID, "x", "podcast")
	assert.ErrorIs(t, err, services.ErrInvalidInput)

	_, _, err = h.projects.CreateProject(h.dbc(), uuid.New(), h.userID, "x", types.ProjectKindBrand)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestListStagesReportsProgress(t *testing.T) {
	h := newHarness(t, harnessOpts{inline: true})
	p := h.project(t, types.ProjectKindBrand)

	progress, err := h.projects.ListStages(h.dbc(), h.org.ID, p.ID)
	require.NoError(t, err)
	require.Len(t, progress.Stages, 6)
	assert.Equal(t, 6, progress.Total)
	assert.Zero(t, progress.Approved)
	assert.Equal(t, pipeline.BrandContext, progress.Stages[0].StageKey)
	assert.Equal(t, []string{pipeline.BrandContext}, progress.Stages[1].MissingDependencies)

	res := h.run(t, p.ID, pipeline.BrandContext, services.RunOptions{})
	require.Equal(t, types.JobDone, res.Job.Status, res.Job.Error)

	progress, err = h.projects.ListStages(h.dbc(), h.org.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, progress.Stages[0].LatestVersion)
	assert.Nil(t, progress.Stages[0].ActiveJobID)
	assert.Empty(t, progress.Stages[1].MissingDependencies)
	assert.Equal(t, []string{pipeline.BrandContext}, progress.Stages[1].Requires)

	projects, err := h.projects.ListProjects(h.dbc(), h.org.ID)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, p.ID, projects[0].ID)

	_, err = h.projects.ListStages(h.dbc(), uuid.New(), p.ID)
	assert.ErrorIs(t, err, services.ErrNotFound)
}
