package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/domain"
)

func SeedOrg(tb testing.TB, ctx context.Context, tx *gorm.DB, limit, used, bonus int64) *types.Organization {
	tb.Helper()
	now := time.Now().UTC()
	o := &types.Organization{
		ID:                uuid.New(),
		Name:              "acme",
		Plan:              "pro",
		MonthlyTokenLimit: limit,
		MonthlyTokensUsed: used,
		BonusTokens:       bonus,
		TokenResetDate:    now.Add(types.BudgetCycle),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := tx.WithContext(ctx).Create(o).Error; err != nil {
		tb.Fatalf("seed org: %v", err)
	}
	return o
}

func SeedProject(tb testing.TB, ctx context.Context, tx *gorm.DB, orgID uuid.UUID, kind string) *types.Project {
	tb.Helper()
	now := time.Now().UTC()
	p := &types.Project{
		ID:        uuid.New(),
		OrgID:     orgID,
		Name:      "project",
		Kind:      kind,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed project: %v", err)
	}
	return p
}

func SeedStage(tb testing.TB, ctx context.Context, tx *gorm.DB, projectID uuid.UUID, key string, status types.StageStatus) *types.Stage {
	tb.Helper()
	now := time.Now().UTC()
	s := &types.Stage{
		ID:         uuid.New(),
		ProjectID:  projectID,
		StageKey:   key,
		DisplayKey: key,
		Module:     "test",
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed stage: %v", err)
	}
	return s
}

func SeedJob(tb testing.TB, ctx context.Context, tx *gorm.DB, st *types.Stage, orgID uuid.UUID, createdAt time.Time) *types.JobRun {
	tb.Helper()
	j := &types.JobRun{
		ID:          uuid.New(),
		OrgID:       orgID,
		ProjectID:   st.ProjectID,
		StageID:     st.ID,
		JobType:     types.JobTypeGenerateOutput,
		Status:      types.JobQueued,
		MaxAttempts: 3,
		Payload:     []byte(`{}`),
		RunConfig:   []byte(`{}`),
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	if err := tx.WithContext(ctx).Create(j).Error; err != nil {
		tb.Fatalf("seed job: %v", err)
	}
	return j
}
