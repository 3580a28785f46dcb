package billing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/data/repos/testutil"
	types "github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/domain"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/dbctx"
)

func TestSplitConsumption(t *testing.T) {
	cases := []struct {
		name                         string
		total, limit, used, bonus    int64
		wantMonthly, wantBonus, over int64
	}{
		{"fits in monthly", 50, 1000, 900, 500, 50, 0, 0},
		{"spills into bonus", 200, 1000, 900, 500, 100, 100, 0},
		{"monthly exhausted", 200, 1000, 1000, 500, 0, 200, 0},
		{"overage", 800, 1000, 900, 500, 100, 500, 200},
		{"already over limit", 10, 1000, 1200, 0, 0, 0, 10},
		{"nothing", 0, 1000, 0, 0, 0, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SplitConsumption(tc.total, tc.limit, tc.used, tc.bonus)
			assert.Equal(t, Split{FromMonthly: tc.wantMonthly, FromBonus: tc.wantBonus, Overage: tc.over}, got)
		})
	}
}

func TestConsume_DrawOrder(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewBudgetRepo(db, testutil.Logger(t))

	// remaining monthly = 100, bonus = 500
	org := testutil.SeedOrg(t, ctx, db, 1000, 900, 500)

	usage, applied, err := repo.Consume(dbc, Consumption{OrgID: org.ID, IdempotencyKey: "job-1", InputTokens: 120, OutputTokens: 80})
	require.NoError(t, err)
	require.True(t, applied)
	assert.EqualValues(t, 100, usage.FromMonthly)
	assert.EqualValues(t, 100, usage.FromBonus)
	assert.EqualValues(t, 0, usage.Overage)

	got, err := repo.Get(dbc, org.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, got.MonthlyTokensUsed, "monthly fully exhausted")
	assert.EqualValues(t, 400, got.BonusTokens, "bonus reduced by exactly the spill")
}

func TestConsume_Idempotent(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewBudgetRepo(db, testutil.Logger(t))
	org := testutil.SeedOrg(t, ctx, db, 1000, 0, 0)

	c := Consumption{OrgID: org.ID, IdempotencyKey: "job-7", InputTokens: 30, OutputTokens: 20}
	_, applied, err := repo.Consume(dbc, c)
	require.NoError(t, err)
	require.True(t, applied)
	again, applied, err := repo.Consume(dbc, c)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.EqualValues(t, 50, again.TotalTokens)

	got, err := repo.Get(dbc, org.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 50, got.MonthlyTokensUsed)
}

func TestConsume_OverageNeverGoesNegative(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewBudgetRepo(db, testutil.Logger(t))
	org := testutil.SeedOrg(t, ctx, db, 100, 50, 10)

	usage, _, err := repo.Consume(dbc, Consumption{OrgID: org.ID, IdempotencyKey: "k", InputTokens: 100})
	require.NoError(t, err)
	assert.EqualValues(t, 40, usage.Overage)

	got, err := repo.Get(dbc, org.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, got.BonusTokens)
	assert.EqualValues(t, 140, got.MonthlyTokensUsed, "overage is still recorded")
}

func TestConsume_Concurrent(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewBudgetRepo(db, testutil.Logger(t))
	org := testutil.SeedOrg(t, ctx, db, 1000, 0, 1000)

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := repo.Consume(dbctx.Context{Ctx: ctx}, Consumption{
				OrgID:          org.ID,
				IdempotencyKey: fmt.Sprintf("c-%d", i),
				InputTokens:    150,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := repo.Get(dbctx.Context{Ctx: ctx}, org.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, got.MonthlyTokensUsed)
	assert.EqualValues(t, 500, got.BonusTokens, "no lost updates across writers")
}

func TestResetCycleIfElapsed(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewBudgetRepo(db, testutil.Logger(t))
	org := testutil.SeedOrg(t, ctx, db, 1000, 700, 0)

	did, err := repo.ResetCycleIfElapsed(dbc, org.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, did, "cycle still running")

	past := time.Now().UTC().Add(-65 * 24 * time.Hour)
	require.NoError(t, db.Model(&types.Organization{}).Where("id = ?", org.ID).Update("token_reset_date", past).Error)

	now := time.Now().UTC()
	did, err = repo.ResetCycleIfElapsed(dbc, org.ID, now)
	require.NoError(t, err)
	assert.True(t, did)

	got, err := repo.Get(dbc, org.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, got.MonthlyTokensUsed)
	assert.True(t, got.TokenResetDate.After(now))
	assert.WithinDuration(t, past.Add(3*types.BudgetCycle), got.TokenResetDate, time.Second)

	did, err = repo.ResetCycleIfElapsed(dbc, org.ID, now)
	require.NoError(t, err)
	assert.False(t, did, "second reset is a no-op")
}
