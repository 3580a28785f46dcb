package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/data/repos"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/data/repos/testutil"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/dbctx"
)

func newBudgetFixture(t *testing.T) (*budgetService, dbctx.Context) {
	t.Helper()
	db := testutil.DB(t)
	svc := NewBudgetService(db, testutil.Logger(t), repos.NewBudgetRepo(db, testutil.Logger(t))).(*budgetService)
	return svc, dbctx.Context{Ctx: context.Background(), Tx: testutil.Tx(t, db)}
}

func TestCheckBudget(t *testing.T) {
	svc, dbc := newBudgetFixture(t)
	cases := []struct {
		name               string
		limit, used, bonus int64
		estimated          int64
		wantAllowed        bool
		wantRemaining      int64
	}{
		{"fits", 1000, 100, 0, 500, true, 900},
		{"bonus covers the gap", 1000, 900, 200, 250, true, 300},
		{"estimate too large", 1000, 900, 0, 250, false, 100},
		{"exhausted", 1000, 1000, 0, 1, false, 0},
		{"over limit with bonus", 1000, 1500, 50, 10, true, 50},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			org := testutil.SeedOrg(t, dbc.Ctx, dbc.Tx, tc.limit, tc.used, tc.bonus)
			d, err := svc.CheckBudget(dbc, org.ID, tc.estimated)
			require.NoError(t, err)
			assert.Equal(t, tc.wantAllowed, d.Allowed)
			assert.Equal(t, tc.wantRemaining, d.Remaining)
			if !tc.wantAllowed {
				assert.NotEmpty(t, d.Reason)
			}
		})
	}
}

func TestCheckBudgetTreatsElapsedCycleAsReset(t *testing.T) {
	svc, dbc := newBudgetFixture(t)
	org := testutil.SeedOrg(t, dbc.Ctx, dbc.Tx, 1000, 1000, 0)
	svc.now = func() time.Time { return org.TokenResetDate.Add(time.Hour) }

	d, err := svc.CheckBudget(dbc, org.ID, 500)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1000), d.Remaining)

	stored, err := svc.repo.Get(dbc, org.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), stored.MonthlyTokensUsed, "checking never writes")
}

func TestRecordUsageOncePerKey(t *testing.T) {
	svc, dbc := newBudgetFixture(t)
	org := testutil.SeedOrg(t, dbc.Ctx, dbc.Tx, 1000, 950, 100)

	in := TokenUsageInput{Key: "job:abc", InputTokens: 60, OutputTokens: 40}
	u, applied, err := svc.RecordUsage(dbc, org.ID, in)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, int64(50), u.FromMonthly)
	assert.Equal(t, int64(50), u.FromBonus)

	_, applied, err = svc.RecordUsage(dbc, org.ID, in)
	require.NoError(t, err)
	assert.False(t, applied)

	v, err := svc.Usage(dbc, org.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), v.Used)
	assert.Equal(t, int64(0), v.Remaining)
	assert.Equal(t, int64(50), v.Bonus)
	assert.InDelta(t, 100.0, v.PercentUsed, 0.001)

	_, _, err = svc.RecordUsage(dbc, org.ID, TokenUsageInput{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRecordUsageResetsElapsedCycleFirst(t *testing.T) {
	svc, dbc := newBudgetFixture(t)
	org := testutil.SeedOrg(t, dbc.Ctx, dbc.Tx, 1000, 1000, 0)
	svc.now = func() time.Time { return org.TokenResetDate.Add(time.Minute) }

	u, applied, err := svc.RecordUsage(dbc, org.ID, TokenUsageInput{Key: "k", InputTokens: 10})
	require.NoError(t, err)
	require.True(t, applied)
	assert.Equal(t, int64(10), u.FromMonthly)
	assert.Zero(t, u.Overage)

	stored, err := svc.repo.Get(dbc, org.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), stored.MonthlyTokensUsed)
	assert.True(t, stored.TokenResetDate.After(org.TokenResetDate))
}
