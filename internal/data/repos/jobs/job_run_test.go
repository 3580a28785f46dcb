package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/data/repos/repoerr"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/data/repos/testutil"
	types "github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/domain"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/dbctx"
)

type fixture struct {
	db    *gorm.DB
	repo  JobRunRepo
	dbc   dbctx.Context
	org   *types.Organization
	stage *types.Stage
}

func setup(t *testing.T) fixture {
	t.Helper()
	db := testutil.DB(t)
	ctx := context.Background()
	org := testutil.SeedOrg(t, ctx, db, 1000, 0, 0)
	p := testutil.SeedProject(t, ctx, db, org.ID, types.ProjectKindBrand)
	st := testutil.SeedStage(t, ctx, db, p.ID, "naming", types.StageNotStarted)
	return fixture{
		db:    db,
		repo:  NewJobRunRepo(db, testutil.Logger(t)),
		dbc:   dbctx.Context{Ctx: ctx},
		org:   org,
		stage: st,
	}
}

func (f fixture) newStage(t *testing.T, key string) *types.Stage {
	t.Helper()
	return testutil.SeedStage(t, f.dbc.Ctx, f.db, f.stage.ProjectID, key, types.StageNotStarted)
}

func TestClaimExclusivity(t *testing.T) {
	f := setup(t)
	job := testutil.SeedJob(t, f.dbc.Ctx, f.db, f.stage, f.org.ID, time.Now().UTC())

	const workers = 2
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins []string
	)
	for i := 0; i < workers; i++ {
		worker := uuid.NewString()
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := f.repo.TryClaim(f.dbc, job.ID, worker)
			assert.NoError(t, err)
			if won {
				mu.Lock()
				wins = append(wins, worker)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Len(t, wins, 1, "exactly one claim may succeed")

	got, err := f.repo.GetByID(f.dbc, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobProcessing, got.Status)
	assert.Equal(t, wins[0], got.LockedBy)
	assert.NotNil(t, got.LockedAt)
	assert.NotNil(t, got.StartedAt)

	won, err := f.repo.TryClaim(f.dbc, job.ID, "late")
	require.NoError(t, err)
	assert.False(t, won, "a claimed job affects zero rows")
}

func TestClaimNextFIFO(t *testing.T) {
	f := setup(t)
	now := time.Now().UTC()
	newer := testutil.SeedJob(t, f.dbc.Ctx, f.db, f.newStage(t, "b"), f.org.ID, now)
	older := testutil.SeedJob(t, f.dbc.Ctx, f.db, f.newStage(t, "a"), f.org.ID, now.Add(-time.Minute))

	got, err := f.repo.ClaimNext(f.dbc, "w1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, older.ID, got.ID)

	got, err = f.repo.ClaimNext(f.dbc, "w2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, newer.ID, got.ID)

	got, err = f.repo.ClaimNext(f.dbc, "w3")
	require.NoError(t, err)
	assert.Nil(t, got, "empty queue is not an error")
}

func TestFailRequeuesUntilMaxAttempts(t *testing.T) {
	f := setup(t)
	job := testutil.SeedJob(t, f.dbc.Ctx, f.db, f.stage, f.org.ID, time.Now().UTC())

	for attempt := 1; attempt <= 3; attempt++ {
		won, err := f.repo.TryClaim(f.dbc, job.ID, "w")
		require.NoError(t, err)
		require.True(t, won, "attempt %d should be claimable", attempt)

		status, err := f.repo.Fail(f.dbc, job.ID, "w", "schema validation failed", false)
		require.NoError(t, err)

		got, err := f.repo.GetByID(f.dbc, job.ID)
		require.NoError(t, err)
		assert.Equal(t, attempt, got.Attempts)
		assert.Equal(t, "schema validation failed", got.Error)
		assert.Nil(t, got.LockedAt)
		assert.Empty(t, got.LockedBy)
		if attempt < 3 {
			assert.Equal(t, types.JobQueued, status)
			assert.Equal(t, types.JobQueued, got.Status)
			assert.Nil(t, got.CompletedAt)
		} else {
			assert.Equal(t, types.JobFailed, status)
			assert.Equal(t, types.JobFailed, got.Status)
			assert.NotNil(t, got.CompletedAt)
		}
	}
}

func TestFailPermanentSkipsRetry(t *testing.T) {
	f := setup(t)
	job := testutil.SeedJob(t, f.dbc.Ctx, f.db, f.stage, f.org.ID, time.Now().UTC())
	_, err := f.repo.TryClaim(f.dbc, job.ID, "w")
	require.NoError(t, err)

	status, err := f.repo.Fail(f.dbc, job.ID, "w", "provider not configured", true)
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, status)
}

func TestOnlyOwnerFinishes(t *testing.T) {
	f := setup(t)
	job := testutil.SeedJob(t, f.dbc.Ctx, f.db, f.stage, f.org.ID, time.Now().UTC())
	_, err := f.repo.TryClaim(f.dbc, job.ID, "owner")
	require.NoError(t, err)

	assert.ErrorIs(t, f.repo.Complete(f.dbc, job.ID, "intruder", nil), ErrLockLost)
	_, err = f.repo.Fail(f.dbc, job.ID, "intruder", "x", false)
	assert.ErrorIs(t, err, ErrLockLost)
	assert.ErrorIs(t, f.repo.UpdateProgress(f.dbc, job.ID, "intruder", 50, "x"), ErrLockLost)

	require.NoError(t, f.repo.UpdateProgress(f.dbc, job.ID, "owner", 40, "calling provider"))
	require.NoError(t, f.repo.Complete(f.dbc, job.ID, "owner", datatypes.JSON(`{"version":1}`)))

	got, err := f.repo.GetByID(f.dbc, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobDone, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.JSONEq(t, `{"version":1}`, string(got.Result))
	assert.NotNil(t, got.CompletedAt)
	assert.Nil(t, got.LockedAt)
}

func TestOneActiveJobPerStage(t *testing.T) {
	f := setup(t)
	first := testutil.SeedJob(t, f.dbc.Ctx, f.db, f.stage, f.org.ID, time.Now().UTC())

	_, err := f.repo.Create(f.dbc, &types.JobRun{
		OrgID:       f.org.ID,
		ProjectID:   f.stage.ProjectID,
		StageID:     f.stage.ID,
		JobType:     types.JobTypeGenerateOutput,
		MaxAttempts: 3,
	})
	assert.ErrorIs(t, err, repoerr.ErrConflict)

	active, err := f.repo.GetActiveForTarget(f.dbc, f.stage.ProjectID, f.stage.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, first.ID, active.ID)

	ok, err := f.repo.MarkFailed(f.dbc, first.ID, "operator")
	require.NoError(t, err)
	assert.True(t, ok)

	active, err = f.repo.GetActiveForTarget(f.dbc, f.stage.ProjectID, f.stage.ID)
	require.NoError(t, err)
	assert.Nil(t, active)

	_, err = f.repo.Create(f.dbc, &types.JobRun{
		OrgID:       f.org.ID,
		ProjectID:   f.stage.ProjectID,
		StageID:     f.stage.ID,
		JobType:     types.JobTypeRegenerateOutput,
		MaxAttempts: 3,
	})
	assert.NoError(t, err, "a terminal job no longer blocks the stage")
}

func TestReclaimStale(t *testing.T) {
	f := setup(t)
	retry := testutil.SeedJob(t, f.dbc.Ctx, f.db, f.stage, f.org.ID, time.Now().UTC())
	last := testutil.SeedJob(t, f.dbc.Ctx, f.db, f.newStage(t, "b"), f.org.ID, time.Now().UTC())
	fresh := testutil.SeedJob(t, f.dbc.Ctx, f.db, f.newStage(t, "c"), f.org.ID, time.Now().UTC())
	require.NoError(t, f.db.Model(&types.JobRun{}).Where("id = ?", last.ID).Update("attempts", 2).Error)

	for _, j := range []*types.JobRun{retry, last, fresh} {
		won, err := f.repo.TryClaim(f.dbc, j.ID, "dead")
		require.NoError(t, err)
		require.True(t, won)
	}
	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, f.db.Model(&types.JobRun{}).
		Where("id IN ?", []uuid.UUID{retry.ID, last.ID}).
		Update("locked_at", past).Error)

	requeued, failed, err := f.repo.ReclaimStale(f.dbc, time.Now().UTC().Add(-10*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, requeued)
	assert.EqualValues(t, 1, failed)

	got, _ := f.repo.GetByID(f.dbc, retry.ID)
	assert.Equal(t, types.JobQueued, got.Status)
	got, _ = f.repo.GetByID(f.dbc, last.ID)
	assert.Equal(t, types.JobFailed, got.Status)
	got, _ = f.repo.GetByID(f.dbc, fresh.ID)
	assert.Equal(t, types.JobProcessing, got.Status)

	assert.ErrorIs(t, f.repo.Complete(f.dbc, retry.ID, "dead", nil), ErrLockLost)
}
