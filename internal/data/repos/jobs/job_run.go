package jobs

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/data/repos/repoerr"
	types "github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/domain"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/dbctx"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/logger"
)

// ErrLockLost is returned when a finish/progress write no longer matches the
// caller's lock: the job was reclaimed or failed by an operator meanwhile.
var ErrLockLost = errors.New("job lock lost")

// claimCandidates bounds how many queued rows ClaimNext tries per poll.
const claimCandidates = 5

type ListFilter struct {
	OrgID  uuid.UUID
	Status types.JobStatus
	Limit  int
}

type JobRunRepo interface {
	Create(dbc dbctx.Context, job *types.JobRun) (*types.JobRun, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error)
	GetForOrg(dbc dbctx.Context, orgID, id uuid.UUID) (*types.JobRun, error)
	// GetActiveForTarget returns the QUEUED/PROCESSING job for a stage, or nil.
	GetActiveForTarget(dbc dbctx.Context, projectID, stageID uuid.UUID) (*types.JobRun, error)
	List(dbc dbctx.Context, f ListFilter) ([]*types.JobRun, error)

	ClaimNext(dbc dbctx.Context, workerID string) (*types.JobRun, error)
	TryClaim(dbc dbctx.Context, id uuid.UUID, workerID string) (bool, error)
	UpdateProgress(dbc dbctx.Context, id uuid.UUID, workerID string, progress int, message string) error
	Complete(dbc dbctx.Context, id uuid.UUID, workerID string, result datatypes.JSON) error
	Fail(dbc dbctx.Context, id uuid.UUID, workerID string, errMsg string, permanent bool) (types.JobStatus, error)

	MarkFailed(dbc dbctx.Context, id uuid.UUID, reason string) (bool, error)
	ReclaimStale(dbc dbctx.Context, cutoff time.Time) (requeued int64, failed int64, err error)
}

type jobRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return &jobRunRepo{
		db:  db,
		log: baseLog.With("repo", "JobRunRepo"),
	}
}

func (r *jobRunRepo) Create(dbc dbctx.Context, job *types.JobRun) (*types.JobRun, error) {
	now := time.Now().UTC()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = types.JobQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if err := dbc.Conn(r.db).Create(job).Error; err != nil {
		if repoerr.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: active job exists for stage %s", repoerr.ErrConflict, job.StageID)
		}
		return nil, err
	}
	return job, nil
}

func (r *jobRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error) {
	var job types.JobRun
	if err := dbc.Conn(r.db).Where("id = ?", id).First(&job).Error; err != nil {
		return nil, repoerr.NotFound(err)
	}
	return &job, nil
}

func (r *jobRunRepo) GetForOrg(dbc dbctx.Context, orgID, id uuid.UUID) (*types.JobRun, error) {
	if orgID == uuid.Nil || id == uuid.Nil {
		return nil, repoerr.ErrNotFound
	}
	var job types.JobRun
	if err := dbc.Conn(r.db).Where("id = ? AND org_id = ?", id, orgID).First(&job).Error; err != nil {
		return nil, repoerr.NotFound(err)
	}
	return &job, nil
}

func (r *jobRunRepo) GetActiveForTarget(dbc dbctx.Context, projectID, stageID uuid.UUID) (*types.JobRun, error) {
	if projectID == uuid.Nil || stageID == uuid.Nil {
		return nil, nil
	}
	var job types.JobRun
	err := dbc.Conn(r.db).
		Where("project_id = ? AND stage_id = ? AND status IN ?", projectID, stageID,
			[]types.JobStatus{types.JobQueued, types.JobProcessing}).
		Order("created_at DESC").
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *jobRunRepo) List(dbc dbctx.Context, f ListFilter) ([]*types.JobRun, error) {
	q := dbc.Conn(r.db).Model(&types.JobRun{})
	if f.OrgID != uuid.Nil {
		q = q.Where("org_id = ?", f.OrgID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var out []*types.JobRun
	if err := q.Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ClaimNext walks the oldest unlocked QUEUED jobs and returns the first one
// this worker wins. A nil job means nothing was claimable.
func (r *jobRunRepo) ClaimNext(dbc dbctx.Context, workerID string) (*types.JobRun, error) {
	var candidates []uuid.UUID
	err := dbc.Conn(r.db).
		Model(&types.JobRun{}).
		Where("status = ? AND locked_at IS NULL", types.JobQueued).
		Order("created_at ASC, id ASC").
		Limit(claimCandidates).
		Pluck("id", &candidates).Error
	if err != nil {
		return nil, err
	}
	for _, id := range candidates {
		won, err := r.TryClaim(dbc, id, workerID)
		if err != nil {
			return nil, err
		}
		if !won {
			continue
		}
		return r.GetByID(dbc, id)
	}
	return nil, nil
}

// TryClaim is the only QUEUED -> PROCESSING transition. The caller owns the
// job iff exactly one row was affected.
func (r *jobRunRepo) TryClaim(dbc dbctx.Context, id uuid.UUID, workerID string) (bool, error) {
	if id == uuid.Nil || workerID == "" {
		return false, nil
	}
	now := time.Now().UTC()
	res := dbc.Conn(r.db).
		Model(&types.JobRun{}).
		Where("id = ? AND status = ? AND locked_at IS NULL", id, types.JobQueued).
		Updates(map[string]interface{}{
			"status":     types.JobProcessing,
			"locked_at":  now,
			"locked_by":  workerID,
			"started_at": now,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *jobRunRepo) owned(dbc dbctx.Context, id uuid.UUID, workerID string) *gorm.DB {
	return dbc.Conn(r.db).
		Model(&types.JobRun{}).
		Where("id = ? AND status = ? AND locked_by = ?", id, types.JobProcessing, workerID)
}

func (r *jobRunRepo) UpdateProgress(dbc dbctx.Context, id uuid.UUID, workerID string, progress int, message string) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	res := r.owned(dbc, id, workerID).Updates(map[string]interface{}{
		"progress":   progress,
		"message":    message,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrLockLost
	}
	return nil
}

func (r *jobRunRepo) Complete(dbc dbctx.Context, id uuid.UUID, workerID string, result datatypes.JSON) error {
	now := time.Now().UTC()
	res := r.owned(dbc, id, workerID).Updates(map[string]interface{}{
		"status":       types.JobDone,
		"progress":     100,
		"message":      "done",
		"result":       result,
		"error":        "",
		"locked_at":    nil,
		"locked_by":    "",
		"completed_at": now,
		"updated_at":   now,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrLockLost
	}
	return nil
}

// Fail records one failed attempt. While attempts stay below max_attempts the
// job goes back to QUEUED with its lock cleared; otherwise, or when permanent,
// it becomes terminal FAILED.
func (r *jobRunRepo) Fail(dbc dbctx.Context, id uuid.UUID, workerID string, errMsg string, permanent bool) (types.JobStatus, error) {
	now := time.Now().UTC()
	if !permanent {
		res := r.owned(dbc, id, workerID).
			Where("attempts + 1 < max_attempts").
			Updates(map[string]interface{}{
				"status":     types.JobQueued,
				"attempts":   gorm.Expr("attempts + 1"),
				"error":      errMsg,
				"message":    "retrying",
				"locked_at":  nil,
				"locked_by":  "",
				"updated_at": now,
			})
		if res.Error != nil {
			return "", res.Error
		}
		if res.RowsAffected == 1 {
			return types.JobQueued, nil
		}
	}
	res := r.owned(dbc, id, workerID).Updates(map[string]interface{}{
		"status":       types.JobFailed,
		"attempts":     gorm.Expr("attempts + 1"),
		"error":        errMsg,
		"message":      "failed",
		"locked_at":    nil,
		"locked_by":    "",
		"completed_at": now,
		"updated_at":   now,
	})
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 0 {
		return "", ErrLockLost
	}
	return types.JobFailed, nil
}

// MarkFailed is the operator override: any QUEUED/PROCESSING job becomes
// FAILED regardless of who holds it.
func (r *jobRunRepo) MarkFailed(dbc dbctx.Context, id uuid.UUID, reason string) (bool, error) {
	now := time.Now().UTC()
	res := dbc.Conn(r.db).
		Model(&types.JobRun{}).
		Where("id = ? AND status IN ?", id, []types.JobStatus{types.JobQueued, types.JobProcessing}).
		Updates(map[string]interface{}{
			"status":       types.JobFailed,
			"error":        reason,
			"message":      "marked failed by operator",
			"locked_at":    nil,
			"locked_by":    "",
			"completed_at": now,
			"updated_at":   now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReclaimStale treats PROCESSING jobs locked before cutoff as a failed
// attempt of a dead worker.
func (r *jobRunRepo) ReclaimStale(dbc dbctx.Context, cutoff time.Time) (int64, int64, error) {
	now := time.Now().UTC()
	stale := func() *gorm.DB {
		return dbc.Conn(r.db).
			Model(&types.JobRun{}).
			Where("status = ? AND locked_at IS NOT NULL AND locked_at < ?", types.JobProcessing, cutoff.UTC())
	}
	requeue := stale().
		Where("attempts + 1 < max_attempts").
		Updates(map[string]interface{}{
			"status":     types.JobQueued,
			"attempts":   gorm.Expr("attempts + 1"),
			"error":      "worker lock expired",
			"message":    "reclaimed",
			"locked_at":  nil,
			"locked_by":  "",
			"updated_at": now,
		})
	if requeue.Error != nil {
		return 0, 0, requeue.Error
	}
	fail := stale().Updates(map[string]interface{}{
		"status":       types.JobFailed,
		"attempts":     gorm.Expr("attempts + 1"),
		"error":        "worker lock expired",
		"message":      "failed",
		"locked_at":    nil,
		"locked_by":    "",
		"completed_at": now,
		"updated_at":   now,
	})
	if fail.Error != nil {
		return requeue.RowsAffected, 0, fail.Error
	}
	return requeue.RowsAffected, fail.RowsAffected, nil
}
