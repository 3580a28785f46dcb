package stages

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/data/repos/repoerr"
	types "github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/domain"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/dbctx"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/logger"
)

type StageRepo interface {
	Create(dbc dbctx.Context, stages []*types.Stage) ([]*types.Stage, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Stage, error)
	// GetForOrg resolves key against stage_key first and display_key second,
	// joined through project so a stage outside orgID is never returned.
	GetForOrg(dbc dbctx.Context, orgID, projectID uuid.UUID, key string) (*types.Stage, error)
	ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.Stage, error)
	GetByKeys(dbc dbctx.Context, projectID uuid.UUID, keys []string) ([]*types.Stage, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	ResetToNotStarted(dbc dbctx.Context, projectID uuid.UUID, keys []string) (int64, error)
}

type stageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStageRepo(db *gorm.DB, baseLog *logger.Logger) StageRepo {
	return &stageRepo{db: db, log: baseLog.With("repo", "StageRepo")}
}

func (r *stageRepo) Create(dbc dbctx.Context, stages []*types.Stage) ([]*types.Stage, error) {
	if len(stages) == 0 {
		return []*types.Stage{}, nil
	}
	now := time.Now().UTC()
	for _, s := range stages {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		if s.Status == "" {
			s.Status = types.StageNotStarted
		}
		s.CreatedAt, s.UpdatedAt = now, now
	}
	if err := dbc.Conn(r.db).Create(&stages).Error; err != nil {
		return nil, err
	}
	return stages, nil
}

func (r *stageRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Stage, error) {
	var st types.Stage
	if err := dbc.Conn(r.db).Where("id = ?", id).First(&st).Error; err != nil {
		return nil, repoerr.NotFound(err)
	}
	return &st, nil
}

func (r *stageRepo) GetForOrg(dbc dbctx.Context, orgID, projectID uuid.UUID, key string) (*types.Stage, error) {
	if orgID == uuid.Nil || projectID == uuid.Nil || key == "" {
		return nil, repoerr.ErrNotFound
	}
	for _, column := range []string{"stage.stage_key", "stage.display_key"} {
		var st types.Stage
		err := dbc.Conn(r.db).
			Model(&types.Stage{}).
			Select("stage.*").
			Joins("JOIN project ON project.id = stage.project_id").
			Where("project.org_id = ? AND stage.project_id = ?", orgID, projectID).
			Where(column+" = ?", key).
			Order("stage.sort_order ASC").
			Limit(1).
			Take(&st).Error
		if err == nil {
			return &st, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, repoerr.ErrNotFound
}

func (r *stageRepo) ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.Stage, error) {
	var out []*types.Stage
	err := dbc.Conn(r.db).
		Where("project_id = ?", projectID).
		Order("sort_order ASC, stage_key ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *stageRepo) GetByKeys(dbc dbctx.Context, projectID uuid.UUID, keys []string) ([]*types.Stage, error) {
	if len(keys) == 0 {
		return []*types.Stage{}, nil
	}
	var out []*types.Stage
	err := dbc.Conn(r.db).
		Where("project_id = ? AND stage_key IN ?", projectID, keys).
		Order("sort_order ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *stageRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := dbc.Conn(r.db).
		Model(&types.Stage{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repoerr.ErrNotFound
	}
	return nil
}

func (r *stageRepo) ResetToNotStarted(dbc dbctx.Context, projectID uuid.UUID, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	res := dbc.Conn(r.db).
		Model(&types.Stage{}).
		Where("project_id = ? AND stage_key IN ? AND status <> ?", projectID, keys, types.StageNotStarted).
		Updates(map[string]interface{}{
			"status":              types.StageNotStarted,
			"approved_version_id": nil,
			"updated_at":          time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}
