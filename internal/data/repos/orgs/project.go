package orgs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/data/repos/repoerr"
	types "github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/domain"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/dbctx"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/logger"
)

type ProjectRepo interface {
	Create(dbc dbctx.Context, p *types.Project) (*types.Project, error)
	// GetForOrg only returns the project when it belongs to orgID.
	GetForOrg(dbc dbctx.Context, orgID, projectID uuid.UUID) (*types.Project, error)
	ListForOrg(dbc dbctx.Context, orgID uuid.UUID) ([]*types.Project, error)
}

type projectRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProjectRepo(db *gorm.DB, baseLog *logger.Logger) ProjectRepo {
	return &projectRepo{db: db, log: baseLog.With("repo", "ProjectRepo")}
}

func (r *projectRepo) Create(dbc dbctx.Context, p *types.Project) (*types.Project, error) {
	now := time.Now().UTC()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt, p.UpdatedAt = now, now
	if err := dbc.Conn(r.db).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

func (r *projectRepo) GetForOrg(dbc dbctx.Context, orgID, projectID uuid.UUID) (*types.Project, error) {
	if orgID == uuid.Nil || projectID == uuid.Nil {
		return nil, repoerr.ErrNotFound
	}
	var p types.Project
	err := dbc.Conn(r.db).
		Where("id = ? AND org_id = ?", projectID, orgID).
		First(&p).Error
	if err != nil {
		return nil, repoerr.NotFound(err)
	}
	return &p, nil
}

func (r *projectRepo) ListForOrg(dbc dbctx.Context, orgID uuid.UUID) ([]*types.Project, error) {
	var out []*types.Project
	err := dbc.Conn(r.db).
		Where("org_id = ?", orgID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
