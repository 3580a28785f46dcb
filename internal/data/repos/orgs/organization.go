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

type OrganizationRepo interface {
	Create(dbc dbctx.Context, org *types.Organization) (*types.Organization, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Organization, error)
	List(dbc dbctx.Context) ([]*types.Organization, error)
}

type organizationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewOrganizationRepo(db *gorm.DB, baseLog *logger.Logger) OrganizationRepo {
	return &organizationRepo{db: db, log: baseLog.With("repo", "OrganizationRepo")}
}

func (r *organizationRepo) Create(dbc dbctx.Context, org *types.Organization) (*types.Organization, error) {
	now := time.Now().UTC()
	if org.ID == uuid.Nil {
		org.ID = uuid.New()
	}
	if org.TokenResetDate.IsZero() {
		org.TokenResetDate = now.Add(types.BudgetCycle)
	}
	org.CreatedAt, org.UpdatedAt = now, now
	if err := dbc.Conn(r.db).Create(org).Error; err != nil {
		return nil, err
	}
	return org, nil
}

func (r *organizationRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Organization, error) {
	var org types.Organization
	if err := dbc.Conn(r.db).Where("id = ?", id).First(&org).Error; err != nil {
		return nil, repoerr.NotFound(err)
	}
	return &org, nil
}

func (r *organizationRepo) List(dbc dbctx.Context) ([]*types.Organization, error) {
	var out []*types.Organization
	if err := dbc.Conn(r.db).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
