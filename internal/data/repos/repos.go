package repos

import (
	"gorm.io/gorm"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/data/repos/billing"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/data/repos/jobs"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/data/repos/orgs"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/data/repos/outputs"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/data/repos/repoerr"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/data/repos/stages"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/logger"
)

var (
	ErrNotFound        = repoerr.ErrNotFound
	ErrConflict        = repoerr.ErrConflict
	ErrLockLost        = jobs.ErrLockLost
	ErrVersionConflict = outputs.ErrVersionConflict
)

type OrganizationRepo = orgs.OrganizationRepo
type ProjectRepo = orgs.ProjectRepo
type StageRepo = stages.StageRepo
type JobRunRepo = jobs.JobRunRepo
type JobListFilter = jobs.ListFilter
type OutputRepo = outputs.OutputRepo
type BudgetRepo = billing.BudgetRepo
type Consumption = billing.Consumption

func NewOrganizationRepo(db *gorm.DB, baseLog *logger.Logger) OrganizationRepo {
	return orgs.NewOrganizationRepo(db, baseLog)
}
func NewProjectRepo(db *gorm.DB, baseLog *logger.Logger) ProjectRepo {
	return orgs.NewProjectRepo(db, baseLog)
}
func NewStageRepo(db *gorm.DB, baseLog *logger.Logger) StageRepo {
	return stages.NewStageRepo(db, baseLog)
}
func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}
func NewOutputRepo(db *gorm.DB, baseLog *logger.Logger) OutputRepo {
	return outputs.NewOutputRepo(db, baseLog)
}
func NewBudgetRepo(db *gorm.DB, baseLog *logger.Logger) BudgetRepo {
	return billing.NewBudgetRepo(db, baseLog)
}

// Set bundles every repo over one connection.
type Set struct {
	Orgs     OrganizationRepo
	Projects ProjectRepo
	Stages   StageRepo
	Jobs     JobRunRepo
	Outputs  OutputRepo
	Budget   BudgetRepo
}

func NewSet(db *gorm.DB, baseLog *logger.Logger) Set {
	return Set{
		Orgs:     NewOrganizationRepo(db, baseLog),
		Projects: NewProjectRepo(db, baseLog),
		Stages:   NewStageRepo(db, baseLog),
		Jobs:     NewJobRunRepo(db, baseLog),
		Outputs:  NewOutputRepo(db, baseLog),
		Budget:   NewBudgetRepo(db, baseLog),
	}
}
