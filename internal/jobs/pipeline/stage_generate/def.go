package stage_generate

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/domain"
	jobrt "github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/jobs/runtime"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/logger"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/services"
)

// JobTypes are the job types served by this pipeline. They share one
// execution path and differ only in bookkeeping.
var JobTypes = []string{
	types.JobTypeGenerateOutput,
	types.JobTypeRegenerateOutput,
	types.JobTypeBusinessPlanGenerate,
}

type Pipeline struct {
	db      *gorm.DB
	log     *logger.Logger
	jobType string
	stages  services.StageRunService
}

func New(db *gorm.DB, baseLog *logger.Logger, jobType string, stages services.StageRunService) *Pipeline {
	return &Pipeline{
		db:      db,
		log:     baseLog.With("job", jobType),
		jobType: jobType,
		stages:  stages,
	}
}

func (p *Pipeline) Type() string { return p.jobType }

// RegisterAll installs one pipeline per stage job type.
func RegisterAll(reg *jobrt.Registry, db *gorm.DB, baseLog *logger.Logger, stages services.StageRunService) error {
	for _, t := range JobTypes {
		if err := reg.Register(New(db, baseLog, t, stages)); err != nil {
			return fmt.Errorf("register %s: %w", t, err)
		}
	}
	return nil
}
