package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/domain"
)

// At most one QUEUED/PROCESSING job per (project, stage). Partial indexes are
// supported by both postgres and sqlite.
const activeJobIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_job_run_active_target
ON job_run (project_id, stage_id) WHERE status IN ('QUEUED', 'PROCESSING')`

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(types.Models()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	if err := db.Exec(activeJobIndex).Error; err != nil {
		return fmt.Errorf("create active job index: %w", err)
	}
	return nil
}
