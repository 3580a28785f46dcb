package stages

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusNotStarted  Status = "NOT_STARTED"
	StatusGenerated   Status = "GENERATED"
	StatusRegenerated Status = "REGENERATED"
	StatusApproved    Status = "APPROVED"
	StatusBlocked     Status = "BLOCKED"
)

// HasContent reports whether a stage in this status has at least one version.
func (s Status) HasContent() bool {
	switch s {
	case StatusGenerated, StatusRegenerated, StatusApproved:
		return true
	}
	return false
}

type Stage struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID         uuid.UUID      `gorm:"type:uuid;column:project_id;not null;uniqueIndex:idx_stage_project_key,priority:1" json:"project_id"`
	StageKey          string         `gorm:"column:stage_key;not null;uniqueIndex:idx_stage_project_key,priority:2" json:"stage_key"`
	DisplayKey        string         `gorm:"column:display_key;index" json:"display_key"`
	Module            string         `gorm:"column:module;not null" json:"module"`
	Order             int            `gorm:"column:sort_order;not null;default:0" json:"order"`
	Name              string         `gorm:"column:name" json:"name"`
	Status            Status         `gorm:"column:status;not null;index" json:"status"`
	Config            datatypes.JSON `gorm:"column:config;type:jsonb" json:"config,omitempty"`
	ApprovedVersionID *uuid.UUID     `gorm:"type:uuid;column:approved_version_id" json:"approved_version_id,omitempty"`
	CreatedAt         time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"not null" json:"updated_at"`
}

func (Stage) TableName() string { return "stage" }

// Config is the sticky per-stage override persisted in Stage.Config.
type Config struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	Preset   string `json:"preset,omitempty"`
}

func (c Config) IsZero() bool {
	return c.Provider == "" && c.Model == "" && c.Preset == ""
}
