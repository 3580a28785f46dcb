package outputs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type VersionStatus string

const (
	VersionGenerated VersionStatus = "GENERATED"
	VersionApproved  VersionStatus = "APPROVED"
)

type VersionType string

const (
	TypeGenerated VersionType = "GENERATED"
	TypeManual    VersionType = "MANUAL"
)

// Output is the single artifact slot of a stage. Versions accumulate on it.
type Output struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID uuid.UUID `gorm:"type:uuid;column:project_id;not null;index" json:"project_id"`
	StageID   uuid.UUID `gorm:"type:uuid;column:stage_id;not null;uniqueIndex:idx_output_stage_key,priority:1" json:"stage_id"`
	OutputKey string    `gorm:"column:output_key;not null;uniqueIndex:idx_output_stage_key,priority:2" json:"output_key"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Output) TableName() string { return "output" }

// OutputVersion rows are written once and never updated.
type OutputVersion struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OutputID    uuid.UUID      `gorm:"type:uuid;column:output_id;not null;uniqueIndex:idx_output_version,priority:1" json:"output_id"`
	Version     int            `gorm:"column:version;not null;uniqueIndex:idx_output_version,priority:2" json:"version"`
	Content     datatypes.JSON `gorm:"column:content;type:jsonb;not null" json:"content"`
	ContentHash string         `gorm:"column:content_hash;not null" json:"content_hash"`
	Provider    string         `gorm:"column:provider" json:"provider,omitempty"`
	Model       string         `gorm:"column:model" json:"model,omitempty"`
	Status      VersionStatus  `gorm:"column:status;not null" json:"status"`
	Type        VersionType    `gorm:"column:type;not null" json:"type"`
	JobID       *uuid.UUID     `gorm:"type:uuid;column:job_id;index" json:"job_id,omitempty"`
	CreatedBy   uuid.UUID      `gorm:"type:uuid;column:created_by" json:"created_by"`
	RunInfo     datatypes.JSON `gorm:"column:run_info;type:jsonb" json:"run_info,omitempty"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
}

func (OutputVersion) TableName() string { return "output_version" }

// RunInfo is the metadata persisted on generated versions.
type RunInfo struct {
	JobID            string   `json:"job_id,omitempty"`
	Preset           string   `json:"preset,omitempty"`
	PromptTokens     int      `json:"prompt_tokens,omitempty"`
	CompletionTokens int      `json:"completion_tokens,omitempty"`
	TotalTokens      int      `json:"total_tokens,omitempty"`
	FinishReason     string   `json:"finish_reason,omitempty"`
	ModelFallback    bool     `json:"model_fallback,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`
	BaseVersionID    string   `json:"base_version_id,omitempty"`
}
