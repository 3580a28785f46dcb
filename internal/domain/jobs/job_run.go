package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusQueued     Status = "QUEUED"
	StatusProcessing Status = "PROCESSING"
	StatusDone       Status = "DONE"
	StatusFailed     Status = "FAILED"
)

func (s Status) Active() bool   { return s == StatusQueued || s == StatusProcessing }
func (s Status) Terminal() bool { return s == StatusDone || s == StatusFailed }

const (
	TypeGenerateOutput       = "generate_output"
	TypeRegenerateOutput     = "regenerate_output"
	TypeBusinessPlanGenerate = "business_plan_generate"
)

type JobRun struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID       uuid.UUID      `gorm:"type:uuid;column:org_id;not null;index" json:"org_id"`
	ProjectID   uuid.UUID      `gorm:"type:uuid;column:project_id;not null;index" json:"project_id"`
	StageID     uuid.UUID      `gorm:"type:uuid;column:stage_id;not null;index" json:"stage_id"`
	CreatedBy   uuid.UUID      `gorm:"type:uuid;column:created_by" json:"created_by"`
	JobType     string         `gorm:"column:job_type;not null;index" json:"job_type"`
	Status      Status         `gorm:"column:status;not null;index" json:"status"`
	Progress    int            `gorm:"column:progress;not null;default:0" json:"progress"`
	Message     string         `gorm:"column:message" json:"message,omitempty"`
	Attempts    int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	MaxAttempts int            `gorm:"column:max_attempts;not null;default:3" json:"max_attempts"`
	Error       string         `gorm:"column:error" json:"error,omitempty"`
	LockedAt    *time.Time     `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	LockedBy    string         `gorm:"column:locked_by" json:"locked_by,omitempty"`
	StartedAt   *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	Payload     datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	RunConfig   datatypes.JSON `gorm:"column:run_config;type:jsonb" json:"run_config"`
	Result      datatypes.JSON `gorm:"column:result;type:jsonb" json:"result,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (JobRun) TableName() string { return "job_run" }

// Payload is the input shared by every stage job type.
type Payload struct {
	StageID    uuid.UUID `json:"stage_id"`
	StageKey   string    `json:"stage_key"`
	Regenerate bool      `json:"regenerate,omitempty"`
	SeedText   string    `json:"seed_text,omitempty"`
}
