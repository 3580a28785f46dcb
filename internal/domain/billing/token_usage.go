package billing

import (
	"time"

	"github.com/google/uuid"
)

// TokenUsage is one recorded consumption. IdempotencyKey makes a replayed
// recording a no-op.
type TokenUsage struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID          uuid.UUID  `gorm:"type:uuid;column:org_id;not null;index" json:"org_id"`
	IdempotencyKey string     `gorm:"column:idempotency_key;not null;uniqueIndex" json:"idempotency_key"`
	JobID          *uuid.UUID `gorm:"type:uuid;column:job_id;index" json:"job_id,omitempty"`
	InputTokens    int64      `gorm:"column:input_tokens;not null" json:"input_tokens"`
	OutputTokens   int64      `gorm:"column:output_tokens;not null" json:"output_tokens"`
	TotalTokens    int64      `gorm:"column:total_tokens;not null" json:"total_tokens"`
	FromMonthly    int64      `gorm:"column:from_monthly;not null" json:"from_monthly"`
	FromBonus      int64      `gorm:"column:from_bonus;not null" json:"from_bonus"`
	Overage        int64      `gorm:"column:overage;not null" json:"overage"`
	CreatedAt      time.Time  `gorm:"not null;index" json:"created_at"`
}

func (TokenUsage) TableName() string { return "token_usage" }
