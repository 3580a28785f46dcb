package orgs

import (
	"time"

	"github.com/google/uuid"
)

// BudgetCycle is the length of one monthly token cycle.
const BudgetCycle = 30 * 24 * time.Hour

type Organization struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name              string    `gorm:"column:name;not null" json:"name"`
	Plan              string    `gorm:"column:plan;not null" json:"plan"`
	MonthlyTokenLimit int64     `gorm:"column:monthly_token_limit;not null;default:0" json:"monthly_token_limit"`
	MonthlyTokensUsed int64     `gorm:"column:monthly_tokens_used;not null;default:0" json:"monthly_tokens_used"`
	BonusTokens       int64     `gorm:"column:bonus_tokens;not null;default:0" json:"bonus_tokens"`
	TokenResetDate    time.Time `gorm:"column:token_reset_date;not null" json:"token_reset_date"`
	CreatedAt         time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt         time.Time `gorm:"not null" json:"updated_at"`
}

func (Organization) TableName() string { return "organization" }

// MonthlyRemaining is the unused monthly allowance, floored at zero.
func (o *Organization) MonthlyRemaining() int64 {
	if o == nil || o.MonthlyTokensUsed >= o.MonthlyTokenLimit {
		return 0
	}
	return o.MonthlyTokenLimit - o.MonthlyTokensUsed
}
