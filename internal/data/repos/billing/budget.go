package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/data/repos/repoerr"
	types "github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/domain"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/dbctx"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/logger"
)

// ErrContention is returned when the compare-and-swap loop keeps losing.
var ErrContention = errors.New("budget update contention")

const maxCASAttempts = 8

// Split is how one consumption was drawn.
type Split struct {
	FromMonthly int64
	FromBonus   int64
	Overage     int64
}

// SplitConsumption draws total from the monthly headroom first, then the
// bonus pool. Whatever neither covers is overage.
func SplitConsumption(total, limit, used, bonus int64) Split {
	if total <= 0 {
		return Split{}
	}
	headroom := limit - used
	if headroom < 0 {
		headroom = 0
	}
	if bonus < 0 {
		bonus = 0
	}
	s := Split{FromMonthly: min(total, headroom)}
	rest := total - s.FromMonthly
	s.FromBonus = min(rest, bonus)
	s.Overage = rest - s.FromBonus
	return s
}

type Consumption struct {
	OrgID          uuid.UUID
	IdempotencyKey string
	JobID          *uuid.UUID
	InputTokens    int64
	OutputTokens   int64
}

type BudgetRepo interface {
	Get(dbc dbctx.Context, orgID uuid.UUID) (*types.Organization, error)
	// ResetCycleIfElapsed zeroes monthly usage and advances the reset date by
	// whole cycles once it has passed. Reports whether this call did the reset.
	ResetCycleIfElapsed(dbc dbctx.Context, orgID uuid.UUID, now time.Time) (bool, error)
	// Consume records usage exactly once per idempotency key. applied is false
	// when the key had already been recorded.
	Consume(dbc dbctx.Context, c Consumption) (usage *types.TokenUsage, applied bool, err error)
	GetUsageByKey(dbc dbctx.Context, key string) (*types.TokenUsage, error)
}

type budgetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBudgetRepo(db *gorm.DB, baseLog *logger.Logger) BudgetRepo {
	return &budgetRepo{db: db, log: baseLog.With("repo", "BudgetRepo")}
}

func (r *budgetRepo) Get(dbc dbctx.Context, orgID uuid.UUID) (*types.Organization, error) {
	var org types.Organization
	if err := dbc.Conn(r.db).Where("id = ?", orgID).First(&org).Error; err != nil {
		return nil, repoerr.NotFound(err)
	}
	return &org, nil
}

func (r *budgetRepo) ResetCycleIfElapsed(dbc dbctx.Context, orgID uuid.UUID, now time.Time) (bool, error) {
	org, err := r.Get(dbc, orgID)
	if err != nil {
		return false, err
	}
	if now.Before(org.TokenResetDate) {
		return false, nil
	}
	next := org.TokenResetDate
	for !next.After(now) {
		next = next.Add(types.BudgetCycle)
	}
	res := dbc.Conn(r.db).
		Model(&types.Organization{}).
		Where("id = ? AND token_reset_date = ?", orgID, org.TokenResetDate).
		Updates(map[string]interface{}{
			"monthly_tokens_used": 0,
			"token_reset_date":    next.UTC(),
			"updated_at":          now.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	// zero rows: a concurrent caller already advanced the cycle
	return res.RowsAffected == 1, nil
}

func (r *budgetRepo) GetUsageByKey(dbc dbctx.Context, key string) (*types.TokenUsage, error) {
	var u types.TokenUsage
	if err := dbc.Conn(r.db).Where("idempotency_key = ?", key).First(&u).Error; err != nil {
		return nil, repoerr.NotFound(err)
	}
	return &u, nil
}

func (r *budgetRepo) Consume(dbc dbctx.Context, c Consumption) (*types.TokenUsage, bool, error) {
	if c.IdempotencyKey == "" {
		return nil, false, fmt.Errorf("consume: missing idempotency key")
	}
	if existing, err := r.GetUsageByKey(dbc, c.IdempotencyKey); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, repoerr.ErrNotFound) {
		return nil, false, err
	}

	var usage *types.TokenUsage
	run := func(tx *gorm.DB) error {
		txc := dbc.WithTx(tx)
		u, err := r.consumeTx(txc, c)
		if err != nil {
			return err
		}
		usage = u
		return nil
	}
	var err error
	if dbc.Tx != nil {
		err = run(dbc.Tx)
	} else {
		err = dbc.Conn(r.db).Transaction(run)
	}
	if err != nil {
		if repoerr.IsUniqueViolation(err) {
			existing, gerr := r.GetUsageByKey(dbctx.Context{Ctx: dbc.Ctx}, c.IdempotencyKey)
			if gerr != nil {
				return nil, false, gerr
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	return usage, true, nil
}

func (r *budgetRepo) consumeTx(dbc dbctx.Context, c Consumption) (*types.TokenUsage, error) {
	total := c.InputTokens + c.OutputTokens
	now := time.Now().UTC()
	usage := &types.TokenUsage{
		ID:             uuid.New(),
		OrgID:          c.OrgID,
		IdempotencyKey: c.IdempotencyKey,
		JobID:          c.JobID,
		InputTokens:    c.InputTokens,
		OutputTokens:   c.OutputTokens,
		TotalTokens:    total,
		CreatedAt:      now,
	}
	// the ledger row claims the key before any counter moves
	if err := dbc.Conn(r.db).Create(usage).Error; err != nil {
		return nil, err
	}
	if total <= 0 {
		return usage, nil
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		org, err := r.Get(dbc, c.OrgID)
		if err != nil {
			return nil, err
		}
		split := SplitConsumption(total, org.MonthlyTokenLimit, org.MonthlyTokensUsed, org.BonusTokens)
		res := dbc.Conn(r.db).
			Model(&types.Organization{}).
			Where("id = ? AND monthly_tokens_used = ? AND bonus_tokens = ?", org.ID, org.MonthlyTokensUsed, org.BonusTokens).
			Updates(map[string]interface{}{
				"monthly_tokens_used": gorm.Expr("monthly_tokens_used + ?", split.FromMonthly+split.Overage),
				"bonus_tokens":        gorm.Expr("bonus_tokens - ?", split.FromBonus),
				"updated_at":          now,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}
		usage.FromMonthly = split.FromMonthly
		usage.FromBonus = split.FromBonus
		usage.Overage = split.Overage
		err = dbc.Conn(r.db).
			Model(&types.TokenUsage{}).
			Where("id = ?", usage.ID).
			Updates(map[string]interface{}{
				"from_monthly": split.FromMonthly,
				"from_bonus":   split.FromBonus,
				"overage":      split.Overage,
			}).Error
		if err != nil {
			return nil, err
		}
		if split.Overage > 0 {
			r.log.Warn("token budget overage recorded", "org_id", org.ID, "overage_tokens", split.Overage)
		}
		return usage, nil
	}
	return nil, ErrContention
}
