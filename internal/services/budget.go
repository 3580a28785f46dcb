package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/data/repos"
	types "github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/domain"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/dbctx"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/logger"
)

type BudgetDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	// Remaining is monthly headroom plus bonus tokens.
	Remaining int64 `json:"remaining"`
}

type TokenUsageInput struct {
	Key          string
	JobID        *uuid.UUID
	InputTokens  int64
	OutputTokens int64
}

type UsageView struct {
	Used        int64     `json:"used"`
	Limit       int64     `json:"limit"`
	Remaining   int64     `json:"remaining"`
	Bonus       int64     `json:"bonus"`
	PercentUsed float64   `json:"percentUsed"`
	ResetDate   time.Time `json:"resetDate"`
}

type BudgetService interface {
	// CheckBudget is read-only. An elapsed cycle is treated as already reset.
	CheckBudget(dbc dbctx.Context, orgID uuid.UUID, estimated int64) (BudgetDecision, error)
	// RecordUsage applies the lazy cycle reset, then consumes once per key.
	RecordUsage(dbc dbctx.Context, orgID uuid.UUID, in TokenUsageInput) (*types.TokenUsage, bool, error)
	Usage(dbc dbctx.Context, orgID uuid.UUID) (UsageView, error)
}

type budgetService struct {
	db   *gorm.DB
	log  *logger.Logger
	repo repos.BudgetRepo
	now  func() time.Time
}

func NewBudgetService(db *gorm.DB, baseLog *logger.Logger, repo repos.BudgetRepo) BudgetService {
	return &budgetService{
		db:   db,
		log:  baseLog.With("service", "BudgetService"),
		repo: repo,
		now:  time.Now,
	}
}

// effective returns the org as it would look after a pending cycle reset.
func (s *budgetService) effective(dbc dbctx.Context, orgID uuid.UUID) (*types.Organization, error) {
	org, err := s.repo.Get(dbc, orgID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if !now.Before(org.TokenResetDate) {
		next := org.TokenResetDate
		for !next.After(now) {
			next = next.Add(types.BudgetCycle)
		}
		org.MonthlyTokensUsed = 0
		org.TokenResetDate = next
	}
	return org, nil
}

func (s *budgetService) CheckBudget(dbc dbctx.Context, orgID uuid.UUID, estimated int64) (BudgetDecision, error) {
	org, err := s.effective(dbc, orgID)
	if err != nil {
		return BudgetDecision{}, err
	}
	remaining := org.MonthlyRemaining() + max(org.BonusTokens, 0)
	d := BudgetDecision{Allowed: true, Remaining: remaining}
	switch {
	case remaining <= 0:
		d.Allowed = false
		d.Reason = "monthly token limit reached and no bonus tokens left"
	case estimated > remaining:
		d.Allowed = false
		d.Reason = fmt.Sprintf("estimated %d tokens exceeds the %d remaining", estimated, remaining)
	}
	return d, nil
}

func (s *budgetService) RecordUsage(dbc dbctx.Context, orgID uuid.UUID, in TokenUsageInput) (*types.TokenUsage, bool, error) {
	if in.Key == "" {
		return nil, false, invalid("usage key required")
	}
	if in.InputTokens < 0 || in.OutputTokens < 0 {
		return nil, false, invalid("token counts must be non-negative")
	}
	if _, err := s.repo.ResetCycleIfElapsed(dbc, orgID, s.now()); err != nil {
		return nil, false, err
	}
	usage, applied, err := s.repo.Consume(dbc, repos.Consumption{
		OrgID:          orgID,
		IdempotencyKey: in.Key,
		JobID:          in.JobID,
		InputTokens:    in.InputTokens,
		OutputTokens:   in.OutputTokens,
	})
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("record usage: %w", err)
	}
	if applied {
		s.log.Debug("token usage recorded",
			"org_id", orgID,
			"key", in.Key,
			"total", usage.TotalTokens,
			"from_monthly", usage.FromMonthly,
			"from_bonus", usage.FromBonus,
			"overage", usage.Overage,
		)
	}
	return usage, applied, nil
}

func (s *budgetService) Usage(dbc dbctx.Context, orgID uuid.UUID) (UsageView, error) {
	org, err := s.effective(dbc, orgID)
	if err != nil {
		return UsageView{}, err
	}
	v := UsageView{
		Used:      org.MonthlyTokensUsed,
		Limit:     org.MonthlyTokenLimit,
		Remaining: org.MonthlyRemaining(),
		Bonus:     org.BonusTokens,
		ResetDate: org.TokenResetDate,
	}
	if org.MonthlyTokenLimit > 0 {
		v.PercentUsed = float64(org.MonthlyTokensUsed) * 100 / float64(org.MonthlyTokenLimit)
	}
	return v, nil
}
