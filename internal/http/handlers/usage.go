package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/ai"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/http/response"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/dbctx"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/logger"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/services"
)

type UsageHandler struct {
	log    *logger.Logger
	budget services.BudgetService
}

func NewUsageHandler(log *logger.Logger, budget services.BudgetService) *UsageHandler {
	return &UsageHandler{log: log.With("handler", "UsageHandler"), budget: budget}
}

// GET /api/usage
func (h *UsageHandler) GetUsage(c *gin.Context) {
	rd, ok := identity(c)
	if !ok {
		return
	}
	v, err := h.budget.Usage(dbctx.Context{Ctx: c.Request.Context()}, rd.OrgID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.RespondOK(c, v)
}

// ProviderStatuser reports credential readiness per provider type.
type ProviderStatuser interface {
	Statuses() map[string]ai.Status
}

type ProviderHandler struct {
	providers ProviderStatuser
}

func NewProviderHandler(providers ProviderStatuser) *ProviderHandler {
	return &ProviderHandler{providers: providers}
}

// GET /api/ai/providers
func (h *ProviderHandler) List(c *gin.Context) {
	response.RespondOK(c, gin.H{"providers": h.providers.Statuses()})
}
