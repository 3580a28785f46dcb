package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/ai"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/http/response"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/apierr"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/ctxutil"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/logger"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/services"
)

// APIError maps service errors onto status codes and actionable messages.
// Anything unrecognized becomes a generic 500.
func APIError(err error) *apierr.Error {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return ae
	}
	var budgetErr *services.BudgetError
	var depErr *services.DependencyError
	switch {
	case errors.As(err, &budgetErr):
		msg := "Token budget exhausted"
		if budgetErr.Decision.Reason != "" {
			msg += ": " + budgetErr.Decision.Reason
		}
		return apierr.WithMessage(http.StatusPaymentRequired, "budget_exceeded", msg,
			"Upgrade your plan or wait for the monthly reset.", err)
	case errors.As(err, &depErr):
		return apierr.WithMessage(http.StatusConflict, "dependencies_missing",
			fmt.Sprintf("Complete %s first", strings.Join(depErr.Missing, ", ")),
			"Run the prerequisite stages, or pass ignoreDependencies to run anyway.", err)
	case errors.Is(err, services.ErrProviderNotConfigured):
		return apierr.WithMessage(http.StatusUnprocessableEntity, "provider_not_configured",
			"AI provider not configured",
			"Add credentials or enable offline/mock mode (AI_PROVIDER=mock).", err)
	case errors.Is(err, ai.ErrUnknownProvider):
		return apierr.WithMessage(http.StatusBadRequest, "unknown_provider", "Unknown AI provider", "", err)
	case errors.Is(err, services.ErrNotFound):
		return apierr.WithMessage(http.StatusNotFound, "not_found", "Not found", "", err)
	case errors.Is(err, services.ErrLocked):
		return apierr.WithMessage(http.StatusConflict, "locked",
			"Another business plan generation is running for this project", "Retry once it finishes.", err)
	case errors.Is(err, services.ErrStageBusy):
		return apierr.WithMessage(http.StatusConflict, "stage_busy",
			"A job is running for this stage", "Wait for it to finish.", err)
	case errors.Is(err, services.ErrInvalidInput):
		return apierr.WithMessage(http.StatusBadRequest, "invalid_input", err.Error(), "", err)
	case errors.Is(err, services.ErrForbidden):
		return apierr.WithMessage(http.StatusForbidden, "forbidden", "Forbidden", "", err)
	default:
		return apierr.Internal(err)
	}
}

func writeError(c *gin.Context, log *logger.Logger, err error) {
	ae := APIError(err)
	if ae.Status >= http.StatusInternalServerError {
		log.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}
	_ = c.Error(err)
	response.RespondAPIError(c, ae)
}

func identity(c *gin.Context) (*ctxutil.RequestData, bool) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil || rd.OrgID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("missing identity"))
		return nil, false
	}
	return rd, true
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_"+name, fmt.Errorf("invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}
