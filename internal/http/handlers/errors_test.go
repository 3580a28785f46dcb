package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/ai"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/apierr"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/services"
)

func TestAPIError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", fmt.Errorf("load stage: %w", services.ErrNotFound), http.StatusNotFound, "not_found"},
		{"budget", &services.BudgetError{Decision: services.BudgetDecision{Reason: "none left"}}, http.StatusPaymentRequired, "budget_exceeded"},
		{"provider", ai.NotConfigured("openai", "OPENAI_API_KEY"), http.StatusUnprocessableEntity, "provider_not_configured"},
		{"unknown provider", &ai.Error{Code: ai.CodeUnknownProvider}, http.StatusBadRequest, "unknown_provider"},
		{"dependencies", &services.DependencyError{StageKey: "naming", Missing: []string{"brand_context"}}, http.StatusConflict, "dependencies_missing"},
		{"locked", services.ErrLocked, http.StatusConflict, "locked"},
		{"busy", services.ErrStageBusy, http.StatusConflict, "stage_busy"},
		{"invalid", fmt.Errorf("%w: bad preset", services.ErrInvalidInput), http.StatusBadRequest, "invalid_input"},
		{"forbidden", services.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"passthrough", apierr.New(http.StatusTeapot, "teapot", nil), http.StatusTeapot, "teapot"},
		{"unexpected", errors.New("pq: connection reset"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := APIError(tc.err)
			assert.Equal(t, tc.status, got.Status)
			assert.Equal(t, tc.code, got.Code)
		})
	}
}

func TestAPIErrorMessages(t *testing.T) {
	dep := APIError(&services.DependencyError{StageKey: "tagline", Missing: []string{"naming", "voice"}})
	assert.Equal(t, "Complete naming, voice first", dep.Error())

	internal := APIError(errors.New("pq: connection reset"))
	assert.NotContains(t, internal.Error(), "pq:", "internal causes are not exposed")

	provider := APIError(ai.NotConfigured("gemini", "GEMINI_API_KEY"))
	assert.Equal(t, "AI provider not configured", provider.Error())
	assert.Contains(t, provider.Hint, "offline/mock mode")
}
