package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name   string
		db     Pinger
		status int
		body   string
	}{
		{"liveness only", nil, http.StatusOK, `{"status":"ok"}`},
		{"db up", pingerFunc(func(context.Context) error { return nil }), http.StatusOK, `{"status":"ok"}`},
		{"db down", pingerFunc(func(context.Context) error { return errors.New("dial tcp: refused") }), http.StatusServiceUnavailable, `{"status":"degraded","database":"unreachable"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/healthcheck", NewHealthHandler(tc.db).HealthCheck)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
			assert.Equal(t, tc.status, rec.Code)
			assert.JSONEq(t, tc.body, rec.Body.String())
		})
	}
}
