package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/ctxutil"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/logger"
)

func TestAttachTraceContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext(), RequestLogger(logger.Nop(), "/healthcheck"))
	var seen string
	r.GET("/ping", func(c *gin.Context) {
		if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
			seen = td.RequestID
		}
		c.Status(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	generated := rec.Header().Get(headerRequestID)
	assert.Len(t, generated, 26, "ulid")
	assert.Equal(t, generated, seen)
	assert.Empty(t, rec.Header().Get(headerTraceID), "no span, no trace header")

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(headerRequestID, "client-req-42")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "client-req-42", rec.Header().Get(headerRequestID))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(headerRequestID, "bad id\nInjected: yes")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.NotContains(t, rec.Header().Get(headerRequestID), "Injected")
}

func TestValidRequestID(t *testing.T) {
	assert.True(t, validRequestID("01HZX3-abc_def.1:2"))
	assert.False(t, validRequestID(""))
	assert.False(t, validRequestID("has space"))
	assert.False(t, validRequestID(strings.Repeat("a", maxRequestIDLen+1)))
}
