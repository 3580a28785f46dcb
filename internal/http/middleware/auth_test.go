package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/ctxutil"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/logger"
)

const testSecret = "test-secret"

func authRouter(am *AuthMiddleware) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(am.RequireAuth())
	r.GET("/whoami", func(c *gin.Context) {
		rd := ctxutil.GetRequestData(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"user": rd.UserID, "org": rd.OrgID, "admin": rd.IsAdmin()})
	})
	r.POST("/admin", am.RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func do(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRequireAuth(t *testing.T) {
	r := authRouter(NewAuthMiddleware(logger.Nop(), testSecret))
	userID, orgID := uuid.New(), uuid.New()

	token, err := SignToken(testSecret, userID, orgID, "member", time.Hour)
	require.NoError(t, err)
	rec := do(r, http.MethodGet, "/whoami", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user":"`+userID.String()+`","org":"`+orgID.String()+`","admin":false}`, rec.Body.String())

	rec = do(r, http.MethodGet, "/whoami", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	wrong, err := SignToken("other-secret", userID, orgID, "", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/whoami", wrong).Code)

	expired, err := SignToken(testSecret, userID, orgID, "", -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/whoami", expired).Code)
}

func TestRequireAuthRejectsMissingOrg(t *testing.T) {
	r := authRouter(NewAuthMiddleware(logger.Nop(), testSecret))
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/whoami", token).Code)
}

func TestRequireAdmin(t *testing.T) {
	r := authRouter(NewAuthMiddleware(logger.Nop(), testSecret))

	member, err := SignToken(testSecret, uuid.New(), uuid.New(), "member", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodPost, "/admin", member).Code)

	admin, err := SignToken(testSecret, uuid.New(), uuid.New(), "admin", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, do(r, http.MethodPost, "/admin", admin).Code)
}
