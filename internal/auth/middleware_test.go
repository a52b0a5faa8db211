package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmsync/internal/config"
)

func newRouter(cfg config.AuthConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequireBearer(cfg))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/sync/jobs", func(c *gin.Context) {
		claims, _ := ClaimsFromGin(c)
		c.String(http.StatusOK, claims.Role)
	})
	return r
}

func do(r http.Handler, path, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func signed(t *testing.T, secret string, method jwt.SigningMethod, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(method, Claims{
		Role: "ops",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)},
	})
	s, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestRequireBearer_HealthIsOpen(t *testing.T) {
	r := newRouter(config.AuthConfig{Token: "static"})
	assert.Equal(t, http.StatusOK, do(r, "/healthz", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/api/sync/jobs", "").Code)
}

func TestRequireBearer_StaticToken(t *testing.T) {
	r := newRouter(config.AuthConfig{Token: "static"})
	assert.Equal(t, http.StatusOK, do(r, "/api/sync/jobs", "Bearer static").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/api/sync/jobs", "Bearer nope").Code)
}

func TestRequireBearer_JWT(t *testing.T) {
	r := newRouter(config.AuthConfig{JWTSecret: "s3cret"})

	good := signed(t, "s3cret", jwt.SigningMethodHS256, time.Now().Add(time.Hour))
	w := do(r, "/api/sync/jobs", "Bearer "+good)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ops", w.Body.String())

	expired := signed(t, "s3cret", jwt.SigningMethodHS256, time.Now().Add(-time.Hour))
	assert.Equal(t, http.StatusUnauthorized, do(r, "/api/sync/jobs", "Bearer "+expired).Code)

	wrongKey := signed(t, "other", jwt.SigningMethodHS256, time.Now().Add(time.Hour))
	assert.Equal(t, http.StatusUnauthorized, do(r, "/api/sync/jobs", "Bearer "+wrongKey).Code)

	wrongAlg := signed(t, "s3cret", jwt.SigningMethodHS512, time.Now().Add(time.Hour))
	assert.Equal(t, http.StatusUnauthorized, do(r, "/api/sync/jobs", "Bearer "+wrongAlg).Code)
}

func TestRequireBearer_DisabledAndPresenceOnly(t *testing.T) {
	assert.Equal(t, http.StatusOK, do(newRouter(config.AuthConfig{Disabled: true}), "/api/sync/jobs", "").Code)

	presence := newRouter(config.AuthConfig{})
	assert.Equal(t, http.StatusOK, do(presence, "/api/sync/jobs", "Bearer anything").Code)
	assert.Equal(t, http.StatusUnauthorized, do(presence, "/api/sync/jobs", "Basic abc").Code)
}

func TestValidate(t *testing.T) {
	require.ErrorIs(t, Validate(config.AuthConfig{}), ErrNoCredentials)
	require.ErrorIs(t, Validate(config.AuthConfig{Token: "  "}), ErrNoCredentials)
	assert.NoError(t, Validate(config.AuthConfig{Disabled: true}))
	assert.NoError(t, Validate(config.AuthConfig{Token: "static"}))
	assert.NoError(t, Validate(config.AuthConfig{JWTSecret: "secret"}))
}
