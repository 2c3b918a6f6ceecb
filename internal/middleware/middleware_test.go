package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/voter-support-api/internal/models"
	"github.com/noah-isme/voter-support-api/internal/service"
	appErrors "github.com/noah-isme/voter-support-api/pkg/errors"
	"github.com/noah-isme/voter-support-api/pkg/middleware/requestid"
)

type validatorStub struct {
	tokens map[string]*models.JWTClaims
}

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := v.tokens[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

func newProtectedEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	validator := validatorStub{tokens: map[string]*models.JWTClaims{
		"admin-token": {UserID: "admin-1", Role: models.RoleAdmin},
		"voter-token": {UserID: "voter-1", Role: models.RoleVoter},
	}}
	r := gin.New()
	r.GET("/chat-support", JWT(validator), RequireSupportAdmin(), func(c *gin.Context) {
		claims, _ := c.Get(ContextUserKey)
		c.JSON(http.StatusOK, gin.H{"user": claims.(*models.JWTClaims).UserID})
	})
	r.GET("/chat-support/faqs", OptionalJWT(validator), func(c *gin.Context) {
		_, authenticated := c.Get(ContextUserKey)
		c.JSON(http.StatusOK, gin.H{"authenticated": authenticated})
	})
	return r
}

func doRequest(r *gin.Engine, path, authorization string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	r.ServeHTTP(rec, req)
	return rec
}

func TestJWTAndRBAC(t *testing.T) {
	r := newProtectedEngine()

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "missing header", status: http.StatusUnauthorized},
		{name: "malformed header", header: "Token admin-token", status: http.StatusUnauthorized},
		{name: "empty bearer", header: "Bearer ", status: http.StatusUnauthorized},
		{name: "unknown token", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "voter forbidden", header: "Bearer voter-token", status: http.StatusForbidden},
		{name: "admin allowed", header: "bearer admin-token", status: http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(r, "/chat-support", tc.header)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestOptionalJWTNeverBlocks(t *testing.T) {
	r := newProtectedEngine()

	rec := doRequest(r, "/chat-support/faqs", "Bearer nope")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"authenticated":false}`, rec.Body.String())

	rec = doRequest(r, "/chat-support/faqs", "Bearer voter-token")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"authenticated":true}`, rec.Body.String())
}

func TestRBACWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin", RequireRoles(models.RoleSuperAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := doRequest(r, "/admin", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestResponseMetaCarriesCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(requestid.Middleware(), WithResponseMeta())
	r.GET("/stats", func(c *gin.Context) {
		SetCacheHit(c, true)
		c.JSON(http.StatusOK, ExtractMeta(c))
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("X-Request-ID", "req-42")
	r.ServeHTTP(rec, req)

	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	assert.Equal(t, true, meta["cache_hit"])
	assert.Equal(t, "req-42", meta["request_id"])
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics))
	r.GET("/chat-support/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/chat-support/a", "/chat-support/b", "/missing/one", "/missing/two"} {
		doRequest(r, path, "")
	}

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	series := 0
	for _, family := range families {
		if family.GetName() == "http_requests_total" {
			series = len(family.GetMetric())
		}
	}
	assert.Equal(t, 2, series)
}
