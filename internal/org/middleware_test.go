package org

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediplex/mediplex/internal/identity"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "0123456789abcdef0123456789abcdef"

func testToken(t *testing.T, orgID string) string {
	t.Helper()
	tm := identity.NewTokenManager(testSecret, time.Hour)
	token, err := tm.Issue(&identity.User{
		ID:             "usr_1",
		OrganizationID: orgID,
		Email:          "doc@clinic.test",
		Roles:          []string{"admin"},
	})
	require.NoError(t, err)
	return token
}

// tenantRouter wires the production resolution chain in front of a
// handler that echoes the resolved organization id.
func tenantRouter(extra ...gin.HandlerFunc) *gin.Engine {
	tm := identity.NewTokenManager(testSecret, time.Hour)
	r := gin.New()
	r.Use(identity.Authenticate(tm), ResolveTenant(), RejectMismatch())
	handlers := append(extra, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"organizationId": ID(c)})
	})
	r.POST("/echo", handlers...)
	r.GET("/echo", handlers...)
	return r
}

func TestResolveTenant_FromClaims(t *testing.T) {
	r := tenantRouter()
	req := httptest.NewRequest(http.MethodGet, "/echo", nil)
	req.Header.Set("Authorization", "Bearer "+testToken(t, "org_1"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "org_1", body["organizationId"])
}

func TestResolveTenant_AnonymousPassesUnresolved(t *testing.T) {
	r := tenantRouter()
	req := httptest.NewRequest(http.MethodGet, "/echo", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Empty(t, body["organizationId"])
}

func TestResolveTenant_IgnoresHeadersOnAuthenticatedRequests(t *testing.T) {
	r := tenantRouter()
	req := httptest.NewRequest(http.MethodGet, "/echo", nil)
	req.Header.Set("Authorization", "Bearer "+testToken(t, "org_1"))
	req.Header.Set(HeaderOrganizationID, "org_1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	// Matching header is allowed through; identity still came from
	// the token.
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "org_1", body["organizationId"])
}

func TestRejectMismatch_HeaderNamesForeignTenant(t *testing.T) {
	for _, header := range []string{HeaderOrganizationID, HeaderTenantID} {
		req := httptest.NewRequest(http.MethodGet, "/echo", nil)
		req.Header.Set("Authorization", "Bearer "+testToken(t, "org_1"))
		req.Header.Set(header, "org_2")
		w := httptest.NewRecorder()
		tenantRouter().ServeHTTP(w, req)

		require.Equal(t, http.StatusForbidden, w.Code, header)

		var body struct {
			StatusCode int    `json:"statusCode"`
			Message    string `json:"message"`
			Path       string `json:"path"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, http.StatusForbidden, body.StatusCode)
		assert.Equal(t, "/echo", body.Path)
	}
}

func TestRejectMismatch_BodyNamesForeignTenant(t *testing.T) {
	r := tenantRouter()
	payload := `{"organizationId":"org_2","firstName":"Ada"}`
	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(payload))
	req.Header.Set("Authorization", "Bearer "+testToken(t, "org_1"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRejectMismatch_BodyRestoredForHandler(t *testing.T) {
	tm := identity.NewTokenManager(testSecret, time.Hour)
	r := gin.New()
	r.Use(identity.Authenticate(tm), ResolveTenant(), RejectMismatch())
	r.POST("/patients", func(c *gin.Context) {
		var in struct {
			OrganizationID string `json:"organizationId"`
			FirstName      string `json:"firstName"`
		}
		require.NoError(t, c.ShouldBindJSON(&in))
		c.JSON(http.StatusOK, in)
	})

	payload := `{"organizationId":"org_1","firstName":"Ada"}`
	req := httptest.NewRequest(http.MethodPost, "/patients", strings.NewReader(payload))
	req.Header.Set("Authorization", "Bearer "+testToken(t, "org_1"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	// A matching body passes and the handler still sees the full body.
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Ada")
}

func TestAllowHeaderTenant_PublicRouteOnly(t *testing.T) {
	r := tenantRouter(AllowHeaderTenant())
	req := httptest.NewRequest(http.MethodGet, "/echo", nil)
	req.Header.Set(HeaderOrganizationID, "org_9")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "org_9", body["organizationId"])
}

func TestAllowHeaderTenant_ClaimsWin(t *testing.T) {
	r := tenantRouter(AllowHeaderTenant())
	req := httptest.NewRequest(http.MethodGet, "/echo", nil)
	req.Header.Set("Authorization", "Bearer "+testToken(t, "org_1"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "org_1", body["organizationId"])
}

func TestRequireTenant_RejectsUnresolved(t *testing.T) {
	r := gin.New()
	r.GET("/private", RequireTenant(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/private", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
