package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediplex/mediplex/internal/config"
	"github.com/mediplex/mediplex/internal/identity"
	"github.com/mediplex/mediplex/internal/org"
	"github.com/mediplex/mediplex/internal/rbac"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testJWTSecret = "0123456789abcdef0123456789abcdef"

// captureMailer hands the verification token to the test instead of
// sending mail.
type captureMailer struct {
	mu     sync.Mutex
	tokens map[string]string // email -> raw token
	ready  chan string
}

func newCaptureMailer() *captureMailer {
	return &captureMailer{tokens: map[string]string{}, ready: make(chan string, 8)}
}

func (m *captureMailer) SendVerification(_ context.Context, email, _, token string) error {
	m.mu.Lock()
	m.tokens[email] = token
	m.mu.Unlock()
	m.ready <- email
	return nil
}

func (m *captureMailer) waitFor(t *testing.T, email string) string {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-m.ready:
			if got == email {
				m.mu.Lock()
				defer m.mu.Unlock()
				return m.tokens[email]
			}
		case <-deadline:
			t.Fatalf("no verification mail for %s", email)
		}
	}
}

func testServer(t *testing.T) (*Server, *captureMailer) {
	t.Helper()
	mailer := newCaptureMailer()
	srv, err := New(&config.Config{
		Port:            "0",
		Env:             "development",
		LogLevel:        "error",
		JWTSecret:       testJWTSecret,
		TokenTTLMinutes: 60,
		TrialDays:       14,
		RateLimitRPM:    100000,
	}, WithMailer(mailer))
	require.NoError(t, err)
	return srv, mailer
}

func doJSON(h http.Handler, method, path, token, body string, headers map[string]string) *httptest.ResponseRecorder {
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// registerAndLogin walks the real onboarding path: register, verify
// the mailed token, log in. Returns the session token and org id.
func registerAndLogin(t *testing.T, srv *Server, mailer *captureMailer, slug, email string) (token, orgID string) {
	t.Helper()
	h := srv.Router()

	w := doJSON(h, http.MethodPost, "/v1/register", "", `{
		"organizationName": "Sunrise Clinic",
		"slug": "`+slug+`",
		"email": "`+email+`",
		"password": "hunter22pass",
		"firstName": "Ada",
		"lastName": "Lovelace"
	}`, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var reg struct {
		Organization struct {
			ID string `json:"id"`
		} `json:"organization"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reg))

	raw := mailer.waitFor(t, email)
	w = doJSON(h, http.MethodPost, "/v1/auth/verify-email", "", `{"token":"`+raw+`"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(h, http.MethodPost, "/v1/auth/login", "", `{"email":"`+email+`","password":"hunter22pass"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	require.NotEmpty(t, login.Token)
	return login.Token, reg.Organization.ID
}

func TestRegisterVerifyLoginFlow(t *testing.T) {
	srv, mailer := testServer(t)
	token, orgID := registerAndLogin(t, srv, mailer, "sunrise-clinic", "admin@sunrise.test")

	w := doJSON(srv.Router(), http.MethodGet, "/v1/auth/me", token, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "admin@sunrise.test")
	assert.Contains(t, w.Body.String(), orgID)
}

func TestLoginBeforeVerificationRejected(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.Router()

	w := doJSON(h, http.MethodPost, "/v1/register", "", `{
		"organizationName": "Sunrise Clinic",
		"slug": "sunrise-clinic",
		"email": "admin@sunrise.test",
		"password": "hunter22pass",
		"firstName": "Ada",
		"lastName": "Lovelace"
	}`, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(h, http.MethodPost, "/v1/auth/login", "", `{"email":"admin@sunrise.test","password":"hunter22pass"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "email not verified")
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.Router()

	for _, path := range []string{"/v1/auth/me", "/v1/patients", "/v1/organizations/current"} {
		w := doJSON(h, http.MethodGet, path, "", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestTenantHeaderMismatchRejected(t *testing.T) {
	srv, mailer := testServer(t)
	token, _ := registerAndLogin(t, srv, mailer, "sunrise-clinic", "admin@sunrise.test")

	w := doJSON(srv.Router(), http.MethodGet, "/v1/patients", token, "",
		map[string]string{org.HeaderOrganizationID: "org_someone_else"})
	require.Equal(t, http.StatusForbidden, w.Code)

	var envelope struct {
		StatusCode int       `json:"statusCode"`
		Message    string    `json:"message"`
		Timestamp  time.Time `json:"timestamp"`
		Path       string    `json:"path"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, http.StatusForbidden, envelope.StatusCode)
	assert.Equal(t, "/v1/patients", envelope.Path)
	assert.False(t, envelope.Timestamp.IsZero())
}

func TestTenantBodyMismatchRejected(t *testing.T) {
	srv, mailer := testServer(t)
	token, _ := registerAndLogin(t, srv, mailer, "sunrise-clinic", "admin@sunrise.test")

	w := doJSON(srv.Router(), http.MethodPost, "/v1/patients", token,
		`{"organizationId":"org_other","firstName":"Eve","lastName":"Dropper"}`, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPermissionDenialIs403(t *testing.T) {
	srv, mailer := testServer(t)
	_, orgID := registerAndLogin(t, srv, mailer, "sunrise-clinic", "admin@sunrise.test")

	// A receptionist token: the role exists from seeding, and grants
	// no patients:delete.
	tm := identity.NewTokenManager(testJWTSecret, time.Hour)
	token, err := tm.Issue(&identity.User{
		ID:             "usr_recep",
		OrganizationID: orgID,
		Email:          "desk@sunrise.test",
		Roles:          []string{rbac.RoleReceptionist},
	})
	require.NoError(t, err)

	w := doJSON(srv.Router(), http.MethodDelete, "/v1/patients/pat_1", token, "", nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "patients:delete")
}

func TestPatientLifecycleThroughPipeline(t *testing.T) {
	srv, mailer := testServer(t)
	token, orgID := registerAndLogin(t, srv, mailer, "sunrise-clinic", "admin@sunrise.test")
	h := srv.Router()

	w := doJSON(h, http.MethodPost, "/v1/patients", token,
		`{"firstName":"Ada","lastName":"Lovelace","email":"ada@example.test"}`, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		ID             string `json:"id"`
		OrganizationID string `json:"organizationId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, orgID, created.OrganizationID)

	w = doJSON(h, http.MethodGet, "/v1/patients/"+created.ID, token, "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(h, http.MethodGet, "/v1/patients?search=love", token, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), created.ID)

	// A successful create counted against the patient quota.
	w = doJSON(h, http.MethodGet, "/v1/subscription", token, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "MAX_PATIENTS")

	w = doJSON(h, http.MethodDelete, "/v1/patients/"+created.ID, token, "", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestPatientsAreInvisibleAcrossTenants(t *testing.T) {
	srv, mailer := testServer(t)
	tokenA, _ := registerAndLogin(t, srv, mailer, "clinic-a", "admin@a.test")
	tokenB, _ := registerAndLogin(t, srv, mailer, "clinic-b", "admin@b.test")
	h := srv.Router()

	w := doJSON(h, http.MethodPost, "/v1/patients", tokenA,
		`{"firstName":"Ada","lastName":"Lovelace"}`, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	// Tenant B reads not-found, not forbidden.
	w = doJSON(h, http.MethodGet, "/v1/patients/"+created.ID, tokenB, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(h, http.MethodGet, "/v1/patients", tokenB, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), created.ID)
}

func TestSlugEndpointsArePublic(t *testing.T) {
	srv, mailer := testServer(t)
	registerAndLogin(t, srv, mailer, "sunrise-clinic", "admin@sunrise.test")
	h := srv.Router()

	w := doJSON(h, http.MethodGet, "/v1/organizations/slug/sunrise-clinic", "", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sunrise-clinic")
	// The public shape never includes settings.
	assert.NotContains(t, w.Body.String(), "settings")

	w = doJSON(h, http.MethodGet, "/v1/organizations/slug-available?slug=sunrise-clinic", "", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "false")

	w = doJSON(h, http.MethodGet, "/v1/organizations/slug-available?slug=fresh-name", "", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "true")
}

func TestDuplicateRegistrationConflicts(t *testing.T) {
	srv, mailer := testServer(t)
	registerAndLogin(t, srv, mailer, "sunrise-clinic", "admin@sunrise.test")
	h := srv.Router()

	w := doJSON(h, http.MethodPost, "/v1/register", "", `{
		"organizationName": "Copycat",
		"slug": "sunrise-clinic",
		"email": "other@sunrise.test",
		"password": "hunter22pass",
		"firstName": "Bob",
		"lastName": "Smith"
	}`, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "slug")

	w = doJSON(h, http.MethodPost, "/v1/register", "", `{
		"organizationName": "Copycat",
		"slug": "other-clinic",
		"email": "admin@sunrise.test",
		"password": "hunter22pass",
		"firstName": "Bob",
		"lastName": "Smith"
	}`, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "email")
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.Router()

	w := doJSON(h, http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = doJSON(h, http.MethodGet, "/health/live", "", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminEndpointsGatedOnSecret(t *testing.T) {
	mailer := newCaptureMailer()
	srv, err := New(&config.Config{
		Port:            "0",
		Env:             "development",
		LogLevel:        "error",
		JWTSecret:       testJWTSecret,
		AdminSecret:     "ops-secret",
		TokenTTLMinutes: 60,
		TrialDays:       14,
		RateLimitRPM:    100000,
	}, WithMailer(mailer))
	require.NoError(t, err)
	h := srv.Router()

	_, orgID := registerAndLogin(t, srv, mailer, "admin-clinic", "admin@clinic.test")

	w := doJSON(h, http.MethodGet, "/v1/admin/organizations/"+orgID, "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(h, http.MethodGet, "/v1/admin/organizations/"+orgID, "", "",
		map[string]string{"X-Admin-Secret": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(h, http.MethodGet, "/v1/admin/organizations/"+orgID, "", "",
		map[string]string{"X-Admin-Secret": "ops-secret"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"admin-clinic"`)
	assert.Contains(t, w.Body.String(), `"subscription"`)

	w = doJSON(h, http.MethodGet, "/v1/admin/organizations/org_missing", "", "",
		map[string]string{"X-Admin-Secret": "ops-secret"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUnknownRouteEnvelope(t *testing.T) {
	srv, _ := testServer(t)
	w := doJSON(srv.Router(), http.MethodGet, "/v1/nope", "", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"statusCode":404`)
	assert.Contains(t, w.Body.String(), `"path":"/v1/nope"`)
}
