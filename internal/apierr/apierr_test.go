package apierr

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func doRequest(t *testing.T, err error) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	r := gin.New()
	r.GET("/v1/patients", func(c *gin.Context) {
		Abort(c, err)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/patients", nil)
	r.ServeHTTP(w, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestRespond_Envelope(t *testing.T) {
	w, body := doRequest(t, Authorization("patients:update"))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, float64(403), body["statusCode"])
	assert.Equal(t, "insufficient permissions", body["message"])
	assert.Equal(t, []any{"patients:update"}, body["errors"])
	assert.Equal(t, "/v1/patients", body["path"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestRespond_UnknownErrorIsGeneric500(t *testing.T) {
	w, body := doRequest(t, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", body["message"])
	assert.NotContains(t, body["message"], "pq:")
}

func TestStatusClasses(t *testing.T) {
	assert.Equal(t, 401, Authentication("no token").Status)
	assert.Equal(t, 401, TenantContext("no tenant").Status)
	assert.Equal(t, 403, TenantMismatch().Status)
	assert.Equal(t, 402, PaymentRequired("quota exceeded").Status)
	assert.Equal(t, 409, Conflict("slug").Status)
	assert.Equal(t, 404, NotFound("patient").Status)
}

func TestRespond_EmptyDetailsSerialisesAsEmptyList(t *testing.T) {
	_, body := doRequest(t, NotFound("patient"))
	assert.Equal(t, []any{}, body["errors"])
}
