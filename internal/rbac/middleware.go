package rbac

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/mediplex/mediplex/internal/apierr"
	"github.com/mediplex/mediplex/internal/identity"
	"github.com/mediplex/mediplex/internal/logging"
	"github.com/mediplex/mediplex/internal/metrics"
	"github.com/mediplex/mediplex/internal/org"
)

// RequirePermissions aborts with 403 unless the caller's roles grant
// every listed permission.
func RequirePermissions(a *Authorizer, required ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(required) == 0 {
			c.Next()
			return
		}
		claims, ok := identity.ClaimsFrom(c)
		if !ok {
			apierr.Abort(c, apierr.Authentication("authentication required"))
			return
		}
		err := a.Authorize(c.Request.Context(), org.ID(c), claims.Roles, required)
		if err == nil {
			c.Next()
			return
		}

		var denied *DeniedError
		if errors.As(err, &denied) || errors.Is(err, ErrNotAuthorized) {
			metrics.AuthorizationDenialsTotal.Inc()
			logging.L(c.Request.Context()).Warn("authorization denied",
				"user_id", claims.Subject,
				"organization_id", org.ID(c),
				"path", c.Request.URL.Path,
				"missing", missingOf(denied, required),
			)
			apierr.Abort(c, apierr.Authorization(missingOf(denied, required)...))
			return
		}
		apierr.Abort(c, err)
	}
}

func missingOf(denied *DeniedError, required []string) []string {
	if denied != nil {
		return denied.Missing
	}
	return required
}
