package identity

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mediplex/mediplex/internal/apierr"
)

// SessionCookie is the cookie a browser session token travels in.
// Bearer headers take precedence when both are present.
const SessionCookie = "mp_session"

type contextKey string

const (
	claimsKey    contextKey = "identityClaims"
	ginClaimsKey            = "identityClaims"
	ginAuthErr              = "identityAuthError"
)

// WithClaims returns a context carrying verified token claims.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// ClaimsFromContext returns the verified claims on the context, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok
}

// ClaimsFrom returns the verified claims on a gin context, if any.
func ClaimsFrom(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(ginClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}

// Authenticate extracts and verifies a session token if one is present.
// Requests without a token pass through anonymously; rejecting them is
// RequireAuth's job so public routes share the same chain.
func Authenticate(tm *TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := extractToken(c)
		if raw == "" {
			c.Next()
			return
		}
		claims, err := tm.Validate(raw)
		if err != nil {
			c.Set(ginAuthErr, err)
			c.Next()
			return
		}
		c.Set(ginClaimsKey, claims)
		c.Request = c.Request.WithContext(WithClaims(c.Request.Context(), claims))
		c.Next()
	}
}

// RequireAuth aborts with 401 unless verified claims are present.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := ClaimsFrom(c); ok {
			c.Next()
			return
		}
		if _, tried := c.Get(ginAuthErr); tried {
			apierr.Abort(c, apierr.Authentication("invalid or expired token"))
			return
		}
		apierr.Abort(c, apierr.Authentication("authentication required"))
	}
}

func extractToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil {
		return cookie
	}
	return ""
}
