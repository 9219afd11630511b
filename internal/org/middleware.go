package org

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/mediplex/mediplex/internal/apierr"
	"github.com/mediplex/mediplex/internal/identity"
	"github.com/mediplex/mediplex/internal/logging"
	"github.com/mediplex/mediplex/internal/metrics"
)

// Tenant hint headers. These are client-supplied and therefore
// untrusted; they never decide tenant identity on authenticated
// requests, only on the explicit public allow-list.
const (
	HeaderOrganizationID = "X-Organization-ID"
	HeaderTenantID       = "X-Tenant-ID"
)

// maxSniffBody bounds how much of a JSON body the mismatch check reads.
const maxSniffBody = 64 << 10

// ResolveTenant derives the request's organization id from verified
// token claims and rejects authenticated requests whose token carries
// no organization. Anonymous requests pass through unresolved; routes
// behind RequireAuth never reach their handler that way.
func ResolveTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := identity.ClaimsFrom(c)
		if !ok {
			c.Next()
			return
		}
		if claims.OrganizationID == "" {
			apierr.Abort(c, apierr.TenantContext("token has no organization"))
			return
		}
		setTenant(c, claims.OrganizationID)
		c.Next()
	}
}

// AllowHeaderTenant resolves tenant identity from the X-Organization-ID
// header for the few public endpoints that need a tenant before any
// token exists. Mounted per-route, never globally.
func AllowHeaderTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := identity.ClaimsFrom(c); ok {
			// Authenticated requests keep their claim-derived tenant.
			c.Next()
			return
		}
		if id := c.GetHeader(HeaderOrganizationID); id != "" {
			setTenant(c, id)
		}
		c.Next()
	}
}

// RejectMismatch aborts with 403 when a header or body field names an
// organization other than the one the verified token resolved to.
// Defense in depth: scoped queries would already exclude foreign rows,
// this turns the attempt into an explicit, counted rejection.
func RejectMismatch() gin.HandlerFunc {
	return func(c *gin.Context) {
		resolved := ID(c)
		if resolved == "" {
			c.Next()
			return
		}
		for _, h := range []string{HeaderOrganizationID, HeaderTenantID} {
			if v := c.GetHeader(h); v != "" && v != resolved {
				reject(c, resolved, v, "header "+h)
				return
			}
		}
		if v := sniffBodyOrgID(c); v != "" && v != resolved {
			reject(c, resolved, v, "body organizationId")
			return
		}
		c.Next()
	}
}

func reject(c *gin.Context, resolved, claimed, source string) {
	metrics.TenantViolationsTotal.Inc()
	logging.L(c.Request.Context()).Warn("tenant mismatch rejected",
		"organization_id", resolved,
		"claimed", claimed,
		"source", source,
		"path", c.Request.URL.Path,
	)
	apierr.Abort(c, apierr.TenantMismatch())
}

// sniffBodyOrgID peeks at a JSON body for an organizationId field and
// restores the body for the handler.
func sniffBodyOrgID(c *gin.Context) string {
	if c.Request.Body == nil || c.ContentType() != "application/json" {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSniffBody))
	c.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), c.Request.Body))
	if err != nil {
		return ""
	}
	var probe struct {
		OrganizationID string `json:"organizationId"`
	}
	if json.Unmarshal(body, &probe) != nil {
		return ""
	}
	return probe.OrganizationID
}

func setTenant(c *gin.Context, orgID string) {
	c.Set(GinContextKey, orgID)
	c.Request = c.Request.WithContext(WithID(c.Request.Context(), orgID))
}

// ID returns the resolved organization id on a gin context, or "".
func ID(c *gin.Context) string {
	return c.GetString(GinContextKey)
}

// RequireTenant aborts with 401 unless a tenant has been resolved.
func RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		if ID(c) == "" {
			apierr.Abort(c, apierr.TenantContext("organization context required"))
			return
		}
		c.Next()
	}
}
