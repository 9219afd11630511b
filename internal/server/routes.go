package server

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mediplex/mediplex/internal/apierr"
	"github.com/mediplex/mediplex/internal/billing"
	"github.com/mediplex/mediplex/internal/identity"
	"github.com/mediplex/mediplex/internal/idgen"
	"github.com/mediplex/mediplex/internal/metrics"
	"github.com/mediplex/mediplex/internal/org"
	"github.com/mediplex/mediplex/internal/patients"
	"github.com/mediplex/mediplex/internal/payments"
	"github.com/mediplex/mediplex/internal/rbac"
	"github.com/mediplex/mediplex/internal/registration"
	"github.com/mediplex/mediplex/internal/security"
	"github.com/mediplex/mediplex/internal/validation"
)

// routeSpec declares one protected route: its permissions gate, the
// feature checked before the handler, and whether a successful response
// counts against that feature's quota. The pipeline order is fixed:
// authorization, then feature limit, then handler, then usage.
type routeSpec struct {
	method       string
	path         string
	permissions  []string
	feature      string
	countFeature bool
	handler      gin.HandlerFunc
}

func (s *Server) setupRoutes() {
	s.router.NoRoute(func(c *gin.Context) {
		apierr.Respond(c, apierr.NotFound("route"))
	})

	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	orgHandler := org.NewHandler(s.orgs)
	identityHandler := identity.NewHandler(s.users, s.tokens)
	roleHandler := rbac.NewHandler(s.roles)
	billingHandler := billing.NewHandler(s.billingStore, s.usage)
	patientHandler := patients.NewHandler(s.patientStore)
	regHandler := registration.NewHandler(s.regService)

	v1 := s.router.Group("/v1")

	// PUBLIC ROUTES. The two slug endpoints are the only places a
	// client-supplied tenant header is honored.
	v1.POST("/register", regHandler.Register)
	v1.POST("/auth/login", identityHandler.Login)
	v1.POST("/auth/verify-email", identityHandler.VerifyEmail)
	v1.GET("/plans", billingHandler.ListPlans)
	v1.GET("/organizations/slug/:slug", org.AllowHeaderTenant(), orgHandler.GetBySlug)
	v1.GET("/organizations/slug-available", org.AllowHeaderTenant(), orgHandler.SlugAvailable)

	if s.cfg.StripeWebhookSecret != "" {
		paymentsHandler := payments.NewHandler(s.subscriptions, s.cfg.StripeWebhookSecret)
		v1.POST("/payments/webhook", paymentsHandler.Webhook)
	} else {
		s.logger.Warn("payment webhook disabled (STRIPE_WEBHOOK_SECRET not set)")
	}

	// SUPPORT ROUTES. Cross-tenant reads for operators, gated on a shared
	// secret header. Not mounted without a configured secret.
	if s.cfg.AdminSecret != "" {
		admin := v1.Group("/admin", requireAdminSecret(s.cfg.AdminSecret))
		admin.GET("/organizations/:id", s.adminGetOrganization)
	}

	// PROTECTED ROUTES.
	protected := v1.Group("")
	protected.Use(identity.RequireAuth(), org.RequireTenant())

	routes := []routeSpec{
		{method: http.MethodGet, path: "/auth/me", handler: identityHandler.Me},

		{method: http.MethodGet, path: "/organizations/current", handler: orgHandler.GetCurrent},
		{method: http.MethodPatch, path: "/organizations/current",
			permissions: []string{rbac.SettingsManage}, handler: orgHandler.UpdateCurrent},
		{method: http.MethodGet, path: "/organizations/current/onboarding", handler: orgHandler.GetOnboarding},
		{method: http.MethodPost, path: "/organizations/current/onboarding/advance",
			permissions: []string{rbac.SettingsManage}, handler: orgHandler.AdvanceOnboarding},

		{method: http.MethodGet, path: "/permissions", handler: roleHandler.Permissions},
		{method: http.MethodGet, path: "/roles",
			permissions: []string{rbac.RolesManage}, handler: roleHandler.ListRoles},
		{method: http.MethodPost, path: "/roles",
			permissions: []string{rbac.RolesManage}, handler: roleHandler.CreateRole},
		{method: http.MethodPatch, path: "/roles/:id",
			permissions: []string{rbac.RolesManage}, handler: roleHandler.UpdateRole},
		{method: http.MethodDelete, path: "/roles/:id",
			permissions: []string{rbac.RolesManage}, handler: roleHandler.DeleteRole},

		{method: http.MethodGet, path: "/subscription",
			permissions: []string{rbac.BillingRead}, handler: billingHandler.GetSubscription},

		{method: http.MethodGet, path: "/patients",
			permissions: []string{rbac.PatientsRead}, handler: patientHandler.List},
		{method: http.MethodGet, path: "/patients/:id",
			permissions: []string{rbac.PatientsRead}, handler: patientHandler.Get},
		{method: http.MethodPost, path: "/patients",
			permissions:  []string{rbac.PatientsCreate},
			feature:      billing.FeaturePatients,
			countFeature: true,
			handler:      patientHandler.Create},
		{method: http.MethodPatch, path: "/patients/:id",
			permissions: []string{rbac.PatientsUpdate}, handler: patientHandler.Update},
		{method: http.MethodDelete, path: "/patients/:id",
			permissions: []string{rbac.PatientsDelete}, handler: patientHandler.Delete},
	}

	for _, r := range routes {
		protected.Handle(r.method, r.path, s.chain(r)...)
	}
}

// chain assembles a route's handler pipeline from its spec.
func (s *Server) chain(r routeSpec) []gin.HandlerFunc {
	var handlers []gin.HandlerFunc
	if len(r.permissions) > 0 {
		handlers = append(handlers, rbac.RequirePermissions(s.authorizer, r.permissions...))
	}
	if r.feature != "" {
		handlers = append(handlers, billing.RequireFeature(s.enforcer, r.feature))
		if r.countFeature {
			handlers = append(handlers, billing.CountOnSuccess(s.usage, r.feature))
		}
	}
	return append(handlers, r.handler)
}

func securityMiddleware() []gin.HandlerFunc {
	return []gin.HandlerFunc{
		security.HeadersMiddleware(),
		security.CORSMiddleware([]string{"*"}),
		validation.RequestSizeMiddleware(validation.MaxRequestSize),
	}
}

func generateRequestID() string {
	return idgen.Hex(8)
}

func requireAdminSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader("X-Admin-Secret")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			apierr.Abort(c, apierr.Authentication("admin secret required"))
			return
		}
		c.Next()
	}
}

// adminGetOrganization returns an organization with its subscription, for
// operator support tooling.
// GET /v1/admin/organizations/:id
func (s *Server) adminGetOrganization(c *gin.Context) {
	ctx := c.Request.Context()

	o, err := s.orgs.Get(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, org.ErrNotFound) {
			apierr.Respond(c, apierr.NotFound("organization"))
			return
		}
		apierr.Respond(c, err)
		return
	}

	out := gin.H{"organization": o}
	sub, err := s.billingStore.GetSubscription(ctx, o.ID)
	switch {
	case err == nil:
		out["subscription"] = sub
	case errors.Is(err, billing.ErrNoSubscription):
		out["subscription"] = nil
	default:
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// -----------------------------------------------------------------------------
// Health endpoints
// -----------------------------------------------------------------------------

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.checks.CheckAll(c.Request.Context())
	healthy = healthy && s.healthy.Load()

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"healthy": healthy,
		"checks":  statuses,
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
