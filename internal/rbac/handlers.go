package rbac

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mediplex/mediplex/internal/apierr"
	"github.com/mediplex/mediplex/internal/idgen"
	"github.com/mediplex/mediplex/internal/logging"
	"github.com/mediplex/mediplex/internal/org"
	"github.com/mediplex/mediplex/internal/validation"
)

// Handler exposes role management routes.
type Handler struct {
	store Store
}

// NewHandler creates the role management HTTP handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// Permissions returns the full permission catalog.
// GET /v1/permissions
func (h *Handler) Permissions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"permissions": Catalog})
}

// ListRoles returns every role in the caller's organization.
// GET /v1/roles
func (h *Handler) ListRoles(c *gin.Context) {
	roles, err := h.store.List(c.Request.Context(), org.ID(c))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	if roles == nil {
		roles = []*Role{}
	}
	c.JSON(http.StatusOK, gin.H{"roles": roles})
}

type roleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

// CreateRole adds a custom role.
// POST /v1/roles
func (h *Handler) CreateRole(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Respond(c, apierr.BadRequest("invalid request body"))
		return
	}
	req.Name = validation.SanitizeString(req.Name, 100)
	if req.Name == "" {
		apierr.Respond(c, apierr.BadRequest("role name is required"))
		return
	}
	if bad := InvalidPermissions(req.Permissions); len(bad) > 0 {
		apierr.Respond(c, apierr.BadRequest("unknown permissions", bad...))
		return
	}

	role := &Role{
		ID:             idgen.WithPrefix("role_"),
		OrganizationID: org.ID(c),
		Name:           req.Name,
		Description:    validation.SanitizeString(req.Description, 500),
		Permissions:    req.Permissions,
	}
	ctx := c.Request.Context()
	if err := h.store.Create(ctx, role); err != nil {
		if errors.Is(err, ErrRoleExists) {
			apierr.Respond(c, apierr.Conflict("role name"))
			return
		}
		apierr.Respond(c, err)
		return
	}

	logging.L(ctx).Info("role created", "organization_id", role.OrganizationID, "role", role.Name)
	c.JSON(http.StatusCreated, role)
}

// UpdateRole changes a custom role's description and permissions.
// PATCH /v1/roles/:id
func (h *Handler) UpdateRole(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Respond(c, apierr.BadRequest("invalid request body"))
		return
	}
	if bad := InvalidPermissions(req.Permissions); len(bad) > 0 {
		apierr.Respond(c, apierr.BadRequest("unknown permissions", bad...))
		return
	}

	ctx := c.Request.Context()
	role, err := h.store.Get(ctx, org.ID(c), c.Param("id"))
	if err != nil {
		h.respondStoreErr(c, err)
		return
	}
	if req.Description != "" {
		role.Description = validation.SanitizeString(req.Description, 500)
	}
	if req.Permissions != nil {
		role.Permissions = req.Permissions
	}
	if err := h.store.Update(ctx, role); err != nil {
		h.respondStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, role)
}

// DeleteRole removes a custom role.
// DELETE /v1/roles/:id
func (h *Handler) DeleteRole(c *gin.Context) {
	if err := h.store.Delete(c.Request.Context(), org.ID(c), c.Param("id")); err != nil {
		h.respondStoreErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) respondStoreErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrRoleNotFound):
		apierr.Respond(c, apierr.NotFound("role"))
	case errors.Is(err, ErrSystemRole):
		apierr.Respond(c, apierr.BadRequest("system roles cannot be modified"))
	default:
		apierr.Respond(c, err)
	}
}
