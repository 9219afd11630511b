package org

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mediplex/mediplex/internal/apierr"
	"github.com/mediplex/mediplex/internal/logging"
	"github.com/mediplex/mediplex/internal/validation"
)

// Handler exposes organization lookup, settings and onboarding routes.
type Handler struct {
	store Store
}

// NewHandler creates the organization HTTP handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// publicOrg is the reduced shape returned on unauthenticated lookups.
type publicOrg struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Slug   string `json:"slug"`
	Status Status `json:"status"`
}

// GetBySlug returns the public shape of an organization.
// GET /v1/organizations/slug/:slug  (public allow-list)
func (h *Handler) GetBySlug(c *gin.Context) {
	slug := validation.NormalizeSlug(c.Param("slug"))
	if !validation.IsValidSlug(slug) {
		apierr.Respond(c, apierr.BadRequest("invalid slug"))
		return
	}
	o, err := h.store.GetBySlug(c.Request.Context(), slug)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			apierr.Respond(c, apierr.NotFound("organization"))
			return
		}
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, publicOrg{ID: o.ID, Name: o.Name, Slug: o.Slug, Status: o.Status})
}

// SlugAvailable reports whether a slug is free to register.
// GET /v1/organizations/slug-available?slug=  (public allow-list)
func (h *Handler) SlugAvailable(c *gin.Context) {
	slug := validation.NormalizeSlug(c.Query("slug"))
	if !validation.IsValidSlug(slug) {
		apierr.Respond(c, apierr.BadRequest("invalid slug"))
		return
	}
	exists, err := h.store.SlugExists(c.Request.Context(), slug)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slug": slug, "available": !exists})
}

// GetCurrent returns the authenticated request's organization.
// GET /v1/organizations/current
func (h *Handler) GetCurrent(c *gin.Context) {
	o, err := h.store.Get(c.Request.Context(), ID(c))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			apierr.Respond(c, apierr.NotFound("organization"))
			return
		}
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

type updateRequest struct {
	Name     string   `json:"name"`
	Settings Settings `json:"settings"`
}

// UpdateCurrent changes the organization's name and settings.
// PATCH /v1/organizations/current
func (h *Handler) UpdateCurrent(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Respond(c, apierr.BadRequest("invalid request body"))
		return
	}

	ctx := c.Request.Context()
	o, err := h.store.Get(ctx, ID(c))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	if req.Name != "" {
		o.Name = validation.SanitizeString(req.Name, 200)
	}
	if req.Settings != nil {
		o.Settings = req.Settings
	}
	if err := h.store.Update(ctx, o); err != nil {
		apierr.Respond(c, err)
		return
	}

	logging.L(ctx).Info("organization updated", "organization_id", o.ID)
	c.JSON(http.StatusOK, o)
}

// GetOnboarding returns the organization's setup progress.
// GET /v1/organizations/current/onboarding
func (h *Handler) GetOnboarding(c *gin.Context) {
	p, err := h.store.GetProgress(c.Request.Context(), ID(c))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			apierr.Respond(c, apierr.NotFound("onboarding progress"))
			return
		}
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// AdvanceOnboarding moves setup forward one step.
// POST /v1/organizations/current/onboarding/advance
func (h *Handler) AdvanceOnboarding(c *gin.Context) {
	ctx := c.Request.Context()
	p, err := h.store.GetProgress(ctx, ID(c))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			apierr.Respond(c, apierr.NotFound("onboarding progress"))
			return
		}
		apierr.Respond(c, err)
		return
	}
	if !p.Completed {
		p.Step++
		if p.Step >= p.TotalSteps {
			p.Step = p.TotalSteps
			p.Completed = true
		}
		if err := h.store.SaveProgress(ctx, p); err != nil {
			apierr.Respond(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, p)
}
