package patients

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mediplex/mediplex/internal/apierr"
	"github.com/mediplex/mediplex/internal/idgen"
	"github.com/mediplex/mediplex/internal/logging"
	"github.com/mediplex/mediplex/internal/org"
	"github.com/mediplex/mediplex/internal/scope"
	"github.com/mediplex/mediplex/internal/validation"
)

// Handler exposes the patient directory routes.
type Handler struct {
	store Store
}

// NewHandler creates the patients HTTP handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// List returns a page of the organization's patients.
// GET /v1/patients
func (h *Handler) List(c *gin.Context) {
	page, err := h.store.List(c.Request.Context(), org.ID(c), scope.ParamsFromQuery(c))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Get returns one patient.
// GET /v1/patients/:id
func (h *Handler) Get(c *gin.Context) {
	p, err := h.store.Get(c.Request.Context(), org.ID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			apierr.Respond(c, apierr.NotFound("patient"))
			return
		}
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type patientRequest struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	DateOfBirth string `json:"dateOfBirth"`
}

// Create registers a new patient.
// POST /v1/patients
func (h *Handler) Create(c *gin.Context) {
	var req patientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Respond(c, apierr.BadRequest("invalid request body"))
		return
	}
	req.Email = validation.NormalizeEmail(req.Email)
	if verrs := validation.Validate(
		validation.Required("firstName", req.FirstName),
		validation.Required("lastName", req.LastName),
		validation.ValidEmail("email", req.Email),
	); len(verrs) > 0 {
		apierr.Respond(c, apierr.BadRequest("validation failed", verrs.Messages()...))
		return
	}

	p := &Patient{
		ID:             idgen.WithPrefix("pat_"),
		OrganizationID: org.ID(c),
		FirstName:      validation.SanitizeString(req.FirstName, 100),
		LastName:       validation.SanitizeString(req.LastName, 100),
		Email:          req.Email,
		Phone:          validation.SanitizeString(req.Phone, 32),
		DateOfBirth:    validation.SanitizeString(req.DateOfBirth, 10),
	}
	ctx := c.Request.Context()
	if err := h.store.Create(ctx, p); err != nil {
		apierr.Respond(c, err)
		return
	}

	logging.L(ctx).Info("patient created",
		"organization_id", p.OrganizationID, "patient_id", p.ID)
	c.JSON(http.StatusCreated, p)
}

// Update changes an existing patient.
// PATCH /v1/patients/:id
func (h *Handler) Update(c *gin.Context) {
	var req patientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Respond(c, apierr.BadRequest("invalid request body"))
		return
	}

	ctx := c.Request.Context()
	p, err := h.store.Get(ctx, org.ID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			apierr.Respond(c, apierr.NotFound("patient"))
			return
		}
		apierr.Respond(c, err)
		return
	}
	if req.FirstName != "" {
		p.FirstName = validation.SanitizeString(req.FirstName, 100)
	}
	if req.LastName != "" {
		p.LastName = validation.SanitizeString(req.LastName, 100)
	}
	if req.Email != "" {
		p.Email = validation.NormalizeEmail(req.Email)
	}
	if req.Phone != "" {
		p.Phone = validation.SanitizeString(req.Phone, 32)
	}
	if req.DateOfBirth != "" {
		p.DateOfBirth = validation.SanitizeString(req.DateOfBirth, 10)
	}
	if err := h.store.Update(ctx, p); err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Delete removes a patient.
// DELETE /v1/patients/:id
func (h *Handler) Delete(c *gin.Context) {
	err := h.store.Delete(c.Request.Context(), org.ID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			apierr.Respond(c, apierr.NotFound("patient"))
			return
		}
		apierr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
