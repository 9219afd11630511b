package registration

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mediplex/mediplex/internal/apierr"
	"github.com/mediplex/mediplex/internal/identity"
	"github.com/mediplex/mediplex/internal/org"
	"github.com/mediplex/mediplex/internal/validation"
)

// Handler exposes the public registration route.
type Handler struct {
	service *Service
}

// NewHandler creates the registration HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	OrganizationName string `json:"organizationName"`
	Slug             string `json:"slug"`
	Email            string `json:"email"`
	Password         string `json:"password"`
	FirstName        string `json:"firstName"`
	LastName         string `json:"lastName"`
}

type registerResponse struct {
	Organization *org.Organization `json:"organization"`
	Admin        *identity.User    `json:"admin"`
	Message      string            `json:"message"`
}

// Register creates a new organization with its admin user.
// POST /v1/register  (public)
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Respond(c, apierr.BadRequest("invalid request body"))
		return
	}

	req.Slug = validation.NormalizeSlug(req.Slug)
	req.Email = validation.NormalizeEmail(req.Email)
	if verrs := validation.Validate(
		validation.Required("organizationName", req.OrganizationName),
		validation.MaxLength("organizationName", req.OrganizationName, 200),
		validation.Required("slug", req.Slug),
		validation.ValidSlug("slug", req.Slug),
		validation.Required("email", req.Email),
		validation.ValidEmail("email", req.Email),
		validation.Required("password", req.Password),
		validation.MinLength("password", req.Password, identity.MinPasswordLength),
		validation.Required("firstName", req.FirstName),
		validation.Required("lastName", req.LastName),
	); len(verrs) > 0 {
		apierr.Respond(c, apierr.BadRequest("validation failed", verrs.Messages()...))
		return
	}

	result, err := h.service.Register(c.Request.Context(), Input{
		OrganizationName: validation.SanitizeString(req.OrganizationName, 200),
		Slug:             req.Slug,
		Email:            req.Email,
		Password:         req.Password,
		FirstName:        validation.SanitizeString(req.FirstName, 100),
		LastName:         validation.SanitizeString(req.LastName, 100),
	})
	if err != nil {
		switch {
		case errors.Is(err, org.ErrSlugTaken):
			apierr.Respond(c, apierr.Conflict("slug"))
		case errors.Is(err, identity.ErrEmailTaken):
			apierr.Respond(c, apierr.Conflict("email"))
		default:
			apierr.Respond(c, err)
		}
		return
	}

	c.JSON(http.StatusCreated, registerResponse{
		Organization: result.Organization,
		Admin:        result.Admin,
		Message:      "registration complete, check your email to verify your account",
	})
}
