package identity

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mediplex/mediplex/internal/apierr"
	"github.com/mediplex/mediplex/internal/logging"
	"github.com/mediplex/mediplex/internal/validation"
)

// Handler exposes login, email verification and session introspection.
type Handler struct {
	store  Store
	tokens *TokenManager
}

// NewHandler creates the identity HTTP handler.
func NewHandler(store Store, tokens *TokenManager) *Handler {
	return &Handler{store: store, tokens: tokens}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// Login verifies credentials and issues a session token.
// POST /v1/auth/login
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Respond(c, apierr.BadRequest("invalid request body"))
		return
	}
	req.Email = validation.NormalizeEmail(req.Email)
	if verrs := validation.Validate(
		validation.Required("email", req.Email),
		validation.ValidEmail("email", req.Email),
		validation.Required("password", req.Password),
	); len(verrs) > 0 {
		apierr.Respond(c, apierr.BadRequest("validation failed", verrs.Messages()...))
		return
	}

	ctx := c.Request.Context()
	u, err := h.store.GetByEmail(ctx, req.Email)
	if err != nil {
		// Burn a bcrypt comparison anyway so unknown emails cost the
		// same as wrong passwords.
		CheckPassword("$2a$10$0000000000000000000000uGZwCocO/1tmREkw2gJuYSuUMsdkGDW", req.Password)
		apierr.Respond(c, apierr.Authentication("invalid credentials"))
		return
	}
	if !CheckPassword(u.PasswordHash, req.Password) {
		apierr.Respond(c, apierr.Authentication("invalid credentials"))
		return
	}
	if !u.EmailVerified {
		apierr.Respond(c, apierr.Authentication("email not verified"))
		return
	}
	if u.Status == UserDisabled {
		apierr.Respond(c, apierr.Authentication("account disabled"))
		return
	}

	token, err := h.tokens.Issue(u)
	if err != nil {
		logging.L(ctx).Error("failed to issue token", "error", err, "user_id", u.ID)
		apierr.Respond(c, err)
		return
	}

	logging.L(ctx).Info("user logged in", "user_id", u.ID, "organization_id", u.OrganizationID)
	c.JSON(http.StatusOK, loginResponse{Token: token, User: u})
}

// Me returns the authenticated user.
// GET /v1/auth/me
func (h *Handler) Me(c *gin.Context) {
	claims, ok := ClaimsFrom(c)
	if !ok {
		apierr.Respond(c, apierr.Authentication("authentication required"))
		return
	}
	u, err := h.store.Get(c.Request.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			apierr.Respond(c, apierr.Authentication("account no longer exists"))
			return
		}
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

type verifyRequest struct {
	Token string `json:"token"`
}

// VerifyEmail consumes a verification token and activates the account.
// POST /v1/auth/verify-email
func (h *Handler) VerifyEmail(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		apierr.Respond(c, apierr.BadRequest("verification token required"))
		return
	}

	ctx := c.Request.Context()
	userID, err := h.store.ConsumeVerificationToken(ctx, HashToken(req.Token))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			apierr.Respond(c, apierr.BadRequest("invalid verification token"))
		case errors.Is(err, ErrTokenExpired):
			apierr.Respond(c, apierr.BadRequest("verification token expired"))
		default:
			apierr.Respond(c, err)
		}
		return
	}
	if err := h.store.MarkVerified(ctx, userID); err != nil {
		apierr.Respond(c, err)
		return
	}

	logging.L(ctx).Info("email verified", "user_id", userID)
	c.JSON(http.StatusOK, gin.H{"verified": true})
}
