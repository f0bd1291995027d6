package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/workspace-service/internal/api/dto"
	"github.com/spec-kit/workspace-service/internal/auth"
	apperrors "github.com/spec-kit/workspace-service/pkg/util"
)

// AuthHandler exchanges the operator password for a bearer token.
type AuthHandler struct {
	tokens       *auth.TokenManager
	passwordHash string
}

// NewAuthHandler constructs handler. passwordHash is the bcrypt hash of the
// operator password from config; an empty hash disables operator login.
func NewAuthHandler(tokens *auth.TokenManager, passwordHash string) *AuthHandler {
	return &AuthHandler{tokens: tokens, passwordHash: passwordHash}
}

// OperatorLogin handles POST /auth/operator/login.
func (h *AuthHandler) OperatorLogin(c *fiber.Ctx) error {
	var req dto.OperatorLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewInvalidRequest("invalid payload", nil)
	}
	if req.Password == "" {
		return apperrors.NewInvalidRequest("password required", nil)
	}
	if h.passwordHash == "" {
		return apperrors.NewUnauthorized("operator login disabled")
	}

	if err := auth.ComparePassword(h.passwordHash, req.Password); err != nil {
		return apperrors.NewUnauthorized("invalid credentials")
	}

	token, exp, err := h.tokens.GenerateOperatorToken()
	if err != nil {
		return apperrors.NewInternalError(err)
	}

	return c.JSON(fiber.Map{
		"status": "OK",
		"data":   dto.AuthResponse{Token: token, ExpiresAt: exp},
	})
}
