package auth

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/workspace-service/internal/domain"
	"github.com/spec-kit/workspace-service/internal/repository"
	apperrors "github.com/spec-kit/workspace-service/pkg/util"
)

const userKey = "auth_user"

// APIKeyMiddleware authenticates callers presenting a public:secret API
// credential pair in the Authentication header and loads their user record.
type APIKeyMiddleware struct {
	users repository.UserRepository
}

// NewAPIKeyMiddleware constructs middleware.
func NewAPIKeyMiddleware(users repository.UserRepository) *APIKeyMiddleware {
	return &APIKeyMiddleware{users: users}
}

// Handle enforces API-key authentication for protected routes.
func (m *APIKeyMiddleware) Handle(c *fiber.Ctx) error {
	provided := c.Get("Authentication")
	if provided == "" {
		return apperrors.NewUnauthorized("missing api credentials")
	}

	parts := strings.SplitN(provided, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return apperrors.NewUnauthorized("malformed api credentials")
	}

	user, err := m.users.GetByAPIPublic(c.Context(), parts[0])
	if err != nil {
		if apperrors.IsCode(err, "NOT_FOUND") {
			return apperrors.NewUnauthorized("invalid api credentials")
		}
		return err
	}

	if subtle.ConstantTimeCompare([]byte(user.APISecret), []byte(parts[1])) != 1 {
		return apperrors.NewUnauthorized("invalid api credentials")
	}

	c.Locals(userKey, user)
	return c.Next()
}

// UserFromContext returns the authenticated user set by the middleware.
func UserFromContext(c *fiber.Ctx) (*domain.User, bool) {
	user, ok := c.Locals(userKey).(*domain.User)
	return user, ok
}

// OperatorMiddleware validates operator bearer tokens.
type OperatorMiddleware struct {
	tokens *TokenManager
}

// NewOperatorMiddleware constructs middleware.
func NewOperatorMiddleware(tokens *TokenManager) *OperatorMiddleware {
	return &OperatorMiddleware{tokens: tokens}
}

// Handle enforces an operator JWT on fleet-wide actions.
func (m *OperatorMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	if _, err := m.tokens.ParseToken(parts[1]); err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}
	return c.Next()
}
