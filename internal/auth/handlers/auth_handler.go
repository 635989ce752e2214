package handlers

import (
	"errors"

	"github.com/wahaj4311/microservices-demo/internal/auth/domain"
	"github.com/wahaj4311/microservices-demo/internal/auth/service"
	"github.com/wahaj4311/microservices-demo/internal/shared/authn"
	"github.com/wahaj4311/microservices-demo/internal/shared/httpx"

	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var request domain.RegisterRequest
	if err := c.BodyParser(&request); err != nil {
		return httpx.BadRequestResponse(c, "Invalid request body", nil)
	}

	user, err := h.authService.Register(request)
	if err != nil {
		if errors.Is(err, domain.ErrUsernameTaken) {
			return httpx.ConflictResponse(c, "Username already registered", nil)
		}
		return httpx.BadRequestResponse(c, err.Error(), nil)
	}

	return httpx.CreatedResponse(c, "User created successfully", user)
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var request domain.LoginRequest
	if err := c.BodyParser(&request); err != nil {
		return httpx.BadRequestResponse(c, "Invalid request body", nil)
	}

	token, user, err := h.authService.Login(request)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			return httpx.UnauthorizedResponse(c, "Incorrect username or password")
		}
		return httpx.InternalServerErrorResponse(c, "Login failed", nil)
	}

	return httpx.SuccessResponse(c, "Login successful", map[string]interface{}{
		"access_token": token,
		"token_type":   "bearer",
		"user":         user,
	})
}

// Me introspects the bearer token set by the authn middleware.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	identity := authn.IdentityFromCtx(c)
	if identity == nil {
		return httpx.UnauthorizedResponse(c, "Authentication required")
	}

	user, err := h.authService.GetUser(identity.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return httpx.NotFoundResponse(c, "User not found")
		}
		return httpx.InternalServerErrorResponse(c, "User retrieval failed", nil)
	}

	return httpx.SuccessResponse(c, "User retrieved successfully", user)
}

func (h *AuthHandler) HealthCheck(c *fiber.Ctx) error {
	return httpx.SuccessResponse(c, "Auth service is healthy", map[string]interface{}{
		"service": "auth-service",
		"status":  "healthy",
	})
}
