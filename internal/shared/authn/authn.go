package authn

import (
	"fmt"
	"strings"
	"time"

	"github.com/wahaj4311/microservices-demo/internal/shared/httpx"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const identityKey = "authn.identity"

// Identity is the authenticated principal extracted from a bearer token.
type Identity struct {
	UserID   uuid.UUID
	Username string
}

// TokenManager issues and verifies HS256 bearer tokens. The signing
// secret is shared between auth-service (issuer) and the services that
// verify tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

func (m *TokenManager) Issue(userID uuid.UUID, username string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		Issuer:    "auth-service",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		Audience:  jwt.ClaimStrings{username},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("token signing error: %v", err)
	}
	return signed, nil
}

func (m *TokenManager) Verify(tokenString string) (*Identity, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %v", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("invalid token subject: %v", err)
	}

	identity := &Identity{UserID: userID}
	if len(claims.Audience) > 0 {
		identity.Username = claims.Audience[0]
	}
	return identity, nil
}

// Middleware rejects requests without a valid bearer token and stores
// the identity in fiber locals for handlers.
func Middleware(manager *TokenManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			return httpx.UnauthorizedResponse(c, "Missing bearer token")
		}

		identity, err := manager.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			return httpx.UnauthorizedResponse(c, "Invalid bearer token")
		}

		c.Locals(identityKey, identity)
		return c.Next()
	}
}

// IdentityFromCtx returns the identity stored by Middleware, or nil.
func IdentityFromCtx(c *fiber.Ctx) *Identity {
	identity, _ := c.Locals(identityKey).(*Identity)
	return identity
}
