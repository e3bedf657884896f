package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gatewatch/gate_api/dto"
	"github.com/gatewatch/gate_api/shared"
)

// TokenVerifier is the slice of the JWT service the auth middleware needs.
type TokenVerifier interface {
	ExtractTokenFromHeader(authHeader string) (string, error)
	VerifyJWTToken(token string) (*dto.CustomClaims, error)
}

type AuthMiddleware struct {
	jwtSvc TokenVerifier
}

func NewAuthMiddleware(jwtSvc TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{jwtSvc: jwtSvc}
}

// RequiredAuth rejects requests without a valid bearer token and stores the
// caller's identity in the request locals.
func (m *AuthMiddleware) RequiredAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := m.jwtSvc.ExtractTokenFromHeader(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return shared.ResponseUnauthorized(c)
		}

		claims, err := m.jwtSvc.VerifyJWTToken(token)
		if err != nil || claims.UserID == "" {
			return shared.ResponseUnauthorized(c)
		}

		setIdentity(c, claims)
		return c.Next()
	}
}

// OptionalAuth resolves the caller's identity when a valid token is present
// and passes the request through untouched otherwise. The admission pipeline
// runs behind it so user-scope checks apply only to authenticated traffic.
func (m *AuthMiddleware) OptionalAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := m.jwtSvc.ExtractTokenFromHeader(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return c.Next()
		}

		claims, err := m.jwtSvc.VerifyJWTToken(token)
		if err != nil || claims.UserID == "" {
			return c.Next()
		}

		setIdentity(c, claims)
		return c.Next()
	}
}

// AdminOnly requires RequiredAuth earlier in the chain.
func (m *AuthMiddleware) AdminOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if RequestRole(c) != shared.RoleAdmin {
			return shared.ResponseForbidden(c)
		}
		return c.Next()
	}
}

func setIdentity(c *fiber.Ctx, claims *dto.CustomClaims) {
	c.Locals(shared.UserID, claims.UserID)
	c.Locals(shared.UserRole, claims.Role)
	if claims.TenantID != "" {
		c.Locals(shared.TenantID, claims.TenantID)
	}
}

// RequestUserID returns the authenticated user ID, or "" for anonymous
// requests.
func RequestUserID(c *fiber.Ctx) string {
	if id, ok := c.Locals(shared.UserID).(string); ok {
		return id
	}
	return ""
}

func RequestRole(c *fiber.Ctx) string {
	if role, ok := c.Locals(shared.UserRole).(string); ok {
		return role
	}
	return ""
}
