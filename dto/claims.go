package dto

import "github.com/golang-jwt/jwt/v5"

// CustomClaims carries the identity the admission pipeline keys on. A request
// without a valid token is simply unauthenticated and falls back to IP-only
// checks.
type CustomClaims struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	TenantID string `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}
