package models

import "github.com/golang-jwt/jwt/v5"

// UserRole is the role carried in operator access tokens.
type UserRole string

const (
	RoleAdmin    UserRole = "admin"
	RoleOperator UserRole = "operator"
	RoleViewer   UserRole = "viewer"
)

// JWTClaims represents the JWT payload for access tokens. Tokens are issued
// by the external sign-in service; this service only verifies them.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	Email  string   `json:"email,omitempty"`
	jwt.RegisteredClaims
}
