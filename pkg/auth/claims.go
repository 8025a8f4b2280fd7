package auth

import "github.com/golang-jwt/jwt/v5"

// RoleAdmin is the only role an admin session token carries.
const RoleAdmin = "admin"

// AdminClaims represents the typed JWT issued to the admin panel.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}
