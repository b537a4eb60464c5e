// Package middleware provides HTTP middleware for authentication,
// request identification and rate limiting.
package middleware

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"sqlguard/internal/domain"
)

// TokenClaims holds the parsed claims from a validated token.
// Database and Schema pin the caller's default statement address;
// unqualified table names resolve against them.
type TokenClaims struct {
	Subject  string
	Name     string
	Role     string
	Database string
	Schema   string
	Raw      map[string]interface{}
}

// TokenValidator validates a bearer token and returns the parsed claims.
type TokenValidator interface {
	Validate(tokenString string) (*TokenClaims, error)
}

// HS256Validator validates JWTs signed with a shared HS256 secret.
type HS256Validator struct {
	secret []byte
}

// NewHS256Validator creates a validator for HS256 tokens.
func NewHS256Validator(secret string) (*HS256Validator, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}
	return &HS256Validator{secret: []byte(secret)}, nil
}

// Validate verifies a JWT signed with HS256 and extracts claims.
func (v *HS256Validator) Validate(tokenString string) (*TokenClaims, error) {
	tok, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if token.Method == nil || token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	raw, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("parse claims: unsupported claim type %T", tok.Claims)
	}

	claims := &TokenClaims{Raw: map[string]interface{}(raw)}
	if sub, ok := raw["sub"].(string); ok {
		claims.Subject = sub
	}
	if name, ok := raw["name"].(string); ok {
		claims.Name = name
	}
	if role, ok := raw["role"].(string); ok {
		claims.Role = role
	}
	if db, ok := raw["database"].(string); ok {
		claims.Database = db
	}
	if schema, ok := raw["schema"].(string); ok {
		claims.Schema = schema
	}
	return claims, nil
}

// CallerFromClaims maps validated claims onto a CallerContext.
// The subject and a recognised role are mandatory.
func CallerFromClaims(claims *TokenClaims) (domain.CallerContext, error) {
	if claims.Subject == "" {
		return domain.CallerContext{}, fmt.Errorf("token has no subject")
	}
	role := domain.Role(claims.Role)
	if !role.Valid() {
		return domain.CallerContext{}, fmt.Errorf("unknown role %q", claims.Role)
	}
	return domain.CallerContext{
		UserID:   claims.Subject,
		Name:     claims.Name,
		Role:     role,
		Database: claims.Database,
		Schema:   claims.Schema,
	}, nil
}
