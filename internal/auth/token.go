// Package auth resolves the trusted user key of a request from an access token
package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenValidator validates HS256 access tokens issued by the session layer
type TokenValidator struct {
	secret []byte
}

// NewTokenValidator creates a new token validator
func NewTokenValidator(secret string) *TokenValidator {
	return &TokenValidator{secret: []byte(secret)}
}

// IssueAccessToken signs an access token carrying "userKey" in the username claim.
// The session layer owns token issuing in production, this is used by tooling and tests.
func (v *TokenValidator) IssueAccessToken(userKey string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"username": userKey,
		"type":     "access",
		"iat":      now.Unix(),
		"exp":      now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return tokenString, nil
}

// UserKey validates an access token and returns the user key it identifies.
//
// The key is taken from the "username" claim, then "sub", then a numeric "user_id".
// Tokens carrying a "type" claim other than "access" are rejected.
func (v *TokenValidator) UserKey(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return "", fmt.Errorf("token is invalid")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}

	if tokenType, present := claims["type"]; present && tokenType != "access" {
		return "", fmt.Errorf("token is not an access token")
	}

	if username, ok := claims["username"].(string); ok && username != "" {
		return username, nil
	}
	if subject, err := claims.GetSubject(); err == nil && subject != "" {
		return subject, nil
	}
	// JWT claims decode numbers as float64
	if userID, ok := claims["user_id"].(float64); ok {
		return strconv.FormatInt(int64(userID), 10), nil
	}

	return "", fmt.Errorf("user key not found in token")
}
