package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/voter-support-api/internal/models"
	"github.com/noah-isme/voter-support-api/pkg/config"
)

func signToken(t *testing.T, secret string, claims *models.JWTClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func adminClaims(expiresIn time.Duration) *models.JWTClaims {
	now := time.Now()
	return &models.JWTClaims{
		UserID: "admin-1",
		Role:   models.RoleAdmin,
		Email:  "admin@example.edu",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "election-portal",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	}
}

func TestTokenVerifierValidateToken(t *testing.T) {
	verifier := NewTokenVerifier(config.JWTConfig{Secret: "secret", Issuer: "election-portal"})

	claims, err := verifier.ValidateToken(signToken(t, "secret", adminClaims(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "admin-1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestTokenVerifierRejectsBadTokens(t *testing.T) {
	verifier := NewTokenVerifier(config.JWTConfig{Secret: "secret", Issuer: "election-portal"})

	_, err := verifier.ValidateToken(signToken(t, "other-secret", adminClaims(time.Hour)))
	assert.Error(t, err)

	_, err = verifier.ValidateToken(signToken(t, "secret", adminClaims(-time.Minute)))
	assert.Error(t, err)

	wrongIssuer := adminClaims(time.Hour)
	wrongIssuer.Issuer = "someone-else"
	_, err = verifier.ValidateToken(signToken(t, "secret", wrongIssuer))
	assert.Error(t, err)

	_, err = verifier.ValidateToken("not-a-token")
	assert.Error(t, err)
}
