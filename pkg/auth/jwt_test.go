package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateJWT(t *testing.T) {
	jwtService := NewJWTService("test-secret")

	tests := []struct {
		name     string
		userID   int64
		role     string
		wantRole string
	}{
		{name: "User token", userID: 123, role: RoleUser, wantRole: RoleUser},
		{name: "Admin token", userID: 1, role: RoleAdmin, wantRole: RoleAdmin},
		{name: "Empty role defaults to user", userID: 5, role: "", wantRole: RoleUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := jwtService.GenerateJWT(tt.userID, tt.role, time.Now().Add(time.Hour))
			require.NoError(t, err)
			assert.NotEmpty(t, token)

			claims, err := jwtService.ValidateToken(token)
			require.NoError(t, err)
			assert.Equal(t, tt.userID, claims.UserID)
			assert.Equal(t, tt.wantRole, claims.Role)
		})
	}
}

func TestValidateToken(t *testing.T) {
	jwtService := NewJWTService("test-secret")

	sign := func(claims Claims, secret string) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return token
	}
	valid := func() Claims {
		return Claims{
			UserID: 42,
			Role:   RoleUser,
			StandardClaims: jwt.StandardClaims{
				ExpiresAt: time.Now().Add(time.Hour).Unix(),
				Issuer:    issuer,
			},
		}
	}

	tests := []struct {
		name        string
		setup       func() string
		expectError error
	}{
		{
			name:  "Valid Token",
			setup: func() string { return sign(valid(), "test-secret") },
		},
		{
			name: "Expired Token",
			setup: func() string {
				c := valid()
				c.ExpiresAt = time.Now().Add(-time.Hour).Unix()
				return sign(c, "test-secret")
			},
			expectError: ErrInvalidToken,
		},
		{
			name:        "Wrong secret",
			setup:       func() string { return sign(valid(), "other-secret") },
			expectError: ErrInvalidToken,
		},
		{
			name: "Foreign issuer",
			setup: func() string {
				c := valid()
				c.Issuer = "someone-else"
				return sign(c, "test-secret")
			},
			expectError: ErrInvalidClaims,
		},
		{
			name: "Unknown role",
			setup: func() string {
				c := valid()
				c.Role = "root"
				return sign(c, "test-secret")
			},
			expectError: ErrInvalidClaims,
		},
		{
			name: "Missing user id",
			setup: func() string {
				c := valid()
				c.UserID = 0
				return sign(c, "test-secret")
			},
			expectError: ErrInvalidClaims,
		},
		{
			name:        "Garbage",
			setup:       func() string { return "not-a-token" },
			expectError: ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := jwtService.ValidateToken(tt.setup())
			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
				assert.Nil(t, claims)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(42), claims.UserID)
		})
	}
}
