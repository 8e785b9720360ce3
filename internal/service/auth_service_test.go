package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/model"
)

func testAuthService() *AuthService {
	cfg := &config.Config{
		JWTSecret:        "test-secret",
		JWTExpiry:        time.Hour,
		BcryptCost:       bcrypt.MinCost,
		AllowedFaculties: []string{"ИТ"},
	}
	return NewAuthService(cfg, nil, nil, zerolog.Nop())
}

func signClaims(t *testing.T, secret string, c Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestValidateTokenRoundTrip(t *testing.T) {
	svc := testAuthService()
	tok := signClaims(t, "test-secret", Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
		UserID: 42,
	})

	claims, err := svc.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, 42, claims.UserID)
	assert.Equal(t, "jti-1", claims.ID)
}

func TestValidateTokenRejectsBadTokens(t *testing.T) {
	svc := testAuthService()
	future := jwt.NewNumericDate(time.Now().Add(time.Minute))

	cases := map[string]string{
		"wrong secret": signClaims(t, "other", Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future}, UserID: 1}),
		"expired": signClaims(t, "test-secret", Claims{
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
			UserID:           1,
		}),
		"no user":  signClaims(t, "test-secret", Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future}}),
		"garbage":  "not.a.token",
		"no token": "",
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(tok)
			assert.Error(t, err)
		})
	}
}

func TestPasswordHashing(t *testing.T) {
	svc := testAuthService()
	hash, err := svc.HashPassword("+79991234567")
	require.NoError(t, err)

	assert.NoError(t, svc.CheckPassword(hash, "+79991234567"))
	assert.ErrorIs(t, svc.CheckPassword(hash, "+70000000000"), ErrInvalidCredentials)
}

func TestRegisterRejectsFacultyOutsideAllowList(t *testing.T) {
	svc := testAuthService()
	_, _, err := svc.Register(context.Background(), &model.RegisterRequest{
		LastName:  "Петров",
		FirstName: "Пётр",
		Phone:     "+79991234567",
		Faculty:   "Химия",
	})
	assert.ErrorIs(t, err, ErrInvalidFaculty)
}

func TestTrimOptional(t *testing.T) {
	blank := "   "
	name := " Иванович "
	assert.Nil(t, trimOptional(nil))
	assert.Nil(t, trimOptional(&blank))
	require.NotNil(t, trimOptional(&name))
	assert.Equal(t, "Иванович", *trimOptional(&name))
}
