package tokens

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	tg := NewTokenGenerator("test-secret", time.Hour)

	token, err := tg.Generate("alice", RoleTrainee, []string{"inst-1"})
	require.NoError(t, err)

	claims, err := tg.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Trainee)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, Issuer, claims.Issuer)
	assert.True(t, claims.CanAccess("inst-1"))
	assert.False(t, claims.CanAccess("inst-2"))
	assert.False(t, claims.IsInstructor())
}

func TestInstructorToken(t *testing.T) {
	tg := NewTokenGenerator("test-secret", time.Hour)
	token, err := tg.Generate("prof", RoleInstructor, nil)
	require.NoError(t, err)

	claims, err := tg.Validate(token)
	require.NoError(t, err)
	assert.True(t, claims.IsInstructor())
	assert.True(t, claims.CanAccess("anything"))
}

func TestGenerate_Rejects(t *testing.T) {
	tg := NewTokenGenerator("test-secret", time.Hour)

	_, err := tg.Generate("", RoleTrainee, nil)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = tg.Generate("alice", "admin", nil)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_Expired(t *testing.T) {
	tg := NewTokenGenerator("test-secret", time.Minute)
	issued := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	tg.now = func() time.Time { return issued }

	token, err := tg.Generate("alice", RoleTrainee, nil)
	require.NoError(t, err)

	tg.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = tg.Validate(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidate_Invalid(t *testing.T) {
	tg := NewTokenGenerator("test-secret", time.Hour)
	other := NewTokenGenerator("other-secret", time.Hour)

	token, err := other.Generate("alice", RoleTrainee, nil)
	require.NoError(t, err)

	tests := map[string]string{
		"wrong secret": token,
		"garbage":      "not.a.token",
		"empty":        "",
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := tg.Validate(tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestValidate_RejectsNoneAlgorithm(t *testing.T) {
	tg := NewTokenGenerator("test-secret", time.Hour)
	claims := Claims{
		Trainee:          "mallory",
		Role:             RoleInstructor,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: Issuer, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = tg.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
