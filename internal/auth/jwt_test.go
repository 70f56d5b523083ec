package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager(secret, time.Hour)

	token, err := m.Generate(Claims{TeacherID: "t-1", Role: RoleTeacher}, time.Now())
	require.NoError(t, err)

	claims, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, Claims{TeacherID: "t-1", Role: RoleTeacher}, claims)
}

func TestJWTManager_Expired(t *testing.T) {
	m := NewJWTManager(secret, time.Minute)

	token, err := m.Generate(Claims{TeacherID: "t-1", Role: RoleTeacher}, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	_, err = m.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTManager_WrongSecret(t *testing.T) {
	token, err := NewJWTManager(secret, time.Hour).Generate(Claims{TeacherID: "t-1"}, time.Now())
	require.NoError(t, err)

	_, err = NewJWTManager("another-secret-another-secret-12", time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidTokenSignature)
}

func TestJWTManager_RejectsOtherAlgorithms(t *testing.T) {
	claims := jwtCustomClaims{
		Claims:           Claims{TeacherID: "t-1"},
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewJWTManager(secret, time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidSigningMethod)
}

func TestJWTManager_Garbage(t *testing.T) {
	_, err := NewJWTManager(secret, time.Hour).Verify("not.a.token")
	assert.ErrorIs(t, err, ErrCorruptedToken)
}
