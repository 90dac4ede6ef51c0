package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	svc := NewAuthService("test-secret-key", "socialgw-test")

	token, err := svc.IssueToken("u1", time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.VerifyCredential(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "socialgw-test", claims.Issuer)
}

func TestVerifyExpiredToken(t *testing.T) {
	svc := NewAuthService("test-secret-key", "socialgw-test")

	token, err := svc.IssueToken("u1", -time.Minute)
	require.NoError(t, err)

	_, err = svc.VerifyCredential(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerifyGarbageToken(t *testing.T) {
	svc := NewAuthService("test-secret-key", "socialgw-test")

	_, err := svc.VerifyCredential("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyWrongSecret(t *testing.T) {
	issuer := NewAuthService("secret-one", "socialgw-test")
	verifier := NewAuthService("secret-two", "socialgw-test")

	token, err := issuer.IssueToken("u1", time.Minute)
	require.NoError(t, err)

	_, err = verifier.VerifyCredential(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyEmptySubject(t *testing.T) {
	svc := NewAuthService("test-secret-key", "socialgw-test")

	token, err := svc.IssueToken("", time.Minute)
	require.NoError(t, err)

	_, err = svc.VerifyCredential(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
