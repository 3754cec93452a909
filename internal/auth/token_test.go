package auth

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func TestToken_RoundTrip(t *testing.T) {
	token, exp, err := GenerateToken("ops", secret, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := VerifyToken(token, secret)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, exp.Unix(), claims.Exp)
}

func TestToken_WrongSecret(t *testing.T) {
	token, _, err := GenerateToken("ops", secret, time.Hour)
	require.NoError(t, err)

	_, err = VerifyToken(token, []byte("other"))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestToken_Tampered(t *testing.T) {
	token, _, err := GenerateToken("ops", secret, time.Hour)
	require.NoError(t, err)
	other, _, err := GenerateToken("admin", secret, time.Hour)
	require.NoError(t, err)

	// Payload of one token with the signature of another.
	forged := strings.Split(other, ".")[0] + "." + strings.Split(token, ".")[1]
	_, err = VerifyToken(forged, secret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestToken_Expired(t *testing.T) {
	token, _, err := GenerateToken("ops", secret, -time.Hour)
	require.NoError(t, err, "non-positive expiry falls back to the default")
	_, err = VerifyToken(token, secret)
	require.NoError(t, err)

	expired := forge(t, Claims{Subject: "ops", Exp: time.Now().Add(-time.Minute).Unix()})
	_, err = VerifyToken(expired, secret)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestToken_Malformed(t *testing.T) {
	for _, tok := range []string{"", "nodot", "a.b", "!!.??"} {
		_, err := VerifyToken(tok, secret)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", tok)
	}
}

func TestToken_SecretRequired(t *testing.T) {
	_, _, err := GenerateToken("ops", nil, time.Hour)
	assert.ErrorIs(t, err, ErrSecretRequired)
	_, err = VerifyToken("a.b", nil)
	assert.ErrorIs(t, err, ErrSecretRequired)
}

func TestToken_SubjectRequired(t *testing.T) {
	_, _, err := GenerateToken("", secret, time.Hour)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noSubject := forge(t, Claims{Exp: time.Now().Add(time.Hour).Unix()})
	_, err = VerifyToken(noSubject, secret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func forge(t *testing.T, c Claims) string {
	t.Helper()
	payload := base64Claims(t, c)
	return payload + "." + sign(payload, secret)
}

func base64Claims(t *testing.T, c Claims) string {
	t.Helper()
	data, err := json.Marshal(c)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(data)
}
