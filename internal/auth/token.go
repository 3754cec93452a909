package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Claims identifies the operator holding a control API token.
type Claims struct {
	Subject string `json:"sub"`
	Exp     int64  `json:"exp"`
}

// DefaultTokenExpiry is the default lifetime for control API tokens.
const DefaultTokenExpiry = 24 * time.Hour

var (
	ErrSecretRequired = errors.New("token secret is required")
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token expired")
)

// GenerateToken creates an HMAC-SHA256 signed token for subject.
// Format: base64url(payload).base64url(signature).
func GenerateToken(subject string, secret []byte, expiry time.Duration) (token string, expiresAt time.Time, err error) {
	if len(secret) == 0 {
		return "", time.Time{}, ErrSecretRequired
	}
	if subject == "" {
		return "", time.Time{}, fmt.Errorf("%w: subject is required", ErrInvalidToken)
	}
	if expiry <= 0 {
		expiry = DefaultTokenExpiry
	}
	expiresAt = time.Now().UTC().Add(expiry)
	payload, err := json.Marshal(Claims{Subject: subject, Exp: expiresAt.Unix()})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("marshal claims: %w", err)
	}
	b64Payload := base64.RawURLEncoding.EncodeToString(payload)
	return b64Payload + "." + sign(b64Payload, secret), expiresAt, nil
}

// VerifyToken checks the signature and expiry and returns the claims.
func VerifyToken(token string, secret []byte) (*Claims, error) {
	if len(secret) == 0 {
		return nil, ErrSecretRequired
	}
	b64Payload, b64Sig, ok := strings.Cut(token, ".")
	if !ok {
		return nil, fmt.Errorf("%w: format", ErrInvalidToken)
	}

	sig, err := base64.RawURLEncoding.DecodeString(b64Sig)
	if err != nil {
		return nil, fmt.Errorf("%w: signature encoding: %v", ErrInvalidToken, err)
	}
	expected, _ := base64.RawURLEncoding.DecodeString(sign(b64Payload, secret))
	if !hmac.Equal(sig, expected) {
		return nil, fmt.Errorf("%w: signature", ErrInvalidToken)
	}

	payload, err := base64.RawURLEncoding.DecodeString(b64Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload encoding: %v", ErrInvalidToken, err)
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrInvalidToken, err)
	}

	if time.Now().UTC().Unix() > claims.Exp {
		return nil, ErrTokenExpired
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return &claims, nil
}

func sign(b64Payload string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(b64Payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
