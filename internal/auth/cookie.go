package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

// ErrInvalidCookie is returned for cookie values that are unsigned or whose
// signature does not verify.
var ErrInvalidCookie = errors.New("invalid session cookie")

// CookieSigner binds session tokens to the server secret so a cookie value
// cannot be forged or altered by the client.
type CookieSigner struct {
	secret []byte
}

// NewCookieSigner returns a signer keyed by secret.
func NewCookieSigner(secret string) (*CookieSigner, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("session secret is required")
	}
	return &CookieSigner{secret: []byte(secret)}, nil
}

// Sign encodes token as <token>.<base64url(HMAC-SHA256(secret, token))>.
func (s *CookieSigner) Sign(token string) string {
	return token + "." + base64.RawURLEncoding.EncodeToString(s.mac(token))
}

// Verify returns the token carried by value when its signature is valid.
func (s *CookieSigner) Verify(value string) (string, error) {
	idx := strings.LastIndexByte(value, '.')
	if idx <= 0 || idx == len(value)-1 {
		return "", ErrInvalidCookie
	}
	token, encoded := value[:idx], value[idx+1:]
	signature, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrInvalidCookie
	}
	if !hmac.Equal(signature, s.mac(token)) {
		return "", ErrInvalidCookie
	}
	return token, nil
}

func (s *CookieSigner) mac(token string) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(token))
	return h.Sum(nil)
}
