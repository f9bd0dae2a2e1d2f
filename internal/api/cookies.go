package api

import (
	"net/http"
	"strings"
	"time"
)

// SessionCookieName is the cookie carrying the signed session token.
const SessionCookieName = "aims.sid"

// SessionCookieSecureMode decides when the Secure attribute is set. The zero
// value behaves like SessionCookieSecureAuto.
type SessionCookieSecureMode int

const (
	// SessionCookieSecureAuto marks the cookie Secure only for requests that
	// reached the API over HTTPS, directly or through a forwarding proxy.
	SessionCookieSecureAuto SessionCookieSecureMode = iota + 1
	// SessionCookieSecureAlways is required for SameSite=None deployments.
	SessionCookieSecureAlways
)

type SessionCookiePolicy struct {
	SameSite   http.SameSite
	SecureMode SessionCookieSecureMode
}

func DefaultSessionCookiePolicy() SessionCookiePolicy {
	return SessionCookiePolicy{SameSite: http.SameSiteLaxMode, SecureMode: SessionCookieSecureAuto}
}

// cookie builds the session cookie for r. A zero expiry produces a deletion
// cookie.
func (p SessionCookiePolicy) cookie(r *http.Request, value string, expires time.Time) *http.Cookie {
	c := &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   p.SecureMode == SessionCookieSecureAlways || overHTTPS(r),
		SameSite: p.SameSite,
	}
	if p.SameSite == 0 {
		c.SameSite = http.SameSiteLaxMode
	}
	if expires.IsZero() {
		c.Value = ""
		c.Expires = time.Unix(0, 0).UTC()
		c.MaxAge = -1
		return c
	}
	c.Expires = expires.UTC()
	c.MaxAge = max(int(time.Until(expires).Seconds()), 0)
	return c
}

// setSessionCookie signs token and issues it as the session cookie.
func (h *Handler) setSessionCookie(w http.ResponseWriter, r *http.Request, token string, expires time.Time) {
	if token == "" {
		return
	}
	value := token
	if h.Signer != nil {
		value = h.Signer.Sign(token)
	}
	http.SetCookie(w, h.SessionCookiePolicy.cookie(r, value, expires))
}

// ClearSessionCookie tells the browser to drop the session cookie.
func (h *Handler) ClearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.SessionCookiePolicy.cookie(r, "", time.Time{}))
}

// sessionToken returns the verified token from the session cookie. Unsigned
// or tampered cookies yield no token.
func (h *Handler) sessionToken(r *http.Request) (string, bool) {
	c, err := r.Cookie(SessionCookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	if h.Signer == nil {
		return c.Value, true
	}
	token, err := h.Signer.Verify(c.Value)
	return token, err == nil
}

func overHTTPS(r *http.Request) bool {
	switch {
	case r == nil:
		return false
	case r.TLS != nil:
		return true
	case r.URL != nil && strings.EqualFold(r.URL.Scheme, "https"):
		return true
	}
	for _, proto := range strings.Split(r.Header.Get("X-Forwarded-Proto"), ",") {
		if strings.EqualFold(strings.TrimSpace(proto), "https") {
			return true
		}
	}
	return false
}
