package api

import (
	"net/http"
	"strings"
	"time"

	"vidtube/cmd/internal/auth/session"
)

// setSessionCookies stores both tokens as httpOnly cookies that expire with the tokens.
func (h *Handler) setSessionCookies(w http.ResponseWriter, pair session.TokenPair) {
	http.SetCookie(w, h.sessionCookie(h.cfg.AccessCookieName, pair.AccessToken, pair.AccessExpiresAt))
	http.SetCookie(w, h.sessionCookie(h.cfg.RefreshCookieName, pair.RefreshToken, pair.RefreshExpiresAt))
}

// clearSessionCookies tells the browser to drop both cookies.
func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{h.cfg.AccessCookieName, h.cfg.RefreshCookieName} {
		c := h.sessionCookie(name, "", time.Unix(0, 0).UTC())
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}

func (h *Handler) sessionCookie(name, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	}
}

func cookieValue(r *http.Request, name string) string {
	if name == "" {
		return ""
	}
	if c, err := r.Cookie(name); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
// The scheme is matched case-insensitively.
func bearerToken(r *http.Request) string {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}

// accessToken prefers the cookie and falls back to the Authorization header.
func (h *Handler) accessToken(r *http.Request) string {
	if v := cookieValue(r, h.cfg.AccessCookieName); v != "" {
		return v
	}
	return bearerToken(r)
}
