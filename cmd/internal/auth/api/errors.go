package api

import (
	"errors"
	"net/http"

	"vidtube/cmd/internal/auth/session"
	"vidtube/cmd/internal/errutil"
)

// retryAfterUnavailable is the Retry-After hint (seconds) sent with 503.
const retryAfterUnavailable = "5"

var errorKinds = []struct {
	kind   error
	status int
	code   string
}{
	{session.ErrValidation, http.StatusBadRequest, "validation_error"},
	{session.ErrDuplicateAccount, http.StatusConflict, "duplicate_account"},
	{session.ErrNotFound, http.StatusNotFound, "not_found"},
	{session.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{session.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{session.ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},
	{session.ErrExpiredToken, http.StatusUnauthorized, "expired_token"},
	{session.ErrTokenReuseDetected, http.StatusUnauthorized, "token_reuse_detected"},
	{session.ErrUnavailable, http.StatusServiceUnavailable, "unavailable"},
}

// statusFor maps a service error to its HTTP status and stable code.
func statusFor(err error) (int, string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.kind) {
			return k.status, k.code
		}
	}
	return http.StatusInternalServerError, "server_error"
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)

	msg := session.Message(err)
	switch status {
	case http.StatusInternalServerError:
		errutil.LogError(h.log, "http.handler.fail", err, "path", r.URL.Path)
		msg = "internal server error"
	case http.StatusServiceUnavailable:
		h.log.Warn("http.handler.unavailable", "path", r.URL.Path, "err", err)
		w.Header().Set("Retry-After", retryAfterUnavailable)
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	writeError(w, status, code, msg)
}
