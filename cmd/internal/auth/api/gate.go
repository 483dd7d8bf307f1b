package api

import (
	"net/http"

	"vidtube/cmd/internal/auth/session"
)

type authedFunc func(w http.ResponseWriter, r *http.Request, id session.Identity)

// authed resolves the caller and passes the identity to next explicitly.
func (h *Handler) authed(next authedFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := h.svc.Authenticate(r.Context(), h.accessToken(r))
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		next(w, r, id)
	}
}
