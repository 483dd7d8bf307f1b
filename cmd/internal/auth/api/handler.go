package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"time"

	"vidtube/cmd/identity"
	"vidtube/cmd/internal/auth/session"
)

// Uploader stores an image and returns the URL it is served from.
type Uploader interface {
	Upload(ctx context.Context, kind, filename, contentType string, body io.Reader, size int64) (string, error)
}

// Handler serves the account and session routes.
type Handler struct {
	log      *slog.Logger
	cfg      Config
	svc      *session.Service
	throttle *LoginThrottle
	audit    *Auditor
	uploads  Uploader
	now      func() time.Time
}

type HandlerOption func(*Handler)

// WithThrottle enables login throttling.
func WithThrottle(t *LoginThrottle) HandlerOption {
	return func(h *Handler) {
		h.throttle = t
	}
}

func WithAuditor(a *Auditor) HandlerOption {
	return func(h *Handler) {
		h.audit = a
	}
}

// WithUploader enables avatar and cover image uploads.
func WithUploader(u Uploader) HandlerOption {
	return func(h *Handler) {
		h.uploads = u
	}
}

// WithHandlerClock overrides the clock used for throttling.
func WithHandlerClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

func NewHandler(log *slog.Logger, cfg Config, svc *session.Service, opts ...HandlerOption) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("auth api: session service is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultConfig().MaxUploadBytes
	}
	cfg.Prefix = normalizePrefix(cfg.Prefix)

	h := &Handler{
		log: log,
		cfg: cfg,
		svc: svc,
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Register mounts the routes under the configured prefix.
func (h *Handler) Register(mux *http.ServeMux) {
	p := h.cfg.Prefix + "/users"

	mux.HandleFunc("POST "+p+"/register", h.handleRegister)
	mux.HandleFunc("POST "+p+"/login", h.handleLogin)
	mux.HandleFunc("POST "+p+"/refresh-token", h.handleRefresh)

	mux.HandleFunc("POST "+p+"/logout", h.authed(h.handleLogout))
	mux.HandleFunc("GET "+p+"/current-user", h.authed(h.handleCurrentUser))
	mux.HandleFunc("POST "+p+"/change-password", h.authed(h.handleChangePassword))
	mux.HandleFunc("PATCH "+p+"/update-account", h.authed(h.handleUpdateAccount))
	mux.HandleFunc("PATCH "+p+"/avatar", h.authed(h.handleAvatar))
	mux.HandleFunc("PATCH "+p+"/cover-image", h.authed(h.handleCoverImage))
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in session.RegisterInput
	if isMultipart(r) {
		var ok bool
		in, ok = h.readRegisterForm(w, r)
		if !ok {
			return
		}
	} else {
		var req registerRequest
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			h.writeDecodeError(w, err)
			return
		}
		in = session.RegisterInput{
			Username:   req.Username,
			Email:      req.Email,
			FullName:   req.FullName,
			Password:   req.Password,
			Avatar:     strings.TrimSpace(req.Avatar),
			CoverImage: strings.TrimSpace(req.CoverImage),
		}
	}

	ip, ua := clientIP(r, h.cfg.TrustProxy), r.UserAgent()
	ident := loginIdentifier(in.Username, in.Email)

	profile, err := h.svc.Register(r.Context(), in)
	if err != nil {
		_, code := statusFor(err)
		h.audit.registerResult(r.Context(), "", ident, code, ip, ua)
		h.writeServiceError(w, r, err)
		return
	}
	h.audit.registerResult(r.Context(), profile.ID, ident, "", ip, ua)
	writeJSON(w, http.StatusCreated, userEnvelope{User: toUserResponse(profile)})
}

// readRegisterForm reads the multipart registration form and uploads any
// attached images. It writes the error response itself and reports false.
func (h *Handler) readRegisterForm(w http.ResponseWriter, r *http.Request) (session.RegisterInput, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 2*h.cfg.MaxUploadBytes+h.cfg.MaxBodyBytes)
	if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_form", "invalid multipart form")
		return session.RegisterInput{}, false
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	in := session.RegisterInput{
		Username:   r.FormValue("username"),
		Email:      r.FormValue("email"),
		FullName:   r.FormValue("fullName"),
		Password:   r.FormValue("password"),
		Avatar:     strings.TrimSpace(r.FormValue("avatar")),
		CoverImage: strings.TrimSpace(r.FormValue("coverImage")),
	}

	for _, f := range []struct {
		field string
		dst   *string
	}{
		{"avatar", &in.Avatar},
		{"coverImage", &in.CoverImage},
	} {
		url, found, ok := h.uploadFormFile(w, r, f.field)
		if !ok {
			return session.RegisterInput{}, false
		}
		if found {
			*f.dst = url
		}
	}
	return in, true
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.writeDecodeError(w, err)
		return
	}

	ctx := r.Context()
	ip, ua := clientIP(r, h.cfg.TrustProxy), r.UserAgent()
	ident := loginIdentifier(req.Username, req.Email)
	now := h.now()

	blocked, retry, err := h.throttle.Check(ctx, ip, ident, now)
	if err != nil {
		// Fail open.
		h.log.Warn("auth.login.throttle_unavailable", "err", err)
	}
	if blocked {
		h.audit.loginRateLimited(ctx, ident, ip, ua, retry)
		writeRateLimited(w, retry)
		return
	}

	res, err := h.svc.Login(ctx, session.LoginInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		_, code := statusFor(err)
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrInvalidCredentials) {
			if rerr := h.throttle.RecordFailure(ctx, ip, ident, now); rerr != nil {
				h.log.Warn("auth.login.throttle_record_failed", "err", rerr)
			}
		}
		h.audit.loginResult(ctx, "", ident, code, ip, ua)
		h.writeServiceError(w, r, err)
		return
	}

	if err := h.throttle.Reset(ctx, ident); err != nil {
		h.log.Warn("auth.login.throttle_reset_failed", "err", err)
	}
	h.audit.loginResult(ctx, res.Account.ID, ident, "", ip, ua)

	h.setSessionCookies(w, res.Tokens)
	writeJSON(w, http.StatusOK, loginResponse{
		User:           toUserResponse(res.Account),
		tokensResponse: toTokensResponse(res.Tokens),
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	raw := cookieValue(r, h.cfg.RefreshCookieName)
	if raw == "" {
		// A body that is not a refresh request carries no token; the
		// service then reports it as unauthorized.
		var req refreshRequest
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err == nil {
			raw = req.RefreshToken
		}
	}

	ip, ua := clientIP(r, h.cfg.TrustProxy), r.UserAgent()

	pair, err := h.svc.Refresh(r.Context(), raw)
	if err != nil {
		_, code := statusFor(err)
		h.audit.refreshResult(r.Context(), code, ip, ua)
		if errors.Is(err, session.ErrTokenReuseDetected) {
			h.clearSessionCookies(w)
		}
		h.writeServiceError(w, r, err)
		return
	}
	h.audit.refreshResult(r.Context(), "", ip, ua)

	h.setSessionCookies(w, pair)
	writeJSON(w, http.StatusOK, toTokensResponse(pair))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request, id session.Identity) {
	if err := h.svc.Logout(r.Context(), id.ID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.audit.logout(r.Context(), id.ID, clientIP(r, h.cfg.TrustProxy), r.UserAgent())

	h.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: "user logged out"})
}

func (h *Handler) handleCurrentUser(w http.ResponseWriter, r *http.Request, id session.Identity) {
	writeJSON(w, http.StatusOK, userEnvelope{User: toUserResponse(id.Profile)})
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request, id session.Identity) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.writeDecodeError(w, err)
		return
	}

	ip, ua := clientIP(r, h.cfg.TrustProxy), r.UserAgent()
	if err := h.svc.ChangePassword(r.Context(), id.ID, req.OldPassword, req.NewPassword); err != nil {
		_, code := statusFor(err)
		h.audit.passwordChanged(r.Context(), id.ID, code, ip, ua)
		h.writeServiceError(w, r, err)
		return
	}
	h.audit.passwordChanged(r.Context(), id.ID, "", ip, ua)
	writeJSON(w, http.StatusOK, messageResponse{Message: "password changed"})
}

func (h *Handler) handleUpdateAccount(w http.ResponseWriter, r *http.Request, id session.Identity) {
	var req updateAccountRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.writeDecodeError(w, err)
		return
	}

	profile, err := h.svc.UpdateAccount(r.Context(), id.ID, req.FullName, req.Email)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userEnvelope{User: toUserResponse(profile)})
}

func (h *Handler) handleAvatar(w http.ResponseWriter, r *http.Request, id session.Identity) {
	h.handleImage(w, r, id, "avatar", h.svc.UpdateAvatar)
}

func (h *Handler) handleCoverImage(w http.ResponseWriter, r *http.Request, id session.Identity) {
	h.handleImage(w, r, id, "coverImage", h.svc.UpdateCoverImage)
}

type imageUpdate func(ctx context.Context, accountID, url string) (identity.Profile, error)

func (h *Handler) handleImage(w http.ResponseWriter, r *http.Request, id session.Identity, field string, update imageUpdate) {
	if !isMultipart(r) {
		writeError(w, http.StatusBadRequest, "invalid_form", field+" file is required")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes+h.cfg.MaxBodyBytes)
	if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_form", "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	url, found, ok := h.uploadFormFile(w, r, field)
	if !ok {
		return
	}
	if !found {
		writeError(w, http.StatusBadRequest, "validation_error", field+" file is required")
		return
	}

	profile, err := update(r.Context(), id.ID, url)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userEnvelope{User: toUserResponse(profile)})
}

// uploadFormFile uploads the image in field if one was sent. found reports
// whether the form carried the file; ok is false once an error response has
// been written.
func (h *Handler) uploadFormFile(w http.ResponseWriter, r *http.Request, field string) (url string, found, ok bool) {
	file, hdr, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return "", false, true
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_form", "invalid "+field+" file")
		return "", false, false
	}
	defer func() { _ = file.Close() }()

	if h.uploads == nil {
		w.Header().Set("Retry-After", retryAfterUnavailable)
		writeError(w, http.StatusServiceUnavailable, "unavailable", "file uploads are not configured")
		return "", true, false
	}
	if hdr.Size <= 0 || hdr.Size > h.cfg.MaxUploadBytes {
		writeError(w, http.StatusBadRequest, "validation_error", field+" file size is invalid")
		return "", true, false
	}

	contentType, err := sniffImage(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", field+" must be an image")
		return "", true, false
	}

	url, err = h.uploads.Upload(r.Context(), field, hdr.Filename, contentType, file, hdr.Size)
	if err != nil {
		h.log.Warn("auth.upload.failed", "field", field, "err", err)
		w.Header().Set("Retry-After", retryAfterUnavailable)
		writeError(w, http.StatusServiceUnavailable, "unavailable", "error while uploading "+field)
		return "", true, false
	}
	return url, true, true
}

// sniffImage detects the content type from the first bytes of f and rewinds it.
func sniffImage(f multipart.File) (string, error) {
	buf := make([]byte, 512)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	ct := http.DetectContentType(buf[:n])
	if !strings.HasPrefix(ct, "image/") {
		return "", errors.New("not an image: " + ct)
	}
	return ct, nil
}

func (h *Handler) writeDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, errEmptyBody):
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is required")
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
	default:
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON body")
	}
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
