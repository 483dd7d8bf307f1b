package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"vidtube/cmd/identity"
	"vidtube/cmd/internal/auth/session"
	"vidtube/cmd/security/password"
)

const testPassword = "c0rrect-Horse-battery"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type upload struct {
	kind        string
	filename    string
	contentType string
	body        []byte
}

type fakeUploader struct {
	mu    sync.Mutex
	calls []upload
	err   error
}

func (u *fakeUploader) Upload(_ context.Context, kind, filename, contentType string, body io.Reader, _ int64) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	u.mu.Lock()
	u.calls = append(u.calls, upload{kind: kind, filename: filename, contentType: contentType, body: b})
	u.mu.Unlock()
	return "https://cdn.vidtube.test/" + kind + "/" + filename, nil
}

type testEnv struct {
	h     *Handler
	mux   *http.ServeMux
	clock *fakeClock
	store *identity.MemoryStore
	audit *Auditor
}

func newTestEnv(t *testing.T, cfg Config, opts ...HandlerOption) *testEnv {
	t.Helper()

	clock := &fakeClock{now: time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)}
	store := identity.NewMemoryStore()

	scfg := session.DefaultConfig()
	scfg.AccessTokenSecret = strings.Repeat("a", 32)
	scfg.RefreshTokenSecret = strings.Repeat("r", 32)

	hasher := password.DefaultConfig()
	hasher.Params.MemoryKiB = 1024
	hasher.Params.Iterations = 1
	hasher.Params.Parallelism = 1

	svc, err := session.NewService(scfg, store, hasher, session.WithServiceClock(clock.Now))
	require.NoError(t, err)

	audit, err := NewAuditor(nil, prometheus.NewRegistry())
	require.NoError(t, err)

	opts = append([]HandlerOption{WithAuditor(audit), WithHandlerClock(clock.Now)}, opts...)
	h, err := NewHandler(nil, cfg, svc, opts...)
	require.NoError(t, err)

	mux := http.NewServeMux()
	h.Register(mux)
	return &testEnv{h: h, mux: mux, clock: clock, store: store, audit: audit}
}

func (e *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.mux.ServeHTTP(rr, req)
	return rr
}

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()

	var r io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartRequest(t *testing.T, method, path string, fields map[string]string, files map[string][]byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for field, data := range files {
		fw, err := mw.CreateFormFile(field, field+".png")
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[errorResponse](t, rr).Error.Code
}

func pngBytes() []byte {
	return append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0x42}, 64)...)
}

func responseCookies(rr *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range rr.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func (e *testEnv) register(t *testing.T, username, email string) userResponse {
	t.Helper()

	rr := e.serve(jsonRequest(t, http.MethodPost, "/api/v1/users/register", registerRequest{
		Username: username,
		Email:    email,
		FullName: "Test User",
		Password: testPassword,
	}))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decodeBody[userEnvelope](t, rr).User
}

func (e *testEnv) login(t *testing.T, username string) (loginResponse, map[string]*http.Cookie) {
	t.Helper()

	rr := e.serve(jsonRequest(t, http.MethodPost, "/api/v1/users/login", loginRequest{
		Username: username,
		Password: testPassword,
	}))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return decodeBody[loginResponse](t, rr), responseCookies(rr)
}

func withBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestNewHandlerRequiresService(t *testing.T) {
	_, err := NewHandler(nil, DefaultConfig(), nil)
	require.Error(t, err)
}

func TestRegisterJSON(t *testing.T) {
	defer goleak.VerifyNone(t)
	env := newTestEnv(t, DefaultConfig())

	rr := env.serve(jsonRequest(t, http.MethodPost, "/api/v1/users/register", registerRequest{
		Username: "  Alice ",
		Email:    "Alice@Example.com",
		FullName: "Alice Liddell",
		Password: testPassword,
		Avatar:   "https://img.test/a.png",
	}))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	user := decodeBody[userEnvelope](t, rr).User
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, "https://img.test/a.png", user.Avatar)
	assert.Equal(t, "", user.CoverImage)
	assert.NotContains(t, rr.Body.String(), "password")
	assert.NotContains(t, rr.Body.String(), "refresh")

	assert.Equal(t, 1.0, testutil.ToFloat64(env.audit.events.WithLabelValues("auth.register", "success")))
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	env.register(t, "alice", "alice@example.com")

	rr := env.serve(jsonRequest(t, http.MethodPost, "/api/v1/users/register", registerRequest{
		Username: "bob",
		Email:    "ALICE@example.com",
		FullName: "Bob",
		Password: testPassword,
	}))
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "duplicate_account", errorCode(t, rr))
}

func TestRegisterBadBodies(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	tests := []struct {
		name string
		body string
		code string
	}{
		{"empty", "", "invalid_json"},
		{"garbage", "{not json", "invalid_json"},
		{"unknown field", `{"username":"a","isAdmin":true}`, "invalid_json"},
		{"missing fields", `{"username":"a"}`, "validation_error"},
		{"short password", `{"username":"a","email":"a@x.io","fullName":"A","password":"short"}`, "validation_error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/users/register", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			rr := env.serve(req)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, tc.code, errorCode(t, rr))
		})
	}
}

func TestRegisterBodyTooLarge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBodyBytes = 64
	env := newTestEnv(t, cfg)

	rr := env.serve(jsonRequest(t, http.MethodPost, "/api/v1/users/register", registerRequest{
		Username: "alice",
		Email:    "alice@example.com",
		FullName: strings.Repeat("x", 200),
		Password: testPassword,
	}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestRegisterMultipartUploadsImages(t *testing.T) {
	up := &fakeUploader{}
	env := newTestEnv(t, DefaultConfig(), WithUploader(up))

	rr := env.serve(multipartRequest(t, http.MethodPost, "/api/v1/users/register",
		map[string]string{
			"username": "carol",
			"email":    "carol@example.com",
			"fullName": "Carol",
			"password": testPassword,
		},
		map[string][]byte{"avatar": pngBytes(), "coverImage": pngBytes()},
	))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	user := decodeBody[userEnvelope](t, rr).User
	assert.Equal(t, "https://cdn.vidtube.test/avatar/avatar.png", user.Avatar)
	assert.Equal(t, "https://cdn.vidtube.test/coverImage/coverImage.png", user.CoverImage)

	require.Len(t, up.calls, 2)
	for _, c := range up.calls {
		assert.Equal(t, "image/png", c.contentType)
		assert.Equal(t, pngBytes(), c.body)
	}
}

func TestRegisterMultipartWithoutUploader(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	rr := env.serve(multipartRequest(t, http.MethodPost, "/api/v1/users/register",
		map[string]string{"username": "dan", "email": "dan@example.com", "fullName": "Dan", "password": testPassword},
		map[string][]byte{"avatar": pngBytes()},
	))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, retryAfterUnavailable, rr.Header().Get("Retry-After"))

	_, err := env.store.FindByUsernameOrEmail(context.Background(), "dan", "")
	assert.True(t, identity.IsNotFound(err), "no account is created when the upload fails")
}

func TestLoginSetsCookies(t *testing.T) {
	defer goleak.VerifyNone(t)
	env := newTestEnv(t, DefaultConfig())
	created := env.register(t, "alice", "alice@example.com")

	res, cookies := env.login(t, "alice")
	assert.Equal(t, created.ID, res.User.ID)
	require.NotEmpty(t, res.AccessToken)
	require.NotEmpty(t, res.RefreshToken)

	require.Contains(t, cookies, "accessToken")
	require.Contains(t, cookies, "refreshToken")
	assert.Equal(t, res.AccessToken, cookies["accessToken"].Value)
	assert.Equal(t, res.RefreshToken, cookies["refreshToken"].Value)
	assert.True(t, cookies["refreshToken"].HttpOnly)
	assert.True(t, cookies["refreshToken"].Secure)

	a, err := env.store.FindByID(context.Background(), created.ID)
	require.NoError(t, err)
	require.NotNil(t, a.RefreshTokenHash)
	assert.NotEqual(t, res.RefreshToken, *a.RefreshTokenHash, "only a digest is stored")
}

func TestLoginByEmail(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	env.register(t, "alice", "alice@example.com")

	rr := env.serve(jsonRequest(t, http.MethodPost, "/api/v1/users/login", loginRequest{
		Email:    "ALICE@example.com",
		Password: testPassword,
	}))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestLoginFailures(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	env.register(t, "alice", "alice@example.com")

	rr := env.serve(jsonRequest(t, http.MethodPost, "/api/v1/users/login", loginRequest{Username: "nobody", Password: testPassword}))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "user does not exist", decodeBody[errorResponse](t, rr).Error.Message)

	rr = env.serve(jsonRequest(t, http.MethodPost, "/api/v1/users/login", loginRequest{Username: "alice", Password: "wrong-password-1"}))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "invalid_credentials", errorCode(t, rr))
	assert.Empty(t, rr.Result().Cookies())

	rr = env.serve(jsonRequest(t, http.MethodPost, "/api/v1/users/login", loginRequest{Password: testPassword}))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	assert.Equal(t, 3.0, testutil.ToFloat64(env.audit.events.WithLabelValues("auth.login", "failed")))
}

func TestLoginThrottled(t *testing.T) {
	_, rdb := newTestRedis(t)

	cfg := DefaultConfig()
	cfg.LockoutShortThreshold = 2
	cfg.LockoutShortDuration = 5 * time.Minute
	env := newTestEnv(t, cfg, WithThrottle(NewLoginThrottle(rdb, cfg)))
	env.register(t, "alice", "alice@example.com")

	for i := 0; i < 2; i++ {
		rr := env.serve(jsonRequest(t, http.MethodPost, "/api/v1/users/login", loginRequest{Username: "alice", Password: "wrong-password-1"}))
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	}

	rr := env.serve(jsonRequest(t, http.MethodPost, "/api/v1/users/login", loginRequest{Username: "alice", Password: testPassword}))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "300", rr.Header().Get("Retry-After"))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.audit.events.WithLabelValues("auth.login", "rate_limited")))

	env.clock.Advance(5*time.Minute + time.Second)
	rr = env.serve(jsonRequest(t, http.MethodPost, "/api/v1/users/login", loginRequest{Username: "alice", Password: testPassword}))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCurrentUser(t *testing.T) {
	defer goleak.VerifyNone(t)
	env := newTestEnv(t, DefaultConfig())
	created := env.register(t, "alice", "alice@example.com")
	res, cookies := env.login(t, "alice")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/current-user", nil)
	req.AddCookie(cookies["accessToken"])
	rr := env.serve(req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, created.ID, decodeBody[userEnvelope](t, rr).User.ID)

	rr = env.serve(withBearer(httptest.NewRequest(http.MethodGet, "/api/v1/users/current-user", nil), res.AccessToken))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = env.serve(httptest.NewRequest(http.MethodGet, "/api/v1/users/current-user", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "unauthorized", errorCode(t, rr))

	rr = env.serve(withBearer(httptest.NewRequest(http.MethodGet, "/api/v1/users/current-user", nil), res.RefreshToken))
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "refresh tokens are not access tokens")

	env.clock.Advance(16 * time.Minute)
	rr = env.serve(withBearer(httptest.NewRequest(http.MethodGet, "/api/v1/users/current-user", nil), res.AccessToken))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "expired_token", errorCode(t, rr))
}

func TestRefreshRotatesAndDetectsReuse(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	env.register(t, "alice", "alice@example.com")
	_, cookies := env.login(t, "alice")
	first := cookies["refreshToken"]

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh-token", nil)
	req.AddCookie(first)
	rr := env.serve(req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rotated := decodeBody[tokensResponse](t, rr)
	assert.NotEqual(t, first.Value, rotated.RefreshToken)
	assert.Equal(t, rotated.RefreshToken, responseCookies(rr)["refreshToken"].Value)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh-token", nil)
	req.AddCookie(first)
	rr = env.serve(req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "token_reuse_detected", errorCode(t, rr))
	assert.Equal(t, -1, responseCookies(rr)["refreshToken"].MaxAge)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.audit.events.WithLabelValues("auth.refresh", "reuse_detected")))

	rr = env.serve(jsonRequest(t, http.MethodPost, "/api/v1/users/refresh-token", refreshRequest{RefreshToken: rotated.RefreshToken}))
	assert.Equal(t, http.StatusOK, rr.Code, "reuse detection leaves the current token valid")
}

func TestRefreshWithoutToken(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	rr := env.serve(httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh-token", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.serve(jsonRequest(t, http.MethodPost, "/api/v1/users/refresh-token", refreshRequest{RefreshToken: "not-a-jwt"}))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "invalid_token", errorCode(t, rr))

	for name, body := range map[string]string{
		"form encoded":  "refreshToken=abc",
		"trailing data": `{"refreshToken":"abc"} {}`,
		"unknown field": `{"token":"abc"}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh-token", strings.NewReader(body))
		rr = env.serve(req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, name)
		assert.Equal(t, "unauthorized", errorCode(t, rr), name)
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	env.register(t, "alice", "alice@example.com")
	res, _ := env.login(t, "alice")

	rr := env.serve(withBearer(httptest.NewRequest(http.MethodPost, "/api/v1/users/logout", nil), res.AccessToken))
	require.Equal(t, http.StatusOK, rr.Code)
	cookies := responseCookies(rr)
	assert.Equal(t, -1, cookies["accessToken"].MaxAge)
	assert.Equal(t, -1, cookies["refreshToken"].MaxAge)

	rr = env.serve(jsonRequest(t, http.MethodPost, "/api/v1/users/refresh-token", refreshRequest{RefreshToken: res.RefreshToken}))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.serve(withBearer(httptest.NewRequest(http.MethodPost, "/api/v1/users/logout", nil), res.AccessToken))
	assert.Equal(t, http.StatusOK, rr.Code, "logout is idempotent")

	rr = env.serve(httptest.NewRequest(http.MethodPost, "/api/v1/users/logout", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	env.register(t, "alice", "alice@example.com")
	res, _ := env.login(t, "alice")

	rr := env.serve(withBearer(jsonRequest(t, http.MethodPost, "/api/v1/users/change-password",
		changePasswordRequest{OldPassword: "not-the-password", NewPassword: "n3w-Secret-value"}), res.AccessToken))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "invalid old password", decodeBody[errorResponse](t, rr).Error.Message)

	rr = env.serve(withBearer(jsonRequest(t, http.MethodPost, "/api/v1/users/change-password",
		changePasswordRequest{OldPassword: testPassword, NewPassword: "n3w-Secret-value"}), res.AccessToken))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = env.serve(jsonRequest(t, http.MethodPost, "/api/v1/users/login", loginRequest{Username: "alice", Password: "n3w-Secret-value"}))
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = env.serve(jsonRequest(t, http.MethodPost, "/api/v1/users/login", loginRequest{Username: "alice", Password: testPassword}))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestUpdateAccount(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	env.register(t, "alice", "alice@example.com")
	env.register(t, "bob", "bob@example.com")
	res, _ := env.login(t, "alice")

	rr := env.serve(withBearer(jsonRequest(t, http.MethodPatch, "/api/v1/users/update-account",
		updateAccountRequest{FullName: "Alice L.", Email: "Alice.L@example.com"}), res.AccessToken))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	user := decodeBody[userEnvelope](t, rr).User
	assert.Equal(t, "Alice L.", user.FullName)
	assert.Equal(t, "alice.l@example.com", user.Email)

	rr = env.serve(withBearer(jsonRequest(t, http.MethodPatch, "/api/v1/users/update-account",
		updateAccountRequest{FullName: "Alice"}), res.AccessToken))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.serve(withBearer(jsonRequest(t, http.MethodPatch, "/api/v1/users/update-account",
		updateAccountRequest{FullName: "Alice", Email: "bob@example.com"}), res.AccessToken))
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestImageUploads(t *testing.T) {
	up := &fakeUploader{}
	env := newTestEnv(t, DefaultConfig(), WithUploader(up))
	env.register(t, "alice", "alice@example.com")
	res, _ := env.login(t, "alice")

	rr := env.serve(withBearer(multipartRequest(t, http.MethodPatch, "/api/v1/users/avatar",
		nil, map[string][]byte{"avatar": pngBytes()}), res.AccessToken))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "https://cdn.vidtube.test/avatar/avatar.png", decodeBody[userEnvelope](t, rr).User.Avatar)

	rr = env.serve(withBearer(multipartRequest(t, http.MethodPatch, "/api/v1/users/cover-image",
		nil, map[string][]byte{"coverImage": pngBytes()}), res.AccessToken))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "https://cdn.vidtube.test/coverImage/coverImage.png", decodeBody[userEnvelope](t, rr).User.CoverImage)

	rr = env.serve(withBearer(multipartRequest(t, http.MethodPatch, "/api/v1/users/avatar",
		nil, map[string][]byte{"avatar": []byte("just some text, not an image")}), res.AccessToken))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.serve(withBearer(multipartRequest(t, http.MethodPatch, "/api/v1/users/avatar",
		map[string]string{"other": "x"}, nil), res.AccessToken))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.serve(withBearer(jsonRequest(t, http.MethodPatch, "/api/v1/users/avatar", map[string]string{"avatar": "x"}), res.AccessToken))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	up.err = errors.New("bucket gone")
	rr = env.serve(withBearer(multipartRequest(t, http.MethodPatch, "/api/v1/users/avatar",
		nil, map[string][]byte{"avatar": pngBytes()}), res.AccessToken))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestStoreUnavailable(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := jsonRequest(t, http.MethodPost, "/api/v1/users/register", registerRequest{
		Username: "alice",
		Email:    "alice@example.com",
		FullName: "Alice",
		Password: testPassword,
	}).WithContext(ctx)
	rr := env.serve(req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, retryAfterUnavailable, rr.Header().Get("Retry-After"))
	assert.Equal(t, "unavailable", errorCode(t, rr))
}

func TestAuthedPassesIdentity(t *testing.T) {
	defer goleak.VerifyNone(t)
	env := newTestEnv(t, DefaultConfig())
	created := env.register(t, "alice", "alice@example.com")
	res, _ := env.login(t, "alice")

	var got session.Identity
	h := env.h.authed(func(w http.ResponseWriter, r *http.Request, id session.Identity) {
		got = id
		w.WriteHeader(http.StatusNoContent)
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, withBearer(httptest.NewRequest(http.MethodGet, "/", nil), res.AccessToken))
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, created.ID, got.ID)
	assert.NotEmpty(t, got.TokenID)

	got = session.Identity{}
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, got.ID)
}
