package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"vidtube/cmd/identity"
	"vidtube/cmd/security/password"
	"vidtube/cmd/security/token"
)

// Service implements registration, login, logout, refresh rotation and the
// authentication gate on top of an identity.Store.
//
// It holds no per-account state; every call re-reads the store.
type Service struct {
	cfg    Config
	codec  *Codec
	store  identity.Store
	hasher password.Config
	digest token.Digester
	now    func() time.Time
	log    *slog.Logger

	// dummyHash is verified when an account is missing so that unknown
	// identifiers cost about as much as a wrong password.
	dummyHash string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceClock sets the time source for the service and its codec.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// TokenPair is the result of login or refresh.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// RegisterInput carries registration fields. Password is plaintext.
type RegisterInput struct {
	Username   string
	Email      string
	FullName   string
	Password   string
	Avatar     string
	CoverImage string
}

// LoginInput identifies the account by username or email.
type LoginInput struct {
	Username string
	Email    string
	Password string
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Account identity.Profile
	Tokens  TokenPair
}

// NewService constructs a Service. cfg is validated and copied.
func NewService(cfg Config, store identity.Store, hasher password.Config, opts ...ServiceOption) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("session: nil store")
	}

	s := &Service{
		cfg:    cfg,
		store:  store,
		hasher: hasher,
		digest: token.NewDigester(cfg.RefreshDigestKey),
		now:    time.Now,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	codec, err := NewCodec(cfg, WithClock(s.now))
	if err != nil {
		return nil, err
	}
	s.codec = codec

	dummy, err := hasher.HashUnchecked("vidtube-timing-equalizer")
	if err != nil {
		return nil, fmt.Errorf("session: dummy hash: %w", err)
	}
	s.dummyHash = dummy

	return s, nil
}

// Codec returns the token codec used by the service.
func (s *Service) Codec() *Codec { return s.codec }

// Register creates an account and returns its sanitized profile.
func (s *Service) Register(ctx context.Context, in RegisterInput) (identity.Profile, error) {
	const op = "session.Register"

	username := identity.NormalizeUsername(in.Username)
	email := identity.NormalizeEmail(in.Email)
	fullName := strings.TrimSpace(in.FullName)

	switch {
	case username == "":
		return identity.Profile{}, fail(op, ErrValidation, "username is required")
	case email == "":
		return identity.Profile{}, fail(op, ErrValidation, "email is required")
	case fullName == "":
		return identity.Profile{}, fail(op, ErrValidation, "fullName is required")
	case strings.TrimSpace(in.Password) == "":
		return identity.Profile{}, fail(op, ErrValidation, "password is required")
	}
	if err := s.hasher.Validate(in.Password); err != nil {
		return identity.Profile{}, failWrap(op, ErrValidation, policyMessage(err), err)
	}

	_, err := s.findByUsernameOrEmail(ctx, username, email)
	switch {
	case err == nil:
		return identity.Profile{}, fail(op, ErrDuplicateAccount, "user with email or username already exists")
	case !identity.IsNotFound(err):
		return identity.Profile{}, storeErr(op, err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return identity.Profile{}, fmt.Errorf("%s: hash password: %w", op, err)
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	a, err := s.store.Create(sctx, identity.NewAccount{
		Username:     username,
		Email:        email,
		FullName:     fullName,
		Avatar:       in.Avatar,
		CoverImage:   in.CoverImage,
		PasswordHash: hash,
		Now:          s.now(),
	})
	if err != nil {
		if field, ok := identity.ConflictField(err); ok {
			return identity.Profile{}, failWrap(op, ErrDuplicateAccount, field+" already exists", err)
		}
		return identity.Profile{}, storeErr(op, err)
	}
	return a.Profile(), nil
}

// Login verifies credentials and starts a new session, replacing any
// previous refresh token of the account.
func (s *Service) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	const op = "session.Login"

	username := identity.NormalizeUsername(in.Username)
	email := identity.NormalizeEmail(in.Email)
	if username == "" && email == "" {
		return LoginResult{}, fail(op, ErrValidation, "username or email is required")
	}
	if in.Password == "" {
		return LoginResult{}, fail(op, ErrValidation, "password is required")
	}

	a, err := s.findByUsernameOrEmail(ctx, username, email)
	if err != nil {
		if identity.IsNotFound(err) {
			_ = s.hasher.Matches(s.dummyHash, in.Password)
			return LoginResult{}, fail(op, ErrNotFound, "user does not exist")
		}
		return LoginResult{}, storeErr(op, err)
	}

	if !s.hasher.Matches(a.PasswordHash, in.Password) {
		return LoginResult{}, fail(op, ErrInvalidCredentials, "invalid user credentials")
	}

	pair, err := s.issuePair(a)
	if err != nil {
		return LoginResult{}, fmt.Errorf("%s: issue tokens: %w", op, err)
	}

	digest := s.digest.Digest(pair.RefreshToken)
	if err := s.setRefreshDigest(ctx, a.ID, &digest); err != nil {
		return LoginResult{}, storeErr(op, err)
	}

	if s.hasher.NeedsRehash(a.PasswordHash) {
		s.rehash(ctx, a.ID, in.Password)
	}

	return LoginResult{Account: a.Profile(), Tokens: pair}, nil
}

// Logout clears the stored refresh token. Calling it again is a no-op.
func (s *Service) Logout(ctx context.Context, accountID string) error {
	const op = "session.Logout"

	err := s.setRefreshDigest(ctx, accountID, nil)
	if err != nil && !identity.IsNotFound(err) {
		return storeErr(op, err)
	}
	return nil
}

// ChangePassword replaces the password after checking the old one.
// The current refresh token stays valid.
func (s *Service) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	const op = "session.ChangePassword"

	if oldPassword == "" || strings.TrimSpace(newPassword) == "" {
		return fail(op, ErrValidation, "oldPassword and newPassword are required")
	}
	if err := s.hasher.Validate(newPassword); err != nil {
		return failWrap(op, ErrValidation, policyMessage(err), err)
	}

	a, err := s.findByID(ctx, accountID)
	if err != nil {
		if identity.IsNotFound(err) {
			return fail(op, ErrNotFound, "user does not exist")
		}
		return storeErr(op, err)
	}
	if !s.hasher.Matches(a.PasswordHash, oldPassword) {
		return fail(op, ErrInvalidCredentials, "invalid old password")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%s: hash password: %w", op, err)
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.UpdatePasswordHash(sctx, a.ID, hash, s.now()); err != nil {
		return storeErr(op, err)
	}
	return nil
}

// CurrentAccount returns the stored profile of accountID.
func (s *Service) CurrentAccount(ctx context.Context, accountID string) (identity.Profile, error) {
	const op = "session.CurrentAccount"

	a, err := s.findByID(ctx, accountID)
	if err != nil {
		if identity.IsNotFound(err) {
			return identity.Profile{}, fail(op, ErrNotFound, "user does not exist")
		}
		return identity.Profile{}, storeErr(op, err)
	}
	return a.Profile(), nil
}

// UpdateAccount changes full name and email. Both are required.
func (s *Service) UpdateAccount(ctx context.Context, accountID, fullName, email string) (identity.Profile, error) {
	const op = "session.UpdateAccount"

	fullName = strings.TrimSpace(fullName)
	email = identity.NormalizeEmail(email)
	if fullName == "" || email == "" {
		return identity.Profile{}, fail(op, ErrValidation, "fullName and email are required")
	}
	return s.updateProfile(ctx, op, accountID, identity.ProfileUpdate{FullName: &fullName, Email: &email})
}

// UpdateAvatar stores a new avatar reference.
func (s *Service) UpdateAvatar(ctx context.Context, accountID, url string) (identity.Profile, error) {
	const op = "session.UpdateAvatar"

	url = strings.TrimSpace(url)
	if url == "" {
		return identity.Profile{}, fail(op, ErrValidation, "avatar is required")
	}
	return s.updateProfile(ctx, op, accountID, identity.ProfileUpdate{Avatar: &url})
}

// UpdateCoverImage stores a new cover image reference.
func (s *Service) UpdateCoverImage(ctx context.Context, accountID, url string) (identity.Profile, error) {
	const op = "session.UpdateCoverImage"

	url = strings.TrimSpace(url)
	if url == "" {
		return identity.Profile{}, fail(op, ErrValidation, "coverImage is required")
	}
	return s.updateProfile(ctx, op, accountID, identity.ProfileUpdate{CoverImage: &url})
}

// ---- helpers ----

func (s *Service) updateProfile(ctx context.Context, op, accountID string, upd identity.ProfileUpdate) (identity.Profile, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	a, err := s.store.UpdateProfile(sctx, accountID, upd, s.now())
	if err != nil {
		switch {
		case identity.IsNotFound(err):
			return identity.Profile{}, fail(op, ErrNotFound, "user does not exist")
		case identity.IsConflict(err):
			return identity.Profile{}, failWrap(op, ErrDuplicateAccount, "email already exists", err)
		}
		return identity.Profile{}, storeErr(op, err)
	}
	return a.Profile(), nil
}

func (s *Service) issuePair(a identity.Account) (TokenPair, error) {
	access, accessExp, err := s.codec.IssueAccessToken(AccessSubject{
		AccountID: a.ID,
		Username:  a.Username,
		Email:     a.Email,
		FullName:  a.FullName,
	})
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.codec.IssueRefreshToken(a.ID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *Service) rehash(ctx context.Context, accountID, plain string) {
	hash, err := s.hasher.HashUnchecked(plain)
	if err != nil {
		s.log.Warn("auth.password.rehash_failed", "account_id", accountID, "err", err)
		return
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.UpdatePasswordHash(sctx, accountID, hash, s.now()); err != nil {
		s.log.Warn("auth.password.rehash_failed", "account_id", accountID, "err", err)
		return
	}
	s.log.Info("auth.password.rehashed", "account_id", accountID)
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.StoreTimeout)
}

func (s *Service) findByID(ctx context.Context, id string) (identity.Account, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.FindByID(sctx, id)
}

func (s *Service) findByUsernameOrEmail(ctx context.Context, username, email string) (identity.Account, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.FindByUsernameOrEmail(sctx, username, email)
}

func (s *Service) setRefreshDigest(ctx context.Context, id string, digest *string) error {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.UpdateRefreshToken(sctx, id, digest, s.now())
}

// storeErr maps store failures that no operation handles specially.
func storeErr(op string, err error) error {
	switch {
	case identity.IsUnavailable(err):
		return failWrap(op, ErrUnavailable, "service temporarily unavailable", err)
	case identity.IsInvalidInput(err):
		return failWrap(op, ErrValidation, "invalid input", err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func tokenErr(op string, err error) error {
	if errors.Is(err, ErrTokenExpired) {
		return failWrap(op, ErrExpiredToken, "token expired", err)
	}
	return failWrap(op, ErrInvalidToken, "invalid token", err)
}

func policyMessage(err error) string {
	switch {
	case errors.Is(err, password.ErrPasswordTooShort):
		return "password is too short"
	case errors.Is(err, password.ErrPasswordTooLong):
		return "password is too long"
	case errors.Is(err, password.ErrWeakPassword):
		return "password is too weak"
	}
	return "invalid password"
}
