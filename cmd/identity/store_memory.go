package identity

import (
	"context"
	"sync"
	"time"

	"vidtube/cmd/identity/ids"
)

// MemoryStore is an in-process Store for tests and local development.
// It applies the same normalization, uniqueness and CAS rules as PostgresStore.
type MemoryStore struct {
	mu       sync.Mutex
	byID     map[string]Account
	username map[string]string
	email    map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]Account),
		username: make(map[string]string),
		email:    make(map[string]string),
	}
}

func (s *MemoryStore) FindByUsernameOrEmail(ctx context.Context, username, email string) (Account, error) {
	const op = "identity.FindByUsernameOrEmail"
	if err := ctxErr(op, ctx); err != nil {
		return Account{}, err
	}

	username = NormalizeUsername(username)
	email = NormalizeEmail(email)
	if username == "" && email == "" {
		return Account{}, invalid(op, "username or email is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if username != "" {
		if id, ok := s.username[username]; ok {
			return cloneAccount(s.byID[id]), nil
		}
	}
	if email != "" {
		if id, ok := s.email[email]; ok {
			return cloneAccount(s.byID[id]), nil
		}
	}
	return Account{}, notFound(op)
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (Account, error) {
	const op = "identity.FindByID"
	if err := ctxErr(op, ctx); err != nil {
		return Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return Account{}, notFound(op)
	}
	return cloneAccount(a), nil
}

func (s *MemoryStore) Create(ctx context.Context, in NewAccount) (Account, error) {
	const op = "identity.Create"
	if err := ctxErr(op, ctx); err != nil {
		return Account{}, err
	}

	a, err := prepareAccount(op, in)
	if err != nil {
		return Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.username[a.Username]; taken {
		return Account{}, conflict(op, "username")
	}
	if _, taken := s.email[a.Email]; taken {
		return Account{}, conflict(op, "email")
	}

	s.byID[a.ID] = a
	s.username[a.Username] = a.ID
	s.email[a.Email] = a.ID
	return cloneAccount(a), nil
}

func (s *MemoryStore) UpdateRefreshToken(ctx context.Context, id string, digest *string, now time.Time) error {
	const op = "identity.UpdateRefreshToken"
	if err := ctxErr(op, ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return notFound(op)
	}
	a.RefreshTokenHash = cloneString(digest)
	a.UpdatedAt = nowUTC(now)
	s.byID[id] = a
	return nil
}

func (s *MemoryStore) SwapRefreshToken(ctx context.Context, id string, prev string, next *string, now time.Time) error {
	const op = "identity.SwapRefreshToken"
	if err := ctxErr(op, ctx); err != nil {
		return err
	}
	if !ids.Valid(id) {
		return notFound(op)
	}
	if prev == "" {
		return invalid(op, "missing previous refresh digest")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok || a.RefreshTokenHash == nil || *a.RefreshTokenHash != prev {
		return staleRefresh(op)
	}
	a.RefreshTokenHash = cloneString(next)
	a.UpdatedAt = nowUTC(now)
	s.byID[id] = a
	return nil
}

func (s *MemoryStore) UpdatePasswordHash(ctx context.Context, id string, hash string, now time.Time) error {
	const op = "identity.UpdatePasswordHash"
	if err := ctxErr(op, ctx); err != nil {
		return err
	}
	if hash == "" {
		return invalid(op, "missing password hash")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return notFound(op)
	}
	a.PasswordHash = hash
	a.UpdatedAt = nowUTC(now)
	s.byID[id] = a
	return nil
}

func (s *MemoryStore) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate, now time.Time) (Account, error) {
	const op = "identity.UpdateProfile"
	if err := ctxErr(op, ctx); err != nil {
		return Account{}, err
	}
	upd, err := prepareUpdate(op, upd)
	if err != nil {
		return Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return Account{}, notFound(op)
	}

	if upd.Email != nil && *upd.Email != a.Email {
		if _, taken := s.email[*upd.Email]; taken {
			return Account{}, conflict(op, "email")
		}
		delete(s.email, a.Email)
		a.Email = *upd.Email
		s.email[a.Email] = a.ID
	}
	if upd.FullName != nil {
		a.FullName = *upd.FullName
	}
	if upd.Avatar != nil {
		a.Avatar = *upd.Avatar
	}
	if upd.CoverImage != nil {
		a.CoverImage = *upd.CoverImage
	}
	a.UpdatedAt = nowUTC(now)
	s.byID[id] = a
	return cloneAccount(a), nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctxErr("identity.Ping", ctx)
}

func ctxErr(op string, ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return unavailable(op, err)
	}
	return nil
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneAccount(a Account) Account {
	a.RefreshTokenHash = cloneString(a.RefreshTokenHash)
	return a
}
