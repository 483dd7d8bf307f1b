package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"vidtube/cmd/identity/ids"
)

// Pool is the subset of *pgxpool.Pool used by PostgresStore.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore implements Store over PostgreSQL.
//
// The pool is owned by the caller; the store never closes it.
// Table identifiers are quoted; refresh rotation is a single conditional UPDATE.
type PostgresStore struct {
	pool   Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema holding the accounts table (default "public").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "public",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

const accountColumns = `id, username, email, full_name, avatar, cover_image, password_hash, refresh_token_hash, created_at, updated_at`

func (s *PostgresStore) accounts() string {
	return pgx.Identifier{s.schema, "accounts"}.Sanitize()
}

// FindByUsernameOrEmail looks an account up by either identifier. When the
// two identifiers name different accounts, the username match wins.
func (s *PostgresStore) FindByUsernameOrEmail(ctx context.Context, username, email string) (Account, error) {
	const op = "identity.FindByUsernameOrEmail"

	username = NormalizeUsername(username)
	email = NormalizeEmail(email)
	if username == "" && email == "" {
		return Account{}, invalid(op, "username or email is required")
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+`
		   FROM `+s.accounts()+`
		  WHERE ($1 <> '' AND username = $1)
		     OR ($2 <> '' AND email = $2)
		  ORDER BY (username = $1) DESC, created_at
		  LIMIT 1`,
		username, email,
	)
	a, err := scanAccount(row)
	if err != nil {
		return Account{}, s.fail(op, err)
	}
	return a, nil
}

// FindByID returns the account with the given id.
func (s *PostgresStore) FindByID(ctx context.Context, id string) (Account, error) {
	const op = "identity.FindByID"

	if !ids.Valid(id) {
		return Account{}, notFound(op)
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+`
		   FROM `+s.accounts()+`
		  WHERE id = $1`,
		id,
	)
	a, err := scanAccount(row)
	if err != nil {
		return Account{}, s.fail(op, err)
	}
	return a, nil
}

// Create inserts a new account.
func (s *PostgresStore) Create(ctx context.Context, in NewAccount) (Account, error) {
	const op = "identity.Create"

	a, err := prepareAccount(op, in)
	if err != nil {
		return Account{}, err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+s.accounts()+` (
		     id, username, email, full_name, avatar, cover_image,
		     password_hash, refresh_token_hash, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, $8, $8)`,
		a.ID,
		a.Username,
		a.Email,
		a.FullName,
		a.Avatar,
		a.CoverImage,
		a.PasswordHash,
		a.CreatedAt,
	)
	if err != nil {
		return Account{}, s.fail(op, err)
	}
	return a, nil
}

// UpdateRefreshToken sets or clears the refresh digest.
func (s *PostgresStore) UpdateRefreshToken(ctx context.Context, id string, digest *string, now time.Time) error {
	const op = "identity.UpdateRefreshToken"

	if !ids.Valid(id) {
		return notFound(op)
	}

	ct, err := s.pool.Exec(ctx,
		`UPDATE `+s.accounts()+`
		    SET refresh_token_hash = $2,
		        updated_at = $3
		  WHERE id = $1`,
		id, digest, nowUTC(now),
	)
	if err != nil {
		return s.fail(op, err)
	}
	if ct.RowsAffected() == 0 {
		return notFound(op)
	}
	return nil
}

// SwapRefreshToken is the compare-and-swap used by refresh rotation.
// The WHERE clause pins the previous digest, so of two concurrent swaps
// from the same digest only one can affect a row.
func (s *PostgresStore) SwapRefreshToken(ctx context.Context, id string, prev string, next *string, now time.Time) error {
	const op = "identity.SwapRefreshToken"

	if !ids.Valid(id) {
		return notFound(op)
	}
	if strings.TrimSpace(prev) == "" {
		return invalid(op, "missing previous refresh digest")
	}

	ct, err := s.pool.Exec(ctx,
		`UPDATE `+s.accounts()+`
		    SET refresh_token_hash = $3,
		        updated_at = $4
		  WHERE id = $1
		    AND refresh_token_hash = $2`,
		id, prev, next, nowUTC(now),
	)
	if err != nil {
		return s.fail(op, err)
	}
	if ct.RowsAffected() != 1 {
		return staleRefresh(op)
	}
	return nil
}

// UpdatePasswordHash replaces the stored password hash.
func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, id string, hash string, now time.Time) error {
	const op = "identity.UpdatePasswordHash"

	if !ids.Valid(id) {
		return notFound(op)
	}
	if strings.TrimSpace(hash) == "" {
		return invalid(op, "missing password hash")
	}

	ct, err := s.pool.Exec(ctx,
		`UPDATE `+s.accounts()+`
		    SET password_hash = $2,
		        updated_at = $3
		  WHERE id = $1`,
		id, hash, nowUTC(now),
	)
	if err != nil {
		return s.fail(op, err)
	}
	if ct.RowsAffected() == 0 {
		return notFound(op)
	}
	return nil
}

// UpdateProfile applies a partial profile update and returns the new record.
func (s *PostgresStore) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate, now time.Time) (Account, error) {
	const op = "identity.UpdateProfile"

	if !ids.Valid(id) {
		return Account{}, notFound(op)
	}
	upd, err := prepareUpdate(op, upd)
	if err != nil {
		return Account{}, err
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE `+s.accounts()+`
		    SET full_name = COALESCE($2, full_name),
		        email = COALESCE($3, email),
		        avatar = COALESCE($4, avatar),
		        cover_image = COALESCE($5, cover_image),
		        updated_at = $6
		  WHERE id = $1
		RETURNING `+accountColumns,
		id, upd.FullName, upd.Email, upd.Avatar, upd.CoverImage, nowUTC(now),
	)
	a, err := scanAccount(row)
	if err != nil {
		return Account{}, s.fail(op, err)
	}
	return a, nil
}

// Ping checks store reachability.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return s.fail("identity.Ping", err)
	}
	return nil
}

// ---- helpers ----

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(
		&a.ID,
		&a.Username,
		&a.Email,
		&a.FullName,
		&a.Avatar,
		&a.CoverImage,
		&a.PasswordHash,
		&a.RefreshTokenHash,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}

// fail maps driver errors onto the identity error kinds.
func (s *PostgresStore) fail(op string, err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return notFound(op)
	case pgIsUnavailable(err):
		return unavailable(op, err)
	}
	if field, ok := pgClassifyUniqueViolation(err); ok {
		return conflict(op, field)
	}
	return oops.
		In("identity").
		Code("store_failure").
		With("op", op, "schema", s.schema).
		Wrap(err)
}

func pgIsUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.AdminShutdown,
			pgerrcode.CrashShutdown,
			pgerrcode.CannotConnectNow,
			pgerrcode.TooManyConnections,
			pgerrcode.QueryCanceled:
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != pgerrcode.UniqueViolation {
		return "", false
	}

	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "uq_accounts_username", strings.Contains(c, "username"):
		return "username", true
	case c == "uq_accounts_email", strings.Contains(c, "email"):
		return "email", true
	default:
		return "unique", true
	}
}

func nowUTC(now time.Time) time.Time {
	if now.IsZero() {
		return time.Now().UTC()
	}
	return now.UTC()
}

// prepareAccount validates and normalizes a NewAccount into the row to insert.
func prepareAccount(op string, in NewAccount) (Account, error) {
	username := NormalizeUsername(in.Username)
	email := NormalizeEmail(in.Email)
	fullName := strings.TrimSpace(in.FullName)

	switch {
	case username == "":
		return Account{}, invalid(op, "username is required")
	case email == "":
		return Account{}, invalid(op, "email is required")
	case fullName == "":
		return Account{}, invalid(op, "full name is required")
	case strings.TrimSpace(in.PasswordHash) == "":
		return Account{}, invalid(op, "password hash is required")
	}

	now := nowUTC(in.Now)
	id, err := ids.New(now)
	if err != nil {
		return Account{}, err
	}

	return Account{
		ID:           id,
		Username:     username,
		Email:        email,
		FullName:     fullName,
		Avatar:       strings.TrimSpace(in.Avatar),
		CoverImage:   strings.TrimSpace(in.CoverImage),
		PasswordHash: in.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// prepareUpdate trims fields and rejects blank required values.
func prepareUpdate(op string, upd ProfileUpdate) (ProfileUpdate, error) {
	if upd.Empty() {
		return ProfileUpdate{}, invalid(op, "nothing to update")
	}

	var out ProfileUpdate
	if upd.FullName != nil {
		v := strings.TrimSpace(*upd.FullName)
		if v == "" {
			return ProfileUpdate{}, invalid(op, "full name cannot be blank")
		}
		out.FullName = &v
	}
	if upd.Email != nil {
		v := NormalizeEmail(*upd.Email)
		if v == "" {
			return ProfileUpdate{}, invalid(op, "email cannot be blank")
		}
		out.Email = &v
	}
	if upd.Avatar != nil {
		v := strings.TrimSpace(*upd.Avatar)
		out.Avatar = &v
	}
	if upd.CoverImage != nil {
		v := strings.TrimSpace(*upd.CoverImage)
		out.CoverImage = &v
	}
	return out, nil
}
