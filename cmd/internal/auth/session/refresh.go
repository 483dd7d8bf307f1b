package session

import (
	"context"
	"fmt"
	"strings"

	"vidtube/cmd/identity"
	"vidtube/cmd/security/token"
)

// Refresh rotates the presented refresh token.
//
// The presented token must be the one currently stored for its account.
// The replacement is written with a compare-and-swap on the previous digest,
// so of two concurrent refreshes with the same token exactly one succeeds and
// the other sees ErrTokenReuseDetected. Reuse detection does not change the
// stored state.
func (s *Service) Refresh(ctx context.Context, raw string) (TokenPair, error) {
	const op = "session.Refresh"

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return TokenPair{}, fail(op, ErrUnauthorized, "unauthorized request")
	}

	claims, err := s.codec.VerifyRefreshToken(raw)
	if err != nil {
		return TokenPair{}, tokenErr(op, err)
	}

	a, err := s.findByID(ctx, claims.AccountID)
	if err != nil {
		if identity.IsNotFound(err) {
			return TokenPair{}, fail(op, ErrInvalidToken, "invalid refresh token")
		}
		return TokenPair{}, storeErr(op, err)
	}

	presented := s.digest.Digest(raw)
	if a.RefreshTokenHash == nil || !token.Equal(*a.RefreshTokenHash, presented) {
		s.log.Warn("auth.refresh.reuse_detected", "account_id", a.ID, "jti", claims.ID)
		return TokenPair{}, fail(op, ErrTokenReuseDetected, "refresh token is expired or used")
	}

	pair, err := s.issuePair(a)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%s: issue tokens: %w", op, err)
	}
	next := s.digest.Digest(pair.RefreshToken)

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	err = s.store.SwapRefreshToken(sctx, a.ID, *a.RefreshTokenHash, &next, s.now())
	switch {
	case err == nil:
		return pair, nil
	case identity.IsNotActive(err):
		s.log.Warn("auth.refresh.reuse_detected", "account_id", a.ID, "jti", claims.ID, "race", true)
		return TokenPair{}, failWrap(op, ErrTokenReuseDetected, "refresh token is expired or used", err)
	case identity.IsNotFound(err):
		return TokenPair{}, fail(op, ErrInvalidToken, "invalid refresh token")
	}
	return TokenPair{}, storeErr(op, err)
}
