package session

import (
	"context"
	"strings"

	"vidtube/cmd/identity"
)

// Identity is the authenticated caller resolved by the gate.
type Identity struct {
	identity.Profile

	// TokenID is the jti of the access token that authenticated the request.
	TokenID string
}

// Authenticate verifies an access token and loads the account it names.
// It never refreshes tokens.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (Identity, error) {
	const op = "session.Authenticate"

	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return Identity{}, fail(op, ErrUnauthorized, "unauthorized request")
	}

	claims, err := s.codec.VerifyAccessToken(accessToken)
	if err != nil {
		return Identity{}, tokenErr(op, err)
	}

	a, err := s.findByID(ctx, claims.AccountID)
	if err != nil {
		if identity.IsNotFound(err) {
			return Identity{}, fail(op, ErrInvalidToken, "invalid access token")
		}
		return Identity{}, storeErr(op, err)
	}

	return Identity{Profile: a.Profile(), TokenID: claims.ID}, nil
}
