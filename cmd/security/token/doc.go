// Package token derives the server-side digest of refresh tokens.
//
// Accounts never store a refresh token in the clear; they store its digest.
// A Digester with a key produces HMAC-SHA256 digests, without a key it falls
// back to plain SHA-256 (local development). Output is always 64 hex chars.
package token
