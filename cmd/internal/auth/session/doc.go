// Package session implements account sessions for vidtube.
//
// Every account holds at most one live refresh token. Login overwrites it,
// refresh rotates it with a compare-and-swap on the stored digest, and logout
// clears it. Presenting any refresh token other than the stored one is
// treated as reuse.
//
// Access and refresh tokens are HS256 JWTs signed with separate secrets.
// Only a digest of the refresh token is persisted (HMAC-SHA256 when
// VIDTUBE_TOKEN_HMAC_KEY is set, SHA-256 otherwise).
//
// HTTP binding lives in package api.
package session
