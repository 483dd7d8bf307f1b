// Package identity owns account persistence.
//
// It defines the Account record, the Store boundary used by the session
// service, and two implementations: PostgresStore (pgx) and MemoryStore
// (development mode and tests). Schema migrations live in the migrations
// subpackage.
package identity
