// Package password hashes and verifies account passwords.
//
// New hashes are Argon2id in PHC string form. Verification also accepts the
// bcrypt hashes written by earlier versions of the service so those accounts
// can still sign in; NeedsRehash tells callers when to upgrade a stored hash.
//
// Hash strings are untrusted input during Verify. Malformed hashes, or hashes
// whose cost exceeds reasonable bounds, are rejected with ErrInvalidHash.
package password
