// Package password hashes and verifies user credentials with Argon2id.
//
// Records are self-describing ($argon2id$v=19$m=..,t=..,p=..$salt$hash) so parameters can change
// without invalidating stored hashes. Verify treats every record as untrusted input and fails closed.
// The short legacy form argon2id$salt$hash is still accepted for verification.
package password
