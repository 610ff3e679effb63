// Package session implements the token lifecycle: credential checks, RS256 access
// tokens, and single-use refresh-token chains.
//
// Access tokens are short-lived JWTs signed with a key generated once at startup
// (see KeyProvider) and published as a JWKS. Refresh tokens are opaque random
// strings stored only as hashes (HMAC-SHA256 when TDP_TOKEN_HMAC_KEY is set;
// otherwise SHA-256). Every use rotates the token inside one transaction; a
// token can be exchanged at most once.
//
// Failures on the credential paths are reported as identity.AuthenticationError
// and never say which check failed.
package session
