// Package token generates opaque refresh secrets and derives the one-way hash stored for them.
//
// Hashes are 64-char hex: HMAC-SHA256 keyed by TDP_TOKEN_HMAC_KEY when configured, plain SHA-256
// otherwise. Production deployments set TDP_REQUIRE_TOKEN_HMAC=true, which the app enforces at startup.
package token
