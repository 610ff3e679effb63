package session

import (
	"tdp/cmd/security/token"
)

// newOpaqueRefreshToken returns the plain secret handed to the client and the hash persisted for it.
func newOpaqueRefreshToken(nBytes int) (plain string, hashHex string, err error) {
	plain, err = token.NewOpaque(nBytes)
	if err != nil {
		return "", "", err
	}

	hashHex = token.HashRefreshTokenHex(plain) // 64 hex chars

	return plain, hashHex, nil
}

// maxRefreshTokenLen bounds presented secrets before hashing.
const maxRefreshTokenLen = 4096
