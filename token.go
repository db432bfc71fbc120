package identity

import (
	"crypto/rand"
	"encoding/base64"
)

// authTokenBytes gives 256 bits of entropy, enough that token
// collisions need no retry handling.
const authTokenBytes = 32

// NewAuthToken returns an opaque, URL-safe random token used for
// sessions, email verification, and password resets.
func NewAuthToken() string {
	b := make([]byte, authTokenBytes)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms; if it does
		// the process cannot safely issue credentials.
		panic("identity: crypto/rand unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
