package social

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"strings"
)

const stateBytes = 32

// NewState returns a random opaque value binding one browser to one
// authorization round trip.
func NewState() string {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		panic("social: failed to read random bytes: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// VerifyState compares the callback state against the issued value in
// constant time.
func VerifyState(issued, received string) bool {
	if issued == "" || received == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(issued), []byte(received)) == 1
}

// StateCookieName is the per-provider cookie holding the issued
// state, e.g. authStateGoogle.
func StateCookieName(provider string) string {
	if provider == "" {
		return "authState"
	}
	return "authState" + strings.ToUpper(provider[:1]) + provider[1:]
}
