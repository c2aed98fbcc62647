package session

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/pkg/errors"
)

// TokenBytes is the raw token size: 256 bits of entropy.
const TokenBytes = 32

// NewToken returns a URL-safe random token of nbytes random bytes.
func NewToken(nbytes int) (string, error) {
	if nbytes < 16 {
		return "", errors.New("session: token size too small")
	}
	b := make([]byte, nbytes)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "session: failed to generate token")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
