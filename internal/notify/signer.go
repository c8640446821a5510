// internal/notify/signer.go
package notify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"github.com/google/uuid"

	"libraryrental/internal/apperr"
)

const (
	idHexLen  = 32
	sigLen    = 22 // base64url of 16 bytes, unpadded
	macPrefix = "telegram-link:"
)

var ErrInvalidLinkToken = apperr.Validation("invalid link token")

// Signer produces the start parameter of a deep link: the user id in hex
// followed by a truncated HMAC. The result stays within Telegram's 64
// characters of [A-Za-z0-9_-].
type Signer struct {
	key []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{key: []byte(secret)}
}

func (s *Signer) mac(payload string) string {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(macPrefix + payload))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil)[:16])
}

func (s *Signer) Sign(userID uuid.UUID) string {
	payload := strings.ReplaceAll(userID.String(), "-", "")
	return payload + s.mac(payload)
}

// Verify returns the user id carried by token.
func (s *Signer) Verify(token string) (uuid.UUID, error) {
	if len(token) != idHexLen+sigLen {
		return uuid.Nil, ErrInvalidLinkToken
	}
	payload, sig := token[:idHexLen], token[idHexLen:]
	if !hmac.Equal([]byte(sig), []byte(s.mac(payload))) {
		return uuid.Nil, ErrInvalidLinkToken
	}
	id, err := uuid.Parse(payload)
	if err != nil {
		return uuid.Nil, ErrInvalidLinkToken
	}
	return id, nil
}
