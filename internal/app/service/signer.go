package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lumenlearn/growthloop/internal/app/model"
)

// ErrMissingSecret is returned when the signer has no key material.
// Signing must fail loudly rather than mint unsigned links.
var ErrMissingSecret = errors.New("signing secret is not configured")

// Signer issues and verifies HMAC signatures over smart-link fields.
type Signer struct {
	secret []byte
}

// NewSigner returns a signer keyed with the given secret.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret}
}

// Sign computes the signature over the canonical form of the link fields.
func (s *Signer) Sign(code string, expiresAt time.Time, inviterID string, loop model.Loop, params map[string]string) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrMissingSecret
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(canonical(code, expiresAt, inviterID, loop, params)))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

// Verify reports whether sig matches the link fields. It never errors:
// an unconfigured secret or garbled signature is simply not valid.
func (s *Signer) Verify(sig, code string, expiresAt time.Time, inviterID string, loop model.Loop, params map[string]string) bool {
	expected, err := s.Sign(code, expiresAt, inviterID, loop, params)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(expected))
}

// canonical assembles the signed fields into one deterministic string.
// Param keys are sorted so key order never affects the signature.
func canonical(code string, expiresAt time.Time, inviterID string, loop model.Loop, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(code)
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(expiresAt.Unix(), 10))
	b.WriteByte('|')
	b.WriteString(inviterID)
	b.WriteByte('|')
	b.WriteString(string(loop))
	b.WriteByte('|')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}
