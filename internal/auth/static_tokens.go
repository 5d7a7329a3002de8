package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"strings"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// StaticTokens is a fixed set of shared-secret bearer credentials.
// Only SHA-256 digests are kept in memory.
type StaticTokens struct {
	digests [][sha256.Size]byte
}

// NewStaticTokens builds the set, skipping blank entries
func NewStaticTokens(tokens ...string) *StaticTokens {
	s := &StaticTokens{}
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			s.digests = append(s.digests, HashToken(t))
		}
	}
	return s
}

// HashToken creates a SHA-256 digest of a token
func HashToken(token string) [sha256.Size]byte {
	return sha256.Sum256([]byte(token))
}

// Len returns the number of configured credentials
func (s *StaticTokens) Len() int {
	return len(s.digests)
}

// Verify reports whether token is one of the configured credentials.
// Every digest is compared so timing does not depend on which one matched.
func (s *StaticTokens) Verify(token string) error {
	if token == "" {
		return ErrMissingToken
	}
	candidate := HashToken(token)
	match := 0
	for _, d := range s.digests {
		match |= subtle.ConstantTimeCompare(candidate[:], d[:])
	}
	if match != 1 {
		return ErrInvalidToken
	}
	return nil
}

// ExtractBearer returns the credential of an "Authorization: Bearer <token>" header value
func ExtractBearer(header string) (string, error) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrMissingToken
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
