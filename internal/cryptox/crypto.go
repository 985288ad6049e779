// Package cryptox holds the few hashing primitives the server needs. The
// server never decrypts vault data; it only fingerprints ciphertext and
// protects its own one-time tokens.
package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/dmitrijs2005/privylock/internal/common"
	"golang.org/x/crypto/bcrypt"
)

// UsernameLength is the length of the username clients derive from the
// e-mail address.
const UsernameLength = 30

// unusablePrefix marks password hashes that can never match a client hash,
// used for accounts created through Google sign-in.
const unusablePrefix = "!"

var ErrMalformedToken = errors.New("malformed token")

// SHA256Hex returns the lowercase hex SHA-256 digest of b.
func SHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// UsernameFromEmail derives the 30-char username the clients compute for
// an e-mail address.
func UsernameFromEmail(email string) string {
	return SHA256Hex([]byte(email))[:UsernameLength]
}

// EqualHashes compares two client-supplied hashes in constant time.
func EqualHashes(stored, candidate string) bool {
	if strings.HasPrefix(stored, unusablePrefix) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1
}

// UnusablePassword returns a password hash no login attempt can match.
func UnusablePassword() (string, error) {
	s, err := common.MakeRandHexString(32)
	if err != nil {
		return "", err
	}
	return unusablePrefix + s, nil
}

// SplitToken is a selector/verifier pair. The selector is stored in clear
// and used for lookup; only a bcrypt hash of the verifier is stored.
type SplitToken struct {
	Token        string
	Selector     string
	VerifierHash string
}

// NewSplitToken generates a fresh token of the form "<selector>.<verifier>".
func NewSplitToken() (*SplitToken, error) {
	selector, err := common.MakeRandHexString(12)
	if err != nil {
		return nil, err
	}
	verifier, err := common.MakeRandHexString(24)
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(verifier), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &SplitToken{
		Token:        selector + "." + verifier,
		Selector:     selector,
		VerifierHash: string(hash),
	}, nil
}

// ParseSplitToken splits a token into selector and verifier.
func ParseSplitToken(token string) (selector, verifier string, err error) {
	selector, verifier, ok := strings.Cut(strings.TrimSpace(token), ".")
	if !ok || selector == "" || verifier == "" {
		return "", "", ErrMalformedToken
	}
	return selector, verifier, nil
}

// CheckVerifier reports whether verifier matches the stored bcrypt hash.
func CheckVerifier(hash, verifier string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(verifier)) == nil
}
