package keys

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// SecretPrefix marks every keyward-issued secret so that a leaked key is
// recognizable in scans and logs.
const SecretPrefix = "kw_"

const (
	secretBytes  = 32
	keyPrefixLen = 12
	minSecretLen = 24
	maxSecretLen = 128
)

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateSecret returns a new random secret of the form kw_<base32>.
func GenerateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return SecretPrefix + strings.ToLower(secretEncoding.EncodeToString(buf)), nil
}

// ValidFormat reports whether a credential looks like a keyward secret.
// It says nothing about whether the secret exists.
func ValidFormat(secret string) bool {
	if !strings.HasPrefix(secret, SecretPrefix) {
		return false
	}
	return len(secret) >= minSecretLen && len(secret) <= maxSecretLen
}

// DisplayPrefix returns the short leading fragment of a secret that is safe
// to store and show alongside key metadata.
func DisplayPrefix(secret string) string {
	if len(secret) < keyPrefixLen {
		return secret
	}
	return secret[:keyPrefixLen]
}

// HashSecret derives the stored lookup hash for a secret: a BLAKE2b-256 MAC
// keyed with the server pepper, hex encoded. Deterministic, so it can back a
// unique index; keyed, so a dumped table is useless without the pepper.
func HashSecret(pepper []byte, secret string) (string, error) {
	h, err := blake2b.New256(pepper)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	h.Write([]byte(secret))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// hashEqual compares two hex hashes in constant time.
func hashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
