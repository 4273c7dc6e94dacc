package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/sifterhq/sifter/internal/models"
)

// API keys are opaque: a kind prefix followed by 40 characters of random
// base58 material. The raw key is returned exactly once at issuance and only
// its digest is ever stored.
const (
	orgKeyPrefix = "org_"
	usrKeyPrefix = "usr_"

	keyRandomLen = 40
)

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// GenerateAPIKey produces a new high-entropy opaque API key for the given
// principal kind.
func GenerateAPIKey(kind models.PrincipalKind) (string, error) {
	var prefix string
	switch kind {
	case models.PrincipalKindOrganization:
		prefix = orgKeyPrefix
	case models.PrincipalKindUser:
		prefix = usrKeyPrefix
	default:
		return "", fmt.Errorf("unknown principal kind %q", kind)
	}

	buf := make([]byte, keyRandomLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(prefix)
	for _, b := range buf {
		sb.WriteByte(base58Alphabet[int(b)%len(base58Alphabet)])
	}

	return sb.String(), nil
}

// DigestAPIKey computes the deterministic one-way digest of a raw API key:
// base58-encoded SHA-256. The digest is what gets stored and looked up;
// being unsalted keeps exact-match lookup possible, and the key's 40 random
// characters make offline guessing infeasible.
func DigestAPIKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return base58.Encode(sum[:])
}

// VerifyAPIKey reports whether a raw key matches a stored digest, in
// constant time over the digest comparison.
func VerifyAPIKey(rawKey, digest string) bool {
	computed := DigestAPIKey(rawKey)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(digest)) == 1
}

// keyKind determines the principal kind from the structural prefix of a raw
// key. The returned bool is false for any prefix outside the closed set.
func keyKind(rawKey string) (models.PrincipalKind, bool) {
	switch {
	case strings.HasPrefix(rawKey, orgKeyPrefix):
		return models.PrincipalKindOrganization, true
	case strings.HasPrefix(rawKey, usrKeyPrefix):
		return models.PrincipalKindUser, true
	default:
		return "", false
	}
}
