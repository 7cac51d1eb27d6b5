// Package token generates engagement tokens and todo ids.
//
// An engagement token is a capability: possession is the only authorization
// check on the redirect endpoint, so tokens come from crypto/rand and are
// never reused across messages. Todo ids are deterministic content hashes of
// the provider identity, so re-importing the same item always yields the
// same id.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"
)

// base36Alphabet is the character set for base36 encoding (0-9, a-z).
const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// tokenBytes is the entropy per engagement token. 20 bytes = 160 bits,
// comfortably unguessable for a URL capability.
const tokenBytes = 20

// tokenLength is the base36 length of an engagement token (ceil(160/log2(36))).
const tokenLength = 31

// EncodeBase36 converts a byte slice to a base36 string of specified length.
// Uses base36 (0-9, a-z) for better information density than hex.
func EncodeBase36(data []byte, length int) string {
	num := new(big.Int).SetBytes(data)

	var result strings.Builder
	base := big.NewInt(36)
	zero := big.NewInt(0)
	mod := new(big.Int)

	// Build the string in reverse
	chars := make([]byte, 0, length)
	for num.Cmp(zero) > 0 {
		num.DivMod(num, base, mod)
		chars = append(chars, base36Alphabet[mod.Int64()])
	}
	for i := len(chars) - 1; i >= 0; i-- {
		result.WriteByte(chars[i])
	}

	// Pad with zeros if needed
	str := result.String()
	if len(str) < length {
		str = strings.Repeat("0", length-len(str)) + str
	}

	// Truncate to exact length if needed (keep least significant digits)
	if len(str) > length {
		str = str[len(str)-length:]
	}

	return str
}

// New generates a fresh engagement token from crypto/rand.
func New() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return EncodeBase36(buf, tokenLength), nil
}

// TodoID derives a stable internal id for a provider item. The id depends
// only on (company, provider, provider item id), so repeated syncs of the
// same item converge on one todo row.
func TodoID(companyID, providerKey, providerID string) string {
	content := fmt.Sprintf("%s|%s|%s", companyID, providerKey, providerID)
	hash := sha256.Sum256([]byte(content))
	return fmt.Sprintf("td-%s", EncodeBase36(hash[:8], 13))
}
