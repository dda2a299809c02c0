package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// PrefixLength is how many leading characters of the raw key are stored
// for lookup acceleration. Authorization never rests on the prefix alone.
const PrefixLength = 8

// HashAPIKey derives the stored digest from the process-wide pepper and the
// raw presented key. The plaintext key is never persisted.
func HashAPIKey(pepper, raw string) string {
	sum := sha256.Sum256([]byte(pepper + ":" + raw))
	return hex.EncodeToString(sum[:])
}

// KeyPrefix derives the lookup prefix from the raw key.
func KeyPrefix(raw string) string {
	if len(raw) < PrefixLength {
		return raw
	}
	return raw[:PrefixLength]
}
