// Package hashchain computes the fixed-width fingerprints that link ledger
// records together.
//
// Two kinds of hash are produced and must not be confused: a block hash is
// derived from record content plus its creation timestamp and can be
// recomputed for verification; a transaction hash is derived from time and
// randomness and only identifies the creation event.
package hashchain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Width is the number of lowercase hex characters in a fingerprint.
const Width = 12

// Genesis is the previous-hash value of the first record in a ledger.
const Genesis = "000000000000"

// TransactionPrefix tags transaction hashes so they never read as block hashes.
const TransactionPrefix = "tx"

// Fingerprint returns the first Width hex characters of the SHA-256 digest of data.
func Fingerprint(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])[:Width]
}

// BlockHash fingerprints canonical record content concatenated with the
// creation timestamp in Unix nanoseconds.
func BlockHash(canonical []byte, createdAt time.Time) string {
	buf := make([]byte, 0, len(canonical)+20)
	buf = append(buf, canonical...)
	buf = strconv.AppendInt(buf, createdAt.UnixNano(), 10)
	return Fingerprint(buf)
}

// TransactionHash fingerprints timestamp ‖ nonce and prefixes the result.
func TransactionHash(at time.Time, nonce string) string {
	buf := strconv.AppendInt(nil, at.UnixNano(), 10)
	buf = append(buf, nonce...)
	return TransactionPrefix + Fingerprint(buf)
}

// IsFingerprint reports whether s has the shape of a Fingerprint.
func IsFingerprint(s string) bool {
	if len(s) != Width {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
