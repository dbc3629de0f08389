package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Sum returns the lowercase hex SHA-256 of the canonical JSON of v.
// Equal values always produce equal digests regardless of map order.
func Sum(v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonical sum: %w", err)
	}
	return SumBytes(data), nil
}

// SumBytes returns the lowercase hex SHA-256 of data.
func SumBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
