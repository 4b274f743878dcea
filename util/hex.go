package util

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ParseHex decodes a hex string, tolerating a 0x prefix and mixed case.
// Manifests carry IVs and key identifiers in both spellings.
func ParseHex(value string) ([]byte, error) {
	value = strings.TrimPrefix(strings.TrimPrefix(value, "0x"), "0X")
	data, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid hex string: %w", err)
	}
	return data, nil
}
