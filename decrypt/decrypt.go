// Package decrypt turns a single raw segment into plaintext using
// AES-128-CBC with PKCS#7 padding. It is deterministic and side-effect
// free: the same (raw, key) pair always yields the same output or the
// same failure.
package decrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"streamcore/models"
	"streamcore/util"
)

// Segment decrypts one segment's raw bytes. A nil key means the segment
// is unencrypted; the bytes are returned untouched without running the
// cipher, so plaintext never goes through padding removal.
func Segment(raw []byte, key *models.ResolvedKey) ([]byte, error) {
	if key == nil {
		return raw, nil
	}
	if !IsValidAESKey(key.Key) {
		return nil, fmt.Errorf("%w: expected 16 bytes, got %d", util.ErrKeyMalformed, len(key.Key))
	}
	if !IsValidIV(key.IV) {
		return nil, fmt.Errorf("%w: expected 16 byte IV, got %d", util.ErrKeyMalformed, len(key.IV))
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: no data to decrypt", util.ErrShortInput)
	}
	if len(raw)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes", util.ErrShortInput, len(raw))
	}

	block, err := aes.NewCipher(key.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	mode := cipher.NewCBCDecrypter(block, key.IV)
	decryptedData := make([]byte, len(raw))
	mode.CryptBlocks(decryptedData, raw)

	unpaddedData, err := removePKCS7Padding(decryptedData)
	if err != nil {
		return nil, err
	}
	return unpaddedData, nil
}

// removePKCS7Padding strips the final-block padding, rejecting
// inconsistent padding bytes instead of silently truncating.
func removePKCS7Padding(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: data is empty", util.ErrInvalidPadding)
	}
	paddingLength := int(data[len(data)-1])
	if paddingLength == 0 || paddingLength > aes.BlockSize {
		return nil, fmt.Errorf("%w: padding length %d", util.ErrInvalidPadding, paddingLength)
	}
	if paddingLength > len(data) {
		return nil, fmt.Errorf("%w: padding length %d exceeds data length %d",
			util.ErrInvalidPadding, paddingLength, len(data))
	}
	for i := len(data) - paddingLength; i < len(data); i++ {
		if data[i] != byte(paddingLength) {
			return nil, fmt.Errorf("%w: at position %d", util.ErrInvalidPadding, i)
		}
	}
	return data[:len(data)-paddingLength], nil
}

func IsValidAESKey(key []byte) bool {
	return len(key) == 16
}

func IsValidIV(iv []byte) bool {
	return len(iv) == 16
}
