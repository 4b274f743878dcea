package decrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"testing"

	"streamcore/models"
	"streamcore/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encryptCBC(t *testing.T, plaintext, key, iv []byte) []byte {
	t.Helper()

	padding := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := make([]byte, len(plaintext)+padding)
	copy(padded, plaintext)
	for i := len(plaintext); i < len(padded); i++ {
		padded[i] = byte(padding)
	}

	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	encrypted := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(encrypted, padded)
	return encrypted
}

// encryptBlocks runs CBC over already block-aligned bytes without adding
// padding, for crafting ciphertexts whose plaintext tail is chosen exactly.
func encryptBlocks(t *testing.T, blocks, key, iv []byte) []byte {
	t.Helper()

	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	encrypted := make([]byte, len(blocks))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(encrypted, blocks)
	return encrypted
}

func testKey() *models.ResolvedKey {
	return &models.ResolvedKey{
		Key: []byte("0123456789abcdef"),
		IV:  []byte("fedcba9876543210"),
	}
}

func TestSegmentRoundTrip(t *testing.T) {
	key := testKey()
	plaintext := []byte("not quite a block multiple of media payload")
	raw := encryptCBC(t, plaintext, key.Key, key.IV)

	decrypted, err := Segment(raw, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestSegmentExactBlockPlaintext(t *testing.T) {
	key := testKey()
	plaintext := bytes.Repeat([]byte{0xAB}, aes.BlockSize*4)
	raw := encryptCBC(t, plaintext, key.Key, key.IV)

	decrypted, err := Segment(raw, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestSegmentIdempotent(t *testing.T) {
	key := testKey()
	raw := encryptCBC(t, []byte("same input, same output"), key.Key, key.IV)

	first, err := Segment(raw, key)
	require.NoError(t, err)
	second, err := Segment(raw, key)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSegmentShortInput(t *testing.T) {
	key := testKey()

	_, err := Segment(make([]byte, aes.BlockSize+5), key)
	assert.ErrorIs(t, err, util.ErrShortInput)

	_, err = Segment(nil, key)
	assert.ErrorIs(t, err, util.ErrShortInput)
}

func TestSegmentInvalidPadding(t *testing.T) {
	key := testKey()

	// tail claims 3 bytes of padding but the bytes disagree
	blocks := make([]byte, aes.BlockSize)
	blocks[aes.BlockSize-2] = 0xAA
	blocks[aes.BlockSize-1] = 0x03
	_, err := Segment(encryptBlocks(t, blocks, key.Key, key.IV), key)
	assert.ErrorIs(t, err, util.ErrInvalidPadding)

	// zero is never a valid padding value
	blocks[aes.BlockSize-1] = 0x00
	_, err = Segment(encryptBlocks(t, blocks, key.Key, key.IV), key)
	assert.ErrorIs(t, err, util.ErrInvalidPadding)

	// padding longer than a block
	blocks[aes.BlockSize-1] = 0x11
	_, err = Segment(encryptBlocks(t, blocks, key.Key, key.IV), key)
	assert.ErrorIs(t, err, util.ErrInvalidPadding)
}

func TestSegmentPassthroughWithoutKey(t *testing.T) {
	// 17 bytes: not a block multiple, so any accidental trip through
	// the cipher path would fail loudly
	raw := []byte("17 plaintext bytes")[:17]

	decrypted, err := Segment(raw, nil)
	require.NoError(t, err)
	assert.Equal(t, raw, decrypted)
}

func TestSegmentRejectsBadKeyLength(t *testing.T) {
	raw := make([]byte, aes.BlockSize)

	_, err := Segment(raw, &models.ResolvedKey{Key: []byte("short"), IV: make([]byte, 16)})
	assert.ErrorIs(t, err, util.ErrKeyMalformed)

	_, err = Segment(raw, &models.ResolvedKey{Key: make([]byte, 16), IV: []byte("short")})
	assert.ErrorIs(t, err, util.ErrKeyMalformed)
}
