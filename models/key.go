package models

import "streamcore/enums"

// KeyRef references the decryption key that applies to one or more
// segments. Resolution is cached by ID, so every segment sharing a key
// must carry the same ID.
type KeyRef struct {
	Method enums.KeyMethod `json:"method"`
	ID     string          `json:"id"`  // opaque cache identifier
	URI    string          `json:"uri"` // key delivery URI, empty for inline keys
	Key    []byte          `json:"key"` // inline key bytes, nil when fetched by URI
	IV     []byte          `json:"iv"`  // explicit IV, nil when derived from sequence
}

// ResolvedKey holds raw key material ready for the cipher. It lives only
// for the duration of one processing session.
type ResolvedKey struct {
	Key []byte
	IV  []byte
}

// Zero wipes the key material in place.
func (k *ResolvedKey) Zero() {
	for i := range k.Key {
		k.Key[i] = 0
	}
	for i := range k.IV {
		k.IV[i] = 0
	}
}
