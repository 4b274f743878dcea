// Package keys maps a manifest key reference to raw key material.
// Resolution is cached per identifier: no matter how many segments race
// for the same key, at most one delivery fetch goes out.
package keys

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"sync"

	"streamcore/enums"
	"streamcore/fetch"
	"streamcore/models"
	"streamcore/util"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const keySize = 16

type Resolver struct {
	fetcher fetch.Fetcher
	scope   enums.KeyCacheScope

	mu    sync.Mutex
	cache map[string][]byte
	group singleflight.Group
}

func NewResolver(fetcher fetch.Fetcher, scope enums.KeyCacheScope) *Resolver {
	if scope == "" {
		scope = enums.KeyCacheScopeManifest
	}
	return &Resolver{
		fetcher: fetcher,
		scope:   scope,
		cache:   make(map[string][]byte),
	}
}

// Resolve returns the key material for one segment. The returned key
// bytes are shared with the cache and stay valid until Reset or Close;
// the IV is owned by the caller. A nil result means the segment is
// unencrypted.
func (r *Resolver) Resolve(
	ctx context.Context,
	ref *models.KeyRef,
	sequence int64,
) (*models.ResolvedKey, error) {
	if ref == nil || ref.Method == enums.KeyMethodNone || ref.Method == "" {
		return nil, nil
	}

	key, err := r.keyBytes(ctx, ref)
	if err != nil {
		return nil, err
	}

	iv, err := segmentIV(ref, sequence)
	if err != nil {
		return nil, err
	}

	return &models.ResolvedKey{Key: key, IV: iv}, nil
}

func (r *Resolver) keyBytes(ctx context.Context, ref *models.KeyRef) ([]byte, error) {
	id := cacheID(ref)

	r.mu.Lock()
	if key, ok := r.cache[id]; ok {
		r.mu.Unlock()
		return key, nil
	}
	r.mu.Unlock()

	// concurrent misses for the same identifier share one flight
	result, err, _ := r.group.Do(id, func() (any, error) {
		r.mu.Lock()
		if key, ok := r.cache[id]; ok {
			r.mu.Unlock()
			return key, nil
		}
		r.mu.Unlock()

		key, err := r.deliverKey(ctx, ref)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cache[id] = key
		r.mu.Unlock()
		return key, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (r *Resolver) deliverKey(ctx context.Context, ref *models.KeyRef) ([]byte, error) {
	if len(ref.Key) > 0 {
		if len(ref.Key) != keySize {
			return nil, fmt.Errorf("%w: inline key is %d bytes", util.ErrKeyMalformed, len(ref.Key))
		}
		// copy so purging the cache never wipes the manifest's bytes
		key := make([]byte, keySize)
		copy(key, ref.Key)
		return key, nil
	}
	if ref.URI == "" {
		return nil, fmt.Errorf("%w: key reference has neither inline bytes nor a URI", util.ErrKeyUnavailable)
	}

	zap.S().Debugf("fetching key %s", cacheID(ref))
	body, err := r.fetcher.Fetch(ctx, &fetch.Request{URL: ref.URI})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrKeyUnavailable, err)
	}

	key, err := parseKeyResponse(body)
	if err != nil {
		return nil, err
	}
	return key, nil
}

// parseKeyResponse accepts either raw key bytes or a ClearKey-style JSON
// license response carrying a base64url-encoded key.
func parseKeyResponse(body []byte) ([]byte, error) {
	if len(body) == keySize {
		return body, nil
	}
	if gjson.ValidBytes(body) {
		if encoded := gjson.GetBytes(body, "keys.0.k"); encoded.Exists() {
			key, err := base64.RawURLEncoding.DecodeString(encoded.String())
			if err != nil {
				return nil, fmt.Errorf("%w: invalid base64 key in license response", util.ErrKeyMalformed)
			}
			if len(key) != keySize {
				return nil, fmt.Errorf("%w: license key is %d bytes", util.ErrKeyMalformed, len(key))
			}
			return key, nil
		}
	}
	return nil, fmt.Errorf("%w: key response is %d bytes", util.ErrKeyMalformed, len(body))
}

// segmentIV picks the explicit IV when the manifest carries one,
// otherwise derives it deterministically from the sequence number so
// concurrent segments never share mutable IV state.
func segmentIV(ref *models.KeyRef, sequence int64) ([]byte, error) {
	if len(ref.IV) > 0 {
		if len(ref.IV) != keySize {
			return nil, fmt.Errorf("%w: explicit IV is %d bytes", util.ErrKeyMalformed, len(ref.IV))
		}
		iv := make([]byte, keySize)
		copy(iv, ref.IV)
		return iv, nil
	}
	return DeriveIV(sequence), nil
}

// DeriveIV encodes the media sequence number as a big-endian 128-bit
// value, zero-padded, per the implicit IV rule of the playlist format.
func DeriveIV(sequence int64) []byte {
	iv := make([]byte, keySize)
	binary.BigEndian.PutUint64(iv[8:], uint64(sequence))
	return iv
}

// Reset prepares the resolver for the next manifest of the same
// playback session. Manifest-scoped caches are wiped; session-scoped
// caches survive so live-stream refreshes reuse delivered keys.
func (r *Resolver) Reset() {
	if r.scope == enums.KeyCacheScopeSession {
		return
	}
	r.purge()
}

// Close wipes all cached key material regardless of scope.
func (r *Resolver) Close() {
	r.purge()
}

func (r *Resolver) purge() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, key := range r.cache {
		for i := range key {
			key[i] = 0
		}
		delete(r.cache, id)
	}
}

func cacheID(ref *models.KeyRef) string {
	if ref.ID != "" {
		return ref.ID
	}
	if ref.URI != "" {
		return ref.URI
	}
	return "inline"
}
