package enums

type KeyCacheScope string

const (
	// KeyCacheScopeManifest drops cached keys when the resolver is reset
	// for a new manifest.
	KeyCacheScopeManifest KeyCacheScope = "manifest"
	// KeyCacheScopeSession keeps cached keys across manifest refreshes,
	// useful for live streams that reuse the same key between reloads.
	KeyCacheScopeSession KeyCacheScope = "session"
)
