package enums

type CipherScheme string

const (
	// CipherSchemeManifest uses whatever scheme the manifest declares.
	CipherSchemeManifest CipherScheme = "manifest"
	CipherSchemeAESCBC   CipherScheme = "aes-cbc"
	// CipherSchemeNone skips decryption entirely and emits segment bytes
	// as delivered, for callers that decrypt downstream.
	CipherSchemeNone CipherScheme = "none"
)
