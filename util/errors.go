package util

type Error struct {
	Message string
}

func (err *Error) Error() string {
	return err.Message
}

var (
	// manifest errors, surfaced before any fetching begins
	ErrMalformedManifest  = &Error{Message: "manifest structure is malformed"}
	ErrUnsupportedFeature = &Error{Message: "manifest uses a feature this core does not implement"}
	ErrEmptyManifest      = &Error{Message: "manifest contains no segments"}
	ErrMasterPlaylist     = &Error{Message: "manifest is a master playlist. select a variant first"}

	// key errors
	ErrKeyUnavailable = &Error{Message: "key material could not be fetched"}
	ErrKeyMalformed   = &Error{Message: "key material has the wrong length"}

	// fetch errors
	ErrFetchFailed = &Error{Message: "segment fetch failed"}

	// decrypt errors, never retried
	ErrShortInput     = &Error{Message: "encrypted data length is not a multiple of the block size"}
	ErrInvalidPadding = &Error{Message: "padding bytes are inconsistent. corrupted segment or wrong key"}
)
