package fetch

import "context"

// Request locates one resource: a segment, a key, or a byte range within
// a container file.
type Request struct {
	URL string

	// byte range, applied when RangeLength > 0
	RangeStart  int64
	RangeLength int64
}

// Fetcher retrieves raw bytes over authenticated transport. The core
// only depends on this single-method contract; test doubles and the
// caller's authenticated client swap in by substituting the
// implementation.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) ([]byte, error)
}
