package models

import (
	"time"

	"streamcore/enums"
)

// StreamManifest is the parsed, source-format independent representation
// of one rendition: an ordered list of segments plus key metadata.
// It is immutable once returned by a parser.
type StreamManifest struct {
	Segments       []*SegmentDescriptor
	MediaSequence  int64         // sequence number of the first segment
	TargetDuration time.Duration // informational
	TotalDuration  time.Duration // informational

	// Init is the container initialization segment, when the format has
	// one. It carries Index -1 and is emitted before Segments[0].
	Init *SegmentDescriptor
}

// SegmentDescriptor describes one independently fetchable segment.
// Descriptors are owned by the manifest that produced them.
type SegmentDescriptor struct {
	Index    int    // position in emission order, starting at 0
	Sequence int64  // media sequence number, used for implicit IV derivation
	URL      string // resolved against the manifest base URL

	// byte range within a container file, when the manifest uses ranges.
	// RangeLength <= 0 means no range (fetch the whole resource).
	RangeStart  int64
	RangeLength int64

	Key      *KeyRef
	Duration time.Duration

	// Discontinuity marks that the decoding context resets at this
	// segment. Parsers normalize discontinuity tags onto the segment
	// that follows them.
	Discontinuity bool
}

// Encrypted reports whether the segment needs decryption at all.
func (s *SegmentDescriptor) Encrypted() bool {
	return s.Key != nil && s.Key.Method != "" && s.Key.Method != enums.KeyMethodNone
}
