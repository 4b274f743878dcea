package models

// DecryptedChunk is one segment's worth of plaintext handed to the
// consumer. Ownership of Data transfers on emission; the assembler keeps
// no copy.
type DecryptedChunk struct {
	Index int
	Data  []byte

	// Discontinuity signals a decoding boundary before this chunk's
	// bytes. It rides alongside the payload, never inside it.
	Discontinuity bool
}
