package core

// streaming.go provides the reader chain applied to CSV sources.
//
// Sources are decoded without loading the whole file into memory:
//
//   - StreamingCountingReader: tracks bytes read and enforces the size limit
//   - BOMSkippingReader: removes a UTF-8 BOM (0xEF 0xBB 0xBF) left by Windows tools
//   - Latin-1 decoding: every remaining byte maps to exactly one rune
//
// Use WrapForStreaming to apply all transforms in the correct order.

import (
	"errors"
	"io"

	"golang.org/x/text/encoding/charmap"
)

// ErrFileTooLarge is returned once a source exceeds the configured size limit.
var ErrFileTooLarge = errors.New("file exceeds maximum size")

// BOMSkippingReader wraps an io.Reader and skips the UTF-8 BOM if present.
type BOMSkippingReader struct {
	reader     io.Reader
	bomChecked bool
	buf        [3]byte
	pending    []byte
}

// NewBOMSkippingReader creates a new BOM-skipping reader.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{reader: r}
}

// Read implements io.Reader. On the first read, it checks for and skips the BOM.
func (r *BOMSkippingReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	if !r.bomChecked {
		r.bomChecked = true

		n, err := io.ReadFull(r.reader, r.buf[:])
		switch {
		case n == 3 && r.buf[0] == 0xEF && r.buf[1] == 0xBB && r.buf[2] == 0xBF:
			// BOM found - drop it
		case n > 0:
			r.pending = r.buf[:n]
		}

		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		if err != nil && len(r.pending) == 0 {
			return 0, err
		}
	}

	if len(r.pending) > 0 {
		copied := copy(p, r.pending)
		r.pending = r.pending[copied:]
		return copied, nil
	}

	return r.reader.Read(p)
}

// StreamingCountingReader wraps an io.Reader to track bytes read. When Limit
// is positive, reading past it fails with ErrFileTooLarge.
type StreamingCountingReader struct {
	reader    io.Reader
	BytesRead int64
	Limit     int64
}

// NewStreamingCountingReader creates a counting reader with an optional limit.
func NewStreamingCountingReader(r io.Reader, limit int64) *StreamingCountingReader {
	return &StreamingCountingReader{
		reader: r,
		Limit:  limit,
	}
}

// Read implements io.Reader.
func (r *StreamingCountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	if r.Limit > 0 && r.BytesRead > r.Limit {
		return n, ErrFileTooLarge
	}
	return n, err
}

// NewLatin1Reader decodes ISO-8859-1 bytes to UTF-8. Every byte is valid
// Latin-1, so decoding never fails; damaged text surfaces as non-ASCII
// characters for the validator to reject.
func NewLatin1Reader(r io.Reader) io.Reader {
	return charmap.ISO8859_1.NewDecoder().Reader(r)
}

// WrapForStreaming wraps a raw CSV source with size enforcement, BOM
// skipping and Latin-1 decoding.
//
// The order matters:
// 1. Counting sees the raw bytes so the limit applies to the file size
// 2. BOM must be stripped before decoding, or it decodes to three letters
// 3. Latin-1 decoding happens last
func WrapForStreaming(r io.Reader, limit int64) io.Reader {
	counted := NewStreamingCountingReader(r, limit)
	return NewLatin1Reader(NewBOMSkippingReader(counted))
}
