// Package tinycompress writes zlib streams made of stored DEFLATE blocks.
// It buffers the whole stream and writes it on Close.
package tinycompress

import (
	"hash/adler32"
	"io"
)

// maxStoredBlock is the largest payload of a stored DEFLATE block.
const maxStoredBlock = 0xFFFF

// Writer buffers everything written to it and emits the zlib stream on
// Close.
type Writer struct {
	output   io.Writer
	inputBuf []byte
}

// NewWriter creates a new zlib Writer compatible with io.WriteCloser
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		output: w,
		// dictionaries are a few KB
		inputBuf: make([]byte, 0, 8192),
	}
}

// Write implements io.Writer
func (w *Writer) Write(p []byte) (n int, err error) {
	if cap(w.inputBuf) < len(w.inputBuf)+len(p) {
		newBuf := make([]byte, len(w.inputBuf), len(w.inputBuf)+len(p))
		copy(newBuf, w.inputBuf)
		w.inputBuf = newBuf
	}
	w.inputBuf = append(w.inputBuf, p...)
	return len(p), nil
}

// Close writes the zlib header, the buffered data as stored blocks and
// the Adler-32 trailer.
func (w *Writer) Close() error {
	if _, err := w.output.Write([]byte{0x78, 0x9C}); err != nil {
		return err
	}

	data := w.inputBuf
	for {
		n := len(data)
		final := byte(0x01)
		if n > maxStoredBlock {
			n = maxStoredBlock
			final = 0x00
		}
		length := uint16(n)
		nlength := ^length
		hdr := []byte{final, byte(length), byte(length >> 8), byte(nlength), byte(nlength >> 8)}
		if _, err := w.output.Write(hdr); err != nil {
			return err
		}
		if _, err := w.output.Write(data[:n]); err != nil {
			return err
		}
		data = data[n:]
		if final != 0 {
			break
		}
	}

	checksum := adler32.Checksum(w.inputBuf)
	_, err := w.output.Write([]byte{
		byte(checksum >> 24),
		byte(checksum >> 16),
		byte(checksum >> 8),
		byte(checksum),
	})
	return err
}
