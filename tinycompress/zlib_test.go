package tinycompress

import (
	"bytes"
	"compress/zlib"
	"io"
	"testing"
)

func roundTrip(t *testing.T, input []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if _, err := w.Write(input); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	r, err := zlib.NewReader(&buf)
	if err != nil {
		t.Fatalf("zlib.NewReader failed: %v", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	return out
}

func TestWriterRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"empty", 0},
		{"small", 100},
		{"one full block", 0xFFFF},
		{"two blocks", 0xFFFF + 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := make([]byte, tt.size)
			for i := range input {
				input[i] = byte(i * 7)
			}
			if out := roundTrip(t, input); !bytes.Equal(out, input) {
				t.Errorf("Round trip of %d bytes returned %d bytes", len(input), len(out))
			}
		})
	}
}

func TestWriterMultipleWrites(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Write([]byte(`{"version":`))
	w.Write([]byte(`"tofmcu"}`))
	w.Close()

	r, err := zlib.NewReader(&buf)
	if err != nil {
		t.Fatalf("zlib.NewReader failed: %v", err)
	}
	out, _ := io.ReadAll(r)
	if string(out) != `{"version":"tofmcu"}` {
		t.Errorf("Unexpected output %q", out)
	}
}
