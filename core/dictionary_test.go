package core

import (
	"bytes"
	"compress/zlib"
	"io"
	"strings"
	"testing"
)

func TestDictionary(t *testing.T) {
	dict := NewDictionary(NewCommandRegistry())

	dict.AddConstant("TEST_CONST", uint32(42))
	dict.AddConstant("TEST_STR", "hello")
	dict.AddEnumeration("static_string_id", []string{"", "first", "second"})

	dict.commandReg.Register("test_cmd", "arg=%u", func(data *[]byte) error { return nil })
	dict.commandReg.Register("test_resp", "val=%u", nil)

	output := string(dict.Generate())

	for _, want := range []string{
		`"version":"tofmcu-0.1.0"`,
		`"TEST_CONST":"42"`,
		`"TEST_STR":"hello"`,
		`"commands":{"test_cmd arg=%u":0}`,
		`"responses":{"test_resp val=%u":1}`,
		`"static_string_id":{"first":1,"second":2}`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Dictionary missing %s\n%s", want, output)
		}
	}
}

func TestDictionaryChunks(t *testing.T) {
	dict := NewDictionary(NewCommandRegistry())
	dict.AddConstant("TEST", uint32(123))

	full := dict.Generate()

	var joined []byte
	for offset := uint32(0); offset < uint32(len(full)); offset += 40 {
		chunk := dict.GetChunk(offset, 40)
		if len(chunk) == 0 || len(chunk) > 40 {
			t.Fatalf("Chunk at %d has %d bytes", offset, len(chunk))
		}
		joined = append(joined, chunk...)
	}
	if !bytes.Equal(joined, full) {
		t.Error("Chunks do not reassemble the dictionary")
	}

	if chunk := dict.GetChunk(uint32(len(full)), 10); len(chunk) != 0 {
		t.Error("Chunk at exact end should be empty")
	}
	if chunk := dict.GetChunk(uint32(len(full)+100), 10); len(chunk) != 0 {
		t.Error("Chunk beyond end should be empty")
	}
}

func TestBuildDictionaryCompresses(t *testing.T) {
	dict := NewDictionary(NewCommandRegistry())
	dict.commandReg.Register("vl53l0x_measure", "oid=%c", func(data *[]byte) error { return nil })
	plain := dict.Generate()

	dict.BuildDictionary()
	compressed := dict.Generate()
	if len(compressed) < 2 || compressed[0] != 0x78 {
		t.Fatalf("Expected a zlib stream, got % x", compressed[:2])
	}

	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		t.Fatalf("zlib.NewReader failed: %v", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("Decompression failed: %v", err)
	}
	if !bytes.Equal(out, plain) {
		t.Errorf("Decompressed dictionary differs:\n%s\n%s", out, plain)
	}

	// Late additions drop the cache
	dict.AddConstant("LATE", "1")
	if !strings.Contains(string(dict.Generate()), `"LATE":"1"`) {
		t.Error("Expected cache invalidation after AddConstant")
	}
}
