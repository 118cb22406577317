package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// TestEncodeDecode tests the binary sequence format
func TestEncodeDecode(t *testing.T) {
	seq := []int32{5, -3, 8, 1, 2147483647, -2147483648}

	var buf bytes.Buffer
	if err := Encode(&buf, seq); err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}

	// Header is the little-endian count
	if got := binary.LittleEndian.Uint32(buf.Bytes()[:4]); got != uint32(len(seq)) {
		t.Errorf("Expected header %d, got %d", len(seq), got)
	}
	if buf.Len() != 4*(len(seq)+1) {
		t.Errorf("Expected %d bytes, got %d", 4*(len(seq)+1), buf.Len())
	}

	decoded, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if !reflect.DeepEqual(decoded, seq) {
		t.Errorf("Expected %v, got %v", seq, decoded)
	}
}

// TestDecodeMalformed tests header/payload validation
func TestDecodeMalformed(t *testing.T) {
	le := func(values ...int32) []byte {
		var buf bytes.Buffer
		binary.Write(&buf, binary.LittleEndian, values)
		return buf.Bytes()
	}

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty file", data: nil},
		{name: "short header", data: []byte{1, 0}},
		{name: "negative count", data: le(-1)},
		{name: "count larger than payload", data: le(3, 1, 2)},
		{name: "count far exceeds payload", data: le(2147483647, 1, 2, 3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(bytes.NewReader(tt.data))
			if !errors.Is(err, ErrMalformedFile) {
				t.Errorf("Expected ErrMalformedFile, got %v", err)
			}
		})
	}
}

// TestDecodeChunked tests payloads spanning several read chunks
func TestDecodeChunked(t *testing.T) {
	seq := make([]int32, 2*decodeChunk+3)
	for i := range seq {
		seq[i] = int32(len(seq) - i)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, seq); err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}
	decoded, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if !reflect.DeepEqual(decoded, seq) {
		t.Errorf("Decoded sequence differs from input (%d values)", len(decoded))
	}
}

// TestReadFileHeaderExceedsSize tests that the header is checked against the
// file size before any payload is read
func TestReadFileHeaderExceedsSize(t *testing.T) {
	tests := []struct {
		name   string
		values []int32
	}{
		{name: "huge header", values: []int32{200000000, 1, 2, 3}},
		{name: "one value short", values: []int32{3, 1, 2}},
		{name: "header only", values: []int32{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			binary.Write(&buf, binary.LittleEndian, tt.values)
			path := filepath.Join(t.TempDir(), "bad.bin")
			if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
				t.Fatalf("Failed to write file: %v", err)
			}

			_, err := ReadFile(path)
			if !errors.Is(err, ErrMalformedFile) {
				t.Fatalf("Expected ErrMalformedFile, got %v", err)
			}
			if !strings.Contains(err.Error(), "payload holds") {
				t.Errorf("Expected the size check to reject the header, got %v", err)
			}
		})
	}
}

// TestReadWriteFile tests the on-disk round trip
func TestReadWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seq.bin")
	seq := []int32{9, 8, 7}

	if err := WriteFile(path, seq); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if !reflect.DeepEqual(got, seq) {
		t.Errorf("Expected %v, got %v", seq, got)
	}

	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.bin")); err == nil {
		t.Error("Expected error for missing file, got nil")
	}
}
