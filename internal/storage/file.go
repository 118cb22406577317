package storage

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrMalformedFile is returned when an input file does not match the
// {count, values...} layout.
var ErrMalformedFile = errors.New("malformed sequence file")

// decodeChunk bounds how many values Decode allocates ahead of the payload
// actually read.
const decodeChunk = 1 << 16

// Decode reads a count header followed by that many little-endian int32
// values.
func Decode(r io.Reader) ([]int32, error) {
	return decode(r, -1)
}

// decode is Decode with an upper bound on the header count; a negative
// limit means the payload size is unknown.
func decode(r io.Reader, limit int64) ([]int32, error) {
	br := bufio.NewReader(r)

	var count int32
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrMalformedFile, err)
	}
	if count < 0 {
		return nil, fmt.Errorf("%w: negative count %d", ErrMalformedFile, count)
	}
	if limit >= 0 && int64(count) > limit {
		return nil, fmt.Errorf("%w: header declares %d values, payload holds %d", ErrMalformedFile, count, limit)
	}

	seq := make([]int32, 0, min(int(count), decodeChunk))
	chunk := make([]int32, min(int(count), decodeChunk))
	for remaining := int(count); remaining > 0; {
		n := min(remaining, decodeChunk)
		if err := binary.Read(br, binary.LittleEndian, chunk[:n]); err != nil {
			return nil, fmt.Errorf("%w: header declares %d values: %v", ErrMalformedFile, count, err)
		}
		seq = append(seq, chunk[:n]...)
		remaining -= n
	}
	return seq, nil
}

// Encode writes seq in the format Decode reads.
func Encode(w io.Writer, seq []int32) error {
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, int32(len(seq))); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, seq); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadFile loads a sequence file from disk.
func ReadFile(path string) ([]int32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	limit := (fi.Size() - 4) / 4
	if limit < 0 {
		limit = 0
	}

	seq, err := decode(f, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return seq, nil
}

// WriteFile stores seq at path, replacing any existing file.
func WriteFile(path string, seq []int32) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, seq); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
