package gguf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// maxStringLen bounds keys, names and string values.
const maxStringLen = 1 << 20

// reader decodes little-endian GGUF primitives and tracks the byte offset,
// which the tensor data start is aligned from.
type reader struct {
	r       *bufio.Reader
	off     int64
	size    int64
	scratch [8]byte
}

func newReader(rd io.Reader, size int64) *reader {
	return &reader{r: bufio.NewReaderSize(rd, 1<<16), size: size}
}

func (r *reader) fill(n int) ([]byte, error) {
	if r.size > 0 && r.off+int64(n) > r.size {
		return nil, fmt.Errorf("read %d bytes at offset %d: %w", n, r.off, io.ErrUnexpectedEOF)
	}
	var buf []byte
	if n > len(r.scratch) {
		buf = make([]byte, n)
	} else {
		buf = r.scratch[:n]
	}
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, err
	}
	r.off += int64(n)
	return buf, nil
}

// readN returns a fresh slice the caller may keep.
func (r *reader) readN(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("invalid read length %d", n)
	}
	b, err := r.fill(n)
	if err != nil {
		return nil, err
	}
	if n <= len(r.scratch) {
		b = append([]byte(nil), b...)
	}
	return b, nil
}

func (r *reader) readU8() (uint8, error) {
	b, err := r.fill(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) readU16() (uint16, error) {
	b, err := r.fill(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) readU32() (uint32, error) {
	b, err := r.fill(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) readU64() (uint64, error) {
	b, err := r.fill(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) readI8() (int8, error) {
	v, err := r.readU8()
	return int8(v), err
}

func (r *reader) readI16() (int16, error) {
	v, err := r.readU16()
	return int16(v), err
}

func (r *reader) readI32() (int32, error) {
	v, err := r.readU32()
	return int32(v), err
}

func (r *reader) readI64() (int64, error) {
	v, err := r.readU64()
	return int64(v), err
}

func (r *reader) readF32() (float32, error) {
	u, err := r.readU32()
	return math.Float32frombits(u), err
}

func (r *reader) readF64() (float64, error) {
	u, err := r.readU64()
	return math.Float64frombits(u), err
}

func (r *reader) readString() (string, error) {
	n, err := r.readU64()
	if err != nil {
		return "", err
	}
	if n > maxStringLen || (r.size > 0 && n > uint64(r.size-r.off)) {
		return "", fmt.Errorf("string length %d at offset %d too large", n, r.off)
	}
	b, err := r.fill(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
