package gguf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/samcharles93/qtensor/pkg/quant"
)

type ggufBuilder struct {
	buf bytes.Buffer
}

func (b *ggufBuilder) u32(v uint32) { _ = binary.Write(&b.buf, binary.LittleEndian, v) }
func (b *ggufBuilder) u64(v uint64) { _ = binary.Write(&b.buf, binary.LittleEndian, v) }
func (b *ggufBuilder) str(s string) {
	b.u64(uint64(len(s)))
	b.buf.WriteString(s)
}

type testTensor struct {
	name string
	dims []uint64
	typ  TensorType
	data []byte
}

// buildGGUF lays out a version 3 file with the default alignment.
func buildGGUF(t *testing.T, kv func(b *ggufBuilder) uint64, tensors []testTensor) string {
	t.Helper()
	var hdr ggufBuilder
	var kvs ggufBuilder
	nkv := kv(&kvs)

	hdr.buf.WriteString(magicGGUF)
	hdr.u32(3)
	hdr.u64(uint64(len(tensors)))
	hdr.u64(nkv)
	hdr.buf.Write(kvs.buf.Bytes())

	var off uint64
	offsets := make([]uint64, len(tensors))
	for i, tt := range tensors {
		off = align(off, defaultAlignment)
		offsets[i] = off
		hdr.str(tt.name)
		hdr.u32(uint32(len(tt.dims)))
		for _, d := range tt.dims {
			hdr.u64(d)
		}
		hdr.u32(uint32(tt.typ))
		hdr.u64(off)
		off += uint64(len(tt.data))
	}
	for uint64(hdr.buf.Len())%defaultAlignment != 0 {
		hdr.buf.WriteByte(0)
	}
	base := hdr.buf.Len()
	for i, tt := range tensors {
		for hdr.buf.Len() < base+int(offsets[i]) {
			hdr.buf.WriteByte(0)
		}
		hdr.buf.Write(tt.data)
	}

	path := filepath.Join(t.TempDir(), "model.gguf")
	if err := os.WriteFile(path, hdr.buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write gguf: %v", err)
	}
	return path
}

func quantized(t *testing.T, shape quant.Shape, f quant.Format) *quant.Tensor {
	t.Helper()
	n, _ := shape.Elements()
	vals := make([]float32, n)
	for i := range vals {
		vals[i] = float32(i%23-11) * 0.125
	}
	q, err := quant.Quantize(vals, shape, f)
	if err != nil {
		t.Fatalf("Quantize: %v", err)
	}
	return q
}

func TestOpenReadsTensorsAndMetadata(t *testing.T) {
	t.Parallel()
	q8 := quantized(t, quant.Shape{2, 64}, quant.Q8_0)
	q4k := quantized(t, quant.Shape{1, 256}, quant.Q4K)

	path := buildGGUF(t, func(b *ggufBuilder) uint64 {
		b.str("general.name")
		b.u32(uint32(TypeString))
		b.str("tiny")
		b.str("tiny.block_count")
		b.u32(uint32(TypeUint32))
		b.u32(2)
		return 2
	}, []testTensor{
		{name: "blk.0.w", dims: []uint64{64, 2}, typ: GGMLTypeQ8_0, data: q8.Bytes()},
		{name: "blk.0.k", dims: []uint64{256, 1}, typ: GGMLTypeQ4_K, data: q4k.Bytes()},
		{name: "blk.0.q2", dims: []uint64{256}, typ: GGMLTypeQ2_K, data: make([]byte, 84)},
	})

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = f.Close() }()

	if f.Header.Version != 3 || len(f.Tensors) != 3 {
		t.Fatalf("unexpected header: %+v tensors=%d", f.Header, len(f.Tensors))
	}
	meta := Metadata(f.KV)
	if meta["general.name"] != "tiny" || meta["tiny.block_count"] != "2" {
		t.Fatalf("unexpected metadata: %v", meta)
	}

	for _, want := range []struct {
		name string
		src  *quant.Tensor
	}{{"blk.0.w", q8}, {"blk.0.k", q4k}} {
		got, err := f.Tensor(want.name)
		if err != nil {
			t.Fatalf("Tensor(%s): %v", want.name, err)
		}
		if !got.Shape().Equal(want.src.Shape()) || got.Format() != want.src.Format() {
			t.Fatalf("%s: got %s want %s", want.name, got, want.src)
		}
		if !bytes.Equal(got.Bytes(), want.src.Bytes()) {
			t.Fatalf("%s: payload differs", want.name)
		}
	}

	if _, err := f.Tensor("blk.0.q2"); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
	if _, err := f.Tensor("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.gguf")
	if err := os.WriteFile(path, []byte("GGML\x03\x00\x00\x00"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("expected ErrInvalidMagic, got %v", err)
	}
}

func TestTensorOutOfBounds(t *testing.T) {
	t.Parallel()
	path := buildGGUF(t, func(*ggufBuilder) uint64 { return 0 }, []testTensor{
		{name: "short", dims: []uint64{64}, typ: GGMLTypeQ8_0, data: make([]byte, 10)},
	})
	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Tensor("short"); err == nil {
		t.Fatal("expected out-of-bounds error")
	}
}

func TestTypeFormatMapping(t *testing.T) {
	t.Parallel()
	for typ, want := range map[TensorType]quant.Format{
		GGMLTypeF32: quant.F32, GGMLTypeF16: quant.F16, GGMLTypeBF16: quant.BF16,
		GGMLTypeQ4_0: quant.Q4_0, GGMLTypeQ5_1: quant.Q5_1, GGMLTypeQ8_K: quant.Q8K,
		GGMLTypeQ6_K: quant.Q6K,
	} {
		got, err := typ.Format()
		if err != nil || got != want {
			t.Fatalf("%s: got %v, %v want %v", typ, got, err, want)
		}
	}
	if _, err := GGMLTypeQ3_K.Format(); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType for Q3_K, got %v", err)
	}
}
