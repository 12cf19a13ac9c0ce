package gguf

import (
	"bytes"
	"encoding/binary"
	"reflect"
	"strings"
	"testing"
)

func TestMetadataFlattensValues(t *testing.T) {
	kv := map[string]Value{
		"general.name":         {Type: TypeString, Value: "tiny"},
		"general.quantized":    {Type: TypeBool, Value: true},
		"general.alignment":    {Type: TypeUint32, Value: uint32(64)},
		"llama.rope.freq_base": {Type: TypeFloat32, Value: float32(10000)},
		"llama.offset":         {Type: TypeInt32, Value: int32(-3)},
		"tokenizer.tokens": {
			Type:  TypeArray,
			Value: ArrayValue{ElemType: TypeString, Values: []any{"a", "b", "c"}},
		},
		"odd": {Type: TypeString, Value: struct{}{}},
	}
	want := map[string]string{
		"general.name":         "tiny",
		"general.quantized":    "true",
		"general.alignment":    "64",
		"llama.rope.freq_base": "10000",
		"llama.offset":         "-3",
		"tokenizer.tokens":     "[3 x " + TypeString.String() + "]",
	}
	if got := Metadata(kv); !reflect.DeepEqual(got, want) {
		t.Fatalf("Metadata = %v, want %v", got, want)
	}
}

func TestReaderBounds(t *testing.T) {
	data := []byte{3, 0, 0, 0, 0, 0, 0, 0, 'a', 'b'}
	r := newReader(bytes.NewReader(data), int64(len(data)))
	if _, err := r.readString(); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Fatalf("expected length error, got %v", err)
	}

	data = []byte{2, 0, 0, 0, 0, 0, 0, 0, 'o', 'k', 7}
	r = newReader(bytes.NewReader(data), int64(len(data)))
	s, err := r.readString()
	if err != nil || s != "ok" {
		t.Fatalf("readString = %q, %v", s, err)
	}
	if r.off != 10 {
		t.Fatalf("offset = %d, want 10", r.off)
	}
	if v, err := r.readU8(); err != nil || v != 7 {
		t.Fatalf("readU8 = %d, %v", v, err)
	}
	if _, err := r.readU32(); err == nil {
		t.Fatal("expected error reading past the end")
	}
}

func TestReaderLongReads(t *testing.T) {
	name := "general.architecture"
	data := binary.LittleEndian.AppendUint64(nil, uint64(len(name)))
	data = append(data, name...)
	data = append(data, "GGUF-payload-bytes"...)
	r := newReader(bytes.NewReader(data), int64(len(data)))

	s, err := r.readString()
	if err != nil || s != name {
		t.Fatalf("readString = %q, %v", s, err)
	}
	b, err := r.readN(18)
	if err != nil || string(b) != "GGUF-payload-bytes" {
		t.Fatalf("readN = %q, %v", b, err)
	}
}
