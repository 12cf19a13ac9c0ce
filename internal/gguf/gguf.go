// Package gguf reads GGUF model files far enough to lift their tensors into
// quant tensors: the key/value header, the tensor directory and the raw
// payloads.
package gguf

import (
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	magicGGUF        = "GGUF"
	defaultAlignment = 32
	maxDims          = 8
)

var (
	ErrInvalidMagic    = errors.New("gguf: invalid magic")
	ErrUnsupportedType = errors.New("gguf: unsupported tensor type")
	ErrNotFound        = errors.New("gguf: tensor not found")
)

type ArrayValue struct {
	ElemType ValueType
	Values   []any
}

type Value struct {
	Type  ValueType
	Value any
}

type Header struct {
	Version     uint32
	TensorCount uint64
	KVCount     uint64
}

type TensorInfo struct {
	Name   string
	Dims   []uint64
	Type   TensorType
	Offset uint64
}

// File is an opened GGUF file. Tensor payloads are read on demand.
type File struct {
	Path       string
	Header     Header
	KV         map[string]Value
	Tensors    []TensorInfo
	Alignment  uint64
	DataOffset uint64

	f    *os.File
	size int64
}

func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	gf, err := parse(f, st.Size())
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	gf.Path = path
	gf.f = f
	return gf, nil
}

func (f *File) Close() error {
	if f == nil || f.f == nil {
		return nil
	}
	err := f.f.Close()
	f.f = nil
	return err
}

func parse(rd io.Reader, size int64) (*File, error) {
	r := newReader(rd, size)

	hdr, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	// Every entry takes at least 8 bytes; larger counts cannot fit.
	if hdr.TensorCount > uint64(size)/8 || hdr.KVCount > uint64(size)/8 {
		return nil, fmt.Errorf("gguf: implausible counts (tensors=%d kv=%d)", hdr.TensorCount, hdr.KVCount)
	}
	kv, err := readKV(r, hdr.KVCount)
	if err != nil {
		return nil, err
	}
	tensors, err := readTensorInfos(r, hdr.TensorCount)
	if err != nil {
		return nil, err
	}

	alignment := uint64(defaultAlignment)
	if v, ok := kv["general.alignment"]; ok {
		if u, ok := asUint64(v.Value); ok && u > 0 {
			alignment = u
		}
	}
	return &File{
		Header:     hdr,
		KV:         kv,
		Tensors:    tensors,
		Alignment:  alignment,
		DataOffset: align(uint64(r.off), alignment),
		size:       size,
	}, nil
}

func readHeader(r *reader) (Header, error) {
	magic, err := r.readN(len(magicGGUF))
	if err != nil {
		return Header{}, err
	}
	if string(magic) != magicGGUF {
		return Header{}, fmt.Errorf("%w: %q", ErrInvalidMagic, magic)
	}
	var h Header
	if h.Version, err = r.readU32(); err != nil {
		return Header{}, err
	}
	if h.TensorCount, err = r.readU64(); err != nil {
		return Header{}, err
	}
	if h.KVCount, err = r.readU64(); err != nil {
		return Header{}, err
	}
	return h, nil
}

func readKV(r *reader, n uint64) (map[string]Value, error) {
	kv := make(map[string]Value, n)
	for i := range n {
		key, err := r.readString()
		if err != nil {
			return nil, fmt.Errorf("read key %d: %w", i, err)
		}
		vt, err := r.readU32()
		if err != nil {
			return nil, fmt.Errorf("read value type for %s: %w", key, err)
		}
		val, err := readValue(r, ValueType(vt))
		if err != nil {
			return nil, fmt.Errorf("read value for %s: %w", key, err)
		}
		kv[key] = Value{Type: ValueType(vt), Value: val}
	}
	return kv, nil
}

func readTensorInfos(r *reader, n uint64) ([]TensorInfo, error) {
	out := make([]TensorInfo, 0, n)
	for i := range n {
		var ti TensorInfo
		var err error
		if ti.Name, err = r.readString(); err != nil {
			return nil, fmt.Errorf("read tensor name %d: %w", i, err)
		}
		nDim, err := r.readU32()
		if err != nil {
			return nil, fmt.Errorf("tensor %s: read rank: %w", ti.Name, err)
		}
		if nDim > maxDims {
			return nil, fmt.Errorf("tensor %s: %d dimensions", ti.Name, nDim)
		}
		ti.Dims = make([]uint64, nDim)
		for d := range ti.Dims {
			if ti.Dims[d], err = r.readU64(); err != nil {
				return nil, fmt.Errorf("tensor %s: read dim %d: %w", ti.Name, d, err)
			}
		}
		typ, err := r.readU32()
		if err != nil {
			return nil, fmt.Errorf("tensor %s: read type: %w", ti.Name, err)
		}
		ti.Type = TensorType(typ)
		if ti.Offset, err = r.readU64(); err != nil {
			return nil, fmt.Errorf("tensor %s: read offset: %w", ti.Name, err)
		}
		out = append(out, ti)
	}
	return out, nil
}

// scalarReaders decode the fixed-width value types.
var scalarReaders = map[ValueType]func(*reader) (any, error){
	TypeUint8:   func(r *reader) (any, error) { return r.readU8() },
	TypeInt8:    func(r *reader) (any, error) { return r.readI8() },
	TypeUint16:  func(r *reader) (any, error) { return r.readU16() },
	TypeInt16:   func(r *reader) (any, error) { return r.readI16() },
	TypeUint32:  func(r *reader) (any, error) { return r.readU32() },
	TypeInt32:   func(r *reader) (any, error) { return r.readI32() },
	TypeUint64:  func(r *reader) (any, error) { return r.readU64() },
	TypeInt64:   func(r *reader) (any, error) { return r.readI64() },
	TypeFloat32: func(r *reader) (any, error) { return r.readF32() },
	TypeFloat64: func(r *reader) (any, error) { return r.readF64() },
	TypeString:  func(r *reader) (any, error) { return r.readString() },
	TypeBool: func(r *reader) (any, error) {
		v, err := r.readU8()
		return v != 0, err
	},
}

func readValue(r *reader, vt ValueType) (any, error) {
	if read, ok := scalarReaders[vt]; ok {
		return read(r)
	}
	if vt != TypeArray {
		return nil, fmt.Errorf("unsupported value type %d", uint32(vt))
	}
	elem, err := r.readU32()
	if err != nil {
		return nil, err
	}
	count, err := r.readU64()
	if err != nil {
		return nil, err
	}
	if count > uint64(r.size-r.off) {
		return nil, fmt.Errorf("array length %d exceeds remaining file", count)
	}
	values := make([]any, count)
	for i := range values {
		if values[i], err = readValue(r, ValueType(elem)); err != nil {
			return nil, err
		}
	}
	return ArrayValue{ElemType: ValueType(elem), Values: values}, nil
}

func align(offset, alignment uint64) uint64 {
	if alignment == 0 {
		return offset
	}
	return (offset + alignment - 1) / alignment * alignment
}

func asUint64(v any) (uint64, bool) {
	var i int64
	switch t := v.(type) {
	case uint8:
		return uint64(t), true
	case uint16:
		return uint64(t), true
	case uint32:
		return uint64(t), true
	case uint64:
		return t, true
	case int8:
		i = int64(t)
	case int16:
		i = int64(t)
	case int32:
		i = int64(t)
	case int64:
		i = t
	default:
		return 0, false
	}
	if i < 0 {
		return 0, false
	}
	return uint64(i), true
}
