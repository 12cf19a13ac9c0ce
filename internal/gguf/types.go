package gguf

import (
	"fmt"

	"github.com/samcharles93/qtensor/pkg/quant"
)

// ValueType tags a metadata value.
type ValueType uint32

const (
	TypeUint8 ValueType = iota
	TypeInt8
	TypeUint16
	TypeInt16
	TypeUint32
	TypeInt32
	TypeFloat32
	TypeBool
	TypeString
	TypeArray
	TypeUint64
	TypeInt64
	TypeFloat64
)

var valueTypeNames = [...]string{
	TypeUint8: "u8", TypeInt8: "i8", TypeUint16: "u16", TypeInt16: "i16",
	TypeUint32: "u32", TypeInt32: "i32", TypeFloat32: "f32", TypeBool: "bool",
	TypeString: "string", TypeArray: "array", TypeUint64: "u64", TypeInt64: "i64",
	TypeFloat64: "f64",
}

func (t ValueType) String() string {
	if int(t) < len(valueTypeNames) {
		return valueTypeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint32(t))
}

// TensorType is the GGML storage type of a tensor.
type TensorType uint32

const (
	GGMLTypeF32  TensorType = 0
	GGMLTypeF16  TensorType = 1
	GGMLTypeQ4_0 TensorType = 2
	GGMLTypeQ4_1 TensorType = 3
	GGMLTypeQ5_0 TensorType = 6
	GGMLTypeQ5_1 TensorType = 7
	GGMLTypeQ8_0 TensorType = 8
	GGMLTypeQ8_1 TensorType = 9
	GGMLTypeQ2_K TensorType = 10
	GGMLTypeQ3_K TensorType = 11
	GGMLTypeQ4_K TensorType = 12
	GGMLTypeQ5_K TensorType = 13
	GGMLTypeQ6_K TensorType = 14
	GGMLTypeQ8_K TensorType = 15
	GGMLTypeI8   TensorType = 16
	GGMLTypeI16  TensorType = 17
	GGMLTypeI32  TensorType = 18
	GGMLTypeI64  TensorType = 19
	GGMLTypeF64  TensorType = 20
	GGMLTypeBF16 TensorType = 30
)

type ggmlType struct {
	name   string
	format quant.Format
	// lifted is set when format has the same block layout as the GGML type.
	lifted bool
}

var ggmlTypes = map[TensorType]ggmlType{
	GGMLTypeF32:  {"F32", quant.F32, true},
	GGMLTypeF16:  {"F16", quant.F16, true},
	GGMLTypeBF16: {"BF16", quant.BF16, true},
	GGMLTypeQ4_0: {"Q4_0", quant.Q4_0, true},
	GGMLTypeQ4_1: {"Q4_1", quant.Q4_1, true},
	GGMLTypeQ5_0: {"Q5_0", quant.Q5_0, true},
	GGMLTypeQ5_1: {"Q5_1", quant.Q5_1, true},
	GGMLTypeQ8_0: {"Q8_0", quant.Q8_0, true},
	GGMLTypeQ8_1: {"Q8_1", quant.Q8_1, true},
	GGMLTypeQ4_K: {"Q4_K", quant.Q4K, true},
	GGMLTypeQ6_K: {"Q6_K", quant.Q6K, true},
	GGMLTypeQ8_K: {"Q8_K", quant.Q8K, true},
	GGMLTypeQ2_K: {name: "Q2_K"},
	GGMLTypeQ3_K: {name: "Q3_K"},
	GGMLTypeQ5_K: {name: "Q5_K"},
	GGMLTypeI8:   {name: "I8"},
	GGMLTypeI16:  {name: "I16"},
	GGMLTypeI32:  {name: "I32"},
	GGMLTypeI64:  {name: "I64"},
	GGMLTypeF64:  {name: "F64"},
}

func (t TensorType) String() string {
	if g, ok := ggmlTypes[t]; ok {
		return g.name
	}
	return fmt.Sprintf("type(%d)", uint32(t))
}

// Format maps a GGML tensor type to the block format with the same layout.
func (t TensorType) Format() (quant.Format, error) {
	g, ok := ggmlTypes[t]
	if !ok || !g.lifted {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
	return g.format, nil
}
