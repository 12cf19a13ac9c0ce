// Package safetensors reads the float tensors of a .safetensors file as
// quantized tensors in the matching unquantized block format.
package safetensors

import (
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/goccy/go-json"

	"github.com/samcharles93/qtensor/pkg/quant"
)

var (
	ErrUnsupportedDType = errors.New("safetensors: unsupported dtype")
	ErrNotFound         = errors.New("safetensors: tensor not found")
	ErrCorruptFile      = errors.New("safetensors: corrupt file")
)

// maxHeaderLen bounds the JSON header so a bad length prefix cannot force a
// huge allocation.
const maxHeaderLen = 100 << 20

type TensorInfo struct {
	Name  string
	DType string
	Shape []int
	Start int64
	End   int64
}

// Format maps the dtype onto a block format. Only the float dtypes have one.
func (ti TensorInfo) Format() (quant.Format, error) {
	switch ti.DType {
	case "F32":
		return quant.F32, nil
	case "F16":
		return quant.F16, nil
	case "BF16":
		return quant.BF16, nil
	}
	return 0, fmt.Errorf("%w %q", ErrUnsupportedDType, ti.DType)
}

type File struct {
	Path      string
	DataStart int64
	Metadata  map[string]string
	Tensors   map[string]TensorInfo

	f    *os.File
	size int64
}

type tensorHeader struct {
	DType       string  `json:"dtype"`
	Shape       []int   `json:"shape"`
	DataOffsets []int64 `json:"data_offsets"`
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
	sf, err := parse(f, st.Size())
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	sf.Path = path
	sf.f = f
	return sf, nil
}

func parse(r io.ReaderAt, size int64) (*File, error) {
	var lenBuf [8]byte
	if _, err := r.ReadAt(lenBuf[:], 0); err != nil {
		return nil, fmt.Errorf("%w: read header length: %v", ErrCorruptFile, err)
	}
	headerLen := binary.LittleEndian.Uint64(lenBuf[:])
	if headerLen > maxHeaderLen || int64(headerLen) > size-8 {
		return nil, fmt.Errorf("%w: header length %d exceeds file", ErrCorruptFile, headerLen)
	}
	headerBytes := make([]byte, headerLen)
	if _, err := r.ReadAt(headerBytes, 8); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrCorruptFile, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptFile, err)
	}

	sf := &File{
		DataStart: int64(8 + headerLen),
		Tensors:   make(map[string]TensorInfo, len(raw)),
		size:      size,
	}
	if meta, ok := raw["__metadata__"]; ok {
		if err := json.Unmarshal(meta, &sf.Metadata); err != nil {
			return nil, fmt.Errorf("%w: metadata: %v", ErrCorruptFile, err)
		}
		delete(raw, "__metadata__")
	}

	dataLen := size - sf.DataStart
	for name, msg := range raw {
		var th tensorHeader
		if err := json.Unmarshal(msg, &th); err != nil {
			return nil, fmt.Errorf("%w: tensor %s: %v", ErrCorruptFile, name, err)
		}
		if len(th.DataOffsets) != 2 {
			return nil, fmt.Errorf("%w: tensor %s: invalid data_offsets", ErrCorruptFile, name)
		}
		start, end := th.DataOffsets[0], th.DataOffsets[1]
		if start < 0 || end < start || end > dataLen {
			return nil, fmt.Errorf("%w: tensor %s: offsets [%d, %d) outside data of %d bytes", ErrCorruptFile, name, start, end, dataLen)
		}
		sf.Tensors[name] = TensorInfo{
			Name:  name,
			DType: th.DType,
			Shape: th.Shape,
			Start: start,
			End:   end,
		}
	}
	return sf, nil
}

func (f *File) Close() error {
	if f.f == nil {
		return nil
	}
	err := f.f.Close()
	f.f = nil
	return err
}

// Names returns tensor names in data order.
func (f *File) Names() []string {
	infos := make([]TensorInfo, 0, len(f.Tensors))
	for _, ti := range f.Tensors {
		infos = append(infos, ti)
	}
	slices.SortFunc(infos, func(a, b TensorInfo) int {
		if c := cmp.Compare(a.Start, b.Start); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	names := make([]string, len(infos))
	for i, ti := range infos {
		names[i] = ti.Name
	}
	return names
}

func (f *File) ReadTensor(name string) ([]byte, TensorInfo, error) {
	ti, ok := f.Tensors[name]
	if !ok {
		return nil, TensorInfo{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if f.f == nil {
		return nil, TensorInfo{}, fmt.Errorf("safetensors: %s: file closed", f.Path)
	}
	buf := make([]byte, ti.End-ti.Start)
	if _, err := f.f.ReadAt(buf, f.DataStart+ti.Start); err != nil {
		return nil, TensorInfo{}, fmt.Errorf("read tensor %s: %w", name, err)
	}
	return buf, ti, nil
}

// Tensor reads name as a tensor in its native float format. The payload
// length is checked against the shape.
func (f *File) Tensor(name string) (*quant.Tensor, error) {
	raw, ti, err := f.ReadTensor(name)
	if err != nil {
		return nil, err
	}
	format, err := ti.Format()
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	t, err := quant.FromBytes(raw, quant.Shape(ti.Shape), format)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	return t, nil
}

// ReadTensorF32 widens name to float32.
func (f *File) ReadTensorF32(name string) ([]float32, TensorInfo, error) {
	t, err := f.Tensor(name)
	if err != nil {
		return nil, TensorInfo{}, err
	}
	vals, err := t.Dequantize()
	if err != nil {
		return nil, TensorInfo{}, fmt.Errorf("tensor %s: %w", name, err)
	}
	return vals, f.Tensors[name], nil
}
