package qtf

import (
	"cmp"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/goccy/go-json"

	"github.com/samcharles93/qtensor/pkg/quant"
)

// File is an opened container. Tensor payloads are sliced out of Data,
// which is either a read-only mapping or an owned buffer.
type File struct {
	Data     []byte
	Preamble Preamble
	Header   Header

	dataStart uint64
	index     map[string]int
	mmapped   bool
}

// Open maps a file read-only and validates its structure. If mmap is not
// available it falls back to reading the whole file. The returned file
// must be closed to release any mapping.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size64 := stat.Size()
	if size64 < 0 || size64 > int64(int(^uint(0)>>1)) {
		return nil, ErrCorruptFile
	}
	size := int(size64)
	if size < preambleSize {
		return nil, ErrCorruptFile
	}

	if data, err := mmapFile(f, size); err == nil {
		qf, parseErr := parseFileData(data, true)
		if parseErr != nil {
			_ = munmap(data)
			return nil, parseErr
		}
		return qf, nil
	}

	data, err := readAllAt(f, size)
	if err != nil {
		return nil, err
	}
	return parseFileData(data, false)
}

// OpenReaderAt loads and validates a file from a random-access reader
// without mmap.
func OpenReaderAt(r io.ReaderAt, size int64) (*File, error) {
	if size < 0 || size > int64(int(^uint(0)>>1)) {
		return nil, ErrCorruptFile
	}
	data, err := readAllAt(r, int(size))
	if err != nil {
		return nil, err
	}
	return parseFileData(data, false)
}

func readAllAt(r io.ReaderAt, size int) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	out := make([]byte, size)
	var off int64
	for off < int64(size) {
		n, err := r.ReadAt(out[off:], off)
		off += int64(n)
		if err == nil {
			continue
		}
		if err == io.EOF && off == int64(size) {
			break
		}
		return nil, err
	}
	return out, nil
}

func parseFileData(data []byte, mmapped bool) (*File, error) {
	pre, ok := decodePreamble(data)
	if !ok {
		return nil, ErrCorruptFile
	}
	if !pre.Valid() {
		return nil, ErrInvalidMagic
	}
	if !pre.Compatible() {
		return nil, fmt.Errorf("%w: %d.%d", ErrUnsupportedMajor, pre.Major, pre.Minor)
	}

	total := uint64(len(data))
	hdrEnd := uint64(preambleSize) + uint64(pre.HeaderLen)
	if hdrEnd > total {
		return nil, fmt.Errorf("%w: header length %d exceeds file", ErrCorruptFile, pre.HeaderLen)
	}
	var hdr Header
	if err := json.Unmarshal(data[preambleSize:hdrEnd], &hdr); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorruptFile, err)
	}

	dataStart := alignUp(hdrEnd)
	if dataStart > total {
		if len(hdr.Tensors) > 0 {
			return nil, fmt.Errorf("%w: data section missing", ErrCorruptFile)
		}
		dataStart = total
	}
	avail := total - dataStart
	aligned := pre.Flags&FlagTensorDataAligned64 != 0

	index := make(map[string]int, len(hdr.Tensors))
	for i := range hdr.Tensors {
		ti := &hdr.Tensors[i]
		if ti.Name == "" {
			return nil, fmt.Errorf("%w: tensor %d has no name", ErrCorruptFile, i)
		}
		if _, dup := index[ti.Name]; dup {
			return nil, fmt.Errorf("%w: %w: %q", ErrCorruptFile, ErrDuplicateName, ti.Name)
		}
		index[ti.Name] = i

		if !ti.Format.Valid() {
			return nil, fmt.Errorf("%w: tensor %q has invalid format", ErrCorruptFile, ti.Name)
		}
		n, err := quant.Shape(ti.Shape).Elements()
		if err != nil {
			return nil, fmt.Errorf("%w: tensor %q: %v", ErrCorruptFile, ti.Name, err)
		}
		want, err := ti.Format.RowSize(n)
		if err != nil {
			return nil, fmt.Errorf("%w: tensor %q: %v", ErrCorruptFile, ti.Name, err)
		}
		if ti.Size != uint64(want) {
			return nil, fmt.Errorf("%w: tensor %q size %d, want %d", ErrCorruptFile, ti.Name, ti.Size, want)
		}
		end := ti.Offset + ti.Size
		if end < ti.Offset || end > avail {
			return nil, fmt.Errorf("%w: tensor %q out of bounds", ErrCorruptFile, ti.Name)
		}
		if aligned && ti.Offset%Align != 0 {
			return nil, fmt.Errorf("%w: tensor %q offset not %d-byte aligned", ErrCorruptFile, ti.Name, Align)
		}
	}

	byOffset := slices.Clone(hdr.Tensors)
	slices.SortFunc(byOffset, func(a, b TensorInfo) int { return cmp.Compare(a.Offset, b.Offset) })
	for i := 1; i < len(byOffset); i++ {
		prev, cur := byOffset[i-1], byOffset[i]
		if prev.Offset+prev.Size > cur.Offset && cur.Size > 0 && prev.Size > 0 {
			return nil, fmt.Errorf("%w: tensors %q and %q overlap", ErrCorruptFile, prev.Name, cur.Name)
		}
	}

	return &File{
		Data:      data,
		Preamble:  pre,
		Header:    hdr,
		dataStart: dataStart,
		index:     index,
		mmapped:   mmapped,
	}, nil
}

// Names lists the tensors in header order.
func (f *File) Names() []string {
	out := make([]string, len(f.Header.Tensors))
	for i, ti := range f.Header.Tensors {
		out[i] = ti.Name
	}
	return out
}

// Info returns the header entry for name.
func (f *File) Info(name string) (TensorInfo, error) {
	i, ok := f.index[name]
	if !ok {
		return TensorInfo{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return f.Header.Tensors[i], nil
}

// Raw returns the payload of name. The slice aliases the file and is only
// valid until Close.
func (f *File) Raw(name string) ([]byte, error) {
	ti, err := f.Info(name)
	if err != nil {
		return nil, err
	}
	start := f.dataStart + ti.Offset
	return f.Data[start : start+ti.Size : start+ti.Size], nil
}

// Tensor copies the payload of name into a new quant.Tensor that outlives
// the file.
func (f *File) Tensor(name string) (*quant.Tensor, error) {
	ti, err := f.Info(name)
	if err != nil {
		return nil, err
	}
	raw, err := f.Raw(name)
	if err != nil {
		return nil, err
	}
	return quant.FromBytes(raw, quant.Shape(ti.Shape), ti.Format)
}

// Close releases file resources and any mmap backing.
func (f *File) Close() error {
	if f == nil {
		return nil
	}
	data := f.Data
	f.Data = nil
	if f.mmapped && data != nil {
		f.mmapped = false
		return munmap(data)
	}
	return nil
}
