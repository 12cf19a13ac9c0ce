package qtf

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/goccy/go-json"

	"github.com/samcharles93/qtensor/pkg/quant"
)

// Entry is a named tensor to be written.
type Entry struct {
	Name   string
	Tensor *quant.Tensor
}

// Write encodes a complete file to w. Tensors are laid out in the order
// given, each payload aligned to 64 bytes from the data start.
func Write(w io.Writer, metadata map[string]string, entries []Entry) error {
	hdr := Header{Metadata: metadata, Tensors: make([]TensorInfo, 0, len(entries))}
	seen := make(map[string]struct{}, len(entries))
	var off uint64
	for i, e := range entries {
		if e.Name == "" {
			return fmt.Errorf("qtf: entry %d has no name", i)
		}
		if e.Tensor == nil {
			return fmt.Errorf("qtf: entry %q has no tensor", e.Name)
		}
		if _, dup := seen[e.Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateName, e.Name)
		}
		seen[e.Name] = struct{}{}

		off = alignUp(off)
		size := uint64(e.Tensor.Size())
		hdr.Tensors = append(hdr.Tensors, TensorInfo{
			Name:   e.Name,
			Format: e.Tensor.Format(),
			Shape:  e.Tensor.Shape(),
			Offset: off,
			Size:   size,
		})
		off += size
	}

	js, err := json.Marshal(hdr)
	if err != nil {
		return fmt.Errorf("qtf: encode header: %w", err)
	}
	if uint64(len(js)) > math.MaxUint32 {
		return fmt.Errorf("qtf: header too large (%d bytes)", len(js))
	}

	pre := Preamble{
		Major:     CurrentMajor,
		Minor:     CurrentMinor,
		HeaderLen: uint32(len(js)),
		Flags:     FlagTensorDataAligned64,
	}
	copy(pre.Magic[:], Magic)

	bw := bufio.NewWriterSize(w, 1<<20)
	cw := &countingWriter{w: bw}
	if _, err := cw.Write(pre.encode()); err != nil {
		return err
	}
	if _, err := cw.Write(js); err != nil {
		return err
	}
	if err := cw.pad(alignUp(cw.n)); err != nil {
		return err
	}

	dataStart := cw.n
	for i, e := range entries {
		if err := cw.pad(dataStart + hdr.Tensors[i].Offset); err != nil {
			return err
		}
		if _, err := cw.Write(e.Tensor.View()); err != nil {
			return fmt.Errorf("qtf: write %q: %w", e.Name, err)
		}
	}
	return bw.Flush()
}

// WriteFile writes a complete file at path, replacing any existing file.
// The file is written to a temporary sibling and renamed into place.
func WriteFile(path string, metadata map[string]string, entries []Entry) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := Write(f, metadata, entries); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

type countingWriter struct {
	w     io.Writer
	n     uint64
	zeros [Align]byte
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += uint64(n)
	return n, err
}

// pad writes zeros until the stream reaches offset to.
func (c *countingWriter) pad(to uint64) error {
	for c.n < to {
		chunk := min(to-c.n, uint64(len(c.zeros)))
		if _, err := c.Write(c.zeros[:chunk]); err != nil {
			return err
		}
	}
	return nil
}
