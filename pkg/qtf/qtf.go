// Package qtf reads and writes .qtf containers: a fixed preamble, a JSON
// header describing every tensor, then the packed tensor payloads, each
// starting on a 64-byte boundary.
//
//	offset 0   magic "QTF\x00"
//	       4   major u16, minor u16
//	       8   header length u32
//	      12   flags u32
//	      16   JSON header, zero padded to the data start
//
// Tensor offsets in the header are relative to the data start.
package qtf

import (
	"encoding/binary"

	"github.com/samcharles93/qtensor/pkg/quant"
)

const (
	Magic = "QTF\x00"

	CurrentMajor uint16 = 1
	CurrentMinor uint16 = 0

	// FlagTensorDataAligned64 marks files whose payloads start on 64-byte
	// boundaries. Writers always set it.
	FlagTensorDataAligned64 uint32 = 1 << 0

	Align = 64

	preambleSize = 16
)

// Preamble is the fixed-size prefix of a file.
type Preamble struct {
	Magic     [4]byte
	Major     uint16
	Minor     uint16
	HeaderLen uint32
	Flags     uint32
}

func (p *Preamble) Valid() bool { return string(p.Magic[:]) == Magic }

func (p *Preamble) Compatible() bool { return p.Major == CurrentMajor }

func (p *Preamble) encode() []byte {
	b := make([]byte, preambleSize)
	copy(b[0:4], p.Magic[:])
	binary.LittleEndian.PutUint16(b[4:], p.Major)
	binary.LittleEndian.PutUint16(b[6:], p.Minor)
	binary.LittleEndian.PutUint32(b[8:], p.HeaderLen)
	binary.LittleEndian.PutUint32(b[12:], p.Flags)
	return b
}

func decodePreamble(b []byte) (Preamble, bool) {
	if len(b) < preambleSize {
		return Preamble{}, false
	}
	var p Preamble
	copy(p.Magic[:], b[0:4])
	p.Major = binary.LittleEndian.Uint16(b[4:])
	p.Minor = binary.LittleEndian.Uint16(b[6:])
	p.HeaderLen = binary.LittleEndian.Uint32(b[8:])
	p.Flags = binary.LittleEndian.Uint32(b[12:])
	return p, true
}

// TensorInfo is one entry of the JSON header.
type TensorInfo struct {
	Name   string       `json:"name"`
	Format quant.Format `json:"format"`
	Shape  []int        `json:"shape"`
	Offset uint64       `json:"offset"`
	Size   uint64       `json:"size"`
}

// Header is the JSON document following the preamble.
type Header struct {
	Metadata map[string]string `json:"metadata,omitempty"`
	Tensors  []TensorInfo      `json:"tensors"`
}

func alignUp(n uint64) uint64 {
	return (n + Align - 1) &^ (Align - 1)
}
