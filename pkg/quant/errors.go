package quant

import (
	"errors"
	"fmt"
)

var (
	ErrAlignment          = errors.New("element count not a multiple of block size")
	ErrSizeMismatch       = errors.New("buffer size mismatch")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrStructuralRead     = errors.New("malformed block data")
)

// AlignmentError reports an element count that does not divide into whole
// blocks of the requested format.
type AlignmentError struct {
	Format    Format
	Elements  int
	BlockSize int
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("%s: %d elements is not a multiple of block size %d", e.Format, e.Elements, e.BlockSize)
}

func (e *AlignmentError) Unwrap() error { return ErrAlignment }

// SizeMismatchError reports a source whose length disagrees with the length
// implied by the shape and format.
type SizeMismatchError struct {
	Format Format
	// What names the mismatched input, "bytes" or "values".
	What string
	Want int
	Got  int
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %d %s, got %d", e.Format, e.Want, e.What, e.Got)
}

func (e *SizeMismatchError) Unwrap() error { return ErrSizeMismatch }

// BackendUnavailableError is returned by dispatchers when the capability
// flags required by a backend are not set. It is raised before any work.
type BackendUnavailableError struct {
	Backend string
	Reason  string
}

func (e *BackendUnavailableError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("backend %q is not available", e.Backend)
	}
	return fmt.Sprintf("backend %q is not available: %s", e.Backend, e.Reason)
}

func (e *BackendUnavailableError) Unwrap() error { return ErrBackendUnavailable }

// StructuralReadError reports a block that could not be read in full.
// Decoding stops at Block; earlier blocks have already been written.
type StructuralReadError struct {
	Format Format
	Block  int
	Need   int
	Have   int
}

func (e *StructuralReadError) Error() string {
	return fmt.Sprintf("%s: block %d needs %d bytes, %d available", e.Format, e.Block, e.Need, e.Have)
}

func (e *StructuralReadError) Unwrap() error { return ErrStructuralRead }
