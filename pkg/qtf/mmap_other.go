//go:build !unix

package qtf

import (
	"errors"
	"os"
)

var errNoMmap = errors.New("qtf: mmap not supported on this platform")

func mmapFile(*os.File, int) ([]byte, error) { return nil, errNoMmap }

func munmap([]byte) error { return nil }
