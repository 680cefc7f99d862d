//go:build !unix

package stream

import (
	"github.com/spf13/afero"
)

// OpenMapped falls back to a plain file stream where mmap is unavailable.
func OpenMapped(path string, mode Mode, viewSize int64) (Stream, error) {
	return OpenFile(afero.NewOsFs(), path, mode&^ModeWrite)
}
