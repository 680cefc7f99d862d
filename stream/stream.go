// Package stream provides uniform random access over files, memory buffers
// and memory-mapped files. Every offset is absolute within the source.
package stream

import (
	"io"

	"github.com/spf13/afero"

	"github.com/mogaika/hlpack/errs"
)

const (
	DefaultViewSize       = 131072
	DefaultCopyBufferSize = 131072
)

type Mode uint8

const (
	ModeRead Mode = 1 << iota
	ModeWrite
	ModeCreate
	// ModeVolatile allows opening a file another process holds for writing.
	// Sharing is not restricted on the platforms we build for, so it only
	// disables mapping (the file may change under us).
	ModeVolatile
	ModeNoMapping
	ModeQuickMapping
)

func (m Mode) Has(flag Mode) bool { return m&flag != 0 }

type Stream interface {
	io.ReaderAt
	io.WriterAt
	Size() int64
	Name() string
	Writable() bool
	Close() error
}

// Open picks a mapped stream for read-only access to the OS filesystem and a
// plain file stream otherwise.
func Open(fs afero.Fs, path string, mode Mode) (Stream, error) {
	return OpenWithViewSize(fs, path, mode, DefaultViewSize)
}

func OpenWithViewSize(fs afero.Fs, path string, mode Mode, viewSize int64) (Stream, error) {
	if mode == 0 {
		mode = ModeRead
	}
	if !mode.Has(ModeWrite) && !mode.Has(ModeNoMapping) && !mode.Has(ModeVolatile) {
		if _, ok := fs.(*afero.OsFs); ok {
			return OpenMapped(path, mode, viewSize)
		}
	}
	return OpenFile(fs, path, mode)
}

// ReadFull reads exactly len(p) bytes at off. A short read is reported as a
// truncated stream.
func ReadFull(s Stream, p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > s.Size() {
		return errs.IO("[stream] '%s' truncated: need [0x%x, 0x%x), size 0x%x",
			s.Name(), off, off+int64(len(p)), s.Size())
	}
	n, err := s.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || err == io.EOF {
		return errs.IO("[stream] '%s' short read at 0x%x: %d of %d bytes", s.Name(), off, n, len(p))
	}
	return errs.WrapIO(err, "[stream] '%s' read at 0x%x", s.Name(), off)
}

// InBounds reports whether [off, off+n) lies inside the stream.
func InBounds(s Stream, off, n int64) bool {
	return off >= 0 && n >= 0 && off+n <= s.Size()
}

// NewReader returns a sequential reader over [off, off+n).
func NewReader(s Stream, off, n int64) *io.SectionReader {
	return io.NewSectionReader(s, off, n)
}
