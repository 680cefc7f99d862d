package vfs

import (
	"sync/atomic"

	"github.com/mogaika/hlpack/codec"
)

// Fragment is one stored piece of a file. Volume indexes the package volume
// list (0 is the primary stream).
type Fragment struct {
	Volume int
	Offset int64
	Size   int64
}

func (fr Fragment) End() int64 { return fr.Offset + fr.Size }

type File struct {
	name   string
	id     uint32
	parent *Folder

	// Size is the logical (decoded) size.
	Size int64
	// Fragments are kept in the logical order defined by the format.
	Fragments   []Fragment
	Compression codec.Method
	Checksum    *Checksum
	Extractable bool
	Attributes  Attributes

	validation atomic.Int32
}

func NewFile(name string, id uint32, size int64) *File {
	return &File{
		name:        name,
		id:          id,
		Size:        size,
		Extractable: true,
	}
}

func (f *File) Name() string    { return f.name }
func (f *File) Parent() *Folder { return f.parent }
func (f *File) IsFolder() bool  { return false }
func (f *File) ID() uint32      { return f.id }

func (f *File) Compressed() bool { return f.Compression != codec.Store }

// SizeOnDisk is the number of stored bytes, compressed or not.
func (f *File) SizeOnDisk() int64 {
	var total int64
	for _, fr := range f.Fragments {
		total += fr.Size
	}
	return total
}

// Fragmented reports whether the stored pieces are not one contiguous run.
func (f *File) Fragmented() bool {
	for i := 1; i < len(f.Fragments); i++ {
		prev, cur := f.Fragments[i-1], f.Fragments[i]
		if cur.Volume != prev.Volume || cur.Offset != prev.End() {
			return true
		}
	}
	return false
}

// Validation returns the cached status, ValidationUnknown if none yet.
func (f *File) Validation() Validation {
	return Validation(f.validation.Load())
}

func (f *File) SetValidation(v Validation) {
	f.validation.Store(int32(v))
}

func (f *File) ResetValidation() {
	f.validation.Store(int32(ValidationUnknown))
}
