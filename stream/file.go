package stream

import (
	"os"
	"sync/atomic"

	"github.com/spf13/afero"

	"github.com/mogaika/hlpack/errs"
)

type File struct {
	f        afero.File
	name     string
	writable bool
	size     int64
}

func OpenFile(fs afero.Fs, path string, mode Mode) (*File, error) {
	flags := os.O_RDONLY
	if mode.Has(ModeWrite) {
		flags = os.O_RDWR
	}
	if mode.Has(ModeCreate) {
		flags |= os.O_CREATE | os.O_TRUNC
		if !mode.Has(ModeWrite) {
			flags = os.O_RDWR | os.O_CREATE | os.O_TRUNC
		}
	}

	f, err := fs.OpenFile(path, flags, 0666)
	if err != nil {
		return nil, errs.WrapIO(err, "[stream] Cannot open '%s'", path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errs.WrapIO(err, "[stream] Cannot stat '%s'", path)
	}
	if info.IsDir() {
		f.Close()
		return nil, errs.IO("[stream] '%s' is a directory", path)
	}

	return &File{
		f:        f,
		name:     path,
		writable: flags&(os.O_RDWR|os.O_WRONLY) != 0,
		size:     info.Size(),
	}, nil
}

func (s *File) Name() string   { return s.name }
func (s *File) Writable() bool { return s.writable }
func (s *File) Size() int64    { return atomic.LoadInt64(&s.size) }

func (s *File) ReadAt(p []byte, off int64) (int, error) {
	if s.f == nil {
		return 0, errs.IO("[stream] '%s' is closed", s.name)
	}
	return s.f.ReadAt(p, off)
}

func (s *File) WriteAt(p []byte, off int64) (int, error) {
	if !s.writable {
		return 0, errs.Unsupported("[stream] '%s' opened read-only", s.name)
	}
	if s.f == nil {
		return 0, errs.IO("[stream] '%s' is closed", s.name)
	}
	n, err := s.f.WriteAt(p, off)
	for end := off + int64(n); ; {
		cur := atomic.LoadInt64(&s.size)
		if end <= cur || atomic.CompareAndSwapInt64(&s.size, cur, end) {
			break
		}
	}
	if err != nil {
		return n, errs.WrapIO(err, "[stream] '%s' write at 0x%x", s.name, off)
	}
	return n, nil
}

func (s *File) Sync() error {
	if s.f == nil {
		return nil
	}
	return s.f.Sync()
}

func (s *File) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	if err != nil {
		return errs.WrapIO(err, "[stream] Cannot close '%s'", s.name)
	}
	return nil
}
