//go:build unix

package stream

import (
	"io"
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/mogaika/hlpack/errs"
)

const maxMappedViews = 64

// Mapped is a read-only stream over a memory-mapped file. Quick mapping maps
// the whole file once; otherwise fixed-size views are mapped on demand and
// the least recently used ones are unmapped.
type Mapped struct {
	mu       sync.Mutex
	f        *os.File
	name     string
	size     int64
	viewSize int64
	whole    []byte
	views    *lru.Cache[int64, []byte]
}

func OpenMapped(path string, mode Mode, viewSize int64) (Stream, error) {
	f, err := os.Open(path)
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

	m := &Mapped{f: f, name: path, size: info.Size()}
	if m.size == 0 {
		return m, nil
	}

	if mode.Has(ModeQuickMapping) {
		data, err := unix.Mmap(int(f.Fd()), 0, int(m.size), unix.PROT_READ, unix.MAP_SHARED)
		if err != nil {
			f.Close()
			return nil, errs.WrapIO(err, "[stream] Cannot map '%s'", path)
		}
		m.whole = data
		return m, nil
	}

	page := int64(os.Getpagesize())
	if viewSize <= 0 {
		viewSize = DefaultViewSize
	}
	m.viewSize = (viewSize + page - 1) / page * page
	m.views, err = lru.NewWithEvict[int64, []byte](maxMappedViews, func(_ int64, view []byte) {
		if err := unix.Munmap(view); err != nil {
			log.Warnf("[stream] munmap view of '%s': %v", path, err)
		}
	})
	if err != nil {
		f.Close()
		return nil, errs.WrapIO(err, "[stream] view cache for '%s'", path)
	}
	return m, nil
}

func (m *Mapped) Name() string   { return m.name }
func (m *Mapped) Writable() bool { return false }
func (m *Mapped) Size() int64    { return m.size }

func (m *Mapped) view(start int64) ([]byte, error) {
	if v, ok := m.views.Get(start); ok {
		return v, nil
	}
	length := m.viewSize
	if start+length > m.size {
		length = m.size - start
	}
	v, err := unix.Mmap(int(m.f.Fd()), start, int(length), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, errs.WrapIO(err, "[stream] Cannot map view 0x%x of '%s'", start, m.name)
	}
	m.views.Add(start, v)
	return v, nil
}

func (m *Mapped) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.f == nil {
		return 0, errs.IO("[stream] '%s' is closed", m.name)
	}
	if off < 0 {
		return 0, errs.IO("[stream] '%s' negative offset %d", m.name, off)
	}
	if off >= m.size {
		return 0, io.EOF
	}
	if m.whole != nil {
		n := copy(p, m.whole[off:])
		if n < len(p) {
			return n, io.EOF
		}
		return n, nil
	}

	n := 0
	for n < len(p) && off < m.size {
		start := off / m.viewSize * m.viewSize
		v, err := m.view(start)
		if err != nil {
			return n, err
		}
		c := copy(p[n:], v[off-start:])
		n += c
		off += int64(c)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *Mapped) WriteAt(p []byte, off int64) (int, error) {
	return 0, errs.Unsupported("[stream] mapped '%s' is read-only", m.name)
}

func (m *Mapped) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.f == nil {
		return nil
	}
	if m.views != nil {
		m.views.Purge()
	}
	var result error
	if m.whole != nil {
		if err := unix.Munmap(m.whole); err != nil {
			result = errs.WrapIO(err, "[stream] munmap '%s'", m.name)
		}
		m.whole = nil
	}
	if err := m.f.Close(); err != nil && result == nil {
		result = errs.WrapIO(err, "[stream] Cannot close '%s'", m.name)
	}
	m.f = nil
	return result
}
