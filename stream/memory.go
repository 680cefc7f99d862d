package stream

import (
	"io"
	"sync"

	"github.com/mogaika/hlpack/errs"
)

// Memory is a stream over a byte slice. Writable memory streams grow on
// writes past the end.
type Memory struct {
	mu       sync.RWMutex
	buf      []byte
	name     string
	writable bool
}

func NewMemory(name string, buf []byte, writable bool) *Memory {
	return &Memory{buf: buf, name: name, writable: writable}
}

func (m *Memory) Name() string   { return m.name }
func (m *Memory) Writable() bool { return m.writable }

func (m *Memory) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.buf))
}

// Bytes returns the current contents. The slice aliases the stream.
func (m *Memory) Bytes() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.buf
}

func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if off < 0 {
		return 0, errs.IO("[stream] '%s' negative offset %d", m.name, off)
	}
	if off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	if !m.writable {
		return 0, errs.Unsupported("[stream] '%s' is read-only", m.name)
	}
	if off < 0 {
		return 0, errs.IO("[stream] '%s' negative offset %d", m.name, off)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if end := off + int64(len(p)); end > int64(len(m.buf)) {
		if end > int64(cap(m.buf)) {
			grown := make([]byte, end, end*2)
			copy(grown, m.buf)
			m.buf = grown
		} else {
			old := len(m.buf)
			m.buf = m.buf[:end]
			for i := old; int64(i) < off; i++ {
				m.buf[i] = 0
			}
		}
	}
	return copy(m.buf[off:], p), nil
}

// Truncate shrinks or grows the buffer to size.
func (m *Memory) Truncate(size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if size <= int64(len(m.buf)) {
		m.buf = m.buf[:size]
		return
	}
	grown := make([]byte, size)
	copy(grown, m.buf)
	m.buf = grown
}

func (m *Memory) Close() error { return nil }

// Section is a read-only window over another stream. Closing a section does
// not close its parent.
type Section struct {
	parent Stream
	off    int64
	size   int64
	name   string
}

func NewSection(parent Stream, name string, off, size int64) (*Section, error) {
	if !InBounds(parent, off, size) {
		return nil, errs.IO("[stream] section [0x%x+0x%x] outside '%s' (size 0x%x)",
			off, size, parent.Name(), parent.Size())
	}
	return &Section{parent: parent, off: off, size: size, name: name}, nil
}

func (s *Section) Name() string   { return s.name }
func (s *Section) Writable() bool { return false }
func (s *Section) Size() int64    { return s.size }
func (s *Section) Close() error   { return nil }

func (s *Section) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= s.size {
		return 0, io.EOF
	}
	if max := s.size - off; int64(len(p)) > max {
		n, err := s.parent.ReadAt(p[:max], s.off+off)
		if err == nil {
			err = io.EOF
		}
		return n, err
	}
	return s.parent.ReadAt(p, s.off+off)
}

func (s *Section) WriteAt(p []byte, off int64) (int, error) {
	return 0, errs.Unsupported("[stream] section '%s' is read-only", s.name)
}
