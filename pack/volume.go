package pack

import (
	"sync"

	"github.com/mogaika/hlpack/errs"
	"github.com/mogaika/hlpack/stream"
)

// Volume is one stream backing a package. Secondary volumes may be opened
// lazily and may be missing, which validation reports as Incomplete.
type Volume struct {
	Name string

	mu     sync.Mutex
	open   func() (stream.Stream, error)
	s      stream.Stream
	err    error
	closed bool
}

func NewVolume(s stream.Stream) *Volume {
	return &Volume{Name: s.Name(), s: s}
}

func NewLazyVolume(name string, open func() (stream.Stream, error)) *Volume {
	return &Volume{Name: name, open: open}
}

// Stream opens the volume on first use. A failed open is remembered.
func (v *Volume) Stream() (stream.Stream, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil, errs.IO("[pack] volume '%s' is closed", v.Name)
	}
	if v.s == nil && v.err == nil {
		if v.open == nil {
			v.err = errs.NotFound("[pack] volume '%s' is missing", v.Name)
		} else {
			v.s, v.err = v.open()
		}
	}
	return v.s, v.err
}

func (v *Volume) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	if v.s == nil {
		return nil
	}
	err := v.s.Close()
	v.s = nil
	return err
}
