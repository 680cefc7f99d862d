package readat

import (
	"bytes"
	"encoding/binary"

	"github.com/mogaika/hlpack/errs"
	"github.com/mogaika/hlpack/stream"
)

// Reader decodes little endian values at absolute offsets of a stream
// (relative to the reader's base offset). The first failure is kept and
// every later read returns zero values, so a header can be decoded field by
// field and checked once with Err.
type Reader struct {
	source stream.Stream
	offset int64
	err    error
}

func NewReader(source stream.Stream, offset int64) *Reader {
	return &Reader{
		source: source,
		offset: offset,
	}
}

func (r *Reader) Offset() int64 { return r.offset }
func (r *Reader) Err() error    { return r.err }

func (r *Reader) SubReader(offset int64) *Reader {
	return &Reader{
		source: r.source,
		offset: r.offset + offset,
		err:    r.err,
	}
}

func (r *Reader) ReadAt(p []byte, off int64) error {
	if r.err != nil {
		return r.err
	}
	if err := stream.ReadFull(r.source, p, r.offset+off); err != nil {
		r.err = err
	}
	return r.err
}

// Bytes reads n bytes at off. Sizes that cannot fit in the stream fail
// before allocating.
func (r *Reader) Bytes(off int64, n int64) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || !stream.InBounds(r.source, r.offset+off, n) {
		r.err = errs.IO("[readat] '%s' truncated: 0x%x bytes at 0x%x, size 0x%x",
			r.source.Name(), n, r.offset+off, r.source.Size())
		return nil
	}
	buf := make([]byte, n)
	if r.ReadAt(buf, off) != nil {
		return nil
	}
	return buf
}

func (r *Reader) ReadU8(off int64) uint8 {
	var b [1]byte
	r.ReadAt(b[:], off)
	return b[0]
}

func (r *Reader) ReadU16LE(off int64) uint16 {
	var b [2]byte
	r.ReadAt(b[:], off)
	return binary.LittleEndian.Uint16(b[:])
}

func (r *Reader) ReadU32LE(off int64) uint32 {
	var b [4]byte
	r.ReadAt(b[:], off)
	return binary.LittleEndian.Uint32(b[:])
}
func (r *Reader) ReadI32LE(off int64) int32 { return int32(r.ReadU32LE(off)) }

func (r *Reader) ReadU64LE(off int64) uint64 {
	var b [8]byte
	r.ReadAt(b[:], off)
	return binary.LittleEndian.Uint64(b[:])
}

// Uint32s decodes count consecutive little endian uint32 values.
func (r *Reader) Uint32s(off int64, count uint32) []uint32 {
	raw := r.Bytes(off, int64(count)*4)
	if raw == nil {
		return nil
	}
	result := make([]uint32, count)
	for i := range result {
		result[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return result
}

// CString reads a zero terminated string of at most max bytes starting at
// off and returns it with the number of bytes consumed (terminator included).
func (r *Reader) CString(off int64, max int) (string, int) {
	if r.err != nil {
		return "", 0
	}
	const chunk = 64
	var out []byte
	for len(out) < max {
		n := chunk
		if left := max - len(out) + 1; left < n {
			n = left
		}
		if rest := r.source.Size() - (r.offset + off + int64(len(out))); rest < int64(n) {
			n = int(rest)
		}
		if n <= 0 {
			break
		}
		buf := make([]byte, n)
		if r.ReadAt(buf, off+int64(len(out))) != nil {
			return "", 0
		}
		if i := bytes.IndexByte(buf, 0); i >= 0 {
			out = append(out, buf[:i]...)
			return string(out), len(out) + 1
		}
		out = append(out, buf...)
	}
	r.err = errs.Format("[readat] unterminated string at 0x%x in '%s'", r.offset+off, r.source.Name())
	return "", 0
}
