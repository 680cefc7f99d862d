// Package codec is the decompression collaborator used by the format layer.
// It never interprets container structures: it takes compressed bytes and
// the expected decoded length and returns exactly that many bytes or fails.
package codec

import (
	"bytes"
	"compress/bzip2"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz/lzma"
)

// Method values follow the ZIP method numbering.
type Method uint16

const (
	Store   Method = 0
	Deflate Method = 8
	Bzip2   Method = 12
	LZMA    Method = 14
	Zstd    Method = 93
)

func (m Method) String() string {
	switch m {
	case Store:
		return "store"
	case Deflate:
		return "deflate"
	case Bzip2:
		return "bzip2"
	case LZMA:
		return "lzma"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("method(%d)", uint16(m))
	}
}

type Decompressor interface {
	Decompress(src []byte, expectedLen int64) ([]byte, error)
}

type DecompressorFunc func(src []byte, expectedLen int64) ([]byte, error)

func (f DecompressorFunc) Decompress(src []byte, expectedLen int64) ([]byte, error) {
	return f(src, expectedLen)
}

// Set maps methods to decompressors.
type Set map[Method]Decompressor

func Default() Set {
	return Set{
		Store:   DecompressorFunc(decompressStore),
		Deflate: DecompressorFunc(decompressDeflate),
		Bzip2:   DecompressorFunc(decompressBzip2),
		LZMA:    DecompressorFunc(decompressLZMA),
		Zstd:    DecompressorFunc(decompressZstd),
	}
}

func (s Set) Supports(m Method) bool {
	_, ok := s[m]
	return ok
}

func (s Set) Decompress(m Method, src []byte, expectedLen int64) ([]byte, error) {
	d, ok := s[m]
	if !ok {
		return nil, errors.Errorf("[codec] unsupported compression %v", m)
	}
	out, err := d.Decompress(src, expectedLen)
	if err != nil {
		return nil, errors.Wrapf(err, "[codec] %v", m)
	}
	return out, nil
}

// readExact drains r and requires exactly expectedLen bytes.
func readExact(r io.Reader, expectedLen int64) ([]byte, error) {
	if expectedLen < 0 {
		return nil, errors.Errorf("negative expected length %d", expectedLen)
	}
	out := make([]byte, expectedLen)
	n, err := io.ReadFull(r, out)
	if err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil, errors.Errorf("decoded length %d, expected %d", n, expectedLen)
		}
		return nil, errors.Wrapf(err, "decode failed after %d bytes", n)
	}
	var probe [1]byte
	if extra, _ := r.Read(probe[:]); extra != 0 {
		return nil, errors.Errorf("decoded data longer than expected %d bytes", expectedLen)
	}
	return out, nil
}

func decompressStore(src []byte, expectedLen int64) ([]byte, error) {
	if int64(len(src)) != expectedLen {
		return nil, errors.Errorf("stored length %d, expected %d", len(src), expectedLen)
	}
	return src, nil
}

func decompressDeflate(src []byte, expectedLen int64) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(src))
	defer r.Close()
	return readExact(r, expectedLen)
}

func decompressBzip2(src []byte, expectedLen int64) ([]byte, error) {
	return readExact(bzip2.NewReader(bytes.NewReader(src)), expectedLen)
}

// decompressLZMA takes the 5 property bytes followed by the raw LZMA stream,
// the layout shared by ZIP method 14 and Source engine LZMA lumps.
func decompressLZMA(src []byte, expectedLen int64) ([]byte, error) {
	if len(src) < 5 {
		return nil, errors.Errorf("lzma properties truncated")
	}
	header := make([]byte, 13, 13+len(src)-5)
	copy(header, src[:5])
	binary.LittleEndian.PutUint64(header[5:], uint64(expectedLen))
	r, err := lzma.NewReader(io.MultiReader(bytes.NewReader(header), bytes.NewReader(src[5:])))
	if err != nil {
		return nil, errors.Wrapf(err, "lzma header")
	}
	return readExact(r, expectedLen)
}

var zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))

func decompressZstd(src []byte, expectedLen int64) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(src, make([]byte, 0, expectedLen))
	if err != nil {
		return nil, err
	}
	if int64(len(out)) != expectedLen {
		return nil, errors.Errorf("decoded length %d, expected %d", len(out), expectedLen)
	}
	return out, nil
}
